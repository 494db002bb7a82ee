// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"io"

	"github.com/gorse-io/frame/common/encoding"
	"github.com/gorse-io/frame/common/nn"
	"github.com/gorse-io/frame/dataset"
	"github.com/juju/errors"
)

const KindMLP = "mlp"

// Module is a trainable model over tensor frames.
type Module interface {
	Kind() string
	GetParams() Params
	Forward(tf *dataset.TensorFrame) (*nn.Tensor, error)
	Parameters() []*nn.Tensor
	// Buffers returns state that is saved but not trained.
	Buffers() []*nn.Tensor
	SetTraining(training bool)
	ColStats() map[string]dataset.ColumnStats
	ColNamesDict() map[dataset.Stype][]string
	OutChannels() int
}

// NewModule creates a model by kind.
func NewModule(kind string, params Params, colStats map[string]dataset.ColumnStats, colNamesDict map[dataset.Stype][]string) (Module, error) {
	switch kind {
	case KindMLP:
		m, err := NewMLP(params, colStats, colNamesDict)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return m, nil
	default:
		return nil, errors.NotImplementedf("model %q", kind)
	}
}

// MarshalModule writes the kind, hyper-parameters, column statistics and weights of a module.
func MarshalModule(w io.Writer, m Module) error {
	if err := encoding.WriteString(w, m.Kind()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, m.GetParams()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, m.ColStats()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, m.ColNamesDict()); err != nil {
		return errors.Trace(err)
	}
	tensors := append(m.Parameters(), m.Buffers()...)
	if err := encoding.WriteGob(w, len(tensors)); err != nil {
		return errors.Trace(err)
	}
	for _, t := range tensors {
		if err := encoding.WriteGob(w, t.Shape()); err != nil {
			return errors.Trace(err)
		}
		if err := encoding.WriteFloat32s(w, t.Data()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// UnmarshalModule reads a module written by MarshalModule.
func UnmarshalModule(r io.Reader) (Module, error) {
	kind, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var params Params
	if err = encoding.ReadGob(r, &params); err != nil {
		return nil, errors.Trace(err)
	}
	var colStats map[string]dataset.ColumnStats
	if err = encoding.ReadGob(r, &colStats); err != nil {
		return nil, errors.Trace(err)
	}
	var colNamesDict map[dataset.Stype][]string
	if err = encoding.ReadGob(r, &colNamesDict); err != nil {
		return nil, errors.Trace(err)
	}
	m, err := NewModule(kind, params, colStats, colNamesDict)
	if err != nil {
		return nil, errors.Trace(err)
	}
	tensors := append(m.Parameters(), m.Buffers()...)
	var count int
	if err = encoding.ReadGob(r, &count); err != nil {
		return nil, errors.Trace(err)
	}
	if count != len(tensors) {
		return nil, errors.NotValidf("%d tensors, expected %d", count, len(tensors))
	}
	for i, t := range tensors {
		var shape []int
		if err = encoding.ReadGob(r, &shape); err != nil {
			return nil, errors.Trace(err)
		}
		data, err := encoding.ReadFloat32s(r)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(data) != t.Size() || !equalShape(shape, t.Shape()) {
			return nil, errors.NotValidf("tensor %d of shape %v, expected %v", i, shape, t.Shape())
		}
		copy(t.Data(), data)
	}
	return m, nil
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
