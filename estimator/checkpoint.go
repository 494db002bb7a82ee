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

package estimator

import (
	"io"
	"os"

	"github.com/gorse-io/frame/common/encoding"
	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/model"
	"github.com/juju/errors"
)

type checkpoint struct {
	Criterion     string
	Config        Config
	Threshold     float32
	TargetCol     string
	TargetStats   *dataset.ColumnStats
	TargetNumeric bool
	History       History
	Fitted        bool
}

// Save writes the module and the training state.
func (n *NeuralNet) Save(w io.Writer) error {
	if err := model.MarshalModule(w, n.module); err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteGob(w, checkpoint{
		Criterion:     n.criterion.Name(),
		Config:        n.config,
		Threshold:     n.threshold,
		TargetCol:     n.targetCol,
		TargetStats:   n.targetStats,
		TargetNumeric: n.targetNumeric,
		History:       n.history,
		Fitted:        n.fitted,
	})
}

// Load reads a neural net written by Save. Options that do not belong to the
// checkpoint, such as the output writer, are applied afterwards.
func Load(r io.Reader, opts ...Option) (*NeuralNet, error) {
	module, err := model.UnmarshalModule(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var state checkpoint
	if err = encoding.ReadGob(r, &state); err != nil {
		return nil, errors.Trace(err)
	}
	criterion, err := NewCriterion(state.Criterion)
	if err != nil {
		return nil, errors.Trace(err)
	}
	n := &NeuralNet{
		module:        module,
		criterion:     criterion,
		config:        state.Config,
		output:        os.Stdout,
		threshold:     state.Threshold,
		targetCol:     state.TargetCol,
		targetStats:   state.TargetStats,
		targetNumeric: state.TargetNumeric,
		history:       state.History,
		fitted:        state.Fitted,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}
