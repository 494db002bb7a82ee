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
	"bytes"
	"testing"

	"github.com/gorse-io/frame/common/nn"
	"github.com/gorse-io/frame/dataset"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestMLP(t *testing.T) {
	d := newFakeDataset(t, dataset.MulticlassClassification, dataset.Numerical, dataset.Categorical)
	numClasses, err := d.NumClasses()
	assert.NoError(t, err)
	m, err := NewMLP(Params{
		Channels:      8,
		OutChannels:   numClasses,
		NumLayers:     3,
		Normalization: LayerNorm,
	}, d.ColStats(), d.ColNamesDict())
	assert.NoError(t, err)
	assert.Equal(t, numClasses, m.OutChannels())
	assert.Equal(t, KindMLP, m.Kind())
	// encoder: 3 tensors, decoder: 2 x (linear, layer norm) + linear
	assert.Len(t, m.Parameters(), 3+2*(2+2)+2)
	assert.Empty(t, m.Buffers())

	y, err := m.Forward(d.TensorFrame())
	assert.NoError(t, err)
	assert.Equal(t, []int{20, numClasses}, y.Shape())

	// gradients reach every parameter
	loss := nn.SoftmaxCrossEntropy(y, nn.NewTensor(d.TensorFrame().Y, 20))
	loss.Backward()
	for _, p := range m.Parameters() {
		assert.NotNil(t, p.Grad())
	}
}

func TestMLPNormalization(t *testing.T) {
	d := newFakeDataset(t, dataset.Regression, dataset.Numerical)
	for _, norm := range []string{LayerNorm, BatchNorm, NoNorm} {
		m, err := NewMLP(Params{NumLayers: 2, Normalization: norm}, d.ColStats(), d.ColNamesDict())
		assert.NoError(t, err)
		y, err := m.Forward(d.TensorFrame())
		assert.NoError(t, err)
		assert.Equal(t, []int{20, 1}, y.Shape())
		m.SetTraining(false)
		y, err = m.Forward(d.TensorFrame())
		assert.NoError(t, err)
		assert.Equal(t, []int{20, 1}, y.Shape())
	}
	m, err := NewMLP(Params{Normalization: BatchNorm}, d.ColStats(), d.ColNamesDict())
	assert.NoError(t, err)
	assert.Len(t, m.Buffers(), 2)

	_, err = NewMLP(Params{Normalization: "group_norm"}, d.ColStats(), d.ColNamesDict())
	assert.True(t, errors.Is(err, errors.NotSupported))
	_, err = NewMLP(Params{NumLayers: 0}, d.ColStats(), d.ColNamesDict())
	assert.Error(t, err)
	_, err = NewMLP(Params{OutChannels: 0}, d.ColStats(), d.ColNamesDict())
	assert.Error(t, err)
	_, err = NewMLP(Params{DropoutProb: 1.0}, d.ColStats(), d.ColNamesDict())
	assert.Error(t, err)
}

func TestNewModule(t *testing.T) {
	d := newFakeDataset(t, dataset.Regression, dataset.Numerical)
	m, err := NewModule(KindMLP, Params{Channels: 4}, d.ColStats(), d.ColNamesDict())
	assert.NoError(t, err)
	assert.IsType(t, &MLP{}, m)

	m, err = NewModule("trompt", nil, d.ColStats(), d.ColNamesDict())
	assert.True(t, errors.Is(err, errors.NotImplemented))
	assert.Nil(t, m)
}

func TestMarshalModule(t *testing.T) {
	d := newFakeDataset(t, dataset.Regression, dataset.Numerical, dataset.Categorical, dataset.TextEmbedded)
	m, err := NewModule(KindMLP, Params{Channels: 4, NumLayers: 2, Normalization: BatchNorm, DropoutProb: 0.0}, d.ColStats(), d.ColNamesDict())
	assert.NoError(t, err)
	// update running statistics
	_, err = m.Forward(d.TensorFrame())
	assert.NoError(t, err)
	m.SetTraining(false)
	expected, err := m.Forward(d.TensorFrame())
	assert.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	assert.NoError(t, MarshalModule(buf, m))
	loaded, err := UnmarshalModule(buf)
	assert.NoError(t, err)
	assert.Equal(t, m.GetParams(), loaded.GetParams())
	assert.Equal(t, m.ColNamesDict(), loaded.ColNamesDict())
	loaded.SetTraining(false)
	actual, err := loaded.Forward(d.TensorFrame())
	assert.NoError(t, err)
	assert.InDeltaSlice(t, expected.Data(), actual.Data(), 1e-6)

	// truncated input
	buf.Reset()
	assert.NoError(t, MarshalModule(buf, m))
	_, err = UnmarshalModule(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.Error(t, err)
}
