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
	"github.com/gorse-io/frame/common/nn"
	"github.com/gorse-io/frame/dataset"
	"github.com/juju/errors"
)

// MLP encodes columns with a StypeWiseFeatureEncoder, averages over columns
// and applies a multilayer perceptron:
//
//	(NumLayers-1) x [Linear, Normalization, ReLU, Dropout] -> Linear
type MLP struct {
	params        Params
	channels      int
	outChannels   int
	numLayers     int
	normalization string
	dropoutProb   float32

	colStats     map[string]dataset.ColumnStats
	colNamesDict map[dataset.Stype][]string

	Encoder *StypeWiseFeatureEncoder
	Decoder *nn.Sequential
}

func NewMLP(params Params, colStats map[string]dataset.ColumnStats, colNamesDict map[dataset.Stype][]string) (*MLP, error) {
	if params == nil {
		params = Params{}
	}
	m := &MLP{
		params:        params,
		channels:      params.GetInt(Channels, 8),
		outChannels:   params.GetInt(OutChannels, 1),
		numLayers:     params.GetInt(NumLayers, 2),
		normalization: params.GetString(Normalization, LayerNorm),
		dropoutProb:   params.GetFloat32(DropoutProb, 0.2),
		colStats:      colStats,
		colNamesDict:  colNamesDict,
	}
	if m.outChannels <= 0 {
		return nil, errors.NotValidf("out channels %d", m.outChannels)
	}
	if m.numLayers < 1 {
		return nil, errors.NotValidf("number of layers %d", m.numLayers)
	}
	if m.dropoutProb < 0 || m.dropoutProb >= 1 {
		return nil, errors.NotValidf("dropout probability %v", m.dropoutProb)
	}
	if params.GetInt64(RandomState, 0) != 0 {
		nn.SetSeed(params.GetInt64(RandomState, 0))
	}
	var err error
	if m.Encoder, err = NewStypeWiseFeatureEncoder(m.channels, colStats, colNamesDict); err != nil {
		return nil, errors.Trace(err)
	}
	var layers []nn.Layer
	for i := 0; i < m.numLayers-1; i++ {
		layers = append(layers, nn.NewLinear(m.channels, m.channels))
		switch m.normalization {
		case LayerNorm:
			layers = append(layers, nn.NewLayerNorm(m.channels))
		case BatchNorm:
			layers = append(layers, nn.NewBatchNorm(m.channels))
		case NoNorm, "":
		default:
			return nil, errors.NotSupportedf("normalization %q", m.normalization)
		}
		layers = append(layers, nn.NewReLU(), nn.NewDropout(m.dropoutProb))
	}
	layers = append(layers, nn.NewLinear(m.channels, m.outChannels))
	m.Decoder = nn.NewSequential(layers...)
	return m, nil
}

func (m *MLP) Kind() string {
	return KindMLP
}

func (m *MLP) GetParams() Params {
	return m.params
}

func (m *MLP) OutChannels() int {
	return m.outChannels
}

func (m *MLP) ColStats() map[string]dataset.ColumnStats {
	return m.colStats
}

func (m *MLP) ColNamesDict() map[dataset.Stype][]string {
	return m.colNamesDict
}

func (m *MLP) Parameters() []*nn.Tensor {
	return append(m.Encoder.Parameters(), m.Decoder.Parameters()...)
}

func (m *MLP) Buffers() []*nn.Tensor {
	return m.Decoder.Buffers()
}

func (m *MLP) SetTraining(training bool) {
	m.Decoder.SetTraining(training)
}

// Forward returns outputs of shape [batch, OutChannels].
func (m *MLP) Forward(tf *dataset.TensorFrame) (*nn.Tensor, error) {
	x, err := m.Encoder.Forward(tf)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return m.Decoder.Forward(nn.MeanAxis(x, 1)), nil
}
