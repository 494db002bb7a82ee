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
	"context"
	"math"
	"testing"

	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/dataset/text"
	"github.com/stretchr/testify/assert"
)

func newFakeDataset(t *testing.T, taskType dataset.TaskType, stypes ...dataset.Stype) *dataset.Dataset {
	embedder, err := text.NewHashTextEmbedder(8)
	assert.NoError(t, err)
	d, err := dataset.FakeDataset(dataset.FakeOptions{
		NumRows:      20,
		Stypes:       stypes,
		WithNaN:      true,
		CreateSplit:  true,
		TaskType:     taskType,
		TextEmbedder: &dataset.TextEmbedderConfig{Embedder: embedder},
		Seed:         0,
	})
	assert.NoError(t, err)
	assert.NoError(t, d.Materialize(context.Background()))
	return d
}

func TestStypeWiseFeatureEncoder(t *testing.T) {
	d := newFakeDataset(t, dataset.Regression, dataset.Numerical, dataset.Categorical, dataset.TextEmbedded)
	encoder, err := NewStypeWiseFeatureEncoder(4, d.ColStats(), d.ColNamesDict())
	assert.NoError(t, err)
	assert.Equal(t, 7, encoder.NumCols())
	// NumW, NumB, embedding table, 2 text linear layers
	assert.Len(t, encoder.Parameters(), 7)
	// 3 + 1 unknown and 5 + 1 unknown categories at most
	assert.LessOrEqual(t, encoder.CatEmbedding.W.Shape()[0], 10)

	x, err := encoder.Forward(d.TensorFrame())
	assert.NoError(t, err)
	assert.Equal(t, []int{20, 7, 4}, x.Shape())
	for _, v := range x.Data() {
		assert.False(t, math.IsNaN(float64(v)))
	}
}

func TestStypeWiseFeatureEncoderUnknownCategory(t *testing.T) {
	d := newFakeDataset(t, dataset.Regression, dataset.Categorical)
	encoder, err := NewStypeWiseFeatureEncoder(2, d.ColStats(), d.ColNamesDict())
	assert.NoError(t, err)
	tf := &dataset.TensorFrame{
		NumRows:      2,
		Categorical:  []int32{-1, -1, 100, 100},
		ColNamesDict: d.ColNamesDict(),
	}
	x, err := encoder.Forward(tf)
	assert.NoError(t, err)
	// missing and out of range categories share the unknown embedding
	assert.Equal(t, x.Data()[:4], x.Data()[4:])
}

func TestStypeWiseFeatureEncoderErrors(t *testing.T) {
	d := newFakeDataset(t, dataset.Regression, dataset.Numerical)
	_, err := NewStypeWiseFeatureEncoder(0, d.ColStats(), d.ColNamesDict())
	assert.Error(t, err)
	_, err = NewStypeWiseFeatureEncoder(4, d.ColStats(), map[dataset.Stype][]string{})
	assert.Error(t, err)
	_, err = NewStypeWiseFeatureEncoder(4, map[string]dataset.ColumnStats{}, d.ColNamesDict())
	assert.Error(t, err)
	_, err = NewStypeWiseFeatureEncoder(4, map[string]dataset.ColumnStats{
		"num_0": {Stype: dataset.Categorical},
	}, map[dataset.Stype][]string{dataset.Numerical: {"num_0"}})
	assert.Error(t, err)

	encoder, err := NewStypeWiseFeatureEncoder(4, d.ColStats(), d.ColNamesDict())
	assert.NoError(t, err)
	_, err = encoder.Forward(&dataset.TensorFrame{NumRows: 0})
	assert.Error(t, err)
	_, err = encoder.Forward(&dataset.TensorFrame{
		NumRows:      1,
		Numerical:    []float32{1},
		ColNamesDict: map[dataset.Stype][]string{dataset.Numerical: {"num_0"}},
	})
	assert.Error(t, err)
}
