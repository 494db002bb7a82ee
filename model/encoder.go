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
	"math"

	"github.com/chewxy/math32"
	"github.com/gorse-io/frame/common/nn"
	"github.com/gorse-io/frame/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const stdEps = 1e-6

// StypeWiseFeatureEncoder encodes every column of a tensor frame into a
// vector of channels. The output has shape [batch, columns, channels] with
// columns ordered by stype.
//
//   - numerical: x is standardized (missing values become the mean) and
//     encoded as x * W[c] + B[c].
//   - categorical: every column owns a slice of one embedding table with an
//     extra row for missing or unknown values.
//   - text_embedded: embeddings are projected by a linear layer per column.
type StypeWiseFeatureEncoder struct {
	channels     int
	colNamesDict map[dataset.Stype][]string

	// numerical
	numMean []float32
	numStd  []float32
	NumW    *nn.Tensor
	NumB    *nn.Tensor

	// categorical
	catOffsets   []int
	catSizes     []int
	CatEmbedding *nn.EmbeddingLayer

	// text_embedded
	TextLinear []*nn.LinearLayer
}

func NewStypeWiseFeatureEncoder(channels int, colStats map[string]dataset.ColumnStats, colNamesDict map[dataset.Stype][]string) (*StypeWiseFeatureEncoder, error) {
	if channels <= 0 {
		return nil, errors.NotValidf("channels %d", channels)
	}
	numCols := lo.SumBy(dataset.Stypes, func(stype dataset.Stype) int { return len(colNamesDict[stype]) })
	if numCols == 0 {
		return nil, errors.NotValidf("empty columns")
	}
	e := &StypeWiseFeatureEncoder{channels: channels, colNamesDict: colNamesDict}
	for _, stype := range dataset.Stypes {
		for _, col := range colNamesDict[stype] {
			stats, ok := colStats[col]
			if !ok {
				return nil, errors.NotFoundf("statistics of column %q", col)
			}
			if stats.Stype != stype {
				return nil, errors.NotValidf("statistics of column %q with stype %s, expected %s", col, stats.Stype, stype)
			}
			switch stype {
			case dataset.Numerical:
				e.numMean = append(e.numMean, float32(stats.Mean))
				e.numStd = append(e.numStd, float32(stats.Std))
			case dataset.Categorical:
				e.catOffsets = append(e.catOffsets, lo.Sum(e.catSizes))
				e.catSizes = append(e.catSizes, len(stats.Categories)+1)
			case dataset.TextEmbedded:
				if stats.EmbDim <= 0 {
					return nil, errors.NotValidf("embedding dimension %d of column %q", stats.EmbDim, col)
				}
				e.TextLinear = append(e.TextLinear, nn.NewLinear(stats.EmbDim, channels))
			}
		}
	}
	if n := len(e.numMean); n > 0 {
		e.NumW = nn.Normal(0, 1/math32.Sqrt(float32(channels)), n, channels).RequireGrad()
		e.NumB = nn.Zeros(n, channels).RequireGrad()
	}
	if len(e.catSizes) > 0 {
		e.CatEmbedding = nn.NewEmbedding(lo.Sum(e.catSizes), channels)
	}
	return e, nil
}

func (e *StypeWiseFeatureEncoder) NumCols() int {
	return len(e.numMean) + len(e.catSizes) + len(e.TextLinear)
}

func (e *StypeWiseFeatureEncoder) Parameters() []*nn.Tensor {
	var params []*nn.Tensor
	if e.NumW != nil {
		params = append(params, e.NumW, e.NumB)
	}
	if e.CatEmbedding != nil {
		params = append(params, e.CatEmbedding.Parameters()...)
	}
	for _, l := range e.TextLinear {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Forward encodes a tensor frame. The frame must have the columns the encoder was built for.
func (e *StypeWiseFeatureEncoder) Forward(tf *dataset.TensorFrame) (*nn.Tensor, error) {
	n := tf.NumRows
	if n == 0 {
		return nil, errors.NotValidf("empty tensor frame")
	}
	var parts []*nn.Tensor

	if c := len(e.numMean); c > 0 {
		if tf.NumCols(dataset.Numerical) != c || len(tf.Numerical) != n*c {
			return nil, errors.NotValidf("numerical columns of tensor frame")
		}
		x := make([]float32, n*c)
		for i, v := range tf.Numerical {
			j := i % c
			if math.IsNaN(float64(v)) {
				continue
			}
			x[i] = (v - e.numMean[j]) / (e.numStd[j] + stdEps)
		}
		xs := nn.Broadcast(nn.NewTensor(x, n, c), e.channels)
		parts = append(parts, nn.Add(nn.Mul(xs, e.NumW), e.NumB))
	}

	if c := len(e.catSizes); c > 0 {
		if tf.NumCols(dataset.Categorical) != c || len(tf.Categorical) != n*c {
			return nil, errors.NotValidf("categorical columns of tensor frame")
		}
		index := make([]float32, n*c)
		for i, v := range tf.Categorical {
			j := i % c
			unknown := int32(e.catSizes[j] - 1)
			if v < 0 || v >= unknown {
				v = unknown
			}
			index[i] = float32(e.catOffsets[j] + int(v))
		}
		parts = append(parts, e.CatEmbedding.Forward(nn.NewTensor(index, n, c)))
	}

	if c := len(e.TextLinear); c > 0 {
		if tf.NumCols(dataset.TextEmbedded) != c || len(tf.TextDims) != c {
			return nil, errors.NotValidf("text columns of tensor frame")
		}
		width := tf.TextWidth()
		offset := 0
		for j, linear := range e.TextLinear {
			dim := tf.TextDims[j]
			if dim != linear.W.Shape()[0] {
				return nil, errors.NotValidf("embedding dimension %d of text column %d", dim, j)
			}
			x := make([]float32, n*dim)
			for i := 0; i < n; i++ {
				copy(x[i*dim:(i+1)*dim], tf.TextEmbedded[i*width+offset:i*width+offset+dim])
			}
			y := linear.Forward(nn.NewTensor(x, n, dim))
			parts = append(parts, nn.Reshape(y, n, 1, e.channels))
			offset += dim
		}
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return nn.Concat(1, parts...), nil
}
