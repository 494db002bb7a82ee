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

package dataset

import (
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// TensorFrame stores a materialized table in row-major flat slices.
type TensorFrame struct {
	NumRows int
	// Numerical has shape [NumRows, len(ColNamesDict[Numerical])]. Missing values are NaN.
	Numerical []float32
	// Categorical has shape [NumRows, len(ColNamesDict[Categorical])]. Missing or unknown values are -1.
	Categorical []int32
	// TextEmbedded has shape [NumRows, sum(TextDims)].
	TextEmbedded []float32
	TextDims     []int
	ColNamesDict map[Stype][]string
	// Y is nil if there is no target.
	Y []float32
}

func (tf *TensorFrame) NumCols(stype Stype) int {
	return len(tf.ColNamesDict[stype])
}

func (tf *TensorFrame) TextWidth() int {
	return lo.Sum(tf.TextDims)
}

// Index selects rows of the frame.
func (tf *TensorFrame) Index(rows []int) (*TensorFrame, error) {
	for _, row := range rows {
		if row < 0 || row >= tf.NumRows {
			return nil, errors.NotValidf("row %d out of range [0, %d)", row, tf.NumRows)
		}
	}
	result := &TensorFrame{
		NumRows:      len(rows),
		TextDims:     tf.TextDims,
		ColNamesDict: tf.ColNamesDict,
	}
	result.Numerical = takeRows(tf.Numerical, tf.NumCols(Numerical), rows)
	result.Categorical = takeRows(tf.Categorical, tf.NumCols(Categorical), rows)
	result.TextEmbedded = takeRows(tf.TextEmbedded, tf.TextWidth(), rows)
	if tf.Y != nil {
		result.Y = takeRows(tf.Y, 1, rows)
	}
	return result, nil
}

func takeRows[T any](data []T, width int, rows []int) []T {
	if data == nil {
		return nil
	}
	result := make([]T, 0, len(rows)*width)
	for _, row := range rows {
		result = append(result, data[row*width:(row+1)*width]...)
	}
	return result
}
