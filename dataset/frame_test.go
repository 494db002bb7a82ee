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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestFrame(t *testing.T) *DataFrame {
	df, err := NewDataFrame(
		NewFloatSeries("x", []float64{1, 2, math.NaN(), 4}),
		NewStringSeries("y", []string{"a", "b", "", "a"}),
	)
	assert.NoError(t, err)
	return df
}

func TestSeries(t *testing.T) {
	s := NewFloatSeries("x", []float64{1.5, math.NaN()})
	assert.True(t, s.IsNumeric())
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.IsNull(0))
	assert.True(t, s.IsNull(1))
	assert.Equal(t, []string{"1.5", ""}, s.Texts())

	s = NewStringSeries("y", nil)
	assert.False(t, s.IsNumeric())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "z", s.Rename("z").Name)
}

func TestNewDataFrame(t *testing.T) {
	df := newTestFrame(t)
	assert.Equal(t, 4, df.NumRows())
	assert.Equal(t, 2, df.NumCols())
	assert.Equal(t, []string{"x", "y"}, df.Columns())

	_, err := NewDataFrame(NewFloatSeries("x", []float64{1}), NewFloatSeries("x", []float64{2}))
	assert.Error(t, err)
	_, err = NewDataFrame(NewFloatSeries("x", []float64{1}), NewFloatSeries("y", []float64{2, 3}))
	assert.Error(t, err)
}

func TestDataFrame_Column(t *testing.T) {
	df := newTestFrame(t)
	s, err := df.Column("y")
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "", "a"}, s.Strings)
	_, err = df.Column("z")
	assert.Error(t, err)
}

func TestDataFrame_Drop(t *testing.T) {
	df := newTestFrame(t)
	dropped, err := df.Drop("x")
	assert.NoError(t, err)
	assert.Equal(t, []string{"y"}, dropped.Columns())
	assert.Equal(t, 4, dropped.NumRows())
	// the original frame is unchanged
	assert.Equal(t, []string{"x", "y"}, df.Columns())
	_, err = df.Drop("z")
	assert.Error(t, err)
}

func TestDataFrame_WithColumn(t *testing.T) {
	df := newTestFrame(t)
	df2, err := df.WithColumn(NewFloatSeries("z", []float64{0, 0, 0, 0}))
	assert.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, df2.Columns())
	df3, err := df.WithColumn(NewFloatSeries("x", []float64{0, 0, 0, 0}))
	assert.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, df3.Columns())
	x, _ := df3.Column("x")
	assert.Equal(t, []float64{0, 0, 0, 0}, x.Floats)
	_, err = df.WithColumn(NewFloatSeries("z", []float64{0}))
	assert.Error(t, err)
}

func TestDataFrame_Take(t *testing.T) {
	df := newTestFrame(t)
	taken := df.Take([]int{3, 0})
	assert.Equal(t, 2, taken.NumRows())
	x, _ := taken.Column("x")
	assert.Equal(t, []float64{4, 1}, x.Floats)
	y, _ := taken.Column("y")
	assert.Equal(t, []string{"a", "a"}, y.Strings)

	head := df.Head(10)
	assert.Equal(t, 4, head.NumRows())
	empty := df.Take(nil)
	assert.Equal(t, 0, empty.NumRows())
	y, _ = empty.Column("y")
	assert.False(t, y.IsNumeric())
}

func TestConcat(t *testing.T) {
	df := newTestFrame(t)
	result, err := Concat(df.Head(1), df.Take([]int{3}), df.Take(nil))
	assert.NoError(t, err)
	assert.Equal(t, 2, result.NumRows())
	x, _ := result.Column("x")
	assert.Equal(t, []float64{1, 4}, x.Floats)

	dropped, _ := df.Drop("y")
	_, err = Concat(df, dropped)
	assert.Error(t, err)
	_, err = Concat()
	assert.Error(t, err)
}
