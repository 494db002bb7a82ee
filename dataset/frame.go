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
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Series is a named column. Numeric series store float64 values with NaN as
// missing, other series store strings with "" as missing.
type Series struct {
	Name    string
	Floats  []float64
	Strings []string
}

func NewFloatSeries(name string, values []float64) *Series {
	return &Series{Name: name, Floats: values}
}

func NewStringSeries(name string, values []string) *Series {
	if values == nil {
		values = []string{}
	}
	return &Series{Name: name, Strings: values}
}

func (s *Series) IsNumeric() bool {
	return s.Strings == nil
}

func (s *Series) Len() int {
	if s.IsNumeric() {
		return len(s.Floats)
	}
	return len(s.Strings)
}

// IsNull reports whether the i-th value is missing.
func (s *Series) IsNull(i int) bool {
	if s.IsNumeric() {
		return math.IsNaN(s.Floats[i])
	}
	return s.Strings[i] == ""
}

// Text returns the i-th value as a string. Missing values are empty.
func (s *Series) Text(i int) string {
	if s.IsNumeric() {
		if math.IsNaN(s.Floats[i]) {
			return ""
		}
		return strconv.FormatFloat(s.Floats[i], 'g', -1, 64)
	}
	return s.Strings[i]
}

// Texts returns all values as strings.
func (s *Series) Texts() []string {
	if !s.IsNumeric() {
		return s.Strings
	}
	return lo.Times(len(s.Floats), s.Text)
}

func (s *Series) Take(rows []int) *Series {
	if s.IsNumeric() {
		return NewFloatSeries(s.Name, lo.Map(rows, func(i, _ int) float64 { return s.Floats[i] }))
	}
	return NewStringSeries(s.Name, lo.Map(rows, func(i, _ int) string { return s.Strings[i] }))
}

func (s *Series) Rename(name string) *Series {
	return &Series{Name: name, Floats: s.Floats, Strings: s.Strings}
}

// DataFrame is an ordered collection of equally long series.
type DataFrame struct {
	columns []*Series
	index   map[string]int
	numRows int
}

func NewDataFrame(columns ...*Series) (*DataFrame, error) {
	df := &DataFrame{
		columns: columns,
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if _, exist := df.index[col.Name]; exist {
			return nil, errors.AlreadyExistsf("column %q", col.Name)
		}
		if i == 0 {
			df.numRows = col.Len()
		} else if col.Len() != df.numRows {
			return nil, errors.NotValidf("column %q has %d rows, expected %d rows", col.Name, col.Len(), df.numRows)
		}
		df.index[col.Name] = i
	}
	return df, nil
}

func (df *DataFrame) NumRows() int {
	return df.numRows
}

func (df *DataFrame) NumCols() int {
	return len(df.columns)
}

func (df *DataFrame) Columns() []string {
	return lo.Map(df.columns, func(s *Series, _ int) string { return s.Name })
}

func (df *DataFrame) HasColumn(name string) bool {
	_, ok := df.index[name]
	return ok
}

func (df *DataFrame) Column(name string) (*Series, error) {
	i, ok := df.index[name]
	if !ok {
		return nil, errors.NotFoundf("column %q", name)
	}
	return df.columns[i], nil
}

// Drop returns a frame without the named columns.
func (df *DataFrame) Drop(names ...string) (*DataFrame, error) {
	drop := mapset.NewSet(names...)
	for name := range drop.Iter() {
		if !df.HasColumn(name) {
			return nil, errors.NotFoundf("column %q", name)
		}
	}
	return NewDataFrame(lo.Filter(df.columns, func(s *Series, _ int) bool {
		return !drop.Contains(s.Name)
	})...)
}

// WithColumn returns a frame with the series appended or replaced.
func (df *DataFrame) WithColumn(s *Series) (*DataFrame, error) {
	columns := make([]*Series, 0, len(df.columns)+1)
	replaced := false
	for _, col := range df.columns {
		if col.Name == s.Name {
			columns = append(columns, s)
			replaced = true
		} else {
			columns = append(columns, col)
		}
	}
	if !replaced {
		columns = append(columns, s)
	}
	return NewDataFrame(columns...)
}

// Take returns the rows at the given positions.
func (df *DataFrame) Take(rows []int) *DataFrame {
	columns := lo.Map(df.columns, func(s *Series, _ int) *Series { return s.Take(rows) })
	return &DataFrame{columns: columns, index: df.index, numRows: len(rows)}
}

func (df *DataFrame) Head(n int) *DataFrame {
	return df.Take(lo.Range(min(n, df.numRows)))
}

// Concat stacks frames with identical columns vertically.
func Concat(frames ...*DataFrame) (*DataFrame, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames to concatenate")
	}
	names := frames[0].Columns()
	columns := make([]*Series, len(names))
	for j, name := range names {
		first := frames[0].columns[j]
		col := &Series{Name: name}
		if first.IsNumeric() {
			col.Floats = []float64{}
		} else {
			col.Strings = []string{}
		}
		for _, frame := range frames {
			s, err := frame.Column(name)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if frame.NumCols() != len(names) {
				return nil, errors.NotValidf("frames with different columns")
			}
			if s.IsNumeric() != first.IsNumeric() {
				return nil, errors.NotValidf("column %q with mixed types", name)
			}
			if s.IsNumeric() {
				col.Floats = append(col.Floats, s.Floats...)
			} else {
				col.Strings = append(col.Strings, s.Strings...)
			}
		}
		columns[j] = col
	}
	return NewDataFrame(columns...)
}
