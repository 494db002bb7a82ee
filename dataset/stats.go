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
	"slices"
	"sort"

	"github.com/juju/errors"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/stat"
)

var quantileLevels = []float64{0, 0.25, 0.5, 0.75, 1}

// ColumnStats summarizes one column.
type ColumnStats struct {
	Stype   Stype
	Count   int
	NaCount int

	// numerical
	Mean      float64
	Std       float64
	Quantiles []float64

	// categorical, ordered by count descending then by value
	Categories []string
	Counts     []int

	// text_embedded
	EmbDim int
}

func (s ColumnStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("stype", string(s.Stype))
	enc.AddInt("count", s.Count)
	enc.AddInt("na_count", s.NaCount)
	switch s.Stype {
	case Numerical:
		enc.AddFloat64("mean", s.Mean)
		enc.AddFloat64("std", s.Std)
	case Categorical:
		enc.AddInt("num_categories", len(s.Categories))
	case TextEmbedded:
		enc.AddInt("emb_dim", s.EmbDim)
	}
	return nil
}

// SameEncoding reports whether both statistics encode values into the same
// tensor frame. Numerical values are stored raw so only the stype matters.
func (s ColumnStats) SameEncoding(o ColumnStats) bool {
	return s.Stype == o.Stype && slices.Equal(s.Categories, o.Categories) && s.EmbDim == o.EmbDim
}

// CategoryIndex maps each category to its position.
func (s ColumnStats) CategoryIndex() map[string]int {
	index := make(map[string]int, len(s.Categories))
	for i, c := range s.Categories {
		index[c] = i
	}
	return index
}

// ComputeNumericalStats ignores missing values. A column without values has
// zero mean and unit deviation.
func ComputeNumericalStats(values []float64) ColumnStats {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	stats := ColumnStats{
		Stype:   Numerical,
		Count:   len(values),
		NaCount: len(values) - len(present),
	}
	if len(present) == 0 {
		stats.Std = 1
		stats.Quantiles = make([]float64, len(quantileLevels))
		return stats
	}
	stats.Mean, stats.Std = stat.PopMeanStdDev(present, nil)
	sort.Float64s(present)
	stats.Quantiles = make([]float64, len(quantileLevels))
	for i, p := range quantileLevels {
		stats.Quantiles[i] = stat.Quantile(p, stat.Empirical, present, nil)
	}
	return stats
}

// ComputeCategoricalStats counts non-missing values.
func ComputeCategoricalStats(values []string) ColumnStats {
	dict := NewFreqDict()
	naCount := 0
	for _, v := range values {
		if v == "" {
			naCount++
			continue
		}
		dict.Id(v)
	}
	categories, counts := dict.Sorted()
	return ColumnStats{
		Stype:      Categorical,
		Count:      len(values),
		NaCount:    naCount,
		Categories: categories,
		Counts:     counts,
	}
}

func computeStats(s *Series, stype Stype, embDim int) (ColumnStats, error) {
	switch stype {
	case Numerical:
		if !s.IsNumeric() {
			return ColumnStats{}, errors.NotValidf("numerical column %q with string values", s.Name)
		}
		return ComputeNumericalStats(s.Floats), nil
	case Categorical:
		return ComputeCategoricalStats(s.Texts()), nil
	case TextEmbedded:
		if s.IsNumeric() {
			return ColumnStats{}, errors.NotValidf("text column %q with numeric values", s.Name)
		}
		naCount := 0
		for i := 0; i < s.Len(); i++ {
			if s.IsNull(i) {
				naCount++
			}
		}
		return ColumnStats{Stype: TextEmbedded, Count: s.Len(), NaCount: naCount, EmbDim: embDim}, nil
	default:
		return ColumnStats{}, errors.NotValidf("stype %q", stype)
	}
}

// sortByValue orders categories by value so that class ids follow labels.
func sortByValue(stats ColumnStats) ColumnStats {
	order := make([]int, len(stats.Categories))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lessValue(stats.Categories[order[a]], stats.Categories[order[b]])
	})
	categories := make([]string, len(order))
	counts := make([]int, len(order))
	for i, j := range order {
		categories[i] = stats.Categories[j]
		counts[i] = stats.Counts[j]
	}
	stats.Categories = categories
	stats.Counts = counts
	return stats
}
