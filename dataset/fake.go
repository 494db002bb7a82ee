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
	"fmt"
	"math"
	"math/rand"

	"github.com/jaswdr/faker"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	FakeTargetCol = "target"
	FakeSplitCol  = "split"

	fakeNumClasses = 3
)

// FakeOptions configures FakeDataset.
type FakeOptions struct {
	NumRows     int
	Stypes      []Stype
	WithNaN     bool
	CreateSplit bool
	TaskType    TaskType
	// TextEmbedder is required if Stypes contains TextEmbedded.
	TextEmbedder *TextEmbedderConfig
	Seed         int64
}

// FakeDataset generates a random dataset with three numerical columns, two
// categorical columns and two text columns depending on the requested stypes.
// With CreateSplit, row 1 is in the validation split, row 2 is in the test
// split and all other rows are in the training split.
func FakeDataset(opts FakeOptions) (*Dataset, error) {
	if opts.NumRows <= 0 {
		return nil, errors.NotValidf("number of rows %d", opts.NumRows)
	}
	if opts.CreateSplit && opts.NumRows < 3 {
		return nil, errors.NotValidf("split with %d rows", opts.NumRows)
	}
	if len(opts.Stypes) == 0 {
		return nil, errors.NotValidf("empty stypes")
	}
	taskType := opts.TaskType
	if taskType == "" {
		taskType = Regression
	}
	if _, err := ParseTaskType(string(taskType)); err != nil {
		return nil, errors.Trace(err)
	}
	if taskType == MulticlassClassification && opts.NumRows < fakeNumClasses {
		return nil, errors.NotValidf("%d classes with %d rows", fakeNumClasses, opts.NumRows)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	fake := faker.NewWithSeed(rand.NewSource(opts.Seed))
	n := opts.NumRows
	var columns []*Series
	colToStype := make(map[string]Stype)
	var datasetOpts []Option

	for _, stype := range lo.Uniq(opts.Stypes) {
		switch stype {
		case Numerical:
			for j := 0; j < 3; j++ {
				values := make([]float64, n)
				for i := range values {
					values[i] = rng.NormFloat64()
					if opts.WithNaN && rng.Float64() < 0.1 {
						values[i] = math.NaN()
					}
				}
				name := fmt.Sprintf("num_%d", j)
				columns = append(columns, NewFloatSeries(name, values))
				colToStype[name] = Numerical
			}
		case Categorical:
			for j, cardinality := range []int{3, 5} {
				values := make([]string, n)
				for i := range values {
					values[i] = fmt.Sprintf("c%d", rng.Intn(cardinality))
					if opts.WithNaN && rng.Float64() < 0.1 {
						values[i] = ""
					}
				}
				name := fmt.Sprintf("cat_%d", j)
				columns = append(columns, NewStringSeries(name, values))
				colToStype[name] = Categorical
			}
		case TextEmbedded:
			if opts.TextEmbedder == nil {
				return nil, errors.NotValidf("text columns without a text embedder")
			}
			for j := 0; j < 2; j++ {
				values := make([]string, n)
				for i := range values {
					values[i] = fake.Lorem().Sentence(5 + rng.Intn(5))
					if opts.WithNaN && rng.Float64() < 0.1 {
						values[i] = ""
					}
				}
				name := fmt.Sprintf("text_%d", j)
				columns = append(columns, NewStringSeries(name, values))
				colToStype[name] = TextEmbedded
			}
			datasetOpts = append(datasetOpts, WithTextEmbedder(*opts.TextEmbedder))
		default:
			return nil, errors.NotValidf("stype %q", stype)
		}
	}

	// target
	switch taskType {
	case Regression:
		values := make([]float64, n)
		for i := range values {
			values[i] = rng.NormFloat64()
		}
		columns = append(columns, NewFloatSeries(FakeTargetCol, values))
		colToStype[FakeTargetCol] = Numerical
	case BinaryClassification, MulticlassClassification:
		numClasses := 2
		if taskType == MulticlassClassification {
			numClasses = fakeNumClasses
		}
		// The first rows cover every class.
		values := make([]float64, n)
		for i := range values {
			if i < numClasses {
				values[i] = float64(i)
			} else {
				values[i] = float64(rng.Intn(numClasses))
			}
		}
		rng.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })
		columns = append(columns, NewFloatSeries(FakeTargetCol, values))
		colToStype[FakeTargetCol] = Categorical
	}
	datasetOpts = append(datasetOpts, WithTargetCol(FakeTargetCol))

	if opts.CreateSplit {
		split := lo.Times(n, func(i int) string {
			switch i {
			case 1:
				return SplitVal
			case 2:
				return SplitTest
			default:
				return SplitTrain
			}
		})
		columns = append(columns, NewStringSeries(FakeSplitCol, split))
		datasetOpts = append(datasetOpts, WithSplitCol(FakeSplitCol))
	}

	df, err := NewDataFrame(columns...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewDataset(df, colToStype, datasetOpts...)
}
