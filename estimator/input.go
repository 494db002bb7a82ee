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
	"context"
	"slices"

	"github.com/gorse-io/frame/dataset"
	"github.com/juju/errors"
)

// toDataset converts an input into a materialized dataset encoded with the
// statistics of the module. X is a *dataset.Dataset or a *dataset.DataFrame
// of features, in which case y holds the labels or is nil.
func (n *NeuralNet) toDataset(ctx context.Context, X any, y *dataset.Series) (*dataset.Dataset, error) {
	var (
		ds  *dataset.Dataset
		err error
	)
	switch x := X.(type) {
	case *dataset.Dataset:
		if y != nil {
			return nil, errors.NotSupportedf("labels along with a dataset input")
		}
		ds = x
	case *dataset.DataFrame:
		if ds, err = n.frameToDataset(x, y); err != nil {
			return nil, errors.Trace(err)
		}
	default:
		return nil, errors.NotSupportedf("input of type %T", X)
	}
	// a dataset materialized on its own may have other category codes
	if ds, err = ds.Encode(ctx, n.module.ColStats()); err != nil {
		return nil, errors.Trace(err)
	}
	for _, stype := range dataset.Stypes {
		expected := n.module.ColNamesDict()[stype]
		if actual := ds.ColNamesDict()[stype]; !slices.Equal(expected, actual) {
			return nil, errors.NotValidf("%s columns %v, expected %v", stype, actual, expected)
		}
	}
	return ds, nil
}

// frameToDataset selects the feature columns of the module in its order and
// appends the labels as the target.
func (n *NeuralNet) frameToDataset(df *dataset.DataFrame, y *dataset.Series) (*dataset.Dataset, error) {
	var (
		columns    []*dataset.Series
		colToStype = make(map[string]dataset.Stype)
		opts       []dataset.Option
	)
	for _, stype := range dataset.Stypes {
		for _, col := range n.module.ColNamesDict()[stype] {
			series, err := df.Column(col)
			if err != nil {
				return nil, errors.Annotatef(err, "feature column")
			}
			columns = append(columns, series)
			colToStype[col] = stype
		}
	}
	if y != nil {
		if y.Len() != df.NumRows() {
			return nil, errors.NotValidf("%d labels for %d rows", y.Len(), df.NumRows())
		}
		name := y.Name
		if name == "" {
			name = n.targetCol
		}
		if _, exist := colToStype[name]; exist {
			return nil, errors.AlreadyExistsf("feature column named as labels %q", name)
		}
		columns = append(columns, y.Rename(name))
		colToStype[name] = n.targetStype()
		opts = append(opts, dataset.WithTargetCol(name))
	}
	if n.textEmbedder != nil {
		opts = append(opts, dataset.WithTextEmbedder(*n.textEmbedder))
	}
	frame, err := dataset.NewDataFrame(columns...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return dataset.NewDataset(frame, colToStype, opts...)
}

func (n *NeuralNet) targetStype() dataset.Stype {
	if n.criterion.Task() == dataset.Regression {
		return dataset.Numerical
	}
	return dataset.Categorical
}
