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

package compat

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/gorse-io/frame/common/log"
	"github.com/gorse-io/frame/common/monitor"
	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/dataset/text"
	"github.com/gorse-io/frame/estimator"
	"github.com/gorse-io/frame/model"
	"github.com/gorse-io/frame/storage/meta"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Case is one combination of the compatibility matrix.
type Case struct {
	Model    string
	Stypes   []dataset.Stype
	TaskType dataset.TaskType
	// PassDataset feeds the structured dataset instead of feature frames and label series.
	PassDataset bool
}

func (c Case) Name() string {
	stypes := lo.Map(c.Stypes, func(s dataset.Stype, _ int) string { return string(s) })
	input := "frame"
	if c.PassDataset {
		input = "dataset"
	}
	return fmt.Sprintf("%s/%s/%s/%s", c.Model, strings.Join(stypes, "+"), c.TaskType, input)
}

// Criterion returns the loss of the task of the case.
func (c Case) Criterion() (estimator.Criterion, error) {
	return estimator.CriterionForTask(c.TaskType)
}

var (
	modelKinds = []string{model.KindMLP}
	stypeSets  = [][]dataset.Stype{
		{dataset.Numerical},
		{dataset.Categorical},
	}
	tasks = []dataset.TaskType{dataset.Regression, dataset.MulticlassClassification}

	fullStypeSets = [][]dataset.Stype{
		{dataset.Numerical},
		{dataset.Categorical},
		{dataset.TextEmbedded},
		{dataset.Numerical, dataset.Numerical, dataset.TextEmbedded},
	}
	fullTasks = []dataset.TaskType{dataset.Regression, dataset.MulticlassClassification, dataset.BinaryClassification}
)

// DefaultMatrix returns the combinations enabled by default.
func DefaultMatrix() []Case {
	return matrix(modelKinds, stypeSets, tasks, []bool{false})
}

// FullMatrix includes text columns, binary classification and dataset inputs.
func FullMatrix() []Case {
	return matrix(modelKinds, fullStypeSets, fullTasks, []bool{false, true})
}

func matrix(kinds []string, stypes [][]dataset.Stype, tasks []dataset.TaskType, passDataset []bool) []Case {
	var cases []Case
	for _, kind := range kinds {
		for _, s := range stypes {
			for _, task := range tasks {
				for _, pass := range passDataset {
					cases = append(cases, Case{Model: kind, Stypes: s, TaskType: task, PassDataset: pass})
				}
			}
		}
	}
	return cases
}

// Options configures the synthetic dataset, the backbone and the training of a run.
type Options struct {
	NumRows       int
	Channels      int
	NumLayers     int
	Normalization string
	Train         estimator.Config
	// TextEmbedder defaults to a hash embedder of dimension 8.
	TextEmbedder *dataset.TextEmbedderConfig
	Seed         int64
	// Output receives the training history.
	Output io.Writer
}

func DefaultOptions() Options {
	train := estimator.DefaultConfig()
	train.MaxEpochs = 2
	train.BatchSize = 3
	train.Verbose = 1
	return Options{
		NumRows:       30,
		Channels:      8,
		NumLayers:     3,
		Normalization: model.LayerNorm,
		Train:         train,
	}
}

// Result holds the outcome of a successful run.
type Result struct {
	Case         Case
	NumTrainRows int
	NumTestRows  int
	NumClasses   int
	OutChannels  int
	Predictions  *dataset.Series
	History      estimator.History
	Net          *estimator.NeuralNet
	Duration     time.Duration
}

// Score summarizes the result for the run history. Missing validation losses are stored as zero.
func (r Result) Score() meta.Score {
	score := meta.Score{
		NumTrainRows: r.NumTrainRows,
		NumTestRows:  r.NumTestRows,
		Epochs:       len(r.History),
	}
	if r.Predictions != nil {
		score.NumPredictions = r.Predictions.Len()
	}
	if len(r.History) > 0 {
		last := r.History[len(r.History)-1]
		score.TrainLoss = zeroIfNaN(last.TrainLoss)
		score.ValidLoss = zeroIfNaN(last.ValidLoss)
	}
	return score
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Fixture holds the materialized fake dataset of a case and its partitions.
type Fixture struct {
	Case         Case
	Dataset      *dataset.Dataset
	Train        *dataset.Dataset
	Val          *dataset.Dataset
	Test         *dataset.Dataset
	TextEmbedder dataset.TextEmbedderConfig
}

// NewFixture generates, materializes and splits the fake dataset of a case.
func NewFixture(ctx context.Context, c Case, opts Options) (*Fixture, error) {
	f := &Fixture{Case: c}
	if opts.TextEmbedder != nil {
		f.TextEmbedder = *opts.TextEmbedder
	} else {
		hash, err := text.NewHashTextEmbedder(8)
		if err != nil {
			return nil, errors.Trace(err)
		}
		f.TextEmbedder = dataset.TextEmbedderConfig{Embedder: hash}
	}
	ds, err := dataset.FakeDataset(dataset.FakeOptions{
		NumRows:      opts.NumRows,
		Stypes:       c.Stypes,
		CreateSplit:  true,
		TaskType:     c.TaskType,
		TextEmbedder: &f.TextEmbedder,
		Seed:         opts.Seed,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = ds.Materialize(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	f.Dataset = ds
	if f.Train, f.Val, f.Test, err = ds.Split(); err != nil {
		return nil, errors.Trace(err)
	}
	return f, nil
}

// NumClasses returns the number of target classes, or zero for regression.
func (f *Fixture) NumClasses() (int, error) {
	switch f.Case.TaskType {
	case dataset.MulticlassClassification:
		n, err := f.Dataset.NumClasses()
		return n, errors.Trace(err)
	case dataset.BinaryClassification:
		return 2, nil
	default:
		return 0, nil
	}
}

// Params returns the backbone hyper-parameters. Multiclass models output one
// logit per class and all other models a single value.
func (f *Fixture) Params(opts Options) (model.Params, error) {
	outChannels := 1
	if f.Case.TaskType == dataset.MulticlassClassification {
		numClasses, err := f.NumClasses()
		if err != nil {
			return nil, errors.Trace(err)
		}
		outChannels = numClasses
	}
	return model.Params{
		model.Channels:      opts.Channels,
		model.OutChannels:   outChannels,
		model.NumLayers:     opts.NumLayers,
		model.Normalization: opts.Normalization,
		model.RandomState:   opts.Seed,
	}, nil
}

// NewModule creates the backbone of the case from the dataset statistics.
func (f *Fixture) NewModule(params model.Params) (model.Module, error) {
	m, err := model.NewModule(f.Case.Model, params, f.Dataset.ColStats(), f.Dataset.ColNamesDict())
	return m, errors.Trace(err)
}

// Frames concatenates the train and val partitions and separates features from labels.
func (f *Fixture) Frames() (xTrain *dataset.DataFrame, yTrain *dataset.Series, xTest *dataset.DataFrame, err error) {
	ds := f.Dataset
	df, err := dataset.Concat(f.Train.DF(), f.Val.DF())
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	if xTrain, err = df.Drop(ds.TargetCol(), ds.SplitCol()); err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	if yTrain, err = df.Column(ds.TargetCol()); err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	if xTest, err = f.Test.DF().Drop(ds.TargetCol(), ds.SplitCol()); err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	return xTrain, yTrain, xTest, nil
}

// Run generates a fake dataset for the case, fits the model through the
// estimator adapter and predicts the test partition. Any failing step fails the run.
func Run(ctx context.Context, c Case, opts Options) (Result, error) {
	ctx, span := monitor.Start(ctx, c.Name(), 4)
	defer span.End()
	result, err := run(ctx, c, opts, span)
	if err != nil {
		span.Fail(err)
		log.Logger().Error("compatibility run failed", zap.String("case", c.Name()), zap.Error(err))
		return Result{}, errors.Annotate(err, c.Name())
	}
	log.Logger().Info("compatibility run succeeded",
		zap.String("case", c.Name()),
		zap.Int("predictions", result.Predictions.Len()),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func run(ctx context.Context, c Case, opts Options, span *monitor.Span) (Result, error) {
	start := time.Now()
	result := Result{Case: c}
	criterion, err := c.Criterion()
	if err != nil {
		return result, errors.Trace(err)
	}
	f, err := NewFixture(ctx, c, opts)
	if err != nil {
		return result, errors.Trace(err)
	}
	result.NumTrainRows = f.Train.NumRows() + f.Val.NumRows()
	result.NumTestRows = f.Test.NumRows()
	span.Add(1)

	// build the backbone
	if result.NumClasses, err = f.NumClasses(); err != nil {
		return result, errors.Trace(err)
	}
	params, err := f.Params(opts)
	if err != nil {
		return result, errors.Trace(err)
	}
	module, err := f.NewModule(params)
	if err != nil {
		return result, errors.Trace(err)
	}
	result.OutChannels = module.OutChannels()

	// select the wrapper
	netOpts := []estimator.Option{
		estimator.WithConfig(opts.Train),
		estimator.WithTextEmbedder(f.TextEmbedder),
	}
	if opts.Output != nil {
		netOpts = append(netOpts, estimator.WithOutput(opts.Output))
	}
	if c.TaskType == dataset.BinaryClassification {
		clf, err := estimator.NewNeuralNetBinaryClassifier(module, criterion, netOpts...)
		if err != nil {
			return result, errors.Trace(err)
		}
		result.Net = clf.NeuralNet
	} else {
		clf, err := estimator.NewNeuralNetClassifier(module, criterion, netOpts...)
		if err != nil {
			return result, errors.Trace(err)
		}
		result.Net = clf.NeuralNet
	}
	span.Add(1)

	// fit and predict
	if c.PassDataset {
		if err = result.Net.Fit(ctx, f.Dataset, nil); err != nil {
			return result, errors.Annotate(err, "fit")
		}
		span.Add(1)
		if result.Predictions, err = result.Net.Predict(ctx, f.Test); err != nil {
			return result, errors.Annotate(err, "predict")
		}
	} else {
		xTrain, yTrain, xTest, err := f.Frames()
		if err != nil {
			return result, errors.Trace(err)
		}
		if err = result.Net.Fit(ctx, xTrain, yTrain); err != nil {
			return result, errors.Annotate(err, "fit")
		}
		span.Add(1)
		if result.Predictions, err = result.Net.Predict(ctx, xTest); err != nil {
			return result, errors.Annotate(err, "predict")
		}
	}
	span.Add(1)
	if result.Predictions.Len() != result.NumTestRows {
		return result, errors.NotValidf("%d predictions for %d test rows", result.Predictions.Len(), result.NumTestRows)
	}
	result.History = result.Net.History()
	result.Duration = time.Since(start)
	return result, nil
}
