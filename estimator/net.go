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
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/frame/common/log"
	"github.com/gorse-io/frame/common/monitor"
	"github.com/gorse-io/frame/common/nn"
	"github.com/gorse-io/frame/common/parallel"
	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const DefaultTargetCol = "target"

// NeuralNet trains a module on tabular data through a fit/predict interface.
// Inputs are either datasets or frames of features along with label series.
type NeuralNet struct {
	module       model.Module
	criterion    Criterion
	config       Config
	output       io.Writer
	textEmbedder *dataset.TextEmbedderConfig
	threshold    float32
	targetCol    string

	// fitted state
	targetStats   *dataset.ColumnStats
	targetNumeric bool
	history       History
	fitted        bool
}

func NewNeuralNet(module model.Module, criterion Criterion, opts ...Option) (*NeuralNet, error) {
	if module == nil {
		return nil, errors.NotValidf("nil module")
	}
	if criterion == nil {
		return nil, errors.NotValidf("nil criterion")
	}
	n := &NeuralNet{
		module:    module,
		criterion: criterion,
		config:    DefaultConfig(),
		output:    os.Stdout,
		threshold: 0.5,
		targetCol: DefaultTargetCol,
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if n.threshold <= 0 || n.threshold >= 1 {
		return nil, errors.NotValidf("threshold %v", n.threshold)
	}
	return n, nil
}

func (n *NeuralNet) Module() model.Module {
	return n.module
}

func (n *NeuralNet) Criterion() Criterion {
	return n.criterion
}

func (n *NeuralNet) Config() Config {
	return n.config
}

func (n *NeuralNet) History() History {
	return n.history
}

func (n *NeuralNet) IsFitted() bool {
	return n.fitted
}

// Fit trains the module. A dataset with a split column is trained on its train
// partition and validated on its val partition. Otherwise a random fraction of
// rows is held out for validation. Weights are kept across calls.
func (n *NeuralNet) Fit(ctx context.Context, X any, y *dataset.Series) error {
	ctx, span := monitor.Start(ctx, "NeuralNet.Fit", n.config.MaxEpochs)
	defer span.End()
	if err := n.fit(ctx, X, y, span); err != nil {
		span.Fail(err)
		return err
	}
	return nil
}

func (n *NeuralNet) fit(ctx context.Context, X any, y *dataset.Series, span *monitor.Span) error {
	start := time.Now()
	ds, err := n.toDataset(ctx, X, y)
	if err != nil {
		return errors.Trace(err)
	}
	if err = n.setTarget(ds); err != nil {
		return errors.Trace(err)
	}
	train, valid, err := n.trainValidSplit(ds)
	if err != nil {
		return errors.Trace(err)
	}
	if train.NumRows() == 0 {
		return errors.NotValidf("empty training set")
	}
	validSize := 0
	if valid != nil {
		validSize = valid.NumRows()
	}
	log.Logger().Info("fit neural net",
		zap.String("module", n.module.Kind()),
		zap.String("criterion", n.criterion.Name()),
		zap.Int("train_set_size", train.NumRows()),
		zap.Int("valid_set_size", validSize),
		zap.Any("params", n.module.GetParams()),
		zap.Any("config", n.config))

	optimizer, err := nn.NewOptimizer(n.config.Optimizer, n.module.Parameters(), n.config.Lr)
	if err != nil {
		return errors.Trace(err)
	}
	optimizer.SetWeightDecay(n.config.WeightDecay)
	rng := rand.New(rand.NewSource(n.config.Seed))
	defer n.module.SetTraining(false)

	n.history = nil
	n.fitted = false
	best, bestEpoch := math.Inf(1), 0
	for epoch := 1; epoch <= n.config.MaxEpochs; epoch++ {
		if err = ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		record, err := n.runEpoch(train.TensorFrame(), valid, optimizer, rng)
		if err != nil {
			return errors.Annotatef(err, "epoch %d", epoch)
		}
		record.Epoch = epoch
		if score := record.Score(); score < best {
			best, bestEpoch = score, epoch
			record.Best = true
		}
		n.history = append(n.history, record)
		FitEpochsTotal.WithLabelValues(n.criterion.Name()).Inc()
		TrainLoss.WithLabelValues(n.criterion.Name()).Set(record.TrainLoss)
		if !math.IsNaN(record.ValidLoss) {
			ValidLoss.WithLabelValues(n.criterion.Name()).Set(record.ValidLoss)
		}
		if n.config.Verbose > 0 {
			log.Logger().Info(fmt.Sprintf("fit %s %v/%v", n.module.Kind(), epoch, n.config.MaxEpochs), record.ZapFields()...)
		}
		span.Add(1)

		if n.config.Patience > 0 && epoch-bestEpoch >= n.config.Patience {
			log.Logger().Info("early stopping",
				zap.Int("best_epoch", bestEpoch),
				zap.Float64("best_loss", best),
				zap.Int("patience", n.config.Patience))
			break
		}
	}
	n.fitted = true
	FitSeconds.WithLabelValues(n.criterion.Name()).Observe(time.Since(start).Seconds())
	if n.config.Verbose > 0 {
		if err = n.history.Render(n.output); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// setTarget checks the target of the training data against the criterion and
// the module, and keeps the classes for decoding predictions.
func (n *NeuralNet) setTarget(ds *dataset.Dataset) error {
	targetCol := ds.TargetCol()
	if targetCol == "" {
		return errors.NotValidf("training data without target")
	}
	stats := ds.ColStats()[targetCol]
	task := n.criterion.Task()
	outChannels := n.module.OutChannels()
	switch task {
	case dataset.Regression:
		if stats.Stype != dataset.Numerical {
			return errors.NotValidf("%s target %q for criterion %s", stats.Stype, targetCol, n.criterion.Name())
		}
		if outChannels != 1 {
			return errors.NotValidf("%d output channels for regression", outChannels)
		}
	case dataset.MulticlassClassification:
		if stats.Stype != dataset.Categorical {
			return errors.NotValidf("%s target %q for criterion %s", stats.Stype, targetCol, n.criterion.Name())
		}
		if len(stats.Categories) < 2 {
			return errors.NotValidf("%d classes", len(stats.Categories))
		}
		if outChannels != len(stats.Categories) {
			return errors.NotValidf("%d output channels for %d classes", outChannels, len(stats.Categories))
		}
	case dataset.BinaryClassification:
		if stats.Stype != dataset.Categorical {
			return errors.NotValidf("%s target %q for criterion %s", stats.Stype, targetCol, n.criterion.Name())
		}
		if len(stats.Categories) != 2 {
			return errors.NotValidf("%d classes for binary classification", len(stats.Categories))
		}
		if outChannels != 1 {
			return errors.NotValidf("%d output channels for binary classification", outChannels)
		}
	default:
		return errors.NotSupportedf("task %q", task)
	}
	series, err := ds.DF().Column(targetCol)
	if err != nil {
		return errors.Trace(err)
	}
	n.targetCol = targetCol
	n.targetNumeric = series.IsNumeric()
	n.targetStats = nil
	if task.IsClassification() {
		n.targetStats = &stats
	}
	return nil
}

func (n *NeuralNet) trainValidSplit(ds *dataset.Dataset) (train, valid *dataset.Dataset, err error) {
	if ds.SplitCol() != "" {
		train, valid, _, err = ds.Split()
		return train, valid, errors.Trace(err)
	}
	numRows := ds.NumRows()
	if n.config.ValidSplit <= 0 || numRows < 2 {
		return ds, nil, nil
	}
	numValid := max(int(float64(numRows)*n.config.ValidSplit), 1)
	perm := rand.New(rand.NewSource(n.config.Seed)).Perm(numRows)
	validRows, trainRows := perm[:numValid], perm[numValid:]
	slices.Sort(validRows)
	slices.Sort(trainRows)
	if train, err = ds.Index(trainRows); err != nil {
		return nil, nil, errors.Trace(err)
	}
	if valid, err = ds.Index(validRows); err != nil {
		return nil, nil, errors.Trace(err)
	}
	return train, valid, nil
}

func (n *NeuralNet) runEpoch(tf *dataset.TensorFrame, valid *dataset.Dataset, optimizer nn.Optimizer, rng *rand.Rand) (Epoch, error) {
	start := time.Now()
	n.module.SetTraining(true)
	rows := lo.Range(tf.NumRows)
	if n.config.Shuffle {
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	}
	var trainLoss float64
	for _, batch := range parallel.Chunk(rows, n.config.BatchSize) {
		batchFrame, err := tf.Index(batch)
		if err != nil {
			return Epoch{}, errors.Trace(err)
		}
		out, err := n.module.Forward(batchFrame)
		if err != nil {
			return Epoch{}, errors.Trace(err)
		}
		loss, err := n.criterion.Loss(out, nn.NewTensor(batchFrame.Y, len(batch)))
		if err != nil {
			return Epoch{}, errors.Trace(err)
		}
		value := loss.Data()[0]
		if math32.IsNaN(value) || math32.IsInf(value, 0) {
			return Epoch{}, errors.Errorf("loss diverged to %v", value)
		}
		optimizer.ZeroGrad()
		loss.Backward()
		optimizer.Step()
		trainLoss += float64(value) * float64(len(batch))
	}
	record := Epoch{
		TrainLoss: trainLoss / float64(tf.NumRows),
		ValidLoss: math.NaN(),
		ValidAcc:  math.NaN(),
	}
	if valid != nil && valid.NumRows() > 0 {
		var err error
		record.ValidLoss, record.ValidAcc, err = n.evaluate(valid.TensorFrame())
		if err != nil {
			return Epoch{}, errors.Trace(err)
		}
	}
	record.Duration = time.Since(start)
	return record, nil
}

// evaluate returns the loss and the accuracy of a labeled frame in eval mode.
func (n *NeuralNet) evaluate(tf *dataset.TensorFrame) (loss, accuracy float64, err error) {
	n.module.SetTraining(false)
	defer n.module.SetTraining(true)
	out, width, err := n.forward(tf)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	outTensor := nn.NewTensor(out, tf.NumRows, width)
	lossTensor, err := n.criterion.Loss(outTensor, nn.NewTensor(tf.Y, tf.NumRows))
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	loss = float64(lossTensor.Data()[0])
	if !n.criterion.Task().IsClassification() {
		return loss, math.NaN(), nil
	}
	correct := 0
	for i := 0; i < tf.NumRows; i++ {
		if n.classOf(out[i*width:(i+1)*width]) == int(tf.Y[i]) {
			correct++
		}
	}
	return loss, float64(correct) / float64(tf.NumRows), nil
}

// forward runs the module over a frame in batches and returns the row-major outputs.
func (n *NeuralNet) forward(tf *dataset.TensorFrame) ([]float32, int, error) {
	var (
		result []float32
		width  int
	)
	for _, batch := range parallel.Chunk(lo.Range(tf.NumRows), n.config.BatchSize) {
		batchFrame, err := tf.Index(batch)
		if err != nil {
			return nil, 0, errors.Trace(err)
		}
		out, err := n.module.Forward(batchFrame)
		if err != nil {
			return nil, 0, errors.Trace(err)
		}
		shape := out.Shape()
		if len(shape) != 2 || shape[0] != len(batch) {
			return nil, 0, errors.NotValidf("output shape %v for %d rows", shape, len(batch))
		}
		width = shape[1]
		result = append(result, out.Data()...)
	}
	return result, width, nil
}

// classOf returns the class index of one row of outputs.
func (n *NeuralNet) classOf(row []float32) int {
	if n.criterion.Task() == dataset.BinaryClassification {
		if sigmoid(row[0]) > n.threshold {
			return 1
		}
		return 0
	}
	return argmax(row)
}

// PredictProba returns one row of outputs per input row. Classifiers return
// class probabilities, with two columns for binary classification. Otherwise
// the raw outputs are returned.
func (n *NeuralNet) PredictProba(ctx context.Context, X any) ([][]float32, error) {
	out, width, numRows, err := n.predict(ctx, X)
	if err != nil {
		return nil, errors.Trace(err)
	}
	proba := make([][]float32, numRows)
	for i := range proba {
		row := slices.Clone(out[i*width : (i+1)*width])
		switch n.criterion.Task() {
		case dataset.MulticlassClassification:
			proba[i] = softmax(row)
		case dataset.BinaryClassification:
			p := sigmoid(row[0])
			proba[i] = []float32{1 - p, p}
		default:
			proba[i] = row
		}
	}
	return proba, nil
}

// Predict returns a series of predictions named after the target. Classifiers
// predict the original labels and regressors predict values.
func (n *NeuralNet) Predict(ctx context.Context, X any) (*dataset.Series, error) {
	out, width, numRows, err := n.predict(ctx, X)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !n.criterion.Task().IsClassification() {
		values := make([]float64, numRows)
		for i := range values {
			values[i] = float64(out[i*width])
		}
		return dataset.NewFloatSeries(n.targetCol, values), nil
	}
	labels := make([]string, numRows)
	for i := range labels {
		labels[i] = n.targetStats.Categories[n.classOf(out[i*width:(i+1)*width])]
	}
	if !n.targetNumeric {
		return dataset.NewStringSeries(n.targetCol, labels), nil
	}
	values := make([]float64, numRows)
	for i, label := range labels {
		if values[i], err = strconv.ParseFloat(label, 64); err != nil {
			return nil, errors.Annotatef(err, "parse label %q", label)
		}
	}
	return dataset.NewFloatSeries(n.targetCol, values), nil
}

func (n *NeuralNet) predict(ctx context.Context, X any) ([]float32, int, int, error) {
	if !n.fitted {
		return nil, 0, 0, errors.NotValidf("neural net is not fitted")
	}
	ctx, span := monitor.Start(ctx, "NeuralNet.Predict", 1)
	defer span.End()
	ds, err := n.toDataset(ctx, X, nil)
	if err != nil {
		span.Fail(err)
		return nil, 0, 0, errors.Trace(err)
	}
	if ds.NumRows() == 0 {
		return nil, 0, 0, nil
	}
	n.module.SetTraining(false)
	out, width, err := n.forward(ds.TensorFrame())
	if err != nil {
		span.Fail(err)
		return nil, 0, 0, errors.Trace(err)
	}
	PredictRowsTotal.Add(float64(ds.NumRows()))
	return out, width, ds.NumRows(), nil
}

func argmax(row []float32) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func softmax(row []float32) []float32 {
	maxValue := lo.Max(row)
	var sum float32
	for i, v := range row {
		row[i] = math32.Exp(v - maxValue)
		sum += row[i]
	}
	for i := range row {
		row[i] /= sum
	}
	return row
}
