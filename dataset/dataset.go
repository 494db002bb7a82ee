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
	"context"
	"math"
	"time"

	"github.com/gorse-io/frame/common/log"
	"github.com/gorse-io/frame/common/parallel"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Split column values.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// Dataset is a table with semantic column types, an optional target column
// and an optional split column. It must be materialized before training.
type Dataset struct {
	df            *DataFrame
	colToStype    map[string]Stype
	targetCol     string
	splitCol      string
	textEmbedders map[string]TextEmbedderConfig
	defaultText   *TextEmbedderConfig
	numWorkers    int

	colNamesDict map[Stype][]string
	colStats     map[string]ColumnStats
	tensorFrame  *TensorFrame
}

type Option func(*Dataset)

func WithTargetCol(col string) Option {
	return func(d *Dataset) {
		d.targetCol = col
	}
}

func WithSplitCol(col string) Option {
	return func(d *Dataset) {
		d.splitCol = col
	}
}

// WithTextEmbedder configures the embedder of the given text columns, or of
// every text column if none are given.
func WithTextEmbedder(cfg TextEmbedderConfig, cols ...string) Option {
	return func(d *Dataset) {
		if len(cols) == 0 {
			d.defaultText = &cfg
			return
		}
		for _, col := range cols {
			d.textEmbedders[col] = cfg
		}
	}
}

// WithNumWorkers sets the number of concurrent embedding requests.
func WithNumWorkers(n int) Option {
	return func(d *Dataset) {
		d.numWorkers = n
	}
}

func NewDataset(df *DataFrame, colToStype map[string]Stype, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		df:            df,
		colToStype:    colToStype,
		textEmbedders: make(map[string]TextEmbedderConfig),
		numWorkers:    1,
	}
	for _, opt := range opts {
		opt(d)
	}
	for col, stype := range colToStype {
		if !df.HasColumn(col) {
			return nil, errors.NotFoundf("column %q", col)
		}
		if _, err := ParseStype(string(stype)); err != nil {
			return nil, errors.Annotatef(err, "column %q", col)
		}
	}
	if d.targetCol != "" {
		stype, ok := colToStype[d.targetCol]
		if !ok {
			return nil, errors.NotFoundf("target column %q", d.targetCol)
		}
		if stype == TextEmbedded {
			return nil, errors.NotValidf("target column %q of stype %s", d.targetCol, stype)
		}
	}
	if d.splitCol != "" {
		if !df.HasColumn(d.splitCol) {
			return nil, errors.NotFoundf("split column %q", d.splitCol)
		}
		if _, ok := colToStype[d.splitCol]; ok {
			return nil, errors.NotValidf("split column %q with a stype", d.splitCol)
		}
	}
	d.colNamesDict = make(map[Stype][]string)
	for _, col := range df.Columns() {
		stype, ok := colToStype[col]
		if !ok || col == d.targetCol {
			continue
		}
		d.colNamesDict[stype] = append(d.colNamesDict[stype], col)
	}
	return d, nil
}

func (d *Dataset) DF() *DataFrame {
	return d.df
}

func (d *Dataset) NumRows() int {
	return d.df.NumRows()
}

func (d *Dataset) TargetCol() string {
	return d.targetCol
}

func (d *Dataset) SplitCol() string {
	return d.splitCol
}

func (d *Dataset) ColToStype() map[string]Stype {
	return d.colToStype
}

// ColNamesDict groups feature columns by stype in frame order.
func (d *Dataset) ColNamesDict() map[Stype][]string {
	return d.colNamesDict
}

func (d *Dataset) IsMaterialized() bool {
	return d.tensorFrame != nil
}

// ColStats returns nil before materialization.
func (d *Dataset) ColStats() map[string]ColumnStats {
	return d.colStats
}

// TensorFrame returns nil before materialization.
func (d *Dataset) TensorFrame() *TensorFrame {
	return d.tensorFrame
}

type materializeOptions struct {
	colStats map[string]ColumnStats
}

type MaterializeOption func(*materializeOptions)

// WithColStats reuses statistics instead of computing them. Columns without
// supplied statistics are still computed.
func WithColStats(stats map[string]ColumnStats) MaterializeOption {
	return func(o *materializeOptions) {
		o.colStats = stats
	}
}

// Materialize computes column statistics and converts the frame into a tensor frame.
func (d *Dataset) Materialize(ctx context.Context, opts ...MaterializeOption) error {
	if d.IsMaterialized() {
		return nil
	}
	var o materializeOptions
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()
	colStats := make(map[string]ColumnStats, len(d.colToStype))
	for _, col := range d.df.Columns() {
		stype, ok := d.colToStype[col]
		if !ok {
			continue
		}
		if stats, ok := o.colStats[col]; ok {
			if stats.Stype != stype {
				return errors.NotValidf("statistics of column %q with stype %s, expected %s", col, stats.Stype, stype)
			}
			colStats[col] = stats
			continue
		}
		series, _ := d.df.Column(col)
		embDim := 0
		if stype == TextEmbedded {
			cfg, err := d.textEmbedder(col)
			if err != nil {
				return errors.Trace(err)
			}
			embDim = cfg.Embedder.Dim()
		}
		stats, err := computeStats(series, stype, embDim)
		if err != nil {
			return errors.Trace(err)
		}
		if col == d.targetCol && stype == Categorical {
			stats = sortByValue(stats)
		}
		colStats[col] = stats
	}

	tf, err := d.toTensorFrame(ctx, colStats)
	if err != nil {
		return errors.Trace(err)
	}
	d.colStats = colStats
	d.tensorFrame = tf
	log.Logger().Debug("dataset materialized",
		zap.Int("num_rows", tf.NumRows),
		zap.Int("num_numerical", tf.NumCols(Numerical)),
		zap.Int("num_categorical", tf.NumCols(Categorical)),
		zap.Int("num_text_embedded", tf.NumCols(TextEmbedded)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Encode returns the dataset materialized with the given statistics. A
// materialized dataset is returned as is if its tensor frame is encoded the
// same way, otherwise a copy is materialized again.
func (d *Dataset) Encode(ctx context.Context, stats map[string]ColumnStats) (*Dataset, error) {
	if !d.IsMaterialized() {
		if err := d.Materialize(ctx, WithColStats(stats)); err != nil {
			return nil, errors.Trace(err)
		}
		return d, nil
	}
	same := true
	for col := range d.colToStype {
		expected, ok := stats[col]
		if ok && !d.colStats[col].SameEncoding(expected) {
			same = false
			break
		}
	}
	if same {
		return d, nil
	}
	log.Logger().Debug("encode dataset with different statistics", zap.Int("num_rows", d.NumRows()))
	c := &Dataset{
		df:            d.df,
		colToStype:    d.colToStype,
		targetCol:     d.targetCol,
		splitCol:      d.splitCol,
		textEmbedders: d.textEmbedders,
		defaultText:   d.defaultText,
		numWorkers:    d.numWorkers,
		colNamesDict:  d.colNamesDict,
	}
	if err := c.Materialize(ctx, WithColStats(stats)); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}

func (d *Dataset) textEmbedder(col string) (TextEmbedderConfig, error) {
	if cfg, ok := d.textEmbedders[col]; ok {
		return cfg, nil
	}
	if d.defaultText != nil {
		return *d.defaultText, nil
	}
	return TextEmbedderConfig{}, errors.NotFoundf("text embedder for column %q", col)
}

func (d *Dataset) toTensorFrame(ctx context.Context, colStats map[string]ColumnStats) (*TensorFrame, error) {
	n := d.df.NumRows()
	tf := &TensorFrame{NumRows: n, ColNamesDict: d.colNamesDict}

	// numerical
	if cols := d.colNamesDict[Numerical]; len(cols) > 0 {
		tf.Numerical = make([]float32, n*len(cols))
		for j, col := range cols {
			series, _ := d.df.Column(col)
			if !series.IsNumeric() {
				return nil, errors.NotValidf("numerical column %q with string values", col)
			}
			for i, v := range series.Floats {
				tf.Numerical[i*len(cols)+j] = float32(v)
			}
		}
	}

	// categorical
	if cols := d.colNamesDict[Categorical]; len(cols) > 0 {
		tf.Categorical = make([]int32, n*len(cols))
		for j, col := range cols {
			series, _ := d.df.Column(col)
			index := colStats[col].CategoryIndex()
			for i := 0; i < n; i++ {
				if c, ok := index[series.Text(i)]; ok {
					tf.Categorical[i*len(cols)+j] = int32(c)
				} else {
					tf.Categorical[i*len(cols)+j] = -1
				}
			}
		}
	}

	// text embedded
	if cols := d.colNamesDict[TextEmbedded]; len(cols) > 0 {
		tf.TextDims = lo.Map(cols, func(col string, _ int) int { return colStats[col].EmbDim })
		width := tf.TextWidth()
		tf.TextEmbedded = make([]float32, n*width)
		offset := 0
		for j, col := range cols {
			series, _ := d.df.Column(col)
			cfg, err := d.textEmbedder(col)
			if err != nil {
				return nil, errors.Trace(err)
			}
			embeddings, err := embed(ctx, cfg, series.Texts(), d.numWorkers)
			if err != nil {
				return nil, errors.Annotatef(err, "embed column %q", col)
			}
			dim := tf.TextDims[j]
			for i, e := range embeddings {
				if len(e) != dim {
					return nil, errors.NotValidf("embedding of column %q with %d dimensions, expected %d", col, len(e), dim)
				}
				copy(tf.TextEmbedded[i*width+offset:i*width+offset+dim], e)
			}
			offset += dim
		}
	}

	// target
	if d.targetCol != "" && d.df.HasColumn(d.targetCol) {
		series, _ := d.df.Column(d.targetCol)
		stats := colStats[d.targetCol]
		tf.Y = make([]float32, n)
		switch stats.Stype {
		case Numerical:
			if !series.IsNumeric() {
				return nil, errors.NotValidf("numerical target %q with string values", d.targetCol)
			}
			for i, v := range series.Floats {
				if math.IsNaN(v) {
					return nil, errors.NotValidf("missing target at row %d", i)
				}
				tf.Y[i] = float32(v)
			}
		case Categorical:
			index := stats.CategoryIndex()
			for i := 0; i < n; i++ {
				c, ok := index[series.Text(i)]
				if !ok {
					return nil, errors.NotValidf("target %q at row %d", series.Text(i), i)
				}
				tf.Y[i] = float32(c)
			}
		}
	}
	return tf, nil
}

func embed(ctx context.Context, cfg TextEmbedderConfig, texts []string, numWorkers int) ([][]float32, error) {
	batches := parallel.Chunk(lo.Range(len(texts)), cfg.BatchSize)
	result := make([][]float32, len(texts))
	err := parallel.Parallel(ctx, len(batches), numWorkers, func(_, jobId int) error {
		batch := batches[jobId]
		embeddings, err := cfg.Embedder.Embed(ctx, lo.Map(batch, func(i, _ int) string { return texts[i] }))
		if err != nil {
			return errors.Trace(err)
		}
		if len(embeddings) != len(batch) {
			return errors.Errorf("expected %d embeddings, got %d", len(batch), len(embeddings))
		}
		for k, i := range batch {
			result[i] = embeddings[k]
		}
		return nil
	})
	return result, err
}

// TaskType is inferred from the target column.
func (d *Dataset) TaskType() (TaskType, error) {
	if d.targetCol == "" {
		return "", errors.NotFoundf("target column")
	}
	if d.colToStype[d.targetCol] == Numerical {
		return Regression, nil
	}
	if !d.IsMaterialized() {
		return "", errors.NotValidf("dataset is not materialized")
	}
	if len(d.colStats[d.targetCol].Categories) == 2 {
		return BinaryClassification, nil
	}
	return MulticlassClassification, nil
}

// NumClasses returns the number of target classes of a classification dataset.
func (d *Dataset) NumClasses() (int, error) {
	taskType, err := d.TaskType()
	if err != nil {
		return 0, errors.Trace(err)
	}
	if !taskType.IsClassification() {
		return 0, errors.NotValidf("number of classes of %s dataset", taskType)
	}
	return len(d.colStats[d.targetCol].Categories), nil
}

// Index returns a materialized dataset of the given rows.
func (d *Dataset) Index(rows []int) (*Dataset, error) {
	if !d.IsMaterialized() {
		return nil, errors.NotValidf("dataset is not materialized")
	}
	tf, err := d.tensorFrame.Index(rows)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Dataset{
		df:            d.df.Take(rows),
		colToStype:    d.colToStype,
		targetCol:     d.targetCol,
		splitCol:      d.splitCol,
		textEmbedders: d.textEmbedders,
		defaultText:   d.defaultText,
		numWorkers:    d.numWorkers,
		colNamesDict:  d.colNamesDict,
		colStats:      d.colStats,
		tensorFrame:   tf,
	}, nil
}

// Split returns the train, validation and test partitions by the split column.
func (d *Dataset) Split() (train, val, test *Dataset, err error) {
	if d.splitCol == "" {
		return nil, nil, nil, errors.NotFoundf("split column")
	}
	if !d.IsMaterialized() {
		return nil, nil, nil, errors.NotValidf("dataset is not materialized")
	}
	series, _ := d.df.Column(d.splitCol)
	rows := make(map[string][]int, 3)
	for i := 0; i < series.Len(); i++ {
		value := series.Text(i)
		switch value {
		case SplitTrain, SplitVal, SplitTest:
			rows[value] = append(rows[value], i)
		default:
			return nil, nil, nil, errors.NotValidf("split value %q at row %d", value, i)
		}
	}
	if train, err = d.Index(rows[SplitTrain]); err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	if val, err = d.Index(rows[SplitVal]); err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	if test, err = d.Index(rows[SplitTest]); err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	return train, val, test, nil
}
