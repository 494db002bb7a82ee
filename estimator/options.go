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
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gorse-io/frame/dataset"
	"github.com/juju/errors"
)

// Config holds the training hyper-parameters of a NeuralNet.
type Config struct {
	MaxEpochs   int     `mapstructure:"max_epochs" validate:"gt=0"`
	BatchSize   int     `mapstructure:"batch_size" validate:"gt=0"`
	Lr          float32 `mapstructure:"lr" validate:"gt=0"`
	Optimizer   string  `mapstructure:"optimizer" validate:"oneof=sgd adam"`
	WeightDecay float32 `mapstructure:"weight_decay" validate:"gte=0"`
	Verbose     int     `mapstructure:"verbose" validate:"gte=0"`
	// ValidSplit is the fraction of rows held out for validation when the
	// input has no split column. Zero disables validation.
	ValidSplit float64 `mapstructure:"valid_split" validate:"gte=0,lt=1"`
	Shuffle    bool    `mapstructure:"shuffle"`
	// Patience stops training after this many epochs without improvement. Zero disables it.
	Patience int   `mapstructure:"patience" validate:"gte=0"`
	Seed     int64 `mapstructure:"seed"`
}

func DefaultConfig() Config {
	return Config{
		MaxEpochs:  10,
		BatchSize:  128,
		Lr:         0.01,
		Optimizer:  "sgd",
		Verbose:    1,
		ValidSplit: 0.2,
		Shuffle:    true,
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.NewNotValid(err, "training config")
	}
	return nil
}

type Option func(n *NeuralNet)

func WithConfig(cfg Config) Option {
	return func(n *NeuralNet) {
		n.config = cfg
	}
}

func WithMaxEpochs(epochs int) Option {
	return func(n *NeuralNet) {
		n.config.MaxEpochs = epochs
	}
}

func WithBatchSize(size int) Option {
	return func(n *NeuralNet) {
		n.config.BatchSize = size
	}
}

func WithLr(lr float32) Option {
	return func(n *NeuralNet) {
		n.config.Lr = lr
	}
}

func WithOptimizer(name string) Option {
	return func(n *NeuralNet) {
		n.config.Optimizer = name
	}
}

func WithWeightDecay(rate float32) Option {
	return func(n *NeuralNet) {
		n.config.WeightDecay = rate
	}
}

func WithVerbose(verbose int) Option {
	return func(n *NeuralNet) {
		n.config.Verbose = verbose
	}
}

func WithValidSplit(fraction float64) Option {
	return func(n *NeuralNet) {
		n.config.ValidSplit = fraction
	}
}

func WithShuffle(shuffle bool) Option {
	return func(n *NeuralNet) {
		n.config.Shuffle = shuffle
	}
}

func WithPatience(patience int) Option {
	return func(n *NeuralNet) {
		n.config.Patience = patience
	}
}

func WithSeed(seed int64) Option {
	return func(n *NeuralNet) {
		n.config.Seed = seed
	}
}

// WithOutput sets where the epoch table is printed. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(n *NeuralNet) {
		n.output = w
	}
}

// WithTextEmbedder sets the embedder used for text columns of frame inputs.
func WithTextEmbedder(cfg dataset.TextEmbedderConfig) Option {
	return func(n *NeuralNet) {
		n.textEmbedder = &cfg
	}
}

// WithTargetName sets the name of predicted series when labels are unnamed.
func WithTargetName(name string) Option {
	return func(n *NeuralNet) {
		n.targetCol = name
	}
}

// WithThreshold sets the probability threshold of the positive class.
func WithThreshold(threshold float32) Option {
	return func(n *NeuralNet) {
		n.threshold = threshold
	}
}
