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
	"math"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/gorse-io/frame/common/log"
	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ModuleCreator builds a fresh module from hyper-parameters.
type ModuleCreator func(params model.Params) (model.Module, error)

type SearchResult struct {
	Params  model.Params
	Lr      float32
	Score   float64
	History History
}

// ModelSearch tunes the learning rate and the module hyper-parameters by
// minimizing the best monitored loss of each trial.
type ModelSearch struct {
	creator   ModuleCreator
	criterion Criterion
	config    Config
	params    model.Params
	X         any
	y         *dataset.Series

	ctx    context.Context
	result SearchResult
}

// NewModelSearch creates a search. The given params are kept fixed unless suggested by trials.
func NewModelSearch(creator ModuleCreator, params model.Params, criterion Criterion, config Config, X any, y *dataset.Series) *ModelSearch {
	config.Verbose = 0
	return &ModelSearch{
		creator:   creator,
		criterion: criterion,
		config:    config,
		params:    params,
		X:         X,
		y:         y,
		ctx:       context.Background(),
		result:    SearchResult{Score: math.Inf(1)},
	}
}

func (ms *ModelSearch) SuggestParams(trial goptuna.Trial) (model.Params, float32, error) {
	lr, err := trial.SuggestLogFloat("lr", 1e-4, 1e-1)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	width, err := trial.SuggestInt(string(model.Channels), 1, 8)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	normalization, err := trial.SuggestCategorical(string(model.Normalization),
		[]string{model.LayerNorm, model.BatchNorm, model.NoNorm})
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	params := ms.params.Overwrite(model.Params{
		model.Channels:      4 * width,
		model.Normalization: normalization,
	})
	return params, float32(lr), nil
}

func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	params, lr, err := ms.SuggestParams(trial)
	if err != nil {
		return 0, errors.Trace(err)
	}
	module, err := ms.creator(params)
	if err != nil {
		return 0, errors.Trace(err)
	}
	config := ms.config
	config.Lr = lr
	net, err := NewNeuralNet(module, ms.criterion, WithConfig(config))
	if err != nil {
		return 0, errors.Trace(err)
	}
	if err = net.Fit(ms.ctx, ms.X, ms.y); err != nil {
		return 0, errors.Trace(err)
	}
	best, ok := net.History().Best()
	if !ok {
		return 0, errors.NotValidf("trial without improvement")
	}
	score := best.Score()
	log.Logger().Info("search trial",
		zap.Any("params", params),
		zap.Float32("lr", lr),
		zap.Float64("score", score))
	if score < ms.result.Score {
		ms.result = SearchResult{
			Params:  params,
			Lr:      lr,
			Score:   score,
			History: net.History(),
		}
	}
	return score, nil
}

func (ms *ModelSearch) Result() SearchResult {
	return ms.result
}

// Optimize runs TPE trials and returns the best result.
func (ms *ModelSearch) Optimize(ctx context.Context, numTrials int) (SearchResult, error) {
	ms.ctx = ctx
	study, err := goptuna.CreateStudy("frame",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(ms.config.Seed))))
	if err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	if err = study.Optimize(ms.Objective, numTrials); err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	if math.IsInf(ms.result.Score, 1) {
		return SearchResult{}, errors.NotFoundf("search result")
	}
	return ms.result, nil
}
