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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LabelCriterion = "criterion"

var (
	FitEpochsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame",
		Subsystem: "estimator",
		Name:      "fit_epochs_total",
	}, []string{LabelCriterion})
	TrainLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "frame",
		Subsystem: "estimator",
		Name:      "train_loss",
	}, []string{LabelCriterion})
	ValidLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "frame",
		Subsystem: "estimator",
		Name:      "valid_loss",
	}, []string{LabelCriterion})
	FitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "frame",
		Subsystem: "estimator",
		Name:      "fit_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{LabelCriterion})
	PredictRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "frame",
		Subsystem: "estimator",
		Name:      "predict_rows_total",
	})
)
