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
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

// Epoch records one training epoch. Validation metrics are NaN without a
// validation set, and accuracy is NaN for regression.
type Epoch struct {
	Epoch     int
	TrainLoss float64
	ValidLoss float64
	ValidAcc  float64
	// Best is set if the epoch improved the monitored loss.
	Best     bool
	Duration time.Duration
}

// Score is the loss monitored for early stopping.
func (e Epoch) Score() float64 {
	if math.IsNaN(e.ValidLoss) {
		return e.TrainLoss
	}
	return e.ValidLoss
}

func (e Epoch) ZapFields() []zap.Field {
	fields := []zap.Field{
		zap.Float64("train_loss", e.TrainLoss),
		zap.String("duration", e.Duration.String()),
	}
	if !math.IsNaN(e.ValidLoss) {
		fields = append(fields, zap.Float64("valid_loss", e.ValidLoss))
	}
	if !math.IsNaN(e.ValidAcc) {
		fields = append(fields, zap.Float64("valid_acc", e.ValidAcc))
	}
	return fields
}

type History []Epoch

// Best returns the last epoch that improved the monitored loss.
func (h History) Best() (Epoch, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Best {
			return h[i], true
		}
	}
	return Epoch{}, false
}

// Render prints the history as a table.
func (h History) Render(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("epoch", "train_loss", "valid_loss", "valid_acc", "dur")
	for _, e := range h {
		if err := table.Append([]string{
			strconv.Itoa(e.Epoch),
			formatLoss(e.TrainLoss, e.Best && math.IsNaN(e.ValidLoss)),
			formatLoss(e.ValidLoss, e.Best && !math.IsNaN(e.ValidLoss)),
			formatMetric(e.ValidAcc),
			fmt.Sprintf("%.4f", e.Duration.Seconds()),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func formatMetric(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func formatLoss(v float64, best bool) string {
	s := formatMetric(v)
	if best {
		s += " *"
	}
	return s
}
