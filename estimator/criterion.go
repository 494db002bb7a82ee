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
	"github.com/gorse-io/frame/common/nn"
	"github.com/gorse-io/frame/dataset"
	"github.com/juju/errors"
)

const (
	MSELossName           = "mse"
	CrossEntropyLossName  = "cross_entropy"
	BCEWithLogitsLossName = "bce_with_logits"
)

// Criterion computes the training loss of model outputs against targets.
type Criterion interface {
	Name() string
	// Task is the kind of target the criterion expects.
	Task() dataset.TaskType
	// Loss returns a scalar. Outputs have shape (n, k) and targets shape (n).
	Loss(out, y *nn.Tensor) (*nn.Tensor, error)
}

// NewCriterion creates a criterion by name.
func NewCriterion(name string) (Criterion, error) {
	switch name {
	case MSELossName:
		return MSELoss{}, nil
	case CrossEntropyLossName:
		return CrossEntropyLoss{}, nil
	case BCEWithLogitsLossName:
		return BCEWithLogitsLoss{}, nil
	default:
		return nil, errors.NotSupportedf("criterion %q", name)
	}
}

// CriterionForTask returns the default criterion of a task.
func CriterionForTask(task dataset.TaskType) (Criterion, error) {
	switch task {
	case dataset.Regression:
		return MSELoss{}, nil
	case dataset.MulticlassClassification:
		return CrossEntropyLoss{}, nil
	case dataset.BinaryClassification:
		return BCEWithLogitsLoss{}, nil
	default:
		return nil, errors.NotSupportedf("task %q", task)
	}
}

// squeeze reshapes single column outputs to (n).
func squeeze(out, y *nn.Tensor) (*nn.Tensor, error) {
	shape := out.Shape()
	if len(shape) != 2 || shape[1] != 1 {
		return nil, errors.NotValidf("output shape %v, expected (n, 1)", shape)
	}
	if shape[0] != y.Size() {
		return nil, errors.NotValidf("%d outputs for %d targets", shape[0], y.Size())
	}
	return nn.Reshape(out, shape[0]), nil
}

type MSELoss struct{}

func (MSELoss) Name() string {
	return MSELossName
}

func (MSELoss) Task() dataset.TaskType {
	return dataset.Regression
}

func (MSELoss) Loss(out, y *nn.Tensor) (*nn.Tensor, error) {
	pred, err := squeeze(out, y)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return nn.MeanSquareError(y, pred), nil
}

// CrossEntropyLoss takes logits of shape (n, k) and class indices.
type CrossEntropyLoss struct{}

func (CrossEntropyLoss) Name() string {
	return CrossEntropyLossName
}

func (CrossEntropyLoss) Task() dataset.TaskType {
	return dataset.MulticlassClassification
}

func (CrossEntropyLoss) Loss(out, y *nn.Tensor) (*nn.Tensor, error) {
	shape := out.Shape()
	if len(shape) != 2 || shape[0] != y.Size() {
		return nil, errors.NotValidf("output shape %v for %d targets", shape, y.Size())
	}
	for _, label := range y.Data() {
		if label < 0 || int(label) >= shape[1] {
			return nil, errors.NotValidf("class %v out of range [0, %d)", label, shape[1])
		}
	}
	return nn.SoftmaxCrossEntropy(out, y), nil
}

// BCEWithLogitsLoss takes one logit per row and targets in {0, 1}.
type BCEWithLogitsLoss struct{}

func (BCEWithLogitsLoss) Name() string {
	return BCEWithLogitsLossName
}

func (BCEWithLogitsLoss) Task() dataset.TaskType {
	return dataset.BinaryClassification
}

func (BCEWithLogitsLoss) Loss(out, y *nn.Tensor) (*nn.Tensor, error) {
	logits, err := squeeze(out, y)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return nn.BCEWithLogits(logits, y), nil
}
