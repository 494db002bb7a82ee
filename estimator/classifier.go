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
	"github.com/gorse-io/frame/dataset"
	"github.com/gorse-io/frame/model"
	"github.com/juju/errors"
)

// NeuralNetClassifier fits multiclass classifiers with CrossEntropyLoss. It
// also accepts MSELoss, in which case it predicts raw values.
type NeuralNetClassifier struct {
	*NeuralNet
}

func NewNeuralNetClassifier(module model.Module, criterion Criterion, opts ...Option) (*NeuralNetClassifier, error) {
	if criterion != nil && criterion.Task() == dataset.BinaryClassification {
		return nil, errors.NotSupportedf("criterion %s in classifier, use the binary classifier", criterion.Name())
	}
	net, err := NewNeuralNet(module, criterion, opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &NeuralNetClassifier{NeuralNet: net}, nil
}

// NeuralNetBinaryClassifier fits one logit per row with BCEWithLogitsLoss and
// predicts the positive class if its probability exceeds the threshold.
type NeuralNetBinaryClassifier struct {
	*NeuralNet
}

func NewNeuralNetBinaryClassifier(module model.Module, criterion Criterion, opts ...Option) (*NeuralNetBinaryClassifier, error) {
	if criterion != nil && criterion.Task() != dataset.BinaryClassification {
		return nil, errors.NotSupportedf("criterion %s in binary classifier", criterion.Name())
	}
	if module != nil && module.OutChannels() != 1 {
		return nil, errors.NotValidf("%d output channels for binary classification", module.OutChannels())
	}
	net, err := NewNeuralNet(module, criterion, opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &NeuralNetBinaryClassifier{NeuralNet: net}, nil
}

func (c *NeuralNetBinaryClassifier) Threshold() float32 {
	return c.threshold
}
