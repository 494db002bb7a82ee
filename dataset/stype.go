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

import "github.com/juju/errors"

// Stype is the semantic type of a column.
type Stype string

const (
	Numerical    Stype = "numerical"
	Categorical  Stype = "categorical"
	TextEmbedded Stype = "text_embedded"
)

// Stypes lists semantic types in the order their columns are encoded.
var Stypes = []Stype{Numerical, Categorical, TextEmbedded}

func ParseStype(s string) (Stype, error) {
	switch Stype(s) {
	case Numerical, Categorical, TextEmbedded:
		return Stype(s), nil
	default:
		return "", errors.NotValidf("stype %q", s)
	}
}

type TaskType string

const (
	Regression               TaskType = "regression"
	BinaryClassification     TaskType = "binary_classification"
	MulticlassClassification TaskType = "multiclass_classification"
)

func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(s) {
	case Regression, BinaryClassification, MulticlassClassification:
		return TaskType(s), nil
	default:
		return "", errors.NotValidf("task type %q", s)
	}
}

func (t TaskType) IsClassification() bool {
	return t == BinaryClassification || t == MulticlassClassification
}
