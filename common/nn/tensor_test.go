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

package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTensor(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, []int{2, 3}, x.Shape())
	assert.Equal(t, 6, x.Size())
	assert.Equal(t, "[1, 2, 3, 4, 5, 6]", x.String())
	assert.Panics(t, func() { NewTensor([]float32{1, 2}, 3) })

	// Shape returns a copy.
	shape := x.Shape()
	shape[0] = 100
	assert.Equal(t, []int{2, 3}, x.Shape())

	assert.Equal(t, "3", NewScalar(3).String())
	assert.Equal(t, "[0, 0, 0, 0, 0, ..., 0, 0, 0, 0, 0]", Zeros(20).String())
}

func TestRandomTensor(t *testing.T) {
	x := Uniform(-1, 1, 100)
	for _, v := range x.Data() {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.Less(t, v, float32(1))
	}
	y := Normal(10, 0.001, 100)
	for _, v := range y.Data() {
		assert.InDelta(t, 10, v, 0.1)
	}
}

func TestNoGrad(t *testing.T) {
	x := Ones(3).RequireGrad()
	y := Add(x, x).NoGrad()
	z := Mul(y, x)
	z.Backward()
	assert.Equal(t, []float32{2, 2, 2}, x.Grad().Data())
}
