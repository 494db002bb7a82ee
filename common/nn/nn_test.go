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

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestLinearRegression(t *testing.T) {
	x := Uniform(0, 1, 100, 1)
	y := Add(Uniform(0, 1, 100, 1), NewScalar(5), Mul(NewScalar(2), x))

	w := Zeros(1, 1)
	b := Zeros(1)
	predict := func(x *Tensor) *Tensor { return Add(MatMul(x, w), b) }

	lr := float32(0.1)
	for i := 0; i < 1000; i++ {
		yPred := predict(x)
		loss := MeanSquareError(y, yPred)

		w.grad = nil
		b.grad = nil
		loss.Backward()

		w.sub(w.grad.scale(lr))
		b.sub(b.grad.scale(lr))
	}

	assert.Equal(t, []int{1, 1}, w.shape)
	assert.InDelta(t, float64(2), w.data[0], 0.5)
	assert.Equal(t, []int{1}, b.shape)
	assert.InDelta(t, float64(5.5), b.data[0], 0.5)
}

func TestNeuralNetwork(t *testing.T) {
	x := Uniform(0, 1, 100, 1)
	y := Sigmoid(Mul(Sub(x, NewScalar(0.5)), NewScalar(10)))
	y.NoGrad()

	model := NewSequential(
		NewLinear(1, 10),
		NewReLU(),
		NewLinear(10, 1),
	)
	optimizer := NewAdam(model.Parameters(), 0.01)

	var l float32
	for i := 0; i < 1000; i++ {
		yPred := model.Forward(x)
		loss := MeanSquareError(y, yPred)

		optimizer.ZeroGrad()
		loss.Backward()

		optimizer.Step()
		l = loss.data[0]
	}
	assert.InDelta(t, float64(0), l, 0.01)
}

// blobs returns n points around three centers on the unit circle.
func blobs(n int) (*Tensor, *Tensor) {
	x := Normal(0, 0.1, n, 2)
	y := Zeros(n)
	for i := 0; i < n; i++ {
		c := i % 3
		angle := 2 * math32.Pi * float32(c) / 3
		x.data[i*2] += math32.Cos(angle)
		x.data[i*2+1] += math32.Sin(angle)
		y.data[i] = float32(c)
	}
	return x, y
}

func TestClassification(t *testing.T) {
	x, y := blobs(90)
	model := NewSequential(
		NewLinear(2, 16),
		NewBatchNorm(16),
		NewReLU(),
		NewDropout(0.1),
		NewLinear(16, 3),
	)
	optimizer := NewAdam(model.Parameters(), 0.01)
	for i := 0; i < 200; i++ {
		loss := SoftmaxCrossEntropy(model.Forward(x), y)
		optimizer.ZeroGrad()
		loss.Backward()
		optimizer.Step()
	}

	model.SetTraining(false)
	logits := model.Forward(x)
	var correct int
	for i := 0; i < 90; i++ {
		row := logits.data[i*3 : (i+1)*3]
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		if best == int(y.data[i]) {
			correct++
		}
	}
	assert.Greater(t, correct, 80)
}

func TestLayerNormLayer(t *testing.T) {
	layer := NewLayerNorm(3)
	layer.Gamma = NewTensor([]float32{2, 2, 2}, 3)
	layer.Beta = NewTensor([]float32{1, 1, 1}, 3)
	y := layer.Forward(NewTensor([]float32{1, 2, 3}, 1, 3))
	assert.InDeltaSlice(t, []float32{1 - 2*1.2247, 1, 1 + 2*1.2247}, y.data, 1e-3)
}

func TestBatchNormLayer(t *testing.T) {
	layer := NewBatchNorm(2)
	x := NewTensor([]float32{1, 10, 3, 30}, 2, 2)
	y := layer.Forward(x)
	assert.InDeltaSlice(t, []float32{-1, -1, 1, 1}, y.data, 1e-3)
	// running mean moves 10% towards the batch mean
	assert.InDeltaSlice(t, []float32{0.2, 2}, layer.RunningMean.data, 1e-6)
	// unbiased batch variance is (2, 200)
	assert.InDeltaSlice(t, []float32{1.1, 20.9}, layer.RunningVar.data, 1e-4)
	assert.Len(t, layer.Parameters(), 2)
	assert.Len(t, Buffers(layer), 2)

	layer.SetTraining(false)
	y = layer.Forward(NewTensor([]float32{0.2, 2}, 1, 2))
	assert.InDeltaSlice(t, []float32{0, 0}, y.data, 1e-6)
}

func TestDropoutLayer(t *testing.T) {
	layer := NewDropout(0.5)
	x := Ones(100)
	assert.NotEqual(t, x.data, layer.Forward(x).data)
	layer.SetTraining(false)
	assert.Same(t, x, layer.Forward(x))
}

func TestSequential(t *testing.T) {
	model := NewSequential(NewLinear(3, 4), NewBatchNorm(4), NewReLU(), NewLinear(4, 2))
	assert.Len(t, model.Parameters(), 6)
	assert.Len(t, model.Buffers(), 2)
	y := model.Forward(Uniform(0, 1, 5, 3))
	assert.Equal(t, []int{5, 2}, y.Shape())
}
