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

const (
	eps  = 1e-3
	rtol = 1e-2
	atol = 5e-3
)

func numericalDiff(f func(*Tensor) *Tensor, x *Tensor) *Tensor {
	x0, x1 := x.clone(), x.clone()
	dx := make([]float32, len(x.data))
	for i, v := range x.data {
		x0.data[i] = v - eps
		x1.data[i] = v + eps
		y0 := f(x0)
		y1 := f(x1)
		for j := range y0.data {
			dx[i] += (y1.data[j] - y0.data[j]) / (2 * eps)
		}
		x0.data[i] = v
		x1.data[i] = v
	}
	return NewTensor(dx, x.Shape()...)
}

func allClose(t *testing.T, a, b *Tensor) {
	if !assert.Equal(t, a.shape, b.shape) {
		return
	}
	for i := range a.data {
		if math32.Abs(a.data[i]-b.data[i]) > atol+rtol*math32.Abs(b.data[i]) {
			t.Fatalf("a.data[%d] = %f, b.data[%d] = %f\n", i, a.data[i], i, b.data[i])
			return
		}
	}
}

// checkGrad compares the analytical gradient of sum(f(x)) with the numerical one.
func checkGrad(t *testing.T, f func(*Tensor) *Tensor, x *Tensor) {
	x.grad = nil
	y := f(x)
	y.Backward()
	allClose(t, x.grad, numericalDiff(f, x))
}

func TestAdd(t *testing.T) {
	// (2,3) + (2,3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4, 5, 6, 7}, 2, 3)
	z := Add(x, y)
	assert.Equal(t, []float32{3, 5, 7, 9, 11, 13}, z.data)

	// Test gradient
	x = Uniform(0, 1, 2, 3)
	y = Uniform(0, 1, 2, 3)
	checkGrad(t, func(x *Tensor) *Tensor { return Add(x, y) }, x)
	checkGrad(t, func(y *Tensor) *Tensor { return Add(x, y) }, y)

	// (2,3) + () -> (2,3)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y = NewTensor([]float32{2})
	z = Add(x, y)
	assert.Equal(t, []float32{3, 4, 5, 6, 7, 8}, z.data)
	z.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
	assert.Equal(t, []float32{6}, y.grad.data)

	// (3) + (2,3) -> (2,3)
	x = NewTensor([]float32{2, 3, 4}, 3)
	y = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	z = Add(x, y)
	assert.Equal(t, []int{2, 3}, z.Shape())
	assert.Equal(t, []float32{3, 5, 7, 6, 8, 10}, z.data)
	z.Backward()
	assert.Equal(t, []float32{2, 2, 2}, x.grad.data)
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, y.grad.data)
}

func TestSub(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4}, 3)
	z := Sub(x, y)
	assert.Equal(t, []float32{-1, -1, -1, 2, 2, 2}, z.data)
	z.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
	assert.Equal(t, []float32{-2, -2, -2}, y.grad.data)

	x = Uniform(0, 1, 2, 3)
	y = Uniform(0, 1, 3)
	checkGrad(t, func(x *Tensor) *Tensor { return Sub(x, y) }, x)
	checkGrad(t, func(y *Tensor) *Tensor { return Sub(x, y) }, y)

	// The second operand must be a suffix.
	assert.Panics(t, func() { Sub(Zeros(3), Zeros(2, 3)) })
}

func TestMul(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4}, 3)
	z := Mul(x, y)
	assert.Equal(t, []float32{2, 6, 12, 8, 15, 24}, z.data)

	x = Uniform(0, 1, 2, 3)
	y = Uniform(0, 1, 3)
	checkGrad(t, func(x *Tensor) *Tensor { return Mul(x, y) }, x)
	checkGrad(t, func(y *Tensor) *Tensor { return Mul(x, y) }, y)
	checkGrad(t, func(y *Tensor) *Tensor { return Mul(y, x) }, y)
}

func TestDiv(t *testing.T) {
	x := NewTensor([]float32{2, 4, 6, 8, 10, 12}, 2, 3)
	y := NewTensor([]float32{2})
	z := Div(x, y)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, z.data)

	x = Uniform(1, 2, 2, 3)
	y = Uniform(1, 2, 3)
	checkGrad(t, func(x *Tensor) *Tensor { return Div(x, y) }, x)
	checkGrad(t, func(y *Tensor) *Tensor { return Div(x, y) }, y)
}

func TestSquare(t *testing.T) {
	x := NewTensor([]float32{1, -2, 3}, 3)
	assert.Equal(t, []float32{1, 4, 9}, Square(x).data)
	checkGrad(t, Square, Uniform(-1, 1, 2, 3))
}

func TestExpLog(t *testing.T) {
	x := NewTensor([]float32{0, 1}, 2)
	assert.InDeltaSlice(t, []float32{1, math32.E}, Exp(x).data, 1e-6)
	checkGrad(t, Exp, Uniform(-1, 1, 2, 3))
	checkGrad(t, Log, Uniform(1, 2, 2, 3))
}

func TestSumMean(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, float32(21), Sum(x).data[0])
	assert.Equal(t, float32(3.5), Mean(x).data[0])

	// The upstream gradient must be propagated.
	x = Uniform(0, 1, 2, 3)
	z := Mul(Sum(x), NewScalar(3))
	z.Backward()
	assert.Equal(t, []float32{3, 3, 3, 3, 3, 3}, x.grad.data)
	x.grad = nil
	z = Mul(Mean(x), NewScalar(3))
	z.Backward()
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, x.grad.data, 1e-6)
}

func TestMeanAxis(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := MeanAxis(x, 1)
	assert.Equal(t, []int{2}, y.Shape())
	assert.Equal(t, []float32{2, 5}, y.data)
	y = MeanAxis(x, 0)
	assert.Equal(t, []int{3}, y.Shape())
	assert.Equal(t, []float32{2.5, 3.5, 4.5}, y.data)

	x = Uniform(0, 1, 2, 3, 4)
	w := Uniform(0, 1, 4)
	checkGrad(t, func(x *Tensor) *Tensor { return Mul(MeanAxis(x, 1), w) }, x)
}

func TestMatMul(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 3, 2)
	z := MatMul(x, y)
	assert.Equal(t, []int{2, 2}, z.Shape())
	assert.Equal(t, []float32{22, 28, 49, 64}, z.data)

	x = Uniform(0, 1, 2, 3)
	y = Uniform(0, 1, 3, 4)
	checkGrad(t, func(x *Tensor) *Tensor { return MatMul(x, y) }, x)
	checkGrad(t, func(y *Tensor) *Tensor { return MatMul(x, y) }, y)
	assert.Panics(t, func() { MatMul(Zeros(2, 3), Zeros(2, 3)) })
}

func TestBroadcast(t *testing.T) {
	x := NewTensor([]float32{1, 2}, 2)
	y := Broadcast(x, 3)
	assert.Equal(t, []int{2, 3}, y.Shape())
	assert.Equal(t, []float32{1, 1, 1, 2, 2, 2}, y.data)
	checkGrad(t, func(x *Tensor) *Tensor {
		return Mul(Broadcast(x, 3), NewTensor([]float32{1, 2, 3}, 3))
	}, Uniform(0, 1, 2))
}

func TestReshapeFlatten(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, []int{3, 2}, Reshape(x, 3, 2).Shape())
	assert.Equal(t, []int{6}, Flatten(x).Shape())
	assert.Panics(t, func() { Reshape(x, 4, 2) })
	checkGrad(t, func(x *Tensor) *Tensor {
		return Mul(Reshape(x, 3, 2), NewTensor([]float32{1, 2}, 2))
	}, Uniform(0, 1, 2, 3))
}

func TestConcat(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4}, 2, 2)
	y := NewTensor([]float32{5, 6}, 2, 1)
	z := Concat(1, x, y)
	assert.Equal(t, []int{2, 3}, z.Shape())
	assert.Equal(t, []float32{1, 2, 5, 3, 4, 6}, z.data)
	z = Concat(0, x, NewTensor([]float32{7, 8}, 1, 2))
	assert.Equal(t, []int{3, 2}, z.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 7, 8}, z.data)

	w := NewTensor([]float32{1, 2, 3}, 3)
	x = Uniform(0, 1, 2, 1, 3)
	y = Uniform(0, 1, 2, 2, 3)
	checkGrad(t, func(x *Tensor) *Tensor { return Mul(Concat(1, x, y), w) }, x)
	checkGrad(t, func(y *Tensor) *Tensor { return Mul(Concat(1, x, y), w) }, y)
	assert.Panics(t, func() { Concat(1, Zeros(2, 2), Zeros(3, 2)) })
}

func TestSigmoid(t *testing.T) {
	x := NewTensor([]float32{0, 100, -100}, 3)
	assert.InDeltaSlice(t, []float32{0.5, 1, 0}, Sigmoid(x).data, 1e-6)
	checkGrad(t, Sigmoid, Uniform(-2, 2, 2, 3))
}

func TestReLU(t *testing.T) {
	x := NewTensor([]float32{-1, 0, 2}, 3)
	y := ReLu(x)
	assert.Equal(t, []float32{0, 0, 2}, y.data)
	y = Mul(ReLu(x), NewScalar(3))
	y.Backward()
	assert.Equal(t, []float32{0, 0, 3}, x.grad.data)
}

func TestDropout(t *testing.T) {
	x := Ones(1000)
	y := Dropout(x, 0.5)
	var zeros int
	for _, v := range y.data {
		if v == 0 {
			zeros++
		} else {
			assert.Equal(t, float32(2), v)
		}
	}
	assert.InDelta(t, 500, zeros, 100)
	y.Backward()
	for i, v := range y.data {
		assert.Equal(t, v, x.grad.data[i])
	}
	// p = 0 is the identity
	assert.Same(t, x, Dropout(x, 0))
}

func TestEmbedding(t *testing.T) {
	w := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 3, 2)
	x := NewTensor([]float32{2, 0, 2}, 3)
	y := Embedding(w, x)
	assert.Equal(t, []int{3, 2}, y.Shape())
	assert.Equal(t, []float32{5, 6, 1, 2, 5, 6}, y.data)
	y.Backward()
	assert.Equal(t, []float32{1, 1, 0, 0, 2, 2}, w.grad.data)
	assert.Nil(t, x.grad)
	assert.Panics(t, func() { Embedding(w, NewTensor([]float32{3}, 1)) })
}

func TestLayerNorm(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 10, 20, 30}, 2, 3)
	y := LayerNorm(x, 1e-5)
	for r := 0; r < 2; r++ {
		row := y.data[r*3 : (r+1)*3]
		assert.InDelta(t, 0, row[0]+row[1]+row[2], 1e-5)
		assert.InDelta(t, row[0], -row[2], 1e-5)
	}
	w := NewTensor([]float32{1, -2, 3}, 3)
	checkGrad(t, func(x *Tensor) *Tensor { return Mul(LayerNorm(x, 1e-5), w) }, Uniform(0, 3, 4, 3))
}

func TestBatchNormalize(t *testing.T) {
	x := NewTensor([]float32{1, 10, 3, 30}, 2, 2)
	y, mean, variance := batchNormalize(x, 0)
	assert.Equal(t, []float32{2, 20}, mean)
	assert.InDeltaSlice(t, []float32{1, 100}, variance, 1e-3)
	assert.InDeltaSlice(t, []float32{-1, -1, 1, 1}, y.data, 1e-5)
	w := NewTensor([]float32{1, -2}, 2)
	checkGrad(t, func(x *Tensor) *Tensor {
		y, _, _ := batchNormalize(x, 1e-5)
		return Mul(y, w)
	}, Uniform(0, 3, 5, 2))
}

func TestSoftmax(t *testing.T) {
	x := NewTensor([]float32{1, 1, 1, 0, 0, 1000}, 2, 3)
	y := Softmax(x)
	assert.InDeltaSlice(t, []float32{1. / 3, 1. / 3, 1. / 3, 0, 0, 1}, y.data, 1e-6)
	w := NewTensor([]float32{1, 2, 3}, 3)
	checkGrad(t, func(x *Tensor) *Tensor { return Mul(Softmax(x), w) }, Uniform(-1, 1, 2, 3))
}

func TestSoftmaxCrossEntropy(t *testing.T) {
	x := NewTensor([]float32{0, 0, 0, 0}, 2, 2)
	labels := NewTensor([]float32{0, 1}, 2)
	loss := SoftmaxCrossEntropy(x, labels)
	assert.InDelta(t, math32.Log(2), loss.data[0], 1e-6)

	labels = NewTensor([]float32{2, 0, 1, 2}, 4)
	checkGrad(t, func(x *Tensor) *Tensor { return SoftmaxCrossEntropy(x, labels) }, Uniform(-1, 1, 4, 3))
	assert.Panics(t, func() { SoftmaxCrossEntropy(Zeros(1, 2), NewTensor([]float32{2}, 1)) })
}

func TestBCEWithLogits(t *testing.T) {
	x := NewTensor([]float32{0, 0}, 2)
	target := NewTensor([]float32{0, 1}, 2)
	assert.InDelta(t, math32.Log(2), BCEWithLogits(x, target).data[0], 1e-6)

	// Large logits stay finite.
	x = NewTensor([]float32{100, -100}, 2)
	assert.InDelta(t, 100, BCEWithLogits(x, target).data[0], 1e-3)

	target = NewTensor([]float32{1, 0, 0.5, 1}, 4)
	checkGrad(t, func(x *Tensor) *Tensor { return BCEWithLogits(x, target) }, Uniform(-2, 2, 4))
}

func TestMeanSquareError(t *testing.T) {
	y := NewTensor([]float32{1, 2, 3}, 3)
	yPred := NewTensor([]float32{2, 2, 5}, 3)
	assert.InDelta(t, float32(5)/3, MeanSquareError(y, yPred).data[0], 1e-6)
	checkGrad(t, func(yPred *Tensor) *Tensor { return MeanSquareError(y, yPred) }, Uniform(0, 1, 3))
}

func TestBackwardAccumulates(t *testing.T) {
	// y = x * x + x uses x three times.
	x := NewTensor([]float32{1, 2, 3}, 3)
	y := Add(Mul(x, x), x)
	y.Backward()
	assert.Equal(t, []float32{3, 5, 7}, x.grad.data)
}
