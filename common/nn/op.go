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
	"fmt"

	"github.com/chewxy/math32"
)

type op interface {
	String() string
	forward(inputs ...*Tensor) *Tensor
	backward(dy *Tensor) []*Tensor
	inputsAndOutput() ([]*Tensor, *Tensor)
	setInputs(inputs ...*Tensor)
	setOutput(y *Tensor)
}

type base struct {
	inputs []*Tensor
	output *Tensor
}

func (b *base) inputsAndOutput() ([]*Tensor, *Tensor) {
	return b.inputs, b.output
}

func (b *base) setInputs(inputs ...*Tensor) {
	b.inputs = inputs
}

func (b *base) setOutput(y *Tensor) {
	b.output = y
}

func apply[T op](f T, inputs ...*Tensor) *Tensor {
	y := f.forward(inputs...)
	f.setInputs(inputs...)
	f.setOutput(y)
	y.op = f
	return y
}

// reduceSuffix sums dy into a tensor of the suffix shape.
func reduceSuffix(dy *Tensor, shape []int, scale func(i int) float32) *Tensor {
	gx := Zeros(shape...)
	wSize := size(shape)
	for i := range dy.data {
		gx.data[i%wSize] += dy.data[i] * scale(i)
	}
	return gx
}

func one(int) float32 { return 1 }

type add struct {
	base
}

func (a *add) String() string {
	return "Add"
}

func (a *add) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.add(inputs[1])
	return y
}

func (a *add) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx1 := reduceSuffix(dy, a.inputs[1].shape, one)
	return []*Tensor{gx0, gx1}
}

type sub struct {
	base
}

func (s *sub) String() string {
	return "Sub"
}

func (s *sub) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.sub(inputs[1])
	return y
}

func (s *sub) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx1 := reduceSuffix(dy, s.inputs[1].shape, func(int) float32 { return -1 })
	return []*Tensor{gx0, gx1}
}

type mul struct {
	base
}

func (m *mul) String() string {
	return "Mul"
}

func (m *mul) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.mul(inputs[1])
	return y
}

func (m *mul) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx0.mul(m.inputs[1])
	x0 := m.inputs[0]
	gx1 := reduceSuffix(dy, m.inputs[1].shape, func(i int) float32 { return x0.data[i] })
	return []*Tensor{gx0, gx1}
}

type div struct {
	base
}

func (d *div) String() string {
	return "Div"
}

func (d *div) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.div(inputs[1])
	return y
}

func (d *div) backward(dy *Tensor) []*Tensor {
	x0, x1 := d.inputs[0], d.inputs[1]
	wSize := size(x1.shape)
	gx0 := dy.clone()
	gx0.div(x1)
	gx1 := reduceSuffix(dy, x1.shape, func(i int) float32 {
		w := x1.data[i%wSize]
		return -x0.data[i] / (w * w)
	})
	return []*Tensor{gx0, gx1}
}

type square struct {
	base
}

func (s *square) String() string {
	return "Square"
}

func (s *square) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.square()
	return y
}

func (s *square) backward(dy *Tensor) []*Tensor {
	dx := s.inputs[0].clone()
	dx.mul(dy)
	dx.scale(2)
	return []*Tensor{dx}
}

type exp struct {
	base
}

func (e *exp) String() string {
	return "Exp"
}

func (e *exp) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.exp()
	return y
}

func (e *exp) backward(dy *Tensor) []*Tensor {
	dx := e.output.clone()
	dx.mul(dy)
	return []*Tensor{dx}
}

type log struct {
	base
}

func (l *log) String() string {
	return "Log"
}

func (l *log) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.log()
	return y
}

func (l *log) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	dx.div(l.inputs[0])
	return []*Tensor{dx}
}

type sum struct {
	base
}

func (s *sum) String() string {
	return "Sum"
}

func (s *sum) forward(inputs ...*Tensor) *Tensor {
	return NewScalar(inputs[0].sum())
}

func (s *sum) backward(dy *Tensor) []*Tensor {
	dx := Ones(s.inputs[0].shape...)
	dx.scale(dy.data[0])
	return []*Tensor{dx}
}

type mean struct {
	base
}

func (m *mean) String() string {
	return "Mean"
}

func (m *mean) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	return NewScalar(x.sum() / float32(len(x.data)))
}

func (m *mean) backward(dy *Tensor) []*Tensor {
	dx := Ones(m.inputs[0].shape...)
	dx.scale(dy.data[0] / float32(len(dx.data)))
	return []*Tensor{dx}
}

type matMul struct {
	base
}

func (m *matMul) String() string {
	return "MatMul"
}

func (m *matMul) forward(inputs ...*Tensor) *Tensor {
	return inputs[0].matMul(inputs[1], false, false)
}

func (m *matMul) backward(dy *Tensor) []*Tensor {
	dx0 := dy.matMul(m.inputs[1], false, true)
	dx1 := m.inputs[0].matMul(dy, true, false)
	return []*Tensor{dx0, dx1}
}

type broadcast struct {
	base
	shape []int
}

func (b *broadcast) String() string {
	return "Broadcast"
}

func (b *broadcast) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	// Concatenate the shape
	shape := make([]int, len(x.shape), len(x.shape)+len(b.shape))
	copy(shape, x.shape)
	shape = append(shape, b.shape...)
	y := Zeros(shape...)
	wSize := size(b.shape)
	for i := range x.data {
		for j := i * wSize; j < (i+1)*wSize; j++ {
			y.data[j] = x.data[i]
		}
	}
	return y
}

func (b *broadcast) backward(dy *Tensor) []*Tensor {
	gx := Zeros(b.inputs[0].shape...)
	wSize := size(b.shape)
	for i := range gx.data {
		for j := i * wSize; j < (i+1)*wSize; j++ {
			gx.data[i] += dy.data[j]
		}
	}
	return []*Tensor{gx}
}

type reshape struct {
	base
	shape []int
}

func (r *reshape) String() string {
	return "Reshape"
}

func (r *reshape) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.shape = r.shape
	return y
}

func (r *reshape) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	dx.shape = r.inputs[0].Shape()
	return []*Tensor{dx}
}

type concat struct {
	base
	axis int
}

func (c *concat) String() string {
	return "Concat"
}

func (c *concat) forward(inputs ...*Tensor) *Tensor {
	first := inputs[0]
	shape := first.Shape()
	shape[c.axis] = 0
	for _, x := range inputs {
		shape[c.axis] += x.shape[c.axis]
	}
	outer := size(first.shape[:c.axis])
	inner := size(first.shape[c.axis+1:])
	y := Zeros(shape...)
	offset := 0
	for o := 0; o < outer; o++ {
		for _, x := range inputs {
			block := x.shape[c.axis] * inner
			copy(y.data[offset:offset+block], x.data[o*block:(o+1)*block])
			offset += block
		}
	}
	return y
}

func (c *concat) backward(dy *Tensor) []*Tensor {
	first := c.inputs[0]
	outer := size(first.shape[:c.axis])
	inner := size(first.shape[c.axis+1:])
	grads := make([]*Tensor, len(c.inputs))
	for k, x := range c.inputs {
		grads[k] = Zeros(x.shape...)
	}
	offset := 0
	for o := 0; o < outer; o++ {
		for k, x := range c.inputs {
			block := x.shape[c.axis] * inner
			copy(grads[k].data[o*block:(o+1)*block], dy.data[offset:offset+block])
			offset += block
		}
	}
	return grads
}

type meanAxis struct {
	base
	axis int
}

func (m *meanAxis) String() string {
	return "MeanAxis"
}

func (m *meanAxis) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	outer := size(x.shape[:m.axis])
	n := x.shape[m.axis]
	inner := size(x.shape[m.axis+1:])
	shape := make([]int, 0, len(x.shape)-1)
	shape = append(shape, x.shape[:m.axis]...)
	shape = append(shape, x.shape[m.axis+1:]...)
	y := Zeros(shape...)
	for o := 0; o < outer; o++ {
		for j := 0; j < n; j++ {
			for i := 0; i < inner; i++ {
				y.data[o*inner+i] += x.data[(o*n+j)*inner+i]
			}
		}
	}
	y.scale(1 / float32(n))
	return y
}

func (m *meanAxis) backward(dy *Tensor) []*Tensor {
	x := m.inputs[0]
	outer := size(x.shape[:m.axis])
	n := x.shape[m.axis]
	inner := size(x.shape[m.axis+1:])
	dx := Zeros(x.shape...)
	for o := 0; o < outer; o++ {
		for j := 0; j < n; j++ {
			for i := 0; i < inner; i++ {
				dx.data[(o*n+j)*inner+i] = dy.data[o*inner+i] / float32(n)
			}
		}
	}
	return []*Tensor{dx}
}

type flatten struct {
	base
}

func (f *flatten) String() string {
	return "Flatten"
}

func (f *flatten) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.shape = []int{len(y.data)}
	return y
}

func (f *flatten) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	dx.shape = f.inputs[0].Shape()
	return []*Tensor{dx}
}

type sigmoid struct {
	base
}

func (s *sigmoid) String() string {
	return "Sigmoid"
}

func (s *sigmoid) forward(inputs ...*Tensor) *Tensor {
	// y = tanh(x * 0.5) * 0.5 + 0.5
	y := inputs[0].clone()
	y.scale(0.5)
	y.tanh()
	y.scale(0.5)
	y.add(NewScalar(0.5))
	return y
}

func (s *sigmoid) backward(dy *Tensor) []*Tensor {
	// dx = dy * y * (1 - y)
	dx := dy.clone()
	for i, y := range s.output.data {
		dx.data[i] *= y * (1 - y)
	}
	return []*Tensor{dx}
}

type relu struct {
	base
}

func (r *relu) String() string {
	return "ReLU"
}

func (r *relu) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	for i := range y.data {
		if y.data[i] < 0 {
			y.data[i] = 0
		}
	}
	return y
}

func (r *relu) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	for i, x := range r.inputs[0].data {
		if x <= 0 {
			dx.data[i] = 0
		}
	}
	return []*Tensor{dx}
}

type dropout struct {
	base
	p    float32
	mask []float32
}

func (d *dropout) String() string {
	return "Dropout"
}

func (d *dropout) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	d.mask = make([]float32, len(y.data))
	keep := 1 - d.p
	for i := range y.data {
		if generator.Float32() < keep {
			d.mask[i] = 1 / keep
		}
		y.data[i] *= d.mask[i]
	}
	return y
}

func (d *dropout) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	for i := range dx.data {
		dx.data[i] *= d.mask[i]
	}
	return []*Tensor{dx}
}

type embedding struct {
	base
}

func (e *embedding) String() string {
	return "Embedding"
}

func (e *embedding) forward(inputs ...*Tensor) *Tensor {
	w, x := inputs[0], inputs[1]
	dim := size(w.shape[1:])
	shape := make([]int, 0, len(x.shape)+len(w.shape)-1)
	shape = append(shape, x.shape...)
	shape = append(shape, w.shape[1:]...)
	y := Zeros(shape...)
	for i, index := range x.data {
		row := int(index)
		if row < 0 || row >= w.shape[0] {
			panic(fmt.Sprintf("embedding index %d out of range [0, %d)", row, w.shape[0]))
		}
		copy(y.data[i*dim:(i+1)*dim], w.data[row*dim:(row+1)*dim])
	}
	return y
}

func (e *embedding) backward(dy *Tensor) []*Tensor {
	w, x := e.inputs[0], e.inputs[1]
	dim := size(w.shape[1:])
	dw := Zeros(w.shape...)
	for i, index := range x.data {
		row := int(index)
		for j := 0; j < dim; j++ {
			dw.data[row*dim+j] += dy.data[i*dim+j]
		}
	}
	return []*Tensor{dw, nil}
}

// normalize standardizes groups of n elements that are stride apart. It is
// shared by layer normalization (stride 1 over the last axis) and batch
// normalization (stride D over the first axis).
type normalize struct {
	base
	eps    float32
	groups int
	n      int
	at     func(g, k int) int
	mean   []float32
	invStd []float32
}

func (n *normalize) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	y := Zeros(x.shape...)
	n.mean = make([]float32, n.groups)
	n.invStd = make([]float32, n.groups)
	for g := 0; g < n.groups; g++ {
		var m float32
		for k := 0; k < n.n; k++ {
			m += x.data[n.at(g, k)]
		}
		m /= float32(n.n)
		var v float32
		for k := 0; k < n.n; k++ {
			d := x.data[n.at(g, k)] - m
			v += d * d
		}
		v /= float32(n.n)
		n.mean[g] = m
		n.invStd[g] = 1 / math32.Sqrt(v+n.eps)
		for k := 0; k < n.n; k++ {
			i := n.at(g, k)
			y.data[i] = (x.data[i] - m) * n.invStd[g]
		}
	}
	return y
}

func (n *normalize) backward(dy *Tensor) []*Tensor {
	y := n.output
	dx := Zeros(y.shape...)
	count := float32(n.n)
	for g := 0; g < n.groups; g++ {
		var sumDy, sumDyY float32
		for k := 0; k < n.n; k++ {
			i := n.at(g, k)
			sumDy += dy.data[i]
			sumDyY += dy.data[i] * y.data[i]
		}
		for k := 0; k < n.n; k++ {
			i := n.at(g, k)
			dx.data[i] = n.invStd[g] / count * (count*dy.data[i] - sumDy - y.data[i]*sumDyY)
		}
	}
	return []*Tensor{dx}
}

// variance returns the biased variance of each normalized group.
func (n *normalize) variance() []float32 {
	v := make([]float32, len(n.invStd))
	for i, s := range n.invStd {
		v[i] = 1/(s*s) - n.eps
	}
	return v
}

type layerNorm struct {
	normalize
}

func (l *layerNorm) String() string {
	return "LayerNorm"
}

type batchNorm struct {
	normalize
}

func (b *batchNorm) String() string {
	return "BatchNorm"
}

type softmax struct {
	base
}

func (s *softmax) String() string {
	return "Softmax"
}

func (s *softmax) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	k := x.shape[len(x.shape)-1]
	y := x.clone()
	for r := 0; r < len(y.data)/k; r++ {
		row := y.data[r*k : (r+1)*k]
		softmaxRow(row)
	}
	return y
}

func (s *softmax) backward(dy *Tensor) []*Tensor {
	y := s.output
	k := y.shape[len(y.shape)-1]
	dx := Zeros(y.shape...)
	for r := 0; r < len(y.data)/k; r++ {
		var dot float32
		for j := r * k; j < (r+1)*k; j++ {
			dot += dy.data[j] * y.data[j]
		}
		for j := r * k; j < (r+1)*k; j++ {
			dx.data[j] = y.data[j] * (dy.data[j] - dot)
		}
	}
	return []*Tensor{dx}
}

func softmaxRow(row []float32) {
	maxValue := row[0]
	for _, v := range row[1:] {
		maxValue = math32.Max(maxValue, v)
	}
	var total float32
	for j := range row {
		row[j] = math32.Exp(row[j] - maxValue)
		total += row[j]
	}
	for j := range row {
		row[j] /= total
	}
}

type softmaxCrossEntropy struct {
	base
	probs []float32
}

func (s *softmaxCrossEntropy) String() string {
	return "SoftmaxCrossEntropy"
}

func (s *softmaxCrossEntropy) forward(inputs ...*Tensor) *Tensor {
	x, labels := inputs[0], inputs[1]
	n, k := x.shape[0], x.shape[1]
	s.probs = make([]float32, len(x.data))
	copy(s.probs, x.data)
	var loss float32
	for r := 0; r < n; r++ {
		row := s.probs[r*k : (r+1)*k]
		softmaxRow(row)
		label := int(labels.data[r])
		if label < 0 || label >= k {
			panic(fmt.Sprintf("class label %d out of range [0, %d)", label, k))
		}
		loss -= math32.Log(math32.Max(row[label], 1e-12))
	}
	return NewScalar(loss / float32(n))
}

func (s *softmaxCrossEntropy) backward(dy *Tensor) []*Tensor {
	x, labels := s.inputs[0], s.inputs[1]
	n, k := x.shape[0], x.shape[1]
	dx := NewTensor(append([]float32(nil), s.probs...), x.Shape()...)
	for r := 0; r < n; r++ {
		dx.data[r*k+int(labels.data[r])] -= 1
	}
	dx.scale(dy.data[0] / float32(n))
	return []*Tensor{dx, nil}
}

type bceWithLogits struct {
	base
}

func (b *bceWithLogits) String() string {
	return "BCEWithLogits"
}

func (b *bceWithLogits) forward(inputs ...*Tensor) *Tensor {
	x, target := inputs[0], inputs[1]
	var loss float32
	for i, v := range x.data {
		// max(x, 0) - x * y + log(1 + exp(-|x|))
		loss += math32.Max(v, 0) - v*target.data[i] + math32.Log1p(math32.Exp(-math32.Abs(v)))
	}
	return NewScalar(loss / float32(len(x.data)))
}

func (b *bceWithLogits) backward(dy *Tensor) []*Tensor {
	x, target := b.inputs[0], b.inputs[1]
	dx := Zeros(x.shape...)
	scale := dy.data[0] / float32(len(x.data))
	for i, v := range x.data {
		dx.data[i] = (1/(1+math32.Exp(-v)) - target.data[i]) * scale
	}
	return []*Tensor{dx, nil}
}

func checkSuffix(x0, x1 *Tensor) {
	if len(x0.shape) < len(x1.shape) {
		panic("the shape of the second tensor must be a suffix sequence of the shape of the first tensor")
	}
	for i := 0; i < len(x1.shape); i++ {
		if x0.shape[len(x0.shape)-len(x1.shape)+i] != x1.shape[i] {
			panic("the shape of the second tensor must be a suffix sequence of the shape of the first tensor")
		}
	}
}

// Add returns the element-wise sum of tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Add(x0 *Tensor, x ...*Tensor) *Tensor {
	y := x0
	for _, x1 := range x {
		if len(y.shape) < len(x1.shape) {
			y, x1 = x1, y
		}
		checkSuffix(y, x1)
		y = apply(&add{}, y, x1)
	}
	return y
}

// Sub returns the element-wise difference of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Sub(x0, x1 *Tensor) *Tensor {
	checkSuffix(x0, x1)
	return apply(&sub{}, x0, x1)
}

// Mul returns the element-wise product of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Mul(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		x0, x1 = x1, x0
	}
	checkSuffix(x0, x1)
	return apply(&mul{}, x0, x1)
}

// Div returns the element-wise division of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Div(x0, x1 *Tensor) *Tensor {
	checkSuffix(x0, x1)
	return apply(&div{}, x0, x1)
}

// Square returns the element-wise square of a tensor.
func Square(x *Tensor) *Tensor {
	return apply(&square{}, x)
}

// Exp returns the element-wise exponential of a tensor.
func Exp(x *Tensor) *Tensor {
	return apply(&exp{}, x)
}

// Log returns the element-wise natural logarithm of a tensor.
func Log(x *Tensor) *Tensor {
	return apply(&log{}, x)
}

// Sum returns the sum of all elements in a tensor.
func Sum(x *Tensor) *Tensor {
	return apply(&sum{}, x)
}

// Mean returns the mean of all elements in a tensor.
func Mean(x *Tensor) *Tensor {
	return apply(&mean{}, x)
}

// MeanAxis averages a tensor along one axis and removes that axis.
func MeanAxis(x *Tensor, axis int) *Tensor {
	if axis < 0 || axis >= len(x.shape) {
		panic(fmt.Sprintf("axis %d out of range for shape %v", axis, x.shape))
	}
	return apply(&meanAxis{axis: axis}, x)
}

func MatMul(x, y *Tensor) *Tensor {
	return apply(&matMul{}, x, y)
}

// Broadcast repeats every element of x to fill the trailing shape.
func Broadcast(x *Tensor, shape ...int) *Tensor {
	return apply(&broadcast{shape: shape}, x)
}

func Flatten(x *Tensor) *Tensor {
	return apply(&flatten{}, x)
}

func Reshape(x *Tensor, shape ...int) *Tensor {
	if size(shape) != len(x.data) {
		panic(fmt.Sprintf("cannot reshape %v into %v", x.shape, shape))
	}
	return apply(&reshape{shape: shape}, x)
}

// Concat joins tensors along an axis. All other dimensions must agree.
func Concat(axis int, x ...*Tensor) *Tensor {
	if len(x) == 0 {
		panic("concat requires at least one tensor")
	}
	for _, t := range x[1:] {
		if len(t.shape) != len(x[0].shape) {
			panic("concat requires tensors of the same rank")
		}
		for i := range t.shape {
			if i != axis && t.shape[i] != x[0].shape[i] {
				panic(fmt.Sprintf("concat shape mismatch: %v and %v", x[0].shape, t.shape))
			}
		}
	}
	return apply(&concat{axis: axis}, x...)
}

func Sigmoid(x *Tensor) *Tensor {
	return apply(&sigmoid{}, x)
}

func ReLu(x *Tensor) *Tensor {
	return apply(&relu{}, x)
}

// Dropout zeroes elements with probability p and scales the rest by 1/(1-p).
func Dropout(x *Tensor, p float32) *Tensor {
	if p <= 0 {
		return x
	}
	return apply(&dropout{p: p}, x)
}

// Embedding looks up rows of w by the integer indices stored in x.
func Embedding(w, x *Tensor) *Tensor {
	return apply(&embedding{}, w, x)
}

// LayerNorm standardizes x over its last axis.
func LayerNorm(x *Tensor, eps float32) *Tensor {
	d := x.shape[len(x.shape)-1]
	f := &layerNorm{normalize{
		eps:    eps,
		groups: len(x.data) / d,
		n:      d,
		at:     func(g, k int) int { return g*d + k },
	}}
	return apply(f, x)
}

// batchNormalize standardizes a matrix over its first axis and returns the
// batch mean and variance of every column.
func batchNormalize(x *Tensor, eps float32) (*Tensor, []float32, []float32) {
	if len(x.shape) != 2 {
		panic("batch normalization requires a matrix")
	}
	d := x.shape[1]
	f := &batchNorm{normalize{
		eps:    eps,
		groups: d,
		n:      x.shape[0],
		at:     func(g, k int) int { return k*d + g },
	}}
	y := apply(f, x)
	return y, f.mean, f.variance()
}

// Softmax normalizes the last axis into probabilities.
func Softmax(x *Tensor) *Tensor {
	return apply(&softmax{}, x)
}

// SoftmaxCrossEntropy returns the mean cross entropy between logits of shape
// (n, k) and class indices of shape (n).
func SoftmaxCrossEntropy(x, labels *Tensor) *Tensor {
	if len(x.shape) != 2 || len(labels.data) != x.shape[0] {
		panic(fmt.Sprintf("cross entropy shape mismatch: %v and %v", x.shape, labels.shape))
	}
	return apply(&softmaxCrossEntropy{}, x, labels)
}

// BCEWithLogits returns the mean binary cross entropy between logits and targets in [0, 1].
func BCEWithLogits(x, target *Tensor) *Tensor {
	if len(x.data) != len(target.data) {
		panic(fmt.Sprintf("binary cross entropy shape mismatch: %v and %v", x.shape, target.shape))
	}
	return apply(&bceWithLogits{}, x, target)
}

func MeanSquareError(y, yPred *Tensor) *Tensor {
	return Mean(Square(Sub(yPred, y)))
}
