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

import "github.com/chewxy/math32"

type Layer interface {
	Parameters() []*Tensor
	Forward(x *Tensor) *Tensor
	SetTraining(training bool)
}

type Model Layer

// Stateful layers keep tensors that are not trained by gradients, such as
// running statistics.
type Stateful interface {
	Buffers() []*Tensor
}

// Buffers returns the non-trainable state of a layer.
func Buffers(l Layer) []*Tensor {
	if s, ok := l.(Stateful); ok {
		return s.Buffers()
	}
	return nil
}

type stateless struct{}

func (stateless) Parameters() []*Tensor {
	return nil
}

func (stateless) SetTraining(bool) {}

type LinearLayer struct {
	stateless
	W *Tensor
	B *Tensor
}

func NewLinear(in, out int) *LinearLayer {
	return &LinearLayer{
		W: Normal(0, 1.0/math32.Sqrt(float32(in)), in, out).RequireGrad(),
		B: Zeros(out).RequireGrad(),
	}
}

func (l *LinearLayer) Forward(x *Tensor) *Tensor {
	return Add(MatMul(x, l.W), l.B)
}

func (l *LinearLayer) Parameters() []*Tensor {
	return []*Tensor{l.W, l.B}
}

type flattenLayer struct {
	stateless
}

func NewFlatten() Layer {
	return &flattenLayer{}
}

func (f *flattenLayer) Forward(x *Tensor) *Tensor {
	return Flatten(x)
}

type EmbeddingLayer struct {
	stateless
	W *Tensor
}

func NewEmbedding(n int, shape ...int) *EmbeddingLayer {
	wShape := append([]int{n}, shape...)
	return &EmbeddingLayer{
		W: Normal(0, 1, wShape...).RequireGrad(),
	}
}

func (e *EmbeddingLayer) Parameters() []*Tensor {
	return []*Tensor{e.W}
}

func (e *EmbeddingLayer) Forward(x *Tensor) *Tensor {
	return Embedding(e.W, x)
}

type sigmoidLayer struct {
	stateless
}

func NewSigmoid() Layer {
	return &sigmoidLayer{}
}

func (s *sigmoidLayer) Forward(x *Tensor) *Tensor {
	return Sigmoid(x)
}

type reluLayer struct {
	stateless
}

func NewReLU() Layer {
	return &reluLayer{}
}

func (r *reluLayer) Forward(x *Tensor) *Tensor {
	return ReLu(x)
}

// DropoutLayer is the identity in evaluation mode.
type DropoutLayer struct {
	stateless
	P        float32
	training bool
}

func NewDropout(p float32) *DropoutLayer {
	return &DropoutLayer{P: p, training: true}
}

func (d *DropoutLayer) SetTraining(training bool) {
	d.training = training
}

func (d *DropoutLayer) Forward(x *Tensor) *Tensor {
	if !d.training {
		return x
	}
	return Dropout(x, d.P)
}

// LayerNormLayer normalizes the last axis and applies an element-wise affine transform.
type LayerNormLayer struct {
	stateless
	Gamma *Tensor
	Beta  *Tensor
	Eps   float32
}

func NewLayerNorm(dim int) *LayerNormLayer {
	return &LayerNormLayer{
		Gamma: Ones(dim).RequireGrad(),
		Beta:  Zeros(dim).RequireGrad(),
		Eps:   1e-5,
	}
}

func (l *LayerNormLayer) Parameters() []*Tensor {
	return []*Tensor{l.Gamma, l.Beta}
}

func (l *LayerNormLayer) Forward(x *Tensor) *Tensor {
	return Add(Mul(LayerNorm(x, l.Eps), l.Gamma), l.Beta)
}

// BatchNormLayer normalizes each feature over the batch. Running statistics
// are updated in training mode and used in evaluation mode.
type BatchNormLayer struct {
	Gamma       *Tensor
	Beta        *Tensor
	RunningMean *Tensor
	RunningVar  *Tensor
	Eps         float32
	Momentum    float32
	training    bool
}

func NewBatchNorm(dim int) *BatchNormLayer {
	return &BatchNormLayer{
		Gamma:       Ones(dim).RequireGrad(),
		Beta:        Zeros(dim).RequireGrad(),
		RunningMean: Zeros(dim),
		RunningVar:  Ones(dim),
		Eps:         1e-5,
		Momentum:    0.1,
		training:    true,
	}
}

func (b *BatchNormLayer) Parameters() []*Tensor {
	return []*Tensor{b.Gamma, b.Beta}
}

func (b *BatchNormLayer) Buffers() []*Tensor {
	return []*Tensor{b.RunningMean, b.RunningVar}
}

func (b *BatchNormLayer) SetTraining(training bool) {
	b.training = training
}

func (b *BatchNormLayer) Forward(x *Tensor) *Tensor {
	var y *Tensor
	if b.training && x.shape[0] > 1 {
		var mean, variance []float32
		y, mean, variance = batchNormalize(x, b.Eps)
		n := float32(x.shape[0])
		for i := range mean {
			b.RunningMean.data[i] += b.Momentum * (mean[i] - b.RunningMean.data[i])
			// running variance is unbiased
			b.RunningVar.data[i] += b.Momentum * (variance[i]*n/(n-1) - b.RunningVar.data[i])
		}
	} else {
		std := b.RunningVar.clone()
		for i := range std.data {
			std.data[i] = math32.Sqrt(std.data[i] + b.Eps)
		}
		y = Div(Sub(x, b.RunningMean.clone()), std)
	}
	return Add(Mul(y, b.Gamma), b.Beta)
}

type Sequential struct {
	Layers []Layer
}

func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{Layers: layers}
}

func (s *Sequential) Parameters() []*Tensor {
	var params []*Tensor
	for _, l := range s.Layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

func (s *Sequential) Buffers() []*Tensor {
	var buffers []*Tensor
	for _, l := range s.Layers {
		buffers = append(buffers, Buffers(l)...)
	}
	return buffers
}

func (s *Sequential) SetTraining(training bool) {
	for _, l := range s.Layers {
		l.SetTraining(training)
	}
}

func (s *Sequential) Forward(x *Tensor) *Tensor {
	for _, l := range s.Layers {
		x = l.Forward(x)
	}
	return x
}
