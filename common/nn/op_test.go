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
	eps  = 1e-4
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
	return NewTensor(dx, x.shape...)
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

func TestAdd(t *testing.T) {
	// (2,3) + (2,3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4, 5, 6, 7}, 2, 3)
	z := Add(x, y)
	assert.Equal(t, []float32{3, 5, 7, 9, 11, 13}, z.data)

	// Test gradient
	x = Rand(2, 3)
	y = Rand(2, 3)
	z = Add(x, y)
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Add(x, y) }, x)
	allClose(t, x.grad, dx)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Add(x, y) }, y)
	allClose(t, y.grad, dy)

	// (2,3) + () -> (2,3)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y = NewTensor([]float32{2})
	z = Add(x, y)
	assert.Equal(t, []float32{3, 4, 5, 6, 7, 8}, z.data)

	// Test gradient
	z.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
	assert.Equal(t, []float32{6}, y.grad.data)

	// (2,3) + (3) -> (2,3)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y = NewTensor([]float32{2, 3, 4}, 3)
	z = Add(x, y)
	assert.Equal(t, []float32{3, 5, 7, 6, 8, 10}, z.data)

	// Test gradient
	z.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
	assert.Equal(t, []float32{2, 2, 2}, y.grad.data)
}

func TestSub(t *testing.T) {
	// (2,3) - (2,3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4, 5, 6, 7}, 2, 3)
	z := Sub(x, y)
	assert.Equal(t, []float32{-1, -1, -1, -1, -1, -1}, z.data)

	// Test gradient
	x = Rand(2, 3)
	y = Rand(2, 3)
	z = Sub(x, y)
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Sub(x, y) }, x)
	allClose(t, x.grad, dx)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Sub(x, y) }, y)
	allClose(t, y.grad, dy)

	// (2,3) - (3) -> (2,3)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y = NewTensor([]float32{2, 3, 4}, 3)
	z = Sub(x, y)
	assert.Equal(t, []float32{-1, -1, -1, 2, 2, 2}, z.data)

	// Test gradient
	z.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
	assert.Equal(t, []float32{-2, -2, -2}, y.grad.data)
}

func TestMul(t *testing.T) {
	// (2,3) * (2,3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4, 5, 6, 7}, 2, 3)
	z := Mul(x, y)
	assert.Equal(t, []float32{2, 6, 12, 20, 30, 42}, z.data)

	// Test gradient
	x = Rand(2, 3)
	y = Rand(2, 3)
	z = Mul(x, y)
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Mul(x, y) }, x)
	allClose(t, x.grad, dx)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Mul(x, y) }, y)
	allClose(t, y.grad, dy)

	// (2,3) * (3) -> (2,3)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y = NewTensor([]float32{2, 3, 4}, 3)
	z = Mul(x, y)
	assert.Equal(t, []float32{2, 6, 12, 8, 15, 24}, z.data)

	// Test gradient
	z.Backward()
	assert.Equal(t, []float32{2, 3, 4, 2, 3, 4}, x.grad.data)
	assert.Equal(t, []float32{5, 7, 9}, y.grad.data)
}

func TestDiv(t *testing.T) {
	// (2,3) / (2,3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4, 5, 6, 7}, 2, 3)
	z := Div(x, y)
	assert.InDeltaSlice(t, []float32{0.5, 2.0 / 3.0, 0.75, 4.0 / 5.0, 5.0 / 6.0, 6.0 / 7.0}, z.data, 1e-6)

	// Test gradient
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Div(x, y) }, x)
	allClose(t, x.grad, dx)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Div(x, y) }, y)
	allClose(t, y.grad, dy)
}

func TestSquare(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Square(x)
	assert.Equal(t, []float32{1, 4, 9, 16, 25, 36}, y.data)

	// Test gradient
	x = Rand(2, 3)
	y = Square(x)
	y.Backward()
	dx := numericalDiff(Square, x)
	allClose(t, x.grad, dx)
}

func TestPow(t *testing.T) {
	// (2,3) ** () -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2})
	z := Pow(x, y)
	assert.InDeltaSlice(t, []float32{1, 4, 9, 16, 25, 36}, z.data, 1e-6)

	// Test gradient
	z.Backward()
	assert.InDeltaSlice(t, []float32{2, 4, 6, 8, 10, 12}, x.grad.data, 1e-6)

	// (2,3) ** (2,3) -> (2,3)
	x = Uniform(0.5, 1, 2, 3)
	y = Uniform(0.5, 1, 2, 3)
	z = Pow(x, y)
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Pow(x, y) }, x)
	allClose(t, x.grad, dx)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Pow(x, y) }, y)
	allClose(t, y.grad, dy)
}

func TestExp(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	y := Exp(x)
	assert.InDeltaSlice(t, []float32{1, math32.Exp(1), math32.Exp(2), math32.Exp(3), math32.Exp(4), math32.Exp(5)}, y.data, 1e-5)

	// Test gradient
	x = Rand(2, 3)
	y = Exp(x)
	y.Backward()
	dx := numericalDiff(Exp, x)
	allClose(t, x.grad, dx)
}

func TestLog(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Log(x)
	assert.InDeltaSlice(t, []float32{0, math32.Log(2), math32.Log(3), math32.Log(4), math32.Log(5), math32.Log(6)}, y.data, 1e-6)

	// Test gradient
	x = Uniform(1, 2, 2, 3)
	y = Log(x)
	y.Backward()
	dx := numericalDiff(Log, x)
	allClose(t, x.grad, dx)
}

func TestSqrt(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{1, 4, 9, 16, 25, 36}, 2, 3)
	y := Sqrt(x)
	assert.InDeltaSlice(t, []float32{1, 2, 3, 4, 5, 6}, y.data, 1e-6)

	// Test gradient
	x = Uniform(1, 2, 2, 3)
	y = Sqrt(x)
	y.Backward()
	dx := numericalDiff(Sqrt, x)
	allClose(t, x.grad, dx)
}

func TestSum(t *testing.T) {
	// (2,3) -> ()
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Sum(x)
	assert.Equal(t, []float32{21}, y.data)

	// Test gradient
	x = Rand(2, 3)
	y = Sum(x)
	y.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)

	// (2,3,2) -> (2,2)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6, 1, 2, 3, 4, 5, 6}, 2, 3, 2)
	y = Sum(x, 1)
	assert.Equal(t, []int{2, 2}, y.shape)
	assert.Equal(t, []float32{9, 12, 9, 12}, y.data)

	// Test gradient
	x = Rand(2, 3, 2)
	y = Sum(x, 1)
	y.Backward()
	assert.Equal(t, []int{2, 3, 2}, x.grad.shape)
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, x.grad.data)

	// (2,3) -> (2)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y = Sum(x, 1)
	assert.Equal(t, []int{2}, y.shape)
	assert.Equal(t, []float32{6, 15}, y.data)
}

func TestMean(t *testing.T) {
	// (2,3) -> ()
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Mean(x)
	assert.Equal(t, []float32{3.5}, y.data)

	// Test gradient
	x = Rand(2, 3)
	y = Mean(x)
	y.Backward()
	assert.Equal(t, []float32{1.0 / 6, 1.0 / 6, 1.0 / 6, 1.0 / 6, 1.0 / 6, 1.0 / 6}, x.grad.data)
}

func TestMatMul(t *testing.T) {
	// (2,3) * (3,4) -> (2,4)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 3, 4)
	z := MatMul(x, y)
	assert.Equal(t, []int{2, 4}, z.shape)
	assert.Equal(t, []float32{38, 44, 50, 56, 83, 98, 113, 128}, z.data)

	// Test gradient
	z.Backward()
	assert.Equal(t, []int{2, 3}, x.grad.shape)
	assert.Equal(t, []float32{10, 26, 42, 10, 26, 42}, x.grad.data)
	assert.Equal(t, []int{3, 4}, y.grad.shape)
	assert.Equal(t, []float32{5, 5, 5, 5, 7, 7, 7, 7, 9, 9, 9, 9}, y.grad.data)
}

func TestBroadcast(t *testing.T) {
	// (2) -> (2,3)
	x := NewTensor([]float32{1, 2}, 2)
	y := Broadcast(x, 3)
	assert.Equal(t, []float32{1, 1, 1, 2, 2, 2}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{3, 3}, x.grad.data)
}

func TestFlatten(t *testing.T) {
	// (2,3) -> (6)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Flatten(x)
	assert.Equal(t, []int{6}, y.shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
}

func TestReshape(t *testing.T) {
	// (2,3) -> (3,2)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Reshape(x, 3, 2)
	assert.Equal(t, []int{3, 2}, y.shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
}

func TestSigmoid(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	y := Sigmoid(x)
	assert.InDeltaSlice(t, []float32{0.5, 0.7310585786300049, 0.8807970779778823, 0.9525741268224334, 0.9820137900379085, 0.9933071490757153}, y.data, 1e-6)

	// Test gradient
	x = Rand(2, 3)
	y = Sigmoid(x)
	y.Backward()
	dx := numericalDiff(Sigmoid, x)
	allClose(t, x.grad, dx)
}

func TestTanh(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{-2, -1, 0, 1, 2, 3}, 2, 3)
	y := Tanh(x)
	assert.InDeltaSlice(t, []float32{
		math32.Tanh(-2), math32.Tanh(-1), 0, math32.Tanh(1), math32.Tanh(2), math32.Tanh(3),
	}, y.data, 1e-6)

	// Test gradient
	x = Uniform(-1, 1, 2, 3)
	y = Tanh(x)
	y.Backward()
	dx := numericalDiff(Tanh, x)
	allClose(t, x.grad, dx)
}

func TestReLU(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{-1, 0, 1, 2, 3, 4}, 2, 3)
	y := ReLU(x)
	assert.Equal(t, []float32{0, 0, 1, 2, 3, 4}, y.data)

	// Negative inputs receive zero gradient
	y.Backward()
	assert.Equal(t, []float32{0, 0, 1, 1, 1, 1}, x.grad.data)

	// Test gradient
	x = Uniform(-1, 1, 2, 3)
	y = ReLU(x)
	y.Backward()
	dx := numericalDiff(ReLU, x)
	allClose(t, x.grad, dx)
}

func TestELU(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{-2, -1, 0, 1, 2, 3}, 2, 3)
	y := ELU(x)
	assert.InDeltaSlice(t, []float32{
		math32.Exp(-2) - 1, math32.Exp(-1) - 1, 0, 1, 2, 3,
	}, y.data, 1e-6)

	// Test gradient
	x = Uniform(-1, 1, 2, 3)
	y = ELU(x)
	y.Backward()
	dx := numericalDiff(ELU, x)
	allClose(t, x.grad, dx)
}

func TestReuseLeaf(t *testing.T) {
	// x + x
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Add(x, x)
	assert.Equal(t, []float32{2, 4, 6, 8, 10, 12}, y.data)

	// Test gradient
	y.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Add(x, x) }, x)
	allClose(t, x.grad, dx)
}

func TestReuseNode(t *testing.T) {
	// x^2 + x^2
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	temp := Square(x)
	y := Add(temp, temp)
	assert.Equal(t, []float32{2, 8, 18, 32, 50, 72}, y.data)

	// Test gradient
	y.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor {
		temp := Square(x)
		return Add(temp, temp)
	}, x)
	allClose(t, x.grad, dx)
}

func TestSharedParameter(t *testing.T) {
	// A weight used by two branches accumulates the gradient of both.
	w := NewTensor([]float32{1, 2, 3, 4}, 2, 2).RequireGrad()
	a := NewTensor([]float32{1, 0}, 1, 2)
	b := NewTensor([]float32{0, 1}, 1, 2)
	y := Add(Sum(MatMul(a, w)), Sum(MatMul(b, w)))
	assert.Equal(t, []float32{10}, y.data)

	// Test gradient
	y.Backward()
	dw := numericalDiff(func(w *Tensor) *Tensor {
		return Add(Sum(w.matMul(NewTensor([]float32{1, 0}, 1, 2), true, true)), Sum(w.matMul(NewTensor([]float32{0, 1}, 1, 2), true, true)))
	}, w)
	allClose(t, w.grad, dw)
	assert.Equal(t, []float32{1, 1, 1, 1}, w.grad.data)
}

func TestSphere(t *testing.T) {
	// x^2 + y^2
	x := NewScalar(1)
	y := NewScalar(1)
	z := Add(Mul(x, x), Mul(y, y))
	assert.Equal(t, []float32{2}, z.data)

	// Test gradient
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Add(Mul(x, x), Mul(y, y)) }, x)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Add(Mul(x, x), Mul(y, y)) }, y)
	allClose(t, x.grad, dx)
	allClose(t, y.grad, dy)
}

func TestMatyas(t *testing.T) {
	// 0.26 * (x^2 + y^2) - 0.48 * x * y
	x := NewScalar(1)
	y := NewScalar(1)
	z := Sub(Mul(NewScalar(0.26), Add(Mul(x, x), Mul(y, y))), Mul(NewScalar(0.48), Mul(x, y)))
	assert.InDeltaSlice(t, []float32{0.04}, z.data, 1e-6)

	// Test gradient
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor {
		return Sub(Mul(NewScalar(0.26), Add(Mul(x, x), Mul(y, y))), Mul(NewScalar(0.48), Mul(x, y)))
	}, x)
	dy := numericalDiff(func(y *Tensor) *Tensor {
		return Sub(Mul(NewScalar(0.26), Add(Mul(x, x), Mul(y, y))), Mul(NewScalar(0.48), Mul(x, y)))
	}, y)
	allClose(t, x.grad, dx)
	allClose(t, y.grad, dy)
}
