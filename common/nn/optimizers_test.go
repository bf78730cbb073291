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

package nn_test

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorse-io/dssm/base"
	"github.com/gorse-io/dssm/common/nn"
	"github.com/stretchr/testify/assert"
)

func testOptimizer(optimizerCreator func(params []*nn.Tensor, lr float32) nn.Optimizer, epochs int) (losses []float32) {
	// Fit y = sin(x) with a cubic polynomial.
	x := nn.LinSpace(-math.Pi, math.Pi, 2000)
	y := nn.Sin(x)

	// Prepare the input tensor (x, x^2, x^3).
	p := nn.NewTensor([]float32{1, 2, 3}, 3)
	xx := nn.Pow(nn.Broadcast(x, 3), p)

	// Weights come from a seeded generator so every run starts from the
	// same point.
	rng := base.NewRandomGenerator(42)
	model := nn.NewSequential(
		&nn.LinearLayer{
			W: nn.NewTensor(rng.NormalVector(3, 0, 1.0/math32.Sqrt(3)), 3, 1).RequireGrad(),
			B: nn.Zeros(1).RequireGrad(),
		},
		nn.NewFlatten(),
	)
	optimizer := optimizerCreator(model.Parameters(), 1e-3)
	for i := 0; i < epochs; i++ {
		yPred := model.Forward(xx)
		loss := nn.MeanSquareError(yPred, y)
		losses = append(losses, loss.Data()[0])
		optimizer.ZeroGrad()
		loss.Backward()
		optimizer.Step()
	}
	return
}

func TestSGD(t *testing.T) {
	losses := testOptimizer(nn.NewSGD, 1000)
	assert.Less(t, losses[len(losses)-1], losses[0])
	assert.Less(t, losses[len(losses)-1], float32(0.1))
}

func TestAdam(t *testing.T) {
	// Adam at lr 1e-3 needs a larger budget than SGD on this problem.
	losses := testOptimizer(nn.NewAdam, 5000)
	assert.Less(t, losses[len(losses)-1], losses[0])
	assert.Less(t, losses[len(losses)-1], float32(0.1))
}
