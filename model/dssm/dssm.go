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

package dssm

import (
	"context"
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/gorse-io/dssm/base"
	"github.com/gorse-io/dssm/base/progress"
	"github.com/gorse-io/dssm/common/nn"
	"github.com/gorse-io/dssm/dataset"
	"github.com/gorse-io/dssm/model"
	"github.com/juju/errors"
)

// Activation is a tower non-linearity, resolved once at construction time.
type Activation func(*nn.Tensor) *nn.Tensor

// NewActivation resolves an activation by name. Supported names are "elu",
// "relu", "tanh" and "sigmoid".
func NewActivation(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "elu":
		return nn.ELU, nil
	case "relu":
		return nn.ReLU, nil
	case "tanh":
		return nn.Tanh, nil
	case "sigmoid":
		return nn.Sigmoid, nil
	default:
		return nil, errors.NotValidf("activation %q", name)
	}
}

// Tower maps a feature vector to an embedding through three bias-free linear
// layers with a residual connection:
//
//	emb = act(embedding(x))
//	y = output(emb + act(dense(emb)))
type Tower struct {
	embedding *nn.LinearLayer
	dense     *nn.LinearLayer
	output    *nn.LinearLayer
	act       Activation
}

func newTower(rng base.RandomGenerator, inputDim, nFactors int, act Activation) *Tower {
	return &Tower{
		embedding: newLinear(rng, inputDim, nFactors),
		dense:     newLinear(rng, nFactors, nFactors),
		output:    newLinear(rng, nFactors, nFactors),
		act:       act,
	}
}

// newLinear creates a bias-free linear layer with weights drawn from the
// seeded generator instead of the global source.
func newLinear(rng base.RandomGenerator, in, out int) *nn.LinearLayer {
	return &nn.LinearLayer{
		W: nn.NewTensor(rng.NormalVector(in*out, 0, 1.0/math32.Sqrt(float32(in))), in, out).RequireGrad(),
	}
}

func (t *Tower) Forward(x *nn.Tensor) *nn.Tensor {
	emb := t.act(t.embedding.Forward(x))
	dense := t.act(t.dense.Forward(emb))
	return t.output.Forward(nn.Add(emb, dense))
}

func (t *Tower) Parameters() []*nn.Tensor {
	var params []*nn.Tensor
	params = append(params, t.embedding.Parameters()...)
	params = append(params, t.dense.Parameters()...)
	params = append(params, t.output.Parameters()...)
	return params
}

func (t *Tower) clone() *Tower {
	return &Tower{
		embedding: &nn.LinearLayer{W: t.embedding.W.Clone()},
		dense:     &nn.LinearLayer{W: t.dense.W.Clone()},
		output:    &nn.LinearLayer{W: t.output.W.Clone()},
		act:       t.act,
	}
}

var _ model.Module = &DSSM{}

// DSSM is a bi-encoder. The user tower and the item tower project their
// feature vectors into a shared embedding space where interacted pairs end
// up closer than non-interacted pairs.
type DSSM struct {
	userTower *Tower
	itemTower *Tower

	margin      float32
	lr          float32
	weightDecay float32
}

// NewDSSM builds both towers from a single random generator. One nFactors
// serves the user tower and the item tower alike: the triplet loss compares
// user and item vectors directly, so the two towers must emit the same width.
func NewDSSM(rng base.RandomGenerator, userDim, itemDim, nFactors int, act Activation, margin, lr, weightDecay float32) *DSSM {
	return &DSSM{
		userTower:   newTower(rng, userDim, nFactors, act),
		itemTower:   newTower(rng, itemDim, nFactors, act),
		margin:      margin,
		lr:          lr,
		weightDecay: weightDecay,
	}
}

// Forward embeds a batch of (user, positive item, negative item) feature
// triples. The item tower is shared by positive and negative items.
func (d *DSSM) Forward(user, positive, negative *nn.Tensor) (*nn.Tensor, *nn.Tensor, *nn.Tensor) {
	return d.userTower.Forward(user), d.itemTower.Forward(positive), d.itemTower.Forward(negative)
}

func (d *DSSM) Parameters() []*nn.Tensor {
	return append(d.userTower.Parameters(), d.itemTower.Parameters()...)
}

// TrainingStep computes the triplet margin loss of a triple batch.
func (d *DSSM) TrainingStep(batch []*nn.Tensor) *nn.Tensor {
	if len(batch) != 3 {
		panic(fmt.Sprintf("dssm: expected 3 tensors in batch, got %d", len(batch)))
	}
	anchor, positive, negative := d.Forward(batch[0], batch[1], batch[2])
	return nn.TripletMarginLoss(anchor, positive, negative, d.margin)
}

// ValidationStep computes the triplet margin loss of a batch without
// updating any parameter.
func (d *DSSM) ValidationStep(batch []*nn.Tensor) float32 {
	return d.TrainingStep(batch).NoGrad().Data()[0]
}

func (d *DSSM) ConfigureOptimizer() nn.Optimizer {
	optimizer := nn.NewAdam(d.Parameters(), d.lr)
	optimizer.SetWeightDecay(d.weightDecay)
	return optimizer
}

// InferenceUsers embeds every row yielded by the loader through the user
// tower. Rows follow the iteration order of the loader.
func (d *DSSM) InferenceUsers(ctx context.Context, loader *dataset.DataLoader) ([][]float32, error) {
	return inference(ctx, "DSSM.InferenceUsers", d.userTower, loader)
}

// InferenceItems embeds every row yielded by the loader through the item
// tower. Rows follow the iteration order of the loader.
func (d *DSSM) InferenceItems(ctx context.Context, loader *dataset.DataLoader) ([][]float32, error) {
	return inference(ctx, "DSSM.InferenceItems", d.itemTower, loader)
}

func inference(ctx context.Context, name string, tower *Tower, loader *dataset.DataLoader) ([][]float32, error) {
	_, span := progress.Start(ctx, name, loader.BatchCount())
	var vectors [][]float32
	loader.Reset()
	for loader.Next(ctx) {
		output := tower.Forward(loader.Batch()[0]).NoGrad()
		batchSize, dim := output.Shape()[0], output.Shape()[1]
		for i := 0; i < batchSize; i++ {
			row := make([]float32, dim)
			copy(row, output.Data()[i*dim:(i+1)*dim])
			vectors = append(vectors, row)
		}
		span.Add(1)
	}
	if err := loader.Error(); err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	span.End()
	return vectors, nil
}

// Clone returns a deep copy of the network. The copy shares no tensors with
// the original, so fitting one never mutates the other.
func (d *DSSM) Clone() *DSSM {
	return &DSSM{
		userTower:   d.userTower.clone(),
		itemTower:   d.itemTower.clone(),
		margin:      d.margin,
		lr:          d.lr,
		weightDecay: d.weightDecay,
	}
}
