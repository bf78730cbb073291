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

package model

import (
	"github.com/gorse-io/dssm/base"
	"github.com/gorse-io/dssm/common/nn"
	"github.com/juju/errors"
)

// ErrNotFitted is returned when factors are requested from a model that has
// not been fitted yet.
var ErrNotFitted = errors.New("model is not fitted")

// Model is the interface of all models in this package.
type Model interface {
	// SetParams sets hyper-parameters.
	SetParams(params Params)
	// GetParams returns all hyper-parameters.
	GetParams() Params
	// IsFitted reports whether the model has been fitted.
	IsFitted() bool
}

// Module is the training contract consumed by the Trainer. A module owns its
// network and knows how to compute a loss from a batch; the trainer owns the
// epoch loop.
type Module interface {
	// Parameters returns all trainable tensors.
	Parameters() []*nn.Tensor
	// TrainingStep computes the loss tensor of a training batch.
	TrainingStep(batch []*nn.Tensor) *nn.Tensor
	// ValidationStep computes the loss of a validation batch without
	// touching parameters or building a gradient graph.
	ValidationStep(batch []*nn.Tensor) float32
	// ConfigureOptimizer creates the optimizer used by the trainer.
	ConfigureOptimizer() nn.Optimizer
}

// BaseModel is included by every model. Hyper-parameters and the random
// generator are managed by BaseModel.
type BaseModel struct {
	Params    Params
	rng       base.RandomGenerator
	randState int64
}

// SetParams sets hyper-parameters of the BaseModel.
func (model *BaseModel) SetParams(params Params) {
	model.Params = params
	model.randState = model.Params.GetInt64(RandomState, 0)
	model.rng = base.NewRandomGenerator(model.randState)
}

// GetParams returns all hyper-parameters.
func (model *BaseModel) GetParams() Params {
	return model.Params
}

func (model *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return model.rng
}
