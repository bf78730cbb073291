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

	"github.com/gorse-io/dssm/base"
	"github.com/gorse-io/dssm/base/log"
	"github.com/gorse-io/dssm/dataset"
	"github.com/gorse-io/dssm/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

var _ model.Model = &Model{}

// Model trains a DSSM network on a dataset and turns its towers into factor
// matrices. The network is built by Fit, with input widths inferred from the
// feature matrices, so the same Model can be refitted to datasets of
// different widths.
type Model struct {
	model.BaseModel
	nFactors    int
	nEpochs     int
	batchSize   int
	lr          float32
	margin      float32
	weightDecay float32
	activation  Activation
	net         *DSSM
}

func NewModel(params model.Params) *Model {
	m := new(Model)
	m.SetParams(params)
	return m
}

// SetParams sets hyper-parameters and resolves the activation.
func (m *Model) SetParams(params model.Params) {
	m.BaseModel.SetParams(params)
	m.nFactors = m.Params.GetInt(model.NFactors, 128)
	m.nEpochs = m.Params.GetInt(model.NEpochs, 5)
	m.batchSize = m.Params.GetInt(model.BatchSize, 128)
	m.lr = m.Params.GetFloat32(model.Lr, 0.01)
	m.margin = m.Params.GetFloat32(model.Margin, 0.4)
	m.weightDecay = m.Params.GetFloat32(model.WeightDecay, 1e-6)
	activation, err := NewActivation(m.Params.GetString(model.Activation, "elu"))
	if err != nil {
		log.Logger().Error("failed to resolve activation", zap.Error(err))
		activation, _ = NewActivation("elu")
	}
	m.activation = activation
}

// IsFitted reports whether Fit has completed at least once.
func (m *Model) IsFitted() bool {
	return m.net != nil
}

// Fit builds a fresh network and trains it on the train set. The validation
// set is optional and only scored, never stepped on. Fitting with the same
// RandomState reproduces the same network.
func (m *Model) Fit(ctx context.Context, trainSet, validateSet *dataset.Dataset, config *model.FitConfig) (model.Score, error) {
	if config == nil {
		config = model.NewFitConfig()
	}
	userDim := trainSet.GetUserFeatures().NumColumns()
	itemDim := trainSet.GetItemFeatures().NumColumns()
	if userDim == 0 {
		return model.Score{}, errors.NotValidf("user feature matrix with zero columns")
	}
	if itemDim == 0 {
		return model.Score{}, errors.NotValidf("item feature matrix with zero columns")
	}
	rng := base.NewRandomGenerator(m.Params.GetInt64(model.RandomState, 0))
	net := NewDSSM(rng, userDim, itemDim, m.nFactors, m.activation, m.margin, m.lr, m.weightDecay)
	trainLoader := dataset.NewDataLoader(dataset.NewTriples(trainSet, rng.Int63()), m.batchSize).
		SetShuffle(rng.Int63()).
		SetJobs(config.Jobs)
	var validateLoader *dataset.DataLoader
	if validateSet != nil {
		if validateSet.GetUserFeatures().NumColumns() != userDim || validateSet.GetItemFeatures().NumColumns() != itemDim {
			return model.Score{}, errors.NotValidf("validation set with mismatched feature dimensions")
		}
		validateLoader = dataset.NewDataLoader(dataset.NewTriples(validateSet, rng.Int63()), m.batchSize).
			SetJobs(config.Jobs)
	}
	score := model.NewTrainer(m.nEpochs).Fit(ctx, net, trainLoader, validateLoader, config)
	m.net = net
	return score, nil
}

// UserFactors embeds the user feature matrix of the dataset. Row i of the
// result is the embedding of user i.
func (m *Model) UserFactors(ctx context.Context, ds *dataset.Dataset) (*model.Factors, error) {
	if !m.IsFitted() {
		return nil, errors.Trace(model.ErrNotFitted)
	}
	loader := dataset.NewDataLoader(dataset.NewUserFeatures(ds), m.batchSize)
	vectors, err := m.net.InferenceUsers(ctx, loader)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return model.NewFactors(vectors), nil
}

// ItemFactors embeds the item feature matrix of the dataset. Row i of the
// result is the embedding of item i.
func (m *Model) ItemFactors(ctx context.Context, ds *dataset.Dataset) (*model.Factors, error) {
	if !m.IsFitted() {
		return nil, errors.Trace(model.ErrNotFitted)
	}
	loader := dataset.NewDataLoader(dataset.NewItemFeatures(ds), m.batchSize)
	vectors, err := m.net.InferenceItems(ctx, loader)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return model.NewFactors(vectors), nil
}

// Clone returns a deep copy of the model. The copy shares no tensors with
// the original.
func (m *Model) Clone() *Model {
	clone := NewModel(m.Params.Copy())
	if m.net != nil {
		clone.net = m.net.Clone()
	}
	return clone
}
