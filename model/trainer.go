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
	"context"
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/dssm/base/log"
	"github.com/gorse-io/dssm/base/progress"
	"github.com/gorse-io/dssm/dataset"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Score is the result of fitting a model.
type Score struct {
	Loss           float32
	ValidationLoss float32
}

type FitConfig struct {
	Jobs    int
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

// Trainer runs the epoch loop of a Module: zero gradients, backward, step,
// and periodic validation.
type Trainer struct {
	nEpochs int
}

func NewTrainer(nEpochs int) *Trainer {
	return &Trainer{nEpochs: nEpochs}
}

// Fit trains the module on the train loader. The validation loader is
// optional and never updates parameters. If the loss turns NaN, training
// stops and the module keeps its last finite state.
func (t *Trainer) Fit(ctx context.Context, module Module, trainSet, validateSet *dataset.DataLoader, config *FitConfig) Score {
	if config == nil {
		config = NewFitConfig()
	}
	optimizer := module.ConfigureOptimizer()
	var score Score
	_, span := progress.Start(ctx, "Trainer.Fit", t.nEpochs)
	for epoch := 1; epoch <= t.nEpochs; epoch++ {
		fitStart := time.Now()
		var losses []float64
		trainSet.Reset()
		for trainSet.Next(ctx) {
			optimizer.ZeroGrad()
			loss := module.TrainingStep(trainSet.Batch())
			if math32.IsNaN(loss.Data()[0]) {
				log.Logger().Warn("model diverged", zap.Int("epoch", epoch))
				span.End()
				return score
			}
			loss.Backward()
			optimizer.Step()
			losses = append(losses, float64(loss.Data()[0]))
		}
		if err := trainSet.Error(); err != nil {
			log.Logger().Warn("fit interrupted", zap.Int("epoch", epoch), zap.Error(err))
			span.Fail(err)
			return score
		}
		fitTime := time.Since(fitStart)
		score.Loss = float32(stat.Mean(losses, nil))
		if epoch%config.Verbose == 0 || epoch == t.nEpochs {
			score.ValidationLoss = t.validate(ctx, module, validateSet)
			log.Logger().Info(fmt.Sprintf("fit %v/%v", epoch, t.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.Float32("loss", score.Loss),
				zap.Float32("val_loss", score.ValidationLoss))
		}
		span.Add(1)
	}
	span.End()
	return score
}

func (t *Trainer) validate(ctx context.Context, module Module, validateSet *dataset.DataLoader) float32 {
	if validateSet == nil {
		return 0
	}
	var losses []float64
	validateSet.Reset()
	for validateSet.Next(ctx) {
		losses = append(losses, float64(module.ValidationStep(validateSet.Batch())))
	}
	if len(losses) == 0 {
		return 0
	}
	return float32(stat.Mean(losses, nil))
}
