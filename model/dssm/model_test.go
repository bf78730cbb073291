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
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorse-io/dssm/common/floats"
	"github.com/gorse-io/dssm/dataset"
	"github.com/gorse-io/dssm/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newParityDataset builds a dataset where users interact with items of the
// same parity. Features are one-hot, so the towers can separate the two
// groups perfectly.
func newParityDataset(t *testing.T, numUsers, numItems int) *dataset.Dataset {
	oneHot := func(n int) [][]float32 {
		rows := make([][]float32, n)
		for i := range rows {
			rows[i] = make([]float32, n)
			rows[i][i] = 1
		}
		return rows
	}
	userFeatures, err := dataset.NewDenseMatrix(oneHot(numUsers))
	require.NoError(t, err)
	itemFeatures, err := dataset.NewDenseMatrix(oneHot(numItems))
	require.NoError(t, err)
	var interactions [][]int32
	for u := 0; u < numUsers; u++ {
		for i := 0; i < numItems; i++ {
			if u%2 == i%2 {
				interactions = append(interactions, []int32{int32(u), int32(i)})
			}
		}
	}
	ds, err := dataset.NewDataset(userFeatures, itemFeatures, interactions)
	require.NoError(t, err)
	return ds
}

func TestModelFit(t *testing.T) {
	ds := newParityDataset(t, 8, 8)
	m := NewModel(model.Params{
		model.NFactors:    8,
		model.NEpochs:     64,
		model.BatchSize:   8,
		model.RandomState: 42,
	})
	score, err := m.Fit(context.Background(), ds, ds, model.NewFitConfig().SetVerbose(16))
	require.NoError(t, err)
	assert.True(t, m.IsFitted())
	assert.False(t, math32.IsNaN(score.Loss))
	assert.GreaterOrEqual(t, score.Loss, float32(0))
	// The groups are separable, so the loss must fall below the margin.
	assert.Less(t, score.Loss, float32(0.4))

	userFactors, err := m.UserFactors(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 8, userFactors.Count())
	assert.Equal(t, 8, userFactors.Dimension())
	itemFactors, err := m.ItemFactors(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 8, itemFactors.Count())
	assert.Equal(t, 8, itemFactors.Dimension())

	// Factor inference is idempotent.
	again, err := m.UserFactors(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, userFactors.ToSlice(), again.ToSlice())
}

func TestModelNotFitted(t *testing.T) {
	ds := newParityDataset(t, 4, 4)
	m := NewModel(nil)
	assert.False(t, m.IsFitted())
	_, err := m.UserFactors(context.Background(), ds)
	assert.ErrorIs(t, err, model.ErrNotFitted)
	_, err = m.ItemFactors(context.Background(), ds)
	assert.ErrorIs(t, err, model.ErrNotFitted)
}

func TestModelMissingFeatures(t *testing.T) {
	userFeatures, err := dataset.NewMatrix(4, 0, nil, nil, nil)
	require.NoError(t, err)
	itemFeatures, err := dataset.NewMatrix(4, 2, nil, nil, nil)
	require.NoError(t, err)
	ds, err := dataset.NewDataset(userFeatures, itemFeatures, nil)
	require.NoError(t, err)
	m := NewModel(nil)
	_, err = m.Fit(context.Background(), ds, nil, nil)
	assert.True(t, errors.IsNotValid(err))
	assert.False(t, m.IsFitted())
}

func TestModelDeterminism(t *testing.T) {
	ds := newParityDataset(t, 8, 8)
	params := model.Params{
		model.NFactors:    4,
		model.NEpochs:     4,
		model.BatchSize:   8,
		model.RandomState: 7,
	}
	factors := make([]*model.Factors, 2)
	for i := range factors {
		m := NewModel(params)
		_, err := m.Fit(context.Background(), ds, nil, model.NewFitConfig().SetJobs(1))
		require.NoError(t, err)
		factors[i], err = m.UserFactors(context.Background(), ds)
		require.NoError(t, err)
	}
	assert.Equal(t, factors[0].ToSlice(), factors[1].ToSlice())
}

func TestModelClone(t *testing.T) {
	ds := newParityDataset(t, 8, 8)
	m := NewModel(model.Params{
		model.NFactors:    4,
		model.NEpochs:     4,
		model.BatchSize:   8,
		model.RandomState: 42,
	})
	_, err := m.Fit(context.Background(), ds, nil, nil)
	require.NoError(t, err)
	factors, err := m.UserFactors(context.Background(), ds)
	require.NoError(t, err)

	clone := m.Clone()
	assert.True(t, clone.IsFitted())
	cloneFactors, err := clone.UserFactors(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, factors.ToSlice(), cloneFactors.ToSlice())

	// Refitting the clone leaves the original untouched.
	other := newParityDataset(t, 6, 6)
	_, err = clone.Fit(context.Background(), other, nil, nil)
	require.NoError(t, err)
	after, err := m.UserFactors(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, factors.ToSlice(), after.ToSlice())
}

func TestModelSeparation(t *testing.T) {
	ds := newParityDataset(t, 8, 8)
	m := NewModel(model.Params{
		model.NFactors:    8,
		model.NEpochs:     64,
		model.BatchSize:   8,
		model.RandomState: 42,
	})
	_, err := m.Fit(context.Background(), ds, nil, model.NewFitConfig().SetVerbose(16))
	require.NoError(t, err)
	userFactors, err := m.UserFactors(context.Background(), ds)
	require.NoError(t, err)
	itemFactors, err := m.ItemFactors(context.Background(), ds)
	require.NoError(t, err)
	// Interacted items end up closer to the user than the others.
	var positive, negative float32
	for u := 0; u < userFactors.Count(); u++ {
		for i := 0; i < itemFactors.Count(); i++ {
			distance := floats.Euclidean(userFactors.Get(u), itemFactors.Get(i))
			if i%2 == u%2 {
				positive += distance
			} else {
				negative += distance
			}
		}
	}
	assert.Less(t, positive, negative)
}
