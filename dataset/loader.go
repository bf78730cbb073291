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

package dataset

import (
	"context"
	"runtime"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/dssm/base"
	"github.com/gorse-io/dssm/common/nn"
	"github.com/gorse-io/dssm/common/parallel"
	"github.com/juju/errors"
)

// Source yields batches of tensors for selected sample indices.
type Source interface {
	// Len returns the number of samples.
	Len() int
	// Batch converts the samples at the given indices into tensors. Rows of
	// each tensor follow the order of indices. Batch fails only when the
	// context is canceled.
	Batch(ctx context.Context, indices []int, nWorkers int) ([]*nn.Tensor, error)
}

// Triples samples (user, positive item, negative item) feature triples, one
// per interaction. The negative item is drawn uniformly from the items the
// user never interacted with.
type Triples struct {
	dataset *Dataset
	exclude []mapset.Set[int32]
	rng     base.RandomGenerator
}

func NewTriples(dataset *Dataset, seed int64) *Triples {
	exclude := make([]mapset.Set[int32], dataset.CountUsers())
	parallel.ForEach(dataset.GetUserFeedback(), runtime.NumCPU(), func(u int, feedback []int32) {
		exclude[u] = mapset.NewSet(feedback...)
	})
	return &Triples{
		dataset: dataset,
		exclude: exclude,
		rng:     base.NewRandomGenerator(seed),
	}
}

func (t *Triples) Len() int {
	return t.dataset.CountInteractions()
}

func (t *Triples) Batch(ctx context.Context, indices []int, nWorkers int) ([]*nn.Tensor, error) {
	userDim := t.dataset.GetUserFeatures().NumColumns()
	itemDim := t.dataset.GetItemFeatures().NumColumns()
	users := make([]float32, len(indices)*userDim)
	positives := make([]float32, len(indices)*itemDim)
	negatives := make([]float32, len(indices)*itemDim)
	// Negatives are sampled serially to keep sampling deterministic for a
	// given seed regardless of the worker count.
	sampled := make([]int32, len(indices))
	for i, index := range indices {
		userIndex := t.dataset.GetInteractions()[index][0]
		sampled[i] = t.sampleNegative(userIndex)
	}
	err := parallel.Parallel(ctx, len(indices), nWorkers, func(_, i int) error {
		pair := t.dataset.GetInteractions()[indices[i]]
		t.dataset.GetUserFeatures().RowTo(int(pair[0]), users[i*userDim:(i+1)*userDim])
		t.dataset.GetItemFeatures().RowTo(int(pair[1]), positives[i*itemDim:(i+1)*itemDim])
		t.dataset.GetItemFeatures().RowTo(int(sampled[i]), negatives[i*itemDim:(i+1)*itemDim])
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return []*nn.Tensor{
		nn.NewTensor(users, len(indices), userDim),
		nn.NewTensor(positives, len(indices), itemDim),
		nn.NewTensor(negatives, len(indices), itemDim),
	}, nil
}

func (t *Triples) sampleNegative(userIndex int32) int32 {
	numItems := int32(t.dataset.CountItems())
	if int32(t.exclude[userIndex].Cardinality()) >= numItems {
		// Every item is positive for this user.
		return t.rng.Int31n(numItems)
	}
	for {
		itemIndex := t.rng.Int31n(numItems)
		if !t.exclude[userIndex].Contains(itemIndex) {
			return itemIndex
		}
	}
}

// Features yields rows of a single feature matrix, for factor inference.
type Features struct {
	matrix *Matrix
}

func NewUserFeatures(dataset *Dataset) *Features {
	return &Features{matrix: dataset.GetUserFeatures()}
}

func NewItemFeatures(dataset *Dataset) *Features {
	return &Features{matrix: dataset.GetItemFeatures()}
}

func (f *Features) Len() int {
	return f.matrix.NumRows()
}

func (f *Features) Batch(ctx context.Context, indices []int, nWorkers int) ([]*nn.Tensor, error) {
	dim := f.matrix.NumColumns()
	rows := make([]float32, len(indices)*dim)
	err := parallel.Parallel(ctx, len(indices), nWorkers, func(_, i int) error {
		f.matrix.RowTo(indices[i], rows[i*dim:(i+1)*dim])
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return []*nn.Tensor{nn.NewTensor(rows, len(indices), dim)}, nil
}

// DataLoader iterates a source in batches:
//
//	loader.Reset()
//	for loader.Next(ctx) {
//		batch := loader.Batch()
//	}
//	if err := loader.Error(); err != nil { ... }
//
// Next returns false when the pass is over or the context is canceled; the
// caller tells the two apart through Error. With shuffling enabled each
// Reset draws a new permutation from the seeded generator; otherwise samples
// keep their source order.
type DataLoader struct {
	source    Source
	batchSize int
	nWorkers  int
	shuffle   bool
	rng       base.RandomGenerator
	order     []int
	cursor    int
	batch     []*nn.Tensor
	err       error
}

func NewDataLoader(source Source, batchSize int) *DataLoader {
	if batchSize < 1 {
		panic("dataset: batch size must be positive")
	}
	return &DataLoader{
		source:    source,
		batchSize: batchSize,
		nWorkers:  1,
	}
}

// SetShuffle enables shuffling with a seeded random generator.
func (l *DataLoader) SetShuffle(seed int64) *DataLoader {
	l.shuffle = true
	l.rng = base.NewRandomGenerator(seed)
	return l
}

// SetJobs sets the number of workers used to densify batches.
func (l *DataLoader) SetJobs(nWorkers int) *DataLoader {
	l.nWorkers = nWorkers
	return l
}

// BatchCount returns the number of batches per pass.
func (l *DataLoader) BatchCount() int {
	return (l.source.Len() + l.batchSize - 1) / l.batchSize
}

// Reset rewinds the loader and, if shuffling is enabled, permutes the order.
func (l *DataLoader) Reset() {
	if l.order == nil {
		l.order = make([]int, l.source.Len())
		for i := range l.order {
			l.order[i] = i
		}
	}
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.cursor = 0
	l.batch = nil
	l.err = nil
}

// Next advances to the next batch. It returns false when the pass is over or
// the context is canceled.
func (l *DataLoader) Next(ctx context.Context) bool {
	if l.order == nil {
		l.Reset()
	}
	if l.err != nil || l.cursor >= len(l.order) {
		return false
	}
	end := l.cursor + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	l.batch, l.err = l.source.Batch(ctx, l.order[l.cursor:end], l.nWorkers)
	if l.err != nil {
		return false
	}
	l.cursor = end
	return true
}

// Batch returns the batch selected by the last call to Next.
func (l *DataLoader) Batch() []*nn.Tensor {
	return l.batch
}

// Error returns the error that stopped the last pass, if any.
func (l *DataLoader) Error() error {
	return l.err
}
