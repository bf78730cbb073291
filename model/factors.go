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
	"github.com/gorse-io/dssm/common/floats"
	"github.com/gorse-io/dssm/common/heap"
)

// Factors is a matrix of embedding vectors, one row per entity, aligned with
// the row order of the feature matrix they were inferred from.
type Factors struct {
	matrix [][]float32
}

func NewFactors(matrix [][]float32) *Factors {
	return &Factors{matrix: matrix}
}

// Count returns the number of embedding vectors.
func (f *Factors) Count() int {
	return len(f.matrix)
}

// Dimension returns the size of each embedding vector.
func (f *Factors) Dimension() int {
	if len(f.matrix) == 0 {
		return 0
	}
	return len(f.matrix[0])
}

// Get returns the embedding vector of the i-th entity.
func (f *Factors) Get(i int) []float32 {
	return f.matrix[i]
}

// ToSlice returns the underlying matrix.
func (f *Factors) ToSlice() [][]float32 {
	return f.matrix
}

// Recommend returns the indices and scores of the top n embeddings by inner
// product with the query vector, in decreasing score order.
func (f *Factors) Recommend(query []float32, n int) ([]int32, []float32) {
	filter := heap.NewTopKFilter[int32, float32](n)
	for i, vector := range f.matrix {
		filter.Push(int32(i), floats.Dot(query, vector))
	}
	return filter.PopAll()
}
