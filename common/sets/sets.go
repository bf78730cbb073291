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

// Package sets provides vectorized set operations over integer matrices used
// to prepare sparse feature and interaction matrices.
package sets

import (
	"encoding/binary"
	"sort"

	"github.com/bits-and-blooms/bitset"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"golang.org/x/exp/constraints"
)

// rowKey packs a row of integers into one fixed-width byte string so rows can
// be compared and sorted as single opaque keys instead of element by element.
func rowKey[T constraints.Integer](row []T) string {
	buf := make([]byte, 8*len(row))
	for i, v := range row {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(int64(v)))
	}
	return string(buf)
}

// UniqueRows returns the unique rows of an integer matrix and, for every
// input row, the index of its row in the returned matrix. Rows are compared
// as opaque fixed-width binary keys, turning a multi-column sort into a
// single-key sort. The order of the returned rows follows the byte keys and
// is deterministic, but is not guaranteed to be the numeric lexicographic
// order of the raw rows.
func UniqueRows[T constraints.Integer](matrix [][]T) ([][]T, []int32, error) {
	if len(matrix) == 0 {
		return [][]T{}, []int32{}, nil
	}
	width := len(matrix[0])
	for _, row := range matrix {
		if len(row) != width {
			return nil, nil, errors.NotValidf("ragged matrix: row of length %d in matrix of width %d", len(row), width)
		}
	}
	keys := make([]string, len(matrix))
	for i, row := range matrix {
		keys[i] = rowKey(row)
	}
	order := make([]int, len(matrix))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return keys[order[i]] < keys[order[j]]
	})
	unique := make([][]T, 0)
	inverse := make([]int32, len(matrix))
	for i, index := range order {
		if i == 0 || keys[index] != keys[order[i-1]] {
			unique = append(unique, matrix[index])
		}
		inverse[index] = int32(len(unique) - 1)
	}
	return unique, inverse, nil
}

// UniquePairs returns the unique rows of an integer matrix with exactly two
// columns, sorted by the first column and then by the second. Pairs are
// deduplicated through per-row bitmaps indexed by the second column and read
// back in row-major order, so no explicit sort is performed. Memory scales
// with the range of ids, not with the number of input rows. An empty matrix
// is returned unchanged.
func UniquePairs[T constraints.Integer](matrix [][]T) ([][]T, error) {
	if len(matrix) == 0 {
		return matrix, nil
	}
	var maxRow T
	for _, row := range matrix {
		if len(row) != 2 {
			return nil, errors.NotValidf("matrix must have 2 columns, got %d", len(row))
		}
		if row[0] < 0 || row[1] < 0 {
			return nil, errors.NotValidf("negative id in pair (%d, %d)", int64(row[0]), int64(row[1]))
		}
		if row[0] > maxRow {
			maxRow = row[0]
		}
	}
	bitmaps := make([]*bitset.BitSet, int(maxRow)+1)
	count := 0
	for _, row := range matrix {
		if bitmaps[row[0]] == nil {
			bitmaps[row[0]] = bitset.New(64)
		}
		if !bitmaps[row[0]].Test(uint(row[1])) {
			bitmaps[row[0]].Set(uint(row[1]))
			count++
		}
	}
	unique := make([][]T, 0, count)
	for r, bitmap := range bitmaps {
		if bitmap == nil {
			continue
		}
		for c, ok := bitmap.NextSet(0); ok; c, ok = bitmap.NextSet(c + 1) {
			unique = append(unique, []T{T(r), T(c)})
		}
	}
	return unique, nil
}

// IsIn reports, for each element, whether it occurs in candidates. The
// candidate set is hashed once, so the cost is O(len(elements) +
// len(candidates)) regardless of the element type.
func IsIn[T comparable](elements, candidates []T) []bool {
	set := mapset.NewSetWithSize[T](len(candidates))
	for _, c := range candidates {
		set.Add(c)
	}
	result := make([]bool, len(elements))
	for i, e := range elements {
		result[i] = set.ContainsOne(e)
	}
	return result
}

// IsInSorted reports, for each element, whether it occurs in
// sortedCandidates, which must be sorted in ascending order. Membership is
// decided from the left and right binary-search insertion points, so each
// element costs two O(log n) searches. If sortedCandidates is not sorted the
// result is silently wrong; no validation is performed. When invert is true
// the result is negated without a second pass.
func IsInSorted[T constraints.Ordered](elements, sortedCandidates []T, invert bool) []bool {
	result := make([]bool, len(elements))
	for i, e := range elements {
		left := sort.Search(len(sortedCandidates), func(j int) bool {
			return sortedCandidates[j] >= e
		})
		right := sort.Search(len(sortedCandidates), func(j int) bool {
			return sortedCandidates[j] > e
		})
		result[i] = (right == left+1) != invert
	}
	return result
}
