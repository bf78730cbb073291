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
	"github.com/juju/errors"
)

// Matrix is a sparse float32 feature matrix in compressed row format.
type Matrix struct {
	indptr  []int
	indices []int32
	values  []float32
	columns int
}

// NewMatrix creates a sparse matrix from triplets. Entries keep their input
// order within each row.
func NewMatrix(rows, columns int, rowIndices, colIndices []int32, values []float32) (*Matrix, error) {
	if rows < 0 || columns < 0 {
		return nil, errors.NotValidf("matrix shape (%d, %d)", rows, columns)
	}
	if len(rowIndices) != len(colIndices) || len(rowIndices) != len(values) {
		return nil, errors.NotValidf("triplet arrays of lengths %d, %d and %d",
			len(rowIndices), len(colIndices), len(values))
	}
	m := &Matrix{
		indptr:  make([]int, rows+1),
		indices: make([]int32, len(colIndices)),
		values:  make([]float32, len(values)),
		columns: columns,
	}
	for i := range rowIndices {
		if rowIndices[i] < 0 || int(rowIndices[i]) >= rows {
			return nil, errors.NotValidf("row index %d in a matrix with %d rows", rowIndices[i], rows)
		}
		if colIndices[i] < 0 || int(colIndices[i]) >= columns {
			return nil, errors.NotValidf("column index %d in a matrix with %d columns", colIndices[i], columns)
		}
		m.indptr[rowIndices[i]+1]++
	}
	for i := 1; i <= rows; i++ {
		m.indptr[i] += m.indptr[i-1]
	}
	cursor := make([]int, rows)
	for i := range rowIndices {
		r := rowIndices[i]
		offset := m.indptr[r] + cursor[r]
		m.indices[offset] = colIndices[i]
		m.values[offset] = values[i]
		cursor[r]++
	}
	return m, nil
}

// NewDenseMatrix creates a sparse matrix from dense rows, keeping non-zero
// entries only.
func NewDenseMatrix(rows [][]float32) (*Matrix, error) {
	columns := 0
	if len(rows) > 0 {
		columns = len(rows[0])
	}
	m := &Matrix{
		indptr:  make([]int, len(rows)+1),
		columns: columns,
	}
	for i, row := range rows {
		if len(row) != columns {
			return nil, errors.NotValidf("row %d of width %d in a matrix with %d columns", i, len(row), columns)
		}
		for j, v := range row {
			if v != 0 {
				m.indices = append(m.indices, int32(j))
				m.values = append(m.values, v)
			}
		}
		m.indptr[i+1] = len(m.indices)
	}
	return m, nil
}

func (m *Matrix) NumRows() int {
	return len(m.indptr) - 1
}

func (m *Matrix) NumColumns() int {
	return m.columns
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	return len(m.values)
}

// Row returns the i-th row as a dense vector.
func (m *Matrix) Row(i int) []float32 {
	row := make([]float32, m.columns)
	m.RowTo(i, row)
	return row
}

// RowTo writes the i-th row into dst, which must have NumColumns elements.
func (m *Matrix) RowTo(i int, dst []float32) {
	if len(dst) != m.columns {
		panic("dataset: destination length does not match the number of columns")
	}
	for j := range dst {
		dst[j] = 0
	}
	for j := m.indptr[i]; j < m.indptr[i+1]; j++ {
		dst[m.indices[j]] += m.values[j]
	}
}
