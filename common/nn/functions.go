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

package nn

// distanceEps keeps the gradient of the euclidean distance finite when two
// vectors coincide.
const distanceEps = 1e-6

// MeanSquareError returns the mean squared error between two tensors.
func MeanSquareError(x, y *Tensor) *Tensor {
	return Mean(Square(Sub(x, y)))
}

// PairwiseDistance returns the row-wise euclidean distance between two
// tensors of shape (batchSize, n).
func PairwiseDistance(x, y *Tensor) *Tensor {
	diff := Add(Sub(x, y), NewScalar(distanceEps))
	return Sqrt(Sum(Square(diff), 1))
}

// TripletMarginLoss returns the mean triplet margin loss over a batch of
// (anchor, positive, negative) embeddings of shape (batchSize, n):
//
//	mean(max(d(anchor, positive) - d(anchor, negative) + margin, 0))
func TripletMarginLoss(anchor, positive, negative *Tensor, margin float32) *Tensor {
	dPos := PairwiseDistance(anchor, positive)
	dNeg := PairwiseDistance(anchor, negative)
	return Mean(ReLU(Add(Sub(dPos, dNeg), NewScalar(margin))))
}
