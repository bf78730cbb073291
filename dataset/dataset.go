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
	"github.com/gorse-io/dssm/common/sets"
	"github.com/juju/errors"
)

// Dataset holds user features, item features and deduplicated implicit
// interactions between them.
type Dataset struct {
	userFeatures *Matrix
	itemFeatures *Matrix
	interactions [][]int32
	userFeedback [][]int32
}

// NewDataset creates a dataset. Interactions are (userIndex, itemIndex)
// pairs; duplicates are dropped and the remaining pairs are sorted by user
// and then by item.
func NewDataset(userFeatures, itemFeatures *Matrix, interactions [][]int32) (*Dataset, error) {
	if userFeatures == nil {
		return nil, errors.NotValidf("dataset without user features")
	}
	if itemFeatures == nil {
		return nil, errors.NotValidf("dataset without item features")
	}
	unique, err := sets.UniquePairs(interactions)
	if err != nil {
		return nil, errors.Trace(err)
	}
	d := &Dataset{
		userFeatures: userFeatures,
		itemFeatures: itemFeatures,
		interactions: unique,
		userFeedback: make([][]int32, userFeatures.NumRows()),
	}
	for _, pair := range unique {
		if int(pair[0]) >= userFeatures.NumRows() {
			return nil, errors.NotValidf("user index %d in a dataset with %d users", pair[0], userFeatures.NumRows())
		}
		if int(pair[1]) >= itemFeatures.NumRows() {
			return nil, errors.NotValidf("item index %d in a dataset with %d items", pair[1], itemFeatures.NumRows())
		}
		d.userFeedback[pair[0]] = append(d.userFeedback[pair[0]], pair[1])
	}
	return d, nil
}

func (d *Dataset) CountUsers() int {
	return d.userFeatures.NumRows()
}

func (d *Dataset) CountItems() int {
	return d.itemFeatures.NumRows()
}

func (d *Dataset) CountInteractions() int {
	return len(d.interactions)
}

func (d *Dataset) GetUserFeatures() *Matrix {
	return d.userFeatures
}

func (d *Dataset) GetItemFeatures() *Matrix {
	return d.itemFeatures
}

// GetInteractions returns the deduplicated interactions sorted by user and
// then by item.
func (d *Dataset) GetInteractions() [][]int32 {
	return d.interactions
}

// GetUserFeedback returns the positive items of each user in ascending
// order.
func (d *Dataset) GetUserFeedback() [][]int32 {
	return d.userFeedback
}
