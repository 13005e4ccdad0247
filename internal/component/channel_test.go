/*
Copyright 2024 The Entitynet Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package component

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entitynet/replicore/pkg/seq"
)

func TestApplyInOrder(t *testing.T) {
	c := New()
	assert.True(t, c.Apply(1, OpInsert))
	assert.True(t, c.IsInserted())
	assert.True(t, c.Apply(2, OpRemove))
	assert.False(t, c.IsInserted())
}

func TestApplyOutOfOrderIsRejectedNotApplied(t *testing.T) {
	c := New()
	assert.True(t, c.Apply(5, OpInsert))
	assert.False(t, c.Apply(3, OpRemove))
	assert.True(t, c.IsInserted(), "stale out-of-order op must not overwrite terminal state")
}

func TestBufferAndDrainReadyAppliesInSeqOrder(t *testing.T) {
	c := New()
	c.Buffer(3, OpRemove)
	c.Buffer(1, OpInsert)
	c.Buffer(2, OpRemove)

	c.DrainReady()
	assert.Equal(t, 0, c.BacklogLen())
	assert.False(t, c.IsInserted())
}

func TestDrainReadyIgnoresEntriesNotYetEligible(t *testing.T) {
	c := New()
	assert.True(t, c.Apply(10, OpInsert))
	c.Buffer(3, OpRemove) // stale relative to lastSeq=10, never becomes eligible

	c.DrainReady()
	assert.Equal(t, 1, c.BacklogLen())
	assert.True(t, c.IsInserted())
}

func TestPurgeBelowDropsStaleBacklogEntries(t *testing.T) {
	c := New()
	c.Buffer(10, OpInsert)
	c.Buffer(seq.FlushThreshold+5, OpRemove)

	c.PurgeBelow(seq.FlushThreshold)
	assert.Equal(t, 1, c.BacklogLen())
}

func TestForceDrainAppliesAllRegardlessOfPosition(t *testing.T) {
	c := New()
	c.Buffer(7, OpInsert)
	c.Buffer(2, OpRemove)
	c.Buffer(9, OpRemove)

	c.ForceDrain()
	assert.Equal(t, 0, c.BacklogLen())
	assert.False(t, c.IsInserted())
}

func TestForceSetOverwritesDirectly(t *testing.T) {
	c := New()
	c.ForceSet(true)
	assert.True(t, c.IsInserted())
}
