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

package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitynet/replicore/pkg/seq"
)

func TestInsertInOrderDeliversImmediately(t *testing.T) {
	r := New[string]()
	d, err := r.Insert(0, "a")
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, "a", d[0].Payload)

	d, err = r.Insert(1, "b")
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, "b", d[0].Payload)
}

func TestInsertOutOfOrderBuffersThenDrainsContiguousRun(t *testing.T) {
	r := New[string]()
	d, err := r.Insert(2, "c")
	require.NoError(t, err)
	assert.Empty(t, d)

	d, err = r.Insert(1, "b")
	require.NoError(t, err)
	assert.Empty(t, d)

	d, err = r.Insert(0, "a")
	require.NoError(t, err)
	require.Len(t, d, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{d[0].Payload, d[1].Payload, d[2].Payload})
	assert.Equal(t, 0, r.BacklogLen())
}

func TestInsertDuplicateIsDroppedSilently(t *testing.T) {
	r := New[string]()
	_, err := r.Insert(0, "a")
	require.NoError(t, err)

	d, err := r.Insert(0, "a-again")
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestInsertDuplicateBufferedEntryIsDroppedSilently(t *testing.T) {
	r := New[string]()
	_, err := r.Insert(5, "c")
	require.NoError(t, err)

	d, err := r.Insert(5, "c-again")
	require.NoError(t, err)
	assert.Empty(t, d)
	assert.Equal(t, 1, r.BacklogLen())
}

func TestInsertBacklogOverflowIsFatal(t *testing.T) {
	r := New[int]()
	_, err := r.Insert(0, 0)
	require.NoError(t, err)

	// Fill the backlog to its cap, leaving exactly one in-window seq
	// unbuffered (maxBacklog is one below the window width - see its
	// doc comment in receiver.go).
	for i := 0; i < seq.MaxInFlight-1; i++ {
		s := seq.Seq(2 + i)
		_, err := r.Insert(s, int(s))
		require.NoError(t, err)
	}

	_, err = r.Insert(seq.Seq(2+seq.MaxInFlight-1), 0)
	assert.ErrorIs(t, err, ErrBacklogFull)
}

func TestWrapAroundContinuesDelivering(t *testing.T) {
	r := New[int]()
	// Advance the receiver from its initial expected seq of 0 up to 65534,
	// so the inserts below are in order and actually cross the wrap.
	for i := 0; i < 65534; i++ {
		_, err := r.Insert(seq.Seq(i), 0)
		require.NoError(t, err)
	}
	d, err := r.Insert(65534, 1)
	require.NoError(t, err)
	require.Len(t, d, 1)
	d, err = r.Insert(65535, 2)
	require.NoError(t, err)
	require.Len(t, d, 1)

	d, err = r.Insert(0, 3)
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, 3, d[0].Payload)
	assert.Equal(t, seq.Seq(1), r.Expected())
}
