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

package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/ident"
	"github.com/entitynet/replicore/pkg/seq"
)

func TestRemoteSpawnTransitionsAndEmits(t *testing.T) {
	r := NewRemote()
	obs, err := r.Receive(1, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, action.EventSpawn, obs[0].Kind)
	assert.Equal(t, RemoteSpawned, r.State())
}

func TestRemoteDuplicateSeqIsDropped(t *testing.T) {
	r := NewRemote()
	_, err := r.Receive(1, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)

	obs, err := r.Receive(1, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestRemoteStaleComponentRemoveDoesNotOverwriteInsert(t *testing.T) {
	r := NewRemote()
	_, err := r.Receive(1, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)

	obs, err := r.Receive(5, action.WireMessage{Tag: action.TagInsertComponent, Component: 9})
	require.NoError(t, err)
	assert.Len(t, obs, 1)

	// A later message for the same component at an earlier seq than 5 is
	// stale: it lands in the component backlog and is never applied.
	obs, err = r.Receive(3, action.WireMessage{Tag: action.TagRemoveComponent, Component: 9})
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.ElementsMatch(t, []ident.ComponentKind{9}, r.ExtractInsertedComponentKinds())
}

func TestRemoteGenerationGateDropsMessageBeforeSpawnSeq(t *testing.T) {
	r := NewRemote()
	_, err := r.Receive(100, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)

	obs, err := r.Receive(50, action.WireMessage{Tag: action.TagInsertComponent, Component: 1})
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Empty(t, r.ExtractInsertedComponentKinds())
}

func TestRemoteSpawnDespawnRaceCollapsesBufferedDuplicates(t *testing.T) {
	r := NewRemote()
	_, err := r.Receive(1, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)
	_, err = r.Receive(3, action.WireMessage{Tag: action.TagDespawn})
	require.NoError(t, err)
	require.Equal(t, RemoteDespawned, r.State())

	// Two more Despawns arrive while already Despawned: neither is a legal
	// transition, so both land in the backlog.
	_, err = r.Receive(6, action.WireMessage{Tag: action.TagDespawn})
	require.NoError(t, err)
	_, err = r.Receive(5, action.WireMessage{Tag: action.TagDespawn})
	require.NoError(t, err)
	require.Len(t, r.buffered, 2)

	// A fresh Spawn triggers the race-collapse, which keeps only the
	// newest buffered Despawn (seq 6) before draining it.
	obs, err := r.Receive(4, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)
	var kinds []action.EventKind
	for _, o := range obs {
		kinds = append(kinds, o.Kind)
	}
	assert.Contains(t, kinds, action.EventSpawn)
	assert.Contains(t, kinds, action.EventDespawn)
	assert.Equal(t, RemoteDespawned, r.State())
	assert.Empty(t, r.buffered)
}

func TestRemoteAuthorityUpdateEmitsGrant(t *testing.T) {
	r := NewRemote()
	_, err := r.Receive(1, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)
	_, err = r.Receive(2, action.WireMessage{Tag: action.TagPublishEntity})
	require.NoError(t, err)
	_, err = r.Receive(3, action.WireMessage{Tag: action.TagEnableDelegation})
	require.NoError(t, err)
	_, err = r.Receive(4, action.WireMessage{Tag: action.TagRequestAuthority})
	require.NoError(t, err)

	obs, err := r.Receive(5, action.WireMessage{Tag: action.TagUpdateAuthority, Status: action.AuthStatusGranted})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, action.EventAuthGrant, obs[0].Kind)
}

func TestRemoteGuardBandNearWrapSetAndClearedAcrossWrap(t *testing.T) {
	r := NewRemote()
	_, err := r.Receive(seq.FlushThreshold, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)
	assert.True(t, r.nearWrap)

	_, err = r.Receive(65535, action.WireMessage{Tag: action.TagNoop})
	require.NoError(t, err)
	assert.True(t, r.nearWrap)

	_, err = r.Receive(0, action.WireMessage{Tag: action.TagNoop})
	require.NoError(t, err)
	assert.False(t, r.nearWrap, "a delivery below FlushThreshold after the wrap must clear near_wrap")
}

func TestRemoteForceDrainAllResolvesOutstandingBacklog(t *testing.T) {
	r := NewRemote()
	_, err := r.Receive(1, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)

	_, err = r.Receive(9, action.WireMessage{Tag: action.TagInsertComponent, Component: 1})
	require.NoError(t, err)
	// Stale relative to the component's own last-applied seq: lands in the
	// per-component backlog rather than being applied.
	_, err = r.Receive(3, action.WireMessage{Tag: action.TagInsertComponent, Component: 1})
	require.NoError(t, err)

	r.ForceDrainAll()
	assert.ElementsMatch(t, []ident.ComponentKind{1}, r.ExtractInsertedComponentKinds())
}

func TestNewRemoteDelegatedBootstrapsSpawnedWithComponents(t *testing.T) {
	r := NewRemoteDelegated([]ident.ComponentKind{2, 3}, action.AuthStatusAvailable, 40)
	assert.Equal(t, RemoteSpawned, r.State())
	assert.ElementsMatch(t, []ident.ComponentKind{2, 3}, r.ExtractInsertedComponentKinds())
	assert.Equal(t, action.AuthStatusAvailable, r.Auth().Status())
}
