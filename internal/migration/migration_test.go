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

package migration

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitynet/replicore/internal/authority"
	"github.com/entitynet/replicore/internal/engine"
	"github.com/entitynet/replicore/internal/sentcmd"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/entitymap"
	"github.com/entitynet/replicore/pkg/ident"
)

func TestHostToRemoteMovesEntityAndInstallsRedirect(t *testing.T) {
	entities := entitymap.New[string]()
	redirects := entitymap.NewRedirectTable()
	sent := sentcmd.New()
	hostEngine := engine.NewHost(logr.Discard(), nil)
	remoteEngine := engine.NewRemote(logr.Discard(), nil)

	hostCh, err := hostEngine.Spawn(42)
	require.NoError(t, err)
	require.NoError(t, hostCh.Enqueue(action.WireMessage{Tag: action.TagPublishEntity}))

	require.NoError(t, entities.Insert("player-1", ident.Host(42)))

	now := time.Unix(1000, 0)
	res, err := HostToRemote[string](now, "player-1", entities, redirects, sent, hostEngine, remoteEngine,
		100, 7, action.AuthStatusAvailable, logr.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, ident.Remote(100), res.NewID)

	_, stillHosted := hostEngine.Get(42)
	assert.False(t, stillHosted)

	remoteCh, ok := remoteEngine.Get(100)
	require.True(t, ok)
	assert.Equal(t, action.AuthStatusAvailable, remoteCh.Auth().Status())

	newLocal, ok := entities.LocalFor("player-1")
	require.True(t, ok)
	assert.Equal(t, ident.Remote(100), newLocal)

	resolved := redirects.Resolve(ident.Host(42), now.Add(time.Second))
	assert.Equal(t, ident.Remote(100), resolved)
}

func TestHostToRemoteRejectsWrongDirection(t *testing.T) {
	entities := entitymap.New[string]()
	redirects := entitymap.NewRedirectTable()
	sent := sentcmd.New()
	hostEngine := engine.NewHost(logr.Discard(), nil)
	remoteEngine := engine.NewRemote(logr.Discard(), nil)

	require.NoError(t, entities.Insert("player-1", ident.Remote(5)))

	_, err := HostToRemote[string](time.Unix(0, 0), "player-1", entities, redirects, sent, hostEngine, remoteEngine,
		100, 0, action.AuthStatusAvailable, logr.Discard(), nil)
	assert.ErrorIs(t, err, ErrWrongDirection)
}

func TestRemoteToHostRetainsValidCommandAndDropsInvalidOne(t *testing.T) {
	entities := entitymap.New[string]()
	redirects := entitymap.NewRedirectTable()
	sent := sentcmd.New()
	remoteEngine := engine.NewRemote(logr.Discard(), nil)
	hostEngine := engine.NewHost(logr.Discard(), nil)

	_, err := remoteEngine.HandleMessage(1, 7, action.WireMessage{Tag: action.TagSpawn})
	require.NoError(t, err)
	remoteCh, ok := remoteEngine.Get(7)
	require.True(t, ok)
	// Bring the remote channel's authority into a state matching scenario
	// 3: Delegated/Available, about to be Granted by this migration. Both
	// commands are legal to enqueue right now; RequestAuthority stops
	// being legal once status flips to Granted, MigrateResponse stays
	// legal regardless of status.
	remoteCh.Auth().ForceSync(authority.StateDelegated, action.AuthStatusAvailable)
	require.NoError(t, remoteCh.EnqueueCommand(action.WireMessage{Tag: action.TagMigrateResponse}))
	require.NoError(t, remoteCh.EnqueueCommand(action.WireMessage{Tag: action.TagRequestAuthority}))

	require.NoError(t, entities.Insert("player-1", ident.Remote(7)))

	res, err := RemoteToHost[string](time.Unix(0, 0), "player-1", entities, redirects, sent, remoteEngine, hostEngine,
		55, action.AuthStatusGranted, logr.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, ident.Host(55), res.NewID)
	require.Len(t, res.Obs, 1)
	assert.Equal(t, action.EventAuthGrant, res.Obs[0].Kind)

	hostCh, ok := hostEngine.Get(55)
	require.True(t, ok)
	assert.Equal(t, action.AuthStatusGranted, hostCh.Auth().Status())

	// MigrateResponse validates regardless of status and is retained into
	// the host FIFO; the now-stale RequestAuthority (legal only while
	// Available) does not survive the flip to Granted and is dropped.
	cmds := hostCh.ExtractCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, action.TagMigrateResponse, cmds[0].Tag)
}
