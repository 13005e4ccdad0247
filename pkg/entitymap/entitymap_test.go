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

package entitymap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitynet/replicore/pkg/ident"
)

func TestMapInsertAndLookupBothDirections(t *testing.T) {
	m := New[string]()
	require.NoError(t, m.Insert("player-1", ident.Remote(7)))

	local, ok := m.LocalFor("player-1")
	require.True(t, ok)
	assert.Equal(t, ident.Remote(7), local)

	global, ok := m.GlobalFor(ident.Remote(7))
	require.True(t, ok)
	assert.Equal(t, "player-1", global)
}

func TestMapRejectsDuplicateInsert(t *testing.T) {
	m := New[string]()
	require.NoError(t, m.Insert("player-1", ident.Remote(7)))
	assert.Error(t, m.Insert("player-1", ident.Remote(8)))
	assert.Error(t, m.Insert("player-2", ident.Remote(7)))
}

func TestMapRemoveByEitherSide(t *testing.T) {
	m := New[string]()
	require.NoError(t, m.Insert("player-1", ident.Remote(7)))

	local, ok := m.RemoveByGlobal("player-1")
	require.True(t, ok)
	assert.Equal(t, ident.Remote(7), local)
	assert.Equal(t, 0, m.Len())

	require.NoError(t, m.Insert("player-2", ident.Remote(9)))
	global, ok := m.RemoveByLocal(ident.Remote(9))
	require.True(t, ok)
	assert.Equal(t, "player-2", global)
}

func TestRedirectResolvesWithinTTL(t *testing.T) {
	rt := NewRedirectTable()
	now := time.Now()
	old := ident.Remote(42)
	neu := ident.Host(100)
	rt.Install(old, neu, now)

	assert.Equal(t, neu, rt.Resolve(old, now.Add(30*time.Second)))
	assert.Equal(t, neu, rt.Resolve(old, now.Add(RedirectTTL)))
}

func TestRedirectExpiresAfterTTL(t *testing.T) {
	rt := NewRedirectTable()
	now := time.Now()
	old := ident.Remote(42)
	neu := ident.Host(100)
	rt.Install(old, neu, now)

	assert.Equal(t, old, rt.Resolve(old, now.Add(RedirectTTL+time.Second)))
}

func TestRedirectResolveIsIdempotent(t *testing.T) {
	rt := NewRedirectTable()
	now := time.Now()
	old := ident.Remote(42)
	neu := ident.Host(100)
	rt.Install(old, neu, now)

	once := rt.Resolve(old, now)
	twice := rt.Resolve(once, now)
	assert.Equal(t, once, twice)
}

func TestRedirectChainsAcrossDoubleMigration(t *testing.T) {
	rt := NewRedirectTable()
	now := time.Now()
	a, b, c := ident.Remote(1), ident.Host(2), ident.Remote(3)
	rt.Install(a, b, now)
	rt.Install(b, c, now.Add(time.Second))

	assert.Equal(t, c, rt.Resolve(a, now.Add(2*time.Second)))
}

func TestRedirectGCRemovesExpiredOnly(t *testing.T) {
	rt := NewRedirectTable()
	now := time.Now()
	rt.Install(ident.Remote(1), ident.Host(1), now)
	rt.Install(ident.Remote(2), ident.Host(2), now.Add(time.Hour))

	removed := rt.GC(now.Add(time.Hour))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, rt.Len())
}
