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

// Package entitymap implements the Local Entity Map: the bidirectional
// mapping between a connection-agnostic GlobalEntity and the per-direction
// OwnedLocalID used on the wire, plus the short-lived redirect table that
// makes entity migration safe for in-flight messages.
//
// The locking discipline here mirrors the teacher's own
// pkg/util.RefMap[K, V]: a single sync.RWMutex guarding a plain map,
// generic over a comparable key. Unlike most of this module's single-tick,
// lock-free state, Map and RedirectTable are deliberately made
// concurrency-safe because the reference wiring in cmd/entitysyncd reads
// them from both the transport-receive goroutine and the tick goroutine.
package entitymap

import (
	"fmt"
	"sync"
	"time"

	"github.com/entitynet/replicore/pkg/ident"
)

// RedirectTTL is the minimum duration a redirect remains effective after
// installation (invariant 6).
const RedirectTTL = 60 * time.Second

// Map is the bidirectional GlobalEntity <-> OwnedLocalID table for one
// connection. G is the caller's own entity handle type.
type Map[G comparable] struct {
	mu       sync.RWMutex
	toLocal  map[G]ident.OwnedLocalID
	toGlobal map[ident.OwnedLocalID]G
}

// New creates an empty Map.
func New[G comparable]() *Map[G] {
	return &Map[G]{
		toLocal:  make(map[G]ident.OwnedLocalID),
		toGlobal: make(map[ident.OwnedLocalID]G),
	}
}

// Insert records a fresh GlobalEntity <-> OwnedLocalID association. It
// returns an error if either side is already mapped, since invariant 1
// requires the mapping to be exactly one-to-one at all times.
func (m *Map[G]) Insert(global G, local ident.OwnedLocalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.toLocal[global]; exists {
		return fmt.Errorf("entitymap: global entity %v already mapped", global)
	}
	if _, exists := m.toGlobal[local]; exists {
		return fmt.Errorf("entitymap: local id %s already mapped", local)
	}

	m.toLocal[global] = local
	m.toGlobal[local] = global
	return nil
}

// RemoveByGlobal deletes the mapping for global, returning the local id it
// was mapped to, if any.
func (m *Map[G]) RemoveByGlobal(global G) (ident.OwnedLocalID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	local, ok := m.toLocal[global]
	if !ok {
		return ident.OwnedLocalID{}, false
	}
	delete(m.toLocal, global)
	delete(m.toGlobal, local)
	return local, true
}

// RemoveByLocal deletes the mapping for local, returning the global entity
// it was mapped to, if any.
func (m *Map[G]) RemoveByLocal(local ident.OwnedLocalID) (G, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	global, ok := m.toGlobal[local]
	if !ok {
		var zero G
		return zero, false
	}
	delete(m.toLocal, global)
	delete(m.toGlobal, local)
	return global, true
}

// GlobalFor returns the GlobalEntity mapped to local, without resolving
// any redirect - callers that need redirect resolution should consult a
// RedirectTable first (§4.10).
func (m *Map[G]) GlobalFor(local ident.OwnedLocalID) (G, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.toGlobal[local]
	return g, ok
}

// LocalFor returns the OwnedLocalID currently mapped to global.
func (m *Map[G]) LocalFor(global G) (ident.OwnedLocalID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.toLocal[global]
	return l, ok
}

// Len returns the number of mapped entities.
func (m *Map[G]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.toLocal)
}
