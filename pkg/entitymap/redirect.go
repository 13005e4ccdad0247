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
	"sync"
	"time"

	"github.com/entitynet/replicore/pkg/ident"
)

type redirectEntry struct {
	to          ident.OwnedLocalID
	installedAt time.Time
}

// RedirectTable holds the short-lived old -> new OwnedLocalID mappings
// installed by a migration. Entries older than RedirectTTL are excluded
// from Resolve and reclaimed by GC. This is the sole mechanism by which a
// message addressed to an identifier that migration has just rewritten
// still applies correctly (§4.10).
type RedirectTable struct {
	mu      sync.RWMutex
	entries map[ident.OwnedLocalID]redirectEntry
}

// NewRedirectTable creates an empty RedirectTable.
func NewRedirectTable() *RedirectTable {
	return &RedirectTable{entries: make(map[ident.OwnedLocalID]redirectEntry)}
}

// Install records a redirect from old to new, effective from now. A
// pre-existing redirect for old is overwritten - only the most recent
// migration of a given identifier matters.
func (t *RedirectTable) Install(old, to ident.OwnedLocalID, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[old] = redirectEntry{to: to, installedAt: now}
}

// Resolve follows the redirect chain for id, returning the final
// identifier it should be treated as. If id has no live redirect, id
// itself is returned unchanged - so Resolve is always a safe no-op to
// call, and applying it twice is idempotent since the second call finds
// no further redirect for the already-resolved identifier (unless a later
// migration has since chained past it, in which case Resolve reflects that
// newer state, which is the correct behavior for a still-live redirect).
func (t *RedirectTable) Resolve(id ident.OwnedLocalID, now time.Time) ident.OwnedLocalID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := map[ident.OwnedLocalID]bool{}
	cur := id
	for {
		entry, ok := t.entries[cur]
		if !ok || now.Sub(entry.installedAt) > RedirectTTL {
			return cur
		}
		if seen[cur] {
			// A redirect cycle should never occur; break rather than loop
			// forever if upstream state is somehow corrupted.
			return cur
		}
		seen[cur] = true
		cur = entry.to
	}
}

// GC removes redirect entries older than RedirectTTL as of now, returning
// the number removed.
func (t *RedirectTable) GC(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, v := range t.entries {
		if now.Sub(v.installedAt) > RedirectTTL {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live redirect entries, including expired ones
// not yet garbage collected.
func (t *RedirectTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
