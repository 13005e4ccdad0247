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

// Package sentcmd implements the Sent-Command Record (§4.9): for every
// outbound packet, the set of commands it carried, kept around until
// acked or aged out, so a migration can rewrite in-flight references to a
// just-migrated entity (§4.7 step 10) and a retransmit can re-resolve
// redirects immediately before serialization (§4.10).
package sentcmd

import (
	"sync"
	"time"

	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/entitymap"
	"github.com/entitynet/replicore/pkg/ident"
)

// TTL is the age after which an unacknowledged packet's command record is
// dropped, matching entitymap.RedirectTTL (§4.9: "along with any redirects
// older than 60s" - the two TTLs are deliberately the same constant).
const TTL = entitymap.RedirectTTL

// CommandID uniquely identifies one recorded command within a packet.
type CommandID uint64

// Recorded is one command carried by an outbound packet.
type Recorded struct {
	ID      CommandID
	Message action.WireMessage
}

type entry struct {
	sentAt   time.Time
	commands []Recorded
}

// Record is the Sent-Command Record for one connection direction.
type Record struct {
	mu      sync.Mutex
	entries map[uint32]*entry
}

// New creates an empty Record.
func New() *Record {
	return &Record{entries: make(map[uint32]*entry)}
}

// Insert records the commands carried by packetIndex, sent at sentAt.
func (r *Record) Insert(packetIndex uint32, sentAt time.Time, commands []Recorded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[packetIndex] = &entry{sentAt: sentAt, commands: commands}
}

// Ack removes the record for packetIndex, reporting whether one existed.
func (r *Record) Ack(packetIndex uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[packetIndex]; !ok {
		return false
	}
	delete(r.entries, packetIndex)
	return true
}

// GC drops every entry older than TTL as of now, returning the count
// removed. Called periodically and during migration (§4.9).
func (r *Record) GC(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for k, e := range r.entries {
		if now.Sub(e.sentAt) > TTL {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of outstanding unacknowledged packets tracked.
func (r *Record) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// entityRefs returns the pointer locations of a command's entity
// references, since MigrateResponse carries OldID/NewID in addition to
// the common Entity field.
func entityRefs(m *action.WireMessage) []*ident.OwnedLocalID {
	refs := []*ident.OwnedLocalID{&m.Entity}
	if m.Tag == action.TagMigrateResponse {
		refs = append(refs, &m.OldID, &m.NewID)
	}
	return refs
}

// RewriteEntity implements §4.7 step 10: scan every stored command and
// rewrite any entity reference equal to old to new, so future
// retransmissions carry the post-migration identifier. Returns the number
// of individual references rewritten.
func (r *Record) RewriteEntity(old, new ident.OwnedLocalID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rewritten := 0
	for _, e := range r.entries {
		for i := range e.commands {
			for _, ref := range entityRefs(&e.commands[i].Message) {
				if *ref == old {
					*ref = new
					rewritten++
				}
			}
		}
	}
	return rewritten
}

// ResolveForRetransmit returns the commands recorded for packetIndex with
// every stored entity reference re-resolved against rt immediately before
// serialization, per §4.10's "on write" hook. The stored record itself is
// left untouched - RewriteEntity is the only thing that permanently
// updates it - so a resolve call is always safe to repeat.
func (r *Record) ResolveForRetransmit(packetIndex uint32, rt *entitymap.RedirectTable, now time.Time) ([]Recorded, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[packetIndex]
	if !ok {
		return nil, false
	}
	out := make([]Recorded, len(e.commands))
	for i, c := range e.commands {
		resolved := c.Message
		for _, ref := range entityRefs(&resolved) {
			*ref = rt.Resolve(*ref, now)
		}
		out[i] = Recorded{ID: c.ID, Message: resolved}
	}
	return out, true
}
