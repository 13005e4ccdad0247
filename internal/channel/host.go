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
	"fmt"

	"github.com/entitynet/replicore/internal/authority"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/ident"
)

// ErrCommandRejected is a recoverable/report error (§7): the authority
// channel's current state forbids the command at enqueue time.
var ErrCommandRejected = fmt.Errorf("channel: command rejected by authority state")

// Host is the Host Entity Channel (§4.5): a set of live component kinds
// and a FIFO of outbound commands, validated against the authority
// channel before being accepted.
type Host struct {
	components map[ident.ComponentKind]struct{}
	auth       *authority.Channel
	outgoing   []action.WireMessage
}

// NewHost creates a Host Entity Channel for a freshly, locally-spawned
// entity: no components, Unpublished authority.
func NewHost() *Host {
	return &Host{
		components: make(map[ident.ComponentKind]struct{}),
		auth:       authority.New(),
	}
}

// NewHostWithComponents constructs a Host Entity Channel with a
// pre-populated component-kind set, used by migration (§4.7 step 7) when
// the target side is the host side.
func NewHostWithComponents(kinds []ident.ComponentKind) *Host {
	h := NewHost()
	for _, k := range kinds {
		h.components[k] = struct{}{}
	}
	return h
}

// Auth returns the entity's authority channel.
func (h *Host) Auth() *authority.Channel { return h.auth }

// Enqueue validates msg against the authority channel's current state and,
// if legal, appends it to the outbound FIFO. Invalid commands are rejected
// at enqueue time rather than silently dropped later (§4.5).
func (h *Host) Enqueue(msg action.WireMessage) error {
	if !h.auth.CanEnqueue(msg.Tag) {
		return fmt.Errorf("%w: %s while state=%s status=%s", ErrCommandRejected, msg.Tag, h.auth.State(), h.auth.Status())
	}

	switch msg.Tag {
	case action.TagInsertComponent:
		h.components[msg.Component] = struct{}{}
	case action.TagRemoveComponent:
		delete(h.components, msg.Component)
	}

	h.outgoing = append(h.outgoing, msg)
	return nil
}

// AnnounceSpawn unconditionally queues a Spawn command announcing this
// entity to the peer. Spawn is entity lifecycle, not an authority
// transition, so unlike every other command it bypasses CanEnqueue
// entirely - a freshly created Host Entity Channel has no authority state
// that could legally forbid announcing its own existence.
func (h *Host) AnnounceSpawn() {
	h.outgoing = append(h.outgoing, action.WireMessage{Tag: action.TagSpawn})
}

// ExtractCommands returns and clears the outbound command FIFO, per §4.5's
// "extract all queued commands".
func (h *Host) ExtractCommands() []action.WireMessage {
	cmds := h.outgoing
	h.outgoing = nil
	return cmds
}

// ExtractComponentKinds returns the current set of live component kinds,
// used by migration's step 3 when the source side is the host side.
func (h *Host) ExtractComponentKinds() []ident.ComponentKind {
	kinds := make([]ident.ComponentKind, 0, len(h.components))
	for k := range h.components {
		kinds = append(kinds, k)
	}
	return kinds
}

// HandleIncoming applies a server-pushed authority action arriving on the
// host side directly to the authority channel: UpdateAuthority and
// DisableDelegation change it, MigrateResponse is surfaced as an
// Observation, and every other tag (EnableDelegationResponse included) is
// ignored.
// Unlike the Remote Entity Channel, the Host Entity Channel does not keep
// a separate ordering backlog for these: by the time a message reaches
// here it has already passed through the connection's reliable receiver,
// so it is already in seq order, and a transition that is illegal for the
// channel's current state is dropped silently (§7 recoverable/drop) rather
// than buffered - a legitimate reordering artifact resolves itself on the
// next delivery.
func (h *Host) HandleIncoming(msg action.WireMessage) []Observation {
	switch msg.Tag {
	case action.TagUpdateAuthority:
		before := h.auth.Status()
		if err := h.auth.SetAuthority(msg.Status); err != nil {
			return nil
		}
		return authEventsFor(before, msg.Status)
	case action.TagDisableDelegation:
		if err := h.auth.DisableDelegation(); err != nil {
			return nil
		}
		return nil
	case action.TagMigrateResponse:
		return []Observation{{Kind: action.EventMigrateResponse, NewID: msg.NewID}}
	default:
		return nil
	}
}

// FilterRetainedCommands implements §4.7 step 4: on migration away from
// this side, the outbound queue is filtered down to commands still valid
// under the post-migration authority state, dropping
// Publish/Unpublish/delegation-toggle commands that the new Delegated
// status would reject anyway.
func FilterRetainedCommands(cmds []action.WireMessage, postMigration *authority.Channel) []action.WireMessage {
	var kept []action.WireMessage
	for _, c := range cmds {
		if postMigration.CanEnqueue(c.Tag) {
			kept = append(kept, c)
		}
	}
	return kept
}
