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

// Package channel implements the Remote Entity Channel (§4.4) and Host
// Entity Channel (§4.5): the per-entity state machines sitting above the
// per-component channels (internal/component) and authority channel
// (internal/authority), applying the sequencing algorithm of §4.2 at
// entity granularity.
package channel

import (
	"errors"
	"fmt"
	"sort"

	"github.com/entitynet/replicore/internal/authority"
	"github.com/entitynet/replicore/internal/component"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/ident"
	"github.com/entitynet/replicore/pkg/seq"
)

// RemoteState is the entity-level lifecycle state of a Remote Entity
// Channel.
type RemoteState uint8

const (
	RemoteDespawned RemoteState = iota
	RemoteSpawned
)

func (s RemoteState) String() string {
	if s == RemoteSpawned {
		return "Spawned"
	}
	return "Despawned"
}

// ErrBacklogFull is a fatal error (§7): a stream whose backlog already
// holds MaxInFlight entries received another message to buffer.
var ErrBacklogFull = errors.New("channel: backlog full")

// ErrWrongDirection is a fatal error raised when an operation expects the
// entity to be in a state it is not in, matching §4.7's "migration target
// of the wrong direction" failure mode.
var ErrWrongDirection = errors.New("channel: entity in wrong direction")

// Observation is a local, G-agnostic application event: internal/engine
// attaches the caller's GlobalEntity handle before exposing it as an
// action.Event[G].
type Observation struct {
	Kind      action.EventKind
	Component ident.ComponentKind
	NewID     ident.OwnedLocalID // populated for EventMigrateResponse
}

type bufferedEntityMsg struct {
	seq seq.Seq
	msg action.WireMessage
}

// Remote is the Remote Entity Channel: Despawned -> Spawned -> Despawned,
// owning a lazily-populated set of per-component channels and an
// authority channel, per §4.4.
type Remote struct {
	state    RemoteState
	lastSeq  seq.Seq
	hasLast  bool
	spawnSeq seq.Seq
	hasSpawn bool
	nearWrap bool

	components map[ident.ComponentKind]*component.Channel
	auth       *authority.Channel
	buffered   []bufferedEntityMsg
	outgoing   []action.WireMessage
}

// NewRemote creates a fresh, Despawned Remote Entity Channel for a not yet
// discovered entity.
func NewRemote() *Remote {
	return &Remote{
		components: make(map[ident.ComponentKind]*component.Channel),
		auth:       authority.New(),
	}
}

// NewRemoteDelegated constructs a Remote Entity Channel in the "delegated"
// flavor §4.4 describes for an entity obtained via migration: state
// Spawned, the given component-kind set pre-populated as inserted, and
// authority Delegated/Available (or whatever status migration is handing
// off, via authority.NewDelegated).
func NewRemoteDelegated(kinds []ident.ComponentKind, status action.AuthStatus, spawnSeq seq.Seq) *Remote {
	r := &Remote{
		state:      RemoteSpawned,
		spawnSeq:   spawnSeq,
		hasSpawn:   true,
		lastSeq:    spawnSeq,
		hasLast:    true,
		components: make(map[ident.ComponentKind]*component.Channel),
		auth:       authority.NewDelegated(status),
	}
	for _, k := range kinds {
		c := component.New()
		c.ForceSet(true)
		r.components[k] = c
	}
	return r
}

// EnqueueCommand validates msg against this entity's authority channel and,
// if legal, appends it to a small outbound FIFO. The remote side is never
// the authoritative sender of entity state, but it does originate
// authority-protocol commands directly (RequestAuthority, ReleaseAuthority
// - see the authority cycle in scenario 3), so it shares the same
// enqueue-time validation gate the Host Entity Channel uses rather than
// sending those commands unchecked.
func (r *Remote) EnqueueCommand(msg action.WireMessage) error {
	if !r.auth.CanEnqueue(msg.Tag) {
		return fmt.Errorf("%w: %s while state=%s status=%s", ErrCommandRejected, msg.Tag, r.auth.State(), r.auth.Status())
	}
	r.outgoing = append(r.outgoing, msg)
	return nil
}

// ExtractCommands returns and clears this channel's outbound FIFO. Used by
// internal/engine.Remote.DrainOutgoing once per tick and, during a
// remote-to-host migration, by internal/migration's retained-command
// carry-over (§4.7 steps 4/12).
func (r *Remote) ExtractCommands() []action.WireMessage {
	cmds := r.outgoing
	r.outgoing = nil
	return cmds
}

// State returns the channel's current RemoteState.
func (r *Remote) State() RemoteState { return r.state }

// Auth returns the entity's authority channel.
func (r *Remote) Auth() *authority.Channel { return r.auth }

// IsTombstoneReady reports whether the channel has reached the terminal
// condition of §4.2 step 10: Despawned, empty backlog, guard band clear.
func (r *Remote) IsTombstoneReady() bool {
	if r.state != RemoteDespawned || len(r.buffered) > 0 || r.nearWrap {
		return false
	}
	for _, c := range r.components {
		if c.BacklogLen() > 0 {
			return false
		}
	}
	return true
}

// ExtractInsertedComponentKinds returns the set of component kinds
// currently reporting Inserted, per §4.4's "extract inserted component
// kinds" and used by migration's step 3.
func (r *Remote) ExtractInsertedComponentKinds() []ident.ComponentKind {
	var kinds []ident.ComponentKind
	for k, c := range r.components {
		if c.IsInserted() {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ForceDrainAll resolves every buffered entity-level and component-level
// message regardless of current FSM position, per §4.7 step 2. It is
// unreachable from outside this module: only internal/migration calls it.
func (r *Remote) ForceDrainAll() {
	sort.Slice(r.buffered, func(i, j int) bool { return seq.Before(r.buffered[i].seq, r.buffered[j].seq) })
	for _, b := range r.buffered {
		r.applyEntityLevel(b.seq, b.msg)
	}
	r.buffered = nil
	for _, c := range r.components {
		c.ForceDrain()
	}
}

// Receive is the entity-channel half of the §4.2 sync algorithm. Callers
// (internal/engine) are responsible for resolving any redirect and for
// creating the Remote channel lazily on first Spawn - Receive assumes the
// channel already exists for this local id.
func (r *Remote) Receive(s seq.Seq, msg action.WireMessage) ([]Observation, error) {
	if isComponentTag(msg.Tag) {
		return r.receiveComponent(s, msg)
	}
	return r.receiveEntity(s, msg)
}

func isComponentTag(t action.Tag) bool {
	return t == action.TagInsertComponent || t == action.TagRemoveComponent
}

func (r *Remote) receiveEntity(s seq.Seq, msg action.WireMessage) ([]Observation, error) {
	// Generation gate (§4.2 step 4): drop messages from a prior incarnation
	// of this local id outright, even before buffering.
	if r.hasSpawn && seq.Before(s, r.spawnSeq) {
		return nil, nil
	}

	if r.hasLast && !seq.After(s, r.lastSeq) {
		return nil, nil // duplicate or out-of-window: silently dropped
	}

	if !r.canApplyEntityLevel(s, msg) {
		if err := r.bufferEntity(s, msg); err != nil {
			return nil, err
		}
		return nil, nil
	}

	obs := r.applyEntityLevel(s, msg)
	r.collapseSpawnDespawnRace(msg.Tag)
	r.updateGuardBand(s)
	more := r.drainEntityBacklog()
	return append(obs, more...), nil
}

// canApplyEntityLevel reports whether msg is a legal transition from the
// channel's current state, without mutating anything - used to decide
// apply-now vs. buffer.
func (r *Remote) canApplyEntityLevel(_ seq.Seq, msg action.WireMessage) bool {
	switch msg.Tag {
	case action.TagSpawn:
		return r.state == RemoteDespawned
	case action.TagDespawn:
		return r.state == RemoteSpawned
	case action.TagPublishEntity, action.TagUnpublishEntity,
		action.TagEnableDelegation, action.TagDisableDelegation,
		action.TagRequestAuthority, action.TagReleaseAuthority,
		action.TagUpdateAuthority:
		return r.state == RemoteSpawned
	case action.TagMigrateResponse, action.TagNoop:
		return true
	default:
		return false
	}
}

// applyEntityLevel performs the actual mutation for an entity-level
// message already known to be legal (or, from ForceDrainAll, accepted
// unconditionally per §4.7 step 2's "accept the temporary FSM
// inconsistency to guarantee zero loss").
func (r *Remote) applyEntityLevel(s seq.Seq, msg action.WireMessage) []Observation {
	r.lastSeq = s
	r.hasLast = true

	switch msg.Tag {
	case action.TagSpawn:
		r.state = RemoteSpawned
		r.spawnSeq = s
		r.hasSpawn = true
		return []Observation{{Kind: action.EventSpawn}}
	case action.TagDespawn:
		r.state = RemoteDespawned
		return []Observation{{Kind: action.EventDespawn}}
	case action.TagPublishEntity:
		_ = r.auth.Publish()
		return nil
	case action.TagUnpublishEntity:
		_ = r.auth.Unpublish()
		return nil
	case action.TagEnableDelegation:
		_ = r.auth.EnableDelegation()
		return nil
	case action.TagDisableDelegation:
		_ = r.auth.DisableDelegation()
		return nil
	case action.TagRequestAuthority:
		_ = r.auth.RequestAuthority()
		return nil
	case action.TagReleaseAuthority:
		_ = r.auth.ReleaseAuthority()
		return nil
	case action.TagUpdateAuthority:
		before := r.auth.Status()
		if err := r.auth.SetAuthority(msg.Status); err != nil {
			return nil
		}
		return authEventsFor(before, msg.Status)
	case action.TagMigrateResponse:
		return []Observation{{Kind: action.EventMigrateResponse, NewID: msg.NewID}}
	case action.TagNoop:
		return nil
	default:
		return nil
	}
}

// authEventsFor decides which application event(s), if any, an
// UpdateAuthority transition produces. A denied request surfaces AuthDeny
// even though the authority channel itself immediately folds back to
// Available (authority.Channel.SetAuthority's self-resolving behavior).
func authEventsFor(before, after action.AuthStatus) []Observation {
	switch after {
	case action.AuthStatusGranted:
		return []Observation{{Kind: action.EventAuthGrant}}
	case action.AuthStatusDenied:
		return []Observation{{Kind: action.EventAuthDeny}}
	case action.AuthStatusAvailable:
		if before == action.AuthStatusReleasing {
			return []Observation{{Kind: action.EventAuthRelease}}
		}
		return nil
	default:
		return nil
	}
}

func (r *Remote) bufferEntity(s seq.Seq, msg action.WireMessage) error {
	if len(r.buffered) >= seq.MaxInFlight {
		return fmt.Errorf("%w: entity backlog at seq %d", ErrBacklogFull, s)
	}
	r.buffered = append(r.buffered, bufferedEntityMsg{seq: s, msg: msg})
	return nil
}

// collapseSpawnDespawnRace implements §4.2 step 6: when a Spawn or Despawn
// is accepted, the backlog keeps only the newest buffered entry of each of
// those two kinds, since older ones can never legally apply once a newer
// Spawn/Despawn has already landed.
func (r *Remote) collapseSpawnDespawnRace(t action.Tag) {
	if !t.EntitySpawnDespawn() {
		return
	}
	var newestSpawn, newestDespawn = -1, -1
	for i, b := range r.buffered {
		if b.msg.Tag == action.TagSpawn && (newestSpawn == -1 || seq.After(b.seq, r.buffered[newestSpawn].seq)) {
			newestSpawn = i
		}
		if b.msg.Tag == action.TagDespawn && (newestDespawn == -1 || seq.After(b.seq, r.buffered[newestDespawn].seq)) {
			newestDespawn = i
		}
	}
	kept := r.buffered[:0]
	for i, b := range r.buffered {
		if b.msg.Tag == action.TagSpawn && i != newestSpawn {
			continue
		}
		if b.msg.Tag == action.TagDespawn && i != newestDespawn {
			continue
		}
		kept = append(kept, b)
	}
	r.buffered = kept
}

// updateGuardBand implements §4.2 step 8 at entity granularity, purging
// both the entity-level backlog and every component channel's backlog.
func (r *Remote) updateGuardBand(s seq.Seq) {
	if seq.InGuardBand(s) {
		r.nearWrap = true
	}
	if r.nearWrap {
		kept := r.buffered[:0]
		for _, b := range r.buffered {
			if !seq.Before(b.seq, seq.FlushThreshold) {
				kept = append(kept, b)
			}
		}
		r.buffered = kept
		for _, c := range r.components {
			c.PurgeBelow(seq.FlushThreshold)
		}
		if s < seq.FlushThreshold {
			r.nearWrap = false
		}
	}
}

// drainEntityBacklog repeatedly applies the earliest now-legal buffered
// entity-level message, matching §4.2 step 9.
func (r *Remote) drainEntityBacklog() []Observation {
	var all []Observation
	for {
		idx := r.earliestApplicable()
		if idx == -1 {
			return all
		}
		b := r.buffered[idx]
		r.buffered = append(r.buffered[:idx], r.buffered[idx+1:]...)
		obs := r.applyEntityLevel(b.seq, b.msg)
		r.collapseSpawnDespawnRace(b.msg.Tag)
		all = append(all, obs...)
	}
}

func (r *Remote) earliestApplicable() int {
	best := -1
	for i, b := range r.buffered {
		if r.hasLast && !seq.After(b.seq, r.lastSeq) {
			continue
		}
		if !r.canApplyEntityLevel(b.seq, b.msg) {
			continue
		}
		if best == -1 || seq.Before(b.seq, r.buffered[best].seq) {
			best = i
		}
	}
	return best
}

func (r *Remote) receiveComponent(s seq.Seq, msg action.WireMessage) ([]Observation, error) {
	if r.hasSpawn && seq.Before(s, r.spawnSeq) {
		return nil, nil
	}
	if r.state != RemoteSpawned {
		return nil, nil // component operation for a despawned entity: drop silently (§7)
	}

	c, ok := r.components[msg.Component]
	if !ok {
		if msg.Tag != action.TagInsertComponent {
			return nil, nil // Remove of a never-seen component: nothing to do
		}
		c = component.New()
		r.components[msg.Component] = c
	}

	op := component.OpRemove
	if msg.Tag == action.TagInsertComponent {
		op = component.OpInsert
	}

	if applied := c.Apply(s, op); !applied {
		if c.BacklogLen() >= seq.MaxInFlight {
			return nil, fmt.Errorf("%w: component %v backlog at seq %d", ErrBacklogFull, msg.Component, s)
		}
		c.Buffer(s, op)
		return nil, nil
	}
	c.DrainReady()

	kind := action.EventInsertComponent
	if op == component.OpRemove {
		kind = action.EventRemoveComponent
	}
	return []Observation{{Kind: kind, Component: msg.Component}}, nil
}
