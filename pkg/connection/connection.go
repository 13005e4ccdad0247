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

// Package connection implements the receiver facade described in §2: the
// single entry point an embedding application uses, wiring together every
// other collaborator in this module (the two engines, the entity map and
// redirect table, the sent-command record, the migration coordinator) the
// way the teacher's pkg/scaling.ScaleHandler is the single object main.go
// constructs and drives. Every internal/ package is unimportable from
// outside this module, so Connection is the only supported way to reach
// their behavior.
package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/entitynet/replicore/internal/channel"
	"github.com/entitynet/replicore/internal/engine"
	"github.com/entitynet/replicore/internal/migration"
	"github.com/entitynet/replicore/internal/receiver"
	"github.com/entitynet/replicore/internal/sentcmd"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/entitymap"
	"github.com/entitynet/replicore/pkg/ident"
	"github.com/entitynet/replicore/pkg/seq"
	"github.com/entitynet/replicore/pkg/telemetry"
)

// FatalReason discriminates the closed set of fatal, connection-tearing-
// down conditions of §7.
type FatalReason string

const (
	ReasonDecodeError       FatalReason = "decode_error"
	ReasonBacklogOverflow   FatalReason = "backlog_overflow"
	ReasonMigrationInvalid  FatalReason = "migration_invalid"
	ReasonInvariantViolated FatalReason = "invariant_violated"
)

// FatalError wraps one of the §7 fatal conditions. Once returned by any
// Connection method, the connection must be considered torn down - no
// method on it may be called again (§7: "no partial state is retained
// across reconnection").
type FatalError struct {
	Reason FatalReason
	Err    error
}

func (e *FatalError) Error() string { return fmt.Sprintf("connection: fatal (%s): %v", e.Reason, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Connection is one side of a replicated connection for entity handle
// type G. It is not internally goroutine-safe (§5: "no internal locks
// required"); every method below must be called from a single goroutine
// per connection, the same way the teacher never documents its
// scaleExecutor as safe for concurrent reconcile loops either. The
// exceptions are the entity map and the telemetry handle, both backed by
// their own locks, because the reference wiring in cmd/entitysyncd
// legitimately touches those two from both the transport-read goroutine
// and the tick goroutine.
type Connection[G comparable] struct {
	log     logr.Logger
	metrics *telemetry.Metrics

	transport action.Transport
	codec     action.Codec

	entities  *entitymap.Map[G]
	redirects *entitymap.RedirectTable
	sent      *sentcmd.Record

	host   *engine.Host
	remote *engine.Remote

	inbound *receiver.Receiver[action.WireMessage]

	closed   bool
	nextHost uint16
	nextCmd  sentcmd.CommandID
	nextSeq  seq.Seq
}

// New creates a Connection wired to transport and codec, the two external
// collaborators this module never implements (§6). A zero logr.Logger and
// nil *telemetry.Metrics are both valid.
func New[G comparable](transport action.Transport, codec action.Codec, log logr.Logger, metrics *telemetry.Metrics) *Connection[G] {
	return &Connection[G]{
		log:       log,
		metrics:   metrics,
		transport: transport,
		codec:     codec,
		entities:  entitymap.New[G](),
		redirects: entitymap.NewRedirectTable(),
		sent:      sentcmd.New(),
		host:      engine.NewHost(log, metrics),
		remote:    engine.NewRemote(log, metrics),
		inbound:   receiver.New[action.WireMessage](),
	}
}

// migrationReason classifies a migration coordinator error for the §7
// fatal taxonomy: invariant 2 failures get their own reason distinct from
// the broader "migration could not complete" bucket, since an invariant
// violation indicates this module's own bookkeeping disagreed with itself
// rather than a caller-supplied direction/id error.
func migrationReason(err error) FatalReason {
	if errors.Is(err, migration.ErrAuthoritySyncViolated) {
		return ReasonInvariantViolated
	}
	return ReasonMigrationInvalid
}

func (c *Connection[G]) fatal(reason FatalReason, err error) error {
	c.closed = true
	c.log.Error(err, "connection: fatal error, tearing down", "reason", reason)
	c.metrics.IncFatalErrorsTotal(string(reason))
	return &FatalError{Reason: reason, Err: err}
}

// Closed reports whether a prior fatal error has torn this connection
// down.
func (c *Connection[G]) Closed() bool { return c.closed }

// HandleFrame decodes one inbound transport frame, resolves its entity
// reference through the redirect table (§4.10's "on read" hook, applied
// immediately after deserialization and before engine routing), de-
// duplicates and orders it through the reliable receiver, and routes
// every message the receiver releases to the matching engine. It returns
// the application-facing events produced, in delivery order. A decode
// error is fatal (§7); everything else about a single bad or duplicate
// message is absorbed silently per the drop taxonomy in §7.
func (c *Connection[G]) HandleFrame(frame []byte) ([]action.Event[G], error) {
	if c.closed {
		return nil, errors.New("connection: already closed")
	}

	s, msg, err := decodeFrame(c.codec, frame)
	if err != nil {
		return nil, c.fatal(ReasonDecodeError, fmt.Errorf("decoding inbound frame: %w", err))
	}

	now := time.Now()
	msg.Entity = c.redirects.Resolve(msg.Entity, now)

	deliveries, err := c.inbound.Insert(s, msg)
	if err != nil {
		return nil, c.fatal(ReasonBacklogOverflow, err)
	}

	var events []action.Event[G]
	for _, d := range deliveries {
		ev, err := c.route(now, d.Seq, d.Payload)
		if err != nil {
			return events, c.fatal(migrationReason(err), err)
		}
		events = append(events, ev...)
	}
	return events, nil
}

func (c *Connection[G]) route(now time.Time, s seq.Seq, msg action.WireMessage) ([]action.Event[G], error) {
	if msg.Entity.IsHost() {
		obs := c.host.HandleIncoming(msg.Entity.Value, msg)
		return c.finishObservations(now, msg.Entity, obs)
	}

	obs, err := c.remote.HandleMessage(s, msg.Entity.Value, msg)
	if err != nil {
		return nil, err
	}
	return c.finishObservations(now, msg.Entity, obs)
}

// finishObservations attaches the caller's GlobalEntity handle to every
// Observation (a Spawn for an entity with no mapping yet carries G's zero
// value; nothing is inserted into the entity map - see RegisterSpawn), and
// drives an automatic remote-to-host migration when a MigrateResponse
// observation surfaces (§4.7: migration is initiated "on the side that
// currently observes it remotely when it receives a MigrateResponse").
func (c *Connection[G]) finishObservations(now time.Time, local ident.OwnedLocalID, obs []channel.Observation) ([]action.Event[G], error) {
	if len(obs) == 0 {
		return nil, nil
	}

	global, ok := c.entities.GlobalFor(local)
	if !ok {
		if obs[0].Kind != action.EventSpawn {
			// A non-spawn observation for an entity with no mapping yet
			// indicates the application never registered an allocator;
			// nothing to attach the event to.
			return nil, nil
		}
		var zero G
		global = zero
	}

	events := make([]action.Event[G], 0, len(obs))
	for _, o := range obs {
		events = append(events, action.Event[G]{Kind: o.Kind, Entity: global, Component: o.Component, NewID: o.NewID})
		if o.Kind == action.EventMigrateResponse && local.IsRemote() {
			res, err := migration.RemoteToHost[G](now, global, c.entities, c.redirects, c.sent, c.remote, c.host,
				o.NewID.Value, action.AuthStatusGranted, c.log, c.metrics)
			if err != nil {
				return events, err
			}
			events = append(events, res.Obs...)
		}
	}
	return events, nil
}

// RegisterSpawn must be called by the application the first time it sees
// a Spawn for a previously-unknown RemoteID, supplying the GlobalEntity
// handle it has minted for that entity, before any further frame
// referencing that RemoteID is processed. This is necessarily a separate
// step from HandleFrame because only the application knows how to
// allocate a GlobalEntity - the core treats G as an opaque comparable
// value (§3).
func (c *Connection[G]) RegisterSpawn(global G, remoteID uint16) error {
	return c.entities.Insert(global, ident.Remote(remoteID))
}

// SpawnLocal creates a new Host Entity Channel for a locally-originated
// entity, allocating the next local HostID and registering it in the
// entity map.
func (c *Connection[G]) SpawnLocal(global G) (ident.OwnedLocalID, error) {
	local := ident.Host(c.nextHost)
	c.nextHost++

	ch, err := c.host.Spawn(local.Value)
	if err != nil {
		return ident.OwnedLocalID{}, err
	}
	if err := c.entities.Insert(global, local); err != nil {
		return ident.OwnedLocalID{}, err
	}
	ch.AnnounceSpawn()
	return local, nil
}

// EnqueueCommand validates and queues an outbound command for global,
// routing to whichever engine currently owns it (Host for ordinary entity
// commands, Remote for the authority-protocol commands the remote side
// may originate per §4.7 scenario 3).
func (c *Connection[G]) EnqueueCommand(global G, msg action.WireMessage) error {
	local, ok := c.entities.LocalFor(global)
	if !ok {
		return fmt.Errorf("connection: %v has no local mapping", global)
	}
	msg.Entity = local

	if local.IsHost() {
		ch, ok := c.host.Get(local.Value)
		if !ok {
			return fmt.Errorf("connection: no host channel for %v", local)
		}
		return ch.Enqueue(msg)
	}

	ch, ok := c.remote.Get(local.Value)
	if !ok {
		return fmt.Errorf("connection: no remote channel for %v", local)
	}
	return ch.EnqueueCommand(msg)
}

// RequestMigration initiates a host-to-remote migration for global, the
// direction the spec describes as beginning "on the side that currently
// hosts the entity... when it receives an authoritative delegate-to-peer
// signal" - that signal is an application-level decision (e.g. a server
// deciding to delegate authority to a client), so it is exposed directly
// rather than driven off a wire message.
//
// Once the local handoff completes, the peer still tracks this entity
// under its old identifier in its own Remote Entity Channel - the peer
// only learns of the handoff, and the new identifier to adopt, from the
// MigrateResponse this method transmits immediately afterward. That
// announcement cannot go through the ordinary per-channel outgoing FIFO
// (step 5 has already removed the source Host Entity Channel by the time
// migration.HostToRemote returns), so it is built and sent here directly,
// addressed with the entity's old Side so the peer's route() dispatches
// it to the same Remote Entity Channel that has tracked this entity all
// along (see internal/migration's RemoteToHost doc comment for the
// matching receive-side half of this handoff).
func (c *Connection[G]) RequestMigration(global G, newRemoteID uint16, spawnSeq seq.Seq) (ident.OwnedLocalID, error) {
	oldLocal, ok := c.entities.LocalFor(global)
	if !ok {
		return ident.OwnedLocalID{}, fmt.Errorf("connection: %v has no local mapping", global)
	}

	res, err := migration.HostToRemote[G](time.Now(), global, c.entities, c.redirects, c.sent, c.host, c.remote,
		newRemoteID, spawnSeq, action.AuthStatusAvailable, c.log, c.metrics)
	if err != nil {
		return ident.OwnedLocalID{}, c.fatal(migrationReason(err), err)
	}

	announce := action.WireMessage{
		Tag:    action.TagMigrateResponse,
		Entity: ident.Remote(oldLocal.Value),
		OldID:  oldLocal,
		NewID:  ident.Host(newRemoteID),
	}
	if err := c.transmit(time.Now(), announce); err != nil {
		return ident.OwnedLocalID{}, c.fatal(ReasonMigrationInvalid, err)
	}

	return res.NewID, nil
}

// Tick drains every host channel's and every remote channel's queued
// outbound commands, encodes and transmits one frame per command, records
// each for retransmission, and runs the periodic GC sweep (redirect table,
// sent-command record, tombstone-ready entity streams) described in §4.9
// and §4.2 step 10. It must be called regularly by the embedding
// application's own scheduling loop - the core itself never schedules
// anything (§5).
func (c *Connection[G]) Tick(now time.Time) error {
	if c.closed {
		return errors.New("connection: already closed")
	}

	// A command's wire Entity tag names the engine the PEER must route it
	// through, not the engine it was queued on locally: ordinary entity
	// traffic this side hosts is remote-owned from the peer's perspective
	// (§2 "messages reaching a side are classified... by this side"), and
	// the authority-protocol commands the remote side originates are
	// host-owned from the peer's perspective - so both loops below flip
	// Side relative to the engine they drained from.
	for local, cmds := range c.host.DrainOutgoing() {
		entity := ident.Remote(local)
		for _, cmd := range cmds {
			cmd.Entity = entity
			if err := c.transmit(now, cmd); err != nil {
				return err
			}
		}
	}

	for local, cmds := range c.remote.DrainOutgoing() {
		entity := ident.Host(local)
		for _, cmd := range cmds {
			cmd.Entity = entity
			if err := c.transmit(now, cmd); err != nil {
				return err
			}
		}
	}

	removedRedirects := c.redirects.GC(now)
	removedSent := c.sent.GC(now)
	removedRemote := c.remote.GC()
	c.host.ObserveBacklog()
	c.remote.ObserveBacklog()
	c.metrics.SetRedirectTableSize(c.redirects.Len())
	c.metrics.SetInFlightPackets(c.sent.Len())
	c.log.V(1).Info("tick GC", "redirectsRemoved", removedRedirects, "sentRemoved", removedSent, "tombstonesRemoved", removedRemote)
	return nil
}

func (c *Connection[G]) transmit(now time.Time, msg action.WireMessage) error {
	resolved := msg
	resolved.Entity = c.redirects.Resolve(resolved.Entity, now) // §4.10 "on write" hook

	frame, err := encodeFrame(c.codec, c.nextSeq, resolved)
	if err != nil {
		return fmt.Errorf("connection: encoding outbound command: %w", err)
	}
	c.nextSeq++

	packetIndex, err := c.transport.Send(frame)
	if err != nil {
		return fmt.Errorf("connection: sending frame: %w", err)
	}

	c.nextCmd++
	c.sent.Insert(packetIndex, now, []sentcmd.Recorded{{ID: c.nextCmd, Message: resolved}})
	return nil
}

// Ack reports packetIndex as acknowledged by the peer, releasing its
// sent-command record.
func (c *Connection[G]) Ack(packetIndex uint32) { c.sent.Ack(packetIndex) }

// Retransmit must be called by the embedding application's own retry
// policy when it decides packetIndex was lost (§1: the transport's
// handshake and retry policy are both out of scope of this module, so
// loss detection itself is never the core's call). It re-resolves every
// recorded command's entity references against the redirect table
// immediately before re-encoding (§4.10's "on write" hook) - the same
// resolve transmit itself performs for a fresh send - so a retransmit
// issued after the entity has since migrated still reaches its current
// identifier rather than the one the original packet was addressed to.
// The stale record under the old packetIndex is dropped once its commands
// have been handed to fresh packets, which each get their own record.
func (c *Connection[G]) Retransmit(packetIndex uint32, now time.Time) error {
	recorded, ok := c.sent.ResolveForRetransmit(packetIndex, c.redirects, now)
	if !ok {
		return nil
	}
	c.sent.Ack(packetIndex)

	for _, rec := range recorded {
		if err := c.transmit(now, rec.Message); err != nil {
			return err
		}
	}
	return nil
}
