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

// Package engine implements the Host and Remote Engines of §2/§4.2: the
// collections of per-entity channels keyed by local id, plus the routing,
// guard-band flush and tombstone GC that sits above the individual
// channel FSMs in internal/channel. This mirrors the shape of the
// teacher's pkg/scaling.scaleHandler - the module's largest stateful
// orchestrator, owning a registry of per-resource state and ticking it -
// generalized from "one ScaledObject per key" to "one entity channel per
// local id".
package engine

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/entitynet/replicore/internal/channel"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/seq"
	"github.com/entitynet/replicore/pkg/telemetry"
)

// Remote is the Remote Engine: every entity this connection side currently
// observes (rather than authoritatively sends), keyed by its RemoteID
// value. It is deliberately not generic over the caller's GlobalEntity
// type - that translation is pkg/entitymap's job, one layer up, in
// pkg/connection.
type Remote struct {
	log     logr.Logger
	metrics *telemetry.Metrics

	streams map[uint16]*channel.Remote
}

// NewRemote creates an empty Remote Engine. A zero logr.Logger (which is
// logr.Discard()) and a nil *telemetry.Metrics are both valid - every
// instrumentation call in this package is a safe no-op in that case.
func NewRemote(log logr.Logger, metrics *telemetry.Metrics) *Remote {
	return &Remote{log: log, metrics: metrics, streams: make(map[uint16]*channel.Remote)}
}

// Get returns the Remote Entity Channel for localID, if one exists.
func (e *Remote) Get(localID uint16) (*channel.Remote, bool) {
	c, ok := e.streams[localID]
	return c, ok
}

// Len reports the number of live remote entity streams.
func (e *Remote) Len() int { return len(e.streams) }

// Adopt installs ch as the channel for localID, used by the migration
// coordinator to install a delegated channel obtained from the host side
// (§4.7 step 7). It errors if localID is already occupied - migration
// targeting an id already in use indicates upstream state corruption.
func (e *Remote) Adopt(localID uint16, ch *channel.Remote) error {
	if _, exists := e.streams[localID]; exists {
		return fmt.Errorf("engine: remote id %d already occupied", localID)
	}
	e.streams[localID] = ch
	return nil
}

// Remove deletes and returns the channel for localID, used when this side
// is the migration source (§4.7 step 5: "remove the source channel;
// deallocate it").
func (e *Remote) Remove(localID uint16) (*channel.Remote, bool) {
	c, ok := e.streams[localID]
	if ok {
		delete(e.streams, localID)
	}
	return c, ok
}

// HandleMessage routes one delivered (seq, message) pair to the entity
// stream for localID, lazily creating it first if msg is a Spawn and no
// stream exists yet (§4.2 step 2; the Migrate case is handled out of band
// by internal/migration via Adopt, not through this path). Returns the
// Observations the channel emitted.
func (e *Remote) HandleMessage(s seq.Seq, localID uint16, msg action.WireMessage) ([]channel.Observation, error) {
	c, ok := e.streams[localID]
	if !ok {
		if msg.Tag != action.TagSpawn {
			e.log.V(1).Info("dropping message for unknown remote entity", "localID", localID, "tag", msg.Tag, "seq", s)
			return nil, nil
		}
		c = channel.NewRemote()
		e.streams[localID] = c
	}

	obs, err := c.Receive(s, msg)
	if err != nil {
		e.log.Error(err, "remote entity channel error", "localID", localID, "tag", msg.Tag, "seq", s)
		return nil, err
	}
	if len(obs) == 0 {
		e.log.V(1).Info("dropped or buffered remote message", "localID", localID, "tag", msg.Tag, "seq", s)
	}
	return obs, nil
}

// DrainOutgoing extracts the queued outbound authority-protocol commands
// (RequestAuthority/ReleaseAuthority - §4.7 scenario 3) from every remote
// stream, keyed by local id, clearing each FIFO as it goes. Called once
// per tick by pkg/connection before transmission, mirroring Host's
// DrainOutgoing.
func (e *Remote) DrainOutgoing() map[uint16][]action.WireMessage {
	out := make(map[uint16][]action.WireMessage)
	for id, c := range e.streams {
		cmds := c.ExtractCommands()
		if len(cmds) > 0 {
			out[id] = cmds
		}
	}
	return out
}

// GC removes every tombstone-ready stream (§4.2 step 10), returning the
// number removed.
func (e *Remote) GC() int {
	removed := 0
	for id, c := range e.streams {
		if c.IsTombstoneReady() {
			delete(e.streams, id)
			removed++
		}
	}
	return removed
}

// ObserveBacklog reports this engine's aggregate entity-stream count to
// metrics, called once per tick by pkg/connection rather than per-message
// to avoid a gauge write on every delivery.
func (e *Remote) ObserveBacklog() {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveBacklogDepth("entity", len(e.streams))
}
