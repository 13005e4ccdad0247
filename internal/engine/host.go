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

package engine

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/entitynet/replicore/internal/channel"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/telemetry"
)

// Host is the Host Engine: every entity this connection side
// authoritatively sends updates for, keyed by its HostID value.
type Host struct {
	log     logr.Logger
	metrics *telemetry.Metrics

	streams map[uint16]*channel.Host
}

// NewHost creates an empty Host Engine.
func NewHost(log logr.Logger, metrics *telemetry.Metrics) *Host {
	return &Host{log: log, metrics: metrics, streams: make(map[uint16]*channel.Host)}
}

// Spawn creates a fresh Host Entity Channel for a newly, locally-spawned
// entity at localID, erroring if localID is already in use.
func (e *Host) Spawn(localID uint16) (*channel.Host, error) {
	if _, exists := e.streams[localID]; exists {
		return nil, fmt.Errorf("engine: host id %d already occupied", localID)
	}
	c := channel.NewHost()
	e.streams[localID] = c
	return c, nil
}

// Get returns the Host Entity Channel for localID, if one exists.
func (e *Host) Get(localID uint16) (*channel.Host, bool) {
	c, ok := e.streams[localID]
	return c, ok
}

// Len reports the number of live host entity streams.
func (e *Host) Len() int { return len(e.streams) }

// Adopt installs ch as the channel for localID, used by the migration
// coordinator when this side becomes the new host of an entity migrated
// from the remote side (§4.7 step 7).
func (e *Host) Adopt(localID uint16, ch *channel.Host) error {
	if _, exists := e.streams[localID]; exists {
		return fmt.Errorf("engine: host id %d already occupied", localID)
	}
	e.streams[localID] = ch
	return nil
}

// Remove deletes and returns the channel for localID, used when this side
// is the migration source, and when a locally-originated Despawn is
// finally acknowledged (§3 lifecycle: "destroyed on Despawn
// acknowledgment").
func (e *Host) Remove(localID uint16) (*channel.Host, bool) {
	c, ok := e.streams[localID]
	if ok {
		delete(e.streams, localID)
	}
	return c, ok
}

// HandleIncoming routes one delivered, already-redirect-resolved message
// addressed to the host side to the matching channel's incoming-authority
// handling (§4.6: authority pushes such as SetAuthority/
// EnableDelegationResponse/MigrateResponse are the only traffic the host
// side legitimately receives on the unified stream).
func (e *Host) HandleIncoming(localID uint16, msg action.WireMessage) []channel.Observation {
	c, ok := e.streams[localID]
	if !ok {
		e.log.V(1).Info("dropping incoming authority message for unknown host entity", "localID", localID, "tag", msg.Tag)
		return nil
	}
	obs := c.HandleIncoming(msg)
	if len(obs) == 0 {
		e.log.V(1).Info("incoming authority message had no effect", "localID", localID, "tag", msg.Tag)
	}
	return obs
}

// DrainOutgoing extracts the queued outbound commands from every host
// stream, keyed by local id, clearing each FIFO as it goes. Called once
// per tick by pkg/connection before transmission.
func (e *Host) DrainOutgoing() map[uint16][]action.WireMessage {
	out := make(map[uint16][]action.WireMessage)
	for id, c := range e.streams {
		cmds := c.ExtractCommands()
		if len(cmds) > 0 {
			out[id] = cmds
		}
	}
	return out
}

// ObserveBacklog reports this engine's aggregate entity-stream count to
// metrics, called once per tick by pkg/connection.
func (e *Host) ObserveBacklog() {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveBacklogDepth("entity", len(e.streams))
}
