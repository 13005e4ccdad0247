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

// Package migration implements the Migration Coordinator (§4.7): the
// single-tick procedure that moves an entity's ownership from one side of
// a connection to the other without losing component state or queued
// commands. It is grounded on the handoff shape AIStore's rebalance and
// metasync subsystems use to move object ownership between targets -
// force-resolve everything outstanding on the source, extract its
// terminal state, install it on the target, and only then retire the
// source - re-expressed at entity granularity instead of object-shard
// granularity.
package migration

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/entitynet/replicore/internal/authority"
	"github.com/entitynet/replicore/internal/channel"
	"github.com/entitynet/replicore/internal/engine"
	"github.com/entitynet/replicore/internal/sentcmd"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/entitymap"
	"github.com/entitynet/replicore/pkg/ident"
	"github.com/entitynet/replicore/pkg/seq"
	"github.com/entitynet/replicore/pkg/telemetry"
)

// ErrWrongDirection is fatal (§7, §4.7): migration was invoked for an
// entity that is not currently hosted on the expected source side.
var ErrWrongDirection = errors.New("migration: entity not found on expected source side")

// ErrEntityNotFound is fatal: the GlobalEntity has no mapping at all.
var ErrEntityNotFound = errors.New("migration: global entity has no local mapping")

// ErrAuthoritySyncViolated is fatal: invariant 2 (the authority channel's
// status must equal the globally tracked status post-transition) did not
// hold immediately after the force-sync step.
var ErrAuthoritySyncViolated = errors.New("migration: authority sync invariant violated")

// Result carries the outcome of a completed migration: the new local id
// installed on the target side, and the Observations the target channel
// produced (always including an EventAuthGrant per §4.7 step 12 when this
// side just obtained authority).
type Result struct {
	NewID ident.OwnedLocalID
	Obs   []channel.Observation
}

// HostToRemote moves global's authority away from this side, per §4.7.
// hostEngine is the source; remoteEngine is the target. newRemoteValue is
// the identifier to install on the remote side - the caller resolves
// "reuse the one delivered in MigrateResponse, or allocate a fresh one
// locally" (step 6) before calling in, since only pkg/connection knows
// which case applies. postStatus is the status to force-sync into the new
// channel's authority state (step 11) - typically AuthStatusAvailable,
// since the peer that is about to host the entity is the one that holds
// Granted.
func HostToRemote[G comparable](
	now time.Time,
	global G,
	entities *entitymap.Map[G],
	redirects *entitymap.RedirectTable,
	sent *sentcmd.Record,
	hostEngine *engine.Host,
	remoteEngine *engine.Remote,
	newRemoteValue uint16,
	spawnSeq seq.Seq,
	postStatus action.AuthStatus,
	log logr.Logger,
	metrics *telemetry.Metrics,
) (Result, error) {
	oldLocal, ok := entities.LocalFor(global)
	if !ok {
		return Result{}, fmt.Errorf("%w: %v", ErrEntityNotFound, global)
	}
	if !oldLocal.IsHost() {
		return Result{}, fmt.Errorf("%w: %v is not host-side", ErrWrongDirection, global)
	}

	src, ok := hostEngine.Get(oldLocal.Value)
	if !ok {
		return Result{}, fmt.Errorf("%w: host engine has no channel for %v", ErrWrongDirection, oldLocal)
	}

	// Step 2 (force-drain): the Host Entity Channel applies incoming
	// authority pushes immediately rather than buffering them (see
	// internal/channel.Host.HandleIncoming's doc comment), so there is no
	// backlog to resolve here - the step is a no-op on this side by
	// construction, not skipped.
	kinds := src.ExtractComponentKinds() // step 3

	hostEngine.Remove(oldLocal.Value) // step 5

	newLocal := ident.Remote(newRemoteValue) // step 6

	target := channel.NewRemoteDelegated(kinds, postStatus, spawnSeq) // step 7

	if err := remoteEngine.Adopt(newRemoteValue, target); err != nil {
		return Result{}, fmt.Errorf("migration: adopting remote target: %w", err)
	}

	entities.RemoveByGlobal(global)
	if err := entities.Insert(global, newLocal); err != nil { // step 8
		return Result{}, fmt.Errorf("migration: updating entity map: %w", err)
	}

	redirects.Install(oldLocal, newLocal, now) // step 9
	sent.RewriteEntity(oldLocal, newLocal)     // step 10

	// Step 11: NewRemoteDelegated already constructed target's authority
	// channel via authority.NewDelegated(postStatus), which is this
	// package's documented bootstrap path for "force-set the post-
	// migration status" - no second ForceSync call is needed.
	if target.Auth().State() != authority.StateDelegated || target.Auth().Status() != postStatus {
		return Result{}, fmt.Errorf("%w: %v", ErrAuthoritySyncViolated, global)
	}

	metrics.IncMigrationsTotal()
	log.Info("entity migrated", "entity", global, "from", oldLocal, "to", newLocal)

	return Result{NewID: newLocal, Obs: nil}, nil
}

// RemoteToHost moves global's authority onto this side, per §4.7. This is
// the "client-side direction" the spec calls out for steps 4/12: the side
// gaining authority is the one that goes on to originate entity commands,
// so any authority-protocol commands the application had already queued
// on the Remote Entity Channel (RequestAuthority/ReleaseAuthority - see
// internal/channel.Remote.EnqueueCommand) are retained across the handoff
// instead of silently discarded, and an AuthGrant observation is always
// produced.
func RemoteToHost[G comparable](
	now time.Time,
	global G,
	entities *entitymap.Map[G],
	redirects *entitymap.RedirectTable,
	sent *sentcmd.Record,
	remoteEngine *engine.Remote,
	hostEngine *engine.Host,
	newHostValue uint16,
	postStatus action.AuthStatus,
	log logr.Logger,
	metrics *telemetry.Metrics,
) (Result, error) {
	oldLocal, ok := entities.LocalFor(global)
	if !ok {
		return Result{}, fmt.Errorf("%w: %v", ErrEntityNotFound, global)
	}
	if !oldLocal.IsRemote() {
		return Result{}, fmt.Errorf("%w: %v is not remote-side", ErrWrongDirection, global)
	}

	src, ok := remoteEngine.Get(oldLocal.Value)
	if !ok {
		return Result{}, fmt.Errorf("%w: remote engine has no channel for %v", ErrWrongDirection, oldLocal)
	}

	src.ForceDrainAll() // step 2

	kinds := src.ExtractInsertedComponentKinds() // step 3

	pending := src.ExtractCommands() // step 4 (extract)

	remoteEngine.Remove(oldLocal.Value) // step 5

	newLocal := ident.Host(newHostValue) // step 6

	target := channel.NewHostWithComponents(kinds) // step 7

	if err := hostEngine.Adopt(newHostValue, target); err != nil {
		return Result{}, fmt.Errorf("migration: adopting host target: %w", err)
	}

	entities.RemoveByGlobal(global)
	if err := entities.Insert(global, newLocal); err != nil { // step 8
		return Result{}, fmt.Errorf("migration: updating entity map: %w", err)
	}

	redirects.Install(oldLocal, newLocal, now) // step 9
	sent.RewriteEntity(oldLocal, newLocal)     // step 10

	// Step 11: force-sync the post-migration authority status into the
	// new host channel. ForceSync overwrites state and status at once, so
	// the fresh Unpublished channel moves straight to Delegated without
	// Publish/EnableDelegation running first, matching the globally
	// tracked status this entity now has.
	target.Auth().ForceSync(authority.StateDelegated, postStatus)

	if target.Auth().State() != authority.StateDelegated || target.Auth().Status() != postStatus {
		return Result{}, fmt.Errorf("%w: %v", ErrAuthoritySyncViolated, global)
	}

	retained := channel.FilterRetainedCommands(pending, target.Auth()) // step 4 (filter)
	for _, cmd := range retained {                                     // step 12 (re-enqueue)
		if err := target.Enqueue(cmd); err != nil {
			log.V(1).Info("dropping retained command that no longer validates post-migration", "entity", global, "tag", cmd.Tag, "err", err)
		}
	}

	metrics.IncMigrationsTotal()
	log.Info("entity migrated", "entity", global, "from", oldLocal, "to", newLocal)

	return Result{
		NewID: newLocal,
		Obs:   []channel.Observation{{Kind: action.EventAuthGrant}},
	}, nil
}
