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

// Package authority implements the per-entity Authority Channel state
// machine (§4.6): the State/Status pair tracking publication, delegation
// and authority, and the transition table that decides which commands are
// legal from the current state.
//
// This package lives under internal/ rather than pkg/ deliberately: its
// Force* methods and the NewDelegated bootstrap constructor exist solely
// to make entity migration atomic (§4.7, §9 "Force operations") and must
// never be reachable from an application embedding this library. Placing
// the package under internal/ makes that a compiler-enforced guarantee
// rather than a documentation convention - an importer outside this module
// cannot name this package at all. The only supported entry point for an
// application is pkg/connection.
package authority

import (
	"errors"
	"fmt"

	"github.com/entitynet/replicore/pkg/action"
)

// State is the coarse publication/delegation state of an entity's
// authority channel.
type State uint8

const (
	StateUnpublished State = iota
	StatePublished
	StateDelegated
)

func (s State) String() string {
	switch s {
	case StateUnpublished:
		return "Unpublished"
	case StatePublished:
		return "Published"
	case StateDelegated:
		return "Delegated"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ErrInvalidTransition is returned (never panicked) when a command is not
// legal from the channel's current state - a recoverable/report error per
// §7, surfaced to the application as an explicit decision rather than a
// connection-ending fault.
var ErrInvalidTransition = errors.New("authority: command invalid for current state")

// Channel is the per-entity authority state machine. It is independent of
// engine direction: both a Host Entity Channel and a Remote Entity Channel
// embed one.
type Channel struct {
	state  State
	status action.AuthStatus
}

// New creates a fresh, Unpublished/None authority channel for a newly
// locally-spawned entity.
func New() *Channel {
	return &Channel{state: StateUnpublished, status: action.AuthStatusNone}
}

// NewDelegated creates an authority channel already in the Delegated state
// with the given status, pre-populated the way §4.4 and §4.7 require for
// an entity channel obtained via migration ("delegated flavor" / step 7 of
// the migration procedure). This is a deliberate bootstrap constructor, not
// a Force method: it only ever produces a channel in a state the normal
// transition table also allows reaching (Delegated, via EnableDelegation),
// it simply skips the intermediate tick.
func NewDelegated(status action.AuthStatus) *Channel {
	return &Channel{state: StateDelegated, status: status}
}

// State returns the channel's current State.
func (c *Channel) State() State { return c.state }

// Status returns the channel's current AuthStatus.
func (c *Channel) Status() action.AuthStatus { return c.status }

// Publish applies Unpublished -> Published.
func (c *Channel) Publish() error {
	if c.state != StateUnpublished {
		return fmt.Errorf("%w: Publish from %s", ErrInvalidTransition, c.state)
	}
	c.state = StatePublished
	return nil
}

// Unpublish applies Published -> Unpublished.
func (c *Channel) Unpublish() error {
	if c.state != StatePublished {
		return fmt.Errorf("%w: Unpublish from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateUnpublished
	return nil
}

// EnableDelegation applies Published -> Delegated, status becomes Available.
func (c *Channel) EnableDelegation() error {
	if c.state != StatePublished {
		return fmt.Errorf("%w: EnableDelegation from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateDelegated
	c.status = action.AuthStatusAvailable
	return nil
}

// DisableDelegation applies Delegated -> Unpublished, only legal when
// status is Available. This transition is driven by an incoming action
// from the peer (the entity channel that owns this authority channel
// applies it while routing a received DisableDelegation message); it is
// distinct from, and more permissive than, CanEnqueue(TagDisableDelegation)
// below, which governs whether *this* side may originate such a command
// while Delegated (it may not - see CanEnqueue's doc comment).
func (c *Channel) DisableDelegation() error {
	if c.state != StateDelegated {
		return fmt.Errorf("%w: DisableDelegation from %s", ErrInvalidTransition, c.state)
	}
	if c.status != action.AuthStatusAvailable {
		return fmt.Errorf("%w: DisableDelegation while status=%s", ErrInvalidTransition, c.status)
	}
	c.state = StateUnpublished
	c.status = action.AuthStatusNone
	return nil
}

// RequestAuthority applies Available -> Requested.
func (c *Channel) RequestAuthority() error {
	if c.state != StateDelegated || c.status != action.AuthStatusAvailable {
		return fmt.Errorf("%w: RequestAuthority while state=%s status=%s", ErrInvalidTransition, c.state, c.status)
	}
	c.status = action.AuthStatusRequested
	return nil
}

// ReleaseAuthority applies Granted -> Releasing.
func (c *Channel) ReleaseAuthority() error {
	if c.state != StateDelegated || c.status != action.AuthStatusGranted {
		return fmt.Errorf("%w: ReleaseAuthority while state=%s status=%s", ErrInvalidTransition, c.state, c.status)
	}
	c.status = action.AuthStatusReleasing
	return nil
}

// SetAuthority applies an incoming UpdateAuthority action's status. Granted
// and Denied are only legal from Requested; a Releasing->Available ack is
// only legal from Releasing. Denied is a self-resolving transient: per
// invariant 7 (no latent "stuck" states), a denied request immediately
// returns the channel to Available so the next RequestAuthority is
// accepted, rather than leaving the caller stuck in Denied forever. The
// caller is still responsible for emitting the AuthDeny application event,
// deciding it from the incoming status since the channel already reads
// Available once this method returns; see internal/channel's routing of
// TagUpdateAuthority.
func (c *Channel) SetAuthority(status action.AuthStatus) error {
	if c.state != StateDelegated {
		return fmt.Errorf("%w: SetAuthority(%s) from state=%s", ErrInvalidTransition, status, c.state)
	}
	switch status {
	case action.AuthStatusGranted, action.AuthStatusDenied:
		if c.status != action.AuthStatusRequested {
			return fmt.Errorf("%w: SetAuthority(%s) while status=%s", ErrInvalidTransition, status, c.status)
		}
		if status == action.AuthStatusDenied {
			c.status = action.AuthStatusAvailable
			return nil
		}
		c.status = status
		return nil
	case action.AuthStatusAvailable:
		if c.status != action.AuthStatusReleasing {
			return fmt.Errorf("%w: SetAuthority(Available) while status=%s", ErrInvalidTransition, c.status)
		}
		c.status = action.AuthStatusAvailable
		return nil
	default:
		return fmt.Errorf("%w: SetAuthority(%s) not a legal server-driven status", ErrInvalidTransition, status)
	}
}

// CanEnqueue reports whether a locally-originated command of tag t is
// legal to enqueue given the channel's current state, for use by the Host
// Entity Channel's enqueue-time validation (§4.5: "invalid commands for
// the current authority state are rejected at enqueue time"). While
// Delegated, Publish/Unpublish/EnableDelegation/DisableDelegation may
// never be locally originated - those four are server-mediated actions
// this side only ever receives, never sends, once delegation is enabled.
func (c *Channel) CanEnqueue(t action.Tag) bool {
	switch c.state {
	case StateUnpublished:
		return t == action.TagPublishEntity
	case StatePublished:
		return t == action.TagUnpublishEntity ||
			t == action.TagEnableDelegation ||
			t == action.TagInsertComponent ||
			t == action.TagRemoveComponent ||
			t == action.TagDespawn
	case StateDelegated:
		switch t {
		case action.TagPublishEntity, action.TagUnpublishEntity,
			action.TagEnableDelegation, action.TagDisableDelegation:
			return false
		case action.TagRequestAuthority:
			return c.status == action.AuthStatusAvailable
		case action.TagReleaseAuthority:
			return c.status == action.AuthStatusGranted
		case action.TagInsertComponent, action.TagRemoveComponent, action.TagDespawn:
			return c.status == action.AuthStatusGranted
		case action.TagMigrateResponse, action.TagUpdateAuthority:
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// ForceSync overwrites state and status directly, bypassing the normal
// transition table. It exists solely for migration bootstrapping (§4.7
// step 11: "write the post-migration status... via the force-set
// operation, matching the globally tracked status") and for force-draining
// a buffered backlog of authority-affecting messages during migration
// (§4.7 step 2), where applying each buffered message through the normal
// validated path could legitimately fail on a transient FSM mismatch that
// the force-drain is specifically allowed to paper over. Unreachable from
// outside this module - see the package doc comment.
func (c *Channel) ForceSync(state State, status action.AuthStatus) {
	c.state = state
	c.status = status
}
