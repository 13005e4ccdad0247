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

// Package action defines the unified entity action stream (§4.8): the
// closed set of wire tags, the generic entity-message envelope those tags
// carry, the application-facing events the core emits, and the two
// external contracts (Transport, Codec) the core depends on but never
// implements.
package action

import (
	"fmt"
	"io"

	"github.com/entitynet/replicore/pkg/ident"
)

// Tag is the fixed-width (4 bit) discriminator for an entity action. All
// entity-affecting traffic travels as one of these variants on a single
// totally-ordered reliable stream per direction; there is no secondary
// "system" channel.
type Tag uint8

const (
	TagSpawn Tag = iota
	TagDespawn
	TagInsertComponent
	TagRemoveComponent
	TagPublishEntity
	TagUnpublishEntity
	TagEnableDelegation
	TagEnableDelegationResponse
	TagDisableDelegation
	TagRequestAuthority
	TagReleaseAuthority
	TagUpdateAuthority
	TagMigrateResponse
	TagNoop

	tagCount // sentinel, keeps the enum closed and in range of 4 bits
)

func (t Tag) String() string {
	switch t {
	case TagSpawn:
		return "Spawn"
	case TagDespawn:
		return "Despawn"
	case TagInsertComponent:
		return "InsertComponent"
	case TagRemoveComponent:
		return "RemoveComponent"
	case TagPublishEntity:
		return "PublishEntity"
	case TagUnpublishEntity:
		return "UnpublishEntity"
	case TagEnableDelegation:
		return "EnableDelegation"
	case TagEnableDelegationResponse:
		return "EnableDelegationResponse"
	case TagDisableDelegation:
		return "DisableDelegation"
	case TagRequestAuthority:
		return "RequestAuthority"
	case TagReleaseAuthority:
		return "ReleaseAuthority"
	case TagUpdateAuthority:
		return "UpdateAuthority"
	case TagMigrateResponse:
		return "MigrateResponse"
	case TagNoop:
		return "Noop"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the closed set of wire tags.
func (t Tag) Valid() bool { return t < tagCount }

// EntitySpawnDespawn reports whether t is one of the two tags that
// participate in the Spawn/Despawn race-collapse rule (§4.2 step 6).
func (t Tag) EntitySpawnDespawn() bool {
	return t == TagSpawn || t == TagDespawn
}

// AuthStatus is the orthogonal status tracked by the authority channel,
// carried on the wire by an UpdateAuthority action.
type AuthStatus uint8

const (
	AuthStatusNone AuthStatus = iota
	AuthStatusAvailable
	AuthStatusRequested
	AuthStatusGranted
	AuthStatusDenied
	AuthStatusReleasing
)

func (s AuthStatus) String() string {
	switch s {
	case AuthStatusNone:
		return "None"
	case AuthStatusAvailable:
		return "Available"
	case AuthStatusRequested:
		return "Requested"
	case AuthStatusGranted:
		return "Granted"
	case AuthStatusDenied:
		return "Denied"
	case AuthStatusReleasing:
		return "Releasing"
	default:
		return fmt.Sprintf("AuthStatus(%d)", uint8(s))
	}
}

// Message is the entity-message envelope carried by the unified action
// stream, generic over the identifier representation: ID is
// ident.OwnedLocalID on the wire, but engines work with it after any
// redirect resolution has already been applied.
type Message[ID any] struct {
	Tag    Tag
	Entity ID

	// Component is populated for TagInsertComponent / TagRemoveComponent.
	Component ident.ComponentKind

	// TargetLocalID is populated for TagRequestAuthority: the u16 local id
	// of the side the request targets.
	TargetLocalID uint16

	// Status is populated for TagUpdateAuthority.
	Status AuthStatus

	// OldID/NewID are populated for TagMigrateResponse.
	OldID ID
	NewID ID
}

// WireMessage is the wire-level instantiation of Message, keyed by the
// tagged local identifier used on the wire within a connection.
type WireMessage = Message[ident.OwnedLocalID]

// EventKind discriminates the application-facing events the receiver
// emits, per §6.
type EventKind uint8

const (
	EventSpawn EventKind = iota
	EventDespawn
	EventInsertComponent
	EventRemoveComponent
	EventAuthGrant
	EventAuthDeny
	EventAuthRelease
	EventMigrateResponse
)

func (k EventKind) String() string {
	switch k {
	case EventSpawn:
		return "Spawn"
	case EventDespawn:
		return "Despawn"
	case EventInsertComponent:
		return "InsertComponent"
	case EventRemoveComponent:
		return "RemoveComponent"
	case EventAuthGrant:
		return "AuthGrant"
	case EventAuthDeny:
		return "AuthDeny"
	case EventAuthRelease:
		return "AuthRelease"
	case EventMigrateResponse:
		return "MigrateResponse"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is an application-facing observation, generic over the caller's
// own GlobalEntity handle type.
type Event[G comparable] struct {
	Kind      EventKind
	Entity    G
	Component ident.ComponentKind
	NewID     ident.OwnedLocalID // populated for EventMigrateResponse
}

// Transport is the sole contract with the unreliable datagram transport:
// opaque byte frames out, a packet index back for ack/drop bookkeeping.
// Acks and drops are delivered by the caller's I/O loop, not polled by the
// core - the transport itself, its handshake, and its retry policy are all
// out of scope (§1).
type Transport interface {
	Send(frame []byte) (packetIndex uint32, err error)
}

// Codec is the sole contract with the bit-level codec layer (§6). The core
// never implements it; bit-packing, fixed-width tag encoding and
// short-read handling all live on the caller's side of this interface.
type Codec interface {
	EncodeAction(w io.Writer, msg WireMessage) error
	DecodeAction(r io.Reader) (WireMessage, error)
}
