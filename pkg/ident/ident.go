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

// Package ident defines the wire-representable identifier types shared by
// every layer of the replication core: the per-direction local handles, the
// tagged OwnedLocalID union used on the wire, and the two-variant Path that
// a stream is keyed by. GlobalEntity is intentionally not defined as a
// concrete type here - callers supply their own comparable entity handle as
// a type parameter on the generic containers in pkg/entitymap and
// pkg/connection.
package ident

import "fmt"

// HostID is a per-connection local identifier on the side that currently
// authoritatively sends updates for an entity.
type HostID uint16

// RemoteID is a per-connection local identifier on the side that currently
// receives updates for an entity.
type RemoteID uint16

// ComponentKind discriminates a component type. It has no meaning beyond
// equality and ordering; the core never inspects component payloads.
type ComponentKind uint32

// Side tags which half of a connection an OwnedLocalID refers to. It is a
// closed two-value enum, not an interface - the wire format reserves exactly
// one bit for it.
type Side uint8

const (
	SideHost Side = iota
	SideRemote
)

func (s Side) String() string {
	switch s {
	case SideHost:
		return "host"
	case SideRemote:
		return "remote"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// OwnedLocalID is the tagged local identifier used on the wire within a
// connection: either Host(u16) or Remote(u16).
type OwnedLocalID struct {
	Side  Side
	Value uint16
}

// Host builds an OwnedLocalID tagged for the host side.
func Host(v uint16) OwnedLocalID { return OwnedLocalID{Side: SideHost, Value: v} }

// Remote builds an OwnedLocalID tagged for the remote side.
func Remote(v uint16) OwnedLocalID { return OwnedLocalID{Side: SideRemote, Value: v} }

// IsHost reports whether id refers to the host side.
func (id OwnedLocalID) IsHost() bool { return id.Side == SideHost }

// IsRemote reports whether id refers to the remote side.
func (id OwnedLocalID) IsRemote() bool { return id.Side == SideRemote }

func (id OwnedLocalID) String() string {
	return fmt.Sprintf("%s(%d)", id.Side, id.Value)
}

// PathKind discriminates the two legal path shapes. MAX_DEPTH is fixed at 2
// (entity, component); this type cannot express any other arity.
type PathKind uint8

const (
	PathEntity PathKind = iota
	PathComponent
)

// Path is the per-stream key an engine uses to look up a channel's FSM and
// backlog. A Path of kind PathEntity addresses an entire entity stream; one
// of kind PathComponent addresses a single component within that entity.
type Path struct {
	Kind      PathKind
	Entity    OwnedLocalID
	Component ComponentKind
}

// EntityPath builds a Path addressing the whole entity stream.
func EntityPath(entity OwnedLocalID) Path {
	return Path{Kind: PathEntity, Entity: entity}
}

// ComponentPath builds a Path addressing one component of entity.
func ComponentPath(entity OwnedLocalID, kind ComponentKind) Path {
	return Path{Kind: PathComponent, Entity: entity, Component: kind}
}

func (p Path) String() string {
	if p.Kind == PathEntity {
		return p.Entity.String()
	}
	return fmt.Sprintf("%s/component(%d)", p.Entity, p.Component)
}
