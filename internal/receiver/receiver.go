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

// Package receiver implements the Reliable Ordered Receiver (§4.1): a
// strictly-sequenced, de-duplicating delivery queue sitting directly above
// the transport, with no application-level logic of its own. It exists
// under internal/ purely because nothing outside pkg/connection needs to
// name it directly, not because it holds force-only operations.
package receiver

import (
	"fmt"

	"github.com/entitynet/replicore/pkg/seq"
)

// ErrBacklogFull is fatal (§7): the receiver's out-of-order backlog
// already holds maxBacklog (seq.MaxInFlight - 1) entries and received
// another.
var ErrBacklogFull = fmt.Errorf("receiver: backlog full")

// Delivery is one in-order, de-duplicated payload released to the caller.
type Delivery[T any] struct {
	Seq     seq.Seq
	Payload T
}

// maxBacklog is the buffered-entry cap enforced by Insert. It is kept one
// below seq.MaxInFlight rather than equal to it: the acceptable future
// window above expected (seq.After's definition of "not yet stale") has
// exactly seq.MaxInFlight members, so a cap of seq.MaxInFlight would let a
// full backlog occupy every window position at once, leaving no seq that
// is simultaneously in-window and not already buffered - the overflow
// guard below would never see anything but a duplicate. Capping one lower
// always leaves one window position free, so a fresh, legitimately
// in-window seq can still arrive and trip it.
const maxBacklog = seq.MaxInFlight - 1

// Receiver buffers out-of-order (seq, payload) pairs and releases them in
// strictly increasing order starting from an expected next seq, draining
// any contiguous run already buffered on every insert.
type Receiver[T any] struct {
	expected seq.Seq
	buffered map[seq.Seq]T
}

// New creates a Receiver whose first expected seq is 0, the convention
// used by every reference wiring in this module.
func New[T any]() *Receiver[T] {
	return &Receiver[T]{buffered: make(map[seq.Seq]T)}
}

// Insert records payload at s and returns every payload the insert makes
// newly deliverable, in order. A duplicate or already-passed seq is
// silently dropped (§7 recoverable/drop-silently) and yields no delivery.
func (r *Receiver[T]) Insert(s seq.Seq, payload T) ([]Delivery[T], error) {
	if s != r.expected {
		if !seq.After(s, r.expected) {
			return nil, nil // duplicate or stale: drop silently
		}
		if _, exists := r.buffered[s]; exists {
			return nil, nil // duplicate of an already-buffered out-of-order entry
		}
		if len(r.buffered) >= maxBacklog {
			return nil, fmt.Errorf("%w: at seq %d", ErrBacklogFull, s)
		}
		r.buffered[s] = payload
		return nil, nil
	}

	deliveries := []Delivery[T]{{Seq: s, Payload: payload}}
	r.expected = s + 1

	for {
		next, ok := r.buffered[r.expected]
		if !ok {
			break
		}
		delete(r.buffered, r.expected)
		deliveries = append(deliveries, Delivery[T]{Seq: r.expected, Payload: next})
		r.expected++
	}

	return deliveries, nil
}

// BacklogLen reports the number of out-of-order entries currently
// buffered awaiting their turn.
func (r *Receiver[T]) BacklogLen() int { return len(r.buffered) }

// Expected returns the next seq this receiver is waiting to deliver.
func (r *Receiver[T]) Expected() seq.Seq { return r.expected }
