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

// Package component implements the Remote Component Channel (§4.3): the
// per-component FSM tracking whether a component is logically present on
// an entity owned by the remote side, tolerant of out-of-order and
// duplicate delivery relative to the owning entity's spawn_seq.
//
// Like internal/authority, this lives under internal/ because ForceDrain
// exists purely to make migration's component-state extraction atomic
// (§4.7, §9) and must stay unreachable outside this module.
package component

import (
	"sort"

	"github.com/entitynet/replicore/pkg/seq"
)

// Op is the kind of operation buffered/applied against a component
// channel.
type Op uint8

const (
	OpInsert Op = iota
	OpRemove
)

func (o Op) String() string {
	if o == OpInsert {
		return "Insert"
	}
	return "Remove"
}

type bufferedOp struct {
	seq seq.Seq
	op  Op
}

// Channel is the Remote Component Channel: it tracks whether one
// (entity, component kind) pair is logically inserted, buffering
// operations that arrive out of order relative to the entity's spawn_seq
// until they can be applied in seq order.
type Channel struct {
	inserted bool
	lastSeq  seq.Seq
	hasLast  bool
	buffered []bufferedOp
}

// New creates an empty, NotInserted component channel.
func New() *Channel {
	return &Channel{}
}

// IsInserted reports the current terminal value after applying all
// delivered operations in seq order (§4.3 contract).
func (c *Channel) IsInserted() bool { return c.inserted }

// Apply attempts to apply op at s directly. If s is not strictly after the
// channel's last applied seq (half-range comparison), op is neither
// applied nor buffered: Apply returns false and leaves it to the caller to
// decide whether to Buffer it. Returns true if op was applied immediately.
func (c *Channel) Apply(s seq.Seq, op Op) bool {
	if c.hasLast && !seq.After(s, c.lastSeq) {
		return false
	}
	c.apply(s, op)
	return true
}

// Buffer appends op at s to the backlog unconditionally, used by the
// owning entity channel when it has already decided (via its own
// spawn_seq/guard-band logic) that this operation cannot be applied yet.
func (c *Channel) Buffer(s seq.Seq, op Op) {
	c.buffered = append(c.buffered, bufferedOp{seq: s, op: op})
}

// DrainReady repeatedly applies the earliest buffered operation that is
// now eligible (strictly after lastSeq), stopping when none remain
// eligible. This is the component-scoped analogue of §4.2 step 9's backlog
// drain.
func (c *Channel) DrainReady() {
	for {
		idx, s, op, ok := c.earliestEligible()
		if !ok {
			return
		}
		c.apply(s, op)
		c.buffered = append(c.buffered[:idx], c.buffered[idx+1:]...)
	}
}

func (c *Channel) earliestEligible() (int, seq.Seq, Op, bool) {
	best := -1
	for i, b := range c.buffered {
		if c.hasLast && !seq.After(b.seq, c.lastSeq) {
			continue
		}
		if best == -1 || seq.Before(b.seq, c.buffered[best].seq) {
			best = i
		}
	}
	if best == -1 {
		return 0, 0, OpInsert, false
	}
	return best, c.buffered[best].seq, c.buffered[best].op, true
}

func (c *Channel) apply(s seq.Seq, op Op) {
	c.inserted = op == OpInsert
	c.lastSeq = s
	c.hasLast = true
}

// PurgeBelow discards buffered entries with seq strictly less than
// threshold, implementing the guard-band purge of §4.2 step 8 scoped to
// this component's backlog.
func (c *Channel) PurgeBelow(threshold seq.Seq) {
	kept := c.buffered[:0]
	for _, b := range c.buffered {
		if !seq.Before(b.seq, threshold) {
			kept = append(kept, b)
		}
	}
	c.buffered = kept
}

// BacklogLen reports the number of buffered, not-yet-applied operations.
func (c *Channel) BacklogLen() int { return len(c.buffered) }

// ForceDrain applies the buffered operations in seq order and then empties
// the backlog; an operation whose seq is not strictly after the last
// applied seq at its turn is discarded rather than applied. It is used by
// migration (§4.7 step 2) to
// extract the fully-resolved terminal state of a component channel before
// handing entity ownership to the other side. Unreachable from outside
// this module - see the package doc comment.
func (c *Channel) ForceDrain() {
	sort.Slice(c.buffered, func(i, j int) bool {
		return seq.Before(c.buffered[i].seq, c.buffered[j].seq)
	})
	for _, b := range c.buffered {
		if c.hasLast && !seq.After(b.seq, c.lastSeq) {
			continue
		}
		c.apply(b.seq, b.op)
	}
	c.buffered = nil
}

// ForceSet overwrites the inserted flag directly, used by migration to
// seed a freshly-created component channel on the new owning side with
// the terminal value extracted from the old side's ForceDrain (§4.7 step
// 7). Unreachable from outside this module.
func (c *Channel) ForceSet(inserted bool) {
	c.inserted = inserted
}
