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

// Package seq implements wrapping 16-bit sequence number arithmetic and the
// constants that bound the reliable-ordering window used throughout the
// replication core.
package seq

// Seq is a 16-bit wrapping sequence number, referred to in the protocol as
// the MessageIndex.
type Seq uint16

const (
	// MaxInFlight is the maximum number of outstanding unacknowledged
	// packets, half the 16-bit range, so that half-range comparisons
	// between any two in-flight sequence numbers are unambiguous.
	MaxInFlight = 32_767

	// FlushThreshold is the first sequence number of the guard band:
	// 65_536 - MaxInFlight. Streams whose last_seq reaches this value
	// are considered near wrap and purge stale pre-wrap backlog entries.
	FlushThreshold = 65_536 - MaxInFlight
)

// After reports whether a is strictly after b in the half-range sense:
// 0 < (a - b) mod 2^16 < 2^15.
func After(a, b Seq) bool {
	diff := uint16(a - b)
	return diff != 0 && diff < 0x8000
}

// AfterOrEqual reports whether a is after b or equal to b.
func AfterOrEqual(a, b Seq) bool {
	return a == b || After(a, b)
}

// Before reports whether a is strictly before b in the half-range sense.
func Before(a, b Seq) bool {
	return After(b, a)
}

// InGuardBand reports whether s falls within the upper guard band of the
// sequence space, i.e. s >= FlushThreshold.
func InGuardBand(s Seq) bool {
	return s >= FlushThreshold
}
