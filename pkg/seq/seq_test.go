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

package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfter(t *testing.T) {
	tests := []struct {
		comment string
		a, b    Seq
		want    bool
	}{
		{"successor is after", 2, 1, true},
		{"predecessor is not after", 1, 2, false},
		{"equal is not after", 5, 5, false},
		{"wraps forward across zero", 0, 65535, true},
		{"wraps backward across zero", 65535, 0, false},
		{"half-range boundary is after", Seq(MaxInFlight), 0, true},
		{"just past half-range boundary is not after", Seq(MaxInFlight) + 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			assert.Equal(t, tt.want, After(tt.a, tt.b))
		})
	}
}

func TestBeforeIsInverseOfAfter(t *testing.T) {
	assert.True(t, Before(1, 2))
	assert.False(t, Before(2, 1))
}

func TestInGuardBand(t *testing.T) {
	assert.False(t, InGuardBand(FlushThreshold-1))
	assert.True(t, InGuardBand(FlushThreshold))
	assert.True(t, InGuardBand(65535))
}

func TestWrapTraceAppliesInOrder(t *testing.T) {
	trace := []Seq{65530, 65531, 65532, 65533, 65534, 65535, 0, 1}
	for i := 1; i < len(trace); i++ {
		assert.Truef(t, After(trace[i], trace[i-1]), "%d should be after %d", trace[i], trace[i-1])
	}
}
