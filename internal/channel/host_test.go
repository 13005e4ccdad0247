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

package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitynet/replicore/internal/authority"
	"github.com/entitynet/replicore/pkg/action"
	"github.com/entitynet/replicore/pkg/ident"
)

func TestHostEnqueueRejectsCommandInvalidForAuthorityState(t *testing.T) {
	h := NewHost()
	err := h.Enqueue(action.WireMessage{Tag: action.TagInsertComponent})
	assert.ErrorIs(t, err, ErrCommandRejected)
}

func TestHostEnqueueAcceptsPublishThenTracksComponents(t *testing.T) {
	h := NewHost()
	require.NoError(t, h.Enqueue(action.WireMessage{Tag: action.TagPublishEntity}))
	require.NoError(t, h.Auth().Publish()) // mirror the local FSM advance the real engine drives

	require.NoError(t, h.Enqueue(action.WireMessage{Tag: action.TagInsertComponent, Component: 4}))
	assert.ElementsMatch(t, []ident.ComponentKind{4}, h.ExtractComponentKinds())
}

func TestHostExtractCommandsDrainsFIFO(t *testing.T) {
	h := NewHost()
	require.NoError(t, h.Enqueue(action.WireMessage{Tag: action.TagPublishEntity}))
	cmds := h.ExtractCommands()
	require.Len(t, cmds, 1)
	assert.Empty(t, h.ExtractCommands())
}

func TestNewHostWithComponentsPrePopulates(t *testing.T) {
	h := NewHostWithComponents([]ident.ComponentKind{1, 2})
	assert.ElementsMatch(t, []ident.ComponentKind{1, 2}, h.ExtractComponentKinds())
}

func TestFilterRetainedCommandsDropsDelegationToggles(t *testing.T) {
	cmds := []action.WireMessage{
		{Tag: action.TagPublishEntity},
		{Tag: action.TagInsertComponent, Component: 1},
	}
	post := authority.NewDelegated(action.AuthStatusGranted)

	retained := FilterRetainedCommands(cmds, post)
	require.Len(t, retained, 1)
	assert.Equal(t, action.TagInsertComponent, retained[0].Tag)
}
