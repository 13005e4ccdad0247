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

package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagSetFitsFourBits(t *testing.T) {
	assert.LessOrEqual(t, int(tagCount), 16, "the wire format reserves exactly 4 bits for the tag")
	assert.GreaterOrEqual(t, int(tagCount), 14, "the spec requires at least 14 supported variants")
}

func TestTagValid(t *testing.T) {
	assert.True(t, TagNoop.Valid())
	assert.False(t, tagCount.Valid())
	assert.False(t, Tag(200).Valid())
}

func TestEntitySpawnDespawnRaceTags(t *testing.T) {
	assert.True(t, TagSpawn.EntitySpawnDespawn())
	assert.True(t, TagDespawn.EntitySpawnDespawn())
	assert.False(t, TagInsertComponent.EntitySpawnDespawn())
}
