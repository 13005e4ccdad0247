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

package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnedLocalIDTagging(t *testing.T) {
	h := Host(42)
	assert.True(t, h.IsHost())
	assert.False(t, h.IsRemote())

	r := Remote(42)
	assert.True(t, r.IsRemote())
	assert.NotEqual(t, h, r, "host and remote tags with the same value must not collide")
}

func TestOwnedLocalIDComparable(t *testing.T) {
	a := Remote(7)
	b := Remote(7)
	c := Remote(8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	m := map[OwnedLocalID]int{a: 1}
	m[b] = 2
	assert.Len(t, m, 1, "equal OwnedLocalIDs must hash to the same map entry")
}

func TestPathDepthIsFixedAtTwo(t *testing.T) {
	e := Host(1)
	entityPath := EntityPath(e)
	componentPath := ComponentPath(e, ComponentKind(3))

	assert.Equal(t, PathEntity, entityPath.Kind)
	assert.Equal(t, PathComponent, componentPath.Kind)
	assert.NotEqual(t, entityPath, componentPath)

	m := map[Path]bool{entityPath: true, componentPath: true}
	assert.Len(t, m, 2)
}
