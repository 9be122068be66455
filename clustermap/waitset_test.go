// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package clustermap

import (
	"testing"

	"github.com/cubefs/mdsd/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitSets_ReleaseUpToReleasesInAscendingOrder(t *testing.T) {
	w := NewWaitSets()
	var order []int

	w.WaitForEpoch(5, func() { order = append(order, 5) })
	w.WaitForEpoch(2, func() { order = append(order, 2) })
	w.WaitForEpoch(8, func() { order = append(order, 8) })
	w.WaitForEpoch(2, func() { order = append(order, -2) })

	conts := w.ReleaseUpTo(5)
	require.Len(t, conts, 3, "epochs 2 and 5 release, 8 stays pending")
	Run(conts)

	assert.Equal(t, []int{2, -2, 5}, order)
}

func TestWaitSets_ReleaseUpToIsOneShot(t *testing.T) {
	w := NewWaitSets()
	w.WaitForEpoch(3, func() {})

	first := w.ReleaseUpTo(3)
	assert.Len(t, first, 1)

	second := w.ReleaseUpTo(3)
	assert.Empty(t, second, "an already-released epoch must not release again")
}

func TestWaitSets_ReleasePeerIsolatesByRank(t *testing.T) {
	w := NewWaitSets()
	var fired []proto.Rank
	w.WaitForActivePeer(proto.Rank(1), func() { fired = append(fired, 1) })
	w.WaitForActivePeer(proto.Rank(2), func() { fired = append(fired, 2) })

	Run(w.ReleasePeer(proto.Rank(1)))

	assert.Equal(t, []proto.Rank{1}, fired)

	Run(w.ReleasePeer(proto.Rank(1)))
	assert.Equal(t, []proto.Rank{1}, fired, "releasing an already-drained rank must be a no-op")

	Run(w.ReleasePeer(proto.Rank(2)))
	assert.Equal(t, []proto.Rank{1, 2}, fired)
}

func TestWaitSets_ReleaseUpToWithNoWaitersReturnsEmpty(t *testing.T) {
	w := NewWaitSets()
	assert.Empty(t, w.ReleaseUpTo(100))
}
