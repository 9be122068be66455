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

package daemon

import (
	"context"
	"testing"

	"github.com/cubefs/mdsd/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuicide_TearsDownAndIsIdempotent(t *testing.T) {
	c, cache, osd, messenger, monitor, _, _, _ := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx := context.Background()

	c.Suicide(ctx, "test suicide")

	require.True(t, c.IsStopping())
	assert.Contains(t, cache.snapshotActions(), "shutdown")
	assert.True(t, osd.closed)
	assert.True(t, messenger.closed)
	assert.True(t, monitor.closed)
	assert.True(t, monitor.terminated)
	assert.Equal(t, "test suicide", monitor.terminateAt)

	// calling it again must be a pure no-op, not a second teardown.
	osd.closed = false
	c.Suicide(ctx, "second call")
	assert.False(t, osd.closed, "suicide must be idempotent")
}

func TestDamaged_FlushesBeaconThenRespawns(t *testing.T) {
	c, _, _, _, _, _, beacon, respawner := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx := context.Background()

	var flushed bool
	c.oplogFlush = func(ctx context.Context) { flushed = true }

	triggered := expectRespawn(func() {
		c.Damaged(ctx, "invariant violated")
	})

	assert.True(t, triggered, "damaged must end in a respawn")
	assert.True(t, flushed, "operator log must be flushed before respawn")
	require.Len(t, beacon.sent, 1)
	assert.Equal(t, "invariant violated", beacon.sent[0].Summary)
	assert.True(t, respawner.wasCalled())
	assert.Equal(t, proto.StateDamaged, c.Snapshot().Desired)
}

func TestRequestRespawn_SkipsOplogAndBeacon(t *testing.T) {
	c, _, _, _, _, _, beacon, respawner := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx := context.Background()

	var flushed bool
	c.oplogFlush = func(ctx context.Context) { flushed = true }

	triggered := expectRespawn(func() {
		c.RequestRespawn(ctx, "operator requested")
	})

	assert.True(t, triggered, "admin respawn must end in a respawn")
	assert.True(t, respawner.wasCalled())
	assert.False(t, flushed, "admin respawn is not an invariant violation, no oplog flush")
	assert.Empty(t, beacon.sent, "admin respawn does not send a synchronous health beacon")
}

func TestRespawn_FallsBackToSuicideWithoutRespawner(t *testing.T) {
	cache := &fakeCache{}
	c := New(BootConfig{GlobalID: 1, Name: "a"}, Deps{Cache: cache})
	ctx := context.Background()

	// No panic expected: with no Respawner wired, respawn degrades to
	// suicide rather than calling a nil interface.
	c.respawnLocked(ctx, "rank reassigned")

	assert.True(t, c.IsStopping())
	assert.Contains(t, cache.snapshotActions(), "shutdown")
}

func TestRequestStop_ActiveToStoppingToStopped(t *testing.T) {
	c, cache, _, _, _, _, _, _ := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx := context.Background()

	c.HandleClusterMap(ctx, mapWithSelf(1, 1, 0, proto.StateActive, 1))
	require.Equal(t, proto.StateActive, c.Snapshot().Current)

	c.RequestStop(ctx)

	snap := c.Snapshot()
	assert.Equal(t, proto.StateStopped, snap.Current)
	assert.Equal(t, proto.StateStopped, snap.Desired)
	assert.Contains(t, cache.snapshotActions(), "stopping")

	// calling it again once already Stopped must be a no-op, not a
	// second pass through the Stopping entry action.
	actionsBefore := len(cache.snapshotActions())
	c.RequestStop(ctx)
	assert.Equal(t, actionsBefore, len(cache.snapshotActions()))
}
