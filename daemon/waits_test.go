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
	"time"

	"github.com/cubefs/mdsd/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForMap_ReturnsImmediatelyIfAlreadySatisfied(t *testing.T) {
	c, _, _, _, _, _, _, _ := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx := context.Background()

	c.HandleClusterMap(ctx, mapWithSelf(5, 1, 0, proto.StateActive, 1))

	done := make(chan error, 1)
	go func() { done <- c.WaitForMap(ctx, 5) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForMap did not return for an already-satisfied epoch")
	}
}

func TestWaitForMap_ReleasedByLaterMap(t *testing.T) {
	c, _, _, _, _, _, _, _ := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx := context.Background()

	c.HandleClusterMap(ctx, mapWithSelf(1, 1, 0, proto.StateActive, 1))

	done := make(chan error, 1)
	go func() { done <- c.WaitForMap(ctx, 3) }()

	select {
	case <-done:
		t.Fatal("WaitForMap returned before epoch 3 was observed")
	case <-time.After(50 * time.Millisecond):
	}

	c.HandleClusterMap(ctx, mapWithSelf(2, 1, 0, proto.StateActive, 1))
	select {
	case <-done:
		t.Fatal("WaitForMap returned before its target epoch was reached")
	case <-time.After(20 * time.Millisecond):
	}

	c.HandleClusterMap(ctx, mapWithSelf(3, 1, 0, proto.StateActive, 1))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForMap was not released by the satisfying epoch")
	}
}

func TestWaitForMap_ContextCancellation(t *testing.T) {
	c, _, _, _, _, _, _, _ := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.WaitForMap(ctx, 10) }()

	select {
	case <-done:
		t.Fatal("WaitForMap returned before cancellation")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitForMap did not observe context cancellation")
	}
}

func TestWaitForActivePeer_ReturnsImmediatelyIfAlreadyActive(t *testing.T) {
	c, _, _, _, _, _, _, _ := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx := context.Background()

	m := &proto.ClusterMap{
		Epoch: 1,
		Daemons: map[proto.GlobalID]*proto.DaemonInfo{
			1: {GlobalID: 1, Rank: 0, State: proto.StateActive},
			2: {GlobalID: 2, Rank: 1, State: proto.StateActive},
		},
		RankIndex: map[proto.Rank]proto.GlobalID{0: 1, 1: 2},
	}
	c.HandleClusterMap(ctx, m)

	err := c.WaitForActivePeer(ctx, proto.Rank(1))
	require.NoError(t, err)
}

func TestWaitForActivePeer_ReleasedWhenPeerGoesActive(t *testing.T) {
	c, _, _, _, _, _, _, _ := newTestController(BootConfig{GlobalID: 1, Name: "a"})
	ctx := context.Background()

	base := &proto.ClusterMap{
		Epoch: 1,
		Daemons: map[proto.GlobalID]*proto.DaemonInfo{
			1: {GlobalID: 1, Rank: 0, State: proto.StateActive},
			2: {GlobalID: 2, Rank: 1, State: proto.StateResolve},
		},
		RankIndex: map[proto.Rank]proto.GlobalID{0: 1, 1: 2},
	}
	c.HandleClusterMap(ctx, base)

	done := make(chan error, 1)
	go func() { done <- c.WaitForActivePeer(ctx, proto.Rank(1)) }()

	select {
	case <-done:
		t.Fatal("WaitForActivePeer returned before the peer went active")
	case <-time.After(30 * time.Millisecond):
	}

	next := &proto.ClusterMap{
		Epoch: 2,
		Daemons: map[proto.GlobalID]*proto.DaemonInfo{
			1: {GlobalID: 1, Rank: 0, State: proto.StateActive},
			2: {GlobalID: 2, Rank: 1, State: proto.StateActive},
		},
		RankIndex: map[proto.Rank]proto.GlobalID{0: 1, 1: 2},
	}
	c.HandleClusterMap(ctx, next)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForActivePeer was not released when the peer went active")
	}
}
