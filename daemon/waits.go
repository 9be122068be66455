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

	"github.com/cubefs/mdsd/proto"
)

// WaitForMap blocks the calling goroutine until a cluster map of at
// least epoch has been accepted, or ctx is cancelled. It waits on
// cluster-map epochs only; the `osdmap barrier` command does not call it.
// It explicitly drops the controller lock for the wait, per spec §5's
// suspension-point discipline.
func (c *Controller) WaitForMap(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	if c.clusterMap != nil && c.clusterMap.Epoch >= epoch {
		c.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	c.waits.WaitForEpoch(epoch, func() { close(done) })
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RankIsUpAndIn reports whether rank both differs from this daemon's own
// rank and names a peer the last-accepted cluster map shows holding
// StateActive -- the "up and in" test spec §4.4's `export dir` command
// applies to its target before handing off to the balancer.
func (c *Controller) RankIsUpAndIn(rank proto.Rank) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rank == proto.NoneRank || rank == c.rank {
		return false
	}
	if c.clusterMap == nil {
		return false
	}
	d, ok := c.clusterMap.ByRank(rank)
	return ok && d.State == proto.StateActive
}

// WaitForActivePeer blocks until rank is observed entering an active
// state, or ctx is cancelled.
func (c *Controller) WaitForActivePeer(ctx context.Context, rank proto.Rank) error {
	c.mu.Lock()
	if c.clusterMap != nil {
		if d, ok := c.clusterMap.ByRank(rank); ok && d.State == proto.StateActive {
			c.mu.Unlock()
			return nil
		}
	}
	done := make(chan struct{})
	c.waits.WaitForActivePeer(rank, func() { close(done) })
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
