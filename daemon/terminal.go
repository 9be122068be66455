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
	"golang.org/x/sync/errgroup"
)

// Damaged declares a fatal invariant violation: set desired state to
// Damaged, flush the operator log, emit a synchronous health beacon with
// timeout (best-effort), then respawn. Spec §4.1 "damaged".
func (c *Controller) Damaged(ctx context.Context, reason string) {
	span, ctx := c.span(ctx, "damaged")
	span.Errorf("declaring damaged: %s", reason)

	c.mu.Lock()
	c.desired = proto.StateDamaged
	c.mu.Unlock()

	if c.oplogFlush != nil {
		c.oplogFlush(ctx)
	}

	if c.beacon != nil {
		// best-effort: a timed-out send here is non-fatal (spec §5
		// cancellation policy), we proceed to respawn regardless.
		_ = c.beacon.SendAndWait(ctx, proto.Health{Summary: reason}, 5)
	}

	c.respawn(ctx, "damaged: "+reason)
}

// Suicide tears the process down in-place. Idempotent via the stopping
// flag (spec §4.1 "suicide", tested by §8's "suicide twice" law).
func (c *Controller) Suicide(ctx context.Context, reason string) {
	span, ctx := c.span(ctx, "suicide")
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		span.Debugf("suicide: already stopping, no-op")
		return
	}
	c.stopping = true
	c.mu.Unlock()
	c.teardown(ctx, reason)
}

func (c *Controller) suicideLocked(ctx context.Context, reason string) {
	// helper for call sites inside statemachine.go that have already
	// released the controller lock before calling this (named Locked
	// for symmetry with respawnLocked, but by the time it runs the lock
	// is not held -- see HandleClusterMap for the unlock-before-call
	// pattern that keeps I/O and signal-raising off the critical path).
	c.Suicide(ctx, reason)
}

// teardown shuts down the cache, then the journal, then the messenger,
// object-store client and monitor client concurrently. Timers and the
// beacon are not stopped here; cmd/mdsd stops them after Suicide returns.
func (c *Controller) teardown(ctx context.Context, reason string) {
	span, ctx := c.span(ctx, "teardown")
	span.Infof("tearing down: %s", reason)

	// teardown order: cache, journal -- these must happen first and in
	// order, since the journal may still see writes from a cache flush.
	// Timers and beacon are owned and stopped by cmd/mdsd's wiring, which
	// observes IsStopping(); this method covers the collaborators the
	// controller itself holds a handle to.
	if c.cache != nil {
		c.cache.Shutdown(ctx)
	}
	if c.journal != nil {
		c.journal.Shutdown(ctx)
	}

	// messenger, object-store client and monitor client have no ordering
	// dependency on each other once the cache/journal are down, so they
	// tear down concurrently.
	var g errgroup.Group
	if c.messenger != nil {
		g.Go(func() error {
			c.messenger.Close()
			return nil
		})
	}
	if c.osd != nil {
		g.Go(func() error {
			c.osd.Close()
			return nil
		})
	}
	if c.monitor != nil {
		g.Go(func() error {
			c.monitor.RequestTermination(ctx, reason)
			c.monitor.Close()
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Controller) respawnLocked(ctx context.Context, reason string) {
	// same unlock-before-call convention as suicideLocked.
	c.respawn(ctx, reason)
}

func (c *Controller) respawn(ctx context.Context, reason string) {
	span, ctx := c.span(ctx, "respawn")
	span.Errorf("respawning: %s", reason)
	if c.respawner == nil {
		span.Errorf("no respawner configured, falling back to suicide")
		c.Suicide(ctx, "respawn requested but no respawner: "+reason)
		return
	}
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()
	c.respawner.Respawn(ctx)
	// spec §4.1/§7: execv must not return; reaching here is a fatal
	// logic error the process cannot recover from safely.
	panic("respawn: exec returned, this must never happen")
}
