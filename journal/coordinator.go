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

// Package journal implements the journal-flush coordinator: the most
// subtle correctness-sensitive algorithm in this layer (spec §4.5). It
// seals the current segment, waits twice for durability (the second
// barrier guards against a continuation from the first wait dirtying an
// older segment while we run), trims expired segments, and only then
// advances the on-disk journal head.
//
// Grounded on master/base/raftnode.go's bounded-concurrency apply/trunc
// bookkeeping (appliedIndex/lastTruncIdx) and its "drop lock, wait, lock
// again" idiom in waitForRaftStart -- the same idiom every suspension
// point below follows, just applied to segment durability/expiry instead
// of raft log truncation.
package journal

import (
	"context"

	"github.com/cubefs/mdsd/daemon"
	"github.com/cubefs/mdsd/errs"
	"github.com/cubefs/mdsd/logger"
)

// locker is the single process-wide lock the coordinator must hold for
// every state-affecting step and explicitly drop around blocking waits
// (spec §5).
type locker interface {
	Lock()
	Unlock()
	IsActive() bool
	IsReadOnly() bool
}

// Coordinator drives the flush-journal algorithm. It holds no segment
// state of its own beyond what it needs to sequence calls into the
// JournalWriter collaborator -- the writer owns segment bookkeeping.
type Coordinator struct {
	ctrl   locker
	writer daemon.JournalWriter
}

func New(ctrl *daemon.Controller) *Coordinator {
	return &Coordinator{ctrl: ctrl, writer: ctrl.JournalWriter()}
}

// Flush implements spec §4.5's eight-step algorithm exactly. Step
// ordering is load-bearing: see the spec for why (1) precedes (5), (3)
// precedes (5), (4) precedes (6), and (8) is last.
func (c *Coordinator) Flush(ctx context.Context) error {
	span, ctx := logger.StartSpan(ctx, "flush_journal")

	c.ctrl.Lock()
	// step 1: reject if read-only; no-op success if not Active.
	if c.ctrl.IsReadOnly() {
		c.ctrl.Unlock()
		return errs.ErrReadOnly
	}
	if !c.ctrl.IsActive() {
		c.ctrl.Unlock()
		span.Debugf("flush journal: not active, no-op success")
		return nil
	}

	// step 2: seal the current segment so pending segments become
	// expiry candidates.
	c.writer.SealCurrentSegment(ctx)
	c.ctrl.Unlock()

	// step 3: flush to safe and wait, lock dropped for the wait.
	if err := c.waitChan(ctx, c.writer.FlushToSafe(ctx)); err != nil {
		span.Errorf("first flush-to-safe failed: %v", err)
		return errs.ErrFlushFailed
	}

	// step 4: second flush+wait barrier -- our continuation on the first
	// wait may not be the last one; subsequent continuations can dirty
	// metadata in older segments while we ran. This guarantees no such
	// race remains before expiry begins.
	if err := c.waitChan(ctx, c.writer.FlushToSafe(ctx)); err != nil {
		span.Errorf("second flush-to-safe failed: %v", err)
		return errs.ErrFlushFailed
	}

	c.ctrl.Lock()
	// step 5: trim all in-memory segments, moving pending segments to
	// expiring/expired. Must come after (3)/(4) so durability precedes
	// trim, and after (2) so new writes already landed in the new
	// segment.
	expiring := c.writer.TrimAll(ctx)
	c.ctrl.Unlock()

	// step 6: gather every expiring segment and wait for all to finish
	// expiring. Lock dropped for the wait; expiry must not raise errors
	// -- an error here is a programming fault, not a user-visible one.
	for _, segID := range expiring {
		select {
		case err, ok := <-c.writer.ExpiryHandle(ctx, segID):
			if ok && err != nil {
				panic("journal: segment expiry raised an error, this is a programming fault")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.ctrl.Lock()
	// step 7: trim expired segments, removing their in-memory entries.
	c.writer.TrimExpired(ctx, expiring)
	c.ctrl.Unlock()

	// step 8: write the journal head last, advancing on-disk pointers
	// only after trim. Lock dropped for the wait.
	if err := c.waitChan(ctx, c.writer.WriteHead(ctx)); err != nil {
		span.Errorf("write journal head failed: %v", err)
		return errs.ErrWriteHeadFailed
	}

	span.Infof("flush journal complete, expired %d segments", len(expiring))
	return nil
}

func (c *Coordinator) waitChan(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
