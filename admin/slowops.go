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

package admin

import (
	"sync"
	"time"
)

// Op describes one tracked operation, in flight or historic (SPEC_FULL
// §12 "slow-op tracker"). Grounded on server/rpcserver.go's
// auditLogPool/interceptor pattern of stamping every RPC with timing.
type Op struct {
	ID          uint64
	Description string
	StartedAt   time.Time
	FinishedAt  time.Time
	DurationMS  int64
}

// OpTracker holds currently in-flight operations plus a bounded ring
// buffer of recently-completed ones.
type OpTracker struct {
	mu         sync.Mutex
	nextID     uint64
	inFlight   map[uint64]*Op
	history    []Op
	historyCap int
	complaintMS int64
}

func NewOpTracker(historyCap int, complaintMS int) *OpTracker {
	if historyCap <= 0 {
		historyCap = 20
	}
	return &OpTracker{inFlight: make(map[uint64]*Op), historyCap: historyCap, complaintMS: int64(complaintMS)}
}

// Start registers a new in-flight operation and returns its id.
func (t *OpTracker) Start(desc string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.inFlight[id] = &Op{ID: id, Description: desc, StartedAt: time.Now()}
	return id
}

// Finish moves an in-flight operation into history.
func (t *OpTracker) Finish(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.inFlight[id]
	if !ok {
		return
	}
	delete(t.inFlight, id)
	op.FinishedAt = time.Now()
	op.DurationMS = op.FinishedAt.Sub(op.StartedAt).Milliseconds()

	t.history = append(t.history, *op)
	if len(t.history) > t.historyCap {
		t.history = t.history[len(t.history)-t.historyCap:]
	}
}

// InFlight snapshots every currently in-flight operation.
func (t *OpTracker) InFlight() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Op, 0, len(t.inFlight))
	for _, op := range t.inFlight {
		out = append(out, *op)
	}
	return out
}

// Historic snapshots the recent-slow-op ring buffer.
func (t *OpTracker) Historic() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Op, len(t.history))
	copy(out, t.history)
	return out
}

// SlowOpCheck logs (via the caller) any in-flight operation that has
// exceeded the complaint threshold; it returns the offending ops rather
// than logging directly so callers can route through their own span.
func (t *OpTracker) SlowOpCheck() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	var slow []Op
	for _, op := range t.inFlight {
		if now.Sub(op.StartedAt).Milliseconds() > t.complaintMS {
			slow = append(slow, *op)
		}
	}
	return slow
}
