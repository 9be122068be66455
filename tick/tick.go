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

// Package tick fires the periodic maintenance cycle of spec §4.7,
// grounded on master/cluster/cluster.go's loop()/refresh() ticker
// pattern.
package tick

import (
	"context"
	"time"

	"github.com/cubefs/mdsd/logger"
	"github.com/cubefs/mdsd/proto"
)

// Deps is every collaborator one tick cycle touches. All are optional;
// a nil collaborator's step is simply skipped, matching how a partially
// wired build (e.g. in tests) still exercises the ordering.
type Deps struct {
	ResetHeartbeat func()
	Laggy          func() bool
	WakeProgress   func()
	FlushJournal   func(ctx context.Context) // non-blocking
	State          func() proto.DaemonState

	TrimCache        func(ctx context.Context)
	TrimLeases       func(ctx context.Context)
	CheckMemoryUsage func(ctx context.Context)
	TrimJournalLog   func(ctx context.Context)

	TickLocker      func(ctx context.Context)
	ScanIdleSessions func(ctx context.Context)

	ReconnectTick func(ctx context.Context)

	TickBalancer            func(ctx context.Context)
	CheckStaleFragFreezes   func(ctx context.Context)
	CheckStaleExportFreezes func(ctx context.Context)
	PollOSDMap              func(ctx context.Context)

	PublishHealth func(ctx context.Context)
	SlowOpCheck   func(ctx context.Context)
}

// Timer drives one Deps.* cycle on a configurable interval.
type Timer struct {
	deps     Deps
	interval time.Duration
	stop     chan struct{}
}

func New(deps Deps, interval time.Duration) *Timer {
	return &Timer{deps: deps, interval: interval, stop: make(chan struct{})}
}

// Run drives Once on the configured interval until Stop is called.
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Once(ctx)
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (t *Timer) Stop() { close(t.stop) }

// Once runs exactly one tick cycle, in the order spec §4.7 prescribes.
func (t *Timer) Once(ctx context.Context) {
	span, ctx := logger.StartSpan(ctx, "tick")
	d := t.deps

	if d.ResetHeartbeat != nil {
		d.ResetHeartbeat()
	}
	// "reschedule self" is implicit in Run's ticker; Once is reentrant.

	if d.Laggy != nil && d.Laggy() {
		// MDS::tick() returns here before notify_health()/
		// check_ops_in_flight() run -- a laggy beacon skips publish-health
		// and the slow-op check too, not just cache/locker/balancer
		// maintenance.
		span.Debugf("laggy, skipping maintenance this tick")
		return
	}

	if d.WakeProgress != nil {
		d.WakeProgress()
	}
	if d.FlushJournal != nil {
		go d.FlushJournal(ctx) // non-blocking
	}

	state := proto.StateDNE
	if d.State != nil {
		state = d.State()
	}

	if state == proto.StateActive || state == proto.StateStopping {
		call(ctx, d.TrimCache)
		call(ctx, d.TrimLeases)
		call(ctx, d.CheckMemoryUsage)
		call(ctx, d.TrimJournalLog)
	}

	if state == proto.StateActive || state == proto.StateStopping || state == proto.StateClientReplay {
		call(ctx, d.TickLocker)
		call(ctx, d.ScanIdleSessions)
	}

	if state == proto.StateReconnect {
		call(ctx, d.ReconnectTick)
	}

	if state == proto.StateActive {
		call(ctx, d.TickBalancer)
		call(ctx, d.CheckStaleFragFreezes)
		call(ctx, d.CheckStaleExportFreezes)
		call(ctx, d.PollOSDMap)
	}

	call(ctx, d.PublishHealth)
	call(ctx, d.SlowOpCheck)
}

func call(ctx context.Context, f func(context.Context)) {
	if f != nil {
		f(ctx)
	}
}
