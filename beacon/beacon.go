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

// Package beacon emits the periodic liveness+desired-state message to
// the monitor (spec §4.3), grounded on master/cluster/cluster.go's
// ticker-driven loop() and refresh(), adapted from a storage-node refresh
// cycle to a beacon-send cycle with laggy-status backoff.
package beacon

import (
	"context"
	"sync"
	"time"

	"github.com/cubefs/mdsd/logger"
	"github.com/cubefs/mdsd/proto"
	"golang.org/x/time/rate"
)

// Sender transmits a beacon message to the monitor and reports whether
// it was acknowledged in time.
type Sender interface {
	Send(ctx context.Context, msg *proto.BeaconMessage) error
}

// StateSource supplies the fields the beacon reports; kept narrow so the
// beacon package does not need to import daemon.
type StateSource interface {
	Name() string
	WantedState() proto.DaemonState
	CurrentEpoch() uint64
	StandbyFor() (rank proto.Rank, name string)
	Health() proto.Health
}

// Agent is the beacon agent of spec §4.3.
type Agent struct {
	mu       sync.Mutex
	sender   Sender
	source   StateSource
	interval time.Duration
	laggyAfter time.Duration

	lastAckAt  time.Time
	lastSendAt time.Time
	epoch      uint64

	limiter *rate.Limiter

	stop chan struct{}
	once sync.Once
}

func NewAgent(sender Sender, source StateSource, interval, laggyAfter time.Duration) *Agent {
	return &Agent{
		sender:     sender,
		source:     source,
		interval:   interval,
		laggyAfter: laggyAfter,
		lastAckAt:  time.Now(),
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		stop:       make(chan struct{}),
	}
}

// NotifyEpoch is invoked by the daemon controller immediately after
// accepting a new cluster map, so the next emission reflects it (spec §5
// ordering guarantee: "Beacons emitted after a cluster-map update
// reflect that update's epoch").
func (a *Agent) NotifyEpoch(epoch uint64) {
	a.mu.Lock()
	a.epoch = epoch
	a.mu.Unlock()
}

// Laggy reports whether the beacon has gone unacknowledged for longer
// than the configured threshold.
func (a *Agent) Laggy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.lastAckAt) > a.laggyAfter
}

// Tick runs one beacon cycle: when laggy, it returns early without
// sending, a deliberate backoff for congested monitors (spec §4.3).
// Otherwise it waits on the rate limiter (one send per interval) and
// then sends.
func (a *Agent) Tick(ctx context.Context) {
	if a.Laggy() {
		logger.Span(ctx).Debugf("beacon is laggy, skipping this tick")
		return
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}
	a.send(ctx)
}

func (a *Agent) send(ctx context.Context) {
	rank, name := a.source.StandbyFor()
	msg := &proto.BeaconMessage{
		Name:           a.source.Name(),
		WantedState:    a.source.WantedState(),
		CurrentEpoch:   a.currentEpoch(),
		StandbyForRank: rank,
		StandbyForName: name,
		Health:         a.source.Health(),
	}
	span := logger.Span(ctx)
	if err := a.sender.Send(ctx, msg); err != nil {
		span.Warnf("beacon send failed: %v", err)
		return
	}
	a.mu.Lock()
	a.lastAckAt = time.Now()
	a.lastSendAt = a.lastAckAt
	a.mu.Unlock()
}

func (a *Agent) currentEpoch() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epoch != 0 {
		return a.epoch
	}
	return a.source.CurrentEpoch()
}

// SendAndWait synchronously sends one beacon and waits up to
// timeoutSeconds for acknowledgement, used for the damaged-state
// notification before respawn (spec §5: "expiry is non-fatal").
func (a *Agent) SendAndWait(ctx context.Context, health proto.Health, timeoutSeconds int) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	rank, name := a.source.StandbyFor()
	msg := &proto.BeaconMessage{
		Name:           a.source.Name(),
		WantedState:    a.source.WantedState(),
		CurrentEpoch:   a.currentEpoch(),
		StandbyForRank: rank,
		StandbyForName: name,
		Health:         health,
	}
	return a.sender.Send(ctx, msg)
}

// Stop halts any background loop started via Run.
func (a *Agent) Stop() {
	a.once.Do(func() { close(a.stop) })
}

// Run drives Tick on the configured interval until Stop is called.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Tick(ctx)
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
