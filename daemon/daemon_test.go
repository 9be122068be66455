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
	"sync"

	"github.com/cubefs/mdsd/proto"
)

// fakeCache records every entry-action invocation by name, matching the
// spirit of master/cluster/node_test.go's recording fakes.
type fakeCache struct {
	mu       sync.Mutex
	actions  []string
	readOnly bool
	downs    []proto.Rank
	resolves []proto.Rank
	stops    []proto.Rank
}

func (f *fakeCache) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, name)
}

func (f *fakeCache) BootStart(ctx context.Context)        { f.record("boot") }
func (f *fakeCache) BootCreate(ctx context.Context)       { f.record("create") }
func (f *fakeCache) ReplayStart(ctx context.Context)      { f.record("replay") }
func (f *fakeCache) ResolveStart(ctx context.Context)     { f.record("resolve") }
func (f *fakeCache) ReconnectStart(ctx context.Context)   { f.record("reconnect") }
func (f *fakeCache) RejoinStart(ctx context.Context)      { f.record("rejoin") }
func (f *fakeCache) ClientReplayStart(ctx context.Context) { f.record("client_replay") }
func (f *fakeCache) ActiveStart(ctx context.Context)      { f.record("active") }
func (f *fakeCache) StoppingStart(ctx context.Context)    { f.record("stopping") }
func (f *fakeCache) SetReadOnly(ctx context.Context, ro bool) { f.readOnly = ro }
func (f *fakeCache) IsReadOnly() bool                     { return f.readOnly }
func (f *fakeCache) HandlePeerDown(ctx context.Context, rank proto.Rank) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downs = append(f.downs, rank)
}
func (f *fakeCache) HandlePeerResolving(ctx context.Context, rank proto.Rank) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves = append(f.resolves, rank)
}
func (f *fakeCache) HandlePeerStopped(ctx context.Context, rank proto.Rank) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, rank)
}
func (f *fakeCache) Trim(ctx context.Context)       {}
func (f *fakeCache) TrimLeases(ctx context.Context) {}
func (f *fakeCache) ScrubPath(ctx context.Context, path string) error { return nil }
func (f *fakeCache) FlushPath(ctx context.Context, path string) error { return nil }
func (f *fakeCache) Subtrees(ctx context.Context) []SubtreeInfo        { return nil }
func (f *fakeCache) Dump(ctx context.Context, path string) error       { return nil }
func (f *fakeCache) Shutdown(ctx context.Context)                      { f.record("shutdown") }

func (f *fakeCache) snapshotActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.actions))
	copy(out, f.actions)
	return out
}

type fakeOSD struct {
	mu          sync.Mutex
	epoch       uint64
	incarnation uint64
	subscribed  bool
	failed      []proto.Rank
	closed      bool
}

func (f *fakeOSD) SetIncarnation(i uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incarnation = i
}
func (f *fakeOSD) SubscribeOSDMap(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = true
}
func (f *fakeOSD) CurrentOSDMapEpoch() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch
}
func (f *fakeOSD) HandleFailure(ctx context.Context, rank proto.Rank) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, rank)
}
func (f *fakeOSD) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type fakeMessenger struct {
	mu     sync.Mutex
	down   []string
	closed bool
}

func (f *fakeMessenger) MarkDown(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = append(f.down, addr)
}
func (f *fakeMessenger) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type fakeMonitor struct {
	mu          sync.Mutex
	terminated  bool
	closed      bool
	terminateAt string
}

func (f *fakeMonitor) RequestTermination(ctx context.Context, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
	f.terminateAt = reason
}
func (f *fakeMonitor) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type fakeMigrator struct {
	mu      sync.Mutex
	stopped []proto.Rank
}

func (f *fakeMigrator) PeerStopped(ctx context.Context, rank proto.Rank) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, rank)
}

type fakeBeacon struct {
	mu     sync.Mutex
	epochs []uint64
	sent   []proto.Health
}

func (f *fakeBeacon) NotifyEpoch(epoch uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epochs = append(f.epochs, epoch)
}
func (f *fakeBeacon) SendAndWait(ctx context.Context, health proto.Health, timeout int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, health)
	return nil
}

// fakeRespawner records the call and panics with a sentinel instead of
// returning, the same way a real os-exec replacement never returns to
// its caller -- this lets tests observe "respawn happened" via
// recover() without hitting the real code's "exec returned" panic.
type fakeRespawner struct {
	mu      sync.Mutex
	called  bool
	reasons []string
}

const respawnSentinel = "test-respawn-exec"

func (f *fakeRespawner) Respawn(ctx context.Context) {
	f.mu.Lock()
	f.called = true
	f.mu.Unlock()
	panic(respawnSentinel)
}

func (f *fakeRespawner) wasCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

// expectRespawn runs fn and asserts it triggered the respawn sentinel
// panic rather than returning normally.
func expectRespawn(fn func()) (triggered bool) {
	defer func() {
		if r := recover(); r != nil {
			if r == respawnSentinel {
				triggered = true
				return
			}
			panic(r)
		}
	}()
	fn()
	return false
}

func newTestController(boot BootConfig) (*Controller, *fakeCache, *fakeOSD, *fakeMessenger, *fakeMonitor, *fakeMigrator, *fakeBeacon, *fakeRespawner) {
	cache := &fakeCache{}
	osd := &fakeOSD{}
	messenger := &fakeMessenger{}
	monitor := &fakeMonitor{}
	migrator := &fakeMigrator{}
	beacon := &fakeBeacon{}
	respawner := &fakeRespawner{}

	c := New(boot, Deps{
		Cache:     cache,
		OSD:       osd,
		Messenger: messenger,
		Monitor:   monitor,
		Migrator:  migrator,
		Beacon:    beacon,
		Respawner: respawner,
		Journal:   fakeJournalWriter{},
	})
	return c, cache, osd, messenger, monitor, migrator, beacon, respawner
}

// fakeJournalWriter is a minimal no-op JournalWriter for tests that do
// not exercise the journal-flush coordinator directly.
type fakeJournalWriter struct{}

func (fakeJournalWriter) SealCurrentSegment(ctx context.Context) uint64 { return 0 }
func (fakeJournalWriter) FlushToSafe(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}
func (fakeJournalWriter) TrimAll(ctx context.Context) []uint64 { return nil }
func (fakeJournalWriter) ExpiryHandle(ctx context.Context, segID uint64) <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}
func (fakeJournalWriter) TrimExpired(ctx context.Context, segIDs []uint64) {}
func (fakeJournalWriter) WriteHead(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}
func (fakeJournalWriter) Shutdown(ctx context.Context) {}

func mapWithSelf(epoch uint64, self proto.GlobalID, rank proto.Rank, state proto.DaemonState, incarnation uint64) *proto.ClusterMap {
	m := &proto.ClusterMap{
		Epoch:     epoch,
		Daemons:   map[proto.GlobalID]*proto.DaemonInfo{},
		RankIndex: map[proto.Rank]proto.GlobalID{},
	}
	m.Daemons[self] = &proto.DaemonInfo{GlobalID: self, Rank: rank, State: state, Incarnation: incarnation}
	if rank != proto.NoneRank {
		m.RankIndex[rank] = self
	}
	return m
}
