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

// Package daemon implements the daemon-level state machine: the
// controller that owns the process-wide lock, multiplexes current and
// desired DaemonState, and drives transitions from cluster-map updates,
// administrative commands, and internal faults.
//
// Grounded on master/base/raftnode.go (a single mutable controller driven
// by externally-applied, monotonically ordered input) and
// master/cluster/cluster.go (lock-protected membership table with a
// periodic refresh loop), adapted from raft-apply-index ordering and
// storage-node membership to cluster-map-epoch ordering and daemon rank
// membership.
package daemon

import (
	"context"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/mdsd/clustermap"
	"github.com/cubefs/mdsd/logger"
	"github.com/cubefs/mdsd/proto"
)

// BootConfig carries the boot-time preferences that persist across
// respawns only via the original argv (spec §4.1 step 9, §6).
type BootConfig struct {
	GlobalID proto.GlobalID
	Name     string

	WantStandby    bool
	StandbyReplay  bool
	OneshotReplay  bool
	StandbyForRank proto.Rank
	StandbyForName string

	EnforceUniqueName bool
	RequiredFeatures  proto.FeatureSet
}

// Respawner resolves this process's own executable and re-execs it,
// preserving argv (spec §4.1 "respawn", never returns on success).
type Respawner interface {
	Respawn(ctx context.Context)
}

// BeaconNotifier is the narrow beacon interface the controller needs: to
// tell it the epoch just changed, and to request a synchronous damaged
// notification before respawn.
type BeaconNotifier interface {
	NotifyEpoch(epoch uint64)
	SendAndWait(ctx context.Context, health proto.Health, timeout int) error
}

// Controller is the Daemon from spec §4.1. Every field below is
// protected by mu; see package-level comment and spec §5 for the lock
// discipline.
type Controller struct {
	mu sync.Mutex

	boot BootConfig

	// current is what the last accepted cluster map says about us;
	// desired is what we advertise wanting (they can differ transiently,
	// e.g. while dropping to Boot to re-register).
	current proto.DaemonState
	desired proto.DaemonState

	rank        proto.Rank
	incarnation uint64

	clusterMap *proto.ClusterMap
	// peerState remembers the last-seen (rank, state) of every peer so
	// that §4.1 step 12's "newly" transitions can be detected, and a
	// peer's rank is still known once it vanishes from the map entirely.
	peerState map[proto.GlobalID]peerRecord

	waits *clustermap.WaitSets

	// epochBarrier is the EpochBarrier of spec §3: the minimum OSD-map
	// epoch below which no client capability will be granted. Monotonic
	// non-decreasing.
	epochBarrier uint64

	stopping bool

	// collaborators, wired at construction (beacon may also be set later
	// via SetBeacon); any of them may be nil, and every use checks.
	cache     MetadataCache
	balancer  Balancer
	osd       ObjectStoreClient
	messenger Messenger
	monitor   MonitorClient
	migrator  Migrator
	beacon    BeaconNotifier
	respawner Respawner
	journal   JournalWriter

	oplogFlush func(ctx context.Context)
}

// peerRecord is the last-seen (rank, state) pair for one peer, keyed by
// its stable GlobalID so a vanished peer's rank is still resolvable
// after it drops out of the cluster map (spec §4.1 step 12).
type peerRecord struct {
	rank  proto.Rank
	state proto.DaemonState
}

// Deps bundles the collaborators a Controller is constructed with.
type Deps struct {
	Cache     MetadataCache
	Balancer  Balancer
	OSD       ObjectStoreClient
	Messenger Messenger
	Monitor   MonitorClient
	Migrator  Migrator
	Beacon    BeaconNotifier
	Respawner Respawner
	Journal   JournalWriter
	// OplogFlush flushes the operator log; invoked synchronously before
	// respawn in the damaged path (spec §4.1 "damaged").
	OplogFlush func(ctx context.Context)
}

// New constructs a Controller in Boot state with no rank, matching the
// teacher's NewRaftNode/NewCluster constructors that start idle and wait
// for external input before doing real work.
func New(boot BootConfig, deps Deps) *Controller {
	c := &Controller{
		boot:       boot,
		current:    proto.StateBoot,
		desired:    proto.StateBoot,
		rank:       proto.NoneRank,
		peerState:  make(map[proto.GlobalID]peerRecord),
		waits:      clustermap.NewWaitSets(),
		cache:      deps.Cache,
		balancer:   deps.Balancer,
		osd:        deps.OSD,
		messenger:  deps.Messenger,
		monitor:    deps.Monitor,
		migrator:   deps.Migrator,
		beacon:     deps.Beacon,
		respawner:  deps.Respawner,
		journal:    deps.Journal,
		oplogFlush: deps.OplogFlush,
	}
	if boot.WantStandby {
		c.desired = proto.StateStandby
	}
	return c
}

// Snapshot is an immutable view of controller state for callers that
// must read it (e.g. the beacon or admin `status`) without holding the
// lock across an emission.
type Snapshot struct {
	Current     proto.DaemonState
	Desired     proto.DaemonState
	Rank        proto.Rank
	Incarnation uint64
	Epoch       uint64
	OSDEpoch    uint64
	Stopping    bool
}

// Snapshot takes the lock briefly to copy out current state, matching
// spec §5's "published beacon state reflects the latest observed
// cluster-map epoch at the moment it is emitted" -- the snapshot must be
// taken under the lock, not assembled field-by-field outside it.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Current:     c.current,
		Desired:     c.desired,
		Rank:        c.rank,
		Incarnation: c.incarnation,
		Stopping:    c.stopping,
	}
	if c.clusterMap != nil {
		s.Epoch = c.clusterMap.Epoch
	}
	if c.osd != nil {
		s.OSDEpoch = c.osd.CurrentOSDMapEpoch()
	}
	return s
}

// Lock and Unlock expose the single process-wide mutex to the other
// core components (dispatch, admin, tick, journal) that must serialize
// their state-affecting work through it, per spec §5's single-lock
// design note: "a re-implementation should preserve this discipline".
func (c *Controller) Lock()   { c.mu.Lock() }
func (c *Controller) Unlock() { c.mu.Unlock() }

// IsActive reports whether the controller currently holds Active state.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == proto.StateActive
}

// IsReadOnly delegates to the metadata cache collaborator.
func (c *Controller) IsReadOnly() bool {
	if c.cache == nil {
		return false
	}
	return c.cache.IsReadOnly()
}

// JournalWriter exposes the wired journal-writer collaborator to the
// journal package without that package needing its own constructor
// argument threaded through cmd/mdsd.
func (c *Controller) JournalWriter() JournalWriter { return c.journal }

// SetBeacon wires the beacon notifier after construction, breaking the
// constructor cycle between Controller (which the beacon agent needs as
// its StateSource) and the agent itself (which Controller needs as its
// BeaconNotifier). Must be called before the first cluster map arrives.
func (c *Controller) SetBeacon(b BeaconNotifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beacon = b
}

// IsStopping reports the stopping flag without a caller needing to know
// about locking (used by the dispatch router's step 1 check).
func (c *Controller) IsStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

// Desired exposes the currently-desired state (what the beacon reports),
// used by the dispatch router's Dne short-circuit (§4.2 step 3).
func (c *Controller) Desired() proto.DaemonState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

func (c *Controller) span(ctx context.Context, op string) (trace.Span, context.Context) {
	return logger.StartSpan(ctx, op)
}
