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
	"github.com/cubefs/mdsd/clustermap"
	"github.com/cubefs/mdsd/proto"

	"context"
)

// HandleClusterMap runs the full cluster-map handling algorithm of spec
// §4.1 under the process-wide lock. It is the single entry point through
// which a new monitor-published map reaches the controller.
func (c *Controller) HandleClusterMap(ctx context.Context, newMap *proto.ClusterMap) {
	span, ctx := c.span(ctx, "cluster_map")

	c.mu.Lock()

	// step 1: strict epoch ordering, older/equal dropped.
	if c.clusterMap != nil && newMap.Epoch <= c.clusterMap.Epoch {
		span.Debugf("dropping stale map epoch %d (have %d)", newMap.Epoch, c.clusterMap.Epoch)
		c.mu.Unlock()
		return
	}

	// step 2: no per-peer epoch is recorded; peerState below keeps only
	// each peer's rank and state, and the only epoch tracked is that of
	// the map pointer itself.

	// step 3: replace the current map, notify beacon so any emission
	// after this reflects the new epoch.
	prevMap := c.clusterMap
	c.clusterMap = newMap
	if c.beacon != nil {
		c.beacon.NotifyEpoch(newMap.Epoch)
	}

	// step 4: feature compatibility.
	self, inMap := newMap.Daemons[c.boot.GlobalID]
	if !newMap.RequiredFeatures.Supports(c.boot.RequiredFeatures) {
		span.Errorf("cluster map epoch %d requires unsupported features", newMap.Epoch)
		c.mu.Unlock()
		c.suicideLocked(ctx, "feature set unsatisfied")
		return
	}

	// step 5: recompute (rank, state, incarnation) from the new map.
	var newRank proto.Rank = proto.NoneRank
	var newState proto.DaemonState = proto.StateDNE
	var newIncarnation uint64
	if inMap {
		newRank = self.Rank
		newState = self.State
		newIncarnation = self.Incarnation
	}

	// step 6: rank-stability check.
	if c.rank != proto.NoneRank && inMap && newRank != proto.NoneRank && newRank != c.rank {
		span.Errorf("rank reassigned from %s to %s, respawning", c.rank, newRank)
		c.mu.Unlock()
		c.respawnLocked(ctx, "rank reassigned")
		return
	}

	// step 7: state-transition legality check, only while holding a rank.
	if c.rank != proto.NoneRank && inMap {
		if !legalTransition(c.current, newState) {
			span.Errorf("illegal transition %s -> %s while holding rank %s, respawning", c.current, newState, c.rank)
			c.mu.Unlock()
			c.respawnLocked(ctx, "illegal state transition")
			return
		}
	}

	// step 8: peers that vanished get their messenger connections marked down.
	if prevMap != nil {
		for gid, d := range prevMap.Daemons {
			if _, still := newMap.Daemons[gid]; !still && c.messenger != nil {
				c.messenger.MarkDown(d.Addr)
			}
		}
	}

	// steps 9-10: not in map handling / standby sub-type request.
	if !inMap {
		if c.boot.WantStandby {
			span.Infof("not in map, dropping to boot and re-registering")
			c.current = proto.StateBoot
			c.desired = proto.StateBoot
			c.mu.Unlock()
			c.releaseWaits(newMap.Epoch)
			return
		}
		if c.boot.EnforceUniqueName && nameSuperseded(newMap, c.boot.GlobalID, c.boot.Name) {
			span.Errorf("a newer instance holds our name, suiciding")
			c.mu.Unlock()
			c.suicideLocked(ctx, "name superseded by newer instance")
			return
		}
		span.Infof("no longer in cluster map, respawning")
		c.mu.Unlock()
		c.respawnLocked(ctx, "evicted from cluster map")
		return
	}

	if newState == proto.StateStandby && c.boot.WantStandby {
		// step 9: submit a state request for the configured standby
		// sub-type; delegated to the monitor client in a full build.
		span.Debugf("requesting standby sub-type replay=%v for-rank=%s for-name=%s",
			c.boot.StandbyReplay, c.boot.StandbyForRank, c.boot.StandbyForName)
	}

	changed := newState != c.current
	oldRank := c.rank
	c.rank = newRank
	c.incarnation = newIncarnation
	c.current = newState
	if c.desired == proto.StateBoot || c.desired == proto.StateStandby {
		c.desired = newState
	}
	if c.osd != nil {
		c.osd.SetIncarnation(newIncarnation)
	}

	oldPeerState := c.peerState
	newPeerState := make(map[proto.GlobalID]peerRecord, len(newMap.Daemons))
	for gid, d := range newMap.Daemons {
		newPeerState[gid] = peerRecord{rank: d.Rank, state: d.State}
	}
	c.peerState = newPeerState

	c.mu.Unlock()

	// step 11: entry action for the new state, run to completion before
	// any peer-transition side effects for this same map (spec §5
	// ordering guarantee).
	if changed {
		c.runEntryAction(ctx, newState)
	}

	// step 12: peer transitions.
	c.handlePeerTransitions(ctx, oldPeerState, newPeerState)

	// step 13: raise OSD-epoch barrier if active.
	if newState == proto.StateActive && c.osd != nil {
		c.osd.SubscribeOSDMap(ctx)
		c.raiseEpochBarrierToCurrentOSDEpoch(ctx)
	}

	// step 14: release waiting_for_mdsmap entries.
	c.releaseWaits(newMap.Epoch)

	_ = oldRank
}

// legalTransition implements spec §4.1 step 7's transition relation.
// See DESIGN.md's Open Question decision: Active->Stopping->Stopped is
// legal as a self-initiated shutdown, handled outside this matrix by
// RequestStop, so it is intentionally absent here.
func legalTransition(old, new_ proto.DaemonState) bool {
	if old == new_ {
		return true
	}
	switch old {
	case proto.StateReplay:
		return new_ == proto.StateResolve || new_ == proto.StateReconnect
	case proto.StateRejoin:
		return new_ == proto.StateActive || new_ == proto.StateClientReplay || new_ == proto.StateStopped
	default:
		if next, ok := proto.NextInRecoverySequence(old); ok {
			return next == new_
		}
		// states outside the [Reconnect..Active) chain (Boot, Standby,
		// Creating, Starting, Resolve, Active, Stopping, Stopped,
		// Damaged, DNE) are not constrained by this matrix; they're
		// reached through the "not in map"/administrative/self-shutdown
		// paths instead.
		return true
	}
}

func nameSuperseded(m *proto.ClusterMap, self proto.GlobalID, name string) bool {
	for gid, d := range m.Daemons {
		if gid != self && d.Name == name && gid > self {
			return true
		}
	}
	return false
}

func (c *Controller) releaseWaits(epoch uint64) {
	c.mu.Lock()
	conts := c.waits.ReleaseUpTo(epoch)
	c.mu.Unlock()
	clustermap.Run(conts)
}

func (c *Controller) handlePeerTransitions(ctx context.Context, old, new_ map[proto.GlobalID]peerRecord) {
	for gid, rec := range new_ {
		prev, had := old[gid]
		if had && prev.state == rec.state {
			continue
		}
		switch rec.state {
		case proto.StateResolve:
			// newly resolving: trigger resolve broadcast via the cache.
			if c.cache != nil {
				c.cache.HandlePeerResolving(ctx, rec.rank)
			}
		case proto.StateActive:
			c.mu.Lock()
			conts := c.waits.ReleasePeer(rec.rank)
			c.mu.Unlock()
			clustermap.Run(conts)
		case proto.StateStopped:
			if c.migrator != nil {
				c.migrator.PeerStopped(ctx, rec.rank)
			}
		}
	}
	for gid, rec := range old {
		if _, still := new_[gid]; !still {
			// peer vanished entirely: treat as down, using its
			// last-known rank since the new map no longer carries it.
			if c.cache != nil {
				c.cache.HandlePeerDown(ctx, rec.rank)
			}
			if c.osd != nil {
				c.osd.HandleFailure(ctx, rec.rank)
			}
		}
	}
}

