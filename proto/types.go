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

// Package proto holds the data model shared by every component of the
// daemon core: ranks, daemon states, the cluster map snapshot, and the
// message envelopes carried over the peer-MDS and monitor wire protocols.
package proto

import "fmt"

// Rank identifies a logical position in the cluster. NoneRank means
// "unassigned".
type Rank int32

const NoneRank Rank = -1

func (r Rank) String() string {
	if r == NoneRank {
		return "none"
	}
	return fmt.Sprintf("%d", int32(r))
}

// GlobalID is the monitor-assigned identity of a daemon instance,
// independent of any rank it may or may not hold.
type GlobalID uint64

// DaemonState is the tagged enumeration of recovery/operational states.
type DaemonState int32

const (
	StateBoot DaemonState = iota
	StateStandby
	StateStandbyReplay
	StateOneshotReplay
	StateCreating
	StateStarting
	StateReplay
	StateResolve
	StateReconnect
	StateRejoin
	StateClientReplay
	StateActive
	StateStopping
	StateStopped
	StateDamaged
	StateDNE // does-not-exist
)

var stateNames = map[DaemonState]string{
	StateBoot:          "boot",
	StateStandby:       "standby",
	StateStandbyReplay: "standby-replay",
	StateOneshotReplay: "oneshot-replay",
	StateCreating:      "creating",
	StateStarting:      "starting",
	StateReplay:        "replay",
	StateResolve:       "resolve",
	StateReconnect:     "reconnect",
	StateRejoin:        "rejoin",
	StateClientReplay:  "client-replay",
	StateActive:        "active",
	StateStopping:      "stopping",
	StateStopped:       "stopped",
	StateDamaged:       "damaged",
	StateDNE:           "dne",
}

func (s DaemonState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// InRecoverySequence reports whether s is one of the ordered recovery
// states Replay..Active, including the optional ClientReplay.
func (s DaemonState) InRecoverySequence() bool {
	switch s {
	case StateReplay, StateResolve, StateReconnect, StateRejoin, StateClientReplay, StateActive:
		return true
	default:
		return false
	}
}

// recoveryOrder gives the strict successor for each state in the
// [Reconnect..Active) chain, with the optional ClientReplay placed between
// Rejoin and Active, used by the state-transition legality check (spec
// §4.1 step 7). Rejoin's other legal successors are handled by that check
// directly.
var recoveryOrder = []DaemonState{StateReconnect, StateRejoin, StateClientReplay, StateActive}

// NextInRecoverySequence reports the single legal successor of cur within
// the [Reconnect..Active) chain, or false if cur isn't in that chain.
func NextInRecoverySequence(cur DaemonState) (DaemonState, bool) {
	for i, s := range recoveryOrder {
		if s == cur && i+1 < len(recoveryOrder) {
			return recoveryOrder[i+1], true
		}
	}
	return 0, false
}

// FeatureSet is a compatibility bitset the monitor may require of a
// binary before admitting it to the cluster map.
type FeatureSet uint64

func (f FeatureSet) Supports(required FeatureSet) bool {
	return required&^f == 0
}

// DaemonInfo is the per-daemon record carried inside a ClusterMap.
type DaemonInfo struct {
	GlobalID   GlobalID
	Name       string
	Rank       Rank
	State      DaemonState
	Addr       string
	Incarnation uint64
	Features   FeatureSet

	StandbyReplay   bool
	StandbyForRank  Rank
	StandbyForName  string
}

// ClusterMap is the monitor-published, read-only membership snapshot.
type ClusterMap struct {
	Epoch        uint64
	OSDMapEpoch  uint64
	RequiredFeatures FeatureSet
	Daemons      map[GlobalID]*DaemonInfo
	// RankIndex is a secondary index maintained by the publisher for
	// convenience; it must stay consistent with Daemons.
	RankIndex map[Rank]GlobalID
}

// ByRank looks up the daemon holding rank, if any.
func (m *ClusterMap) ByRank(r Rank) (*DaemonInfo, bool) {
	if r == NoneRank {
		return nil, false
	}
	gid, ok := m.RankIndex[r]
	if !ok {
		return nil, false
	}
	d, ok := m.Daemons[gid]
	return d, ok
}
