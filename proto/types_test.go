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

package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank_String(t *testing.T) {
	assert.Equal(t, "none", NoneRank.String())
	assert.Equal(t, "3", Rank(3).String())
}

func TestDaemonState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "dne", StateDNE.String())
	assert.Contains(t, DaemonState(999).String(), "state(999)")
}

func TestInRecoverySequence(t *testing.T) {
	assert.True(t, StateReplay.InRecoverySequence())
	assert.True(t, StateResolve.InRecoverySequence())
	assert.True(t, StateReconnect.InRecoverySequence())
	assert.True(t, StateRejoin.InRecoverySequence())
	assert.True(t, StateClientReplay.InRecoverySequence())
	assert.True(t, StateActive.InRecoverySequence())
	assert.False(t, StateBoot.InRecoverySequence())
	assert.False(t, StateStopped.InRecoverySequence())
}

func TestNextInRecoverySequence(t *testing.T) {
	next, ok := NextInRecoverySequence(StateReconnect)
	assert.True(t, ok)
	assert.Equal(t, StateRejoin, next)

	next, ok = NextInRecoverySequence(StateRejoin)
	assert.True(t, ok)
	assert.Equal(t, StateClientReplay, next)

	_, ok = NextInRecoverySequence(StateActive)
	assert.False(t, ok, "active is the chain's terminus, no successor")

	_, ok = NextInRecoverySequence(StateBoot)
	assert.False(t, ok, "boot is outside the mandatory chain")
}

func TestFeatureSet_Supports(t *testing.T) {
	have := FeatureSet(0b0111)
	assert.True(t, have.Supports(FeatureSet(0b0011)))
	assert.True(t, have.Supports(FeatureSet(0)))
	assert.False(t, have.Supports(FeatureSet(0b1000)))
}

func TestClusterMap_ByRank(t *testing.T) {
	m := &ClusterMap{
		Daemons: map[GlobalID]*DaemonInfo{
			1: {GlobalID: 1, Rank: 0},
		},
		RankIndex: map[Rank]GlobalID{0: 1},
	}

	d, ok := m.ByRank(0)
	assert.True(t, ok)
	assert.Equal(t, GlobalID(1), d.GlobalID)

	_, ok = m.ByRank(5)
	assert.False(t, ok)

	_, ok = m.ByRank(NoneRank)
	assert.False(t, ok)
}
