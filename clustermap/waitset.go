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

// Package clustermap holds the pending wait-sets that fire as newer
// cluster maps and peer states arrive; the ClusterMap type itself and the
// controller's pointer to it live in proto and daemon.
// Grounded on master/cluster/cluster.go's sync.Map-protected membership
// table and refresh loop, adapted from a storage-node registry to a
// read-only, epoch-ordered snapshot pointer.
package clustermap

import (
	"sort"
	"sync"

	"github.com/cubefs/mdsd/proto"
)

// Continuation is a deferred unit of work released once a wait condition
// is satisfied. It is invoked without the daemon lock held (see
// daemon.Controller for the lock-drop discipline around these waits).
type Continuation func()

// WaitSets holds the two pending-continuation maps from spec §3:
// waiting_for_mdsmap and waiting_for_active_peer. Callers must already
// hold the daemon's process-wide lock when calling any method here --
// this type performs no locking of its own, matching the invariant that
// "all mutation of ... wait-sets occurs while holding the process-wide
// lock".
type WaitSets struct {
	forEpoch map[uint64][]Continuation
	forPeer  map[proto.Rank][]Continuation
}

func NewWaitSets() *WaitSets {
	return &WaitSets{
		forEpoch: make(map[uint64][]Continuation),
		forPeer:  make(map[proto.Rank][]Continuation),
	}
}

// WaitForEpoch registers cont to run once a map of at least epoch has
// been accepted.
func (w *WaitSets) WaitForEpoch(epoch uint64, cont Continuation) {
	w.forEpoch[epoch] = append(w.forEpoch[epoch], cont)
}

// WaitForActivePeer registers cont to run once rank is observed active.
func (w *WaitSets) WaitForActivePeer(rank proto.Rank, cont Continuation) {
	w.forPeer[rank] = append(w.forPeer[rank], cont)
}

// ReleaseUpTo returns (and removes) every continuation waiting on an
// epoch <= newEpoch, in ascending epoch order.
func (w *WaitSets) ReleaseUpTo(newEpoch uint64) []Continuation {
	var ready []uint64
	for e := range w.forEpoch {
		if e <= newEpoch {
			ready = append(ready, e)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var conts []Continuation
	for _, e := range ready {
		conts = append(conts, w.forEpoch[e]...)
		delete(w.forEpoch, e)
	}
	return conts
}

// ReleasePeer returns (and removes) every continuation waiting on rank.
func (w *WaitSets) ReleasePeer(rank proto.Rank) []Continuation {
	conts := w.forPeer[rank]
	delete(w.forPeer, rank)
	return conts
}

// Run fires every continuation in order; callers invoke this after
// dropping the daemon lock (continuations may themselves re-acquire it).
func Run(conts []Continuation) {
	for _, c := range conts {
		c()
	}
}

// peerEpochs tracks the highest cluster-map epoch each peer has been
// observed to be processing, maintained separately from the lock-guarded
// core state since it is advisory bookkeeping only (step 2 of §4.1).
type peerEpochs struct {
	mu     sync.RWMutex
	epochs map[proto.GlobalID]uint64
}

func newPeerEpochs() *peerEpochs { return &peerEpochs{epochs: make(map[proto.GlobalID]uint64)} }

func (p *peerEpochs) observe(id proto.GlobalID, epoch uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if epoch > p.epochs[id] {
		p.epochs[id] = epoch
	}
}

func (p *peerEpochs) get(id proto.GlobalID) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.epochs[id]
}
