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

import "github.com/google/uuid"

// MessageKind identifies which core table entry (if any) should handle an
// inbound message (spec §4.2).
type MessageKind int32

const (
	MsgUnknown MessageKind = iota
	MsgMonitorMap
	MsgClusterMap
	MsgMonitorCommand
	MsgGenericCommand
	MsgOSDMap
	MsgRankLocal // anything handled by the rank-local dispatcher
)

// SenderKind distinguishes who is allowed to originate a given message
// kind, enforced by the dispatch router's allowed-sender predicate.
type SenderKind int32

const (
	SenderAny SenderKind = iota
	SenderMonitor
	SenderPeerMDS
	SenderClient
)

// Envelope wraps every inbound message with the bookkeeping dispatch and
// tracing need: a request id (grounded on common/raft's ProposeRequest
// reqId field in the teacher) and the sender's claimed identity.
type Envelope struct {
	ReqID  string
	Kind   MessageKind
	Sender SenderKind
	From   GlobalID
	Body   interface{}
}

// NewEnvelope stamps a fresh request id the way the teacher's raft layer
// stamps proposals.
func NewEnvelope(kind MessageKind, sender SenderKind, from GlobalID, body interface{}) *Envelope {
	return &Envelope{ReqID: uuid.NewString(), Kind: kind, Sender: sender, From: from, Body: body}
}

// ClusterMapMessage carries a new ClusterMap snapshot from the monitor.
type ClusterMapMessage struct {
	Map *ClusterMap
}

// MonitorMapMessage carries the monitor quorum's own membership snapshot,
// distinct from the ClusterMap this daemon is ranked in (spec §6's "wire
// protocols consumed" lists monitor-map and cluster-map separately).
type MonitorMapMessage struct {
	Epoch    uint64
	Monitors []string
}

// GenericCommandMessage carries a structured command routed over the
// monitor-command/generic-command wire path rather than the admin socket
// (spec §4.4: "monitor-routed commands (legacy vector-of-strings and
// structured MCommand)").
type GenericCommandMessage struct {
	Name string
	Args map[string]interface{}
}

// OSDMapMessage carries a new object-store map epoch notification.
type OSDMapMessage struct {
	Epoch    uint64
	FullPool bool
}

// MonitorCommand is the legacy vector-of-strings command path plus the
// structured replacement, both supported per spec §4.4.
type MonitorCommand struct {
	Args []string
	JSON map[string]interface{}
}

// BeaconMessage is what the beacon agent emits to the monitor.
type BeaconMessage struct {
	Name           string
	WantedState    DaemonState
	CurrentEpoch   uint64
	StandbyForRank Rank
	StandbyForName string
	Health         Health
}

// Health is the small set of named health metrics accumulated between
// beacon sends (SPEC_FULL §12).
type Health struct {
	Summary   string
	Metrics   map[string]float64
}
