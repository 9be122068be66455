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

	"github.com/cubefs/mdsd/proto"
)

// The interfaces below are the named-interface collaborators spec §1
// declares out of scope: the metadata cache proper, the balancer, the
// journal writer, and the object-store client. The daemon controller is
// an arena owning these handles (spec §9's "arena of sub-systems"); they
// never own a reference back to the controller, only a pure handle
// (MetadataCache.SetDaemon) for the rare callback they must make.
type (
	// MetadataCache owns the inode/dentry/directory graph. The daemon
	// controller invokes its per-state entry actions and failure
	// handling; it never manipulates cache internals directly.
	MetadataCache interface {
		BootStart(ctx context.Context)
		BootCreate(ctx context.Context)
		ReplayStart(ctx context.Context)
		ResolveStart(ctx context.Context)
		ReconnectStart(ctx context.Context)
		RejoinStart(ctx context.Context)
		ClientReplayStart(ctx context.Context)
		ActiveStart(ctx context.Context)
		StoppingStart(ctx context.Context)

		SetReadOnly(ctx context.Context, ro bool)
		IsReadOnly() bool

		HandlePeerDown(ctx context.Context, rank proto.Rank)
		HandlePeerResolving(ctx context.Context, rank proto.Rank)
		HandlePeerStopped(ctx context.Context, rank proto.Rank)

		Trim(ctx context.Context)
		TrimLeases(ctx context.Context)
		ScrubPath(ctx context.Context, path string) error
		FlushPath(ctx context.Context, path string) error
		Subtrees(ctx context.Context) []SubtreeInfo
		Dump(ctx context.Context, path string) error
		Shutdown(ctx context.Context)
	}

	// SubtreeInfo describes a namespace region this daemon is
	// authoritative for (spec §3 glossary: Subtree).
	SubtreeInfo struct {
		Path        string
		AuthFirst   proto.Rank
		AuthSecond  proto.Rank
	}

	// Balancer computes and executes workload rebalancing. Its load
	// computation is out of scope (spec §1); only the tick hook and
	// freeze-staleness checks belong to this layer.
	Balancer interface {
		Tick(ctx context.Context)
		CheckStaleFragmentFreezes(ctx context.Context)
		CheckStaleExportFreezes(ctx context.Context)
		ExportDir(ctx context.Context, path string, target proto.Rank) error
	}

	// JournalWriter performs the on-disk log encoding the journal-flush
	// coordinator drives but does not itself implement.
	JournalWriter interface {
		SealCurrentSegment(ctx context.Context) (segID uint64)
		FlushToSafe(ctx context.Context) (waitHandle <-chan error)
		TrimAll(ctx context.Context) (expiring []uint64)
		ExpiryHandle(ctx context.Context, segID uint64) <-chan error
		TrimExpired(ctx context.Context, segIDs []uint64)
		WriteHead(ctx context.Context) <-chan error
		Shutdown(ctx context.Context)
	}

	// ObjectStoreClient fences stale writes using the incarnation
	// counter and tracks OSD-map epoch subscriptions.
	ObjectStoreClient interface {
		SetIncarnation(i uint64)
		SubscribeOSDMap(ctx context.Context)
		CurrentOSDMapEpoch() uint64
		HandleFailure(ctx context.Context, rank proto.Rank)
		Close()
	}

	// Messenger is the transport collaborator; the controller only
	// needs to mark peer connections down on map changes.
	Messenger interface {
		MarkDown(addr string)
		Close()
	}

	// MonitorClient is used for compat-gate polling and self-termination
	// requests (suicide asks the monitor to note our stopped status).
	MonitorClient interface {
		RequestTermination(ctx context.Context, reason string)
		Close()
	}

	// Migrator is notified when a peer's export work becomes safe to
	// finalize (peers newly Stopped, spec §4.1 step 12).
	Migrator interface {
		PeerStopped(ctx context.Context, rank proto.Rank)
	}

	// SnapClient polls for OSD-map changes during tick (§4.7) when
	// Active.
	SnapClient interface {
		PollOSDMap(ctx context.Context)
	}
)
