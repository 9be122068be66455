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

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/cubefs/mdsd/daemon"
	"github.com/cubefs/mdsd/errs"
	"github.com/cubefs/mdsd/proto"
	"github.com/cubefs/mdsd/session"
)

// The collaborators below are the named-interface stubs spec §1 places
// out of scope for this layer (metadata cache proper, balancer load
// computation, journal on-disk encoding, object-store client, transport
// messenger, monitor RPC client). They exist only so cmd/mdsd boots a
// runnable process that exercises the daemon core end-to-end; a real
// deployment replaces every one of them.

type stubCache struct{ readOnly bool }

func (s *stubCache) BootStart(ctx context.Context)         { log.Info("cache: boot start") }
func (s *stubCache) BootCreate(ctx context.Context)         { log.Info("cache: boot create") }
func (s *stubCache) ReplayStart(ctx context.Context)        { log.Info("cache: replay start") }
func (s *stubCache) ResolveStart(ctx context.Context)       { log.Info("cache: resolve start") }
func (s *stubCache) ReconnectStart(ctx context.Context)     { log.Info("cache: reconnect start") }
func (s *stubCache) RejoinStart(ctx context.Context)        { log.Info("cache: rejoin start") }
func (s *stubCache) ClientReplayStart(ctx context.Context)  { log.Info("cache: client replay start") }
func (s *stubCache) ActiveStart(ctx context.Context)        { log.Info("cache: active start") }
func (s *stubCache) StoppingStart(ctx context.Context)      { log.Info("cache: stopping start") }
func (s *stubCache) SetReadOnly(ctx context.Context, ro bool) { s.readOnly = ro }
func (s *stubCache) IsReadOnly() bool                       { return s.readOnly }
func (s *stubCache) HandlePeerDown(ctx context.Context, rank proto.Rank)      {}
func (s *stubCache) HandlePeerResolving(ctx context.Context, rank proto.Rank) {}
func (s *stubCache) HandlePeerStopped(ctx context.Context, rank proto.Rank)   {}
func (s *stubCache) Trim(ctx context.Context)       {}
func (s *stubCache) TrimLeases(ctx context.Context) {}
func (s *stubCache) ScrubPath(ctx context.Context, path string) error { return nil }
func (s *stubCache) FlushPath(ctx context.Context, path string) error { return nil }
func (s *stubCache) Subtrees(ctx context.Context) []daemon.SubtreeInfo { return nil }
func (s *stubCache) Dump(ctx context.Context, path string) error       { return nil }
func (s *stubCache) Shutdown(ctx context.Context)                      { log.Info("cache: shutdown") }

type stubBalancer struct{}

func (stubBalancer) Tick(ctx context.Context)                      {}
func (stubBalancer) CheckStaleFragmentFreezes(ctx context.Context) {}
func (stubBalancer) CheckStaleExportFreezes(ctx context.Context)   {}
func (stubBalancer) ExportDir(ctx context.Context, path string, target proto.Rank) error { return nil }

type stubJournal struct{}

func (stubJournal) SealCurrentSegment(ctx context.Context) uint64 { return 1 }
func (stubJournal) FlushToSafe(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}
func (stubJournal) TrimAll(ctx context.Context) []uint64 { return nil }
func (stubJournal) ExpiryHandle(ctx context.Context, segID uint64) <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}
func (stubJournal) TrimExpired(ctx context.Context, segIDs []uint64) {}
func (stubJournal) WriteHead(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}
func (stubJournal) Shutdown(ctx context.Context) { log.Info("journal: shutdown") }

type stubOSD struct{ epoch uint64 }

func (s *stubOSD) SetIncarnation(i uint64) {}
func (s *stubOSD) SubscribeOSDMap(ctx context.Context) {
	log.Debug("osd client: subscribing to continuous osd map updates")
}
func (s *stubOSD) CurrentOSDMapEpoch() uint64                         { return s.epoch }
func (s *stubOSD) HandleFailure(ctx context.Context, rank proto.Rank) {}
func (s *stubOSD) Close()                                             { log.Info("osd client: close") }

type stubMessenger struct{}

func (stubMessenger) MarkDown(addr string) {}
func (stubMessenger) Close()               { log.Info("messenger: close") }

type stubMonitorClient struct{}

func (stubMonitorClient) RequestTermination(ctx context.Context, reason string) {
	log.Infof("monitor client: requesting termination: %s", reason)
}
func (stubMonitorClient) Close() {}

type stubBeaconSender struct{}

func (stubBeaconSender) Send(ctx context.Context, msg *proto.BeaconMessage) error {
	log.Debugf("beacon send: name=%s wanted=%s epoch=%d", msg.Name, msg.WantedState, msg.CurrentEpoch)
	return nil
}

// stubAuthHandler is a narrow stand-in for real monitor-issued
// authorizer verification (out of scope per spec §1: capability issuance
// policy, key rotation). It decodes a "globalid|addr|capstring"
// authorizer blob so the §4.6 verify/accept/bind handshake itself -- the
// in-scope part -- is exercised end to end by the transports.
type stubAuthHandler struct{ peerType string }

func (h stubAuthHandler) Verify(ctx context.Context, authorizer []byte) (session.VerifiedIdentity, error) {
	parts := strings.SplitN(string(authorizer), "|", 3)
	if len(parts) == 0 || parts[0] == "" {
		return session.VerifiedIdentity{}, errs.ErrNoAuthorizer
	}
	var gid uint64
	if _, err := fmt.Sscan(parts[0], &gid); err != nil {
		return session.VerifiedIdentity{}, errs.ErrNoAuthorizer
	}
	var addr, capStr string
	if len(parts) > 1 {
		addr = parts[1]
	}
	if len(parts) > 2 {
		capStr = parts[2]
	}
	return session.VerifiedIdentity{
		PeerType:     h.peerType,
		GlobalID:     proto.GlobalID(gid),
		EntityAddr:   addr,
		CapString:    capStr,
		AllowAllFlag: capStr == "allow-all",
	}, nil
}
