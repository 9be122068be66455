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

// Package dispatch routes inbound messages to the core daemon table or
// the rank-local dispatcher, per spec §4.2. Grounded on
// master/base/raftnode.go's module-keyed Apply dispatch (r.sms[mod]) and
// server/rpcserver.go's per-method table, generalized from a fixed
// module-id keyspace to a MessageKind enum with per-kind sender checks.
package dispatch

import (
	"context"

	"github.com/cubefs/mdsd/logger"
	"github.com/cubefs/mdsd/proto"
)

// Handler processes one message kind after it clears the sender check.
type Handler func(ctx context.Context, env *proto.Envelope) error

// RankLocalDispatcher is the collaborator for everything not in the core
// table: server, cache, locker, balancer RPCs (spec §4.2 step 5).
type RankLocalDispatcher interface {
	Dispatch(ctx context.Context, env *proto.Envelope) (handled bool, err error)
}

// ControllerView is the narrow slice of daemon.Controller the router
// needs, kept as an interface so dispatch does not import daemon.
type ControllerView interface {
	IsStopping() bool
	Desired() proto.DaemonState
}

type tableEntry struct {
	handler      Handler
	allowed      proto.SenderKind
}

// Router is the dispatch router of spec §4.2.
type Router struct {
	ctrl      ControllerView
	rankLocal RankLocalDispatcher
	table     map[proto.MessageKind]tableEntry
}

func New(ctrl ControllerView, rankLocal RankLocalDispatcher) *Router {
	return &Router{ctrl: ctrl, rankLocal: rankLocal, table: make(map[proto.MessageKind]tableEntry)}
}

// Register adds a core message-table entry with its allowed-sender
// predicate (spec §4.2: "each core message kind has an allowed-sender
// predicate; violating messages are dropped").
func (r *Router) Register(kind proto.MessageKind, allowed proto.SenderKind, h Handler) {
	r.table[kind] = tableEntry{handler: h, allowed: allowed}
}

// HeartbeatToucher is set by the caller that owns the heartbeat worker
// (cmd/mdsd wiring); dispatch only needs to invoke it, not own it.
type HeartbeatToucher func()

// Dispatch runs the five-step algorithm of spec §4.2. Dispatch itself
// performs no locking and is called without the process-wide lock held:
// IsStopping, Desired and the controller methods the registered handlers
// call each take that lock themselves.
func (r *Router) Dispatch(ctx context.Context, env *proto.Envelope, touch HeartbeatToucher) (handled bool, err error) {
	span, ctx := logger.StartSpan(ctx, "dispatch")

	// step 1: stopping short-circuit.
	if r.ctrl.IsStopping() {
		return false, nil
	}

	// step 2: touch the heartbeat.
	if touch != nil {
		touch()
	}

	// step 3: Dne desired state discards everything.
	if r.ctrl.Desired() == proto.StateDNE {
		span.Debugf("desired state is dne, discarding message %s", env.ReqID)
		return false, nil
	}

	// step 4: core message table.
	if entry, ok := r.table[env.Kind]; ok {
		if entry.allowed != proto.SenderAny && entry.allowed != env.Sender {
			span.Warnf("dropping message %s: sender %d not allowed for kind %d", env.ReqID, env.Sender, env.Kind)
			return false, nil
		}
		if err := entry.handler(ctx, env); err != nil {
			return true, err
		}
		return true, nil
	}

	// step 5: rank-local dispatcher.
	if r.rankLocal != nil {
		return r.rankLocal.Dispatch(ctx, env)
	}
	return false, nil
}
