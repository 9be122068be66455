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

// entryActions is the dispatch table spec §9 recommends over a virtual
// hierarchy: one function per state, delegated to the metadata-cache
// collaborator (spec §4.1 step 11). Grounded on master/base/raftnode.go's
// module-keyed Apply table (r.sms[mod]), here keyed by DaemonState.
func (c *Controller) entryActions() map[proto.DaemonState]func(context.Context) {
	return map[proto.DaemonState]func(context.Context){
		proto.StateBoot:          c.cache.BootStart,
		proto.StateCreating:      c.cache.BootCreate,
		proto.StateReplay:        c.cache.ReplayStart,
		proto.StateResolve:       c.cache.ResolveStart,
		proto.StateReconnect:     c.cache.ReconnectStart,
		proto.StateRejoin:        c.cache.RejoinStart,
		proto.StateClientReplay:  c.cache.ClientReplayStart,
		proto.StateActive:        c.cache.ActiveStart,
		proto.StateStopping:      c.cache.StoppingStart,
	}
}

func (c *Controller) runEntryAction(ctx context.Context, state proto.DaemonState) {
	if c.cache == nil {
		return
	}
	action, ok := c.entryActions()[state]
	if !ok {
		return
	}
	action(ctx)
}

// RequestStop drives a self-initiated shutdown: Active (or any held-rank
// state) -> Stopping -> Stopped. This is the Open Question decision
// recorded in DESIGN.md: legal as an administrative/signal-driven path,
// not subject to the cluster-map transition matrix of §4.1 step 7, since
// that matrix only governs transitions the monitor's map itself proposes.
func (c *Controller) RequestStop(ctx context.Context) {
	span, ctx := c.span(ctx, "request_stop")
	c.mu.Lock()
	if c.current == proto.StateStopping || c.current == proto.StateStopped {
		c.mu.Unlock()
		return
	}
	c.current = proto.StateStopping
	c.desired = proto.StateStopping
	c.mu.Unlock()
	span.Infof("entering stopping state")
	c.runEntryAction(ctx, proto.StateStopping)

	c.mu.Lock()
	c.current = proto.StateStopped
	c.desired = proto.StateStopped
	c.mu.Unlock()
}

// RequestRespawn drives the administrative `respawn`/`exit` command path
// (spec §4.4): unlike Damaged, it does not flush the operator log or send a
// synchronous health beacon first -- there was no invariant violation, just
// an operator request to re-exec. The admin exit/respawn handler defers
// the call by 1s so the command reply lands on the wire before the map
// removal races it.
func (c *Controller) RequestRespawn(ctx context.Context, reason string) {
	c.respawn(ctx, "admin: "+reason)
}
