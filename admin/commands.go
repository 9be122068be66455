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

package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/cubefs/mdsd/daemon"
	"github.com/cubefs/mdsd/errs"
	"github.com/cubefs/mdsd/journal"
	"github.com/cubefs/mdsd/proto"
	"github.com/cubefs/mdsd/session"
)

// Registrar is the full collaborator set the command table dispatches
// into, one field per spec §4.4 row group.
type Registrar struct {
	Ctrl     *daemon.Controller
	Flusher  *journal.Coordinator
	Sessions *session.Binder
	Cache    daemon.MetadataCache
	Balancer daemon.Balancer
	Ops      *OpTracker

	// InjectArgs applies a live-reloadable config key/value pair
	// (SPEC_FULL §10's config-injection surface).
	InjectArgs func(key, value string) error

	// ScheduleRespawn performs the respawn. The exit/respawn handlers
	// call it about one second after returning their reply, so the admin
	// RPC's reply goes out first (spec §4.4 "respawn").
	ScheduleRespawn func(ctx context.Context)
}

// RegisterAll installs every spec §4.4 command into s.
func RegisterAll(s *Surface, r *Registrar) {
	s.Register(&Command{
		Name: "status",
		Help: "show daemon identity, rank and state",
		Handler: func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
			snap := r.Ctrl.Snapshot()
			return map[string]interface{}{
				"current":      snap.Current.String(),
				"desired":      snap.Desired.String(),
				"rank":         snap.Rank,
				"incarnation":  snap.Incarnation,
				"epoch":        snap.Epoch,
				"osd_epoch":    snap.OSDEpoch,
				"stopping":     snap.Stopping,
				"epoch_barrier": r.Ctrl.EpochBarrier(),
			}, nil
		},
	})

	s.Register(&Command{
		Name: "ops",
		Help: "alias for dump_ops_in_flight",
		Handler: dumpOpsInFlight(r),
	})
	s.Register(&Command{Name: "dump_ops_in_flight", Help: "list in-flight operations", Handler: dumpOpsInFlight(r)})

	s.Register(&Command{
		Name: "dump_historic_ops",
		Help: "list recently completed slow operations",
		Handler: func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
			if r.Ops == nil {
				return []Op{}, nil
			}
			return r.Ops.Historic(), nil
		},
	})

	s.Register(&Command{
		Name:         "osdmap barrier",
		Help:         "raise the OSD-epoch barrier to at least {epoch} (does not wait for that OSD map)",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "epoch", Type: "uint64", Required: true}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			epoch, ok := argUint64(args, "epoch")
			if !ok {
				return nil, errs.ErrInvalidRank
			}
			r.Ctrl.RaiseEpochBarrierTo(epoch)
			return map[string]interface{}{"epoch_barrier": r.Ctrl.EpochBarrier()}, nil
		},
	})

	s.Register(&Command{
		Name: "session ls",
		Help: "list bound sessions",
		Handler: func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
			if r.Sessions == nil {
				return []interface{}{}, nil
			}
			all := r.Sessions.All()
			out := make([]map[string]interface{}, 0, len(all))
			for _, s := range all {
				out = append(out, map[string]interface{}{
					"peer_type": s.Key.PeerType,
					"global_id": s.Key.GlobalID,
					"addr":      s.EntityAddr,
					"state":     s.State,
				})
			}
			return out, nil
		},
	})

	s.Register(&Command{
		Name:         "session evict",
		Help:         "mark a session closing (it stays in the table; no wait for safe completion)",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "client_id", Type: "uint64", Required: true}},
		Handler:      sessionEvict(r),
	})
	s.Register(&Command{
		Name:         "session kill",
		Help:         "remove a session from the table immediately",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "client_id", Type: "uint64", Required: true}},
		Handler: func(ctx context.Context, caller Caller, args Args) (interface{}, error) {
			id, ok := argUint64(args, "client_id")
			if !ok {
				return nil, errs.ErrInvalidPath
			}
			key := session.Key{PeerType: "client", GlobalID: proto.GlobalID(id)}
			r.Sessions.Remove(key)
			return nil, nil
		},
	})

	s.Register(&Command{
		Name:         "scrub_path",
		Help:         "scrub the subtree rooted at {path}",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "path", Type: "string", Required: true}},
		Handler: withPath(r, func(ctx context.Context, path string) error {
			if r.Cache == nil {
				return errs.ErrInvalidPath
			}
			return r.Cache.ScrubPath(ctx, path)
		}),
	})
	s.Register(&Command{
		Name:         "flush_path",
		Help:         "flush dirty metadata at {path} to the journal",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "path", Type: "string", Required: true}},
		Handler: withPath(r, func(ctx context.Context, path string) error {
			if r.Cache == nil {
				return errs.ErrInvalidPath
			}
			return r.Cache.FlushPath(ctx, path)
		}),
	})

	s.Register(&Command{
		Name:         "flush journal",
		Help:         "run the journal-flush coordinator to completion",
		RequiresTell: true,
		Handler: func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
			if r.Flusher == nil {
				return nil, errs.ErrReadOnly
			}
			return nil, r.Flusher.Flush(ctx)
		},
	})

	s.Register(&Command{
		Name: "get subtrees",
		Help: "list authoritative subtrees",
		Handler: func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
			if r.Cache == nil {
				return []daemon.SubtreeInfo{}, nil
			}
			return r.Cache.Subtrees(ctx), nil
		},
	})

	s.Register(&Command{
		Name:         "export dir",
		Help:         "export a directory subtree to {rank}",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "path", Type: "string", Required: true}, {Name: "rank", Type: "int32", Required: true}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			path, ok := argString(args, "path")
			if !ok || path == "" {
				return nil, errs.ErrInvalidPath
			}
			rank, ok := argInt64(args, "rank")
			if !ok {
				return nil, errs.ErrInvalidRank
			}
			target := proto.Rank(rank)
			if !r.Ctrl.RankIsUpAndIn(target) {
				return nil, errs.ErrExportTargetInvalid
			}
			if r.Balancer == nil {
				return nil, errs.ErrExportTargetInvalid
			}
			return nil, r.Balancer.ExportDir(ctx, path, target)
		},
	})

	s.Register(&Command{
		Name: "dump cache",
		Help: "dump cache contents, optionally rooted at {path}",
		Args: []ArgSpec{{Name: "path", Type: "string", Required: false}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			if r.Cache == nil {
				return nil, errs.ErrInvalidPath
			}
			path, _ := argString(args, "path")
			return nil, r.Cache.Dump(ctx, path)
		},
	})

	s.Register(&Command{
		Name:         "force_readonly",
		Help:         "force the cache into read-only mode",
		RequiresTell: true,
		Handler: func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
			if r.Cache == nil {
				return nil, errs.ErrReadOnly
			}
			r.Cache.SetReadOnly(ctx, true)
			return nil, nil
		},
	})

	s.Register(&Command{
		Name:         "dirfrag split",
		Help:         "split a directory fragment into 2^bits children",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "path", Type: "string", Required: true}, {Name: "bits", Type: "int", Required: true}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			path, ok := argString(args, "path")
			if !ok || path == "" {
				return nil, errs.ErrInvalidPath
			}
			bits, ok := argInt64(args, "bits")
			if !ok || bits <= 0 {
				return nil, errs.ErrInvalidBits
			}
			return nil, errs.ErrInvalidFrag // dirfrag storage is out of scope; see SPEC_FULL §13
		},
	})
	s.Register(&Command{
		Name:         "dirfrag merge",
		Help:         "merge sibling directory fragments",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "path", Type: "string", Required: true}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			return nil, errs.ErrInvalidFrag
		},
	})
	s.Register(&Command{
		Name: "dirfrag ls",
		Help: "list directory fragments",
		Args: []ArgSpec{{Name: "path", Type: "string", Required: true}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			return []interface{}{}, nil
		},
	})

	s.Register(&Command{
		Name:         "injectargs",
		Help:         "apply a live-reloadable config override",
		RequiresTell: true,
		Args:         []ArgSpec{{Name: "key", Type: "string", Required: true}, {Name: "value", Type: "string", Required: true}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			key, _ := argString(args, "key")
			value, _ := argString(args, "value")
			if key == "" {
				return nil, errs.ErrInvalidPath
			}
			if r.InjectArgs == nil {
				return nil, nil
			}
			return nil, r.InjectArgs(key, value)
		},
	})

	s.Register(&Command{
		Name:         "exit",
		Help:         "alias for respawn",
		RequiresTell: true,
		Handler: respawnHandler(r),
	})
	s.Register(&Command{Name: "respawn", Help: "re-exec the process after a short delay", RequiresTell: true, Handler: respawnHandler(r)})

	s.Register(&Command{
		Name: "heap",
		Help: "heap profile control (start|stop|dump), delegated to the profile handler",
		Args: []ArgSpec{{Name: "action", Type: "string", Required: true}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			return nil, nil // wired by the HTTP profile handler in transport, not this layer
		},
	})
	s.Register(&Command{
		Name: "cpu_profiler",
		Help: "cpu profile control (start|stop), delegated to the profile handler",
		Args: []ArgSpec{{Name: "action", Type: "string", Required: true}},
		Handler: func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
			return nil, nil
		},
	})

	s.Register(&Command{
		Name: "get_command_descriptions",
		Help: "machine-readable catalog of every command",
		Handler: func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
			out := make([]map[string]interface{}, 0)
			for _, c := range s.Descriptions() {
				out = append(out, map[string]interface{}{
					"name":          c.Name,
					"help":          c.Help,
					"requires_tell": c.RequiresTell,
					"args":          c.Args,
				})
			}
			return out, nil
		},
	})
}

func dumpOpsInFlight(r *Registrar) HandlerFunc {
	return func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
		if r.Ops == nil {
			return []Op{}, nil
		}
		return r.Ops.InFlight(), nil
	}
}

func sessionEvict(r *Registrar) HandlerFunc {
	return func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
		id, ok := argUint64(args, "client_id")
		if !ok {
			return nil, errs.ErrInvalidPath
		}
		key := session.Key{PeerType: "client", GlobalID: proto.GlobalID(id)}
		if r.Sessions == nil || !r.Sessions.Evict(key) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, nil
	}
}

func withPath(r *Registrar, f func(ctx context.Context, path string) error) HandlerFunc {
	return func(ctx context.Context, _ Caller, args Args) (interface{}, error) {
		path, ok := argString(args, "path")
		if !ok || path == "" {
			return nil, errs.ErrInvalidPath
		}
		return nil, f(ctx, path)
	}
}

func respawnHandler(r *Registrar) HandlerFunc {
	return func(ctx context.Context, _ Caller, _ Args) (interface{}, error) {
		if r.ScheduleRespawn == nil {
			return nil, nil
		}
		go func() {
			time.Sleep(time.Second)
			r.ScheduleRespawn(context.Background())
		}()
		return nil, nil
	}
}

func argString(args Args, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func argUint64(args Args, key string) (uint64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case float64:
		return uint64(n), true
	case string:
		var out uint64
		if _, err := fmt.Sscanf(n, "%d", &out); err != nil {
			return 0, false
		}
		return out, true
	default:
		return 0, false
	}
}

func argInt64(args Args, key string) (int64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		var out int64
		if _, err := fmt.Sscanf(n, "%d", &out); err != nil {
			return 0, false
		}
		return out, true
	default:
		return 0, false
	}
}
