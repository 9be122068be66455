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

// Command mdsd boots the daemon lifecycle and cluster-coordination
// core: it loads configuration the way the teacher's cmd/cmd.go does
// (flag + JSON file), wires the daemon controller and its satellite
// components (dispatch, beacon, journal, tick, admin, transport), and
// waits for a termination signal to run a graceful suicide.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/cubefs/mdsd/admin"
	"github.com/cubefs/mdsd/beacon"
	mdsdconfig "github.com/cubefs/mdsd/config"
	"github.com/cubefs/mdsd/daemon"
	"github.com/cubefs/mdsd/dispatch"
	"github.com/cubefs/mdsd/journal"
	"github.com/cubefs/mdsd/oplog"
	"github.com/cubefs/mdsd/proto"
	"github.com/cubefs/mdsd/session"
	"github.com/cubefs/mdsd/tick"
	"github.com/cubefs/mdsd/transport"
)

// monitorCaller treats the monitor as an allow-all ("tell") caller for
// the monitor-routed command path (spec §4.4): the dispatch router's
// SenderMonitor predicate already gates who may originate these message
// kinds, so the admin surface's own permission check is a formality here,
// not a second line of defense against an untrusted caller.
type monitorCaller struct{}

func (monitorCaller) AllowAll() bool { return true }

// monitorCommandArgs normalizes the legacy vector-of-strings and
// structured-JSON shapes of proto.MonitorCommand (spec §4.4) into the
// (name, Args) pair admin.Surface.Execute expects. The structured form
// uses a "prefix" key for the command name, matching the monitor
// command convention the rest of the corpus's command dispatchers use;
// the legacy form treats the first token as the name and subsequent
// "key=value" tokens as arguments.
func monitorCommandArgs(m *proto.MonitorCommand) (string, admin.Args) {
	if m.JSON != nil {
		name, _ := m.JSON["prefix"].(string)
		if name == "" {
			name, _ = m.JSON["name"].(string)
		}
		args := admin.Args{}
		for k, v := range m.JSON {
			if k == "prefix" || k == "name" {
				continue
			}
			args[k] = v
		}
		return name, args
	}
	if len(m.Args) == 0 {
		return "", admin.Args{}
	}
	args := admin.Args{}
	for _, kv := range m.Args[1:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			args[parts[0]] = parts[1]
		}
	}
	return m.Args[0], args
}

func main() {
	config.Init("f", "", "mds.json")

	cfg := mdsdconfig.Default()
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}
	log.SetOutputLevel(cfg.LogLevel)

	if cfg.Name == "" {
		log.Fatal("mdsd: name must be set")
	}

	oplogChannel := oplog.NewChannel(64)
	oplogLog := oplog.New(cfg.OperatorLog, nil, oplogChannel, nil)

	cache := &stubCache{}
	bal := stubBalancer{}
	jrnl := stubJournal{}
	osd := &stubOSD{}
	messenger := stubMessenger{}
	monitor := stubMonitorClient{}

	boot := daemon.BootConfig{
		Name:              cfg.Name,
		WantStandby:       false,
		StandbyReplay:     cfg.StandbyReplay,
		OneshotReplay:     cfg.OneshotReplay,
		StandbyForRank:    proto.Rank(cfg.StandbyForRank),
		StandbyForName:    cfg.StandbyForName,
		EnforceUniqueName: cfg.EnforceUniqueName,
	}

	ctrl := daemon.New(boot, daemon.Deps{
		Cache:      cache,
		Balancer:   bal,
		OSD:        osd,
		Messenger:  messenger,
		Monitor:    monitor,
		Respawner:  daemon.OSRespawner{},
		Journal:    jrnl,
		OplogFlush: oplogLog.Flush,
	})

	// The beacon agent needs ctrl as its StateSource, and ctrl needs the
	// agent as its BeaconNotifier -- SetBeacon breaks that construction
	// cycle (spec §4.3).
	beaconAgent := beacon.NewAgent(stubBeaconSender{}, ctrl, cfg.BeaconInterval(), cfg.BeaconLaggyAfter())
	ctrl.SetBeacon(beaconAgent)

	flusher := journal.New(ctrl)

	// Auth/session binder (spec §4.6): a cluster registry for inter-MDS
	// peers and a service registry for everything else, each keyed by
	// protocol id. protoMDSAuth/protoClientAuth stand in for the real
	// monitor-issued key protocols (out of scope per spec §1), but the
	// verify/accept/bind machinery itself is in-scope and wired below
	// into both the gRPC and HTTP transports.
	const (
		protoMDSAuth    session.ProtocolID = 1
		protoClientAuth session.ProtocolID = 2
	)
	clusterAuth := session.NewRegistry()
	clusterAuth.Register(protoMDSAuth, stubAuthHandler{peerType: "mds"})
	serviceAuth := session.NewRegistry()
	serviceAuth.Register(protoClientAuth, stubAuthHandler{peerType: "client"})
	verifier := session.NewVerifier(clusterAuth, serviceAuth)
	sessions := session.NewBinder()

	ops := admin.NewOpTracker(cfg.SlowOpHistorySize, cfg.SlowOpComplaintMS)
	surface := admin.NewSurface(ops)
	admin.RegisterAll(surface, &admin.Registrar{
		Ctrl:     ctrl,
		Flusher:  flusher,
		Sessions: sessions,
		Cache:    cache,
		Balancer: bal,
		Ops:      ops,
		InjectArgs: func(key, value string) error {
			log.Infof("injectargs: %s=%s", key, value)
			return nil
		},
		ScheduleRespawn: func(ctx context.Context) {
			ctrl.RequestRespawn(ctx, "respawn requested via admin command")
		},
	})

	router := dispatch.New(ctrl, nil)
	router.Register(proto.MsgClusterMap, proto.SenderMonitor, func(ctx context.Context, env *proto.Envelope) error {
		m, ok := env.Body.(*proto.ClusterMapMessage)
		if !ok || m.Map == nil {
			return nil
		}
		ctrl.HandleClusterMap(ctx, m.Map)
		return nil
	})
	router.Register(proto.MsgMonitorMap, proto.SenderMonitor, func(ctx context.Context, env *proto.Envelope) error {
		m, ok := env.Body.(*proto.MonitorMapMessage)
		if !ok {
			return nil
		}
		log.Debugf("monitor map epoch %d, %d monitors", m.Epoch, len(m.Monitors))
		return nil
	})
	router.Register(proto.MsgOSDMap, proto.SenderAny, func(ctx context.Context, env *proto.Envelope) error {
		m, ok := env.Body.(*proto.OSDMapMessage)
		if !ok {
			return nil
		}
		// spec §4.2 step 4: "the OSD-map handler both forwards to
		// sub-systems and asks the object client to subscribe to
		// continuous updates (so the full-pool flag is always current)".
		osd.SubscribeOSDMap(ctx)
		if cache.IsReadOnly() && m.FullPool {
			cache.SetReadOnly(ctx, false)
		}
		return nil
	})
	router.Register(proto.MsgMonitorCommand, proto.SenderMonitor, func(ctx context.Context, env *proto.Envelope) error {
		m, ok := env.Body.(*proto.MonitorCommand)
		if !ok {
			return nil
		}
		name, args := monitorCommandArgs(m)
		if _, res := surface.Execute(ctx, monitorCaller{}, name, args); res.ReturnCode != 0 {
			log.Warnf("monitor command %s failed: %s", name, res.Message)
		}
		return nil
	})
	router.Register(proto.MsgGenericCommand, proto.SenderMonitor, func(ctx context.Context, env *proto.Envelope) error {
		m, ok := env.Body.(*proto.GenericCommandMessage)
		if !ok {
			return nil
		}
		if _, res := surface.Execute(ctx, monitorCaller{}, m.Name, admin.Args(m.Args)); res.ReturnCode != 0 {
			log.Warnf("generic command %s failed: %s", m.Name, res.Message)
		}
		return nil
	})

	tickTimer := tick.New(tick.Deps{
		ResetHeartbeat: func() {},
		Laggy:          beaconAgent.Laggy,
		FlushJournal:   func(ctx context.Context) { _ = flusher.Flush(ctx) },
		State:          func() proto.DaemonState { return ctrl.Snapshot().Current },
		TrimCache:      cache.Trim,
		TrimLeases:     cache.TrimLeases,
		TickBalancer:   bal.Tick,
		CheckStaleFragFreezes:   bal.CheckStaleFragmentFreezes,
		CheckStaleExportFreezes: bal.CheckStaleExportFreezes,
		PublishHealth: func(ctx context.Context) {
			log.Debugf("health: %+v", ctrl.Health())
		},
		SlowOpCheck: func(ctx context.Context) {
			for _, op := range ops.SlowOpCheck() {
				oplogLog.Emit(ctx, "slow op: "+op.Description)
			}
		},
	}, cfg.TickInterval())

	grpcServer := transport.NewGRPCServer(router, verifier, sessions)
	httpServer := transport.NewHTTPServer(surface, verifier, sessions)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go beaconAgent.Run(rootCtx)
	go tickTimer.Run(rootCtx)
	go func() {
		if err := grpcServer.Serve(":" + strconv.Itoa(int(cfg.GrpcPort))); err != nil {
			log.Errorf("grpc server exited: %v", err)
		}
	}()
	httpServer.Serve(":" + strconv.Itoa(int(cfg.HttpPort)))

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch

	log.Info("mdsd: signal received, suiciding")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	// spec §6/§7: SIGINT/SIGTERM always transition to graceful suicide,
	// never a lesser path -- Suicide tears down cache, then journal, then
	// messenger, object-store client, and monitor client together, and is
	// idempotent.
	ctrl.Suicide(stopCtx, "signal received")

	tickTimer.Stop()
	beaconAgent.Stop()
	grpcServer.Stop()
	httpServer.Stop()
	cancel()
}
