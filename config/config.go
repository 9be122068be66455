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

// Package config is loaded the same way the teacher's cmd/cmd.go loads
// its Config: a JSON file located via -f, with flags for overrides.
package config

import (
	"time"

	"github.com/cubefs/cubefs/blobstore/util/log"
)

// Config is the full daemon configuration: slow-op thresholds/history
// sizes, operator-log routing, tick interval, standby preferences,
// unique-name enforcement, and the cache-dump-on-map flag. The values are
// read once at boot; cmd/mdsd's injectargs handler logs the key and value
// it is given and does not write them into this struct.
type Config struct {
	Name     string `json:"name"`
	GrpcPort uint32 `json:"grpc_bind_port"`
	HttpPort uint32 `json:"http_bind_port"`

	LogLevel log.Level `json:"log_level"`

	BeaconIntervalMS int `json:"beacon_interval_ms"`
	BeaconLaggyMS    int `json:"beacon_laggy_ms"`
	TickIntervalMS   int `json:"tick_interval_ms"`

	StandbyReplay  bool   `json:"standby_replay"`
	StandbyForRank int32  `json:"standby_for_rank"`
	StandbyForName string `json:"standby_for_name"`
	OneshotReplay  bool   `json:"oneshot_replay"`

	EnforceUniqueName bool `json:"enforce_unique_name"`
	DumpCacheOnMap    bool `json:"dump_cache_on_map"`

	SlowOpComplaintMS int `json:"slow_op_complaint_ms"`
	SlowOpHistorySize int `json:"slow_op_history_size"`

	OperatorLog OperatorLogConfig `json:"operator_log"`
}

// OperatorLogConfig configures the operator-log fan-out (SPEC_FULL §12).
type OperatorLogConfig struct {
	ToMonitors bool   `json:"to_monitors"`
	ToSyslog   bool   `json:"to_syslog"`
	Channel    string `json:"channel"`
	Priority   string `json:"priority"`
}

// Default returns the configuration the teacher's binaries boot with
// absent an operator override.
func Default() *Config {
	return &Config{
		LogLevel:          log.Linfo,
		BeaconIntervalMS:  4000,
		BeaconLaggyMS:     15000,
		TickIntervalMS:    5000,
		SlowOpComplaintMS: 30000,
		SlowOpHistorySize: 20,
	}
}

func (c *Config) BeaconInterval() time.Duration { return time.Duration(c.BeaconIntervalMS) * time.Millisecond }
func (c *Config) BeaconLaggyAfter() time.Duration { return time.Duration(c.BeaconLaggyMS) * time.Millisecond }
func (c *Config) TickInterval() time.Duration   { return time.Duration(c.TickIntervalMS) * time.Millisecond }
