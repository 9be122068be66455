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

import "github.com/cubefs/mdsd/proto"

// The methods below satisfy beacon.StateSource without the daemon
// package importing beacon, keeping the dependency pointed the natural
// direction (beacon -> daemon-shaped interface, not daemon -> beacon).

func (c *Controller) Name() string { return c.boot.Name }

func (c *Controller) WantedState() proto.DaemonState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

func (c *Controller) CurrentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clusterMap == nil {
		return 0
	}
	return c.clusterMap.Epoch
}

func (c *Controller) StandbyFor() (proto.Rank, string) {
	return c.boot.StandbyForRank, c.boot.StandbyForName
}

// Health returns a minimal health summary; a full build accumulates
// richer metrics between beacon sends (SPEC_FULL §12).
func (c *Controller) Health() proto.Health {
	s := c.Snapshot()
	return proto.Health{
		Summary: s.Current.String(),
		Metrics: map[string]float64{
			"epoch":     float64(s.Epoch),
			"osd_epoch": float64(s.OSDEpoch),
		},
	}
}
