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

import "context"

// EpochBarrier returns the current OSD-epoch barrier (spec §3).
func (c *Controller) EpochBarrier() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochBarrier
}

// RaiseEpochBarrierTo raises the barrier to at least epoch; it never
// moves backward (spec §3 "monotonically non-decreasing").
func (c *Controller) RaiseEpochBarrierTo(epoch uint64) {
	c.mu.Lock()
	if epoch > c.epochBarrier {
		c.epochBarrier = epoch
	}
	c.mu.Unlock()
}

// raiseEpochBarrierToCurrentOSDEpoch is invoked when the controller
// enters Active (spec §4.1 step 13): "raise the OSD-epoch barrier to the
// current OSD-map epoch (prevents granting caps based on a pre-incarnation
// view)".
func (c *Controller) raiseEpochBarrierToCurrentOSDEpoch(ctx context.Context) {
	if c.osd == nil {
		return
	}
	c.RaiseEpochBarrierTo(c.osd.CurrentOSDMapEpoch())
}
