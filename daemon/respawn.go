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
	"os"
	"syscall"

	"github.com/cubefs/mdsd/logger"
)

// OSRespawner resolves the running binary's own path, preferring
// /proc/self/exe with a fallback to argv[0] (spec §6 "Observed
// environment"), and re-execs it with the original argv. In-process
// restart cannot renegotiate identity with the monitor safely (spec §9),
// so this must genuinely exec, not merely re-initialize state.
type OSRespawner struct{}

func (OSRespawner) Respawn(ctx context.Context) {
	span := logger.Span(ctx)

	path, err := os.Readlink("/proc/self/exe")
	if err != nil || path == "" {
		path = os.Args[0]
		span.Warnf("could not resolve /proc/self/exe (%v), falling back to argv[0]: %s", err, path)
	}

	// reset this process's Go signal handlers to their defaults before
	// exec; see unblockAllSignals for what this does and does not change.
	unblockAllSignals()

	span.Infof("respawning via exec: %s %v", path, os.Args)
	execErr := syscall.Exec(path, os.Args, os.Environ())
	// syscall.Exec only returns on failure.
	span.Errorf("exec failed, this is a fatal logic error: %v", execErr)
}
