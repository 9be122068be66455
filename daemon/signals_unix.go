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

//go:build unix

package daemon

import "os/signal"

// unblockAllSignals drops every Go-side signal handler installed by this
// process so the re-exec'd image starts with a clean slate; the OS-level
// signal mask is inherited across exec unmodified by Go's runtime in the
// normal case, so resetting the in-process notifiers is what matters here.
func unblockAllSignals() {
	signal.Reset()
}
