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

/*

# mdsd: metadata-server daemon lifecycle and cluster coordination

mdsd holds a numbered rank in a cluster map published by a monitor
quorum, drives a recovery state machine as that map evolves, and
coordinates with peer daemons for failover and journal durability.

This module covers the daemon-level core only: state machine, message
dispatch, beacon, admin surface, journal-flush coordination, and the
auth/session binder. The metadata cache, balancer, journal encoding and
object-store client are treated as collaborators reached through narrow
interfaces defined in the daemon package.

## Building Blocks

* gRPC
* Prometheus
* blobstore log/trace/config/rpc

*/
package mdsd
