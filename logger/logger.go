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

// Package logger wires the daemon into the blobstore logging and tracing
// stack the same way cmd/cmd.go and server/rpcserver.go do in the
// teacher: a process-wide level, and a per-operation span carrying a
// request id through dispatch.
package logger

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
)

// SetLevel adjusts the live log level, reachable from injectargs.
func SetLevel(lvl log.Level) {
	log.SetOutputLevel(lvl)
}

// StartSpan begins a traced operation, used by dispatch, admin commands
// and tick to stamp every unit of work with a request id.
func StartSpan(ctx context.Context, op string) (trace.Span, context.Context) {
	return trace.StartSpanFromContext(ctx, op)
}

// Span recovers the span already attached to ctx, or a no-op one.
func Span(ctx context.Context) trace.Span {
	return trace.SpanFromContextSafe(ctx)
}
