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

// Package admin implements the administrative command surface of spec
// §4.4: the admin-socket JSON commands and the monitor-routed command
// path, both dispatched through the same registry. Grounded on
// server/httpserver.go's rpc.Router route registration and
// server/rpcserver.go's per-method table and permission checks.
package admin

import (
	"context"
	"time"

	"github.com/cubefs/mdsd/errs"
	"github.com/cubefs/mdsd/logger"
)

// Args is the JSON parameter map a command receives, matching the admin
// socket's "string-keyed commands with a JSON parameter map" (spec §4.4).
type Args map[string]interface{}

// ArgSpec documents one named argument for get_command_descriptions.
type ArgSpec struct {
	Name     string
	Type     string
	Required bool
}

// Caller is the narrow view of a session's authority the admin surface
// needs: whether it carries allow-all (tell) capability (spec §4.4
// "Authority").
type Caller interface {
	AllowAll() bool
}

// HandlerFunc executes one command; it returns a result payload (for
// JSON commands) and an error (nil on success).
type HandlerFunc func(ctx context.Context, caller Caller, args Args) (interface{}, error)

// Command is one registry entry: name, argument schema, and handler.
type Command struct {
	Name        string
	Args        []ArgSpec
	Help        string
	RequiresTell bool
	Handler     HandlerFunc
}

// Surface is the admin/command surface.
type Surface struct {
	commands map[string]*Command
	ops      *OpTracker
}

func NewSurface(ops *OpTracker) *Surface {
	return &Surface{commands: make(map[string]*Command), ops: ops}
}

func (s *Surface) Register(cmd *Command) {
	s.commands[cmd.Name] = cmd
}

// Execute runs a named command, enforcing the allow-all/tell permission
// check and wrapping it with slow-op tracking.
func (s *Surface) Execute(ctx context.Context, caller Caller, name string, args Args) (interface{}, errs.Result) {
	span, ctx := logger.StartSpan(ctx, "admin:"+name)

	cmd, ok := s.commands[name]
	if !ok {
		return nil, errs.NewResult(errs.ErrUnknownCommand)
	}
	if cmd.RequiresTell && (caller == nil || !caller.AllowAll()) {
		span.Warnf("command %s rejected: caller lacks allow-all", name)
		return nil, errs.NewResult(errs.ErrPermissionDenied)
	}

	var opID uint64
	if s.ops != nil {
		opID = s.ops.Start(name)
		defer s.ops.Finish(opID)
	}

	start := time.Now()
	result, err := cmd.Handler(ctx, caller, args)
	span.Debugf("command %s took %s", name, time.Since(start))
	if err != nil {
		return nil, errs.NewResult(err)
	}
	return result, errs.NewResult(nil)
}

// Descriptions returns the machine-readable command catalog for
// `get_command_descriptions` (spec §4.4).
func (s *Surface) Descriptions() []*Command {
	out := make([]*Command, 0, len(s.commands))
	for _, c := range s.commands {
		out = append(out, c)
	}
	return out
}
