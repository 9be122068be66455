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

// Package errs holds the sentinel errors of the daemon core, grouped by
// the error taxonomy in the operator specification: transient, operator
// input, permission, read-only, durability and invariant-violation kinds.
package errs

import "errors"

var (
	// transient / retryable
	ErrNoObjectServersUp  = errors.New("no object servers up")
	ErrAuthKeyNotRotated  = errors.New("monitor auth key not yet rotated")

	// operator input
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidFrag  = errors.New("invalid directory fragment")
	ErrInvalidRank  = errors.New("invalid rank")
	ErrInvalidBits  = errors.New("split bits must be positive")
	ErrUnknownCommand = errors.New("unknown command")

	// permission
	ErrPermissionDenied = errors.New("permission denied")

	// read-only
	ErrReadOnly = errors.New("read-only filesystem")

	// durability
	ErrFlushFailed      = errors.New("journal flush failed")
	ErrWriteHeadFailed  = errors.New("journal head write failed")

	// invariant violation
	ErrIllegalTransition   = errors.New("illegal state transition")
	ErrRankReassigned      = errors.New("rank reassigned by cluster map")
	ErrFeatureUnsupported  = errors.New("cluster map requires unsupported feature")
	ErrNameSuperseded      = errors.New("a newer instance holds our name")

	// lookup / session
	ErrSessionNotFound = errors.New("session not found")
	ErrNodeNotFound    = errors.New("node not found")
	ErrNoAuthorizer    = errors.New("no authorizer")

	// export
	ErrExportTargetInvalid = errors.New("export target is not up and in, or is self")
)

// Result is the JSON shape returned by the admin surface for every
// command: a numeric code the way the teacher's RPC layer returns gRPC
// status codes, plus a human-readable message.
type Result struct {
	ReturnCode int    `json:"return_code"`
	Message    string `json:"message,omitempty"`
}

// CodeOf maps a sentinel error to the numeric return code an operator
// script can branch on. Unrecognized errors get -1 (EPERM-style unknown
// failure), matching the teacher's "surface errors verbatim" policy at
// RPC boundaries (cluster_sm.go's errors.Info pattern).
func CodeOf(err error) int {
	switch err {
	case nil:
		return 0
	case ErrReadOnly:
		return -30 // EROFS
	case ErrPermissionDenied:
		return -1 // EPERM
	case ErrNodeNotFound, ErrSessionNotFound:
		return -2 // ENOENT
	case ErrExportTargetInvalid:
		return -2
	case ErrInvalidPath, ErrInvalidFrag, ErrInvalidRank, ErrInvalidBits, ErrUnknownCommand:
		return -22 // EINVAL
	default:
		return -1
	}
}

// NewResult builds the operator-facing result object for a command
// outcome.
func NewResult(err error) Result {
	if err == nil {
		return Result{ReturnCode: 0}
	}
	return Result{ReturnCode: CodeOf(err), Message: err.Error()}
}
