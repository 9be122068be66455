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

package session

import (
	"context"
	"time"

	"github.com/cubefs/mdsd/errs"
)

// ProtocolID selects which authorizer handler registry to consult (spec
// §4.6 step 1).
type ProtocolID int32

// AuthHandler verifies an authorizer blob and extracts the peer's
// identity. Authorizer issuance/rotation policy lives with the monitor
// client collaborator; this is purely the verification side.
type AuthHandler interface {
	Verify(ctx context.Context, authorizer []byte) (VerifiedIdentity, error)
}

// Registry maps protocol ids to handlers, one for cluster (inter-MDS)
// traffic and one for everything else (spec §4.6 step 1: "use the
// cluster registry for inter-MDS peers and the service registry for
// everything else").
type Registry struct {
	handlers map[ProtocolID]AuthHandler
}

func NewRegistry() *Registry { return &Registry{handlers: make(map[ProtocolID]AuthHandler)} }

func (r *Registry) Register(id ProtocolID, h AuthHandler) { r.handlers[id] = h }

func (r *Registry) lookup(id ProtocolID) (AuthHandler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}

// Verifier dispatches authorizer verification to the cluster or service
// registry depending on whether the peer claims to be an inter-MDS peer.
type Verifier struct {
	cluster *Registry
	service *Registry

	// keyRotationWait bounds how long to wait for a rotating monitor
	// auth key before giving up (spec §5: "10-second wait for rotating
	// keys; failure returns 'no authorizer'").
	keyRotationWait time.Duration
}

func NewVerifier(cluster, service *Registry) *Verifier {
	return &Verifier{cluster: cluster, service: service, keyRotationWait: 10 * time.Second}
}

// Verify implements spec §4.6 steps 1-2.
func (v *Verifier) Verify(ctx context.Context, protocol ProtocolID, isPeerMDS bool, authorizer []byte) (VerifiedIdentity, error) {
	if len(authorizer) == 0 {
		return VerifiedIdentity{}, errs.ErrNoAuthorizer
	}

	reg := v.service
	if isPeerMDS {
		reg = v.cluster
	}
	handler, ok := reg.lookup(protocol)
	if !ok {
		return VerifiedIdentity{}, errs.ErrNoAuthorizer
	}

	ctx, cancel := context.WithTimeout(ctx, v.keyRotationWait)
	defer cancel()

	id, err := handler.Verify(ctx, authorizer)
	if err != nil {
		return VerifiedIdentity{}, errs.ErrNoAuthorizer
	}
	return id, nil
}
