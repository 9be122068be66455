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

// Package session implements the auth/session binder of spec §4.6: it
// verifies authorizers, finds or creates sessions keyed by (peer type,
// global id), and resolves the race between multiple incoming connection
// attempts for the same identity.
//
// Grounded on master/cluster/node.go: a per-entity struct with its own
// sync.RWMutex and heartbeat/expiry fields, adapted here from per-node
// liveness tracking to per-connection session lifecycle.
package session

import (
	"container/list"
	"sync"

	"github.com/cubefs/mdsd/proto"
)

// LifecycleState is a session's open/closing/closed state (spec §3).
type LifecycleState int32

const (
	Open LifecycleState = iota
	Closing
	Closed
)

// Caps is the per-session capability set (spec §3/§4.6).
type Caps struct {
	AllowAll bool
	Ops      map[string]bool
}

// ParseCaps decodes a capability string into Caps. If raw is empty or
// cannot be decoded, it defaults to legacy caps: all filesystem ops, no
// tell (spec §4.6 step 6).
func ParseCaps(raw string, allowAllFlag bool) Caps {
	caps := Caps{Ops: map[string]bool{}}
	if raw == "" {
		caps.Ops["fs"] = true // legacy default: all filesystem ops
	} else if parsed, ok := decodeCapString(raw); ok {
		caps = parsed
	} else {
		caps.Ops["fs"] = true
	}
	if allowAllFlag {
		caps.AllowAll = true
	}
	return caps
}

// decodeCapString is a narrow stand-in for the real capability-string
// grammar (out of scope per spec §1's "capability issuance policy");
// it recognizes the single "allow-all" token this layer must act on to
// gate admin `tell` access.
func decodeCapString(raw string) (Caps, bool) {
	if raw == "allow-all" {
		return Caps{AllowAll: true, Ops: map[string]bool{"fs": true}}, true
	}
	return Caps{}, false
}

// Connection is the narrow slice of the messenger's connection object
// the session binder needs.
type Connection interface {
	Send(msg interface{}) error
	Addr() string
}

// Key identifies a session by the peer's type and global id (spec §4.6
// step 3).
type Key struct {
	PeerType string
	GlobalID proto.GlobalID
}

// Session is a per-client identity bound to a connection (spec §3).
type Session struct {
	mu sync.Mutex

	Key        Key
	EntityAddr string
	Caps       Caps
	State      LifecycleState

	connection Connection
	preopen    *list.List // FIFO queue of messages to deliver on accept
}

func newSession(key Key, addr string, caps Caps) *Session {
	return &Session{Key: key, EntityAddr: addr, Caps: caps, State: Open, preopen: list.New()}
}

// Connection returns the bound connection, or nil if none has won the
// accept race yet.
func (s *Session) Connection() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connection
}

// QueuePreopen enqueues a message to be sent once this session's
// connection is accepted, preserving FIFO order (spec §5).
func (s *Session) QueuePreopen(msg interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preopen.PushBack(msg)
}

// Binder manages the session table and the authorizer-verification flow
// of spec §4.6.
type Binder struct {
	mu       sync.Mutex
	sessions map[Key]*Session
}

func NewBinder() *Binder {
	return &Binder{sessions: make(map[Key]*Session)}
}

// VerifiedIdentity is what an authorizer handler produces on success
// (spec §4.6 step 2).
type VerifiedIdentity struct {
	PeerType   string
	GlobalID   proto.GlobalID
	EntityAddr string
	CapString  string
	AllowAllFlag bool
}

// Accept implements spec §4.6 steps 3-6: find or create a session for
// the verified identity. It deliberately does NOT attach a connection
// here for an existing session -- see BindConnection, which alone
// resolves the accept-time race (spec §4.6 step 5, §3's connection
// invariant, §8's "authorizer race" scenario).
func (b *Binder) Accept(id VerifiedIdentity) *Session {
	key := Key{PeerType: id.PeerType, GlobalID: id.GlobalID}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.sessions[key]; ok {
		return existing
	}

	caps := ParseCaps(id.CapString, id.AllowAllFlag)
	s := newSession(key, id.EntityAddr, caps)
	b.sessions[key] = s
	return s
}

// BindConnection attaches con to s's connection field if and only if no
// connection has won the race yet, then drains the preopen queue in FIFO
// order exactly once (spec §4.6 "on accept").
func (s *Session) BindConnection(con Connection) {
	s.mu.Lock()
	if s.connection != nil {
		s.mu.Unlock()
		return
	}
	s.connection = con

	var queued []interface{}
	for e := s.preopen.Front(); e != nil; e = e.Next() {
		queued = append(queued, e.Value)
	}
	s.preopen.Init()
	s.mu.Unlock()

	for _, msg := range queued {
		_ = con.Send(msg)
	}
}

// Get looks up an existing session by key.
func (b *Binder) Get(key Key) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[key]
	return s, ok
}

// All returns every session, used by `session ls`.
func (b *Binder) All() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s)
	}
	return out
}

// Evict marks a session closing and leaves it in the table. It does not
// wait for any safe-completion condition, and neither does the admin
// `session evict` handler that calls it; nothing removes the session
// afterwards except `session kill`.
func (b *Binder) Evict(key Key) bool {
	b.mu.Lock()
	s, ok := b.sessions[key]
	b.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	s.State = Closing
	s.mu.Unlock()
	return true
}

// Remove deletes a session from the table outright (`session kill`,
// spec §4.4: does not wait for "safe").
func (b *Binder) Remove(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, key)
}

// HandleReset processes a connection reset/remote-reset for a client
// connection: if the session is closed, mark the connection down and
// detach it (spec §4.6 "on reset").
func (b *Binder) HandleReset(key Key, markDown func(addr string)) {
	b.mu.Lock()
	s, ok := b.sessions[key]
	b.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	closed := s.State == Closed
	addr := s.EntityAddr
	if closed {
		s.connection = nil
	}
	s.mu.Unlock()
	if closed && markDown != nil {
		markDown(addr)
	}
}
