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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	addr string
	mu   sync.Mutex
	sent []interface{}
}

func (c *fakeConn) Send(msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Addr() string { return c.addr }

func TestParseCaps_EmptyDefaultsToLegacyFS(t *testing.T) {
	caps := ParseCaps("", false)
	assert.False(t, caps.AllowAll)
	assert.True(t, caps.Ops["fs"])
}

func TestParseCaps_AllowAllToken(t *testing.T) {
	caps := ParseCaps("allow-all", false)
	assert.True(t, caps.AllowAll)
}

func TestParseCaps_UnrecognizedStringFallsBackToLegacy(t *testing.T) {
	caps := ParseCaps("some-unknown-grammar", false)
	assert.False(t, caps.AllowAll)
	assert.True(t, caps.Ops["fs"])
}

func TestParseCaps_AllowAllFlagOverridesParsedCaps(t *testing.T) {
	caps := ParseCaps("", true)
	assert.True(t, caps.AllowAll)
}

func TestBinder_AcceptIsIdempotentPerKey(t *testing.T) {
	b := NewBinder()
	id := VerifiedIdentity{PeerType: "client", GlobalID: 1, EntityAddr: "10.0.0.1:0"}

	s1 := b.Accept(id)
	s2 := b.Accept(id)

	assert.Same(t, s1, s2, "two Accepts for the same key must return the same session")
}

func TestBinder_BindConnection_WinnerOfRaceSticks(t *testing.T) {
	b := NewBinder()
	s := b.Accept(VerifiedIdentity{PeerType: "client", GlobalID: 1})

	first := &fakeConn{addr: "first"}
	second := &fakeConn{addr: "second"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.BindConnection(first) }()
	go func() { defer wg.Done(); s.BindConnection(second) }()
	wg.Wait()

	got := s.Connection()
	require.NotNil(t, got)
	assert.Contains(t, []string{"first", "second"}, got.Addr(), "exactly one connection must win")

	// whichever won, a later bind attempt must never replace it.
	third := &fakeConn{addr: "third"}
	s.BindConnection(third)
	assert.Equal(t, got.Addr(), s.Connection().Addr())
}

func TestSession_PreopenDrainedInFIFOOrderOnAccept(t *testing.T) {
	b := NewBinder()
	s := b.Accept(VerifiedIdentity{PeerType: "client", GlobalID: 1})

	s.QueuePreopen("first")
	s.QueuePreopen("second")
	s.QueuePreopen("third")

	conn := &fakeConn{addr: "a"}
	s.BindConnection(conn)

	require.Equal(t, []interface{}{"first", "second", "third"}, conn.sent)

	// a second bind attempt (already bound) must not redeliver.
	again := &fakeConn{addr: "b"}
	s.BindConnection(again)
	assert.Empty(t, again.sent)
}

func TestBinder_EvictMarksClosingWithoutRemoving(t *testing.T) {
	b := NewBinder()
	id := VerifiedIdentity{PeerType: "client", GlobalID: 1}
	b.Accept(id)
	key := Key{PeerType: "client", GlobalID: 1}

	ok := b.Evict(key)
	require.True(t, ok)

	s, found := b.Get(key)
	require.True(t, found, "evict must not remove the session from the table")
	assert.Equal(t, Closing, s.State)
}

func TestBinder_RemoveDeletesOutright(t *testing.T) {
	b := NewBinder()
	key := Key{PeerType: "client", GlobalID: 1}
	b.Accept(VerifiedIdentity{PeerType: "client", GlobalID: 1})

	b.Remove(key)

	_, found := b.Get(key)
	assert.False(t, found)
}

func TestBinder_HandleReset_MarksDownOnlyWhenClosed(t *testing.T) {
	b := NewBinder()
	key := Key{PeerType: "client", GlobalID: 1}
	s := b.Accept(VerifiedIdentity{PeerType: "client", GlobalID: 1, EntityAddr: "1.2.3.4:0"})
	conn := &fakeConn{addr: "1.2.3.4:0"}
	s.BindConnection(conn)

	var markedDown string
	b.HandleReset(key, func(addr string) { markedDown = addr })
	assert.Empty(t, markedDown, "an open session's reset must not mark the connection down")

	s.mu.Lock()
	s.State = Closed
	s.mu.Unlock()

	b.HandleReset(key, func(addr string) { markedDown = addr })
	assert.Equal(t, "1.2.3.4:0", markedDown)
	assert.Nil(t, s.Connection(), "a closed session's connection must be detached on reset")
}

func TestBinder_AllListsEverySession(t *testing.T) {
	b := NewBinder()
	b.Accept(VerifiedIdentity{PeerType: "client", GlobalID: 1})
	b.Accept(VerifiedIdentity{PeerType: "peer", GlobalID: 2})

	all := b.All()
	assert.Len(t, all, 2)
}
