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

package journal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cubefs/mdsd/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	active   bool
	readOnly bool
}

func (f *fakeLocker) Lock() {
	f.mu.Lock()
	require_(!f.held, "double lock")
	f.held = true
}

func (f *fakeLocker) Unlock() {
	require_(f.held, "unlock without lock")
	f.held = false
	f.mu.Unlock()
}

func (f *fakeLocker) IsActive() bool   { return f.active }
func (f *fakeLocker) IsReadOnly() bool { return f.readOnly }

// require_ is a tiny panic-based invariant check usable from goroutines
// without a *testing.T, since fakeLocker methods have no test handle.
func require_(cond bool, msg string) {
	if !cond {
		panic("journal test fake: " + msg)
	}
}

type call struct {
	name string
	arg  interface{}
}

type fakeWriter struct {
	mu    sync.Mutex
	calls []call

	flushErr  error
	expiring  []uint64
	expiryErr error
	writeErr  error
}

func (f *fakeWriter) record(name string, arg interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, arg})
}

func (f *fakeWriter) SealCurrentSegment(ctx context.Context) uint64 {
	f.record("seal", nil)
	return 1
}

func (f *fakeWriter) FlushToSafe(ctx context.Context) <-chan error {
	f.record("flush_to_safe", nil)
	ch := make(chan error, 1)
	ch <- f.flushErr
	return ch
}

func (f *fakeWriter) TrimAll(ctx context.Context) []uint64 {
	f.record("trim_all", nil)
	return f.expiring
}

func (f *fakeWriter) ExpiryHandle(ctx context.Context, segID uint64) <-chan error {
	f.record("expiry_handle", segID)
	ch := make(chan error, 1)
	ch <- f.expiryErr
	return ch
}

func (f *fakeWriter) TrimExpired(ctx context.Context, segIDs []uint64) {
	f.record("trim_expired", segIDs)
}

func (f *fakeWriter) WriteHead(ctx context.Context) <-chan error {
	f.record("write_head", nil)
	ch := make(chan error, 1)
	ch <- f.writeErr
	return ch
}

func (f *fakeWriter) Shutdown(ctx context.Context) { f.record("shutdown", nil) }

func (f *fakeWriter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.name
	}
	return out
}

func TestFlush_NotActiveIsNoopSuccess(t *testing.T) {
	locker := &fakeLocker{active: false}
	writer := &fakeWriter{}
	c := &Coordinator{ctrl: locker, writer: writer}

	err := c.Flush(context.Background())

	require.NoError(t, err)
	assert.Empty(t, writer.names(), "a non-active flush must not touch the writer")
}

func TestFlush_ReadOnlyRejected(t *testing.T) {
	locker := &fakeLocker{active: true, readOnly: true}
	writer := &fakeWriter{}
	c := &Coordinator{ctrl: locker, writer: writer}

	err := c.Flush(context.Background())

	assert.ErrorIs(t, err, errs.ErrReadOnly)
	assert.Empty(t, writer.names())
}

func TestFlush_FullSequenceOrdering(t *testing.T) {
	locker := &fakeLocker{active: true}
	writer := &fakeWriter{expiring: []uint64{7, 8}}
	c := &Coordinator{ctrl: locker, writer: writer}

	err := c.Flush(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"seal",
		"flush_to_safe",
		"flush_to_safe",
		"trim_all",
		"expiry_handle",
		"expiry_handle",
		"trim_expired",
		"write_head",
	}, writer.names())
}

func TestFlush_FirstBarrierFailureStopsEarly(t *testing.T) {
	locker := &fakeLocker{active: true}
	writer := &fakeWriter{flushErr: errors.New("disk full")}
	c := &Coordinator{ctrl: locker, writer: writer}

	err := c.Flush(context.Background())

	assert.ErrorIs(t, err, errs.ErrFlushFailed)
	assert.Equal(t, []string{"seal", "flush_to_safe"}, writer.names())
}

func TestFlush_ExpiryErrorPanics(t *testing.T) {
	locker := &fakeLocker{active: true}
	writer := &fakeWriter{expiring: []uint64{1}, expiryErr: errors.New("corrupt segment")}
	c := &Coordinator{ctrl: locker, writer: writer}

	assert.Panics(t, func() {
		_ = c.Flush(context.Background())
	}, "segment expiry errors are a programming fault, not a recoverable result")
}

func TestFlush_WriteHeadFailure(t *testing.T) {
	locker := &fakeLocker{active: true}
	writer := &fakeWriter{writeErr: errors.New("io error")}
	c := &Coordinator{ctrl: locker, writer: writer}

	err := c.Flush(context.Background())

	assert.ErrorIs(t, err, errs.ErrWriteHeadFailed)
	assert.Equal(t, []string{"seal", "flush_to_safe", "flush_to_safe", "trim_all", "trim_expired", "write_head"}, writer.names())
}
