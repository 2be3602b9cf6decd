// TapCard Core
// Copyright (c) 2026 The TapCard Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of TapCard Core.
//
// TapCard Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// TapCard Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with TapCard Core.  If not, see <http://www.gnu.org/licenses/>.

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/ndef"
	"github.com/tapcard/tapcard-core/pkg/payload"
	"github.com/tapcard/tapcard-core/pkg/tagwriter"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockInterceptor records arm state and hands the onTag callback back to the
// test so it can play the platform delivering a tag.
type mockInterceptor struct {
	onTag       func(tagwriter.Tag)
	armErr      error
	armCount    int
	disarmCount int
	armed       bool
	mu          sync.Mutex
}

func (m *mockInterceptor) Arm(_ context.Context, onTag func(tagwriter.Tag)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armErr != nil {
		return m.armErr
	}
	m.armed = true
	m.armCount++
	m.onTag = onTag
	return nil
}

func (m *mockInterceptor) Disarm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
	m.disarmCount++
	return nil
}

func (m *mockInterceptor) isArmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

func (m *mockInterceptor) arms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armCount
}

// mockTag is the minimal writable tag.
type mockTag struct {
	writeErr error
	written  []byte
	uid      string
}

func (m *mockTag) UID() string                 { return m.uid }
func (*mockTag) Formatted() bool               { return true }
func (*mockTag) Formattable() bool             { return false }
func (*mockTag) Capacity() int                 { return 144 }
func (*mockTag) Writable() bool                { return true }
func (*mockTag) Connect(context.Context) error { return nil }

func (m *mockTag) Write(_ context.Context, message []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = message
	return nil
}

func (m *mockTag) FormatAndWrite(ctx context.Context, message []byte) error {
	return m.Write(ctx, message)
}

func (*mockTag) Close() error { return nil }

func newTestCoordinator(t *testing.T) (*Coordinator, *mockInterceptor, clockwork.FakeClock, chan models.Notification) {
	t.Helper()

	interceptor := &mockInterceptor{}
	clock := clockwork.NewFakeClock()
	ns := make(chan models.Notification, 10)

	c := NewCoordinator(interceptor, tagwriter.New(), ns, DefaultSettleDelay, clock)
	t.Cleanup(c.Stop)

	return c, interceptor, clock, ns
}

func textRequest(text string) payload.Request {
	return payload.Request{Kind: payload.KindText, Text: text}
}

// activate drives the coordinator to StateActive: request, foreground, settle.
func activate(t *testing.T, c *Coordinator, interceptor *mockInterceptor, clock clockwork.FakeClock, req payload.Request) {
	t.Helper()

	c.RequestWrite(req)
	c.ForegroundEntered()
	clock.Advance(DefaultSettleDelay)

	require.Eventually(t, func() bool {
		state, _ := c.Status()
		return state == StateActive
	}, time.Second, 5*time.Millisecond)
	require.True(t, interceptor.isArmed())
}

func TestRequestWriteWhileBackground(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, _ := newTestCoordinator(t)

	c.RequestWrite(textRequest("hello"))

	state, pending := c.Status()
	assert.Equal(t, StatePendingActivation, state)
	assert.True(t, pending)
	assert.False(t, interceptor.isArmed())

	// time passing without a foreground signal must not arm
	clock.Advance(10 * DefaultSettleDelay)
	time.Sleep(20 * time.Millisecond)
	state, _ = c.Status()
	assert.Equal(t, StatePendingActivation, state)
	assert.False(t, interceptor.isArmed())
}

func TestForegroundStartsSettleCountdown(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, _ := newTestCoordinator(t)

	c.RequestWrite(textRequest("hello"))
	c.ForegroundEntered()

	// still pending before the delay elapses
	state, _ := c.Status()
	assert.Equal(t, StatePendingActivation, state)
	assert.False(t, interceptor.isArmed())

	clock.Advance(DefaultSettleDelay)
	require.Eventually(t, func() bool {
		state, _ := c.Status()
		return state == StateActive
	}, time.Second, 5*time.Millisecond)
	assert.True(t, interceptor.isArmed())
}

func TestSettleRevalidatesForeground(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, _ := newTestCoordinator(t)

	c.RequestWrite(textRequest("hello"))
	c.ForegroundEntered()
	c.ForegroundExited()

	clock.Advance(DefaultSettleDelay)
	time.Sleep(20 * time.Millisecond)

	// the countdown ran out but foreground was lost in between
	state, pending := c.Status()
	assert.Equal(t, StatePendingActivation, state)
	assert.True(t, pending)
	assert.Equal(t, 0, interceptor.arms())

	// a fresh foreground entry restarts the countdown and arms
	c.ForegroundEntered()
	clock.Advance(DefaultSettleDelay)
	require.Eventually(t, func() bool {
		return interceptor.isArmed()
	}, time.Second, 5*time.Millisecond)
}

func TestCancelDuringSettle(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, ns := newTestCoordinator(t)

	c.RequestWrite(textRequest("hello"))
	c.ForegroundEntered()
	c.CancelWrite()

	select {
	case notif := <-ns:
		assert.Equal(t, models.NotificationWriteCancelled, notif.Method)
	case <-time.After(time.Second):
		t.Fatal("expected cancellation notification")
	}

	clock.Advance(DefaultSettleDelay)
	time.Sleep(20 * time.Millisecond)

	state, pending := c.Status()
	assert.Equal(t, StateInactive, state)
	assert.False(t, pending)
	assert.False(t, interceptor.isArmed())
}

func TestCancelWithNothingPendingEmitsNothing(t *testing.T) {
	t.Parallel()

	c, _, _, ns := newTestCoordinator(t)

	c.CancelWrite()

	select {
	case notif := <-ns:
		t.Fatalf("unexpected notification: %s", notif.Method)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestSupersedes(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, ns := newTestCoordinator(t)

	c.RequestWrite(textRequest("first"))
	c.RequestWrite(textRequest("second"))
	activate(t, c, interceptor, clock, textRequest("second"))

	tag := &mockTag{uid: "04AABBCC"}
	interceptor.onTag(tag)

	notif := <-ns
	require.Equal(t, models.NotificationWriteSuccess, notif.Method)

	got, err := ndef.ParseToText(tag.written)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestTagArrivedSuccess(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, ns := newTestCoordinator(t)
	activate(t, c, interceptor, clock, textRequest("hello"))

	tag := &mockTag{uid: "04AABBCC"}
	interceptor.onTag(tag)

	notif := <-ns
	require.Equal(t, models.NotificationWriteSuccess, notif.Method)

	params, ok := notif.Params.(models.WriteSuccessParams)
	require.True(t, ok)
	assert.Equal(t, "04AABBCC", params.TagID)
	assert.Equal(t, string(payload.KindText), params.PayloadKind)
	assert.Positive(t, params.BytesWritten)

	// one write per request: the session ends and interception is released
	state, pending := c.Status()
	assert.Equal(t, StateInactive, state)
	assert.False(t, pending)
	assert.False(t, interceptor.isArmed())
}

func TestTagArrivedWriteError(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, ns := newTestCoordinator(t)
	activate(t, c, interceptor, clock, textRequest("hello"))

	tag := &mockTag{uid: "04AABBCC", writeErr: errors.New("tag left field")}
	interceptor.onTag(tag)

	notif := <-ns
	require.Equal(t, models.NotificationWriteError, notif.Method)

	params, ok := notif.Params.(models.WriteErrorParams)
	require.True(t, ok)
	assert.Equal(t, string(tagwriter.ErrTransport), params.ErrorKind)
	assert.Contains(t, params.Detail, "tag left field")

	// a failed attempt also ends the session; retrying is the caller's call
	state, pending := c.Status()
	assert.Equal(t, StateInactive, state)
	assert.False(t, pending)
}

func TestTagArrivedOutsideActiveIgnored(t *testing.T) {
	t.Parallel()

	c, _, _, ns := newTestCoordinator(t)

	c.TagArrived(&mockTag{uid: "04AABBCC"})

	select {
	case notif := <-ns:
		t.Fatalf("unexpected notification: %s", notif.Method)
	case <-time.After(50 * time.Millisecond):
	}

	state, _ := c.Status()
	assert.Equal(t, StateInactive, state)
}

func TestBackgroundWithPendingKeepsInterception(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, ns := newTestCoordinator(t)
	activate(t, c, interceptor, clock, textRequest("hello"))

	// transient backgrounding mid-session must not drop the write
	c.ForegroundExited()
	state, pending := c.Status()
	assert.Equal(t, StateActive, state)
	assert.True(t, pending)
	assert.True(t, interceptor.isArmed())

	tag := &mockTag{uid: "04AABBCC"}
	interceptor.onTag(tag)

	notif := <-ns
	assert.Equal(t, models.NotificationWriteSuccess, notif.Method)
}

func TestBackgroundWithoutPendingDisarms(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, ns := newTestCoordinator(t)
	activate(t, c, interceptor, clock, textRequest("hello"))

	tag := &mockTag{uid: "04AABBCC"}
	interceptor.onTag(tag)
	<-ns

	// session already completed; another foreground cycle stays idle
	c.ForegroundEntered()
	c.ForegroundExited()
	assert.False(t, interceptor.isArmed())
}

func TestStoppedKeepsPendingRequest(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, _ := newTestCoordinator(t)
	activate(t, c, interceptor, clock, textRequest("hello"))

	c.Stopped()

	state, pending := c.Status()
	assert.Equal(t, StatePendingActivation, state)
	assert.True(t, pending)
	assert.False(t, interceptor.isArmed())

	// the surviving request resumes on the next foreground entry
	c.ForegroundEntered()
	clock.Advance(DefaultSettleDelay)
	require.Eventually(t, func() bool {
		return interceptor.isArmed()
	}, time.Second, 5*time.Millisecond)
}

func TestArmFailureStaysPending(t *testing.T) {
	t.Parallel()

	c, interceptor, clock, _ := newTestCoordinator(t)
	interceptor.armErr = errors.New("interception unavailable")

	c.RequestWrite(textRequest("hello"))
	c.ForegroundEntered()
	clock.Advance(DefaultSettleDelay)
	time.Sleep(20 * time.Millisecond)

	state, pending := c.Status()
	assert.Equal(t, StatePendingActivation, state)
	assert.True(t, pending)
}

func TestNilClockAndZeroDelayDefaults(t *testing.T) {
	t.Parallel()

	interceptor := &mockInterceptor{}
	ns := make(chan models.Notification, 1)

	c := NewCoordinator(interceptor, tagwriter.New(), ns, 0, nil)
	t.Cleanup(c.Stop)

	assert.Equal(t, DefaultSettleDelay, c.settleDelay)
	assert.NotNil(t, c.clock)
}
