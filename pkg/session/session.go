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

// Package session arbitrates between write intent, host lifecycle signals,
// and the radio's single tag-interception channel. The coordinator is the
// only component allowed to arm or disarm interception.
//
// LOCKING RULES: mu protects all mutable fields. Notifications are prepared
// inside the lock and sent outside it. The physical write in TagArrived runs
// with the lock held: a write must run to completion before the next trigger
// is processed, and holding mu is what serializes triggers.
package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/api/notifications"
	"github.com/tapcard/tapcard-core/pkg/helpers/syncutil"
	"github.com/tapcard/tapcard-core/pkg/payload"
	"github.com/tapcard/tapcard-core/pkg/tagwriter"
)

// State is the write session lifecycle state.
type State string

const (
	// StateInactive means no write is pending and interception is disarmed.
	StateInactive State = "inactive"
	// StatePendingActivation means a write is pending but interception is
	// not armed yet, either because the host is not foreground or because
	// the settle delay has not elapsed.
	StatePendingActivation State = "pendingActivation"
	// StateActive means interception is armed and waiting for a tag. There
	// is no timeout here: tag presentation is user-paced, and the caller
	// owns any time-based cancellation affordance.
	StateActive State = "active"
	// StateCompleting means a tag arrived and its write is in progress.
	StateCompleting State = "completing"
)

// DefaultSettleDelay is how long to wait after a foreground signal before
// arming interception. Arming immediately on a raw foreground signal silently
// no-ops on real hardware while the host's focus machinery stabilizes. The
// minimum safe value is hardware dependent, so it is configurable.
const DefaultSettleDelay = 300 * time.Millisecond

// Interceptor is the platform's single exclusive hook for claiming incoming
// tag-detected events. Arm and Disarm must be idempotent; only one of the two
// is ever outstanding at a time because the coordinator serializes them.
// Disarm may be called from inside an onTag delivery and must not block
// waiting for that delivery to return.
type Interceptor interface {
	// Arm starts delivering detected tags to onTag until Disarm or ctx
	// cancellation.
	Arm(ctx context.Context, onTag func(tagwriter.Tag)) error
	Disarm() error
}

// Coordinator owns the write-intent session state machine. Construct one per
// radio; it is not a singleton, so tests can run independent sessions.
type Coordinator struct {
	clock         clockwork.Clock
	interceptor   Interceptor
	writer        *tagwriter.Writer
	notifications chan<- models.Notification
	ctx           context.Context
	cancel        context.CancelFunc
	pending       *payload.Request
	settleDelay   time.Duration
	state         State
	settleGen     int
	foreground    bool
	mu            syncutil.Mutex
}

// NewCoordinator creates a Coordinator. A nil clock uses the real clock; a
// non-positive settleDelay uses DefaultSettleDelay.
func NewCoordinator(
	interceptor Interceptor,
	writer *tagwriter.Writer,
	ns chan<- models.Notification,
	settleDelay time.Duration,
	clock clockwork.Clock,
) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		clock:         clock,
		interceptor:   interceptor,
		writer:        writer,
		notifications: ns,
		ctx:           ctx,
		cancel:        cancel,
		settleDelay:   settleDelay,
		state:         StateInactive,
	}
}

// Status returns the current state and whether a write request is pending.
func (c *Coordinator) Status() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.pending != nil
}

// RequestWrite stores req as the pending write. At most one request is
// pending at a time; a prior unfinished request is silently superseded.
func (c *Coordinator) RequestWrite(req payload.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		log.Debug().
			Str("old", string(c.pending.Kind)).
			Str("new", string(req.Kind)).
			Msg("superseding pending write request")
	}
	c.pending = &req

	switch c.state {
	case StateActive:
		// Already armed, the new request rides the existing session.
	case StateInactive, StatePendingActivation:
		c.state = StatePendingActivation
		if c.foreground {
			c.scheduleSettleLocked()
		}
	case StateCompleting:
		// Unreachable: TagArrived holds mu for the whole write.
	}
}

// ForegroundEntered records that the host reached its foreground-equivalent
// state. A pending request starts the settle countdown.
func (c *Coordinator) ForegroundEntered() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.foreground = true
	if c.state == StatePendingActivation && c.pending != nil {
		c.scheduleSettleLocked()
	}
}

// ForegroundExited records that the host left its foreground-equivalent
// state. Interception is NOT disarmed while a request is pending: the host
// can be transiently backgrounded by the platform precisely while a tag is
// being read, and disarming here would drop the in-progress write.
func (c *Coordinator) ForegroundExited() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.foreground = false
	c.settleGen++

	if c.state == StateActive && c.pending == nil {
		c.disarmLocked()
		c.state = StateInactive
	}
}

// Stopped records host termination. Interception is released unconditionally,
// but a pending request survives so a later foreground entry resumes it.
func (c *Coordinator) Stopped() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.foreground = false
	c.settleGen++

	if c.state == StateActive {
		c.disarmLocked()
	}
	if c.pending != nil {
		c.state = StatePendingActivation
	} else {
		c.state = StateInactive
	}
}

// CancelWrite clears any pending request and disarms interception
// unconditionally. It is idempotent; the cancellation event is emitted only
// when there was something to cancel.
func (c *Coordinator) CancelWrite() {
	c.mu.Lock()

	cancelled := c.pending != nil || c.state != StateInactive
	c.pending = nil
	c.settleGen++
	c.disarmLocked()
	c.state = StateInactive

	c.mu.Unlock()

	if cancelled {
		notifications.WriteCancelled(c.notifications)
	}
}

// TagArrived executes the pending write against tag. Outside StateActive it
// is a guarded no-op: interception should not fire while disarmed, but the
// invariant is enforced here too rather than trusted.
func (c *Coordinator) TagArrived(tag tagwriter.Tag) {
	c.mu.Lock()

	if c.state != StateActive || c.pending == nil {
		log.Debug().
			Str("state", string(c.state)).
			Str("uid", tag.UID()).
			Msg("ignoring tag outside active write session")
		c.mu.Unlock()
		return
	}

	c.state = StateCompleting
	req := *c.pending

	// The write blocks until the radio I/O completes. mu stays held: no
	// other trigger may be processed mid-write.
	result, werr := c.writer.Write(c.ctx, tag, req)

	c.pending = nil
	c.disarmLocked()
	c.state = StateInactive

	var success *models.WriteSuccessParams
	var failure *models.WriteErrorParams
	if werr != nil {
		failure = &models.WriteErrorParams{
			ErrorKind: string(werr.Kind),
			Detail:    werr.Detail,
		}
	} else {
		success = &models.WriteSuccessParams{
			BytesWritten: result.BytesWritten,
			TagID:        result.TagUID,
			TagCapacity:  result.Capacity,
			PayloadKind:  string(result.Kind),
		}
	}

	c.mu.Unlock()

	if failure != nil {
		notifications.WriteError(c.notifications, *failure)
	} else {
		notifications.WriteSuccess(c.notifications, *success)
	}
}

// Stop shuts the coordinator down and releases interception.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.settleGen++
	c.pending = nil
	c.disarmLocked()
	c.state = StateInactive
	c.mu.Unlock()

	c.cancel()
}

// scheduleSettleLocked starts the settle countdown. The generation counter
// invalidates timers from superseded schedules; the timer callback also
// re-validates foreground and pending state, never trusting elapsed time
// alone.
func (c *Coordinator) scheduleSettleLocked() {
	c.settleGen++
	gen := c.settleGen
	c.clock.AfterFunc(c.settleDelay, func() {
		c.settleElapsed(gen)
	})
}

func (c *Coordinator) settleElapsed(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.settleGen {
		return
	}
	if c.state != StatePendingActivation || !c.foreground {
		return
	}
	if c.pending == nil {
		// Cancelled during the delay.
		c.state = StateInactive
		return
	}

	if err := c.interceptor.Arm(c.ctx, c.TagArrived); err != nil {
		log.Error().Err(err).Msg("failed to arm tag interception")
		return
	}
	c.state = StateActive
	log.Debug().Msg("tag interception armed")
}

func (c *Coordinator) disarmLocked() {
	if err := c.interceptor.Disarm(); err != nil {
		log.Warn().Err(err).Msg("error disarming tag interception")
	}
}
