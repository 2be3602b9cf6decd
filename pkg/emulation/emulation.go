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

// Package emulation holds the outgoing message buffer used when this device
// itself acts as a tag for another reader. The gateway only stores prebuilt
// message bytes; payload construction lives upstream.
package emulation

import (
	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/helpers/syncutil"
)

// Gateway is the card-emulation outgoing buffer. Registration tracks whether
// the emulation channel itself is claimed, independent of whether a message
// is currently set.
type Gateway struct {
	message    []byte
	registered bool
	mu         syncutil.RWMutex
}

func NewGateway() *Gateway {
	return &Gateway{}
}

// Register claims the emulation channel.
func (g *Gateway) Register() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registered = true
}

// Unregister releases the emulation channel and drops any outgoing message.
func (g *Gateway) Unregister() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registered = false
	g.message = nil
}

// SetOutgoing stores message as the outgoing emulated tag content and returns
// its byte count. The slice is copied; callers may reuse their buffer.
func (g *Gateway) SetOutgoing(message []byte) int {
	buf := make([]byte, len(message))
	copy(buf, message)

	g.mu.Lock()
	g.message = buf
	g.mu.Unlock()

	log.Info().Int("bytes", len(buf)).Msg("emulation message set")
	return len(buf)
}

// Clear drops the outgoing message without releasing the channel.
func (g *Gateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.message = nil
}

// Active reports whether the emulation channel is registered.
func (g *Gateway) Active() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.registered
}

// Outgoing returns a copy of the current outgoing message, or nil.
func (g *Gateway) Outgoing() []byte {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.message == nil {
		return nil
	}
	buf := make([]byte, len(g.message))
	copy(buf, g.message)
	return buf
}
