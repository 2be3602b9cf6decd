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

package methods

import (
	"fmt"

	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/api/requests"
	"github.com/tapcard/tapcard-core/pkg/api/validation"
	"github.com/tapcard/tapcard-core/pkg/payload"
)

// HandleEmulationStart builds the dual candidate from the given card inputs
// and registers its serialized bytes as the outgoing emulated tag content.
// Returns the resulting byte count.
func HandleEmulationStart(env requests.RequestEnv) (any, error) {
	var p models.EmulationStartParams
	if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	cand, err := payload.BuildDual(payload.ContactCard{
		VCard: []byte(p.VCard),
		URL:   p.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build emulation message: %w", err)
	}

	env.Gateway.Register()
	n := env.Gateway.SetOutgoing(cand.Bytes)

	return models.EmulationStartResponse{Bytes: n}, nil
}

// HandleEmulationStop releases the emulation channel and clears the outgoing
// buffer.
func HandleEmulationStop(env requests.RequestEnv) (any, error) {
	env.Gateway.Unregister()
	return NoContent{}, nil
}

// HandleEmulationState reports whether the emulation channel is registered,
// independent of whether a message is currently set.
func HandleEmulationState(env requests.RequestEnv) (any, error) {
	return models.EmulationStateResponse{
		Active:       env.Gateway.Active(),
		MessageBytes: len(env.Gateway.Outgoing()),
	}, nil
}
