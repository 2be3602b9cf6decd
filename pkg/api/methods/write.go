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
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/api/requests"
	"github.com/tapcard/tapcard-core/pkg/api/validation"
	"github.com/tapcard/tapcard-core/pkg/payload"
)

// NoContent is returned by methods with no response body.
type NoContent struct{}

// ErrNotAllowed is returned for methods reserved for local clients.
var ErrNotAllowed = errors.New("permission denied")

// HandleWrite queues a dual-payload write. The actual tag interaction is
// asynchronous; its outcome arrives as a tags.write.success or
// tags.write.error notification.
func HandleWrite(env requests.RequestEnv) (any, error) {
	var p models.WriteParams
	if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	env.Session.RequestWrite(payload.Request{
		Kind: payload.KindDual,
		Card: payload.ContactCard{
			VCard: []byte(p.VCard),
			URL:   p.URL,
		},
	})

	log.Info().Str("url", p.URL).Msg("queued dual payload write")
	return NoContent{}, nil
}

// HandleWriteURL queues a URL-only write.
func HandleWriteURL(env requests.RequestEnv) (any, error) {
	var p models.WriteURLParams
	if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	env.Session.RequestWrite(payload.Request{
		Kind: payload.KindURLOnly,
		Card: payload.ContactCard{URL: p.URL},
	})

	return NoContent{}, nil
}

// HandleWriteText queues a single text record write. The record language
// comes from config, falling back to the encoder default.
func HandleWriteText(env requests.RequestEnv) (any, error) {
	var p models.WriteTextParams
	if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	req := payload.Request{
		Kind: payload.KindText,
		Text: p.Text,
	}
	if env.Config != nil {
		req.Language = env.Config.WriteLanguage()
	}
	env.Session.RequestWrite(req)

	return NoContent{}, nil
}

// HandleWriteRaw queues a raw record write, bytes committed verbatim.
func HandleWriteRaw(env requests.RequestEnv) (any, error) {
	var p models.WriteTextParams
	if err := validation.ValidateAndUnmarshal(env.Params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	env.Session.RequestWrite(payload.Request{
		Kind: payload.KindRaw,
		Text: p.Text,
	})

	return NoContent{}, nil
}

// HandleWriteCancel cancels any pending write. Always succeeds; cancelling
// nothing is not an error.
func HandleWriteCancel(env requests.RequestEnv) (any, error) {
	env.Session.CancelWrite()
	return NoContent{}, nil
}

// HandleSessionState reports the coordinator state.
func HandleSessionState(env requests.RequestEnv) (any, error) {
	state, pending := env.Session.Status()
	return models.SessionStateResponse{
		State:          string(state),
		RequestPending: pending,
	}, nil
}

// HandleSessionForeground signals that the host reached its
// foreground-equivalent state. Carries no payload. Lifecycle signals come
// from the embedding host, so only local clients may send them.
func HandleSessionForeground(env requests.RequestEnv) (any, error) {
	if !env.IsLocal {
		return nil, ErrNotAllowed
	}
	env.Session.ForegroundEntered()
	return NoContent{}, nil
}

// HandleSessionBackground signals that the host left its
// foreground-equivalent state.
func HandleSessionBackground(env requests.RequestEnv) (any, error) {
	if !env.IsLocal {
		return nil, ErrNotAllowed
	}
	env.Session.ForegroundExited()
	return NoContent{}, nil
}
