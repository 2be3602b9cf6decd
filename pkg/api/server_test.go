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

package api

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/api/requests"
	"github.com/tapcard/tapcard-core/pkg/api/validation"
	"github.com/tapcard/tapcard-core/pkg/emulation"
	"github.com/tapcard/tapcard-core/pkg/session"
	"github.com/tapcard/tapcard-core/pkg/tagwriter"
)

type noopInterceptor struct{}

func (*noopInterceptor) Arm(context.Context, func(tagwriter.Tag)) error { return nil }
func (*noopInterceptor) Disarm() error                                  { return nil }

func TestMethodMapCoversAPISurface(t *testing.T) {
	t.Parallel()

	methods := []string{
		models.MethodWrite,
		models.MethodWriteURL,
		models.MethodWriteText,
		models.MethodWriteRaw,
		models.MethodWriteCancel,
		models.MethodEmulationStart,
		models.MethodEmulationStop,
		models.MethodEmulationState,
		models.MethodSessionState,
		models.MethodSessionForeground,
		models.MethodSessionBackground,
		models.MethodVersion,
	}

	for _, method := range methods {
		assert.Contains(t, methodMap, method)
	}
	assert.Len(t, methodMap, len(methods))
}

func TestHandleRequestUnknownMethod(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	coordinator := session.NewCoordinator(&noopInterceptor{}, tagwriter.New(), ns, 0, nil)
	t.Cleanup(coordinator.Stop)

	id := uuid.New()
	env := requests.RequestEnv{
		Session: coordinator,
		Gateway: emulation.NewGateway(),
	}

	_, err := handleRequest(env, models.RequestObject{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  "no.such.method",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method")
}

func TestHandleRequestMethodsAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	coordinator := session.NewCoordinator(&noopInterceptor{}, tagwriter.New(), ns, 0, nil)
	t.Cleanup(coordinator.Stop)

	id := uuid.New()
	env := requests.RequestEnv{
		Session: coordinator,
		Gateway: emulation.NewGateway(),
	}

	resp, err := handleRequest(env, models.RequestObject{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  "VERSION",
	})
	require.NoError(t, err)

	version, ok := resp.(models.VersionResponse)
	require.True(t, ok)
	assert.NotEmpty(t, version.Version)
}

func TestErrorObjectFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err      error
		name     string
		wantCode int
	}{
		{name: "missing params", err: validation.ErrMissingParams, wantCode: -32602},
		{name: "invalid params", err: validation.ErrInvalidParams, wantCode: -32602},
		{name: "wrapped invalid params", err: errors.Join(errors.New("ctx"), validation.ErrInvalidParams), wantCode: -32602},
		{
			name:     "validation error",
			err:      &validation.Error{Fields: []validation.FieldError{{Message: "url is required"}}},
			wantCode: -32602,
		},
		{name: "other error", err: errors.New("boom"), wantCode: -32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantCode, errorObjectFor(tt.err).Code)
		})
	}
}

func TestMaybeUUID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uuid.Nil, maybeUUID(&models.RequestObject{}))

	id := uuid.New()
	assert.Equal(t, id, maybeUUID(&models.RequestObject{ID: &id}))
}
