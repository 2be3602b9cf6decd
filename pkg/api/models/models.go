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

// Package models defines the JSON-RPC objects, method names, and event
// payloads of the TapCard API surface.
package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	NotificationWriteSuccess   = "tags.write.success"
	NotificationWriteError     = "tags.write.error"
	NotificationWriteCancelled = "tags.write.cancelled"
)

const (
	MethodWrite             = "tags.write"
	MethodWriteURL          = "tags.write.url"
	MethodWriteText         = "tags.write.text"
	MethodWriteRaw          = "tags.write.raw"
	MethodWriteCancel       = "tags.write.cancel"
	MethodEmulationStart    = "emulation.start"
	MethodEmulationStop     = "emulation.stop"
	MethodEmulationState    = "emulation.status"
	MethodSessionState      = "session.status"
	MethodSessionForeground = "session.foreground"
	MethodSessionBackground = "session.background"
	MethodVersion           = "version"
)

// Notification is a server-initiated event pushed to all connected clients.
// Params is marshalled at broadcast time.
type Notification struct {
	Params any
	Method string
}

type RequestObject struct {
	ID      *uuid.UUID      `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type ErrorObject struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type ResponseObject struct {
	Result  any          `json:"result"`
	Error   *ErrorObject `json:"error,omitempty"`
	JSONRPC string       `json:"jsonrpc"`
	ID      uuid.UUID    `json:"id"`
}

// WriteSuccessParams is the payload of a tags.write.success notification.
type WriteSuccessParams struct {
	TagID        string `json:"tagId"`
	PayloadKind  string `json:"payloadKind"`
	BytesWritten int    `json:"bytesWritten"`
	TagCapacity  int    `json:"tagCapacity"`
}

// WriteErrorParams is the payload of a tags.write.error notification.
type WriteErrorParams struct {
	ErrorKind string `json:"errorKind"`
	Detail    string `json:"detail"`
}

// SessionStateResponse reports the write session coordinator state.
type SessionStateResponse struct {
	State          string `json:"state"`
	RequestPending bool   `json:"requestPending"`
}

// EmulationStateResponse reports the emulation gateway state.
type EmulationStateResponse struct {
	Active       bool `json:"active"`
	MessageBytes int  `json:"messageBytes"`
}

// EmulationStartResponse reports the byte count of the registered message.
type EmulationStartResponse struct {
	Bytes int `json:"bytes"`
}

// VersionResponse reports the running service version.
type VersionResponse struct {
	Version  string `json:"version"`
	Platform string `json:"platform"`
}
