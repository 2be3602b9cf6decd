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

// Package client is a minimal WebSocket client for the local TapCard API,
// used by the CLI flags and by integration tooling.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/config"
)

var (
	ErrRequestTimeout   = errors.New("request timed out")
	ErrInvalidParams    = errors.New("invalid params")
	ErrRequestCancelled = errors.New("request cancelled")
)

const APIPath = "/api"

func localURL(cfg *config.Instance) url.URL {
	return url.URL{
		Scheme: "ws",
		Host:   "localhost:" + strconv.Itoa(cfg.APIPort()),
		Path:   APIPath,
	}
}

// LocalClient sends a single method with params to the local running API
// service, waits for a response until timeout then disconnects.
func LocalClient(
	ctx context.Context,
	cfg *config.Instance,
	method string,
	params string,
) (string, error) {
	wsURL := localURL(cfg)

	id, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}

	req := models.RequestObject{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
	}

	switch {
	case len(params) == 0:
		req.Params = nil
	case json.Valid([]byte(params)):
		req.Params = []byte(params)
	default:
		return "", ErrInvalidParams
	}

	c, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing websocket")
		}
	}()

	done := make(chan struct{})
	var resp *models.ResponseObject

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				return
			}

			var m models.ResponseObject
			if err := json.Unmarshal(message, &m); err != nil {
				continue
			}
			if m.JSONRPC != "2.0" || m.ID != id {
				continue
			}

			resp = &m
			return
		}
	}()

	if err := c.WriteJSON(req); err != nil {
		return "", err
	}

	timer := time.NewTimer(config.APIRequestTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		_ = c.Close()
		return "", ErrRequestTimeout
	case <-ctx.Done():
		_ = c.Close()
		return "", ErrRequestCancelled
	}

	if resp == nil {
		return "", ErrRequestTimeout
	}
	if resp.Error != nil {
		return "", errors.New(resp.Error.Message)
	}

	b, err := json.Marshal(resp.Result)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WaitNotification blocks until a notification with the given method arrives,
// returning its params as JSON.
func WaitNotification(
	ctx context.Context,
	timeout time.Duration,
	cfg *config.Instance,
	method string,
) (string, error) {
	_, params, err := WaitNotifications(ctx, timeout, cfg, method)
	return params, err
}

// WaitNotifications connects to the local API and blocks until a notification
// matching one of methods arrives, returning the matched method and its
// params as JSON.
func WaitNotifications(
	ctx context.Context,
	timeout time.Duration,
	cfg *config.Instance,
	methods ...string,
) (string, string, error) {
	wsURL := localURL(cfg)

	c, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return "", "", err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing websocket")
		}
	}()

	done := make(chan struct{})
	var method, params string

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				return
			}

			var notif models.RequestObject
			if err := json.Unmarshal(message, &notif); err != nil {
				continue
			}
			if notif.ID != nil || !slices.Contains(methods, notif.Method) {
				continue
			}

			method = notif.Method
			params = string(notif.Params)
			return
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return method, params, nil
	case <-timer.C:
		_ = c.Close()
		return "", "", ErrRequestTimeout
	case <-ctx.Done():
		_ = c.Close()
		return "", "", ErrRequestCancelled
	}
}
