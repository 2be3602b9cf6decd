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

// Package api exposes the TapCard command surface as JSON-RPC 2.0 over
// WebSocket, plus the asynchronous write event notifications.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/api/methods"
	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/api/requests"
	"github.com/tapcard/tapcard-core/pkg/api/validation"
	"github.com/tapcard/tapcard-core/pkg/config"
	"github.com/tapcard/tapcard-core/pkg/emulation"
	"github.com/tapcard/tapcard-core/pkg/session"
)

var (
	JSONRPCErrorParseError = models.ErrorObject{
		Code:    -32700,
		Message: "Parse error",
	}
	JSONRPCErrorInvalidRequest = models.ErrorObject{
		Code:    -32600,
		Message: "Invalid Request",
	}
	JSONRPCErrorMethodNotFound = models.ErrorObject{
		Code:    -32601,
		Message: "Method not found",
	}
	JSONRPCErrorInvalidParams = models.ErrorObject{
		Code:    -32602,
		Message: "Invalid params",
	}
	JSONRPCErrorServerError = models.ErrorObject{
		Code:    -32000,
		Message: "Server error",
	}
)

var methodMap = map[string]func(requests.RequestEnv) (any, error){
	// tag writing
	models.MethodWrite:       methods.HandleWrite,
	models.MethodWriteURL:    methods.HandleWriteURL,
	models.MethodWriteText:   methods.HandleWriteText,
	models.MethodWriteRaw:    methods.HandleWriteRaw,
	models.MethodWriteCancel: methods.HandleWriteCancel,
	// emulation
	models.MethodEmulationStart: methods.HandleEmulationStart,
	models.MethodEmulationStop:  methods.HandleEmulationStop,
	models.MethodEmulationState: methods.HandleEmulationState,
	// session lifecycle
	models.MethodSessionState:      methods.HandleSessionState,
	models.MethodSessionForeground: methods.HandleSessionForeground,
	models.MethodSessionBackground: methods.HandleSessionBackground,
	// utils
	models.MethodVersion: handleVersion,
}

func handleVersion(requests.RequestEnv) (any, error) {
	return models.VersionResponse{
		Version:  config.AppVersion,
		Platform: runtime.GOOS,
	}, nil
}

func maybeUUID(req *models.RequestObject) uuid.UUID {
	if req.ID == nil {
		return uuid.Nil
	}
	return *req.ID
}

func handleRequest(env requests.RequestEnv, req models.RequestObject) (any, error) {
	log.Debug().Str("method", req.Method).Msg("received request")

	fn, ok := methodMap[strings.ToLower(req.Method)]
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}

	env.ID = *req.ID
	env.Params = req.Params

	return fn(env)
}

func sendResponse(s *melody.Session, id uuid.UUID, result any) error {
	resp := models.ResponseObject{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("error marshalling response: %w", err)
	}

	if err := s.Write(data); err != nil {
		return fmt.Errorf("error writing response: %w", err)
	}
	return nil
}

func sendError(s *melody.Session, id uuid.UUID, errObj models.ErrorObject) error {
	log.Debug().Int("code", errObj.Code).Str("message", errObj.Message).Msg("sending error")

	resp := models.ResponseObject{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &errObj,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("error marshalling error response: %w", err)
	}

	if err := s.Write(data); err != nil {
		return fmt.Errorf("error writing error response: %w", err)
	}
	return nil
}

func broadcastNotifications(
	ctx context.Context,
	m *melody.Melody,
	ns <-chan models.Notification,
) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopping notification broadcaster")
			return
		case notif := <-ns:
			req := struct {
				Params  any    `json:"params,omitempty"`
				JSONRPC string `json:"jsonrpc"`
				Method  string `json:"method"`
			}{
				JSONRPC: "2.0",
				Method:  notif.Method,
				Params:  notif.Params,
			}

			data, err := json.Marshal(req)
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification")
				continue
			}

			if err := m.Broadcast(data); err != nil {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

func errorObjectFor(err error) models.ErrorObject {
	var ve *validation.Error
	switch {
	case errors.As(err, &ve),
		errors.Is(err, validation.ErrMissingParams),
		errors.Is(err, validation.ErrInvalidParams):
		out := JSONRPCErrorInvalidParams
		out.Message = err.Error()
		return out
	default:
		return JSONRPCErrorServerError
	}
}

func handleWSMessage(
	coordinator *session.Coordinator,
	gateway *emulation.Gateway,
	cfg *config.Instance,
) func(s *melody.Session, msg []byte) {
	return func(s *melody.Session, msg []byte) {
		// ping command for heartbeat operation
		if string(msg) == "ping" {
			if err := s.Write([]byte("pong")); err != nil {
				log.Error().Err(err).Msg("sending pong")
			}
			return
		}

		if !json.Valid(msg) {
			log.Error().Msg("data not valid json")
			if err := sendError(s, uuid.Nil, JSONRPCErrorParseError); err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		var req models.RequestObject
		if err := json.Unmarshal(msg, &req); err != nil || req.Method == "" {
			log.Error().Msg("message does not match known types")
			if err := sendError(s, maybeUUID(&req), JSONRPCErrorInvalidRequest); err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		if req.JSONRPC != "2.0" {
			log.Error().Str("jsonrpc", req.JSONRPC).Msg("unsupported payload version")
			if err := sendError(s, maybeUUID(&req), JSONRPCErrorInvalidRequest); err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		if req.ID == nil {
			// request is a notification, nothing to respond to
			log.Info().Str("method", req.Method).Msg("received notification, ignoring")
			return
		}

		rawIP := strings.SplitN(s.Request.RemoteAddr, ":", 2)
		clientIP := net.ParseIP(rawIP[0])

		resp, err := handleRequest(requests.RequestEnv{
			Session: coordinator,
			Gateway: gateway,
			Config:  cfg,
			IsLocal: clientIP != nil && clientIP.IsLoopback(),
		}, req)
		if err != nil {
			log.Error().Err(err).Str("method", req.Method).Msg("method failed")
			if err := sendError(s, *req.ID, errorObjectFor(err)); err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		if err := sendResponse(s, *req.ID, resp); err != nil {
			log.Error().Err(err).Msg("error sending response")
		}
	}
}

// Start runs the API server until ctx is cancelled. Notifications read from
// ns are broadcast to every connected client.
func Start(
	ctx context.Context,
	cfg *config.Instance,
	coordinator *session.Coordinator,
	gateway *emulation.Gateway,
	ns <-chan models.Notification,
) error {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.Timeout(config.APIRequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*", "capacitor://*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
	}))

	m := melody.New()
	m.Upgrader.CheckOrigin = func(_ *http.Request) bool { return true }
	m.HandleMessage(handleWSMessage(coordinator, gateway, cfg))

	go broadcastNotifications(ctx, m, ns)

	r.Get("/api", func(w http.ResponseWriter, req *http.Request) {
		if err := m.HandleRequest(w, req); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort()),
		Handler:           r,
		ReadHeaderTimeout: config.APIRequestTimeout,
	}

	go func() {
		<-ctx.Done()
		if err := srv.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing API server")
		}
		if err := m.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing websocket sessions")
		}
	}()

	log.Info().Int("port", cfg.APIPort()).Msg("starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}
