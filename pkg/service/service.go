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

// Package service wires the pieces together into the running daemon: reader
// connection management, the write session coordinator, the emulation
// gateway, and the API server.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/api"
	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/config"
	"github.com/tapcard/tapcard-core/pkg/drivers/pn532"
	"github.com/tapcard/tapcard-core/pkg/emulation"
	"github.com/tapcard/tapcard-core/pkg/session"
	"github.com/tapcard/tapcard-core/pkg/tagwriter"
)

const (
	notificationBuffer  = 100
	readerCheckInterval = 2 * time.Second
)

// readerManager keeps one PN532 driver connected, retrying configured
// readers and falling back to auto-detection. Reader presence maps onto the
// coordinator's lifecycle signals: a connected reader means tags can be
// intercepted, a lost reader means they cannot.
func readerManager(
	ctx context.Context,
	cfg *config.Instance,
	driver *pn532.Driver,
	coordinator *session.Coordinator,
) {
	ticker := time.NewTicker(readerCheckInterval)
	defer ticker.Stop()

	connected := driver.Connected()
	for {
		if driver.Connected() {
			connected = true
		} else {
			if connected {
				// reader dropped off the bus; tags can no longer be
				// intercepted until it comes back
				log.Warn().Msg("reader lost")
				coordinator.ForegroundExited()
				connected = false
			}
			if tryConnect(cfg, driver) {
				connected = true
				coordinator.ForegroundEntered()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func tryConnect(cfg *config.Instance, driver *pn532.Driver) bool {
	for _, device := range cfg.ReadersConnect() {
		if err := driver.Open(device); err != nil {
			log.Debug().Err(err).Msgf("failed to open reader: %s", device.ConnectionString())
			continue
		}
		return true
	}

	if !cfg.AutoDetect() {
		return false
	}

	detected := pn532.Detect(nil)
	if detected == "" {
		return false
	}

	parts := strings.SplitN(detected, ":", 2)
	if len(parts) != 2 {
		return false
	}

	device := config.ReadersConnect{Driver: parts[0], Path: parts[1]}
	if err := driver.Open(device); err != nil {
		log.Debug().Err(err).Msgf("failed to open detected reader: %s", detected)
		return false
	}
	return true
}

// Start brings the daemon up and returns a stop function.
func Start(cfg *config.Instance) (func() error, error) {
	ns := make(chan models.Notification, notificationBuffer)

	driver := pn532.NewDriver(cfg)
	gateway := emulation.NewGateway()
	coordinator := session.NewCoordinator(
		driver,
		tagwriter.New(),
		ns,
		cfg.SettleDelay(),
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())

	go readerManager(ctx, cfg, driver, coordinator)

	go func() {
		if err := api.Start(ctx, cfg, coordinator, gateway, ns); err != nil {
			log.Error().Err(err).Msg("API server exited")
		}
	}()

	return func() error {
		coordinator.Stopped()
		cancel()
		coordinator.Stop()
		if err := driver.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing reader")
		}
		return nil
	}, nil
}
