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

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/cli"
	"github.com/tapcard/tapcard-core/pkg/config"
	"github.com/tapcard/tapcard-core/pkg/service"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "." + config.AppName
	}
	return filepath.Join(dir, config.AppName)
}

func run() error {
	flags := cli.SetupFlags()

	daemonMode := flag.Bool(
		"daemon",
		false,
		"run service in foreground",
	)
	dataDir := flag.String(
		"data-dir",
		defaultDataDir(),
		"directory for config and logs",
	)

	flags.Pre()

	var logWriters []io.Writer
	if *daemonMode {
		logWriters = []io.Writer{os.Stderr}
	}

	cfg := cli.Setup(*dataDir, *dataDir, config.BaseDefaults, logWriters)

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	flags.Post(cfg)

	stopSvc, err := service.Start(cfg)
	if err != nil {
		log.Error().Msgf("error starting service: %s", err)
		return fmt.Errorf("error starting service: %w", err)
	}
	defer func() {
		if err := stopSvc(); err != nil {
			log.Error().Msgf("error stopping service: %s", err)
		}
	}()

	log.Info().Msgf("TapCard v%s service started", config.AppVersion)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info().Msg("shutting down")
	return nil
}
