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

// Package cli holds the shared command line flag handling for the tapcard
// binary: immediate flags, client-mode flags that talk to a running service,
// and environment setup.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/api/client"
	"github.com/tapcard/tapcard-core/pkg/api/models"
	"github.com/tapcard/tapcard-core/pkg/config"
	"github.com/tapcard/tapcard-core/pkg/helpers"
)

type Flags struct {
	WriteText *string
	WriteURL  *string
	API       *string
	Version   *bool
	Config    *bool
}

// SetupFlags defines all common CLI flags. Add any custom flags before
// calling Pre.
func SetupFlags() *Flags {
	return &Flags{
		WriteText: flag.String(
			"write-text",
			"",
			"write text to next presented tag",
		),
		WriteURL: flag.String(
			"write-url",
			"",
			"write URL to next presented tag",
		),
		API: flag.String(
			"api",
			"",
			"send method and params to API and print response",
		),
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Config: flag.Bool(
			"config",
			false,
			"print config file path and exit",
		),
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Pre runs flag parsing and actions any immediate flags that don't require
// environment setup.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("TapCard v%s (%s)\n", config.AppVersion, runtime.GOOS)
		os.Exit(0)
	}
}

// Setup loads the config file and initializes logging, exiting on failure.
func Setup(configDir, logDir string, defaults config.Values, logWriters []io.Writer) *config.Instance {
	cfg, err := config.NewConfig(configDir, defaults)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := helpers.InitLogging(logDir, logWriters); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return cfg
}

// writeOutcome maps a terminal write notification to the line to print, the
// stream to print it on, and the process exit code.
func writeOutcome(notifMethod, params string) (line string, toStderr bool, code int) {
	switch notifMethod {
	case models.NotificationWriteSuccess:
		return params, false, 0
	case models.NotificationWriteError:
		return fmt.Sprintf("Write failed: %s", params), true, 1
	case models.NotificationWriteCancelled:
		return "Write cancelled", true, 1
	default:
		return fmt.Sprintf("Unexpected notification: %s", notifMethod), true, 1
	}
}

func writeAndWait(cfg *config.Instance, method, params string) {
	done := make(chan struct{})
	exitCode := 0

	go func() {
		defer close(done)
		notifMethod, notifParams, err := client.WaitNotifications(
			context.Background(), config.APIRequestTimeout, cfg,
			models.NotificationWriteSuccess,
			models.NotificationWriteError,
			models.NotificationWriteCancelled,
		)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error waiting for write: %v\n", err)
			exitCode = 1
			return
		}

		line, toStderr, code := writeOutcome(notifMethod, notifParams)
		if toStderr {
			_, _ = fmt.Fprintln(os.Stderr, line)
		} else {
			_, _ = fmt.Println(line)
		}
		exitCode = code
	}()

	if _, err := client.LocalClient(context.Background(), cfg, method, params); err != nil {
		log.Error().Err(err).Msg("error requesting write")
		_, _ = fmt.Fprintf(os.Stderr, "Error requesting write: %v\n", err)
		os.Exit(1)
	}

	<-done
	os.Exit(exitCode)
}

// Post actions all remaining common flags that require the environment to be
// set up. Logging is allowed.
func (f *Flags) Post(cfg *config.Instance) {
	switch {
	case isFlagPassed("write-text"):
		if *f.WriteText == "" {
			_, _ = fmt.Fprint(os.Stderr, "Error: write-text flag requires a value\n")
			os.Exit(1)
		}

		data, err := json.Marshal(&models.WriteTextParams{Text: *f.WriteText})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error encoding params: %v\n", err)
			os.Exit(1)
		}
		writeAndWait(cfg, models.MethodWriteText, string(data))
	case isFlagPassed("write-url"):
		if *f.WriteURL == "" {
			_, _ = fmt.Fprint(os.Stderr, "Error: write-url flag requires a value\n")
			os.Exit(1)
		}

		data, err := json.Marshal(&models.WriteURLParams{URL: *f.WriteURL})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error encoding params: %v\n", err)
			os.Exit(1)
		}
		writeAndWait(cfg, models.MethodWriteURL, string(data))
	case isFlagPassed("api"):
		if *f.API == "" {
			_, _ = fmt.Fprint(os.Stderr, "Error: api flag requires a value\n")
			os.Exit(1)
		}

		method, params := splitAPIArg(*f.API)
		resp, err := client.LocalClient(context.Background(), cfg, method, params)
		if err != nil {
			log.Error().Err(err).Msg("error calling API")
			_, _ = fmt.Fprintf(os.Stderr, "Error calling API: %v\n", err)
			os.Exit(1)
		}

		_, _ = fmt.Println(resp)
		os.Exit(0)
	case *f.Config:
		_, _ = fmt.Println(cfg.Path())
		os.Exit(0)
	}
}

// splitAPIArg splits a "method:params" argument; params may be empty.
func splitAPIArg(arg string) (method, params string) {
	ps := strings.SplitN(arg, ":", 2)
	if len(ps) > 1 {
		return ps[0], ps[1]
	}
	return ps[0], ""
}
