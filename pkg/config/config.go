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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/tapcard/tapcard-core/pkg/helpers/syncutil"
)

const (
	SchemaVersion = 1
	CfgEnv        = "TAPCARD_CFG"
)

type Values struct {
	Readers      Readers `toml:"readers,omitempty"`
	Write        Write   `toml:"write,omitempty"`
	Service      Service `toml:"service,omitempty"`
	ConfigSchema int     `toml:"config_schema"`
	DebugLogging bool    `toml:"debug_logging"`
}

type Readers struct {
	Connect    []ReadersConnect `toml:"connect,omitempty"`
	AutoDetect bool             `toml:"auto_detect"`
}

type ReadersConnect struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// ConnectionString returns the "driver:path" form used in logs and device
// bookkeeping.
func (r ReadersConnect) ConnectionString() string {
	return r.Driver + ":" + r.Path
}

type Write struct {
	// Language is the IANA language code used in text records.
	Language string `toml:"language,omitempty"`
	// SettleDelayMs is how long to wait after a foreground signal before
	// arming tag interception. The safe minimum is hardware dependent.
	SettleDelayMs int `toml:"settle_delay_ms,omitempty"`
	// AssumeCapacity is the capacity in bytes assumed for tags whose true
	// capacity cannot be read.
	AssumeCapacity int `toml:"assume_capacity,omitempty"`
}

type Service struct {
	APIPort int `toml:"api_port,omitempty"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Readers: Readers{
		AutoDetect: true,
	},
	Write: Write{
		Language:       "en",
		SettleDelayMs:  300,
		AssumeCapacity: 144,
	},
	Service: Service{
		APIPort: 7787,
	},
}

// Instance is a loaded config file. All access goes through the getters; the
// raw Values are copied under the read lock.
type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads (or creates with defaults) the config file under
// configDir, on the real filesystem.
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	return NewConfigWithFs(afero.NewOsFs(), configDir, defaults)
}

// NewConfigWithFs is NewConfig with an injected filesystem, used by tests to
// run on afero.NewMemMapFs.
func NewConfigWithFs(fs afero.Fs, configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		fs:       fs,
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := fs.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		if err := fs.MkdirAll(filepath.Dir(cfgPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Load(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load reads and parses the config file, replacing in-memory values.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	vals := c.defaults
	if err := toml.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if vals.ConfigSchema != SchemaVersion {
		log.Warn().
			Int("schema", vals.ConfigSchema).
			Int("expected", SchemaVersion).
			Msg("config schema version mismatch")
	}

	c.vals = vals
	return nil
}

// Save writes the current in-memory values to disk.
func (c *Instance) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := toml.Marshal(c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Instance) Path() string {
	return c.cfgPath
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) APIPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Service.APIPort <= 0 {
		return c.defaults.Service.APIPort
	}
	return c.vals.Service.APIPort
}

func (c *Instance) ReadersConnect() []ReadersConnect {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ReadersConnect, len(c.vals.Readers.Connect))
	copy(out, c.vals.Readers.Connect)
	return out
}

func (c *Instance) AutoDetect() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Readers.AutoDetect
}

// SettleDelay returns the configured interception settle delay.
func (c *Instance) SettleDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Write.SettleDelayMs <= 0 {
		return time.Duration(c.defaults.Write.SettleDelayMs) * time.Millisecond
	}
	return time.Duration(c.vals.Write.SettleDelayMs) * time.Millisecond
}

func (c *Instance) WriteLanguage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Write.Language == "" {
		return c.defaults.Write.Language
	}
	return c.vals.Write.Language
}

func (c *Instance) AssumeCapacity() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Write.AssumeCapacity <= 0 {
		return c.defaults.Write.AssumeCapacity
	}
	return c.vals.Write.AssumeCapacity
}
