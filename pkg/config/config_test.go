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
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigCreatesDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()

	cfg, err := NewConfigWithFs(fs, "/cfg", BaseDefaults)
	require.NoError(t, err)

	exists, err := afero.Exists(fs, filepath.Join("/cfg", CfgFile))
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, 7787, cfg.APIPort())
	assert.Equal(t, 300*time.Millisecond, cfg.SettleDelay())
	assert.Equal(t, "en", cfg.WriteLanguage())
	assert.Equal(t, 144, cfg.AssumeCapacity())
	assert.True(t, cfg.AutoDetect())
	assert.False(t, cfg.DebugLogging())
}

func TestLoadParsesFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	data := []byte(`
config_schema = 1
debug_logging = true

[readers]
auto_detect = false

[[readers.connect]]
driver = "pn532_uart"
path = "/dev/ttyUSB0"

[write]
language = "de"
settle_delay_ms = 500
assume_capacity = 504

[service]
api_port = 9000
`)
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/cfg", CfgFile), data, 0o600))

	cfg, err := NewConfigWithFs(fs, "/cfg", BaseDefaults)
	require.NoError(t, err)

	assert.True(t, cfg.DebugLogging())
	assert.False(t, cfg.AutoDetect())
	assert.Equal(t, 9000, cfg.APIPort())
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay())
	assert.Equal(t, "de", cfg.WriteLanguage())
	assert.Equal(t, 504, cfg.AssumeCapacity())

	readers := cfg.ReadersConnect()
	require.Len(t, readers, 1)
	assert.Equal(t, "pn532_uart", readers[0].Driver)
	assert.Equal(t, "/dev/ttyUSB0", readers[0].Path)
	assert.Equal(t, "pn532_uart:/dev/ttyUSB0", readers[0].ConnectionString())
}

func TestGettersFallBackToDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	data := []byte(`
config_schema = 1

[write]
settle_delay_ms = 0
language = ""
`)
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/cfg", CfgFile), data, 0o600))

	cfg, err := NewConfigWithFs(fs, "/cfg", BaseDefaults)
	require.NoError(t, err)

	assert.Equal(t, 300*time.Millisecond, cfg.SettleDelay())
	assert.Equal(t, "en", cfg.WriteLanguage())
	assert.Equal(t, 144, cfg.AssumeCapacity())
	assert.Equal(t, 7787, cfg.APIPort())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()

	cfg, err := NewConfigWithFs(fs, "/cfg", BaseDefaults)
	require.NoError(t, err)

	require.NoError(t, cfg.Save())
	require.NoError(t, cfg.Load())

	assert.Equal(t, 7787, cfg.APIPort())
	assert.Equal(t, "en", cfg.WriteLanguage())
}

func TestInvalidTomlRejected(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/cfg", CfgFile),
		[]byte("not [valid toml"), 0o600))

	_, err := NewConfigWithFs(fs, "/cfg", BaseDefaults)
	require.Error(t, err)
}

func TestCfgEnvOverridesPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	custom := "/elsewhere/tapcard.toml"
	t.Setenv(CfgEnv, custom)

	cfg, err := NewConfigWithFs(fs, "/cfg", BaseDefaults)
	require.NoError(t, err)
	assert.Equal(t, custom, cfg.Path())

	exists, err := afero.Exists(fs, custom)
	require.NoError(t, err)
	assert.True(t, exists)
}
