// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mlsds.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[server]
addr = "127.0.0.1:9000"
request_timeout = "3s"
allowed_origins = ["https://efchat.net"]

[store]
driver = "bolt"
bolt_path = "/var/lib/mlsds/data.db"

[validation]
mode = "passthrough"

[logging]
level = "debug"
format = "json"
`)

	cfg := Default()
	require.NoError(t, cfg.loadFile(path))
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://efchat.net"}, cfg.AllowedOrigins)
	assert.Equal(t, DriverBolt, cfg.StoreDriver)
	assert.Equal(t, "/var/lib/mlsds/data.db", cfg.BoltPath)
	assert.Equal(t, "passthrough", cfg.Validation)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "efchat", cfg.JWTIssuer, "unset keys keep their defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, `
[store]
drvier = "memory"
`)
	cfg := Default()
	err := cfg.loadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drvier")
}

func TestLoadFileBadTimeout(t *testing.T) {
	path := writeFile(t, `
[server]
request_timeout = "soon"
`)
	cfg := Default()
	assert.Error(t, cfg.loadFile(path))
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
[store]
driver = "memory"

[server]
addr = "127.0.0.1:9000"
`)
	t.Setenv("ADDR", "0.0.0.0:7000")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://mls@localhost/mlsds?sslmode=disable")
	t.Setenv("REQUEST_TIMEOUT", "250ms")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Addr)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://mls@localhost/mlsds?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestApplyEnvBadTimeout(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(name string) (string, bool) {
		if name == "REQUEST_TIMEOUT" {
			return "ten", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"postgres without url", func(c *Config) {}, false},
		{"postgres with url", func(c *Config) { c.DatabaseURL = "postgres://localhost/mlsds" }, true},
		{"memory", func(c *Config) { c.StoreDriver = DriverMemory }, true},
		{"bolt without path", func(c *Config) { c.StoreDriver = DriverBolt; c.BoltPath = "" }, false},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }, false},
		{"unknown validation", func(c *Config) { c.StoreDriver = DriverMemory; c.Validation = "lax" }, false},
		{"zero timeout", func(c *Config) { c.StoreDriver = DriverMemory; c.RequestTimeout = 0 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
