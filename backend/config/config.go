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

// Package config loads server settings from a TOML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

type Config struct {
	Addr           string
	RequestTimeout time.Duration
	AllowedOrigins []string

	StoreDriver string
	DatabaseURL string
	BoltPath    string
	RedisURL    string

	// Validation is "strict" or "passthrough".
	Validation string

	// JWTSecret enables bearer token auth when set.
	JWTSecret string
	JWTIssuer string

	LogLevel  string
	LogFormat string
}

func Default() Config {
	return Config{
		Addr:           "0.0.0.0:50051",
		RequestTimeout: 10 * time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
		StoreDriver:    DriverPostgres,
		BoltPath:       "mlsds.db",
		Validation:     "strict",
		JWTIssuer:      "efchat",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

type fileConfig struct {
	Server struct {
		Addr           string   `toml:"addr"`
		RequestTimeout string   `toml:"request_timeout"`
		AllowedOrigins []string `toml:"allowed_origins"`
	} `toml:"server"`
	Store struct {
		Driver      string `toml:"driver"`
		DatabaseURL string `toml:"database_url"`
		BoltPath    string `toml:"bolt_path"`
	} `toml:"store"`
	Redis struct {
		URL string `toml:"url"`
	} `toml:"redis"`
	Validation struct {
		Mode string `toml:"mode"`
	} `toml:"validation"`
	Auth struct {
		JWTSecret string `toml:"jwt_secret"`
		JWTIssuer string `toml:"jwt_issuer"`
	} `toml:"auth"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

// Load builds the effective configuration. path may be empty, in which
// case only defaults, .env and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	set := func(key string, dst *string, v string) {
		if meta.IsDefined(strings.Split(key, ".")...) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("server.addr", &c.Addr, raw.Server.Addr)
	set("store.driver", &c.StoreDriver, raw.Store.Driver)
	set("store.database_url", &c.DatabaseURL, raw.Store.DatabaseURL)
	set("store.bolt_path", &c.BoltPath, raw.Store.BoltPath)
	set("redis.url", &c.RedisURL, raw.Redis.URL)
	set("validation.mode", &c.Validation, raw.Validation.Mode)
	set("auth.jwt_secret", &c.JWTSecret, raw.Auth.JWTSecret)
	set("auth.jwt_issuer", &c.JWTIssuer, raw.Auth.JWTIssuer)
	set("logging.level", &c.LogLevel, raw.Logging.Level)
	set("logging.format", &c.LogFormat, raw.Logging.Format)

	if meta.IsDefined("server", "request_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Server.RequestTimeout))
		if err != nil {
			return fmt.Errorf("parse server.request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	if meta.IsDefined("server", "allowed_origins") {
		c.AllowedOrigins = raw.Server.AllowedOrigins
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	vars := map[string]*string{
		"ADDR":         &c.Addr,
		"STORE_DRIVER": &c.StoreDriver,
		"DATABASE_URL": &c.DatabaseURL,
		"BOLT_PATH":    &c.BoltPath,
		"REDIS_URL":    &c.RedisURL,
		"VALIDATION":   &c.Validation,
		"JWT_SECRET":   &c.JWTSecret,
		"JWT_ISSUER":   &c.JWTIssuer,
		"LOG_LEVEL":    &c.LogLevel,
		"LOG_FORMAT":   &c.LogFormat,
	}
	for name, dst := range vars {
		if v, ok := lookup(name); ok && v != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.AllowedOrigins = origins
	}
	return nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive, got %s", c.RequestTimeout)
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: postgres driver needs DATABASE_URL")
		}
	case DriverBolt:
		if c.BoltPath == "" {
			return errors.New("config: bolt driver needs a bolt_path")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	switch c.Validation {
	case "strict", "passthrough":
	default:
		return fmt.Errorf("config: unknown validation mode %q", c.Validation)
	}
	return nil
}
