// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package postgres

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
)

// Mode selects how the backend manages connections.
type Mode int

const (
	// ModePool uses a lazily-created pgx connection pool. This is the default.
	ModePool Mode = iota + 1
	// ModeSingle reuses one connection across calls, serialized through the
	// same acquire/release discipline as the pool.
	ModeSingle
)

// ParseMode converts a mode name ("pool" or "single") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "pool":
		return ModePool, nil
	case "single":
		return ModeSingle, nil
	default:
		return 0, fmt.Errorf("postgres config: unknown connection mode %q", s)
	}
}

// Config holds connection settings for the PostgreSQL backend.
type Config struct {
	// URL is a full connection URL. When set it takes precedence over the
	// individual host/port/credential fields.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string

	// TLS enables TLS for the connection; TLSCACert optionally points at a
	// CA certificate file used to verify the server.
	TLS       bool
	TLSCACert string

	// PoolSize is the maximum number of pooled connections.
	// Default: 8.
	PoolSize int

	// Mode selects pooled or single-connection operation.
	Mode Mode
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithURL sets a full connection URL, overriding the individual fields.
func WithURL(url string) ConfigOption {
	return func(c *Config) { c.URL = url }
}

// WithHost sets the database host.
func WithHost(host string) ConfigOption {
	return func(c *Config) { c.Host = host }
}

// WithPort sets the database port.
func WithPort(port int) ConfigOption {
	return func(c *Config) { c.Port = port }
}

// WithUser sets the database user.
func WithUser(user string) ConfigOption {
	return func(c *Config) { c.User = user }
}

// WithPassword sets the database password.
func WithPassword(password string) ConfigOption {
	return func(c *Config) { c.Password = password }
}

// WithDatabase sets the database name.
func WithDatabase(name string) ConfigOption {
	return func(c *Config) { c.Database = name }
}

// WithTLS enables TLS with an optional CA certificate file.
func WithTLS(caCert string) ConfigOption {
	return func(c *Config) {
		c.TLS = true
		c.TLSCACert = caCert
	}
}

// WithPoolSize sets the maximum pool size.
func WithPoolSize(size int) ConfigOption {
	return func(c *Config) { c.PoolSize = size }
}

// WithMode sets the connection mode.
func WithMode(mode Mode) ConfigOption {
	return func(c *Config) { c.Mode = mode }
}

// DefaultConfig returns a Config with sensible defaults for a local server.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Database: "engram",
		PoolSize: 8,
		Mode:     ModePool,
	}
}

// NewConfig creates a Config with the default values and applies the
// provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// FromEnv builds a Config from environment variables, starting from the
// defaults:
//
//	ENGRAM_DATABASE_URL  full connection URL (takes precedence)
//	ENGRAM_DB_HOST       host
//	ENGRAM_DB_PORT       port
//	ENGRAM_DB_USER       user
//	ENGRAM_DB_PASSWORD   password
//	ENGRAM_DB_NAME       database name
//	ENGRAM_DB_TLS        "true" to enable TLS
//	ENGRAM_DB_TLS_CA     CA certificate file
//	ENGRAM_DB_POOL_SIZE  maximum pool size
//	ENGRAM_DB_MODE       "pool" or "single"
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("ENGRAM_DATABASE_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("ENGRAM_DB_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("ENGRAM_DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("postgres config: invalid ENGRAM_DB_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("ENGRAM_DB_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("ENGRAM_DB_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("ENGRAM_DB_NAME"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("ENGRAM_DB_TLS"); v != "" {
		tls, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("postgres config: invalid ENGRAM_DB_TLS %q: %w", v, err)
		}
		cfg.TLS = tls
	}
	if v := os.Getenv("ENGRAM_DB_TLS_CA"); v != "" {
		cfg.TLSCACert = v
	}
	if v := os.Getenv("ENGRAM_DB_POOL_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("postgres config: invalid ENGRAM_DB_POOL_SIZE %q: %w", v, err)
		}
		cfg.PoolSize = size
	}
	if v := os.Getenv("ENGRAM_DB_MODE"); v != "" {
		mode, err := ParseMode(v)
		if err != nil {
			return nil, err
		}
		cfg.Mode = mode
	}

	return cfg, nil
}

// Validate checks that the configuration is complete enough to connect.
func (c *Config) Validate() error {
	if c.URL != "" {
		return nil
	}
	if c.Host == "" {
		return errors.New("postgres config: Host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("postgres config: invalid port %d", c.Port)
	}
	if c.User == "" {
		return errors.New("postgres config: User is required")
	}
	if c.Database == "" {
		return errors.New("postgres config: Database is required")
	}
	if c.PoolSize < 1 {
		return errors.New("postgres config: PoolSize must be at least 1")
	}
	if c.Mode != ModePool && c.Mode != ModeSingle {
		return fmt.Errorf("postgres config: invalid mode %d", c.Mode)
	}
	return nil
}

// ConnString assembles the pgx connection string. A configured URL takes
// precedence over the individual fields.
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}

	q := url.Values{}
	if c.TLS {
		if c.TLSCACert != "" {
			q.Set("sslmode", "verify-full")
			q.Set("sslrootcert", c.TLSCACert)
		} else {
			q.Set("sslmode", "require")
		}
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()

	return u.String()
}
