package api

import "time"

// Config holds server configuration.
type Config struct {
	Addr            string        // listen address, e.g. ":5000"
	MaxBodyBytes    int64         // request body limit
	AllowedOrigins  []string      // CORS allowed origins (empty = allow all)
	UsersTable      string        // table behind /add-user
	Version         string        // reported by /health
	ShutdownTimeout time.Duration // graceful shutdown budget
}

const (
	DefaultAddr            = ":5000"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultUsersTable      = "users"
	DefaultShutdownTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.UsersTable == "" {
		c.UsersTable = DefaultUsersTable
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}
