package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// Admin HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Per-command deadline for persistence calls made on behalf of a session
const StoreCallTimeout = 10 * time.Second

// Background job intervals
const PairingSweepInterval = time.Second

// Largest accepted wire line, newline excluded
const MaxLineBytes = 64 * 1024

// Login throttling window for the redis limiter
const LoginRateLimitWindow = time.Minute

// Per-IP request budget for the admin API
const (
	AdminRateLimit       = 120
	AdminRateLimitWindow = time.Minute
)

// Largest request body the admin API accepts; its routes take no payloads
const AdminMaxBodyBytes = 4 * 1024
