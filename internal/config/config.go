package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var supportedDrivers = []string{"postgres", "sqlite3", "mysql"}

type Config struct {
	Host                 string `env:"HOST" envDefault:"127.0.0.1"`
	Port                 int    `env:"PORT" envDefault:"55555"`
	AdminPort            int    `env:"ADMIN_PORT" envDefault:"8080"`
	AdminToken           string `env:"ADMIN_TOKEN"`
	DatabaseDriver       string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	RedisURL             string `env:"REDIS_URL"`
	PairingWindowSeconds int    `env:"PAIRING_WINDOW_SECONDS" envDefault:"5"`
	AuthTimeoutSeconds   int    `env:"AUTH_TIMEOUT_SECONDS" envDefault:"60"`
	ProbeIntervalMs      int    `env:"PROBE_INTERVAL_MS" envDefault:"1500"`
	ProbeReplyWindowMs   int    `env:"PROBE_REPLY_WINDOW_MS" envDefault:"1500"`
	MaxLoginAttempts     int    `env:"MAX_LOGIN_ATTEMPTS" envDefault:"3"`
	LoginRateLimitPerMin int    `env:"LOGIN_RATE_LIMIT_PER_MIN" envDefault:"10"`
	HistoryLimit         int    `env:"HISTORY_LIMIT" envDefault:"50"`
	SendQueueSize        int    `env:"SEND_QUEUE_SIZE" envDefault:"64"`
	WriteTimeoutMs       int    `env:"WRITE_TIMEOUT_MS" envDefault:"2000"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
}

// CommandAddr is the listen address of the command channel (port N).
func (c *Config) CommandAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PollAddr is the listen address of the liveness channel (port N+1).
func (c *Config) PollAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port+1))
}

func (c *Config) AdminAddr() string {
	return fmt.Sprintf(":%d", c.AdminPort)
}

func (c *Config) PairingWindow() time.Duration {
	return time.Duration(c.PairingWindowSeconds) * time.Second
}

func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.AuthTimeoutSeconds) * time.Second
}

func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMs) * time.Millisecond
}

func (c *Config) ProbeReplyWindow() time.Duration {
	return time.Duration(c.ProbeReplyWindowMs) * time.Millisecond
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port >= 65535 {
		return fmt.Errorf("PORT must be in 1..65534 (liveness port is PORT+1), got %d", c.Port)
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		return fmt.Errorf("ADMIN_PORT must be in 0..65535, got %d", c.AdminPort)
	}
	if c.AdminPort == c.Port || c.AdminPort == c.Port+1 {
		return fmt.Errorf("ADMIN_PORT %d collides with the chat ports", c.AdminPort)
	}

	driverOK := false
	for _, d := range supportedDrivers {
		if c.DatabaseDriver == d {
			driverOK = true
			break
		}
	}
	if !driverOK {
		return fmt.Errorf("DATABASE_DRIVER must be one of %s, got %q", strings.Join(supportedDrivers, ", "), c.DatabaseDriver)
	}

	positive := map[string]int{
		"PAIRING_WINDOW_SECONDS":   c.PairingWindowSeconds,
		"AUTH_TIMEOUT_SECONDS":     c.AuthTimeoutSeconds,
		"PROBE_INTERVAL_MS":        c.ProbeIntervalMs,
		"PROBE_REPLY_WINDOW_MS":    c.ProbeReplyWindowMs,
		"MAX_LOGIN_ATTEMPTS":       c.MaxLoginAttempts,
		"LOGIN_RATE_LIMIT_PER_MIN": c.LoginRateLimitPerMin,
		"HISTORY_LIMIT":            c.HistoryLimit,
		"SEND_QUEUE_SIZE":          c.SendQueueSize,
		"WRITE_TIMEOUT_MS":         c.WriteTimeoutMs,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}

	if c.ProbeReplyWindowMs > c.ProbeIntervalMs*4 {
		log.Warn().
			Int("probeIntervalMs", c.ProbeIntervalMs).
			Int("probeReplyWindowMs", c.ProbeReplyWindowMs).
			Msg("probe reply window is much longer than the probe interval: dead peers will linger")
	}
	if c.AdminPort != 0 && c.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is empty: admin routes are disabled, only /health is served")
	}
	if c.RedisURL == "" {
		log.Warn().Msg("REDIS_URL is empty: login throttling and admin events are process-local")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
