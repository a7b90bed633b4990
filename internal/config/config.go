// Package config defines service configuration structures and loading hooks.
//
// Conventions follow the rest of the repo: defaults come from New, Load layers
// an optional YAML file and environment variables on top, and external errors
// are wrapped via this package's sentinels.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DataFile is the path of the JSON score store.
	DataFile string `koanf:"data_file"`

	// LockDir holds the advisory lock file guarding store writes.
	LockDir string `koanf:"lock_dir"`

	// MaxScores caps retained records per time category.
	MaxScores int `koanf:"max_scores"`

	// TrustProxy derives the client identity from ClientIPHeader instead of
	// the transport peer address.
	TrustProxy     bool   `koanf:"trust_proxy"`
	ClientIPHeader string `koanf:"client_ip_header"`

	// CORSOrigin is the frontend origin allowed to call the API.
	CORSOrigin string `koanf:"cors_origin"`

	// PlayDeadline (RFC3339) switches GET cache max-age from 30s to 3600s
	// once play has ended. Empty means the game never ends.
	PlayDeadline string `koanf:"play_deadline"`

	// RateLimitRPS and RateLimitBurst bound submissions per client identity.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// DuplicateWindow is how long an identical name+score resubmission is
	// treated as a double-click rather than a new score.
	DuplicateWindow time.Duration `koanf:"duplicate_window"`

	// LockMaxWait bounds total time spent acquiring the store lock.
	// LockStaleTimeout is the age past which an abandoned lock is reclaimed.
	LockMaxWait      time.Duration `koanf:"lock_max_wait"`
	LockStaleTimeout time.Duration `koanf:"lock_stale_timeout"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":8080",
		DataFile:         "data/scores.json",
		LockDir:          "data",
		MaxScores:        50,
		TrustProxy:       false,
		ClientIPHeader:   "X-Forwarded-For",
		CORSOrigin:       "*",
		RateLimitRPS:     1,
		RateLimitBurst:   5,
		DuplicateWindow:  5 * time.Second,
		LockMaxWait:      2 * time.Second,
		LockStaleTimeout: 10 * time.Second,
	}
}

// Deadline parses PlayDeadline. The zero time means no deadline is set.
func (c *Config) Deadline() (time.Time, error) {
	if c.PlayDeadline == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.PlayDeadline)
	if err != nil {
		return time.Time{}, ErrInvalidConfig
	}
	return t, nil
}
