// Package config loads engine defaults from the environment (12-factor),
// with compiled-in fallbacks matching the engine's documented behavior.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Defaults holds tunable engine defaults.
type Defaults struct {
	ReadTimeout    int    `envconfig:"READ_TIMEOUT" default:"15"`     // seconds
	ConnectTimeout int    `envconfig:"CONNECT_TIMEOUT" default:"15"`  // seconds
	StallTimeout   int    `envconfig:"STALL_TIMEOUT" default:"300"`   // seconds of download inactivity tolerated
	BufferSize     int    `envconfig:"BUFFER_SIZE" default:"131072"`  // bytes per transfer chunk
	ProgressQueue  int    `envconfig:"PROGRESS_QUEUE" default:"8"`    // per-request event channel capacity
	UserAgent      string `envconfig:"USER_AGENT" default:"gmcurl/1"` // empty disables the header
}

// Load reads GMCURL_* environment variables over the defaults.
func Load() (*Defaults, error) {
	var d Defaults
	if err := envconfig.Process("gmcurl", &d); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &d, nil
}

// LoadOrDefault loads from the environment or falls back to the compiled-in
// defaults when the environment is malformed.
func LoadOrDefault() *Defaults {
	d, err := Load()
	if err != nil {
		return &Defaults{
			ReadTimeout:    15,
			ConnectTimeout: 15,
			StallTimeout:   300,
			BufferSize:     131072,
			ProgressQueue:  8,
			UserAgent:      "gmcurl/1",
		}
	}
	return d
}
