package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajanata/clock303/internal/config"
)

// simConfig seeds the simulated clock.
type simConfig struct {
	Clock config.Settings `yaml:"clock"`
	// JoinAfter is how long the simulated station takes to join; negative never joins.
	JoinAfter time.Duration `yaml:"join_after"`
	// Wipe clears the store before seeding, as holding DOWN at power on does.
	Wipe bool `yaml:"wipe"`
}

func defaultSimConfig() simConfig {
	return simConfig{
		Clock: config.Settings{
			SSID:       "simulated",
			Hostname:   "303Clock",
			NTPServers: []string{"0.pool.ntp.org", "1.pool.ntp.org", "2.pool.ntp.org"},
			TZName:     "GMT",
			DSTName:    "BST",
			DSTStart:   config.DSTRule{Weekday: 0, Week: 4, Month: 2, Hour: 1},
			DSTEnd:     config.DSTRule{Weekday: 0, Week: 4, Month: 9, Hour: 2},
		},
		JoinAfter: 3 * time.Second,
	}
}

// loadSimConfig reads path over the defaults. A missing file gives the defaults.
func loadSimConfig(path string) (simConfig, error) {
	if path == "" {
		return defaultSimConfig(), nil
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultSimConfig(), nil
	}
	if err != nil {
		return simConfig{}, fmt.Errorf("read config: %w", err)
	}
	cfg := defaultSimConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return simConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Clock.Validate(); err != nil {
		return simConfig{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
