// Package config loads the profiler's environment settings and the input
// document describing which metrics, traces, and filters to use.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings holds environment-sourced configuration.
type Settings struct {
	// OutputDir receives results.txt and per-chunk trace artifacts.
	// Empty means results go to stdout and chunk artifacts are disabled.
	OutputDir string `env:"DISPATCH_PROFILER_OUTPUT_DIR" envDefault:""`
	// Input is the path of the YAML input document.
	Input string `env:"DISPATCH_PROFILER_INPUT" envDefault:""`
}

// ParseSettings parses Settings from the environment.
func ParseSettings() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parsing profiler settings: %w", err)
	}
	return &s, nil
}
