// Package config holds the explicit Config value threaded through the
// pipeline. There is no process-wide singleton here on purpose: every
// threshold and prefix set travels as a plain value passed into the
// orchestrator, so two jobs running concurrently with different tuning
// never interfere with each other.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// InputSizeLimits bounds the number of files a job may accept per tier.
type InputSizeLimits struct {
	FreeMaxFiles int `toml:"free_max_files"`
	PaidMaxFiles int `toml:"paid_max_files"`
}

// Config is every recognized tuning knob for a job run.
type Config struct {
	OCRConcurrency        int      `toml:"ocr_concurrency"`
	ScoredMatchThreshold  float64  `toml:"scored_match_threshold"`
	StackToleranceHero    float64  `toml:"stack_tolerance_hero"`
	StackToleranceGeneral float64  `toml:"stack_tolerance_general"`
	StackAlignmentRatio   float64  `toml:"stack_alignment_ratio"`
	OCR1RetryDelayMs      int      `toml:"ocr1_retry_delay_ms"`
	OCR1MaxRetries        int      `toml:"ocr1_max_retries"`
	HandIDPrefixStripSet  []string `toml:"hand_id_prefix_strip_set"`
	InputSizeLimits       InputSizeLimits `toml:"input_size_limits"`
}

// Default returns the documented production defaults.
func Default() Config {
	return Config{
		OCRConcurrency:        10,
		ScoredMatchThreshold:  70.0,
		StackToleranceHero:    0.25,
		StackToleranceGeneral: 0.30,
		StackAlignmentRatio:   0.50,
		OCR1RetryDelayMs:      1000,
		OCR1MaxRetries:        1,
		HandIDPrefixStripSet:  []string{"RC", "OM", "TM", "HD", "SG", "MT", "TT"},
		InputSizeLimits: InputSizeLimits{
			FreeMaxFiles: 20,
			PaidMaxFiles: 500,
		},
	}
}

// Load reads a TOML config file, starting from Default() and overriding only
// the keys present in the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first configuration error found, if any.
func (c Config) Validate() error {
	if c.OCRConcurrency < 1 {
		return fmt.Errorf("ocr_concurrency must be >= 1, got %d", c.OCRConcurrency)
	}
	if c.ScoredMatchThreshold < 0 || c.ScoredMatchThreshold > 100 {
		return fmt.Errorf("scored_match_threshold must be in [0,100], got %f", c.ScoredMatchThreshold)
	}
	if c.OCR1MaxRetries < 0 {
		return fmt.Errorf("ocr1_max_retries must be >= 0, got %d", c.OCR1MaxRetries)
	}
	if len(c.HandIDPrefixStripSet) == 0 {
		return fmt.Errorf("hand_id_prefix_strip_set must not be empty")
	}
	return nil
}
