// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retry

import "time"

// Strategy selects how (model, region) attempt targets are ordered.
type Strategy string

const (
	// StrategyRegionFirst exhausts every region for the current model
	// before advancing to the next model.
	StrategyRegionFirst Strategy = "region-first"

	// StrategyModelFirst exhausts every model in the current region
	// before advancing to the next region.
	StrategyModelFirst Strategy = "model-first"
)

// Config is the retry_config of spec.md §6: max_retries, base_delay,
// max_delay, multiplier, strategy, enable_feature_fallback, and
// extra_retryable_error_codes.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Strategy   Strategy

	// EnableFeatureFallback allows a feature-compat classification to
	// disable the offending feature and retry the same target instead of
	// immediately advancing to the next target.
	EnableFeatureFallback bool

	// ExtraRetryableErrorCodes augments the built-in transient-code table.
	ExtraRetryableErrorCodes []string
}

// DefaultConfig returns spec.md §4.3's defaults: base delay 0.5s,
// multiplier 2.0, max delay 8s, up to 4 attempts per target, region-first ordering,
// feature fallback enabled.
func DefaultConfig() Config {
	return Config{
		MaxRetries:            4,
		BaseDelay:             500 * time.Millisecond,
		MaxDelay:              8 * time.Second,
		Multiplier:            2.0,
		Strategy:              StrategyRegionFirst,
		EnableFeatureFallback: true,
	}
}

// extraCodesSet converts Config.ExtraRetryableErrorCodes into the set
// shape Classify expects.
func (c Config) extraCodesSet() map[string]struct{} {
	if len(c.ExtraRetryableErrorCodes) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(c.ExtraRetryableErrorCodes))
	for _, code := range c.ExtraRetryableErrorCodes {
		out[code] = struct{}{}
	}
	return out
}
