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

import (
	"math"
	"time"
)

// Delay returns the backoff before attempt n (n >= 2; the first attempt,
// n == 1, never waits). It is deliberately jitter-free:
//
//	delay(n) = min(base * multiplier^(n-2), max_delay)
//
// This diverges from the teacher's jittered services/trace/context/retry.go
// loop on purpose: spec.md §8 invariant #5 requires delays to be exactly
// reproducible given (base, multiplier, max, n), which a jittered formula
// cannot satisfy bit-for-bit in tests.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	scaled := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-2))
	if scaled > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(scaled)
}
