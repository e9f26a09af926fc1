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
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerRegistry keeps one circuit breaker per (model, region) target,
// guarding callers from repeatedly
// hammering a target that is currently failing, independent of and in
// addition to the attempt-level retry/backoff loop. The teacher's own
// circuit_breaker.go is hand-rolled; here the corpus's real dependency
// (github.com/sony/gobreaker, already used elsewhere in the pack for
// the same concern) replaces it rather than being reimplemented.
type breakerRegistry struct {
	breakers sync.Map // target string -> *gobreaker.CircuitBreaker[struct{}]
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{}
}

func (r *breakerRegistry) get(target string) *gobreaker.CircuitBreaker[struct{}] {
	if v, ok := r.breakers.Load(target); ok {
		return v.(*gobreaker.CircuitBreaker[struct{}])
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        target,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	actual, _ := r.breakers.LoadOrStore(target, cb)
	return actual.(*gobreaker.CircuitBreaker[struct{}])
}

// Allow reports whether target's breaker currently permits an attempt.
func (r *breakerRegistry) Allow(target string) bool {
	cb := r.get(target)
	return cb.State() != gobreaker.StateOpen
}

// RecordResult feeds an attempt outcome back into target's breaker.
func (r *breakerRegistry) RecordResult(target string, err error) {
	cb := r.get(target)
	_, _ = cb.Execute(func() (struct{}, error) {
		return struct{}{}, err
	})
}
