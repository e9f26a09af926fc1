// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package converse

import (
	"time"

	"github.com/AleutianAI/converse/pkg/converse/catalog"
	"github.com/AleutianAI/converse/pkg/converse/retry"
	"github.com/AleutianAI/converse/pkg/converse/validate"
)

// RetryStrategy selects how attempt targets are ordered (spec.md §4.3).
type RetryStrategy = retry.Strategy

const (
	StrategyRegionFirst RetryStrategy = retry.StrategyRegionFirst
	StrategyModelFirst  RetryStrategy = retry.StrategyModelFirst
)

// FailureHandlingStrategy selects the Parallel Executor's partial-failure policy.
type FailureHandlingStrategy string

const (
	ContinueOnFailure FailureHandlingStrategy = "continue-on-failure"
	StopOnThreshold   FailureHandlingStrategy = "stop-on-threshold"
)

// LoadBalancingStrategy selects the Parallel Executor's region-assignment policy.
type LoadBalancingStrategy string

const (
	RoundRobin  LoadBalancingStrategy = "round-robin"
	RandomLB    LoadBalancingStrategy = "random"
	LeastLoaded LoadBalancingStrategy = "least-loaded"
)

// clientOptions accumulates functional-option state for New. Mirrors the
// teacher's llmOptions/LLMOption pattern in
// services/trace/context/llm_client.go.
type clientOptions struct {
	retryConfig    retry.Config
	maxConcurrent  int
	perReqTimeout  time.Duration
	failureHandling FailureHandlingStrategy
	failureThreshold float64
	loadBalancing   LoadBalancingStrategy
	targetRegionsPerRequest int
	cacheMode       catalog.CacheMode
	cacheDir        string
	cacheTTL        time.Duration
	cacheAutoReload bool
	strictErrors    bool
	maxBlockBytes   int64
	enableRecovery  bool
}

func defaultClientOptions() *clientOptions {
	return &clientOptions{
		retryConfig:      retry.DefaultConfig(),
		maxConcurrent:    8,
		perReqTimeout:    60 * time.Second,
		failureHandling:  ContinueOnFailure,
		failureThreshold: 0.5,
		loadBalancing:    RoundRobin,
		cacheMode:        catalog.CacheModeFile,
		cacheTTL:         24 * time.Hour,
		maxBlockBytes:    validate.DefaultMaxBlockBytes,
		enableRecovery:   true,
	}
}

// Option configures a Client at construction time.
type Option func(*clientOptions)

// WithRetryConfig overrides the default retry/backoff configuration.
func WithRetryConfig(cfg retry.Config) Option {
	return func(o *clientOptions) { o.retryConfig = cfg }
}

// WithMaxConcurrentRequests bounds the Parallel Executor's fan-out.
func WithMaxConcurrentRequests(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithPerRequestTimeout sets the Parallel Executor's per-request deadline.
func WithPerRequestTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.perReqTimeout = d
		}
	}
}

// WithFailureHandling selects the partial-failure policy for ConverseParallel.
func WithFailureHandling(s FailureHandlingStrategy, threshold float64) Option {
	return func(o *clientOptions) {
		o.failureHandling = s
		o.failureThreshold = threshold
	}
}

// WithLoadBalancing selects the region-assignment strategy.
func WithLoadBalancing(s LoadBalancingStrategy) Option {
	return func(o *clientOptions) { o.loadBalancing = s }
}

// WithTargetRegionsPerRequest sets K, the number of regions
// ConverseParallel assigns to each request. 0 (the default) auto-derives
// K = min(max_concurrent, len(regions)) and records a warning on the
// returned ParallelResponse.
func WithTargetRegionsPerRequest(k int) Option {
	return func(o *clientOptions) {
		if k > 0 {
			o.targetRegionsPerRequest = k
		}
	}
}

// WithCatalogCache configures the catalog's cache mode, directory, and TTL.
func WithCatalogCache(mode catalog.CacheMode, directory string, ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.cacheMode = mode
		o.cacheDir = directory
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

// WithCacheAutoReload enables an fsnotify watcher on the file-mode cache
// directory so a refresh performed by a sibling process is picked up.
func WithCacheAutoReload() Option {
	return func(o *clientOptions) { o.cacheAutoReload = true }
}

// WithStrictErrors makes Converse return a *RetryExhaustedError instead
// of a Response{Success:false} on retry exhaustion. ConverseStream
// returns an error on exhaustion either way: a *RetryExhaustedError when
// strict, a *StreamingError otherwise.
func WithStrictErrors() Option {
	return func(o *clientOptions) { o.strictErrors = true }
}

// WithMaxBlockBytes overrides the default per-block payload size ceiling
// enforced at request-validation time.
func WithMaxBlockBytes(n int64) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxBlockBytes = n
		}
	}
}

// WithStreamRecovery enables or disables mid-stream target-switch recovery.
func WithStreamRecovery(enabled bool) Option {
	return func(o *clientOptions) { o.enableRecovery = enabled }
}

// CallOption configures a single Converse/ConverseStream invocation, overriding the client's defaults for that call only
// (spec.md §6 per-call overrides).
type CallOption func(*Request)

// WithModels overrides the candidate model list for this call.
func WithModels(models ...string) CallOption {
	return func(r *Request) { r.Models = models }
}

// WithRegions overrides the candidate region list for this call.
func WithRegions(regions ...string) CallOption {
	return func(r *Request) { r.Regions = regions }
}

// WithInferenceConfig overrides the inference configuration for this call.
func WithInferenceConfig(cfg InferenceConfig) CallOption {
	return func(r *Request) { r.InferenceConfig = &cfg }
}
