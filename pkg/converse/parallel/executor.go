// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parallel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

// LoadBalancing selects how a request batch's regions are assigned
// across requests. Mirrors converse.LoadBalancingStrategy's values;
// kept as a distinct type here so this package has no dependency on the
// root package (see DESIGN.md's convtypes note).
type LoadBalancing string

const (
	RoundRobin  LoadBalancing = "round-robin"
	RandomLB    LoadBalancing = "random"
	LeastLoaded LoadBalancing = "least-loaded"
)

// FailurePolicy selects how ConverseParallel reacts to failing requests
// within a batch.
type FailurePolicy string

const (
	ContinueOnFailure FailurePolicy = "continue-on-failure"
	StopOnThreshold   FailurePolicy = "stop-on-threshold"
)

// Dispatch performs one request's full converse call (catalog resolve,
// retry, filter, transport) against the given ordered list of candidate
// regions and returns its normalized Response. Supplied by the root
// package's Client, which fans the list into its own multi-target retry
// plan so a request can fall back across all K assigned regions.
type Dispatch func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response

// Executor runs a batch of requests with bounded concurrency, region
// distribution, and a partial-failure policy (spec.md §4.7), following
// the teacher's WorkerPool.ProcessBatch/MapReduce pattern in
// services/trace/context/concurrency.go generalized from a single
// worker pool to per-request region assignment.
type Executor struct {
	maxConcurrent     int
	semaphore         *Semaphore
	perRequestTimeout time.Duration
	failurePolicy     FailurePolicy
	failureThreshold  float64
	loadBalancing     LoadBalancing

	mu         sync.Mutex
	regionLoad map[string]int
}

// NewExecutor constructs an Executor bounding concurrency to
// maxConcurrent goroutines.
func NewExecutor(maxConcurrent int, perRequestTimeout time.Duration, policy FailurePolicy, failureThreshold float64, loadBalancing LoadBalancing) *Executor {
	return &Executor{
		maxConcurrent:     maxConcurrent,
		semaphore:         NewSemaphore(maxConcurrent),
		perRequestTimeout: perRequestTimeout,
		failurePolicy:     policy,
		failureThreshold:  failureThreshold,
		loadBalancing:     loadBalancing,
		regionLoad:        make(map[string]int),
	}
}

// targetRegionCount auto-derives K, the number of regions assigned per
// request, when the caller leaves it unspecified: K = min(maxConcurrent,
// len(regions)), per spec.md §4.7. Returns the resolved K and whether it
// was auto-derived (for the single required warning).
func (e *Executor) targetRegionCount(requested int, regions []string) (int, bool) {
	if requested > 0 {
		if requested > len(regions) {
			requested = len(regions)
		}
		return requested, false
	}
	k := e.maxConcurrent
	if k > len(regions) {
		k = len(regions)
	}
	if k < 1 {
		k = 1
	}
	return k, true
}

// assignRegions picks an ordered list of up to k distinct regions for
// request index i under the configured load-balancing strategy, so a
// request can fall back across its own region list.
func (e *Executor) assignRegions(i int, regions []string, k int) []string {
	if len(regions) == 0 {
		return nil
	}
	if k > len(regions) {
		k = len(regions)
	}

	switch e.loadBalancing {
	case RandomLB:
		shuffled := append([]string(nil), regions...)
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		return shuffled[:k]

	case LeastLoaded:
		e.mu.Lock()
		defer e.mu.Unlock()
		pool := append([]string(nil), regions...)
		out := make([]string, 0, k)
		for len(out) < k {
			best := 0
			for j, r := range pool {
				if e.regionLoad[r] < e.regionLoad[pool[best]] {
					best = j
				}
			}
			out = append(out, pool[best])
			e.regionLoad[pool[best]]++
			pool = append(pool[:best], pool[best+1:]...)
		}
		return out

	default: // RoundRobin
		out := make([]string, 0, k)
		for n := 0; n < k; n++ {
			out = append(out, regions[(i+n)%len(regions)])
		}
		return out
	}
}

type requestOutcome struct {
	requestID string
	priority  int
	regions   []string
	response  convtypes.Response
	duration  time.Duration
}

// ConverseParallel dispatches every request in requests, concurrency
// bounded by the Executor's semaphore, distributing regions per the
// configured strategy. targetRegionsPerRequest is K, the number of
// regions assigned per request; 0 auto-derives K = min(maxConcurrent,
// len(regions)) and records exactly one warning on the returned
// response. Before any dispatch happens it returns
// *ParallelConfigurationError for an empty batch and
// *RequestIdCollisionError for duplicate request IDs.
func (e *Executor) ConverseParallel(ctx context.Context, requests []convtypes.Request, regions []string, targetRegionsPerRequest int, dispatch Dispatch) (convtypes.ParallelResponse, error) {
	if len(requests) == 0 {
		return convtypes.ParallelResponse{}, &convtypes.ParallelConfigurationError{Message: "no requests supplied"}
	}
	seen := make(map[string]struct{}, len(requests))
	for _, r := range requests {
		if r.RequestID == "" {
			continue
		}
		if _, dup := seen[r.RequestID]; dup {
			return convtypes.ParallelResponse{}, &convtypes.RequestIdCollisionError{DuplicateIDs: []string{r.RequestID}}
		}
		seen[r.RequestID] = struct{}{}
	}

	k, autoDerived := e.targetRegionCount(targetRegionsPerRequest, regions)
	var warnings []string
	if autoDerived {
		warnings = append(warnings, fmt.Sprintf("target_regions_per_request not set, auto-derived K=%d from min(max_concurrent, len(regions))", k))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan requestOutcome, len(requests))
	var wg sync.WaitGroup
	var completed int32
	var failed int32
	var maxObservedConcurrency int32
	var inFlight int32

	start := time.Now()

	for i, req := range requests {
		i, req := i, req
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := e.semaphore.Acquire(runCtx); err != nil {
				outcomes <- requestOutcome{requestID: req.RequestID, priority: i, response: convtypes.Response{Success: false, Warnings: []string{err.Error()}}}
				return
			}
			defer e.semaphore.Release()

			cur := atomic.AddInt32(&inFlight, 1)
			for {
				prev := atomic.LoadInt32(&maxObservedConcurrency)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxObservedConcurrency, prev, cur) {
					break
				}
			}
			defer atomic.AddInt32(&inFlight, -1)

			assigned := e.assignRegions(i, regions, k)

			reqCtx := runCtx
			var reqCancel context.CancelFunc
			if e.perRequestTimeout > 0 {
				reqCtx, reqCancel = context.WithTimeout(runCtx, e.perRequestTimeout)
				defer reqCancel()
			}

			itemStart := time.Now()
			resp := dispatch(reqCtx, req, assigned)
			duration := time.Since(itemStart)

			outcomes <- requestOutcome{requestID: req.RequestID, priority: i, regions: assigned, response: resp, duration: duration}

			count := atomic.AddInt32(&completed, 1)
			if !resp.Success {
				n := atomic.AddInt32(&failed, 1)
				if e.failurePolicy == StopOnThreshold && float64(n)/float64(count) > e.failureThreshold {
					cancel()
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	perRequest := make(map[string]convtypes.Response, len(requests))
	regionAssignments := make(map[string]convtypes.RegionAssignment, len(requests))
	regionDist := make(map[string]int)
	var durations []time.Duration
	successCount, failCount := 0, 0
	for o := range outcomes {
		perRequest[o.requestID] = o.response
		if o.requestID != "" {
			regionAssignments[o.requestID] = convtypes.RegionAssignment{
				RequestID:       o.requestID,
				AssignedRegions: o.regions,
				Priority:        o.priority,
			}
		}
		if len(o.regions) > 0 {
			regionDist[o.regions[0]]++
		}
		durations = append(durations, o.duration)
		if o.response.Success {
			successCount++
		} else {
			failCount++
		}
	}

	stats := computeStats(durations, regionDist, int(maxObservedConcurrency))
	stats.Successful = successCount
	stats.Failed = failCount

	var overall bool
	switch e.failurePolicy {
	case StopOnThreshold:
		overall = stats.Total > 0 && float64(failCount)/float64(stats.Total) <= (1-e.failureThreshold)
	default: // ContinueOnFailure
		overall = failCount == 0
	}

	return convtypes.ParallelResponse{
		OverallSuccess:    overall,
		PerRequest:        perRequest,
		RegionAssignments: regionAssignments,
		TotalDurationMs:   time.Since(start).Milliseconds(),
		Stats:             stats,
		Warnings:          warnings,
	}, nil
}

func computeStats(durations []time.Duration, regionDist map[string]int, maxConcurrency int) convtypes.ExecutionStats {
	stats := convtypes.ExecutionStats{
		Total:                  len(durations),
		RegionDistribution:     regionDist,
		MaxObservedConcurrency: maxConcurrency,
	}
	if len(durations) == 0 {
		return stats
	}
	var sum time.Duration
	stats.MinDurationMs = durations[0].Milliseconds()
	for _, d := range durations {
		sum += d
		ms := d.Milliseconds()
		if ms > stats.MaxDurationMs {
			stats.MaxDurationMs = ms
		}
		if ms < stats.MinDurationMs {
			stats.MinDurationMs = ms
		}
	}
	stats.AvgDurationMs = float64(sum.Milliseconds()) / float64(len(durations))
	return stats
}
