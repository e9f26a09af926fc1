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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

func reqs(ids ...string) []convtypes.Request {
	out := make([]convtypes.Request, len(ids))
	for i, id := range ids {
		out[i] = convtypes.Request{RequestID: id}
	}
	return out
}

func TestConverseParallelRoundRobinAssignsRegions(t *testing.T) {
	e := NewExecutor(4, time.Second, ContinueOnFailure, 0.5, RoundRobin)
	seen := make(chan string, 4)
	dispatch := func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response {
		require.NotEmpty(t, regions)
		seen <- regions[0]
		return convtypes.Response{Success: true, RegionUsed: regions[0]}
	}

	resp, err := e.ConverseParallel(context.Background(), reqs("a", "b", "c", "d"), []string{"r1", "r2"}, 0, dispatch)
	require.NoError(t, err)
	assert.True(t, resp.OverallSuccess)
	assert.Equal(t, 4, resp.Stats.Total)
	assert.Equal(t, 4, resp.Stats.Successful)
	require.Len(t, resp.Warnings, 1, "K was auto-derived, exactly one warning expected")
	close(seen)
	counts := map[string]int{}
	for r := range seen {
		counts[r]++
	}
	assert.Equal(t, 2, counts["r1"])
	assert.Equal(t, 2, counts["r2"])
}

func TestConverseParallelAssignsKRegionsPerRequest(t *testing.T) {
	e := NewExecutor(4, time.Second, ContinueOnFailure, 0.5, RoundRobin)
	dispatch := func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response {
		assert.Len(t, regions, 2)
		return convtypes.Response{Success: true}
	}

	resp, err := e.ConverseParallel(context.Background(), reqs("a", "b"), []string{"r1", "r2", "r3"}, 2, dispatch)
	require.NoError(t, err)
	assert.Empty(t, resp.Warnings, "explicit K should not trigger the auto-derivation warning")
	require.Len(t, resp.RegionAssignments, 2)
	assert.Len(t, resp.RegionAssignments["a"].AssignedRegions, 2)
}

func TestConverseParallelRejectsEmptyBatch(t *testing.T) {
	e := NewExecutor(4, time.Second, ContinueOnFailure, 0.5, RoundRobin)
	_, err := e.ConverseParallel(context.Background(), nil, []string{"r1"}, 0, nil)
	require.Error(t, err)
	assert.IsType(t, &convtypes.ParallelConfigurationError{}, err)
}

func TestConverseParallelRejectsDuplicateIDs(t *testing.T) {
	e := NewExecutor(4, time.Second, ContinueOnFailure, 0.5, RoundRobin)
	dispatch := func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response {
		return convtypes.Response{Success: true}
	}
	_, err := e.ConverseParallel(context.Background(), reqs("a", "a"), []string{"r1"}, 0, dispatch)
	require.Error(t, err)
	assert.IsType(t, &convtypes.RequestIdCollisionError{}, err)
}

func TestConverseParallelContinueOnFailureRunsAll(t *testing.T) {
	e := NewExecutor(4, time.Second, ContinueOnFailure, 0.1, RoundRobin)
	dispatch := func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response {
		return convtypes.Response{Success: req.RequestID != "b"}
	}
	resp, err := e.ConverseParallel(context.Background(), reqs("a", "b", "c"), []string{"r1"}, 0, dispatch)
	require.NoError(t, err)
	assert.Len(t, resp.PerRequest, 3)
	assert.False(t, resp.OverallSuccess)
	assert.Equal(t, 1, resp.Stats.Failed)
}

// TestConverseParallelStopOnThresholdHonorsFailureThreshold covers
// testable property: overall_success under stop-on-threshold is
// (failed/total) <= (1 - failure_threshold), not a bare zero-failures check.
func TestConverseParallelStopOnThresholdHonorsFailureThreshold(t *testing.T) {
	e := NewExecutor(4, time.Second, StopOnThreshold, 0.5, RoundRobin)
	dispatch := func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response {
		return convtypes.Response{Success: req.RequestID != "b"}
	}
	resp, err := e.ConverseParallel(context.Background(), reqs("a", "b", "c", "d"), []string{"r1"}, 0, dispatch)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Stats.Failed)
	assert.True(t, resp.OverallSuccess, "1/4 failed is within the 0.5 failure_threshold")
}

func TestConverseParallelStopOnThresholdFailsOverallWhenExceeded(t *testing.T) {
	e := NewExecutor(4, time.Second, StopOnThreshold, 0.2, RoundRobin)
	dispatch := func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response {
		return convtypes.Response{Success: false}
	}
	resp, err := e.ConverseParallel(context.Background(), reqs("a", "b", "c", "d"), []string{"r1"}, 0, dispatch)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Stats.Failed)
	assert.False(t, resp.OverallSuccess, "4/4 failed exceeds the 1-0.2 threshold")
}

func TestConverseParallelBoundsConcurrency(t *testing.T) {
	e := NewExecutor(2, time.Second, ContinueOnFailure, 1, RoundRobin)
	release := make(chan struct{})
	started := make(chan struct{}, 3)
	dispatch := func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response {
		started <- struct{}{}
		<-release
		return convtypes.Response{Success: true}
	}

	done := make(chan convtypes.ParallelResponse, 1)
	go func() {
		resp, _ := e.ConverseParallel(context.Background(), reqs("a", "b", "c"), []string{"r1"}, 0, dispatch)
		done <- resp
	}()

	<-started
	<-started
	select {
	case <-started:
		t.Fatal("third request started before a slot freed")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	resp := <-done
	assert.Equal(t, 2, resp.Stats.MaxObservedConcurrency)
}
