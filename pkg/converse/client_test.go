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
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/converse/pkg/converse/catalog"
	"github.com/AleutianAI/converse/pkg/converse/convtypes"
	"github.com/AleutianAI/converse/pkg/converse/retry"
)

func staticFetcher() catalog.StaticFetcher {
	return catalog.StaticFetcher{PerRegion: map[string]struct {
		Models   []catalog.BaseModel
		Profiles []catalog.InferenceProfile
		Err      error
	}{
		"us-east-1": {
			Models: []catalog.BaseModel{
				{ModelName: "model-a", Provider: "anthropic", ModelID: "model-a-v1", Region: "us-east-1", StreamingSupported: true},
			},
			Profiles: []catalog.InferenceProfile{
				{ProfileID: "profile-a", ModelName: "model-a", TargetRegions: []string{"us-east-1", "us-west-2"}},
			},
		},
	}}
}

func testClient(t *testing.T) *Client {
	t.Helper()
	cat, err := catalog.New(context.Background(), []string{"model-a"}, []string{"us-east-1", "us-west-2"}, catalog.CacheConfig{Mode: catalog.CacheModeNone}, staticFetcher(), nil)
	require.NoError(t, err)
	return &Client{
		models:  []string{"model-a"},
		regions: []string{"us-east-1", "us-west-2"},
		catalog: cat,
		retryer: retry.NewManager(retry.DefaultConfig(), nil),
		opts:    defaultClientOptions(),
	}
}

func TestPlanTargetsFiltersUnreachableCombinations(t *testing.T) {
	c := testClient(t)
	targets, err := c.planTargets(Request{Models: []string{"model-a"}, Regions: []string{"us-east-1", "us-west-2"}})
	require.NoError(t, err)
	require.Len(t, targets, 2, "model-a is reachable (direct or CRIS) from both configured regions")
}

func TestPlanTargetsErrorsWhenNothingReachable(t *testing.T) {
	c := testClient(t)
	_, err := c.planTargets(Request{Models: []string{"model-z"}, Regions: []string{"us-east-1"}})
	require.Error(t, err)
	var accessErr *ModelAccessError
	require.ErrorAs(t, err, &accessErr)
}

func TestAccessIDPrefersModelIDForDirectAndBoth(t *testing.T) {
	assert.Equal(t, "m1", accessID(catalog.AccessInfo{AccessMethod: catalog.AccessDirect, ModelID: "m1"}))
	assert.Equal(t, "m1", accessID(catalog.AccessInfo{AccessMethod: catalog.AccessBoth, ModelID: "m1", InferenceProfileID: "p1"}))
	assert.Equal(t, "p1", accessID(catalog.AccessInfo{AccessMethod: catalog.AccessCRISOnly, InferenceProfileID: "p1"}))
}

func TestDisabledListReturnsEveryKey(t *testing.T) {
	m := map[convtypes.FeatureTag]struct{}{
		convtypes.FeatureToolUse:   {},
		convtypes.FeatureGuardrails: {},
	}
	list := disabledList(m)
	assert.ElementsMatch(t, []convtypes.FeatureTag{convtypes.FeatureToolUse, convtypes.FeatureGuardrails}, list)
}

func TestClassifyTransportErrorFallsBackToPlainMessage(t *testing.T) {
	err := classifyTransportError(errors.New("boom"))
	pe, ok := retry.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "", pe.Code)
	assert.Equal(t, "boom", pe.Message)
}

func TestExhaustedErrorDeduplicatesTargets(t *testing.T) {
	result := retry.Result{
		Attempts: []convtypes.AttemptRecord{
			{ModelName: "model-a", Region: "us-east-1"},
			{ModelName: "model-a", Region: "us-east-1"},
			{ModelName: "model-a", Region: "us-west-2"},
		},
		LastError: errors.New("throttled"),
	}
	err := exhaustedError(result)
	var re *RetryExhaustedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 3, re.AttemptsMade)
	assert.Len(t, re.ModelsTried, 2)
}

func TestApplyDefaultsGeneratesRequestIDWhenBlank(t *testing.T) {
	c := testClient(t)
	req := Request{}
	c.applyDefaults(&req)
	require.NotEmpty(t, req.RequestID)
	_, err := uuid.Parse(req.RequestID)
	assert.NoError(t, err)
	assert.Equal(t, c.models, req.Models)
	assert.Equal(t, c.regions, req.Regions)
}

func TestApplyDefaultsPreservesCallerRequestID(t *testing.T) {
	c := testClient(t)
	req := Request{RequestID: "caller-chosen-id"}
	c.applyDefaults(&req)
	assert.Equal(t, "caller-chosen-id", req.RequestID)
}

func TestAssembleFailureCarriesLastErrorAsWarning(t *testing.T) {
	result := retry.Result{LastError: errors.New("all targets exhausted")}
	resp := assembleFailure(result)
	assert.False(t, resp.Success)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "all targets exhausted", resp.Warnings[0])
}
