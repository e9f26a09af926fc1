// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticFetcher() StaticFetcher {
	return StaticFetcher{PerRegion: map[string]struct {
		Models   []BaseModel
		Profiles []InferenceProfile
		Err      error
	}{
		"us-east-1": {
			Models: []BaseModel{
				{ModelName: "model-a", Provider: "anthropic", ModelID: "model-a-v1", Region: "us-east-1", StreamingSupported: true, InputModalities: []string{"text"}},
				{ModelName: "model-b", Provider: "amazon", ModelID: "model-b-v1", Region: "us-east-1"},
			},
			Profiles: []InferenceProfile{
				{ProfileID: "profile-a", ModelName: "model-a", TargetRegions: []string{"us-east-1", "us-west-2"}},
			},
		},
		"us-west-2": {
			Models: []BaseModel{
				{ModelName: "model-b", Provider: "amazon", ModelID: "model-b-v1", Region: "us-west-2"},
			},
		},
	}}
}

func TestCatalogMergeRules(t *testing.T) {
	cat, err := New(context.Background(), []string{"model-a", "model-b"}, []string{"us-east-1", "us-west-2"}, CacheConfig{Mode: CacheModeNone}, staticFetcher(), nil)
	require.NoError(t, err)

	aEast, ok := cat.GetAccessInfo("model-a", "us-east-1")
	require.True(t, ok)
	assert.Equal(t, AccessBoth, aEast.AccessMethod, "present in both base and profile listings")

	aWest, ok := cat.GetAccessInfo("model-a", "us-west-2")
	require.True(t, ok)
	assert.Equal(t, AccessCRISOnly, aWest.AccessMethod, "present only in the profile listing")

	bEast, ok := cat.GetAccessInfo("model-b", "us-east-1")
	require.True(t, ok)
	assert.Equal(t, AccessDirect, bEast.AccessMethod, "present only in the base-model listing")
}

func TestCatalogRecommendedAccessPrefersDirect(t *testing.T) {
	cat, err := New(context.Background(), []string{"model-a"}, []string{"us-east-1"}, CacheConfig{Mode: CacheModeNone}, staticFetcher(), nil)
	require.NoError(t, err)

	rec, ok := cat.GetRecommendedAccess("model-a", "us-east-1")
	require.True(t, ok)
	assert.Equal(t, AccessDirect, rec.Primary.AccessMethod)
	require.Len(t, rec.Alternatives, 1)
	assert.Equal(t, AccessCRISOnly, rec.Alternatives[0].AccessMethod)
}

func TestCatalogFailFastOnNoReachableModel(t *testing.T) {
	_, err := New(context.Background(), []string{"nonexistent-model"}, []string{"us-east-1"}, CacheConfig{Mode: CacheModeNone}, staticFetcher(), nil)
	require.Error(t, err)
}

func TestCatalogPartialRegionFailureIsNonFatal(t *testing.T) {
	fetcher := StaticFetcher{PerRegion: map[string]struct {
		Models   []BaseModel
		Profiles []InferenceProfile
		Err      error
	}{
		"us-east-1": {Models: []BaseModel{{ModelName: "model-a", ModelID: "model-a-v1", Region: "us-east-1"}}},
		"us-west-2": {Err: assertError("region offline")},
	}}
	cat, err := New(context.Background(), []string{"model-a"}, []string{"us-east-1", "us-west-2"}, CacheConfig{Mode: CacheModeNone}, fetcher, nil)
	require.NoError(t, err)
	assert.Contains(t, cat.Metadata().FailedRegions, "us-west-2")
	assert.True(t, cat.IsAvailable("model-a", "us-east-1"))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
func assertError(s string) error  { return assertErr(s) }
