// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog maps (model name, region) pairs to provider access
// information, discovered from the provider's control-plane listing
// APIs and merged against a bundled fallback snapshot. It is read-mostly:
// consulted on every retry-plan step, refreshed rarely, and always
// observed as a consistent immutable snapshot by concurrent readers.
package catalog

import "time"

// AccessMethod describes how a (model, region) pair is reachable.
type AccessMethod string

const (
	AccessDirect   AccessMethod = "direct"
	AccessCRISOnly AccessMethod = "cris_only"
	AccessBoth     AccessMethod = "both"
)

// AccessInfo is one (model, region) pair's reachability, per spec.md §3.
//
// Invariants: AccessDirect requires ModelID set; AccessCRISOnly requires
// InferenceProfileID set; AccessBoth requires both.
type AccessInfo struct {
	AccessMethod        AccessMethod `json:"access_method"`
	Region              string       `json:"region"`
	ModelID             string       `json:"model_id,omitempty"`
	InferenceProfileID  string       `json:"inference_profile_id,omitempty"`
}

// Recommendation is the result of GetRecommendedAccess: a preferred
// AccessInfo plus any usable alternatives.
type Recommendation struct {
	Primary      AccessInfo
	Alternatives []AccessInfo
	Rationale    string
}

// Entry is a unified model record spanning every region it is reachable
// from, by any access method.
type Entry struct {
	ModelName          string                `json:"model_name"`
	Provider           string                `json:"provider"`
	PerRegion          map[string]AccessInfo `json:"per_region"`
	StreamingSupported bool                  `json:"streaming_supported"`
	InputModalities    []string              `json:"input_modalities"`
	OutputModalities   []string              `json:"output_modalities"`
}

// SupportsModality reports whether m appears in the entry's input modalities.
func (e Entry) SupportsModality(m string) bool {
	for _, im := range e.InputModalities {
		if im == m {
			return true
		}
	}
	return false
}

// Metadata records the outcome of the discovery fetches that built a snapshot.
type Metadata struct {
	SuccessfulRegions []string `json:"successful_regions"`
	FailedRegions     []string `json:"failed_regions"`
	UsedBundledFallback bool   `json:"used_bundled_fallback,omitempty"`
}

// CacheMode selects how the catalog persists across process lifetimes.
type CacheMode string

const (
	CacheModeFile   CacheMode = "file"
	CacheModeMemory CacheMode = "memory"
	CacheModeNone   CacheMode = "none"
)

// CacheConfig configures the catalog's cache behavior.
type CacheConfig struct {
	Mode       CacheMode
	Directory  string
	TTL        time.Duration
	AutoReload bool

	// AllowFuzzyMatch enables conservative fuzzy name linkage between the
	// base-model and inference-profile discovery listings. Off by default
	// (spec.md §4.1's "conservative fuzzy match, off-by-default-in-strict-modes").
	AllowFuzzyMatch bool
}

// snapshot is the catalog's immutable point-in-time view, swapped
// atomically on refresh (spec.md §9's "global mutable catalog" resolution).
type snapshot struct {
	RetrievalTimestamp time.Time
	Models             map[string]Entry
	Metadata           Metadata
}

const formatVersion = 1
