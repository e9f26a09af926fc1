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

import "context"

// BaseModel is one row of the provider's base-model discovery listing
// for a single region (spec.md §6 "Discovery endpoints").
type BaseModel struct {
	ModelName          string
	Provider           string
	ModelID            string
	Region             string
	InputModalities    []string
	OutputModalities   []string
	StreamingSupported bool
}

// InferenceProfile is one row of the provider's inference-profile
// discovery listing. TargetRegions lists every concrete region this
// profile can route into, tolerating either a flat string list or a
// richer structured shape (see ParseProfileRegions in modelid.go,
// supplemented from original_source/src/CRISProfileParser.py).
type InferenceProfile struct {
	ProfileID      string
	ModelName      string
	TargetRegions  []string
}

// DiscoveryFetcher is the seam between the catalog and the provider's
// control-plane discovery APIs. Implementations perform per-region
// listing calls; FetchRegion is called once per configured region,
// concurrently, by Catalog construction and Refresh.
type DiscoveryFetcher interface {
	// FetchRegion returns the base models and inference profiles visible
	// from region. A non-nil error marks that region's discovery as
	// failed; the catalog tolerates partial region failure (spec.md §4.1
	// "Failure semantics").
	FetchRegion(ctx context.Context, region string) ([]BaseModel, []InferenceProfile, error)
}

// StaticFetcher is a DiscoveryFetcher backed by a precomputed table,
// useful for tests and for wrapping a bundled snapshot as a fetcher.
type StaticFetcher struct {
	PerRegion map[string]struct {
		Models   []BaseModel
		Profiles []InferenceProfile
		Err      error
	}
}

func (s StaticFetcher) FetchRegion(_ context.Context, region string) ([]BaseModel, []InferenceProfile, error) {
	entry, ok := s.PerRegion[region]
	if !ok {
		return nil, nil, nil
	}
	if entry.Err != nil {
		return nil, nil, entry.Err
	}
	return entry.Models, entry.Profiles, nil
}
