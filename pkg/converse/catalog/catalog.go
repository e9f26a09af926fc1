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
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Catalog maps (model name, region) to access information. It is
// read-mostly: readers take an immutable snapshot handle, and Refresh
// builds a new snapshot and swaps the reference atomically, so
// concurrent readers never observe a half-built catalog (spec.md §9).
type Catalog struct {
	models  []string
	regions []string
	cfg     CacheConfig
	fetcher DiscoveryFetcher
	logger  *slog.Logger

	current atomic.Pointer[snapshot]

	refreshMu sync.Mutex // serializes concurrent Refresh calls
}

// New constructs a Catalog for the given models and regions, populating
// it per spec.md §4.1: a valid unexpired file cache if available,
// otherwise a fresh discovery fetch across regions, otherwise the
// bundled snapshot. Construction fails with *ConfigurationError-shaped
// detail if no configured model ends up reachable from any configured
// region.
func New(ctx context.Context, models, regions []string, cfg CacheConfig, fetcher DiscoveryFetcher, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		models:  append([]string(nil), models...),
		regions: append([]string(nil), regions...),
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
	}

	if err := c.Refresh(ctx, false); err != nil {
		return nil, err
	}
	return c, nil
}

// snap returns the current immutable snapshot.
func (c *Catalog) snap() *snapshot {
	return c.current.Load()
}

// Refresh rebuilds the catalog under the same merge rules as New and
// atomically swaps the snapshot. In file mode, when force is false and
// the cache file is still fresh (age < TTL), it is reused instead of
// re-fetching; in memory and none modes every call re-fetches.
func (c *Catalog) Refresh(ctx context.Context, force bool) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if !force && c.cfg.Mode == CacheModeFile {
		if snap, ok := loadCache(c.cfg.Directory, c.cfg.TTL); ok {
			c.current.Store(snap)
			return nil
		}
	}

	snap, err := c.buildSnapshot(ctx)
	if err != nil {
		return err
	}

	if err := c.checkReachability(snap); err != nil {
		return err
	}

	c.current.Store(snap)

	if c.cfg.Mode == CacheModeFile {
		if err := saveCache(c.cfg.Directory, snap); err != nil {
			c.logger.Warn("catalog: failed to persist cache", "error", err)
		}
	}
	return nil
}

func (c *Catalog) buildSnapshot(ctx context.Context) (*snapshot, error) {
	type regionResult struct {
		region   string
		models   []BaseModel
		profiles []InferenceProfile
		err      error
	}

	results := make(chan regionResult, len(c.regions))
	for _, region := range c.regions {
		region := region
		go func() {
			models, profiles, err := c.fetcher.FetchRegion(ctx, region)
			results <- regionResult{region: region, models: models, profiles: profiles, err: err}
		}()
	}

	byRegion := make(map[string][]BaseModel)
	profilesByRegion := make(map[string][]InferenceProfile)
	var succeeded, failed []string

	for range c.regions {
		r := <-results
		if r.err != nil {
			c.logger.Warn("catalog: region discovery failed", "region", r.region, "error", r.err)
			failed = append(failed, r.region)
			continue
		}
		byRegion[r.region] = r.models
		profilesByRegion[r.region] = r.profiles
		succeeded = append(succeeded, r.region)
	}

	if len(succeeded) == 0 {
		c.logger.Warn("catalog: all region discovery failed, falling back to bundled snapshot")
		snap, err := loadBundledSnapshot()
		if err != nil {
			return nil, &configError{message: fmt.Sprintf("all discovery regions failed and bundled snapshot unavailable: %v", err)}
		}
		snap.Metadata.FailedRegions = failed
		snap.Metadata.UsedBundledFallback = true
		return snap, nil
	}

	merged := mergeDiscovery(byRegion, profilesByRegion, c.cfg.AllowFuzzyMatch, c.logger)
	return &snapshot{
		RetrievalTimestamp: time.Now(),
		Models:             merged.models,
		Metadata: Metadata{
			SuccessfulRegions: succeeded,
			FailedRegions:     failed,
		},
	}, nil
}

// checkReachability implements spec.md §4.1's fail-fast rule.
func (c *Catalog) checkReachability(snap *snapshot) error {
	var unreachableModels []string
	for _, m := range c.models {
		entry, ok := snap.Models[m]
		if !ok {
			unreachableModels = append(unreachableModels, m)
			continue
		}
		reachable := false
		for _, region := range c.regions {
			if _, ok := entry.PerRegion[region]; ok {
				reachable = true
				break
			}
		}
		if !reachable {
			unreachableModels = append(unreachableModels, m)
		}
	}
	if len(unreachableModels) > 0 && len(c.models) > 0 && len(unreachableModels) == len(c.models) {
		return &configError{
			message:           "no configured model is reachable from any configured region",
			unreachableModels: unreachableModels,
			unreachableRegions: c.regions,
		}
	}
	return nil
}

// configError mirrors converse.ConfigurationError's shape without
// importing the root package (which imports catalog), to avoid a cycle.
// converse.New wraps this into a *converse.ConfigurationError.
type configError struct {
	message            string
	unreachableModels  []string
	unreachableRegions []string
}

func (e *configError) Error() string { return e.message }

func (e *configError) UnreachableModels() []string  { return e.unreachableModels }
func (e *configError) UnreachableRegions() []string { return e.unreachableRegions }

// GetAccessInfo returns the access info for (modelName, region), or
// (AccessInfo{}, false) if unreachable. Unreachability is not an error.
func (c *Catalog) GetAccessInfo(modelName, region string) (AccessInfo, bool) {
	entry, ok := c.snap().Models[modelName]
	if !ok {
		return AccessInfo{}, false
	}
	ai, ok := entry.PerRegion[region]
	return ai, ok
}

// GetRecommendedAccess recommends Direct access when available,
// otherwise CRIS, listing the other as an alternative when Both.
func (c *Catalog) GetRecommendedAccess(modelName, region string) (Recommendation, bool) {
	ai, ok := c.GetAccessInfo(modelName, region)
	if !ok {
		return Recommendation{}, false
	}
	switch ai.AccessMethod {
	case AccessBoth:
		primary := ai
		primary.AccessMethod = AccessDirect
		alt := ai
		alt.AccessMethod = AccessCRISOnly
		return Recommendation{
			Primary:      primary,
			Alternatives: []AccessInfo{alt},
			Rationale:    "direct access preferred; CRIS available as fallback",
		}, true
	case AccessDirect:
		return Recommendation{Primary: ai, Rationale: "direct access is the only method available"}, true
	default:
		return Recommendation{Primary: ai, Rationale: "CRIS is the only method available"}, true
	}
}

// IsAvailable reports whether (modelName, region) is reachable.
func (c *Catalog) IsAvailable(modelName, region string) bool {
	_, ok := c.GetAccessInfo(modelName, region)
	return ok
}

// ModelsByRegion returns every model reachable from region.
func (c *Catalog) ModelsByRegion(region string) []Entry {
	var out []Entry
	for _, e := range c.snap().Models {
		if _, ok := e.PerRegion[region]; ok {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// ModelsByProvider returns every model from the given provider.
func (c *Catalog) ModelsByProvider(provider string) []Entry {
	var out []Entry
	for _, e := range c.snap().Models {
		if e.Provider == provider {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// StreamingModels returns every model that supports streaming.
func (c *Catalog) StreamingModels() []Entry {
	var out []Entry
	for _, e := range c.snap().Models {
		if e.StreamingSupported {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// AllSupportedRegions returns the union of every region any model is
// reachable from, sorted.
func (c *Catalog) AllSupportedRegions() []string {
	set := make(map[string]struct{})
	for _, e := range c.snap().Models {
		for r := range e.PerRegion {
			set[r] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ModelNames returns every model name in the catalog, sorted.
func (c *Catalog) ModelNames() []string {
	snap := c.snap()
	out := make([]string, 0, len(snap.Models))
	for name := range snap.Models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ModelCount returns the number of models in the catalog.
func (c *Catalog) ModelCount() int {
	return len(c.snap().Models)
}

// HasModel reports whether name is present in the catalog.
func (c *Catalog) HasModel(name string) bool {
	_, ok := c.snap().Models[name]
	return ok
}

// Entry returns the catalog entry for name, for consumers (e.g. the
// Content Filter) that need modality/streaming metadata.
func (c *Catalog) Entry(name string) (Entry, bool) {
	e, ok := c.snap().Models[name]
	return e, ok
}

// RetrievalTimestamp returns the current snapshot's build time.
func (c *Catalog) RetrievalTimestamp() time.Time {
	return c.snap().RetrievalTimestamp
}

// Metadata returns the current snapshot's discovery metadata.
func (c *Catalog) Metadata() Metadata {
	return c.snap().Metadata
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ModelName < entries[j].ModelName })
}
