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
	"log/slog"
)

// mergeResult is the output of merging per-region discovery listings
// into a unified model table, before the fail-fast reachability check.
type mergeResult struct {
	models   map[string]Entry
	metadata Metadata
}

// mergeDiscovery implements spec.md §4.1's merge rules: a (model,
// region) pair present only among base models is Direct, present only
// among inference profiles is CRISOnly, present in both is Both. Model
// identification is by canonical name, exact match first, with an
// optional conservative fuzzy fallback that logs both sides of the link.
func mergeDiscovery(byRegion map[string][]BaseModel, profilesByRegion map[string][]InferenceProfile, allowFuzzy bool, logger *slog.Logger) mergeResult {
	models := make(map[string]Entry)

	// canonicalNames maps a normalized name to the canonical ModelName
	// first observed for it, so fuzzy-linked profile entries fold into
	// the same Entry as their base-model counterpart.
	canonicalNames := make(map[string]string)

	ensureEntry := func(name, provider string) *Entry {
		norm := normalizeModelName(name)
		canon, ok := canonicalNames[norm]
		if !ok && allowFuzzy {
			for existingNorm, existingCanon := range canonicalNames {
				if fuzzyNameMatch(existingNorm, norm) {
					if logger != nil {
						logger.Warn("catalog: fuzzy model name match",
							"discovered", name, "linked_to", existingCanon)
					}
					canon = existingCanon
					ok = true
					break
				}
			}
		}
		if !ok {
			canon = name
			canonicalNames[norm] = canon
		}
		e, exists := models[canon]
		if !exists {
			e = Entry{ModelName: canon, Provider: provider, PerRegion: make(map[string]AccessInfo)}
		}
		models[canon] = e
		entry := models[canon]
		return &entry
	}

	commit := func(e *Entry) {
		models[e.ModelName] = *e
	}

	for region, bms := range byRegion {
		for _, bm := range bms {
			e := ensureEntry(bm.ModelName, bm.Provider)
			e.StreamingSupported = e.StreamingSupported || bm.StreamingSupported
			e.InputModalities = mergeStrings(e.InputModalities, bm.InputModalities)
			e.OutputModalities = mergeStrings(e.OutputModalities, bm.OutputModalities)

			ai := e.PerRegion[region]
			ai.Region = region
			ai.ModelID = canonicalModelID(bm.ModelID)
			if ai.InferenceProfileID != "" {
				ai.AccessMethod = AccessBoth
			} else {
				ai.AccessMethod = AccessDirect
			}
			e.PerRegion[region] = ai
			commit(e)
		}
	}

	for _, profiles := range profilesByRegion {
		for _, p := range profiles {
			e := ensureEntry(p.ModelName, "")
			for _, region := range p.TargetRegions {
				ai := e.PerRegion[region]
				ai.Region = region
				ai.InferenceProfileID = p.ProfileID
				if ai.ModelID != "" {
					ai.AccessMethod = AccessBoth
				} else {
					ai.AccessMethod = AccessCRISOnly
				}
				e.PerRegion[region] = ai
			}
			commit(e)
		}
	}

	return mergeResult{models: models}
}

func mergeStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			out = append(out, s)
			seen[s] = struct{}{}
		}
	}
	return out
}
