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

import "strings"

// canonicalModelID strips a fully-qualified ARN-style model identifier
// down to its bare trailing component, so "arn:aws:bedrock:us-east-1::
// foundation-model/anthropic.claude-3-sonnet" and
// "anthropic.claude-3-sonnet" yield the same ModelID value.
//
// Supplemented from original_source/src/ModelIDParser.py, which performs
// this same normalization before building its internal model table.
func canonicalModelID(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// normalizeModelName lowercases and trims a model name for exact-match
// comparison between the base-model and inference-profile listings.
func normalizeModelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// fuzzyNameMatch reports whether two model names are "close enough" to
// be considered the same model when exact matching fails. Conservative:
// requires one to be a prefix of the other after normalization, or
// shared words making up at least half the shorter name's word count. Off by default; see CacheConfig.AllowFuzzyMatch.
func fuzzyNameMatch(a, b string) bool {
	na, nb := normalizeModelName(a), normalizeModelName(b)
	if na == nb {
		return true
	}
	if strings.HasPrefix(na, nb) || strings.HasPrefix(nb, na) {
		return true
	}
	wa := strings.Fields(strings.NewReplacer("-", " ", ".", " ", "_", " ").Replace(na))
	wb := strings.Fields(strings.NewReplacer("-", " ", ".", " ", "_", " ").Replace(nb))
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(wa))
	for _, w := range wa {
		set[w] = struct{}{}
	}
	matches := 0
	for _, w := range wb {
		if _, ok := set[w]; ok {
			matches++
		}
	}
	shorter := len(wa)
	if len(wb) < shorter {
		shorter = len(wb)
	}
	return shorter > 0 && matches*2 >= shorter
}

// ParseProfileRegions normalizes an inference profile's target-region
// listing. The provider's discovery response represents this either as
// a flat list of region codes, or as a list of {region, region_name}
// objects; both shapes are tolerated.
//
// Supplemented from original_source/src/CRISProfileParser.py.
func ParseProfileRegions(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if r, ok := v["region"].(string); ok {
				out = append(out, r)
			}
		}
	}
	return out
}
