// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assemble

import "github.com/AleutianAI/converse/pkg/converse/convtypes"

// AssembleBlocking normalizes a single provider call's raw output plus
// its attempt history into the public Response shape (spec.md §4.4).
func AssembleBlocking(raw convtypes.RawResponse, modelUsed, regionUsed, accessMethodUsed string, attempts []convtypes.AttemptRecord, disabled []convtypes.FeatureTag, warnings []string) convtypes.Response {
	var totalMs int64
	for _, a := range attempts {
		totalMs += a.Duration().Milliseconds()
	}

	resp := convtypes.Response{
		Success:          true,
		Raw:              &raw,
		ModelUsed:        modelUsed,
		RegionUsed:       regionUsed,
		AccessMethodUsed: accessMethodUsed,
		Attempts:         attempts,
		TotalDurationMs:  totalMs,
		FeaturesDisabled: disabled,
		Warnings:         warnings,
	}
	if raw.LatencyMs > 0 {
		l := raw.LatencyMs
		resp.APILatencyMs = &l
	}
	return resp
}

// AssembleFailure builds the Response returned when every target was
// exhausted without success (spec.md §4.3's non-strict-error mode).
func AssembleFailure(attempts []convtypes.AttemptRecord, warnings []string) convtypes.Response {
	var totalMs int64
	for _, a := range attempts {
		totalMs += a.Duration().Milliseconds()
	}
	return convtypes.Response{
		Success:         false,
		Attempts:        attempts,
		TotalDurationMs: totalMs,
		Warnings:        warnings,
	}
}
