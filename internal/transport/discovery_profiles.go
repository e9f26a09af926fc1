// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import "strings"

// regionFromARN extracts the region component of a Bedrock model or
// inference-profile ARN: "arn:aws:bedrock:us-east-1:123456789012:
// foundation-model/anthropic.claude-3-sonnet" -> "us-east-1". This is
// the typed-SDK path's region source for ListInferenceProfiles results
// (discovery.go's regionsFromModels); catalog.ParseProfileRegions
// covers the same original_source/src/CRISProfileParser.py tolerance
// rule for callers implementing DiscoveryFetcher against a raw,
// document-shaped catalog feed instead of the typed bedrock client.
func regionFromARN(arn string) (string, bool) {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 4 || parts[0] != "arn" {
		return "", false
	}
	region := parts[3]
	if region == "" {
		return "", false
	}
	return region, true
}
