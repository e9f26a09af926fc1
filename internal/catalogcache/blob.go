// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalogcache defines the on-disk JSON blob format for the
// catalog's file-mode cache (spec.md §6 "Catalog cache blob").
package catalogcache

import (
	"encoding/json"
	"fmt"
	"time"
)

// CurrentFormatVersion is bumped whenever the Blob shape changes
// incompatibly. Blob.FormatVersion mismatches cause the cache entry to
// be discarded on load (spec.md §4.1 "Cache").
const CurrentFormatVersion = 1

// AccessInfo mirrors catalog.AccessInfo for the wire format, kept as an
// independent type so this package has no dependency on pkg/converse/catalog.
type AccessInfo struct {
	AccessMethod       string `json:"access_method"`
	Region             string `json:"region"`
	ModelID            string `json:"model_id,omitempty"`
	InferenceProfileID string `json:"inference_profile_id,omitempty"`
}

// Entry mirrors catalog.Entry for the wire format.
type Entry struct {
	ModelName          string                `json:"model_name"`
	Provider           string                `json:"provider"`
	PerRegion          map[string]AccessInfo `json:"per_region"`
	StreamingSupported bool                  `json:"streaming_supported"`
	InputModalities    []string              `json:"input_modalities"`
	OutputModalities   []string              `json:"output_modalities"`
}

// Metadata mirrors catalog.Metadata for the wire format.
type Metadata struct {
	SuccessfulRegions   []string `json:"successful_regions"`
	FailedRegions       []string `json:"failed_regions"`
	UsedBundledFallback bool     `json:"used_bundled_fallback,omitempty"`
}

// Blob is the single-file UTF-8 JSON cache format. Unknown keys are
// ignored on read, per spec.md §6.
type Blob struct {
	FormatVersion      int              `json:"format_version"`
	RetrievalTimestamp time.Time        `json:"retrieval_timestamp"`
	Models             map[string]Entry `json:"models"`
	Metadata           Metadata         `json:"metadata"`
}

// Encode serializes b as indented JSON.
func Encode(b Blob) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// Decode parses raw JSON into a Blob. It returns an error if the format
// version is missing or mismatched against CurrentFormatVersion, so
// callers can fall back to a fresh fetch.
func Decode(raw []byte) (Blob, error) {
	var b Blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return Blob{}, fmt.Errorf("catalogcache: decode: %w", err)
	}
	if b.FormatVersion != CurrentFormatVersion {
		return Blob{}, fmt.Errorf("catalogcache: format version %d unsupported, want %d", b.FormatVersion, CurrentFormatVersion)
	}
	return b, nil
}
