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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/AleutianAI/converse/internal/catalogcache"
	"github.com/AleutianAI/converse/internal/catalogsnapshot"
)

const cacheFileName = "catalog.json"
const lockFileName = "catalog.lock"

func blobFromSnapshot(s *snapshot) catalogcache.Blob {
	models := make(map[string]catalogcache.Entry, len(s.Models))
	for name, e := range s.Models {
		perRegion := make(map[string]catalogcache.AccessInfo, len(e.PerRegion))
		for region, ai := range e.PerRegion {
			perRegion[region] = catalogcache.AccessInfo{
				AccessMethod:       string(ai.AccessMethod),
				Region:             ai.Region,
				ModelID:            ai.ModelID,
				InferenceProfileID: ai.InferenceProfileID,
			}
		}
		models[name] = catalogcache.Entry{
			ModelName:          e.ModelName,
			Provider:           e.Provider,
			PerRegion:          perRegion,
			StreamingSupported: e.StreamingSupported,
			InputModalities:    e.InputModalities,
			OutputModalities:   e.OutputModalities,
		}
	}
	return catalogcache.Blob{
		FormatVersion:      catalogcache.CurrentFormatVersion,
		RetrievalTimestamp: s.RetrievalTimestamp,
		Models:             models,
		Metadata: catalogcache.Metadata{
			SuccessfulRegions:   s.Metadata.SuccessfulRegions,
			FailedRegions:       s.Metadata.FailedRegions,
			UsedBundledFallback: s.Metadata.UsedBundledFallback,
		},
	}
}

func snapshotFromBlob(b catalogcache.Blob) *snapshot {
	models := make(map[string]Entry, len(b.Models))
	for name, e := range b.Models {
		perRegion := make(map[string]AccessInfo, len(e.PerRegion))
		for region, ai := range e.PerRegion {
			perRegion[region] = AccessInfo{
				AccessMethod:       AccessMethod(ai.AccessMethod),
				Region:             ai.Region,
				ModelID:            ai.ModelID,
				InferenceProfileID: ai.InferenceProfileID,
			}
		}
		models[name] = Entry{
			ModelName:          e.ModelName,
			Provider:           e.Provider,
			PerRegion:          perRegion,
			StreamingSupported: e.StreamingSupported,
			InputModalities:    e.InputModalities,
			OutputModalities:   e.OutputModalities,
		}
	}
	return &snapshot{
		RetrievalTimestamp: b.RetrievalTimestamp,
		Models:             models,
		Metadata: Metadata{
			SuccessfulRegions:   b.Metadata.SuccessfulRegions,
			FailedRegions:       b.Metadata.FailedRegions,
			UsedBundledFallback: b.Metadata.UsedBundledFallback,
		},
	}
}

// loadCache reads and validates the file-mode cache blob, returning
// (nil, false) if missing, corrupt, version-mismatched, or expired.
func loadCache(dir string, ttl time.Duration) (*snapshot, bool) {
	if dir == "" {
		return nil, false
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryRLock()
	if err != nil || !locked {
		return nil, false
	}
	defer lock.Unlock()

	raw, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	if err != nil {
		return nil, false
	}
	blob, err := catalogcache.Decode(raw)
	if err != nil {
		return nil, false
	}
	if ttl > 0 && time.Since(blob.RetrievalTimestamp) > ttl {
		return nil, false
	}
	return snapshotFromBlob(blob), true
}

// saveCache takes an advisory exclusive lock on the cache directory's
// lock file and writes the blob, so two processes sharing a cache
// directory don't interleave writes.
func saveCache(dir string, s *snapshot) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("catalog: creating cache directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("catalog: acquiring cache lock: %w", err)
	}
	defer lock.Unlock()

	raw, err := catalogcache.Encode(blobFromSnapshot(s))
	if err != nil {
		return fmt.Errorf("catalog: encoding cache blob: %w", err)
	}
	tmp := filepath.Join(dir, cacheFileName+".tmp")
	if err := os.WriteFile(tmp, raw, 0o640); err != nil {
		return fmt.Errorf("catalog: writing cache blob: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, cacheFileName))
}

// loadBundledSnapshot decodes the embedded fallback catalog
// (spec.md §4.1(c)).
func loadBundledSnapshot() (*snapshot, error) {
	blob, err := catalogsnapshot.Load()
	if err != nil {
		return nil, err
	}
	return snapshotFromBlob(blob), nil
}
