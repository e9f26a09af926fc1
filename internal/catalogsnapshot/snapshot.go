// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalogsnapshot embeds a bundled fallback catalog, used when
// every discovery region fails (spec.md §4.1(c)).
package catalogsnapshot

import (
	_ "embed"

	"github.com/AleutianAI/converse/internal/catalogcache"
)

//go:embed snapshot.json
var bundled []byte

// Load decodes the embedded bundled snapshot.
func Load() (catalogcache.Blob, error) {
	return catalogcache.Decode(bundled)
}
