// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestDefaultWritesTextToStderr(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger.Slog())
	logger.Info("hello")
}

func TestNewJSONWritesFileLog(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelDebug, Service: "convtest", LogDir: dir, Quiet: true})
	logger.Info("request started", "request_id", "r1")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "request started", record["msg"])
	assert.Equal(t, "convtest", record["service"])
	assert.Equal(t, "r1", record["request_id"])
}

func TestWithChainsAttributes(t *testing.T) {
	logger := Default()
	child := logger.With("request_id", "abc123", "model", "claude-3")
	assert.NotSame(t, logger, child)
	child.Info("processing")
}

func TestCloseWithoutFileIsNoop(t *testing.T) {
	logger := Default()
	assert.NoError(t, logger.Close())
}
