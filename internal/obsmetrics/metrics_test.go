// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package obsmetrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()
		}
	}
	return nil
}

func TestRecordAttemptIncrementsCounter(t *testing.T) {
	m, err := New("converse_test")
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	m.RecordAttempt(context.Background(), "claude-3", "us-east-1", "transient", false)
	m.RecordAttempt(context.Background(), "claude-3", "us-east-1", "transient", false)

	metrics := gatherCounter(t, m.Registry(), "converse_attempt_total")
	require.NotEmpty(t, metrics)
	assert.Equal(t, float64(2), metrics[0].GetCounter().GetValue())
}

func TestRecordCatalogRefresh(t *testing.T) {
	m, err := New("converse_test")
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	m.RecordCatalogRefresh(context.Background(), "success")

	metrics := gatherCounter(t, m.Registry(), "converse_catalog_refresh_total")
	require.NotEmpty(t, metrics)
	assert.Equal(t, float64(1), metrics[0].GetCounter().GetValue())
}

func TestStalenessGaugeUsesSource(t *testing.T) {
	m, err := New("converse_test")
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	m.SetStalenessSource(func() float64 { return 42.5 })

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "converse_catalog_staleness_seconds" {
			found = true
			require.NotEmpty(t, f.GetMetric())
			assert.Equal(t, 42.5, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "expected converse_catalog_staleness_seconds to be registered")
}
