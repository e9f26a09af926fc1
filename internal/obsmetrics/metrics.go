// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package obsmetrics wires the otel metrics SDK to a Prometheus
// exporter and exposes counters/histograms/gauges for attempt outcomes,
// retry backoff duration, and catalog refresh activity. The converse
// Client records attempts and retry delays; nothing in this module calls
// RecordCatalogRefresh or SetStalenessSource.
package obsmetrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments exported by this module. It is safe
// for concurrent use; instrument recording is handled by the otel SDK.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	attemptTotal      metric.Int64Counter
	retryDelaySeconds metric.Float64Histogram
	catalogRefreshes  metric.Int64Counter

	staleness func() float64
}

// New builds a Metrics bound to a fresh Prometheus registry. Callers
// serve the registry via promhttp.HandlerFor(m.Registry(), ...) on
// their own metrics endpoint; this package never opens a listener.
func New(service string) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("obsmetrics: create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(service)

	attemptTotal, err := meter.Int64Counter(
		"converse_attempt_total",
		metric.WithDescription("Count of converse attempts by model, region, and classification kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("obsmetrics: create attempt counter: %w", err)
	}

	retryDelay, err := meter.Float64Histogram(
		"converse_retry_delay_seconds",
		metric.WithDescription("Backoff delay applied before a retry attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("obsmetrics: create retry delay histogram: %w", err)
	}

	catalogRefreshes, err := meter.Int64Counter(
		"converse_catalog_refresh_total",
		metric.WithDescription("Count of catalog discovery refreshes, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("obsmetrics: create catalog refresh counter: %w", err)
	}

	m := &Metrics{
		registry:          registry,
		provider:          provider,
		attemptTotal:      attemptTotal,
		retryDelaySeconds: retryDelay,
		catalogRefreshes:  catalogRefreshes,
	}

	_, err = meter.Float64ObservableGauge(
		"converse_catalog_staleness_seconds",
		metric.WithDescription("Seconds since the catalog's last successful refresh"),
		metric.WithFloat64Callback(m.observeCatalogStaleness),
	)
	if err != nil {
		return nil, fmt.Errorf("obsmetrics: create catalog staleness gauge: %w", err)
	}

	return m, nil
}

// Registry returns the Prometheus registry backing this Metrics, for
// callers wiring promhttp.HandlerFor themselves.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordAttempt increments the attempt counter for one retry-manager
// attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, model, region, kind string, success bool) {
	m.attemptTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("region", region),
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	))
}

// RecordRetryDelay observes a backoff delay applied before a retry.
func (m *Metrics) RecordRetryDelay(ctx context.Context, model, region string, seconds float64) {
	m.retryDelaySeconds.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("region", region),
	))
}

// RecordCatalogRefresh increments the catalog refresh counter.
func (m *Metrics) RecordCatalogRefresh(ctx context.Context, outcome string) {
	m.catalogRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SetStalenessSource registers the callback the staleness gauge polls
// when scraped. Until a source is registered the gauge reports no
// value.
func (m *Metrics) SetStalenessSource(f func() float64) {
	m.staleness = f
}

func (m *Metrics) observeCatalogStaleness(_ context.Context, o metric.Float64Observer) error {
	if m.staleness == nil {
		return nil
	}
	o.Observe(m.staleness())
	return nil
}

// Shutdown flushes and stops the underlying meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
