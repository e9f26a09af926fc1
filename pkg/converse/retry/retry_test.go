// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

func TestClassifyProviderCodes(t *testing.T) {
	c := Classify(&ProviderError{Code: CodeThrottling, Message: "too fast"}, nil)
	assert.Equal(t, KindTransient, c.Kind)

	c = Classify(&ProviderError{Code: CodeAccessDenied, Message: "nope"}, nil)
	assert.Equal(t, KindAccess, c.Kind)
}

func TestClassifyExtraRetryableCode(t *testing.T) {
	extra := map[string]struct{}{"CustomBusyException": {}}
	c := Classify(&ProviderError{Code: "CustomBusyException", Message: "busy"}, extra)
	assert.Equal(t, KindTransient, c.Kind)
}

// TestClassifyContentCompatBeforeFeatureCompat verifies spec.md §9's
// resolved priority: text that could plausibly match both tables is
// classified content-compat.
func TestClassifyContentCompatBeforeFeatureCompat(t *testing.T) {
	err := &ProviderError{Code: CodeValidation, Message: "this model does not support image content in tool use blocks"}
	c := Classify(err, nil)
	require.Equal(t, KindContentCompat, c.Kind)
	assert.Equal(t, convtypes.BlockImage, c.BlockKind)
}

func TestClassifyFeatureCompat(t *testing.T) {
	err := &ProviderError{Code: CodeValidation, Message: "guardrail configuration is not supported for this model"}
	c := Classify(err, nil)
	require.Equal(t, KindFeatureCompat, c.Kind)
	assert.Equal(t, convtypes.FeatureGuardrails, c.FeatureTag)
}

func TestClassifyParameterCompat(t *testing.T) {
	err := &ProviderError{Code: CodeValidation, Message: "unrecognized field additionalModelRequestFields.foo"}
	c := Classify(err, nil)
	assert.Equal(t, KindParameterCompat, c.Kind)
	assert.Equal(t, "foo", c.Field)
}

func TestClassifyParameterCompatExtractsQuotedField(t *testing.T) {
	err := &ProviderError{Code: CodeValidation, Message: "unsupported parameter 'anthropic_beta'"}
	c := Classify(err, nil)
	assert.Equal(t, KindParameterCompat, c.Kind)
	assert.Equal(t, "anthropic_beta", c.Field)
}

func TestClassifyParameterCompatWithoutNamedField(t *testing.T) {
	err := &ProviderError{Code: CodeValidation, Message: "unknown parameter in request"}
	c := Classify(err, nil)
	assert.Equal(t, KindParameterCompat, c.Kind)
	assert.Equal(t, "", c.Field)
}

func TestClassifyFallsBackToNonRetryable(t *testing.T) {
	err := &ProviderError{Code: CodeValidation, Message: "malformed request body"}
	c := Classify(err, nil)
	assert.Equal(t, KindNonRetryable, c.Kind)
}

// TestDelayMonotonicAndCapped covers spec.md §8 invariant #5: jitter-free,
// exactly reproducible, monotonically increasing until the cap.
func TestDelayMonotonicAndCapped(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, time.Duration(0), cfg.Delay(1))

	prev := time.Duration(0)
	for n := 2; n <= 6; n++ {
		d := cfg.Delay(n)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
	assert.LessOrEqual(t, cfg.Delay(10), cfg.MaxDelay)
	assert.Equal(t, cfg.MaxDelay, cfg.Delay(10))
}

func TestDelayExactFormula(t *testing.T) {
	cfg := Config{BaseDelay: 500 * time.Millisecond, Multiplier: 2.0, MaxDelay: 8 * time.Second}
	assert.Equal(t, 500*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 1*time.Second, cfg.Delay(3))
	assert.Equal(t, 2*time.Second, cfg.Delay(4))
	assert.Equal(t, 4*time.Second, cfg.Delay(5))
	assert.Equal(t, 8*time.Second, cfg.Delay(6))
	assert.Equal(t, 8*time.Second, cfg.Delay(7), "capped at max_delay")
}

func TestPlanTargetsRegionFirst(t *testing.T) {
	targets := PlanTargets([]string{"m1", "m2"}, []string{"r1", "r2"}, StrategyRegionFirst)
	require.Len(t, targets, 4)
	assert.Equal(t, Target{Model: "m1", Region: "r1"}, targets[0])
	assert.Equal(t, Target{Model: "m1", Region: "r2"}, targets[1])
	assert.Equal(t, Target{Model: "m2", Region: "r1"}, targets[2])
}

func TestPlanTargetsModelFirst(t *testing.T) {
	targets := PlanTargets([]string{"m1", "m2"}, []string{"r1", "r2"}, StrategyModelFirst)
	require.Len(t, targets, 4)
	assert.Equal(t, Target{Model: "m1", Region: "r1"}, targets[0])
	assert.Equal(t, Target{Model: "m2", Region: "r1"}, targets[1])
	assert.Equal(t, Target{Model: "m1", Region: "r2"}, targets[2])
}

func TestManagerSucceedsOnSecondTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	mgr := NewManager(cfg, nil)

	targets := []Target{{Model: "m1", Region: "r1"}, {Model: "m1", Region: "r2"}}
	calls := 0
	fn := func(ctx context.Context, target Target, disabled map[convtypes.FeatureTag]struct{}) error {
		calls++
		if target.Region == "r1" {
			return &ProviderError{Code: CodeAccessDenied, Message: "denied"}
		}
		return nil
	}

	res := mgr.Run(context.Background(), targets, nil, fn)
	assert.True(t, res.Succeeded)
	assert.Equal(t, Target{Model: "m1", Region: "r2"}, res.FinalTarget)
	assert.Equal(t, 2, calls)
}

func TestManagerDisablesFeatureAndRetriesSameTarget(t *testing.T) {
	cfg := DefaultConfig()
	mgr := NewManager(cfg, nil)

	targets := []Target{{Model: "m1", Region: "r1"}}
	calls := 0
	fn := func(ctx context.Context, target Target, disabled map[convtypes.FeatureTag]struct{}) error {
		calls++
		if _, ok := disabled[convtypes.FeatureGuardrails]; ok {
			return nil
		}
		return &ProviderError{Code: CodeValidation, Message: "guardrail is not supported"}
	}

	res := mgr.Run(context.Background(), targets, nil, fn)
	assert.True(t, res.Succeeded)
	assert.Equal(t, 2, calls)
	_, disabled := res.DisabledFeatures[convtypes.FeatureGuardrails]
	assert.True(t, disabled)
}

func TestManagerStripsParameterAndRetriesSameTarget(t *testing.T) {
	cfg := DefaultConfig()
	mgr := NewManager(cfg, nil)

	targets := []Target{{Model: "m1", Region: "r1"}}
	calls := 0
	fn := func(ctx context.Context, target Target, disabled map[convtypes.FeatureTag]struct{}) error {
		calls++
		if _, ok := disabled[convtypes.FeatureAdditionalModelReqFields]; ok {
			return nil
		}
		return &ProviderError{Code: CodeValidation, Message: "unsupported parameter 'anthropic_beta'"}
	}

	res := mgr.Run(context.Background(), targets, nil, fn)
	assert.True(t, res.Succeeded)
	assert.Equal(t, 2, calls)
	_, disabled := res.DisabledFeatures[convtypes.FeatureAdditionalModelReqFields]
	assert.True(t, disabled)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "anthropic_beta")
}

func TestManagerAdvancesTargetOnRepeatedParameterCompat(t *testing.T) {
	cfg := DefaultConfig()
	mgr := NewManager(cfg, nil)

	targets := []Target{{Model: "m1", Region: "r1"}, {Model: "m1", Region: "r2"}}
	calls := 0
	fn := func(ctx context.Context, target Target, disabled map[convtypes.FeatureTag]struct{}) error {
		calls++
		return &ProviderError{Code: CodeValidation, Message: "unsupported parameter 'anthropic_beta'"}
	}

	res := mgr.Run(context.Background(), targets, nil, fn)
	assert.False(t, res.Succeeded)
	assert.Equal(t, 3, calls, "r1 strips once and retries, then advances to r2 which aborts since the field is already stripped")
	require.Len(t, res.Warnings, 1, "warning recorded once, not per target")
}

func TestManagerAbortsOnNonRetryable(t *testing.T) {
	cfg := DefaultConfig()
	mgr := NewManager(cfg, nil)

	targets := []Target{{Model: "m1", Region: "r1"}, {Model: "m1", Region: "r2"}}
	calls := 0
	fn := func(ctx context.Context, target Target, disabled map[convtypes.FeatureTag]struct{}) error {
		calls++
		return &ProviderError{Code: CodeValidation, Message: "malformed request"}
	}

	res := mgr.Run(context.Background(), targets, nil, fn)
	assert.False(t, res.Succeeded)
	assert.Equal(t, 1, calls, "non-retryable aborts the whole request, no further targets")
}
