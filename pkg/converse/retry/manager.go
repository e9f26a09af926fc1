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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

// Target is one (model, region) pair a Manager may dispatch an attempt
// to, per spec.md §4.3's attempt planning.
type Target struct {
	Model  string
	Region string
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s", t.Model, t.Region)
}

// PlanTargets orders every (model, region) combination according to
// strategy: region-first exhausts all regions for a model before moving
// to the next model, model-first exhausts all models in a region before
// moving to the next region.
func PlanTargets(models, regions []string, strategy Strategy) []Target {
	var out []Target
	if strategy == StrategyModelFirst {
		for _, region := range regions {
			for _, model := range models {
				out = append(out, Target{Model: model, Region: region})
			}
		}
		return out
	}
	for _, model := range models {
		for _, region := range regions {
			out = append(out, Target{Model: model, Region: region})
		}
	}
	return out
}

// AttemptFunc performs one converse call against target with the given
// set of disabled features applied to the request. It returns a
// provider-shaped error (ideally wrapping or being a *ProviderError) so
// Classify can categorize failures.
type AttemptFunc func(ctx context.Context, target Target, disabled map[convtypes.FeatureTag]struct{}) error

// Result summarizes one Manager.Run invocation: whether it ultimately
// succeeded, the full attempt history, and which features ended up
// disabled (sticky across targets) at the point of success or exhaustion.
type Result struct {
	Succeeded        bool
	Attempts         []convtypes.AttemptRecord
	FinalTarget      Target
	DisabledFeatures map[convtypes.FeatureTag]struct{}
	LastError        error

	// Warnings accumulates non-fatal recoveries the caller should surface
	// to the end user, e.g. a parameter-compat strip naming the field
	// that got removed from AdditionalModelRequestFields.
	Warnings []string
}

// Manager drives spec.md §4.3's retry state machine across a planned
// list of targets: transient errors retry the same target with
// jitter-free backoff up to Config.MaxRetries; access and content-compat
// errors advance immediately to the next target; feature-compat errors
// disable the offending feature (sticky for the remainder of the
// request) and retry the same target once, then advance on repeat
// failure; parameter-compat errors strip AdditionalModelRequestFields
// the same way, retry the same target once, and record a warning naming
// the offending field; non-retryable errors abort the whole request.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	breakers *breakerRegistry
}

// NewManager constructs a Manager. A nil logger falls back to slog's
// default handler, matching the teacher's logging-is-optional convention.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		breakers: newBreakerRegistry(),
	}
}

// Run executes fn against targets in order, applying the retry state
// machine. disabledSoFar seeds the sticky feature-disable set (normally
// empty at the start of a request).
func (m *Manager) Run(ctx context.Context, targets []Target, disabledSoFar map[convtypes.FeatureTag]struct{}, fn AttemptFunc) Result {
	disabled := make(map[convtypes.FeatureTag]struct{}, len(disabledSoFar))
	for k := range disabledSoFar {
		disabled[k] = struct{}{}
	}

	res := Result{DisabledFeatures: disabled}
	extra := m.cfg.extraCodesSet()

	attemptNum := 0
	for _, target := range targets {
		if ctx.Err() != nil {
			res.LastError = ctx.Err()
			return res
		}

		if !m.breakers.Allow(target.String()) {
			m.logger.Warn("retry: target circuit open, skipping", "target", target.String())
			res.Warnings = append(res.Warnings, fmt.Sprintf("target %s/%s skipped: circuit open", target.Model, target.Region))
			continue
		}

		targetAttempts := 0
		for targetAttempts < m.cfg.MaxRetries {
			attemptNum++
			targetAttempts++

			start := time.Now()
			err := fn(ctx, target, disabled)
			end := time.Now()

			record := convtypes.AttemptRecord{
				AttemptNumber: attemptNum,
				ModelName:     target.Model,
				Region:        target.Region,
				StartTime:     start,
				EndTime:       &end,
				Success:       err == nil,
			}

			if err == nil {
				res.Attempts = append(res.Attempts, record)
				res.Succeeded = true
				res.FinalTarget = target
				m.breakers.RecordResult(target.String(), nil)
				return res
			}

			m.breakers.RecordResult(target.String(), err)

			classification := Classify(err, extra)
			record.Error = fmt.Sprintf("[%s] %s", classification.Kind, err.Error())
			res.Attempts = append(res.Attempts, record)
			res.LastError = err

			switch classification.Kind {
			case KindTransient:
				if targetAttempts >= m.cfg.MaxRetries {
					break
				}
				delay := m.cfg.Delay(targetAttempts + 1)
				if !m.wait(ctx, delay, &res) {
					return res
				}
				continue

			case KindFeatureCompat:
				if !m.cfg.EnableFeatureFallback {
					break
				}
				if _, already := disabled[classification.FeatureTag]; already {
					break
				}
				disabled[classification.FeatureTag] = struct{}{}
				res.DisabledFeatures = disabled
				m.logger.Info("retry: disabling feature and retrying same target",
					"target", target.String(), "feature", classification.FeatureTag)
				continue

			case KindContentCompat, KindAccess:
				// Advance to next target immediately; no point retrying
				// the same (model, region) for a compatibility mismatch.

			case KindParameterCompat:
				if _, already := disabled[convtypes.FeatureAdditionalModelReqFields]; already {
					break
				}
				disabled[convtypes.FeatureAdditionalModelReqFields] = struct{}{}
				res.DisabledFeatures = disabled
				warning := fmt.Sprintf("removed incompatible additional model request field for %s", target.String())
				if classification.Field != "" {
					warning = fmt.Sprintf("removed incompatible additional model request field %q for %s", classification.Field, target.String())
				}
				res.Warnings = append(res.Warnings, warning)
				m.logger.Warn("retry: stripping additional model request fields and retrying same target",
					"target", target.String(), "field", classification.Field)
				continue

			case KindNonRetryable:
				return res
			}
			break
		}
	}

	return res
}

// wait blocks for delay or until ctx is done, recording the latter as
// the terminal error. Returns false if the caller should stop.
func (m *Manager) wait(ctx context.Context, delay time.Duration, res *Result) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		res.LastError = ctx.Err()
		return false
	case <-timer.C:
		return true
	}
}
