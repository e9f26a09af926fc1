// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package convtypes

import "fmt"

// ConfigurationError reports a construction-time configuration fault,
// such as the catalog's fail-fast rule finding no reachable model.
type ConfigurationError struct {
	Message             string
	UnreachableModels   []string
	UnreachableRegions   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("converse: configuration error: %s", e.Message)
}

// AuthenticationError reports a credential-resolution failure from the Authenticator.
type AuthenticationError struct {
	Region string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("converse: authentication error for region %s: %v", e.Region, e.Cause)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// ModelAccessError reports that a (model, region) pair is not reachable.
type ModelAccessError struct {
	ModelName string
	Region    string
	Cause     error
}

func (e *ModelAccessError) Error() string {
	return fmt.Sprintf("converse: model %s not accessible in region %s: %v", e.ModelName, e.Region, e.Cause)
}

func (e *ModelAccessError) Unwrap() error { return e.Cause }

// RetryExhaustedError reports that every planned attempt target failed.
type RetryExhaustedError struct {
	AttemptsMade int
	LastErrors   []string
	ModelsTried  []string
	RegionsTried []string
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("converse: retry exhausted after %d attempts across models %v, regions %v: %v",
		e.AttemptsMade, e.ModelsTried, e.RegionsTried, e.LastErrors)
}

// RequestValidationError reports a request shape fault caught at the
// orchestrator boundary (spec.md §4.8).
type RequestValidationError struct {
	ValidationErrors []string
	InvalidFields    []string
}

func (e *RequestValidationError) Error() string {
	return fmt.Sprintf("converse: request validation failed on fields %v: %v", e.InvalidFields, e.ValidationErrors)
}

// StreamingError reports a terminal streaming fault with partial content preserved.
type StreamingError struct {
	StreamPosition  int
	PartialContent  string
	Cause           error
}

func (e *StreamingError) Error() string {
	return fmt.Sprintf("converse: streaming error at position %d: %v", e.StreamPosition, e.Cause)
}

func (e *StreamingError) Unwrap() error { return e.Cause }

// ContentError reports a content-compatibility fault (a block kind the
// target model cannot accept).
type ContentError struct {
	ModelName string
	BlockKind BlockKind
	Cause     error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("converse: model %s rejected content kind %s: %v", e.ModelName, e.BlockKind, e.Cause)
}

func (e *ContentError) Unwrap() error { return e.Cause }

// ParallelConfigurationError reports a batch-level configuration fault
// detected before dispatch.
type ParallelConfigurationError struct {
	Message string
}

func (e *ParallelConfigurationError) Error() string {
	return fmt.Sprintf("converse: parallel configuration error: %s", e.Message)
}

// ParallelExecutionError reports that a batch exceeded its failure threshold.
type ParallelExecutionError struct {
	FailedRequests int
	TotalRequests  int
}

func (e *ParallelExecutionError) Error() string {
	return fmt.Sprintf("converse: parallel execution failed %d/%d requests", e.FailedRequests, e.TotalRequests)
}

// RegionDistributionError reports a region-assignment fault (e.g. no
// configured regions to distribute across).
type RegionDistributionError struct {
	Message string
}

func (e *RegionDistributionError) Error() string {
	return fmt.Sprintf("converse: region distribution error: %s", e.Message)
}

// RequestTimeoutError reports that a single request's per-request
// timeout elapsed before completion.
type RequestTimeoutError struct {
	RequestID string
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("converse: request %s timed out", e.RequestID)
}

// RequestIdCollisionError reports duplicate request IDs detected during
// parallel preflight validation.
type RequestIdCollisionError struct {
	DuplicateIDs []string
}

func (e *RequestIdCollisionError) Error() string {
	return fmt.Sprintf("converse: duplicate request ids in batch: %v", e.DuplicateIDs)
}
