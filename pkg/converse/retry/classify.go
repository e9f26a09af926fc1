// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retry implements the Retry Manager: error classification,
// attempt planning across (model, region) targets, jitter-free
// exponential backoff, and a per-target circuit breaker.
//
// Grounded on original_source/src/bedrock/retry/retry_manager.py's
// is_retryable_error/should_disable_feature_and_retry/
// calculate_retry_delay/generate_retry_targets, with the Go loop shape
// borrowed from the teacher's services/trace/context/retry.go.
package retry

import (
	"errors"
	"regexp"
	"strings"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

// Kind classifies an error surfaced by a converse RPC attempt, per
// spec.md §4.3's error taxonomy.
type Kind int

const (
	KindTransient Kind = iota
	KindAccess
	KindFeatureCompat
	KindParameterCompat
	KindContentCompat
	KindNonRetryable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAccess:
		return "access"
	case KindFeatureCompat:
		return "feature-compat"
	case KindParameterCompat:
		return "parameter-compat"
	case KindContentCompat:
		return "content-compat"
	default:
		return "non-retryable"
	}
}

// Classification is the result of classifying one failed attempt.
type Classification struct {
	Kind Kind

	// FeatureTag is set for KindFeatureCompat: the feature to disable.
	FeatureTag convtypes.FeatureTag

	// BlockKind is set for KindContentCompat: the unsupported content kind.
	BlockKind convtypes.BlockKind

	// Field is set for KindParameterCompat: the offending additional field.
	Field string

	MatchedPattern string
}

// ProviderError is the minimal shape a transport-layer error must
// expose for classification: an optional provider error code plus the
// human-readable message text.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// AsProviderError extracts a *ProviderError from err via errors.As.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// contentCompatPattern matches provider error text naming an
// unsupported content/block kind. Checked BEFORE feature-compat
// patterns, per spec.md §9's explicit priority resolution: a phrase
// that could match both tables is content-compat, because disabling the
// block via the filter would silently drop user data, whereas skipping
// to the next target preserves it.
type contentCompatPattern struct {
	phrase string
	kind   convtypes.BlockKind
}

var contentCompatPatterns = []contentCompatPattern{
	{"does not support image", convtypes.BlockImage},
	{"doesn't support image", convtypes.BlockImage},
	{"image content is not supported", convtypes.BlockImage},
	{"does not support document", convtypes.BlockDocument},
	{"doesn't support document", convtypes.BlockDocument},
	{"document content is not supported", convtypes.BlockDocument},
	{"does not support video", convtypes.BlockVideo},
	{"doesn't support video", convtypes.BlockVideo},
	{"video content is not supported", convtypes.BlockVideo},
	{"unsupported content type", convtypes.BlockImage},
}

type featureCompatPattern struct {
	phrase string
	tag    convtypes.FeatureTag
}

// featureCompatPatterns mirrors the original's per-feature phrase
// tables in should_disable_feature_and_retry.
var featureCompatPatterns = []featureCompatPattern{
	{"guardrail", convtypes.FeatureGuardrails},
	{"content filter", convtypes.FeatureGuardrails},
	{"tool use", convtypes.FeatureToolUse},
	{"tool_use", convtypes.FeatureToolUse},
	{"toolconfig", convtypes.FeatureToolUse},
	{"function calling", convtypes.FeatureToolUse},
	{"prompt cach", convtypes.FeaturePromptCaching},
	{"cache point", convtypes.FeaturePromptCaching},
	{"reasoning", convtypes.FeatureReasoning},
	{"extended thinking", convtypes.FeatureReasoning},
	{"streaming is not supported", convtypes.FeatureStreaming},
	{"does not support streaming", convtypes.FeatureStreaming},
}

var parameterCompatMarkers = []string{
	"unsupported additional", "unrecognized field", "unknown field",
	"additionalmodelrequestfields", "unsupported parameter", "invalid field",
	"unknown parameter",
}

// quotedFieldPattern pulls a single-quoted identifier out of a
// parameter-compat error message: "unsupported parameter 'anthropic_beta'"
// -> "anthropic_beta".
var quotedFieldPattern = regexp.MustCompile(`'([a-zA-Z0-9_]+)'`)

// dottedFieldPattern pulls the leaf key off an additionalModelRequestFields
// dotted path: "additionalmodelrequestfields.beta_feature" -> "beta_feature".
var dottedFieldPattern = regexp.MustCompile(`additionalmodelrequestfields\.([a-zA-Z0-9_]+)`)

// extractFieldName finds the offending additionalModelRequestFields key
// named in a parameter-compat error message, or "" if the message doesn't
// name one (e.g. "unknown parameter in request").
func extractFieldName(msg string) string {
	if m := dottedFieldPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := quotedFieldPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

// Classify determines the Kind of a failed attempt, consulting err's
// provider code first and falling back to text-pattern matching. Text
// matching runs content-compat patterns before feature-compat patterns.
func Classify(err error, extraRetryableCodes map[string]struct{}) Classification {
	pe, _ := AsProviderError(err)
	msg := strings.ToLower(err.Error())

	if pe != nil {
		if _, ok := defaultTransientCodes[pe.Code]; ok {
			return Classification{Kind: KindTransient}
		}
		if _, ok := extraRetryableCodes[pe.Code]; ok {
			return Classification{Kind: KindTransient}
		}
		if _, ok := defaultAccessCodes[pe.Code]; ok {
			return Classification{Kind: KindAccess}
		}
		if pe.Code == CodeValidation {
			if c, ok := classifyByText(msg); ok {
				return c
			}
			return Classification{Kind: KindNonRetryable}
		}
	}

	if c, ok := classifyByText(msg); ok {
		return c
	}

	return Classification{Kind: KindNonRetryable}
}

func classifyByText(msg string) (Classification, bool) {
	for _, p := range contentCompatPatterns {
		if strings.Contains(msg, p.phrase) {
			return Classification{Kind: KindContentCompat, BlockKind: p.kind, MatchedPattern: p.phrase}, true
		}
	}
	for _, marker := range parameterCompatMarkers {
		if strings.Contains(msg, marker) {
			return Classification{Kind: KindParameterCompat, Field: extractFieldName(msg), MatchedPattern: marker}, true
		}
	}
	for _, p := range featureCompatPatterns {
		if strings.Contains(msg, p.phrase) {
			return Classification{Kind: KindFeatureCompat, FeatureTag: p.tag, MatchedPattern: p.phrase}, true
		}
	}
	if strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "throttl") {
		return Classification{Kind: KindTransient}, true
	}
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "not ready") ||
		strings.Contains(msg, "not found") {
		return Classification{Kind: KindAccess}, true
	}
	return Classification{}, false
}
