// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package convtypes holds the data model shared by every converse
// subpackage (filter, retry, assemble, parallel, validate) and the root
// orchestrator package. It exists as its own leaf package, with no
// dependency on pkg/converse, so those subpackages can depend on the
// data model without creating an import cycle back through the
// orchestrator that composes them.
package convtypes

import "time"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind discriminates the tagged union of content a Block can carry.
//
// Go has no sum types; this mirrors the teacher's discriminator-string
// pattern (anthropicContent's Type field) with a closed enum instead of
// a bare string.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockDocument   BlockKind = "document"
	BlockVideo      BlockKind = "video"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockGuard      BlockKind = "guard"
	BlockReasoning  BlockKind = "reasoning"
	BlockCachePoint BlockKind = "cache_point"
)

// MediaSource carries either inline bytes or an external reference for
// image/document/video blocks. Exactly one of Bytes or Reference is set.
type MediaSource struct {
	Bytes     []byte `json:"bytes,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// Block is one element of a Message's content, tagged by Kind. Only the
// field(s) relevant to Kind are populated; the rest are left zero.
type Block struct {
	Kind BlockKind `json:"kind"`

	// Text holds BlockText content.
	Text string `json:"text,omitempty"`

	// Format names the media encoding for image/document/video blocks
	// (e.g. "png", "pdf", "mp4").
	Format string `json:"format,omitempty"`

	// Name labels a document block.
	Name string `json:"name,omitempty"`

	// Source carries the media payload for image/document/video blocks.
	Source *MediaSource `json:"source,omitempty"`

	// ToolUseID correlates a tool_use block with its tool_result.
	ToolUseID string `json:"tool_use_id,omitempty"`

	// ToolName names the tool being invoked (BlockToolUse).
	ToolName string `json:"tool_name,omitempty"`

	// ToolInput is the tool call's argument payload (BlockToolUse).
	ToolInput map[string]any `json:"tool_input,omitempty"`

	// ToolResultContent is the tool's returned content (BlockToolResult).
	ToolResultContent []Block `json:"tool_result_content,omitempty"`

	// ToolResultIsError marks a tool_result as an error outcome.
	ToolResultIsError bool `json:"tool_result_is_error,omitempty"`

	// GuardText is the guardrail-flagged content for BlockGuard.
	GuardText string `json:"guard_text,omitempty"`

	// ReasoningText holds extended-thinking content for BlockReasoning.
	ReasoningText string `json:"reasoning_text,omitempty"`

	// CachePointType labels the cache breakpoint kind for BlockCachePoint.
	CachePointType string `json:"cache_point_type,omitempty"`
}

// Message is one turn in a conversation: a role plus an ordered list of
// content blocks. Content ordering is significant and must be preserved
// across filter/restore cycles.
type Message struct {
	Role    Role    `json:"role" validate:"required,oneof=user assistant"`
	Content []Block `json:"content" validate:"required,min=1,dive"`
}

// InferenceConfig carries the provider's generic sampling knobs.
type InferenceConfig struct {
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// ToolConfig describes the tools a model may call during this request.
type ToolConfig struct {
	Tools      []ToolSpec `json:"tools"`
	ToolChoice string     `json:"tool_choice,omitempty"`
}

// ToolSpec describes one callable tool.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// GuardrailConfig identifies a provider-side guardrail policy to apply.
type GuardrailConfig struct {
	GuardrailID string `json:"guardrail_id"`
	Version     string `json:"version,omitempty"`
	Trace       bool   `json:"trace,omitempty"`
}

// PerformanceConfig requests a latency/throughput tradeoff from the provider.
type PerformanceConfig struct {
	Latency string `json:"latency,omitempty"` // "standard" | "optimized"
}

// Request is one converse call: messages plus optional request-level
// configuration. RequestID must be unique within a batch.
type Request struct {
	RequestID                   string             `json:"request_id" validate:"omitempty,uuid4"`
	Messages                    []Message          `json:"messages" validate:"required,min=1,max=100,dive"`
	SystemPrompts               []string           `json:"system_prompts,omitempty"`
	InferenceConfig             *InferenceConfig   `json:"inference_config,omitempty"`
	ToolConfig                  *ToolConfig        `json:"tool_config,omitempty"`
	GuardrailConfig             *GuardrailConfig   `json:"guardrail_config,omitempty"`
	AdditionalModelRequestFields map[string]any    `json:"additional_model_request_fields,omitempty"`
	PerformanceConfig           *PerformanceConfig `json:"performance_config,omitempty"`

	// Streaming marks this request's preferred transport; it is itself
	// a filter-managed feature (FeatureStreaming).
	Streaming bool `json:"-"`

	// Models and Regions are per-call overrides; when empty, the
	// client's configured defaults apply (spec.md §6, per-call overrides).
	Models  []string `json:"-"`
	Regions []string `json:"-"`
}

// Clone returns a copy of r whose own slices, maps and config structs
// can be modified without affecting r. Blocks are copied by value, so a
// Block's Source, ToolInput and ToolResultContent, and the values held
// in InputSchema and AdditionalModelRequestFields, are shared with r.
func (r Request) Clone() Request {
	out := r
	out.Messages = cloneMessages(r.Messages)
	if r.SystemPrompts != nil {
		out.SystemPrompts = append([]string(nil), r.SystemPrompts...)
	}
	if r.InferenceConfig != nil {
		ic := *r.InferenceConfig
		out.InferenceConfig = &ic
	}
	if r.ToolConfig != nil {
		tc := *r.ToolConfig
		tc.Tools = append([]ToolSpec(nil), r.ToolConfig.Tools...)
		out.ToolConfig = &tc
	}
	if r.GuardrailConfig != nil {
		gc := *r.GuardrailConfig
		out.GuardrailConfig = &gc
	}
	if r.AdditionalModelRequestFields != nil {
		m := make(map[string]any, len(r.AdditionalModelRequestFields))
		for k, v := range r.AdditionalModelRequestFields {
			m[k] = v
		}
		out.AdditionalModelRequestFields = m
	}
	if r.PerformanceConfig != nil {
		pc := *r.PerformanceConfig
		out.PerformanceConfig = &pc
	}
	if r.Models != nil {
		out.Models = append([]string(nil), r.Models...)
	}
	if r.Regions != nil {
		out.Regions = append([]string(nil), r.Regions...)
	}
	return out
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: m.Role, Content: append([]Block(nil), m.Content...)}
	}
	return out
}

// AttemptRecord describes one RPC invocation against one (model, region)
// target within a request's retry loop.
type AttemptRecord struct {
	ModelName        string     `json:"model_name"`
	Region           string     `json:"region"`
	AccessMethodUsed string     `json:"access_method_used"`
	AttemptNumber    int        `json:"attempt_number"` // 1-based
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Success          bool       `json:"success"`
	Error            string     `json:"error,omitempty"`
}

// Duration returns EndTime-StartTime, or zero if the attempt hasn't completed.
func (a AttemptRecord) Duration() time.Duration {
	if a.EndTime == nil {
		return 0
	}
	return a.EndTime.Sub(a.StartTime)
}

// Usage reports token accounting for a completed converse call.
type Usage struct {
	InputTokens            int `json:"input_tokens"`
	OutputTokens           int `json:"output_tokens"`
	TotalTokens            int `json:"total_tokens"`
	CacheReadInputTokens   int `json:"cache_read_input_tokens,omitempty"`
	CacheWriteInputTokens  int `json:"cache_write_input_tokens,omitempty"`
}

// RawResponse is the provider's blocking converse result, at the
// abstraction this library consumes (spec.md §6).
type RawResponse struct {
	Content                      []Block
	StopReason                   string
	Usage                        Usage
	LatencyMs                    int64
	AdditionalModelResponseFields map[string]any
}

// Response is the normalized result of a single converse call.
type Response struct {
	Success          bool            `json:"success"`
	Raw              *RawResponse    `json:"-"`
	ModelUsed        string          `json:"model_used,omitempty"`
	RegionUsed       string          `json:"region_used,omitempty"`
	AccessMethodUsed string          `json:"access_method_used,omitempty"`
	Attempts         []AttemptRecord `json:"attempts"`
	TotalDurationMs  int64           `json:"total_duration_ms"`
	APILatencyMs     *int64          `json:"api_latency_ms,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
	FeaturesDisabled []FeatureTag    `json:"features_disabled,omitempty"`
}

// Text concatenates all BlockText content in the raw response, in order.
func (r Response) Text() string {
	if r.Raw == nil {
		return ""
	}
	var sb []byte
	for _, b := range r.Raw.Content {
		if b.Kind == BlockText {
			sb = append(sb, b.Text...)
		}
	}
	return string(sb)
}

// StopReason returns the raw response's stop reason, or "" if absent.
func (r Response) StopReason() string {
	if r.Raw == nil {
		return ""
	}
	return r.Raw.StopReason
}

// MidStreamException records a fault that occurred after a streaming
// response had already emitted content.
type MidStreamException struct {
	Position  int    `json:"position"`
	Model     string `json:"model"`
	Region    string `json:"region"`
	ErrorType string `json:"error_type"`
	Recovered bool   `json:"recovered"`
}

// StreamingResponse extends Response with the streaming-specific fields
// of spec.md §3.
type StreamingResponse struct {
	Response

	ContentParts        []string              `json:"content_parts"`
	StreamPosition       int                   `json:"stream_position"`
	StreamErrors         []string              `json:"stream_errors,omitempty"`
	MidStreamExceptions  []MidStreamException  `json:"mid_stream_exceptions,omitempty"`
	TargetSwitches       int                   `json:"target_switches"`
}

// RegionAssignment is the Parallel Executor's per-request region plan.
type RegionAssignment struct {
	RequestID       string   `json:"request_id"`
	AssignedRegions []string `json:"assigned_regions"`
	Priority        int      `json:"priority"`
}

// ExecutionStats aggregates per-attempt outcomes across a parallel batch.
type ExecutionStats struct {
	Total                 int            `json:"total"`
	Successful             int           `json:"successful"`
	Failed                 int           `json:"failed"`
	AvgDurationMs          float64       `json:"avg_duration_ms"`
	MaxDurationMs          int64         `json:"max_duration_ms"`
	MinDurationMs          int64         `json:"min_duration_ms"`
	MaxObservedConcurrency int           `json:"max_observed_concurrency"`
	RegionDistribution     map[string]int `json:"region_distribution"`
}

// ParallelResponse is the aggregated result of ConverseParallel.
type ParallelResponse struct {
	OverallSuccess   bool                        `json:"overall_success"`
	PerRequest       map[string]Response         `json:"per_request"`
	RegionAssignments map[string]RegionAssignment `json:"region_assignments,omitempty"`
	TotalDurationMs  int64                       `json:"total_duration_ms"`
	Stats            ExecutionStats              `json:"stats"`
	Warnings         []string                    `json:"warnings,omitempty"`
}

// FeatureTag is a closed set of request capabilities the Content Filter
// can strip and later restore.
type FeatureTag string

const (
	FeatureImageProcessing     FeatureTag = "image_processing"
	FeatureDocumentProcessing  FeatureTag = "document_processing"
	FeatureVideoProcessing     FeatureTag = "video_processing"
	FeatureToolUse             FeatureTag = "tool_use"
	FeatureGuardrails          FeatureTag = "guardrails"
	FeaturePromptCaching       FeatureTag = "prompt_caching"
	FeatureStreaming           FeatureTag = "streaming"
	FeatureReasoning           FeatureTag = "reasoning"
	FeatureAdditionalModelReqFields FeatureTag = "additional_model_request_fields"
)
