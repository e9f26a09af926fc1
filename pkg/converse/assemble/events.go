// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assemble turns provider output into the normalized Response/
// StreamingResponse shapes: AssembleBlocking for a single blocking
// converse call, and StreamAssembler for a "stream + finalizer" over a
// channel of decoded stream events, following the teacher's
// StreamCallback/terminal-fields split in services/llm/client.go.
package assemble

import "github.com/AleutianAI/converse/pkg/converse/convtypes"

// EventKind discriminates the normalized stream event union. These are
// decoded from AWS Bedrock's binary eventstream framing by
// internal/transport/events.go, which keeps this package free of any
// AWS SDK dependency.
type EventKind string

const (
	EventContentBlockStart EventKind = "content_block_start"
	EventContentDelta      EventKind = "content_delta"
	EventContentBlockStop  EventKind = "content_block_stop"
	EventMessageStop       EventKind = "message_stop"
	EventMetadata          EventKind = "metadata"
	EventException         EventKind = "exception"
)

// Event is one normalized stream event.
type Event struct {
	Kind EventKind

	// Index is the content block index this event applies to, for
	// ContentBlockStart/ContentDelta/ContentBlockStop.
	Index int

	// BlockKind names the kind of content block starting at Index
	// (ContentBlockStart only).
	BlockKind convtypes.BlockKind

	// ToolUseID/ToolName populate a tool_use ContentBlockStart.
	ToolUseID string
	ToolName  string

	// Text carries a text or reasoning delta (ContentDelta).
	Text string

	// ToolInputDelta carries a partial JSON fragment of a tool call's
	// input, to be concatenated and parsed once ContentBlockStop arrives.
	ToolInputDelta string

	// StopReason is set on MessageStop.
	StopReason string

	// Usage is set on Metadata.
	Usage convtypes.Usage

	// ExceptionType/ExceptionMessage are set on Exception.
	ExceptionType    string
	ExceptionMessage string
}
