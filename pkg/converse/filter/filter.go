// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filter implements the Content Filter: a stateful, reversible
// transform over a converse request that removes blocks and
// request-level fields tied to a disabled feature, and can restore them
// at their original indices later in the same request's retry loop.
package filter

import "github.com/AleutianAI/converse/pkg/converse/convtypes"

// FeatureTag re-exports convtypes.FeatureTag for callers that only need
// the filter package.
type FeatureTag = convtypes.FeatureTag

const (
	ImageProcessing    = convtypes.FeatureImageProcessing
	DocumentProcessing = convtypes.FeatureDocumentProcessing
	VideoProcessing    = convtypes.FeatureVideoProcessing
	ToolUse            = convtypes.FeatureToolUse
	Guardrails         = convtypes.FeatureGuardrails
	PromptCaching      = convtypes.FeaturePromptCaching
	Streaming          = convtypes.FeatureStreaming
	Reasoning          = convtypes.FeatureReasoning
	AdditionalFields   = convtypes.FeatureAdditionalModelReqFields
)

// removedBlock records one block pulled out of a message by Apply, so
// Restore can reinsert it at the same position.
type removedBlock struct {
	messageIndex int
	blockIndex   int
	block        convtypes.Block
}

// removedMessage records a message that became empty after block removal
// and was dropped entirely.
type removedMessage struct {
	messageIndex int
	message      convtypes.Message
}

// Filter holds an immutable snapshot of the original request and the
// bookkeeping needed to reverse any feature-driven removal.
//
// Filter is per-request, never shared across requests or goroutines
// (spec.md §5).
type Filter struct {
	original convtypes.Request

	disabled map[FeatureTag]struct{}

	removedBlocks   map[FeatureTag][]removedBlock
	removedMessages map[FeatureTag][]removedMessage

	removedToolConfig      *convtypes.ToolConfig
	removedGuardrailConfig *convtypes.GuardrailConfig
	removedStreaming       bool
	removedAdditionalFields map[string]any
}

// New creates a Filter from an immutable snapshot of the original request.
func New(original convtypes.Request) *Filter {
	return &Filter{
		original:        original.Clone(),
		disabled:        make(map[FeatureTag]struct{}),
		removedBlocks:   make(map[FeatureTag][]removedBlock),
		removedMessages: make(map[FeatureTag][]removedMessage),
	}
}

// DisabledFeatures returns the currently-disabled feature set.
func (f *Filter) DisabledFeatures() map[FeatureTag]struct{} {
	out := make(map[FeatureTag]struct{}, len(f.disabled))
	for k := range f.disabled {
		out[k] = struct{}{}
	}
	return out
}

// Original returns a clone of the immutable original request.
func (f *Filter) Original() convtypes.Request {
	return f.original.Clone()
}

// tagForBlock returns the feature tag governing a block kind, or "" if
// the block kind is never filter-managed (e.g. plain text).
func tagForBlock(kind convtypes.BlockKind) FeatureTag {
	switch kind {
	case convtypes.BlockImage:
		return ImageProcessing
	case convtypes.BlockDocument:
		return DocumentProcessing
	case convtypes.BlockVideo:
		return VideoProcessing
	case convtypes.BlockToolUse, convtypes.BlockToolResult:
		return ToolUse
	case convtypes.BlockGuard:
		return Guardrails
	case convtypes.BlockCachePoint:
		return PromptCaching
	case convtypes.BlockReasoning:
		return Reasoning
	default:
		return ""
	}
}

// Apply returns a new request with all blocks and request-level fields
// tied to any tag in disabled removed. Removal is idempotent: calling
// Apply repeatedly with the same or a growing disabled set never
// re-removes what's already gone, and always starts from the immutable
// original so a shrinking disabled set restores automatically.
func (f *Filter) Apply(disabled map[FeatureTag]struct{}) convtypes.Request {
	f.disabled = make(map[FeatureTag]struct{}, len(disabled))
	for k := range disabled {
		f.disabled[k] = struct{}{}
	}
	f.removedBlocks = make(map[FeatureTag][]removedBlock)
	f.removedMessages = make(map[FeatureTag][]removedMessage)
	f.removedToolConfig = nil
	f.removedGuardrailConfig = nil
	f.removedStreaming = false
	f.removedAdditionalFields = nil

	out := f.original.Clone()

	var newMessages []convtypes.Message
	for mi, msg := range out.Messages {
		var kept []convtypes.Block
		for bi, b := range msg.Content {
			tag := tagForBlock(b.Kind)
			if tag != "" {
				if _, isDisabled := f.disabled[tag]; isDisabled {
					f.removedBlocks[tag] = append(f.removedBlocks[tag], removedBlock{
						messageIndex: mi, blockIndex: bi, block: b,
					})
					continue
				}
			}
			kept = append(kept, b)
		}
		if len(kept) == 0 && len(msg.Content) > 0 {
			// All content removed: drop the message, remember it under
			// the tag of its first removed block so restore can find it.
			tag := tagForBlock(msg.Content[0].Kind)
			f.removedMessages[tag] = append(f.removedMessages[tag], removedMessage{
				messageIndex: mi, message: msg,
			})
			continue
		}
		msg.Content = kept
		newMessages = append(newMessages, msg)
	}
	out.Messages = newMessages

	if _, disabled := f.disabled[ToolUse]; disabled && out.ToolConfig != nil {
		f.removedToolConfig = out.ToolConfig
		out.ToolConfig = nil
	}
	if _, disabled := f.disabled[Guardrails]; disabled && out.GuardrailConfig != nil {
		f.removedGuardrailConfig = out.GuardrailConfig
		out.GuardrailConfig = nil
	}
	if _, disabled := f.disabled[Streaming]; disabled && out.Streaming {
		f.removedStreaming = true
		out.Streaming = false
	}
	if _, disabled := f.disabled[AdditionalFields]; disabled && out.AdditionalModelRequestFields != nil {
		f.removedAdditionalFields = out.AdditionalModelRequestFields
		out.AdditionalModelRequestFields = nil
	}

	return out
}

// Restore returns a new request with previously removed blocks and
// request-level fields reinserted at their original indices, for the
// given subset of features.
func (f *Filter) Restore(features map[FeatureTag]struct{}) convtypes.Request {
	stillDisabled := make(map[FeatureTag]struct{}, len(f.disabled))
	for tag := range f.disabled {
		if _, restore := features[tag]; !restore {
			stillDisabled[tag] = struct{}{}
		}
	}
	return f.Apply(stillDisabled)
}

// ShouldRestoreForModel inspects catalog metadata about a model's
// modalities and streaming support and returns whether any currently
// disabled feature can be restored for it, plus which ones.
func (f *Filter) ShouldRestoreForModel(supportsImage, supportsDocument, supportsVideo, supportsTools, supportsStreaming bool) (bool, map[FeatureTag]struct{}) {
	restorable := make(map[FeatureTag]struct{})
	check := func(tag FeatureTag, supported bool) {
		if _, disabled := f.disabled[tag]; disabled && supported {
			restorable[tag] = struct{}{}
		}
	}
	check(ImageProcessing, supportsImage)
	check(DocumentProcessing, supportsDocument)
	check(VideoProcessing, supportsVideo)
	check(ToolUse, supportsTools)
	check(Streaming, supportsStreaming)
	return len(restorable) > 0, restorable
}
