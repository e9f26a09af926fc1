// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/AleutianAI/converse/pkg/converse/assemble"
	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

// translateEvent decodes one AWS Bedrock ConverseStream eventstream
// member into a normalized assemble.Event. ok is false for event types
// this decoder has nothing to report for (e.g. a delta whose payload
// didn't match any known member).
//
// Grounded on the teacher's processSSEStream/handleSSEEvent event-switch
// idiom in services/llm/anthropic_llm.go, adapted from text/event-stream
// framing to the AWS SDK's binary eventstream union types.
func translateEvent(ev types.ConverseStreamOutput) (assemble.Event, bool) {
	switch e := ev.(type) {
	case *types.ConverseStreamOutputMemberContentBlockStart:
		idx := int(derefI32(e.Value.ContentBlockIndex))
		out := assemble.Event{Kind: assemble.EventContentBlockStart, Index: idx, BlockKind: convtypes.BlockText}
		if toolUse, ok := e.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			out.BlockKind = convtypes.BlockToolUse
			out.ToolUseID = derefStr(toolUse.Value.ToolUseId)
			out.ToolName = derefStr(toolUse.Value.Name)
		}
		return out, true

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		idx := int(derefI32(e.Value.ContentBlockIndex))
		switch d := e.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			return assemble.Event{Kind: assemble.EventContentDelta, Index: idx, Text: d.Value}, true
		case *types.ContentBlockDeltaMemberToolUse:
			return assemble.Event{Kind: assemble.EventContentDelta, Index: idx, ToolInputDelta: derefStr(d.Value.Input)}, true
		case *types.ContentBlockDeltaMemberReasoningContent:
			if text, ok := d.Value.(*types.ReasoningContentBlockDeltaMemberText); ok {
				return assemble.Event{Kind: assemble.EventContentDelta, Index: idx, Text: text.Value}, true
			}
		}
		return assemble.Event{}, false

	case *types.ConverseStreamOutputMemberContentBlockStop:
		idx := int(derefI32(e.Value.ContentBlockIndex))
		return assemble.Event{Kind: assemble.EventContentBlockStop, Index: idx}, true

	case *types.ConverseStreamOutputMemberMessageStop:
		return assemble.Event{Kind: assemble.EventMessageStop, StopReason: string(e.Value.StopReason)}, true

	case *types.ConverseStreamOutputMemberMetadata:
		return assemble.Event{Kind: assemble.EventMetadata, Usage: usageFromAWS(e.Value.Usage)}, true

	case *types.ConverseStreamOutputMemberInternalServerException:
		return exceptionEvent("InternalServerException", e.Value.Message), true
	case *types.ConverseStreamOutputMemberModelStreamErrorException:
		return exceptionEvent("ModelStreamErrorException", e.Value.Message), true
	case *types.ConverseStreamOutputMemberValidationException:
		return exceptionEvent("ValidationException", e.Value.Message), true
	case *types.ConverseStreamOutputMemberThrottlingException:
		return exceptionEvent("ThrottlingException", e.Value.Message), true
	case *types.ConverseStreamOutputMemberServiceUnavailableException:
		return exceptionEvent("ServiceUnavailableException", e.Value.Message), true
	default:
		return assemble.Event{}, false
	}
}

func exceptionEvent(kind string, message *string) assemble.Event {
	return assemble.Event{Kind: assemble.EventException, ExceptionType: kind, ExceptionMessage: derefStr(message)}
}
