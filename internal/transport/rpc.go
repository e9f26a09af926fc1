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
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/AleutianAI/converse/pkg/converse/assemble"
	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

// Target identifies the concrete model/inference-profile ID and access
// method to address a single Converse/ConverseStream call, as resolved
// by the catalog for one (model name, region) pair.
type Target struct {
	// ID is the ModelID (direct access) or InferenceProfileID (CRIS
	// access) to place in the request's modelId field.
	ID               string
	AccessMethodUsed string
}

// Converse performs one blocking bedrockruntime.Converse call and
// normalizes the result into a convtypes.RawResponse.
func Converse(ctx context.Context, client *bedrockruntime.Client, target Target, req convtypes.Request) (convtypes.RawResponse, error) {
	input, err := buildConverseInput(target, req)
	if err != nil {
		return convtypes.RawResponse{}, err
	}

	start := time.Now()
	out, err := client.Converse(ctx, input)
	latency := time.Since(start)
	if err != nil {
		return convtypes.RawResponse{}, err
	}

	var content []convtypes.Block
	var stopReason string
	if msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		content = blocksFromAWS(msgOutput.Value.Content)
	}
	stopReason = string(out.StopReason)

	raw := convtypes.RawResponse{
		Content:     content,
		StopReason:  stopReason,
		LatencyMs:   latency.Milliseconds(),
		Usage:       usageFromAWS(out.Usage),
	}
	return raw, nil
}

// ConverseStream performs one bedrockruntime.ConverseStream call and
// returns a channel of normalized assemble.Event, closed when the AWS
// event stream is exhausted or the call fails. Grounded on the
// teacher's processSSEStream/handleSSEEvent event-switch idiom,
// adapted from text/event-stream framing to the AWS eventstream
// decoder's typed event union.
func ConverseStream(ctx context.Context, client *bedrockruntime.Client, target Target, req convtypes.Request) (<-chan assemble.Event, error) {
	input, err := buildConverseStreamInput(target, req)
	if err != nil {
		return nil, err
	}

	out, err := client.ConverseStream(ctx, input)
	if err != nil {
		return nil, err
	}

	events := make(chan assemble.Event, 16)
	stream := out.GetStream()

	go func() {
		defer close(events)
		defer stream.Close()

		for {
			select {
			case <-ctx.Done():
				events <- assemble.Event{Kind: assemble.EventException, ExceptionType: "ContextCancelled", ExceptionMessage: ctx.Err().Error()}
				return
			case ev, ok := <-stream.Events():
				if !ok {
					return
				}
				if translated, emit := translateEvent(ev); emit {
					events <- translated
				}
			}
		}
	}()

	return events, nil
}

func buildConverseInput(target Target, req convtypes.Request) (*bedrockruntime.ConverseInput, error) {
	messages, err := messagesToAWS(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:         &target.ID,
		Messages:        messages,
		System:          systemBlocksToAWS(req.SystemPrompts),
		InferenceConfig: inferenceConfigToAWS(req.InferenceConfig),
	}
	if req.ToolConfig != nil {
		input.ToolConfig = toolConfigToAWS(*req.ToolConfig)
	}
	if req.GuardrailConfig != nil {
		input.GuardrailConfig = guardrailConfigToAWS(*req.GuardrailConfig)
	}
	if req.AdditionalModelRequestFields != nil {
		input.AdditionalModelRequestFields = document.NewLazyDocument(req.AdditionalModelRequestFields)
	}
	if req.PerformanceConfig != nil && req.PerformanceConfig.Latency != "" {
		input.PerformanceConfig = &types.PerformanceConfiguration{Latency: types.PerformanceConfigLatency(req.PerformanceConfig.Latency)}
	}
	return input, nil
}

func buildConverseStreamInput(target Target, req convtypes.Request) (*bedrockruntime.ConverseStreamInput, error) {
	blocking, err := buildConverseInput(target, req)
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.ConverseStreamInput{
		ModelId:                      blocking.ModelId,
		Messages:                     blocking.Messages,
		System:                       blocking.System,
		InferenceConfig:              blocking.InferenceConfig,
		ToolConfig:                   blocking.ToolConfig,
		GuardrailConfig:              guardrailStreamConfigToAWS(req.GuardrailConfig),
		AdditionalModelRequestFields: blocking.AdditionalModelRequestFields,
		PerformanceConfig:            blocking.PerformanceConfig,
	}, nil
}

func messagesToAWS(msgs []convtypes.Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		blocks, err := blocksToAWS(m.Content)
		if err != nil {
			return nil, fmt.Errorf("transport: converting message content: %w", err)
		}
		out = append(out, types.Message{
			Role:    types.ConversationRole(m.Role),
			Content: blocks,
		})
	}
	return out, nil
}

func blocksToAWS(blocks []convtypes.Block) ([]types.ContentBlock, error) {
	out := make([]types.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		ab, err := blockToAWS(b)
		if err != nil {
			return nil, err
		}
		if ab != nil {
			out = append(out, ab)
		}
	}
	return out, nil
}

func blockToAWS(b convtypes.Block) (types.ContentBlock, error) {
	switch b.Kind {
	case convtypes.BlockText:
		return &types.ContentBlockMemberText{Value: b.Text}, nil
	case convtypes.BlockImage:
		return &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: types.ImageFormat(b.Format),
			Source: mediaSourceToAWSImage(b.Source),
		}}, nil
	case convtypes.BlockDocument:
		return &types.ContentBlockMemberDocument{Value: types.DocumentBlock{
			Format: types.DocumentFormat(b.Format),
			Name:   &b.Name,
			Source: mediaSourceToAWSDocument(b.Source),
		}}, nil
	case convtypes.BlockVideo:
		return &types.ContentBlockMemberVideo{Value: types.VideoBlock{
			Format: types.VideoFormat(b.Format),
			Source: mediaSourceToAWSVideo(b.Source),
		}}, nil
	case convtypes.BlockToolUse:
		return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: &b.ToolUseID,
			Name:      &b.ToolName,
			Input:     document.NewLazyDocument(b.ToolInput),
		}}, nil
	case convtypes.BlockToolResult:
		content, err := blocksToAWS(b.ToolResultContent)
		if err != nil {
			return nil, err
		}
		trBlocks := make([]types.ToolResultContentBlock, 0, len(content))
		for _, c := range content {
			if text, ok := c.(*types.ContentBlockMemberText); ok {
				trBlocks = append(trBlocks, &types.ToolResultContentBlockMemberText{Value: text.Value})
			}
		}
		status := types.ToolResultStatusSuccess
		if b.ToolResultIsError {
			status = types.ToolResultStatusError
		}
		return &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
			ToolUseId: &b.ToolUseID,
			Content:   trBlocks,
			Status:    status,
		}}, nil
	case convtypes.BlockGuard:
		return &types.ContentBlockMemberGuardContent{Value: &types.GuardrailConverseContentBlockMemberText{
			Value: types.GuardrailConverseTextBlock{Text: &b.GuardText},
		}}, nil
	case convtypes.BlockReasoning:
		return &types.ContentBlockMemberReasoningContent{Value: &types.ReasoningContentBlockMemberReasoningText{
			Value: types.ReasoningTextBlock{Text: &b.ReasoningText},
		}}, nil
	case convtypes.BlockCachePoint:
		return &types.ContentBlockMemberCachePoint{Value: types.CachePointBlock{Type: types.CachePointTypeDefault}}, nil
	default:
		return nil, fmt.Errorf("transport: unknown block kind %q", b.Kind)
	}
}

func blocksFromAWS(blocks []types.ContentBlock) []convtypes.Block {
	out := make([]convtypes.Block, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case *types.ContentBlockMemberText:
			out = append(out, convtypes.Block{Kind: convtypes.BlockText, Text: v.Value})
		case *types.ContentBlockMemberToolUse:
			input := map[string]any{}
			_ = v.Value.Input.UnmarshalSmithyDocument(&input)
			out = append(out, convtypes.Block{
				Kind:      convtypes.BlockToolUse,
				ToolUseID: derefStr(v.Value.ToolUseId),
				ToolName:  derefStr(v.Value.Name),
				ToolInput: input,
			})
		case *types.ContentBlockMemberReasoningContent:
			if text, ok := v.Value.(*types.ReasoningContentBlockMemberReasoningText); ok {
				out = append(out, convtypes.Block{Kind: convtypes.BlockReasoning, ReasoningText: derefStr(text.Value.Text)})
			}
		}
	}
	return out
}

func systemBlocksToAWS(prompts []string) []types.SystemContentBlock {
	if len(prompts) == 0 {
		return nil
	}
	out := make([]types.SystemContentBlock, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, &types.SystemContentBlockMemberText{Value: p})
	}
	return out
}

func inferenceConfigToAWS(cfg *convtypes.InferenceConfig) *types.InferenceConfiguration {
	if cfg == nil {
		return nil
	}
	out := &types.InferenceConfiguration{StopSequences: cfg.StopSequences}
	if cfg.MaxTokens != nil {
		v := int32(*cfg.MaxTokens)
		out.MaxTokens = &v
	}
	if cfg.Temperature != nil {
		v := float32(*cfg.Temperature)
		out.Temperature = &v
	}
	if cfg.TopP != nil {
		v := float32(*cfg.TopP)
		out.TopP = &v
	}
	return out
}

func toolConfigToAWS(cfg convtypes.ToolConfig) *types.ToolConfiguration {
	tools := make([]types.Tool, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		name := t.Name
		desc := t.Description
		tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        &name,
			Description: &desc,
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.InputSchema)},
		}})
	}
	out := &types.ToolConfiguration{Tools: tools}
	switch cfg.ToolChoice {
	case "auto":
		out.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
	case "any":
		out.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
	}
	return out
}

func guardrailConfigToAWS(cfg convtypes.GuardrailConfig) *types.GuardrailConfiguration {
	return &types.GuardrailConfiguration{
		GuardrailIdentifier: &cfg.GuardrailID,
		GuardrailVersion:    &cfg.Version,
		Trace:               guardrailTrace(cfg.Trace),
	}
}

func guardrailStreamConfigToAWS(cfg *convtypes.GuardrailConfig) *types.GuardrailStreamConfiguration {
	if cfg == nil {
		return nil
	}
	return &types.GuardrailStreamConfiguration{
		GuardrailIdentifier: &cfg.GuardrailID,
		GuardrailVersion:    &cfg.Version,
		Trace:               guardrailTrace(cfg.Trace),
	}
}

func guardrailTrace(enabled bool) types.GuardrailTrace {
	if enabled {
		return types.GuardrailTraceEnabled
	}
	return types.GuardrailTraceDisabled
}

func mediaSourceToAWSImage(s *convtypes.MediaSource) types.ImageSource {
	if s == nil {
		return nil
	}
	if len(s.Bytes) > 0 {
		return &types.ImageSourceMemberBytes{Value: s.Bytes}
	}
	return nil
}

func mediaSourceToAWSDocument(s *convtypes.MediaSource) types.DocumentSource {
	if s == nil {
		return nil
	}
	if len(s.Bytes) > 0 {
		return &types.DocumentSourceMemberBytes{Value: s.Bytes}
	}
	return nil
}

func mediaSourceToAWSVideo(s *convtypes.MediaSource) types.VideoSource {
	if s == nil {
		return nil
	}
	if len(s.Bytes) > 0 {
		return &types.VideoSourceMemberBytes{Value: s.Bytes}
	}
	if s.Reference != "" {
		return &types.VideoSourceMemberS3Location{Value: types.S3Location{Uri: &s.Reference}}
	}
	return nil
}

func usageFromAWS(u *types.TokenUsage) convtypes.Usage {
	if u == nil {
		return convtypes.Usage{}
	}
	out := convtypes.Usage{
		InputTokens:  int(derefI32(u.InputTokens)),
		OutputTokens: int(derefI32(u.OutputTokens)),
		TotalTokens:  int(derefI32(u.TotalTokens)),
	}
	if u.CacheReadInputTokens != nil {
		out.CacheReadInputTokens = int(*u.CacheReadInputTokens)
	}
	if u.CacheWriteInputTokens != nil {
		out.CacheWriteInputTokens = int(*u.CacheWriteInputTokens)
	}
	return out
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefI32(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
