// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assemble

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

func TestAssembleBlocking(t *testing.T) {
	raw := convtypes.RawResponse{
		Content:   []convtypes.Block{{Kind: convtypes.BlockText, Text: "hello"}},
		Usage:     convtypes.Usage{InputTokens: 3, OutputTokens: 1},
		LatencyMs: 120,
	}
	attempts := []convtypes.AttemptRecord{{AttemptNumber: 1, Success: true}}

	resp := AssembleBlocking(raw, "claude-3", "us-east-1", "direct", attempts, nil, nil)
	assert.True(t, resp.Success)
	assert.Equal(t, "claude-3", resp.ModelUsed)
	require.NotNil(t, resp.APILatencyMs)
	assert.Equal(t, int64(120), *resp.APILatencyMs)
	assert.Equal(t, "hello", resp.Text())
}

func TestAssembleBlockingSurfacesRetryWarnings(t *testing.T) {
	raw := convtypes.RawResponse{Content: []convtypes.Block{{Kind: convtypes.BlockText, Text: "hi"}}}
	attempts := []convtypes.AttemptRecord{{AttemptNumber: 1, Success: true}}

	resp := AssembleBlocking(raw, "claude-3", "us-east-1", "direct", attempts, nil, []string{`removed incompatible additional model request field "anthropic_beta" for claude-3@us-east-1`})
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "anthropic_beta")
}

func TestAssembleFailure(t *testing.T) {
	resp := AssembleFailure(nil, []string{"all targets exhausted"})
	assert.False(t, resp.Success)
	assert.Equal(t, []string{"all targets exhausted"}, resp.Warnings)
}

func TestStreamAssemblerAccumulatesText(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Kind: EventContentBlockStart, Index: 0, BlockKind: convtypes.BlockText}
	events <- Event{Kind: EventContentDelta, Index: 0, Text: "Hel"}
	events <- Event{Kind: EventContentDelta, Index: 0, Text: "lo"}
	events <- Event{Kind: EventContentBlockStop, Index: 0}
	events <- Event{Kind: EventMessageStop, StopReason: "end_turn"}
	events <- Event{Kind: EventMetadata, Usage: convtypes.Usage{InputTokens: 2, OutputTokens: 2}}
	close(events)

	sa := NewStreamAssembler(events, "claude-3", "us-east-1")
	ctx := context.Background()
	var got string
	for {
		chunk, ok := sa.Next(ctx)
		got += chunk
		if !ok {
			break
		}
	}
	assert.Equal(t, "Hello", got)

	final := sa.Finalize(nil, "direct", time.Now())
	assert.Equal(t, "end_turn", final.StopReason())
	assert.Equal(t, []string{"Hello"}, final.ContentParts)
	assert.Equal(t, 5, final.StreamPosition)
	assert.Equal(t, 0, final.TargetSwitches)
}

func TestStreamAssemblerRecordsMidStreamExceptionAndSwitch(t *testing.T) {
	events := make(chan Event, 4)
	events <- Event{Kind: EventContentBlockStart, Index: 0, BlockKind: convtypes.BlockText}
	events <- Event{Kind: EventContentDelta, Index: 0, Text: "partial"}
	events <- Event{Kind: EventException, ExceptionType: "ModelStreamErrorException", ExceptionMessage: "boom"}
	close(events)

	sa := NewStreamAssembler(events, "claude-3", "us-east-1")
	ctx := context.Background()
	for {
		_, ok := sa.Next(ctx)
		if !ok {
			break
		}
	}

	sa.SwitchTarget("claude-3", "us-west-2")

	final := sa.Finalize(nil, "direct", time.Now())
	require.Len(t, final.MidStreamExceptions, 1)
	assert.True(t, final.MidStreamExceptions[0].Recovered)
	assert.Equal(t, 1, final.TargetSwitches)
	assert.Equal(t, "us-west-2", final.RegionUsed)
}

func TestStreamAssemblerRecoversMidStreamException(t *testing.T) {
	firstEvents := make(chan Event, 4)
	firstEvents <- Event{Kind: EventContentBlockStart, Index: 0, BlockKind: convtypes.BlockText}
	firstEvents <- Event{Kind: EventContentDelta, Index: 0, Text: "Hello"}
	firstEvents <- Event{Kind: EventException, ExceptionType: "ModelStreamErrorException", ExceptionMessage: "boom"}
	close(firstEvents)

	secondEvents := make(chan Event, 4)
	secondEvents <- Event{Kind: EventContentDelta, Index: 0, Text: " world"}
	secondEvents <- Event{Kind: EventMessageStop, StopReason: "end_turn"}
	close(secondEvents)

	sa := NewStreamAssembler(firstEvents, "claude-3", "us-east-1")

	var recoveryCalls int
	var capturedPartial string
	sa.SetRecoveryFunc(func(ctx context.Context, partialText string) (<-chan Event, string, string, bool) {
		recoveryCalls++
		capturedPartial = partialText
		return secondEvents, "claude-3", "us-west-2", true
	})

	ctx := context.Background()
	var got string
	for {
		chunk, ok := sa.Next(ctx)
		got += chunk
		if !ok {
			break
		}
	}

	assert.Equal(t, "Hello world", got)
	assert.Equal(t, "Hello", capturedPartial)
	assert.Equal(t, 1, recoveryCalls)

	final := sa.Finalize(nil, "direct", time.Now())
	require.Len(t, final.MidStreamExceptions, 1)
	assert.True(t, final.MidStreamExceptions[0].Recovered)
	assert.Equal(t, 1, final.TargetSwitches)
	assert.Equal(t, "us-west-2", final.RegionUsed)
	assert.Equal(t, []string{"Hello", " world"}, final.ContentParts)
}

func TestStreamAssemblerGivesUpWhenRecoveryExhausted(t *testing.T) {
	events := make(chan Event, 4)
	events <- Event{Kind: EventContentBlockStart, Index: 0, BlockKind: convtypes.BlockText}
	events <- Event{Kind: EventContentDelta, Index: 0, Text: "partial"}
	events <- Event{Kind: EventException, ExceptionType: "ModelStreamErrorException", ExceptionMessage: "boom"}
	close(events)

	sa := NewStreamAssembler(events, "claude-3", "us-east-1")
	sa.SetRecoveryFunc(func(ctx context.Context, partialText string) (<-chan Event, string, string, bool) {
		return nil, "", "", false
	})

	ctx := context.Background()
	for {
		_, ok := sa.Next(ctx)
		if !ok {
			break
		}
	}

	final := sa.Finalize(nil, "direct", time.Now())
	require.Len(t, final.MidStreamExceptions, 1)
	assert.False(t, final.MidStreamExceptions[0].Recovered)
	assert.Equal(t, 0, final.TargetSwitches)
}

func TestStreamAssemblerToolUseBlock(t *testing.T) {
	events := make(chan Event, 4)
	events <- Event{Kind: EventContentBlockStart, Index: 0, BlockKind: convtypes.BlockToolUse, ToolUseID: "t1", ToolName: "calc"}
	events <- Event{Kind: EventContentDelta, Index: 0, ToolInputDelta: `{"a":1}`}
	events <- Event{Kind: EventContentBlockStop, Index: 0}
	close(events)

	sa := NewStreamAssembler(events, "claude-3", "us-east-1")
	ctx := context.Background()
	for {
		_, ok := sa.Next(ctx)
		if !ok {
			break
		}
	}

	final := sa.Finalize(nil, "direct", time.Now())
	require.Len(t, final.Raw.Content, 1)
	b := final.Raw.Content[0]
	assert.Equal(t, convtypes.BlockToolUse, b.Kind)
	assert.Equal(t, "calc", b.ToolName)
	assert.Equal(t, float64(1), b.ToolInput["a"])
}
