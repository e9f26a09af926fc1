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
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

// RecoveryFunc re-dispatches a request to the next target after a
// mid-stream EventException, carrying partialText (everything assembled
// so far) so the orchestrator can inject it as an assistant-role prefix
// the continuation shouldn't repeat. ok is false once no further target
// can be dispatched. Set via SetRecoveryFunc; Next calls it internally,
// so an assemble caller never sees the exception unless recovery exhausts
// every remaining target.
type RecoveryFunc func(ctx context.Context, partialText string) (events <-chan Event, model, region string, ok bool)

type blockAccumulator struct {
	kind           convtypes.BlockKind
	text           strings.Builder
	toolUseID      string
	toolName       string
	toolInputJSON  strings.Builder
}

// StreamAssembler consumes a channel of normalized Event values and
// exposes a pull API (Next) for the caller to drain chunk-by-chunk,
// followed by Finalize to obtain the complete StreamingResponse. This is
// the teacher's "stream + finalizer" idiom (services/llm/client.go's
// StreamCallback plus its terminal usage/stop-reason fields), adapted
// from callback-push to channel-pull because the retry manager needs to
// interleave mid-stream target switches between Next calls.
type StreamAssembler struct {
	mu sync.Mutex

	events <-chan Event

	blocks   map[int]*blockAccumulator
	order    []int
	position int

	// indexOffset shifts a replacement stream's block indices past every
	// index already used, since a recovered continuation renumbers its
	// content blocks from 0 and would otherwise overwrite the partial
	// block the exception interrupted. segmentMaxIndex tracks the
	// current stream's highest raw index, reset on each recovery.
	indexOffset     int
	segmentMaxIndex int

	stopReason string
	usage      convtypes.Usage

	currentModel  string
	currentRegion string

	midStreamExceptions []convtypes.MidStreamException
	targetSwitches      int
	streamErrors        []string

	recover RecoveryFunc

	finalized bool
}

// NewStreamAssembler starts an assembler bound to the first target a
// stream attempt is made against.
func NewStreamAssembler(events <-chan Event, model, region string) *StreamAssembler {
	return &StreamAssembler{
		events:          events,
		blocks:          make(map[int]*blockAccumulator),
		segmentMaxIndex: -1,
		currentModel:    model,
		currentRegion:   region,
	}
}

// SetRecoveryFunc installs the callback Next uses to recover from a
// mid-stream EventException. Must be called before the first Next call
// that could observe such an event; nil disables recovery.
func (s *StreamAssembler) SetRecoveryFunc(fn RecoveryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recover = fn
}

// Next pulls and applies the next event, returning the text chunk it
// produced (if any) and whether the stream is still open. A mid-stream
// EventException is handled internally: Next calls the installed
// RecoveryFunc and, on success, keeps reading from the replacement
// channel without surfacing the exception to the caller. ok is false
// once events closes, ctx is cancelled, or recovery exhausts every
// remaining target; callers should call Finalize afterward regardless of
// ok's value.
func (s *StreamAssembler) Next(ctx context.Context) (string, bool) {
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.streamErrors = append(s.streamErrors, ctx.Err().Error())
			s.mu.Unlock()
			return "", false
		case ev, open := <-s.events:
			if !open {
				return "", false
			}
			text, exception := s.apply(ev)
			if !exception {
				return text, true
			}
			if !s.tryRecover(ctx) {
				return "", false
			}
		}
	}
}

// tryRecover invokes the installed RecoveryFunc with the content
// assembled so far and, on success, swaps the event source and marks the
// most recent mid-stream exception recovered.
func (s *StreamAssembler) tryRecover(ctx context.Context) bool {
	s.mu.Lock()
	recover := s.recover
	partial := s.partialTextLocked()
	s.mu.Unlock()

	if recover == nil {
		return false
	}

	events, model, region, ok := recover(ctx, partial)
	if !ok {
		return false
	}

	s.mu.Lock()
	s.events = events
	s.indexOffset += s.segmentMaxIndex + 1
	s.segmentMaxIndex = -1
	if n := len(s.midStreamExceptions); n > 0 && !s.midStreamExceptions[n-1].Recovered {
		s.midStreamExceptions[n-1].Recovered = true
	}
	s.currentModel = model
	s.currentRegion = region
	s.targetSwitches++
	s.mu.Unlock()
	return true
}

// partialTextLocked joins every accumulated text/reasoning block in
// order, for handing to a RecoveryFunc as the assistant-role prefix of a
// continuation request. Caller must hold s.mu.
func (s *StreamAssembler) partialTextLocked() string {
	var sb strings.Builder
	for _, idx := range s.order {
		acc := s.blocks[idx]
		if acc == nil || acc.kind == convtypes.BlockToolUse {
			continue
		}
		sb.WriteString(acc.text.String())
	}
	return sb.String()
}

// apply applies one event to the assembler's state, returning the text
// chunk it produced (if any) and whether it was an EventException.
func (s *StreamAssembler) apply(ev Event) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventContentBlockStart:
		if ev.Index > s.segmentMaxIndex {
			s.segmentMaxIndex = ev.Index
		}
		idx := ev.Index + s.indexOffset
		acc := &blockAccumulator{kind: ev.BlockKind, toolUseID: ev.ToolUseID, toolName: ev.ToolName}
		s.blocks[idx] = acc
		s.order = append(s.order, idx)
		return "", false

	case EventContentDelta:
		if ev.Index > s.segmentMaxIndex {
			s.segmentMaxIndex = ev.Index
		}
		idx := ev.Index + s.indexOffset
		acc, ok := s.blocks[idx]
		if !ok {
			acc = &blockAccumulator{kind: convtypes.BlockText}
			s.blocks[idx] = acc
			s.order = append(s.order, idx)
		}
		if ev.ToolInputDelta != "" {
			acc.toolInputJSON.WriteString(ev.ToolInputDelta)
			return "", false
		}
		acc.text.WriteString(ev.Text)
		s.position += len(ev.Text)
		return ev.Text, false

	case EventContentBlockStop:
		return "", false

	case EventMessageStop:
		s.stopReason = ev.StopReason
		return "", false

	case EventMetadata:
		s.usage = ev.Usage
		return "", false

	case EventException:
		s.midStreamExceptions = append(s.midStreamExceptions, convtypes.MidStreamException{
			Position:  s.position,
			Model:     s.currentModel,
			Region:    s.currentRegion,
			ErrorType: ev.ExceptionType,
			Recovered: false,
		})
		s.streamErrors = append(s.streamErrors, ev.ExceptionMessage)
		return "", true
	}
	return "", false
}

// SwitchTarget records a mid-stream retry-driven target change: the
// most recent recorded exception (if any, and if not already marked
// recovered) is marked Recovered, and the switch counter increments.
// Called by the orchestrator's retry loop, not by Next.
func (s *StreamAssembler) SwitchTarget(model, region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.midStreamExceptions); n > 0 && !s.midStreamExceptions[n-1].Recovered {
		s.midStreamExceptions[n-1].Recovered = true
	}
	s.currentModel = model
	s.currentRegion = region
	s.targetSwitches++
}

// Finalize assembles the complete StreamingResponse from everything
// observed so far. Safe to call once; subsequent calls return the same
// snapshot.
func (s *StreamAssembler) Finalize(attempts []convtypes.AttemptRecord, accessMethodUsed string, startedAt time.Time) convtypes.StreamingResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := convtypes.RawResponse{StopReason: s.stopReason, Usage: s.usage}
	var parts []string
	for _, idx := range s.order {
		acc := s.blocks[idx]
		b := convtypes.Block{Kind: acc.kind}
		switch acc.kind {
		case convtypes.BlockToolUse:
			b.ToolUseID = acc.toolUseID
			b.ToolName = acc.toolName
			if acc.toolInputJSON.Len() > 0 {
				var input map[string]any
				if err := json.Unmarshal([]byte(acc.toolInputJSON.String()), &input); err == nil {
					b.ToolInput = input
				}
			}
		case convtypes.BlockReasoning:
			b.ReasoningText = acc.text.String()
		default:
			b.Text = acc.text.String()
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		raw.Content = append(raw.Content, b)
	}

	var totalMs int64
	for _, a := range attempts {
		totalMs += a.Duration().Milliseconds()
	}

	base := convtypes.Response{
		Success:          s.stopReason != "" || len(raw.Content) > 0,
		Raw:              &raw,
		ModelUsed:        s.currentModel,
		RegionUsed:       s.currentRegion,
		AccessMethodUsed: accessMethodUsed,
		Attempts:         attempts,
		TotalDurationMs:  totalMs,
	}

	return convtypes.StreamingResponse{
		Response:            base,
		ContentParts:        parts,
		StreamPosition:      s.position,
		StreamErrors:        s.streamErrors,
		MidStreamExceptions: s.midStreamExceptions,
		TargetSwitches:      s.targetSwitches,
	}
}
