// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

func sampleRequest() convtypes.Request {
	return convtypes.Request{
		RequestID: "r1",
		Messages: []convtypes.Message{
			{Role: convtypes.RoleUser, Content: []convtypes.Block{
				{Kind: convtypes.BlockText, Text: "look at this"},
				{Kind: convtypes.BlockImage, Format: "png", Source: &convtypes.MediaSource{Bytes: []byte("x")}},
			}},
			{Role: convtypes.RoleUser, Content: []convtypes.Block{
				{Kind: convtypes.BlockImage, Format: "png"},
			}},
		},
		ToolConfig: &convtypes.ToolConfig{Tools: []convtypes.ToolSpec{{Name: "calc"}}},
	}
}

func TestFilterRoundTrip(t *testing.T) {
	req := sampleRequest()
	f := New(req)

	applied := f.Apply(map[FeatureTag]struct{}{ImageProcessing: {}})
	require.Len(t, applied.Messages, 1, "the second message becomes empty and is dropped")
	require.Len(t, applied.Messages[0].Content, 1)
	assert.Equal(t, convtypes.BlockText, applied.Messages[0].Content[0].Kind)

	restored := f.Restore(map[FeatureTag]struct{}{ImageProcessing: {}})
	require.Len(t, restored.Messages, 2)
	assert.Equal(t, req.Messages, restored.Messages)
}

func TestFilterApplyEmptyIsIdentity(t *testing.T) {
	req := sampleRequest()
	f := New(req)
	applied := f.Apply(nil)
	assert.Equal(t, req.Messages, applied.Messages)
}

func TestFilterRemovesToolConfig(t *testing.T) {
	req := sampleRequest()
	f := New(req)
	applied := f.Apply(map[FeatureTag]struct{}{ToolUse: {}})
	assert.Nil(t, applied.ToolConfig)

	restored := f.Restore(map[FeatureTag]struct{}{ToolUse: {}})
	require.NotNil(t, restored.ToolConfig)
	assert.Equal(t, req.ToolConfig.Tools, restored.ToolConfig.Tools)
}

func TestFilterIdempotentReapply(t *testing.T) {
	req := sampleRequest()
	f := New(req)
	first := f.Apply(map[FeatureTag]struct{}{ImageProcessing: {}})
	second := f.Apply(map[FeatureTag]struct{}{ImageProcessing: {}})
	assert.Equal(t, first.Messages, second.Messages)
}

func TestShouldRestoreForModel(t *testing.T) {
	req := sampleRequest()
	f := New(req)
	f.Apply(map[FeatureTag]struct{}{ImageProcessing: {}, ToolUse: {}})

	ok, restorable := f.ShouldRestoreForModel(true, false, false, false, true)
	assert.True(t, ok)
	_, hasImage := restorable[ImageProcessing]
	assert.True(t, hasImage)
	_, hasTools := restorable[ToolUse]
	assert.False(t, hasTools)
}
