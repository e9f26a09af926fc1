// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

func validRequest() *convtypes.Request {
	return &convtypes.Request{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Messages: []convtypes.Message{
			{Role: convtypes.RoleUser, Content: []convtypes.Block{
				{Kind: convtypes.BlockText, Text: "hi"},
			}},
		},
	}
}

func TestRequestValid(t *testing.T) {
	require.NoError(t, Request(validRequest(), DefaultMaxBlockBytes))
}

func TestRequestRejectsEmptyMessages(t *testing.T) {
	r := validRequest()
	r.Messages = nil
	assert.Error(t, Request(r, DefaultMaxBlockBytes))
}

func TestRequestRejectsBadRole(t *testing.T) {
	r := validRequest()
	r.Messages[0].Role = "system"
	assert.Error(t, Request(r, DefaultMaxBlockBytes))
}

func TestRequestRejectsEmptyTextBlock(t *testing.T) {
	r := validRequest()
	r.Messages[0].Content[0].Text = ""
	assert.Error(t, Request(r, DefaultMaxBlockBytes))
}

func TestRequestRejectsMediaBlockWithoutSource(t *testing.T) {
	r := validRequest()
	r.Messages[0].Content = append(r.Messages[0].Content, convtypes.Block{Kind: convtypes.BlockImage, Format: "png"})
	assert.Error(t, Request(r, DefaultMaxBlockBytes))
}

func TestRequestEnforcesBlockSizeCeiling(t *testing.T) {
	r := validRequest()
	r.Messages[0].Content = []convtypes.Block{
		{Kind: convtypes.BlockImage, Format: "png", Source: &convtypes.MediaSource{Bytes: make([]byte, 10)}},
	}
	assert.NoError(t, Request(r, 20))
	assert.Error(t, Request(r, 5))
}

func TestRequestRejectsBadUUID(t *testing.T) {
	r := validRequest()
	r.RequestID = "not-a-uuid"
	assert.Error(t, Request(r, DefaultMaxBlockBytes))
}

func TestRequestAllowsEmptyRequestID(t *testing.T) {
	r := validRequest()
	r.RequestID = ""
	assert.NoError(t, Request(r, DefaultMaxBlockBytes))
}
