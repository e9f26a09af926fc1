// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package converse implements a resilient client library for a
// cloud-hosted multi-model "converse" inference RPC (AWS Bedrock's
// Converse/ConverseStream API). It resolves friendly model names and
// regions against a discovered catalog, retries across models and
// regions under a classified-error state machine, and assembles both
// blocking and streaming responses.
//
// The data model (Message, Block, Request, Response, ...) is defined in
// the leaf package convtypes and re-exported here by alias, so callers
// only ever see the converse package while internal components
// (filter, retry, assemble, parallel, validate) can depend on the types
// without importing this package.
package converse

import "github.com/AleutianAI/converse/pkg/converse/convtypes"

type (
	Role                = convtypes.Role
	BlockKind           = convtypes.BlockKind
	MediaSource         = convtypes.MediaSource
	Block               = convtypes.Block
	Message             = convtypes.Message
	InferenceConfig     = convtypes.InferenceConfig
	ToolConfig          = convtypes.ToolConfig
	ToolSpec            = convtypes.ToolSpec
	GuardrailConfig     = convtypes.GuardrailConfig
	PerformanceConfig   = convtypes.PerformanceConfig
	Request             = convtypes.Request
	AttemptRecord       = convtypes.AttemptRecord
	Usage               = convtypes.Usage
	RawResponse         = convtypes.RawResponse
	Response            = convtypes.Response
	MidStreamException  = convtypes.MidStreamException
	StreamingResponse   = convtypes.StreamingResponse
	RegionAssignment    = convtypes.RegionAssignment
	ExecutionStats      = convtypes.ExecutionStats
	ParallelResponse    = convtypes.ParallelResponse
	FeatureTag          = convtypes.FeatureTag
)

const (
	RoleUser      = convtypes.RoleUser
	RoleAssistant = convtypes.RoleAssistant

	BlockText       = convtypes.BlockText
	BlockImage      = convtypes.BlockImage
	BlockDocument   = convtypes.BlockDocument
	BlockVideo      = convtypes.BlockVideo
	BlockToolUse    = convtypes.BlockToolUse
	BlockToolResult = convtypes.BlockToolResult
	BlockGuard      = convtypes.BlockGuard
	BlockReasoning  = convtypes.BlockReasoning
	BlockCachePoint = convtypes.BlockCachePoint

	FeatureImageProcessing          = convtypes.FeatureImageProcessing
	FeatureDocumentProcessing       = convtypes.FeatureDocumentProcessing
	FeatureVideoProcessing          = convtypes.FeatureVideoProcessing
	FeatureToolUse                  = convtypes.FeatureToolUse
	FeatureGuardrails               = convtypes.FeatureGuardrails
	FeaturePromptCaching            = convtypes.FeaturePromptCaching
	FeatureStreaming                = convtypes.FeatureStreaming
	FeatureReasoning                = convtypes.FeatureReasoning
	FeatureAdditionalModelReqFields = convtypes.FeatureAdditionalModelReqFields
)
