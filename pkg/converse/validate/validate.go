// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate implements request validation: go-playground/validator
// struct-tag checks on Request/Message plus hand-written checks for the
// union-typed Block discriminator, which validator tags can't express.
//
// Grounded on services/orchestrator/datatypes/chat.go's chatValidate/
// RegisterValidation pattern: a package-level shared *validator.Validate
// built once in init(). No custom validation is registered; the
// per-block size ceiling is checked by hand in Request.
package validate

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

// DefaultMaxBlockBytes is the per-block payload size ceiling, matching
// the original implementation's enforced limit on image/document/video
// content before it ever reaches the wire. Overridable via
// converse.WithMaxBlockBytes.
const DefaultMaxBlockBytes int64 = 20 * 1024 * 1024

var reqValidate *validator.Validate

func init() {
	reqValidate = validator.New()
}

// blockSizeOf returns the payload size validate.Request checks against
// maxBlockBytes: the length of Source.Bytes for media blocks, or the
// byte length of Text/ReasoningText/GuardText otherwise.
func blockSizeOf(b convtypes.Block) int64 {
	switch b.Kind {
	case convtypes.BlockImage, convtypes.BlockDocument, convtypes.BlockVideo:
		if b.Source != nil {
			return int64(len(b.Source.Bytes))
		}
		return 0
	case convtypes.BlockText:
		return int64(len(b.Text))
	case convtypes.BlockReasoning:
		return int64(len(b.ReasoningText))
	case convtypes.BlockGuard:
		return int64(len(b.GuardText))
	default:
		return 0
	}
}

// blockShapeError reports a structural problem with a block that struct
// tags cannot express, because Block is a flattened tagged union rather
// than distinct Go types per kind.
func blockShapeError(kind convtypes.BlockKind, msgIndex, blockIndex int, reason string) error {
	return fmt.Errorf("message[%d].content[%d] (%s): %s", msgIndex, blockIndex, kind, reason)
}

// checkBlockShape checks that the fields required for b's Kind are
// populated and rejects unknown kinds. Fields belonging to a different
// kind are not checked.
func checkBlockShape(b convtypes.Block, msgIndex, blockIndex int) error {
	switch b.Kind {
	case convtypes.BlockText:
		if b.Text == "" {
			return blockShapeError(b.Kind, msgIndex, blockIndex, "text block has empty Text")
		}
	case convtypes.BlockImage, convtypes.BlockDocument, convtypes.BlockVideo:
		if b.Source == nil {
			return blockShapeError(b.Kind, msgIndex, blockIndex, "media block has nil Source")
		}
		if b.Source.Bytes == nil && b.Source.Reference == "" {
			return blockShapeError(b.Kind, msgIndex, blockIndex, "media block has neither Bytes nor Reference")
		}
	case convtypes.BlockToolUse:
		if b.ToolName == "" {
			return blockShapeError(b.Kind, msgIndex, blockIndex, "tool_use block has empty ToolName")
		}
	case convtypes.BlockToolResult:
		if b.ToolUseID == "" {
			return blockShapeError(b.Kind, msgIndex, blockIndex, "tool_result block has empty ToolUseID")
		}
	case convtypes.BlockGuard:
		if b.GuardText == "" {
			return blockShapeError(b.Kind, msgIndex, blockIndex, "guard block has empty GuardText")
		}
	case convtypes.BlockReasoning:
		if b.ReasoningText == "" {
			return blockShapeError(b.Kind, msgIndex, blockIndex, "reasoning block has empty ReasoningText")
		}
	case convtypes.BlockCachePoint:
		// No required payload field.
	default:
		return blockShapeError(b.Kind, msgIndex, blockIndex, "unknown block kind")
	}
	return nil
}

// Request validates r's struct-tag constraints, every block's shape, and
// every block's size against maxBlockBytes.
func Request(r *convtypes.Request, maxBlockBytes int64) error {
	if err := reqValidate.Struct(r); err != nil {
		return err
	}
	for mi, msg := range r.Messages {
		for bi, b := range msg.Content {
			if err := checkBlockShape(b, mi, bi); err != nil {
				return err
			}
			if size := blockSizeOf(b); size > maxBlockBytes {
				return fmt.Errorf("message[%d].content[%d] (%s): payload %d bytes exceeds limit %d bytes",
					mi, bi, b.Kind, size, maxBlockBytes)
			}
		}
	}
	return nil
}
