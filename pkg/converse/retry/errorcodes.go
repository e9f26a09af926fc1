// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retry

// Provider error codes this classifier recognizes, grounded on
// original_source/src/bedrock/retry/retry_manager.py's AWS ClientError
// code tables.
const (
	CodeThrottling          = "ThrottlingException"
	CodeServiceUnavailable  = "ServiceUnavailableException"
	CodeModelTimeout        = "ModelTimeoutException"
	CodeInternalServer      = "InternalServerException"
	CodeAccessDenied        = "AccessDeniedException"
	CodeResourceNotFound    = "ResourceNotFoundException"
	CodeValidation          = "ValidationException"
	CodeModelNotReady       = "ModelNotReadyException"
	CodeModelStreamError    = "ModelStreamErrorException"
	CodeServiceQuotaExceeded = "ServiceQuotaExceededException"
)

var defaultTransientCodes = map[string]struct{}{
	CodeThrottling:          {},
	CodeServiceUnavailable:  {},
	CodeModelTimeout:        {},
	CodeInternalServer:      {},
	CodeServiceQuotaExceeded: {},
}

var defaultAccessCodes = map[string]struct{}{
	CodeAccessDenied:     {},
	CodeResourceNotFound: {},
	CodeModelNotReady:    {},
}
