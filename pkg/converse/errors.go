// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package converse

import "github.com/AleutianAI/converse/pkg/converse/convtypes"

type (
	ConfigurationError         = convtypes.ConfigurationError
	AuthenticationError        = convtypes.AuthenticationError
	ModelAccessError           = convtypes.ModelAccessError
	RetryExhaustedError        = convtypes.RetryExhaustedError
	RequestValidationError     = convtypes.RequestValidationError
	StreamingError             = convtypes.StreamingError
	ContentError               = convtypes.ContentError
	ParallelConfigurationError = convtypes.ParallelConfigurationError
	ParallelExecutionError     = convtypes.ParallelExecutionError
	RegionDistributionError    = convtypes.RegionDistributionError
	RequestTimeoutError        = convtypes.RequestTimeoutError
	RequestIdCollisionError    = convtypes.RequestIdCollisionError
)
