// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

// Header keys exchanged between Rapida services and client SDKs.
const (
	HEADER_API_KEY         = "x-api-key"
	HEADER_AUTH_KEY        = "authorization"
	HEADER_SOURCE_KEY      = "x-rapida-source"
	HEADER_ENVIRONMENT_KEY = "x-rapida-environment"
	HEADER_REGION_KEY      = "x-rapida-region"
)
