// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

import (
	"fmt"
	"strings"
	"time"
)

// GenerateCaptureFilename names a packaged take from its capture time, e.g.
// capture_20260825_154210.wav. The extension must include the dot.
func GenerateCaptureFilename(at time.Time, ext string) string {
	if ext == "" {
		ext = ".wav"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("capture_%s%s", at.UTC().Format("20060102_150405"), ext)
}
