// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

import (
	"fmt"
	"time"
)

// InitialTimecode is the display value before any audio has been captured
// or played.
const InitialTimecode = "00:00"

// FormatTimecode renders an elapsed duration the way the capture surface
// displays it: zero-padded mm:ss, gaining an unpadded hour prefix once the
// take passes one hour. Sub-second remainders are floored.
func FormatTimecode(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
