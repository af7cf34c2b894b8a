// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import (
	"context"
	"time"
)

// Recorder accumulates PCM for one take and packages it as a WAV payload.
type Recorder interface {
	// Start anchors the take timeline. Starting again resets any
	// previously accumulated audio.
	Start()

	// Record places a PCM chunk on the timeline at its arrival position.
	Record(ctx context.Context, pcm []byte) error

	// Elapsed is the wall-clock time since Start, zero before it.
	Elapsed() time.Duration

	// Persist renders the WAV spanning Start to now. Gaps left by a
	// stalling source are zero-filled silence.
	Persist() ([]byte, time.Duration, error)
}
