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

// BackendCallbacks is the finite set of observer slots the coordinator
// binds once per backend lifetime. Nil slots are allowed.
type BackendCallbacks struct {
	// OnTimeUpdate delivers the displayed position: recording elapsed time
	// while a take is in progress, playback position afterwards.
	OnTimeUpdate func(position time.Duration)

	// OnPause fires when playback stops, including reaching the end of the
	// loaded take.
	OnPause func()
}

// BackendOptions is the enumerated style/config record applied at create
// time and through SetOptions.
type BackendOptions struct {
	SampleRate int
	Channels   int

	// PeakBuckets is the resolution of waveform frames pushed to the
	// visual surface. Zero keeps the current value.
	PeakBuckets int
}

// RecordingPayload is the raw result of a finished take, delivered by the
// record-completion observer. Packaging into a CapturedArtifact happens in
// the coordinator, strictly before upload initiation.
type RecordingPayload struct {
	Data       []byte
	MediaType  string
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// StartOptions selects the device for one take. OnProgress is the per-take
// elapsed-time callback; it is not one of the backend-lifetime observers.
type StartOptions struct {
	DeviceID   string
	OnProgress func(elapsed time.Duration)
}

// CaptureBackend renders the take and owns playback. Exclusively owned by
// the coordinator; Destroy must be safe to call more than once.
type CaptureBackend interface {
	// Bind registers the observer slots. Called exactly once per backend
	// lifetime, before any take starts.
	Bind(callbacks BackendCallbacks) error

	// SetOptions applies a partial option update to a live backend.
	SetOptions(options BackendOptions) error

	// PlayPause toggles playback of the loaded take. No effect when no
	// take is loaded.
	PlayPause() error

	// Empty drops the loaded take and resets the playback position.
	Empty() error

	Destroy() error
}

// RecordingPlugin drives the device source for one take at a time.
type RecordingPlugin interface {
	StartRecording(ctx context.Context, options StartOptions) error
	StopRecording(ctx context.Context) error
	IsRecording() bool

	// OnRecordEnd registers the record-completion observer. Called exactly
	// once per backend lifetime.
	OnRecordEnd(handler func(payload RecordingPayload))
}

// BackendFactory builds the backend pair for one mount. InitializeBackend
// releases any prior instance before invoking it again.
type BackendFactory func(ctx context.Context, options BackendOptions) (CaptureBackend, RecordingPlugin, error)
