// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "time"

// EventKind tags coordinator events delivered to the host surface.
type EventKind string

const (
	EventStatusChanged    EventKind = "status_changed"
	EventTimeUpdate       EventKind = "time_update"
	EventPause            EventKind = "pause"
	EventPermissionPrompt EventKind = "permission_prompt"
	EventUploadCompleted  EventKind = "upload_completed"
	EventUploadFailed     EventKind = "upload_failed"
	EventSessionError     EventKind = "session_error"
)

// Event is one host-visible session update. Delivery is best effort: slow
// consumers drop events, they never block the session.
type Event struct {
	Kind     EventKind     `json:"kind"`
	Status   SessionStatus `json:"status,omitempty"`
	Timecode string        `json:"timecode,omitempty"`
	Message  string        `json:"message,omitempty"`
	At       time.Time     `json:"at"`
}

// Snapshot is the host-facing view of the session at one instant.
type Snapshot struct {
	SessionID     string        `json:"session_id"`
	Status        SessionStatus `json:"status"`
	Devices       []Device      `json:"devices"`
	ActiveDevice  string        `json:"active_device,omitempty"`
	Timecode      string        `json:"timecode"`
	StartedAtMs   int64         `json:"started_at_ms,omitempty"`
	Recording     bool          `json:"recording"`
	Playing       bool          `json:"playing"`
	HasArtifact   bool          `json:"has_artifact"`
	Filename      string        `json:"filename,omitempty"`
	DurationMs    int64         `json:"duration_ms,omitempty"`
	ResourceURL   string        `json:"resource_url,omitempty"`
	UploadPending bool          `json:"upload_pending"`
	CanClear      bool          `json:"can_clear"`
}

// WaveformFrame is one render update pushed to the visual surface: peak
// buckets normalized to [0,1] plus the displayed time code.
type WaveformFrame struct {
	Peaks    []float32 `json:"peaks"`
	Average  float32   `json:"average"`
	Timecode string    `json:"timecode"`
	Live     bool      `json:"live"`
}

// VisualSurface receives waveform frames. The hub implements it for
// connected host UIs; pushes must never block.
type VisualSurface interface {
	PushFrame(frame WaveformFrame)
}
