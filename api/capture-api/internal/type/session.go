// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "errors"

// SessionStatus is the lifecycle state of one capture session. Transitions
// are strictly sequential: Recording is only reachable from Ready (or
// Recorded on re-record), Recorded only from Recording. NoPermission is
// terminal for the session lifetime.
type SessionStatus string

const (
	StatusIdle               SessionStatus = "idle"
	StatusAwaitingPermission SessionStatus = "awaiting_permission"
	StatusNoPermission       SessionStatus = "no_permission"
	StatusReady              SessionStatus = "ready"
	StatusRecording          SessionStatus = "recording"
	StatusRecorded           SessionStatus = "recorded"
)

// Device is one selectable capture input.
type Device struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Default bool   `json:"default"`
}

// MediaConstraints describes the access being requested from the device
// gate.
type MediaConstraints struct {
	Audio    bool
	DeviceID string
}

var (
	// ErrPermissionDenied is terminal: the session stays in NoPermission
	// until a new mount.
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrInvalidState rejects an operation that is not legal from the
	// current session status. State is left untouched.
	ErrInvalidState = errors.New("operation not valid in current session state")

	// ErrNoActiveDevice rejects recording when the catalog is empty.
	ErrNoActiveDevice = errors.New("no active capture device")

	// ErrBackendInit is fatal to the session: no recording affordance may
	// be offered after it.
	ErrBackendInit = errors.New("capture backend initialization failed")

	// ErrUploadFailed wraps a sink failure. Non-fatal: the artifact is
	// retained and the session stays in Recorded.
	ErrUploadFailed = errors.New("artifact upload failed")

	// ErrNoUploadHandle rejects clear when nothing was uploaded.
	ErrNoUploadHandle = errors.New("no upload handle to clear")

	// ErrUploadPending rejects clear while an upload is still in flight.
	ErrUploadPending = errors.New("upload still in flight")

	// ErrSessionClosed rejects operations after Close.
	ErrSessionClosed = errors.New("capture session closed")
)
