// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CapturedArtifact is the packaged payload of one take. The coordinator
// owns it exclusively until it is handed to the upload sink. The backing
// data is revoked exactly once, on supersession, clear, or unmount.
type CapturedArtifact struct {
	ID        string
	MediaType string
	Filename  string
	Duration  time.Duration

	SampleRate int
	Channels   int

	mu      sync.Mutex
	data    []byte
	revoked bool
}

// NewCapturedArtifact takes ownership of data.
func NewCapturedArtifact(data []byte, mediaType, filename string, duration time.Duration, sampleRate, channels int) *CapturedArtifact {
	return &CapturedArtifact{
		ID:         uuid.New().String(),
		MediaType:  mediaType,
		Filename:   filename,
		Duration:   duration,
		SampleRate: sampleRate,
		Channels:   channels,
		data:       data,
	}
}

// Bytes returns the backing payload, nil once revoked.
func (a *CapturedArtifact) Bytes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return nil
	}
	return a.data
}

// Size returns the payload length in bytes, 0 once revoked.
func (a *CapturedArtifact) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return 0
	}
	return len(a.data)
}

// Revoke releases the backing data. It reports whether this call performed
// the release, so callers can assert the create/revoke pairing.
func (a *CapturedArtifact) Revoke() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return false
	}
	a.revoked = true
	a.data = nil
	return true
}

// Live reports whether the backing data is still held.
func (a *CapturedArtifact) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.revoked
}
