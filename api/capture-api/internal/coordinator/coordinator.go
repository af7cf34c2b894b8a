// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/utils"
)

const (
	// eventBufferSize bounds the host event queue. Events beyond it are
	// dropped, never blocking a session operation.
	eventBufferSize = 256

	sourceName = "capture-api"
)

// promptResolver is implemented by device gates that hold an interactive
// permission prompt open.
type promptResolver interface {
	OnPrompt(fn func())
	ResolvePermission(granted bool) bool
}

// Coordinator owns one capture session end to end: the permission gate,
// the device catalog, the backend pair, the single live artifact and its
// upload handle. All operations are safe for concurrent use; callbacks
// from the backend re-enter through the same lock, so the lock is never
// held across a backend or sink call that can fire one.
type Coordinator struct {
	logger  commons.Logger
	access  internal_type.DeviceAccess
	sink    internal_type.UploadSink
	factory internal_type.BackendFactory

	mu     sync.Mutex
	closed bool

	sessionID    string
	status       internal_type.SessionStatus
	devices      []internal_type.Device
	activeDevice string

	backend        internal_type.CaptureBackend
	plugin         internal_type.RecordingPlugin
	backendReady   bool
	backendFatal   bool
	backendOptions internal_type.BackendOptions

	startedAt time.Time
	timecode  string
	playing   bool

	artifact      *internal_type.CapturedArtifact
	handle        *internal_type.UploadHandle
	uploadPending bool

	// uploadSeq invalidates in-flight upload completions after the take
	// they belong to was superseded or the session closed.
	uploadSeq int

	events chan internal_type.Event
	clock  func() time.Time
}

func NewCoordinator(access internal_type.DeviceAccess, sink internal_type.UploadSink, factory internal_type.BackendFactory, logger commons.Logger) *Coordinator {
	c := &Coordinator{
		logger:    logger,
		access:    access,
		sink:      sink,
		factory:   factory,
		sessionID: uuid.NewString(),
		status:    internal_type.StatusIdle,
		timecode:  utils.InitialTimecode,
		events:    make(chan internal_type.Event, eventBufferSize),
		clock:     time.Now,
	}
	if resolver, ok := access.(promptResolver); ok {
		resolver.OnPrompt(func() {
			c.mu.Lock()
			c.emit(internal_type.Event{Kind: internal_type.EventPermissionPrompt})
			c.mu.Unlock()
		})
	}
	return c
}

// Events is the host event stream. The channel closes on Close.
func (c *Coordinator) Events() <-chan internal_type.Event {
	return c.events
}

func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// emit queues a host event. Callers hold c.mu; delivery is best effort.
func (c *Coordinator) emit(event internal_type.Event) {
	if c.closed {
		return
	}
	event.At = c.clock()
	select {
	case c.events <- event:
	default:
		c.logger.Debugf("event queue full, dropping %s", event.Kind)
	}
}

// setStatus transitions the session and announces it. Callers hold c.mu.
func (c *Coordinator) setStatus(status internal_type.SessionStatus) {
	if c.status == status {
		return
	}
	c.logger.Infof("session %s: %s -> %s", c.sessionID, c.status, status)
	c.status = status
	c.emit(internal_type.Event{
		Kind:     internal_type.EventStatusChanged,
		Status:   status,
		Timecode: c.timecode,
	})
}

// ===========================================================================
// Permission and devices
// ===========================================================================

// RequestPermission runs the one permission prompt of this mount. On a
// grant the device catalog is refreshed exactly once and the first entry
// becomes the active device. Denial is terminal: the session parks in
// NoPermission until a new mount.
func (c *Coordinator) RequestPermission(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return internal_type.ErrSessionClosed
	}
	switch c.status {
	case internal_type.StatusIdle:
	case internal_type.StatusNoPermission:
		c.mu.Unlock()
		return internal_type.ErrPermissionDenied
	case internal_type.StatusAwaitingPermission:
		c.mu.Unlock()
		return internal_type.ErrInvalidState
	default:
		// Already granted this mount.
		c.mu.Unlock()
		return nil
	}
	c.setStatus(internal_type.StatusAwaitingPermission)
	c.mu.Unlock()

	err := c.access.RequestAccess(ctx, internal_type.MediaConstraints{Audio: true})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return internal_type.ErrSessionClosed
	}
	if err != nil {
		if errors.Is(err, internal_type.ErrPermissionDenied) {
			c.setStatus(internal_type.StatusNoPermission)
			c.emit(internal_type.Event{Kind: internal_type.EventSessionError, Message: err.Error()})
			return err
		}
		// Aborted prompt, not a denial. The host may ask again.
		c.setStatus(internal_type.StatusIdle)
		return err
	}

	devices, derr := c.access.EnumerateDevices(ctx)
	if derr != nil {
		c.logger.Warnf("device enumeration failed: %v", derr)
		devices = nil
	}
	c.devices = devices
	c.activeDevice = ""
	if len(devices) > 0 {
		c.activeDevice = devices[0].ID
	}
	c.setStatus(internal_type.StatusReady)
	return nil
}

// ResolvePermission lands an operator decision on an open prompt.
func (c *Coordinator) ResolvePermission(granted bool) bool {
	if resolver, ok := c.access.(promptResolver); ok {
		return resolver.ResolvePermission(granted)
	}
	return false
}

// SelectDevice switches the active input. Not legal while a take is in
// progress.
func (c *Coordinator) SelectDevice(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return internal_type.ErrSessionClosed
	}
	if c.status == internal_type.StatusRecording {
		return internal_type.ErrInvalidState
	}
	for _, device := range c.devices {
		if device.ID == deviceID {
			c.activeDevice = deviceID
			return nil
		}
	}
	return internal_type.ErrNoActiveDevice
}

// ===========================================================================
// Backend lifecycle
// ===========================================================================

// InitializeBackend builds and wires the backend pair. Idempotent per
// mount: repeating the call with the same options on a live backend is a
// no-op, so each backend lifetime registers its observers exactly once
// (the two surface slots plus record completion). Changed options rebuild
// the pair, releasing the prior instance first; not legal while a take is
// open or loaded. A factory failure is fatal for the session.
func (c *Coordinator) InitializeBackend(ctx context.Context, options internal_type.BackendOptions) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return internal_type.ErrSessionClosed
	}
	if c.backendFatal {
		c.mu.Unlock()
		return internal_type.ErrBackendInit
	}
	if c.backendReady {
		if options == c.backendOptions {
			c.mu.Unlock()
			return nil
		}
		if c.status == internal_type.StatusRecording || c.status == internal_type.StatusRecorded {
			c.mu.Unlock()
			return internal_type.ErrInvalidState
		}
		prior := c.backend
		c.backend = nil
		c.plugin = nil
		c.backendReady = false
		c.mu.Unlock()
		prior.Destroy()
		c.mu.Lock()
	}
	factory := c.factory
	c.mu.Unlock()

	backend, plugin, err := factory(ctx, options)
	if err == nil {
		err = backend.Bind(internal_type.BackendCallbacks{
			OnTimeUpdate: c.handleTimeUpdate,
			OnPause:      c.handlePause,
		})
		if err != nil {
			backend.Destroy()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.backendFatal = true
		c.emit(internal_type.Event{Kind: internal_type.EventSessionError, Message: err.Error()})
		c.logger.Errorf("backend initialization failed: %v", err)
		return fmt.Errorf("%v: %w", err, internal_type.ErrBackendInit)
	}
	if c.backendReady || c.closed {
		// Lost the race against a concurrent init or a close.
		go backend.Destroy()
		if c.closed {
			return internal_type.ErrSessionClosed
		}
		return nil
	}
	plugin.OnRecordEnd(c.handleRecordEnd)
	c.backend = backend
	c.plugin = plugin
	c.backendOptions = options
	c.backendReady = true
	c.logger.Infof("session %s: backend ready", c.sessionID)
	return nil
}

// ===========================================================================
// Recording
// ===========================================================================

// StartRecording opens a take on the active device. Legal from Ready, and
// from Recorded as a re-record: the previous artifact is revoked and its
// upload handle consumed the moment the new take starts.
func (c *Coordinator) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return internal_type.ErrSessionClosed
	}
	if c.status == internal_type.StatusNoPermission {
		c.mu.Unlock()
		return internal_type.ErrPermissionDenied
	}
	if c.status != internal_type.StatusReady && c.status != internal_type.StatusRecorded {
		c.mu.Unlock()
		return internal_type.ErrInvalidState
	}
	if !c.backendReady {
		c.mu.Unlock()
		if c.backendFatal {
			return internal_type.ErrBackendInit
		}
		return internal_type.ErrInvalidState
	}
	if c.activeDevice == "" {
		c.mu.Unlock()
		return internal_type.ErrNoActiveDevice
	}
	plugin := c.plugin
	device := c.activeDevice
	c.mu.Unlock()

	if err := plugin.StartRecording(ctx, internal_type.StartOptions{
		DeviceID:   device,
		OnProgress: c.handleProgress,
	}); err != nil {
		c.mu.Lock()
		c.emit(internal_type.Event{Kind: internal_type.EventSessionError, Message: err.Error()})
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	var oldArtifact *internal_type.CapturedArtifact
	var oldHandle *internal_type.UploadHandle
	if c.status == internal_type.StatusRecorded {
		oldArtifact = c.artifact
		oldHandle = c.handle
		c.artifact = nil
		c.handle = nil
		c.uploadSeq++
		c.uploadPending = false
	}
	c.playing = false
	c.startedAt = c.clock()
	c.timecode = utils.InitialTimecode
	c.setStatus(internal_type.StatusRecording)
	c.mu.Unlock()

	if oldArtifact != nil {
		oldArtifact.Revoke()
	}
	if oldHandle != nil {
		c.consumeHandle(*oldHandle)
	}
	return nil
}

// StopRecording closes the take. Packaging, artifact creation and upload
// initiation all happen inside the record-completion observer before this
// returns.
func (c *Coordinator) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return internal_type.ErrSessionClosed
	}
	if c.status != internal_type.StatusRecording {
		c.mu.Unlock()
		return internal_type.ErrInvalidState
	}
	plugin := c.plugin
	c.mu.Unlock()

	if err := plugin.StopRecording(ctx); err != nil {
		c.mu.Lock()
		if c.status == internal_type.StatusRecording {
			// The take is unrecoverable; fall back to an empty Ready.
			c.timecode = utils.InitialTimecode
			c.setStatus(internal_type.StatusReady)
		}
		c.emit(internal_type.Event{Kind: internal_type.EventSessionError, Message: err.Error()})
		c.mu.Unlock()
		return err
	}
	return nil
}

// handleRecordEnd is the record-completion observer: it packages the take
// into the session's single live artifact and initiates the upload.
func (c *Coordinator) handleRecordEnd(payload internal_type.RecordingPayload) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	filename := utils.GenerateCaptureFilename(c.clock(), "wav")
	artifact := internal_type.NewCapturedArtifact(payload.Data, payload.MediaType, filename, payload.Duration, payload.SampleRate, payload.Channels)
	c.artifact = artifact
	c.handle = nil
	c.playing = false
	c.timecode = utils.FormatTimecode(payload.Duration)
	c.uploadPending = true
	c.uploadSeq++
	seq := c.uploadSeq
	sessionID := c.sessionID
	c.setStatus(internal_type.StatusRecorded)
	c.mu.Unlock()

	utils.Go(c.logger, "artifact-upload", func() {
		c.upload(seq, artifact, sessionID)
	})
}

// upload ships one artifact and lands the resulting handle, unless the
// take was superseded while the request was in flight.
func (c *Coordinator) upload(seq int, artifact *internal_type.CapturedArtifact, sessionID string) {
	result, err := c.sink.Upload(context.Background(), []*internal_type.CapturedArtifact{artifact}, internal_type.UploadContext{
		SessionID: sessionID,
		Source:    sourceName,
	})

	c.mu.Lock()
	if c.closed || seq != c.uploadSeq {
		c.mu.Unlock()
		// The session moved on; do not leak the remote object.
		if err == nil && result != nil && len(result.SuccessfulUploads) > 0 {
			c.consumeHandle(result.SuccessfulUploads[0])
		}
		return
	}
	c.uploadPending = false
	if err != nil {
		// Non-fatal: the artifact stays, the session stays in Recorded,
		// clear remains unavailable without a handle.
		c.logger.Errorf("upload failed for session %s: %v", sessionID, err)
		c.emit(internal_type.Event{Kind: internal_type.EventUploadFailed, Message: err.Error()})
		c.mu.Unlock()
		return
	}
	if len(result.SuccessfulUploads) == 0 {
		c.logger.Errorf("upload returned no handle for session %s", sessionID)
		c.emit(internal_type.Event{Kind: internal_type.EventUploadFailed, Message: "upload returned no handle"})
		c.mu.Unlock()
		return
	}
	handle := result.SuccessfulUploads[0]
	c.handle = &handle
	c.emit(internal_type.Event{Kind: internal_type.EventUploadCompleted, Message: handle.ResourceURL})
	c.logger.Infof("session %s: artifact stored at %s", sessionID, handle.ResourceURL)
	c.mu.Unlock()
}

// consumeHandle spends a deletion token in the background. Best effort: a
// failure leaves an orphan remotely but never blocks the session.
func (c *Coordinator) consumeHandle(handle internal_type.UploadHandle) {
	utils.Go(c.logger, "handle-consume", func() {
		if err := c.sink.Delete(context.Background(), handle.DeletionToken); err != nil {
			c.logger.Warnf("failed to consume superseded handle %s: %v", handle.ResourceURL, err)
		}
	})
}

// ===========================================================================
// Playback and clear
// ===========================================================================

// TogglePlayback starts or pauses playback of the recorded take.
func (c *Coordinator) TogglePlayback() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return internal_type.ErrSessionClosed
	}
	if c.status != internal_type.StatusRecorded {
		c.mu.Unlock()
		return internal_type.ErrInvalidState
	}
	backend := c.backend
	wasPlaying := c.playing
	c.playing = !wasPlaying
	c.mu.Unlock()

	if err := backend.PlayPause(); err != nil {
		c.mu.Lock()
		c.playing = wasPlaying
		c.mu.Unlock()
		return err
	}
	return nil
}

// Clear discards the recorded take. Only legal once the upload handle
// exists: a clear during an in-flight upload is rejected, a clear without
// a handle has nothing to do. The local reset never waits on the remote
// delete outcome.
func (c *Coordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return internal_type.ErrSessionClosed
	}
	if c.status != internal_type.StatusRecorded {
		c.mu.Unlock()
		return internal_type.ErrInvalidState
	}
	if c.uploadPending {
		c.mu.Unlock()
		return internal_type.ErrUploadPending
	}
	if c.handle == nil {
		c.mu.Unlock()
		return internal_type.ErrNoUploadHandle
	}
	handle := *c.handle
	artifact := c.artifact
	c.handle = nil
	c.artifact = nil
	c.playing = false
	c.timecode = utils.InitialTimecode
	backend := c.backend
	c.setStatus(internal_type.StatusReady)
	c.mu.Unlock()

	if artifact != nil {
		artifact.Revoke()
	}
	if backend != nil {
		backend.Empty()
	}
	if err := c.sink.Delete(ctx, handle.DeletionToken); err != nil {
		c.logger.Warnf("remote delete failed for %s: %v", handle.ResourceURL, err)
		c.mu.Lock()
		c.emit(internal_type.Event{Kind: internal_type.EventSessionError, Message: fmt.Sprintf("remote delete failed: %v", err)})
		c.mu.Unlock()
	}
	return nil
}

// ===========================================================================
// Observers and views
// ===========================================================================

// handleTimeUpdate is the playback position observer.
func (c *Coordinator) handleTimeUpdate(position time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != internal_type.StatusRecorded {
		return
	}
	c.timecode = utils.FormatTimecode(position)
	c.emit(internal_type.Event{Kind: internal_type.EventTimeUpdate, Timecode: c.timecode})
}

// handlePause is the playback pause observer.
func (c *Coordinator) handlePause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	c.emit(internal_type.Event{Kind: internal_type.EventPause, Timecode: c.timecode})
}

// handleProgress is the per-take elapsed counter. Only whole-second
// changes reach the host.
func (c *Coordinator) handleProgress(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != internal_type.StatusRecording {
		return
	}
	timecode := utils.FormatTimecode(elapsed)
	if timecode == c.timecode {
		return
	}
	c.timecode = timecode
	c.emit(internal_type.Event{Kind: internal_type.EventTimeUpdate, Timecode: timecode})
}

// Snapshot is the host-facing view of the session at this instant.
func (c *Coordinator) Snapshot() internal_type.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]internal_type.Device, len(c.devices))
	copy(devices, c.devices)

	snapshot := internal_type.Snapshot{
		SessionID:     c.sessionID,
		Status:        c.status,
		Devices:       devices,
		ActiveDevice:  c.activeDevice,
		Timecode:      c.timecode,
		Recording:     c.status == internal_type.StatusRecording,
		Playing:       c.playing,
		UploadPending: c.uploadPending,
		CanClear:      c.status == internal_type.StatusRecorded && !c.uploadPending && c.handle != nil,
	}
	if c.artifact != nil && c.artifact.Live() {
		snapshot.HasArtifact = true
		snapshot.Filename = c.artifact.Filename
		snapshot.DurationMs = c.artifact.Duration.Milliseconds()
	}
	if c.handle != nil {
		snapshot.ResourceURL = c.handle.ResourceURL
	}
	if !c.startedAt.IsZero() && c.status == internal_type.StatusRecording {
		snapshot.StartedAtMs = c.startedAt.UnixMilli()
	}
	return snapshot
}

// Close tears the session down. In-flight uploads are abandoned; their
// results are consumed when they land.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.uploadSeq++
	backend := c.backend
	artifact := c.artifact
	c.backend = nil
	c.plugin = nil
	c.artifact = nil
	c.handle = nil
	close(c.events)
	c.mu.Unlock()

	if artifact != nil {
		artifact.Revoke()
	}
	if backend != nil {
		backend.Destroy()
	}
	c.logger.Infof("session %s closed", c.sessionID)
	return nil
}
