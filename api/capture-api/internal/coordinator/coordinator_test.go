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
	"testing"
	"time"

	internal_device "github.com/rapidaai/capture/api/capture-api/internal/device"
	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("coordinator-test"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

// fakeAccess is a device gate with a fixed decision and catalog.
type fakeAccess struct {
	mu           sync.Mutex
	denied       bool
	devices      []internal_type.Device
	enumErr      error
	enumerations int
}

func (a *fakeAccess) RequestAccess(ctx context.Context, constraints internal_type.MediaConstraints) error {
	if a.denied {
		return internal_type.ErrPermissionDenied
	}
	return nil
}

func (a *fakeAccess) EnumerateDevices(ctx context.Context) ([]internal_type.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enumerations++
	if a.enumErr != nil {
		return nil, a.enumErr
	}
	return a.devices, nil
}

func (a *fakeAccess) enumerationCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enumerations
}

func twoDevices() []internal_type.Device {
	return []internal_type.Device{
		{ID: "mic0", Label: "Front Mic", Default: true},
		{ID: "mic1", Label: "Rear Mic"},
	}
}

// fakeSink records uploads and deletes; gate, when set, blocks uploads
// until closed.
type fakeSink struct {
	mu        sync.Mutex
	gate      chan struct{}
	uploadErr error
	uploads   []*internal_type.CapturedArtifact
	contexts  []internal_type.UploadContext
	deletes   []string
}

func (s *fakeSink) Upload(ctx context.Context, artifacts []*internal_type.CapturedArtifact, uctx internal_type.UploadContext) (*internal_type.UploadResult, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	s.uploads = append(s.uploads, artifacts...)
	s.contexts = append(s.contexts, uctx)
	return &internal_type.UploadResult{
		SuccessfulUploads: []internal_type.UploadHandle{{
			ResourceURL:   "http://media.local/takes/" + artifacts[0].Filename,
			DeletionToken: fmt.Sprintf("token-%d", len(s.uploads)),
		}},
	}, nil
}

func (s *fakeSink) Delete(ctx context.Context, deletionToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, deletionToken)
	return nil
}

func (s *fakeSink) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func (s *fakeSink) deletedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deletes))
	copy(out, s.deletes)
	return out
}

// fakeBackend implements both backend contracts with observable counters.
type fakeBackend struct {
	mu            sync.Mutex
	callbacks     internal_type.BackendCallbacks
	onRecordEnd   func(internal_type.RecordingPayload)
	bindCalls     int
	recordEndRegs int
	recording     bool
	playToggles   int
	emptyCalls    int
	destroyCalls  int
	startErr      error
	payload       internal_type.RecordingPayload
	progress      func(time.Duration)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		payload: internal_type.RecordingPayload{
			Data:       make([]byte, 512),
			MediaType:  "audio/wav",
			Duration:   3500 * time.Millisecond,
			SampleRate: 16000,
			Channels:   1,
		},
	}
}

func (b *fakeBackend) Bind(callbacks internal_type.BackendCallbacks) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindCalls++
	b.callbacks = callbacks
	return nil
}

func (b *fakeBackend) SetOptions(options internal_type.BackendOptions) error { return nil }

func (b *fakeBackend) PlayPause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playToggles++
	return nil
}

func (b *fakeBackend) Empty() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emptyCalls++
	return nil
}

func (b *fakeBackend) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyCalls++
	return nil
}

func (b *fakeBackend) OnRecordEnd(handler func(internal_type.RecordingPayload)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recordEndRegs++
	b.onRecordEnd = handler
}

func (b *fakeBackend) IsRecording() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recording
}

func (b *fakeBackend) StartRecording(ctx context.Context, options internal_type.StartOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	if b.recording {
		return internal_type.ErrInvalidState
	}
	b.recording = true
	b.progress = options.OnProgress
	return nil
}

func (b *fakeBackend) StopRecording(ctx context.Context) error {
	b.mu.Lock()
	if !b.recording {
		b.mu.Unlock()
		return internal_type.ErrInvalidState
	}
	b.recording = false
	handler := b.onRecordEnd
	payload := b.payload
	b.mu.Unlock()
	if handler != nil {
		handler(payload)
	}
	return nil
}

func newTestCoordinator(t *testing.T, access internal_type.DeviceAccess, sink internal_type.UploadSink, backend *fakeBackend) *Coordinator {
	t.Helper()
	factory := func(ctx context.Context, options internal_type.BackendOptions) (internal_type.CaptureBackend, internal_type.RecordingPlugin, error) {
		return backend, backend, nil
	}
	return NewCoordinator(access, sink, factory, newTestLogger(t))
}

func mountReady(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.RequestPermission(context.Background()); err != nil {
		t.Fatalf("request permission failed: %v", err)
	}
	if err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{}); err != nil {
		t.Fatalf("initialize backend failed: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func waitEvent(t *testing.T, events <-chan internal_type.Event, kind internal_type.EventKind) internal_type.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed while waiting for %s", kind)
			}
			if event.Kind == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestRequestPermissionGrantRefreshesCatalogOnce(t *testing.T) {
	access := &fakeAccess{devices: twoDevices()}
	c := newTestCoordinator(t, access, &fakeSink{}, newFakeBackend())

	if err := c.RequestPermission(context.Background()); err != nil {
		t.Fatalf("request permission failed: %v", err)
	}
	snapshot := c.Snapshot()
	if snapshot.Status != internal_type.StatusReady {
		t.Fatalf("expected ready, got %s", snapshot.Status)
	}
	if len(snapshot.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(snapshot.Devices))
	}
	if snapshot.ActiveDevice != "mic0" {
		t.Errorf("expected first device active, got %q", snapshot.ActiveDevice)
	}

	// Repeat grants do not refresh the catalog again.
	if err := c.RequestPermission(context.Background()); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if access.enumerationCount() != 1 {
		t.Errorf("expected one catalog refresh per mount, got %d", access.enumerationCount())
	}
}

func TestRequestPermissionDenialIsTerminal(t *testing.T) {
	access := &fakeAccess{denied: true, devices: twoDevices()}
	backend := newFakeBackend()
	c := newTestCoordinator(t, access, &fakeSink{}, backend)

	err := c.RequestPermission(context.Background())
	if !errors.Is(err, internal_type.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if got := c.Snapshot().Status; got != internal_type.StatusNoPermission {
		t.Fatalf("expected no_permission, got %s", got)
	}

	// No operation leaves NoPermission.
	if err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{}); err != nil {
		t.Fatalf("backend init should not depend on permission: %v", err)
	}
	if err := c.StartRecording(context.Background()); !errors.Is(err, internal_type.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied from start, got %v", err)
	}
	if err := c.RequestPermission(context.Background()); !errors.Is(err, internal_type.ErrPermissionDenied) {
		t.Fatalf("expected denial to stick, got %v", err)
	}
	if got := c.Snapshot().Status; got != internal_type.StatusNoPermission {
		t.Errorf("status left no_permission: %s", got)
	}
	if access.enumerationCount() != 0 {
		t.Errorf("catalog must not refresh after denial, got %d refreshes", access.enumerationCount())
	}
}

func TestPermissionPromptRoundTrip(t *testing.T) {
	gate := internal_device.NewAccess(configs.CaptureConfig{
		Permission:          internal_device.PermissionPrompt,
		PermissionTimeoutMs: 5000,
		Devices:             "mic0=Front Mic",
	}, newTestLogger(t))
	c := newTestCoordinator(t, gate, &fakeSink{}, newFakeBackend())
	events := c.Events()

	result := make(chan error, 1)
	go func() { result <- c.RequestPermission(context.Background()) }()

	waitEvent(t, events, internal_type.EventPermissionPrompt)
	if got := c.Snapshot().Status; got != internal_type.StatusAwaitingPermission {
		t.Fatalf("expected awaiting_permission during prompt, got %s", got)
	}
	if !c.ResolvePermission(true) {
		t.Fatal("expected open prompt to accept the decision")
	}
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("expected grant, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request permission never returned")
	}
	if got := c.Snapshot().Status; got != internal_type.StatusReady {
		t.Errorf("expected ready after grant, got %s", got)
	}
}

func TestInitializeBackendIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	factoryCalls := 0
	factory := func(ctx context.Context, options internal_type.BackendOptions) (internal_type.CaptureBackend, internal_type.RecordingPlugin, error) {
		factoryCalls++
		return backend, backend, nil
	}
	c := NewCoordinator(&fakeAccess{devices: twoDevices()}, &fakeSink{}, factory, newTestLogger(t))

	for i := 0; i < 3; i++ {
		if err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{}); err != nil {
			t.Fatalf("init %d failed: %v", i, err)
		}
	}
	if factoryCalls != 1 {
		t.Errorf("expected one factory call, got %d", factoryCalls)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	// Exactly three observers: the two bound surface slots plus the
	// record-completion handler.
	if backend.bindCalls != 1 || backend.recordEndRegs != 1 {
		t.Errorf("expected single registration pass, got bind=%d recordEnd=%d", backend.bindCalls, backend.recordEndRegs)
	}
	if backend.callbacks.OnTimeUpdate == nil || backend.callbacks.OnPause == nil || backend.onRecordEnd == nil {
		t.Error("expected all three observers registered")
	}
}

func TestInitializeBackendRebuildsOnOptionChange(t *testing.T) {
	var built []*fakeBackend
	factory := func(ctx context.Context, options internal_type.BackendOptions) (internal_type.CaptureBackend, internal_type.RecordingPlugin, error) {
		b := newFakeBackend()
		built = append(built, b)
		return b, b, nil
	}
	c := NewCoordinator(&fakeAccess{devices: twoDevices()}, &fakeSink{}, factory, newTestLogger(t))
	if err := c.RequestPermission(context.Background()); err != nil {
		t.Fatalf("request permission failed: %v", err)
	}

	if err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{SampleRate: 16000}); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{SampleRate: 16000}); err != nil {
		t.Fatalf("repeat init failed: %v", err)
	}
	if len(built) != 1 {
		t.Fatalf("expected repeat init to reuse the backend, built %d", len(built))
	}

	// An option change releases the prior instance before rebuilding.
	if err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{SampleRate: 48000}); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if len(built) != 2 {
		t.Fatalf("expected a second backend, built %d", len(built))
	}
	built[0].mu.Lock()
	destroyed := built[0].destroyCalls
	built[0].mu.Unlock()
	if destroyed != 1 {
		t.Errorf("expected prior backend destroyed once, got %d", destroyed)
	}
	built[1].mu.Lock()
	rebound := built[1].bindCalls == 1 && built[1].recordEndRegs == 1
	built[1].mu.Unlock()
	if !rebound {
		t.Error("expected observers bound on the replacement backend")
	}

	// The replacement carries the session.
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}

	// No rebuild while a take is open.
	if err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{SampleRate: 8000}); !errors.Is(err, internal_type.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState during take, got %v", err)
	}
}

func TestInitializeBackendFailureIsFatal(t *testing.T) {
	factory := func(ctx context.Context, options internal_type.BackendOptions) (internal_type.CaptureBackend, internal_type.RecordingPlugin, error) {
		return nil, nil, errors.New("no render surface")
	}
	c := NewCoordinator(&fakeAccess{devices: twoDevices()}, &fakeSink{}, factory, newTestLogger(t))

	err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{})
	if !errors.Is(err, internal_type.ErrBackendInit) {
		t.Fatalf("expected ErrBackendInit, got %v", err)
	}
	if err := c.InitializeBackend(context.Background(), internal_type.BackendOptions{}); !errors.Is(err, internal_type.ErrBackendInit) {
		t.Fatalf("expected failure to stick, got %v", err)
	}

	if err := c.RequestPermission(context.Background()); err != nil {
		t.Fatalf("request permission failed: %v", err)
	}
	if err := c.StartRecording(context.Background()); !errors.Is(err, internal_type.ErrBackendInit) {
		t.Fatalf("expected ErrBackendInit from start, got %v", err)
	}
}

func TestStartRecordingGuards(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, &fakeSink{}, backend)

	// Idle session: no permission requested yet.
	if err := c.StartRecording(context.Background()); !errors.Is(err, internal_type.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState from idle, got %v", err)
	}

	// Granted but with an empty catalog.
	empty := &fakeAccess{enumErr: errors.New("no devices")}
	c2 := newTestCoordinator(t, empty, &fakeSink{}, newFakeBackend())
	mountReady(t, c2)
	if err := c2.StartRecording(context.Background()); !errors.Is(err, internal_type.ErrNoActiveDevice) {
		t.Fatalf("expected ErrNoActiveDevice, got %v", err)
	}
}

func TestRecordStopLifecycle(t *testing.T) {
	backend := newFakeBackend()
	sink := &fakeSink{}
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, sink, backend)
	events := c.Events()
	mountReady(t, c)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	snapshot := c.Snapshot()
	if snapshot.Status != internal_type.StatusRecording || !snapshot.Recording {
		t.Fatalf("expected recording, got %+v", snapshot)
	}
	if snapshot.Timecode != "00:00" {
		t.Errorf("expected counter reset, got %q", snapshot.Timecode)
	}

	// The per-take progress callback drives the counter.
	backend.progress(1500 * time.Millisecond)
	if event := waitEvent(t, events, internal_type.EventTimeUpdate); event.Timecode != "00:01" {
		t.Errorf("expected 00:01 after 1500ms, got %q", event.Timecode)
	}
	backend.progress(3500 * time.Millisecond)
	if got := c.Snapshot().Timecode; got != "00:03" {
		t.Errorf("expected 00:03 after 3500ms, got %q", got)
	}

	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}
	snapshot = c.Snapshot()
	if snapshot.Status != internal_type.StatusRecorded {
		t.Fatalf("expected recorded, got %s", snapshot.Status)
	}
	if snapshot.Timecode != "00:03" {
		t.Errorf("expected display frozen at take length, got %q", snapshot.Timecode)
	}
	if !snapshot.HasArtifact || snapshot.Filename == "" {
		t.Errorf("expected packaged artifact, got %+v", snapshot)
	}

	// The upload was initiated and lands a handle.
	waitEvent(t, events, internal_type.EventUploadCompleted)
	snapshot = c.Snapshot()
	if !snapshot.CanClear || snapshot.ResourceURL == "" {
		t.Errorf("expected clear available after upload, got %+v", snapshot)
	}
	if sink.uploadCount() != 1 {
		t.Errorf("expected one upload, got %d", sink.uploadCount())
	}
}

func TestUploadFailureRetainsArtifact(t *testing.T) {
	backend := newFakeBackend()
	sink := &fakeSink{uploadErr: errors.New("storage offline")}
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, sink, backend)
	events := c.Events()
	mountReady(t, c)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}

	waitEvent(t, events, internal_type.EventUploadFailed)
	snapshot := c.Snapshot()
	if snapshot.Status != internal_type.StatusRecorded {
		t.Fatalf("upload failure must not leave recorded, got %s", snapshot.Status)
	}
	if !snapshot.HasArtifact {
		t.Error("expected artifact retained after upload failure")
	}
	if snapshot.CanClear || snapshot.UploadPending || snapshot.ResourceURL != "" {
		t.Errorf("expected clear unavailable without handle, got %+v", snapshot)
	}

	// The retained take is still playable.
	if err := c.TogglePlayback(); err != nil {
		t.Fatalf("expected playback available, got %v", err)
	}
	if err := c.Clear(context.Background()); !errors.Is(err, internal_type.ErrNoUploadHandle) {
		t.Fatalf("expected ErrNoUploadHandle, got %v", err)
	}
}

func TestClearBlockedWhileUploadInFlight(t *testing.T) {
	backend := newFakeBackend()
	sink := &fakeSink{gate: make(chan struct{})}
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, sink, backend)
	mountReady(t, c)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}

	snapshot := c.Snapshot()
	if !snapshot.UploadPending || snapshot.CanClear {
		t.Fatalf("expected pending upload to disable clear, got %+v", snapshot)
	}
	if err := c.Clear(context.Background()); !errors.Is(err, internal_type.ErrUploadPending) {
		t.Fatalf("expected ErrUploadPending, got %v", err)
	}

	close(sink.gate)
	eventually(t, func() bool { return c.Snapshot().CanClear }, "upload never completed")

	if err := c.Clear(context.Background()); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	snapshot = c.Snapshot()
	if snapshot.Status != internal_type.StatusReady {
		t.Fatalf("expected ready after clear, got %s", snapshot.Status)
	}
	if snapshot.Timecode != "00:00" {
		t.Errorf("expected counter reset, got %q", snapshot.Timecode)
	}
	if snapshot.HasArtifact || snapshot.ResourceURL != "" || snapshot.CanClear {
		t.Errorf("expected artifact and handle gone, got %+v", snapshot)
	}

	// The handle was consumed and the local take dropped.
	if deletes := sink.deletedTokens(); len(deletes) != 1 || deletes[0] != "token-1" {
		t.Errorf("expected token-1 consumed, got %v", deletes)
	}
	backend.mu.Lock()
	emptied := backend.emptyCalls
	backend.mu.Unlock()
	if emptied != 1 {
		t.Errorf("expected backend emptied once, got %d", emptied)
	}
	sink.mu.Lock()
	cleared := len(sink.uploads) == 1 && !sink.uploads[0].Live()
	sink.mu.Unlock()
	if !cleared {
		t.Error("expected cleared artifact revoked")
	}

	// A second clear has nothing to work on.
	if err := c.Clear(context.Background()); !errors.Is(err, internal_type.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestReRecordRevokesPriorArtifactAndHandle(t *testing.T) {
	backend := newFakeBackend()
	sink := &fakeSink{}
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, sink, backend)
	mountReady(t, c)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}
	eventually(t, func() bool { return c.Snapshot().CanClear }, "first upload never completed")

	first := sink.uploads[0]
	if !first.Live() {
		t.Fatal("first artifact should be live before re-record")
	}

	// Re-record from Recorded.
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("re-record failed: %v", err)
	}
	if got := c.Snapshot().Status; got != internal_type.StatusRecording {
		t.Fatalf("expected recording, got %s", got)
	}
	if first.Live() {
		t.Error("expected prior artifact revoked on re-record")
	}
	eventually(t, func() bool {
		for _, token := range sink.deletedTokens() {
			if token == "token-1" {
				return true
			}
		}
		return false
	}, "superseded handle never consumed")

	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	eventually(t, func() bool { return c.Snapshot().CanClear }, "second upload never completed")
	if sink.uploadCount() != 2 {
		t.Errorf("expected two uploads, got %d", sink.uploadCount())
	}

	// Exactly one live artifact at any point.
	live := 0
	sink.mu.Lock()
	for _, artifact := range sink.uploads {
		if artifact.Live() {
			live++
		}
	}
	sink.mu.Unlock()
	if live != 1 {
		t.Errorf("expected exactly one live artifact, got %d", live)
	}
}

func TestTogglePlaybackLifecycle(t *testing.T) {
	backend := newFakeBackend()
	sink := &fakeSink{}
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, sink, backend)
	events := c.Events()
	mountReady(t, c)

	if err := c.TogglePlayback(); !errors.Is(err, internal_type.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before any take, got %v", err)
	}

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := c.TogglePlayback(); !errors.Is(err, internal_type.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState while recording, got %v", err)
	}
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}

	if err := c.TogglePlayback(); err != nil {
		t.Fatalf("toggle playback failed: %v", err)
	}
	if !c.Snapshot().Playing {
		t.Error("expected playing after toggle")
	}

	// Playback position drives the display once recorded.
	backend.mu.Lock()
	onTime := backend.callbacks.OnTimeUpdate
	onPause := backend.callbacks.OnPause
	backend.mu.Unlock()
	onTime(1200 * time.Millisecond)
	if event := waitEvent(t, events, internal_type.EventTimeUpdate); event.Timecode != "00:01" {
		t.Errorf("expected playback position 00:01, got %q", event.Timecode)
	}

	onPause()
	waitEvent(t, events, internal_type.EventPause)
	if c.Snapshot().Playing {
		t.Error("expected paused after pause observer")
	}
}

func TestCloseAbandonsInFlightUpload(t *testing.T) {
	backend := newFakeBackend()
	sink := &fakeSink{gate: make(chan struct{})}
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, sink, backend)
	mountReady(t, c)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop recording failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := c.StartRecording(context.Background()); !errors.Is(err, internal_type.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}

	// The late upload result is consumed, not stored.
	close(sink.gate)
	eventually(t, func() bool { return len(sink.deletedTokens()) == 1 }, "abandoned handle never consumed")

	backend.mu.Lock()
	destroyed := backend.destroyCalls
	backend.mu.Unlock()
	if destroyed != 1 {
		t.Errorf("expected backend destroyed once, got %d", destroyed)
	}

	// The event stream ends.
	eventually(t, func() bool {
		select {
		case _, ok := <-c.Events():
			return !ok
		default:
			return false
		}
	}, "event stream never closed")
}

func TestSelectDeviceValidatesCatalog(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, &fakeSink{}, backend)
	mountReady(t, c)

	if err := c.SelectDevice("mic1"); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if got := c.Snapshot().ActiveDevice; got != "mic1" {
		t.Errorf("expected mic1 active, got %q", got)
	}
	if err := c.SelectDevice("usb9"); !errors.Is(err, internal_type.ErrNoActiveDevice) {
		t.Fatalf("expected ErrNoActiveDevice, got %v", err)
	}

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := c.SelectDevice("mic0"); !errors.Is(err, internal_type.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState while recording, got %v", err)
	}
}

func TestStopRecordingOnlyWhileRecording(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCoordinator(t, &fakeAccess{devices: twoDevices()}, &fakeSink{}, backend)
	mountReady(t, c)
	if err := c.StopRecording(context.Background()); !errors.Is(err, internal_type.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
