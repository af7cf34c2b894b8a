// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_backend

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	internal_recorder "github.com/rapidaai/capture/api/capture-api/internal/recorder"
	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	internal_waveform "github.com/rapidaai/capture/api/capture-api/internal/waveform"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
	"github.com/rapidaai/capture/pkg/utils"
)

const (
	// playTickInterval paces playback position updates to the surface.
	playTickInterval = 100 * time.Millisecond

	wavHeaderSize = 44
)

// waveBackend is the built-in capture/render backend: it frames the device
// source into the recorder, feeds the waveform surface, and owns playback
// of the finished take. One instance serves one mount; the coordinator is
// its only caller.
type waveBackend struct {
	logger  commons.Logger
	cfg     configs.CaptureConfig
	source  DeviceSource
	surface internal_type.VisualSurface

	recorder internal_type.Recorder
	analyzer *internal_waveform.Analyzer

	mu          sync.Mutex
	callbacks   internal_type.BackendCallbacks
	bound       bool
	onRecordEnd func(internal_type.RecordingPayload)

	recording   bool
	stream      io.ReadCloser
	captureDone chan struct{}

	loaded         []byte // packaged WAV of the last take
	loadedDuration time.Duration
	position       time.Duration
	playing        bool
	playStop       chan struct{}

	peakBuckets int
	destroyed   bool
}

// NewFactory returns the factory the coordinator uses at backend
// initialization. Every invocation builds a fresh backend pair.
func NewFactory(cfg configs.CaptureConfig, source DeviceSource, surface internal_type.VisualSurface, logger commons.Logger) internal_type.BackendFactory {
	return func(_ context.Context, options internal_type.BackendOptions) (internal_type.CaptureBackend, internal_type.RecordingPlugin, error) {
		backend, err := newWaveBackend(cfg, options, source, surface, logger)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil
	}
}

func newWaveBackend(cfg configs.CaptureConfig, options internal_type.BackendOptions, source DeviceSource, surface internal_type.VisualSurface, logger commons.Logger) (*waveBackend, error) {
	if options.SampleRate > 0 {
		cfg.SampleRate = options.SampleRate
	}
	if options.Channels > 0 {
		cfg.Channels = options.Channels
	}
	rec, err := internal_recorder.NewTakeRecorder(cfg, logger)
	if err != nil {
		return nil, err
	}
	buckets := options.PeakBuckets
	if buckets <= 0 {
		buckets = internal_waveform.DefaultBuckets
	}
	return &waveBackend{
		logger:      logger,
		cfg:         cfg,
		source:      source,
		surface:     surface,
		recorder:    rec,
		analyzer:    internal_waveform.NewAnalyzer(buckets),
		peakBuckets: buckets,
	}, nil
}

// frameBytes is the read granularity: one surface/progress update per frame.
func (b *waveBackend) frameBytes() int {
	n := b.cfg.SampleRate * b.cfg.Channels * internal_recorder.AudioBytesPerSample * b.cfg.FrameMs / 1000
	if n <= 0 {
		n = 320
	}
	return n
}

// ===========================================================================
// Capture backend contract
// ===========================================================================

// Bind registers the observer slots. One bind per backend lifetime.
func (b *waveBackend) Bind(callbacks internal_type.BackendCallbacks) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return fmt.Errorf("backend destroyed")
	}
	if b.bound {
		return fmt.Errorf("backend callbacks already bound")
	}
	b.callbacks = callbacks
	b.bound = true
	return nil
}

// SetOptions applies a partial update. Zero fields keep their current
// values; the capture format cannot change on a live backend.
func (b *waveBackend) SetOptions(options internal_type.BackendOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return fmt.Errorf("backend destroyed")
	}
	if options.PeakBuckets > 0 {
		b.peakBuckets = options.PeakBuckets
		b.analyzer.SetBuckets(options.PeakBuckets)
	}
	return nil
}

// PlayPause toggles playback of the loaded take. Without a take it does
// nothing.
func (b *waveBackend) PlayPause() error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return fmt.Errorf("backend destroyed")
	}

	if b.playing {
		b.playing = false
		close(b.playStop)
		cb := b.callbacks
		b.mu.Unlock()
		if cb.OnPause != nil {
			cb.OnPause()
		}
		return nil
	}

	if b.loaded == nil || b.recording {
		b.mu.Unlock()
		return nil
	}
	b.playing = true
	b.playStop = make(chan struct{})
	resume := b.position
	stop := b.playStop
	b.mu.Unlock()

	utils.Go(b.logger, "backend-playback", func() {
		b.playLoop(resume, stop)
	})
	return nil
}

// Empty drops the loaded take and resets the surface to its initial state.
func (b *waveBackend) Empty() error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return fmt.Errorf("backend destroyed")
	}
	if b.playing {
		b.playing = false
		close(b.playStop)
	}
	b.loaded = nil
	b.loadedDuration = 0
	b.position = 0
	b.analyzer.Reset()
	buckets := b.peakBuckets
	surface := b.surface
	b.mu.Unlock()

	if surface != nil {
		surface.PushFrame(internal_type.WaveformFrame{
			Peaks:    make([]float32, buckets),
			Timecode: utils.InitialTimecode,
		})
	}
	return nil
}

// Destroy releases the device stream and stops every goroutine. Safe to
// call more than once.
func (b *waveBackend) Destroy() error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return nil
	}
	b.destroyed = true
	if b.recording && b.stream != nil {
		b.stream.Close()
		b.recording = false
	}
	if b.playing {
		b.playing = false
		close(b.playStop)
	}
	b.loaded = nil
	b.mu.Unlock()

	b.logger.Debug("capture backend destroyed")
	return nil
}

// ===========================================================================
// Recording plugin contract
// ===========================================================================

// OnRecordEnd registers the record-completion observer. One registration
// per backend lifetime.
func (b *waveBackend) OnRecordEnd(handler func(payload internal_type.RecordingPayload)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRecordEnd = handler
}

func (b *waveBackend) IsRecording() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recording
}

// StartRecording opens the device source and begins framing it onto the
// take timeline. A loaded take from a prior recording is dropped; any
// playback stops without a pause event.
func (b *waveBackend) StartRecording(ctx context.Context, options internal_type.StartOptions) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return fmt.Errorf("backend destroyed")
	}
	if b.recording {
		b.mu.Unlock()
		return internal_type.ErrInvalidState
	}
	if b.playing {
		b.playing = false
		close(b.playStop)
	}
	b.loaded = nil
	b.loadedDuration = 0
	b.position = 0
	b.mu.Unlock()

	stream, err := b.source.Open(ctx, options.DeviceID)
	if err != nil {
		return fmt.Errorf("capture source open failed: %w", err)
	}

	b.mu.Lock()
	b.recorder.Start()
	b.analyzer.Reset()
	b.stream = stream
	b.captureDone = make(chan struct{})
	b.recording = true
	done := b.captureDone
	b.mu.Unlock()

	utils.Go(b.logger, "backend-capture", func() {
		b.captureLoop(stream, options, done)
	})
	return nil
}

// StopRecording drains the capture loop, packages the take, and fires the
// record-completion observer. Packaging completes before the observer
// runs, so no consumer ever sees a partially written payload.
func (b *waveBackend) StopRecording(ctx context.Context) error {
	b.mu.Lock()
	if !b.recording {
		b.mu.Unlock()
		return internal_type.ErrInvalidState
	}
	stream := b.stream
	done := b.captureDone
	b.mu.Unlock()

	stream.Close()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	wav, duration, err := b.recorder.Persist()

	b.mu.Lock()
	b.recording = false
	b.stream = nil
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("take packaging failed: %w", err)
	}
	b.loaded = wav
	b.loadedDuration = duration
	b.position = 0
	handler := b.onRecordEnd
	surface := b.surface
	buckets := b.peakBuckets
	b.mu.Unlock()

	if surface != nil {
		surface.PushFrame(internal_type.WaveformFrame{
			Peaks:    internal_waveform.Peaks(wav[wavHeaderSize:], buckets),
			Timecode: utils.FormatTimecode(duration),
		})
	}
	if handler != nil {
		handler(internal_type.RecordingPayload{
			Data:       wav,
			MediaType:  "audio/wav",
			Duration:   duration,
			SampleRate: b.cfg.SampleRate,
			Channels:   b.cfg.Channels,
		})
	}
	return nil
}

// captureLoop frames the stream until it ends or the take is stopped. A
// source that dies mid-take leaves silence on the timeline; the take
// itself stays open until StopRecording.
func (b *waveBackend) captureLoop(stream io.ReadCloser, options internal_type.StartOptions, done chan struct{}) {
	defer close(done)

	frame := make([]byte, b.frameBytes())
	for {
		n, err := io.ReadFull(stream, frame)
		if n > 0 {
			chunk := frame[:n]
			if rerr := b.recorder.Record(context.Background(), chunk); rerr != nil {
				b.logger.Warnf("dropping capture frame: %v", rerr)
			}
			peaks, avg := b.analyzer.Push(chunk)
			elapsed := b.recorder.Elapsed()

			if b.surface != nil {
				b.surface.PushFrame(internal_type.WaveformFrame{
					Peaks:    peaks,
					Average:  avg,
					Timecode: utils.FormatTimecode(elapsed),
					Live:     true,
				})
			}
			if options.OnProgress != nil {
				options.OnProgress(elapsed)
			}
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				b.logger.Debugf("capture source read ended: %v", err)
			}
			return
		}
	}
}

// ===========================================================================
// Playback
// ===========================================================================

// playLoop emits position updates until paused or the take ends. Reaching
// the end rewinds to the start and fires the pause observer, matching the
// surface behavior hosts expect.
func (b *waveBackend) playLoop(resume time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(playTickInterval)
	defer ticker.Stop()
	anchor := time.Now()

	for {
		select {
		case <-stop:
			// Record the paused position for a later resume.
			b.mu.Lock()
			if !b.playing {
				b.position = resume + time.Since(anchor)
				if b.position > b.loadedDuration {
					b.position = 0
				}
			}
			b.mu.Unlock()
			return

		case <-ticker.C:
			pos := resume + time.Since(anchor)

			b.mu.Lock()
			if !b.playing {
				b.mu.Unlock()
				return
			}
			end := b.loadedDuration
			cb := b.callbacks
			if pos >= end {
				b.playing = false
				b.position = 0
				b.mu.Unlock()
				if cb.OnTimeUpdate != nil {
					cb.OnTimeUpdate(end)
				}
				if cb.OnPause != nil {
					cb.OnPause()
				}
				return
			}
			b.position = pos
			b.mu.Unlock()

			if cb.OnTimeUpdate != nil {
				cb.OnTimeUpdate(pos)
			}
		}
	}
}
