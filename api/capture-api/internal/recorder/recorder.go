// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
)

const (
	AudioBytesPerSample = 2  // LINEAR16 → 2 bytes per sample
	AudioBitsPerSample  = 16 // LINEAR16 → 16 bits per sample
	AudioPCMFormat      = 1  // WAV PCM format tag
)

// chunk is a captured audio fragment placed at a specific position on the
// take timeline. ByteOffset is the byte position relative to Start().
type chunk struct {
	ByteOffset int
	Data       []byte
}

type takeRecorder struct {
	logger     commons.Logger
	sampleRate int
	channels   int

	mu        sync.Mutex
	startTime time.Time
	started   bool
	chunks    []chunk
	// cursor is the byte position just past the last written byte. The
	// device source delivers at real-time rate, so wall-clock placement is
	// used, floored at the cursor to keep chunks monotonic.
	cursor int
	// clock is injectable for testing; defaults to time.Now.
	clock func() time.Time
}

// NewTakeRecorder builds the recorder for one capture mount.
func NewTakeRecorder(cfg configs.CaptureConfig, logger commons.Logger) (internal_type.Recorder, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid capture format: rate=%d channels=%d", cfg.SampleRate, cfg.Channels)
	}
	return &takeRecorder{
		logger:     logger,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		clock:      time.Now,
	}, nil
}

// Start anchors the take timeline. Audio is placed based on when it
// arrives relative to this moment. Starting again drops any prior take.
func (r *takeRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = r.clock()
	r.started = true
	r.chunks = nil
	r.cursor = 0
}

func (r *takeRecorder) bytesPerSecond() int {
	return r.sampleRate * r.channels * AudioBytesPerSample
}

// durationBytes converts a wall-clock duration to a frame-aligned byte count.
func (r *takeRecorder) durationBytes(d time.Duration) int {
	raw := int(d.Seconds() * float64(r.bytesPerSecond()))
	frameSize := AudioBytesPerSample * r.channels
	return (raw / frameSize) * frameSize
}

// Record places a PCM chunk at the current wall-clock position. Each chunk
// is positioned based on WHEN it arrives, not just appended, so a stalling
// source leaves silence instead of compressing the timeline.
func (r *takeRecorder) Record(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	offset := 0
	if r.started {
		offset = r.durationBytes(r.clock().Sub(r.startTime))
	}
	if r.cursor > offset {
		offset = r.cursor
	}

	// Copy to avoid caller mutations.
	buf := make([]byte, len(pcm))
	copy(buf, pcm)

	r.chunks = append(r.chunks, chunk{ByteOffset: offset, Data: buf})
	r.cursor = offset + len(buf)
	return nil
}

func (r *takeRecorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return 0
	}
	return r.clock().Sub(r.startTime)
}

// Persist renders the take as one WAV spanning Start → now. Chunks keep
// their recorded timeline positions; gaps are silence.
func (r *takeRecorder) Persist() ([]byte, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.chunks) == 0 {
		return nil, 0, fmt.Errorf("no audio chunks to persist")
	}

	takeBytes := 0
	if r.started {
		takeBytes = r.durationBytes(r.clock().Sub(r.startTime))
	}

	// Minimum buffer size: max(takeBytes, furthest chunk end).
	totalLen := takeBytes
	for _, c := range r.chunks {
		if end := c.ByteOffset + len(c.Data); end > totalLen {
			totalLen = end
		}
	}

	pcm := make([]byte, totalLen)
	audioBytes := 0
	for _, c := range r.chunks {
		copy(pcm[c.ByteOffset:], c.Data)
		audioBytes += len(c.Data)
	}

	duration := time.Duration(float64(totalLen) / float64(r.bytesPerSecond()) * float64(time.Second))
	r.logger.Infof("take persist: audio=%d (%.2fs), totalLen=%d (%.2fs), chunks=%d",
		audioBytes, float64(audioBytes)/float64(r.bytesPerSecond()),
		totalLen, duration.Seconds(),
		len(r.chunks),
	)

	wav, err := r.createWAVFile(pcm)
	if err != nil {
		return nil, 0, err
	}
	return wav, duration, nil
}

func (r *takeRecorder) createWAVFile(pcmData []byte) ([]byte, error) {
	var buf bytes.Buffer
	bps := r.bytesPerSecond()

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(r.channels))
	binary.Write(&buf, binary.LittleEndian, uint32(r.sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBytesPerSample*r.channels))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBitsPerSample))

	// data chunk
	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes(), nil
}
