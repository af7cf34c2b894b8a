// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_waveform

import (
	"sync"

	"github.com/rapidaai/capture/pkg/utils"
)

const (
	// DefaultBuckets is the render resolution when the host sets none.
	DefaultBuckets = 64

	fullScale = 32768.0 // LINEAR16 magnitude ceiling
)

// Analyzer folds LINEAR16 frames into a rolling window of normalized peaks
// for live rendering. Safe for one producer; reads copy.
type Analyzer struct {
	mu      sync.Mutex
	buckets int
	window  []float32
}

func NewAnalyzer(buckets int) *Analyzer {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	return &Analyzer{buckets: buckets}
}

// SetBuckets resizes the rolling window. Zero or negative keeps the
// current resolution.
func (a *Analyzer) SetBuckets(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = n
	if len(a.window) > n {
		a.window = a.window[len(a.window)-n:]
	}
}

// Reset drops the rolling window at take boundaries.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = nil
}

// Push folds one PCM frame into the window and returns the window snapshot
// plus the frame's average magnitude.
func (a *Analyzer) Push(pcm []byte) ([]float32, float32) {
	peak, avg := framePeak(pcm)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = append(a.window, peak)
	if len(a.window) > a.buckets {
		a.window = a.window[len(a.window)-a.buckets:]
	}
	out := make([]float32, len(a.window))
	copy(out, a.window)
	return out, avg
}

// framePeak returns the normalized peak and average magnitude of a frame.
func framePeak(pcm []byte) (float32, float32) {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0, 0
	}
	var peak float32
	magnitudes := make([]float32, 0, samples)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		m := float32(s)
		if m < 0 {
			m = -m
		}
		m /= fullScale
		magnitudes = append(magnitudes, m)
		if m > peak {
			peak = m
		}
	}
	return peak, utils.AverageFloat32(magnitudes)
}

// Peaks renders the static waveform of a finished take: the normalized
// peak of each of the given buckets across the whole payload.
func Peaks(pcm []byte, buckets int) []float32 {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	samples := len(pcm) / 2
	if samples == 0 {
		return make([]float32, buckets)
	}

	out := make([]float32, buckets)
	perBucket := samples / buckets
	if perBucket == 0 {
		perBucket = 1
	}
	for b := 0; b < buckets; b++ {
		start := b * perBucket
		if start >= samples {
			break
		}
		end := start + perBucket
		if b == buckets-1 || end > samples {
			end = samples
		}
		var peak float32
		for i := start; i < end; i++ {
			s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
			m := float32(s)
			if m < 0 {
				m = -m
			}
			m /= fullScale
			if m > peak {
				peak = m
			}
		}
		out[b] = peak
	}
	return out
}
