// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_backend

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rapidaai/capture/pkg/configs"
)

func TestExecSourceSubstitutesTemplate(t *testing.T) {
	src := NewExecSource(configs.CaptureConfig{
		Command:    "echo {device}:{rate}",
		SampleRate: 16000,
	}, newTestLogger(t))

	stream, err := src.Open(context.Background(), "usb-mic")
	assert.NoError(t, err)
	assert.NotNil(t, stream)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	assert.NoError(t, err)
	assert.Equal(t, "usb-mic:16000\n", string(data))
}

func TestExecSourceRequiresCommand(t *testing.T) {
	src := NewExecSource(configs.CaptureConfig{SampleRate: 16000}, newTestLogger(t))

	stream, err := src.Open(context.Background(), "mic0")
	assert.Error(t, err)
	assert.Nil(t, stream)
	assert.Contains(t, err.Error(), "no capture command configured")
}

func TestExecSourceStartFailure(t *testing.T) {
	src := NewExecSource(configs.CaptureConfig{
		Command:    "no-such-capture-binary {device}",
		SampleRate: 16000,
	}, newTestLogger(t))

	stream, err := src.Open(context.Background(), "mic0")
	assert.Error(t, err)
	assert.Nil(t, stream)
	assert.Contains(t, err.Error(), "capture command start failed")
}

func TestExecSourceCloseReapsProcess(t *testing.T) {
	src := NewExecSource(configs.CaptureConfig{
		Command:    "sleep 30",
		SampleRate: 16000,
	}, newTestLogger(t))

	stream, err := src.Open(context.Background(), "mic0")
	assert.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		stream.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not reap the capture process")
	}
}

func TestReaderSourceDelegates(t *testing.T) {
	var opened string
	src := NewReaderSource(func(deviceID string) (io.ReadCloser, error) {
		opened = deviceID
		return io.NopCloser(strings.NewReader("pcm")), nil
	})

	stream, err := src.Open(context.Background(), "mic1")
	assert.NoError(t, err)
	assert.Equal(t, "mic1", opened)

	data, err := io.ReadAll(stream)
	assert.NoError(t, err)
	assert.Equal(t, "pcm", string(data))
	assert.NoError(t, stream.Close())
}

func TestReaderSourcePropagatesOpenError(t *testing.T) {
	src := NewReaderSource(func(string) (io.ReadCloser, error) {
		return nil, errors.New("device unplugged")
	})

	stream, err := src.Open(context.Background(), "mic0")
	assert.Error(t, err)
	assert.Nil(t, stream)
}
