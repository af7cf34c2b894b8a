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
	"os/exec"
	"strconv"
	"strings"

	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
)

// DeviceSource opens a raw LINEAR16 stream from a capture device. The
// stream ends when the device stops or Close is called.
type DeviceSource interface {
	Open(ctx context.Context, deviceID string) (io.ReadCloser, error)
}

// ===========================================================================
// Exec source
// ===========================================================================

// execSource spawns the configured capture command and frames its stdout.
// The command template substitutes {device} and {rate} before the process
// starts, e.g. "arecord -q -f S16_LE -r {rate} -c 1 -t raw -D {device}".
type execSource struct {
	logger  commons.Logger
	command string
	rate    int
}

func NewExecSource(cfg configs.CaptureConfig, logger commons.Logger) DeviceSource {
	return &execSource{
		logger:  logger,
		command: cfg.Command,
		rate:    cfg.SampleRate,
	}
}

func (s *execSource) Open(ctx context.Context, deviceID string) (io.ReadCloser, error) {
	if strings.TrimSpace(s.command) == "" {
		return nil, fmt.Errorf("no capture command configured")
	}
	cmdline := strings.ReplaceAll(s.command, "{device}", deviceID)
	cmdline = strings.ReplaceAll(cmdline, "{rate}", strconv.Itoa(s.rate))
	parts := strings.Fields(cmdline)

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture command pipe failed: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture command start failed: %w", err)
	}

	s.logger.Infow("capture source started",
		"device", deviceID,
		"command", parts[0],
		"pid", cmd.Process.Pid,
	)
	return &processStream{cmd: cmd, out: stdout, logger: s.logger}, nil
}

// processStream wraps the capture process. Close kills the process and
// reaps it so no zombie is left per take.
type processStream struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	logger commons.Logger
}

func (p *processStream) Read(b []byte) (int, error) {
	return p.out.Read(b)
}

func (p *processStream) Close() error {
	p.out.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	if err := p.cmd.Wait(); err != nil {
		// Killed on purpose; only surface unexpected exits.
		p.logger.Debugf("capture source exited: %v", err)
	}
	return nil
}

// ===========================================================================
// Reader source
// ===========================================================================

// readerSource serves takes from caller-provided streams. Used by tests
// and by hosts that pipe audio in themselves.
type readerSource struct {
	open func(deviceID string) (io.ReadCloser, error)
}

func NewReaderSource(open func(deviceID string) (io.ReadCloser, error)) DeviceSource {
	return &readerSource{open: open}
}

func (s *readerSource) Open(_ context.Context, deviceID string) (io.ReadCloser, error) {
	return s.open(deviceID)
}
