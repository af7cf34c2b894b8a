// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_device

import (
	"context"
	"strings"
	"sync"
	"time"

	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/configs"
)

const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
	PermissionPrompt  = "prompt"

	// defaultPromptTimeout caps how long an unanswered prompt can hold a
	// session in awaiting_permission.
	defaultPromptTimeout = 30 * time.Second
)

// Access guards the capture devices behind the operator-configured
// permission mode. In prompt mode the first RequestAccess blocks until an
// operator decision arrives through ResolvePermission; the decision is
// remembered, so a mount prompts at most once.
type Access struct {
	logger commons.Logger
	cfg    configs.CaptureConfig

	mu       sync.Mutex
	decided  bool
	granted  bool
	prompt   chan struct{}
	onPrompt func()
}

func NewAccess(cfg configs.CaptureConfig, logger commons.Logger) *Access {
	return &Access{logger: logger, cfg: cfg}
}

// OnPrompt registers the notification hook fired when a prompt opens.
func (a *Access) OnPrompt(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onPrompt = fn
}

// RequestAccess resolves the permission decision for the given
// constraints. PermissionDenied is terminal: once denied, every later
// request denies without prompting again.
func (a *Access) RequestAccess(ctx context.Context, constraints internal_type.MediaConstraints) error {
	a.mu.Lock()
	if a.decided {
		granted := a.granted
		a.mu.Unlock()
		if !granted {
			return internal_type.ErrPermissionDenied
		}
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(a.cfg.Permission)) {
	case PermissionGranted, "":
		a.decided = true
		a.granted = true
		a.mu.Unlock()
		a.logger.Infof("capture access granted for device %q", constraints.DeviceID)
		return nil

	case PermissionDenied:
		a.decided = true
		a.granted = false
		a.mu.Unlock()
		a.logger.Warn("capture access denied by configuration")
		return internal_type.ErrPermissionDenied

	case PermissionPrompt:
		var notify func()
		if a.prompt == nil {
			a.prompt = make(chan struct{})
			notify = a.onPrompt
		}
		ch := a.prompt
		a.mu.Unlock()

		if notify != nil {
			notify()
		}
		return a.awaitDecision(ctx, ch)

	default:
		a.mu.Unlock()
		a.logger.Errorf("unknown permission mode %q, denying", a.cfg.Permission)
		return internal_type.ErrPermissionDenied
	}
}

func (a *Access) awaitDecision(ctx context.Context, ch chan struct{}) error {
	timeout := time.Duration(a.cfg.PermissionTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultPromptTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:

	case <-timer.C:
		// An unanswered prompt counts as a denial.
		a.mu.Lock()
		if !a.decided {
			a.decided = true
			a.granted = false
			close(a.prompt)
			a.logger.Warn("permission prompt timed out, denying")
		}
		a.mu.Unlock()

	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.Lock()
	granted := a.granted
	a.mu.Unlock()
	if !granted {
		return internal_type.ErrPermissionDenied
	}
	return nil
}

// ResolvePermission lands an operator decision on the open prompt. It
// reports false when no prompt is outstanding or one was already decided.
func (a *Access) ResolvePermission(granted bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decided || a.prompt == nil {
		return false
	}
	a.decided = true
	a.granted = granted
	close(a.prompt)
	a.logger.Infof("permission prompt resolved: granted=%t", granted)
	return true
}

// EnumerateDevices lists the configured capture devices. The catalog comes
// from the CAPTURE__DEVICES entry list ("id=label;id=label"); the first
// entry is the default the coordinator selects after a grant.
func (a *Access) EnumerateDevices(ctx context.Context) ([]internal_type.Device, error) {
	raw := strings.TrimSpace(a.cfg.Devices)
	if raw == "" {
		return []internal_type.Device{
			{ID: "default", Label: "Default Capture Device", Default: true},
		}, nil
	}

	var devices []internal_type.Device
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, label, found := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		label = strings.TrimSpace(label)
		if !found || label == "" {
			label = id
		}
		devices = append(devices, internal_type.Device{ID: id, Label: label})
	}
	if len(devices) == 0 {
		return nil, internal_type.ErrNoActiveDevice
	}
	devices[0].Default = true
	return devices, nil
}
