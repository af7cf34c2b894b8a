// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package capture_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	internal_coordinator "github.com/rapidaai/capture/api/capture-api/internal/coordinator"
	internal_hub "github.com/rapidaai/capture/api/capture-api/internal/hub"
	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	config "github.com/rapidaai/capture/config"
	commons "github.com/rapidaai/capture/pkg/commons"
)

var surfaceUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type captureApi struct {
	cfg         *config.AppConfig
	logger      commons.Logger
	coordinator *internal_coordinator.Coordinator
	hub         *internal_hub.Hub
}

func New(cfg *config.AppConfig, logger commons.Logger, coordinator *internal_coordinator.Coordinator, surfaceHub *internal_hub.Hub) *captureApi {
	return &captureApi{
		cfg:         cfg,
		logger:      logger,
		coordinator: coordinator,
		hub:         surfaceHub,
	}
}

type resolveRequest struct {
	Granted bool `json:"granted"`
}

type selectDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

type backendRequest struct {
	SampleRate  int `json:"sample_rate"`
	Channels    int `json:"channels"`
	PeakBuckets int `json:"peak_buckets"`
}

func (api *captureApi) respondSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": api.coordinator.Snapshot()})
}

func (api *captureApi) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, internal_type.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, internal_type.ErrInvalidState),
		errors.Is(err, internal_type.ErrUploadPending),
		errors.Is(err, internal_type.ErrNoUploadHandle),
		errors.Is(err, internal_type.ErrNoActiveDevice):
		status = http.StatusConflict
	case errors.Is(err, internal_type.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, internal_type.ErrBackendInit):
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// State returns the live session snapshot.
//
// @Router /v1/capture/session [get]
func (api *captureApi) State(c *gin.Context) {
	api.respondSnapshot(c)
}

// RequestPermission runs the one permission prompt of this mount. With an
// interactive gate the request blocks until the prompt resolves, so hosts
// should treat it as a long poll.
//
// @Router /v1/capture/permission [post]
func (api *captureApi) RequestPermission(c *gin.Context) {
	if err := api.coordinator.RequestPermission(c.Request.Context()); err != nil {
		api.respondError(c, err)
		return
	}
	api.respondSnapshot(c)
}

// ResolvePermission lands an operator decision on the open prompt.
//
// @Router /v1/capture/permission/resolve [post]
func (api *captureApi) ResolvePermission(c *gin.Context) {
	var request resolveRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !api.coordinator.ResolvePermission(request.Granted) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "no open permission prompt"})
		return
	}
	api.respondSnapshot(c)
}

// InitializeBackend builds the capture backend. Idempotent per mount.
//
// @Router /v1/capture/backend [post]
func (api *captureApi) InitializeBackend(c *gin.Context) {
	var request backendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
	}
	err := api.coordinator.InitializeBackend(c.Request.Context(), internal_type.BackendOptions{
		SampleRate:  request.SampleRate,
		Channels:    request.Channels,
		PeakBuckets: request.PeakBuckets,
	})
	if err != nil {
		api.respondError(c, err)
		return
	}
	api.respondSnapshot(c)
}

// StartRecording opens a take on the active device.
//
// @Router /v1/capture/record/start [post]
func (api *captureApi) StartRecording(c *gin.Context) {
	if err := api.coordinator.StartRecording(c.Request.Context()); err != nil {
		api.respondError(c, err)
		return
	}
	api.respondSnapshot(c)
}

// StopRecording closes the take, packages the artifact and initiates the
// upload.
//
// @Router /v1/capture/record/stop [post]
func (api *captureApi) StopRecording(c *gin.Context) {
	if err := api.coordinator.StopRecording(c.Request.Context()); err != nil {
		api.respondError(c, err)
		return
	}
	api.respondSnapshot(c)
}

// TogglePlayback starts or pauses playback of the recorded take.
//
// @Router /v1/capture/playback/toggle [post]
func (api *captureApi) TogglePlayback(c *gin.Context) {
	if err := api.coordinator.TogglePlayback(); err != nil {
		api.respondError(c, err)
		return
	}
	api.respondSnapshot(c)
}

// Clear discards the recorded take and consumes its upload handle.
//
// @Router /v1/capture/clear [post]
func (api *captureApi) Clear(c *gin.Context) {
	if err := api.coordinator.Clear(c.Request.Context()); err != nil {
		api.respondError(c, err)
		return
	}
	api.respondSnapshot(c)
}

// Devices lists the refreshed device catalog.
//
// @Router /v1/capture/devices [get]
func (api *captureApi) Devices(c *gin.Context) {
	snapshot := api.coordinator.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"devices":       snapshot.Devices,
			"active_device": snapshot.ActiveDevice,
		},
	})
}

// SelectDevice switches the active input.
//
// @Router /v1/capture/devices/select [post]
func (api *captureApi) SelectDevice(c *gin.Context) {
	var request selectDeviceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := api.coordinator.SelectDevice(request.DeviceID); err != nil {
		api.respondError(c, err)
		return
	}
	api.respondSnapshot(c)
}

// Surface upgrades to the websocket event/waveform stream. The first
// message is always the current snapshot.
//
// @Router /v1/capture/surface [get]
func (api *captureApi) Surface(c *gin.Context) {
	conn, err := surfaceUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorf("surface upgrade failed: %v", err)
		return
	}
	initial, err := internal_hub.SnapshotPayload(api.coordinator.Snapshot())
	if err != nil {
		api.logger.Errorf("snapshot payload failed: %v", err)
		initial = nil
	}
	client := internal_hub.NewClient(conn, api.hub, api.logger)
	api.hub.RegisterClient(client)
	client.Start(initial)
}

// Healthz is the liveness probe.
func (api *captureApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "name": api.cfg.Name, "version": api.cfg.Version})
}

// Readiness reports whether the session can serve operations.
func (api *captureApi) Readiness(c *gin.Context) {
	snapshot := api.coordinator.Snapshot()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "session": snapshot.SessionID, "state": snapshot.Status})
}
