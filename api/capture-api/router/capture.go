// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package capture_routers

import (
	"github.com/gin-gonic/gin"
	captureApi "github.com/rapidaai/capture/api/capture-api/api/capture"
	internal_coordinator "github.com/rapidaai/capture/api/capture-api/internal/coordinator"
	internal_hub "github.com/rapidaai/capture/api/capture-api/internal/hub"
	"github.com/rapidaai/capture/config"
	"github.com/rapidaai/capture/pkg/commons"
)

func CaptureApiRoutes(
	Cfg *config.AppConfig,
	Engine *gin.Engine,
	Logger commons.Logger,
	Coordinator *internal_coordinator.Coordinator,
	SurfaceHub *internal_hub.Hub,
) {
	cApi := captureApi.New(Cfg, Logger, Coordinator, SurfaceHub)
	apiv1 := Engine.Group("/v1/capture")
	{
		apiv1.GET("/session", cApi.State)
		apiv1.POST("/permission", cApi.RequestPermission)
		apiv1.POST("/permission/resolve", cApi.ResolvePermission)
		apiv1.POST("/backend", cApi.InitializeBackend)
		apiv1.POST("/record/start", cApi.StartRecording)
		apiv1.POST("/record/stop", cApi.StopRecording)
		apiv1.POST("/playback/toggle", cApi.TogglePlayback)
		apiv1.POST("/clear", cApi.Clear)
		apiv1.GET("/devices", cApi.Devices)
		apiv1.POST("/devices/select", cApi.SelectDevice)
		apiv1.GET("/surface", cApi.Surface)
	}

	Engine.GET("/healthz", cApi.Healthz)
	Engine.GET("/readiness", cApi.Readiness)
	Logger.Info("capture routes added to engine")
}
