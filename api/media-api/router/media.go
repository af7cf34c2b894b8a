// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package media_routers

import (
	"github.com/gin-gonic/gin"
	mediaApi "github.com/rapidaai/capture/api/media-api/api/media"
	internal_ratelimit "github.com/rapidaai/capture/api/media-api/internal/ratelimit"
	internal_store "github.com/rapidaai/capture/api/media-api/internal/store"
	internal_token "github.com/rapidaai/capture/api/media-api/internal/token"
	"github.com/rapidaai/capture/config"
	"github.com/rapidaai/capture/pkg/commons"
)

func MediaApiRoutes(
	Cfg *config.AppConfig,
	Engine *gin.Engine,
	Logger commons.Logger,
	Registry internal_store.Registry,
	Objects internal_store.ObjectStore,
	Tokens *internal_token.Issuer,
	Limiter internal_ratelimit.Limiter,
) {
	mApi := mediaApi.New(Cfg, Logger, Registry, Objects, Tokens)
	apiv1 := Engine.Group("/v1/media")
	apiv1.Use(mApi.Authorize())
	{
		apiv1.POST("", internal_ratelimit.Middleware(Limiter, Logger), mApi.Upload)
		apiv1.DELETE("", mApi.Delete)
		apiv1.GET("/session/:session", mApi.BySession)
	}

	Engine.GET("/healthz", mApi.Healthz)
	Engine.GET("/readiness", mApi.Readiness)
	Logger.Info("media routes added to engine")
}
