// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	internal_backend "github.com/rapidaai/capture/api/capture-api/internal/backend"
	internal_coordinator "github.com/rapidaai/capture/api/capture-api/internal/coordinator"
	internal_device "github.com/rapidaai/capture/api/capture-api/internal/device"
	internal_hub "github.com/rapidaai/capture/api/capture-api/internal/hub"
	internal_sink "github.com/rapidaai/capture/api/capture-api/internal/sink"
	capture_routers "github.com/rapidaai/capture/api/capture-api/router"
	"github.com/rapidaai/capture/config"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to read config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	if utils.FromEnvironmentStr(cfg.Environment) == utils.PRODUCTION {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The sink URL falls back to the media host when not set explicitly.
	if cfg.SinkConfig.URL == "" {
		cfg.SinkConfig.URL = cfg.MediaHost
	}
	sink, err := internal_sink.NewSink(cfg.SinkConfig, cfg.StorageConfig, logger)
	if err != nil {
		logger.Fatalf("failed to build upload sink: %v", err)
	}

	surfaceHub := internal_hub.NewHub(logger)
	utils.Go(logger, "surface-hub", surfaceHub.Run)

	access := internal_device.NewAccess(cfg.CaptureConfig, logger)
	source := internal_backend.NewExecSource(cfg.CaptureConfig, logger)
	factory := internal_backend.NewFactory(cfg.CaptureConfig, source, surfaceHub, logger)
	coordinator := internal_coordinator.NewCoordinator(access, sink, factory, logger)

	// Every coordinator event reaches the websocket surface.
	utils.Go(logger, "event-pump", func() {
		for event := range coordinator.Events() {
			surfaceHub.PublishEvent(event)
		}
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "x-api-key", "x-rapida-source"},
		MaxAge:          12 * time.Hour,
	}))
	capture_routers.CaptureApiRoutes(cfg, engine, logger, coordinator, surfaceHub)

	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{Addr: address, Handler: engine}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("%s %s listening on %s", cfg.Name, cfg.Version, address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if cerr := coordinator.Close(); cerr != nil {
		logger.Warnf("coordinator close: %v", cerr)
	}
	surfaceHub.Stop()

	if err != nil {
		logger.Fatalf("capture-api terminated: %v", err)
	}
	logger.Info("capture-api stopped")
}
