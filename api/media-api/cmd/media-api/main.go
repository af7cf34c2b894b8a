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

	internal_ratelimit "github.com/rapidaai/capture/api/media-api/internal/ratelimit"
	internal_store "github.com/rapidaai/capture/api/media-api/internal/store"
	internal_token "github.com/rapidaai/capture/api/media-api/internal/token"
	media_routers "github.com/rapidaai/capture/api/media-api/router"
	"github.com/rapidaai/capture/config"
	"github.com/rapidaai/capture/pkg/commons"
	"github.com/rapidaai/capture/pkg/connectors"
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

	postgres, err := connectors.NewPostgresConnector(cfg.PostgresConfig, logger)
	if err != nil {
		logger.Fatalf("failed to connect postgres: %v", err)
	}
	defer postgres.Close()
	if err := postgres.Migrate(internal_store.Migrations, internal_store.MigrationsDir); err != nil {
		logger.Fatalf("failed to migrate schema: %v", err)
	}

	redis, err := connectors.NewRedisConnector(ctx, cfg.RedisConfig, logger)
	if err != nil {
		logger.Fatalf("failed to connect redis: %v", err)
	}
	defer redis.Close()

	objects, err := internal_store.NewObjectStore(ctx, cfg.StorageConfig, logger)
	if err != nil {
		logger.Fatalf("failed to connect object store: %v", err)
	}

	registry := internal_store.NewRegistry(postgres, logger)
	tokens := internal_token.NewIssuer(cfg.TokenConfig)
	limiter := internal_ratelimit.NewTokenBucket(redis.Client(), cfg.RatelimitConfig, logger)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "x-api-key", "x-rapida-source"},
		MaxAge:          12 * time.Hour,
	}))
	media_routers.MediaApiRoutes(cfg, engine, logger, registry, objects, tokens, limiter)

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

	if err := g.Wait(); err != nil {
		logger.Fatalf("media-api terminated: %v", err)
	}
	logger.Info("media-api stopped")
}
