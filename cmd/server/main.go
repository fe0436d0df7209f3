package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"marketfeed/internal/config"
	"marketfeed/internal/httpx"
	"marketfeed/internal/logger"
	"marketfeed/internal/provider"
)

func main() {
	logger.Init()
	log := logger.Component("server")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second

	registry, err := provider.Build(cfg, httpx.New(cfg.HTTPOptions()...), logger.Component("provider"))
	if err != nil {
		log.Fatal().Err(err).Msg("providers")
	}
	if len(registry.Names()) == 0 {
		log.Warn().Msg("no provider enabled")
	}

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(registry, timeout, cfg.Server.MaxParams, logger.Component("http")),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      timeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Strs("endpoints", registry.Names()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
}
