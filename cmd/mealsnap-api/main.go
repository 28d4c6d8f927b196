// Command mealsnap-api serves the food-photo nutrition resolution
// pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/mealsnap/mealsnap-api/internal/api"
	"github.com/mealsnap/mealsnap-api/internal/config"
	"github.com/mealsnap/mealsnap-api/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Secrets may live in a local .env during development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	logging.Setup(cfg.Log)
	if secret := cfg.MissingSecret(); secret != "" {
		// Requests will be refused with SERVER_CONFIG until the
		// secret appears; keep serving so health checks pass.
		log.Warnf("required secret %s is not set", secret)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg)
	server.Limiter().StartJanitor(ctx)
	if err := config.Watch(ctx, *configPath, server.ApplyConfig); err != nil {
		log.WithError(err).Warn("config hot reload disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// The pipeline can legitimately take most of the caller's
		// 60 s allowance; leave headroom beyond it.
		WriteTimeout: 90 * time.Second,
	}

	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
