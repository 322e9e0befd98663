// @title Academic Sync API
// @version 1.0
// @description Coordinates syllabus syncs from university sources and reports batch progress.
// @BasePath /
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"academic-sync-service/internal/app"
	"academic-sync-service/internal/config"
	"academic-sync-service/internal/logger"
	httptransport "academic-sync-service/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Default().WithError(err).Fatal("config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Default().WithError(err).Fatal("invalid config")
	}

	log := app.InitLogger(cfg.Log, "academic-sync-api")
	defer func() { _ = logger.Sync() }()
	ctx = logger.SetComponent(log.WithContext(ctx), "api")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}
	defer a.Close()

	h := httptransport.NewHandler(a.JobService, a.Coordinator, a.Records, a.Transcripts)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httptransport.Routes(h, a.Metrics.Handler()),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("api started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("api server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("api shutdown")
	}
	log.Info("api stopped")
}
