// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"

	"academic-sync-service/internal/app"
	"academic-sync-service/internal/config"
	"academic-sync-service/internal/logger"
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

	log := app.InitLogger(cfg.Log, "academic-sync-worker")
	defer func() { _ = logger.Sync() }()
	ctx = logger.SetComponent(log.WithContext(ctx), "worker")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}
	defer a.Close()

	// метрики и health на отдельном порту
	r := chi.NewRouter()
	r.Handle("/metrics", a.Metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	var wg sync.WaitGroup

	// Reaper: возвращает в PENDING задачи, чей lease истёк (воркер упал посреди обработки)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Reaper().Run(ctx)
	}()

	log.WithFields(logger.Fields{
		"batch_size":    cfg.Worker.BatchSize,
		"concurrency":   cfg.Worker.Concurrency,
		"poll_interval": cfg.Worker.PollInterval.String(),
		"lease":         cfg.Worker.Lease.String(),
		"metrics_addr":  cfg.Worker.MetricsAddr,
	}).Info("worker started")

	// блокируется до сигнала и ждёт текущий цикл
	a.Poller().Run(ctx)
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	log.Info("worker stopped")
}
