package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/samtaplin/llmneldacoding/internal/application"
	appanalysis "github.com/samtaplin/llmneldacoding/internal/application/analysis"
	"github.com/samtaplin/llmneldacoding/internal/config"
	"github.com/samtaplin/llmneldacoding/internal/infra/ai/prompt"
	"github.com/samtaplin/llmneldacoding/internal/infra/httpserver"
	"github.com/samtaplin/llmneldacoding/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nelda-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return err
	}
	defer zap.L().Sync()
	log := zap.L()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ref, err := referenceLoader(ctx, cfg, st)
	if err != nil {
		return err
	}

	analyst, err := newClient(ctx, cfg, cfg.Generation.Analysis)
	if err != nil {
		return err
	}
	extractor, err := newClient(ctx, cfg, cfg.Generation.Extraction)
	if err != nil {
		return err
	}

	prompts, err := prompt.Load(cfg.Prompts.File)
	if err != nil {
		return err
	}

	metrics := middleware.NewMetrics()
	svc := &appanalysis.Service{
		Analyst:   analyst,
		Extractor: extractor,
		Reference: ref,
		Prompts:   prompts,
		Repo:      st.repo,
		Clock:     application.SystemClock{},
		Logger:    log,
		Recorder:  metrics,
	}
	if n := cfg.Pipeline.MaxConcurrent; n > 0 {
		svc.Limit = semaphore.NewWeighted(int64(n))
	}

	var limiter *middleware.RateLimiter
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limiter = middleware.NewRateLimiter(rl.RPS, rl.Burst)
		go limiter.Run(ctx)
	}

	readiness := &middleware.Readiness{}
	handler := httpserver.NewRouter(svc, httpserver.Options{
		Repo:        st.repo,
		Checkers:    map[string]middleware.HealthChecker{"store": st.checker},
		Readiness:   readiness,
		Metrics:     metrics,
		RateLimiter: limiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("analysis_model", cfg.Generation.Analysis.Provider+"/"+cfg.Generation.Analysis.Model),
			zap.String("extraction_model", cfg.Generation.Extraction.Provider+"/"+cfg.Generation.Extraction.Model),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")
	readiness.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Pipeline.DrainTimeout)
	defer cancelDrain()
	if err := svc.Wait(drainCtx); err != nil {
		log.Warn("analyses still running at exit", zap.Error(err))
	}
	return nil
}
