package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AngelCh415/prospection-kpi/internal/config"
	"github.com/AngelCh415/prospection-kpi/internal/httpx"
	"github.com/AngelCh415/prospection-kpi/internal/ingest"
	"github.com/AngelCh415/prospection-kpi/internal/metrics"
	"github.com/AngelCh415/prospection-kpi/internal/offers"
	"github.com/AngelCh415/prospection-kpi/internal/store"
	"github.com/AngelCh415/prospection-kpi/internal/utils"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config error", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	catalog, err := offers.Load(cfg.OffersFile)
	if err != nil {
		logger.Error("offers error", slog.String("err", err.Error()))
		os.Exit(1)
	}
	denom, err := metrics.ParseDenominator(cfg.GlobalDenominator)
	if err != nil {
		logger.Error("config error", slog.String("err", err.Error()))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cl := ingest.NewHTTPClient(cfg.HTTPTimeout)

	// remote ingestion stays off unless enabled
	var fetcher *ingest.Fetcher
	if cfg.RemoteIngest {
		if len(cfg.RemoteHosts) == 0 {
			logger.Warn("remote ingestion enabled without a host allowlist")
		}
		fetcher = ingest.NewFetcher(cl, utils.NewBackoff(200*time.Millisecond, cfg.FetchRetries), logger,
			ingest.WithMaxBytes(cfg.MaxUploadBytes),
			ingest.WithAllowedHosts(cfg.RemoteHosts))
	}

	svc := metrics.NewService(metrics.Deps{
		Store:    store.NewMemoryStore(cfg.MaxDatasets),
		Engine:   metrics.NewEngine(metrics.WithDenominator(denom), metrics.WithWorkers(cfg.Workers)),
		Fetcher:  fetcher,
		Sink:     ingest.NewSink(cl, cfg.SinkURL, cfg.SinkSecret),
		Offers:   catalog,
		Log:      logger,
		Registry: reg,
	})

	r := httpx.NewRouter(logger, svc, httpx.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Gatherer:       reg,
		Offers:         catalog,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			slog.String("port", cfg.Port),
			slog.String("global_conversion_denominator", denom.String()),
			slog.Int("workers", cfg.Workers))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", slog.String("err", err.Error()))
	}
}
