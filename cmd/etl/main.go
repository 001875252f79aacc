package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/sapflow-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/sapflow-etl/internal/adapter/kafka"
	"github.com/couchcryptid/sapflow-etl/internal/config"
	"github.com/couchcryptid/sapflow-etl/internal/domain"
	"github.com/couchcryptid/sapflow-etl/internal/flux"
	"github.com/couchcryptid/sapflow-etl/internal/observability"
	"github.com/couchcryptid/sapflow-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// Flux conversion is feature-flagged; it needs the sapwood-area table.
	var fluxModel *flux.Model
	if cfg.FluxEnabled {
		fluxModel, err = flux.NewModel(cfg.Areas(), flux.DefaultClones)
		if err != nil {
			logger.Error("invalid flux configuration", "error", err)
			os.Exit(1)
		}
		logger.Info("flux conversion enabled", "sensors", domain.SensorCount)
	} else {
		logger.Info("flux conversion disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(
		domain.Normalizer{DecimalComma: cfg.DecimalComma},
		cfg.Window(),
	)

	p := pipeline.New(reader, transformer, writer, logger, metrics, pipeline.Options{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		FluxModel:     fluxModel,
	})

	srv := httpadapter.NewServer(cfg, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the pipeline.
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	// The pipeline's shutdown flush publishes through the writer and
	// commits through the reader; close neither until Run has returned.
	<-pipelineDone

	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
