package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	grpcapi "ai-conversation-assist-service/internal/api/grpc"
	"ai-conversation-assist-service/internal/app"
	"ai-conversation-assist-service/internal/config"
	httpapi "ai-conversation-assist-service/internal/http"
	"ai-conversation-assist-service/internal/observability"
	"ai-conversation-assist-service/internal/observability/logging"
	"ai-conversation-assist-service/internal/observability/metrics"
)

func main() {
	cfg := config.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = cfg.Observability.LogFormat
	logging.Init(logCfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: logCfg.Service,
		Environment: cfg.Service.Environment,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    true,
		SampleRate:  cfg.Observability.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	metricsServer := observability.NewServer(":"+cfg.Observability.MetricsPort, application.Ready)
	metricsServer.Start()

	grpcServer := grpcapi.New(metrics.DefaultMetrics)
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}
	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	grpcServer.SetServing(true)

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.SetServing(false)
	application.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	grpcServer.Shutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Observability server shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Tracer shutdown")
	}
}
