package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/gatherings/internal/config"
	"example.com/gatherings/internal/outbox"
	httptransport "example.com/gatherings/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	logger := log.New(os.Stdout, "[dlq] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		logger.Printf("dlq manager metrics listening on %s", cfg.MetricsAddress)
		if err := httptransport.Run(ctx, httptransport.NewServer(metricsCfg, metricsMux), metricsCfg.ShutdownTimeout); err != nil {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	logger.Printf("DLQ manager started (interval=%s, maxRetries=%d)", cfg.DLQPollInterval, cfg.DLQMaxRetries)
	manager.Run(ctx, cfg.DLQPollInterval, defaultDLQBatchSize)

	logger.Println("dlq manager shutdown requested")
	<-metricsDone
}
