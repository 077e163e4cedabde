package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/gatherings/internal/api"
	"example.com/gatherings/internal/auth"
	"example.com/gatherings/internal/cache"
	"example.com/gatherings/internal/chat"
	"example.com/gatherings/internal/config"
	"example.com/gatherings/internal/domain"
	"example.com/gatherings/internal/outbox"
	"example.com/gatherings/internal/persistence/memory"
	persistence "example.com/gatherings/internal/persistence/postgres"
	httptransport "example.com/gatherings/internal/transport/http"
)

func main() {
	logger := log.New(os.Stdout, "[gatherings] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store domain.Store
		pool  *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		store = persistence.NewRepository(pool)
	default:
		logger.Printf("using in-memory store; data is lost on restart")
		store = memory.NewStore()
	}

	serviceOpts := []domain.Option{domain.WithLogger(logger)}
	if cfg.RedisAddress != "" {
		redisHistory, err := cache.NewRedisHistory(ctx, &redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.HistoryCacheTTL)
		if err != nil {
			logger.Fatalf("history cache: %v", err)
		}
		defer redisHistory.Close()
		serviceOpts = append(serviceOpts, domain.WithHistoryCache(redisHistory))
	}

	service := domain.NewService(store, serviceOpts...)
	bus := domain.NewBus(service)

	hub := chat.NewHub(func(sub chat.Subscriber) {
		if client, ok := sub.(*chat.Client); ok {
			client.Close()
		}
	})
	chatService := chat.NewService(bus, hub, chat.WithLogger(logger))
	chatHandler := chat.NewHandler(ctx, chatService, chat.HandlerConfig{
		SendRate:       cfg.ChatSendRate,
		SendBurst:      cfg.ChatSendBurst,
		AllowedOrigins: []string{cfg.CORSOrigin},
	}, logger)

	mux := http.NewServeMux()
	api.NewHandler(bus).RegisterRoutes(mux)
	mux.Handle(auth.ChatPath, chatHandler)

	requestLogger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, requestLogger(authMiddleware.Wrap(api.CORS(cfg.CORSOrigin, mux))))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), metricsMux)

	var wg sync.WaitGroup
	if pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithLogger(logger))
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Start(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httptransport.Run(ctx, metricsServer, serverCfg.ShutdownTimeout); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()

	logger.Printf("gatherings api listening on %s (store=%s)", cfg.HTTPAddress, cfg.StoreDriver)
	if err := httptransport.Run(ctx, server, serverCfg.ShutdownTimeout); err != nil {
		logger.Printf("api server: %v", err)
		stop()
	}

	wg.Wait()
	logger.Println("gatherings api stopped")
}
