// Package main is the entry point for the dwnd node.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/onnwee/dwnd/internal/config"
	"github.com/onnwee/dwnd/internal/datastore"
	"github.com/onnwee/dwnd/internal/dwn"
	"github.com/onnwee/dwnd/internal/envelope"
	"github.com/onnwee/dwnd/internal/eventlog"
	"github.com/onnwee/dwnd/internal/eventstream"
	"github.com/onnwee/dwnd/internal/grant"
	"github.com/onnwee/dwnd/internal/health"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/obs"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("dwnd — Decentralized Web Node")
		fmt.Println()
		fmt.Println("Usage: dwnd [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, configErrs := config.Load(*configPath)
	logger := obs.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	for _, err := range configErrs {
		logger.Error("config validation error", "error", err)
	}
	if cfg.DatabaseURL == "" {
		// DatabaseURL is the only hard requirement: without S3 settings
		// the data store falls back to memory, and without Redis the
		// revocation cache is skipped.
		os.Exit(1)
	}

	tracingConfig := obs.TracingConfig{
		ServiceName:  "dwnd",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporterType,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
	}
	tracerProvider, err := obs.NewTracingProvider(tracingConfig)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	if tracerProvider.IsEnabled() {
		logger.Info("tracing initialized", "exporter", cfg.TracingExporterType, "endpoint", cfg.TracingOTLPEndpoint)
	} else {
		logger.Info("tracing disabled")
	}

	promRegistry := prometheus.NewRegistry()
	metrics := obs.NewMetrics()
	if err := metrics.Register(promRegistry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if err := db.PingContext(context.Background()); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	store := messagestore.NewPostgresStore(db, logger)
	eventLog := eventlog.NewPostgresLog(db, logger)

	var dataStore datastore.Store
	if cfg.S3Bucket != "" {
		s3Client := s3.New(s3.Options{
			Region: "auto",
			Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKeyID,
				cfg.S3SecretAccessKey,
				"",
			)),
			BaseEndpoint: aws.String(cfg.S3Endpoint),
			UsePathStyle: true,
		})
		s3Store, err := datastore.NewS3Store(datastore.S3StoreConfig{
			S3Client:   s3Client,
			DB:         db,
			BucketName: cfg.S3Bucket,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("failed to initialize S3 data store", "error", err)
			os.Exit(1)
		}
		dataStore = s3Store
		logger.Info("data store backed by S3", "bucket", cfg.S3Bucket)
	} else {
		dataStore = datastore.NewInMemoryStore()
		logger.Info("data store backed by memory (no S3 config set)")
	}

	// Redis is optional: it accelerates grant-revocation lookups (and is
	// reported by the readiness probe), but everything works without it,
	// just against MessageStore directly. The EventStream hub is always
	// in-process.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		logger.Info("revocation cache backed by redis")
	} else {
		logger.Info("revocation cache disabled (no REDIS_URL set)")
	}

	hub := eventstream.NewHub(cfg.EventSubscriptionQueueDepth)
	grantLoader := &grant.Loader{MessageStore: store, BatchSize: cfg.GrantRevocationLookupBatchSize}
	if redisClient != nil {
		grantLoader.Cache = grant.NewRedisRevocationCache(redisClient)
	}

	// DID document resolution is out of this core's scope (spec §1); a
	// real front-end wires a resolver that talks to a DID method's
	// registry. StaticResolver is the development/offline seam.
	resolver := envelope.NewStaticResolver()

	handlers := dwn.New(dwn.Deps{
		MessageStore:       store,
		DataStore:          dataStore,
		EventLog:           eventLog,
		EventStream:        hub,
		Resolver:           resolver,
		GrantLoader:        grantLoader,
		MaxDataSizeInlined: cfg.MaxDataSizeInlined,
	})

	// Every DWN operation a front-end would drive flows through this
	// instrumented wrapper, not *dwn.Handlers directly — the transport
	// itself (HTTP, CLI, gRPC, ...) is out of this core's scope (spec
	// §1's "any HTTP/CLI front-end"), so nothing in this binary calls
	// these methods yet. Constructing it here is what wiring them in
	// looks like.
	instrumented := obs.NewInstrumentedHandlers(handlers, logger, metrics, tracerProvider.Tracer("dwnd"))
	_ = instrumented

	healthConfig := health.Config{DBChecker: health.NewDBChecker(db)}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := health.NewHandlers(healthConfig)

	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	opsMux.HandleFunc("/healthz/live", healthHandlers.Live)
	opsMux.HandleFunc("/healthz/ready", healthHandlers.Ready)

	opsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      opsMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting ops server", "port", cfg.Port)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("dwnd ready",
		"max_data_size_inlined", cfg.MaxDataSizeInlined,
		"event_subscription_queue_depth", cfg.EventSubscriptionQueueDepth,
		"grant_revocation_lookup_batch_size", cfg.GrantRevocationLookupBatchSize,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer provider", "error", err)
	}
	if err := opsServer.Shutdown(ctx); err != nil {
		logger.Error("ops server forced to shutdown", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}

	logger.Info("dwnd stopped")
}
