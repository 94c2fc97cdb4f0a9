package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	api "serialrent-backend/internal/api/grpc"
	"serialrent-backend/internal/api/grpc/interceptor"
	httpapi "serialrent-backend/internal/api/http"
	"serialrent-backend/internal/config"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/metrics"
	"serialrent-backend/internal/repository"
	"serialrent-backend/internal/repository/memory"
	"serialrent-backend/internal/repository/postgres"
	"serialrent-backend/internal/security"
	"serialrent-backend/internal/service"
	"serialrent-backend/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Serialrent Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "grpc_address", cfg.GetServerAddress(), "http_address", cfg.GetHTTPAddress())

	// Initialize store
	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.AccessTokenExpiry)*time.Minute)
	scannerKeys := security.NewAPIKeyVerifier(cfg.Auth.ScannerKeyHashes)
	tagIssuer := security.NewTagIssuer(cfg.Auth.TagSecret)

	// Initialize Storage Service
	logger.Info("Using local photo storage", "type", cfg.Storage.Type, "upload_dir", cfg.Storage.UploadDir)
	photoStorage, err := storage.New(storage.Config{
		Type:    cfg.Storage.Type,
		Dir:     cfg.Storage.UploadDir,
		BaseURL: cfg.Storage.BaseURL,
	})
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize Services
	m := metrics.New()
	photoSvc := service.NewPhotoService(store, photoStorage, 15*time.Minute, cfg.Storage.AllowedTypes)
	biller := service.NewWebhookBiller(cfg.Billing.WebhookURL, cfg.Billing.APIKey, time.Duration(cfg.Billing.TimeoutSeconds)*time.Second)
	catalogSvc := service.NewCatalogService(store)
	registry := service.NewSerialRegistry(store, tagIssuer, cfg.Rental.SerialPrefix, m)
	engine, err := service.NewAllocationEngine(store, registry, cfg.Rental.AutoGenerateSerials, m)
	if err != nil {
		log.Fatalf("Failed to initialize allocation engine: %v", err)
	}
	returns := service.NewReturnAssessment(store, cfg.FeePolicy(), photoSvc, cfg.Rental.RequirePhotos, m)
	lifecycle, err := service.NewLifecycleService(store, engine, returns, biller, *cfg.Rental.DefaultLateFeeEnabled)
	if err != nil {
		log.Fatalf("Failed to initialize lifecycle service: %v", err)
	}
	scanSvc := service.NewScanService(store, registry, lifecycle, m)

	// Set up gRPC server
	lis, err := net.Listen("tcp", cfg.GetServerAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetServerAddress())
		log.Fatalf("Failed to listen: %v", err)
	}

	authInterceptor := interceptor.NewAuthInterceptor(tokenManager, scannerKeys, cfg.Auth.ScannerActorPrefix)
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.Logging(), authInterceptor.Unary()),
	)
	api.RegisterScanServer(s, api.NewScanHandler(scanSvc, registry))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus(api.ScanServiceName, healthpb.HealthCheckResponse_SERVING)

	// Register reflection service for grpcurl
	reflection.Register(s)

	// Set up HTTP server
	router := httpapi.NewRouter(httpapi.RouterDeps{
		Handler: httpapi.NewHandler(catalogSvc, registry, lifecycle, scanSvc, photoSvc),
		Auth:    httpapi.NewAuthenticator(tokenManager, scannerKeys, cfg.Auth.ScannerActorPrefix),
		Photos:  httpapi.NewPhotoFileHandler(photoStorage, cfg.Storage.AllowedTypes, cfg.Storage.MaxFileSize),
		Metrics: m,
	})
	httpServer := &http.Server{
		Addr:              cfg.GetHTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		logger.Info("gRPC server listening", "address", cfg.GetServerAddress())
		if err := s.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	healthServer.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	s.GracefulStop()
	logger.Info("Server stopped")
}

// openStore connects the configured backend. The memory store keeps nothing across restarts.
func openStore(cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test database connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Database schema applied")
	}
	return postgres.NewStore(db), func() { db.Close() }, nil
}
