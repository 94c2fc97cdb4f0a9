package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"serialrent-backend/internal/config"
	"serialrent-backend/internal/jobs"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/repository"
	"serialrent-backend/internal/repository/memory"
	"serialrent-backend/internal/repository/postgres"
	"serialrent-backend/internal/scheduler"
	"serialrent-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'detect-overdue-items', 'all-nightly')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Serialrent Cronjob Runner...", "log_level", cfg.Log.Level)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	// Initialize Services
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP host is not configured; reminder emails will fail")
	}
	emailService := service.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.User,
		cfg.SMTP.Password,
		cfg.SMTP.From,
	)

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store, &jobs.Services{Email: emailService}, cfg, nil)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		logger.Error("Failed to initialize scheduler", "error", err)
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

func openStore(cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; jobs will see an empty database")
		return memory.NewStore(), func() {}, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
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
	return postgres.NewStore(db), func() { db.Close() }, nil
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "detect-overdue-items":
		jobRunner.DetectOverdueItems()
	case "send-overdue-reminders":
		jobRunner.SendOverdueReminders()
	case "send-return-reminders":
		jobRunner.SendReturnReminders()
	case "check-low-stock":
		jobRunner.CheckLowStock()
	case "all-nightly":
		jobRunner.RunAllNightlyJobs()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - detect-overdue-items\n")
		fmt.Printf("  - send-overdue-reminders\n")
		fmt.Printf("  - send-return-reminders\n")
		fmt.Printf("  - check-low-stock\n")
		fmt.Printf("  - all-nightly\n")
		os.Exit(1)
	}
}
