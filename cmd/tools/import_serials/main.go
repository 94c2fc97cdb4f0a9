package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"serialrent-backend/internal/config"
	"serialrent-backend/internal/importer"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/repository/postgres"
	"serialrent-backend/internal/security"
	"serialrent-backend/internal/service"
)

// import_serials loads serial units from an .xlsx workbook into the database.
func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	file := flag.String("file", "", "Path to the .xlsx workbook")
	equipment := flag.String("equipment", "", "Equipment code for rows without one")
	dryRun := flag.Bool("dry-run", false, "Validate without inserting")
	maxErrors := flag.Int("max-errors", 50, "Abort after this many row errors")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	if cfg.Database.Driver == "memory" {
		log.Fatal("import_serials needs the postgres driver")
	}
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	store := postgres.NewStore(db)
	registry := service.NewSerialRegistry(store, security.NewTagIssuer(cfg.Auth.TagSecret), cfg.Rental.SerialPrefix, nil)
	catalog := service.NewCatalogService(store)

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()

	sum, err := importer.ImportSerials(context.Background(), registry, catalog, f, importer.Options{
		EquipmentCode: *equipment,
		DryRun:        *dryRun,
		MaxErrors:     *maxErrors,
	})
	fmt.Printf("inserted=%d skipped=%d errors=%d dry_run=%t\n", sum.Inserted, sum.Skipped, sum.Errors, sum.DryRun)
	for _, e := range sum.Samples {
		fmt.Printf("  %s row %d: %s\n", e.Sheet, e.Row, e.Message)
	}
	if err != nil {
		logger.Error("Import failed", "error", err)
		os.Exit(1)
	}
}
