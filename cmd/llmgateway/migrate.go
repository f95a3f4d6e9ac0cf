package main

import (
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/internal/migration"
)

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	down := fs.Bool("down", false, "roll back the last migration instead of applying")
	status := fs.Bool("status", false, "print the current migration version")
	_ = fs.Parse(args)

	cfg := mustConfig(*configPath)
	logger := mustLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	mg, err := migration.New(cfg.Database.URL)
	if err != nil {
		logger.Fatal("create migrator", zap.Error(err))
	}
	defer func() { _ = mg.Close() }()

	switch {
	case *status:
		version, dirty, err := mg.Status()
		if err != nil {
			logger.Fatal("migration status", zap.Error(err))
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
	case *down:
		if err := mg.Down(); err != nil {
			logger.Fatal("migrate down", zap.Error(err))
		}
		logger.Info("rolled back one migration")
	default:
		if err := mg.Up(); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		logger.Info("migrations applied")
	}
}
