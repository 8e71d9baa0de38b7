package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"bankledger/internal/config"
	"bankledger/internal/db"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.AppEnv, cfg.LogLevel)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	driver, err := migratepostgres.WithInstance(database.DB, &migratepostgres.Config{})
	if err != nil {
		logger.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		logger.Error("failed to open migrations", "path", cfg.MigrationsPath, "error", err)
		os.Exit(1)
	}

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		logger.Error("failed to read migration version", "error", verr)
		os.Exit(1)
	}
	logger.Info("migrations applied", "version", version, "dirty", dirty)
}
