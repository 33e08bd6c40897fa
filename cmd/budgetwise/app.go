package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.etcd.io/bbolt"

	"github.com/zombor/budgetwise/internal/categorize"
	"github.com/zombor/budgetwise/internal/receipt"
	"github.com/zombor/budgetwise/internal/rules"
)

// app is the categorization pipeline shared by every subcommand
type app struct {
	db   *bbolt.DB
	pool *pgxpool.Pool

	rules      *rules.Service
	classifier *categorize.Classifier
	batch      *categorize.BatchCategorizer
	parser     *receipt.Parser
}

func openApp(ctx context.Context, root *rootCommand) (*app, error) {
	slog.Info("Initializing database...", "path", *root.dbPath)
	db, err := bbolt.Open(*root.dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{db: db}

	if err := a.init(ctx, root); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, root *rootCommand) error {
	var store rules.Store
	switch *root.rulesBackend {
	case "bolt":
		boltStore, err := rules.NewBoltStore(a.db)
		if err != nil {
			return fmt.Errorf("initializing rule store: %w", err)
		}
		store = boltStore
	case "postgres":
		if *root.postgresURL == "" {
			return fmt.Errorf("--postgres-url is required for the postgres rule store")
		}
		pgStore, pool, err := rules.OpenPostgres(ctx, rules.PostgresConfig{URL: *root.postgresURL}, slog.Default())
		if err != nil {
			return fmt.Errorf("initializing rule store: %w", err)
		}
		a.pool = pool
		store = pgStore
	default:
		return fmt.Errorf("invalid rules backend %q (valid: bolt, postgres)", *root.rulesBackend)
	}

	prefs, err := categorize.NewBoltPreferences(a.db)
	if err != nil {
		return fmt.Errorf("initializing preference store: %w", err)
	}

	table, err := loadTable(*root.categoryTable)
	if err != nil {
		return err
	}

	a.rules = rules.NewService(store)
	a.classifier = categorize.NewClassifier(table, a.rules, prefs)
	a.batch = categorize.NewBatchCategorizer(a.classifier, *root.batchWorkers)
	a.parser = receipt.NewParser(a.classifier)
	return nil
}

func loadTable(path string) (*categorize.Table, error) {
	if path == "" {
		return categorize.DefaultTable()
	}
	slog.Info("Loading category table", "path", path)
	return categorize.LoadTable(path)
}

// Close releases the database and any Postgres pool
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}
