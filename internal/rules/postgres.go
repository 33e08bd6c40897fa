package rules

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed 001_create_category_rules.sql
var migrationSQL string

// PostgresConfig holds the connection settings for the PostgreSQL rule store
type PostgresConfig struct {
	// URL is a full connection string. When set the discrete fields are ignored.
	URL      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// pgxPool is the subset of *pgxpool.Pool the store needs
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	pool   pgxPool
	logger *slog.Logger
}

// OpenPostgres connects to PostgreSQL, runs the migration and returns the
// store along with the pool so the caller can close it.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, *pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := cfg.URL
	if connStr == "" {
		connStr = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	store := NewPostgresStore(pool, logger)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("Connected to PostgreSQL rule store", "host", cfg.Host, "database", cfg.Database)
	return store, pool, nil
}

// NewPostgresStore wraps an existing pool
func NewPostgresStore(pool pgxPool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Migrate creates the rules table if it does not exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	p.logger.Info("Running rule store migrations")
	if _, err := p.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

const selectRuleColumns = `SELECT id, user_id, merchant_pattern, category, priority, created_at, updated_at FROM category_rules`

func scanRule(row pgx.Row) (*CategoryRule, error) {
	var r CategoryRule
	if err := row.Scan(&r.ID, &r.UserID, &r.Pattern, &r.Category, &r.Priority, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule inserts a new rule
func (p *PostgresStore) CreateRule(ctx context.Context, rule *CategoryRule) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO category_rules (id, user_id, merchant_pattern, category, priority, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rule.ID, rule.UserID, rule.Pattern, rule.Category, rule.Priority, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by ID
func (p *PostgresStore) GetRule(ctx context.Context, userID, id string) (*CategoryRule, error) {
	row := p.pool.QueryRow(ctx, selectRuleColumns+` WHERE user_id = $1 AND id = $2`, userID, id)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying rule: %w", err)
	}
	return rule, nil
}

// ListRules returns the user's rules in evaluation order
func (p *PostgresStore) ListRules(ctx context.Context, userID string) ([]*CategoryRule, error) {
	rows, err := p.pool.Query(ctx,
		selectRuleColumns+` WHERE user_id = $1 ORDER BY priority DESC, updated_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*CategoryRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// UpdateRule replaces the mutable fields of an existing rule
func (p *PostgresStore) UpdateRule(ctx context.Context, rule *CategoryRule) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE category_rules SET merchant_pattern = $3, category = $4, priority = $5, updated_at = $6
		 WHERE user_id = $1 AND id = $2`,
		rule.UserID, rule.ID, rule.Pattern, rule.Category, rule.Priority, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, rule.ID)
	}
	return nil
}

// DeleteRule removes a rule
func (p *PostgresStore) DeleteRule(ctx context.Context, userID, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM category_rules WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
