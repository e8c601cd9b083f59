// Package postgres provides a PostgreSQL implementation of the storage
// interface. This is intended for self-hosted deployments.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reviewloop/reviewloop/storage"
)

// PostgreSQL provides storage operations using PostgreSQL.
type PostgreSQL struct {
	db *sql.DB
}

// New creates a new PostgreSQL storage instance.
func New(db *sql.DB) *PostgreSQL {
	return &PostgreSQL{db: db}
}

// NewFromDSN creates a new PostgreSQL storage instance from a connection string.
func NewFromDSN(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// Close closes the database connection.
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

// Migrate creates the required database tables.
func (p *PostgreSQL) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id SERIAL PRIMARY KEY,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			review_id TEXT NOT NULL,
			estimated_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_findings INTEGER NOT NULL DEFAULT 0,
			high_findings INTEGER NOT NULL DEFAULT 0,
			usage JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(owner, repo, pr_number, review_id)
		);

		CREATE INDEX IF NOT EXISTS idx_runs_pr ON runs(owner, repo, pr_number);
	`

	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// StoreRun records one completed review run.
func (p *PostgreSQL) StoreRun(ctx context.Context, run *storage.RunRecord) error {
	query := `
		INSERT INTO runs (owner, repo, pr_number, review_id, estimated_cost, total_findings, high_findings, usage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (owner, repo, pr_number, review_id) DO UPDATE SET
			estimated_cost = EXCLUDED.estimated_cost,
			total_findings = EXCLUDED.total_findings,
			high_findings = EXCLUDED.high_findings,
			usage = EXCLUDED.usage
	`

	_, err := p.db.ExecContext(ctx, query,
		run.Owner,
		run.Repo,
		run.PRNumber,
		run.ReviewID,
		run.EstimatedCost,
		run.TotalFindings,
		run.HighFindings,
		usageToJSON(run.Usage),
	)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	return nil
}

// ListRunsForPR retrieves all recorded runs for a pull request.
func (p *PostgreSQL) ListRunsForPR(ctx context.Context, owner, repo string, prNumber int) ([]*storage.RunRecord, error) {
	query := `
		SELECT owner, repo, pr_number, review_id, estimated_cost, total_findings, high_findings, usage, created_at
		FROM runs
		WHERE owner = $1 AND repo = $2 AND pr_number = $3
		ORDER BY created_at ASC
	`

	rows, err := p.db.QueryContext(ctx, query, owner, repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.RunRecord
	for rows.Next() {
		var run storage.RunRecord
		var usageJSON sql.NullString
		var createdAt time.Time

		if err := rows.Scan(
			&run.Owner,
			&run.Repo,
			&run.PRNumber,
			&run.ReviewID,
			&run.EstimatedCost,
			&run.TotalFindings,
			&run.HighFindings,
			&usageJSON,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Usage = usageFromJSON(usageJSON.String)
		run.CreatedAt = createdAt.Format(time.RFC3339)
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// Verify PostgreSQL implements Storage at compile time.
var _ storage.Storage = (*PostgreSQL)(nil)
