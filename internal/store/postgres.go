package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) SummaryCounts(ctx context.Context) (Summary, error) {
	var summary Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM properties),
			(SELECT COUNT(*) FROM properties WHERE status='published'),
			(SELECT COUNT(*) FROM clients),
			(SELECT COUNT(*) FROM inquiries WHERE status='new'),
			(SELECT COUNT(*) FROM transactions WHERE status='pending')
	`).Scan(
		&summary.Properties,
		&summary.PublishedProperties,
		&summary.Clients,
		&summary.OpenInquiries,
		&summary.PendingTransactions,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("summary counts: %w", err)
	}
	return summary, nil
}
