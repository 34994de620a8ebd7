package store

import (
	"context"
	"fmt"
	"time"
)

const transactionColumns = `
	id, property_id, client_id, kind, status, amount_cents, currency, occurred_on, notes, created_at, updated_at
`

func (s *PostgresStore) ListTransactions(ctx context.Context, propertyID, clientID, status string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1='' OR property_id=$1)
		  AND ($2='' OR client_id=$2)
		  AND ($3='' OR status=$3)
		ORDER BY occurred_on DESC, created_at DESC
		LIMIT $4
	`, propertyID, clientID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	items := make([]Transaction, 0)
	for rows.Next() {
		var item Transaction
		if err := rows.Scan(&item.ID, &item.PropertyID, &item.ClientID, &item.Kind, &item.Status, &item.AmountCents, &item.Currency, &item.OccurredOn, &item.Notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, transactionID string) (Transaction, error) {
	var item Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id=$1
	`, transactionID).Scan(&item.ID, &item.PropertyID, &item.ClientID, &item.Kind, &item.Status, &item.AmountCents, &item.Currency, &item.OccurredOn, &item.Notes, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, item Transaction) error {
	occurredOn := item.OccurredOn
	if occurredOn.IsZero() {
		occurredOn = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, property_id, client_id, kind, status, amount_cents, currency, occurred_on, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.PropertyID, item.ClientID, item.Kind, item.Status, item.AmountCents, item.Currency, occurredOn, item.Notes)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTransactionStatus(ctx context.Context, transactionID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status=$2, updated_at=NOW() WHERE id=$1
	`, transactionID, status)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction status rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTransaction(ctx context.Context, transactionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id=$1`, transactionID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
