package store

import (
	"context"
	"fmt"
)

// Owners

func (s *PostgresStore) ListOwners(ctx context.Context) ([]Owner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, notes, created_at, updated_at
		FROM owners
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	items := make([]Owner, 0)
	for rows.Next() {
		var item Owner
		if err := rows.Scan(&item.ID, &item.Name, &item.Email, &item.Phone, &item.Notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetOwner(ctx context.Context, ownerID string) (Owner, error) {
	var item Owner
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, notes, created_at, updated_at
		FROM owners WHERE id=$1
	`, ownerID).Scan(&item.ID, &item.Name, &item.Email, &item.Phone, &item.Notes, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Owner{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertOwner(ctx context.Context, item Owner) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owners (id, name, email, phone, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.Name, item.Email, item.Phone, item.Notes)
	if err != nil {
		return fmt.Errorf("insert owner: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateOwner(ctx context.Context, item Owner) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE owners SET name=$2, email=$3, phone=$4, notes=$5, updated_at=NOW() WHERE id=$1
	`, item.ID, item.Name, item.Email, item.Phone, item.Notes)
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update owner rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) OwnerPropertyCount(ctx context.Context, ownerID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties WHERE owner_id=$1`, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count owner properties: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteOwner(ctx context.Context, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM owners WHERE id=$1`, ownerID)
	if err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete owner rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Clients

func (s *PostgresStore) ListClients(ctx context.Context, stage string) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, stage, budget_min_cents, budget_max_cents, notes, created_at, updated_at
		FROM clients
		WHERE ($1='' OR stage=$1)
		ORDER BY updated_at DESC
	`, stage)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		var item Client
		if err := rows.Scan(&item.ID, &item.Name, &item.Email, &item.Phone, &item.Stage, &item.BudgetMinCents, &item.BudgetMaxCents, &item.Notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (Client, error) {
	var item Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, stage, budget_min_cents, budget_max_cents, notes, created_at, updated_at
		FROM clients WHERE id=$1
	`, clientID).Scan(&item.ID, &item.Name, &item.Email, &item.Phone, &item.Stage, &item.BudgetMinCents, &item.BudgetMaxCents, &item.Notes, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Client{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertClient(ctx context.Context, item Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, email, phone, stage, budget_min_cents, budget_max_cents, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.Name, item.Email, item.Phone, item.Stage, item.BudgetMinCents, item.BudgetMaxCents, item.Notes)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateClient(ctx context.Context, item Client) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET name=$2, email=$3, phone=$4, stage=$5, budget_min_cents=$6, budget_max_cents=$7, notes=$8, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Email, item.Phone, item.Stage, item.BudgetMinCents, item.BudgetMaxCents, item.Notes)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update client rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateClientStage(ctx context.Context, clientID, stage string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET stage=$2, updated_at=NOW() WHERE id=$1
	`, clientID, stage)
	if err != nil {
		return fmt.Errorf("update client stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update client stage rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteClient(ctx context.Context, clientID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id=$1`, clientID)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete client rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchClientsByName matches names loosely for the intelligence resolver.
func (s *PostgresStore) SearchClientsByName(ctx context.Context, fragment string, limit int) ([]Client, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, stage, budget_min_cents, budget_max_cents, notes, created_at, updated_at
		FROM clients
		WHERE $1='' OR name ILIKE '%' || $1 || '%'
		ORDER BY updated_at DESC
		LIMIT $2
	`, fragment, limit)
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		var item Client
		if err := rows.Scan(&item.ID, &item.Name, &item.Email, &item.Phone, &item.Stage, &item.BudgetMinCents, &item.BudgetMaxCents, &item.Notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}
