package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertInquiry(ctx context.Context, item Inquiry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inquiries (id, name, email, phone, message, property_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'new')
	`, item.ID, item.Name, item.Email, item.Phone, item.Message, item.PropertyID)
	if err != nil {
		return fmt.Errorf("insert inquiry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListInquiries(ctx context.Context, status string, limit int) ([]Inquiry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, message, property_id, status, created_at
		FROM inquiries
		WHERE ($1='' OR status=$1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list inquiries: %w", err)
	}
	defer rows.Close()

	items := make([]Inquiry, 0)
	for rows.Next() {
		var item Inquiry
		if err := rows.Scan(&item.ID, &item.Name, &item.Email, &item.Phone, &item.Message, &item.PropertyID, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inquiry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inquiries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateInquiryStatus(ctx context.Context, inquiryID, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE inquiries SET status=$2 WHERE id=$1`, inquiryID, status)
	if err != nil {
		return fmt.Errorf("update inquiry status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update inquiry status rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
