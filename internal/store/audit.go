package store

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	detail := event.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (actor_name, action, entity, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, event.Actor, event.Action, event.Entity, event.EntityID, string(encoded))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, entity, entityID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_name, action, entity, entity_id, detail, created_at
		FROM audit_events
		WHERE ($1='' OR entity=$1)
		  AND ($2='' OR entity_id=$2)
		ORDER BY created_at DESC
		LIMIT $3
	`, entity, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEvent, 0)
	for rows.Next() {
		var item AuditEvent
		var detailRaw []byte
		if err := rows.Scan(&item.ID, &item.Actor, &item.Action, &item.Entity, &item.EntityID, &detailRaw, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		_ = json.Unmarshal(detailRaw, &item.Detail)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return items, nil
}
