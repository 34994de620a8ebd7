package store

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) ListNeighborhoods(ctx context.Context) ([]Neighborhood, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, name, city, description, COALESCE(hero_image_url, ''), highlights, created_at, updated_at
		FROM neighborhoods
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list neighborhoods: %w", err)
	}
	defer rows.Close()

	items := make([]Neighborhood, 0)
	for rows.Next() {
		var item Neighborhood
		var highlightsRaw []byte
		if err := rows.Scan(&item.ID, &item.Slug, &item.Name, &item.City, &item.Description, &item.HeroImage, &highlightsRaw, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan neighborhood: %w", err)
		}
		_ = json.Unmarshal(highlightsRaw, &item.Highlights)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighborhoods: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetNeighborhood(ctx context.Context, neighborhoodID string) (Neighborhood, error) {
	return s.getNeighborhoodBy(ctx, "id", neighborhoodID)
}

func (s *PostgresStore) GetNeighborhoodBySlug(ctx context.Context, slug string) (Neighborhood, error) {
	return s.getNeighborhoodBy(ctx, "slug", slug)
}

func (s *PostgresStore) getNeighborhoodBy(ctx context.Context, column, value string) (Neighborhood, error) {
	var item Neighborhood
	var highlightsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, city, description, COALESCE(hero_image_url, ''), highlights, created_at, updated_at
		FROM neighborhoods
		WHERE `+column+`=$1
	`, value).Scan(&item.ID, &item.Slug, &item.Name, &item.City, &item.Description, &item.HeroImage, &highlightsRaw, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Neighborhood{}, err
	}
	_ = json.Unmarshal(highlightsRaw, &item.Highlights)
	return item, nil
}

func (s *PostgresStore) InsertNeighborhood(ctx context.Context, item Neighborhood) error {
	highlights := item.Highlights
	if highlights == nil {
		highlights = []string{}
	}
	encoded, err := json.Marshal(highlights)
	if err != nil {
		return fmt.Errorf("marshal neighborhood highlights: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO neighborhoods (id, slug, name, city, description, hero_image_url, highlights)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7::jsonb)
	`, item.ID, item.Slug, item.Name, item.City, item.Description, item.HeroImage, string(encoded))
	if err != nil {
		return fmt.Errorf("insert neighborhood: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateNeighborhood(ctx context.Context, item Neighborhood) error {
	highlights := item.Highlights
	if highlights == nil {
		highlights = []string{}
	}
	encoded, err := json.Marshal(highlights)
	if err != nil {
		return fmt.Errorf("marshal neighborhood highlights: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE neighborhoods
		SET name=$2, city=$3, description=$4, hero_image_url=NULLIF($5, ''), highlights=$6::jsonb, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.City, item.Description, item.HeroImage, string(encoded))
	if err != nil {
		return fmt.Errorf("update neighborhood: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update neighborhood rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteNeighborhood(ctx context.Context, neighborhoodID string) error {
	var propertyCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties WHERE neighborhood_id=$1`, neighborhoodID).Scan(&propertyCount); err != nil {
		return fmt.Errorf("count neighborhood properties: %w", err)
	}
	if propertyCount > 0 {
		return fmt.Errorf("neighborhood has %d properties attached", propertyCount)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM neighborhoods WHERE id=$1`, neighborhoodID)
	if err != nil {
		return fmt.Errorf("delete neighborhood: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete neighborhood rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) NeighborhoodPropertyCount(ctx context.Context, neighborhoodID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM properties WHERE neighborhood_id=$1 AND status='published'
	`, neighborhoodID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count neighborhood properties: %w", err)
	}
	return count, nil
}
