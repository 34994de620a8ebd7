package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const propertyColumns = `
	id, code, title, description, type, status, price_cents, currency,
	bedrooms, bathrooms, area_m2, address, city, neighborhood_id, owner_id,
	features, COALESCE(cover_image_url, ''), updated_by_name, created_at, updated_at
`

func scanProperty(row interface{ Scan(...any) error }) (Property, error) {
	var item Property
	var featuresRaw []byte
	err := row.Scan(
		&item.ID,
		&item.Code,
		&item.Title,
		&item.Description,
		&item.Type,
		&item.Status,
		&item.PriceCents,
		&item.Currency,
		&item.Bedrooms,
		&item.Bathrooms,
		&item.AreaM2,
		&item.Address,
		&item.City,
		&item.NeighborhoodID,
		&item.OwnerID,
		&featuresRaw,
		&item.CoverImageURL,
		&item.UpdatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Property{}, err
	}
	if len(featuresRaw) > 0 {
		if err := json.Unmarshal(featuresRaw, &item.Features); err != nil {
			return Property{}, fmt.Errorf("decode property features: %w", err)
		}
	}
	return item, nil
}

// ListProperties applies the filter as a conjunction. Price bounds are closed
// comparisons so tightening a bound can only shrink the result set.
func (s *PostgresStore) ListProperties(ctx context.Context, filter PropertyFilter) ([]Property, error) {
	var clauses []string
	var args []any

	arg := func(value any) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.City != "" {
		clauses = append(clauses, "LOWER(city) = LOWER("+arg(filter.City)+")")
	}
	if filter.NeighborhoodID != "" {
		clauses = append(clauses, "neighborhood_id = "+arg(filter.NeighborhoodID))
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = "+arg(filter.Type))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(filter.Status))
	}
	if filter.MinPriceCents > 0 {
		clauses = append(clauses, "price_cents >= "+arg(filter.MinPriceCents))
	}
	if filter.MaxPriceCents > 0 {
		clauses = append(clauses, "price_cents <= "+arg(filter.MaxPriceCents))
	}
	if filter.MinBedrooms > 0 {
		clauses = append(clauses, "bedrooms >= "+arg(filter.MinBedrooms))
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		clauses = append(clauses, "(title ILIKE "+arg(pattern)+" OR code ILIKE "+arg(pattern)+" OR address ILIKE "+arg(pattern)+")")
	}

	query := "SELECT " + propertyColumns + " FROM properties"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	items := make([]Property, 0)
	for rows.Next() {
		item, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProperty(ctx context.Context, propertyID string) (Property, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+propertyColumns+" FROM properties WHERE id=$1", propertyID)
	return scanProperty(row)
}

func (s *PostgresStore) GetPropertyByCode(ctx context.Context, code string) (Property, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+propertyColumns+" FROM properties WHERE code=$1", code)
	return scanProperty(row)
}

func (s *PostgresStore) InsertProperty(ctx context.Context, item Property) error {
	features := item.Features
	if features == nil {
		features = []string{}
	}
	encoded, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal property features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO properties (
			id, code, title, description, type, status, price_cents, currency,
			bedrooms, bathrooms, area_m2, address, city, neighborhood_id, owner_id,
			features, updated_by_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::jsonb, $17)
	`, item.ID, item.Code, item.Title, item.Description, item.Type, item.Status,
		item.PriceCents, item.Currency, item.Bedrooms, item.Bathrooms, item.AreaM2,
		item.Address, item.City, item.NeighborhoodID, item.OwnerID, string(encoded), item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProperty(ctx context.Context, item Property) error {
	features := item.Features
	if features == nil {
		features = []string{}
	}
	encoded, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal property features: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE properties
		SET title=$2, description=$3, type=$4, status=$5, price_cents=$6, currency=$7,
			bedrooms=$8, bathrooms=$9, area_m2=$10, address=$11, city=$12,
			neighborhood_id=$13, owner_id=$14, features=$15::jsonb,
			updated_by_name=$16, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Description, item.Type, item.Status, item.PriceCents, item.Currency,
		item.Bedrooms, item.Bathrooms, item.AreaM2, item.Address, item.City,
		item.NeighborhoodID, item.OwnerID, string(encoded), item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update property rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePropertyStatus(ctx context.Context, propertyID, status, updatedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE properties SET status=$2, updated_by_name=$3, updated_at=NOW() WHERE id=$1
	`, propertyID, status, updatedBy)
	if err != nil {
		return fmt.Errorf("update property status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update property status rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePropertyPrice(ctx context.Context, propertyID string, priceCents int64, updatedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE properties SET price_cents=$2, updated_by_name=$3, updated_at=NOW() WHERE id=$1
	`, propertyID, priceCents, updatedBy)
	if err != nil {
		return fmt.Errorf("update property price: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update property price rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePropertyCover(ctx context.Context, propertyID, coverURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE properties SET cover_image_url=$2, updated_at=NOW() WHERE id=$1
	`, propertyID, coverURL)
	if err != nil {
		return fmt.Errorf("update property cover: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProperty(ctx context.Context, propertyID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE id=$1`, propertyID)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete property rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertPropertyImage(ctx context.Context, image PropertyImage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO property_images (id, property_id, object_key, card_url, full_url, position, watermarked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, image.ID, image.PropertyID, image.ObjectKey, image.CardURL, image.FullURL, image.Position, image.Watermarked)
	if err != nil {
		return fmt.Errorf("insert property image: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPropertyImages(ctx context.Context, propertyID string) ([]PropertyImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, property_id, object_key, card_url, full_url, position, watermarked, created_at
		FROM property_images
		WHERE property_id=$1
		ORDER BY position ASC, created_at ASC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list property images: %w", err)
	}
	defer rows.Close()

	items := make([]PropertyImage, 0)
	for rows.Next() {
		var item PropertyImage
		if err := rows.Scan(&item.ID, &item.PropertyID, &item.ObjectKey, &item.CardURL, &item.FullURL, &item.Position, &item.Watermarked, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan property image: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate property images: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPropertyImage(ctx context.Context, propertyID, imageID string) (PropertyImage, error) {
	var item PropertyImage
	err := s.db.QueryRowContext(ctx, `
		SELECT id, property_id, object_key, card_url, full_url, position, watermarked, created_at
		FROM property_images
		WHERE property_id=$1 AND id=$2
	`, propertyID, imageID).Scan(&item.ID, &item.PropertyID, &item.ObjectKey, &item.CardURL, &item.FullURL, &item.Position, &item.Watermarked, &item.CreatedAt)
	if err != nil {
		return PropertyImage{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeletePropertyImage(ctx context.Context, propertyID, imageID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM property_images WHERE property_id=$1 AND id=$2
	`, propertyID, imageID)
	if err != nil {
		return fmt.Errorf("delete property image: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete property image rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) NextImagePosition(ctx context.Context, propertyID string) (int, error) {
	var position int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1 FROM property_images WHERE property_id=$1
	`, propertyID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("next image position: %w", err)
	}
	return position, nil
}
