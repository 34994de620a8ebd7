package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"casavia/api/internal/intelligence"
	"casavia/api/internal/store"
	"casavia/api/internal/util"
)

// PropertyInput carries the writable listing fields.
type PropertyInput struct {
	Title          string
	Description    string
	Type           string
	Status         string
	PriceCents     int64
	Currency       string
	Bedrooms       int
	Bathrooms      int
	AreaM2         float64
	Address        string
	City           string
	NeighborhoodID *string
	OwnerID        *string
	Features       []string
}

func validPropertyStatus(status string) bool {
	switch status {
	case "draft", "published", "reserved", "sold":
		return true
	}
	return false
}

func validPropertyType(typ string) bool {
	return typ == "sale" || typ == "rent"
}

func (s *Service) validatePropertyInput(ctx context.Context, input PropertyInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if !validPropertyType(input.Type) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be sale or rent", nil)
	}
	if input.Status != "" && !validPropertyStatus(input.Status) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of draft, published, reserved, sold", nil)
	}
	if input.PriceCents <= 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "priceCents must be positive", nil)
	}
	if input.Bedrooms < 0 || input.Bathrooms < 0 || input.AreaM2 < 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "bedrooms, bathrooms, and areaM2 must not be negative", nil)
	}
	if input.NeighborhoodID != nil && *input.NeighborhoodID != "" {
		if _, err := s.store.GetNeighborhood(ctx, *input.NeighborhoodID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "neighborhoodId does not exist", nil)
			}
			return err
		}
	}
	if input.OwnerID != nil && *input.OwnerID != "" {
		if _, err := s.store.GetOwner(ctx, *input.OwnerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ownerId does not exist", nil)
			}
			return err
		}
	}
	return nil
}

// newPropertyCode produces the short public reference, e.g. CAS-4F2A1B.
func newPropertyCode() string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("CAS-%X", buf)
}

func (s *Service) CreateProperty(ctx context.Context, input PropertyInput, actor string) (store.Property, error) {
	if err := s.validatePropertyInput(ctx, input); err != nil {
		return store.Property{}, err
	}
	if input.Status == "" {
		input.Status = "draft"
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}

	item := store.Property{
		ID:             util.NewID("prop"),
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Type:           input.Type,
		Status:         input.Status,
		PriceCents:     input.PriceCents,
		Currency:       input.Currency,
		Bedrooms:       input.Bedrooms,
		Bathrooms:      input.Bathrooms,
		AreaM2:         input.AreaM2,
		Address:        input.Address,
		City:           input.City,
		NeighborhoodID: input.NeighborhoodID,
		OwnerID:        input.OwnerID,
		Features:       input.Features,
		UpdatedBy:      actor,
	}

	// Codes are random; retry the rare collision.
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		item.Code = newPropertyCode()
		err = s.store.InsertProperty(ctx, item)
		if err == nil || !strings.Contains(err.Error(), "duplicate key") {
			break
		}
	}
	if err != nil {
		return store.Property{}, err
	}

	created, err := s.store.GetProperty(ctx, item.ID)
	if err != nil {
		return store.Property{}, err
	}
	s.audit(ctx, actor, "property.create", "property", created.ID, map[string]any{"code": created.Code, "title": created.Title})
	s.indexProperty(created)
	return created, nil
}

func (s *Service) UpdateProperty(ctx context.Context, propertyID string, input PropertyInput, actor string) (store.Property, error) {
	existing, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return store.Property{}, err
	}
	if input.Status == "" {
		input.Status = existing.Status
	}
	if input.Currency == "" {
		input.Currency = existing.Currency
	}
	if err := s.validatePropertyInput(ctx, input); err != nil {
		return store.Property{}, err
	}

	existing.Title = strings.TrimSpace(input.Title)
	existing.Description = input.Description
	existing.Type = input.Type
	existing.Status = input.Status
	existing.PriceCents = input.PriceCents
	existing.Currency = input.Currency
	existing.Bedrooms = input.Bedrooms
	existing.Bathrooms = input.Bathrooms
	existing.AreaM2 = input.AreaM2
	existing.Address = input.Address
	existing.City = input.City
	existing.NeighborhoodID = input.NeighborhoodID
	existing.OwnerID = input.OwnerID
	existing.Features = input.Features
	existing.UpdatedBy = actor

	if err := s.store.UpdateProperty(ctx, existing); err != nil {
		return store.Property{}, err
	}
	updated, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return store.Property{}, err
	}
	s.audit(ctx, actor, "property.update", "property", propertyID, map[string]any{"code": updated.Code})
	s.indexProperty(updated)
	return updated, nil
}

// UpdatePropertyStatus also serves the publish/unpublish endpoints and the
// intelligence backend.
func (s *Service) UpdatePropertyStatus(ctx context.Context, propertyID, status, actor string) error {
	if !validPropertyStatus(status) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of draft, published, reserved, sold", nil)
	}
	if err := s.store.UpdatePropertyStatus(ctx, propertyID, status, actor); err != nil {
		return err
	}
	s.audit(ctx, actor, "property.status", "property", propertyID, map[string]any{"status": status})
	s.reindexProperty(ctx, propertyID)
	return nil
}

// UpdatePropertyPrice is shared by the admin API and the intelligence backend.
func (s *Service) UpdatePropertyPrice(ctx context.Context, propertyID string, priceCents int64, actor string) error {
	if priceCents <= 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "priceCents must be positive", nil)
	}
	if err := s.store.UpdatePropertyPrice(ctx, propertyID, priceCents, actor); err != nil {
		return err
	}
	s.audit(ctx, actor, "property.price", "property", propertyID, map[string]any{"priceCents": priceCents})
	s.reindexProperty(ctx, propertyID)
	return nil
}

func (s *Service) GetProperty(ctx context.Context, propertyID string) (store.Property, error) {
	return s.store.GetProperty(ctx, propertyID)
}

func (s *Service) ListProperties(ctx context.Context, filter store.PropertyFilter) ([]store.Property, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListProperties(ctx, filter)
}

// FindProperties is the intelligence backend's listing search.
func (s *Service) FindProperties(ctx context.Context, filter store.PropertyFilter) ([]store.Property, error) {
	return s.ListProperties(ctx, filter)
}

// PropertyCandidates feeds fuzzy entity resolution with listing titles.
func (s *Service) PropertyCandidates(ctx context.Context, fragment string) ([]intelligence.Candidate, error) {
	properties, err := s.store.ListProperties(ctx, store.PropertyFilter{Limit: 500})
	if err != nil {
		return nil, err
	}
	candidates := make([]intelligence.Candidate, 0, len(properties))
	for _, p := range properties {
		// An exact code reference resolves without fuzzy matching.
		if strings.EqualFold(p.Code, strings.TrimSpace(fragment)) {
			return []intelligence.Candidate{{ID: p.ID, Name: p.Title}}, nil
		}
		candidates = append(candidates, intelligence.Candidate{ID: p.ID, Name: p.Title})
	}
	return candidates, nil
}

func (s *Service) DeleteProperty(ctx context.Context, propertyID string, actor string) error {
	property, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	images, err := s.store.ListPropertyImages(ctx, propertyID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProperty(ctx, propertyID); err != nil {
		return err
	}
	if s.media != nil {
		for _, img := range images {
			if err := s.media.Remove(ctx, img.ObjectKey); err != nil {
				log.Printf("remove stored image %s: %v", img.ObjectKey, err)
			}
		}
	}
	if s.search != nil {
		s.search.DeleteProperty(propertyID)
	}
	s.audit(ctx, actor, "property.delete", "property", propertyID, map[string]any{"code": property.Code})
	return nil
}

// PublicListProperties only ever returns published listings.
func (s *Service) PublicListProperties(ctx context.Context, filter store.PropertyFilter) ([]store.Property, error) {
	filter.Status = "published"
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 24
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListProperties(ctx, filter)
}

// PublicGetProperty resolves an ID or public code to a published listing.
// Anything unpublished reads as not found.
func (s *Service) PublicGetProperty(ctx context.Context, idOrCode string) (store.Property, []store.PropertyImage, error) {
	property, err := s.store.GetProperty(ctx, idOrCode)
	if errors.Is(err, store.ErrNotFound) {
		property, err = s.store.GetPropertyByCode(ctx, idOrCode)
	}
	if err != nil {
		return store.Property{}, nil, err
	}
	if property.Status != "published" {
		return store.Property{}, nil, store.ErrNotFound
	}
	images, err := s.store.ListPropertyImages(ctx, property.ID)
	if err != nil {
		return store.Property{}, nil, err
	}
	return property, images, nil
}

// Property images.

func (s *Service) ListPropertyImages(ctx context.Context, propertyID string) ([]store.PropertyImage, error) {
	if _, err := s.store.GetProperty(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.store.ListPropertyImages(ctx, propertyID)
}

func (s *Service) AddPropertyImage(ctx context.Context, propertyID string, data []byte, actor string) (store.PropertyImage, error) {
	if s.media == nil {
		return store.PropertyImage{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Image storage is not configured", nil)
	}
	property, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return store.PropertyImage{}, err
	}

	imageID := util.NewID("img")
	keyPrefix := fmt.Sprintf("properties/%s/%s", property.ID, imageID)
	variants, err := s.media.ProcessAndStore(ctx, keyPrefix, data)
	if err != nil {
		if strings.Contains(err.Error(), "decode image") {
			return store.PropertyImage{}, domainError(http.StatusUnprocessableEntity, "INVALID_IMAGE", "The upload is not a readable image", nil)
		}
		return store.PropertyImage{}, err
	}

	position, err := s.store.NextImagePosition(ctx, propertyID)
	if err != nil {
		return store.PropertyImage{}, err
	}
	image := store.PropertyImage{
		ID:          imageID,
		PropertyID:  propertyID,
		ObjectKey:   keyPrefix,
		CardURL:     variants.CardURL,
		FullURL:     variants.FullURL,
		Position:    position,
		Watermarked: variants.Watermarked,
	}
	if err := s.store.InsertPropertyImage(ctx, image); err != nil {
		return store.PropertyImage{}, err
	}
	if property.CoverImageURL == "" {
		if err := s.store.UpdatePropertyCover(ctx, propertyID, variants.CardURL); err != nil {
			log.Printf("set cover for %s: %v", propertyID, err)
		}
	}
	s.audit(ctx, actor, "property.image_add", "property", propertyID, map[string]any{"imageId": imageID})
	return image, nil
}

func (s *Service) RemovePropertyImage(ctx context.Context, propertyID, imageID, actor string) error {
	image, err := s.store.GetPropertyImage(ctx, propertyID, imageID)
	if err != nil {
		return err
	}
	if s.media != nil {
		if err := s.media.Remove(ctx, image.ObjectKey); err != nil {
			log.Printf("remove stored image %s: %v", image.ObjectKey, err)
		}
	}
	if err := s.store.DeletePropertyImage(ctx, propertyID, imageID); err != nil {
		return err
	}

	property, err := s.store.GetProperty(ctx, propertyID)
	if err == nil && property.CoverImageURL == image.CardURL {
		cover := ""
		if remaining, err := s.store.ListPropertyImages(ctx, propertyID); err == nil && len(remaining) > 0 {
			cover = remaining[0].CardURL
		}
		if err := s.store.UpdatePropertyCover(ctx, propertyID, cover); err != nil {
			log.Printf("reset cover for %s: %v", propertyID, err)
		}
	}
	s.audit(ctx, actor, "property.image_remove", "property", propertyID, map[string]any{"imageId": imageID})
	return nil
}

func (s *Service) SetPropertyCover(ctx context.Context, propertyID, imageID, actor string) error {
	image, err := s.store.GetPropertyImage(ctx, propertyID, imageID)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePropertyCover(ctx, propertyID, image.CardURL); err != nil {
		return err
	}
	s.audit(ctx, actor, "property.cover", "property", propertyID, map[string]any{"imageId": imageID})
	return nil
}

// Neighborhoods.

// NeighborhoodInput carries the writable neighborhood fields.
type NeighborhoodInput struct {
	Name        string
	City        string
	Description string
	HeroImage   string
	Highlights  []string
}

func (s *Service) ListNeighborhoods(ctx context.Context) ([]store.Neighborhood, error) {
	return s.store.ListNeighborhoods(ctx)
}

func (s *Service) GetNeighborhood(ctx context.Context, neighborhoodID string) (store.Neighborhood, error) {
	return s.store.GetNeighborhood(ctx, neighborhoodID)
}

func (s *Service) GetNeighborhoodBySlug(ctx context.Context, slug string) (store.Neighborhood, error) {
	return s.store.GetNeighborhoodBySlug(ctx, slug)
}

func (s *Service) CreateNeighborhood(ctx context.Context, input NeighborhoodInput, actor string) (store.Neighborhood, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Neighborhood{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	item := store.Neighborhood{
		ID:          util.NewID("nbh"),
		Slug:        util.Slugify(name),
		Name:        name,
		City:        input.City,
		Description: input.Description,
		HeroImage:   input.HeroImage,
		Highlights:  input.Highlights,
	}
	if err := s.store.InsertNeighborhood(ctx, item); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return store.Neighborhood{}, domainError(http.StatusConflict, "SLUG_EXISTS", "A neighborhood with this name already exists", nil)
		}
		return store.Neighborhood{}, err
	}
	created, err := s.store.GetNeighborhood(ctx, item.ID)
	if err != nil {
		return store.Neighborhood{}, err
	}
	s.audit(ctx, actor, "neighborhood.create", "neighborhood", created.ID, map[string]any{"slug": created.Slug})
	s.indexNeighborhood(created)
	return created, nil
}

func (s *Service) UpdateNeighborhood(ctx context.Context, neighborhoodID string, input NeighborhoodInput, actor string) (store.Neighborhood, error) {
	existing, err := s.store.GetNeighborhood(ctx, neighborhoodID)
	if err != nil {
		return store.Neighborhood{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Neighborhood{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	existing.Name = name
	existing.Slug = util.Slugify(name)
	existing.City = input.City
	existing.Description = input.Description
	existing.HeroImage = input.HeroImage
	existing.Highlights = input.Highlights

	if err := s.store.UpdateNeighborhood(ctx, existing); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return store.Neighborhood{}, domainError(http.StatusConflict, "SLUG_EXISTS", "A neighborhood with this name already exists", nil)
		}
		return store.Neighborhood{}, err
	}
	updated, err := s.store.GetNeighborhood(ctx, neighborhoodID)
	if err != nil {
		return store.Neighborhood{}, err
	}
	s.audit(ctx, actor, "neighborhood.update", "neighborhood", neighborhoodID, map[string]any{"slug": updated.Slug})
	s.indexNeighborhood(updated)
	return updated, nil
}

func (s *Service) DeleteNeighborhood(ctx context.Context, neighborhoodID, actor string) error {
	count, err := s.store.NeighborhoodPropertyCount(ctx, neighborhoodID)
	if err != nil {
		return err
	}
	if count > 0 {
		return domainError(http.StatusConflict, "NEIGHBORHOOD_IN_USE", "Properties still reference this neighborhood", map[string]any{"properties": count})
	}
	if err := s.store.DeleteNeighborhood(ctx, neighborhoodID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteNeighborhood(neighborhoodID)
	}
	s.audit(ctx, actor, "neighborhood.delete", "neighborhood", neighborhoodID, nil)
	return nil
}
