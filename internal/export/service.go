package export

import (
	"context"
	"fmt"

	"casavia/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProperty(ctx context.Context, propertyID string) (store.Property, error)
	GetNeighborhood(ctx context.Context, neighborhoodID string) (store.Neighborhood, error)
	ListPropertyImages(ctx context.Context, propertyID string) ([]store.PropertyImage, error)
	GetSettings(ctx context.Context) (map[string]any, error)
}

// Service renders property flyers.
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// maxFlyerPhotos caps how many photos the one-page flyer carries.
const maxFlyerPhotos = 4

// ExportFlyer renders the property as a one-page PDF flyer.
func (s *Service) ExportFlyer(ctx context.Context, propertyID string) (*Result, error) {
	property, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}

	data := FlyerData{
		AgencyName:  "Casavia Realty",
		Title:       property.Title,
		Code:        property.Code,
		Description: property.Description,
		Type:        property.Type,
		Price:       FormatPrice(property.PriceCents, property.Currency),
		Bedrooms:    property.Bedrooms,
		Bathrooms:   property.Bathrooms,
		AreaM2:      property.AreaM2,
		Address:     property.Address,
		City:        property.City,
		Features:    property.Features,
	}

	if settings, err := s.store.GetSettings(ctx); err == nil {
		if name, ok := settings["agencyName"].(string); ok && name != "" {
			data.AgencyName = name
		}
		if email, ok := settings["contactEmail"].(string); ok {
			data.ContactEmail = email
		}
		if phone, ok := settings["contactPhone"].(string); ok {
			data.ContactPhone = phone
		}
	}

	if property.NeighborhoodID != nil {
		if nb, err := s.store.GetNeighborhood(ctx, *property.NeighborhoodID); err == nil {
			data.Neighborhood = nb.Name
		}
	}

	images, err := s.store.ListPropertyImages(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list property images: %w", err)
	}
	for _, img := range images {
		if len(data.ImageURLs) >= maxFlyerPhotos {
			break
		}
		if img.CardURL != "" {
			data.ImageURLs = append(data.ImageURLs, img.CardURL)
		}
	}

	html, err := RenderFlyerHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render flyer: %w", err)
	}

	return exportPDF(html, property.Code+" "+property.Title)
}
