package app

import (
	"time"

	"casavia/api/internal/store"
)

// JSON shapes returned by the API. Public payloads omit back-office fields.

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func propertyPayload(p store.Property) map[string]any {
	return map[string]any{
		"id":             p.ID,
		"code":           p.Code,
		"title":          p.Title,
		"description":    p.Description,
		"type":           p.Type,
		"status":         p.Status,
		"priceCents":     p.PriceCents,
		"currency":       p.Currency,
		"bedrooms":       p.Bedrooms,
		"bathrooms":      p.Bathrooms,
		"areaM2":         p.AreaM2,
		"address":        p.Address,
		"city":           p.City,
		"neighborhoodId": p.NeighborhoodID,
		"ownerId":        p.OwnerID,
		"features":       p.Features,
		"coverImageUrl":  p.CoverImageURL,
		"updatedBy":      p.UpdatedBy,
		"createdAt":      timestamp(p.CreatedAt),
		"updatedAt":      timestamp(p.UpdatedAt),
	}
}

func publicPropertyPayload(p store.Property) map[string]any {
	payload := propertyPayload(p)
	delete(payload, "ownerId")
	delete(payload, "updatedBy")
	return payload
}

func propertyListPayload(items []store.Property, public bool) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if public {
			payloads = append(payloads, publicPropertyPayload(item))
		} else {
			payloads = append(payloads, propertyPayload(item))
		}
	}
	return payloads
}

func imagePayload(img store.PropertyImage) map[string]any {
	return map[string]any{
		"id":          img.ID,
		"propertyId":  img.PropertyID,
		"cardUrl":     img.CardURL,
		"fullUrl":     img.FullURL,
		"position":    img.Position,
		"watermarked": img.Watermarked,
		"createdAt":   timestamp(img.CreatedAt),
	}
}

func imageListPayload(items []store.PropertyImage) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, imagePayload(item))
	}
	return payloads
}

func neighborhoodPayload(n store.Neighborhood) map[string]any {
	return map[string]any{
		"id":           n.ID,
		"slug":         n.Slug,
		"name":         n.Name,
		"city":         n.City,
		"description":  n.Description,
		"heroImageUrl": n.HeroImage,
		"highlights":   n.Highlights,
		"createdAt":    timestamp(n.CreatedAt),
		"updatedAt":    timestamp(n.UpdatedAt),
	}
}

func neighborhoodListPayload(items []store.Neighborhood) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, neighborhoodPayload(item))
	}
	return payloads
}

func ownerPayload(o store.Owner) map[string]any {
	return map[string]any{
		"id":        o.ID,
		"name":      o.Name,
		"email":     o.Email,
		"phone":     o.Phone,
		"notes":     o.Notes,
		"createdAt": timestamp(o.CreatedAt),
		"updatedAt": timestamp(o.UpdatedAt),
	}
}

func clientPayload(c store.Client) map[string]any {
	return map[string]any{
		"id":             c.ID,
		"name":           c.Name,
		"email":          c.Email,
		"phone":          c.Phone,
		"stage":          c.Stage,
		"budgetMinCents": c.BudgetMinCents,
		"budgetMaxCents": c.BudgetMaxCents,
		"notes":          c.Notes,
		"createdAt":      timestamp(c.CreatedAt),
		"updatedAt":      timestamp(c.UpdatedAt),
	}
}

func transactionPayload(t store.Transaction) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"propertyId":  t.PropertyID,
		"clientId":    t.ClientID,
		"kind":        t.Kind,
		"status":      t.Status,
		"amountCents": t.AmountCents,
		"currency":    t.Currency,
		"occurredOn":  t.OccurredOn.UTC().Format("2006-01-02"),
		"notes":       t.Notes,
		"createdAt":   timestamp(t.CreatedAt),
		"updatedAt":   timestamp(t.UpdatedAt),
	}
}

func inquiryPayload(i store.Inquiry) map[string]any {
	return map[string]any{
		"id":         i.ID,
		"name":       i.Name,
		"email":      i.Email,
		"phone":      i.Phone,
		"message":    i.Message,
		"propertyId": i.PropertyID,
		"status":     i.Status,
		"createdAt":  timestamp(i.CreatedAt),
	}
}

func auditPayload(e store.AuditEvent) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"actor":     e.Actor,
		"action":    e.Action,
		"entity":    e.Entity,
		"entityId":  e.EntityID,
		"detail":    e.Detail,
		"createdAt": timestamp(e.CreatedAt),
	}
}

func summaryPayload(s store.Summary) map[string]any {
	return map[string]any{
		"properties":          s.Properties,
		"publishedProperties": s.PublishedProperties,
		"clients":             s.Clients,
		"openInquiries":       s.OpenInquiries,
		"pendingTransactions": s.PendingTransactions,
	}
}
