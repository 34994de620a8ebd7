package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: sanitizeResults(nonNil(results), q.Public), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: sanitizeResults(nonNil(results), q.Public), Total: total, Query: q.Text}
}

// IndexProperty indexes a listing (fire-and-forget to Meilisearch).
func (s *Service) IndexProperty(p PropertyRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexProperty(p); err != nil {
			log.Printf("search: index property %s: %v", p.ID, err)
		}
	}()
}

// IndexNeighborhood indexes a neighborhood (fire-and-forget to Meilisearch).
func (s *Service) IndexNeighborhood(n NeighborhoodRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNeighborhood(n); err != nil {
			log.Printf("search: index neighborhood %s: %v", n.ID, err)
		}
	}()
}

// IndexClient indexes a client (fire-and-forget to Meilisearch).
func (s *Service) IndexClient(c ClientRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexClient(c); err != nil {
			log.Printf("search: index client %s: %v", c.ID, err)
		}
	}()
}

// DeleteProperty removes a listing from the search index (fire-and-forget).
func (s *Service) DeleteProperty(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteProperty(id); err != nil {
			log.Printf("search: delete property %s: %v", id, err)
		}
	}()
}

// DeleteNeighborhood removes a neighborhood from the search index (fire-and-forget).
func (s *Service) DeleteNeighborhood(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNeighborhood(id); err != nil {
			log.Printf("search: delete neighborhood %s: %v", id, err)
		}
	}()
}

// DeleteClient removes a client from the search index (fire-and-forget).
func (s *Service) DeleteClient(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteClient(id); err != nil {
			log.Printf("search: delete client %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes loaded records to Meilisearch in bulk.
func (s *Service) ReindexAll(properties []PropertyRecord, neighborhoods []NeighborhoodRecord, clients []ClientRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(properties) > 0 {
		if err := s.meili.IndexProperties(properties); err != nil {
			log.Printf("search: reindex properties: %v", err)
		}
	}
	if len(neighborhoods) > 0 {
		if err := s.meili.IndexNeighborhoods(neighborhoods); err != nil {
			log.Printf("search: reindex neighborhoods: %v", err)
		}
	}
	if len(clients) > 0 {
		if err := s.meili.IndexClients(clients); err != nil {
			log.Printf("search: reindex clients: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	properties, neighborhoods, clients, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(properties, neighborhoods, clients)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

// sanitizeResults drops hits a public caller must never see, regardless of
// which backend produced them.
func sanitizeResults(results []Result, public bool) []Result {
	if !public {
		return results
	}
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		if result.Type == ResultClient {
			continue
		}
		if result.Type == ResultProperty && result.Status != "published" {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}
