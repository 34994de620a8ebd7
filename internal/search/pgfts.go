package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across properties, neighborhoods, and
// clients using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Properties sub-query
	if q.FilterType == "" || q.FilterType == ResultProperty {
		propWhere := "pr.search_tsv @@ " + tsQuery
		if q.FilterCity != "" {
			propWhere += fmt.Sprintf(" AND LOWER(pr.city) = LOWER($%d)", argN)
			args = append(args, q.FilterCity)
			argN++
		}
		if q.Public {
			propWhere += " AND pr.status = 'published'"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'property'::text AS type, pr.id, pr.title,
				ts_headline('simple', coalesce(pr.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				pr.city, coalesce(pr.neighborhood_id, '') AS neighborhood_id, pr.status,
				ts_rank(pr.search_tsv, %s) AS rank
			FROM properties pr
			WHERE %s`, tsQuery, tsQuery, propWhere))
	}

	// Neighborhoods sub-query
	if q.FilterType == "" || q.FilterType == ResultNeighborhood {
		nbWhere := "nb.search_tsv @@ " + tsQuery
		if q.FilterCity != "" {
			nbWhere += fmt.Sprintf(" AND LOWER(nb.city) = LOWER($%d)", argN)
			args = append(args, q.FilterCity)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'neighborhood'::text AS type, nb.id, nb.name AS title,
				ts_headline('simple', coalesce(nb.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				nb.city, nb.id AS neighborhood_id, ''::text AS status,
				ts_rank(nb.search_tsv, %s) AS rank
			FROM neighborhoods nb
			WHERE %s`, tsQuery, tsQuery, nbWhere))
	}

	// Clients sub-query, back office only
	if !q.Public && (q.FilterType == "" || q.FilterType == ResultClient) {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'client'::text AS type, cl.id, cl.name AS title,
				ts_headline('simple', coalesce(cl.notes, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS city, ''::text AS neighborhood_id, cl.stage AS status,
				ts_rank(cl.search_tsv, %s) AS rank
			FROM clients cl
			WHERE cl.search_tsv @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, city, neighborhood_id, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.City, &r.NeighborhoodID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PropertyRecord, []NeighborhoodRecord, []ClientRecord, error) {
	propRows, err := p.db.QueryContext(ctx, `
		SELECT id, code, title, description, address, city, coalesce(neighborhood_id, ''), status, type
		FROM properties
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load properties: %w", err)
	}
	defer propRows.Close()

	properties := make([]PropertyRecord, 0)
	for propRows.Next() {
		var pr PropertyRecord
		if err := propRows.Scan(&pr.ID, &pr.Code, &pr.Title, &pr.Description, &pr.Address, &pr.City, &pr.NeighborhoodID, &pr.Status, &pr.Type); err != nil {
			return nil, nil, nil, fmt.Errorf("scan property: %w", err)
		}
		properties = append(properties, pr)
	}
	if err := propRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate properties: %w", err)
	}

	nbRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, city
		FROM neighborhoods
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load neighborhoods: %w", err)
	}
	defer nbRows.Close()

	neighborhoods := make([]NeighborhoodRecord, 0)
	for nbRows.Next() {
		var nb NeighborhoodRecord
		if err := nbRows.Scan(&nb.ID, &nb.Name, &nb.Description, &nb.City); err != nil {
			return nil, nil, nil, fmt.Errorf("scan neighborhood: %w", err)
		}
		neighborhoods = append(neighborhoods, nb)
	}
	if err := nbRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate neighborhoods: %w", err)
	}

	clientRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, notes, stage
		FROM clients
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load clients: %w", err)
	}
	defer clientRows.Close()

	clients := make([]ClientRecord, 0)
	for clientRows.Next() {
		var c ClientRecord
		if err := clientRows.Scan(&c.ID, &c.Name, &c.Email, &c.Notes, &c.Stage); err != nil {
			return nil, nil, nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := clientRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate clients: %w", err)
	}

	return properties, neighborhoods, clients, nil
}
