package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProperty     ResultType = "property"
	ResultNeighborhood ResultType = "neighborhood"
	ResultClient       ResultType = "client"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type           ResultType `json:"type"`
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Snippet        string     `json:"snippet"`
	City           string     `json:"city,omitempty"`
	NeighborhoodID string     `json:"neighborhoodId,omitempty"`
	Status         string     `json:"status,omitempty"`
}

// Query describes a search request. Public queries only see published
// properties and neighborhoods; client records are back-office only.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types the caller may see
	FilterCity string
	Limit      int
	Offset     int
	Public     bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexProperty(p PropertyRecord) error
	IndexNeighborhood(n NeighborhoodRecord) error
	IndexClient(c ClientRecord) error
	DeleteProperty(id string) error
	DeleteNeighborhood(id string) error
	DeleteClient(id string) error
}

// PropertyRecord is the data we index for a listing.
type PropertyRecord struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Address        string `json:"address"`
	City           string `json:"city"`
	NeighborhoodID string `json:"neighborhoodId"`
	Status         string `json:"status"`
	Type           string `json:"type"`
}

// NeighborhoodRecord is the data we index for a neighborhood page.
type NeighborhoodRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	City        string `json:"city"`
}

// ClientRecord is the data we index for a CRM client.
type ClientRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Notes string `json:"notes"`
	Stage string `json:"stage"`
}
