package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Neighborhood struct {
	ID          string
	Slug        string
	Name        string
	City        string
	Description string
	HeroImage   string
	Highlights  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Owner struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Client struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	Stage          string // lead, active, closed
	BudgetMinCents int64
	BudgetMaxCents int64
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Property struct {
	ID             string
	Code           string
	Title          string
	Description    string
	Type           string // sale, rent
	Status         string // draft, published, reserved, sold
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
	CoverImageURL  string
	UpdatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PropertyFilter narrows public and admin listing queries. Zero values mean
// "no constraint"; price bounds are closed intervals in cents.
type PropertyFilter struct {
	City           string
	NeighborhoodID string
	Type           string
	Status         string
	MinPriceCents  int64
	MaxPriceCents  int64
	MinBedrooms    int
	Query          string
	Limit          int
	Offset         int
}

type PropertyImage struct {
	ID          string
	PropertyID  string
	ObjectKey   string
	CardURL     string
	FullURL     string
	Position    int
	Watermarked bool
	CreatedAt   time.Time
}

type Transaction struct {
	ID         string
	PropertyID *string
	ClientID   *string
	Kind       string // sale, rent, commission
	Status     string // pending, paid, cancelled
	AmountCents int64
	Currency   string
	OccurredOn time.Time
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Inquiry struct {
	ID         string
	Name       string
	Email      string
	Phone      string
	Message    string
	PropertyID *string
	Status     string // new, handled
	CreatedAt  time.Time
}

type AuditEvent struct {
	ID        int64
	Actor     string
	Action    string
	Entity    string
	EntityID  string
	Detail    map[string]any
	CreatedAt time.Time
}

// SummaryCounts feeds the admin dashboard.
type Summary struct {
	Properties          int
	PublishedProperties int
	Clients             int
	OpenInquiries       int
	PendingTransactions int
}
