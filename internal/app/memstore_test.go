package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"casavia/api/internal/store"
)

// memStore is an in-memory dataStore (and authpw.UserStore) for handler tests.
type memStore struct {
	mu sync.Mutex

	users  map[string]store.User
	resets map[string]*passwordReset

	revoked map[string]bool

	properties    map[string]store.Property
	propertyOrder []string
	images        map[string][]store.PropertyImage

	neighborhoods map[string]store.Neighborhood
	owners        map[string]store.Owner
	clients       map[string]store.Client
	clientOrder   []string
	transactions  map[string]store.Transaction
	inquiries     []store.Inquiry

	settings map[string]any
	audits   []store.AuditEvent
	auditSeq int64
}

type passwordReset struct {
	userID string
	used   bool
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]store.User{},
		resets:        map[string]*passwordReset{},
		revoked:       map[string]bool{},
		properties:    map[string]store.Property{},
		images:        map[string][]store.PropertyImage{},
		neighborhoods: map[string]store.Neighborhood{},
		owners:        map[string]store.Owner{},
		clients:       map[string]store.Client{},
		transactions:  map[string]store.Transaction{},
		settings:      map[string]any{},
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) SummaryCounts(context.Context) (store.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := store.Summary{
		Properties: len(m.properties),
		Clients:    len(m.clients),
	}
	for _, p := range m.properties {
		if p.Status == "published" {
			summary.PublishedProperties++
		}
	}
	for _, i := range m.inquiries {
		if i.Status == "new" {
			summary.OpenInquiries++
		}
	}
	for _, t := range m.transactions {
		if t.Status == "pending" {
			summary.PendingTransactions++
		}
	}
	return summary, nil
}

// Users.

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) CountUsers(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	m.users[userID] = user
	return nil
}

func (m *memStore) VerifyUserEmail(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, user := range m.users {
		if user.VerificationToken == token && token != "" {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			m.users[id] = user
			return nil
		}
	}
	return errors.New("invalid or expired verification token")
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = &passwordReset{userID: userID}
	return nil
}

func (m *memStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset, ok := m.resets[token]
	if !ok || reset.used {
		return "", store.ErrNotFound
	}
	return reset.userID, nil
}

func (m *memStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reset, ok := m.resets[token]; ok {
		reset.used = true
	}
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

// Properties.

func (m *memStore) ListProperties(_ context.Context, f store.PropertyFilter) ([]store.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Property
	for _, id := range m.propertyOrder {
		p, ok := m.properties[id]
		if !ok {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.City != "" && !strings.EqualFold(p.City, f.City) {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.NeighborhoodID != "" && (p.NeighborhoodID == nil || *p.NeighborhoodID != f.NeighborhoodID) {
			continue
		}
		if f.MinPriceCents > 0 && p.PriceCents < f.MinPriceCents {
			continue
		}
		if f.MaxPriceCents > 0 && p.PriceCents > f.MaxPriceCents {
			continue
		}
		if f.MinBedrooms > 0 && p.Bedrooms < f.MinBedrooms {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, p)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) GetProperty(_ context.Context, propertyID string) (store.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[propertyID]
	if !ok {
		return store.Property{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) GetPropertyByCode(_ context.Context, code string) (store.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.properties {
		if p.Code == code {
			return p, nil
		}
	}
	return store.Property{}, store.ErrNotFound
}

func (m *memStore) InsertProperty(_ context.Context, item store.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.properties {
		if p.Code == item.Code {
			return errors.New(`duplicate key value violates unique constraint "properties_code_key"`)
		}
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	m.properties[item.ID] = item
	m.propertyOrder = append(m.propertyOrder, item.ID)
	return nil
}

func (m *memStore) UpdateProperty(_ context.Context, item store.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.properties[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now()
	m.properties[item.ID] = item
	return nil
}

func (m *memStore) UpdatePropertyStatus(_ context.Context, propertyID, status, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[propertyID]
	if !ok {
		return store.ErrNotFound
	}
	p.Status = status
	p.UpdatedBy = updatedBy
	p.UpdatedAt = time.Now()
	m.properties[propertyID] = p
	return nil
}

func (m *memStore) UpdatePropertyPrice(_ context.Context, propertyID string, priceCents int64, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[propertyID]
	if !ok {
		return store.ErrNotFound
	}
	p.PriceCents = priceCents
	p.UpdatedBy = updatedBy
	p.UpdatedAt = time.Now()
	m.properties[propertyID] = p
	return nil
}

func (m *memStore) UpdatePropertyCover(_ context.Context, propertyID, coverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[propertyID]
	if !ok {
		return store.ErrNotFound
	}
	p.CoverImageURL = coverURL
	m.properties[propertyID] = p
	return nil
}

func (m *memStore) DeleteProperty(_ context.Context, propertyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.properties[propertyID]; !ok {
		return store.ErrNotFound
	}
	delete(m.properties, propertyID)
	delete(m.images, propertyID)
	return nil
}

func (m *memStore) InsertPropertyImage(_ context.Context, image store.PropertyImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	image.CreatedAt = time.Now()
	m.images[image.PropertyID] = append(m.images[image.PropertyID], image)
	return nil
}

func (m *memStore) ListPropertyImages(_ context.Context, propertyID string) ([]store.PropertyImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.PropertyImage(nil), m.images[propertyID]...), nil
}

func (m *memStore) GetPropertyImage(_ context.Context, propertyID, imageID string) (store.PropertyImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range m.images[propertyID] {
		if img.ID == imageID {
			return img, nil
		}
	}
	return store.PropertyImage{}, store.ErrNotFound
}

func (m *memStore) DeletePropertyImage(_ context.Context, propertyID, imageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	images := m.images[propertyID]
	for i, img := range images {
		if img.ID == imageID {
			m.images[propertyID] = append(images[:i], images[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) NextImagePosition(_ context.Context, propertyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images[propertyID]), nil
}

// Neighborhoods.

func (m *memStore) ListNeighborhoods(context.Context) ([]store.Neighborhood, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Neighborhood, 0, len(m.neighborhoods))
	for _, n := range m.neighborhoods {
		out = append(out, n)
	}
	return out, nil
}

func (m *memStore) GetNeighborhood(_ context.Context, id string) (store.Neighborhood, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.neighborhoods[id]
	if !ok {
		return store.Neighborhood{}, store.ErrNotFound
	}
	return n, nil
}

func (m *memStore) GetNeighborhoodBySlug(_ context.Context, slug string) (store.Neighborhood, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.neighborhoods {
		if n.Slug == slug {
			return n, nil
		}
	}
	return store.Neighborhood{}, store.ErrNotFound
}

func (m *memStore) InsertNeighborhood(_ context.Context, item store.Neighborhood) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.neighborhoods {
		if n.Slug == item.Slug {
			return errors.New(`duplicate key value violates unique constraint "neighborhoods_slug_key"`)
		}
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	m.neighborhoods[item.ID] = item
	return nil
}

func (m *memStore) UpdateNeighborhood(_ context.Context, item store.Neighborhood) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.neighborhoods[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now()
	m.neighborhoods[item.ID] = item
	return nil
}

func (m *memStore) DeleteNeighborhood(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.neighborhoods[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.neighborhoods, id)
	return nil
}

func (m *memStore) NeighborhoodPropertyCount(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.properties {
		if p.NeighborhoodID != nil && *p.NeighborhoodID == id {
			count++
		}
	}
	return count, nil
}

// Owners.

func (m *memStore) ListOwners(context.Context) ([]store.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Owner, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, o)
	}
	return out, nil
}

func (m *memStore) GetOwner(_ context.Context, id string) (store.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return store.Owner{}, store.ErrNotFound
	}
	return o, nil
}

func (m *memStore) InsertOwner(_ context.Context, item store.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	m.owners[item.ID] = item
	return nil
}

func (m *memStore) UpdateOwner(_ context.Context, item store.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[item.ID]; !ok {
		return store.ErrNotFound
	}
	item.UpdatedAt = time.Now()
	m.owners[item.ID] = item
	return nil
}

func (m *memStore) OwnerPropertyCount(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.properties {
		if p.OwnerID != nil && *p.OwnerID == id {
			count++
		}
	}
	return count, nil
}

func (m *memStore) DeleteOwner(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.owners, id)
	return nil
}

// Clients.

func (m *memStore) ListClients(_ context.Context, stage string) ([]store.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Client
	for _, id := range m.clientOrder {
		c, ok := m.clients[id]
		if !ok {
			continue
		}
		if stage != "" && c.Stage != stage {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) GetClient(_ context.Context, id string) (store.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return store.Client{}, store.ErrNotFound
	}
	return c, nil
}

func (m *memStore) InsertClient(_ context.Context, item store.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	m.clients[item.ID] = item
	m.clientOrder = append(m.clientOrder, item.ID)
	return nil
}

func (m *memStore) UpdateClient(_ context.Context, item store.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[item.ID]; !ok {
		return store.ErrNotFound
	}
	item.UpdatedAt = time.Now()
	m.clients[item.ID] = item
	return nil
}

func (m *memStore) UpdateClientStage(_ context.Context, id, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Stage = stage
	c.UpdatedAt = time.Now()
	m.clients[id] = c
	return nil
}

func (m *memStore) DeleteClient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.clients, id)
	return nil
}

func (m *memStore) SearchClientsByName(_ context.Context, fragment string, limit int) ([]store.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Client
	for _, id := range m.clientOrder {
		c := m.clients[id]
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(fragment)) {
			out = append(out, c)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Transactions.

func (m *memStore) ListTransactions(_ context.Context, propertyID, clientID, status string, limit int) ([]store.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Transaction
	for _, t := range m.transactions {
		if propertyID != "" && (t.PropertyID == nil || *t.PropertyID != propertyID) {
			continue
		}
		if clientID != "" && (t.ClientID == nil || *t.ClientID != clientID) {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) GetTransaction(_ context.Context, id string) (store.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return store.Transaction{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memStore) InsertTransaction(_ context.Context, item store.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	m.transactions[item.ID] = item
	return nil
}

func (m *memStore) UpdateTransactionStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	m.transactions[id] = t
	return nil
}

func (m *memStore) DeleteTransaction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.transactions, id)
	return nil
}

// Inquiries.

func (m *memStore) InsertInquiry(_ context.Context, item store.Inquiry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.CreatedAt = time.Now()
	m.inquiries = append(m.inquiries, item)
	return nil
}

func (m *memStore) ListInquiries(_ context.Context, status string, limit int) ([]store.Inquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Inquiry
	for _, i := range m.inquiries {
		if status != "" && i.Status != status {
			continue
		}
		out = append(out, i)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpdateInquiryStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.inquiries {
		if m.inquiries[i].ID == id {
			m.inquiries[i].Status = status
			return nil
		}
	}
	return store.ErrNotFound
}

// Settings.

func (m *memStore) GetSettings(context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SaveSettings(_ context.Context, settings map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range settings {
		m.settings[k] = v
	}
	return nil
}

// Audit.

func (m *memStore) InsertAuditEvent(_ context.Context, event store.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditSeq++
	event.ID = m.auditSeq
	event.CreatedAt = time.Now()
	m.audits = append(m.audits, event)
	return nil
}

func (m *memStore) ListAuditEvents(_ context.Context, entity, entityID string, limit int) ([]store.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.AuditEvent
	for i := len(m.audits) - 1; i >= 0; i-- {
		event := m.audits[i]
		if entity != "" && event.Entity != entity {
			continue
		}
		if entityID != "" && event.EntityID != entityID {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// memSessions is an in-memory RefreshSessionStore.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]memSession
}

type memSession struct {
	user      store.User
	expiresAt time.Time
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]memSession{}}
}

func (m *memSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = memSession{user: user, expiresAt: expiresAt}
	return nil
}

func (m *memSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[tokenHash]
	if !ok || time.Now().After(session.expiresAt) {
		return store.User{}, store.ErrNotFound
	}
	return session.user, nil
}

func (m *memSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}
