// Package app wires the HTTP API to storage, search, media, email, and the
// intelligence chat pipeline.
package app

import (
	"context"
	"log"
	"strings"
	"time"

	"casavia/api/internal/auth"
	"casavia/api/internal/authpw"
	"casavia/api/internal/config"
	"casavia/api/internal/email"
	"casavia/api/internal/export"
	"casavia/api/internal/intelligence"
	"casavia/api/internal/media"
	"casavia/api/internal/rbac"
	"casavia/api/internal/search"
	"casavia/api/internal/store"
	"casavia/api/internal/util"
)

// Session is an authenticated back-office caller.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the slice of the Postgres store the service depends on.
type dataStore interface {
	Ping(ctx context.Context) error
	SummaryCounts(ctx context.Context) (store.Summary, error)

	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	ListProperties(ctx context.Context, filter store.PropertyFilter) ([]store.Property, error)
	GetProperty(ctx context.Context, propertyID string) (store.Property, error)
	GetPropertyByCode(ctx context.Context, code string) (store.Property, error)
	InsertProperty(ctx context.Context, item store.Property) error
	UpdateProperty(ctx context.Context, item store.Property) error
	UpdatePropertyStatus(ctx context.Context, propertyID, status, updatedBy string) error
	UpdatePropertyPrice(ctx context.Context, propertyID string, priceCents int64, updatedBy string) error
	UpdatePropertyCover(ctx context.Context, propertyID, coverURL string) error
	DeleteProperty(ctx context.Context, propertyID string) error

	InsertPropertyImage(ctx context.Context, image store.PropertyImage) error
	ListPropertyImages(ctx context.Context, propertyID string) ([]store.PropertyImage, error)
	GetPropertyImage(ctx context.Context, propertyID, imageID string) (store.PropertyImage, error)
	DeletePropertyImage(ctx context.Context, propertyID, imageID string) error
	NextImagePosition(ctx context.Context, propertyID string) (int, error)

	ListNeighborhoods(ctx context.Context) ([]store.Neighborhood, error)
	GetNeighborhood(ctx context.Context, neighborhoodID string) (store.Neighborhood, error)
	GetNeighborhoodBySlug(ctx context.Context, slug string) (store.Neighborhood, error)
	InsertNeighborhood(ctx context.Context, item store.Neighborhood) error
	UpdateNeighborhood(ctx context.Context, item store.Neighborhood) error
	DeleteNeighborhood(ctx context.Context, neighborhoodID string) error
	NeighborhoodPropertyCount(ctx context.Context, neighborhoodID string) (int, error)

	ListOwners(ctx context.Context) ([]store.Owner, error)
	GetOwner(ctx context.Context, ownerID string) (store.Owner, error)
	InsertOwner(ctx context.Context, item store.Owner) error
	UpdateOwner(ctx context.Context, item store.Owner) error
	DeleteOwner(ctx context.Context, ownerID string) error
	OwnerPropertyCount(ctx context.Context, ownerID string) (int, error)

	ListClients(ctx context.Context, stage string) ([]store.Client, error)
	GetClient(ctx context.Context, clientID string) (store.Client, error)
	InsertClient(ctx context.Context, item store.Client) error
	UpdateClient(ctx context.Context, item store.Client) error
	UpdateClientStage(ctx context.Context, clientID, stage string) error
	DeleteClient(ctx context.Context, clientID string) error
	SearchClientsByName(ctx context.Context, fragment string, limit int) ([]store.Client, error)

	ListTransactions(ctx context.Context, propertyID, clientID, status string, limit int) ([]store.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (store.Transaction, error)
	InsertTransaction(ctx context.Context, item store.Transaction) error
	UpdateTransactionStatus(ctx context.Context, transactionID, status string) error
	DeleteTransaction(ctx context.Context, transactionID string) error

	InsertInquiry(ctx context.Context, item store.Inquiry) error
	ListInquiries(ctx context.Context, status string, limit int) ([]store.Inquiry, error)
	UpdateInquiryStatus(ctx context.Context, inquiryID, status string) error

	GetSettings(ctx context.Context) (map[string]any, error)
	SaveSettings(ctx context.Context, settings map[string]any) error

	InsertAuditEvent(ctx context.Context, event store.AuditEvent) error
	ListAuditEvents(ctx context.Context, entity, entityID string, limit int) ([]store.AuditEvent, error)
}

// RefreshSessionStore persists refresh tokens. Redis when configured,
// Postgres otherwise.
type RefreshSessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// DBSessionStore keeps refresh sessions in Postgres when Redis is not
// configured.
type DBSessionStore struct {
	store *store.PostgresStore
}

func NewDBSessionStore(st *store.PostgresStore) *DBSessionStore {
	return &DBSessionStore{store: st}
}

func (d *DBSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return d.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (d *DBSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return d.store.LookupRefreshSession(ctx, tokenHash)
}

func (d *DBSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return d.store.RevokeRefreshSession(ctx, tokenHash)
}

// Options carries the optional collaborators. Nil members disable the
// corresponding feature instead of failing startup.
type Options struct {
	Sessions       RefreshSessionStore
	Search         *search.Service
	Media          *media.Processor
	Email          *email.Service
	Export         *export.Service
	InquiryLimiter intelligence.Limiter
}

// Service implements the back-office and public operations. It also serves
// as the intelligence pipeline's backend.
type Service struct {
	cfg      config.Config
	store    dataStore
	sessions RefreshSessionStore
	passwd   *authpw.Service
	search   *search.Service
	media    *media.Processor
	email    *email.Service
	export   *export.Service
	intel    *intelligence.Service

	inquiryLimiter intelligence.Limiter
}

func NewService(cfg config.Config, st dataStore, passwd *authpw.Service, opts Options) *Service {
	return &Service{
		cfg:            cfg,
		store:          st,
		sessions:       opts.Sessions,
		passwd:         passwd,
		search:         opts.Search,
		media:          opts.Media,
		email:          opts.Email,
		export:         opts.Export,
		inquiryLimiter: opts.InquiryLimiter,
	}
}

// EnableIntelligence turns on the chat pipeline. The service itself is the
// pipeline's backend, so this cannot happen inside NewService.
func (s *Service) EnableIntelligence(planner intelligence.Planner, limiter intelligence.Limiter, pendingTTL time.Duration) {
	s.intel = intelligence.NewService(planner, s, limiter, pendingTTL)
}

// Close stops background workers.
func (s *Service) Close() {
	if s.intel != nil {
		s.intel.Close()
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.passwd
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// Can checks whether the role may perform the action.
func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Bootstrap seeds default settings on an empty database and warms the
// search index. Errors are non-fatal; the caller logs and continues.
func (s *Service) Bootstrap(ctx context.Context) error {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	if len(settings) == 0 {
		defaults := map[string]any{
			"agencyName":   "Casavia Realty",
			"contactEmail": "",
			"contactPhone": "",
		}
		if err := s.store.SaveSettings(ctx, defaults); err != nil {
			return err
		}
		log.Printf("seeded default settings")
	}
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// CreateSession issues tokens for an already-authenticated user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	role := string(rbac.Normalize(user.Role))

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refreshToken := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user, time.Now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token, including the revocation list.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      string(rbac.Normalize(claims.Role)),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Refresh rotates the refresh token and issues a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		log.Printf("refresh rotation: revoke old token failed: %v", err)
	}
	return s.issueSession(ctx, user)
}

// Logout revokes the access token and, when supplied, the refresh token.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	return nil
}

// NotifyVerification emails the sign-up verification link. No-op without SMTP.
func (s *Service) NotifyVerification(ctx context.Context, emailAddr, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	name := "there"
	if user, err := s.store.GetUserByEmail(ctx, emailAddr); err == nil && user.DisplayName != "" {
		name = user.DisplayName
	}
	url := strings.TrimRight(s.cfg.AppURL, "/") + "/verify-email?token=" + token
	go func() {
		if err := s.email.SendVerificationEmail(emailAddr, name, url); err != nil {
			log.Printf("verification email to %s failed: %v", emailAddr, err)
		}
	}()
}

// NotifyPasswordReset emails the reset link. No-op without SMTP.
func (s *Service) NotifyPasswordReset(ctx context.Context, emailAddr, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	name := "there"
	if user, err := s.store.GetUserByEmail(ctx, emailAddr); err == nil && user.DisplayName != "" {
		name = user.DisplayName
	}
	url := strings.TrimRight(s.cfg.AppURL, "/") + "/reset-password?token=" + token
	go func() {
		if err := s.email.SendPasswordResetEmail(emailAddr, name, url); err != nil {
			log.Printf("password reset email to %s failed: %v", emailAddr, err)
		}
	}()
}

// Search runs full-text search. Public callers only see published listings
// and neighborhoods.
func (s *Service) Search(ctx context.Context, q, filterType, city string, limit, offset int, public bool) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(503, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(search.Query{
		Text:       q,
		FilterType: search.ResultType(filterType),
		FilterCity: city,
		Limit:      limit,
		Offset:     offset,
		Public:     public,
	}), nil
}

// Summary returns the dashboard counters. Also the intelligence backend's
// summary source.
func (s *Service) Summary(ctx context.Context) (store.Summary, error) {
	return s.store.SummaryCounts(ctx)
}

// ExportPropertyFlyer renders the one-page PDF flyer.
func (s *Service) ExportPropertyFlyer(ctx context.Context, propertyID string) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "PDF export is not configured", nil)
	}
	return s.export.ExportFlyer(ctx, propertyID)
}

// Intelligence chat surface.

func (s *Service) IntelligenceEnabled() bool {
	return s.intel != nil
}

func (s *Service) Chat(ctx context.Context, session Session, message string) (intelligence.Reply, error) {
	if s.intel == nil {
		return intelligence.Reply{}, domainError(503, "INTELLIGENCE_UNAVAILABLE", "The assistant is not configured", nil)
	}
	return s.intel.Chat(ctx, session.UserID, session.UserName, message)
}

func (s *Service) ConfirmAction(ctx context.Context, session Session, actionID string) (intelligence.Reply, error) {
	if s.intel == nil {
		return intelligence.Reply{}, domainError(503, "INTELLIGENCE_UNAVAILABLE", "The assistant is not configured", nil)
	}
	return s.intel.Confirm(ctx, session.UserID, session.UserName, actionID)
}

func (s *Service) CancelAction(session Session) (intelligence.Reply, error) {
	if s.intel == nil {
		return intelligence.Reply{}, domainError(503, "INTELLIGENCE_UNAVAILABLE", "The assistant is not configured", nil)
	}
	return s.intel.CancelPending(session.UserID), nil
}

func (s *Service) PendingAction(session Session) (intelligence.PendingAction, bool) {
	if s.intel == nil {
		return intelligence.PendingAction{}, false
	}
	return s.intel.Pending(session.UserID)
}

// AllowInquiry applies the per-IP rate limit for the public contact form.
func (s *Service) AllowInquiry(ctx context.Context, ip string) bool {
	if s.inquiryLimiter == nil {
		return true
	}
	allowed, err := s.inquiryLimiter.Allow(ctx, ip)
	if err != nil {
		log.Printf("inquiry rate limiter error, allowing request: %v", err)
		return true
	}
	return allowed
}

// audit records a back-office mutation. Failures are logged, never fatal.
func (s *Service) audit(ctx context.Context, actor, action, entity, entityID string, detail map[string]any) {
	err := s.store.InsertAuditEvent(ctx, store.AuditEvent{
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Detail:   detail,
	})
	if err != nil {
		log.Printf("audit write failed: action=%s entity=%s/%s err=%v", action, entity, entityID, err)
	}
}

// Search index hooks. All fire-and-forget; the search layer logs failures.

func (s *Service) indexProperty(p store.Property) {
	if s.search == nil {
		return
	}
	s.search.IndexProperty(propertyRecord(p))
}

func (s *Service) reindexProperty(ctx context.Context, propertyID string) {
	if s.search == nil {
		return
	}
	if p, err := s.store.GetProperty(ctx, propertyID); err == nil {
		s.search.IndexProperty(propertyRecord(p))
	}
}

func (s *Service) indexNeighborhood(n store.Neighborhood) {
	if s.search == nil {
		return
	}
	s.search.IndexNeighborhood(neighborhoodRecord(n))
}

func (s *Service) indexClient(c store.Client) {
	if s.search == nil {
		return
	}
	s.search.IndexClient(clientRecord(c))
}

func (s *Service) reindexClient(ctx context.Context, clientID string) {
	if s.search == nil {
		return
	}
	if c, err := s.store.GetClient(ctx, clientID); err == nil {
		s.search.IndexClient(clientRecord(c))
	}
}

func propertyRecord(p store.Property) search.PropertyRecord {
	record := search.PropertyRecord{
		ID:          p.ID,
		Code:        p.Code,
		Title:       p.Title,
		Description: p.Description,
		Address:     p.Address,
		City:        p.City,
		Status:      p.Status,
		Type:        p.Type,
	}
	if p.NeighborhoodID != nil {
		record.NeighborhoodID = *p.NeighborhoodID
	}
	return record
}

func neighborhoodRecord(n store.Neighborhood) search.NeighborhoodRecord {
	return search.NeighborhoodRecord{
		ID:          n.ID,
		Name:        n.Name,
		Description: n.Description,
		City:        n.City,
	}
}

func clientRecord(c store.Client) search.ClientRecord {
	return search.ClientRecord{
		ID:    c.ID,
		Name:  c.Name,
		Email: c.Email,
		Notes: c.Notes,
		Stage: c.Stage,
	}
}
