package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"casavia/api/internal/email"
	"casavia/api/internal/intelligence"
	"casavia/api/internal/store"
	"casavia/api/internal/util"
)

// Owners.

type OwnerInput struct {
	Name  string
	Email string
	Phone string
	Notes string
}

func (s *Service) ListOwners(ctx context.Context) ([]store.Owner, error) {
	return s.store.ListOwners(ctx)
}

func (s *Service) GetOwner(ctx context.Context, ownerID string) (store.Owner, error) {
	return s.store.GetOwner(ctx, ownerID)
}

func (s *Service) CreateOwner(ctx context.Context, input OwnerInput, actor string) (store.Owner, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Owner{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	item := store.Owner{
		ID:    util.NewID("own"),
		Name:  name,
		Email: input.Email,
		Phone: input.Phone,
		Notes: input.Notes,
	}
	if err := s.store.InsertOwner(ctx, item); err != nil {
		return store.Owner{}, err
	}
	created, err := s.store.GetOwner(ctx, item.ID)
	if err != nil {
		return store.Owner{}, err
	}
	s.audit(ctx, actor, "owner.create", "owner", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

func (s *Service) UpdateOwner(ctx context.Context, ownerID string, input OwnerInput, actor string) (store.Owner, error) {
	existing, err := s.store.GetOwner(ctx, ownerID)
	if err != nil {
		return store.Owner{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Owner{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	existing.Name = name
	existing.Email = input.Email
	existing.Phone = input.Phone
	existing.Notes = input.Notes
	if err := s.store.UpdateOwner(ctx, existing); err != nil {
		return store.Owner{}, err
	}
	updated, err := s.store.GetOwner(ctx, ownerID)
	if err != nil {
		return store.Owner{}, err
	}
	s.audit(ctx, actor, "owner.update", "owner", ownerID, map[string]any{"name": updated.Name})
	return updated, nil
}

func (s *Service) DeleteOwner(ctx context.Context, ownerID, actor string) error {
	count, err := s.store.OwnerPropertyCount(ctx, ownerID)
	if err != nil {
		return err
	}
	if count > 0 {
		return domainError(http.StatusConflict, "OWNER_IN_USE", "Owner still has properties attached", map[string]any{"properties": count})
	}
	if err := s.store.DeleteOwner(ctx, ownerID); err != nil {
		return err
	}
	s.audit(ctx, actor, "owner.delete", "owner", ownerID, nil)
	return nil
}

// Clients.

type ClientInput struct {
	Name           string
	Email          string
	Phone          string
	Stage          string
	BudgetMinCents int64
	BudgetMaxCents int64
	Notes          string
}

func validClientStage(stage string) bool {
	switch stage {
	case "lead", "active", "closed":
		return true
	}
	return false
}

func (s *Service) ListClients(ctx context.Context, stage string) ([]store.Client, error) {
	if stage != "" && !validClientStage(stage) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "stage must be one of lead, active, closed", nil)
	}
	return s.store.ListClients(ctx, stage)
}

func (s *Service) GetClient(ctx context.Context, clientID string) (store.Client, error) {
	return s.store.GetClient(ctx, clientID)
}

func validateClientInput(input ClientInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if input.Stage != "" && !validClientStage(input.Stage) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "stage must be one of lead, active, closed", nil)
	}
	if input.BudgetMinCents < 0 || input.BudgetMaxCents < 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "budget bounds must not be negative", nil)
	}
	if input.BudgetMinCents > 0 && input.BudgetMaxCents > 0 && input.BudgetMinCents > input.BudgetMaxCents {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "budgetMinCents must not exceed budgetMaxCents", nil)
	}
	return nil
}

// CreateClient is shared by the admin API and the intelligence backend.
func (s *Service) CreateClient(ctx context.Context, client store.Client, actor string) (store.Client, error) {
	input := ClientInput{
		Name:           client.Name,
		Email:          client.Email,
		Phone:          client.Phone,
		Stage:          client.Stage,
		BudgetMinCents: client.BudgetMinCents,
		BudgetMaxCents: client.BudgetMaxCents,
		Notes:          client.Notes,
	}
	if err := validateClientInput(input); err != nil {
		return store.Client{}, err
	}
	if client.Stage == "" {
		client.Stage = "lead"
	}
	client.ID = util.NewID("cli")
	client.Name = strings.TrimSpace(client.Name)

	if err := s.store.InsertClient(ctx, client); err != nil {
		return store.Client{}, err
	}
	created, err := s.store.GetClient(ctx, client.ID)
	if err != nil {
		return store.Client{}, err
	}
	s.audit(ctx, actor, "client.create", "client", created.ID, map[string]any{"name": created.Name, "stage": created.Stage})
	s.indexClient(created)
	return created, nil
}

func (s *Service) UpdateClient(ctx context.Context, clientID string, input ClientInput, actor string) (store.Client, error) {
	existing, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, err
	}
	if input.Stage == "" {
		input.Stage = existing.Stage
	}
	if err := validateClientInput(input); err != nil {
		return store.Client{}, err
	}
	existing.Name = strings.TrimSpace(input.Name)
	existing.Email = input.Email
	existing.Phone = input.Phone
	existing.Stage = input.Stage
	existing.BudgetMinCents = input.BudgetMinCents
	existing.BudgetMaxCents = input.BudgetMaxCents
	existing.Notes = input.Notes

	if err := s.store.UpdateClient(ctx, existing); err != nil {
		return store.Client{}, err
	}
	updated, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, err
	}
	s.audit(ctx, actor, "client.update", "client", clientID, map[string]any{"name": updated.Name})
	s.indexClient(updated)
	return updated, nil
}

// UpdateClientStage is shared by the admin API and the intelligence backend.
func (s *Service) UpdateClientStage(ctx context.Context, clientID, stage, actor string) error {
	if !validClientStage(stage) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "stage must be one of lead, active, closed", nil)
	}
	if err := s.store.UpdateClientStage(ctx, clientID, stage); err != nil {
		return err
	}
	s.audit(ctx, actor, "client.stage", "client", clientID, map[string]any{"stage": stage})
	s.reindexClient(ctx, clientID)
	return nil
}

func (s *Service) DeleteClient(ctx context.Context, clientID, actor string) error {
	if err := s.store.DeleteClient(ctx, clientID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteClient(clientID)
	}
	s.audit(ctx, actor, "client.delete", "client", clientID, nil)
	return nil
}

// ClientCandidates feeds fuzzy entity resolution with client names.
func (s *Service) ClientCandidates(ctx context.Context, fragment string) ([]intelligence.Candidate, error) {
	clients, err := s.store.ListClients(ctx, "")
	if err != nil {
		return nil, err
	}
	candidates := make([]intelligence.Candidate, 0, len(clients))
	for _, c := range clients {
		candidates = append(candidates, intelligence.Candidate{ID: c.ID, Name: c.Name})
	}
	return candidates, nil
}

// Transactions.

type TransactionInput struct {
	PropertyID  *string
	ClientID    *string
	Kind        string
	Status      string
	AmountCents int64
	Currency    string
	OccurredOn  string
	Notes       string
}

func validTransactionKind(kind string) bool {
	switch kind {
	case "sale", "rent", "commission":
		return true
	}
	return false
}

func validTransactionStatus(status string) bool {
	switch status {
	case "pending", "paid", "cancelled":
		return true
	}
	return false
}

func (s *Service) ListTransactions(ctx context.Context, propertyID, clientID, status string, limit int) ([]store.Transaction, error) {
	if status != "" && !validTransactionStatus(status) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of pending, paid, cancelled", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.store.ListTransactions(ctx, propertyID, clientID, status, limit)
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (store.Transaction, error) {
	return s.store.GetTransaction(ctx, transactionID)
}

func (s *Service) CreateTransaction(ctx context.Context, input TransactionInput, actor string) (store.Transaction, error) {
	if !validTransactionKind(input.Kind) {
		return store.Transaction{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be one of sale, rent, commission", nil)
	}
	if input.Status == "" {
		input.Status = "pending"
	}
	if !validTransactionStatus(input.Status) {
		return store.Transaction{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of pending, paid, cancelled", nil)
	}
	if input.AmountCents <= 0 {
		return store.Transaction{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "amountCents must be positive", nil)
	}
	occurredOn := time.Now()
	if input.OccurredOn != "" {
		parsed, err := time.Parse("2006-01-02", input.OccurredOn)
		if err != nil {
			return store.Transaction{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "occurredOn must be a YYYY-MM-DD date", nil)
		}
		occurredOn = parsed
	}
	if input.PropertyID != nil && *input.PropertyID != "" {
		if _, err := s.store.GetProperty(ctx, *input.PropertyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Transaction{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "propertyId does not exist", nil)
			}
			return store.Transaction{}, err
		}
	}
	if input.ClientID != nil && *input.ClientID != "" {
		if _, err := s.store.GetClient(ctx, *input.ClientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Transaction{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "clientId does not exist", nil)
			}
			return store.Transaction{}, err
		}
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}

	item := store.Transaction{
		ID:          util.NewID("txn"),
		PropertyID:  input.PropertyID,
		ClientID:    input.ClientID,
		Kind:        input.Kind,
		Status:      input.Status,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		OccurredOn:  occurredOn,
		Notes:       input.Notes,
	}
	if err := s.store.InsertTransaction(ctx, item); err != nil {
		return store.Transaction{}, err
	}
	created, err := s.store.GetTransaction(ctx, item.ID)
	if err != nil {
		return store.Transaction{}, err
	}
	s.audit(ctx, actor, "transaction.create", "transaction", created.ID, map[string]any{"kind": created.Kind, "amountCents": created.AmountCents})
	return created, nil
}

func (s *Service) UpdateTransactionStatus(ctx context.Context, transactionID, status, actor string) error {
	if !validTransactionStatus(status) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of pending, paid, cancelled", nil)
	}
	if err := s.store.UpdateTransactionStatus(ctx, transactionID, status); err != nil {
		return err
	}
	s.audit(ctx, actor, "transaction.status", "transaction", transactionID, map[string]any{"status": status})
	return nil
}

func (s *Service) DeleteTransaction(ctx context.Context, transactionID, actor string) error {
	if err := s.store.DeleteTransaction(ctx, transactionID); err != nil {
		return err
	}
	s.audit(ctx, actor, "transaction.delete", "transaction", transactionID, nil)
	return nil
}

// Inquiries.

type InquiryInput struct {
	Name       string
	Email      string
	Phone      string
	Message    string
	PropertyID *string
}

// SubmitInquiry records a public contact form submission and notifies the
// agency inbox when SMTP is configured.
func (s *Service) SubmitInquiry(ctx context.Context, input InquiryInput) (store.Inquiry, error) {
	if strings.TrimSpace(input.Name) == "" {
		return store.Inquiry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if !strings.Contains(input.Email, "@") {
		return store.Inquiry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a valid email is required", nil)
	}
	if strings.TrimSpace(input.Message) == "" {
		return store.Inquiry{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message is required", nil)
	}

	var property store.Property
	if input.PropertyID != nil && *input.PropertyID != "" {
		found, err := s.store.GetProperty(ctx, *input.PropertyID)
		if err != nil {
			return store.Inquiry{}, err
		}
		if found.Status != "published" {
			return store.Inquiry{}, store.ErrNotFound
		}
		property = found
	}

	item := store.Inquiry{
		ID:         util.NewID("inq"),
		Name:       strings.TrimSpace(input.Name),
		Email:      strings.TrimSpace(input.Email),
		Phone:      strings.TrimSpace(input.Phone),
		Message:    strings.TrimSpace(input.Message),
		PropertyID: input.PropertyID,
		Status:     "new",
	}
	if err := s.store.InsertInquiry(ctx, item); err != nil {
		return store.Inquiry{}, err
	}

	s.notifyInquiry(ctx, item, property)
	return item, nil
}

func (s *Service) notifyInquiry(ctx context.Context, inquiry store.Inquiry, property store.Property) {
	if !s.SMTPConfigured() {
		return
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		log.Printf("inquiry notification: load settings: %v", err)
		return
	}
	inbox, _ := settings["contactEmail"].(string)
	if inbox == "" {
		return
	}
	data := email.InquiryData{
		InquirerName:  inquiry.Name,
		InquirerEmail: inquiry.Email,
		InquirerPhone: inquiry.Phone,
		Message:       inquiry.Message,
		PropertyTitle: property.Title,
		PropertyCode:  property.Code,
	}
	go func() {
		if err := s.email.SendInquiryNotification([]string{inbox}, data); err != nil {
			log.Printf("inquiry notification email failed: %v", err)
		}
	}()
}

func (s *Service) ListInquiries(ctx context.Context, status string, limit int) ([]store.Inquiry, error) {
	if status != "" && status != "new" && status != "handled" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be new or handled", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.store.ListInquiries(ctx, status, limit)
}

func (s *Service) UpdateInquiryStatus(ctx context.Context, inquiryID, status, actor string) error {
	if status != "new" && status != "handled" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be new or handled", nil)
	}
	if err := s.store.UpdateInquiryStatus(ctx, inquiryID, status); err != nil {
		return err
	}
	s.audit(ctx, actor, "inquiry.status", "inquiry", inquiryID, map[string]any{"status": status})
	return nil
}

// Settings.

func (s *Service) GetSettings(ctx context.Context) (map[string]any, error) {
	return s.store.GetSettings(ctx)
}

func (s *Service) SaveSettings(ctx context.Context, settings map[string]any, actor string) (map[string]any, error) {
	if len(settings) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "settings must not be empty", nil)
	}
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "settings.update", "settings", "", nil)
	return s.store.GetSettings(ctx)
}

// Audit trail.

func (s *Service) ListAuditEvents(ctx context.Context, entity, entityID string, limit int) ([]store.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAuditEvents(ctx, entity, entityID, limit)
}
