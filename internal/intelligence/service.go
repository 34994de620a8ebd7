package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"casavia/api/internal/store"
)

// ActionType enumerates what the planner may propose.
type ActionType string

const (
	ActionNone              ActionType = "none"
	ActionFindProperties    ActionType = "find_properties"
	ActionPropertyDetails   ActionType = "property_details"
	ActionSummary           ActionType = "summary"
	ActionUpdatePrice       ActionType = "update_price"
	ActionUpdateStatus      ActionType = "update_status"
	ActionUpdateClientStage ActionType = "update_client_stage"
	ActionCreateClient      ActionType = "create_client"
)

// mutating actions never execute without confirmation.
func (a ActionType) mutating() bool {
	switch a {
	case ActionUpdatePrice, ActionUpdateStatus, ActionUpdateClientStage, ActionCreateClient:
		return true
	}
	return false
}

// Proposal is the structured parse of one chat message.
type Proposal struct {
	Action     ActionType     `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"-"` // filled after resolution
	Fields     map[string]any `json:"fields"`
	Confidence float64        `json:"confidence"`
	Reply      string         `json:"reply"`
}

// Reply is what the chat endpoint returns.
type Reply struct {
	Message   string      `json:"message"`
	Executed  bool        `json:"executed"`
	PendingID string      `json:"pendingId,omitempty"`
	Choices   []Candidate `json:"choices,omitempty"`
	Data      any         `json:"data,omitempty"`
}

// Backend is the slice of the application the pipeline reads and mutates.
type Backend interface {
	FindProperties(ctx context.Context, filter store.PropertyFilter) ([]store.Property, error)
	PropertyCandidates(ctx context.Context, fragment string) ([]Candidate, error)
	GetProperty(ctx context.Context, propertyID string) (store.Property, error)
	ClientCandidates(ctx context.Context, fragment string) ([]Candidate, error)
	Summary(ctx context.Context) (store.Summary, error)
	UpdatePropertyPrice(ctx context.Context, propertyID string, priceCents int64, actor string) error
	UpdatePropertyStatus(ctx context.Context, propertyID, status, actor string) error
	UpdateClientStage(ctx context.Context, clientID, stage, actor string) error
	CreateClient(ctx context.Context, client store.Client, actor string) (store.Client, error)
}

var (
	ErrRateLimited = errors.New("chat rate limit exceeded")
	ErrNoPending   = errors.New("no pending action to confirm")
)

const minConfidence = 0.5

// Service runs the parse, resolve, confirm, execute pipeline.
type Service struct {
	planner Planner
	backend Backend
	limiter Limiter
	pending *PendingStore
	memory  *ChatMemory
}

func NewService(planner Planner, backend Backend, limiter Limiter, pendingTTL time.Duration) *Service {
	return &Service{
		planner: planner,
		backend: backend,
		limiter: limiter,
		pending: NewPendingStore(pendingTTL),
		memory:  NewChatMemory(6, 30*time.Minute),
	}
}

// Close stops background eviction.
func (s *Service) Close() {
	s.pending.Close()
}

// Pending returns the user's parked action, if any.
func (s *Service) Pending(userID string) (PendingAction, bool) {
	return s.pending.Get(userID)
}

// Chat handles one message. Read-only proposals execute immediately;
// mutations are parked until Confirm.
func (s *Service) Chat(ctx context.Context, userID, actorName, message string) (Reply, error) {
	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		log.Printf("intelligence: rate limiter error, allowing: %v", err)
	} else if !allowed {
		return Reply{}, ErrRateLimited
	}

	// Bare confirm/cancel shortcuts act on the parked proposal directly.
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "confirm", "yes", "ok":
		return s.Confirm(ctx, userID, actorName, "")
	case "cancel", "no":
		return s.CancelPending(userID), nil
	}

	prompt := buildPrompt(message, s.memory.Recent(userID))
	raw, err := s.planner.Plan(ctx, prompt)
	if err != nil {
		return Reply{}, fmt.Errorf("plan: %w", err)
	}

	proposal, ok := parseProposal(raw)
	if !ok || proposal.Confidence < minConfidence || proposal.Action == ActionNone {
		reply := Reply{Message: clarification(proposal)}
		s.memory.Append(userID, Exchange{UserMessage: message, Reply: reply.Message})
		return reply, nil
	}

	reply, err := s.dispatch(ctx, userID, actorName, proposal)
	if err != nil {
		return Reply{}, err
	}
	s.memory.Append(userID, Exchange{UserMessage: message, Reply: reply.Message})
	return reply, nil
}

// Confirm executes the parked mutation. An empty actionID confirms whatever
// is parked; a non-empty one must match.
func (s *Service) Confirm(ctx context.Context, userID, actorName, actionID string) (Reply, error) {
	action, ok := s.pending.Take(userID, actionID)
	if !ok {
		return Reply{}, ErrNoPending
	}
	message, err := s.execute(ctx, actorName, action.Proposal)
	if err != nil {
		return Reply{}, err
	}
	reply := Reply{Message: message, Executed: true}
	s.memory.Append(userID, Exchange{UserMessage: "confirm", Reply: message})
	return reply, nil
}

// CancelPending discards the parked action.
func (s *Service) CancelPending(userID string) Reply {
	if s.pending.Cancel(userID) {
		return Reply{Message: "Okay, I discarded the pending action."}
	}
	return Reply{Message: "There is nothing pending to cancel."}
}

func (s *Service) dispatch(ctx context.Context, userID, actorName string, proposal Proposal) (Reply, error) {
	switch proposal.Action {
	case ActionFindProperties:
		return s.findProperties(ctx, proposal)
	case ActionPropertyDetails:
		return s.propertyDetails(ctx, proposal)
	case ActionSummary:
		summary, err := s.backend.Summary(ctx)
		if err != nil {
			return Reply{}, err
		}
		return Reply{
			Message:  "Here is the current agency summary.",
			Executed: true,
			Data:     summary,
		}, nil
	case ActionUpdatePrice, ActionUpdateStatus:
		return s.parkPropertyMutation(ctx, userID, proposal)
	case ActionUpdateClientStage:
		return s.parkClientMutation(ctx, userID, proposal)
	case ActionCreateClient:
		name := fieldString(proposal.Fields, "name")
		if name == "" {
			return Reply{Message: "What is the client's name?"}, nil
		}
		summary := fmt.Sprintf("Create client %q", name)
		action := s.pending.Put(userID, proposal, summary)
		return confirmReply(action), nil
	default:
		return Reply{Message: clarification(proposal)}, nil
	}
}

func (s *Service) findProperties(ctx context.Context, proposal Proposal) (Reply, error) {
	filter := store.PropertyFilter{
		City:           fieldString(proposal.Fields, "city"),
		Type:           fieldString(proposal.Fields, "type"),
		Status:         fieldString(proposal.Fields, "status"),
		MinPriceCents:  fieldInt64(proposal.Fields, "minPriceCents"),
		MaxPriceCents:  fieldInt64(proposal.Fields, "maxPriceCents"),
		MinBedrooms:    int(fieldInt64(proposal.Fields, "minBedrooms")),
		Query:          fieldString(proposal.Fields, "query"),
		NeighborhoodID: fieldString(proposal.Fields, "neighborhoodId"),
		Limit:          10,
	}
	properties, err := s.backend.FindProperties(ctx, filter)
	if err != nil {
		return Reply{}, err
	}
	msg := fmt.Sprintf("I found %d matching properties.", len(properties))
	if len(properties) == 0 {
		msg = "No properties match those criteria."
	}
	return Reply{Message: msg, Executed: true, Data: properties}, nil
}

func (s *Service) propertyDetails(ctx context.Context, proposal Proposal) (Reply, error) {
	match, choices, reply, err := s.resolveProperty(ctx, proposal.Entity)
	if err != nil {
		return Reply{}, err
	}
	if reply != "" {
		return Reply{Message: reply, Choices: choices}, nil
	}
	property, err := s.backend.GetProperty(ctx, match.ID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Message:  fmt.Sprintf("Here are the details for %s.", property.Title),
		Executed: true,
		Data:     property,
	}, nil
}

func (s *Service) parkPropertyMutation(ctx context.Context, userID string, proposal Proposal) (Reply, error) {
	match, choices, reply, err := s.resolveProperty(ctx, proposal.Entity)
	if err != nil {
		return Reply{}, err
	}
	if reply != "" {
		return Reply{Message: reply, Choices: choices}, nil
	}
	proposal.EntityID = match.ID

	var summary string
	switch proposal.Action {
	case ActionUpdatePrice:
		cents := fieldInt64(proposal.Fields, "priceCents")
		if cents <= 0 {
			return Reply{Message: "What should the new price be?"}, nil
		}
		summary = fmt.Sprintf("Set price of %q to %s", match.Name, formatCents(cents))
	case ActionUpdateStatus:
		status := fieldString(proposal.Fields, "status")
		if !validPropertyStatus(status) {
			return Reply{Message: "Which status: draft, published, reserved, or sold?"}, nil
		}
		summary = fmt.Sprintf("Mark %q as %s", match.Name, status)
	}

	action := s.pending.Put(userID, proposal, summary)
	return confirmReply(action), nil
}

func (s *Service) parkClientMutation(ctx context.Context, userID string, proposal Proposal) (Reply, error) {
	stage := fieldString(proposal.Fields, "stage")
	if !validClientStage(stage) {
		return Reply{Message: "Which stage: lead, active, or closed?"}, nil
	}

	candidates, err := s.backend.ClientCandidates(ctx, proposal.Entity)
	if err != nil {
		return Reply{}, err
	}
	match, ambiguous, ok := Resolve(proposal.Entity, candidates)
	if !ok {
		return Reply{Message: fmt.Sprintf("I could not find a client matching %q.", proposal.Entity)}, nil
	}
	if ambiguous {
		return Reply{
			Message: fmt.Sprintf("Several clients match %q. Which one did you mean?", proposal.Entity),
			Choices: topChoices(proposal.Entity, candidates),
		}, nil
	}

	proposal.EntityID = match.ID
	summary := fmt.Sprintf("Move client %q to stage %s", match.Name, stage)
	action := s.pending.Put(userID, proposal, summary)
	return confirmReply(action), nil
}

// resolveProperty fuzzy-matches a free-text reference against listings. A
// non-empty reply means resolution failed or was ambiguous.
func (s *Service) resolveProperty(ctx context.Context, entity string) (Match, []Candidate, string, error) {
	if strings.TrimSpace(entity) == "" {
		return Match{}, nil, "Which property do you mean?", nil
	}
	candidates, err := s.backend.PropertyCandidates(ctx, entity)
	if err != nil {
		return Match{}, nil, "", err
	}
	match, ambiguous, ok := Resolve(entity, candidates)
	if !ok {
		return Match{}, nil, fmt.Sprintf("I could not find a property matching %q.", entity), nil
	}
	if ambiguous {
		return Match{}, topChoices(entity, candidates),
			fmt.Sprintf("Several properties match %q. Which one did you mean?", entity), nil
	}
	return match, nil, "", nil
}

func (s *Service) execute(ctx context.Context, actorName string, proposal Proposal) (string, error) {
	switch proposal.Action {
	case ActionUpdatePrice:
		cents := fieldInt64(proposal.Fields, "priceCents")
		if err := s.backend.UpdatePropertyPrice(ctx, proposal.EntityID, cents, actorName); err != nil {
			return "", err
		}
		return fmt.Sprintf("Done, price updated to %s.", formatCents(cents)), nil
	case ActionUpdateStatus:
		status := fieldString(proposal.Fields, "status")
		if err := s.backend.UpdatePropertyStatus(ctx, proposal.EntityID, status, actorName); err != nil {
			return "", err
		}
		return fmt.Sprintf("Done, status set to %s.", status), nil
	case ActionUpdateClientStage:
		stage := fieldString(proposal.Fields, "stage")
		if err := s.backend.UpdateClientStage(ctx, proposal.EntityID, stage, actorName); err != nil {
			return "", err
		}
		return fmt.Sprintf("Done, client moved to %s.", stage), nil
	case ActionCreateClient:
		client := store.Client{
			Name:  fieldString(proposal.Fields, "name"),
			Email: fieldString(proposal.Fields, "email"),
			Phone: fieldString(proposal.Fields, "phone"),
			Stage: "lead",
		}
		created, err := s.backend.CreateClient(ctx, client, actorName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Done, client %q created.", created.Name), nil
	default:
		return "", fmt.Errorf("unexpected pending action %q", proposal.Action)
	}
}

func confirmReply(action PendingAction) Reply {
	return Reply{
		Message:   action.Summary + ". Reply \"confirm\" to apply or \"cancel\" to discard.",
		PendingID: action.ID,
	}
}

func topChoices(query string, candidates []Candidate) []Candidate {
	matches := RankMatches(query, candidates)
	if len(matches) > 5 {
		matches = matches[:5]
	}
	choices := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		choices = append(choices, m.Candidate)
	}
	return choices
}

func clarification(proposal Proposal) string {
	if strings.TrimSpace(proposal.Reply) != "" {
		return proposal.Reply
	}
	return "I did not catch that. You can ask me to find properties, show a summary, update a price or status, or move a client to a new stage."
}

// parseProposal tolerates code fences and stray text around the JSON body.
func parseProposal(raw string) (Proposal, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Proposal{}, false
	}

	var p Proposal
	if err := json.Unmarshal([]byte(raw[start:end+1]), &p); err != nil {
		return Proposal{}, false
	}
	if p.Fields == nil {
		p.Fields = map[string]any{}
	}
	return p, true
}

func buildPrompt(message string, history []Exchange) string {
	var b strings.Builder
	b.WriteString(`You are the assistant of a real-estate brokerage back office.
Turn the user's message into exactly one JSON object:
{"action": "...", "entity": "...", "fields": {...}, "confidence": 0.0-1.0, "reply": "..."}

Actions:
- find_properties: fields may include city, type (sale|rent), status, minPriceCents, maxPriceCents, minBedrooms, query
- property_details: entity is the property title or code
- summary: agency-wide counts
- update_price: entity is the property, fields.priceCents is the new price in integer cents
- update_status: entity is the property, fields.status is one of draft|published|reserved|sold
- update_client_stage: entity is the client name, fields.stage is one of lead|active|closed
- create_client: fields.name, optional fields.email and fields.phone
- none: anything else; put a short clarification in "reply"

All prices are integer cents. Respond with JSON only.
`)
	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, ex := range history {
			b.WriteString("User: " + ex.UserMessage + "\n")
			b.WriteString("Assistant: " + ex.Reply + "\n")
		}
	}
	b.WriteString("\nUser message: " + message + "\n")
	return b.String()
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func fieldInt64(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		var n int64
		_, _ = fmt.Sscan(v, &n)
		return n
	}
	return 0
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func validPropertyStatus(status string) bool {
	switch status {
	case "draft", "published", "reserved", "sold":
		return true
	}
	return false
}

func validClientStage(stage string) bool {
	switch stage {
	case "lead", "active", "closed":
		return true
	}
	return false
}
