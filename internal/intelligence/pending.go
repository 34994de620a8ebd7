package intelligence

import (
	"sync"
	"time"

	"casavia/api/internal/util"
)

// PendingAction is a mutating proposal parked until the user confirms it.
type PendingAction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Proposal  Proposal  `json:"proposal"`
	Summary   string    `json:"summary"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PendingStore keeps at most one pending action per user, with TTL eviction.
// Entries expire lazily on access and a background sweep clears abandoned ones.
type PendingStore struct {
	mu     sync.Mutex
	byUser map[string]PendingAction
	ttl    time.Duration
	done   chan struct{}
}

// NewPendingStore creates a store and starts its sweep loop.
func NewPendingStore(ttl time.Duration) *PendingStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	p := &PendingStore{
		byUser: make(map[string]PendingAction),
		ttl:    ttl,
		done:   make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

// Put parks a proposal for the user, replacing any earlier one, and returns
// the action ID the confirm call must echo.
func (p *PendingStore) Put(userID string, proposal Proposal, summary string) PendingAction {
	action := PendingAction{
		ID:        util.NewID("act"),
		UserID:    userID,
		Proposal:  proposal,
		Summary:   summary,
		ExpiresAt: time.Now().Add(p.ttl),
	}
	p.mu.Lock()
	p.byUser[userID] = action
	p.mu.Unlock()
	return action
}

// Get returns the user's pending action if it exists and has not expired.
func (p *PendingStore) Get(userID string) (PendingAction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	action, ok := p.byUser[userID]
	if !ok {
		return PendingAction{}, false
	}
	if time.Now().After(action.ExpiresAt) {
		delete(p.byUser, userID)
		return PendingAction{}, false
	}
	return action, true
}

// Take removes and returns the pending action when the ID matches and it has
// not expired. A mismatched ID leaves the action in place.
func (p *PendingStore) Take(userID, actionID string) (PendingAction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	action, ok := p.byUser[userID]
	if !ok {
		return PendingAction{}, false
	}
	if time.Now().After(action.ExpiresAt) {
		delete(p.byUser, userID)
		return PendingAction{}, false
	}
	if actionID != "" && action.ID != actionID {
		return PendingAction{}, false
	}
	delete(p.byUser, userID)
	return action, true
}

// Cancel discards the user's pending action, if any.
func (p *PendingStore) Cancel(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byUser[userID]
	delete(p.byUser, userID)
	return ok
}

// Close stops the sweep loop.
func (p *PendingStore) Close() {
	close(p.done)
}

func (p *PendingStore) sweepLoop() {
	interval := p.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			now := time.Now()
			p.mu.Lock()
			for userID, action := range p.byUser {
				if now.After(action.ExpiresAt) {
					delete(p.byUser, userID)
				}
			}
			p.mu.Unlock()
		}
	}
}
