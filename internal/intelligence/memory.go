package intelligence

import (
	"sync"
	"time"
)

// Exchange is one user message and the assistant's reply.
type Exchange struct {
	UserMessage string
	Reply       string
	At          time.Time
}

// ChatMemory keeps the last few exchanges per user so the planner can resolve
// references like "that property". Entries older than the TTL are dropped, and
// users whose whole history has gone stale are evicted on the next append.
type ChatMemory struct {
	mu        sync.Mutex
	byUser    map[string][]Exchange
	max       int
	ttl       time.Duration
	nextSweep time.Time
}

func NewChatMemory(max int, ttl time.Duration) *ChatMemory {
	if max <= 0 {
		max = 6
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ChatMemory{
		byUser: make(map[string][]Exchange),
		max:    max,
		ttl:    ttl,
	}
}

// Append records an exchange, keeping only the newest max entries.
func (m *ChatMemory) Append(userID string, ex Exchange) {
	if ex.At.IsZero() {
		ex.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.After(m.nextSweep) {
		cutoff := now.Add(-m.ttl)
		for id, history := range m.byUser {
			if len(history) == 0 || !history[len(history)-1].At.After(cutoff) {
				delete(m.byUser, id)
			}
		}
		m.nextSweep = now.Add(m.ttl)
	}

	history := append(m.fresh(userID), ex)
	if len(history) > m.max {
		history = history[len(history)-m.max:]
	}
	m.byUser[userID] = history
}

// Recent returns the user's fresh exchanges, oldest first.
func (m *ChatMemory) Recent(userID string) []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.fresh(userID)
	if len(history) == 0 {
		delete(m.byUser, userID)
		return nil
	}
	m.byUser[userID] = history
	out := make([]Exchange, len(history))
	copy(out, history)
	return out
}

// fresh filters out expired entries. Caller holds the lock.
func (m *ChatMemory) fresh(userID string) []Exchange {
	cutoff := time.Now().Add(-m.ttl)
	history := m.byUser[userID]
	kept := history[:0]
	for _, ex := range history {
		if ex.At.After(cutoff) {
			kept = append(kept, ex)
		}
	}
	return kept
}
