// Package session holds the ephemeral per-chat conversation state. Sessions
// live only in process memory: created at flow entry, mutated step by step,
// destroyed on confirm, cancel, or unrecoverable error.
package session

import (
	"sync"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// Flow identifies which capture variant a session is running.
type Flow int

const (
	// FlowManual is the guided question-by-question entry.
	FlowManual Flow = iota
	// FlowInvoice is the attachment-driven entry.
	FlowInvoice
)

// Step identifies the state the conversation is suspended in.
type Step int

const (
	// StepDescription awaits free-text detail (manual flow).
	StepDescription Step = iota
	// StepCategory awaits a selection from the closed category set.
	StepCategory
	// StepCurrency awaits the currency the amount will be entered in.
	StepCurrency
	// StepAmount awaits monetary text in the chosen currency.
	StepAmount
	// StepConfirmation awaits the confirm/cancel decision (both flows).
	StepConfirmation
	// StepAttachment awaits an invoice image or document (invoice flow).
	StepAttachment
)

// Session is the partially filled expense capture for one chat. Only the
// handler processing that chat's current event ever mutates it.
type Session struct {
	ChatID    int64
	Flow      Flow
	Step      Step
	Record    domain.ExpenseRecord
	CreatedAt time.Time
}

// Store keeps at most one session per chat. Starting a new flow while one is
// active replaces the session rather than queueing it.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Begin creates a fresh session for the chat, discarding any active one.
func (s *Store) Begin(chatID int64, flow Flow) *Session {
	first := StepDescription
	if flow == FlowInvoice {
		first = StepAttachment
	}

	sess := &Session{
		ChatID:    chatID,
		Flow:      flow,
		Step:      first,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[chatID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the chat's active session, if any.
func (s *Store) Get(chatID int64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[chatID]
	return sess, ok
}

// End destroys the chat's session. Safe to call when none is active.
func (s *Store) End(chatID int64) {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
}

// Active returns the number of live sessions.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
