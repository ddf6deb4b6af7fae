package wizard

import "sync"

// Step is a configuration session's position in the conversation.
type Step string

const (
	StepAwaitingPassword    Step = "AWAITING_PASSWORD"
	StepAccountSelected     Step = "ACCOUNT_SELECTED"
	StepAwaitingWeekday     Step = "AWAITING_WEEKDAY"
	StepAwaitingPostCount   Step = "AWAITING_POST_COUNT"
	StepAwaitingTimeSlots   Step = "AWAITING_TIME_SLOTS"
	StepAwaitingCaption     Step = "AWAITING_CAPTION"
	StepAwaitingTokenValue  Step = "AWAITING_TOKEN_VALUE"
	StepAwaitingTokenExpiry Step = "AWAITING_TOKEN_EXPIRY"
)

// Session carries the per-user conversation state between inputs. It lives
// only in memory; committing or abandoning a flow tears it down.
type Session struct {
	UserID  int64
	Step    Step
	Account string

	// Schedule flow accumulator.
	Weekday   string
	PostCount int
	Slots     []string

	// Token flow accumulator.
	PendingToken string
}

// HasSlot reports whether the HH:MM slot is currently selected.
func (s *Session) HasSlot(slot string) bool {
	for _, have := range s.Slots {
		if have == slot {
			return true
		}
	}
	return false
}

// ToggleSlot adds the slot, or removes it if already selected. Returns false
// when adding would exceed the limit.
func (s *Session) ToggleSlot(slot string, limit int) bool {
	for i, have := range s.Slots {
		if have == slot {
			s.Slots = append(s.Slots[:i], s.Slots[i+1:]...)
			return true
		}
	}
	if len(s.Slots) >= limit {
		return false
	}
	s.Slots = append(s.Slots, slot)
	return true
}

// SessionStore holds active sessions keyed by user identity. It is injected
// into the wizard so tests can isolate state per case.
type SessionStore interface {
	Get(userID int64) (*Session, bool)
	Put(session *Session)
	Delete(userID int64)
}

// MemoryStore is the default SessionStore, safe for concurrent users.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*Session)}
}

func (m *MemoryStore) Get(userID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[userID]
	return session, ok
}

func (m *MemoryStore) Put(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.UserID] = session
}

func (m *MemoryStore) Delete(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
