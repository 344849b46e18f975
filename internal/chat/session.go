package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Session is the per-user context passed through a request. It owns the
// user's conversations and is never shared with another session.
type Session struct {
	id        string
	user      User
	createdAt time.Time

	mu            sync.RWMutex
	conversations map[string]*Conversation
	order         []string
	lastActive    time.Time
}

func newSession(user User) *Session {
	now := time.Now()
	return &Session{
		id:            uuid.NewString(),
		user:          user,
		createdAt:     now,
		conversations: make(map[string]*Conversation),
		lastActive:    now,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) User() User {
	return s.user
}

// NewConversation starts an empty conversation titled DefaultTitle.
func (s *Session) NewConversation() *Conversation {
	conv := newConversation(uuid.NewString(), time.Now())

	s.mu.Lock()
	s.conversations[conv.id] = conv
	s.order = append(s.order, conv.id)
	s.lastActive = time.Now()
	s.mu.Unlock()
	return conv
}

func (s *Session) Conversation(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// Conversations returns the conversations in creation order.
func (s *Session) Conversations() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.conversations[id])
	}
	return out
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastActive)
}
