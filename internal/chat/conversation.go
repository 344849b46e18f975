package chat

import (
	"sync"
	"time"
)

const DefaultTitle = "New Conversation"

// Conversation is an append-only, ordered list of turns plus a title.
type Conversation struct {
	id        string
	createdAt time.Time

	mu    sync.RWMutex
	title string
	turns []Turn
}

func newConversation(id string, now time.Time) *Conversation {
	return &Conversation{
		id:        id,
		createdAt: now,
		title:     DefaultTitle,
	}
}

func (c *Conversation) ID() string {
	return c.id
}

func (c *Conversation) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.title
}

func (c *Conversation) SetTitle(title string) {
	if title == "" {
		return
	}
	c.mu.Lock()
	c.title = title
	c.mu.Unlock()
}

// Append adds turns at the end and returns them with their positions set.
func (c *Conversation) Append(turns ...Turn) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	added := make([]Turn, 0, len(turns))
	for _, t := range turns {
		t.Position = len(c.turns)
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		c.turns = append(c.turns, t)
		added = append(added, t)
	}
	return added
}

// AppendExchange records a question and its answer as two consecutive turns.
func (c *Conversation) AppendExchange(question, answer string) []Turn {
	return c.Append(
		Turn{Role: RoleUser, Content: question},
		Turn{Role: RoleAssistant, Content: answer},
	)
}

// Turns returns a copy of the turns in order.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

func (c *Conversation) View() ConversationView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return ConversationView{
		ID:        c.id,
		Title:     c.title,
		Turns:     turns,
		CreatedAt: c.createdAt,
	}
}
