package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. It never changes once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationView is a read-only copy of a conversation.
type ConversationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

// User identifies who owns a session.
type User struct {
	UID        string   `json:"uid"`
	Email      string   `json:"email"`
	Department string   `json:"department"`
	Interests  []string `json:"interests"`
}
