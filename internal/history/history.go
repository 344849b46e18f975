// Package history persists question/answer pairs per user and rebuilds
// conversations from them after login.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/ai-search-assistant/internal/chat"
	"github.com/MimeLyc/ai-search-assistant/internal/persistence"
)

const (
	DefaultRecentLimit = 10
	untitled           = "Untitled"
	timestampLayout    = "2006-01-02T150405.000000000"
)

type ChatLog struct {
	Question  string `json:"question"`
	Response  string `json:"response"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
}

// TitledConversation groups logged exchanges that share a title.
type TitledConversation struct {
	Title string      `json:"title"`
	Turns []chat.Turn `json:"turns"`
}

type Log struct {
	kv  persistence.KV
	now func() time.Time
}

func New(kv persistence.KV) *Log {
	return &Log{kv: kv, now: time.Now}
}

// Append stores one exchange under users/{uid}/chat/{ts}.
func (l *Log) Append(ctx context.Context, uid, question, response, title string) (ChatLog, error) {
	if uid == "" {
		return ChatLog{}, fmt.Errorf("user id is required")
	}
	entry := ChatLog{
		Question:  question,
		Response:  response,
		Title:     title,
		Timestamp: l.now().UTC().Format(timestampLayout),
	}
	if err := l.kv.Set(ctx, chatPrefix(uid)+entry.Timestamp, entry); err != nil {
		return ChatLog{}, fmt.Errorf("store chat log: %w", err)
	}
	return entry, nil
}

// All returns every logged exchange for uid, oldest first.
func (l *Log) All(ctx context.Context, uid string) ([]ChatLog, error) {
	entries, err := l.kv.List(ctx, chatPrefix(uid))
	if err != nil {
		return nil, err
	}
	ret := make([]ChatLog, 0, len(entries))
	for _, e := range entries {
		var item ChatLog
		if err := e.Decode(&item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Path, err)
		}
		if item.Title == "" {
			item.Title = untitled
		}
		ret = append(ret, item)
	}
	return ret, nil
}

// RecentQuestions returns the last limit questions, oldest first.
func (l *Log) RecentQuestions(ctx context.Context, uid string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	all, err := l.All(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	ret := make([]string, 0, len(all))
	for _, item := range all {
		ret = append(ret, item.Question)
	}
	return ret, nil
}

// Titles returns each distinct title once, in first-seen order.
func (l *Log) Titles(ctx context.Context, uid string) ([]string, error) {
	all, err := l.All(ctx, uid)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	ret := make([]string, 0)
	for _, item := range all {
		if _, ok := seen[item.Title]; ok {
			continue
		}
		seen[item.Title] = struct{}{}
		ret = append(ret, item.Title)
	}
	return ret, nil
}

// Conversations groups exchanges by title, keeping first-seen title order.
func (l *Log) Conversations(ctx context.Context, uid string) ([]TitledConversation, error) {
	all, err := l.All(ctx, uid)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	ret := make([]TitledConversation, 0)
	for _, item := range all {
		i, ok := index[item.Title]
		if !ok {
			i = len(ret)
			index[item.Title] = i
			ret = append(ret, TitledConversation{Title: item.Title})
		}
		pos := len(ret[i].Turns)
		ret[i].Turns = append(ret[i].Turns,
			chat.Turn{Role: chat.RoleUser, Content: item.Question, Position: pos},
			chat.Turn{Role: chat.RoleAssistant, Content: item.Response, Position: pos + 1},
		)
	}
	return ret, nil
}

// Restore adds the logged conversations to session and returns how many were added.
func (l *Log) Restore(ctx context.Context, session *chat.Session) (int, error) {
	grouped, err := l.Conversations(ctx, session.User().UID)
	if err != nil {
		return 0, err
	}
	for _, g := range grouped {
		conv := session.NewConversation()
		conv.SetTitle(g.Title)
		turns := make([]chat.Turn, len(g.Turns))
		for i, t := range g.Turns {
			turns[i] = chat.Turn{Role: t.Role, Content: t.Content}
		}
		conv.Append(turns...)
	}
	return len(grouped), nil
}

func chatPrefix(uid string) string {
	return "users/" + uid + "/chat/"
}
