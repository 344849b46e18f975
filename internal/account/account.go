// Package account is a stand-in for the hosted auth backend: sign-up, login
// and login audit records kept in the key-value store.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/ai-search-assistant/internal/chat"
	"github.com/MimeLyc/ai-search-assistant/internal/persistence"
	"github.com/MimeLyc/ai-search-assistant/internal/summary"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
)

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidEmail = errors.New("invalid email")
)

const (
	LoginSuccess = "success"
	LoginFailure = "failure"

	// TimestampLayout sorts lexically in time order.
	TimestampLayout = "2006-01-02T150405.000000000"
)

type User struct {
	UID        string    `json:"uid"`
	Email      string    `json:"email"`
	Department string    `json:"department"`
	Interests  []string  `json:"interests"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u User) Profile() summary.Profile {
	return summary.Profile{Department: u.Department, Interests: u.Interests}
}

func (u User) SessionUser() chat.User {
	return chat.User{
		UID:        u.UID,
		Email:      u.Email,
		Department: u.Department,
		Interests:  u.Interests,
	}
}

// LoginLog is written for every login attempt.
type LoginLog struct {
	Email        string  `json:"email"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message"`
	Timestamp    string  `json:"timestamp"`
}

type SignUpRequest struct {
	Email      string   `json:"email"`
	Department string   `json:"department"`
	Interests  []string `json:"interests"`
}

type Service struct {
	kv  persistence.KV
	now func() time.Time
}

func NewService(kv persistence.KV) *Service {
	return &Service{kv: kv, now: time.Now}
}

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	user := &User{
		UID:        uuid.NewString(),
		Email:      email,
		Department: strings.TrimSpace(req.Department),
		Interests:  cleanInterests(req.Interests),
		CreatedAt:  s.now().UTC(),
	}
	err = s.kv.Create(ctx,
		persistence.Write{Path: emailPath(email), Value: user.UID},
		persistence.Write{Path: InfoPath(user.UID), Value: user},
	)
	switch {
	case errors.Is(err, persistence.ErrExists):
		return nil, ErrEmailExists
	case err != nil:
		return nil, fmt.Errorf("store user: %w", err)
	}
	log.Info("Created account %s", user.UID)
	return user, nil
}

// Login resolves a user by email and records the attempt.
func (s *Service) Login(ctx context.Context, email string) (*User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		s.recordLogin(ctx, "", email, err)
		return nil, err
	}

	user, err := s.lookup(ctx, normalized)
	if err != nil {
		uid := ""
		if user != nil {
			uid = user.UID
		}
		s.recordLogin(ctx, uid, normalized, err)
		return nil, err
	}

	s.recordLogin(ctx, user.UID, normalized, nil)
	return user, nil
}

// Get loads a user by UID.
func (s *Service) Get(ctx context.Context, uid string) (*User, error) {
	raw, err := s.kv.Get(ctx, InfoPath(uid))
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var user User
	if err := decode(raw, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile replaces the department and interests of a user.
func (s *Service) UpdateProfile(ctx context.Context, uid string, profile summary.Profile) (*User, error) {
	user, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	user.Department = strings.TrimSpace(profile.Department)
	user.Interests = cleanInterests(profile.Interests)
	if err := s.kv.Set(ctx, InfoPath(uid), user); err != nil {
		return nil, err
	}
	return user, nil
}

// LoginLogs returns the recorded attempts for uid in time order.
func (s *Service) LoginLogs(ctx context.Context, uid string) ([]LoginLog, error) {
	entries, err := s.kv.List(ctx, "users/"+uid+"/log/")
	if err != nil {
		return nil, err
	}
	ret := make([]LoginLog, 0, len(entries))
	for _, e := range entries {
		var l LoginLog
		if err := e.Decode(&l); err != nil {
			return nil, err
		}
		ret = append(ret, l)
	}
	return ret, nil
}

func (s *Service) lookup(ctx context.Context, email string) (*User, error) {
	raw, err := s.kv.Get(ctx, emailPath(email))
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var uid string
	if err := decode(raw, &uid); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, uid)
	if err != nil {
		return &User{UID: uid}, err
	}
	return user, nil
}

func (s *Service) recordLogin(ctx context.Context, uid, email string, loginErr error) {
	ts := s.now().UTC().Format(TimestampLayout)
	entry := LoginLog{
		Email:     email,
		Status:    LoginSuccess,
		Timestamp: ts,
	}
	if loginErr != nil {
		msg := loginErr.Error()
		entry.Status = LoginFailure
		entry.ErrorMessage = &msg
	}

	path := "login_failures/" + ts
	if uid != "" {
		path = "users/" + uid + "/log/" + ts
	}
	if err := s.kv.Set(ctx, path, entry); err != nil {
		log.Warn("Failed to record login for %s: %v", email, err)
	}
}

func InfoPath(uid string) string {
	return "users/" + uid + "/info"
}

func emailPath(email string) string {
	return "emails/" + url.PathEscape(email)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func cleanInterests(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
