package persistence

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a path holds no live value.
var ErrNotFound = errors.New("persistence: not found")

// ErrExists is returned by Create when the claimed path already holds a live value.
var ErrExists = errors.New("persistence: already exists")

// Entry is one stored value with its path.
type Entry struct {
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Decode unmarshals the entry value into v.
func (e Entry) Decode(v any) error {
	return json.Unmarshal(e.Value, v)
}
