package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   IngestPayload
}

// IngestPayload is one listing row waiting to be scraped and indexed.
type IngestPayload struct {
	Link           string `json:"link"`
	CircularNumber string `json:"circular_number,omitempty"`
	Title          string `json:"title,omitempty"`
	Department     string `json:"department,omitempty"`
	Date           string `json:"date,omitempty"`
	MeantFor       string `json:"meant_for,omitempty"`
}

type IngestJob struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	DedupeKey string        `json:"dedupe_key"`
	Payload   IngestPayload `json:"payload"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Terminal reports whether the job has finished.
func (j *IngestJob) Terminal() bool {
	return j.Status != StatusPending && j.Status != StatusRunning
}
