package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/ai-search-assistant/internal/circulars"
	"github.com/MimeLyc/ai-search-assistant/internal/jobs"
	"github.com/MimeLyc/ai-search-assistant/internal/news"
	"github.com/MimeLyc/ai-search-assistant/pkg/icron"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
)

const (
	TaskNews      = "news"
	TaskCirculars = "circulars"

	SourceSchedule = "schedule"
	SourceManual   = "manual"
)

type NewsRefresher interface {
	Refresh(ctx context.Context) (*news.Digest, error)
}

type ListingSource interface {
	Listing(ctx context.Context, url string) (*circulars.Listing, error)
}

type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.IngestJob, bool)
}

// TaskStatus describes one scheduled task.
type TaskStatus struct {
	Name    string             `json:"name"`
	Trigger *icron.TriggerInfo `json:"trigger,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ListingResult is what one circular listing pass enqueued.
type ListingResult struct {
	Rows     int `json:"rows"`
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
}

// Scheduler runs the news refresh and the circular listing on cron schedules.
type Scheduler struct {
	cron       *cron.Cron
	news       NewsRefresher
	listing    ListingSource
	queue      Enqueuer
	listingURL string

	mu      sync.Mutex
	ctx     context.Context
	exprs   map[string]string
	entries map[string]cron.EntryID

	group   singleflight.Group
	timeout time.Duration
	handler ErrorHandler
}

// DefaultListingTimeout bounds one shared read of the circular index.
const DefaultListingTimeout = 2 * time.Minute

func NewScheduler(c *cron.Cron, newsSvc NewsRefresher, listing ListingSource, queue Enqueuer, listingURL string) *Scheduler {
	if c == nil {
		c = cron.New()
	}
	if listingURL == "" {
		listingURL = circulars.ListingURL
	}
	return &Scheduler{
		cron:       c,
		news:       newsSvc,
		listing:    listing,
		queue:      queue,
		listingURL: listingURL,
		ctx:        context.Background(),
		exprs:      make(map[string]string),
		entries:    make(map[string]cron.EntryID),
		timeout:    DefaultListingTimeout,
		handler:    NewDefaultErrorHandler(),
	}
}

// Schedule registers both tasks. ctx is handed to every scheduled run.
func (s *Scheduler) Schedule(ctx context.Context, newsExpr, circularsExpr string) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return s.Reschedule(newsExpr, circularsExpr)
}

// Reschedule replaces the cron entries whose expression changed.
// An empty expression leaves that task as it is.
func (s *Scheduler) Reschedule(newsExpr, circularsExpr string) error {
	for _, expr := range []string{newsExpr, circularsExpr} {
		if expr == "" {
			continue
		}
		if _, err := icron.Parse(expr); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replaceLocked(TaskNews, newsExpr, func() {
		s.runScheduled(TaskNews, func() error {
			_, err := s.TriggerNews(s.runContext())
			return err
		})
	}); err != nil {
		return err
	}
	return s.replaceLocked(TaskCirculars, circularsExpr, func() {
		s.runScheduled(TaskCirculars, func() error {
			_, err := s.TriggerCirculars(s.runContext(), SourceSchedule)
			return err
		})
	})
}

// runScheduled runs one cron task, recovering a panic so the cron goroutine survives.
func (s *Scheduler) runScheduled(name string, fn func() error) {
	if err := SafeExecute(fn); err != nil {
		s.handler.Handle(fmt.Errorf("scheduled %s: %w", name, err))
	}
}

func (s *Scheduler) replaceLocked(name, expr string, run func()) error {
	if expr == "" || s.exprs[name] == expr {
		return nil
	}
	id, err := s.cron.AddFunc(expr, run)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}
	s.entries[name] = id
	s.exprs[name] = expr
	log.Info("Scheduled %s with %q", name, expr)
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// TriggerNews refreshes the digest now.
func (s *Scheduler) TriggerNews(ctx context.Context) (*news.Digest, error) {
	return s.news.Refresh(ctx)
}

// TriggerCirculars reads the circular index and enqueues one ingestion job per
// linked row. The queue drops rows it already holds. Concurrent triggers share
// one run, which stops with the scheduler context or the listing timeout
// rather than with any single caller.
func (s *Scheduler) TriggerCirculars(ctx context.Context, source string) (*ListingResult, error) {
	ch := s.group.DoChan(TaskCirculars, func() (any, error) {
		runCtx, cancel := context.WithTimeout(s.runContext(), s.timeout)
		defer cancel()
		listing, err := s.listing.Listing(runCtx, s.listingURL)
		if err != nil {
			return nil, fmt.Errorf("read circular listing: %w", err)
		}

		result := &ListingResult{Rows: len(listing.Rows)}
		for _, row := range listing.Rows {
			if row.Link == "" {
				result.Skipped++
				continue
			}
			_, created := s.queue.Enqueue(jobs.EnqueueRequest{
				Source:    source,
				DedupeKey: row.Link,
				Payload:   row.Payload(),
			})
			if created {
				result.Enqueued++
			} else {
				result.Skipped++
			}
		}
		log.Info("Circular listing: %d rows, %d enqueued, %d skipped", result.Rows, result.Enqueued, result.Skipped)
		return result, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ListingResult), nil
	}
}

// Status reports the last and next trigger of each scheduled task.
func (s *Scheduler) Status(now time.Time) []TaskStatus {
	s.mu.Lock()
	exprs := map[string]string{
		TaskNews:      s.exprs[TaskNews],
		TaskCirculars: s.exprs[TaskCirculars],
	}
	s.mu.Unlock()

	out := make([]TaskStatus, 0, len(exprs))
	for _, name := range []string{TaskNews, TaskCirculars} {
		status := TaskStatus{Name: name}
		if expr := exprs[name]; expr != "" {
			info, err := icron.GetTriggerInfo(expr, now)
			if err != nil {
				status.Error = err.Error()
			} else {
				status.Trigger = info
			}
		}
		out = append(out, status)
	}
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
