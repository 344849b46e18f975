package circulars

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/MimeLyc/ai-search-assistant/internal/jobs"
	"github.com/MimeLyc/ai-search-assistant/internal/vectorstore"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
)

const (
	maxEmbedChars   = 8000
	maxPreviewChars = 2000

	DefaultIngestWorkers = 4
)

var (
	ErrNoLink    = errors.New("circular has no link")
	ErrNoContent = errors.New("circular page has no text")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type PointWriter interface {
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, points []vectorstore.Point) error
}

// Result reports the outcome of ingesting one row.
type Result struct {
	Link    string `json:"link"`
	PointID string `json:"point_id,omitempty"`
	Err     error  `json:"-"`
}

// Ingestor scrapes circular pages, embeds them and writes them to the vector index.
type Ingestor struct {
	scraper  *Scraper
	embedder Embedder
	points   PointWriter

	mu      sync.Mutex
	ensured bool
}

func NewIngestor(scraper *Scraper, embedder Embedder, points PointWriter) *Ingestor {
	return &Ingestor{
		scraper:  scraper,
		embedder: embedder,
		points:   points,
	}
}

// PointID is stable per link so re-ingesting a circular overwrites it.
func PointID(link string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).String()
}

// IngestRow indexes one circular and returns its point ID.
func (ing *Ingestor) IngestRow(ctx context.Context, row Row) (string, error) {
	if row.Link == "" {
		return "", fmt.Errorf("%w: %q", ErrNoLink, row.CircularNumber)
	}

	details, err := ing.scraper.Details(ctx, row.Link)
	if err != nil {
		return "", fmt.Errorf("scrape %s: %w", row.Link, err)
	}

	if strings.TrimSpace(details.Markdown) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoContent, row.Link)
	}

	title := firstNonEmpty(details.Title, row.Title)
	vector, err := ing.embedder.Embed(ctx, truncateRunes(title+"\n\n"+details.Markdown, maxEmbedChars))
	if err != nil {
		return "", fmt.Errorf("embed %s: %w", row.Link, err)
	}
	if err := ing.ensureCollection(ctx, len(vector)); err != nil {
		return "", err
	}

	id := PointID(row.Link)
	err = ing.points.Upsert(ctx, []vectorstore.Point{{
		ID:     id,
		Vector: vector,
		Payload: map[string]any{
			"circular_number": firstNonEmpty(row.CircularNumber, details.CircularNumber),
			"title":           title,
			"department":      row.Department,
			"date":            firstNonEmpty(row.Date, details.Date),
			"meant_for":       firstNonEmpty(row.MeantFor, details.MeantFor),
			"link":            row.Link,
			"pdf_link":        details.PDFLink,
			"text":            truncateRunes(details.Markdown, maxPreviewChars),
		},
	}})
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", row.Link, err)
	}
	return id, nil
}

// IngestAll indexes rows with at most workers concurrent scrapes. One failed
// row does not stop the others.
func (ing *Ingestor) IngestAll(ctx context.Context, rows []Row, workers int) []Result {
	if workers <= 0 {
		workers = DefaultIngestWorkers
	}

	results := make([]Result, len(rows))
	p := pool.New().WithMaxGoroutines(workers)
	for i, row := range rows {
		p.Go(func() {
			id, err := ing.IngestRow(ctx, row)
			if err != nil {
				log.Warn("Failed to ingest circular %s: %v", row.Link, err)
			}
			results[i] = Result{Link: row.Link, PointID: id, Err: err}
		})
	}
	p.Wait()
	return results
}

// Execute runs an ingestion job from the queue. Rows with nothing to index are skipped.
func (ing *Ingestor) Execute(ctx context.Context, job *jobs.IngestJob) error {
	_, err := ing.IngestRow(ctx, RowFromPayload(job.Payload))
	if errors.Is(err, ErrNoLink) || errors.Is(err, ErrNoContent) {
		return fmt.Errorf("%w: %w", jobs.ErrSkip, err)
	}
	return err
}

func (ing *Ingestor) ensureCollection(ctx context.Context, dim int) error {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.ensured {
		return nil
	}
	if err := ing.points.EnsureCollection(ctx, dim); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	ing.ensured = true
	return nil
}

// Payload converts a listing row into a queue payload.
func (r Row) Payload() jobs.IngestPayload {
	return jobs.IngestPayload{
		Link:           r.Link,
		CircularNumber: r.CircularNumber,
		Title:          r.Title,
		Department:     r.Department,
		Date:           r.Date,
		MeantFor:       r.MeantFor,
	}
}

func RowFromPayload(p jobs.IngestPayload) Row {
	return Row{
		Link:           p.Link,
		CircularNumber: p.CircularNumber,
		Title:          p.Title,
		Department:     p.Department,
		Date:           p.Date,
		MeantFor:       p.MeantFor,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
