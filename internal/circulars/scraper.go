// Package circulars scrapes the RBI circular index and pages and feeds them
// into the vector index.
package circulars

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	// BaseURL prefixes the relative links found in the index table.
	BaseURL = "https://m.rbi.org.in//scripts/"
	// ListingURL is the default circular index page.
	ListingURL = "https://m.rbi.org.in//scripts/BS_CircularIndexDisplay.aspx"

	userAgent = "Mozilla/5.0 (compatible; ai-search-assistant)"
)

var whitespace = regexp.MustCompile(`\s+`)

type Scraper struct {
	baseURL    string
	httpClient *http.Client
	converter  *md.Converter
}

type ScraperOption func(*Scraper)

// WithBaseURL overrides the prefix used to absolutise index links.
func WithBaseURL(u string) ScraperOption {
	return func(s *Scraper) {
		s.baseURL = u
	}
}

func WithHTTPClient(c *http.Client) ScraperOption {
	return func(s *Scraper) {
		if c != nil {
			s.httpClient = c
		}
	}
}

func NewScraper(opts ...ScraperOption) *Scraper {
	s := &Scraper{
		baseURL:    BaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		converter:  md.NewConverter("", true, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listing fetches and parses the circular index at url.
func (s *Scraper) Listing(ctx context.Context, url string) (*Listing, error) {
	doc, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.parseListing(doc)
}

// ParseListing parses an index page read from r.
func (s *Scraper) ParseListing(r io.Reader) (*Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return s.parseListing(doc)
}

func (s *Scraper) parseListing(doc *goquery.Document) (*Listing, error) {
	table := doc.Find("table.tablebg").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("table not found")
	}

	rows := table.Find("tr")
	listing := &Listing{
		Title: collapse(rows.First().Text()),
	}
	rows.Eq(1).Find("th").Each(func(_ int, th *goquery.Selection) {
		listing.Headers = append(listing.Headers, collapse(th.Text()))
	})

	rows.Slice(2, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
		row := Row{Fields: make(map[string]string)}
		tr.Find("td").Each(func(j int, td *goquery.Selection) {
			value := collapse(td.Text())
			if j == 0 {
				if href, ok := td.Find("a").Attr("href"); ok && href != "" {
					row.Link = s.absolute(href)
				}
			}
			header := fmt.Sprintf("Column%d", j+1)
			if j < len(listing.Headers) {
				header = listing.Headers[j]
			}
			row.Fields[header] = value
			assignColumn(&row, header, value)
		})
		if len(row.Fields) > 0 {
			listing.Rows = append(listing.Rows, row)
		}
	})
	return listing, nil
}

func assignColumn(row *Row, header, value string) {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "number"):
		row.CircularNumber = value
	case strings.Contains(h, "date"):
		row.Date = value
	case strings.Contains(h, "department"):
		row.Department = value
	case strings.Contains(h, "meant"):
		row.MeantFor = value
	case strings.Contains(h, "subject"), strings.Contains(h, "title"):
		row.Title = value
	}
}

// Details fetches and parses a single circular page.
func (s *Scraper) Details(ctx context.Context, link string) (*Details, error) {
	doc, err := s.fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	return s.parseDetails(doc)
}

// ParseDetails parses a circular page read from r.
func (s *Scraper) ParseDetails(r io.Reader) (*Details, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse circular: %w", err)
	}
	return s.parseDetails(doc)
}

func (s *Scraper) parseDetails(doc *goquery.Document) (*Details, error) {
	main := doc.Find("table.tablebg").First()
	if main.Length() == 0 {
		return nil, fmt.Errorf("table not found")
	}

	d := &Details{
		Title: strings.TrimSpace(main.Find("td.tableheader b").First().Text()),
		Date:  strings.TrimSpace(main.Find(`p[align="right"]`).First().Text()),
	}
	if href, ok := main.Find(`a[target="_blank"]`).First().Attr("href"); ok {
		d.PDFLink = href
	}

	numberText := strings.TrimSpace(main.Find(`td p:contains("RBI")`).First().Text())
	lines := strings.Split(numberText, "\n")
	d.CircularNumber = strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		d.ReferenceNumber = strings.TrimSpace(lines[1])
	}

	d.MeantFor = strings.TrimSpace(main.Find(`td p:contains("Madam")`).First().Prev().Text())

	main.Find("p.head").Each(func(_ int, head *goquery.Selection) {
		section := Section{Title: strings.TrimSpace(head.Text())}
		var body strings.Builder
		for next := head.Next(); next.Length() > 0 && !next.HasClass("head"); next = next.Next() {
			switch goquery.NodeName(next) {
			case "p":
				body.WriteString(strings.TrimSpace(next.Text()))
				body.WriteString("\n\n")
			case "table":
				body.WriteString("Table content (embedded table)\n\n")
			}
		}
		section.Content = strings.TrimSpace(body.String())
		d.Sections = append(d.Sections, section)
	})

	d.Markdown = s.markdown(main)
	return d, nil
}

// FullText returns the readable text of a circular page. It prefers
// div.content and falls back to the main table.
func (s *Scraper) FullText(ctx context.Context, link string) (string, bool, error) {
	doc, err := s.fetch(ctx, link)
	if err != nil {
		return "", false, err
	}
	content := doc.Find("div.content").First()
	if content.Length() == 0 {
		content = doc.Find("table.tablebg").First()
	}
	if content.Length() == 0 {
		return "", false, nil
	}
	text := s.markdown(content)
	return text, text != "", nil
}

func (s *Scraper) markdown(sel *goquery.Selection) string {
	sel = sel.Clone()
	sel.Find("script, style").Remove()
	out := strings.TrimSpace(s.converter.Convert(sel))
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out
}

func (s *Scraper) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

func (s *Scraper) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return s.baseURL + href
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
