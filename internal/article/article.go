// Package article downloads a news page and returns its readable text.
package article

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newscheck/internal/extract"
	"github.com/hyperifyio/newscheck/internal/fetch"
)

// Article is the extracted content of one URL.
type Article struct {
	URL string
	// FinalURL is URL after redirects.
	FinalURL  string
	Title     string
	Byline    string
	SiteName  string
	Text      string
	FromCache bool
}

// ErrNoText is wrapped when a page yields no readable text.
var ErrNoText = errors.New("no article text found")

// ExtractionError wraps every failure to turn a URL into article text.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("could not extract article from %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Fetcher downloads a page.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Gate decides whether a URL may be downloaded at all.
type Gate interface {
	Check(ctx context.Context, rawURL string) error
}

// Extractor composes a Fetcher and an HTML extractor.
type Extractor struct {
	fetcher Fetcher
	html    extract.Extractor
	gate    Gate
}

// NewExtractor returns an Extractor. A nil html extractor means
// extract.Readability with default settings.
func NewExtractor(f Fetcher, html extract.Extractor) *Extractor {
	if html == nil {
		html = extract.Readability{}
	}
	return &Extractor{fetcher: f, html: html}
}

// WithGate makes every download consult g first.
func (e *Extractor) WithGate(g Gate) *Extractor {
	e.gate = g
	return e
}

// Extract fetches rawURL and returns its article text. Failures are
// returned as *ExtractionError and are not retried here; retry policy
// belongs to the Fetcher.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Article, error) {
	rawURL = strings.TrimSpace(rawURL)
	fail := func(err error) (Article, error) {
		log.Warn().Err(err).Str("url", rawURL).Msg("article extraction failed")
		return Article{}, &ExtractionError{URL: rawURL, Err: err}
	}
	if rawURL == "" {
		return fail(errors.New("empty URL"))
	}
	if e.gate != nil {
		if err := e.gate.Check(ctx, rawURL); err != nil {
			return fail(err)
		}
	}
	resp, err := e.fetcher.Get(ctx, rawURL)
	if err != nil {
		return fail(err)
	}
	pageURL, err := url.Parse(resp.URL)
	if err != nil {
		return fail(fmt.Errorf("parse final url: %w", err))
	}
	doc, err := e.html.Extract(resp.Body, pageURL)
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return fail(ErrNoText)
	}
	log.Debug().Str("url", rawURL).Int("chars", len(doc.Text)).Bool("cached", resp.FromCache).Msg("article extracted")
	return Article{
		URL:       rawURL,
		FinalURL:  resp.URL,
		Title:     doc.Title,
		Byline:    doc.Byline,
		SiteName:  doc.SiteName,
		Text:      doc.Text,
		FromCache: resp.FromCache,
	}, nil
}
