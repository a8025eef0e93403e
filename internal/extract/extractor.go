package extract

import (
	"bytes"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog/log"
)

// Extractor converts raw HTML into a Document.
type Extractor interface {
	Extract(input []byte, pageURL *url.URL) (Document, error)
}

// Structural uses FromHTML only.
type Structural struct{}

// Extract implements Extractor.
func (Structural) Extract(input []byte, _ *url.URL) (Document, error) {
	return FromHTML(input), nil
}

// Readability scores the page with go-readability and falls back to the
// structural extractor when readability errors or finds fewer than
// MinTextChars non-space characters.
type Readability struct {
	MinTextChars int
}

// Extract implements Extractor.
func (r Readability) Extract(input []byte, pageURL *url.URL) (Document, error) {
	if pageURL == nil {
		pageURL = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(input), pageURL)
	if err != nil {
		log.Debug().Err(err).Str("url", pageURL.String()).Msg("readability failed; using structural extraction")
		return FromHTML(input), nil
	}
	doc := Document{
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: strings.TrimSpace(article.SiteName),
		Text:     normalizeWhitespace(article.TextContent),
	}
	if countNonSpace(doc.Text) >= r.minChars() {
		return doc, nil
	}
	fb := FromHTML(input)
	if countNonSpace(fb.Text) > countNonSpace(doc.Text) {
		log.Debug().Str("url", pageURL.String()).Msg("readability text too short; using structural extraction")
		if fb.Title == "" {
			fb.Title = doc.Title
		}
		fb.Byline, fb.SiteName = doc.Byline, doc.SiteName
		return fb, nil
	}
	return doc, nil
}

func (r Readability) minChars() int {
	if r.MinTextChars <= 0 {
		return 1
	}
	return r.MinTextChars
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			n++
		}
	}
	return n
}
