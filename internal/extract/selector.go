package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// DefaultSelectors cover the common article body markup.
var DefaultSelectors = []string{
	"[itemprop='articleBody'] p",
	"article p",
	".article-body p",
	".story-body p",
	"main p",
}

// Selector collects paragraph text from the first CSS selector that yields at
// least MinTextChars non-space characters. Pages where no selector does are
// handed to Next.
type Selector struct {
	Selectors    []string
	MinTextChars int
	// Next handles pages no selector matches. Nil means Readability.
	Next Extractor
}

// Extract implements Extractor.
func (s Selector) Extract(input []byte, pageURL *url.URL) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return s.next().Extract(input, pageURL)
	}
	selectors := s.Selectors
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	for _, sel := range selectors {
		var parts []string
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			if text := strings.TrimSpace(el.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		text := normalizeWhitespace(strings.Join(parts, "\n\n"))
		if countNonSpace(text) < s.minChars() {
			continue
		}
		log.Debug().Str("selector", sel).Int("chars", len(text)).Msg("selector matched article body")
		return Document{Title: pageTitle(doc), Text: text}, nil
	}
	return s.next().Extract(input, pageURL)
}

func (s Selector) next() Extractor {
	if s.Next != nil {
		return s.Next
	}
	return Readability{}
}

func (s Selector) minChars() int {
	if s.MinTextChars <= 0 {
		return 200
	}
	return s.MinTextChars
}

func pageTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
