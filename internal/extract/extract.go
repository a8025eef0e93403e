// Package extract turns article HTML into plain text.
package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the readable content of a page.
type Document struct {
	Title    string
	Byline   string
	SiteName string
	Text     string
}

// FromHTML extracts readable text structurally: it prefers <main>, then
// <article>, then <body>, keeps headings, paragraphs and list items on their
// own lines and skips navigation, scripts and cookie banners.
func FromHTML(input []byte) Document {
	root, err := html.Parse(bytes.NewReader(input))
	if err != nil || root == nil {
		return Document{}
	}
	doc := Document{Title: strings.TrimSpace(textOf(findFirst(findFirst(root, atom.Head), atom.Title)))}
	content := findFirst(root, atom.Main)
	if content == nil {
		content = findFirst(root, atom.Article)
	}
	if content == nil {
		content = findFirst(root, atom.Body)
	}
	if content != nil {
		var b strings.Builder
		collectText(&b, content, false)
		doc.Text = normalizeWhitespace(b.String())
	}
	return doc
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		if isBoilerplate(n) {
			return
		}
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Aside, atom.Iframe, atom.Form:
			return
		case atom.Pre, atom.Code:
			inPre = true
		case atom.Br, atom.Hr, atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Li, atom.Ul, atom.Ol:
			b.WriteByte('\n')
		}
	}
	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.NewReplacer("\t", " ", "\r", " ").Replace(data)
		}
		b.WriteString(data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			b.WriteString("\n\n")
		case atom.Ul, atom.Ol, atom.Pre, atom.Code:
			b.WriteByte('\n')
		}
	}
}

var boilerplateMarkers = []string{"cookie", "consent", "gdpr", "newsletter-signup", "paywall"}

// isBoilerplate reports elements whose id, class, role or data attributes
// mark them as consent banners or sign-up overlays.
func isBoilerplate(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && key != "role" && key != "aria-label" && !strings.HasPrefix(key, "data-") {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, m := range boilerplateMarkers {
			if strings.Contains(val, m) {
				return true
			}
		}
	}
	return false
}

// normalizeWhitespace collapses runs of spaces inside lines and keeps at
// most one blank line between blocks.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed == "" {
			if len(out) == 0 || out[len(out)-1] == "" {
				continue
			}
		}
		out = append(out, collapsed)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
