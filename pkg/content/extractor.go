package content

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Extractor derives the stored representations of an item body.
type Extractor interface {
	Sanitize(rawHTML string) string
	PlainText(rawHTML string) string
	PreviewImage(rawHTML string) (string, bool)
}

// DefaultExtractor implements Extractor with the package functions.
type DefaultExtractor struct{}

// NewDefaultExtractor creates a new default extractor
func NewDefaultExtractor() *DefaultExtractor {
	return &DefaultExtractor{}
}

func (e *DefaultExtractor) Sanitize(rawHTML string) string { return SanitizeHTML(rawHTML) }

func (e *DefaultExtractor) PlainText(rawHTML string) string { return ExtractPlainText(rawHTML) }

func (e *DefaultExtractor) PreviewImage(rawHTML string) (string, bool) {
	return ExtractPreviewImage(rawHTML)
}

var fullDocument = regexp.MustCompile(`(?i)<\s*(html|body)[\s>]`)

var blockTags = toSet(
	"p", "br", "div", "li", "ul", "ol", "tr", "td", "th", "table", "blockquote",
	"pre", "h1", "h2", "h3", "h4", "h5", "h6", "hr", "figure", "figcaption",
	"section", "article", "header", "footer",
)

// ExtractPlainText returns the visible text of rawHTML with whitespace
// collapsed. Full documents go through readability first so navigation and
// boilerplate are left out.
func ExtractPlainText(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}

	if fullDocument.MatchString(rawHTML) {
		article, err := readability.FromReader(strings.NewReader(rawHTML), nil)
		if err == nil {
			if text := collapseSpace(article.TextContent); text != "" {
				return text
			}
		}
	}

	nodes, err := parseFragment(rawHTML)
	if err != nil {
		return collapseSpace(rawHTML)
	}
	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
	}
	return collapseSpace(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if DroppedTags[tag] {
			return
		}
		if blockTags[tag] {
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
	case html.DocumentNode:
	default:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Social card declarations checked before falling back to inline images.
var previewSelectors = []string{
	"meta[property='og:image']",
	"meta[property='og:image:url']",
	"meta[name='twitter:image']",
	"meta[property='twitter:image']",
}

// ExtractPreviewImage returns the social card image declared in rawHTML,
// otherwise the first <img> with a safe src. Relative references are
// returned unresolved.
func ExtractPreviewImage(rawHTML string) (string, bool) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}

	for _, sel := range previewSelectors {
		if src, ok := firstSafe(doc.Find(sel), "content"); ok {
			return src, true
		}
	}
	return firstSafe(doc.Find("img[src]"), "src")
}

func firstSafe(sel *goquery.Selection, attr string) (string, bool) {
	var found string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr(attr)
		v = strings.TrimSpace(v)
		if ok && v != "" && IsSafeURL(v, false) {
			found = v
			return false
		}
		return true
	})
	return found, found != ""
}
