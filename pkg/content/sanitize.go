package content

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// AllowedTags are rendered as-is (minus disallowed attributes).
var AllowedTags = toSet(
	"p", "br", "b", "strong", "i", "em", "u", "s", "blockquote", "code", "pre",
	"ul", "ol", "li", "h1", "h2", "h3", "h4", "h5", "h6", "a", "img", "span",
	"div", "figure", "figcaption", "table", "thead", "tbody", "tr", "th", "td",
	"hr", "sup", "sub",
)

// DroppedTags are removed together with everything inside them.
var DroppedTags = toSet(
	"script", "style", "iframe", "frame", "frameset", "object", "embed",
	"applet", "noscript", "template", "form", "input", "button", "textarea",
	"select", "link", "meta", "base", "svg", "math", "head", "title",
)

// AllowedAttrs lists the attributes kept per allowed tag.
var AllowedAttrs = map[string]map[string]bool{
	"a":   toSet("href", "title"),
	"img": toSet("src", "alt", "title", "width", "height"),
	"td":  toSet("colspan", "rowspan"),
	"th":  toSet("colspan", "rowspan"),
}

var voidTags = toSet("br", "hr", "img")

const linkRel = "nofollow noopener"

// SanitizeHTML returns raw with every element and attribute outside the
// allow-list removed. Script-capable constructs are always dropped:
// DroppedTags subtrees, on* handlers and javascript:/vbscript:/data: URLs.
// Unknown elements are unwrapped so their text survives.
func SanitizeHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	nodes, err := parseFragment(raw)
	if err != nil {
		// Fall back to escaped text; nothing executable survives escaping.
		return html.EscapeString(raw)
	}

	var b strings.Builder
	for _, n := range nodes {
		writeSafe(&b, n)
	}
	return strings.TrimSpace(b.String())
}

func parseFragment(raw string) ([]*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(raw), body)
}

func writeSafe(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(html.EscapeString(n.Data))
		return
	case html.ElementNode:
	case html.DocumentNode:
		writeChildren(b, n)
		return
	default:
		// comments, doctypes
		return
	}

	tag := strings.ToLower(n.Data)
	if DroppedTags[tag] {
		return
	}
	if !AllowedTags[tag] {
		writeChildren(b, n)
		return
	}

	b.WriteByte('<')
	b.WriteString(tag)
	for _, attr := range safeAttrs(tag, n.Attr) {
		b.WriteByte(' ')
		b.WriteString(attr.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(attr.Val))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	if voidTags[tag] {
		return
	}
	writeChildren(b, n)
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteByte('>')
}

func writeChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeSafe(b, c)
	}
}

func safeAttrs(tag string, attrs []html.Attribute) []html.Attribute {
	allowed := AllowedAttrs[tag]
	out := make([]html.Attribute, 0, len(attrs)+1)
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" || strings.HasPrefix(key, "on") || !allowed[key] {
			continue
		}
		switch key {
		case "href":
			if !IsSafeURL(a.Val, true) {
				continue
			}
		case "src":
			if !IsSafeURL(a.Val, false) {
				continue
			}
		}
		out = append(out, html.Attribute{Key: key, Val: strings.TrimSpace(a.Val)})
	}
	if tag == "a" {
		out = append(out, html.Attribute{Key: "rel", Val: linkRel})
	}
	return out
}

// IsSafeURL reports whether u is relative or uses http/https (or mailto when
// allowMailto is set). Whitespace and control characters are ignored when
// reading the scheme, the same way browsers do.
func IsSafeURL(u string, allowMailto bool) bool {
	cleaned := strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, u)
	if cleaned == "" {
		return false
	}

	scheme, ok := urlScheme(cleaned)
	if !ok {
		return true
	}
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	case "mailto":
		return allowMailto
	default:
		return false
	}
}

// urlScheme returns the scheme of u if it has one, i.e. a ':' appears before
// any '/', '?' or '#'.
func urlScheme(u string) (string, bool) {
	for i, r := range u {
		switch r {
		case ':':
			return u[:i], i > 0
		case '/', '?', '#':
			return "", false
		}
	}
	return "", false
}

func toSet(items ...string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
