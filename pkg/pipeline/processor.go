package pipeline

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"newsfeed/pkg/classify"
	"newsfeed/pkg/content"
	"newsfeed/pkg/domain"
)

// maxDerivedTitle bounds titles synthesised from the summary.
const maxDerivedTitle = 120

// buildItem derives every stored field of a new content item. It runs before
// the insert; a losing duplicate just discards the result.
func (p *Pipeline) buildItem(raw domain.RawItem, src domain.Source, canonical, address string) *domain.ContentItem {
	body := raw.Body()
	summaryText := p.extractor.PlainText(raw.Summary)
	if summaryText == "" {
		summaryText = p.extractor.PlainText(body)
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = truncateWords(summaryText, maxDerivedTitle)
	}
	if title == "" {
		title = canonical
	}

	now := p.now().UTC()
	item := &domain.ContentItem{
		ID:             p.newID(),
		SourceID:       src.ID,
		CanonicalURL:   canonical,
		ContentAddress: address,
		Title:          title,
		Body:           p.extractor.Sanitize(body),
		PreviewImage:   p.previewImage(body, raw.Media, canonical),
		Category:       p.classifier.Categorize(title, summaryText, p.fallbackCategory(raw, src)),
		Tags:           classify.ExtractTags(title, summaryText, p.maxTags),
		Author:         strings.TrimSpace(raw.Author),
		IngestedAt:     now,
	}
	if raw.PublishedAt != nil {
		published := raw.PublishedAt.UTC()
		item.PublishedAt = &published
	}
	p.ranker.Apply(item)
	return item
}

// fallbackCategory is the first recognised feed-declared category, then the
// source's configured category, then the pipeline default.
func (p *Pipeline) fallbackCategory(raw domain.RawItem, src domain.Source) domain.Category {
	for _, c := range raw.Categories {
		if cat, ok := domain.ParseCategory(c); ok {
			return cat
		}
	}
	if src.Category.Valid() {
		return src.Category
	}
	return p.defaultCategory
}

// previewImage prefers an image declared in the body, then the first media
// reference, resolved against the item URL.
func (p *Pipeline) previewImage(body string, media []string, itemURL string) string {
	candidates := make([]string, 0, len(media)+1)
	if img, ok := p.extractor.PreviewImage(body); ok {
		candidates = append(candidates, img)
	}
	candidates = append(candidates, media...)

	base, _ := url.Parse(itemURL)
	for _, c := range candidates {
		if abs, ok := absoluteHTTP(c, base); ok {
			return abs
		}
	}
	return ""
}

func absoluteHTTP(ref string, base *url.URL) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || !content.IsSafeURL(ref, false) {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if base == nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// truncateWords shortens s to at most max runes, cutting at a word boundary.
func truncateWords(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
