package feed

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"newsfeed/pkg/domain"
)

// ErrMalformedFeed is returned when a document is neither RSS nor Atom or
// cannot be parsed.
var ErrMalformedFeed = errors.New("malformed feed document")

// Parse reads an RSS or Atom document into raw items. A bad date on one entry
// leaves that entry's PublishedAt nil and does not fail the document.
func Parse(r io.Reader) ([]domain.RawItem, error) {
	// gofeed.Parser keeps per-parse state, so one per call.
	parsed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	if parsed == nil {
		return nil, ErrMalformedFeed
	}

	items := make([]domain.RawItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		raw := toRawItem(it)
		if len(raw.Categories) == 0 && len(parsed.Categories) > 0 {
			raw.Categories = append([]string(nil), parsed.Categories...)
		}
		items = append(items, raw)
	}
	return items, nil
}

func toRawItem(it *gofeed.Item) domain.RawItem {
	return domain.RawItem{
		Title:       strings.TrimSpace(it.Title),
		Link:        itemLink(it),
		Summary:     strings.TrimSpace(it.Description),
		Content:     strings.TrimSpace(it.Content),
		PublishedAt: itemDate(it),
		Author:      itemAuthor(it),
		Categories:  trimAll(it.Categories),
		Media:       itemMedia(it),
	}
}

func itemLink(it *gofeed.Item) string {
	if link := strings.TrimSpace(it.Link); link != "" {
		return link
	}
	for _, l := range it.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	// RSS permalink GUIDs are the article URL.
	guid := strings.TrimSpace(it.GUID)
	if strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}

func itemDate(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		t := it.PublishedParsed.UTC()
		return &t
	}
	if it.UpdatedParsed != nil {
		t := it.UpdatedParsed.UTC()
		return &t
	}
	for _, s := range []string{it.Published, it.Updated} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if t, err := dateparse.ParseAny(s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func itemAuthor(it *gofeed.Item) string {
	for _, p := range it.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			return strings.TrimSpace(p.Name)
		}
	}
	if it.Author != nil {
		return strings.TrimSpace(it.Author.Name)
	}
	return ""
}

func itemMedia(it *gofeed.Item) []string {
	var media []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u != "" && !seen[u] {
			seen[u] = true
			media = append(media, u)
		}
	}

	if it.Image != nil {
		add(it.Image.URL)
	}
	for _, enc := range it.Enclosures {
		if enc != nil {
			add(enc.URL)
		}
	}
	// Media RSS: <media:thumbnail url=""/> and <media:content url=""/>
	if mediaExt, ok := it.Extensions["media"]; ok {
		for _, name := range []string{"thumbnail", "content"} {
			for _, e := range mediaExt[name] {
				add(e.Attrs["url"])
			}
		}
	}
	return media
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
