package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoFeeds is returned when a page advertises no syndication documents.
var ErrNoFeeds = errors.New("no feeds advertised")

var feedTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/feed+xml": true,
	"application/xml":      true,
	"text/xml":             true,
}

// Link is a feed advertised by an HTML page.
type Link struct {
	URL   string
	Title string
	Type  string
}

// Discover fetches an HTML page and returns the feeds it advertises with
// <link rel="alternate">, resolved against the page URL.
func (f *Fetcher) Discover(ctx context.Context, pageURL string) ([]Link, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", pageURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", classifyNetErr(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	links, err := ExtractFeedLinks(io.LimitReader(resp.Body, f.maxBodyBytes), pageURL)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, ErrNoFeeds
	}
	return links, nil
}

// ExtractFeedLinks finds feed links in an HTML document. Duplicates and
// non-http(s) targets are dropped.
func ExtractFeedLinks(r io.Reader, pageURL string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, _ := url.Parse(pageURL)
	seen := make(map[string]bool)
	var links []Link

	doc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		if !hasToken(s.AttrOr("rel", ""), "alternate") {
			return
		}
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if i := strings.IndexByte(typ, ';'); i >= 0 {
			typ = strings.TrimSpace(typ[:i])
		}
		if !feedTypes[typ] {
			return
		}

		ref, err := url.Parse(strings.TrimSpace(s.AttrOr("href", "")))
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return
		}
		abs := ref.String()
		if seen[abs] {
			return
		}
		seen[abs] = true

		links = append(links, Link{
			URL:   abs,
			Title: strings.TrimSpace(s.AttrOr("title", "")),
			Type:  typ,
		})
	})

	return links, nil
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(strings.ToLower(list)) {
		if t == token {
			return true
		}
	}
	return false
}
