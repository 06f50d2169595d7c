package feed

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
	<channel>
		<title>Test Feed</title>
		<link>https://example.com</link>
		<category>Politics</category>
		<item>
			<title>Senate passes new legislation</title>
			<link>https://www.Example.com/a?utm_source=x</link>
			<description>&lt;p&gt;Lawmakers voted.&lt;/p&gt;</description>
			<pubDate>Thu, 11 Dec 2025 10:00:00 GMT</pubDate>
			<author>desk@example.com (News Desk)</author>
			<enclosure url="https://cdn.example.com/a.jpg" type="image/jpeg" length="10"/>
			<media:thumbnail url="https://cdn.example.com/a-thumb.jpg"/>
		</item>
		<item>
			<title>Second story</title>
			<guid isPermaLink="true">https://example.com/b</guid>
			<pubDate>not a date at all</pubDate>
			<category>Science</category>
		</item>
	</channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Atom Feed</title>
	<id>urn:uuid:feed</id>
	<updated>2025-12-11T10:00:00Z</updated>
	<entry>
		<title>Atom entry</title>
		<link href="https://example.org/atom-1"/>
		<id>urn:uuid:1</id>
		<updated>2025-12-10T08:30:00Z</updated>
		<summary>Short summary</summary>
		<content type="html">&lt;p&gt;Full body&lt;/p&gt;</content>
		<author><name>Jane Writer</name></author>
	</entry>
</feed>`

func TestParse_RSS(t *testing.T) {
	items, err := Parse(strings.NewReader(rssFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Title != "Senate passes new legislation" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Link != "https://www.Example.com/a?utm_source=x" {
		t.Errorf("Link = %q", first.Link)
	}
	if first.Summary != "<p>Lawmakers voted.</p>" {
		t.Errorf("Summary = %q", first.Summary)
	}
	want := time.Date(2025, 12, 11, 10, 0, 0, 0, time.UTC)
	if first.PublishedAt == nil || !first.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", first.PublishedAt, want)
	}
	if len(first.Categories) != 1 || first.Categories[0] != "Politics" {
		t.Errorf("feed category not inherited: %v", first.Categories)
	}
	if len(first.Media) != 2 {
		t.Errorf("expected enclosure and thumbnail, got %v", first.Media)
	}

	second := items[1]
	if second.Link != "https://example.com/b" {
		t.Errorf("permalink guid not used: %q", second.Link)
	}
	if second.PublishedAt != nil {
		t.Errorf("malformed date should be nil, got %v", second.PublishedAt)
	}
	if len(second.Categories) != 1 || second.Categories[0] != "Science" {
		t.Errorf("item category lost: %v", second.Categories)
	}
}

func TestParse_Atom(t *testing.T) {
	items, err := Parse(strings.NewReader(atomFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Link != "https://example.org/atom-1" {
		t.Errorf("Link = %q", it.Link)
	}
	if it.Author != "Jane Writer" {
		t.Errorf("Author = %q", it.Author)
	}
	if it.Body() != "<p>Full body</p>" {
		t.Errorf("Body = %q", it.Body())
	}
	want := time.Date(2025, 12, 10, 8, 30, 0, 0, time.UTC)
	if it.PublishedAt == nil || !it.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v (updated fallback)", it.PublishedAt, want)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, doc := range []string{"", "not xml at all", "<html><body>nope</body></html>"} {
		_, err := Parse(strings.NewReader(doc))
		if !errors.Is(err, ErrMalformedFeed) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformedFeed", doc, err)
		}
	}
}

func TestParse_EmptyChannel(t *testing.T) {
	items, err := Parse(strings.NewReader(`<rss version="2.0"><channel><title>x</title></channel></rss>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}
