package domain

import "time"

// RawItem is one syndication entry as parsed from a feed document.
// It only lives for the duration of a single ingestion pass.
type RawItem struct {
	Title   string
	Link    string
	Summary string
	Content string

	// PublishedAt is nil when the feed omitted the date or it could not be parsed.
	PublishedAt *time.Time

	Author     string
	Categories []string
	Media      []string
}

// Body returns the richest markup the entry carries.
func (r RawItem) Body() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Summary
}
