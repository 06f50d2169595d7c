package domain

import "time"

// Source is a configured syndication feed endpoint.
type Source struct {
	ID       string        `bson:"_id" json:"id" yaml:"id"`
	URL      string        `bson:"url" json:"url" yaml:"url"`
	Interval time.Duration `bson:"interval" json:"interval" yaml:"interval"`

	// Category is the category the feed declares for itself. Used as the
	// classifier fallback when no keyword rule matches.
	Category Category `bson:"category,omitempty" json:"category,omitempty" yaml:"category,omitempty"`

	// Validators from the last response that carried them.
	ETag         string `bson:"etag,omitempty" json:"etag,omitempty" yaml:"-"`
	LastModified string `bson:"last_modified,omitempty" json:"last_modified,omitempty" yaml:"-"`

	LastFetchedAt *time.Time `bson:"last_fetched_at,omitempty" json:"last_fetched_at,omitempty" yaml:"-"`
	FailureCount  int        `bson:"failure_count" json:"failure_count" yaml:"-"`
}

// Validators returns the conditional-retrieval validators of the source.
func (s Source) Validators() Validators {
	return Validators{ETag: s.ETag, LastModified: s.LastModified}
}

// Validators are the HTTP cache validators used for conditional retrieval.
type Validators struct {
	ETag         string
	LastModified string
}

// IsZero reports whether neither validator is set.
func (v Validators) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}
