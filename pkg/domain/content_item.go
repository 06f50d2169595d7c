package domain

import (
	"strings"
	"time"
)

// Category is one of the fixed set of content categories.
type Category string

const (
	CategoryPolitics      Category = "politics"
	CategoryBusiness      Category = "business"
	CategoryTechnology    Category = "technology"
	CategoryScience       Category = "science"
	CategoryHealth        Category = "health"
	CategorySports        Category = "sports"
	CategoryEntertainment Category = "entertainment"
	CategoryWorld         Category = "world"
	CategoryGeneral       Category = "general"

	// DefaultCategory is used when neither the classifier nor the feed provide one.
	DefaultCategory = CategoryGeneral
)

var categories = map[Category]bool{
	CategoryPolitics:      true,
	CategoryBusiness:      true,
	CategoryTechnology:    true,
	CategoryScience:       true,
	CategoryHealth:        true,
	CategorySports:        true,
	CategoryEntertainment: true,
	CategoryWorld:         true,
	CategoryGeneral:       true,
}

// Valid reports whether c belongs to the fixed category set.
func (c Category) Valid() bool {
	return categories[c]
}

// ParseCategory maps a free-form feed category onto the fixed set.
// ok is false when the value is not one of the known categories.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

// ContentItem is the durable, deduplicated article record.
//
// ContentAddress is unique across all items; the storage layer enforces it.
type ContentItem struct {
	ID             string `bson:"_id" json:"id"`
	SourceID       string `bson:"source_id" json:"source_id"`
	CanonicalURL   string `bson:"canonical_url" json:"canonical_url"`
	ContentAddress string `bson:"content_address" json:"content_address"`

	Title        string   `bson:"title" json:"title"`
	Body         string   `bson:"body" json:"body"`
	PreviewImage string   `bson:"preview_image,omitempty" json:"preview_image,omitempty"`
	Category     Category `bson:"category" json:"category"`
	Tags         []string `bson:"tags" json:"tags"`
	Author       string   `bson:"author,omitempty" json:"author,omitempty"`

	PublishedAt *time.Time `bson:"published_at,omitempty" json:"published_at,omitempty"`
	IngestedAt  time.Time  `bson:"ingested_at" json:"ingested_at"`

	VoteTotal int64     `bson:"vote_total" json:"vote_total"`
	VoteCount int64     `bson:"vote_count" json:"vote_count"`
	Score     float64   `bson:"score" json:"score"`
	ScoredAt  time.Time `bson:"scored_at" json:"scored_at"`
}

// SortOrder selects the read-path ordering.
type SortOrder string

const (
	SortScore  SortOrder = "score"
	SortNewest SortOrder = "newest"
)

// ItemQuery filters and orders content items for the read path.
type ItemQuery struct {
	Category Category
	Since    time.Time
	Until    time.Time
	Sort     SortOrder
	Limit    int
}
