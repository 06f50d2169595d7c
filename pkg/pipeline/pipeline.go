package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsfeed/pkg/classify"
	"newsfeed/pkg/content"
	"newsfeed/pkg/db"
	"newsfeed/pkg/domain"
	"newsfeed/pkg/normalize"
	"newsfeed/pkg/ranking"
)

// Rejection reasons. They are data-quality outcomes, not errors of the
// pipeline, and never count against the source.
var (
	ErrMissingLinkAndTitle = errors.New("item has neither link nor title")
	ErrMissingLink         = errors.New("item has no link")
	ErrInvalidLink         = errors.New("item link cannot be canonicalized")
)

// OutcomeKind is the result of processing one raw item.
type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	OutcomeDuplicate
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome describes what happened to one raw item. Item is set for created
// and duplicate outcomes; for a duplicate it is the candidate that lost.
type Outcome struct {
	Kind   OutcomeKind
	Reason error
	Item   *domain.ContentItem
}

// ContentSaver persists items. The insert must be atomic per content address.
type ContentSaver interface {
	InsertIfAbsent(ctx context.Context, item *domain.ContentItem) (bool, error)
}

// Config wires the pipeline's collaborators. Zero values get defaults.
type Config struct {
	Classifier      *classify.Classifier
	Extractor       content.Extractor
	Ranker          ranking.Ranker
	MaxTags         int
	DefaultCategory domain.Category
	Logger          *log.Logger

	// NewID and Now are overridable for tests.
	NewID func() string
	Now   func() time.Time
}

// DefaultMaxTags caps tag sets when Config.MaxTags is zero.
const DefaultMaxTags = 8

// Pipeline turns raw feed entries into stored content items.
type Pipeline struct {
	saver           ContentSaver
	classifier      *classify.Classifier
	extractor       content.Extractor
	ranker          ranking.Ranker
	maxTags         int
	defaultCategory domain.Category
	logger          *log.Logger
	newID           func() string
	now             func() time.Time
}

// NewPipeline creates a pipeline writing to saver.
func NewPipeline(saver ContentSaver, cfg Config) *Pipeline {
	p := &Pipeline{
		saver:           saver,
		classifier:      cfg.Classifier,
		extractor:       cfg.Extractor,
		ranker:          cfg.Ranker,
		maxTags:         cfg.MaxTags,
		defaultCategory: cfg.DefaultCategory,
		logger:          cfg.Logger,
		newID:           cfg.NewID,
		now:             cfg.Now,
	}
	if p.classifier == nil {
		p.classifier = classify.Default()
	}
	if p.extractor == nil {
		p.extractor = content.NewDefaultExtractor()
	}
	if p.maxTags == 0 {
		p.maxTags = DefaultMaxTags
	}
	if !p.defaultCategory.Valid() {
		p.defaultCategory = domain.DefaultCategory
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.ranker.Now == nil {
		p.ranker.Now = p.now
	}
	return p
}

// Process runs one raw item through canonicalization, derivation and the
// atomic insert. The returned error is non-nil only for storage failures;
// db.ErrInvariantViolation is returned as is so callers can stop.
func (p *Pipeline) Process(ctx context.Context, raw domain.RawItem, src domain.Source) (Outcome, error) {
	link := strings.TrimSpace(raw.Link)
	title := strings.TrimSpace(raw.Title)

	switch {
	case link == "" && title == "":
		return p.reject(src, raw, ErrMissingLinkAndTitle), nil
	case link == "":
		return p.reject(src, raw, ErrMissingLink), nil
	}

	canonical, address, err := normalize.Address(resolveLink(link, src.URL))
	if err != nil {
		return p.reject(src, raw, fmt.Errorf("%w: %v", ErrInvalidLink, err)), nil
	}

	item := p.buildItem(raw, src, canonical, address)

	created, err := p.saver.InsertIfAbsent(ctx, item)
	if err != nil {
		if errors.Is(err, db.ErrInvariantViolation) {
			p.logger.Printf("Pipeline: INVARIANT VIOLATION storing %s from %s: %v", canonical, src.ID, err)
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("store item %s: %w", canonical, err)
	}
	if !created {
		return Outcome{Kind: OutcomeDuplicate, Item: item}, nil
	}
	return Outcome{Kind: OutcomeCreated, Item: item}, nil
}

func (p *Pipeline) reject(src domain.Source, raw domain.RawItem, reason error) Outcome {
	p.logger.Printf("Pipeline: rejected item %q from %s: %v", raw.Title, src.ID, reason)
	return Outcome{Kind: OutcomeRejected, Reason: reason}
}

// BatchStats summarises one ProcessBatch call. Err is the first storage
// error, or db.ErrInvariantViolation if one occurred.
type BatchStats struct {
	Created   int
	Duplicate int
	Rejected  int
	Failed    int
	Err       error
}

// Fatal reports whether the batch hit an invariant violation.
func (s BatchStats) Fatal() bool {
	return errors.Is(s.Err, db.ErrInvariantViolation)
}

// ProcessBatch processes items in order. Storage errors do not stop the
// batch; an invariant violation or cancellation does.
func (p *Pipeline) ProcessBatch(ctx context.Context, items []domain.RawItem, src domain.Source) BatchStats {
	var stats BatchStats
	for _, raw := range items {
		if err := ctx.Err(); err != nil {
			if stats.Err == nil {
				stats.Err = err
			}
			return stats
		}

		out, err := p.Process(ctx, raw, src)
		if err != nil {
			stats.Failed++
			if errors.Is(err, db.ErrInvariantViolation) {
				stats.Err = err
				return stats
			}
			if stats.Err == nil {
				stats.Err = err
			}
			p.logger.Printf("Pipeline: ERROR storing item from %s: %v", src.ID, err)
			continue
		}

		switch out.Kind {
		case OutcomeCreated:
			stats.Created++
		case OutcomeDuplicate:
			stats.Duplicate++
		case OutcomeRejected:
			stats.Rejected++
		}
	}
	return stats
}

// resolveLink makes a relative entry link absolute against the feed URL.
func resolveLink(link, feedURL string) string {
	ref, err := url.Parse(link)
	if err != nil || ref.IsAbs() || feedURL == "" {
		return link
	}
	base, err := url.Parse(feedURL)
	if err != nil || !base.IsAbs() {
		return link
	}
	return base.ResolveReference(ref).String()
}
