package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"newsfeed/pkg/domain"
)

// Dialect selects SQL flavour differences between Postgres and SQLite.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) Dialect {
	if driver == "sqlite3" {
		return DialectSQLite
	}
	return DialectPostgres
}

const (
	itemsTable   = "content_items"
	sourcesTable = "sources"
)

var itemColumns = []string{
	"id", "source_id", "canonical_url", "content_address", "title", "body",
	"preview_image", "category", "tags", "author", "published_at", "ingested_at",
	"vote_total", "vote_count", "score", "scored_at",
}

var sourceColumns = []string{
	"id", "url", "interval_seconds", "category", "etag", "last_modified",
	"last_fetched_at", "failure_count",
}

// SQLStore is a Store on database/sql. Content-address uniqueness is a
// UNIQUE constraint, so concurrent writers in any number of processes
// resolve to exactly one row.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open connection.
func NewSQLStore(p DBProvider, dialect Dialect) (*SQLStore, error) {
	if p == nil || p.DB() == nil {
		return nil, fmt.Errorf("sql store: database not connected")
	}

	var format sq.PlaceholderFormat = sq.Dollar
	if dialect == DialectSQLite {
		format = sq.Question
	}
	return &SQLStore{
		db:      p.DB(),
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(format),
	}, nil
}

// EnsureSchema creates tables and indexes when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == DialectSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) InsertIfAbsent(ctx context.Context, item *domain.ContentItem) (bool, error) {
	if item == nil || item.ContentAddress == "" {
		return false, fmt.Errorf("insert item: content address is required")
	}
	if item.ID == "" {
		return false, fmt.Errorf("insert item: id is required")
	}

	query, args, err := s.sb.Insert(itemsTable).
		Columns(itemColumns...).
		Values(
			item.ID, item.SourceID, item.CanonicalURL, item.ContentAddress,
			item.Title, item.Body, item.PreviewImage, string(item.Category),
			s.tagsValue(item.Tags), item.Author, nullTime(item.PublishedAt),
			item.IngestedAt.UTC(), item.VoteTotal, item.VoteCount, item.Score,
			item.ScoredAt.UTC(),
		).
		Suffix("ON CONFLICT (content_address) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: insert %s: %v", ErrInvariantViolation, item.ContentAddress, err)
		}
		return false, fmt.Errorf("insert item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert item rows affected: %w", err)
	}
	if n > 1 {
		return false, fmt.Errorf("%w: %d rows inserted for %s", ErrInvariantViolation, n, item.ContentAddress)
	}
	return n == 1, nil
}

func (s *SQLStore) GetItem(ctx context.Context, id string) (domain.ContentItem, error) {
	query, args, err := s.selectItems().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("build select: %w", err)
	}

	item, err := s.scanItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ContentItem{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

func (s *SQLStore) ListItems(ctx context.Context, q domain.ItemQuery) ([]domain.ContentItem, error) {
	b := s.selectItems()
	if q.Category != "" {
		b = b.Where(sq.Eq{"category": string(q.Category)})
	}
	if !q.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"ingested_at": q.Since.UTC()})
	}
	if !q.Until.IsZero() {
		b = b.Where(sq.Lt{"ingested_at": q.Until.UTC()})
	}
	if q.Sort == domain.SortNewest {
		b = b.OrderBy("ingested_at DESC", "id ASC")
	} else {
		b = b.OrderBy("score DESC", "ingested_at DESC", "id ASC")
	}
	b = b.Limit(uint64(normalizeLimit(q.Limit)))

	return s.queryItems(ctx, b)
}

func (s *SQLStore) IncrementVotes(ctx context.Context, itemID string, delta int64) error {
	// Single UPDATE so concurrent votes never lose increments.
	query, args, err := s.sb.Update(itemsTable).
		Set("vote_total", sq.Expr("vote_total + ?", delta)).
		Set("vote_count", sq.Expr("vote_count + 1")).
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build vote update: %w", err)
	}
	return s.execOne(ctx, "item "+itemID, query, args)
}

func (s *SQLStore) GetVoteTotal(ctx context.Context, itemID string) (int64, error) {
	query, args, err := s.sb.Select("vote_total").From(itemsTable).Where(sq.Eq{"id": itemID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select: %w", err)
	}

	var total int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get vote total %s: %w", itemID, err)
	}
	return total, nil
}

func (s *SQLStore) UpdateScore(ctx context.Context, itemID string, score float64, at time.Time) error {
	query, args, err := s.sb.Update(itemsTable).
		Set("score", score).
		Set("scored_at", at.UTC()).
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build score update: %w", err)
	}
	return s.execOne(ctx, "item "+itemID, query, args)
}

func (s *SQLStore) ListForRescore(ctx context.Context, before time.Time, limit int) ([]domain.ContentItem, error) {
	b := s.selectItems().Where(sq.Lt{"scored_at": before.UTC()}).OrderBy("scored_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.queryItems(ctx, b)
}

func (s *SQLStore) GetSource(ctx context.Context, id string) (domain.Source, error) {
	query, args, err := s.sb.Select(sourceColumns...).From(sourcesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Source{}, fmt.Errorf("build select: %w", err)
	}

	var (
		src         domain.Source
		intervalSec int64
		category    string
		fetchedAt   sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&src.ID, &src.URL, &intervalSec, &category, &src.ETag, &src.LastModified,
		&fetchedAt, &src.FailureCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("get source %s: %w", id, err)
	}

	src.Interval = time.Duration(intervalSec) * time.Second
	src.Category = domain.Category(category)
	if fetchedAt.Valid {
		t := fetchedAt.Time.UTC()
		src.LastFetchedAt = &t
	}
	return src, nil
}

func (s *SQLStore) UpsertSource(ctx context.Context, src domain.Source) error {
	if src.ID == "" {
		return fmt.Errorf("upsert source: id is required")
	}

	query, args, err := s.sb.Insert(sourcesTable).
		Columns(sourceColumns...).
		Values(
			src.ID, src.URL, int64(src.Interval/time.Second), string(src.Category),
			src.ETag, src.LastModified, nullTime(src.LastFetchedAt), src.FailureCount,
		).
		Suffix("ON CONFLICT (id) DO UPDATE SET url = excluded.url, interval_seconds = excluded.interval_seconds, category = excluded.category").
		ToSql()
	if err != nil {
		return fmt.Errorf("build source upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source %s: %w", src.ID, err)
	}
	return nil
}

func (s *SQLStore) UpdateSourceValidators(ctx context.Context, id, etag, lastModified string, fetchedAt *time.Time, failureCount int) error {
	b := s.sb.Update(sourcesTable).
		Set("etag", etag).
		Set("last_modified", lastModified).
		Set("failure_count", failureCount).
		Where(sq.Eq{"id": id})
	if fetchedAt != nil {
		b = b.Set("last_fetched_at", fetchedAt.UTC())
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build source update: %w", err)
	}
	return s.execOne(ctx, "source "+id, query, args)
}

// AllItems returns every stored item ordered by ingestion time.
func (s *SQLStore) AllItems(ctx context.Context) ([]domain.ContentItem, error) {
	return s.queryItems(ctx, s.selectItems().OrderBy("ingested_at ASC", "id ASC"))
}

func (s *SQLStore) selectItems() sq.SelectBuilder {
	cols := make([]string, len(itemColumns))
	copy(cols, itemColumns)
	if s.dialect == DialectPostgres {
		// text form so pq.Array can scan it through any driver
		cols[8] = "tags::text AS tags"
	}
	return s.sb.Select(cols...).From(itemsTable)
}

func (s *SQLStore) queryItems(ctx context.Context, b sq.SelectBuilder) ([]domain.ContentItem, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		item, err := s.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanItem(row rowScanner) (domain.ContentItem, error) {
	var (
		it        domain.ContentItem
		category  string
		tags      []string
		published sql.NullTime
	)
	err := row.Scan(
		&it.ID, &it.SourceID, &it.CanonicalURL, &it.ContentAddress, &it.Title,
		&it.Body, &it.PreviewImage, &category, s.tagsScanner(&tags), &it.Author,
		&published, &it.IngestedAt, &it.VoteTotal, &it.VoteCount, &it.Score,
		&it.ScoredAt,
	)
	if err != nil {
		return domain.ContentItem{}, err
	}

	it.Category = domain.Category(category)
	it.Tags = tags
	if it.Tags == nil {
		it.Tags = []string{}
	}
	if published.Valid {
		t := published.Time.UTC()
		it.PublishedAt = &t
	}
	it.IngestedAt = it.IngestedAt.UTC()
	it.ScoredAt = it.ScoredAt.UTC()
	return it, nil
}

func (s *SQLStore) execOne(ctx context.Context, what, query string, args []any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) tagsValue(tags []string) driver.Valuer {
	if tags == nil {
		tags = []string{}
	}
	if s.dialect == DialectSQLite {
		return jsonTags{tags: &tags}
	}
	return pq.Array(tags)
}

func (s *SQLStore) tagsScanner(dst *[]string) sql.Scanner {
	if s.dialect == DialectSQLite {
		return jsonTags{tags: dst}
	}
	return pq.Array(dst)
}

// jsonTags stores a tag list as a JSON array in a TEXT column.
type jsonTags struct {
	tags *[]string
}

func (j jsonTags) Value() (driver.Value, error) {
	b, err := json.Marshal(*j.tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j jsonTags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*j.tags = []string{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan tags: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*j.tags = []string{}
		return nil
	}
	return json.Unmarshal(raw, j.tags)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// isUniqueViolation recognises unique-constraint errors from every driver
// this package registers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
  id TEXT PRIMARY KEY,
  url TEXT NOT NULL,
  interval_seconds BIGINT NOT NULL DEFAULT 0,
  category TEXT NOT NULL DEFAULT '',
  etag TEXT NOT NULL DEFAULT '',
  last_modified TEXT NOT NULL DEFAULT '',
  last_fetched_at TIMESTAMPTZ NULL,
  failure_count INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS content_items (
  id TEXT PRIMARY KEY,
  source_id TEXT NOT NULL,
  canonical_url TEXT NOT NULL,
  content_address TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL DEFAULT '',
  preview_image TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT 'general',
  tags TEXT[] NOT NULL DEFAULT '{}',
  author TEXT NOT NULL DEFAULT '',
  published_at TIMESTAMPTZ NULL,
  ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  vote_total BIGINT NOT NULL DEFAULT 0,
  vote_count BIGINT NOT NULL DEFAULT 0,
  score DOUBLE PRECISION NOT NULL DEFAULT 0,
  scored_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS content_items_category_score_idx ON content_items (category, score DESC)`,
	`CREATE INDEX IF NOT EXISTS content_items_ingested_idx ON content_items (ingested_at DESC)`,
	`CREATE INDEX IF NOT EXISTS content_items_scored_idx ON content_items (scored_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
  id TEXT PRIMARY KEY,
  url TEXT NOT NULL,
  interval_seconds INTEGER NOT NULL DEFAULT 0,
  category TEXT NOT NULL DEFAULT '',
  etag TEXT NOT NULL DEFAULT '',
  last_modified TEXT NOT NULL DEFAULT '',
  last_fetched_at DATETIME NULL,
  failure_count INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS content_items (
  id TEXT PRIMARY KEY,
  source_id TEXT NOT NULL,
  canonical_url TEXT NOT NULL,
  content_address TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL DEFAULT '',
  preview_image TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT 'general',
  tags TEXT NOT NULL DEFAULT '[]',
  author TEXT NOT NULL DEFAULT '',
  published_at DATETIME NULL,
  ingested_at DATETIME NOT NULL,
  vote_total INTEGER NOT NULL DEFAULT 0,
  vote_count INTEGER NOT NULL DEFAULT 0,
  score REAL NOT NULL DEFAULT 0,
  scored_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS content_items_category_score_idx ON content_items (category, score DESC)`,
	`CREATE INDEX IF NOT EXISTS content_items_ingested_idx ON content_items (ingested_at DESC)`,
	`CREATE INDEX IF NOT EXISTS content_items_scored_idx ON content_items (scored_at)`,
}
