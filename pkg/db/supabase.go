package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	supabase "github.com/supabase-community/supabase-go"
)

// SupabaseConfig holds configuration for a Supabase-hosted Postgres.
type SupabaseConfig struct {
	// ConnectionString is the Postgres connection string. When empty it is
	// derived from ProjectURL and Password.
	ConnectionString string

	// ProjectURL is https://<project-ref>.supabase.co
	ProjectURL string

	// APIKey enables the REST client used by Ping.
	APIKey string

	// Password is the database password, not the API key.
	Password string

	MaxOpenConns int
	MaxIdleConns int
	ConnMaxIdle  time.Duration
	ConnMaxLife  time.Duration
}

// SupabaseClient is a DBProvider backed by Supabase Postgres. The store
// needs the direct connection; the REST client is only used for health checks.
type SupabaseClient struct {
	db   *sql.DB
	rest *supabase.Client
	cfg  SupabaseConfig
}

// NewSupabaseClient constructs a Supabase client.
func NewSupabaseClient(cfg SupabaseConfig) *SupabaseClient {
	return &SupabaseClient{cfg: cfg}
}

// Connect opens the direct Postgres connection and, when an API key is
// configured, the REST client.
func (c *SupabaseClient) Connect(ctx context.Context) error {
	if c.cfg.ProjectURL != "" && c.cfg.APIKey != "" {
		rest, err := supabase.NewClient(c.cfg.ProjectURL, c.cfg.APIKey, nil)
		if err != nil {
			return fmt.Errorf("initialize supabase client: %w", err)
		}
		c.rest = rest
	}

	connStr := c.cfg.ConnectionString
	if connStr == "" {
		var err error
		if connStr, err = c.buildConnectionString(); err != nil {
			return fmt.Errorf("build connection string: %w", err)
		}
	}
	// Supavisor pools connections per transaction, so pgx must not cache
	// prepared statements across them.
	connStr = addConnectionParam(connStr, "statement_cache_capacity", "0")
	connStr = addConnectionParam(connStr, "default_query_exec_mode", "simple_protocol")

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open supabase postgres: %w", err)
	}
	applyPool(db, c.cfg.MaxOpenConns, c.cfg.MaxIdleConns, c.cfg.ConnMaxIdle, c.cfg.ConnMaxLife)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping supabase postgres: %w", err)
	}

	c.db = db
	return nil
}

// Ping checks the REST endpoint by counting rows of the items table. It is a
// no-op without an API key.
func (c *SupabaseClient) Ping(ctx context.Context) (int64, error) {
	if c.rest == nil {
		return 0, nil
	}
	_, count, err := c.rest.From(itemsTable).Select("id", "exact", true).Execute()
	if err != nil {
		return 0, fmt.Errorf("supabase rest ping: %w", err)
	}
	return int64(count), nil
}

// Close closes the database connection.
func (c *SupabaseClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB exposes the underlying sql.DB handle.
func (c *SupabaseClient) DB() *sql.DB {
	return c.db
}

// buildConnectionString derives the direct connection string from the
// project URL: https://<ref>.supabase.co -> db.<ref>.supabase.co:5432.
func (c *SupabaseClient) buildConnectionString() (string, error) {
	if c.cfg.ProjectURL == "" || c.cfg.Password == "" {
		return "", fmt.Errorf("either a connection string or project URL and password are required")
	}

	parsed, err := url.Parse(c.cfg.ProjectURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase URL: %w", err)
	}
	ref, _, ok := strings.Cut(parsed.Host, ".")
	if !ok || ref == "" {
		return "", fmt.Errorf("invalid supabase URL %q: expected <project-ref>.supabase.co", c.cfg.ProjectURL)
	}

	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(c.cfg.Password), ref), nil
}

// addConnectionParam appends key=value unless the connection string already sets key.
func addConnectionParam(connStr, key, value string) string {
	if strings.Contains(connStr, key+"=") {
		return connStr
	}
	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	return connStr + separator + key + "=" + value
}
