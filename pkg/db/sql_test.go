package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	sq "github.com/Masterminds/squirrel"
)

var sqliteSeq int64

func newSQLiteStore(t *testing.T) Store {
	t.Helper()

	// a named shared-cache memory db per test keeps tests isolated
	dsn := fmt.Sprintf("file:newsfeed_test_%d?mode=memory&cache=shared", atomic.AddInt64(&sqliteSeq, 1))
	client := NewSQLClient(SQLConfig{Driver: "sqlite3", DSN: dsn})
	if err := client.Connect(context.Background()); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	store, err := NewSQLStore(client, client.Dialect())
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store
}

func TestSQLStore_SQLite(t *testing.T) {
	runStoreContract(t, newSQLiteStore)
}

func TestSQLStore_SQLite_EnsureSchemaIdempotent(t *testing.T) {
	s := newSQLiteStore(t).(*SQLStore)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestSQLStore_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN not set")
	}

	runStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		client := NewSQLClient(SQLConfig{DSN: dsn})
		if err := client.Connect(ctx); err != nil {
			t.Fatalf("connect: %v", err)
		}
		t.Cleanup(func() { client.Close() })

		if _, err := client.DB().ExecContext(ctx, "DROP TABLE IF EXISTS content_items, sources"); err != nil {
			t.Fatalf("reset: %v", err)
		}
		store, err := NewSQLStore(client, client.Dialect())
		if err != nil {
			t.Fatalf("NewSQLStore: %v", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		return store
	})
}

func TestNewSQLStore_RequiresConnection(t *testing.T) {
	if _, err := NewSQLStore(NewSQLClient(SQLConfig{DSN: "x"}), DialectPostgres); err == nil {
		t.Fatal("expected error for unconnected client")
	}
}

type openDB struct{ db *sql.DB }

func (o openDB) DB() *sql.DB { return o.db }

func TestNewSQLStore_PlaceholdersFollowDialect(t *testing.T) {
	tests := []struct {
		driver  string
		dsn     string
		dialect Dialect
		want    string
	}{
		{"pgx", "postgres://u:p@localhost:1/newsfeed", DialectPostgres, "id = $1"},
		{"sqlite3", ":memory:", DialectSQLite, "id = ?"},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			// sql.Open does not dial, so no server is needed
			conn, err := sql.Open(tt.driver, tt.dsn)
			if err != nil {
				t.Fatalf("sql.Open: %v", err)
			}
			defer conn.Close()

			store, err := NewSQLStore(openDB{conn}, tt.dialect)
			if err != nil {
				t.Fatalf("NewSQLStore: %v", err)
			}
			query, _, err := store.sb.Select("id").From(itemsTable).Where(sq.Eq{"id": "x"}).ToSql()
			if err != nil {
				t.Fatalf("ToSql: %v", err)
			}
			if !strings.Contains(query, tt.want) {
				t.Errorf("query = %q, want placeholder %q", query, tt.want)
			}
		})
	}
}

func TestDriverFromDSN(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"postgres://u:p@localhost/newsfeed":   "pgx",
		"postgresql://u:p@localhost/newsfeed": "pgx",
		"file:newsfeed.db?_journal_mode=WAL":  "sqlite3",
		"newsfeed.db":                         "sqlite3",
		":memory:":                            "sqlite3",
		"host=localhost user=newsfeed":        "pgx",
	}
	for dsn, want := range tests {
		if got := DriverFromDSN(dsn); got != want {
			t.Errorf("DriverFromDSN(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestJSONTagsRoundTrip(t *testing.T) {
	in := []string{"go", "feeds"}
	v, err := jsonTags{tags: &in}.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out []string
	if err := (jsonTags{tags: &out}).Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out) != 2 || out[1] != "feeds" {
		t.Errorf("round trip = %v", out)
	}

	if err := (jsonTags{tags: &out}).Scan(nil); err != nil || len(out) != 0 {
		t.Errorf("nil scan = (%v, %v)", out, err)
	}
}
