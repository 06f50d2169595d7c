package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"newsfeed/pkg/config"
	"newsfeed/pkg/db"
)

// openStore connects the configured backend. The returned closer is never nil.
func openStore(ctx context.Context, cfg config.StorageConfig) (db.Store, func(), error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return db.NewMemoryStore(), func() {}, nil

	case config.StoreSQLite, config.StorePostgres:
		sqlCfg := db.SQLConfig{
			Driver:       "pgx",
			DSN:          cfg.DSN,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			ConnMaxLife:  cfg.ConnMaxLife,
		}
		if cfg.Driver == config.StoreSQLite {
			// single connection, see SQLClient.Connect
			sqlCfg = db.SQLConfig{Driver: "sqlite3", DSN: cfg.DSN}
		}
		client := db.NewSQLClient(sqlCfg)
		if err := client.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store, err := sqlStore(ctx, client, client.Dialect())
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	case config.StoreSupabase:
		client := db.NewSupabaseClient(db.SupabaseConfig{
			ConnectionString: cfg.DSN,
			ProjectURL:       cfg.Supabase.ProjectURL,
			APIKey:           cfg.Supabase.APIKey,
			Password:         cfg.Supabase.Password,
			MaxOpenConns:     cfg.MaxOpenConns,
			MaxIdleConns:     cfg.MaxIdleConns,
			ConnMaxLife:      cfg.ConnMaxLife,
		})
		if err := client.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to supabase: %w", err)
		}
		store, err := sqlStore(ctx, client, db.DialectPostgres)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if n, err := client.Ping(ctx); err != nil {
			log.Printf("Supabase REST check failed: %v", err)
		} else if n > 0 {
			log.Printf("Supabase reports %d stored items", n)
		}
		return store, func() { _ = client.Close() }, nil

	case config.StoreMongo:
		store, err := openMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { closeMongo(store) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func sqlStore(ctx context.Context, p db.DBProvider, dialect db.Dialect) (*db.SQLStore, error) {
	store, err := db.NewSQLStore(p, dialect)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func openMongo(ctx context.Context, uri, database string) (*db.MongoStore, error) {
	store := db.NewMongoStore(uri, database)
	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return store, nil
}

func closeMongo(store *db.MongoStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = store.Close(ctx)
}
