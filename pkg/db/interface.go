package db

import "database/sql"

// DBProvider is an interface for database clients that provide access to a sql.DB handle.
// SQLClient and SupabaseClient both satisfy it, so SQLStore works on either.
type DBProvider interface {
	DB() *sql.DB
}
