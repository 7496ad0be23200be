package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect selects the SQL flavour of the connection
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// DB wraps the database connection
type DB struct {
	*sql.DB
	dialect Dialect
}

// NewPostgresDB creates a new PostgreSQL connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=networth sslmode=disable"
func NewPostgresDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, dialect: Postgres}, nil
}

// NewSQLiteDB opens (or creates) a SQLite database file.
// SQLite allows one writer, so the pool is limited to a single connection.
func NewSQLiteDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, dialect: SQLite}, nil
}

// Dialect reports the SQL flavour of the connection
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// EnsureSchema creates missing tables and indexes. It is safe to run on every start.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema(db.dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
