package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/interval"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the SQLite store behind the engine. It implements every store and
// lookup interface the coordinator consumes.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

const memoryPath = ":memory:"

func dsn(path string) string {
	if path == memoryPath {
		return "file::memory:?_foreign_keys=on"
	}
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
}

// NewDB opens the database at path, creating its directory, and applies the
// embedded migrations. The pool holds a single connection so write
// transactions are serialized inside the process.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func (db *DB) provider() (*goose.Provider, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db.DB, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return p, nil
}

func (db *DB) migrate(ctx context.Context) error {
	p, err := db.provider()
	if err != nil {
		return err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		db.logger.Debug().
			Int64("version", r.Source.Version).
			Dur("duration", r.Duration).
			Msg("Migration applied")
	}
	return nil
}

// SchemaVersion reports the latest applied migration.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	p, err := db.provider()
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// checkRange rejects intervals whose bounds overflow the nanosecond columns.
func checkRange(field string, iv interval.Interval) error {
	if !iv.Representable() {
		return domain.NewValidationError(field, "outside the supported date range")
	}
	return nil
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}
