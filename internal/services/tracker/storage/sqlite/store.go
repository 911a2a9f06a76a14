package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/storyweft/storyweft/internal/platform/storage/sqlitemigrate"
	"github.com/storyweft/storyweft/internal/services/tracker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Connection parameters applied through the DSN. WAL keeps journal appends
// from blocking readers; the busy timeout rides out checkpoint contention.
const connParams = "_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is the SQLite-backed journal store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the store at path, creating the file if needed, and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}

	sqlDB, err := sql.Open("sqlite", filepath.Clean(path)+"?"+connParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	store := &Store{sqlDB: sqlDB}
	if err := store.init(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// init verifies the connection and applies pending migrations.
func (s *Store) init() error {
	if err := s.sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, ""); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the database handle. Nil-safe so callers can defer it
// before checking the Open error.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
