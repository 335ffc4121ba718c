package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DataFileName is the default snapshot database under the home dir.
	DataFileName = "pulse.db"

	sqlitePrefix = "sqlite://"
)

var (
	//go:embed sql/*
	f embed.FS

	ErrStoreNotInitialized = errors.New("store not initialized")
	ErrSnapshotNotFound    = errors.New("snapshot not found")
)

// Store persists pincode summary snapshots.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to dsn: postgres:// and postgresql:// URLs use lib/pq,
// anything else is treated as a sqlite file path.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("dsn not specified")
	}

	driver := DriverSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = DriverPostgres
	} else {
		dsn = strings.TrimPrefix(dsn, sqlitePrefix)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return &Store{db: db, driver: driver}, nil
}

// Init creates the schema when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreNotInitialized
	}

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return fmt.Errorf("failed to read the schema creation file: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("failed to create %s schema: %w", s.driver, err)
	}
	slog.Debug("store schema ready", "driver", s.driver)
	return nil
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
