package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/angeloszaimis/fleet-health/internal/registry"
	"github.com/angeloszaimis/fleet-health/internal/service"
)

// Store implements registry.Registry on SQLite. Observations are appended,
// never updated; the current state of a service is the newest row for its
// (address, port).
type Store struct {
	db    *sql.DB
	mutex sync.Mutex
}

var _ registry.Registry = (*Store)(nil)

// New opens the database at dataSourceName and runs migrations.
func New(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS services (
	name          TEXT PRIMARY KEY,
	address       TEXT NOT NULL,
	port          INTEGER NOT NULL,
	auth_required INTEGER NOT NULL,
	position      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	observed_at  TEXT NOT NULL,
	service_name TEXT NOT NULL,
	address      TEXT NOT NULL,
	port         INTEGER NOT NULL,
	active       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_address_port_seq ON observations (address, port, seq DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const upsertService = `
INSERT INTO services (name, address, port, auth_required, position)
VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM services))
ON CONFLICT(name) DO UPDATE SET
	address = excluded.address,
	port = excluded.port,
	auth_required = excluded.auth_required`

// Register upserts the roster in one transaction.
func (s *Store) Register(ctx context.Context, descriptors []service.Descriptor) error {
	for _, d := range descriptors {
		if d.Name == "" {
			return registry.ErrEmptyName
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, d := range descriptors {
		if _, err := tx.ExecContext(ctx, upsertService, d.Name, d.Address, d.Port, d.AuthRequired); err != nil {
			return fmt.Errorf("failed to register service %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns the roster ordered by registration.
func (s *Store) List(ctx context.Context) ([]service.Descriptor, error) {
	query := `SELECT name, address, port, auth_required FROM services ORDER BY position`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var roster []service.Descriptor
	for rows.Next() {
		var d service.Descriptor
		if err := rows.Scan(&d.Name, &d.Address, &d.Port, &d.AuthRequired); err != nil {
			return nil, fmt.Errorf("failed to scan service row: %w", err)
		}
		roster = append(roster, d)
	}
	return roster, rows.Err()
}

// Get returns the state derived from the newest observation of name's endpoint.
func (s *Store) Get(ctx context.Context, name string) (service.State, bool, error) {
	var d service.Descriptor
	query := `SELECT name, address, port, auth_required FROM services WHERE name = ?`
	err := s.db.QueryRowContext(ctx, query, name).Scan(&d.Name, &d.Address, &d.Port, &d.AuthRequired)
	if errors.Is(err, sql.ErrNoRows) {
		return service.State{}, false, nil
	}
	if err != nil {
		return service.State{}, false, fmt.Errorf("failed to get service %s: %w", name, err)
	}

	return loadState(ctx, s.db, d)
}

// Commit appends an observation row and returns the state that preceded it.
func (s *Store) Commit(ctx context.Context, d service.Descriptor, active bool, when time.Time) (service.State, bool, error) {
	if d.Name == "" {
		return service.State{}, false, registry.ErrEmptyName
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return service.State{}, false, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertRoster := `
INSERT INTO services (name, address, port, auth_required, position)
VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM services))
ON CONFLICT(name) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insertRoster, d.Name, d.Address, d.Port, d.AuthRequired); err != nil {
		return service.State{}, false, fmt.Errorf("failed to record service %s: %w", d.Name, err)
	}

	prev, seen, err := loadState(ctx, tx, d)
	if err != nil {
		return service.State{}, false, err
	}
	if !seen {
		prev = registry.Unseen()
	}

	insert := `INSERT INTO observations (id, observed_at, service_name, address, port, active) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), formatTime(when), d.Name, d.Address, d.Port, active); err != nil {
		return service.State{}, false, fmt.Errorf("failed to append observation for %s: %w", d.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return service.State{}, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return prev, seen, nil
}

// Snapshot returns every roster entry that has at least one observation.
func (s *Store) Snapshot(ctx context.Context) ([]service.Entry, error) {
	roster, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]service.Entry, 0, len(roster))
	for _, d := range roster {
		st, ok, err := loadState(ctx, s.db, d)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		entries = append(entries, service.Entry{Descriptor: d, State: st})
	}

	return entries, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadState(ctx context.Context, q querier, d service.Descriptor) (service.State, bool, error) {
	var (
		st         service.State
		checkedStr string
	)

	latest := `SELECT active, observed_at FROM observations WHERE address = ? AND port = ? ORDER BY seq DESC LIMIT 1`
	err := q.QueryRowContext(ctx, latest, d.Address, d.Port).Scan(&st.Active, &checkedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return service.State{}, false, nil
	}
	if err != nil {
		return service.State{}, false, fmt.Errorf("failed to read latest observation for %s: %w", d.Name, err)
	}
	if st.LastCheckedAt, err = parseTime(checkedStr); err != nil {
		return service.State{}, false, fmt.Errorf("invalid observation for %s: %w", d.Name, err)
	}

	var flippedStr string
	flipped := `
SELECT observed_at FROM (
	SELECT observed_at, active, seq, LAG(active) OVER (ORDER BY seq) AS previous
	FROM observations WHERE address = ? AND port = ?
) WHERE previous IS NOT NULL AND previous <> active
ORDER BY seq DESC LIMIT 1`
	err = q.QueryRowContext(ctx, flipped, d.Address, d.Port).Scan(&flippedStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return service.State{}, false, fmt.Errorf("failed to read last transition for %s: %w", d.Name, err)
	default:
		t, err := parseTime(flippedStr)
		if err != nil {
			return service.State{}, false, fmt.Errorf("invalid transition for %s: %w", d.Name, err)
		}
		st.LastTransitionAt = &t
	}

	return st, true, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse observed_at %q: %w", s, err)
	}
	return t, nil
}
