// Package store is the data service used by the survey engine: row-oriented
// reads, inserts and upserts over surveys, questions, submissions and answers.
package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an insert collides with a unique key.
	ErrConflict = errors.New("store: conflict")
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// notFound maps sql.ErrNoRows to ErrNotFound and wraps anything else with code.
func notFound(err error, code string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.WithMessage(ErrNotFound, code)
	}
	return errors.Wrap(err, code)
}

// conflict maps unique constraint violations to ErrConflict and wraps anything else with code.
func conflict(err error, code string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return errors.WithMessage(ErrConflict, code)
	}
	return errors.Wrap(err, code)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}
