// Package querylog records the SQL statements a test issues through a
// database handle.
package querylog

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Query is one recorded statement.
type Query struct {
	SQL      string
	Args     []any
	Duration time.Duration
	Err      error
}

// Recorder wraps a *sql.DB and keeps every statement run through it.
type Recorder struct {
	db *sql.DB

	mu      sync.Mutex
	queries []Query
	since   func(time.Time) time.Duration
}

// New creates a Recorder over db.
func New(db *sql.DB) *Recorder {
	return &Recorder{db: db, since: time.Since}
}

// DB returns the wrapped handle.
func (r *Recorder) DB() *sql.DB {
	return r.db
}

func (r *Recorder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, args...)
	r.record(query, args, start, err)
	return res, err
}

func (r *Recorder) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.record(query, args, start, err)
	return rows, err
}

// QueryRowContext records the statement; errors surface later from Scan and
// are not recorded.
func (r *Recorder) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, query, args...)
	r.record(query, args, start, nil)
	return row
}

func (r *Recorder) record(query string, args []any, start time.Time, err error) {
	q := Query{
		SQL:      query,
		Args:     append([]any(nil), args...),
		Duration: r.since(start),
		Err:      err,
	}
	r.mu.Lock()
	r.queries = append(r.queries, q)
	r.mu.Unlock()
}

// Queries returns a copy of the recorded statements in execution order.
func (r *Recorder) Queries() []Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Query, len(r.queries))
	copy(out, r.queries)
	return out
}

// Reset forgets all recorded statements.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.queries = nil
	r.mu.Unlock()
}
