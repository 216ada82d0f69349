// Package queuestore implements the Queue Store (spec §4.2): a
// durable, per-parent-domain queue of pending subdomain creations
// backed by an embedded relational store, with exactly-once enqueue
// semantics per subdomain name (invariant I1) and strictly-ordered
// draining of PENDING rows (invariants I2-I4).
package queuestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gofrs/flock"

	"github.com/stacks-network/subdomain-registrar/internal/subdomain"
)

// CommitState is one of a queue row's terminal or pre-terminal states
// (spec §3).
type CommitState string

const (
	StatePending        CommitState = "PENDING"
	StateCommitted      CommitState = "COMMITTED"
	StateAlreadyExisted CommitState = "ALREADY_EXISTED"
	StateFailed         CommitState = "FAILED"
)

// IsTerminal reports whether further transitions from this state are
// disallowed (invariant I3).
func (s CommitState) IsTerminal() bool {
	return s == StateCommitted || s == StateAlreadyExisted || s == StateFailed
}

// ErrDuplicateSubdomain is returned by Enqueue when a row with the same
// subdomain name already exists in the target parent's queue, in any
// commit state.
var ErrDuplicateSubdomain = errors.New("queuestore: subdomain already queued")

// StorageError wraps an underlying I/O or constraint failure other
// than a duplicate-name rejection.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("queuestore: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Row is one pending-or-settled queue entry.
type Row struct {
	ReceivedAt    int64
	SubdomainName string
	Record        subdomain.Record
	CommitState   CommitState
	Detail        string
}

// Store is the single-file embedded relational store backing every
// parent domain's queue.
type Store struct {
	db   *sql.DB
	lock *flock.Flock

	mu          sync.Mutex
	knownTables map[string]bool

	clockMu sync.Mutex
	lastID  int64

	log *slog.Logger
}

// Open opens (creating if absent) the queue-store file at path. A
// best-effort advisory OS-level flock guards the file against a second
// process opening it outside the registrar's own singleton-lock
// discipline; unlike the Lock Manager (internal/lockmanager) it is not
// the mechanism that enforces the single-writer guarantee, it is a
// second line of defense against accidental misuse (see DESIGN.md).
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "mkdir", Err: err}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1) // single-writer per spec §1; avoid concurrent sqlite connections racing the conditional insert

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &StorageError{Op: "pragma busy_timeout", Err: err}
	}

	fileLock := flock.New(path + ".flock")
	locked, err := fileLock.TryLock()
	if err != nil {
		log.Warn("queuestore: advisory flock attempt failed", "error", err)
	} else if !locked {
		log.Warn("queuestore: another process holds the advisory lock on the queue store file", "path", path)
	}

	return &Store{
		db:          db,
		lock:        fileLock,
		knownTables: make(map[string]bool),
		log:         log,
	}, nil
}

// Close releases the database handle and the advisory flock.
func (s *Store) Close() error {
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return s.db.Close()
}

// ensureTable creates the parent domain's table and index if they do
// not already exist (idempotent per spec §4.2).
func (s *Store) ensureTable(ctx context.Context, parentDomain string) (string, error) {
	table := tableName(parentDomain)

	s.mu.Lock()
	known := s.knownTables[table]
	s.mu.Unlock()
	if known {
		return table, nil
	}

	if _, err := s.db.ExecContext(ctx, createTableSQL(table)); err != nil {
		return "", &StorageError{Op: "create table", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, createIndexSQL(table)); err != nil {
		return "", &StorageError{Op: "create index", Err: err}
	}

	s.mu.Lock()
	s.knownTables[table] = true
	s.mu.Unlock()
	return table, nil
}

// nextReceivedAt returns a value strictly greater than every value it
// has previously returned in this process, satisfying invariant I2
// even if called twice within the same nanosecond or across a system
// clock rollback.
func (s *Store) nextReceivedAt() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.lastID {
		now = s.lastID + 1
	}
	s.lastID = now
	return now
}

// Enqueue appends a PENDING row for rec under parentDomain. The insert
// is conditioned on no existing row (any commit state) sharing rec.Name
// in one atomic statement, eliminating the check-then-act race spec
// §4.2 calls out.
func (s *Store) Enqueue(ctx context.Context, parentDomain string, rec subdomain.Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	table, err := s.ensureTable(ctx, parentDomain)
	if err != nil {
		return 0, err
	}
	payload, err := rec.Marshal()
	if err != nil {
		return 0, &StorageError{Op: "marshal payload", Err: err}
	}

	receivedAt := s.nextReceivedAt()
	stmt := fmt.Sprintf(`INSERT INTO %s (received_at, subdomain_name, payload, commit_state, detail)
		SELECT ?, ?, ?, ?, ''
		WHERE NOT EXISTS (SELECT 1 FROM %s WHERE subdomain_name = ?)`, table, table)

	res, err := s.db.ExecContext(ctx, stmt, receivedAt, rec.Name, payload, string(StatePending), rec.Name)
	if err != nil {
		return 0, &StorageError{Op: "enqueue", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "enqueue rows affected", Err: err}
	}
	if n == 0 {
		return 0, ErrDuplicateSubdomain
	}
	return receivedAt, nil
}

// Head returns the oldest limit PENDING rows under parentDomain in
// ascending received_at order (invariant I4).
func (s *Store) Head(ctx context.Context, parentDomain string, limit int) ([]Row, error) {
	if limit < 1 {
		limit = 1
	}
	table, err := s.ensureTable(ctx, parentDomain)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`SELECT received_at, subdomain_name, payload, commit_state, detail
		FROM %s WHERE commit_state = ? ORDER BY received_at ASC LIMIT ?`, table)
	rows, err := s.db.QueryContext(ctx, stmt, string(StatePending), limit)
	if err != nil {
		return nil, &StorageError{Op: "head", Err: err}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var payload []byte
		var state, name, detail string
		if err := rows.Scan(&r.ReceivedAt, &name, &payload, &state, &detail); err != nil {
			return nil, &StorageError{Op: "head scan", Err: err}
		}
		rec, err := subdomain.Unmarshal(payload)
		if err != nil {
			return nil, &StorageError{Op: "head unmarshal", Err: err}
		}
		r.SubdomainName = name
		r.Record = rec
		r.CommitState = CommitState(state)
		r.Detail = detail
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "head iterate", Err: err}
	}
	return out, nil
}

// Mark transitions the given row ids to a terminal commit state
// (invariant I3). Rows not currently PENDING are left untouched so a
// terminal state is never overwritten.
func (s *Store) Mark(ctx context.Context, parentDomain string, ids []int64, state CommitState, detail string) error {
	if len(ids) == 0 {
		return nil
	}
	if !state.IsTerminal() {
		return fmt.Errorf("queuestore: mark requires a terminal state, got %q", state)
	}
	table, err := s.ensureTable(ctx, parentDomain)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, string(state), detail)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	stmt := fmt.Sprintf(`UPDATE %s SET commit_state = ?, detail = ?
		WHERE commit_state = '%s' AND received_at IN (%s)`,
		table, string(StatePending), joinPlaceholders(placeholders))

	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return &StorageError{Op: "mark", Err: err}
	}
	return nil
}

func joinPlaceholders(ph []string) string {
	out := ph[0]
	for _, p := range ph[1:] {
		out += "," + p
	}
	return out
}
