// Package lockmanager implements the filesystem-based singleton guard
// (spec §4.1): at most one registrar process writes on behalf of a
// given parent domain. The algorithm is grounded directly on
// original_source/subdomain_registrar/subdomains_registrar.py's
// SubdomainLock: a temp file hard-linked atomically into place, so a
// pre-existing lockfile makes the link fail rather than racing a
// separate existence check against a create.
package lockmanager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// LockIOError is a fatal failure writing the acquired lockfile's
// content (spec §4.1: "Write failure after successful link is fatal").
type LockIOError struct {
	Path string
	Err  error
}

func (e *LockIOError) Error() string {
	return fmt.Sprintf("lockmanager: failed to write lockfile %s: %v", e.Path, e.Err)
}
func (e *LockIOError) Unwrap() error { return e.Err }

// ErrAlreadyLocked is returned by Acquire when another owner already
// holds the lockfile.
var ErrAlreadyLocked = errors.New("lockmanager: lockfile already held by another process")

// Acquire attempts to become the singleton owner of path. On success,
// path contains this process's PID as decimal text.
//
// The temp-file-then-hard-link sequence makes acquisition atomic
// against concurrent acquirers on the same filesystem: a second
// process's Link call fails with EEXIST the instant the first
// process's Link call succeeds, so there is no window where both
// believe they hold the lock.
func Acquire(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("lockmanager: create lock directory %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".subd.registrar.lock.%s", uuid.NewString()))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("lockmanager: create temp lockfile: %w", err)
	}
	defer func() { _ = os.Remove(tmpPath) }()

	if err := os.Link(tmpPath, path); err != nil {
		f.Close()
		if os.IsExist(err) {
			return ErrAlreadyLocked
		}
		return fmt.Errorf("lockmanager: link temp lockfile into place: %w", err)
	}

	// The link succeeded: path and tmpPath now refer to the same
	// inode. tmpPath is removed by the deferred call above; f stays
	// open on that inode so the write below lands in path's content.
	content := fmt.Sprintf("%d\n", os.Getpid())
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return &LockIOError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &LockIOError{Path: path, Err: err}
	}
	return nil
}

// IsValid reports whether path exists and its stored identifier is
// this process's own PID.
//
// Per spec §9 Open Question 1, "stale" is read literally here: any
// identifier that is not this process's own — including one written by
// a different, still-running registrar — is treated as stale and the
// file is removed. A liveness check against the set of running
// processes is deliberately not substituted in; that would change the
// singleton semantics spec.md asks to preserve, not merely implement
// it, and original_source draws the same literal comparison.
func IsValid(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("lockmanager: read lockfile %s: %w", path, err)
	}

	pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if parseErr != nil || pid != os.Getpid() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("lockmanager: remove stale lockfile %s: %w", path, err)
		}
		return false, nil
	}
	return true, nil
}

// OwningPID reads the PID recorded in path, if any. Used by "service
// stop" to locate the process to signal (SPEC_FULL.md's resolution of
// spec §9 Open Question 4).
func OwningPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("lockmanager: lockfile %s does not contain a valid PID", path)
	}
	return pid, nil
}
