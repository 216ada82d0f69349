package queuestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/subdomain-registrar/internal/subdomain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(name string) subdomain.Record {
	return subdomain.New(name, "pubkey:data:02abc123", "zf")
}

// P1: distinct enqueues all succeed and head returns them in call order.
func TestEnqueueDistinctNamesPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := s.Enqueue(ctx, "example.id", rec(name))
		require.NoError(t, err)
	}

	rows, err := s.Head(ctx, "example.id", 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"alice", "bob", "carol"}, []string{rows[0].SubdomainName, rows[1].SubdomainName, rows[2].SubdomainName})
	require.Less(t, rows[0].ReceivedAt, rows[1].ReceivedAt)
	require.Less(t, rows[1].ReceivedAt, rows[2].ReceivedAt)
}

// P2: re-enqueueing the same name fails with ErrDuplicateSubdomain and
// leaves store state unchanged.
func TestEnqueueDuplicateNameFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "example.id", rec("alice"))
	require.NoError(t, err)

	_, err = s.Enqueue(ctx, "example.id", rec("alice"))
	require.ErrorIs(t, err, ErrDuplicateSubdomain)

	rows, err := s.Head(ctx, "example.id", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

// P2 extension: a duplicate against an already-terminal row is still rejected (I1).
func TestEnqueueDuplicateAgainstCommittedRowFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "example.id", rec("alice"))
	require.NoError(t, err)
	require.NoError(t, s.Mark(ctx, "example.id", []int64{id}, StateCommitted, "TX1"))

	_, err = s.Enqueue(ctx, "example.id", rec("alice"))
	require.ErrorIs(t, err, ErrDuplicateSubdomain)
}

// P3: after mark, head never returns the marked rows again.
func TestMarkRemovesRowsFromHead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	idA, err := s.Enqueue(ctx, "example.id", rec("alice"))
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "example.id", rec("bob"))
	require.NoError(t, err)

	require.NoError(t, s.Mark(ctx, "example.id", []int64{idA}, StateCommitted, "TX1"))

	rows, err := s.Head(ctx, "example.id", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "bob", rows[0].SubdomainName)
}

// P4: a terminal mark is never revisited by a later mark.
func TestMarkDoesNotOverwriteTerminalState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "example.id", rec("alice"))
	require.NoError(t, err)
	require.NoError(t, s.Mark(ctx, "example.id", []int64{id}, StateCommitted, "TX1"))

	// A second mark against the same id, as if a buggy caller tried to
	// revisit it, must not change the already-terminal row.
	require.NoError(t, s.Mark(ctx, "example.id", []int64{id}, StateFailed, "should not apply"))

	rows, err := s.Head(ctx, "example.id", 10)
	require.NoError(t, err)
	require.Len(t, rows, 0)

	var state, detail string
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT commit_state, detail FROM "+tableName("example.id")+" WHERE received_at = ?", id).Scan(&state, &detail))
	require.Equal(t, string(StateCommitted), state)
	require.Equal(t, "TX1", detail)
}

func TestHeadOrdersByReceivedAtAscendingAndRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		_, err := s.Enqueue(ctx, "example.id", rec(name))
		require.NoError(t, err)
	}

	rows, err := s.Head(ctx, "example.id", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "alice", rows[0].SubdomainName)
	require.Equal(t, "bob", rows[1].SubdomainName)
}

func TestQueuesAreIndependentPerParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "one.id", rec("alice"))
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "two.id", rec("alice"))
	require.NoError(t, err) // same name, different parent queue: not a collision

	rowsOne, err := s.Head(ctx, "one.id", 10)
	require.NoError(t, err)
	rowsTwo, err := s.Head(ctx, "two.id", 10)
	require.NoError(t, err)
	require.Len(t, rowsOne, 1)
	require.Len(t, rowsTwo, 1)
}

// Round-trip: a Subdomain record survives Enqueue -> Head byte-equivalent
// in its semantic fields.
func TestPayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := subdomain.New("alice", "pubkey:data:02abc123", "$origin alice\n$ttl 3600\n")
	_, err := s.Enqueue(ctx, "example.id", original)
	require.NoError(t, err)

	rows, err := s.Head(ctx, "example.id", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, original, rows[0].Record)
}
