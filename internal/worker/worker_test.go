package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/subdomain-registrar/internal/committer"
	"github.com/stacks-network/subdomain-registrar/internal/namingapi"
	"github.com/stacks-network/subdomain-registrar/internal/queuestore"
	"github.com/stacks-network/subdomain-registrar/internal/subdomain"
	"github.com/stacks-network/subdomain-registrar/internal/zonefile"
)

type passthroughBuilder struct{}

func (passthroughBuilder) Build(ctx context.Context, parentDomain string, records []subdomain.Record) (string, []int, error) {
	return "zone text", nil, nil
}

func newTestWorker(t *testing.T, frequency time.Duration) (*Worker, *queuestore.Store) {
	t.Helper()
	store, err := queuestore.Open(filepath.Join(t.TempDir(), "queue.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"transaction_hash": "0xTX"})
	}))
	t.Cleanup(server.Close)

	api := namingapi.New(server.URL, "token", 0)
	c := committer.New("example.id", store, passthroughBuilder{}, api, 10, nil)
	return New(c, frequency, nil), store
}

// Run ticks at least once immediately on start, without waiting out a
// full frequency interval first.
func TestRunCommitsOnFirstTick(t *testing.T) {
	w, store := newTestWorker(t, time.Hour)
	_, err := store.Enqueue(context.Background(), "example.id", subdomain.New("alice", "pubkey:data:02abc123", "zf"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(runDone)
	}()

	require.Eventually(t, func() bool {
		rows, err := store.Head(context.Background(), "example.id", 10)
		return err == nil && len(rows) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-runDone
}

// Stop causes Run to return promptly even mid-sleep, without waiting
// out the full frequency interval.
func TestStopReturnsPromptly(t *testing.T) {
	w, _ := newTestWorker(t, time.Hour)

	runDone := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(runDone)
	}()

	// Let the worker's first tick land and enter its sleep.
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
	<-runDone
}
