package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/subdomain-registrar/internal/lockmanager"
)

type fakeWorker struct {
	running atomic.Bool
	stopped chan struct{}
}

func newFakeWorker() *fakeWorker { return &fakeWorker{stopped: make(chan struct{})} }

func (w *fakeWorker) Run(ctx context.Context) {
	w.running.Store(true)
	<-ctx.Done()
	w.running.Store(false)
}

func (w *fakeWorker) Stop() { close(w.stopped) }

type fakeServer struct {
	startErr chan error
	stopped  atomic.Bool
}

func newFakeServer() *fakeServer { return &fakeServer{startErr: make(chan error, 1)} }

func (s *fakeServer) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.startErr:
		return err
	}
}

func (s *fakeServer) Stop() error {
	s.stopped.Store(true)
	return nil
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "registrar.lock")
	w := newFakeWorker()
	srv := newFakeServer()
	sup := &Supervisor{LockfilePath: lockPath, Worker: w, Server: srv}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return w.running.Load() }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	require.True(t, srv.stopped.Load())
}

func TestRunFailsWhenAlreadyLocked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "registrar.lock")
	require.NoError(t, lockmanager.Acquire(lockPath))

	sup := &Supervisor{LockfilePath: lockPath, Worker: newFakeWorker(), Server: newFakeServer()}
	err := sup.Run(context.Background())
	require.ErrorIs(t, err, lockmanager.ErrAlreadyLocked)
}

func TestRunShutsDownWhenLockfileRemoved(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "registrar.lock")
	w := newFakeWorker()
	srv := newFakeServer()
	sup := &Supervisor{LockfilePath: lockPath, Worker: w, Server: srv}

	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(context.Background()) }()

	require.Eventually(t, func() bool { return w.running.Load() }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.Remove(lockPath))

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not notice lockfile removal")
	}
}

func TestSignalStopErrorsWithoutLockfile(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "absent.lock")
	err := SignalStop(lockPath)
	require.Error(t, err)
}
