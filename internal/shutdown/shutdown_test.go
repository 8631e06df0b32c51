package shutdown_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fidchannels/internal/shutdown"
)

// TestShutdownRunsCleanups verifies registered cleanups run after Shutdown
func TestShutdownRunsCleanups(t *testing.T) {
	mgr := shutdown.NewManager()

	var cleanupCalled atomic.Bool
	mgr.RegisterCleanup("http-server", func(ctx context.Context) error {
		cleanupCalled.Store(true)
		return nil
	})

	mgr.Shutdown("test")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	if !cleanupCalled.Load() {
		t.Error("cleanup function was not called")
	}
	if mgr.Reason() != "test" {
		t.Errorf("Reason() = %q, want %q", mgr.Reason(), "test")
	}
}

// TestShutdownCancelsContext verifies in-flight work sees the cancellation
func TestShutdownCancelsContext(t *testing.T) {
	mgr := shutdown.NewManager()

	if mgr.IsShutdown() {
		t.Fatal("manager should not start shut down")
	}

	mgr.Shutdown("SIGTERM")

	if !mgr.IsShutdown() {
		t.Error("IsShutdown should be true after Shutdown")
	}

	select {
	case <-mgr.Context().Done():
	case <-time.After(time.Second):
		t.Error("context should be cancelled after Shutdown")
	}

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Error("Done channel should be closed after Shutdown")
	}
}

// TestShutdownOrder verifies cleanups run in LIFO order
func TestShutdownOrder(t *testing.T) {
	mgr := shutdown.NewManager()

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"analytics", "redis", "http-server"} {
		name := name
		mgr.RegisterCleanup(name, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	mgr.Shutdown("test")
	_ = mgr.Wait(context.Background())

	want := "http-server,redis,analytics"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("cleanup order = %s, want %s", got, want)
	}
}

// TestShutdownCleanupErrors verifies a failing cleanup does not stop the rest
func TestShutdownCleanupErrors(t *testing.T) {
	mgr := shutdown.NewManager()
	errRedis := errors.New("redis: connection reset")

	var analyticsClosed atomic.Bool
	mgr.RegisterCleanup("analytics", func(ctx context.Context) error {
		analyticsClosed.Store(true)
		return nil
	})
	mgr.RegisterCleanup("redis", func(ctx context.Context) error {
		return errRedis
	})

	mgr.Shutdown("test")
	err := mgr.Wait(context.Background())

	if !errors.Is(err, errRedis) {
		t.Errorf("expected redis error in result, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "redis") {
		t.Errorf("error should name the cleanup, got %v", err)
	}
	if !analyticsClosed.Load() {
		t.Error("remaining cleanups should still run")
	}
}

// TestShutdownTimeout verifies Wait gives up at the deadline
func TestShutdownTimeout(t *testing.T) {
	mgr := shutdown.NewManager()

	release := make(chan struct{})
	defer close(release)
	mgr.RegisterCleanup("slow-drain", func(ctx context.Context) error {
		<-release
		return nil
	})

	mgr.Shutdown("test")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := mgr.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

// TestShutdownConcurrentSafety verifies concurrent Shutdown calls are safe
func TestShutdownConcurrentSafety(t *testing.T) {
	mgr := shutdown.NewManager()

	var calls atomic.Int32
	mgr.RegisterCleanup("http-server", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Shutdown("test")
		}()
	}
	wg.Wait()

	_ = mgr.Wait(context.Background())
	_ = mgr.Wait(context.Background())

	if calls.Load() != 1 {
		t.Errorf("cleanup ran %d times, want 1", calls.Load())
	}
}

// TestListenForSignalsStop verifies stop detaches the listener without shutting down
func TestListenForSignalsStop(t *testing.T) {
	mgr := shutdown.NewManager()
	stop := mgr.ListenForSignals()
	stop()
	stop()

	if mgr.IsShutdown() {
		t.Error("stopping the listener should not trigger shutdown")
	}
}
