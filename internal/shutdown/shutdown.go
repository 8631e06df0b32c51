// Package shutdown coordinates graceful shutdown of the HTTP server and the
// stores it holds open (redis cache, analytics database, upstream clients).
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"fidchannels/internal/utils"
)

// CleanupFunc releases one resource. The context is cancelled when the
// shutdown deadline passes.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager runs registered cleanups once shutdown is requested.
type Manager struct {
	mu         sync.Mutex
	cleanups   []cleanupEntry
	shutdown   bool
	reason     string
	shutdownCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
	waitOnce   sync.Once
	waitErr    error
}

// NewManager creates a new shutdown manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterCleanup registers a cleanup function.
// Cleanups run in LIFO order, so register a resource right after opening it.
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// Shutdown initiates shutdown. Only the first call has effect.
func (m *Manager) Shutdown(reason string) {
	m.once.Do(func() {
		m.mu.Lock()
		m.shutdown = true
		m.reason = reason
		m.mu.Unlock()

		utils.Debugf("shutdown requested: %s", reason)
		m.cancel()
		close(m.shutdownCh)
	})
}

// ListenForSignals calls Shutdown on SIGINT or SIGTERM.
// The returned function stops listening.
func (m *Manager) ListenForSignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			m.Shutdown(sig.String())
		case <-done:
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
}

// Done is closed once shutdown has been requested.
func (m *Manager) Done() <-chan struct{} {
	return m.shutdownCh
}

// Reason returns what triggered the shutdown, or "" while running.
func (m *Manager) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

func (m *Manager) runCleanups(ctx context.Context) error {
	m.mu.Lock()
	cleanups := make([]cleanupEntry, len(m.cleanups))
	copy(cleanups, m.cleanups)
	m.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].fn(ctx); err != nil {
			utils.Warnf("cleanup %s failed: %v", cleanups[i].name, err)
			errs = append(errs, fmt.Errorf("%s: %w", cleanups[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait runs the cleanups and returns their joined errors, or ctx.Err() if
// the deadline passes first. Repeated calls return the first result.
func (m *Manager) Wait(ctx context.Context) error {
	m.waitOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- m.runCleanups(ctx)
		}()

		select {
		case err := <-done:
			m.waitErr = err
		case <-ctx.Done():
			m.waitErr = ctx.Err()
		}
	})
	return m.waitErr
}

// IsShutdown returns true if shutdown has been initiated.
func (m *Manager) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Context returns a context that is cancelled when shutdown is initiated.
func (m *Manager) Context() context.Context {
	return m.ctx
}
