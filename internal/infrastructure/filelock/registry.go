package filelock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

const (
	sidecarLockTimeout    = 3 * time.Second
	sidecarLockRetryDelay = 100 * time.Millisecond
)

// Registry serializes document operations per normalized file path. Lock
// entries are created lazily and never removed; growth is bounded by the
// number of distinct files touched in the process lifetime.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	sidecarDir  string
	lockTimeout time.Duration
	retryDelay  time.Duration
}

type Options struct {
	// SidecarDir enables cross-process lock files under the given directory
	// in addition to the in-process mutex. Empty disables the sidecar.
	SidecarDir  string
	LockTimeout time.Duration
	RetryDelay  time.Duration
}

func New() *Registry {
	return NewWithOptions(Options{})
}

func NewWithOptions(options Options) *Registry {
	timeout := options.LockTimeout
	if timeout <= 0 {
		timeout = sidecarLockTimeout
	}
	delay := options.RetryDelay
	if delay <= 0 {
		delay = sidecarLockRetryDelay
	}
	return &Registry{
		locks:       make(map[string]*sync.Mutex),
		sidecarDir:  options.SidecarDir,
		lockTimeout: timeout,
		retryDelay:  delay,
	}
}

// Acquire blocks until the lock for path's normalized form is held and
// returns the release function. Paths differing only in case contend for
// the same lock; distinct paths never contend.
func (r *Registry) Acquire(ctx context.Context, path string) (func(), error) {
	key := domain.NormalizePath(path)

	r.mu.Lock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	r.mu.Unlock()

	lock.Lock()

	if r.sidecarDir == "" {
		return lock.Unlock, nil
	}

	sidecar, err := r.acquireSidecar(ctx, key)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	return func() {
		if err := sidecar.Unlock(); err != nil {
			slog.Warn("sidecar_unlock_failed", "path", key, "error", err)
		}
		lock.Unlock()
	}, nil
}

func (r *Registry) acquireSidecar(ctx context.Context, key string) (*flock.Flock, error) {
	if err := os.MkdirAll(r.sidecarDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	lock := flock.New(r.sidecarPath(key))
	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, r.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire sidecar lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("sidecar lock for %s not acquired within %s", key, r.lockTimeout)
	}
	return lock, nil
}

// sidecarPath hashes the document path so the lock directory stays flat and
// no lock file lands next to a vaulted document.
func (r *Registry) sidecarPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(r.sidecarDir, hex.EncodeToString(sum[:8])+".lock")
}
