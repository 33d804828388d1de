package filelock

import (
	"context"
	"testing"
	"time"
)

func TestSamePathSerializesAcrossCaseVariants(t *testing.T) {
	r := New()
	ctx := context.Background()

	release, err := r.Acquire(ctx, "/vault/Projects/Bracket.SLDPRT")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	entered := make(chan struct{})
	go func() {
		release2, err := r.Acquire(ctx, "/vault/projects/bracket.sldprt")
		if err != nil {
			t.Errorf("second acquire failed: %v", err)
			close(entered)
			return
		}
		close(entered)
		release2()
	}()

	select {
	case <-entered:
		t.Fatalf("case variant of a held path must block")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("second acquire never proceeded after release")
	}
}

func TestDistinctPathsDoNotContend(t *testing.T) {
	r := New()
	ctx := context.Background()

	releaseA, err := r.Acquire(ctx, "/vault/a.sldprt")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	acquired := make(chan struct{})
	go func() {
		releaseB, err := r.Acquire(ctx, "/vault/b.sldprt")
		if err != nil {
			t.Errorf("acquire b: %v", err)
			close(acquired)
			return
		}
		releaseB()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("distinct path blocked behind unrelated lock")
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	r := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		release, err := r.Acquire(ctx, "/vault/a.sldprt")
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		release()
	}
}

func TestSidecarLockBlocksSecondRegistry(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewWithOptions(Options{SidecarDir: dir})
	release, err := first.Acquire(ctx, "/vault/a.sldprt")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	second := NewWithOptions(Options{
		SidecarDir:  dir,
		LockTimeout: 100 * time.Millisecond,
		RetryDelay:  10 * time.Millisecond,
	})
	if _, err := second.Acquire(ctx, "/vault/a.sldprt"); err == nil {
		t.Fatalf("expected sidecar contention to fail the second acquire")
	}

	release()

	release2, err := second.Acquire(ctx, "/vault/a.sldprt")
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}
