package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestSerializer() *Serializer {
	exec := NewExecutor(Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	}, nil)
	return NewSerializer(exec, time.Second)
}

func TestSerializerTimesOutWhileGateHeld(t *testing.T) {
	s := newTestSerializer()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Execute(context.Background(), "hold", time.Second, func(context.Context) error {
			close(started)
			<-release
			return nil
		}, nil)
	}()
	<-started

	err := s.Execute(context.Background(), "blocked", 50*time.Millisecond, func(context.Context) error {
		t.Error("operation must not run when the gate times out")
		return nil
	}, nil)
	if !errors.Is(err, ErrGateTimeout) {
		t.Fatalf("expected gate timeout, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder failed: %v", err)
	}

	if err := s.Execute(context.Background(), "after", 100*time.Millisecond, func(context.Context) error {
		return nil
	}, nil); err != nil {
		t.Fatalf("expected gate to be free after release, got %v", err)
	}
}

func TestSerializerReleasesGateAfterFailure(t *testing.T) {
	s := newTestSerializer()

	errOp := errors.New("operation failed")
	if err := s.Execute(context.Background(), "fail", time.Second, func(context.Context) error {
		return errOp
	}, nil); !errors.Is(err, errOp) {
		t.Fatalf("expected operation error, got %v", err)
	}

	if err := s.Execute(context.Background(), "next", 100*time.Millisecond, func(context.Context) error {
		return nil
	}, nil); err != nil {
		t.Fatalf("expected gate released after failure, got %v", err)
	}
}

func TestSerializerReleasesGateAfterPanic(t *testing.T) {
	s := newTestSerializer()

	err := s.Execute(context.Background(), "boom", time.Second, func(context.Context) error {
		panic("native fault")
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected recovered panic error, got %v", err)
	}

	if err := s.Execute(context.Background(), "next", 100*time.Millisecond, func(context.Context) error {
		return nil
	}, nil); err != nil {
		t.Fatalf("expected gate released after panic, got %v", err)
	}
}

func TestSerializerHonorsContextAtGate(t *testing.T) {
	s := newTestSerializer()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Execute(context.Background(), "hold", time.Second, func(context.Context) error {
			close(started)
			<-release
			return nil
		}, nil)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Execute(ctx, "canceled", time.Second, func(context.Context) error {
		t.Error("operation must not run after cancellation at the gate")
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder failed: %v", err)
	}
}

func TestSerializeValueReturnsResult(t *testing.T) {
	s := newTestSerializer()

	got, err := SerializeValue(context.Background(), s, "value", time.Second, func(context.Context) (int, error) {
		return 42, nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}

	_, err = SerializeValue(context.Background(), s, "value", time.Second, func(context.Context) (int, error) {
		return 0, errors.New("failed")
	}, nil)
	if err == nil {
		t.Fatalf("expected failure to propagate")
	}
}
