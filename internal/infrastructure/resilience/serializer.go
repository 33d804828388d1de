package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrGateTimeout reports that the serializer gate could not be acquired
// within the bounded wait. The protected operation never ran.
var ErrGateTimeout = errors.New("serialized call gate timeout")

// Serializer admits at most one in-flight call against the live session at
// any time, process-wide. The target session is not safe for concurrent
// calls; serialization is a correctness requirement, not an optimization.
type Serializer struct {
	gate     chan struct{}
	executor *Executor
	timeout  time.Duration
}

// NewSerializer builds a serializer over the given retry executor.
// defaultTimeout bounds the gate wait when a call does not supply its own.
func NewSerializer(executor *Executor, defaultTimeout time.Duration) *Serializer {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultConfig().GateDefaultTimeout
	}
	return &Serializer{
		gate:     make(chan struct{}, 1),
		executor: executor,
		timeout:  defaultTimeout,
	}
}

// Execute acquires the process-wide gate with a bounded wait, then delegates
// to the retry executor. The gate wait is the only suspension point where
// ctx cancellation is honored; once the gate is held the operation runs to
// completion. The gate is released on every exit path.
func (s *Serializer) Execute(
	ctx context.Context,
	operation string,
	timeout time.Duration,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if timeout <= 0 {
		timeout = s.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.gate <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%s: %w", operation, ErrGateTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.gate }()

	return s.executor.Execute(ctx, operation, fn, classifier)
}

// SerializeValue runs fn through the serializer and returns its value.
func SerializeValue[T any](
	ctx context.Context,
	s *Serializer,
	operation string,
	timeout time.Duration,
	fn func(context.Context) (T, error),
	classifier ErrorClassifier,
) (T, error) {
	var out T
	err := s.Execute(ctx, operation, timeout, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, classifier)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
