package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// Advisory delay bounds answered to the interop runtime while a call is
// rejected. The ramp is linear, not exponential: the filter fires on every
// blocked call and must avoid both busy-looping and excessive latency.
const (
	admissionBaseDelay   = 100 * time.Millisecond
	admissionDelayStep   = 50 * time.Millisecond
	admissionMaxDelay    = 500 * time.Millisecond
	admissionWaitCeiling = 30 * time.Second
	admissionLogEvery    = 5
)

// RejectReason is the runtime-level signal that an outgoing call was turned
// away by the target.
type RejectReason int

const (
	// RejectRetryLater marks a busy target that may accept the call soon.
	RejectRetryLater RejectReason = iota
	// RejectCall marks a rejection the runtime must not retry.
	RejectCall
)

// Decision answers a rejection: cancel the call, or let the runtime retry it
// after Delay.
type Decision struct {
	Cancel bool
	Delay  time.Duration
}

// PendingAction answers a pending-message notification received while a call
// is blocked.
type PendingAction int

// PendingProcess lets the host process window messages normally, so the UI
// does not freeze during a long wait.
const PendingProcess PendingAction = 0

// Registrar installs the filter with the OS interop runtime.
type Registrar interface {
	// Register replaces any previously active filter and must remember it.
	Register(f *AdmissionFilter) error
	// Unregister restores the previously active filter.
	Unregister() error
}

// AdmissionFilter intercepts busy and rejected signals below the application
// layer while a native automation call is blocked. Application code never
// sees these signals as errors; the filter answers them with bounded delays
// until either the call is admitted or the wait ceiling is exceeded.
type AdmissionFilter struct {
	registrar Registrar
	onRetry   func()

	mu          sync.Mutex
	consecutive int
	total       int
	attached    bool
}

type FilterOptions struct {
	// OnRetry is invoked once per answered busy retry, outside the filter
	// lock.
	OnRetry func()
}

func NewAdmissionFilter(registrar Registrar) *AdmissionFilter {
	return NewAdmissionFilterWithOptions(registrar, FilterOptions{})
}

func NewAdmissionFilterWithOptions(registrar Registrar, options FilterOptions) *AdmissionFilter {
	return &AdmissionFilter{
		registrar: registrar,
		onRetry:   options.OnRetry,
	}
}

// Attach installs the filter with the runtime, replacing any previously
// active filter. Attaching twice is a no-op.
func (f *AdmissionFilter) Attach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attached || f.registrar == nil {
		return nil
	}
	if err := f.registrar.Register(f); err != nil {
		return err
	}
	f.attached = true
	return nil
}

// Detach restores the previously active filter. Detaching when not attached
// is a no-op, not an error.
func (f *AdmissionFilter) Detach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.attached || f.registrar == nil {
		return nil
	}
	if err := f.registrar.Unregister(); err != nil {
		return err
	}
	f.attached = false
	return nil
}

// OnRejected decides how the runtime should answer a rejected call. elapsed
// is how long the current call has been waiting in total.
func (f *AdmissionFilter) OnRejected(reason RejectReason, elapsed time.Duration) Decision {
	switch reason {
	case RejectRetryLater:
		return f.retryLater(elapsed)
	case RejectCall:
		f.mu.Lock()
		f.consecutive = 0
		f.mu.Unlock()
		return Decision{Cancel: true}
	default:
		// Unrecognized reason: stay conservative and wait the minimum
		// delay rather than failing closed.
		return Decision{Delay: admissionBaseDelay}
	}
}

func (f *AdmissionFilter) retryLater(elapsed time.Duration) Decision {
	f.mu.Lock()
	f.consecutive++
	f.total++
	consecutive := f.consecutive
	total := f.total
	f.mu.Unlock()

	if f.onRetry != nil {
		f.onRetry()
	}

	// Log the 1st and every 5th consecutive retry only, to bound volume.
	if consecutive == 1 || consecutive%admissionLogEvery == 0 {
		slog.Warn("busy_retry",
			"consecutive", consecutive,
			"total", total,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}

	if elapsed > admissionWaitCeiling {
		slog.Warn("busy_wait_ceiling_exceeded", "elapsed_ms", elapsed.Milliseconds())
		return Decision{Cancel: true}
	}

	delay := admissionBaseDelay + time.Duration(consecutive)*admissionDelayStep
	if delay > admissionMaxDelay {
		delay = admissionMaxDelay
	}
	return Decision{Delay: delay}
}

// OnMessagePending answers a pending-message notification received while the
// calling thread is blocked.
func (f *AdmissionFilter) OnMessagePending() PendingAction {
	return PendingProcess
}

// Reset zeroes the consecutive-retry counter. The retry executor calls it
// after every successful call so bookkeeping reflects only the current
// burst. Safe on a nil filter.
func (f *AdmissionFilter) Reset() {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.consecutive = 0
	f.mu.Unlock()
}

// Counts returns the consecutive and lifetime retry counters.
func (f *AdmissionFilter) Counts() (consecutive, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consecutive, f.total
}
