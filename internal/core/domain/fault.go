package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the closed classification vocabulary shared by every component.
type ErrorKind string

const (
	KindSuccess              ErrorKind = "success"
	KindTimeout              ErrorKind = "timeout"
	KindTransientCommFailure ErrorKind = "transient_communication_failure"
	KindServerBusy           ErrorKind = "server_busy"
	KindServerNotRunning     ErrorKind = "server_not_running"
	KindServerUnresponsive   ErrorKind = "server_unresponsive"
	KindResourceNotOpen      ErrorKind = "resource_not_open"
	KindUnknown              ErrorKind = "unknown"
)

// Status codes reported by the native automation runtime.
const (
	statusCallRejected       uint32 = 0x80010001
	statusServerDied         uint32 = 0x80010007
	statusRetryLater         uint32 = 0x8001010A
	statusMonikerUnavailable uint32 = 0x800401E3
	statusServerExecFailure  uint32 = 0x80080005
	statusServerUnavailable  uint32 = 0x800706BA
	statusCallFailed         uint32 = 0x800706BE
)

// ClassifyStatus maps a native automation status code onto the error taxonomy.
// It is total: unrecognized codes map to KindUnknown.
func ClassifyStatus(code uint32) ErrorKind {
	switch code {
	case statusRetryLater, statusCallRejected:
		return KindServerBusy
	case statusServerUnavailable, statusCallFailed:
		return KindTransientCommFailure
	case statusServerDied:
		return KindServerUnresponsive
	case statusMonikerUnavailable, statusServerExecFailure:
		return KindServerNotRunning
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether a failure of the given kind is worth retrying.
// ServerNotRunning is excluded because retrying will not start the target;
// Unknown is excluded because retrying an unclassified failure is unsafe.
func IsRetryable(kind ErrorKind) bool {
	switch kind {
	case KindServerBusy, KindTransientCommFailure, KindServerUnresponsive:
		return true
	default:
		return false
	}
}

// Fault is a classified failure carrying a short operator-facing message and
// a verbose diagnostic detail. The two are kept separate so callers can show
// the short form by default and escalate with the detail.
type Fault struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func NewFault(kind ErrorKind, message, detail string) *Fault {
	return &Fault{Kind: kind, Message: message, Detail: detail}
}

// FaultFromError classifies err under kind, using its chain as the detail.
func FaultFromError(kind ErrorKind, message string, err error) *Fault {
	f := &Fault{Kind: kind, Message: message, Err: err}
	if err != nil {
		f.Detail = err.Error()
	}
	return f
}

func (f *Fault) Error() string {
	if f == nil {
		return "fault"
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// KindOf extracts the taxonomy kind from an error chain. Non-fault errors
// map to KindUnknown, never to a retryable kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindSuccess
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, ErrSessionClosed) {
		return KindResourceNotOpen
	}
	return KindUnknown
}

// IsRetryableError reports whether the classified kind of err is retryable.
func IsRetryableError(err error) bool {
	return IsRetryable(KindOf(err))
}
