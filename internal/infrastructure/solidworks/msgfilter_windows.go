//go:build windows

package solidworks

import (
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/pdmworks/cadbridge/internal/infrastructure/resilience"
)

// Raw interop constants for the apartment message filter protocol.
const (
	serverCallIsHandled  = 0
	serverCallRejected   = 1
	serverCallRetryLater = 2

	pendingMsgWaitDefProcess = 2

	filterCancelCall = 0xFFFFFFFF
)

var (
	iidMessageFilter = ole.NewGUID("{00000016-0000-0000-C000-000000000046}")

	ole32                       = windows.NewLazySystemDLL("ole32.dll")
	procCoRegisterMessageFilter = ole32.NewProc("CoRegisterMessageFilter")
)

// The interop runtime calls the vtable slots below on the apartment thread
// while an outgoing call is blocked. They forward to whichever admission
// filter is currently registered.
var (
	activeMu     sync.Mutex
	activeFilter *resilience.AdmissionFilter
)

// comMessageFilter is a hand-rolled message-filter COM object. It lives for
// the process lifetime, so reference counting is a formality.
type comMessageFilter struct {
	vtbl *messageFilterVtbl
}

type messageFilterVtbl struct {
	queryInterface     uintptr
	addRef             uintptr
	release            uintptr
	handleInComingCall uintptr
	retryRejectedCall  uintptr
	messagePending     uintptr
}

func newMessageFilter() *comMessageFilter {
	return &comMessageFilter{
		vtbl: &messageFilterVtbl{
			queryInterface:     syscall.NewCallback(filterQueryInterface),
			addRef:             syscall.NewCallback(filterAddRef),
			release:            syscall.NewCallback(filterRelease),
			handleInComingCall: syscall.NewCallback(filterHandleInComingCall),
			retryRejectedCall:  syscall.NewCallback(filterRetryRejectedCall),
			messagePending:     syscall.NewCallback(filterMessagePending),
		},
	}
}

func filterQueryInterface(this, riid, ppv uintptr) uintptr {
	guid := (*ole.GUID)(unsafe.Pointer(riid))
	if ole.IsEqualGUID(guid, ole.IID_IUnknown) || ole.IsEqualGUID(guid, iidMessageFilter) {
		*(*uintptr)(unsafe.Pointer(ppv)) = this
		return hrSOK
	}
	*(*uintptr)(unsafe.Pointer(ppv)) = 0
	return eNoInterface
}

func filterAddRef(uintptr) uintptr { return 1 }

func filterRelease(uintptr) uintptr { return 1 }

func filterHandleInComingCall(this, callType, htaskCaller, tickCount, interfaceInfo uintptr) uintptr {
	return serverCallIsHandled
}

func filterRetryRejectedCall(this, htaskCallee, tickCount, rejectType uintptr) uintptr {
	activeMu.Lock()
	filter := activeFilter
	activeMu.Unlock()

	reason := rejectReasonFor(uint32(rejectType))
	if filter == nil {
		if reason == resilience.RejectCall {
			return filterCancelCall
		}
		return 100
	}

	elapsed := time.Duration(uint32(tickCount)) * time.Millisecond
	decision := filter.OnRejected(reason, elapsed)
	if decision.Cancel {
		return filterCancelCall
	}
	return uintptr(decision.Delay.Milliseconds())
}

func filterMessagePending(this, htaskCallee, tickCount, pendingType uintptr) uintptr {
	activeMu.Lock()
	filter := activeFilter
	activeMu.Unlock()
	if filter != nil {
		filter.OnMessagePending()
	}
	return pendingMsgWaitDefProcess
}

// rejectReasonFor translates the raw reject type. Values outside the known
// protocol fall through to the filter's conservative default.
func rejectReasonFor(rejectType uint32) resilience.RejectReason {
	switch rejectType {
	case serverCallRetryLater:
		return resilience.RejectRetryLater
	case serverCallRejected:
		return resilience.RejectCall
	default:
		return resilience.RejectReason(-1)
	}
}

// windowsRegistrar installs the COM message filter for the apartment. The
// registration call must run on the apartment thread.
type windowsRegistrar struct {
	runner *STARunner

	mu   sync.Mutex
	com  *comMessageFilter
	prev uintptr
}

func newPlatformRegistrar(runner *STARunner) resilience.Registrar {
	return &windowsRegistrar{runner: runner}
}

func (r *windowsRegistrar) Register(f *resilience.AdmissionFilter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	activeMu.Lock()
	activeFilter = f
	activeMu.Unlock()

	if r.com == nil {
		r.com = newMessageFilter()
	}

	var registerErr error
	r.runner.Do(func() {
		var prev uintptr
		hr, _, _ := procCoRegisterMessageFilter.Call(
			uintptr(unsafe.Pointer(r.com)),
			uintptr(unsafe.Pointer(&prev)),
		)
		if int32(hr) < 0 {
			registerErr = fmt.Errorf("register message filter: %#x", hr)
			return
		}
		r.prev = prev
	})
	if registerErr != nil {
		activeMu.Lock()
		activeFilter = nil
		activeMu.Unlock()
	}
	return registerErr
}

func (r *windowsRegistrar) Unregister() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var unregisterErr error
	r.runner.Do(func() {
		hr, _, _ := procCoRegisterMessageFilter.Call(r.prev, 0)
		if int32(hr) < 0 {
			unregisterErr = fmt.Errorf("restore message filter: %#x", hr)
			return
		}
		r.prev = 0
	})
	if unregisterErr != nil {
		return unregisterErr
	}

	activeMu.Lock()
	activeFilter = nil
	activeMu.Unlock()
	return nil
}
