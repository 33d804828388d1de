//go:build windows

package solidworks

import (
	"errors"
	"fmt"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

const applicationProgID = "SldWorks.Application"

const (
	hrSOK           = 0x00000000
	hrSFalse        = 0x00000001
	rpcEChangedMode = 0x80010106
	eNoInterface    = 0x80004002
)

// platformAttach connects to an already running application instance. It
// never launches one; a missing instance is reported and the caller decides
// what to do about it.
func platformAttach() (Connection, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) ||
			(oleErr.Code() != hrSOK && oleErr.Code() != hrSFalse && oleErr.Code() != rpcEChangedMode) {
			return nil, fmt.Errorf("initialize com apartment: %w", err)
		}
	}

	clsid, err := ole.CLSIDFromProgID(applicationProgID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", applicationProgID, err)
	}
	unknown, err := ole.GetActiveObject(clsid, ole.IID_IUnknown)
	if err != nil {
		return nil, fmt.Errorf("no running application instance: %w", err)
	}
	disp, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()
	if err != nil {
		return nil, fmt.Errorf("query application dispatch: %w", err)
	}
	return &oleConnection{app: disp}, nil
}

type oleConnection struct {
	app *ole.IDispatch
}

// Ping reads a cheap property. Automation failures surface with their
// status classification so the caller's retry decisions stay accurate.
func (c *oleConnection) Ping() error {
	result, err := oleutil.GetProperty(c.app, "Visible")
	if err != nil {
		var oleErr *ole.OleError
		if errors.As(err, &oleErr) {
			if kind := domain.ClassifyStatus(uint32(oleErr.Code())); kind != domain.KindUnknown {
				return domain.FaultFromError(kind, "application probe failed", err)
			}
		}
		return fmt.Errorf("application probe: %w", err)
	}
	result.Clear()
	return nil
}

func (c *oleConnection) Close() {
	if c.app != nil {
		c.app.Release()
		c.app = nil
	}
}
