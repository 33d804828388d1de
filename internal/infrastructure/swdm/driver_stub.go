//go:build !windows

package swdm

import (
	"fmt"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

// NewDriver returns the platform driver. The document manager library only
// ships for windows; on other platforms every load attempt reports the
// engine as unavailable and the service degrades to status-only responses.
func NewDriver() Driver {
	return unsupportedDriver{}
}

type unsupportedDriver struct{}

func (unsupportedDriver) Locations() []string { return nil }

func (unsupportedDriver) Load(string) error {
	return fmt.Errorf("document manager library requires windows: %w", domain.ErrEngineUnavailable)
}

func (unsupportedDriver) Activate(string) (Handle, error) {
	return nil, fmt.Errorf("document manager library requires windows: %w", domain.ErrEngineUnavailable)
}

func (unsupportedDriver) Generations() []string { return nil }

func (unsupportedDriver) Supports(string, string) bool { return false }

func (unsupportedDriver) Invoke(Handle, string, ...any) (any, error) {
	return nil, fmt.Errorf("document manager library requires windows: %w", domain.ErrEngineUnavailable)
}

func (unsupportedDriver) ReleaseObject(Handle) {}

func (unsupportedDriver) Release() {}
