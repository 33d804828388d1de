//go:build !windows

package solidworks

import (
	"fmt"

	"github.com/pdmworks/cadbridge/internal/core/domain"
	"github.com/pdmworks/cadbridge/internal/infrastructure/resilience"
)

// platformAttach reports the live application as unavailable; interactive
// automation only exists on windows.
func platformAttach() (Connection, error) {
	return nil, fmt.Errorf("live automation requires windows: %w", domain.ErrEngineUnavailable)
}

// newPlatformRegistrar returns a registrar that installs nothing; there is
// no interop runtime to hook on this platform.
func newPlatformRegistrar(*STARunner) resilience.Registrar {
	return noopRegistrar{}
}

type noopRegistrar struct{}

func (noopRegistrar) Register(*resilience.AdmissionFilter) error { return nil }

func (noopRegistrar) Unregister() error { return nil }
