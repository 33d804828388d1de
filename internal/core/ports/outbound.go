package ports

import (
	"context"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

// MetadataEngine is the outbound boundary of the dynamically resolved
// document metadata engine. Open lazily re-resolves the engine library after
// a ReleaseAll, so callers never issue an explicit re-initialization call.
type MetadataEngine interface {
	Open(ctx context.Context, path string, docType domain.DocType, mode domain.AccessMode) (DocumentSession, error)
	// ReleaseAll force-releases every outstanding native reference and
	// defers re-initialization to the next Open.
	ReleaseAll(ctx context.Context) (bool, error)
	Status(ctx context.Context) domain.EngineStatus
	// Configure re-supplies the license key and library override path.
	// Empty values leave the current setting unchanged.
	Configure(licenseKey, libraryPath string)
}

// ConfigurationInfo carries the engine-level description of one named
// configuration, without its property map.
type ConfigurationInfo struct {
	Name        string
	Description string
	Parent      string
}

// ComponentRef is one direct component reference of an assembly
// configuration, before de-duplication.
type ComponentRef struct {
	Path          string
	Configuration string
}

// DocumentSession is an open document handle owned by exactly one operation.
// The scope argument on property calls selects between file level (empty
// string) and a named configuration. Close must be safe to call on every
// exit path, including after a failed operation.
type DocumentSession interface {
	Path() string
	Type() domain.DocType

	PropertyNames(scope string) ([]string, error)
	Property(name, scope string) (string, error)
	// UpdateProperty mutates an existing property and reports
	// domain.ErrPropertyNotFound when it does not exist yet.
	UpdateProperty(name, value, scope string) error
	AddProperty(name, value, scope string) error

	ConfigurationNames() ([]string, error)
	ActiveConfiguration() (string, error)
	DescribeConfiguration(name string) (ConfigurationInfo, error)
	Components(configuration string) ([]ComponentRef, error)
	References() ([]string, error)

	ConfigurationPreview(configuration string) (domain.Preview, error)
	DocumentPreview() (domain.Preview, error)

	Save() error
	Close() error
}

// PathLocker serializes document operations per normalized file path.
// Distinct paths must not contend.
type PathLocker interface {
	Acquire(ctx context.Context, path string) (release func(), err error)
}

// BOMExporter renders an aggregated bill of materials to a file on disk.
type BOMExporter interface {
	Export(ctx context.Context, output, document, configuration string, items []domain.BOMItem) error
}

// LiveSession executes units of work against the running CAD application.
// The operation name is used only for logging and metrics.
type LiveSession interface {
	Invoke(ctx context.Context, operation string, op func(context.Context) error) error
	Health(ctx context.Context) domain.HealthStatus
}
