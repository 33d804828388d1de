package ports

import (
	"context"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

// DocumentMetadataService is the inbound contract for metadata engine
// document operations. An empty configuration selects file-level scope.
type DocumentMetadataService interface {
	ReadProperties(ctx context.Context, path, configuration string) (domain.PropertyMap, error)
	WriteProperties(ctx context.Context, path, configuration string, props domain.PropertyMap) error
	WritePropertiesBatch(ctx context.Context, path string, configurations map[string]domain.PropertyMap) error
	Configurations(ctx context.Context, path string) ([]domain.Configuration, error)
	BillOfMaterials(ctx context.Context, path, configuration string) ([]domain.BOMItem, error)
	// ExportBillOfMaterials writes the aggregated bill of materials to an
	// output file and returns the number of exported rows.
	ExportBillOfMaterials(ctx context.Context, path, configuration, output string) (int, error)
	References(ctx context.Context, path string) ([]domain.Reference, error)
	Preview(ctx context.Context, path, configuration string) (domain.Preview, error)
	ReleaseHandles(ctx context.Context) (bool, error)
	EngineStatus(ctx context.Context) domain.EngineStatus
	Configure(ctx context.Context, licenseKey, libraryPath string) error
}

// LiveAutomationService is the inbound contract for serialized, retried
// calls against the live CAD session.
type LiveAutomationService interface {
	Invoke(ctx context.Context, operation string, op func(context.Context) error) error
	Health(ctx context.Context) domain.HealthStatus
}
