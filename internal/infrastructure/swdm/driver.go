package swdm

import "github.com/pdmworks/cadbridge/internal/core/domain"

// Handle is an opaque reference to a native engine object, owned by the
// driver that produced it.
type Handle any

// Driver is the OS-facing surface of the metadata engine library. The
// resolver, engine and session layers above it are portable and speak only
// through this interface.
type Driver interface {
	// Locations returns candidate library paths in search order.
	Locations() []string
	// Load makes the library at path available for activation.
	Load(path string) error
	// Activate validates the license key against the library's factory
	// entry point and returns the engine root object. Failures wrap
	// domain.ErrEntryPointNotFound or domain.ErrLicenseRejected.
	Activate(key string) (Handle, error)
	// Generations lists the interface generation tags, newest first.
	Generations() []string
	// Supports reports whether method is exposed by generation.
	Supports(generation, method string) bool
	// Invoke performs a late-bound call on obj. Methods taking a scope
	// argument accept a configuration name, empty for file level.
	Invoke(obj Handle, method string, args ...any) (any, error)
	// ReleaseObject drops one native object reference.
	ReleaseObject(obj Handle)
	// Release drops the factory and all library state.
	Release()
}

// Engine methods resolved through version discovery.
const (
	methodGetDocument         = "GetDocument"
	methodPropertyNames       = "GetCustomPropertyNames"
	methodGetProperty         = "GetCustomProperty"
	methodSetProperty         = "SetCustomProperty"
	methodAddProperty         = "AddCustomProperty"
	methodConfigurationNames  = "GetConfigurationNames"
	methodActiveConfiguration = "GetActiveConfigurationName"
	methodConfigurationInfo   = "GetConfigurationInfo"
	methodComponents          = "GetComponents"
	methodExternalReferences  = "GetAllExternalReferences"
	methodPreviewPNG          = "GetPreviewPNG"
	methodPreviewBitmap       = "GetPreviewBitmap"
	methodSave                = "Save"
	methodClose               = "CloseDoc"
)

// ConfigInfo is the driver-level description of one configuration.
type ConfigInfo struct {
	Description string
	Parent      string
}

// Component is one direct component reference of an assembly configuration.
type Component struct {
	Path          string
	Configuration string
}

// Document type enumeration values of the native engine. These cross the
// driver boundary as typed values, never as bare integers.
type nativeDocType int32

const (
	nativePart     nativeDocType = 1
	nativeAssembly nativeDocType = 2
	nativeDrawing  nativeDocType = 3
)

func nativeTypeFor(t domain.DocType) (nativeDocType, bool) {
	switch t {
	case domain.DocTypePart:
		return nativePart, true
	case domain.DocTypeAssembly:
		return nativeAssembly, true
	case domain.DocTypeDrawing:
		return nativeDrawing, true
	default:
		return 0, false
	}
}
