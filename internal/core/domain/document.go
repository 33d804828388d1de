package domain

import (
	"path/filepath"
	"strings"
)

type DocType string

const (
	DocTypePart     DocType = "part"
	DocTypeAssembly DocType = "assembly"
	DocTypeDrawing  DocType = "drawing"
	DocTypeUnknown  DocType = "unknown"
)

// DocTypeForPath resolves the document type from the file extension. The
// mapping is closed: anything outside the three recognized extensions is
// DocTypeUnknown and must fail fast before an open is attempted.
func DocTypeForPath(path string) DocType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sldprt":
		return DocTypePart
	case ".sldasm":
		return DocTypeAssembly
	case ".slddrw":
		return DocTypeDrawing
	default:
		return DocTypeUnknown
	}
}

type AccessMode string

const (
	AccessReadOnly  AccessMode = "read-only"
	AccessReadWrite AccessMode = "read-write"
)

// HealthStatus is a snapshot of live-session readiness, valid only at the
// instant it was sampled.
type HealthStatus string

const (
	HealthHealthy      HealthStatus = "healthy"
	HealthBusy         HealthStatus = "busy"
	HealthUnresponsive HealthStatus = "unresponsive"
	HealthNotRunning   HealthStatus = "not_running"
)

// PropertyMap holds custom properties for one (document, scope) pair where
// scope is either file level or a named configuration. Names are
// case-sensitive and unique.
type PropertyMap map[string]string

type Configuration struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parent      string      `json:"parent,omitempty"`
	Active      bool        `json:"active"`
	Properties  PropertyMap `json:"properties"`
}

// BOMItem is one line of a structural bill of materials. At most one item
// exists per distinct resolved path and referenced configuration; Quantity
// counts repeated usages. Part number, description and similar metadata are
// deliberately left to an external system of record.
type BOMItem struct {
	FileName      string  `json:"file_name"`
	FilePath      string  `json:"file_path"`
	Type          DocType `json:"type"`
	Quantity      int     `json:"quantity"`
	Configuration string  `json:"configuration"`
	Broken        bool    `json:"broken"`
}

type Reference struct {
	Path   string  `json:"path"`
	Type   DocType `json:"type"`
	Exists bool    `json:"exists"`
}

type PreviewFormat string

const (
	PreviewPNG PreviewFormat = "png"
	PreviewBMP PreviewFormat = "bmp"
)

type Preview struct {
	Format PreviewFormat `json:"format"`
	Data   []byte        `json:"data"`
}

// EngineStatus describes metadata engine availability for status reporting.
type EngineStatus struct {
	Available   bool   `json:"available"`
	LibraryPath string `json:"library_path,omitempty"`
	Message     string `json:"message,omitempty"`
}

// NormalizePath canonicalizes a document path for identity comparison. Paths
// differing only in case refer to the same file on the target filesystem.
func NormalizePath(path string) string {
	return strings.ToLower(filepath.Clean(strings.TrimSpace(path)))
}

// IsUnresolvedCrossReference reports whether a property value is an
// unresolved cross-reference marker into another document rather than a
// resolved literal value.
func IsUnresolvedCrossReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "$PRP")
}
