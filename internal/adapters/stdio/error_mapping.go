package stdio

import (
	"errors"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

func mapErrorToCode(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrFileNotFound):
		return "file_not_found"
	case domain.IsKind(err, domain.ErrDocTypeUnknown):
		return "doc_type_unknown"
	case domain.IsKind(err, domain.ErrConfigurationNotFound):
		return "configuration_not_found"
	case domain.IsKind(err, domain.ErrPropertyNotFound):
		return "property_not_found"
	case domain.IsKind(err, domain.ErrNotAssembly):
		return "not_assembly"
	case domain.IsKind(err, domain.ErrPreviewNotStored):
		return "preview_not_stored"
	case domain.IsKind(err, domain.ErrPreviewUnsupported):
		return "preview_unsupported"
	case domain.IsKind(err, domain.ErrLibraryNotFound):
		return "library_not_found"
	case domain.IsKind(err, domain.ErrEntryPointNotFound):
		return "entry_point_not_found"
	case domain.IsKind(err, domain.ErrLicenseRejected):
		return "license_rejected"
	case domain.IsKind(err, domain.ErrMethodUnsupported):
		return "method_unsupported"
	case domain.IsKind(err, domain.ErrEngineUnavailable):
		return "engine_unavailable"
	case domain.IsKind(err, domain.ErrSessionClosed):
		return "session_closed"
	default:
		return "engine_fault:" + string(domain.KindOf(err))
	}
}

func errorInfoFor(err error) *ErrorInfo {
	info := &ErrorInfo{Code: mapErrorToCode(err), Message: err.Error()}
	var fault *domain.Fault
	if errors.As(err, &fault) {
		info.Message = fault.Message
		info.Detail = fault.Detail
	}
	return info
}
