package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrFileNotFound          = errors.New("file not found")
	ErrDocTypeUnknown        = errors.New("document type unrecognized")
	ErrConfigurationNotFound = errors.New("configuration not found")
	ErrPropertyNotFound      = errors.New("property not found")
	ErrNotAssembly           = errors.New("not an assembly document")
	ErrLibraryNotFound       = errors.New("metadata engine library not found")
	ErrEntryPointNotFound    = errors.New("metadata engine entry point not found")
	ErrLicenseRejected       = errors.New("metadata engine license key rejected")
	ErrEngineUnavailable     = errors.New("metadata engine unavailable")
	ErrMethodUnsupported     = errors.New("method not exposed by installed engine version")
	ErrPreviewNotStored      = errors.New("no preview stored")
	ErrPreviewUnsupported    = errors.New("preview format unsupported by installed engine version")
	ErrSessionClosed         = errors.New("document session closed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
