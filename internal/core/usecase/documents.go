package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdmworks/cadbridge/internal/core/domain"
	"github.com/pdmworks/cadbridge/internal/core/ports"
)

// DefaultMirrorProperty is the configuration-scope property echoed to file
// scope on writes, so consumers reading only file-level metadata stay
// consistent with the configuration being edited.
const DefaultMirrorProperty = "PartNumber"

type DocumentMetadataUseCase struct {
	engine         ports.MetadataEngine
	locks          ports.PathLocker
	exporter       ports.BOMExporter
	mirrorProperty string
}

func NewDocumentMetadataUseCase(
	engine ports.MetadataEngine,
	locks ports.PathLocker,
	exporter ports.BOMExporter,
	mirrorProperty string,
) *DocumentMetadataUseCase {
	if mirrorProperty == "" {
		mirrorProperty = DefaultMirrorProperty
	}
	return &DocumentMetadataUseCase{
		engine:         engine,
		locks:          locks,
		exporter:       exporter,
		mirrorProperty: mirrorProperty,
	}
}

// inspectPath validates existence and recognizes the document type before
// any engine work happens. Misses never reach the native layer.
func (uc *DocumentMetadataUseCase) inspectPath(path string) (domain.DocType, error) {
	if _, err := os.Stat(path); err != nil {
		return "", domain.WrapError(domain.ErrFileNotFound, "inspect document", err)
	}
	docType := domain.DocTypeForPath(path)
	if docType == domain.DocTypeUnknown {
		return "", domain.WrapError(domain.ErrDocTypeUnknown, "inspect document", fmt.Errorf("path %s", path))
	}
	return docType, nil
}

// withDocument runs fn against an open session for path, holding the
// per-path lock for the duration. The session is closed on every exit path;
// a close failure surfaces only when fn itself succeeded.
func (uc *DocumentMetadataUseCase) withDocument(
	ctx context.Context,
	path string,
	mode domain.AccessMode,
	fn func(s ports.DocumentSession) error,
) (err error) {
	docType, err := uc.inspectPath(path)
	if err != nil {
		return err
	}

	release, err := uc.locks.Acquire(ctx, path)
	if err != nil {
		return fmt.Errorf("acquire path lock: %w", err)
	}
	defer release()

	s, err := uc.engine.Open(ctx, path, docType, mode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close document: %w", cerr)
		}
	}()

	return fn(s)
}

func (uc *DocumentMetadataUseCase) ReadProperties(ctx context.Context, path, configuration string) (domain.PropertyMap, error) {
	var props domain.PropertyMap
	err := uc.withDocument(ctx, path, domain.AccessReadOnly, func(s ports.DocumentSession) error {
		read, err := readScope(s, configuration)
		if err != nil {
			return err
		}
		props = read

		// A drawing's file-level properties are often blank or hold
		// unresolved cross references; fill the gaps from the first model
		// it references.
		if s.Type() == domain.DocTypeDrawing && configuration == "" && needsReferenceMerge(props) {
			uc.mergeFromReference(ctx, s, path, props)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return props, nil
}

func readScope(s ports.DocumentSession, scope string) (domain.PropertyMap, error) {
	names, err := s.PropertyNames(scope)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	props := make(domain.PropertyMap, len(names))
	for _, name := range names {
		value, err := s.Property(name, scope)
		if err != nil {
			// A name listed but no longer readable is skipped, not fatal.
			if domain.IsKind(err, domain.ErrPropertyNotFound) {
				continue
			}
			return nil, fmt.Errorf("read property %s: %w", name, err)
		}
		props[name] = value
	}
	return props, nil
}

func needsReferenceMerge(props domain.PropertyMap) bool {
	if len(props) == 0 {
		return true
	}
	for _, value := range props {
		if domain.IsUnresolvedCrossReference(value) {
			return true
		}
	}
	return false
}

// resolveReferencePath anchors a bare-name reference against the directory
// of the document that declares it. The engine reports some siblings by
// file name only.
func resolveReferencePath(base, ref string) string {
	if ref == "" || strings.ContainsAny(ref, `\/`) || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(base), ref)
}

// mergeFromReference overlays file-level properties of the first existing
// referenced model. The local value wins unless it is missing, blank or an
// unresolved cross reference. Merge failures degrade to the local-only view.
func (uc *DocumentMetadataUseCase) mergeFromReference(ctx context.Context, s ports.DocumentSession, path string, props domain.PropertyMap) {
	refs, err := s.References()
	if err != nil {
		return
	}
	for _, ref := range refs {
		ref = resolveReferencePath(path, ref)
		refType := domain.DocTypeForPath(ref)
		if refType == domain.DocTypeUnknown {
			continue
		}
		if _, err := os.Stat(ref); err != nil {
			continue
		}

		refProps, err := uc.peekProperties(ctx, ref, refType)
		if err != nil {
			continue
		}
		for name, refValue := range refProps {
			local, ok := props[name]
			if !ok || strings.TrimSpace(local) == "" || domain.IsUnresolvedCrossReference(local) {
				props[name] = refValue
			}
		}
		return
	}
}

// peekProperties reads file-level properties of a referenced document
// without taking its path lock; the read is advisory and must not deadlock
// against an operation already holding that lock.
func (uc *DocumentMetadataUseCase) peekProperties(ctx context.Context, path string, docType domain.DocType) (_ domain.PropertyMap, err error) {
	s, err := uc.engine.Open(ctx, path, docType, domain.AccessReadOnly)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return readScope(s, "")
}

func (uc *DocumentMetadataUseCase) WriteProperties(ctx context.Context, path, configuration string, props domain.PropertyMap) error {
	if len(props) == 0 {
		return nil
	}
	return uc.withDocument(ctx, path, domain.AccessReadWrite, func(s ports.DocumentSession) error {
		if err := uc.writeScope(s, configuration, props); err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		return nil
	})
}

func (uc *DocumentMetadataUseCase) WritePropertiesBatch(ctx context.Context, path string, configurations map[string]domain.PropertyMap) error {
	if len(configurations) == 0 {
		return nil
	}
	return uc.withDocument(ctx, path, domain.AccessReadWrite, func(s ports.DocumentSession) error {
		scopes := make([]string, 0, len(configurations))
		for scope := range configurations {
			scopes = append(scopes, scope)
		}
		sort.Strings(scopes)

		wrote := false
		for _, scope := range scopes {
			props := configurations[scope]
			if len(props) == 0 {
				continue
			}
			if err := uc.writeScope(s, scope, props); err != nil {
				return err
			}
			wrote = true
		}
		if !wrote {
			return nil
		}
		if err := s.Save(); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		return nil
	})
}

// writeScope upserts each property at the given scope in deterministic
// order. Writing the mirror property at configuration scope echoes the
// value to file scope.
func (uc *DocumentMetadataUseCase) writeScope(s ports.DocumentSession, scope string, props domain.PropertyMap) error {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := props[name]
		if err := upsertProperty(s, name, value, scope); err != nil {
			return err
		}
		if scope != "" && name == uc.mirrorProperty {
			if err := upsertProperty(s, name, value, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

func upsertProperty(s ports.DocumentSession, name, value, scope string) error {
	err := s.UpdateProperty(name, value, scope)
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.ErrPropertyNotFound) {
		return fmt.Errorf("update property %s: %w", name, err)
	}
	if err := s.AddProperty(name, value, scope); err != nil {
		return fmt.Errorf("add property %s: %w", name, err)
	}
	return nil
}

func (uc *DocumentMetadataUseCase) Configurations(ctx context.Context, path string) ([]domain.Configuration, error) {
	var out []domain.Configuration
	err := uc.withDocument(ctx, path, domain.AccessReadOnly, func(s ports.DocumentSession) error {
		names, err := s.ConfigurationNames()
		if err != nil {
			return fmt.Errorf("list configurations: %w", err)
		}
		active, err := s.ActiveConfiguration()
		if err != nil {
			return fmt.Errorf("resolve active configuration: %w", err)
		}

		out = make([]domain.Configuration, 0, len(names))
		for _, name := range names {
			info, err := s.DescribeConfiguration(name)
			if err != nil {
				return fmt.Errorf("describe configuration %s: %w", name, err)
			}
			props, err := readScope(s, name)
			if err != nil {
				return err
			}
			out = append(out, domain.Configuration{
				Name:        name,
				Description: info.Description,
				Parent:      info.Parent,
				Active:      name == active,
				Properties:  props,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *DocumentMetadataUseCase) BillOfMaterials(ctx context.Context, path, configuration string) ([]domain.BOMItem, error) {
	docType, err := uc.inspectPath(path)
	if err != nil {
		return nil, err
	}
	if docType != domain.DocTypeAssembly {
		return nil, domain.WrapError(domain.ErrNotAssembly, "bill of materials", fmt.Errorf("path %s is a %s", path, docType))
	}

	var items []domain.BOMItem
	err = uc.withDocument(ctx, path, domain.AccessReadOnly, func(s ports.DocumentSession) error {
		scope := configuration
		if scope == "" {
			active, err := s.ActiveConfiguration()
			if err != nil {
				return fmt.Errorf("resolve active configuration: %w", err)
			}
			scope = active
		}

		components, err := s.Components(scope)
		if err != nil {
			return fmt.Errorf("list components: %w", err)
		}
		items = aggregateBOM(components)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ExportBillOfMaterials aggregates the bill of materials and renders it to
// output, returning the number of exported rows.
func (uc *DocumentMetadataUseCase) ExportBillOfMaterials(ctx context.Context, path, configuration, output string) (int, error) {
	if uc.exporter == nil {
		return 0, fmt.Errorf("export bill of materials: no exporter configured")
	}
	items, err := uc.BillOfMaterials(ctx, path, configuration)
	if err != nil {
		return 0, err
	}
	if err := uc.exporter.Export(ctx, output, path, configuration, items); err != nil {
		return 0, fmt.Errorf("export bill of materials: %w", err)
	}
	return len(items), nil
}

// aggregateBOM collapses repeated component usages into quantities. Items
// keep first-seen order; the same file used with different configurations
// stays on separate lines.
func aggregateBOM(components []ports.ComponentRef) []domain.BOMItem {
	type bomKey struct {
		path          string
		configuration string
	}
	index := make(map[bomKey]int)
	items := make([]domain.BOMItem, 0, len(components))

	for _, c := range components {
		key := bomKey{path: domain.NormalizePath(c.Path), configuration: c.Configuration}
		if at, ok := index[key]; ok {
			items[at].Quantity++
			continue
		}
		_, statErr := os.Stat(c.Path)
		items = append(items, domain.BOMItem{
			FileName:      filepath.Base(c.Path),
			FilePath:      c.Path,
			Type:          domain.DocTypeForPath(c.Path),
			Quantity:      1,
			Configuration: c.Configuration,
			Broken:        statErr != nil,
		})
		index[key] = len(items) - 1
	}
	return items
}

func (uc *DocumentMetadataUseCase) References(ctx context.Context, path string) ([]domain.Reference, error) {
	var out []domain.Reference
	err := uc.withDocument(ctx, path, domain.AccessReadOnly, func(s ports.DocumentSession) error {
		refs, err := s.References()
		if err != nil {
			return fmt.Errorf("list references: %w", err)
		}
		visited := map[string]bool{domain.NormalizePath(path): true}
		out = uc.walkReferences(ctx, path, refs, visited, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// walkReferences resolves the reference tree depth first. Only existing
// documents of a recognized type are descended into; missing files still
// appear in the result, flagged as absent.
func (uc *DocumentMetadataUseCase) walkReferences(ctx context.Context, parent string, refs []string, visited map[string]bool, out []domain.Reference) []domain.Reference {
	for _, ref := range refs {
		ref = resolveReferencePath(parent, ref)
		key := domain.NormalizePath(ref)
		if visited[key] {
			continue
		}
		visited[key] = true

		refType := domain.DocTypeForPath(ref)
		_, statErr := os.Stat(ref)
		exists := statErr == nil
		out = append(out, domain.Reference{
			Path:   ref,
			Type:   refType,
			Exists: exists,
		})

		if !exists || refType == domain.DocTypeUnknown {
			continue
		}
		children, err := uc.peekReferences(ctx, ref, refType)
		if err != nil {
			continue
		}
		out = uc.walkReferences(ctx, ref, children, visited, out)
	}
	return out
}

func (uc *DocumentMetadataUseCase) peekReferences(ctx context.Context, path string, docType domain.DocType) (_ []string, err error) {
	s, err := uc.engine.Open(ctx, path, docType, domain.AccessReadOnly)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return s.References()
}

func (uc *DocumentMetadataUseCase) Preview(ctx context.Context, path, configuration string) (domain.Preview, error) {
	var preview domain.Preview
	err := uc.withDocument(ctx, path, domain.AccessReadOnly, func(s ports.DocumentSession) error {
		if configuration != "" {
			p, err := s.ConfigurationPreview(configuration)
			if err != nil {
				return fmt.Errorf("configuration preview: %w", err)
			}
			preview = p
			return nil
		}

		// Prefer the active configuration's image; drawings and documents
		// without one fall back to the document-level image.
		if active, err := s.ActiveConfiguration(); err == nil && active != "" {
			if p, err := s.ConfigurationPreview(active); err == nil {
				preview = p
				return nil
			}
		}
		p, err := s.DocumentPreview()
		if err != nil {
			return fmt.Errorf("document preview: %w", err)
		}
		preview = p
		return nil
	})
	if err != nil {
		return domain.Preview{}, err
	}
	return preview, nil
}

func (uc *DocumentMetadataUseCase) ReleaseHandles(ctx context.Context) (bool, error) {
	return uc.engine.ReleaseAll(ctx)
}

func (uc *DocumentMetadataUseCase) EngineStatus(ctx context.Context) domain.EngineStatus {
	return uc.engine.Status(ctx)
}

func (uc *DocumentMetadataUseCase) Configure(ctx context.Context, licenseKey, libraryPath string) error {
	uc.engine.Configure(licenseKey, libraryPath)
	return nil
}
