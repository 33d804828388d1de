package swdm

import (
	"context"
	"fmt"
	"sync"

	"github.com/pdmworks/cadbridge/internal/core/domain"
	"github.com/pdmworks/cadbridge/internal/core/ports"
)

// Engine exposes the metadata engine behind ports.MetadataEngine. It tracks
// every session it hands out so ReleaseAll can force the whole registry
// down.
type Engine struct {
	resolver *Resolver
	driver   Driver

	mu       sync.Mutex
	open     map[*Session]struct{}
	recent   []string
	released uint64
}

func NewEngine(driver Driver, options ResolverOptions) *Engine {
	return &Engine{
		resolver: NewResolver(driver, options),
		driver:   driver,
		open:     make(map[*Session]struct{}),
	}
}

// Open resolves the engine lazily, then opens a document handle with an
// explicit access mode. The caller owns the returned session for exactly
// one operation and must close it on every exit path.
func (e *Engine) Open(ctx context.Context, path string, docType domain.DocType, mode domain.AccessMode) (ports.DocumentSession, error) {
	root, err := e.resolver.Root()
	if err != nil {
		return nil, err
	}

	nt, ok := nativeTypeFor(docType)
	if !ok {
		return nil, domain.WrapError(domain.ErrDocTypeUnknown, "open document", fmt.Errorf("type %q", docType))
	}

	bind, err := e.resolver.Bind(methodGetDocument)
	if err != nil {
		return nil, err
	}

	readOnly := mode != domain.AccessReadWrite
	doc, err := bind.Call(root, path, int32(nt), readOnly)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("open %s: engine returned no document", path)
	}

	s := &Session{
		engine:  e,
		doc:     doc,
		path:    path,
		docType: docType,
		mode:    mode,
	}
	e.track(s)
	return s, nil
}

func (e *Engine) Status(ctx context.Context) domain.EngineStatus {
	if err := e.resolver.Load(); err != nil {
		return domain.EngineStatus{Available: false, Message: err.Error()}
	}
	return domain.EngineStatus{Available: true, LibraryPath: e.resolver.Path()}
}

// Configure re-supplies the license key and library override path. Empty
// values leave the current setting unchanged.
func (e *Engine) Configure(licenseKey, libraryPath string) {
	if licenseKey != "" {
		e.resolver.SetLicenseKey(licenseKey)
	}
	if libraryPath != "" {
		e.resolver.SetOverridePath(libraryPath)
	}
}

// OpenSessions reports the number of currently tracked sessions, for gauge
// sampling.
func (e *Engine) OpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

// HandleReleases reports how many full release rounds have run.
func (e *Engine) HandleReleases() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

func (e *Engine) track(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open[s] = struct{}{}
	e.recent = append(e.recent, domain.NormalizePath(s.path))
}

func (e *Engine) untrack(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.open, s)
}
