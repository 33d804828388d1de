package swdm

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

// Resolver locates, loads and activates the metadata engine library, and
// performs runtime interface discovery for its methods. The installed
// library version is not known at build time.
type Resolver struct {
	driver Driver

	mu       sync.Mutex
	loaded   bool
	path     string
	root     Handle
	key      string
	override string

	bmu      sync.RWMutex
	bindings map[string]Binding
}

// Binding is the outcome of version discovery for one method: the
// generation tag that exposes it and the bound call.
type Binding struct {
	Generation string
	Method     string
	call       func(obj Handle, args ...any) (any, error)
}

func (b Binding) Call(obj Handle, args ...any) (any, error) {
	return b.call(obj, args...)
}

type ResolverOptions struct {
	LicenseKey   string
	OverridePath string
}

func NewResolver(driver Driver, options ResolverOptions) *Resolver {
	return &Resolver{
		driver:   driver,
		key:      options.LicenseKey,
		override: options.OverridePath,
		bindings: make(map[string]Binding),
	}
}

// SetLicenseKey re-supplies the activation key. It takes effect on the next
// load attempt.
func (r *Resolver) SetLicenseKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.key = key
}

// SetOverridePath re-supplies the library override path. It takes effect on
// the next load attempt.
func (r *Resolver) SetOverridePath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = path
}

// Load locates, loads and activates the engine library. Repeated calls
// after success are no-ops. Failure leaves the engine unavailable and is
// retried on the next call; it is never fatal to the process.
func (r *Resolver) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

// Root returns the activated engine root object, loading the library first
// when needed.
func (r *Resolver) Root() (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return nil, err
	}
	return r.root, nil
}

// Path returns the resolved library path, empty until a successful load.
func (r *Resolver) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Resolver) loadLocked() error {
	if r.loaded {
		return nil
	}

	var lastErr error
	found := ""
	for _, candidate := range r.candidates() {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := r.driver.Load(candidate); err != nil {
			lastErr = err
			continue
		}
		found = candidate
		break
	}
	if found == "" {
		if lastErr == nil {
			lastErr = fmt.Errorf("no candidate path exists (override %q)", r.override)
		}
		return domain.WrapError(domain.ErrLibraryNotFound, "load engine library", lastErr)
	}

	root, err := r.driver.Activate(r.key)
	if err != nil {
		r.driver.Release()
		return err
	}

	r.path = found
	r.root = root
	r.loaded = true
	slog.Info("engine_library_loaded", "path", found)
	return nil
}

func (r *Resolver) candidates() []string {
	out := make([]string, 0, 8)
	if r.override != "" {
		out = append(out, r.override)
	}
	return append(out, r.driver.Locations()...)
}

// Bind resolves method against the installed library's interface
// generations, newest first, and caches the first hit for the process
// lifetime. Discovery runs at most once per method name; different methods
// may first appear in different generations.
func (r *Resolver) Bind(method string) (Binding, error) {
	r.bmu.RLock()
	if b, ok := r.bindings[method]; ok {
		r.bmu.RUnlock()
		return b, nil
	}
	r.bmu.RUnlock()

	r.bmu.Lock()
	defer r.bmu.Unlock()
	if b, ok := r.bindings[method]; ok {
		return b, nil
	}
	for _, generation := range r.driver.Generations() {
		if !r.driver.Supports(generation, method) {
			continue
		}
		b := Binding{
			Generation: generation,
			Method:     method,
			call: func(obj Handle, args ...any) (any, error) {
				return r.driver.Invoke(obj, method, args...)
			},
		}
		r.bindings[method] = b
		slog.Debug("engine_method_bound", "method", method, "generation", generation)
		return b, nil
	}
	return Binding{}, domain.WrapError(domain.ErrMethodUnsupported, "bind method",
		fmt.Errorf("no interface generation exposes %s", method))
}

// Release drops the root native reference and marks the library unloaded;
// the next operation re-resolves lazily. Cached bindings survive because
// the installed library cannot change mid-process.
func (r *Resolver) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return
	}
	if r.root != nil {
		r.driver.ReleaseObject(r.root)
		r.root = nil
	}
	r.driver.Release()
	r.loaded = false
	r.path = ""
}
