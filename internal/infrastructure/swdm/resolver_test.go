package swdm

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

type fakeDriver struct {
	mu          sync.Mutex
	locations   []string
	loadErr     map[string]error
	activateErr error
	generations []string
	supports    map[string]map[string]bool
	invokeFn    func(obj Handle, method string, args ...any) (any, error)

	loadCalls    []string
	activations  int
	releases     int
	probes       int
	releasedObjs []Handle
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		generations: []string{"v2", "v1"},
		supports: map[string]map[string]bool{
			"v2": {methodPreviewPNG: true},
			"v1": {
				methodGetDocument:         true,
				methodPropertyNames:       true,
				methodGetProperty:         true,
				methodSetProperty:         true,
				methodAddProperty:         true,
				methodConfigurationNames:  true,
				methodActiveConfiguration: true,
				methodConfigurationInfo:   true,
				methodComponents:          true,
				methodExternalReferences:  true,
				methodPreviewBitmap:       true,
				methodSave:                true,
				methodClose:               true,
			},
		},
	}
}

func (d *fakeDriver) Locations() []string { return d.locations }

func (d *fakeDriver) Load(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadCalls = append(d.loadCalls, path)
	if err := d.loadErr[path]; err != nil {
		return err
	}
	return nil
}

func (d *fakeDriver) Activate(string) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activations++
	if d.activateErr != nil {
		return nil, d.activateErr
	}
	return "root", nil
}

func (d *fakeDriver) Generations() []string { return d.generations }

func (d *fakeDriver) Supports(generation, method string) bool {
	d.mu.Lock()
	d.probes++
	d.mu.Unlock()
	return d.supports[generation][method]
}

func (d *fakeDriver) Invoke(obj Handle, method string, args ...any) (any, error) {
	if d.invokeFn == nil {
		return nil, nil
	}
	return d.invokeFn(obj, method, args...)
}

func (d *fakeDriver) ReleaseObject(obj Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releasedObjs = append(d.releasedObjs, obj)
}

func (d *fakeDriver) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releases++
}

func writeLibrary(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("lib"), 0o644); err != nil {
		t.Fatalf("write library: %v", err)
	}
	return path
}

func TestResolverPrefersOverridePath(t *testing.T) {
	override := writeLibrary(t, "override.dll")
	standard := writeLibrary(t, "standard.dll")

	driver := newFakeDriver()
	driver.locations = []string{standard}
	resolver := NewResolver(driver, ResolverOptions{OverridePath: override})

	if err := resolver.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(driver.loadCalls) != 1 || driver.loadCalls[0] != override {
		t.Fatalf("expected override load first, got %v", driver.loadCalls)
	}
	if resolver.Path() != override {
		t.Fatalf("expected resolved path %q, got %q", override, resolver.Path())
	}
}

func TestResolverSkipsMissingCandidates(t *testing.T) {
	existing := writeLibrary(t, "engine.dll")

	driver := newFakeDriver()
	driver.locations = []string{filepath.Join(t.TempDir(), "missing.dll"), existing}
	resolver := NewResolver(driver, ResolverOptions{})

	if err := resolver.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(driver.loadCalls) != 1 || driver.loadCalls[0] != existing {
		t.Fatalf("expected only existing candidate loaded, got %v", driver.loadCalls)
	}
}

func TestResolverLoadIsIdempotent(t *testing.T) {
	library := writeLibrary(t, "engine.dll")

	driver := newFakeDriver()
	driver.locations = []string{library}
	resolver := NewResolver(driver, ResolverOptions{})

	if err := resolver.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := resolver.Load(); err != nil {
		t.Fatalf("unexpected error on repeat: %v", err)
	}
	if len(driver.loadCalls) != 1 {
		t.Fatalf("expected a single load, got %d", len(driver.loadCalls))
	}
	if driver.activations != 1 {
		t.Fatalf("expected a single activation, got %d", driver.activations)
	}
}

func TestResolverReportsLibraryNotFound(t *testing.T) {
	driver := newFakeDriver()
	driver.locations = []string{filepath.Join(t.TempDir(), "missing.dll")}
	resolver := NewResolver(driver, ResolverOptions{})

	err := resolver.Load()
	if !domain.IsKind(err, domain.ErrLibraryNotFound) {
		t.Fatalf("expected library-not-found, got %v", err)
	}
	if driver.activations != 0 {
		t.Fatalf("expected no activation attempt, got %d", driver.activations)
	}
}

func TestResolverActivationFailuresStayDistinct(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"entry point missing", domain.WrapError(domain.ErrEntryPointNotFound, "activate", errors.New("no factory")), domain.ErrEntryPointNotFound},
		{"key rejected", domain.WrapError(domain.ErrLicenseRejected, "activate", errors.New("bad key")), domain.ErrLicenseRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			library := writeLibrary(t, "engine.dll")
			driver := newFakeDriver()
			driver.locations = []string{library}
			driver.activateErr = tc.err

			resolver := NewResolver(driver, ResolverOptions{LicenseKey: "key"})
			err := resolver.Load()
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if driver.releases != 1 {
				t.Fatalf("expected driver released after failed activation, got %d", driver.releases)
			}
		})
	}
}

func TestResolverRetriesLoadAfterFailure(t *testing.T) {
	library := writeLibrary(t, "engine.dll")
	driver := newFakeDriver()
	driver.locations = []string{library}
	driver.activateErr = domain.WrapError(domain.ErrLicenseRejected, "activate", errors.New("bad key"))

	resolver := NewResolver(driver, ResolverOptions{})
	if err := resolver.Load(); err == nil {
		t.Fatal("expected activation failure")
	}

	driver.activateErr = nil
	if err := resolver.Load(); err != nil {
		t.Fatalf("expected recovery on retry, got %v", err)
	}
	if resolver.Path() != library {
		t.Fatalf("expected resolved path %q, got %q", library, resolver.Path())
	}
}

func TestBindPicksNewestSupportingGeneration(t *testing.T) {
	driver := newFakeDriver()
	resolver := NewResolver(driver, ResolverOptions{})

	png, err := resolver.Bind(methodPreviewPNG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if png.Generation != "v2" {
		t.Fatalf("expected generation v2, got %q", png.Generation)
	}

	save, err := resolver.Bind(methodSave)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if save.Generation != "v1" {
		t.Fatalf("expected generation v1, got %q", save.Generation)
	}
}

func TestBindCachesDiscoveryPerMethod(t *testing.T) {
	driver := newFakeDriver()
	resolver := NewResolver(driver, ResolverOptions{})

	if _, err := resolver.Bind(methodSave); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probesAfterFirst := driver.probes
	if probesAfterFirst == 0 {
		t.Fatal("expected discovery probes on first bind")
	}
	if _, err := resolver.Bind(methodSave); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver.probes != probesAfterFirst {
		t.Fatalf("expected cached bind, probes went %d -> %d", probesAfterFirst, driver.probes)
	}
}

func TestBindUnsupportedMethodNotCached(t *testing.T) {
	driver := newFakeDriver()
	resolver := NewResolver(driver, ResolverOptions{})

	if _, err := resolver.Bind("NoSuchOperation"); !domain.IsKind(err, domain.ErrMethodUnsupported) {
		t.Fatalf("expected method-unsupported, got %v", err)
	}
	probesAfterFirst := driver.probes
	if _, err := resolver.Bind("NoSuchOperation"); !domain.IsKind(err, domain.ErrMethodUnsupported) {
		t.Fatalf("expected method-unsupported, got %v", err)
	}
	if driver.probes <= probesAfterFirst {
		t.Fatal("expected failed discovery to probe again")
	}
}

func TestBindingsSurviveRelease(t *testing.T) {
	library := writeLibrary(t, "engine.dll")
	driver := newFakeDriver()
	driver.locations = []string{library}
	resolver := NewResolver(driver, ResolverOptions{})

	if err := resolver.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := resolver.Bind(methodSave); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probes := driver.probes

	resolver.Release()
	if driver.releases != 1 {
		t.Fatalf("expected driver release, got %d", driver.releases)
	}
	if resolver.Path() != "" {
		t.Fatalf("expected cleared path, got %q", resolver.Path())
	}

	if _, err := resolver.Bind(methodSave); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver.probes != probes {
		t.Fatalf("expected binding cache to survive release, probes went %d -> %d", probes, driver.probes)
	}

	if _, err := resolver.Root(); err != nil {
		t.Fatalf("expected lazy re-load, got %v", err)
	}
	if len(driver.loadCalls) != 2 {
		t.Fatalf("expected re-load after release, got %d loads", len(driver.loadCalls))
	}
}
