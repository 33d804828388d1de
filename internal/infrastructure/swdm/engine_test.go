package swdm

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

type recordedCall struct {
	method string
	args   []any
}

// recordingInvoke wires a fakeDriver with a document-shaped dispatch table
// and records every call.
func recordingInvoke(driver *fakeDriver, results map[string]any) *[]recordedCall {
	var mu sync.Mutex
	calls := &[]recordedCall{}
	driver.invokeFn = func(obj Handle, method string, args ...any) (any, error) {
		mu.Lock()
		*calls = append(*calls, recordedCall{method: method, args: args})
		mu.Unlock()
		if method == methodGetDocument {
			return "doc", nil
		}
		return results[method], nil
	}
	return calls
}

func newTestEngine(t *testing.T, results map[string]any) (*Engine, *fakeDriver, *[]recordedCall) {
	t.Helper()
	driver := newFakeDriver()
	driver.locations = []string{writeLibrary(t, "engine.dll")}
	calls := recordingInvoke(driver, results)
	return NewEngine(driver, ResolverOptions{}), driver, calls
}

func TestEngineOpenPassesTypeAndMode(t *testing.T) {
	engine, _, calls := newTestEngine(t, nil)

	s, err := engine.Open(context.Background(), `C:\vault\bracket.sldasm`, domain.DocTypeAssembly, domain.AccessReadOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	open := (*calls)[0]
	if open.method != methodGetDocument {
		t.Fatalf("expected %s first, got %s", methodGetDocument, open.method)
	}
	if got := open.args[1].(int32); got != int32(nativeAssembly) {
		t.Fatalf("expected native type %d, got %d", nativeAssembly, got)
	}
	if readOnly := open.args[2].(bool); !readOnly {
		t.Fatal("expected read-only open")
	}
}

func TestEngineOpenReadWrite(t *testing.T) {
	engine, _, calls := newTestEngine(t, nil)

	s, err := engine.Open(context.Background(), `C:\vault\bracket.sldprt`, domain.DocTypePart, domain.AccessReadWrite)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if readOnly := (*calls)[0].args[2].(bool); readOnly {
		t.Fatal("expected writable open")
	}
}

func TestEngineOpenRejectsUnknownType(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	_, err := engine.Open(context.Background(), `C:\vault\notes.txt`, domain.DocTypeUnknown, domain.AccessReadOnly)
	if !domain.IsKind(err, domain.ErrDocTypeUnknown) {
		t.Fatalf("expected doc-type-unknown, got %v", err)
	}
}

func TestEngineStatus(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	status := engine.Status(context.Background())
	if !status.Available {
		t.Fatalf("expected available engine, got %+v", status)
	}
	if status.LibraryPath == "" {
		t.Fatal("expected resolved library path")
	}

	missing := NewEngine(newFakeDriver(), ResolverOptions{})
	status = missing.Status(context.Background())
	if status.Available {
		t.Fatalf("expected unavailable engine, got %+v", status)
	}
	if status.Message == "" {
		t.Fatal("expected failure message")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	engine, driver, calls := newTestEngine(t, nil)

	s, err := engine.Open(context.Background(), `C:\vault\bracket.sldprt`, domain.DocTypePart, domain.AccessReadOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("expected second close to be a no-op, got %v", err)
	}

	closes := 0
	for _, c := range *calls {
		if c.method == methodClose {
			closes++
		}
	}
	if closes != 1 {
		t.Fatalf("expected a single native close, got %d", closes)
	}
	if len(driver.releasedObjs) != 1 {
		t.Fatalf("expected one released native object, got %d", len(driver.releasedObjs))
	}

	if _, err := s.Property("Revision", ""); !domain.IsKind(err, domain.ErrSessionClosed) {
		t.Fatalf("expected session-closed, got %v", err)
	}
}

func TestReleaseAllClosesStragglersAndReinitializesLazily(t *testing.T) {
	engine, driver, calls := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := engine.Open(ctx, `C:\vault\a.sldprt`, domain.DocTypePart, domain.AccessReadOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Open(ctx, `C:\vault\b.sldprt`, domain.DocTypePart, domain.AccessReadOnly); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := engine.ReleaseAll(ctx)
	if err != nil || !ok {
		t.Fatalf("expected clean release, got ok=%v err=%v", ok, err)
	}

	closes := 0
	for _, c := range *calls {
		if c.method == methodClose {
			closes++
		}
	}
	if closes != 2 {
		t.Fatalf("expected both stragglers closed, got %d", closes)
	}
	if driver.releases != 1 {
		t.Fatalf("expected driver release, got %d", driver.releases)
	}
	if _, err := first.Property("Revision", ""); !domain.IsKind(err, domain.ErrSessionClosed) {
		t.Fatalf("expected session-closed after release, got %v", err)
	}

	// The next open re-resolves the library without an explicit init.
	s, err := engine.Open(ctx, `C:\vault\c.sldprt`, domain.DocTypePart, domain.AccessReadOnly)
	if err != nil {
		t.Fatalf("expected lazy re-initialization, got %v", err)
	}
	defer s.Close()
	if len(driver.loadCalls) != 2 {
		t.Fatalf("expected a second library load, got %d", len(driver.loadCalls))
	}
}

func TestSessionPropertyRoundTrip(t *testing.T) {
	engine, _, calls := newTestEngine(t, map[string]any{
		methodGetProperty:   "B-7",
		methodPropertyNames: []string{"Revision", "Material"},
	})

	s, err := engine.Open(context.Background(), `C:\vault\bracket.sldprt`, domain.DocTypePart, domain.AccessReadOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	names, err := s.PropertyNames("Default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}

	value, err := s.Property("Revision", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "B-7" {
		t.Fatalf("expected B-7, got %q", value)
	}

	last := (*calls)[len(*calls)-1]
	if last.method != methodGetProperty || last.args[0] != "Revision" || last.args[1] != "" {
		t.Fatalf("unexpected dispatch %+v", last)
	}
}

func TestSessionPreviewFallsBackToBitmap(t *testing.T) {
	dib := make([]byte, 40+4)
	binary.LittleEndian.PutUint32(dib[0:4], 40)
	binary.LittleEndian.PutUint16(dib[14:16], 24)

	driver := newFakeDriver()
	driver.locations = []string{writeLibrary(t, "engine.dll")}
	driver.invokeFn = func(obj Handle, method string, args ...any) (any, error) {
		switch method {
		case methodGetDocument:
			return "doc", nil
		case methodPreviewPNG:
			return nil, domain.WrapError(domain.ErrMethodUnsupported, method, errors.New("older generation"))
		case methodPreviewBitmap:
			return dib, nil
		default:
			return nil, nil
		}
	}
	engine := NewEngine(driver, ResolverOptions{})

	s, err := engine.Open(context.Background(), `C:\vault\bracket.sldprt`, domain.DocTypePart, domain.AccessReadOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	preview, err := s.DocumentPreview()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Format != domain.PreviewBMP {
		t.Fatalf("expected bitmap fallback, got %s", preview.Format)
	}
	if preview.Data[0] != 'B' || preview.Data[1] != 'M' {
		t.Fatalf("expected bitmap signature, got % x", preview.Data[:2])
	}
}

func TestSessionPreviewUnsupportedDistinctFromNotStored(t *testing.T) {
	driver := newFakeDriver()
	driver.locations = []string{writeLibrary(t, "engine.dll")}
	driver.invokeFn = func(obj Handle, method string, args ...any) (any, error) {
		switch method {
		case methodGetDocument:
			return "doc", nil
		case methodPreviewPNG:
			return nil, domain.WrapError(domain.ErrMethodUnsupported, method, errors.New("older generation"))
		case methodPreviewBitmap:
			return []byte{1, 2, 3}, nil
		default:
			return nil, nil
		}
	}
	engine := NewEngine(driver, ResolverOptions{})

	s, err := engine.Open(context.Background(), `C:\vault\bracket.sldprt`, domain.DocTypePart, domain.AccessReadOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	_, err = s.DocumentPreview()
	if !domain.IsKind(err, domain.ErrPreviewUnsupported) {
		t.Fatalf("expected preview-unsupported, got %v", err)
	}
	if domain.IsKind(err, domain.ErrPreviewNotStored) {
		t.Fatal("unsupported preview must not read as not-stored")
	}
}
