package swdm

import (
	"fmt"
	"sync"

	"github.com/pdmworks/cadbridge/internal/core/domain"
	"github.com/pdmworks/cadbridge/internal/core/ports"
)

// Session is one open document handle. Every engine call goes through a
// version-discovered binding; native dispatch failures never escape as
// anything but classified errors.
type Session struct {
	engine  *Engine
	path    string
	docType domain.DocType
	mode    domain.AccessMode

	mu     sync.Mutex
	doc    Handle
	closed bool
}

func (s *Session) Path() string         { return s.path }
func (s *Session) Type() domain.DocType { return s.docType }

func (s *Session) call(method string, args ...any) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.WrapError(domain.ErrSessionClosed, method, fmt.Errorf("document %s", s.path))
	}
	doc := s.doc
	s.mu.Unlock()

	bind, err := s.engine.resolver.Bind(method)
	if err != nil {
		return nil, err
	}
	out, err := bind.Call(doc, args...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, s.path, err)
	}
	return out, nil
}

func (s *Session) PropertyNames(scope string) ([]string, error) {
	out, err := s.call(methodPropertyNames, scope)
	if err != nil {
		return nil, err
	}
	return asStringSlice(out)
}

func (s *Session) Property(name, scope string) (string, error) {
	out, err := s.call(methodGetProperty, name, scope)
	if err != nil {
		return "", err
	}
	return asString(out)
}

func (s *Session) UpdateProperty(name, value, scope string) error {
	_, err := s.call(methodSetProperty, name, value, scope)
	return err
}

func (s *Session) AddProperty(name, value, scope string) error {
	_, err := s.call(methodAddProperty, name, value, scope)
	return err
}

func (s *Session) ConfigurationNames() ([]string, error) {
	out, err := s.call(methodConfigurationNames)
	if err != nil {
		return nil, err
	}
	return asStringSlice(out)
}

func (s *Session) ActiveConfiguration() (string, error) {
	out, err := s.call(methodActiveConfiguration)
	if err != nil {
		return "", err
	}
	return asString(out)
}

func (s *Session) DescribeConfiguration(name string) (ports.ConfigurationInfo, error) {
	out, err := s.call(methodConfigurationInfo, name)
	if err != nil {
		return ports.ConfigurationInfo{}, err
	}
	info, ok := out.(ConfigInfo)
	if !ok {
		return ports.ConfigurationInfo{}, fmt.Errorf("unexpected configuration info type %T", out)
	}
	return ports.ConfigurationInfo{
		Name:        name,
		Description: info.Description,
		Parent:      info.Parent,
	}, nil
}

func (s *Session) Components(configuration string) ([]ports.ComponentRef, error) {
	out, err := s.call(methodComponents, configuration)
	if err != nil {
		return nil, err
	}
	comps, ok := out.([]Component)
	if !ok {
		return nil, fmt.Errorf("unexpected component list type %T", out)
	}
	refs := make([]ports.ComponentRef, 0, len(comps))
	for _, c := range comps {
		refs = append(refs, ports.ComponentRef{Path: c.Path, Configuration: c.Configuration})
	}
	return refs, nil
}

func (s *Session) References() ([]string, error) {
	out, err := s.call(methodExternalReferences)
	if err != nil {
		return nil, err
	}
	return asStringSlice(out)
}

func (s *Session) ConfigurationPreview(configuration string) (domain.Preview, error) {
	return s.preview(configuration)
}

func (s *Session) DocumentPreview() (domain.Preview, error) {
	return s.preview("")
}

// preview prefers the PNG form, which only newer interface generations
// expose, and falls back to the raw device-independent bitmap converted
// into a standard bitmap container.
func (s *Session) preview(scope string) (domain.Preview, error) {
	if out, err := s.call(methodPreviewPNG, scope); err == nil {
		data, err := asBytes(out)
		if err != nil {
			return domain.Preview{}, err
		}
		return domain.Preview{Format: domain.PreviewPNG, Data: data}, nil
	}

	out, err := s.call(methodPreviewBitmap, scope)
	if err != nil {
		return domain.Preview{}, err
	}
	dib, err := asBytes(out)
	if err != nil {
		return domain.Preview{}, err
	}
	bmp, err := bmpFromDIB(dib)
	if err != nil {
		return domain.Preview{}, domain.WrapError(domain.ErrPreviewUnsupported, "convert preview", err)
	}
	return domain.Preview{Format: domain.PreviewBMP, Data: bmp}, nil
}

func (s *Session) Save() error {
	_, err := s.call(methodSave)
	return err
}

// Close releases the native document handle. It is safe on every exit path
// and idempotent; operations after Close fail with a resource-not-open
// error.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	doc := s.doc
	s.doc = nil
	s.mu.Unlock()

	s.engine.untrack(s)

	var closeErr error
	if bind, err := s.engine.resolver.Bind(methodClose); err != nil {
		closeErr = err
	} else if _, err := bind.Call(doc); err != nil {
		closeErr = fmt.Errorf("close %s: %w", s.path, err)
	}
	s.engine.driver.ReleaseObject(doc)
	return closeErr
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected result type %T, want string", v)
	}
	return s, nil
}

func asStringSlice(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T, want []string", v)
	}
	return s, nil
}

func asBytes(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T, want []byte", v)
	}
	return b, nil
}
