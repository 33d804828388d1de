//go:build windows

package swdm

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

const (
	factoryProgID = "SwDocumentMgr.SwDMClassFactory"

	hrSOK           = 0x00000000
	hrSFalse        = 0x00000001
	dispUnknownName = 0x80020006

	// SwDmCustomInfoType text constant used when creating properties.
	customInfoText = int32(30)
)

// Well-known install locations, searched after any registry entries.
var wellKnownPaths = []string{
	`C:\Program Files\SOLIDWORKS Corp\SOLIDWORKS\swdocumentmgr.dll`,
	`C:\Program Files\SOLIDWORKS Corp\SOLIDWORKS Document Manager API\swdocumentmgr.dll`,
	`C:\Program Files\Common Files\SOLIDWORKS Shared\swdocumentmgr.dll`,
}

type generation struct {
	tag     string
	methods map[string]bool
}

func declares(methods ...string) map[string]bool {
	m := make(map[string]bool, len(methods))
	for _, name := range methods {
		m[name] = true
	}
	return m
}

// Interface generations of the document manager, newest first. Each entry
// lists the operations that generation introduced; older libraries raise a
// dispatch unknown-name failure when a newer operation is invoked.
var engineGenerations = []generation{
	{tag: "ISwDMDocument19", methods: declares(methodPreviewPNG)},
	{tag: "ISwDMDocument10", methods: declares(methodExternalReferences, methodComponents)},
	{tag: "ISwDMDocument4", methods: declares(methodConfigurationInfo, methodActiveConfiguration)},
	{tag: "ISwDMDocument", methods: declares(
		methodGetDocument,
		methodPropertyNames,
		methodGetProperty,
		methodSetProperty,
		methodAddProperty,
		methodConfigurationNames,
		methodPreviewBitmap,
		methodSave,
		methodClose,
	)},
}

// NewDriver returns the COM-backed platform driver.
func NewDriver() Driver {
	return &windowsDriver{}
}

type windowsDriver struct {
	mu      sync.Mutex
	library windows.Handle
	factory *ole.IDispatch
}

func (d *windowsDriver) Locations() []string {
	seen := make(map[string]bool)
	var out []string
	for _, path := range append(registryLocations(), wellKnownPaths...) {
		key := strings.ToLower(path)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, path)
	}
	return out
}

// registryLocations enumerates installed product versions and derives the
// library path from each install folder, newest version first.
func registryLocations() []string {
	root, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\SolidWorks`, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil
	}
	defer root.Close()

	subs, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(subs)))

	var out []string
	for _, sub := range subs {
		if !strings.HasPrefix(sub, "SOLIDWORKS") {
			continue
		}
		setup, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\SolidWorks\`+sub+`\Setup`, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		dir, _, err := setup.GetStringValue("SolidWorks Folder")
		setup.Close()
		if err != nil || dir == "" {
			continue
		}
		out = append(out, filepath.Join(dir, "swdocumentmgr.dll"))
	}
	return out
}

func (d *windowsDriver) Load(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.factory != nil {
		return nil
	}

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || (oleErr.Code() != hrSFalse && oleErr.Code() != hrSOK) {
			return fmt.Errorf("initialize com runtime: %w", err)
		}
	}

	lib, err := windows.LoadLibrary(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	unknown, err := oleutil.CreateObject(factoryProgID)
	if err != nil {
		windows.FreeLibrary(lib)
		return domain.WrapError(domain.ErrEntryPointNotFound, "create class factory", err)
	}
	factory, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()
	if err != nil {
		windows.FreeLibrary(lib)
		return domain.WrapError(domain.ErrEntryPointNotFound, "query class factory dispatch", err)
	}

	d.library = lib
	d.factory = factory
	return nil
}

func (d *windowsDriver) Activate(key string) (Handle, error) {
	d.mu.Lock()
	factory := d.factory
	d.mu.Unlock()
	if factory == nil {
		return nil, domain.WrapError(domain.ErrEntryPointNotFound, "activate", errors.New("library not loaded"))
	}

	result, err := oleutil.CallMethod(factory, "GetApplication", key)
	if err != nil {
		var oleErr *ole.OleError
		if errors.As(err, &oleErr) && oleErr.Code() == dispUnknownName {
			return nil, domain.WrapError(domain.ErrEntryPointNotFound, "activate", err)
		}
		return nil, domain.WrapError(domain.ErrLicenseRejected, "activate", err)
	}
	app := result.ToIDispatch()
	if app == nil {
		result.Clear()
		return nil, domain.WrapError(domain.ErrLicenseRejected, "activate", errors.New("factory returned no application"))
	}
	return app, nil
}

func (d *windowsDriver) Generations() []string {
	out := make([]string, 0, len(engineGenerations))
	for _, gen := range engineGenerations {
		out = append(out, gen.tag)
	}
	return out
}

func (d *windowsDriver) Supports(generationTag, method string) bool {
	for _, gen := range engineGenerations {
		if gen.tag == generationTag {
			return gen.methods[method]
		}
	}
	return false
}

func (d *windowsDriver) Invoke(obj Handle, method string, args ...any) (any, error) {
	disp, ok := obj.(*ole.IDispatch)
	if !ok {
		return nil, fmt.Errorf("invalid native handle %T", obj)
	}
	switch method {
	case methodGetDocument:
		return d.getDocument(disp, args)
	case methodPropertyNames:
		return d.propertyNames(disp, args)
	case methodGetProperty:
		return d.getProperty(disp, args)
	case methodSetProperty:
		return d.setProperty(disp, args)
	case methodAddProperty:
		return d.addProperty(disp, args)
	case methodConfigurationNames:
		return d.configurationNames(disp)
	case methodActiveConfiguration:
		return d.activeConfiguration(disp)
	case methodConfigurationInfo:
		return d.configurationInfo(disp, args)
	case methodComponents:
		return d.components(disp, args)
	case methodExternalReferences:
		return d.externalReferences(disp)
	case methodPreviewPNG:
		return d.preview(disp, args, "GetPreviewPNGBitmapBytes")
	case methodPreviewBitmap:
		return d.preview(disp, args, "GetPreviewBitmapBytes")
	case methodSave:
		return d.save(disp)
	case methodClose:
		_, err := oleutil.CallMethod(disp, "CloseDoc")
		return nil, wrapOLE("CloseDoc", err)
	default:
		return nil, domain.WrapError(domain.ErrMethodUnsupported, method, errors.New("no dispatch mapping"))
	}
}

func (d *windowsDriver) getDocument(app *ole.IDispatch, args []any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("GetDocument: want 3 args, got %d", len(args))
	}
	path, _ := args[0].(string)
	docType, _ := args[1].(int32)
	readOnly, _ := args[2].(bool)

	var openErr int32
	errVariant := ole.VARIANT{VT: ole.VT_BYREF | ole.VT_I4, Val: int64(uintptr(unsafe.Pointer(&openErr)))}
	result, err := oleutil.CallMethod(app, "GetDocument", path, docType, readOnly, &errVariant)
	if err != nil {
		return nil, wrapOLE("GetDocument", err)
	}
	doc := result.ToIDispatch()
	if doc == nil {
		result.Clear()
		return nil, fmt.Errorf("GetDocument: open failed with native status %d", openErr)
	}
	return doc, nil
}

func (d *windowsDriver) propertyNames(doc *ole.IDispatch, args []any) (any, error) {
	target, done, err := d.scoped(doc, args)
	if err != nil {
		return nil, err
	}
	defer done()
	result, err := oleutil.CallMethod(target, "GetCustomPropertyNames")
	if err != nil {
		return nil, wrapOLE("GetCustomPropertyNames", err)
	}
	defer result.Clear()
	array := result.ToArray()
	if array == nil {
		return []string(nil), nil
	}
	return array.ToStringArray(), nil
}

func (d *windowsDriver) getProperty(doc *ole.IDispatch, args []any) (any, error) {
	if len(args) < 1 {
		return nil, errors.New("GetCustomProperty: property name required")
	}
	name, _ := args[0].(string)
	target, done, err := d.scoped(doc, args[1:])
	if err != nil {
		return nil, err
	}
	defer done()

	var infoType int32
	typeVariant := ole.VARIANT{VT: ole.VT_BYREF | ole.VT_I4, Val: int64(uintptr(unsafe.Pointer(&infoType)))}
	result, err := oleutil.CallMethod(target, "GetCustomProperty", name, &typeVariant)
	if err != nil {
		return nil, wrapOLE("GetCustomProperty", err)
	}
	defer result.Clear()
	value := result.ToString()
	if value == "" && infoType == 0 {
		return nil, domain.WrapError(domain.ErrPropertyNotFound, "GetCustomProperty", fmt.Errorf("property %q", name))
	}
	return value, nil
}

func (d *windowsDriver) setProperty(doc *ole.IDispatch, args []any) (any, error) {
	if len(args) < 2 {
		return nil, errors.New("SetCustomProperty: name and value required")
	}
	name, _ := args[0].(string)
	value, _ := args[1].(string)
	target, done, err := d.scoped(doc, args[2:])
	if err != nil {
		return nil, err
	}
	defer done()

	result, err := oleutil.CallMethod(target, "SetCustomProperty", name, value)
	if err != nil {
		return nil, wrapOLE("SetCustomProperty", err)
	}
	defer result.Clear()
	// The native call reports false when the property does not exist.
	if ok, isBool := result.Value().(bool); isBool && !ok {
		return nil, domain.WrapError(domain.ErrPropertyNotFound, "SetCustomProperty", fmt.Errorf("property %q", name))
	}
	return nil, nil
}

func (d *windowsDriver) addProperty(doc *ole.IDispatch, args []any) (any, error) {
	if len(args) < 2 {
		return nil, errors.New("AddCustomProperty: name and value required")
	}
	name, _ := args[0].(string)
	value, _ := args[1].(string)
	target, done, err := d.scoped(doc, args[2:])
	if err != nil {
		return nil, err
	}
	defer done()

	result, err := oleutil.CallMethod(target, "AddCustomProperty", name, customInfoText, value)
	if err != nil {
		return nil, wrapOLE("AddCustomProperty", err)
	}
	defer result.Clear()
	if ok, isBool := result.Value().(bool); isBool && !ok {
		return nil, fmt.Errorf("AddCustomProperty: rejected for %q", name)
	}
	return nil, nil
}

func (d *windowsDriver) configurationNames(doc *ole.IDispatch) (any, error) {
	mgr, err := d.configurationManager(doc)
	if err != nil {
		return nil, err
	}
	defer mgr.Release()
	result, err := oleutil.CallMethod(mgr, "GetConfigurationNames")
	if err != nil {
		return nil, wrapOLE("GetConfigurationNames", err)
	}
	defer result.Clear()
	array := result.ToArray()
	if array == nil {
		return []string(nil), nil
	}
	return array.ToStringArray(), nil
}

func (d *windowsDriver) activeConfiguration(doc *ole.IDispatch) (any, error) {
	mgr, err := d.configurationManager(doc)
	if err != nil {
		return nil, err
	}
	defer mgr.Release()
	result, err := oleutil.CallMethod(mgr, "GetActiveConfigurationName")
	if err != nil {
		return nil, wrapOLE("GetActiveConfigurationName", err)
	}
	defer result.Clear()
	return result.ToString(), nil
}

func (d *windowsDriver) configurationInfo(doc *ole.IDispatch, args []any) (any, error) {
	if len(args) < 1 {
		return nil, errors.New("GetConfigurationInfo: configuration name required")
	}
	name, _ := args[0].(string)
	cfg, err := d.configurationByName(doc, name)
	if err != nil {
		return nil, err
	}
	defer cfg.Release()

	var info ConfigInfo
	if v, err := oleutil.GetProperty(cfg, "Description"); err == nil {
		info.Description = v.ToString()
		v.Clear()
	}
	// Older generations do not expose the parent name; leave it empty there.
	if v, err := oleutil.GetProperty(cfg, "ParentConfigurationName"); err == nil {
		info.Parent = v.ToString()
		v.Clear()
	}
	return info, nil
}

func (d *windowsDriver) components(doc *ole.IDispatch, args []any) (any, error) {
	if len(args) < 1 {
		return nil, errors.New("GetComponents: configuration name required")
	}
	name, _ := args[0].(string)
	cfg, err := d.configurationByName(doc, name)
	if err != nil {
		return nil, err
	}
	defer cfg.Release()

	result, err := oleutil.CallMethod(cfg, "GetComponents")
	if err != nil {
		return nil, wrapOLE("GetComponents", err)
	}
	defer result.Clear()
	array := result.ToArray()
	if array == nil {
		return []Component(nil), nil
	}

	var out []Component
	for _, value := range array.ToValueArray() {
		comp, ok := value.(*ole.IDispatch)
		if !ok || comp == nil {
			continue
		}
		var item Component
		if v, err := oleutil.GetProperty(comp, "PathName"); err == nil {
			item.Path = v.ToString()
			v.Clear()
		}
		if v, err := oleutil.GetProperty(comp, "ConfigurationName"); err == nil {
			item.Configuration = v.ToString()
			v.Clear()
		}
		comp.Release()
		out = append(out, item)
	}
	return out, nil
}

func (d *windowsDriver) externalReferences(doc *ole.IDispatch) (any, error) {
	result, err := oleutil.CallMethod(doc, "GetAllExternalReferences")
	if err != nil {
		return nil, wrapOLE("GetAllExternalReferences", err)
	}
	defer result.Clear()
	array := result.ToArray()
	if array == nil {
		return []string(nil), nil
	}
	return array.ToStringArray(), nil
}

func (d *windowsDriver) preview(doc *ole.IDispatch, args []any, nativeName string) (any, error) {
	target, done, err := d.scoped(doc, args)
	if err != nil {
		return nil, err
	}
	defer done()

	result, err := oleutil.CallMethod(target, nativeName)
	if err != nil {
		return nil, wrapOLE(nativeName, err)
	}
	defer result.Clear()
	array := result.ToArray()
	if array == nil {
		return nil, domain.WrapError(domain.ErrPreviewNotStored, nativeName, errors.New("no image stored"))
	}
	data := array.ToByteArray()
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrPreviewNotStored, nativeName, errors.New("empty image"))
	}
	return data, nil
}

func (d *windowsDriver) save(doc *ole.IDispatch) (any, error) {
	result, err := oleutil.CallMethod(doc, "Save")
	if err != nil {
		return nil, wrapOLE("Save", err)
	}
	defer result.Clear()
	if status, ok := result.Value().(int32); ok && status != 0 {
		return nil, fmt.Errorf("Save: native status %d", status)
	}
	return nil, nil
}

// scoped resolves the optional trailing scope argument. An empty scope keeps
// the document itself as the dispatch target; a configuration name navigates
// to that configuration and the cleanup releases it.
func (d *windowsDriver) scoped(doc *ole.IDispatch, args []any) (*ole.IDispatch, func(), error) {
	scope := ""
	if len(args) > 0 {
		scope, _ = args[0].(string)
	}
	if scope == "" {
		return doc, func() {}, nil
	}
	cfg, err := d.configurationByName(doc, scope)
	if err != nil {
		return nil, nil, err
	}
	return cfg, func() { cfg.Release() }, nil
}

func (d *windowsDriver) configurationManager(doc *ole.IDispatch) (*ole.IDispatch, error) {
	result, err := oleutil.GetProperty(doc, "ConfigurationManager")
	if err != nil {
		return nil, wrapOLE("ConfigurationManager", err)
	}
	mgr := result.ToIDispatch()
	if mgr == nil {
		result.Clear()
		return nil, errors.New("ConfigurationManager: not available")
	}
	return mgr, nil
}

func (d *windowsDriver) configurationByName(doc *ole.IDispatch, name string) (*ole.IDispatch, error) {
	mgr, err := d.configurationManager(doc)
	if err != nil {
		return nil, err
	}
	defer mgr.Release()
	result, err := oleutil.CallMethod(mgr, "GetConfigurationByName", name)
	if err != nil {
		return nil, wrapOLE("GetConfigurationByName", err)
	}
	cfg := result.ToIDispatch()
	if cfg == nil {
		result.Clear()
		return nil, domain.WrapError(domain.ErrConfigurationNotFound, "GetConfigurationByName", fmt.Errorf("configuration %q", name))
	}
	return cfg, nil
}

func (d *windowsDriver) ReleaseObject(obj Handle) {
	if disp, ok := obj.(*ole.IDispatch); ok && disp != nil {
		disp.Release()
	}
}

// Release drops the class factory. The mapped library stays loaded because
// freeing an in-use COM server is unsafe; a later load reuses the mapping.
func (d *windowsDriver) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.factory != nil {
		d.factory.Release()
		d.factory = nil
	}
}

// wrapOLE translates a dispatch failure. Unknown-name failures mean the
// installed library generation predates the operation; recognized automation
// status codes carry their classification so retry decisions stay accurate.
func wrapOLE(op string, err error) error {
	if err == nil {
		return nil
	}
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		code := uint32(oleErr.Code())
		if code == dispUnknownName {
			return domain.WrapError(domain.ErrMethodUnsupported, op, err)
		}
		if kind := domain.ClassifyStatus(code); kind != domain.KindUnknown {
			return domain.FaultFromError(kind, op+" failed", err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
