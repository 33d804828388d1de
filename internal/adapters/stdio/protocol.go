// Package stdio implements the line-delimited JSON request protocol spoken
// over standard input and output. Standard output carries protocol frames
// only; all logging goes to standard error.
package stdio

import (
	"encoding/json"
	"fmt"

	"github.com/pdmworks/cadbridge/internal/core/domain"
)

// Action identifies one request operation.
type Action string

const (
	ActionEngineStatus   Action = "engine.status"
	ActionPropsGet       Action = "props.get"
	ActionPropsSet       Action = "props.set"
	ActionPropsSetBatch  Action = "props.setBatch"
	ActionConfigsList    Action = "configs.list"
	ActionBOMGet         Action = "bom.get"
	ActionBOMExport      Action = "bom.export"
	ActionRefsGet        Action = "refs.get"
	ActionPreviewGet     Action = "preview.get"
	ActionHandlesRelease Action = "handles.release"
	ActionLiveHealth     Action = "live.health"
	ActionConfigure      Action = "configure"
)

func (a Action) Validate() error {
	switch a {
	case ActionEngineStatus, ActionPropsGet, ActionPropsSet, ActionPropsSetBatch,
		ActionConfigsList, ActionBOMGet, ActionBOMExport, ActionRefsGet,
		ActionPreviewGet, ActionHandlesRelease, ActionLiveHealth, ActionConfigure:
		return nil
	default:
		return fmt.Errorf("unknown action: %s", a)
	}
}

// Request is one inbound frame. ID is echoed on the response; when absent
// the server assigns one so every response stays correlatable.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Action Action          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one outbound frame. Exactly one of Data and Error is set.
type Response struct {
	ID    string     `json:"id"`
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Parameter structures per action.

type PathParams struct {
	Path          string `json:"path"`
	Configuration string `json:"configuration,omitempty"`
}

func (p *PathParams) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

type SetPropsParams struct {
	Path          string             `json:"path"`
	Configuration string             `json:"configuration,omitempty"`
	Properties    domain.PropertyMap `json:"properties"`
}

func (p *SetPropsParams) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	if len(p.Properties) == 0 {
		return fmt.Errorf("properties are required")
	}
	return nil
}

type SetBatchParams struct {
	Path           string                        `json:"path"`
	Configurations map[string]domain.PropertyMap `json:"configurations"`
}

func (p *SetBatchParams) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	if len(p.Configurations) == 0 {
		return fmt.Errorf("configurations are required")
	}
	return nil
}

type BOMExportParams struct {
	Path          string `json:"path"`
	Configuration string `json:"configuration,omitempty"`
	Output        string `json:"output"`
}

func (p *BOMExportParams) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	if p.Output == "" {
		return fmt.Errorf("output is required")
	}
	return nil
}

type ConfigureParams struct {
	LicenseKey  string `json:"license_key,omitempty"`
	LibraryPath string `json:"library_path,omitempty"`
}

func (p *ConfigureParams) Validate() error {
	if p.LicenseKey == "" && p.LibraryPath == "" {
		return fmt.Errorf("license_key or library_path is required")
	}
	return nil
}

// Result payloads.

type PropsResult struct {
	Path          string             `json:"path"`
	Configuration string             `json:"configuration,omitempty"`
	Properties    domain.PropertyMap `json:"properties"`
}

type WriteResult struct {
	Path    string `json:"path"`
	Written int    `json:"written"`
}

type ConfigsResult struct {
	Path           string                 `json:"path"`
	Configurations []domain.Configuration `json:"configurations"`
}

type BOMResult struct {
	Path          string           `json:"path"`
	Configuration string           `json:"configuration,omitempty"`
	Items         []domain.BOMItem `json:"items"`
}

type BOMExportResult struct {
	Path   string `json:"path"`
	Output string `json:"output"`
	Rows   int    `json:"rows"`
}

type RefsResult struct {
	Path       string             `json:"path"`
	References []domain.Reference `json:"references"`
}

type PreviewResult struct {
	Path          string               `json:"path"`
	Configuration string               `json:"configuration,omitempty"`
	Format        domain.PreviewFormat `json:"format"`
	// Data is base64 through the standard encoding of byte slices.
	Data []byte `json:"data"`
}

type ReleaseResult struct {
	Released bool `json:"released"`
}

type HealthResult struct {
	Status domain.HealthStatus `json:"status"`
}

type ConfigureResult struct {
	Applied bool `json:"applied"`
}

// ParseParams decodes raw request parameters into target.
func ParseParams(params json.RawMessage, target interface{}) error {
	if len(params) == 0 {
		return fmt.Errorf("params are required")
	}
	if err := json.Unmarshal(params, target); err != nil {
		return fmt.Errorf("parse params: %w", err)
	}
	return nil
}
