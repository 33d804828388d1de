package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pdmworks/cadbridge/internal/core/domain"
	"github.com/pdmworks/cadbridge/internal/core/ports"
)

// maxFrameSize bounds a single request line. Batch property writes for
// large assemblies stay well under this.
const maxFrameSize = 10 * 1024 * 1024

// DispatchRecorder receives one observation per handled request.
type DispatchRecorder interface {
	ObserveDispatch(action, outcome string, elapsed time.Duration)
}

type Options struct {
	Metadata ports.DocumentMetadataService
	Live     ports.LiveAutomationService
	Input    io.Reader
	Output   io.Writer
	Logger   *slog.Logger
	Recorder DispatchRecorder
}

// Server reads request frames line by line and answers each one before
// reading the next. Dispatch is strictly sequential: the native layers
// behind the services tolerate exactly one in-flight call.
type Server struct {
	meta     ports.DocumentMetadataService
	live     ports.LiveAutomationService
	log      *slog.Logger
	recorder DispatchRecorder

	in  *bufio.Scanner
	out *bufio.Writer
}

func NewServer(opts Options) *Server {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	scanner := bufio.NewScanner(opts.Input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	return &Server{
		meta:     opts.Metadata,
		live:     opts.Live,
		log:      opts.Logger,
		recorder: opts.Recorder,
		in:       scanner,
		out:      bufio.NewWriter(opts.Output),
	}
}

// Run consumes frames until the input closes or ctx is canceled. A write
// failure ends the loop: with no response channel left there is nothing
// useful the server can do.
func (s *Server) Run(ctx context.Context) error {
	for s.in.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(s.in.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			malformed := Response{
				ID:    uuid.NewString(),
				Error: &ErrorInfo{Code: "bad_frame", Message: "malformed request frame", Detail: err.Error()},
			}
			if werr := s.write(malformed); werr != nil {
				return werr
			}
			continue
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		if err := s.write(s.dispatch(ctx, req)); err != nil {
			return err
		}
	}
	if err := s.in.Err(); err != nil {
		return fmt.Errorf("read request stream: %w", err)
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	started := time.Now()
	resp := Response{ID: req.ID}

	if err := req.Action.Validate(); err != nil {
		resp.Error = &ErrorInfo{Code: "unknown_action", Message: err.Error()}
	} else if data, err := s.handle(ctx, req); err != nil {
		resp.Error = errorInfoFor(err)
	} else {
		resp.OK = true
		resp.Data = data
	}

	elapsed := time.Since(started)
	outcome := "ok"
	if !resp.OK {
		outcome = "error"
	}
	if s.recorder != nil {
		s.recorder.ObserveDispatch(string(req.Action), outcome, elapsed)
	}
	if resp.OK {
		s.log.Info("request_handled",
			"action", req.Action, "id", req.ID, "duration_ms", elapsed.Milliseconds())
	} else {
		s.log.Warn("request_failed",
			"action", req.Action, "id", req.ID, "code", resp.Error.Code,
			"duration_ms", elapsed.Milliseconds())
	}
	return resp
}

func (s *Server) handle(ctx context.Context, req Request) (any, error) {
	switch req.Action {
	case ActionEngineStatus:
		return s.meta.EngineStatus(ctx), nil

	case ActionPropsGet:
		var p PathParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		props, err := s.meta.ReadProperties(ctx, p.Path, p.Configuration)
		if err != nil {
			return nil, err
		}
		return PropsResult{Path: p.Path, Configuration: p.Configuration, Properties: props}, nil

	case ActionPropsSet:
		var p SetPropsParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		if err := s.meta.WriteProperties(ctx, p.Path, p.Configuration, p.Properties); err != nil {
			return nil, err
		}
		return WriteResult{Path: p.Path, Written: len(p.Properties)}, nil

	case ActionPropsSetBatch:
		var p SetBatchParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		written := 0
		for _, props := range p.Configurations {
			written += len(props)
		}
		if err := s.meta.WritePropertiesBatch(ctx, p.Path, p.Configurations); err != nil {
			return nil, err
		}
		return WriteResult{Path: p.Path, Written: written}, nil

	case ActionConfigsList:
		var p PathParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		configs, err := s.meta.Configurations(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		return ConfigsResult{Path: p.Path, Configurations: configs}, nil

	case ActionBOMGet:
		var p PathParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		items, err := s.meta.BillOfMaterials(ctx, p.Path, p.Configuration)
		if err != nil {
			return nil, err
		}
		return BOMResult{Path: p.Path, Configuration: p.Configuration, Items: items}, nil

	case ActionBOMExport:
		var p BOMExportParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		rows, err := s.meta.ExportBillOfMaterials(ctx, p.Path, p.Configuration, p.Output)
		if err != nil {
			return nil, err
		}
		return BOMExportResult{Path: p.Path, Output: p.Output, Rows: rows}, nil

	case ActionRefsGet:
		var p PathParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		refs, err := s.meta.References(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		return RefsResult{Path: p.Path, References: refs}, nil

	case ActionPreviewGet:
		var p PathParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		preview, err := s.meta.Preview(ctx, p.Path, p.Configuration)
		if err != nil {
			return nil, err
		}
		return PreviewResult{
			Path:          p.Path,
			Configuration: p.Configuration,
			Format:        preview.Format,
			Data:          preview.Data,
		}, nil

	case ActionHandlesRelease:
		released, err := s.meta.ReleaseHandles(ctx)
		if err != nil {
			return nil, err
		}
		return ReleaseResult{Released: released}, nil

	case ActionLiveHealth:
		return HealthResult{Status: s.live.Health(ctx)}, nil

	case ActionConfigure:
		var p ConfigureParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		if err := s.meta.Configure(ctx, p.LicenseKey, p.LibraryPath); err != nil {
			return nil, err
		}
		return ConfigureResult{Applied: true}, nil

	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "dispatch", fmt.Errorf("unhandled action %s", req.Action))
	}
}

type validatable interface {
	Validate() error
}

func decodeParams(req Request, target validatable) error {
	if err := ParseParams(req.Params, target); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, string(req.Action), err)
	}
	if err := target.Validate(); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, string(req.Action), err)
	}
	return nil
}

func (s *Server) write(resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("encode_response_failed", "id", resp.ID, "error", err)
		fallback := Response{
			ID:    resp.ID,
			Error: &ErrorInfo{Code: "internal", Message: "response serialization failed", Detail: err.Error()},
		}
		payload, _ = json.Marshal(fallback)
	}
	if _, err := s.out.Write(payload); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := s.out.WriteByte('\n'); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := s.out.Flush(); err != nil {
		return fmt.Errorf("flush response: %w", err)
	}
	return nil
}
