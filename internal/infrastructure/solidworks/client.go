package solidworks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pdmworks/cadbridge/internal/core/domain"
	"github.com/pdmworks/cadbridge/internal/infrastructure/resilience"
)

// healthGateTimeout bounds the gate wait for probes so a wedged in-flight
// call reports unresponsive instead of stalling the probe itself.
const healthGateTimeout = 2 * time.Second

// Connection is one attachment to a running application instance.
type Connection interface {
	// Ping performs a minimal call against the application.
	Ping() error
	// Close drops the attachment's native references.
	Close()
}

// CallRecorder receives one observation per completed live call. Outcome is
// the classified error kind, "success" for a clean return.
type CallRecorder interface {
	ObserveLiveCall(operation, outcome string, elapsed time.Duration)
}

// Options configures the live automation client. Zero values fall back to
// platform defaults.
type Options struct {
	Resilience  resilience.Config
	GateTimeout time.Duration
	Recorder    CallRecorder
	// OnBusyRetry is invoked once per busy rejection the admission filter
	// answers with a wait. Ignored when Filter is set.
	OnBusyRetry func()
	// Filter overrides the admission filter, primarily for tests.
	Filter *resilience.AdmissionFilter
	// Attach overrides the platform attachment hook, primarily for tests.
	Attach func() (Connection, error)
	Runner *STARunner
}

// Client drives a running application through the full protection chain:
// admission filter below, serialized gate and retry executor above. It
// implements ports.LiveSession.
type Client struct {
	serializer *resilience.Serializer
	filter     *resilience.AdmissionFilter
	runner     *STARunner
	attach     func() (Connection, error)
	recorder   CallRecorder

	mu   sync.Mutex
	conn Connection
}

func NewClient(options Options) *Client {
	attach := options.Attach
	if attach == nil {
		attach = platformAttach
	}
	runner := options.Runner
	if runner == nil {
		runner = NewSTARunner()
	}
	filter := options.Filter
	if filter == nil {
		filter = resilience.NewAdmissionFilterWithOptions(
			newPlatformRegistrar(runner),
			resilience.FilterOptions{OnRetry: options.OnBusyRetry},
		)
	}
	executor := resilience.NewExecutor(options.Resilience, filter)
	return &Client{
		serializer: resilience.NewSerializer(executor, options.GateTimeout),
		filter:     filter,
		runner:     runner,
		attach:     attach,
		recorder:   options.Recorder,
	}
}

// Invoke runs op against the live application under the serialized gate,
// with the admission filter attached and transient failures retried.
// Cancellation is honored only while waiting for the gate.
func (c *Client) Invoke(ctx context.Context, operation string, op func(context.Context) error) error {
	if op == nil {
		return fmt.Errorf("live: operation callback is nil")
	}
	if err := c.filter.Attach(); err != nil {
		slog.Warn("admission_filter_attach_failed", "error", err)
	}

	started := time.Now()
	err := c.serializer.Execute(ctx, operation, 0, func(ctx context.Context) error {
		if _, err := c.connection(); err != nil {
			return err
		}
		var opErr error
		c.runner.Do(func() { opErr = op(ctx) })
		if opErr != nil {
			c.noteFailure(opErr)
		}
		return opErr
	}, classifyLiveError)
	err = translateGateTimeout(operation, err)
	c.record(operation, err, time.Since(started))
	return err
}

// Health probes the live application. The probe goes through the same gate
// as real calls, with a short bounded wait.
func (c *Client) Health(ctx context.Context) domain.HealthStatus {
	err := c.serializer.Execute(ctx, "live.health", healthGateTimeout, func(ctx context.Context) error {
		conn, err := c.connection()
		if err != nil {
			return err
		}
		var pingErr error
		c.runner.Do(func() { pingErr = conn.Ping() })
		if pingErr != nil {
			c.noteFailure(pingErr)
		}
		return pingErr
	}, classifyLiveError)
	return healthFromError(translateGateTimeout("live.health", err))
}

// connection returns the live attachment, attaching lazily on the apartment
// thread. Attach failures classify as server-not-running.
func (c *Client) connection() (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	var (
		conn Connection
		err  error
	)
	c.runner.Do(func() { conn, err = c.attach() })
	if err != nil {
		return nil, domain.FaultFromError(domain.KindServerNotRunning, "attach to application", err)
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) record(operation string, err error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	c.recorder.ObserveLiveCall(operation, string(domain.KindOf(err)), elapsed)
}

// noteFailure drops the attachment when the failure means the application
// is gone or wedged, so the next call re-attaches instead of reusing a dead
// reference.
func (c *Client) noteFailure(err error) {
	switch domain.KindOf(err) {
	case domain.KindServerNotRunning, domain.KindServerUnresponsive:
		c.dropConnection()
	}
}

func (c *Client) dropConnection() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		c.runner.Do(conn.Close)
	}
}

// Close detaches the admission filter, drops the attachment and retires the
// apartment thread. The client is not usable afterwards.
func (c *Client) Close() {
	if err := c.filter.Detach(); err != nil {
		slog.Warn("admission_filter_detach_failed", "error", err)
	}
	c.dropConnection()
	c.runner.Stop()
}
