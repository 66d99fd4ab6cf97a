package adb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"jordanella.com/scrollcap/internal/logging"
)

// DefaultCommandTimeout bounds every adb invocation.
const DefaultCommandTimeout = 30 * time.Second

var (
	// ErrConnectFailed is wrapped by every error returned from Connect.
	ErrConnectFailed = errors.New("adb connect failed")
	// ErrNotConnected is returned when a device command runs before Connect.
	ErrNotConnected = errors.New("adb device not connected")
)

// runFunc executes the adb binary and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Controller drives a single device through the adb executable
type Controller struct {
	path      string
	device    string // Device serial: "host:port"
	timeout   time.Duration
	tempDir   string
	run       runFunc
	log       *logging.Logger
	mu        sync.Mutex
	connected bool
}

// Option configures a Controller
type Option func(*Controller)

// WithTimeout overrides the per-command timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTempDir sets the local directory used for pulled files
func WithTempDir(dir string) Option {
	return func(c *Controller) {
		c.tempDir = dir
	}
}

// WithLogger sets the logger used for best-effort failures
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func withRunner(run runFunc) Option {
	return func(c *Controller) {
		c.run = run
	}
}

// NewController creates a new ADB controller for the device at address (host:port)
func NewController(adbPath, address string, opts ...Option) *Controller {
	c := &Controller{
		path:    adbPath,
		device:  address,
		timeout: DefaultCommandTimeout,
		run:     execRun,
		log:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the device serial this controller talks to
func (c *Controller) Address() string {
	return c.device
}

// Connect resets any stale session and connects to the device.
// Calling it repeatedly is safe.
func (c *Controller) Connect(ctx context.Context) (ConnectResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Reset; "no such device" is the normal answer here.
	c.exec(ctx, "disconnect", c.device)
	c.connected = false

	output, err := c.exec(ctx, "connect", c.device)
	if err != nil {
		result := ConnectResult{Status: ConnectFailed, Reason: err.Error()}
		return result, fmt.Errorf("%w: %s: %v", ErrConnectFailed, c.device, err)
	}

	result := ParseConnectOutput(output)
	if result.Status == ConnectFailed {
		return result, fmt.Errorf("%w: %s: %s", ErrConnectFailed, c.device, result.Reason)
	}

	c.connected = true
	return result, nil
}

// Disconnect closes the ADB connection
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	if _, err := c.exec(ctx, "disconnect", c.device); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", c.device, err)
	}
	return nil
}

// exec runs one adb command under the command timeout. The caller holds c.mu.
func (c *Controller) exec(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.run(ctx, c.path, args...)
	trimmed := strings.TrimSpace(string(output))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return trimmed, fmt.Errorf("adb %s timed out after %v", args[0], c.timeout)
		}
		if trimmed != "" {
			return trimmed, fmt.Errorf("adb %s: %w, output: %s", args[0], err, trimmed)
		}
		return trimmed, fmt.Errorf("adb %s: %w", args[0], err)
	}
	return trimmed, nil
}

// deviceExec runs a command addressed to the connected device.
func (c *Controller) deviceExec(ctx context.Context, args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return "", ErrNotConnected
	}
	return c.exec(ctx, append([]string{"-s", c.device}, args...)...)
}
