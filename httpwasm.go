// Package httpwasm provides options shared by every framework adapter that
// embeds a WebAssembly guest HTTP handler (handler/nethttp, handler/fasthttp).
//
// The bridge itself — ABI host functions, request lifecycle, response
// buffering — lives under internal/handler, as it is not part of the public
// contract framework adapters or guest authors depend on.
package httpwasm

import (
	"context"
	"io"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/wasmhttp/host-go/api"
)

// NewNamespace returns a new wazero.Namespace, used to instantiate one guest
// checked out from the instance pool. The default, internal.DefaultNamespace,
// creates one per checkout so guest memory is never shared across requests.
type NewNamespace func(context.Context, wazero.Runtime) (wazero.Namespace, error)

// NewRuntime returns a new wazero.Runtime. Override this to choose the
// interpreter engine, set memory limits, or otherwise configure the
// WebAssembly runtime shared by all guest checkouts.
type NewRuntime func(context.Context) (wazero.Runtime, error)

// Option configures the middleware returned by a framework adapter's
// NewMiddleware function.
type Option func(*WazeroOptions)

// WazeroOptions is internal state accumulated from Option values. It is
// exported so internal/handler (a sibling internal package) can read it
// without an import cycle; framework adapters never construct it directly.
type WazeroOptions struct {
	NewRuntime   NewRuntime
	NewNamespace NewNamespace
	ModuleConfig wazero.ModuleConfig
	GuestConfig  []byte
	Logger       api.LogFunc
	PoolSize     int
	Timeout      time.Duration
}

// Logger sets the callback invoked for every guest call to the "log" ABI
// function. The default discards log messages.
func Logger(logger api.LogFunc) Option {
	return func(o *WazeroOptions) { o.Logger = logger }
}

// GuestConfig sets the opaque configuration blob returned by the guest's
// "get_config" ABI call. It is immutable once the middleware is built.
func GuestConfig(config []byte) Option {
	return func(o *WazeroOptions) { o.GuestConfig = config }
}

// ModuleConfig overrides the wazero.ModuleConfig used to instantiate each
// guest checkout, e.g. to wire stdout/stderr/args/env for the WASI
// system-interface import.
func ModuleConfig(config wazero.ModuleConfig) Option {
	return func(o *WazeroOptions) { o.ModuleConfig = config }
}

// Stdout sets the io.Writer backing the guest's WASI stdout.
func Stdout(w io.Writer) Option {
	return func(o *WazeroOptions) { o.ModuleConfig = o.ModuleConfig.WithStdout(w) }
}

// Stderr sets the io.Writer backing the guest's WASI stderr.
func Stderr(w io.Writer) Option {
	return func(o *WazeroOptions) { o.ModuleConfig = o.ModuleConfig.WithStderr(w) }
}

// Args sets the guest's WASI command-line arguments, as seen through
// wasi_snapshot_preview1's args_get/args_sizes_get.
func Args(args ...string) Option {
	return func(o *WazeroOptions) { o.ModuleConfig = o.ModuleConfig.WithArgs(args...) }
}

// Env adds one WASI environment variable visible to the guest through
// environ_get/environ_sizes_get. Call it once per variable; each call adds
// to, rather than replaces, the guest's environment.
func Env(key, value string) Option {
	return func(o *WazeroOptions) { o.ModuleConfig = o.ModuleConfig.WithEnv(key, value) }
}

// WithNewRuntime overrides how the shared wazero.Runtime is constructed.
func WithNewRuntime(newRuntime NewRuntime) Option {
	return func(o *WazeroOptions) { o.NewRuntime = newRuntime }
}

// WithNewNamespace overrides how a namespace is created per pooled guest.
func WithNewNamespace(newNamespace NewNamespace) Option {
	return func(o *WazeroOptions) { o.NewNamespace = newNamespace }
}

// PoolSize sets how many guest instances NewMiddleware instantiates up front
// to warm the instance pool (internal/handler.Runtime). The default is
// runtime.GOMAXPROCS(0). It does not cap the pool: a request that finds the
// pool empty instantiates a new guest, and every instance that finishes a
// request without trapping is returned to the pool.
func PoolSize(n int) Option {
	return func(o *WazeroOptions) { o.PoolSize = n }
}

// Timeout sets a deadline on the context of each handled request, covering
// instance checkout, handle_request, the downstream handler and
// handle_response together. If the deadline has passed when the request
// finishes, the host treats the instance as trapped and ejects it. Zero
// means no timeout.
func Timeout(d time.Duration) Option {
	return func(o *WazeroOptions) { o.Timeout = d }
}
