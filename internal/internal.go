// Package internal holds wazero wiring shared by internal/handler and not
// meant for framework adapters to depend on directly.
package internal

import (
	"context"
	"runtime"

	"github.com/tetratelabs/wazero"

	httpwasm "github.com/wasmhttp/host-go"
	"github.com/wasmhttp/host-go/api"
)

// DefaultRuntime is the default httpwasm.NewRuntime: a compiler-backed
// wazero.Runtime. Guests that can't use the compiler engine (e.g. on an
// unsupported GOARCH) should override this with httpwasm.WithNewRuntime and
// wazero.NewRuntimeConfigInterpreter.
//
// wasi_snapshot_preview1 is deliberately not instantiated here: it must be
// instantiated into every per-checkout wazero.Namespace (an isolated
// module-instance registry), not once into the Runtime's own default
// namespace, or a guest importing any WASI function would fail import
// resolution. internal/handler compiles and instantiates it alongside the
// host and guest modules.
func DefaultRuntime(ctx context.Context) (wazero.Runtime, error) {
	return wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig()), nil
}

// DefaultNamespace creates a fresh wazero.Namespace, so one guest checkout's
// memory is never visible to another.
func DefaultNamespace(ctx context.Context, r wazero.Runtime) (wazero.Namespace, error) {
	return r.NewNamespace(ctx), nil
}

// DefaultPoolSize mirrors the concurrency the host process can actually use;
// a pool bigger than this mostly just holds idle memory.
func DefaultPoolSize() int {
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return 1
}

// NewWazeroOptions applies opts over the documented defaults.
func NewWazeroOptions(opts []httpwasm.Option) *httpwasm.WazeroOptions {
	o := &httpwasm.WazeroOptions{
		NewRuntime:   DefaultRuntime,
		NewNamespace: DefaultNamespace,
		ModuleConfig: wazero.NewModuleConfig(),
		Logger:       func(context.Context, api.LogLevel, string) {},
		PoolSize:     DefaultPoolSize(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
