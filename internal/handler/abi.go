// Package handler is the host-side ABI bridge: the state machine that
// drives a guest across the request lifecycle, the memory/marshaling
// conventions for every imported function, and the response-buffering
// machinery. It is internal because nothing outside the framework adapters
// (handler/nethttp, handler/fasthttp) needs to see wazero types directly.
package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	httpwasm "github.com/wasmhttp/host-go"
	"github.com/wasmhttp/host-go/api"
	"github.com/wasmhttp/host-go/api/handler"
	"github.com/wasmhttp/host-go/internal"
)

// Runtime owns everything shared across every request handled by one
// middleware factory call: the compiled host and guest modules, and the
// pool of checked-out guest instances (spec §3 GuestInstance, §4.3 Strategy
// 2). It is shared read-only across concurrent requests.
type Runtime struct {
	host                               handler.Host
	runtime                            wazero.Runtime
	wasiModule, hostModule, guestModule wazero.CompiledModule
	newNamespace                       httpwasm.NewNamespace
	moduleConfig                       wazero.ModuleConfig
	guestConfig                        []byte
	logFn                              api.LogFunc
	timeout                            time.Duration
	poolSize                           int

	pool sync.Pool

	// Features is the middleware-wide mask negotiated by the guest's
	// initialization entry point (spec §3 MiddlewareState). It is fixed
	// once NewRuntime returns.
	Features handler.Features
}

// NewRuntime compiles the host and guest modules, validates the guest's
// exports, and warms the instance pool with poolSize guests, each running its
// own initialization entry point; the first guest's negotiated feature mask
// becomes Features (spec §4.1).
func NewRuntime(ctx context.Context, guest []byte, host handler.Host, options ...httpwasm.Option) (*Runtime, error) {
	o := internal.NewWazeroOptions(options)

	wr, err := o.NewRuntime(ctx)
	if err != nil {
		return nil, &SetupError{Cause: fmt.Errorf("error creating runtime: %w", err)}
	}

	r := &Runtime{
		host:         host,
		runtime:      wr,
		newNamespace: o.NewNamespace,
		moduleConfig: o.ModuleConfig,
		guestConfig:  o.GuestConfig,
		logFn:        o.Logger,
		timeout:      o.Timeout,
		poolSize:     o.PoolSize,
	}

	if r.wasiModule, err = r.compileWASI(ctx); err != nil {
		_ = r.Close(ctx)
		return nil, &SetupError{Cause: err}
	}
	if r.hostModule, err = r.compileHost(ctx); err != nil {
		_ = r.Close(ctx)
		return nil, &SetupError{Cause: err}
	}
	if r.guestModule, err = r.compileGuest(ctx, guest); err != nil {
		_ = r.Close(ctx)
		return nil, &SetupError{Cause: err}
	}

	g, features, err := r.newGuestInstance(ctx)
	if err != nil {
		_ = r.Close(ctx)
		return nil, &SetupError{Cause: err}
	}
	r.Features = features
	r.pool.Put(g)

	// Warm the rest of the pool so the first poolSize concurrent requests
	// don't each pay a cold-start instantiation cost (spec §4.3 Strategy 2).
	// Each additional instance still runs its own _start/_initialize; only
	// the very first instance's negotiated mask is kept, per spec §4.1.
	for i := 1; i < r.poolSize; i++ {
		extra, _, err := r.newGuestInstance(ctx)
		if err != nil {
			_ = r.Close(ctx)
			return nil, &SetupError{Cause: err}
		}
		r.pool.Put(extra)
	}

	return r, nil
}

// Close implements api.Closer. It is not necessary to drain the pool first:
// closing the wazero.Runtime closes every namespace derived from it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// compileWASI compiles wasi_snapshot_preview1 once so it can be instantiated
// into every per-checkout namespace (newGuestInstance): a wazero.Namespace is
// an isolated module-instance registry, so a single Instantiate onto the
// shared Runtime's own namespace would never be visible to a guest
// instantiated into a different one.
func (r *Runtime) compileWASI(ctx context.Context) (wazero.CompiledModule, error) {
	builder := r.runtime.NewHostModuleBuilder(wasi_snapshot_preview1.ModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	compiled, err := builder.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error compiling wasi: %w", err)
	}
	return compiled, nil
}

func (r *Runtime) compileGuest(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	guest, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("error compiling guest: %w", err)
	}

	fns := guest.ExportedFunctions()
	handleRequest, ok := fns[handler.FuncHandleRequest]
	if !ok {
		return nil, fmt.Errorf("guest doesn't export func[%s]", handler.FuncHandleRequest)
	}
	if len(handleRequest.ParamTypes()) != 0 || len(handleRequest.ResultTypes()) != 1 {
		return nil, fmt.Errorf("guest exports the wrong signature for func[%s]: want () -> i64", handler.FuncHandleRequest)
	}
	handleResponse, ok := fns[handler.FuncHandleResponse]
	if !ok {
		return nil, fmt.Errorf("guest doesn't export func[%s]", handler.FuncHandleResponse)
	}
	if len(handleResponse.ParamTypes()) != 2 || len(handleResponse.ResultTypes()) != 0 {
		return nil, fmt.Errorf("guest exports the wrong signature for func[%s]: want (i32,i32) -> ()", handler.FuncHandleResponse)
	}
	if _, hasStart := fns[handler.FuncStart]; hasStart {
		if _, hasInit := fns[handler.FuncInitialize]; hasInit {
			return nil, fmt.Errorf("guest exports both %s and %s", handler.FuncStart, handler.FuncInitialize)
		}
	}
	if _, ok := guest.ExportedMemories()[api.Memory]; !ok {
		return nil, fmt.Errorf("guest doesn't export memory[%s]", api.Memory)
	}
	return guest, nil
}

// guestInstance is one pooled, checked-out guest: its own namespace,
// module, and resolved exports. Its memory is never shared with another
// guestInstance.
type guestInstance struct {
	ns             wazero.Namespace
	mod            wazeroapi.Module
	handleRequest  wazeroapi.Function
	handleResponse wazeroapi.Function
}

// newGuestInstance instantiates a fresh namespace containing the host
// module and a new copy of the guest module, running _start (automatically,
// via wazero's ModuleConfig) or _initialize (explicitly) exactly once for
// this instance, per spec §4.1.
func (r *Runtime) newGuestInstance(ctx context.Context) (*guestInstance, handler.Features, error) {
	is := &initState{}
	initCtx := withInitState(ctx, is)

	ns, err := r.newNamespace(initCtx, r.runtime)
	if err != nil {
		return nil, 0, fmt.Errorf("error creating namespace: %w", err)
	}

	// wasi_snapshot_preview1 and the host module export no state of their
	// own, so neither needs the guest's ModuleConfig.
	if _, err = ns.InstantiateModule(initCtx, r.wasiModule, wazero.NewModuleConfig()); err != nil {
		_ = ns.Close(ctx)
		return nil, 0, fmt.Errorf("error instantiating wasi: %w", err)
	}
	if _, err = ns.InstantiateModule(initCtx, r.hostModule, wazero.NewModuleConfig()); err != nil {
		_ = ns.Close(ctx)
		return nil, 0, fmt.Errorf("error instantiating host: %w", err)
	}

	mod, err := ns.InstantiateModule(initCtx, r.guestModule, r.moduleConfig)
	if err != nil {
		_ = ns.Close(ctx)
		return nil, 0, fmt.Errorf("error instantiating guest: %w", err)
	}

	if _, hasStart := r.guestModule.ExportedFunctions()[handler.FuncStart]; !hasStart {
		if _, hasInit := r.guestModule.ExportedFunctions()[handler.FuncInitialize]; hasInit {
			if _, err = mod.ExportedFunction(handler.FuncInitialize).Call(initCtx); err != nil {
				_ = ns.Close(ctx)
				return nil, 0, fmt.Errorf("error running %s: %w", handler.FuncInitialize, err)
			}
		}
	}

	return &guestInstance{
		ns:             ns,
		mod:            mod,
		handleRequest:  mod.ExportedFunction(handler.FuncHandleRequest),
		handleResponse: mod.ExportedFunction(handler.FuncHandleResponse),
	}, is.features, nil
}

// checkout borrows a guest instance from the pool, creating one if the pool
// is empty.
func (r *Runtime) checkout(ctx context.Context) (*guestInstance, error) {
	if v := r.pool.Get(); v != nil {
		return v.(*guestInstance), nil
	}
	g, _, err := r.newGuestInstance(ctx)
	return g, err
}

// release returns g to the pool, unless trapped is set: a trapped instance is
// ejected instead by closing its namespace, so it is never reused (spec §5,
// §7).
func (r *Runtime) release(ctx context.Context, g *guestInstance, trapped bool) {
	if trapped {
		_ = g.ns.Close(ctx)
		return
	}
	r.pool.Put(g)
}

// initState accumulates the feature mask the guest raises while its
// one-shot initializer (_start/_initialize) runs, before any requestState
// exists (spec §4.1 step 6).
type initState struct {
	features handler.Features
}

type initStateKey struct{}

func withInitState(ctx context.Context, is *initState) context.Context {
	return context.WithValue(ctx, initStateKey{}, is)
}

func initStateFromContext(ctx context.Context) (*initState, bool) {
	is, ok := ctx.Value(initStateKey{}).(*initState)
	return is, ok
}
