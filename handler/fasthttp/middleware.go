// Package fasthttp adapts the http_handler ABI bridge to valyala/fasthttp.
// A *fasthttp.RequestCtx already implements context.Context, so unlike the
// net/http adapter, no per-request wrapper struct is needed: the RequestCtx
// stores itself as a user value, and the host functions recover it through
// ctx.Value, which reaches it through any context the bridge wraps around it.
package fasthttp

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	httpwasm "github.com/wasmhttp/host-go"
	"github.com/wasmhttp/host-go/api/handler"
	internalhandler "github.com/wasmhttp/host-go/internal/handler"
)

// NewMiddleware compiles guest and returns a Middleware that wraps
// fasthttp.RequestHandler handlers with it.
func NewMiddleware(ctx context.Context, guest []byte, options ...httpwasm.Option) (handler.Middleware[fasthttp.RequestHandler], error) {
	rt, err := internalhandler.NewRuntime(ctx, guest, host{}, options...)
	if err != nil {
		return nil, err
	}
	return &middleware{rt: rt}, nil
}

type middleware struct {
	rt *internalhandler.Runtime
}

func (m *middleware) Close(ctx context.Context) error { return m.rt.Close(ctx) }

func (m *middleware) NewHandler(_ context.Context, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(fastCtx *fasthttp.RequestCtx) {
		fastCtx.SetUserValue(userValueNext, next)

		// Runtime.Handle wraps fastCtx in its own context values before any
		// host function sees it, so the RequestCtx and the request ID both go
		// through fasthttp's own user-value store: RequestCtx.Value proxies
		// string-keyed lookups to it, and a wrapping context falls through to
		// that lookup.
		fastCtx.SetUserValue(userValueRequestCtx, fastCtx)
		id := uuid.NewString()
		fastCtx.SetUserValue(internalhandler.RequestIDContextKey, id)

		if err := m.rt.Handle(fastCtx); err != nil {
			fastCtx.Error(fmt.Sprintf("wasm guest error: %v (request %s)", err, id), fasthttp.StatusBadGateway)
		}
	}
}

const (
	userValueNext       = "wasmhttp.next"
	userValueRequestCtx = "wasmhttp.requestCtx"
)

// host implements handler.Host directly against fasthttp.RequestCtx; it
// holds no state of its own, matching the net/http adapter's shape.
type host struct{}

func (host) EnableFeatures(_ context.Context, want handler.Features) handler.Features {
	return want
}

func (host) GetMethod(ctx context.Context) string {
	return string(fastCtx(ctx).Method())
}

func (host) GetURI(ctx context.Context) string {
	return string(fastCtx(ctx).RequestURI())
}

func (host) SetURI(ctx context.Context, uri string) {
	fastCtx(ctx).Request.Header.SetRequestURI(uri)
}

func (host) GetProtocolVersion(ctx context.Context) string {
	return string(fastCtx(ctx).Request.Header.Protocol())
}

func (host) GetStatusCode(ctx context.Context) uint32 {
	return uint32(fastCtx(ctx).Response.StatusCode())
}

func (host) SetStatusCode(ctx context.Context, code uint32) {
	fastCtx(ctx).Response.SetStatusCode(int(code))
}

func (host) GetHeaderNames(ctx context.Context, kind handler.HeaderKind) []string {
	switch kind {
	case handler.HeaderKindRequest:
		return visitNames(fastCtx(ctx).Request.Header.VisitAll)
	case handler.HeaderKindResponse:
		return visitNames(fastCtx(ctx).Response.Header.VisitAll)
	case handler.HeaderKindRequestTrailers:
		return requestTrailers(fastCtx(ctx)).names()
	default:
		panic("fasthttp: unexpected header kind reached the host")
	}
}

func (host) GetHeaderValues(ctx context.Context, kind handler.HeaderKind, name string) []string {
	switch kind {
	case handler.HeaderKindRequest:
		return visitValues(fastCtx(ctx).Request.Header.VisitAll, name)
	case handler.HeaderKindResponse:
		return visitValues(fastCtx(ctx).Response.Header.VisitAll, name)
	case handler.HeaderKindRequestTrailers:
		return requestTrailers(fastCtx(ctx)).values(name)
	default:
		panic("fasthttp: unexpected header kind reached the host")
	}
}

func (host) SetHeaderValue(ctx context.Context, kind handler.HeaderKind, name, value string) {
	switch kind {
	case handler.HeaderKindRequest:
		fastCtx(ctx).Request.Header.Set(name, value)
	case handler.HeaderKindResponse:
		fastCtx(ctx).Response.Header.Set(name, value)
	case handler.HeaderKindRequestTrailers:
		requestTrailers(fastCtx(ctx)).set(name, value)
	default:
		panic("fasthttp: unexpected header kind reached the host")
	}
}

func (host) RequestBody(ctx context.Context) []byte {
	return fastCtx(ctx).Request.Body()
}

func (host) ResponseBodyWriter(ctx context.Context) io.Writer {
	return fastCtx(ctx)
}

func (host) AddResponseTrailers(ctx context.Context, trailers [][2]string) {
	r := &fastCtx(ctx).Response
	for _, kv := range trailers {
		// fasthttp requires trailer names to be pre-declared before they can
		// be set, unlike net/http's TrailerPrefix convention.
		_ = r.Header.SetTrailer(kv[0])
		r.Header.Set(kv[0], kv[1])
	}
}

func (host) Next(ctx context.Context) (err error) {
	fc := fastCtx(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			err = &downstreamPanic{rec}
		}
	}()

	if body, ok := internalhandler.RequestBodyFromContext(ctx); ok {
		fc.Request.SetBody(body)
	}

	next := fc.UserValue(userValueNext).(fasthttp.RequestHandler)

	buf, buffering := internalhandler.ResponseBufferFromContext(ctx)
	if !buffering {
		next(fc)
		return nil
	}

	// While buffering, let the downstream handler write to the real
	// Response object (so it can still inspect/replace status and headers
	// the usual fasthttp way), then recapture the body and trailers into
	// buf instead of letting them reach the connection; Runtime.Handle
	// flushes buf after the guest's handle_response runs.
	fc.Response.ResetBody()
	next(fc)
	buf.Append(fc.Response.Body())
	fc.Response.Header.VisitAllTrailer(func(key []byte) {
		buf.AddTrailer(string(key), string(fc.Response.Header.Peek(string(key))))
	})
	fc.Response.ResetBody()
	return nil
}

type downstreamPanic struct{ v any }

func (p *downstreamPanic) Error() string { return "fasthttp: downstream handler panicked" }

// fastCtx recovers the *fasthttp.RequestCtx that NewHandler stored under
// userValueRequestCtx, whatever contexts Runtime.Handle wrapped around it.
func fastCtx(ctx context.Context) *fasthttp.RequestCtx {
	return ctx.Value(userValueRequestCtx).(*fasthttp.RequestCtx)
}

func visitNames(visit func(func(k, v []byte))) []string {
	seen := make(map[string]bool)
	var names []string
	visit(func(k, _ []byte) {
		name := string(k)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	})
	return names
}

func visitValues(visit func(func(k, v []byte)), name string) []string {
	var values []string
	visit(func(k, v []byte) {
		if string(k) == name {
			values = append(values, string(v))
		}
	})
	return values
}

const userValueRequestTrailers = "wasmhttp.requestTrailers"

// trailerSet is a tiny insertion-ordered name -> values map, scoped to one
// request via RequestCtx's UserValue store. fasthttp's server-side chunked
// trailer support is narrow (it targets streamed response bodies), so this
// adapter models incoming request trailers as an ordinary in-memory
// collection rather than wiring into the wire-level chunked trailer parser;
// see DESIGN.md.
type trailerSet struct {
	order  []string
	values map[string][]string
}

func requestTrailers(fc *fasthttp.RequestCtx) *trailerSet {
	if v, ok := fc.UserValue(userValueRequestTrailers).(*trailerSet); ok {
		return v
	}
	t := &trailerSet{values: map[string][]string{}}
	fc.SetUserValue(userValueRequestTrailers, t)
	return t
}

func (t *trailerSet) names() []string { return append([]string(nil), t.order...) }

func (t *trailerSet) values(name string) []string { return t.values[strings.ToLower(name)] }

func (t *trailerSet) set(name, value string) {
	key := strings.ToLower(name)
	if _, ok := t.values[key]; !ok {
		t.order = append(t.order, name)
	}
	t.values[key] = []string{value}
}
