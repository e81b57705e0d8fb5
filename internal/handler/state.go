package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/wasmhttp/host-go/api/handler"
)

// phase tracks which guest export is currently executing, to police which
// ABI operations are legal (spec §7 ProtocolError).
type phase int

const (
	phaseRequest phase = iota
	phaseResponse
)

// requestState is created at request entry and destroyed at request exit
// (spec §3 RequestState). It is reachable from an ABI host function only
// via the scope entered around a guest invocation (scopeContext /
// requestStateFromContext below), never through a global map keyed by
// instance (spec §9 design notes).
type requestState struct {
	host handler.Host

	// requestID correlates this request's log lines and error responses
	// across host and guest. It is generated once per request, never
	// accepted from the guest or the wire.
	requestID string

	// features starts as a copy of the middleware-wide mask and may only
	// grow during this request (spec §9: a per-request raise must not leak
	// into a later request).
	features handler.Features

	phase phase

	nextCalled bool

	requestBody          []byte
	requestBodyCursor    uint32
	requestBodyReplaced  bool
	responseBodyCursor   uint32
	responseBodyReplaced bool

	// responseBuffer is non-nil only when handler.FeatureBufferResponse is
	// active for this request.
	responseBuffer *ResponseBuffer
}

func newRequestState(host handler.Host, requestID string, middlewareFeatures handler.Features) *requestState {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &requestState{
		host:      host,
		requestID: requestID,
		features:  middlewareFeatures,
		phase:     phaseRequest,
	}
}

// enterResponsePhase resets the phase-scoped sticky replace flag, per the
// design note that it must reset at phase boundaries, not request
// boundaries.
func (rs *requestState) enterResponsePhase() {
	rs.phase = phaseResponse
	rs.responseBodyReplaced = false
}

// RequestIDContextKey is the key framework adapters use to pre-supply a
// request's correlation ID before calling Runtime.Handle, so the ID is
// recoverable for an error response even when Handle fails before a
// requestState exists to scope it. It is a plain string, not an unexported
// struct, because *fasthttp.RequestCtx.Value only resolves string keys (it
// proxies them to UserValue); a struct key would work for net/http's
// context.WithValue chain but silently fail to round-trip through fasthttp.
const RequestIDContextKey = "wasmhttp.request_id"

// WithRequestID attaches id to ctx under RequestIDContextKey. Adapters whose
// request context is a plain context.Context (net/http) use this; adapters
// whose context must keep its concrete type (fasthttp's *RequestCtx) set the
// same key directly via their own key-value store instead.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, id)
}

func requestIDFromParent(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDContextKey).(string)
	return id, ok
}

type requestStateKey struct{}

// scopeContext binds rs to ctx for the duration of one guest invocation.
// This is the host-function scoping mechanism of spec §4.3/§5: a
// context.Context value entered immediately before handle_request and
// exited after handle_response (or the direct-response path).
func scopeContext(ctx context.Context, rs *requestState) context.Context {
	return context.WithValue(ctx, requestStateKey{}, rs)
}

// requestStateFromContext resolves the requestState bound by scopeContext.
// Every ABI host function implementation calls this first; its absence
// indicates a host bug (a function registered without Runtime.Handle having
// entered scope), not a guest error, so it panics outright rather than
// trapping the guest.
func requestStateFromContext(ctx context.Context) *requestState {
	rs, ok := ctx.Value(requestStateKey{}).(*requestState)
	if !ok {
		panic("wasm: no requestState in context; ABI function called outside a guest invocation scope")
	}
	return rs
}
