// Package handler describes the http_handler ABI: the frozen contract
// between a host and a guest WebAssembly HTTP handler. Nothing in this
// package is specific to a WebAssembly runtime or an HTTP framework; it is
// shared vocabulary for the host-side implementation under internal/handler
// and the framework adapters under handler/nethttp and handler/fasthttp.
package handler

import (
	"context"
	"io"

	"github.com/wasmhttp/host-go/api"
)

// HostModule is the name of the WebAssembly module a guest must import to
// call any function in this package's catalog.
const HostModule = "http_handler"

// Exported guest function names, invoked by the host.
const (
	// FuncHandleRequest is the nullary export the host calls once per
	// request. It returns a packed ctxNext (see packContextNext in
	// internal/handler).
	FuncHandleRequest = "handle_request"
	// FuncHandleResponse is the export the host calls after the downstream
	// handler runs, but only if handle_request's low bit requested it.
	FuncHandleResponse = "handle_response"
	// FuncStart and FuncInitialize are the two recognized one-shot guest
	// initializers; at most one may be exported.
	FuncStart      = "_start"
	FuncInitialize = "_initialize"
)

// Imported host function names, exported by the host under HostModule.
const (
	FuncEnableFeatures     = "enable_features"
	FuncGetConfig          = "get_config"
	FuncGetMethod          = "get_method"
	FuncGetURI             = "get_uri"
	FuncSetURI             = "set_uri"
	FuncGetProtocolVersion = "get_protocol_version"
	FuncGetStatusCode      = "get_status_code"
	FuncSetStatusCode      = "set_status_code"
	FuncGetHeaderNames     = "get_header_names"
	FuncGetHeaderValues    = "get_header_values"
	FuncSetHeaderValue     = "set_header_value"
	FuncReadBody           = "read_body"
	FuncWriteBody          = "write_body"
	FuncLog                = "log"
	FuncLogEnabled         = "log_enabled"
)

// Features is a bitmask negotiated between guest and host. It can only grow
// within the lifetime of a single middleware instance: see the
// enable_features implementation in internal/handler.
type Features uint32

const (
	// FeatureBufferRequest makes the host fully read the request body
	// before calling FuncHandleRequest, so read_body(REQUEST) never blocks.
	FeatureBufferRequest Features = 1 << iota
	// FeatureBufferResponse interposes the downstream response so the guest
	// can read and rewrite it from FuncHandleResponse.
	FeatureBufferResponse
	// FeatureTrailers allows reading and writing HTTP trailers. It is only
	// meaningful combined with FeatureBufferResponse for the response side.
	FeatureTrailers
)

// IsEnabled returns true if all bits of want are set in f.
func (f Features) IsEnabled(want Features) bool { return f&want == want }

// HeaderKind selects which header collection an ABI call targets.
type HeaderKind uint32

const (
	HeaderKindRequest HeaderKind = iota
	HeaderKindResponse
	HeaderKindRequestTrailers
	HeaderKindResponseTrailers
)

// BodyKind selects which body an ABI call targets.
type BodyKind uint32

const (
	BodyKindRequest BodyKind = iota
	BodyKindResponse
)

// LogLevel is an alias of api.LogLevel, kept here too since it is part of
// this package's ABI catalog (the log/log_enabled functions).
type LogLevel = api.LogLevel

const (
	LogLevelDebug = api.LogLevelDebug
	LogLevelInfo  = api.LogLevelInfo
	LogLevelWarn  = api.LogLevelWarn
	LogLevelError = api.LogLevelError
	LogLevelNone  = api.LogLevelNone
)

// Host is implemented by a framework-specific adapter (handler/nethttp,
// handler/fasthttp, ...) and bridges ABI calls to the concrete request and
// response objects of that framework. All methods act on the request
// associated with ctx; see internal/handler for how that association is
// made.
type Host interface {
	// EnableFeatures reports which features of want this host honors. A
	// host must report a feature as enabled if it intends to honor it, even
	// if the feature is a no-op for that host. The host keeps no mask of its
	// own: the middleware- and request-scoped masks are kept by
	// internal/handler.
	EnableFeatures(ctx context.Context, want Features) Features

	// GetMethod returns the request method, e.g. "GET".
	GetMethod(ctx context.Context) string
	// GetURI returns the request path and query, e.g. "/v1.0/hi?name=panda".
	GetURI(ctx context.Context) string
	// SetURI replaces the request path and query.
	SetURI(ctx context.Context, uri string)
	// GetProtocolVersion returns one of "HTTP/1.0", "HTTP/1.1", "HTTP/2.0".
	GetProtocolVersion(ctx context.Context) string

	// GetStatusCode returns the current response status code.
	GetStatusCode(ctx context.Context) uint32
	// SetStatusCode sets the response status code.
	SetStatusCode(ctx context.Context, code uint32)

	// GetHeaderNames returns the header names present for kind, without
	// duplicates, in host-chosen order.
	GetHeaderNames(ctx context.Context, kind HeaderKind) []string
	// GetHeaderValues returns every value of the named header for kind, or
	// nil if absent. Name is passed as the guest supplied it; it is not
	// case-normalized before this call.
	GetHeaderValues(ctx context.Context, kind HeaderKind, name string) []string
	// SetHeaderValue replaces all values of the named header for kind with
	// a single value.
	SetHeaderValue(ctx context.Context, kind HeaderKind, name, value string)

	// RequestBody returns the request body for streaming or buffered reads.
	RequestBody(ctx context.Context) []byte
	// ResponseBodyWriter returns where response body bytes go: the guest's
	// direct writes when FeatureBufferResponse is not active, and the
	// buffered body, at ResponseBuffer release, when it is.
	ResponseBodyWriter(ctx context.Context) io.Writer

	// AddResponseTrailers appends response trailers in order. Called once,
	// at ResponseBuffer release time.
	AddResponseTrailers(ctx context.Context, trailers [][2]string)

	// Next invokes the downstream handler and reports whether it failed.
	Next(ctx context.Context) (err error)
}

// Middleware wraps a host request handler of type T with one compiled
// guest. T is the framework's handler function type, e.g.
// http.HandlerFunc or fasthttp.RequestHandler.
type Middleware[T any] interface {
	api.Closer

	// NewHandler returns a handler of type T that runs the guest around
	// next.
	NewHandler(ctx context.Context, next T) T
}
