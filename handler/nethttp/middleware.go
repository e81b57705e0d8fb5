// Package nethttp adapts the http_handler ABI bridge to net/http: a
// WebAssembly guest wraps an http.HandlerFunc exactly like any other
// middleware, using *http.Request and http.ResponseWriter as the live state
// the bridge's host functions act on.
package nethttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/uuid"

	httpwasm "github.com/wasmhttp/host-go"
	"github.com/wasmhttp/host-go/api/handler"
	internalhandler "github.com/wasmhttp/host-go/internal/handler"
)

// NewMiddleware compiles guest and returns a Middleware that wraps
// http.HandlerFunc handlers with it.
func NewMiddleware(ctx context.Context, guest []byte, options ...httpwasm.Option) (handler.Middleware[http.HandlerFunc], error) {
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

func (m *middleware) NewHandler(_ context.Context, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		ri := &requestInfo{r: r, rw: rw, next: next}

		id := uuid.NewString()
		ctx := internalhandler.WithRequestID(context.WithValue(r.Context(), requestInfoKey{}, ri), id)
		if err := m.rt.Handle(ctx); err != nil {
			// The guest trapped or the runtime failed to check out an
			// instance; the downstream handler may or may not have run.
			// There is no guest-authored response to trust, so fall back to
			// a generic gateway error unless a response was already sent.
			if !rw.wroteHeader {
				http.Error(rw, fmt.Sprintf("wasm guest error: %v (request %s)", err, id), http.StatusBadGateway)
			}
			return
		}
		rw.flush()
	}
}

// host implements handler.Host in terms of the *requestInfo stashed in ctx
// by NewHandler's closure. It holds no state of its own: every method reads
// and mutates the request-scoped requestInfo, so one host value is shared
// across every concurrent request.
type host struct{}

type requestInfoKey struct{}

type requestInfo struct {
	r    *http.Request
	rw   *statusWriter
	next http.HandlerFunc
}

func requestInfoFromContext(ctx context.Context) *requestInfo {
	return ctx.Value(requestInfoKey{}).(*requestInfo)
}

func (host) EnableFeatures(_ context.Context, want handler.Features) handler.Features {
	// net/http can support every negotiated feature; nothing to refuse.
	return want
}

func (host) GetMethod(ctx context.Context) string {
	return requestInfoFromContext(ctx).r.Method
}

func (host) GetURI(ctx context.Context) string {
	return requestInfoFromContext(ctx).r.URL.RequestURI()
}

func (host) SetURI(ctx context.Context, uri string) {
	ri := requestInfoFromContext(ctx)
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return // an invalid URI from the guest leaves the request unchanged
	}
	ri.r.URL = u
}

func (host) GetProtocolVersion(ctx context.Context) string {
	return requestInfoFromContext(ctx).r.Proto
}

func (host) GetStatusCode(ctx context.Context) uint32 {
	return uint32(requestInfoFromContext(ctx).rw.status)
}

func (host) SetStatusCode(ctx context.Context, code uint32) {
	requestInfoFromContext(ctx).rw.status = int(code)
}

func (host) GetHeaderNames(ctx context.Context, kind handler.HeaderKind) []string {
	ri := requestInfoFromContext(ctx)
	h := headerFor(ri, kind)
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	return names
}

func (host) GetHeaderValues(ctx context.Context, kind handler.HeaderKind, name string) []string {
	ri := requestInfoFromContext(ctx)
	return headerFor(ri, kind).Values(name)
}

func (host) SetHeaderValue(ctx context.Context, kind handler.HeaderKind, name, value string) {
	ri := requestInfoFromContext(ctx)
	headerFor(ri, kind).Set(name, value)
}

func headerFor(ri *requestInfo, kind handler.HeaderKind) http.Header {
	switch kind {
	case handler.HeaderKindRequest:
		return ri.r.Header
	case handler.HeaderKindResponse:
		return ri.rw.Header()
	case handler.HeaderKindRequestTrailers:
		return ri.r.Trailer
	default:
		// HeaderKindResponseTrailers is handled entirely by
		// internal/handler's ResponseBuffer; the ABI layer never routes it
		// here (see internal/handler/functions.go's headerNames/headerValues).
		panic(fmt.Sprintf("nethttp: unexpected header kind %d reached the host", kind))
	}
}

func (host) RequestBody(ctx context.Context) []byte {
	ri := requestInfoFromContext(ctx)
	body, _ := io.ReadAll(ri.r.Body)
	return body
}

func (host) ResponseBodyWriter(ctx context.Context) io.Writer {
	return requestInfoFromContext(ctx).rw
}

func (host) AddResponseTrailers(ctx context.Context, trailers [][2]string) {
	ri := requestInfoFromContext(ctx)
	for _, kv := range trailers {
		// http.TrailerPrefix lets a handler declare trailer values any time
		// up to the point it returns, without pre-declaring trailer names
		// via a "Trailer" response header.
		ri.rw.Header().Add(http.TrailerPrefix+textproto.CanonicalMIMEHeaderKey(kv[0]), kv[1])
	}
}

func (host) Next(ctx context.Context) (err error) {
	ri := requestInfoFromContext(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("nethttp: downstream handler panicked: %v", rec)
		}
	}()

	if body, ok := internalhandler.RequestBodyFromContext(ctx); ok {
		ri.r.Body = io.NopCloser(bytes.NewReader(body))
	}

	buf, buffering := internalhandler.ResponseBufferFromContext(ctx)
	if !buffering {
		ri.next(ri.rw, ri.r)
		return nil
	}

	bw := &bufferingWriter{statusWriter: ri.rw, buf: buf}
	ri.next(bw, ri.r)
	mergeBufferedResponse(ri.rw.Header(), bw.header, buf)
	return nil
}

// mergeBufferedResponse splits the downstream handler's own header map
// (buffered) into the real response header and buf's trailers: a key
// declared via the http.TrailerPrefix convention is a trailer, captured
// into buf instead of the real response so get_header_names/get_header_values
// (RESPONSE_TRAILERS) can see and rewrite it from handle_response.
// Everything else merges onto the real response header, matching the
// non-buffering path's immediate visibility.
func mergeBufferedResponse(real, buffered http.Header, buf *internalhandler.ResponseBuffer) {
	for key, values := range buffered {
		if name, ok := trailerName(key); ok {
			for _, v := range values {
				buf.AddTrailer(name, v)
			}
			continue
		}
		real[key] = values
	}
}

// trailerName reports whether key was declared through the http.TrailerPrefix
// convention, returning the trailer's own canonical name with the prefix
// stripped.
func trailerName(key string) (string, bool) {
	if !strings.HasPrefix(key, http.TrailerPrefix) {
		return "", false
	}
	return textproto.CanonicalMIMEHeaderKey(strings.TrimPrefix(key, http.TrailerPrefix)), true
}

// statusWriter tracks the pending status code so GetStatusCode can answer it
// before any byte reaches the wire, and defers the real WriteHeader call
// until the first body write (matching the sticky direct-write rule of
// spec §4.5: a guest may call set_status_code any number of times before
// the first write_body).
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) { w.status = status }

func (w *statusWriter) Write(p []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(p)
}

// flush sends the pending status code exactly once. Called explicitly after
// Runtime.Handle returns, so a response with no body (e.g. 204, or a direct
// response that set only headers) still reaches the client.
func (w *statusWriter) flush() {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

// bufferingWriter is the http.ResponseWriter handed to the downstream
// handler while handler.FeatureBufferResponse is active: the body is
// captured for the guest to inspect and rewrite from handle_response
// instead of reaching the wire. Headers go into their own map rather than
// the real response's, so a trailer declared via the http.TrailerPrefix
// convention can be routed into buf instead of leaking onto the real
// response as a regular header; Host.Next merges everything else into the
// real response header once the downstream handler returns.
type bufferingWriter struct {
	*statusWriter
	buf    *internalhandler.ResponseBuffer
	header http.Header
}

func (w *bufferingWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *bufferingWriter) WriteHeader(status int) { w.status = status }

func (w *bufferingWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
