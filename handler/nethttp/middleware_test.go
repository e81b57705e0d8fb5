package nethttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wasmhttp/host-go/api/handler"
	internalhandler "github.com/wasmhttp/host-go/internal/handler"
)

func TestStatusWriter_deferredWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusTeapot)
	if rec.Code != 200 {
		t.Fatalf("WriteHeader must not reach the real writer yet, got code %d", rec.Code)
	}
	if w.status != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", w.status, http.StatusTeapot)
	}

	if _, err := w.Write([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("after first Write, rec.Code = %d, want %d", rec.Code, http.StatusTeapot)
	}

	// A second WriteHeader call after the first Write must be a no-op on
	// the real writer (matching http.ResponseWriter's own contract).
	w.WriteHeader(http.StatusInternalServerError)
	w.flush()
	if rec.Code != http.StatusTeapot {
		t.Fatalf("rec.Code changed after body was already written: %d", rec.Code)
	}
}

func TestStatusWriter_flushWithoutBody(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusNoContent}

	w.flush()
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rec.Code = %d, want %d", rec.Code, http.StatusNoContent)
	}

	// flush is idempotent.
	w.flush()
	if rec.Code != http.StatusNoContent {
		t.Fatalf("second flush changed rec.Code to %d", rec.Code)
	}
}

func TestHeaderFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-In", "1")
	r.Trailer = http.Header{"X-Trailer-In": {"2"}}
	rec := httptest.NewRecorder()
	rw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	ri := &requestInfo{r: r, rw: rw}

	if got := headerFor(ri, handler.HeaderKindRequest).Get("X-In"); got != "1" {
		t.Fatalf("request header = %q", got)
	}
	if got := headerFor(ri, handler.HeaderKindRequestTrailers).Get("X-Trailer-In"); got != "2" {
		t.Fatalf("request trailer = %q", got)
	}

	headerFor(ri, handler.HeaderKindResponse).Set("X-Out", "3")
	if got := rec.Header().Get("X-Out"); got != "3" {
		t.Fatalf("response header not set on the real recorder: %q", got)
	}
}

func TestTrailerName(t *testing.T) {
	name, ok := trailerName(http.TrailerPrefix + "X-Trace")
	if !ok || name != "X-Trace" {
		t.Fatalf("trailerName(%q) = (%q, %v), want (%q, true)", http.TrailerPrefix+"X-Trace", name, ok, "X-Trace")
	}
	if _, ok := trailerName("X-Trace"); ok {
		t.Fatal("trailerName must reject a key with no TrailerPrefix")
	}
}

func TestMergeBufferedResponse_splitsTrailersFromRegularHeaders(t *testing.T) {
	real := http.Header{}
	buffered := http.Header{}
	buffered.Set("Content-Type", "text/plain")
	buffered.Add(http.TrailerPrefix+"X-Checksum", "abc")

	buf := internalhandler.NewResponseBuffer()
	mergeBufferedResponse(real, buffered, buf)

	if got := real.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("regular header did not merge onto the real response: %q", got)
	}
	if real.Get(http.TrailerPrefix + "X-Checksum") != "" {
		t.Fatal("a trailer-prefixed key must not land on the real response header")
	}

	var gotTrailers [][2]string
	if err := buf.Release(func([]byte) error { return nil }, func(pairs [][2]string) { gotTrailers = pairs }); err != nil {
		t.Fatal(err)
	}
	if len(gotTrailers) != 1 || gotTrailers[0] != [2]string{"X-Checksum", "abc"} {
		t.Fatalf("gotTrailers = %v", gotTrailers)
	}
}

func TestBufferingWriter_headerIsOwnMapNotReal(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	bw := &bufferingWriter{statusWriter: rw, buf: internalhandler.NewResponseBuffer()}

	bw.Header().Set("X-Downstream", "1")
	if rec.Header().Get("X-Downstream") != "" {
		t.Fatal("bufferingWriter.Header() must not write through to the real response")
	}

	if _, err := bw.Write([]byte("body")); err != nil {
		t.Fatal(err)
	}
	if rec.Body.Len() != 0 {
		t.Fatal("bufferingWriter.Write must not reach the real response")
	}
	if string(bw.buf.Body()) != "body" {
		t.Fatalf("buf.Body() = %q, want %q", bw.buf.Body(), "body")
	}
}

func TestHost_GetSetStatusCode(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	ri := &requestInfo{r: httptest.NewRequest(http.MethodGet, "/", nil), rw: rw}
	ctx := context.WithValue(context.Background(), requestInfoKey{}, ri)

	h := host{}
	if got := h.GetStatusCode(ctx); got != http.StatusOK {
		t.Fatalf("GetStatusCode = %d, want 200", got)
	}
	h.SetStatusCode(ctx, http.StatusForbidden)
	if got := h.GetStatusCode(ctx); got != http.StatusForbidden {
		t.Fatalf("GetStatusCode after SetStatusCode = %d, want 403", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("SetStatusCode must not reach the wire before a body write: rec.Code = %d", rec.Code)
	}
}
