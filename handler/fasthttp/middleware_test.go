package fasthttp

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func TestVisitNamesDedups(t *testing.T) {
	h := &fasthttp.RequestHeader{}
	h.Add("X-Foo", "1")
	h.Add("X-Foo", "2")
	h.Add("X-Bar", "3")

	names := visitNames(h.VisitAll)
	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 unique entries", names)
	}
}

func TestVisitValues(t *testing.T) {
	h := &fasthttp.RequestHeader{}
	h.Add("X-Foo", "1")
	h.Add("X-Foo", "2")

	values := visitValues(h.VisitAll, "X-Foo")
	if len(values) != 2 || values[0] != "1" || values[1] != "2" {
		t.Fatalf("values = %v", values)
	}
}

func TestTrailerSet(t *testing.T) {
	fc := &fasthttp.RequestCtx{}
	ts := requestTrailers(fc)
	ts.set("X-Trace-Id", "abc")

	if got := ts.values("x-trace-id"); len(got) != 1 || got[0] != "abc" {
		t.Fatalf("values = %v", got)
	}
	if got := ts.names(); len(got) != 1 || got[0] != "X-Trace-Id" {
		t.Fatalf("names = %v", got)
	}

	// requestTrailers must return the same instance for the same RequestCtx.
	if requestTrailers(fc) != ts {
		t.Fatal("requestTrailers did not reuse the stored trailerSet")
	}
}
