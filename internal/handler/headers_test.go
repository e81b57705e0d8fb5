package handler

import (
	"reflect"
	"testing"
)

// headerMultimap always keeps every value as a distinct list entry: it is
// the storage layer for buffered response trailers, and callers like
// Pairs()/AddResponseTrailers need the raw per-value shape.
// The ABI-visible Set-Cookie-vs-other-headers concatenation rule (spec
// §4.2) is applied one layer up, in joinHeaderValues (functions.go), not
// here — see TestJoinHeaderValues in functions_test.go.
func TestHeaderMultimap_setAndAdd(t *testing.T) {
	h := newHeaderMultimap()
	h.Set("Content-Type", "text/plain")
	h.Add("X-Trace", "a")
	h.Add("X-Trace", "b")

	if got := h.Values("content-type"); !reflect.DeepEqual(got, []string{"text/plain"}) {
		t.Fatalf("Values(content-type) = %v", got)
	}
	if got := h.Values("X-TRACE"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Values(X-TRACE) = %v", got)
	}
	if got := h.Names(); !reflect.DeepEqual(got, []string{"Content-Type", "X-Trace"}) {
		t.Fatalf("Names() = %v, want first-seen-case order", got)
	}
}

func TestHeaderMultimap_setReplacesAllValues(t *testing.T) {
	h := newHeaderMultimap()
	h.Add("X-A", "1")
	h.Add("X-A", "2")
	h.Set("X-A", "3")

	if got := h.Values("x-a"); !reflect.DeepEqual(got, []string{"3"}) {
		t.Fatalf("Values(x-a) = %v, want [3]", got)
	}
}

func TestHeaderMultimap_absentName(t *testing.T) {
	h := newHeaderMultimap()
	if got := h.Values("missing"); got != nil {
		t.Fatalf("Values(missing) = %v, want nil", got)
	}
}

func TestHeaderMultimap_pairs(t *testing.T) {
	h := newHeaderMultimap()
	h.Add("X-A", "1")
	h.Add("X-B", "2")
	h.Add("X-A", "3")

	want := [][2]string{{"X-A", "1"}, {"X-A", "3"}, {"X-B", "2"}}
	if got := h.Pairs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Pairs() = %v, want %v", got, want)
	}
}

func TestNewHeaderMultimapFromPairs(t *testing.T) {
	h := newHeaderMultimapFromPairs([][2]string{{"X-A", "1"}, {"X-A", "2"}})
	if got := h.Values("x-a"); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("Values(x-a) = %v", got)
	}
}
