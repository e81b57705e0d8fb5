package handler

import (
	"errors"
	"testing"
)

func TestResponseBuffer_writeAppendReplace(t *testing.T) {
	b := NewResponseBuffer()
	b.Write([]byte("hello"))
	b.Append([]byte(" world"))
	if got := string(b.Body()); got != "hello world" {
		t.Fatalf("Body() = %q", got)
	}

	b.Replace([]byte("new"))
	if got := string(b.Body()); got != "new" {
		t.Fatalf("Body() after Replace = %q", got)
	}
}

func TestResponseBuffer_release(t *testing.T) {
	b := NewResponseBuffer()
	b.Write([]byte("body"))
	b.AddTrailer("X-Trace", "abc")

	var gotBody []byte
	var gotTrailers [][2]string
	terminated := false
	b.SetTerminator(func() error { terminated = true; return nil })

	err := b.Release(
		func(body []byte) error { gotBody = body; return nil },
		func(pairs [][2]string) { gotTrailers = pairs },
	)
	if err != nil {
		t.Fatal(err)
	}
	if string(gotBody) != "body" {
		t.Fatalf("gotBody = %q", gotBody)
	}
	if len(gotTrailers) != 1 || gotTrailers[0] != [2]string{"X-Trace", "abc"} {
		t.Fatalf("gotTrailers = %v", gotTrailers)
	}
	if !terminated {
		t.Fatal("terminator was not invoked")
	}
}

func TestResponseBuffer_releaseIsIdempotent(t *testing.T) {
	b := NewResponseBuffer()
	b.Write([]byte("once"))

	calls := 0
	writeBody := func([]byte) error { calls++; return nil }
	noopTrailers := func([][2]string) {}

	if err := b.Release(writeBody, noopTrailers); err != nil {
		t.Fatal(err)
	}
	if err := b.Release(writeBody, noopTrailers); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("writeBody called %d times, want 1", calls)
	}
}

func TestResponseBuffer_releasePropagatesWriteError(t *testing.T) {
	b := NewResponseBuffer()
	want := errors.New("boom")

	err := b.Release(
		func([]byte) error { return want },
		func([][2]string) { t.Fatal("addTrailers must not run when writeBody fails") },
	)
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestResponseBuffer_noTrailersNoCallback(t *testing.T) {
	b := NewResponseBuffer()
	called := false
	err := b.Release(
		func([]byte) error { return nil },
		func([][2]string) { called = true },
	)
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("addTrailers must not be called when there are no trailers")
	}
}
