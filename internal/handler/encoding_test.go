package handler

import "testing"

func TestWriteIfFits(t *testing.T) {
	tests := []struct {
		name     string
		v        []byte
		bufLimit uint32
		wantN    uint32
		wantFits bool
	}{
		{"empty", nil, 10, 0, false},
		{"fits exactly", []byte("hello"), 5, 5, true},
		{"too big", []byte("hello"), 4, 5, false},
		{"room to spare", []byte("hi"), 10, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, fits := writeIfFits(tt.v, tt.bufLimit)
			if n != tt.wantN || fits != tt.wantFits {
				t.Fatalf("writeIfFits() = (%d, %v), want (%d, %v)", n, fits, tt.wantN, tt.wantFits)
			}
		})
	}
}

func TestPackNullTerminatedList(t *testing.T) {
	payload, result := packNullTerminatedList([]string{"a", "bb"})
	if string(payload) != "a\x00bb\x00" {
		t.Fatalf("payload = %q", payload)
	}
	count := uint32(result >> 32)
	byteCount := uint32(result)
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if byteCount != uint32(len(payload)) {
		t.Fatalf("byteCount = %d, want %d", byteCount, len(payload))
	}
}

func TestPackNullTerminatedList_empty(t *testing.T) {
	payload, result := packNullTerminatedList(nil)
	if len(payload) != 0 || result != 0 {
		t.Fatalf("payload=%v result=%d, want empty", payload, result)
	}
}

func TestPackUnpackBodyResult(t *testing.T) {
	for _, tt := range []struct {
		n   uint32
		eof bool
	}{
		{0, false},
		{0, true},
		{4096, false},
		{4096, true},
	} {
		r := packBodyResult(tt.n, tt.eof)
		n, eof := unpackBodyResult(r)
		if n != tt.n || eof != tt.eof {
			t.Fatalf("roundtrip(%d,%v) = (%d,%v)", tt.n, tt.eof, n, eof)
		}
	}
}

func TestPackUnpackContextNext(t *testing.T) {
	for _, tt := range []struct {
		guestCtx uint32
		proceed  bool
	}{
		{0, false},
		{0, true},
		{0xdeadbeef, true},
		{0xdeadbeef, false},
	} {
		r := packContextNext(tt.guestCtx, tt.proceed)
		guestCtx, proceed := unpackContextNext(r)
		if guestCtx != tt.guestCtx || proceed != tt.proceed {
			t.Fatalf("roundtrip(%#x,%v) = (%#x,%v)", tt.guestCtx, tt.proceed, guestCtx, proceed)
		}
	}
}

func TestReadBodyChunk(t *testing.T) {
	body := []byte("hello world")
	var cursor uint32

	chunk, eof := readBodyChunk(&cursor, body, 5)
	if string(chunk) != "hello" || eof {
		t.Fatalf("first chunk = %q eof=%v", chunk, eof)
	}
	if cursor != 5 {
		t.Fatalf("cursor = %d, want 5", cursor)
	}

	chunk, eof = readBodyChunk(&cursor, body, 100)
	if string(chunk) != " world" || !eof {
		t.Fatalf("second chunk = %q eof=%v", chunk, eof)
	}
	if cursor != uint32(len(body)) {
		t.Fatalf("cursor = %d, want %d", cursor, len(body))
	}

	// A read at EOF returns an empty chunk and stays eof.
	chunk, eof = readBodyChunk(&cursor, body, 100)
	if len(chunk) != 0 || !eof {
		t.Fatalf("read at EOF = %q eof=%v, want empty/true", chunk, eof)
	}
}

func TestReadBodyChunk_emptyBody(t *testing.T) {
	var cursor uint32
	chunk, eof := readBodyChunk(&cursor, nil, 10)
	if len(chunk) != 0 || !eof {
		t.Fatalf("chunk = %q eof=%v, want empty/true", chunk, eof)
	}
}
