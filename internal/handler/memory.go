package handler

import (
	"context"

	wazeroapi "github.com/tetratelabs/wazero/api"
)

// This file holds the thin wazeroapi.Module-touching wrappers around the
// pure wire encodings in encoding.go. Every offset and length here is
// untrusted guest input (spec §7); mustRead, mustReadString and the write
// helpers below turn an out-of-range access into a trap.

var emptyBytes = make([]byte, 0)

// mustRead reads byteCount bytes at offset out of mod's memory, trapping
// the guest if the range is out of bounds.
func mustRead(ctx context.Context, mem wazeroapi.Memory, fieldName string, offset, byteCount uint32) []byte {
	if byteCount == 0 {
		return emptyBytes
	}
	buf, ok := mem.Read(ctx, offset, byteCount)
	if !ok {
		panicTrap("out of memory reading %s (offset=%d, len=%d)", fieldName, offset, byteCount)
	}
	return buf
}

func mustReadString(ctx context.Context, mem wazeroapi.Memory, fieldName string, offset, byteCount uint32) string {
	if byteCount == 0 {
		return ""
	}
	return string(mustRead(ctx, mem, fieldName, offset, byteCount))
}

// writeBytesIfFits implements the write-if-fits protocol for a raw byte
// slice, returning n regardless of whether it fit (spec §4.2).
func writeBytesIfFits(ctx context.Context, mod wazeroapi.Module, buf, bufLimit uint32, v []byte) uint32 {
	n, fits := writeIfFits(v, bufLimit)
	if fits {
		if ok := mod.Memory().Write(ctx, buf, v); !ok {
			panicTrap("out of memory writing to buf (offset=%d, len=%d)", buf, n)
		}
	}
	return n
}

func writeStringIfFits(ctx context.Context, mod wazeroapi.Module, buf, bufLimit uint32, v string) uint32 {
	return writeBytesIfFits(ctx, mod, buf, bufLimit, []byte(v))
}

// writeNullTerminatedList implements the null-terminated-list protocol.
func writeNullTerminatedList(ctx context.Context, mod wazeroapi.Module, buf, bufLimit uint32, items []string) uint64 {
	payload, result := packNullTerminatedList(items)
	byteCount := uint32(len(payload))
	if byteCount > 0 && byteCount <= bufLimit {
		if ok := mod.Memory().Write(ctx, buf, payload); !ok {
			panicTrap("out of memory writing list to buf (offset=%d, len=%d)", buf, byteCount)
		}
	}
	return result
}

// writeChunk writes a read_body chunk (already bounds-checked by the
// caller's slicing of a host-owned []byte) to guest memory.
func writeChunk(ctx context.Context, mod wazeroapi.Module, buf uint32, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if ok := mod.Memory().Write(ctx, buf, chunk); !ok {
		panicTrap("out of memory writing body chunk (offset=%d, len=%d)", buf, len(chunk))
	}
}
