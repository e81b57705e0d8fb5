package handler

// This file holds the pure (no wazero, no I/O) halves of the ABI's wire
// encodings described in spec §4.2 and the design notes in §9: the
// write-if-fits protocol, the null-terminated-list protocol, the body-result
// encoding, and the handle_request ctx/next packing. Keeping them free of
// wazeroapi.Module makes them trivial to unit test; abi.go supplies the thin
// memory-reading/writing wrappers around these.

// writeIfFits implements the write-if-fits protocol: it writes nothing
// itself, it only reports how many bytes the caller should write at buf and whether
// they fit within bufLimit.
func writeIfFits(v []byte, bufLimit uint32) (n uint32, fits bool) {
	n = uint32(len(v))
	fits = n > 0 && n <= bufLimit
	return
}

// packNullTerminatedList implements the null-terminated-list protocol: each
// item is followed by a single 0x00 byte, and the packed result multiplexes
// the item count into the high 32 bits.
//
// byteCount is the sum of each item's UTF-8 length plus one terminator per
// item, matching the invariant in spec §8:
// count*(sum of item_lens+count) == byteCount is NOT implied in general;
// rather byteCount == sum(item_lens) + count.
func packNullTerminatedList(items []string) (payload []byte, result uint64) {
	var byteCount int
	for _, it := range items {
		byteCount += len(it) + 1
	}
	payload = make([]byte, 0, byteCount)
	for _, it := range items {
		payload = append(payload, it...)
		payload = append(payload, 0)
	}
	result = uint64(len(items))<<32 | uint64(byteCount)
	return
}

// packBodyResult implements the body-result encoding: low 32 bits are the
// byte count written this call, bit 32 is set once end-of-stream is reached.
func packBodyResult(n uint32, eof bool) uint64 {
	r := uint64(n)
	if eof {
		r |= 1 << 32
	}
	return r
}

// unpackBodyResult is the guest-side inverse, used by tests to assert on
// what the host would have returned.
func unpackBodyResult(r uint64) (n uint32, eof bool) {
	return uint32(r), r&(1<<32) != 0
}

// packContextNext packs the ctx_next result of handle_request: the low bit
// is the "proceed to next" flag, the high 32 bits are an opaque guest
// context value round-tripped unmodified to handle_response.
func packContextNext(guestCtx uint32, proceed bool) uint64 {
	r := uint64(guestCtx) << 32
	if proceed {
		r |= 1
	}
	return r
}

// unpackContextNext is the inverse of packContextNext, used by the lifecycle
// driver to interpret what the guest returned from handle_request.
func unpackContextNext(r uint64) (guestCtx uint32, proceed bool) {
	return uint32(r >> 32), r&1 != 0
}

// readBodyChunk advances *cursor by min(remaining, limit) bytes of body and
// reports whether the cursor has now reached the end (spec §3 cursor
// invariants, §8 concatenation/EOF property). A call at EOF returns an
// empty chunk and eof=true, never advancing past body's length.
func readBodyChunk(cursor *uint32, body []byte, limit uint32) (chunk []byte, eof bool) {
	if *cursor > uint32(len(body)) {
		*cursor = uint32(len(body)) // defensive; cursor invariant forbids this
	}
	remaining := body[*cursor:]
	n := uint32(len(remaining))
	if n > limit {
		n = limit
	}
	chunk = remaining[:n]
	*cursor += n
	eof = *cursor >= uint32(len(body))
	return
}
