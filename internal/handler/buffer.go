package handler

// ResponseBuffer interposes a downstream response so a guest can observe
// and rewrite it from handle_response before any byte reaches the wire
// (spec §3 ResponseBuffer, §4.5). It is only attached when
// handler.FeatureBufferResponse is active.
//
// It is exported so a framework adapter can wire its Write method in as the
// downstream handler's response writer, and call AddTrailer for whatever
// trailers that handler sets; the lifecycle driver owns constructing it and
// flushing it via Release, so adapters never need to read it back.
//
// While attached, no bytes, trailers, or termination reach the client;
// release flushes them in order body, then trailers, then terminate.
type ResponseBuffer struct {
	body      []byte
	trailers  *headerMultimap
	terminate func() error
	released  bool
}

// NewResponseBuffer constructs an empty buffer.
func NewResponseBuffer() *ResponseBuffer {
	return &ResponseBuffer{trailers: newHeaderMultimap()}
}

// Write accumulates a chunk the downstream handler wrote, matching
// io.Writer so an adapter can plug this in as the response's Writer.
func (b *ResponseBuffer) Write(p []byte) (int, error) {
	b.body = append(b.body, p...)
	return len(p), nil
}

// Replace overwrites the entire buffered body. Used for the guest's first
// write_body call in a phase (the sticky replace-then-append rule of
// spec §4.5 / §9 lives in requestState, not here).
func (b *ResponseBuffer) Replace(p []byte) {
	b.body = append(b.body[:0], p...)
}

// Append is an explicit alias for Write that doesn't return the io.Writer
// signature noise, used by the ABI's write_body implementation.
func (b *ResponseBuffer) Append(p []byte) {
	b.body = append(b.body, p...)
}

// Body returns the buffered bytes accumulated so far.
func (b *ResponseBuffer) Body() []byte { return b.body }

// AddTrailer intercepts a downstream trailer write.
func (b *ResponseBuffer) AddTrailer(name, value string) { b.trailers.Add(name, value) }

// SetTerminator stores the deferred "end" callback (e.g. the downstream
// handler's completion signal), invoked only at Release.
func (b *ResponseBuffer) SetTerminator(f func() error) { b.terminate = f }

// Release flushes body, then trailers, then invokes the terminator, in
// that order, exactly once.
func (b *ResponseBuffer) Release(writeBody func([]byte) error, addTrailers func([][2]string)) error {
	if b.released {
		return nil
	}
	b.released = true
	if err := writeBody(b.body); err != nil {
		return err
	}
	if pairs := b.trailers.Pairs(); len(pairs) > 0 {
		addTrailers(pairs)
	}
	if b.terminate != nil {
		return b.terminate()
	}
	return nil
}
