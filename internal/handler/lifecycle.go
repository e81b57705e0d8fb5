package handler

import (
	"context"
	"fmt"

	"github.com/wasmhttp/host-go/api/handler"
)

// Handle drives one request across the state machine of spec §4.4:
// INIT -> (optional PRE_READ) -> HANDLE_REQUEST ->
// {NEXT -> HANDLE_RESPONSE -> RELEASE, RESPOND_DIRECTLY -> RELEASE} -> DONE.
//
// A guest that traps at any point is ejected from the pool (never reused)
// and Handle returns a *GuestTrap.
func (r *Runtime) Handle(ctx context.Context) (err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	g, checkoutErr := r.checkout(ctx)
	if checkoutErr != nil {
		return fmt.Errorf("wasm: error checking out guest: %w", checkoutErr)
	}

	trapped := false
	defer func() {
		if rec := recover(); rec != nil {
			t, ok := rec.(trap)
			if !ok {
				// Not a guest ABI violation: either wazero's own panic on a
				// guest trap (unreachable, out-of-bounds) or a host wiring
				// bug (e.g. requestStateFromContext called out of scope).
				// Either way the instance is unsafe to reuse, but only the
				// former is the guest's fault; a wiring bug should fail loud
				// rather than be reported back as a guest trap.
				if _, isHostBug := rec.(string); isHostBug {
					trapped = true
					r.release(ctx, g, trapped)
					panic(rec)
				}
				t = trap{reason: fmt.Sprintf("%v", rec)}
			}
			trapped = true
			err = &GuestTrap{Cause: t}
		} else if ctx.Err() != nil {
			// A watchdog timeout or caller cancellation during the guest
			// call leaves the instance's state undefined; treat it like a
			// trap rather than risk reusing corrupted memory (spec §5).
			trapped = true
			if err == nil {
				err = &GuestTrap{Cause: ctx.Err()}
			}
		}
		r.release(ctx, g, trapped)
	}()

	id, _ := requestIDFromParent(ctx)
	rs := newRequestState(r.host, id, r.Features)

	// Pre-read happens before entering guest invocation scope, precisely so
	// ABI functions never need to suspend (spec §5).
	if rs.features.IsEnabled(handler.FeatureBufferRequest) {
		rs.requestBody = r.host.RequestBody(ctx)
	}
	if rs.features.IsEnabled(handler.FeatureBufferResponse) {
		rs.responseBuffer = NewResponseBuffer()
	}

	reqCtx := scopeContext(ctx, rs)

	result, callErr := g.handleRequest.Call(reqCtx)
	if callErr != nil {
		panicTrap("handle_request: %v", callErr)
	}
	guestCtx, proceed := unpackContextNext(result[0])

	if proceed {
		var isError uint64
		if nextErr := r.host.Next(reqCtx); nextErr != nil {
			isError = 1
		}
		rs.nextCalled = true
		rs.enterResponsePhase()

		if _, callErr := g.handleResponse.Call(reqCtx, uint64(guestCtx), isError); callErr != nil {
			panicTrap("handle_response: %v", callErr)
		}
	}

	if rs.responseBuffer != nil {
		return rs.responseBuffer.Release(
			func(body []byte) error {
				_, writeErr := r.host.ResponseBodyWriter(reqCtx).Write(body)
				return writeErr
			},
			func(pairs [][2]string) { r.host.AddResponseTrailers(reqCtx, pairs) },
		)
	}
	return nil
}

// ResponseBufferFromContext lets a framework adapter's Host.Next
// implementation discover whether the current request is buffering its
// response, so it can route the downstream handler's writes through the
// buffer instead of the real connection. It never panics: outside of a
// guest invocation scope, or when buffering isn't active, it returns
// (nil, false).
func ResponseBufferFromContext(ctx context.Context) (*ResponseBuffer, bool) {
	rs, ok := ctx.Value(requestStateKey{}).(*requestState)
	if !ok || rs.responseBuffer == nil {
		return nil, false
	}
	return rs.responseBuffer, true
}

// RequestBodyFromContext returns the (possibly guest-rewritten) request body
// captured when handler.FeatureBufferRequest is active, so a framework
// adapter's Host.Next implementation can replace the downstream request's
// body reader with it before invoking the wrapped handler. When buffering
// isn't active it returns (nil, false), and the adapter must leave the
// original request body stream untouched.
func RequestBodyFromContext(ctx context.Context) ([]byte, bool) {
	rs, ok := ctx.Value(requestStateKey{}).(*requestState)
	if !ok || !rs.features.IsEnabled(handler.FeatureBufferRequest) {
		return nil, false
	}
	return rs.requestBody, true
}

// RequestIDFromContext returns the correlation ID generated for the request
// currently scoped on ctx, for framework adapters to attach to error
// responses and log lines.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	rs, ok := ctx.Value(requestStateKey{}).(*requestState)
	if !ok {
		return "", false
	}
	return rs.requestID, true
}
