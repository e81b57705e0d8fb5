package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/wasmhttp/host-go/api/handler"
)

// compileHost registers every function of the http_handler ABI catalog
// (spec §4.2). Each is a thin wrapper: it reads arguments out of guest
// memory, delegates to requestState/Host/responseBuffer, and writes results
// back per the write-if-fits, null-terminated-list, or body-result wire
// protocols (encoding.go).
func (r *Runtime) compileHost(ctx context.Context) (wazero.CompiledModule, error) {
	compiled, err := r.runtime.NewHostModuleBuilder(handler.HostModule).
		ExportFunction(handler.FuncEnableFeatures, r.enableFeatures,
			handler.FuncEnableFeatures, "want").
		ExportFunction(handler.FuncGetConfig, r.getConfig,
			handler.FuncGetConfig, "buf", "buf_limit").
		ExportFunction(handler.FuncGetMethod, r.getMethod,
			handler.FuncGetMethod, "buf", "buf_limit").
		ExportFunction(handler.FuncGetURI, r.getURI,
			handler.FuncGetURI, "buf", "buf_limit").
		ExportFunction(handler.FuncSetURI, r.setURI,
			handler.FuncSetURI, "uri", "uri_len").
		ExportFunction(handler.FuncGetProtocolVersion, r.getProtocolVersion,
			handler.FuncGetProtocolVersion, "buf", "buf_limit").
		ExportFunction(handler.FuncGetStatusCode, r.getStatusCode,
			handler.FuncGetStatusCode).
		ExportFunction(handler.FuncSetStatusCode, r.setStatusCode,
			handler.FuncSetStatusCode, "status_code").
		ExportFunction(handler.FuncGetHeaderNames, r.getHeaderNames,
			handler.FuncGetHeaderNames, "kind", "buf", "buf_limit").
		ExportFunction(handler.FuncGetHeaderValues, r.getHeaderValues,
			handler.FuncGetHeaderValues, "kind", "name", "name_len", "buf", "buf_limit").
		ExportFunction(handler.FuncSetHeaderValue, r.setHeaderValue,
			handler.FuncSetHeaderValue, "kind", "name", "name_len", "value", "value_len").
		ExportFunction(handler.FuncReadBody, r.readBody,
			handler.FuncReadBody, "kind", "buf", "buf_len").
		ExportFunction(handler.FuncWriteBody, r.writeBody,
			handler.FuncWriteBody, "kind", "buf", "buf_len").
		ExportFunction(handler.FuncLog, r.log,
			handler.FuncLog, "level", "buf", "buf_len").
		ExportFunction(handler.FuncLogEnabled, r.logEnabled,
			handler.FuncLogEnabled, "level").
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error compiling host: %w", err)
	}
	return compiled, nil
}

// enableFeatures implements handler.FuncEnableFeatures. During guest
// initialization it mutates the shared initState; afterwards it mutates the
// current request's mask. Either way the union is monotonic: features are
// only ever added (spec §8).
func (r *Runtime) enableFeatures(ctx context.Context, want uint32) uint32 {
	w := handler.Features(want)
	if is, ok := initStateFromContext(ctx); ok {
		is.features |= w
		return uint32(is.features)
	}
	rs := requestStateFromContext(ctx)
	rs.features |= w
	return uint32(rs.features)
}

// getConfig implements handler.FuncGetConfig.
func (r *Runtime) getConfig(ctx context.Context, mod wazeroapi.Module, buf, bufLimit uint32) uint32 {
	return writeBytesIfFits(ctx, mod, buf, bufLimit, r.guestConfig)
}

// getMethod implements handler.FuncGetMethod.
func (r *Runtime) getMethod(ctx context.Context, mod wazeroapi.Module, buf, bufLimit uint32) uint32 {
	rs := requestStateFromContext(ctx)
	return writeStringIfFits(ctx, mod, buf, bufLimit, rs.host.GetMethod(ctx))
}

// getURI implements handler.FuncGetURI.
func (r *Runtime) getURI(ctx context.Context, mod wazeroapi.Module, buf, bufLimit uint32) uint32 {
	rs := requestStateFromContext(ctx)
	return writeStringIfFits(ctx, mod, buf, bufLimit, rs.host.GetURI(ctx))
}

// setURI implements handler.FuncSetURI.
func (r *Runtime) setURI(ctx context.Context, mod wazeroapi.Module, uri, uriLen uint32) {
	rs := requestStateFromContext(ctx)
	var u string
	if uriLen > 0 {
		u = mustReadString(ctx, mod.Memory(), "uri", uri, uriLen)
	}
	rs.host.SetURI(ctx, u)
}

// getProtocolVersion implements handler.FuncGetProtocolVersion.
func (r *Runtime) getProtocolVersion(ctx context.Context, mod wazeroapi.Module, buf, bufLimit uint32) uint32 {
	rs := requestStateFromContext(ctx)
	return writeStringIfFits(ctx, mod, buf, bufLimit, rs.host.GetProtocolVersion(ctx))
}

// getStatusCode implements handler.FuncGetStatusCode.
func (r *Runtime) getStatusCode(ctx context.Context) uint32 {
	rs := requestStateFromContext(ctx)
	return rs.host.GetStatusCode(ctx)
}

// setStatusCode implements handler.FuncSetStatusCode.
func (r *Runtime) setStatusCode(ctx context.Context, code uint32) {
	rs := requestStateFromContext(ctx)
	if rs.phase == phaseResponse && rs.responseBuffer == nil {
		panicTrap("set_status_code: response already sent (buffer_response was not enabled)")
	}
	rs.host.SetStatusCode(ctx, code)
}

// getHeaderNames implements handler.FuncGetHeaderNames.
func (r *Runtime) getHeaderNames(ctx context.Context, mod wazeroapi.Module, kind, buf, bufLimit uint32) uint64 {
	rs := requestStateFromContext(ctx)
	names := r.headerNames(ctx, rs, handler.HeaderKind(kind))
	return writeNullTerminatedList(ctx, mod, buf, bufLimit, names)
}

// getHeaderValues implements handler.FuncGetHeaderValues.
func (r *Runtime) getHeaderValues(ctx context.Context, mod wazeroapi.Module, kind, name, nameLen, buf, bufLimit uint32) uint64 {
	if nameLen == 0 {
		panicTrap("get_header_values: name_len must not be zero")
	}
	rs := requestStateFromContext(ctx)
	n := mustReadString(ctx, mod.Memory(), "name", name, nameLen)
	values := r.headerValues(ctx, rs, handler.HeaderKind(kind), n)
	return writeNullTerminatedList(ctx, mod, buf, bufLimit, values)
}

// setHeaderValue implements handler.FuncSetHeaderValue.
func (r *Runtime) setHeaderValue(ctx context.Context, mod wazeroapi.Module, kind, name, nameLen, value, valueLen uint32) {
	if nameLen == 0 {
		panicTrap("set_header_value: name_len must not be zero")
	}
	rs := requestStateFromContext(ctx)
	n := mustReadString(ctx, mod.Memory(), "name", name, nameLen)
	v := mustReadString(ctx, mod.Memory(), "value", value, valueLen)
	r.setHeaderValueKind(ctx, rs, handler.HeaderKind(kind), n, v)
}

func (r *Runtime) headerNames(ctx context.Context, rs *requestState, kind handler.HeaderKind) []string {
	if kind == handler.HeaderKindResponseTrailers {
		requireResponseBuffer(rs, "get_header_names(RESPONSE_TRAILERS)")
		return rs.responseBuffer.trailers.Names()
	}
	validateHeaderKind(kind)
	return rs.host.GetHeaderNames(ctx, kind)
}

func (r *Runtime) headerValues(ctx context.Context, rs *requestState, kind handler.HeaderKind, name string) []string {
	if kind == handler.HeaderKindResponseTrailers {
		requireResponseBuffer(rs, "get_header_values(RESPONSE_TRAILERS)")
		return joinHeaderValues(name, rs.responseBuffer.trailers.Values(name))
	}
	validateHeaderKind(kind)
	return joinHeaderValues(name, rs.host.GetHeaderValues(ctx, kind, name))
}

// joinHeaderValues implements spec §4.2's multi-value rule: Set-Cookie
// keeps its list-of-values shape (it can't be concatenated without
// corrupting each cookie's own Expires=... comma), while every other header
// is folded into a single comma-space-joined value, matching how most HTTP
// libraries hand a guest "the header value" as one string.
func joinHeaderValues(name string, values []string) []string {
	if len(values) <= 1 || strings.EqualFold(name, "set-cookie") {
		return values
	}
	return []string{strings.Join(values, ", ")}
}

func (r *Runtime) setHeaderValueKind(ctx context.Context, rs *requestState, kind handler.HeaderKind, name, value string) {
	if kind == handler.HeaderKindResponseTrailers {
		requireResponseBuffer(rs, "set_header_value(RESPONSE_TRAILERS)")
		rs.responseBuffer.trailers.Set(name, value)
		return
	}
	if kind == handler.HeaderKindResponse && rs.phase == phaseResponse && rs.responseBuffer == nil {
		panicTrap("set_header_value(RESPONSE): response already sent (buffer_response was not enabled)")
	}
	validateHeaderKind(kind)
	rs.host.SetHeaderValue(ctx, kind, name, value)
}

func validateHeaderKind(kind handler.HeaderKind) {
	switch kind {
	case handler.HeaderKindRequest, handler.HeaderKindResponse, handler.HeaderKindRequestTrailers, handler.HeaderKindResponseTrailers:
		return
	default:
		panicTrap("unknown header kind %d", kind)
	}
}

func requireResponseBuffer(rs *requestState, op string) {
	if rs.responseBuffer == nil {
		panicTrap("%s requires buffer_response", op)
	}
}

// readBody implements handler.FuncReadBody.
func (r *Runtime) readBody(ctx context.Context, mod wazeroapi.Module, kind, buf, bufLen uint32) uint64 {
	rs := requestStateFromContext(ctx)
	switch handler.BodyKind(kind) {
	case handler.BodyKindRequest:
		if !rs.features.IsEnabled(handler.FeatureBufferRequest) {
			panicTrap("read_body(REQUEST) requires buffer_request")
		}
		chunk, eof := readBodyChunk(&rs.requestBodyCursor, rs.requestBody, bufLen)
		writeChunk(ctx, mod, buf, chunk)
		return packBodyResult(uint32(len(chunk)), eof)
	case handler.BodyKindResponse:
		if rs.phase != phaseResponse {
			panicTrap("read_body(RESPONSE) is only valid during handle_response")
		}
		requireResponseBuffer(rs, "read_body(RESPONSE)")
		chunk, eof := readBodyChunk(&rs.responseBodyCursor, rs.responseBuffer.Body(), bufLen)
		writeChunk(ctx, mod, buf, chunk)
		return packBodyResult(uint32(len(chunk)), eof)
	default:
		panicTrap("unknown body kind %d", kind)
		return 0
	}
}

// writeBody implements handler.FuncWriteBody. See spec §4.5 and §9 for the
// replace-then-append and direct-write rules implemented here.
func (r *Runtime) writeBody(ctx context.Context, mod wazeroapi.Module, kind, buf, bufLen uint32) {
	rs := requestStateFromContext(ctx)
	data := mustRead(ctx, mod.Memory(), "body", buf, bufLen)

	switch handler.BodyKind(kind) {
	case handler.BodyKindRequest:
		if rs.phase != phaseRequest {
			// spec §9 open question: no phase makes this meaningful; trap.
			panicTrap("write_body(REQUEST) is only valid during handle_request")
		}
		if !rs.requestBodyReplaced {
			rs.requestBody = append([]byte(nil), data...)
			rs.requestBodyReplaced = true
		} else {
			rs.requestBody = append(rs.requestBody, data...)
		}
	case handler.BodyKindResponse:
		switch rs.phase {
		case phaseRequest:
			// Guest-populated direct response: writes go straight through,
			// to the buffer if one is attached, else to the host's sink.
			if rs.responseBuffer != nil {
				rs.responseBuffer.Append(data)
			} else {
				if _, err := rs.host.ResponseBodyWriter(ctx).Write(data); err != nil {
					panicTrap("write_body(RESPONSE): %v", err)
				}
			}
		case phaseResponse:
			requireResponseBuffer(rs, "write_body(RESPONSE) during handle_response")
			if !rs.responseBodyReplaced {
				rs.responseBuffer.Replace(data)
				rs.responseBodyReplaced = true
			} else {
				rs.responseBuffer.Append(data)
			}
		}
	default:
		panicTrap("unknown body kind %d", kind)
	}
}

// log implements handler.FuncLog.
func (r *Runtime) log(ctx context.Context, mod wazeroapi.Module, level int32, buf, bufLen uint32) {
	msg := mustReadString(ctx, mod.Memory(), "message", buf, bufLen)
	r.logFn(ctx, handler.LogLevel(level), msg)
}

// logEnabled implements handler.FuncLogEnabled. This host always answers
// advisory true except for DEBUG, which callers rarely want paid for in a
// hot path; it never inspects Runtime.logFn to decide.
func (r *Runtime) logEnabled(ctx context.Context, level int32) uint32 {
	if handler.LogLevel(level) == handler.LogLevelDebug {
		return 0
	}
	return 1
}
