// Package api includes types shared by the host and the handler ABI under
// api/handler. Nothing here is specific to the HTTP framework (net/http,
// fasthttp, ...) embedding the bridge.
package api

import "context"

// Memory is the name of the only memory a guest can export, per the
// WebAssembly Core 1.0 spec: a module may not export more than one memory.
const Memory = "memory"

// Closer allows a resource to be released. The context parameter allows
// timeout via context.WithTimeout.
type Closer interface {
	// Close releases resources held by this object.
	Close(ctx context.Context) error
}

// LogFunc is the signature of the callback invoked by the guest's "log"
// ABI function. It never returns an error: a host unwilling or unable to
// log a message simply drops it.
type LogFunc func(ctx context.Context, level LogLevel, message string)

// LogLevel mirrors the guest-visible log levels of the "log" and
// "log_enabled" ABI functions. Lower is more verbose.
type LogLevel int32

const (
	LogLevelDebug LogLevel = -1
	LogLevelInfo  LogLevel = 0
	LogLevelWarn  LogLevel = 1
	LogLevelError LogLevel = 2
	LogLevelNone  LogLevel = 3
)
