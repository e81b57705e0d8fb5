package handler

import "fmt"

// trap is the panic value used for every host-detected ABI precondition
// violation: an empty header name, an out-of-memory slice, an operation
// invalid for the current phase, or an unknown kind (spec §7, GuestTrap /
// ProtocolError). It is recovered exactly once, at the call boundary in
// Runtime.Handle, which ejects the guest instance and turns the panic into
// a GuestTrap error.
type trap struct {
	reason string
}

func (t trap) Error() string { return "wasm: " + t.reason }

func panicTrap(format string, args ...any) {
	panic(trap{reason: fmt.Sprintf(format, args...)})
}

// GuestTrap is returned by Runtime.Handle when the guest trapped,
// either because the host detected an ABI precondition violation or the
// guest itself hit an unreachable instruction or an out-of-bounds access
// that wazero turned into a panic. The instance that trapped is never
// reused.
type GuestTrap struct {
	Cause error
}

func (e *GuestTrap) Error() string { return "wasm: guest trapped: " + e.Cause.Error() }
func (e *GuestTrap) Unwrap() error { return e.Cause }

// SetupError wraps a fatal failure during NewRuntime: compilation, a
// missing required export, or a guest trap during initialization. No
// middleware is returned when this occurs.
type SetupError struct {
	Cause error
}

func (e *SetupError) Error() string { return "wasm: setup failed: " + e.Cause.Error() }
func (e *SetupError) Unwrap() error { return e.Cause }
