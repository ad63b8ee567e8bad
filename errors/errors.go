package errors

import (
	"fmt"
	"strings"

	wasmhost "github.com/wippyai/wasm-host"
)

// Phase indicates which part of the host the error came from.
type Phase string

const (
	PhaseRegistry  Phase = "registry"  // module registration and lookup
	PhaseQueue     Phase = "queue"     // event posting and draining
	PhaseDispatch  Phase = "dispatch"  // worker-pool delivery
	PhaseEngine    Phase = "engine"    // execution-engine boundary
	PhaseLifecycle Phase = "lifecycle" // host init and shutdown
)

// Kind categorizes the error.
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindNotFound          Kind = "not_found"
	KindAlreadyRegistered Kind = "already_registered"
	KindResourceExhausted Kind = "resource_exhausted"
	KindEngineFault       Kind = "engine_fault"
	KindNotInitialized    Kind = "not_initialized"
)

// Error is the structured error type used throughout the host.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Module wasmhost.Handle
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" module ")
		b.WriteString(string(e.Module))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two Errors match on Kind;
// when the target carries a Phase it must match too, so a bare
// &Error{Kind: ...} works as a kind-wide sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Convenience constructors for the host's error taxonomy.

// InvalidArgument reports a bad handle, out-of-range type, or nil required
// reference. Never retried.
func InvalidArgument(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: sprintf(detail, args...),
	}
}

// NotFound reports an absent module, function, or context.
func NotFound(phase Phase, module wasmhost.Handle, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Module: module,
		Detail: what,
	}
}

// AlreadyRegistered reports a duplicate module handle.
func AlreadyRegistered(module wasmhost.Handle) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindAlreadyRegistered,
		Module: module,
	}
}

// Exhausted reports an allocation failure or a full queue.
func Exhausted(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindResourceExhausted,
		Detail: detail,
	}
}

// QueueFull reports a bounded queue rejecting a post.
func QueueFull(capacity int) *Error {
	return &Error{
		Phase:  PhaseQueue,
		Kind:   KindResourceExhausted,
		Detail: fmt.Sprintf("queue full (capacity %d)", capacity),
	}
}

// EngineFault reports a runtime fault from the execution engine after the
// retry bound was exhausted.
func EngineFault(module wasmhost.Handle, fault string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindEngineFault,
		Module: module,
		Detail: fault,
		Cause:  cause,
	}
}

// NotInitialized reports an operation against a host that has not been
// started or was already shut down.
func NotInitialized(phase Phase) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindNotInitialized,
	}
}

// Wrap attaches phase and kind to an underlying error.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Kind predicates. Each walks the error chain so wrapped causes still match.

func IsInvalidArgument(err error) bool   { return hasKind(err, KindInvalidArgument) }
func IsNotFound(err error) bool          { return hasKind(err, KindNotFound) }
func IsAlreadyRegistered(err error) bool { return hasKind(err, KindAlreadyRegistered) }
func IsExhausted(err error) bool         { return hasKind(err, KindResourceExhausted) }
func IsEngineFault(err error) bool       { return hasKind(err, KindEngineFault) }
func IsNotInitialized(err error) bool    { return hasKind(err, KindNotInitialized) }

func hasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
