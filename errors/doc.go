// Package errors provides structured error types for the wasm-host library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The taxonomy is small and closed: invalid_argument, not_found,
// already_registered, resource_exhausted, engine_fault, not_initialized.
//
// Use the convenience constructors:
//
//	err := errors.NotFound(errors.PhaseRegistry, handle, "module")
//	err := errors.QueueFull(64)
//
// All errors implement the standard error interface and support errors.Is;
// the kind predicates check a whole error chain:
//
//	if errors.IsNotFound(err) { ... }
package errors
