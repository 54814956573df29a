package alembic

import (
	"errors"
	"fmt"

	"github.com/xraph/go-utils/errs"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeNotFound indicates a key claimed by no provider
	CodeNotFound = "DEPENDENCY_NOT_FOUND"

	// CodeCycle indicates re-entrant resolution of a key within one call
	CodeCycle = "CYCLE_DETECTED"

	// CodeDuplicate indicates two registrations claiming the same key
	CodeDuplicate = "DUPLICATE_DEPENDENCY"

	// CodeFrozen indicates a mutating operation on a frozen container
	CodeFrozen = "CONTAINER_FROZEN"

	// CodeConstruction indicates a user-supplied constructor failed
	CodeConstruction = "CONSTRUCTION_FAILED"

	// CodeNotClaimed is the internal fallthrough signal between providers
	CodeNotClaimed = "NOT_CLAIMED"

	// CodeKeyMiss is the per-candidate miss signal inside a getter namespace
	CodeKeyMiss = "KEY_MISS"

	// CodeSandboxOnly indicates an override attempted outside a sandbox
	CodeSandboxOnly = "SANDBOX_ONLY"

	// CodeProviderNotBound indicates registration on an unattached provider
	CodeProviderNotBound = "PROVIDER_NOT_BOUND"

	// CodeInvalidScope indicates misuse of a scope token
	CodeInvalidScope = "INVALID_SCOPE"

	// CodeTypeMismatch indicates a type mismatch during typed resolution
	CodeTypeMismatch = "TYPE_MISMATCH"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// ErrNotClaimed is returned by a provider to decline a key it was consulted
// for, letting the container continue with later providers.
var ErrNotClaimed = errs.NewError(CodeNotClaimed, "key not claimed by this provider", nil)

// ErrKeyMiss is returned by a namespace getter to signal "no value for this
// name here", falling through to the next candidate by priority.
var ErrKeyMiss = errs.NewError(CodeKeyMiss, "no value for key in this getter", nil)

// ErrFrozen is returned when a mutating operation is attempted after Freeze.
var ErrFrozen = errs.NewError(CodeFrozen, "container is frozen", nil)

// ErrSandboxOnly is returned when an override is attempted on a container
// that is not a clone-based sandbox.
var ErrSandboxOnly = errs.NewError(CodeSandboxOnly, "overrides are only available inside sandboxes", nil)

// ErrProviderNotBound is returned when a provider's register methods are
// called before the provider is attached to a container.
var ErrProviderNotBound = errs.NewError(CodeProviderNotBound, "provider is not attached to a container", nil)

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

// ErrNotFound creates an error for a key claimed by no provider
func ErrNotFound(key Key) *errs.Error {
	return errs.NewError(
		CodeNotFound,
		fmt.Sprintf("dependency %s not found", keyLabel(key)),
		nil,
	).WithContext("key", keyLabel(key)).(*errs.Error)
}

// ErrDuplicate creates an error for a key registered twice
func ErrDuplicate(key Key) *errs.Error {
	return errs.NewError(
		CodeDuplicate,
		fmt.Sprintf("dependency %s is already registered", keyLabel(key)),
		nil,
	).WithContext("key", keyLabel(key)).(*errs.Error)
}

// ErrConstruction wraps a constructor failure without masking the cause
func ErrConstruction(key Key, cause error) *errs.Error {
	return errs.NewError(
		CodeConstruction,
		fmt.Sprintf("construction of %s failed", keyLabel(key)),
		cause,
	).WithContext("key", keyLabel(key)).(*errs.Error)
}

// ErrInvalidScope creates an error for scope token misuse
func ErrInvalidScope(s *Scope, reason string) *errs.Error {
	return errs.NewError(
		CodeInvalidScope,
		fmt.Sprintf("scope %s: %s", scopeLabel(s), reason),
		nil,
	).WithContext("scope", scopeLabel(s)).(*errs.Error)
}

// ErrTypeMismatch creates an error for typed resolution returning the wrong type
func ErrTypeMismatch(key Key, actual any) *errs.Error {
	return errs.NewError(
		CodeTypeMismatch,
		fmt.Sprintf("dependency %s type mismatch: got %T", keyLabel(key), actual),
		nil,
	).WithContext("key", keyLabel(key)).
		WithContext("actual_type", fmt.Sprintf("%T", actual)).(*errs.Error)
}

// =============================================================================
// CYCLE ERROR
// =============================================================================

// CycleError reports re-entrant resolution. Trace holds the ordered chain of
// in-progress keys, closed by the repeated key ([A B A] for A -> B -> A).
type CycleError struct {
	Err *errs.Error

	Trace []Key
}

func (e *CycleError) Error() string { return e.Err.Error() }

func (e *CycleError) Unwrap() error { return e.Err }

// ErrCycle creates a CycleError carrying the full ordered chain
func ErrCycle(trace []Key) *CycleError {
	return &CycleError{
		Err: errs.NewError(
			CodeCycle,
			fmt.Sprintf("dependency cycle detected: %s", renderTrace(trace)),
			nil,
		).WithContext("cycle", renderTrace(trace)).(*errs.Error),
		Trace: trace,
	}
}

// isNotClaimed reports the inter-provider fallthrough signal.
func isNotClaimed(err error) bool {
	return errors.Is(err, ErrNotClaimed)
}

// isKeyMiss reports the per-getter fallthrough signal.
func isKeyMiss(err error) bool {
	return errors.Is(err, ErrKeyMiss)
}

// renderTrace renders a key chain as "a -> b -> a".
func renderTrace(trace []Key) string {
	out := ""
	for i, k := range trace {
		if i > 0 {
			out += " -> "
		}
		out += keyLabel(k)
	}
	return out
}
