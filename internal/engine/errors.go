package engine

import (
	"errors"
	"fmt"
)

// Error taxonomy for the write coordinator and its callers. Validation,
// conflict, trust, and invariant errors surface directly; transient errors
// carry a typed marker so callers can decide whether to retry.
var (
	// ErrValidation marks malformed input: empty title/target, a too-short
	// rationale, an unrecognised search mode.
	ErrValidation = errors.New("validation error")

	// ErrConflict marks an at-most-one-active violation, or a supersede
	// referencing an id that is not currently active.
	ErrConflict = errors.New("conflict error")

	// ErrInvariant marks an immutability, acyclic-evolution, referential
	// integrity, or status-monotonicity violation.
	ErrInvariant = errors.New("invariant violation")

	// ErrTransition is the status-monotonicity subtype of ErrInvariant.
	ErrTransition = fmt.Errorf("%w: illegal status transition", ErrInvariant)

	// ErrTrustBoundary marks a write rejected by the configured trust
	// policy (an agent-sourced write while in human_only mode).
	ErrTrustBoundary = errors.New("trust boundary violation")

	// ErrIntegrity marks a problem detected during crash recovery that
	// requires operator action; it halts initialisation.
	ErrIntegrity = errors.New("integrity violation")

	// ErrTransient marks a condition safe to retry: lock unavailable,
	// embedding provider timeout.
	ErrTransient = errors.New("transient error")
)

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsTransient reports whether err is or wraps ErrTransient.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsValidation reports whether err is or wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsInvariant reports whether err is or wraps ErrInvariant.
func IsInvariant(err error) bool { return errors.Is(err, ErrInvariant) }

// IsTrustBoundary reports whether err is or wraps ErrTrustBoundary.
func IsTrustBoundary(err error) bool { return errors.Is(err, ErrTrustBoundary) }
