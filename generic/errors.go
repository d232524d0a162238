/*
errors.go - Centralized error types for the ledger and the services on top

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Idempotency and delivery uniqueness
  2. Inventory errors - Residual stock shortages
  3. Lookup errors - Missing brokers, runs, leads
  4. Concurrency errors - Snapshot drift between preview and confirm

USAGE:
  if errors.Is(err, generic.ErrDuplicateDelivery) {
      // lead was already handed over
  }

SEE ALSO:
  - ledger.go: Uses these errors
  - leads/ledger.go: Raises DuplicateDeliveryError
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateDelivery is returned when a lead is delivered twice.
	ErrDuplicateDelivery = errors.New("lead already delivered")

	// ErrInsufficientResidual is returned when a supervisor assigns more
	// leftover leads than a run has.
	ErrInsufficientResidual = errors.New("insufficient residual stock")

	// ErrDuplicateEntity is returned when an entity is created with an ID
	// that is already taken.
	ErrDuplicateEntity = errors.New("entity already exists")

	// ErrEntityNotFound is returned when a referenced entity doesn't exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrSnapshotChanged is returned when a confirm is computed from other
	// data than the preview it claims to confirm.
	ErrSnapshotChanged = errors.New("broker snapshot changed since preview")

	// ErrInvalidWindow is returned when a window ends before it starts.
	ErrInvalidWindow = errors.New("invalid window: end before start")

	// ErrInvalidAmount is returned for non-positive quantities where a
	// positive one is required.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateDeliveryError identifies the existing delivery of a lead.
type DuplicateDeliveryError struct {
	LeadID       string
	EntityID     EntityID
	ExistingTxID TransactionID
}

func (e *DuplicateDeliveryError) Error() string {
	return fmt.Sprintf("lead %s already delivered to %s (tx: %s)",
		e.LeadID, e.EntityID, e.ExistingTxID)
}

func (e *DuplicateDeliveryError) Unwrap() error {
	return ErrDuplicateDelivery
}

// InsufficientResidualError provides details about a residual shortage.
type InsufficientResidualError struct {
	RunID     string
	Resource  ResourceType
	Available int
	Requested int
}

func (e *InsufficientResidualError) Error() string {
	return fmt.Sprintf("insufficient residual for %s in run %s: available %d, requested %d",
		e.Resource.ResourceID(), e.RunID, e.Available, e.Requested)
}

func (e *InsufficientResidualError) Unwrap() error {
	return ErrInsufficientResidual
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrEntityNotFound
}

// NotFound is shorthand for a *NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsConflict returns true if the request clashes with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicateEntity) ||
		errors.Is(err, ErrDuplicateDelivery) ||
		errors.Is(err, ErrInsufficientResidual) ||
		errors.Is(err, ErrSnapshotChanged)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
