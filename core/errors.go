/*
errors.go - Centralized error taxonomy for the engine

PURPOSE:
  All error kinds in one place. Callers classify with errors.Is against the
  sentinels; structured types carry ids and amounts for the few rejections
  where the caller needs context (insufficient stock/balance).

ERROR CATEGORIES:
  1. Not-found        - missing ticket type, ticket, wristband, festival
  2. Invalid argument - rejected before any lock is taken
  3. Forbidden        - OwnershipGuard rejection
  4. State conflict   - business rule evaluated under the row lock
  5. Capacity         - insufficient stock / insufficient balance
  6. Busy             - lock-wait timeout, transaction never mutated data
  7. Storage          - anything the store could not anticipate

PROPAGATION:
  Rollback always happens before the error is returned; callers never observe
  partially applied state. The core retries nothing; only ErrBusy is safe to
  retry verbatim.
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFestivalNotFound is returned when a referenced festival doesn't exist.
	ErrFestivalNotFound = errors.New("festival not found")

	// ErrTicketTypeNotFound is returned when a referenced ticket type doesn't exist.
	ErrTicketTypeNotFound = errors.New("ticket type not found")

	// ErrTicketNotFound is returned when a referenced assigned ticket doesn't exist.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrWristbandNotFound is returned when a wristband uid is unknown.
	// Recharge and Consume never create wristbands; only Associate does.
	ErrWristbandNotFound = errors.New("wristband not found")

	// ErrInvalidArgument is returned for malformed input: non-positive amounts
	// or quantities, empty ids, empty descriptions. Checked before any lock.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrForbidden is returned when the acting principal is not allowed to
	// operate on the festival's resources.
	ErrForbidden = errors.New("forbidden")

	// ErrFestivalNotPublished is returned when selling or associating against
	// a festival that is not in the published state.
	ErrFestivalNotPublished = errors.New("festival not published")

	// ErrInvalidStateTransition is returned for ticket or festival state
	// changes outside the allowed graph (e.g. cancelling a used ticket).
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrAlreadyBound is returned when a wristband is still bound to a
	// different ticket that has not been cancelled.
	ErrAlreadyBound = errors.New("wristband already bound to another ticket")

	// ErrAlreadyNominated is returned when nominating a ticket that already
	// has an attendee.
	ErrAlreadyNominated = errors.New("ticket already nominated")

	// ErrNotNominated is returned when associating a wristband to a ticket
	// whose type requires nomination but no attendee is named yet.
	ErrNotNominated = errors.New("ticket not nominated")

	// ErrInactiveWristband is returned when operating on a deactivated wristband.
	ErrInactiveWristband = errors.New("wristband not active")

	// ErrFestivalMismatch is returned when an operation names a festival other
	// than the one the wristband is confined to.
	ErrFestivalMismatch = errors.New("wristband belongs to a different festival")

	// ErrInsufficientStock is returned when a sale asks for more tickets than
	// remain. Evaluated only under the ticket-type row lock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientBalance is returned when a consumption would overdraw the
	// wristband. Evaluated only under the wristband row lock.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBusy is returned when the row lock could not be acquired within the
	// configured wait. Nothing was mutated; the caller may retry as-is.
	ErrBusy = errors.New("row locked by another operation")

	// ErrStorageFailure wraps unanticipated store errors.
	ErrStorageFailure = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports how far a sale overshot the remaining stock.
type InsufficientStockError struct {
	TicketTypeID TicketTypeID
	Available    int
	Requested    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for ticket type %s: available %d, requested %d",
		e.TicketTypeID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientBalanceError reports how far a consumption overshot the balance.
type InsufficientBalanceError struct {
	WristbandUID string
	Available    Money
	Requested    Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on wristband %s: available %s, requested %s",
		e.WristbandUID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ForbiddenError names the actor and festival of a denied operation.
type ForbiddenError struct {
	ActorID    ActorID
	Role       Role
	FestivalID FestivalID
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s (role %s) may not operate on festival %s",
		e.ActorID, e.Role, e.FestivalID)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on an unchanged retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFestivalNotFound) ||
		errors.Is(err, ErrTicketTypeNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrWristbandNotFound)
}

// IsConflict returns true for business-rule rejections evaluated under the
// row lock. Not retryable without the caller changing intent.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrAlreadyBound) ||
		errors.Is(err, ErrAlreadyNominated) ||
		errors.Is(err, ErrNotNominated) ||
		errors.Is(err, ErrInactiveWristband) ||
		errors.Is(err, ErrFestivalMismatch) ||
		errors.Is(err, ErrFestivalNotPublished)
}

// IsClientError returns true if the error is the caller's fault rather than
// the system's: bad input, missing resources, policy and capacity rejections.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrForbidden) ||
		IsNotFound(err) ||
		IsConflict(err) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientBalance)
}
