package domain

import "errors"

// Domain errors
var (
	// Not found
	ErrEventNotFound      = errors.New("event not found")
	ErrCategoryNotFound   = errors.New("seat category not found")
	ErrSeatNotFound       = errors.New("seat not found")
	ErrCartNotFound       = errors.New("cart not found")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrQueueEntryNotFound = errors.New("queue entry not found")

	// Conflict
	ErrSeatConflict          = errors.New("seat is locked or booked by another holder")
	ErrDuplicateCategoryItem = errors.New("cart already has an item for this category")
	ErrSeatNotHeld           = errors.New("seat is not locked by this cart")
	ErrCartAlreadyActive     = errors.New("user already has an active cart for this event")

	// Insufficient inventory
	ErrInsufficientSeats = errors.New("insufficient seats available")

	// Expired
	ErrCartExpired      = errors.New("cart has expired")
	ErrLockExpired      = errors.New("seat lock has expired")
	ErrAdmissionExpired = errors.New("queue processing window has expired")

	// Invalid state
	ErrCartNotActive        = errors.New("cart is not active")
	ErrInvalidQuantity      = errors.New("quantity must be at least one")
	ErrAssignedSeatQuantity = errors.New("quantity changes are only valid for general admission items")
	ErrBookingNotPending    = errors.New("booking is not pending")
	ErrQueueDisabled        = errors.New("queue is not enabled for this event")
	ErrBookingWindowClosed  = errors.New("event is not open for booking")
	ErrCategoryWrongEvent   = errors.New("category does not belong to the cart's event")
	ErrCategoryInactive     = errors.New("seat category is not active")
	ErrCartNotValidated     = errors.New("cart failed validation")

	// Not admitted
	ErrNotAdmitted = errors.New("user is not admitted to checkout for this event")
)

// IsNotFoundError reports whether err is a missing-entity error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrSeatNotFound) ||
		errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrCartItemNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrQueueEntryNotFound)
}

// IsConflictError reports whether err is a concurrent-claim conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSeatConflict) ||
		errors.Is(err, ErrDuplicateCategoryItem) ||
		errors.Is(err, ErrSeatNotHeld) ||
		errors.Is(err, ErrCartAlreadyActive)
}

// IsInsufficientError reports whether err is an inventory shortage
func IsInsufficientError(err error) bool {
	return errors.Is(err, ErrInsufficientSeats)
}

// IsExpiredError reports whether err is a TTL expiry
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrCartExpired) ||
		errors.Is(err, ErrLockExpired) ||
		errors.Is(err, ErrAdmissionExpired)
}

// IsInvalidStateError reports whether err is an illegal lifecycle transition
func IsInvalidStateError(err error) bool {
	return errors.Is(err, ErrCartNotActive) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrAssignedSeatQuantity) ||
		errors.Is(err, ErrBookingNotPending) ||
		errors.Is(err, ErrQueueDisabled) ||
		errors.Is(err, ErrBookingWindowClosed) ||
		errors.Is(err, ErrCategoryWrongEvent) ||
		errors.Is(err, ErrCategoryInactive) ||
		errors.Is(err, ErrCartNotValidated)
}

// IsNotAdmittedError reports whether err is a queue-gating rejection
func IsNotAdmittedError(err error) bool {
	return errors.Is(err, ErrNotAdmitted)
}
