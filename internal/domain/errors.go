package domain

import "errors"

// ErrorKind classifies a failure so the boundary layer can pick a response
// without knowing every individual error.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindForbidden       ErrorKind = "forbidden"
	KindConflict        ErrorKind = "conflict"
	KindPaymentProvider ErrorKind = "payment_provider"
	KindInternal        ErrorKind = "internal"
)

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation       = newError(KindValidation, "VALIDATION_ERROR", "invalid input")
	ErrInvalidQuantity  = newError(KindValidation, "INVALID_QUANTITY", "quantity must be at least 1")
	ErrInvalidCapacity  = newError(KindValidation, "INVALID_CAPACITY", "min_participants must not exceed max_participants")
	ErrEventInPast      = newError(KindValidation, "EVENT_IN_PAST", "event start time must be in the future")
	ErrVenueUnavailable = newError(KindValidation, "VENUE_UNAVAILABLE", "venue is not an active partner")

	ErrEventNotFound   = newError(KindNotFound, "EVENT_NOT_FOUND", "event not found")
	ErrBookingNotFound = newError(KindNotFound, "BOOKING_NOT_FOUND", "booking not found")
	ErrPaymentNotFound = newError(KindNotFound, "PAYMENT_NOT_FOUND", "payment not found")
	ErrUserNotFound    = newError(KindNotFound, "USER_NOT_FOUND", "user not found")

	ErrForbidden = newError(KindForbidden, "FORBIDDEN", "not allowed to act on this resource")

	ErrCapacityExceeded        = newError(KindConflict, "CAPACITY_EXCEEDED", "not enough free places left for this event")
	ErrDuplicateBooking        = newError(KindConflict, "DUPLICATE_BOOKING", "an active booking for this event already exists")
	ErrEventNotBookable        = newError(KindConflict, "EVENT_NOT_BOOKABLE", "event is not open for bookings")
	ErrBookingExpired          = newError(KindConflict, "BOOKING_EXPIRED", "booking hold has expired")
	ErrBookingCancelled        = newError(KindConflict, "BOOKING_CANCELLED", "booking is cancelled")
	ErrBookingAlreadyConfirmed = newError(KindConflict, "BOOKING_ALREADY_CONFIRMED", "confirmed bookings can only be cancelled by staff")
	ErrCancellationDeadline    = newError(KindConflict, "CANCELLATION_DEADLINE", "cancellation deadline has passed")
	ErrOrganizerBooking        = newError(KindConflict, "ORGANIZER_BOOKING", "publish fee bookings are cancelled with their event")
	ErrPaymentMismatch         = newError(KindConflict, "PAYMENT_MISMATCH", "booking was confirmed with a different payment")
	ErrPaymentIncomplete       = newError(KindConflict, "PAYMENT_INCOMPLETE", "payment has not succeeded yet")
	ErrEventAlreadyCancelled   = newError(KindConflict, "EVENT_ALREADY_CANCELLED", "event is already cancelled")
	ErrEventFinished           = newError(KindConflict, "EVENT_FINISHED", "event is already finished")
	ErrEventNotPublished       = newError(KindConflict, "EVENT_NOT_PUBLISHED", "event is not published")
	ErrSessionActive           = newError(KindConflict, "SESSION_ACTIVE", "a game session is already running")
	ErrNoActiveSession         = newError(KindConflict, "NO_ACTIVE_SESSION", "no game session is running")
	ErrConcurrentUpdate        = newError(KindConflict, "CONCURRENT_UPDATE", "resource was modified concurrently, retry")

	ErrPaymentProvider  = newError(KindPaymentProvider, "PAYMENT_PROVIDER_ERROR", "payment provider request failed")
	ErrInvalidSignature = newError(KindValidation, "INVALID_SIGNATURE", "webhook signature verification failed")
)

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
