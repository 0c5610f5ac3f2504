// Package errors defines the error taxonomy shared by the cart, pricing,
// checkout and order components. Handlers map these to HTTP responses.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = stderrors.New("not found")

	// ErrInvalidInput marks malformed requests. Never retried.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrBackendUnavailable marks network or storage failures.
	ErrBackendUnavailable = stderrors.New("backend unavailable")

	// ErrEmptyCart is returned by checkout before any network call.
	ErrEmptyCart = stderrors.New("cart is empty")

	// ErrItemNotFound is returned when updating a product that is not in
	// the remote cart.
	ErrItemNotFound = stderrors.New("item not found in cart")

	// ErrAuthRequired is returned when an operation needs a signed-in shopper.
	ErrAuthRequired = stderrors.New("authentication required")

	// ErrCheckoutInProgress is returned when a shopper submits twice.
	ErrCheckoutInProgress = stderrors.New("checkout already in progress")

	// ErrOutOfStock is returned by the order repository when inventory
	// cannot cover a line.
	ErrOutOfStock = stderrors.New("insufficient stock")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field   string            `json:"field"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match any validation error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// OrderCreationFailedError carries the order backend's rejection message,
// which is shown to the shopper verbatim.
type OrderCreationFailedError struct {
	Message string
	Cause   error
}

func (e *OrderCreationFailedError) Error() string {
	return e.Message
}

func (e *OrderCreationFailedError) Unwrap() error {
	return e.Cause
}

// NewOrderCreationFailed wraps cause. The message is taken from cause.
func NewOrderCreationFailed(cause error) *OrderCreationFailedError {
	msg := "order could not be created"
	if cause != nil {
		msg = cause.Error()
		var ve *ValidationError
		if stderrors.As(cause, &ve) {
			msg = ve.Message
		}
	}
	return &OrderCreationFailedError{Message: msg, Cause: cause}
}

// Unavailable wraps err so that errors.Is(err, ErrBackendUnavailable) holds
// while the cause stays inspectable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{op: op, err: err}
}

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.err}
}

// Re-exported so callers importing this package under the name errors keep
// the standard helpers.
func Is(err, target error) bool     { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func New(text string) error         { return stderrors.New(text) }
