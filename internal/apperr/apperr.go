// Package apperr carries business outcomes as typed errors with stable
// reason codes, so callers can branch on them instead of on error text.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// Reason is a stable machine-readable outcome code.
type Reason string

const (
	Valid Reason = "valid"

	// Validation
	BadRequest     Reason = "bad_request"
	BadType        Reason = "bad_type"
	BadHours       Reason = "bad_hours"
	BadRange       Reason = "bad_range"
	EmptyCart      Reason = "empty_cart"
	UnknownStore   Reason = "unknown_store"
	UnknownProduct Reason = "unknown_product"
	MissingSize    Reason = "missing_size"
	BadQuantity    Reason = "bad_quantity"
	NoPrice        Reason = "no_price"
	BadExtra       Reason = "bad_extra"
	CartTooLarge   Reason = "cart_too_large"

	// Eligibility (preview)
	NotFound          Reason = "not_found"
	Disabled          Reason = "disabled"
	Used              Reason = "used"
	ExpiredOrNotYet   Reason = "expired_or_not_yet"
	OutsideTimeWindow Reason = "outside_time_window"
	NotOwner          Reason = "not_owner"
	SegmentMismatch   Reason = "segment_mismatch"

	// Conflict
	AlreadyUsed         Reason = "already_used"
	Expired             Reason = "expired"
	InvalidState        Reason = "invalid_state"
	OutOfStock          Reason = "out_of_stock"
	InsufficientStock   Reason = "insufficient_stock"
	PaymentNotCompleted Reason = "payment_not_completed"
	DuplicateCheckout   Reason = "duplicate_checkout"
	MissingCart         Reason = "missing_cart"
	RateLimited         Reason = "rate_limited"
	Internal            Reason = "internal_error"
	Unauthorized        Reason = "unauthorized"
	CheckoutUnavailable Reason = "checkout_unavailable"
)

// Error is a business or infrastructure failure with a stable reason.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string            // internal message, for logs
	Stage   string            // where an internal failure happened
	Details map[string]string // extra context safe to return to clients
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind and reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// WithDetail returns e with one more client-visible detail.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

func Validation(reason Reason, message string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: message}
}

func Conflict(reason Reason, message string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: message}
}

func NotFoundf(message string) *Error {
	return &Error{Kind: KindNotFound, Reason: NotFound, Message: message}
}

// Wrap marks cause as an internal failure at stage. The stage is logged but
// never returned to clients.
func Wrap(stage string, cause error) *Error {
	return &Error{Kind: KindInternal, Reason: Internal, Stage: stage, Cause: cause}
}

// As extracts an *Error. Untyped errors become internal errors.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Reason: Internal, Cause: err}
}

// ReasonOf returns the reason carried by err.
func ReasonOf(err error) Reason {
	if err == nil {
		return Valid
	}
	return As(err).Reason
}

// KindOf returns the kind carried by err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}

// HTTPStatus maps an error to its HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	e := As(err)
	switch e.Kind {
	case KindValidation:
		if e.Reason == Unauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusBadRequest
	case KindConflict:
		if e.Reason == RateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		if e.Reason == CheckoutUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}
