// Package apperr is the error taxonomy shared by checkout, settlement and the
// HTTP boundary. Errors carry a Kind that selects the response status; the
// Message is safe to show to callers, the Cause is for logs only.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindMalformedPayload     Kind = "malformed_payload"
	KindOrderNotFound        Kind = "order_not_found"
	KindPaymentMismatch      Kind = "payment_mismatch"
	KindDuplicateTransaction Kind = "duplicate_transaction"
	KindInsufficientStock    Kind = "insufficient_stock"
	KindGatewayUnavailable   Kind = "gateway_unavailable"
	KindInvalidSignature     Kind = "invalid_signature"
	KindInvalidTransition    Kind = "invalid_transition"
	KindValidation           Kind = "validation"
	KindUnauthorized         Kind = "unauthorized"
	KindNotFound             Kind = "not_found"
	KindInternal             Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.OrderNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail returns a copy of e with k=v added to Details.
func (e *Error) WithDetail(k, v string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for dk, dv := range e.Details {
		cp.Details[dk] = dv
	}
	cp.Details[k] = v
	return &cp
}

// Sentinels for errors.Is comparisons.
var (
	MalformedPayload     = New(KindMalformedPayload, "malformed payload")
	OrderNotFound        = New(KindOrderNotFound, "order not found")
	PaymentMismatch      = New(KindPaymentMismatch, "payment mismatch")
	DuplicateTransaction = New(KindDuplicateTransaction, "duplicate transaction")
	InsufficientStock    = New(KindInsufficientStock, "insufficient stock")
	GatewayUnavailable   = New(KindGatewayUnavailable, "payment gateway unavailable")
	InvalidSignature     = New(KindInvalidSignature, "invalid signature")
	InvalidTransition    = New(KindInvalidTransition, "invalid status transition")
	Validation           = New(KindValidation, "validation failed")
	Unauthorized         = New(KindUnauthorized, "unauthorized")
	NotFound             = New(KindNotFound, "not found")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether a provider should redeliver after err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindInternal, KindGatewayUnavailable:
		return true
	}
	return false
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindMalformedPayload, KindPaymentMismatch, KindValidation:
		return http.StatusBadRequest
	case KindInvalidSignature, KindUnauthorized:
		return http.StatusUnauthorized
	case KindOrderNotFound, KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindInvalidTransition:
		return http.StatusConflict
	case KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	case KindDuplicateTransaction:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
