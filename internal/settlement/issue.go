package settlement

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
)

// Payment-issue page categories shown to a customer whose settlement failed.
const (
	IssueMissingParameters = "missing-parameters"
	IssueOrderNotFound     = "order-not-found"
	IssueCallbackFailed    = "callback-failed"
	IssueGeneric           = "generic"
)

func IssueCategory(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindMalformedPayload, apperr.KindValidation:
		return IssueMissingParameters
	case apperr.KindOrderNotFound, apperr.KindNotFound:
		return IssueOrderNotFound
	case apperr.KindPaymentMismatch, apperr.KindInvalidSignature, apperr.KindDuplicateTransaction:
		return IssueCallbackFailed
	default:
		return IssueGeneric
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
