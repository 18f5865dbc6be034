package model

import (
	"errors"
	"fmt"
)

// FailureCode identifies a classified automation failure. The set is closed:
// callers switch on codes, never on message text.
type FailureCode string

const (
	// CodeSecondFactorRequired indicates the login flow hit a verification challenge.
	CodeSecondFactorRequired FailureCode = "SecondFactorRequired"
	// CodeLoginRejected indicates the sign-in surface displayed an explicit error.
	CodeLoginRejected FailureCode = "LoginRejected"
	// CodeSessionBusy indicates the account's session is held by another in-flight attempt.
	CodeSessionBusy FailureCode = "SessionBusy"
	// CodeAddToCartFailed indicates no add-to-cart control could be activated.
	CodeAddToCartFailed FailureCode = "AddToCartFailed"
	// CodeCheckoutFailed indicates no checkout-initiation control could be activated.
	CodeCheckoutFailed FailureCode = "CheckoutFailed"
	// CodeAddressNotFound indicates no address entry matched the configured label.
	CodeAddressNotFound FailureCode = "AddressNotFound"
	// CodePlaceOrderFailed indicates no place-order control could be activated.
	CodePlaceOrderFailed FailureCode = "PlaceOrderFailed"
	// CodeOrderConfirmationFailed indicates no confirmation marker appeared after placing the order.
	// The purchase may still have succeeded server-side; this outcome is ambiguous.
	CodeOrderConfirmationFailed FailureCode = "OrderConfirmationFailed"
	// CodeOrderIDNotFound indicates a confirmation marker appeared but no order identifier was readable.
	CodeOrderIDNotFound FailureCode = "OrderIdNotFound"
	// CodePipelineTimeout indicates the job-level deadline elapsed before PlaceOrder completed.
	CodePipelineTimeout FailureCode = "PipelineTimeout"
	// CodeUnknownFailure is the fallback classification.
	CodeUnknownFailure FailureCode = "UnknownFailure"
)

// AutomationFailure is the tagged error value produced by every pipeline step.
// It is created at the exact step that detected the failure and propagated
// upward unchanged apart from diagnostic enrichment.
type AutomationFailure struct {
	Code          FailureCode `json:"code"`
	Message       string      `json:"message"`
	State         string      `json:"state,omitempty"`
	DiagnosticRef string      `json:"diagnostic_ref,omitempty"`
	RetrySafe     bool        `json:"retry_safe"`
}

// NewFailure constructs a failure detected in the given pipeline state.
// The retry-safe flag is set here, at the point of detection, never inferred later.
func NewFailure(code FailureCode, state, message string, retrySafe bool) *AutomationFailure {
	return &AutomationFailure{
		Code:      code,
		Message:   message,
		State:     state,
		RetrySafe: retrySafe,
	}
}

func (f *AutomationFailure) Error() string {
	if f.State != "" {
		return fmt.Sprintf("%s at %s: %s", f.Code, f.State, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// WithDiagnostic returns the failure enriched with a diagnostic artifact reference.
// A missing capture leaves the failure untouched; diagnostics never mask the failure itself.
func (f *AutomationFailure) WithDiagnostic(ref string) *AutomationFailure {
	if ref != "" {
		f.DiagnosticRef = ref
	}
	return f
}

// Disposition maps a non-retryable failure to its terminal job status.
// Codes observed at or past PlaceOrder, and challenges needing a human, route to
// manual review; everything else is a permanent failure.
func (f *AutomationFailure) Disposition() JobStatus {
	switch f.Code {
	case CodeSecondFactorRequired, CodeOrderConfirmationFailed, CodeOrderIDNotFound:
		return JobStatusManualReview
	default:
		return JobStatusFailedPermanent
	}
}

// AsAutomationFailure unwraps err into an *AutomationFailure if one is in the chain.
func AsAutomationFailure(err error) (*AutomationFailure, bool) {
	var f *AutomationFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// WrapUnknown classifies an arbitrary error as an UnknownFailure in the given state.
// Already-classified failures pass through unchanged.
func WrapUnknown(state string, err error) *AutomationFailure {
	if err == nil {
		return nil
	}
	if f, ok := AsAutomationFailure(err); ok {
		return f
	}
	return NewFailure(CodeUnknownFailure, state, err.Error(), true)
}
