package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutomationFailure_Error(t *testing.T) {
	t.Run("includes state when present", func(t *testing.T) {
		f := NewFailure(CodeAddToCartFailed, "add_to_cart", "no candidate control matched", true)
		assert.Equal(t, "AddToCartFailed at add_to_cart: no candidate control matched", f.Error())
	})

	t.Run("omits state when absent", func(t *testing.T) {
		f := NewFailure(CodeUnknownFailure, "", "boom", true)
		assert.Equal(t, "UnknownFailure: boom", f.Error())
	})
}

func TestAutomationFailure_WithDiagnostic(t *testing.T) {
	f := NewFailure(CodeLoginRejected, "login", "rejected", false)

	f = f.WithDiagnostic("diag/abc.png")
	assert.Equal(t, "diag/abc.png", f.DiagnosticRef)

	// An empty capture must not erase an existing reference.
	f = f.WithDiagnostic("")
	assert.Equal(t, "diag/abc.png", f.DiagnosticRef)
}

func TestAutomationFailure_Disposition(t *testing.T) {
	tests := []struct {
		code FailureCode
		want JobStatus
	}{
		{CodeSecondFactorRequired, JobStatusManualReview},
		{CodeOrderConfirmationFailed, JobStatusManualReview},
		{CodeOrderIDNotFound, JobStatusManualReview},
		{CodeAddressNotFound, JobStatusFailedPermanent},
		{CodeLoginRejected, JobStatusFailedPermanent},
		{CodeUnknownFailure, JobStatusFailedPermanent},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			f := NewFailure(tc.code, "x", "msg", false)
			assert.Equal(t, tc.want, f.Disposition())
		})
	}
}

func TestAsAutomationFailure(t *testing.T) {
	t.Run("unwraps through wrapping", func(t *testing.T) {
		inner := NewFailure(CodePlaceOrderFailed, "place_order", "no control", false)
		wrapped := fmt.Errorf("checkout run: %w", inner)

		f, ok := AsAutomationFailure(wrapped)
		require.True(t, ok)
		assert.Equal(t, CodePlaceOrderFailed, f.Code)
	})

	t.Run("plain errors do not match", func(t *testing.T) {
		_, ok := AsAutomationFailure(errors.New("plain"))
		assert.False(t, ok)
	})
}

func TestWrapUnknown(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, WrapUnknown("state", nil))
	})

	t.Run("classified failures pass through", func(t *testing.T) {
		orig := NewFailure(CodeCheckoutFailed, "proceed_to_checkout", "gone", true)
		assert.Same(t, orig, WrapUnknown("other", orig))
	})

	t.Run("plain errors become retry-safe unknowns", func(t *testing.T) {
		f := WrapUnknown("cart_clear", errors.New("connection reset"))
		assert.Equal(t, CodeUnknownFailure, f.Code)
		assert.Equal(t, "cart_clear", f.State)
		assert.True(t, f.RetrySafe)
	})
}

func TestJobStatus(t *testing.T) {
	t.Run("valid statuses", func(t *testing.T) {
		for _, s := range []JobStatus{
			JobStatusPending, JobStatusRunning, JobStatusFulfilled,
			JobStatusFailedPermanent, JobStatusManualReview,
		} {
			assert.True(t, s.Valid(), string(s))
		}
		assert.False(t, JobStatus("completed").Valid())
	})

	t.Run("terminal statuses", func(t *testing.T) {
		assert.True(t, JobStatusFulfilled.Terminal())
		assert.True(t, JobStatusFailedPermanent.Terminal())
		assert.True(t, JobStatusManualReview.Terminal())
		assert.False(t, JobStatusPending.Terminal())
		assert.False(t, JobStatusRunning.Terminal())
	})
}

func TestCreateJobRequest_Validate(t *testing.T) {
	valid := CreateJobRequest{
		SourceOrderRef: "order-1001",
		ProductRef:     "https://store.example/dp/B000EXAMPLE",
		AccountRef:     "acct-7",
		AddressLabel:   "Warehouse A",
		MaxAttempts:    3,
	}

	t.Run("valid request", func(t *testing.T) {
		req := valid
		require.NoError(t, req.Validate())
	})

	t.Run("missing fields", func(t *testing.T) {
		for name, mutate := range map[string]func(*CreateJobRequest){
			"source order": func(r *CreateJobRequest) { r.SourceOrderRef = "  " },
			"product":      func(r *CreateJobRequest) { r.ProductRef = "" },
			"account":      func(r *CreateJobRequest) { r.AccountRef = "" },
			"address":      func(r *CreateJobRequest) { r.AddressLabel = "" },
		} {
			t.Run(name, func(t *testing.T) {
				req := valid
				mutate(&req)
				assert.Error(t, req.Validate())
			})
		}
	})

	t.Run("negative max attempts", func(t *testing.T) {
		req := valid
		req.MaxAttempts = -1
		assert.Error(t, req.Validate())
	})
}
