package automation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skuflow/skuflow/config"
	"github.com/skuflow/skuflow/internal/domain/model"
)

const testProductRef = "https://shop.test/dp/B0TESTASIN"

func checkoutTestConfig() config.AutomationConfig {
	return config.AutomationConfig{
		BaseURL:           "https://shop.test",
		CartURL:           "https://shop.test/gp/cart/view.html",
		StepTimeout:       50 * time.Millisecond,
		ElementTimeout:    10 * time.Millisecond,
		SettleDelay:       0,
		AddressMatchDelta: 8,
	}
}

func newTestCheckout(t *testing.T) *CheckoutMachine {
	t.Helper()
	diag := NewDiagnostics(t.TempDir(), slog.Default())
	return NewCheckoutMachine(checkoutTestConfig(), DefaultLocators(), diag, slog.Default())
}

// checkoutPage scripts a page holding every control the happy path touches.
// States that must not be reachable in a given test are removed by the test.
func checkoutPage() *fakePage {
	p := newFakePage()
	p.elements["#add-to-cart-button"] = &fakeElement{}
	p.elements["#sc-buy-box-ptc-button input"] = &fakeElement{}
	p.multi[".address-book-entry"] = []*fakeElement{
		{text: "Warehouse-Tokyo 108"},
		{text: "Office Osaka 4-5-6 Chuo-ku 540-0001"},
	}
	p.elements[".grand-total-price"] = &fakeElement{text: "¥3,850"}
	p.elements["#subtotals-marketplace-table tr:nth-child(2) td.a-text-right"] = &fakeElement{text: "¥350"}
	p.elements["input[name='placeYourOrder1']"] = &fakeElement{}
	p.elements["#widget-purchaseConfirmationStatus"] = &fakeElement{text: "Order placed, thank you!"}
	p.elements[".order-number"] = &fakeElement{text: "Order #249-1234567-7654321"}
	return p
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{JobID: "job-1", ProductRef: testProductRef, AddressLabel: "Warehouse-Tokyo"}
}

func TestCheckoutMachine_HappyPath(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, failure)
	require.NotNil(t, outcome)

	assert.Equal(t, "249-1234567-7654321", outcome.OrderID)
	assert.Equal(t, float64(3850), outcome.FinalPrice.Amount)
	assert.Equal(t, "¥", outcome.FinalPrice.Currency)
	require.NotNil(t, outcome.ShippingCost)
	assert.Equal(t, float64(350), outcome.ShippingCost.Amount)

	assert.Equal(t, 1, page.elements["#add-to-cart-button"].clicks)
	assert.Equal(t, 1, page.elements["input[name='placeYourOrder1']"].clicks)
	assert.Equal(t, 1, page.multi[".address-book-entry"][0].clicks)
	assert.Zero(t, page.multi[".address-book-entry"][1].clicks)
	assert.Equal(t, []string{"https://shop.test/gp/cart/view.html", testProductRef}, page.navigated)
}

func TestCheckoutMachine_OrderIDFromConfirmationMarker(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	delete(page.elements, ".order-number")
	page.elements["#widget-purchaseConfirmationStatus"].text = "Order placed. Order 503-9876543-0123456 is confirmed."
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, failure)
	assert.Equal(t, "503-9876543-0123456", outcome.OrderID)
}

func TestCheckoutMachine_ClearsLeftoverCartItems(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()

	// Two leftover rows; each delete click redraws with one fewer.
	remaining := 2
	del := &fakeElement{}
	del.onClick = func() {
		remaining--
		if remaining == 0 {
			delete(page.elements, "input[value='Delete']")
		}
	}
	page.elements["input[value='Delete']"] = del
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, failure)
	require.NotNil(t, outcome)
	assert.Equal(t, 2, del.clicks)
}

func TestCheckoutMachine_AddToCartMissing(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	delete(page.elements, "#add-to-cart-button")
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, outcome)
	require.NotNil(t, failure)
	assert.Equal(t, model.CodeAddToCartFailed, failure.Code)
	assert.Equal(t, StateAddToCart, failure.State)
	assert.True(t, failure.RetrySafe, "the page may have been transiently unready")
	assert.NotEmpty(t, failure.DiagnosticRef)
}

func TestCheckoutMachine_CartDeleteFailureDoesNotAbort(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	page.elements["input[value='Delete']"] = &fakeElement{clickErr: assert.AnError}
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, failure, "cart clearing is best-effort")
	require.NotNil(t, outcome)
	assert.Equal(t, "249-1234567-7654321", outcome.OrderID)
}

func TestCheckoutMachine_AddressNotFound(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	page.multi[".address-book-entry"] = []*fakeElement{
		{text: "Office Osaka 4-5-6 Chuo-ku 540-0001"},
	}
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, outcome)
	require.NotNil(t, failure)
	assert.Equal(t, model.CodeAddressNotFound, failure.Code)
	assert.Equal(t, StateAddressSelection, failure.State)
	assert.False(t, failure.RetrySafe)
}

func TestCheckoutMachine_DefaultAddressSkipsSelection(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	// No address book: the site went straight to the order summary.
	delete(page.multi, ".address-book-entry")
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, failure)
	require.NotNil(t, outcome)
}

func TestCheckoutMachine_MissingPlaceOrderReportedByPlaceOrderState(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	// No address book and no place-order control: the skip still happens and
	// the place-order state reports its own failure.
	delete(page.multi, ".address-book-entry")
	delete(page.elements, "input[name='placeYourOrder1']")
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, outcome)
	require.NotNil(t, failure)
	assert.Equal(t, model.CodePlaceOrderFailed, failure.Code)
	assert.Equal(t, StatePlaceOrder, failure.State)
	assert.True(t, failure.RetrySafe, "nothing committed before place-order")
}

func TestCheckoutMachine_NoConfirmationMarker(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	delete(page.elements, "#widget-purchaseConfirmationStatus")
	delete(page.elements, ".order-number")
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, outcome)
	require.NotNil(t, failure)
	assert.Equal(t, model.CodeOrderConfirmationFailed, failure.Code)
	assert.Equal(t, StateConfirmationCheck, failure.State)
	assert.False(t, failure.RetrySafe, "order may exist server-side, never auto-retry")
	assert.NotEmpty(t, failure.DiagnosticRef)
}

func TestCheckoutMachine_MarkerWithoutOrderID(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	delete(page.elements, ".order-number")
	page.elements["#widget-purchaseConfirmationStatus"].text = "Order placed, thank you!"
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	outcome, failure := m.Run(context.Background(), sess, checkoutRequest())
	require.Nil(t, outcome)
	require.NotNil(t, failure)
	assert.Equal(t, model.CodeOrderIDNotFound, failure.Code)
	assert.False(t, failure.RetrySafe)
}

func TestCheckoutMachine_CanceledContext(t *testing.T) {
	m := newTestCheckout(t)
	page := checkoutPage()
	sess := &Session{AccountRef: "acct-alpha", Page: page}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, failure := m.Run(ctx, sess, checkoutRequest())
	require.Nil(t, outcome)
	require.NotNil(t, failure)
	assert.Equal(t, model.CodePipelineTimeout, failure.Code)
	assert.True(t, failure.RetrySafe)
	assert.Empty(t, page.navigated, "no step runs after the deadline")
}

func TestPickAddress(t *testing.T) {
	t.Run("exact match wins over containing entry", func(t *testing.T) {
		got := pickAddress([]addressEntry{
			{text: "Warehouse A Annex"},
			{text: "Warehouse A"},
		}, "Warehouse A", 8)
		require.NotNil(t, got)
		assert.Equal(t, "Warehouse A", got.text)
	})

	t.Run("exact match ignores case and spacing", func(t *testing.T) {
		got := pickAddress([]addressEntry{
			{text: "  warehouse-tokyo "},
			{text: "Office Osaka"},
		}, "Warehouse-Tokyo", 8)
		require.NotNil(t, got)
		assert.Equal(t, "  warehouse-tokyo ", got.text)
	})

	t.Run("bounded fallback picks closest containing entry", func(t *testing.T) {
		got := pickAddress([]addressEntry{
			{text: "warehouse-tokyo 1-2-3 minato"},
			{text: "warehouse-tokyo 108"},
		}, "warehouse-tokyo", 8)
		require.NotNil(t, got)
		assert.Equal(t, "warehouse-tokyo 108", got.text)
	})

	t.Run("similar but different label never selected", func(t *testing.T) {
		got := pickAddress([]addressEntry{{text: "Warehouse B"}}, "Warehouse A", 8)
		assert.Nil(t, got)
	})

	t.Run("containing entry beyond delta rejected", func(t *testing.T) {
		got := pickAddress([]addressEntry{
			{text: "warehouse-tokyo plus sixty characters of annotation appended to the visible row text"},
		}, "warehouse-tokyo", 8)
		assert.Nil(t, got)
	})

	t.Run("label substring of nothing", func(t *testing.T) {
		got := pickAddress([]addressEntry{{text: "depot nagoya"}}, "warehouse", 20)
		assert.Nil(t, got)
	})
}
