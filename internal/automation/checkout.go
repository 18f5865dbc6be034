package automation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/skuflow/skuflow/config"
	"github.com/skuflow/skuflow/internal/domain/model"
)

// Checkout pipeline state names. Failures carry the state they were
// detected in; the audit trail and diagnostics are keyed by these.
const (
	StateCartClear         = "cart_clear"
	StateAddToCart         = "add_to_cart"
	StateProceedToCheckout = "proceed_to_checkout"
	StateAddressSelection  = "address_selection"
	StatePlaceOrder        = "place_order"
	StateConfirmationCheck = "confirmation_check"
)

// CheckoutMachine walks an authenticated session through cart, address, and
// order placement. Each state either advances or produces a classified
// failure with a diagnostic capture.
type CheckoutMachine struct {
	cfg      config.AutomationConfig
	locators *LocatorSet
	diag     *Diagnostics
	logger   *slog.Logger
}

// NewCheckoutMachine creates a checkout state machine.
func NewCheckoutMachine(cfg config.AutomationConfig, locators *LocatorSet, diag *Diagnostics, logger *slog.Logger) *CheckoutMachine {
	return &CheckoutMachine{cfg: cfg, locators: locators, diag: diag, logger: logger}
}

// CheckoutRequest carries the per-job inputs for one checkout run.
type CheckoutRequest struct {
	JobID        string
	ProductRef   string
	AddressLabel string
}

// Run executes the checkout pipeline. A PurchaseOutcome is returned only
// after a confirmation marker appeared and an order identifier was read from
// it; every other path is a classified failure.
func (m *CheckoutMachine) Run(ctx context.Context, sess *Session, req CheckoutRequest) (*model.PurchaseOutcome, *model.AutomationFailure) {
	steps := []struct {
		state string
		fn    func(context.Context, *Session, CheckoutRequest) *model.AutomationFailure
	}{
		{StateCartClear, m.clearCart},
		{StateAddToCart, m.addToCart},
		{StateProceedToCheckout, m.proceedToCheckout},
		{StateAddressSelection, m.selectAddress},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, m.timeoutFailure(sess, req.JobID, step.state)
		}
		if failure := step.fn(ctx, sess, req); failure != nil {
			return nil, failure
		}
		m.logger.Info("checkout state complete", "job_id", req.JobID, "state", step.state)
	}

	// Final price is read before the order is placed; the confirmation page
	// does not always repeat it.
	finalPrice, shippingCost := m.readTotals(sess)

	if err := ctx.Err(); err != nil {
		return nil, m.timeoutFailure(sess, req.JobID, StatePlaceOrder)
	}
	if failure := m.placeOrder(sess, req); failure != nil {
		return nil, failure
	}

	// Past this point the order may exist server-side. Ambiguity routes to
	// manual review, never to an automatic retry.
	orderID, failure := m.confirmOrder(sess, req)
	if failure != nil {
		return nil, failure
	}

	outcome := &model.PurchaseOutcome{
		OrderID:      orderID,
		ShippingCost: shippingCost,
	}
	if finalPrice != nil {
		outcome.FinalPrice = *finalPrice
	}
	m.logger.Info("order placed", "job_id", req.JobID, "order_id", orderID)
	return outcome, nil
}

// clearCart removes leftover items so the order contains exactly the target
// product. A cart that is already empty is the common case.
func (m *CheckoutMachine) clearCart(_ context.Context, sess *Session, req CheckoutRequest) *model.AutomationFailure {
	page := sess.Page

	if err := page.Navigate(m.cfg.CartURL); err != nil {
		return m.fail(sess, req.JobID, model.CodeUnknownFailure, StateCartClear, "cart page unreachable: "+err.Error(), true)
	}
	if err := page.WaitLoad(); err != nil {
		return m.fail(sess, req.JobID, model.CodeUnknownFailure, StateCartClear, "cart page did not load: "+err.Error(), true)
	}

	// Bounded loop: each pass deletes one row and the page redraws. Clearing
	// is best-effort; a row that will not delete is logged and left behind.
	for i := 0; i < 20; i++ {
		del, _, err := m.locators.Checkout.CartDelete.First(page, m.cfg.ElementTimeout)
		if err != nil {
			return nil // no delete controls left, cart is empty
		}
		if err := del.Click(); err != nil {
			m.logger.Warn("cart delete click failed", "job_id", req.JobID, "error", err)
			return nil
		}
		if err := page.WaitLoad(); err != nil {
			m.logger.Warn("cart redraw failed after delete", "job_id", req.JobID, "error", err)
			return nil
		}
	}

	return m.fail(sess, req.JobID, model.CodeUnknownFailure, StateCartClear, "cart still has items after 20 removals", true)
}

func (m *CheckoutMachine) addToCart(_ context.Context, sess *Session, req CheckoutRequest) *model.AutomationFailure {
	page := sess.Page

	if err := page.Navigate(req.ProductRef); err != nil {
		return m.fail(sess, req.JobID, model.CodeAddToCartFailed, StateAddToCart, "product page unreachable: "+err.Error(), true)
	}
	if err := page.WaitLoad(); err != nil {
		return m.fail(sess, req.JobID, model.CodeAddToCartFailed, StateAddToCart, "product page did not load: "+err.Error(), true)
	}

	button, candidate, err := m.locators.Product.AddToCart.First(page, m.cfg.StepTimeout)
	if err != nil {
		// The page may simply have been transiently unready.
		return m.fail(sess, req.JobID, model.CodeAddToCartFailed, StateAddToCart, "no add-to-cart control found", true)
	}
	if err := button.Click(); err != nil {
		return m.fail(sess, req.JobID, model.CodeAddToCartFailed, StateAddToCart,
			"add-to-cart click failed ("+candidate.Describe+"): "+err.Error(), true)
	}
	if err := page.WaitLoad(); err != nil {
		return m.fail(sess, req.JobID, model.CodeAddToCartFailed, StateAddToCart, "post-add page did not load: "+err.Error(), true)
	}

	return nil
}

func (m *CheckoutMachine) proceedToCheckout(_ context.Context, sess *Session, req CheckoutRequest) *model.AutomationFailure {
	page := sess.Page

	button, _, err := m.locators.Checkout.ProceedToCheckout.First(page, m.cfg.StepTimeout)
	if err != nil {
		// The post-add interstitial varies; the cart page always carries the
		// checkout control.
		if navErr := page.Navigate(m.cfg.CartURL); navErr != nil {
			return m.fail(sess, req.JobID, model.CodeCheckoutFailed, StateProceedToCheckout, "cart page unreachable: "+navErr.Error(), true)
		}
		if loadErr := page.WaitLoad(); loadErr != nil {
			return m.fail(sess, req.JobID, model.CodeCheckoutFailed, StateProceedToCheckout, "cart page did not load: "+loadErr.Error(), true)
		}
		button, _, err = m.locators.Checkout.ProceedToCheckout.First(page, m.cfg.StepTimeout)
		if err != nil {
			return m.fail(sess, req.JobID, model.CodeCheckoutFailed, StateProceedToCheckout, "no checkout control found", true)
		}
	}

	if err := button.Click(); err != nil {
		return m.fail(sess, req.JobID, model.CodeCheckoutFailed, StateProceedToCheckout, "checkout click failed: "+err.Error(), true)
	}
	if err := page.WaitLoad(); err != nil {
		return m.fail(sess, req.JobID, model.CodeCheckoutFailed, StateProceedToCheckout, "checkout page did not load: "+err.Error(), true)
	}

	return nil
}

// selectAddress picks the shipping address whose text matches the job's
// label. An exact match wins; otherwise the entry containing the label
// within the configured character-count delta is taken.
func (m *CheckoutMachine) selectAddress(_ context.Context, sess *Session, req CheckoutRequest) *model.AutomationFailure {
	page := sess.Page

	// No address list means the site went straight to the order summary
	// with an implicit default address. The next state reports its own
	// failure if the page is actually broken.
	entries := m.addressEntries(page)
	if len(entries) == 0 {
		return nil
	}

	best := pickAddress(entries, req.AddressLabel, m.cfg.AddressMatchDelta)
	if best == nil {
		return m.fail(sess, req.JobID, model.CodeAddressNotFound, StateAddressSelection,
			"no address matched label "+req.AddressLabel, false)
	}

	if err := best.Click(); err != nil {
		return m.fail(sess, req.JobID, model.CodeAddressNotFound, StateAddressSelection, "address click failed: "+err.Error(), true)
	}

	if use, _, err := m.locators.Checkout.AddressUse.First(page, m.cfg.ElementTimeout); err == nil {
		if err := use.Click(); err != nil {
			return m.fail(sess, req.JobID, model.CodeAddressNotFound, StateAddressSelection, "use-address click failed: "+err.Error(), true)
		}
	}
	if err := page.WaitLoad(); err != nil {
		return m.fail(sess, req.JobID, model.CodeAddressNotFound, StateAddressSelection, "post-address page did not load: "+err.Error(), true)
	}

	return nil
}

type addressEntry struct {
	el   Element
	text string
}

func (e *addressEntry) Click() error { return e.el.Click() }

func (m *CheckoutMachine) addressEntries(page Page) []addressEntry {
	for _, c := range m.locators.Checkout.AddressEntry.Candidates {
		els, err := page.Elements(c.Selector)
		if err != nil || len(els) == 0 {
			continue
		}
		entries := make([]addressEntry, 0, len(els))
		for _, el := range els {
			text, terr := el.Text()
			if terr != nil {
				continue
			}
			entries = append(entries, addressEntry{el: el, text: text})
		}
		if len(entries) > 0 {
			return entries
		}
	}
	return nil
}

// pickAddress prefers the entry whose text exactly equals the label; failing
// that it takes the entry containing the label whose extra length stays
// within maxDelta. The bound covers entries that append a postal code or
// honorific without letting a loosely similar address through.
func pickAddress(entries []addressEntry, label string, maxDelta int) *addressEntry {
	normalizedLabel := normalizeAddress(label)

	for i := range entries {
		if normalizeAddress(entries[i].text) == normalizedLabel {
			return &entries[i]
		}
	}

	bestIdx := -1
	bestDelta := maxDelta + 1
	for i := range entries {
		normalized := normalizeAddress(entries[i].text)
		if !strings.Contains(normalized, normalizedLabel) {
			continue
		}
		delta := len(normalized) - len(normalizedLabel)
		if delta < bestDelta {
			bestDelta = delta
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil
	}
	return &entries[bestIdx]
}

func normalizeAddress(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (m *CheckoutMachine) readTotals(sess *Session) (*model.Price, *model.Price) {
	finalPrice := ParsePrice(m.locators.Checkout.OrderTotal.FirstText(sess.Page, m.cfg.ElementTimeout))
	shippingCost := ParsePrice(m.locators.Checkout.ShippingCost.FirstText(sess.Page, m.cfg.ElementTimeout))
	return finalPrice, shippingCost
}

func (m *CheckoutMachine) placeOrder(sess *Session, req CheckoutRequest) *model.AutomationFailure {
	page := sess.Page

	button, _, err := m.locators.Checkout.PlaceOrder.First(page, m.cfg.StepTimeout)
	if err != nil {
		// Nothing has been committed yet; the control may render late.
		return m.fail(sess, req.JobID, model.CodePlaceOrderFailed, StatePlaceOrder, "no place-order control found", true)
	}
	if err := button.Click(); err != nil {
		return m.fail(sess, req.JobID, model.CodePlaceOrderFailed, StatePlaceOrder, "place-order click failed: "+err.Error(), true)
	}
	if err := page.WaitLoad(); err != nil {
		// The click went through; whether the order exists is now unknown.
		return m.fail(sess, req.JobID, model.CodeOrderConfirmationFailed, StateConfirmationCheck,
			"post-order page did not load: "+err.Error(), false)
	}

	return nil
}

// confirmOrder waits out the settle delay, then requires both the
// confirmation marker and a readable order identifier.
func (m *CheckoutMachine) confirmOrder(sess *Session, req CheckoutRequest) (string, *model.AutomationFailure) {
	page := sess.Page

	if m.cfg.SettleDelay > 0 {
		time.Sleep(m.cfg.SettleDelay)
	}

	marker, _, err := m.locators.Checkout.Confirmation.First(page, m.cfg.StepTimeout)
	if err != nil {
		return "", m.fail(sess, req.JobID, model.CodeOrderConfirmationFailed, StateConfirmationCheck,
			"no confirmation marker appeared", false)
	}

	if markerText, terr := marker.Text(); terr == nil {
		if id := OrderIDFromText(markerText); id != "" {
			return id, nil
		}
	}

	for _, c := range m.locators.Checkout.OrderID.Candidates {
		el, eerr := page.Element(c.Selector, m.cfg.ElementTimeout)
		if eerr != nil {
			continue
		}
		text, terr := el.Text()
		if terr != nil {
			continue
		}
		if id := OrderIDFromText(text); id != "" {
			return id, nil
		}
	}

	// Marker without an identifier: the purchase very likely went through
	// but cannot be reconciled automatically.
	return "", m.fail(sess, req.JobID, model.CodeOrderIDNotFound, StateConfirmationCheck,
		"confirmation marker present but no order identifier readable", false)
}

func (m *CheckoutMachine) timeoutFailure(sess *Session, jobID, state string) *model.AutomationFailure {
	return m.fail(sess, jobID, model.CodePipelineTimeout, state, "pipeline deadline elapsed", true)
}

func (m *CheckoutMachine) fail(sess *Session, jobID string, code model.FailureCode, state, message string, retrySafe bool) *model.AutomationFailure {
	failure := model.NewFailure(code, state, message, retrySafe)
	return failure.WithDiagnostic(m.diag.Capture(sess.Page, jobID, state))
}
