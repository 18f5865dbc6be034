package automation

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Candidate is one selector attempt within a locator strategy.
type Candidate struct {
	Describe string `yaml:"describe"`
	Selector string `yaml:"selector"`
}

// Strategy is an ordered list of selector candidates for one logical control.
// The site ships different DOM variants per locale and experiment bucket, so
// every control is located through a candidate list, first match wins.
type Strategy struct {
	Name       string      `yaml:"name"`
	Candidates []Candidate `yaml:"candidates"`
}

// First returns the first candidate that matches, giving each candidate its
// own wait window.
func (s Strategy) First(page Page, timeout time.Duration) (Element, Candidate, error) {
	for _, c := range s.Candidates {
		el, err := page.Element(c.Selector, timeout)
		if err == nil {
			return el, c, nil
		}
	}
	return nil, Candidate{}, fmt.Errorf("%w: no %s candidate matched", ErrElementNotFound, s.Name)
}

// FirstText returns the trimmed text of the first matching candidate, or ""
// when nothing matched. Extraction strategies tolerate absence.
func (s Strategy) FirstText(page Page, timeout time.Duration) string {
	el, _, err := s.First(page, timeout)
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// LoginLocators covers the sign-in surface.
type LoginLocators struct {
	EmailField     Strategy `yaml:"email_field"`
	ContinueButton Strategy `yaml:"continue_button"`
	PasswordField  Strategy `yaml:"password_field"`
	RememberDevice Strategy `yaml:"remember_device"`
	SignInButton   Strategy `yaml:"sign_in_button"`
	ErrorRegion    Strategy `yaml:"error_region"`
	Challenge      Strategy `yaml:"challenge"`
	SignedInMarker Strategy `yaml:"signed_in_marker"`
}

// ProductLocators covers the product detail surface.
type ProductLocators struct {
	Title        Strategy `yaml:"title"`
	Price        Strategy `yaml:"price"`
	Availability Strategy `yaml:"availability"`
	Condition    Strategy `yaml:"condition"`
	Delivery     Strategy `yaml:"delivery"`
	Points       Strategy `yaml:"points"`
	Shipping     Strategy `yaml:"shipping"`
	Details      Strategy `yaml:"details"`
	AddToCart    Strategy `yaml:"add_to_cart"`
}

// CheckoutLocators covers the cart and checkout surfaces.
type CheckoutLocators struct {
	CartDelete        Strategy `yaml:"cart_delete"`
	ProceedToCheckout Strategy `yaml:"proceed_to_checkout"`
	AddressEntry      Strategy `yaml:"address_entry"`
	AddressUse        Strategy `yaml:"address_use"`
	OrderTotal        Strategy `yaml:"order_total"`
	ShippingCost      Strategy `yaml:"shipping_cost"`
	PlaceOrder        Strategy `yaml:"place_order"`
	Confirmation      Strategy `yaml:"confirmation"`
	OrderID           Strategy `yaml:"order_id"`
}

// LocatorSet is the full locator configuration for the target site.
type LocatorSet struct {
	Login    LoginLocators    `yaml:"login"`
	Product  ProductLocators  `yaml:"product"`
	Checkout CheckoutLocators `yaml:"checkout"`
}

// DefaultLocators returns the built-in candidate lists for the target site's
// desktop EN/JA layouts.
func DefaultLocators() *LocatorSet {
	return &LocatorSet{
		Login: LoginLocators{
			EmailField: Strategy{Name: "email_field", Candidates: []Candidate{
				{Describe: "signin email input", Selector: "#ap_email"},
				{Describe: "generic email input", Selector: "input[name='email']"},
			}},
			ContinueButton: Strategy{Name: "continue_button", Candidates: []Candidate{
				{Describe: "continue button", Selector: "#continue"},
				{Describe: "continue input", Selector: "input#continue"},
			}},
			PasswordField: Strategy{Name: "password_field", Candidates: []Candidate{
				{Describe: "signin password input", Selector: "#ap_password"},
				{Describe: "generic password input", Selector: "input[name='password']"},
			}},
			RememberDevice: Strategy{Name: "remember_device", Candidates: []Candidate{
				{Describe: "remember device checkbox", Selector: "input[name='rememberMe']"},
			}},
			SignInButton: Strategy{Name: "sign_in_button", Candidates: []Candidate{
				{Describe: "signin submit", Selector: "#signInSubmit"},
				{Describe: "signin submit input", Selector: "input#signInSubmit"},
			}},
			ErrorRegion: Strategy{Name: "error_region", Candidates: []Candidate{
				{Describe: "auth error alert", Selector: "#auth-error-message-box .a-alert-content"},
				{Describe: "auth warning alert", Selector: "#auth-warning-message-box .a-alert-content"},
			}},
			Challenge: Strategy{Name: "challenge", Candidates: []Candidate{
				{Describe: "otp code input", Selector: "#auth-mfa-otpcode"},
				{Describe: "captcha image", Selector: "#auth-captcha-image"},
				{Describe: "verification page", Selector: "#cvf-page-content"},
			}},
			SignedInMarker: Strategy{Name: "signed_in_marker", Candidates: []Candidate{
				{Describe: "account nav link", Selector: "#nav-link-accountList"},
				{Describe: "orders nav link", Selector: "#nav-orders"},
			}},
		},
		Product: ProductLocators{
			Title: Strategy{Name: "title", Candidates: []Candidate{
				{Describe: "product title", Selector: "#productTitle"},
			}},
			Price: Strategy{Name: "price", Candidates: []Candidate{
				{Describe: "core price offscreen", Selector: "#corePrice_feature_div .a-offscreen"},
				{Describe: "buybox price", Selector: "#price_inside_buybox"},
				{Describe: "our price block", Selector: "#priceblock_ourprice"},
				{Describe: "generic price offscreen", Selector: ".a-price .a-offscreen"},
			}},
			Availability: Strategy{Name: "availability", Candidates: []Candidate{
				{Describe: "availability block", Selector: "#availability span"},
				{Describe: "availability inline", Selector: "#availabilityInsideBuyBox_feature_div"},
			}},
			Condition: Strategy{Name: "condition", Candidates: []Candidate{
				{Describe: "used buy section", Selector: "#usedBuySection"},
				{Describe: "condition label", Selector: "#condition-type-display"},
			}},
			Delivery: Strategy{Name: "delivery", Candidates: []Candidate{
				{Describe: "delivery promise", Selector: "#mir-layout-DELIVERY_BLOCK span.a-text-bold"},
				{Describe: "delivery block message", Selector: "#deliveryBlockMessage"},
			}},
			Points: Strategy{Name: "points", Candidates: []Candidate{
				{Describe: "points block", Selector: "#points_feature_div"},
			}},
			Shipping: Strategy{Name: "shipping", Candidates: []Candidate{
				{Describe: "shipping message", Selector: "#price-shipping-message"},
				{Describe: "delivery price block", Selector: "#deliveryPriceBadging_feature_div"},
			}},
			Details: Strategy{Name: "details", Candidates: []Candidate{
				{Describe: "product details table", Selector: "#productDetails_detailBullets_sections1"},
				{Describe: "detail bullets", Selector: "#detailBullets_feature_div"},
				{Describe: "product details block", Selector: "#prodDetails"},
			}},
			AddToCart: Strategy{Name: "add_to_cart", Candidates: []Candidate{
				{Describe: "add to cart button", Selector: "#add-to-cart-button"},
				{Describe: "add to cart ubb", Selector: "#add-to-cart-button-ubb"},
			}},
		},
		Checkout: CheckoutLocators{
			CartDelete: Strategy{Name: "cart_delete", Candidates: []Candidate{
				{Describe: "cart delete input", Selector: "input[value='Delete']"},
				{Describe: "cart delete action", Selector: ".sc-action-delete input"},
				{Describe: "cart delete link ja", Selector: "input[value='削除']"},
			}},
			ProceedToCheckout: Strategy{Name: "proceed_to_checkout", Candidates: []Candidate{
				{Describe: "buy box checkout button", Selector: "#sc-buy-box-ptc-button input"},
				{Describe: "proceed to checkout input", Selector: "input[name='proceedToRetailCheckout']"},
			}},
			AddressEntry: Strategy{Name: "address_entry", Candidates: []Candidate{
				{Describe: "address book entry", Selector: ".address-book-entry"},
				{Describe: "address row", Selector: "[data-testid='address-row']"},
			}},
			AddressUse: Strategy{Name: "address_use", Candidates: []Candidate{
				{Describe: "use selected address", Selector: "input[name='shipToThisAddress']"},
				{Describe: "ship to this address link", Selector: ".ship-to-this-address a"},
			}},
			OrderTotal: Strategy{Name: "order_total", Candidates: []Candidate{
				{Describe: "grand total row", Selector: "#subtotals-marketplace-table .grand-total-price"},
				{Describe: "grand total generic", Selector: ".grand-total-price"},
			}},
			ShippingCost: Strategy{Name: "shipping_cost", Candidates: []Candidate{
				{Describe: "shipping subtotal row", Selector: "#subtotals-marketplace-table tr:nth-child(2) td.a-text-right"},
			}},
			PlaceOrder: Strategy{Name: "place_order", Candidates: []Candidate{
				{Describe: "place order input", Selector: "input[name='placeYourOrder1']"},
				{Describe: "place order button", Selector: "#placeOrder input"},
				{Describe: "submit order button", Selector: "#submitOrderButtonId input"},
			}},
			Confirmation: Strategy{Name: "confirmation", Candidates: []Candidate{
				{Describe: "purchase confirmation widget", Selector: "#widget-purchaseConfirmationStatus"},
				{Describe: "thank you alert", Selector: ".a-alert-success .a-alert-heading"},
			}},
			OrderID: Strategy{Name: "order_id", Candidates: []Candidate{
				{Describe: "order number block", Selector: ".order-number"},
				{Describe: "confirmation order text", Selector: "#widget-purchaseConfirmationStatus .a-size-medium"},
				{Describe: "thank you order text", Selector: ".a-alert-success .a-alert-content"},
			}},
		},
	}
}

// LoadLocators returns the defaults overlaid with any strategies present in
// the given YAML file. Strategies absent from the file keep their defaults.
// An empty path returns the defaults unchanged.
func LoadLocators(path string) (*LocatorSet, error) {
	set := DefaultLocators()
	if path == "" {
		return set, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locators file: %w", err)
	}

	var overrides LocatorSet
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse locators file: %w", err)
	}

	mergeStrategies(set, &overrides)
	return set, nil
}

func mergeStrategies(base, overrides *LocatorSet) {
	merge := func(dst *Strategy, src Strategy) {
		if len(src.Candidates) > 0 {
			name := dst.Name
			*dst = src
			if dst.Name == "" {
				dst.Name = name
			}
		}
	}

	merge(&base.Login.EmailField, overrides.Login.EmailField)
	merge(&base.Login.ContinueButton, overrides.Login.ContinueButton)
	merge(&base.Login.PasswordField, overrides.Login.PasswordField)
	merge(&base.Login.RememberDevice, overrides.Login.RememberDevice)
	merge(&base.Login.SignInButton, overrides.Login.SignInButton)
	merge(&base.Login.ErrorRegion, overrides.Login.ErrorRegion)
	merge(&base.Login.Challenge, overrides.Login.Challenge)
	merge(&base.Login.SignedInMarker, overrides.Login.SignedInMarker)

	merge(&base.Product.Title, overrides.Product.Title)
	merge(&base.Product.Price, overrides.Product.Price)
	merge(&base.Product.Availability, overrides.Product.Availability)
	merge(&base.Product.Condition, overrides.Product.Condition)
	merge(&base.Product.Delivery, overrides.Product.Delivery)
	merge(&base.Product.Points, overrides.Product.Points)
	merge(&base.Product.Shipping, overrides.Product.Shipping)
	merge(&base.Product.Details, overrides.Product.Details)
	merge(&base.Product.AddToCart, overrides.Product.AddToCart)

	merge(&base.Checkout.CartDelete, overrides.Checkout.CartDelete)
	merge(&base.Checkout.ProceedToCheckout, overrides.Checkout.ProceedToCheckout)
	merge(&base.Checkout.AddressEntry, overrides.Checkout.AddressEntry)
	merge(&base.Checkout.AddressUse, overrides.Checkout.AddressUse)
	merge(&base.Checkout.OrderTotal, overrides.Checkout.OrderTotal)
	merge(&base.Checkout.ShippingCost, overrides.Checkout.ShippingCost)
	merge(&base.Checkout.PlaceOrder, overrides.Checkout.PlaceOrder)
	merge(&base.Checkout.Confirmation, overrides.Checkout.Confirmation)
	merge(&base.Checkout.OrderID, overrides.Checkout.OrderID)
}
