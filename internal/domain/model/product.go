package model

import "time"

// Price is a parsed monetary amount with an optional currency symbol.
// Currency is empty when the scraped text carried no recognizable symbol.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

// ProductCondition classifies the listing condition extracted from the page.
type ProductCondition string

const (
	// ConditionNew indicates a new-item listing.
	ConditionNew ProductCondition = "new"
	// ConditionUsed indicates a used or refurbished listing.
	ConditionUsed ProductCondition = "used"
	// ConditionUnknown indicates no condition text was extracted.
	ConditionUnknown ProductCondition = "unknown"
)

// ProductSnapshot is the read-only result of a verification pass. It is a
// value object: created per call, never mutated, owned by the caller.
type ProductSnapshot struct {
	ProductRef       string           `json:"product_ref"`
	Price            *Price           `json:"price,omitempty"`
	Available        bool             `json:"available"`
	Condition        ProductCondition `json:"condition"`
	CatalogID        string           `json:"catalog_id,omitempty"`
	DeliveryEstimate *time.Time       `json:"delivery_estimate,omitempty"`
	PointsEstimate   int              `json:"points_estimate,omitempty"`
	ShippingText     string           `json:"shipping_text,omitempty"`
	FetchedAt        time.Time        `json:"fetched_at"`
}

// Confident reports whether the snapshot carries enough signal for a
// pre-purchase decision. Low-confidence snapshots are surfaced as-is;
// callers decide whether they block a purchase.
func (s *ProductSnapshot) Confident() bool {
	return s.Price != nil && s.CatalogID != ""
}

// PurchaseOutcome is the result of a successful checkout attempt. An outcome
// with a populated OrderID is only ever produced after the pipeline observed
// an order-confirmation marker; it is never fabricated from a
// pre-confirmation page state.
type PurchaseOutcome struct {
	OrderID      string `json:"order_id"`
	FinalPrice   Price  `json:"final_price"`
	ShippingCost *Price `json:"shipping_cost,omitempty"`
	PointsUsed   int    `json:"points_used,omitempty"`
}
