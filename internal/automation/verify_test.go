package automation

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	cfg := checkoutTestConfig()
	v := NewVerifier(cfg, DefaultLocators(), slog.Default())
	v.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }
	return v
}

func TestVerifier_FullSnapshot(t *testing.T) {
	v := newTestVerifier(t)

	page := newFakePage()
	page.elements["#corePrice_feature_div .a-offscreen"] = &fakeElement{text: "￥3,500"}
	page.elements["#availability span"] = &fakeElement{text: "In Stock."}
	page.elements["#condition-type-display"] = &fakeElement{text: "New"}
	page.elements["#mir-layout-DELIVERY_BLOCK span.a-text-bold"] = &fakeElement{text: "Sunday, August 30"}
	page.elements["#points_feature_div"] = &fakeElement{text: "35pt (1%)"}
	page.elements["#price-shipping-message"] = &fakeElement{text: "FREE delivery"}

	snapshot, err := v.Verify(context.Background(), page, testProductRef)
	require.NoError(t, err)

	require.NotNil(t, snapshot.Price)
	assert.Equal(t, float64(3500), snapshot.Price.Amount)
	assert.Equal(t, "¥", snapshot.Price.Currency)
	assert.True(t, snapshot.Available)
	assert.Equal(t, "new", string(snapshot.Condition))
	assert.Equal(t, "B0TESTASIN", snapshot.CatalogID)
	assert.Equal(t, 35, snapshot.PointsEstimate)
	assert.Equal(t, "FREE delivery", snapshot.ShippingText)
	require.NotNil(t, snapshot.DeliveryEstimate)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), *snapshot.DeliveryEstimate)
	assert.True(t, snapshot.Confident())
}

func TestVerifier_DetailsTableCatalogIDPreferred(t *testing.T) {
	v := newTestVerifier(t)

	// URL token and details table disagree; the on-page value wins.
	page := newFakePage()
	page.elements["#productDetails_detailBullets_sections1"] = &fakeElement{
		text: "ASIN : B0DETAILSX\nCustomer Reviews 4.5",
	}

	snapshot, err := v.Verify(context.Background(), page, testProductRef)
	require.NoError(t, err)
	assert.Equal(t, "B0DETAILSX", snapshot.CatalogID)
}

func TestVerifier_SparsePageIsNotAnError(t *testing.T) {
	v := newTestVerifier(t)
	page := newFakePage()

	snapshot, err := v.Verify(context.Background(), page, testProductRef)
	require.NoError(t, err)
	assert.Nil(t, snapshot.Price)
	assert.False(t, snapshot.Available)
	assert.Equal(t, "unknown", string(snapshot.Condition))
	assert.False(t, snapshot.Confident())
}

func TestVerifier_CatalogIDFallbackFetch(t *testing.T) {
	v := newTestVerifier(t)

	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session-token"); err == nil {
			gotCookie = c.Value
		}
		_, _ = w.Write([]byte(`<html><div data-asin="B0FALLBACK"></div></html>`))
	}))
	defer srv.Close()

	page := newFakePage()
	page.cookies = []Cookie{{Name: "session-token", Value: "tok", Path: "/"}}

	// The landing URL carries no catalog identifier, forcing the HTTP fallback.
	snapshot, err := v.Verify(context.Background(), page, srv.URL+"/item/opaque-slug")
	require.NoError(t, err)
	assert.Equal(t, "B0FALLBACK", snapshot.CatalogID)
	assert.Equal(t, "tok", gotCookie, "fallback fetch reuses session cookies")
}

func TestVerifier_EmptyProductRef(t *testing.T) {
	v := newTestVerifier(t)
	_, err := v.Verify(context.Background(), newFakePage(), "")
	require.Error(t, err)
}
