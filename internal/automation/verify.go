package automation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/skuflow/skuflow/config"
	"github.com/skuflow/skuflow/internal/domain/model"
)

// Verifier reads a product page into a snapshot without touching the cart.
// Extraction is tolerant: a control that cannot be found leaves its field
// zero-valued rather than failing the pass.
type Verifier struct {
	cfg      config.AutomationConfig
	locators *LocatorSet
	logger   *slog.Logger
	now      func() time.Time
}

// NewVerifier creates a product verifier.
func NewVerifier(cfg config.AutomationConfig, locators *LocatorSet, logger *slog.Logger) *Verifier {
	return &Verifier{cfg: cfg, locators: locators, logger: logger, now: time.Now}
}

// Verify loads the product page in the session and extracts a snapshot.
func (v *Verifier) Verify(ctx context.Context, page Page, productRef string) (*model.ProductSnapshot, error) {
	if productRef == "" {
		return nil, fmt.Errorf("product ref is required")
	}

	if err := page.Navigate(productRef); err != nil {
		return nil, fmt.Errorf("load product page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("product page did not load: %w", err)
	}

	snapshot := v.extract(page, productRef)

	// A page variant that hides the catalog ID from the URL still embeds it
	// in the HTML; fall back to a plain fetch before giving up on it.
	if snapshot.CatalogID == "" {
		if id, err := v.catalogIDViaHTTP(ctx, page); err != nil {
			v.logger.Warn("catalog id fallback failed", "product_ref", productRef, "error", err)
		} else {
			snapshot.CatalogID = id
		}
	}

	if !snapshot.Confident() {
		v.logger.Warn("low-confidence product snapshot",
			"product_ref", productRef,
			"has_price", snapshot.Price != nil,
			"catalog_id", snapshot.CatalogID,
		)
	}

	return snapshot, nil
}

func (v *Verifier) extract(page Page, productRef string) *model.ProductSnapshot {
	timeout := v.cfg.ElementTimeout
	now := v.now()

	snapshot := &model.ProductSnapshot{
		ProductRef: productRef,
		FetchedAt:  now,
	}

	snapshot.Price = ParsePrice(v.locators.Product.Price.FirstText(page, timeout))
	snapshot.Available = ParseAvailability(v.locators.Product.Availability.FirstText(page, timeout))
	snapshot.Condition = ParseCondition(v.locators.Product.Condition.FirstText(page, timeout))
	snapshot.ShippingText = strings.TrimSpace(v.locators.Product.Shipping.FirstText(page, timeout))
	snapshot.PointsEstimate = ParsePoints(v.locators.Product.Points.FirstText(page, timeout))
	snapshot.DeliveryEstimate = ParseDeliveryDate(v.locators.Product.Delivery.FirstText(page, timeout), now)

	// The details table is authoritative; the URL token is only a fallback
	// (affiliate and search URLs can carry a different product's token).
	snapshot.CatalogID = CatalogIDFromDetails(v.locators.Product.Details.FirstText(page, timeout))
	if snapshot.CatalogID == "" {
		snapshot.CatalogID = CatalogIDFromURL(page.URL())
	}

	return snapshot
}

// catalogIDViaHTTP refetches the page over plain HTTP with the session's
// cookies and scans the HTML for the catalog identifier.
func (v *Verifier) catalogIDViaHTTP(ctx context.Context, page Page) (string, error) {
	pageURL := page.URL()
	if pageURL == "" {
		return "", fmt.Errorf("page has no url")
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return "", fmt.Errorf("create cookie jar: %w", err)
	}

	if cookies, cerr := page.Cookies(); cerr == nil {
		if u, perr := url.Parse(pageURL); perr == nil {
			httpCookies := make([]*http.Cookie, 0, len(cookies))
			for _, c := range cookies {
				httpCookies = append(httpCookies, &http.Cookie{
					Name:   c.Name,
					Value:  c.Value,
					Domain: c.Domain,
					Path:   c.Path,
				})
			}
			jar.SetCookies(u, httpCookies)
		}
	}

	client := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}

	if id := CatalogIDFromURL(pageURL); id != "" {
		return id, nil
	}
	return catalogIDFromHTML(string(body)), nil
}
