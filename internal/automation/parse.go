package automation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/skuflow/skuflow/internal/domain/model"
)

var (
	priceRe     = regexp.MustCompile(`([$€£¥￥]?)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	pointsRe    = regexp.MustCompile(`([0-9][0-9,]*)\s*(?:pt|ポイント|points?)`)
	catalogIDRe = regexp.MustCompile(`/(?:dp|gp/product|gp/aw/d)/([A-Z0-9]{10})(?:[/?#]|$)`)
	orderIDRe   = regexp.MustCompile(`\b(\d{3}-\d{7}-\d{7})\b`)

	// "August 30" / "Aug 30"
	deliveryMonthDayRe = regexp.MustCompile(`(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+([0-9]{1,2})`)
	// "8月30日"
	deliveryJaRe = regexp.MustCompile(`([0-9]{1,2})月([0-9]{1,2})日`)
	// bare day of month: "Arrives on the 30th" / "30日"
	deliveryBareDayRe = regexp.MustCompile(`\b([0-9]{1,2})(?:st|nd|rd|th)\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParsePrice extracts the first amount from scraped price text. "¥3,500"
// parses to amount 3500 with currency "¥"; a bare "3500" parses to the same
// amount with no currency. Text without digits returns nil.
func ParsePrice(text string) *model.Price {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return nil
	}

	currency := m[1]
	if currency == "￥" {
		currency = "¥"
	}
	return &model.Price{Amount: amount, Currency: currency}
}

// ParseAvailability reports whether the availability text indicates the
// product can be bought now. The phrase list is an allow-list: unknown
// phrasing never green-lights a purchase.
func ParseAvailability(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, phrase := range []string{"in stock", "usually ships", "在庫あり"} {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	// "Only N left in stock" and "残りN点" variants.
	if strings.HasPrefix(t, "only ") && strings.Contains(t, "left") {
		return true
	}
	if strings.HasPrefix(t, "残り") {
		return true
	}
	return false
}

// ParseCondition classifies the listing condition text.
func ParseCondition(text string) model.ProductCondition {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "":
		return model.ConditionUnknown
	case strings.Contains(t, "used") || strings.Contains(t, "renewed") ||
		strings.Contains(t, "中古") || strings.Contains(t, "再生品"):
		return model.ConditionUsed
	case strings.Contains(t, "new") || strings.Contains(t, "新品"):
		return model.ConditionNew
	default:
		return model.ConditionUnknown
	}
}

// ParseDeliveryDate extracts a delivery estimate from promise text, resolved
// against now. Dates carry no year, so a date that already passed this year
// rolls into the next one; a bare day of month rolls into next month.
func ParseDeliveryDate(text string, now time.Time) *time.Time {
	if m := deliveryJaRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		return resolveMonthDay(time.Month(month), day, now)
	}

	if m := deliveryMonthDayRe.FindStringSubmatch(text); m != nil {
		month, ok := monthsByPrefix[strings.ToLower(m[1][:3])]
		if !ok {
			return nil
		}
		day, _ := strconv.Atoi(m[2])
		return resolveMonthDay(month, day, now)
	}

	if m := deliveryBareDayRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		return resolveBareDay(day, now)
	}

	return nil
}

func resolveMonthDay(month time.Month, day int, now time.Time) *time.Time {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return nil
	}
	candidate := time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location())
	if candidate.Before(now.Truncate(24 * time.Hour)) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return &candidate
}

func resolveBareDay(day int, now time.Time) *time.Time {
	if day < 1 || day > 31 {
		return nil
	}
	candidate := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())
	if candidate.Before(now.Truncate(24 * time.Hour)) {
		candidate = candidate.AddDate(0, 1, 0)
	}
	return &candidate
}

// ParsePoints extracts a loyalty-points estimate from scraped text.
func ParsePoints(text string) int {
	m := pointsRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	points, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return points
}

// "ASIN : B000123456" / "ASIN： B000123456" rows in the details table.
var catalogIDDetailsRe = regexp.MustCompile(`ASIN[\s:：]*([A-Z0-9]{10})`)

// CatalogIDFromDetails extracts the catalog identifier from product-details
// table or bullet text, or "" when none is labelled.
func CatalogIDFromDetails(text string) string {
	m := catalogIDDetailsRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// CatalogIDFromURL extracts the ten-character catalog identifier from a
// product URL, or "" when the URL carries none.
func CatalogIDFromURL(url string) string {
	m := catalogIDRe.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

var catalogIDHTMLRes = []*regexp.Regexp{
	regexp.MustCompile(`"ASIN"\s*:\s*"([A-Z0-9]{10})"`),
	regexp.MustCompile(`data-asin="([A-Z0-9]{10})"`),
	regexp.MustCompile(`name="ASIN"\s+value="([A-Z0-9]{10})"`),
}

// catalogIDFromHTML scans raw page HTML for an embedded catalog identifier.
func catalogIDFromHTML(html string) string {
	for _, re := range catalogIDHTMLRes {
		if m := re.FindStringSubmatch(html); m != nil {
			return m[1]
		}
	}
	return ""
}

// OrderIDFromText extracts an order identifier from confirmation text, or "".
func OrderIDFromText(text string) string {
	m := orderIDRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
