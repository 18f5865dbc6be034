// Package automation drives a stealth browser through the retail site's
// sign-in, product, and checkout surfaces.
package automation

import (
	"errors"
	"time"
)

// ErrElementNotFound is returned when no element matched a selector within
// the wait window.
var ErrElementNotFound = errors.New("element not found")

// Cookie is a browser cookie captured from or restored into a page.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	HTTPOnly bool      `json:"http_only"`
	Secure   bool      `json:"secure"`
}

// SessionState is the persistable part of an authenticated browser session.
type SessionState struct {
	AccountRef string    `json:"account_ref"`
	Cookies    []Cookie  `json:"cookies"`
	UserAgent  string    `json:"user_agent"`
	CapturedAt time.Time `json:"captured_at"`
}

// Element is a located DOM element.
type Element interface {
	Text() (string, error)
	Attribute(name string) (*string, error)
	Click() error
	Input(text string) error
	Visible() (bool, error)
}

// Page abstracts the browser page so pipeline logic can run against fixture
// DOMs in tests. The rod-backed implementation lives in browser.go.
type Page interface {
	Navigate(url string) error
	WaitLoad() error
	URL() string
	HTML() (string, error)
	// Element waits up to timeout for a selector match.
	Element(selector string, timeout time.Duration) (Element, error)
	Elements(selector string) ([]Element, error)
	Has(selector string) (bool, error)
	Screenshot() ([]byte, error)
	Cookies() ([]Cookie, error)
	SetCookies(cookies []Cookie) error
	SetUserAgent(ua string) error
	Close() error
}
