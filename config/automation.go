package config

import "time"

// AutomationConfig contains browser automation and checkout configuration.
type AutomationConfig struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool `env:"HEADLESS" envDefault:"true"`
	// BrowserBin optionally pins a browser executable; empty means auto-detect
	// a system Chrome, falling back to a managed download.
	BrowserBin string `env:"BROWSER_BIN" envDefault:""`
	// UserDataDir isolates the automation browser profile from any running Chrome.
	UserDataDir string `env:"USER_DATA_DIR" envDefault:""`

	// BaseURL is the target retail site.
	BaseURL string `env:"BASE_URL" envDefault:"https://www.amazon.co.jp"`
	// SignInURL is the sign-in surface the authentication flow navigates to.
	SignInURL string `env:"SIGN_IN_URL" envDefault:"https://www.amazon.co.jp/ap/signin?openid.return_to=https%3A%2F%2Fwww.amazon.co.jp%2F"`
	// CartURL is the cart view the checkout machine starts from.
	CartURL string `env:"CART_URL" envDefault:"https://www.amazon.co.jp/gp/cart/view.html"`

	// SessionIdleTTL is how long a cached authenticated session may sit idle
	// before it is discarded on the next acquire.
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"10m"`
	// SessionStateTTL bounds how long persisted cookie snapshots live in redis.
	SessionStateTTL time.Duration `env:"SESSION_STATE_TTL" envDefault:"720h"`

	// StepTimeout bounds a single checkout state.
	StepTimeout time.Duration `env:"STEP_TIMEOUT" envDefault:"20s"`
	// ElementTimeout bounds one candidate-locator wait.
	ElementTimeout time.Duration `env:"ELEMENT_TIMEOUT" envDefault:"3s"`
	// SettleDelay is the pause before the confirmation marker is checked.
	SettleDelay time.Duration `env:"SETTLE_DELAY" envDefault:"2s"`
	// JobTimeout bounds one full pipeline run.
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"4m"`

	// ScreenshotDir is where diagnostic captures are written.
	ScreenshotDir string `env:"SCREENSHOT_DIR" envDefault:"diagnostics"`
	// AddressMatchDelta is the maximum character-count difference tolerated by
	// the fuzzy address fallback.
	AddressMatchDelta int `env:"ADDRESS_MATCH_DELTA" envDefault:"8"`
	// RememberDevice opts into the sign-in page's remember-this-device checkbox
	// when offered, reducing repeat second-factor challenges.
	RememberDevice bool `env:"REMEMBER_DEVICE" envDefault:"true"`

	// LocatorsFile optionally overrides the built-in locator candidate lists.
	LocatorsFile string `env:"LOCATORS_FILE" envDefault:""`
	// AccountsFile maps account references to decrypted login identities.
	AccountsFile string `env:"ACCOUNTS_FILE" envDefault:"accounts.yaml"`
}

// Sanitize clamps automation settings to safe values.
func (c *AutomationConfig) Sanitize() {
	if c.SessionIdleTTL <= 0 {
		c.SessionIdleTTL = 10 * time.Minute
	}
	if c.SessionStateTTL <= 0 {
		c.SessionStateTTL = 720 * time.Hour
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 20 * time.Second
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 3 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 4 * time.Minute
	}
	if c.AddressMatchDelta < 0 {
		c.AddressMatchDelta = 0
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "diagnostics"
	}
}
