package automation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/skuflow/skuflow/config"
	"github.com/skuflow/skuflow/internal/domain/model"
)

// StateAuthenticate is the pipeline state name for the sign-in flow.
const StateAuthenticate = "authenticate"

// Authenticator drives the retail site's sign-in flow on a pooled session.
type Authenticator struct {
	cfg      config.AutomationConfig
	locators *LocatorSet
	diag     *Diagnostics
	logger   *slog.Logger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(cfg config.AutomationConfig, locators *LocatorSet, diag *Diagnostics, logger *slog.Logger) *Authenticator {
	return &Authenticator{cfg: cfg, locators: locators, diag: diag, logger: logger}
}

// transient phrases in sign-in errors that indicate a server-side hiccup
// rather than bad credentials.
var transientLoginPhrases = []string{
	"temporarily",
	"try again",
	"too many attempts",
	"something went wrong",
	"しばらく",
	"時間をおいて",
}

// Authenticate signs the session's account in, reusing restored cookies when
// the site still honors them. On success the session is marked authenticated.
// The returned failure carries its retry-safe flag decided here, at the point
// of detection.
func (a *Authenticator) Authenticate(ctx context.Context, sess *Session, creds *model.AccountCredentials, jobID string) *model.AutomationFailure {
	if err := creds.Validate(); err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, err.Error(), false)
	}

	// Restored cookies are verified against the live site before any
	// credential entry; a still-valid session skips the form entirely.
	if a.sessionStillValid(sess) {
		a.logger.Info("restored session still valid", "account_ref", sess.AccountRef)
		sess.Authenticated = true
		return nil
	}

	if failure := a.submitCredentials(sess, creds); failure != nil {
		return a.withCapture(sess, jobID, failure)
	}

	return a.readOutcome(sess, jobID)
}

func (a *Authenticator) sessionStillValid(sess *Session) bool {
	if err := sess.Page.Navigate(a.cfg.BaseURL); err != nil {
		return false
	}
	if err := sess.Page.WaitLoad(); err != nil {
		return false
	}
	marker, _, err := a.locators.Login.SignedInMarker.First(sess.Page, a.cfg.ElementTimeout)
	if err != nil {
		return false
	}
	// The nav marker renders for signed-out visitors too, with a sign-in
	// prompt as its text.
	text, err := marker.Text()
	if err != nil {
		return false
	}
	t := strings.ToLower(text)
	if strings.Contains(t, "sign in") || strings.Contains(t, "ログイン") {
		return false
	}
	return true
}

func (a *Authenticator) submitCredentials(sess *Session, creds *model.AccountCredentials) *model.AutomationFailure {
	page := sess.Page

	if err := page.Navigate(a.cfg.SignInURL); err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "sign-in page unreachable: "+err.Error(), true)
	}
	if err := page.WaitLoad(); err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "sign-in page did not load: "+err.Error(), true)
	}

	email, _, err := a.locators.Login.EmailField.First(page, a.cfg.ElementTimeout)
	if err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "email field not found", false)
	}
	if err := email.Input(creds.Email); err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "email input failed: "+err.Error(), true)
	}

	// The two-step variant shows a continue button between email and
	// password; the single-form variant does not.
	if cont, _, err := a.locators.Login.ContinueButton.First(page, a.cfg.ElementTimeout); err == nil {
		if err := cont.Click(); err != nil {
			return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "continue click failed: "+err.Error(), true)
		}
	}

	password, _, err := a.locators.Login.PasswordField.First(page, a.cfg.ElementTimeout)
	if err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "password field not found", false)
	}
	if err := password.Input(creds.Password); err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "password input failed: "+err.Error(), true)
	}

	if a.cfg.RememberDevice {
		if remember, _, err := a.locators.Login.RememberDevice.First(page, a.cfg.ElementTimeout); err == nil {
			if err := remember.Click(); err != nil {
				a.logger.Warn("remember device toggle failed", "error", err)
			}
		}
	}

	submit, _, err := a.locators.Login.SignInButton.First(page, a.cfg.ElementTimeout)
	if err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "sign-in button not found", false)
	}
	if err := submit.Click(); err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "sign-in click failed: "+err.Error(), true)
	}
	if err := page.WaitLoad(); err != nil {
		return model.NewFailure(model.CodeLoginRejected, StateAuthenticate, "post-sign-in page did not load: "+err.Error(), true)
	}

	return nil
}

// readOutcome classifies the post-submit page. Checks are ordered: a
// verification challenge wins over an error banner; a page carrying neither
// is an authenticated success.
func (a *Authenticator) readOutcome(sess *Session, jobID string) *model.AutomationFailure {
	page := sess.Page

	if _, _, err := a.locators.Login.Challenge.First(page, a.cfg.ElementTimeout); err == nil {
		failure := model.NewFailure(model.CodeSecondFactorRequired, StateAuthenticate,
			"verification challenge presented", false)
		return a.withCapture(sess, jobID, failure)
	}

	if errRegion, _, err := a.locators.Login.ErrorRegion.First(page, a.cfg.ElementTimeout); err == nil {
		text, _ := errRegion.Text()
		retrySafe := isTransientLoginError(text)
		failure := model.NewFailure(model.CodeLoginRejected, StateAuthenticate,
			"sign-in rejected: "+strings.TrimSpace(text), retrySafe)
		return a.withCapture(sess, jobID, failure)
	}

	sess.Authenticated = true
	a.logger.Info("sign-in succeeded", "account_ref", sess.AccountRef)
	return nil
}

func (a *Authenticator) withCapture(sess *Session, jobID string, failure *model.AutomationFailure) *model.AutomationFailure {
	return failure.WithDiagnostic(a.diag.Capture(sess.Page, jobID, StateAuthenticate))
}

func isTransientLoginError(text string) bool {
	t := strings.ToLower(text)
	for _, phrase := range transientLoginPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}
