package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrSessionBusy is returned when an account's session slot is already held
// by an in-flight attempt. Callers get the error immediately; a second handle
// to the same account is never issued.
var ErrSessionBusy = errors.New("session for account is busy")

// ErrStateNotFound is returned by a StateStore when no persisted session
// state exists for an account.
var ErrStateNotFound = errors.New("session state not found")

// PageFactory opens fresh browser pages. *Browser satisfies this.
type PageFactory interface {
	NewPage() (Page, error)
}

// StateStore persists session state across process restarts.
type StateStore interface {
	Save(ctx context.Context, accountRef string, state *SessionState) error
	Load(ctx context.Context, accountRef string) (*SessionState, error)
	Delete(ctx context.Context, accountRef string) error
}

// Session is an exclusively-held browser session for one account.
type Session struct {
	AccountRef    string
	Page          Page
	Authenticated bool
	UserAgent     string
}

type slot struct {
	sess     *Session
	inUse    bool
	lastUsed time.Time
}

// SessionPool hands out at most one live session per account. Sessions are
// kept warm between jobs and evicted after sitting idle past the TTL.
type SessionPool struct {
	factory PageFactory
	store   StateStore
	idleTTL time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	slots map[string]*slot
	now   func() time.Time
}

// PoolOptions configures a SessionPool. Store is optional; without one,
// sessions live only as long as the process.
type PoolOptions struct {
	Factory PageFactory
	Store   StateStore
	IdleTTL time.Duration
	Logger  *slog.Logger
}

// NewSessionPool creates a session pool.
func NewSessionPool(opts PoolOptions) (*SessionPool, error) {
	if opts.Factory == nil {
		return nil, errors.New("page factory is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	idleTTL := opts.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}

	return &SessionPool{
		factory: opts.Factory,
		store:   opts.Store,
		idleTTL: idleTTL,
		logger:  opts.Logger,
		slots:   make(map[string]*slot),
		now:     time.Now,
	}, nil
}

// Acquire returns the account's session, creating one if needed. A busy slot
// fails fast with ErrSessionBusy rather than queueing: the colliding job is
// rescheduled by its caller, keeping per-account ordering out of the pool.
func (p *SessionPool) Acquire(ctx context.Context, accountRef string) (*Session, error) {
	if accountRef == "" {
		return nil, errors.New("account ref is required")
	}

	p.mu.Lock()
	s, ok := p.slots[accountRef]
	if ok && s.inUse {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, accountRef)
	}

	if ok && p.now().Sub(s.lastUsed) > p.idleTTL {
		// Stale session: the site has likely expired it server-side.
		p.logger.Info("evicting idle session", "account_ref", accountRef)
		p.closeSlotLocked(accountRef, s)
		ok = false
	}

	if ok {
		s.inUse = true
		p.mu.Unlock()
		return s.sess, nil
	}

	// Reserve the slot before the slow page setup so a concurrent acquire
	// for the same account is rejected, not doubled.
	s = &slot{inUse: true, lastUsed: p.now()}
	p.slots[accountRef] = s
	p.mu.Unlock()

	sess, err := p.createSession(ctx, accountRef)
	if err != nil {
		p.mu.Lock()
		delete(p.slots, accountRef)
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	s.sess = sess
	p.mu.Unlock()
	return sess, nil
}

func (p *SessionPool) createSession(ctx context.Context, accountRef string) (*Session, error) {
	page, err := p.factory.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open session page: %w", err)
	}

	sess := &Session{AccountRef: accountRef, Page: page}

	if p.store != nil {
		state, loadErr := p.store.Load(ctx, accountRef)
		switch {
		case loadErr == nil && state != nil:
			if restoreErr := p.restoreState(sess, state); restoreErr != nil {
				p.logger.Warn("session state restore failed, starting fresh",
					"account_ref", accountRef, "error", restoreErr)
			} else {
				// Restored cookies still need a live-session check by the
				// authenticator before the session counts as signed in.
				p.logger.Info("session state restored", "account_ref", accountRef,
					"captured_at", state.CapturedAt)
			}
		case loadErr != nil && !errors.Is(loadErr, ErrStateNotFound):
			p.logger.Warn("session state load failed", "account_ref", accountRef, "error", loadErr)
		}
	}

	return sess, nil
}

func (p *SessionPool) restoreState(sess *Session, state *SessionState) error {
	if len(state.Cookies) == 0 {
		return errors.New("state has no cookies")
	}
	if err := sess.Page.SetCookies(state.Cookies); err != nil {
		return err
	}
	if state.UserAgent != "" {
		if err := sess.Page.SetUserAgent(state.UserAgent); err != nil {
			return err
		}
		sess.UserAgent = state.UserAgent
	}
	return nil
}

// Release returns the session to the pool for reuse by the next job.
func (p *SessionPool) Release(sess *Session) {
	if sess == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[sess.AccountRef]
	if !ok {
		return
	}
	s.inUse = false
	s.lastUsed = p.now()
}

// Persist saves the session's cookies so a restarted process can resume it.
// Persistence failures are logged, never fatal: the session itself is intact.
func (p *SessionPool) Persist(ctx context.Context, sess *Session) {
	if p.store == nil || sess == nil || !sess.Authenticated {
		return
	}

	cookies, err := sess.Page.Cookies()
	if err != nil {
		p.logger.Warn("session cookie capture failed", "account_ref", sess.AccountRef, "error", err)
		return
	}

	state := &SessionState{
		AccountRef: sess.AccountRef,
		Cookies:    cookies,
		UserAgent:  sess.UserAgent,
		CapturedAt: p.now(),
	}
	if err := p.store.Save(ctx, sess.AccountRef, state); err != nil {
		p.logger.Warn("session state save failed", "account_ref", sess.AccountRef, "error", err)
	}
}

// Invalidate closes the session and deletes any persisted state. Used when
// authentication failed or the site force-logged the account out.
func (p *SessionPool) Invalidate(ctx context.Context, sess *Session) {
	if sess == nil {
		return
	}

	p.mu.Lock()
	if s, ok := p.slots[sess.AccountRef]; ok {
		p.closeSlotLocked(sess.AccountRef, s)
	}
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Delete(ctx, sess.AccountRef); err != nil {
			p.logger.Warn("session state delete failed", "account_ref", sess.AccountRef, "error", err)
		}
	}
}

// ReleaseAll closes every session. Called on shutdown.
func (p *SessionPool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for ref, s := range p.slots {
		p.closeSlotLocked(ref, s)
	}
}

func (p *SessionPool) closeSlotLocked(accountRef string, s *slot) {
	if s.sess != nil && s.sess.Page != nil {
		if err := s.sess.Page.Close(); err != nil {
			p.logger.Warn("session page close failed", "account_ref", accountRef, "error", err)
		}
	}
	delete(p.slots, accountRef)
}
