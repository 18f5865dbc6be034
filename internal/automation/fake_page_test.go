package automation

import (
	"context"
	"fmt"
	"time"
)

// fakeElement is a scripted DOM element for pipeline tests.
type fakeElement struct {
	text     string
	attrs    map[string]string
	visible  bool
	clickErr error
	inputErr error
	textErr  error

	clicks  int
	inputs  []string
	onClick func()
}

func (e *fakeElement) Text() (string, error) {
	if e.textErr != nil {
		return "", e.textErr
	}
	return e.text, nil
}

func (e *fakeElement) Attribute(name string) (*string, error) {
	if v, ok := e.attrs[name]; ok {
		return &v, nil
	}
	return nil, nil
}

func (e *fakeElement) Click() error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *fakeElement) Input(text string) error {
	if e.inputErr != nil {
		return e.inputErr
	}
	e.inputs = append(e.inputs, text)
	return nil
}

func (e *fakeElement) Visible() (bool, error) {
	return e.visible, nil
}

// fakePage is a scripted page. Selectors map to elements; Navigate records
// the URL and lets onNavigate swap in the next page state.
type fakePage struct {
	url      string
	html     string
	elements map[string]*fakeElement
	multi    map[string][]*fakeElement

	navigated  []string
	navErr     map[string]error
	onNavigate func(url string)

	cookies       []Cookie
	setCookiesErr error
	screenshot    []byte
	screenshotErr error
	userAgent     string
	closed        bool
}

func newFakePage() *fakePage {
	return &fakePage{
		elements:   map[string]*fakeElement{},
		multi:      map[string][]*fakeElement{},
		navErr:     map[string]error{},
		screenshot: []byte("png"),
	}
}

func (p *fakePage) Navigate(url string) error {
	if err := p.navErr[url]; err != nil {
		return err
	}
	p.url = url
	p.navigated = append(p.navigated, url)
	if p.onNavigate != nil {
		p.onNavigate(url)
	}
	return nil
}

func (p *fakePage) WaitLoad() error { return nil }

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) HTML() (string, error) { return p.html, nil }

func (p *fakePage) Element(selector string, _ time.Duration) (Element, error) {
	if el, ok := p.elements[selector]; ok {
		return el, nil
	}
	if els, ok := p.multi[selector]; ok && len(els) > 0 {
		return els[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
}

func (p *fakePage) Elements(selector string) ([]Element, error) {
	els, ok := p.multi[selector]
	if !ok {
		return nil, nil
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (p *fakePage) Has(selector string) (bool, error) {
	if _, ok := p.elements[selector]; ok {
		return true, nil
	}
	els, ok := p.multi[selector]
	return ok && len(els) > 0, nil
}

func (p *fakePage) Screenshot() ([]byte, error) {
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	return p.screenshot, nil
}

func (p *fakePage) Cookies() ([]Cookie, error) { return p.cookies, nil }

func (p *fakePage) SetCookies(cookies []Cookie) error {
	if p.setCookiesErr != nil {
		return p.setCookiesErr
	}
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *fakePage) SetUserAgent(ua string) error {
	p.userAgent = ua
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

// fakeFactory hands out a queue of fake pages.
type fakeFactory struct {
	pages []*fakePage
	err   error
	made  int
}

func (f *fakeFactory) NewPage() (Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.made >= len(f.pages) {
		p := newFakePage()
		f.pages = append(f.pages, p)
	}
	p := f.pages[f.made]
	f.made++
	return p, nil
}

// fakeStateStore is an in-memory StateStore.
type fakeStateStore struct {
	states  map[string]*SessionState
	saveErr error
	loadErr error
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: map[string]*SessionState{}}
}

func (s *fakeStateStore) Save(_ context.Context, accountRef string, state *SessionState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[accountRef] = state
	return nil
}

func (s *fakeStateStore) Load(_ context.Context, accountRef string) (*SessionState, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	state, ok := s.states[accountRef]
	if !ok {
		return nil, ErrStateNotFound
	}
	return state, nil
}

func (s *fakeStateStore) Delete(_ context.Context, accountRef string) error {
	delete(s.states, accountRef)
	return nil
}
