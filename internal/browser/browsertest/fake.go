// Package browsertest provides a scripted in-memory browser.Handle for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/browser"
)

// Page is a scripted portal page. Hooks mutate the page to simulate what the
// portal does after a click or a selection.
type Page struct {
	mu sync.Mutex

	URL      string
	Elements map[string]bool
	Options  map[string][]string
	Values   map[string]string
	Selected map[string]string
	Clicks   []string
	HTML     string

	OnNavigate func(p *Page, url string)
	OnClick    map[string]func(p *Page)
	OnSelect   map[string]func(p *Page, text string)

	NavigateErr error
	closes      int
	closed      bool
	// Block, when set, is received from inside Markup so tests can hold a step open.
	Block chan struct{}
}

// NewPage returns an empty page with initialized maps.
func NewPage() *Page {
	return &Page{
		Elements: map[string]bool{},
		Options:  map[string][]string{},
		Values:   map[string]string{},
		Selected: map[string]string{},
		OnClick:  map[string]func(p *Page){},
		OnSelect: map[string]func(p *Page, text string){},
	}
}

// Show marks selectors as present.
func (p *Page) Show(selectors ...string) {
	for _, s := range selectors {
		p.Elements[s] = true
	}
}

// Hide removes selectors.
func (p *Page) Hide(selectors ...string) {
	for _, s := range selectors {
		delete(p.Elements, s)
	}
}

// Closes reports how many times Close was called.
func (p *Page) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// Value returns what was filled into selector.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Values[selector]
}

// Choice returns the option selected in selector.
func (p *Page) Choice(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Selected[selector]
}

// Clicked returns a copy of the click log.
func (p *Page) Clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Clicks...)
}

func (p *Page) lock() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return browser.ErrClosed
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.URL = url
	if p.OnNavigate != nil {
		p.OnNavigate(p, url)
	}
	return nil
}

func (p *Page) WaitFor(ctx context.Context, selector string, cond browser.Condition, timeout time.Duration) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if p.Elements[selector] {
		return nil
	}
	return fmt.Errorf("%s %s: %w", selector, cond, browser.ErrTimeout)
}

func (p *Page) Has(ctx context.Context, selector string) bool {
	if err := p.lock(); err != nil {
		return false
	}
	defer p.mu.Unlock()
	return p.Elements[selector]
}

func (p *Page) Fill(ctx context.Context, selector, text string) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if !p.Elements[selector] {
		return fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
	}
	p.Values[selector] = text
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if !p.Elements[selector] {
		return fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
	}
	p.Clicks = append(p.Clicks, selector)
	if hook := p.OnClick[selector]; hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) SelectByText(ctx context.Context, selector, text string, timeout time.Duration) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()
	for _, opt := range p.Options[selector] {
		if opt == text {
			p.Selected[selector] = text
			if hook := p.OnSelect[selector]; hook != nil {
				hook(p, text)
			}
			return nil
		}
	}
	return fmt.Errorf("option %q in %s: %w", text, selector, browser.ErrNotFound)
}

func (p *Page) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()
	if !p.Elements[selector] {
		return nil, fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
	}
	return []byte("png:" + selector), nil
}

func (p *Page) Markup(ctx context.Context) (string, error) {
	if err := p.lock(); err != nil {
		return "", err
	}
	html, block := p.HTML, p.Block
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return html, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	p.closed = true
	return nil
}

// Factory hands out scripted pages in order.
type Factory struct {
	mu    sync.Mutex
	Build func() *Page
	Err   error
	Pages []*Page
}

// NewFactory returns a factory that builds each page with build.
func NewFactory(build func() *Page) *Factory {
	return &Factory{Build: build}
}

func (f *Factory) NewHandle(ctx context.Context) (browser.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	build := f.Build
	if build == nil {
		build = NewPage
	}
	p := build()
	f.Pages = append(f.Pages, p)
	return p, nil
}

// Last returns the most recently built page.
func (f *Factory) Last() *Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Pages) == 0 {
		return nil
	}
	return f.Pages[len(f.Pages)-1]
}

// Renderer records render calls and optionally writes a placeholder file.
type Renderer struct {
	mu      sync.Mutex
	Err     error
	Markups []string
	Paths   []string
	Write   func(path string) error
}

func (r *Renderer) RenderPDF(ctx context.Context, markup, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Markups = append(r.Markups, markup)
	r.Paths = append(r.Paths, path)
	if r.Write != nil {
		return r.Write(path)
	}
	return nil
}

// ErrAllocation is a convenient allocation error for factory tests.
var ErrAllocation = errors.New("chrome unavailable")
