package browser

import (
	"context"
	"errors"
	"time"
)

// Condition is what WaitFor waits for on a matched element.
type Condition int

const (
	// Present means the element exists in the DOM.
	Present Condition = iota
	// Visible means the element exists and is rendered.
	Visible
	// Clickable means the element is visible, enabled and not covered.
	Clickable
)

func (c Condition) String() string {
	switch c {
	case Visible:
		return "visible"
	case Clickable:
		return "clickable"
	default:
		return "present"
	}
}

var (
	// ErrTimeout is returned when a wait exceeds its deadline.
	ErrTimeout = errors.New("timed out waiting for element")
	// ErrNotFound is returned when an element or option does not exist.
	ErrNotFound = errors.New("element not found")
	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("automation handle closed")
)

// Handle is one exclusive, stateful browser interaction context. A Handle is
// never shared between sessions and is not safe for concurrent use.
type Handle interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, cond Condition, timeout time.Duration) error
	// Has reports whether selector currently matches, without waiting.
	Has(ctx context.Context, selector string) bool
	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// SelectByText waits up to timeout for an option whose visible text equals text, then selects it.
	SelectByText(ctx context.Context, selector, text string, timeout time.Duration) error
	// Screenshot captures the element matched by selector as PNG.
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Markup(ctx context.Context) (string, error)
	// Close releases the underlying browser context. Calling it twice is safe.
	Close() error
}

// Factory allocates fresh handles.
type Factory interface {
	NewHandle(ctx context.Context) (Handle, error)
}

// Renderer turns a markup fragment into a document on disk.
type Renderer interface {
	RenderPDF(ctx context.Context, markup, path string) error
}
