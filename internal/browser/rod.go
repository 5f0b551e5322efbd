package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"go.uber.org/zap"
)

// Launcher owns the Chrome process (or remote connection) and hands out one
// incognito browser context per Handle.
type Launcher struct {
	cfg config.BrowserConfig
	log *zap.Logger

	mu         sync.RWMutex
	browser    *rod.Browser
	launched   *launcher.Launcher
	controlURL string
}

func NewLauncher(cfg config.BrowserConfig, log *zap.Logger) *Launcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Launcher{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (l *Launcher) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		if _, err := l.browser.Version(); err == nil {
			return nil
		}
		l.log.Warn("stale browser connection detected, reconnecting")
		_ = l.browser.Close()
		l.browser = nil
		l.controlURL = ""
	}

	controlURL := l.cfg.DebuggerURL
	if controlURL == "" {
		launch := launcher.New().Headless(l.cfg.IsHeadless())
		if len(l.cfg.Launch) > 0 {
			launch = launch.Bin(l.cfg.Launch[0])
			for _, rawFlag := range l.cfg.Launch[1:] {
				name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
				if hasVal {
					launch = launch.Set(flags.Flag(name), val)
				} else {
					launch = launch.Set(flags.Flag(name))
				}
			}
		}
		u, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		l.launched = launch
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	// The connect context only scopes the handshake.
	l.browser = browser.Context(context.Background())
	l.controlURL = controlURL
	l.log.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (l *Launcher) ControlURL() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.controlURL
}

// IsConnected returns whether the browser is currently connected.
func (l *Launcher) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.browser != nil
}

// Shutdown closes the browser and kills a locally launched process.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.launched != nil {
		l.launched.Kill()
		l.launched = nil
	}
	l.controlURL = ""
	l.log.Info("browser shutdown complete")
	return err
}

func (l *Launcher) connected() (*rod.Browser, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.browser == nil {
		return nil, errors.New("browser not connected")
	}
	return l.browser, nil
}

// NewHandle opens a fresh incognito context with one blank page.
func (l *Launcher) NewHandle(ctx context.Context) (Handle, error) {
	page, incognito, err := l.openPage(ctx)
	if err != nil {
		return nil, err
	}
	return &rodHandle{page: page, ctx: incognito, log: l.log, nav: l.cfg.NavigationTimeout()}, nil
}

func (l *Launcher) openPage(ctx context.Context) (*rod.Page, *rod.Browser, error) {
	browser, err := l.connected()
	if err != nil {
		return nil, nil, err
	}

	incognito, err := browser.Context(ctx).Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("incognito context: %w", err)
	}
	incognito = incognito.Context(context.Background())

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             l.cfg.GetViewportWidth(),
		Height:            l.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		l.log.Warn("failed to set viewport", zap.Error(err))
	}
	return page, incognito, nil
}

// RenderPDF loads markup into a throwaway page and prints it to path.
func (l *Launcher) RenderPDF(ctx context.Context, markup, path string) error {
	page, incognito, err := l.openPage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = incognito.Close() }()

	page = page.Context(ctx).Timeout(l.cfg.NavigationTimeout())
	if err := page.SetDocumentContent(printableDocument(markup)); err != nil {
		return fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		Landscape:       true,
		PrintBackground: true,
	})
	if err != nil {
		return fmt.Errorf("print to pdf: %w", err)
	}
	defer stream.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, stream); err != nil {
		_ = out.Close()
		return fmt.Errorf("write pdf: %w", err)
	}
	return out.Close()
}

func printableDocument(fragment string) string {
	return `<!DOCTYPE html><html><head><meta charset="utf-8"><style>` +
		`body{font-family:sans-serif;font-size:11px}` +
		`table{border-collapse:collapse;width:100%}` +
		`td,th{border:1px solid #444;padding:4px;vertical-align:top}` +
		`</style></head><body>` + fragment + `</body></html>`
}

// rodHandle drives one page inside its own incognito context.
type rodHandle struct {
	page *rod.Page
	ctx  *rod.Browser
	log  *zap.Logger
	nav  time.Duration

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
}

func (h *rodHandle) live(ctx context.Context) (*rod.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	return h.page.Context(ctx), nil
}

func (h *rodHandle) Navigate(ctx context.Context, url string) error {
	page, err := h.live(ctx)
	if err != nil {
		return err
	}
	page = page.Timeout(h.nav)
	if err := page.Navigate(url); err != nil {
		return translate(err)
	}
	if err := page.WaitLoad(); err != nil {
		return translate(err)
	}
	return nil
}

func (h *rodHandle) element(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	page, err := h.live(ctx)
	if err != nil {
		return nil, err
	}
	el, err := page.Timeout(timeout).Element(selector)
	if err != nil {
		return nil, translate(err)
	}
	return el.CancelTimeout(), nil
}

func (h *rodHandle) WaitFor(ctx context.Context, selector string, cond Condition, timeout time.Duration) error {
	page, err := h.live(ctx)
	if err != nil {
		return err
	}
	page = page.Timeout(timeout)
	el, err := page.Element(selector)
	if err != nil {
		return translate(err)
	}
	switch cond {
	case Visible:
		err = el.WaitVisible()
	case Clickable:
		if err = el.WaitVisible(); err == nil {
			err = el.WaitEnabled()
		}
	}
	return translate(err)
}

func (h *rodHandle) Has(ctx context.Context, selector string) bool {
	page, err := h.live(ctx)
	if err != nil {
		return false
	}
	found, _, err := page.Has(selector)
	return err == nil && found
}

func (h *rodHandle) Fill(ctx context.Context, selector, text string) error {
	el, err := h.element(ctx, selector, h.nav)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return translate(err)
	}
	return translate(el.Input(text))
}

func (h *rodHandle) Click(ctx context.Context, selector string) error {
	el, err := h.element(ctx, selector, h.nav)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		// Portal buttons are often covered by overlays; a DOM click still fires the handler.
		h.log.Debug("mouse click failed, falling back to DOM click", zap.String("selector", selector), zap.Error(err))
		if _, evalErr := el.Eval(`() => this.click()`); evalErr != nil {
			return translate(evalErr)
		}
	}
	return nil
}

func (h *rodHandle) SelectByText(ctx context.Context, selector, text string, timeout time.Duration) error {
	page, err := h.live(ctx)
	if err != nil {
		return err
	}
	pattern := `/^\s*` + regexp.QuoteMeta(strings.TrimSpace(text)) + `\s*$/`
	if _, err := page.Timeout(timeout).ElementR(selector+" option", pattern); err != nil {
		if errors.Is(translate(err), ErrTimeout) {
			return fmt.Errorf("option %q: %w", text, ErrNotFound)
		}
		return translate(err)
	}
	el, err := h.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	exact := `^\s*` + regexp.QuoteMeta(strings.TrimSpace(text)) + `\s*$`
	return translate(el.Select([]string{exact}, true, rod.SelectorTypeRegex))
}

func (h *rodHandle) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	el, err := h.element(ctx, selector, h.nav)
	if err != nil {
		return nil, err
	}
	img, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, translate(err)
	}
	return img, nil
}

func (h *rodHandle) Markup(ctx context.Context) (string, error) {
	page, err := h.live(ctx)
	if err != nil {
		return "", err
	}
	html, err := page.HTML()
	if err != nil {
		return "", translate(err)
	}
	return html, nil
}

// Close disposes of the incognito context, which also closes its page.
func (h *rodHandle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.closeErr = h.ctx.Close()
	})
	return h.closeErr
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
