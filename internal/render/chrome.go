package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/novel"
)

// ChromeEngine renders pages using headless Chrome via chromedp. One
// browser process is shared; every Render runs in its own tab.
type ChromeEngine struct {
	mu              sync.Mutex
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	userAgent       string
	logger          *zap.Logger
}

// NewChromeEngine launches the browser and warms it up.
func NewChromeEngine(userAgent string, logger *zap.Logger) (*ChromeEngine, error) {
	e := &ChromeEngine{
		userAgent: userAgent,
		logger:    logger,
	}
	if err := e.launch(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ChromeEngine) launch() error {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(e.userAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("chromedp warmup: %w", err)
	}
	e.allocatorCancel = allocatorCancel
	e.browserCtx = browserCtx
	e.browserCancel = browserCancel
	return nil
}

// Alive reports whether the shared browser process is still usable.
func (e *ChromeEngine) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.browserCtx != nil && e.browserCtx.Err() == nil
}

// Recycle tears down a dead browser and launches a replacement.
func (e *ChromeEngine) Recycle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browserCtx != nil && e.browserCtx.Err() == nil {
		return nil
	}
	e.logger.Warn("recycling dead browser process")
	e.teardownLocked()
	return e.launch()
}

// Close tears down the chromedp allocator and browser contexts.
func (e *ChromeEngine) Close(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
	return nil
}

func (e *ChromeEngine) teardownLocked() {
	if e.browserCancel != nil {
		e.browserCancel()
		e.browserCancel = nil
	}
	if e.allocatorCancel != nil {
		e.allocatorCancel()
		e.allocatorCancel = nil
	}
	e.browserCtx = nil
}

// Render executes the page in a fresh tab and returns the DOM snapshot.
func (e *ChromeEngine) Render(ctx context.Context, url, waitSelector string, timeout time.Duration) (string, error) {
	e.mu.Lock()
	browserCtx := e.browserCtx
	e.mu.Unlock()
	if browserCtx == nil {
		return "", errors.New("render engine closed")
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	if waitSelector == "" {
		waitSelector = "body"
	}
	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(e.userAgent),
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%s: %w", url, novel.ErrRenderTimeout)
		}
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
