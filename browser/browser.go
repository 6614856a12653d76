// Package browser owns the headless Chromium session a site is scraped in.
package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/scipunch/pagefeed/dom"
)

// ErrNavigationTimeout is returned when the page did not reach the
// requested load state in time.
var ErrNavigationTimeout = errors.New("navigation timeout")

type Options struct {
	Install bool // Download the driver and Chromium before launching
	Logger  *zap.Logger
}

type NavigateOptions struct {
	Timeout      time.Duration // For the load state
	WaitIdle     bool          // Also wait for networkidle
	WaitSelector string
	WaitTimeout  time.Duration // For networkidle and WaitSelector
}

// Session is one browser, one context and one page.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	logger  *zap.Logger
	closed  bool
}

// Open starts playwright and a headless Chromium page. On error everything
// acquired so far is released.
func Open(opts Options) (s *Session, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s = &Session{logger: logger}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	if opts.Install {
		logger.Info("installing playwright driver")
		err = playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
		if err != nil {
			return s, fmt.Errorf("could not install playwright: %w", err)
		}
	}

	s.pw, err = playwright.Run()
	if err != nil {
		return s, fmt.Errorf("could not start playwright: %w", err)
	}

	logger.Info("launching chromium", zap.Bool("headless", true))
	s.browser, err = s.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return s, fmt.Errorf("could not launch browser: %w", err)
	}

	s.context, err = s.browser.NewContext()
	if err != nil {
		return s, fmt.Errorf("could not create browser context: %w", err)
	}

	s.page, err = s.context.NewPage()
	if err != nil {
		return s, fmt.Errorf("could not create page: %w", err)
	}
	return s, nil
}

// Navigate loads url. A timeout on the load itself wraps ErrNavigationTimeout.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	log := s.logger.With(zap.String("url", url))
	log.Info("navigating", zap.Duration("timeout", opts.Timeout))

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms(opts.Timeout),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: '%s' did not load within %s", ErrNavigationTimeout, url, opts.Timeout)
		}
		return fmt.Errorf("could not navigate to '%s': %w", url, err)
	}

	if opts.WaitIdle {
		err = s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: ms(opts.WaitTimeout),
		})
		if err != nil {
			// Pages with long polling never go idle, the selector wait decides.
			log.Warn("network did not go idle", zap.Error(err))
		}
	}

	if opts.WaitSelector != "" {
		err = s.page.Locator(opts.WaitSelector).First().WaitFor(playwright.LocatorWaitForOptions{
			Timeout: ms(opts.WaitTimeout),
		})
		if err != nil {
			if errors.Is(err, playwright.ErrTimeout) {
				return fmt.Errorf("%w: selector '%s' did not appear within %s", ErrNavigationTimeout, opts.WaitSelector, opts.WaitTimeout)
			}
			return fmt.Errorf("could not wait for selector '%s': %w", opts.WaitSelector, err)
		}
	}

	log.Info("page loaded")
	return nil
}

// Root exposes the current page to the extractor.
func (s *Session) Root() dom.Node {
	return pageNode{page: s.page}
}

// Content returns the rendered HTML of the current page.
func (s *Session) Content() (string, error) {
	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("could not read page content: %w", err)
	}
	return html, nil
}

// Close releases the page, context, browser and driver. It is safe to call
// more than once.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
	}
	s.logger.Info("browser closed")
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func ms(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

type pageNode struct {
	page playwright.Page
}

func (n pageNode) Query(selector string) ([]dom.Node, error) {
	return collect(n.page.Locator(selector), selector)
}

func (n pageNode) Attr(string) (string, bool, error) {
	return "", false, errors.New("page root has no attributes")
}

func (n pageNode) Text() (string, error) {
	text, err := n.page.Locator("body").InnerText()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

type locatorNode struct {
	loc playwright.Locator
}

// collect counts before indexing so an absent node never waits out the
// default locator timeout.
func collect(loc playwright.Locator, selector string) ([]dom.Node, error) {
	count, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("could not count '%s': %w", selector, err)
	}
	nodes := make([]dom.Node, count)
	for i := range count {
		nodes[i] = locatorNode{loc: loc.Nth(i)}
	}
	return nodes, nil
}

func (n locatorNode) Query(selector string) ([]dom.Node, error) {
	return collect(n.loc.Locator(selector), selector)
}

// Attr runs getAttribute in the page so a missing attribute and an empty
// one stay distinct.
func (n locatorNode) Attr(name string) (string, bool, error) {
	v, err := n.loc.Evaluate(`(el, name) => el.getAttribute(name)`, name)
	if err != nil {
		return "", false, fmt.Errorf("could not read attribute '%s': %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("attribute '%s' is a %T", name, v)
	}
	return s, true, nil
}

func (n locatorNode) Text() (string, error) {
	text, err := n.loc.InnerText()
	if err != nil {
		return "", fmt.Errorf("could not read text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
