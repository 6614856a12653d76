// Package pipeline runs one site end to end: render, extract, emit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scipunch/pagefeed/browser"
	"github.com/scipunch/pagefeed/cache"
	"github.com/scipunch/pagefeed/config"
	"github.com/scipunch/pagefeed/dom"
	"github.com/scipunch/pagefeed/extractor"
	"github.com/scipunch/pagefeed/feed"
	"github.com/scipunch/pagefeed/filter"
)

const (
	ExitOK                = 0
	ExitNavigationTimeout = 1
	ExitFatal             = 2
)

// ErrNotCached is returned by Replay for a site that was never rendered.
var ErrNotCached = errors.New("no cached page")

// Page is what the runner needs from a browser session.
type Page interface {
	Navigate(url string, opts browser.NavigateOptions) error
	Root() dom.Node
	Content() (string, error)
	Close() error
}

// Opener starts a fresh browser session.
type Opener func() (Page, error)

// PageStore persists rendered pages; *cache.Cache implements it.
type PageStore interface {
	SetPage(site, url, html string) error
	GetPage(site string) (cache.Page, bool, error)
}

type Runner struct {
	Open    Opener
	Store   PageStore // Optional
	Filters *filter.FilterPipeline
	Clock   func() time.Time
}

// Summary describes what one run produced.
type Summary struct {
	Site       string
	Output     string
	Containers int
	Records    int
	Failures   int
	Filtered   int
	Items      int
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// Run renders the site in a browser and writes its feed. The browser is
// closed on every return path.
func (r *Runner) Run(ctx context.Context, site config.Site, outputDir string) (Summary, error) {
	log := slog.With("site", site.Name)
	sum := Summary{Site: site.Name, Output: site.OutputPath(outputDir)}

	ex, err := extractor.New(site, extractor.WithClock(r.now))
	if err != nil {
		return sum, fmt.Errorf("failed to prepare extractor with %w", err)
	}

	log.Info("launching browser")
	page, err := r.Open()
	if err != nil {
		return sum, fmt.Errorf("failed to open browser with %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}()

	log.Info("loading page", "url", site.TargetURL)
	err = page.Navigate(site.TargetURL, browser.NavigateOptions{
		Timeout:      site.Navigation(),
		WaitIdle:     site.WaitNetworkIdle,
		WaitSelector: site.WaitSelector,
		WaitTimeout:  site.Wait(),
	})
	if err != nil {
		if errors.Is(err, browser.ErrNavigationTimeout) {
			log.Error("page failed to load", "error", err)
		}
		return sum, err
	}

	if err := ctx.Err(); err != nil {
		return sum, err
	}

	if r.Store != nil {
		html, err := page.Content()
		if err != nil {
			log.Warn("failed to read rendered page", "error", err)
		} else if err := r.Store.SetPage(site.Name, site.TargetURL, html); err != nil {
			log.Warn("failed to cache rendered page", "error", err)
		}
	}

	return r.emit(ctx, log, ex, page.Root(), site, sum)
}

// Replay re-extracts the last cached render of site without a browser.
func (r *Runner) Replay(ctx context.Context, site config.Site, outputDir string) (Summary, error) {
	log := slog.With("site", site.Name)
	sum := Summary{Site: site.Name, Output: site.OutputPath(outputDir)}

	if r.Store == nil {
		return sum, fmt.Errorf("%w for '%s': page cache is disabled", ErrNotCached, site.Name)
	}
	ex, err := extractor.New(site, extractor.WithClock(r.now))
	if err != nil {
		return sum, fmt.Errorf("failed to prepare extractor with %w", err)
	}

	cached, found, err := r.Store.GetPage(site.Name)
	if err != nil {
		return sum, err
	}
	if !found {
		return sum, fmt.Errorf("%w for '%s'", ErrNotCached, site.Name)
	}
	log.Info("replaying cached page", "url", cached.URL, "rendered_at", cached.CreatedAt)

	root, err := dom.FromString(cached.HTML)
	if err != nil {
		return sum, err
	}
	return r.emit(ctx, log, ex, root, site, sum)
}

func (r *Runner) emit(ctx context.Context, log *slog.Logger, ex *extractor.Extractor, root dom.Node, site config.Site, sum Summary) (Summary, error) {
	log.Info("extracting records")
	results, err := ex.Extract(root)
	if err != nil {
		return sum, err
	}
	sum.Containers = len(results)
	log.Info("found record containers", "count", sum.Containers)

	records, failures := extractor.Records(results)
	for _, f := range failures {
		log.Warn("failed to parse row", "row", f.Index+1, "error", f.Err)
	}
	sum.Failures = len(failures)
	sum.Records = len(records)
	if len(records) == 0 {
		log.Warn("no records extracted, the page structure may have changed")
	}

	if r.Filters != nil {
		kept := r.Filters.Apply(records, site.FilterNames)
		sum.Filtered = len(records) - len(kept)
		records = kept
	}

	if err := ctx.Err(); err != nil {
		return sum, err
	}

	meta := feed.Metadata{
		Title:       site.FeedTitle,
		Link:        site.FeedLink,
		Description: site.FeedDescription,
		Language:    site.Lang(),
	}
	if meta.Link == "" {
		meta.Link = site.DefaultLink()
	}
	if err := feed.Emit(records, meta, sum.Output, feed.WithClock(r.now)); err != nil {
		return sum, err
	}

	sum.Items, err = feed.Verify(sum.Output)
	if err != nil {
		return sum, fmt.Errorf("written feed is unreadable: %w", err)
	}
	log.Info("feed generated", "path", sum.Output, "items", sum.Items, "skipped", sum.Failures, "filtered", sum.Filtered)
	return sum, nil
}

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, browser.ErrNavigationTimeout):
		return ExitNavigationTimeout
	default:
		return ExitFatal
	}
}
