// Package extractor turns the record containers of a listing page into
// feed records using a site descriptor.
package extractor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/araddon/dateparse"

	"github.com/scipunch/pagefeed/config"
	"github.com/scipunch/pagefeed/dom"
)

const categorySeparator = " / "

const (
	defaultTitleTemplate       = `{{.Title}}`
	defaultDescriptionTemplate = `{{if .Description}}{{.Description}}{{else}}{{with .Labels}}{{.}} {{end}}{{.Title}}{{end}}`
)

// Record is one extracted update or article.
type Record struct {
	Title       string
	Link        string
	Description string
	Published   time.Time // Always UTC
}

// ErrMissingDescription fails a container that has no node matching the
// configured description selector.
var ErrMissingDescription = errors.New("no description element")

// ExtractionError is a container that could not be turned into a Record.
type ExtractionError struct {
	Index int // Zero based container position
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Index+1, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Result is either a Record or the reason the container was skipped.
type Result struct {
	Record Record
	Err    *ExtractionError
}

// Fields are what title and description templates are rendered with.
type Fields struct {
	Title       string
	Link        string
	Description string
	Categories  []string
	Date        time.Time
}

// Labels joins the category labels with " / ".
func (f Fields) Labels() string {
	return strings.Join(f.Categories, categorySeparator)
}

type Extractor struct {
	site        config.Site
	base        *url.URL
	loc         *time.Location
	title       *template.Template
	description *template.Template
	now         func() time.Time
}

type Option func(*Extractor)

// WithClock replaces time.Now as the source of default publication dates.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

func New(site config.Site, opts ...Option) (*Extractor, error) {
	e := &Extractor{site: site, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	var err error
	base := site.BaseURL
	if base == "" {
		base = site.TargetURL
	}
	e.base, err = url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL '%s': %w", base, err)
	}
	e.loc, err = site.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", site.DateTimezone, err)
	}

	titleTmpl := site.TitleTemplate
	if titleTmpl == "" {
		titleTmpl = defaultTitleTemplate
	}
	e.title, err = template.New("title").Funcs(funcs).Option("missingkey=error").Parse(titleTmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse title template with %w", err)
	}

	descTmpl := site.DescriptionTemplate
	if descTmpl == "" {
		descTmpl = defaultDescriptionTemplate
	}
	e.description, err = template.New("description").Funcs(funcs).Option("missingkey=error").Parse(descTmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse description template with %w", err)
	}
	return e, nil
}

// Extract processes every container under root, capped at max_items. Only
// a failure to locate containers is returned as an error.
func (e *Extractor) Extract(root dom.Node) ([]Result, error) {
	containers, err := root.Query(e.site.ContainerSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to locate containers with %w", err)
	}
	if e.site.MaxItems > 0 && len(containers) > e.site.MaxItems {
		containers = containers[:e.site.MaxItems]
	}

	results := make([]Result, 0, len(containers))
	for i, c := range containers {
		rec, err := e.record(c)
		if err != nil {
			results = append(results, Result{Err: &ExtractionError{Index: i, Err: err}})
			continue
		}
		results = append(results, Result{Record: rec})
	}
	return results, nil
}

// Records splits results, keeping the container order of both.
func Records(results []Result) ([]Record, []*ExtractionError) {
	var records []Record
	var errs []*ExtractionError
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		records = append(records, r.Record)
	}
	return records, errs
}

func (e *Extractor) record(c dom.Node) (Record, error) {
	var f Fields
	var err error

	if f.Date, err = e.date(c); err != nil {
		return Record{}, err
	}

	anchor, err := dom.First(c, e.site.Links())
	if err != nil {
		return Record{}, fmt.Errorf("link: %w", err)
	}
	if f.Link, err = e.link(anchor); err != nil {
		return Record{}, err
	}

	switch {
	case e.site.TitleSelector != "":
		if f.Title, err = text(c, e.site.TitleSelector); err != nil {
			return Record{}, fmt.Errorf("title: %w", err)
		}
	case anchor != nil:
		if f.Title, err = anchor.Text(); err != nil {
			return Record{}, fmt.Errorf("title: %w", err)
		}
	}

	if sel := e.site.DescriptionSelector; sel != "" {
		node, err := dom.First(c, sel)
		if err != nil {
			return Record{}, fmt.Errorf("description: %w", err)
		}
		if node == nil {
			return Record{}, fmt.Errorf("%w matches '%s'", ErrMissingDescription, sel)
		}
		if f.Description, err = node.Text(); err != nil {
			return Record{}, fmt.Errorf("description: %w", err)
		}
	}

	if e.site.CategorySelector != "" {
		labels, err := c.Query(e.site.CategorySelector)
		if err != nil {
			return Record{}, fmt.Errorf("categories: %w", err)
		}
		for _, l := range labels {
			t, err := l.Text()
			if err != nil {
				return Record{}, fmt.Errorf("categories: %w", err)
			}
			if t != "" {
				f.Categories = append(f.Categories, t)
			}
		}
	}

	rec := Record{Link: f.Link, Published: f.Date}
	if rec.Title, err = render(e.title, f); err != nil {
		return Record{}, fmt.Errorf("title template: %w", err)
	}
	if rec.Description, err = render(e.description, f); err != nil {
		return Record{}, fmt.Errorf("description template: %w", err)
	}
	return rec, nil
}

// date falls back to now when the node or its value is missing. A value that
// is present but does not parse fails the record.
func (e *Extractor) date(c dom.Node) (time.Time, error) {
	now := e.now().UTC()
	if e.site.DateSelector == "" {
		return now, nil
	}
	node, err := dom.First(c, e.site.DateSelector)
	if err != nil {
		return time.Time{}, fmt.Errorf("date: %w", err)
	}
	if node == nil {
		return now, nil
	}

	var raw string
	if e.site.DateAttr != "" {
		raw, _, err = node.Attr(e.site.DateAttr)
	} else {
		raw, err = node.Text()
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("date: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, nil
	}

	t, err := e.parseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date '%s': %w", raw, err)
	}
	return t.UTC(), nil
}

func (e *Extractor) parseDate(raw string) (time.Time, error) {
	if e.site.Layout() == config.AutoDateFormat {
		return dateparse.ParseIn(raw, e.loc)
	}
	return time.ParseInLocation(e.site.Layout(), raw, e.loc)
}

func (e *Extractor) link(anchor dom.Node) (string, error) {
	fallback := e.site.DefaultLink()
	if anchor == nil {
		return nonEmpty(fallback)
	}
	href, _, err := anchor.Attr("href")
	if err != nil {
		return "", fmt.Errorf("link: %w", err)
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return nonEmpty(fallback)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("link '%s': %w", href, err)
	}
	return e.base.ResolveReference(ref).String(), nil
}

func nonEmpty(link string) (string, error) {
	if link == "" {
		return "", errors.New("no link and no default link")
	}
	return link, nil
}

func text(c dom.Node, selector string) (string, error) {
	n, err := dom.First(c, selector)
	if err != nil || n == nil {
		return "", err
	}
	return n.Text()
}

func render(t *template.Template, f Fields) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, f); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
