// Package feed writes extracted records as an RSS 2.0 document.
package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scipunch/pagefeed/extractor"
)

const (
	DefaultGenerator = "pagefeed"
	DefaultDocs      = "http://www.rssboard.org/rss-specification"
	guidDateLayout   = "20060102"
)

// ErrWriteFailure wraps every filesystem error hit while emitting.
var ErrWriteFailure = errors.New("feed write failed")

// Metadata is the channel level part of the feed.
type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
	Generator   string
	Docs        string
}

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	Docs          string `xml:"docs,omitempty"`
	Generator     string `xml:"generator,omitempty"`
	Language      string `xml:"language,omitempty"`
	LastBuildDate string `xml:"lastBuildDate"`
	Items         []item `xml:"item"`
}

type item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	GUID        guid   `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

type guid struct {
	Value       string `xml:",chardata"`
	IsPermaLink string `xml:"isPermaLink,attr"`
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock replaces time.Now as the source of lastBuildDate.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// GUID is the record link plus its publication day, e.g.
// https://example.com/a#20240131.
func GUID(r extractor.Record) string {
	return r.Link + "#" + r.Published.UTC().Format(guidDateLayout)
}

// Render builds the RSS document for records, in the order given.
func Render(records []extractor.Record, meta Metadata, opts ...Option) ([]byte, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if meta.Generator == "" {
		meta.Generator = DefaultGenerator
	}
	if meta.Docs == "" {
		meta.Docs = DefaultDocs
	}

	doc := rss{
		Version: "2.0",
		Channel: channel{
			Title:         meta.Title,
			Link:          meta.Link,
			Description:   meta.Description,
			Docs:          meta.Docs,
			Generator:     meta.Generator,
			Language:      meta.Language,
			LastBuildDate: o.now().UTC().Format(time.RFC1123Z),
			Items:         make([]item, 0, len(records)),
		},
	}
	for _, r := range records {
		doc.Channel.Items = append(doc.Channel.Items, item{
			Title:       r.Title,
			Link:        r.Link,
			Description: r.Description,
			GUID:        guid{Value: GUID(r), IsPermaLink: "false"},
			PubDate:     r.Published.UTC().Format(time.RFC1123Z),
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode feed with %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Emit renders records and replaces whatever is at path with the result,
// creating parent directories first.
func Emit(records []extractor.Record, meta Metadata, path string, opts ...Option) error {
	blob, err := Render(records, meta, opts...)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create output directory at '%s' with %w", ErrWriteFailure, dir, err)
	}
	if err := os.WriteFile(path, blob, 0644); err != nil {
		return fmt.Errorf("%w: failed to write feed at '%s' with %w", ErrWriteFailure, path, err)
	}
	return nil
}
