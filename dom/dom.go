// Package dom is the DOM query capability the extractor works against.
// A rendered browser page and a static HTML document both satisfy it.
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Node is an element, or the document root, that can be queried further.
type Node interface {
	// Query returns the descendants matching selector in document order.
	// No match is an empty slice, not an error.
	Query(selector string) ([]Node, error)

	// Attr reports the attribute value and whether it was present.
	Attr(name string) (string, bool, error)

	// Text returns the element text with surrounding whitespace trimmed.
	Text() (string, error)
}

// First returns the first match of selector, nil when nothing matched.
func First(n Node, selector string) (Node, error) {
	nodes, err := n.Query(selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

type selection struct {
	s *goquery.Selection
}

// FromHTML parses a static HTML document into a queryable root node.
func FromHTML(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML failed: %w", err)
	}
	return selection{s: doc.Selection}, nil
}

// FromString is FromHTML for an in-memory document.
func FromString(html string) (Node, error) {
	return FromHTML(strings.NewReader(html))
}

func (n selection) Query(selector string) ([]Node, error) {
	// goquery silently matches nothing on a bad selector
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector '%s': %w", selector, err)
	}
	found := n.s.FindMatcher(m)
	nodes := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, selection{s: s})
	})
	return nodes, nil
}

func (n selection) Attr(name string) (string, bool, error) {
	v, ok := n.s.Attr(name)
	return v, ok, nil
}

func (n selection) Text() (string, error) {
	return strings.TrimSpace(n.s.Text()), nil
}
