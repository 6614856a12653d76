// Package filter drops extracted records by the named rules of the config.
package filter

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scipunch/pagefeed/config"
	"github.com/scipunch/pagefeed/extractor"
)

// FilterPipeline holds every configured filter, compiled once per run
type FilterPipeline struct {
	rules map[string]rule
}

type rule struct {
	name     string
	minRunes int
	minWords int
	exclude  []*regexp.Regexp
}

// NewFilterPipeline compiles the named filters. A pattern that does not
// compile is logged and left out of its filter.
func NewFilterPipeline(filters map[string]config.Filter) (*FilterPipeline, error) {
	fp := &FilterPipeline{rules: make(map[string]rule, len(filters))}
	for name, f := range filters {
		r := rule{name: name, minRunes: f.MinLength, minWords: f.MinWords}
		for _, pattern := range f.ExcludePatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				slog.Warn("invalid regex pattern in filter", "filter", name, "pattern", pattern, "error", err)
				continue
			}
			r.exclude = append(r.exclude, re)
		}
		fp.rules[name] = r
	}
	return fp, nil
}

// ShouldInclude runs the named filters in order and reports the first one
// rejecting rec as "name:check".
func (fp *FilterPipeline) ShouldInclude(rec extractor.Record, filterNames []string) (bool, string) {
	for _, name := range filterNames {
		r, ok := fp.rules[name]
		if !ok {
			slog.Warn("filter not found, skipping", "filter_name", name)
			continue
		}
		if reason := r.reject(rec); reason != "" {
			return false, reason
		}
	}
	return true, ""
}

// Apply keeps the records passing every named filter, in order
func (fp *FilterPipeline) Apply(records []extractor.Record, filterNames []string) []extractor.Record {
	if len(filterNames) == 0 {
		return records
	}
	kept := make([]extractor.Record, 0, len(records))
	for _, rec := range records {
		if ok, reason := fp.ShouldInclude(rec, filterNames); !ok {
			slog.Debug("record filtered out", "title", rec.Title, "reason", reason, "url", rec.Link)
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// reject returns why rec fails r, empty when it passes. Lengths count runes.
func (r rule) reject(rec extractor.Record) string {
	text := rec.Title + " " + rec.Description

	switch {
	case r.minRunes > 0 && utf8.RuneCountInString(text) < r.minRunes:
		return r.name + ":min_length"
	case r.minWords > 0 && countWords(text) < r.minWords:
		return r.name + ":min_words"
	}
	for _, re := range r.exclude {
		if re.MatchString(text) {
			return r.name + ":exclude_pattern[" + re.String() + "]"
		}
	}
	return ""
}

// countWords counts runs of letters and digits
func countWords(text string) int {
	return len(strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}
