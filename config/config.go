package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

const baseCfgPath = "pagefeed/config.toml"

const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultWaitTimeout       = 10 * time.Second
	DefaultLanguage          = "ja"
	DefaultLinkSelector      = "a"
	DefaultDateFormat        = "2006-01-02 15:04:05"
	// AutoDateFormat makes the extractor guess the layout of every date.
	AutoDateFormat = "auto"
)

type Config struct {
	Sites           []Site            `toml:"sites"`
	OutputDirectory string            `toml:"output_directory"` // Relative site outputs land here
	CachePath       string            `toml:"cache_path"`       // Rendered page cache, empty keeps nothing between runs
	Filters         map[string]Filter `toml:"filters"`          // Named filters that can be referenced by sites
}

// Site describes where a listing page lives and how its records are laid out.
type Site struct {
	Name      string `toml:"name"`
	BaseURL   string `toml:"base_url"`     // Relative hrefs are resolved against it
	TargetURL string `toml:"target_url"`   // Page the browser navigates to
	Default   string `toml:"default_link"` // Record link when a container has no anchor

	WaitSelector      string   `toml:"wait_selector"`
	WaitNetworkIdle   bool     `toml:"wait_network_idle"`
	NavigationTimeout Duration `toml:"navigation_timeout"`
	WaitTimeout       Duration `toml:"wait_timeout"`

	ContainerSelector   string `toml:"container_selector"`
	DateSelector        string `toml:"date_selector"`
	DateAttr            string `toml:"date_attr"`   // Empty reads the node text
	DateFormat          string `toml:"date_format"` // Go layout or "auto"
	DateTimezone        string `toml:"date_timezone"`
	TitleSelector       string `toml:"title_selector"`
	TitleTemplate       string `toml:"title_template"`
	LinkSelector        string `toml:"link_selector"`
	DescriptionSelector string `toml:"description_selector"`
	CategorySelector    string `toml:"category_selector"`
	DescriptionTemplate string `toml:"description_template"`
	MaxItems            int    `toml:"max_items"` // 0 processes every container

	Output          string   `toml:"output"`
	FeedTitle       string   `toml:"feed_title"`
	FeedDescription string   `toml:"feed_description"`
	FeedLink        string   `toml:"feed_link"`
	Language        string   `toml:"language"`
	Enabled         *bool    `toml:"enabled"` // Defaults to true if not set
	FilterNames     []string `toml:"filters"` // Names of filters to apply (pipeline)
}

// Filter defines rules for dropping extracted records
type Filter struct {
	MinLength       int      `toml:"min_length"`       // Minimum character count (0 = no limit)
	MinWords        int      `toml:"min_words"`        // Minimum word count (0 = no limit)
	ExcludePatterns []string `toml:"exclude_patterns"` // Regex patterns to exclude
}

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsEnabled returns true if the site is enabled (defaults to true if not explicitly set)
func (s Site) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// DefaultLink is the link used for records without an anchor.
func (s Site) DefaultLink() string {
	if s.Default != "" {
		return s.Default
	}
	return s.TargetURL
}

func (s Site) Navigation() time.Duration {
	if s.NavigationTimeout.Duration > 0 {
		return s.NavigationTimeout.Duration
	}
	return DefaultNavigationTimeout
}

func (s Site) Wait() time.Duration {
	if s.WaitTimeout.Duration > 0 {
		return s.WaitTimeout.Duration
	}
	return DefaultWaitTimeout
}

func (s Site) Links() string {
	if s.LinkSelector != "" {
		return s.LinkSelector
	}
	return DefaultLinkSelector
}

func (s Site) Layout() string {
	if s.DateFormat != "" {
		return s.DateFormat
	}
	return DefaultDateFormat
}

func (s Site) Lang() string {
	if s.Language != "" {
		return s.Language
	}
	return DefaultLanguage
}

// Location resolves date_timezone, UTC when unset.
func (s Site) Location() (*time.Location, error) {
	if s.DateTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.DateTimezone)
}

// OutputPath places relative outputs under dir.
func (s Site) OutputPath(dir string) string {
	if filepath.IsAbs(s.Output) || dir == "" {
		return s.Output
	}
	return filepath.Join(dir, s.Output)
}

func (s Site) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.TargetURL == "" {
		errs = append(errs, errors.New("target_url is required"))
	}
	if s.ContainerSelector == "" {
		errs = append(errs, errors.New("container_selector is required"))
	}
	if s.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("base_url '%s' is not an absolute URL", s.BaseURL))
		}
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, fmt.Errorf("unknown date_timezone '%s'", s.DateTimezone))
	}
	if len(errs) > 0 {
		return fmt.Errorf("site '%s' is invalid: %w", s.Name, errors.Join(errs...))
	}
	return nil
}

// Validate checks every site and that referenced filters exist.
func (c Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, s := range c.Sites {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("site '%s' is defined twice", s.Name))
		}
		seen[s.Name] = true
		for _, name := range s.FilterNames {
			if _, ok := c.Filters[name]; !ok {
				errs = append(errs, fmt.Errorf("site '%s' references unknown filter '%s'", s.Name, name))
			}
		}
	}
	return errors.Join(errs...)
}

// Site looks a descriptor up by name.
func (c Config) Site(name string) (Site, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return Site{}, false
}

func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	// Sites from the file replace the built-in ones instead of appending.
	conf.Sites = nil
	_, err = toml.Decode(string(dat), &conf)
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	return conf, nil
}

func Write(cfgPath string, cfg Config) error {
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := path.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	err = os.WriteFile(cfgPath, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	slog.Info("config written", "at", cfgPath)
	return nil
}

func Default() Config {
	return Config{
		OutputDirectory: "rss_output",
		Sites:           BuiltinSites(),
		Filters:         map[string]Filter{},
	}
}

func DefaultPath() string {
	var xdgHome = os.Getenv("XDG_CONFIG_HOME")
	if xdgHome != "" {
		return path.Join(xdgHome, baseCfgPath)
	}

	var home = os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", baseCfgPath)
	}

	panic("unclear where to search for the config file")
}
