package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/scipunch/pagefeed/browser"
	"github.com/scipunch/pagefeed/cache"
	"github.com/scipunch/pagefeed/config"
	"github.com/scipunch/pagefeed/filter"
	"github.com/scipunch/pagefeed/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	debug := os.Getenv("DEBUG") != ""
	slog.SetDefault(slog.New(newHandler(debug)))

	var cfgPath, siteName string
	var replay, keepPages, cleanCache, noInstall bool
	flag.StringVar(&cfgPath, "config", config.DefaultPath(), "path to a TOML config")
	flag.StringVar(&siteName, "site", "", "only generate the feed of this site")
	flag.BoolVar(&replay, "replay", false, "extract from the cached render instead of opening a browser")
	flag.BoolVar(&keepPages, "cache", false, "keep rendered pages in the default page cache when cache_path is unset")
	flag.BoolVar(&cleanCache, "clean", false, "remove all cached pages")
	flag.BoolVar(&noInstall, "no-install", false, "do not install the playwright driver before launching")
	flag.Parse()

	// Read config and create if default is missing
	conf, err := config.Read(cfgPath)
	if errors.Is(err, os.ErrNotExist) && cfgPath == config.DefaultPath() {
		if err := config.Write(cfgPath, conf); err != nil {
			return fatal("failed to write default config", err)
		}
	} else if err != nil {
		return fatal("failed to read config", err)
	}
	if err := conf.Validate(); err != nil {
		return fatal("invalid config", err)
	}

	sites := conf.Sites
	if siteName != "" {
		s, ok := conf.Site(siteName)
		if !ok {
			slog.Error("site is not configured", "site", siteName)
			return pipeline.ExitFatal
		}
		sites = []config.Site{s}
	}

	filters, err := filter.NewFilterPipeline(conf.Filters)
	if err != nil {
		return fatal("failed to initialize filters", err)
	}

	runner := &pipeline.Runner{
		Open:    opener(!noInstall, debug),
		Filters: filters,
	}

	if conf.CachePath == "" && (keepPages || replay || cleanCache) {
		conf.CachePath = cache.DefaultCachePath()
	}
	if conf.CachePath != "" {
		pages, err := cache.NewCache(conf.CachePath)
		if err != nil {
			return fatal("failed to initialize page cache", err)
		}
		defer pages.Close()

		if cleanCache {
			if err := pages.Clear(); err != nil {
				return fatal("failed to clear cache", err)
			}
			slog.Info("cache cleared successfully")
			return pipeline.ExitOK
		}

		stats, err := pages.Stats()
		if err != nil {
			slog.Warn("failed to get cache stats", "error", err)
		} else {
			slog.Debug("page cache initialized", "entries", stats.PageEntries, "oldest", stats.OldestEntry)
		}
		runner.Store = pages
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := pipeline.ExitOK
	for _, site := range sites {
		if siteName == "" && !site.IsEnabled() {
			slog.Debug("skipping disabled site", "site", site.Name)
			continue
		}
		if ctx.Err() != nil {
			slog.Info("interrupted by user, exiting gracefully")
			break
		}

		process := runner.Run
		if replay {
			process = runner.Replay
		}
		if _, err := process(ctx, site, conf.OutputDirectory); err != nil {
			slog.Error("site failed", "site", site.Name, "error", err)
			code = max(code, pipeline.ExitCode(err))
		}
	}

	return code
}

func opener(install, debug bool) pipeline.Opener {
	// Driver lifecycle logs, kept apart from the run diagnostics
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		logger = zap.NewNop()
	}

	return func() (pipeline.Page, error) {
		s, err := browser.Open(browser.Options{Install: install, Logger: logger.Named("browser")})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// newHandler drops timestamps when a person is watching the terminal.
func newHandler(debug bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

func fatal(msg string, err error) int {
	slog.Error(msg, "error", err)
	return pipeline.ExitFatal
}
