package cache

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Cache keeps the last rendered HTML of every site so extraction can be
// replayed without a browser
type Cache struct {
	db *sql.DB
}

// Page is one cached render
type Page struct {
	Site      string
	URL       string
	HTML      string
	CreatedAt time.Time
}

// CacheStats contains cache statistics
type CacheStats struct {
	PageEntries int
	OldestEntry time.Time
}

// NewCache initializes cache database at the given path
func NewCache(dbPath string) (*Cache, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Execute schema
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// GetPage retrieves the cached render of a site
// Returns: (page, found, error)
func (c *Cache) GetPage(site string) (Page, bool, error) {
	page := Page{Site: site}
	var createdAt int64

	err := c.db.QueryRow(
		"SELECT url, html, created_at FROM page_cache WHERE site = ?",
		site,
	).Scan(&page.URL, &page.HTML, &createdAt)

	if err == sql.ErrNoRows {
		return page, false, nil
	}
	if err != nil {
		return page, false, fmt.Errorf("failed to read cached page for '%s': %w", site, err)
	}
	page.CreatedAt = time.Unix(createdAt, 0)

	// Update accessed_at
	_, _ = c.db.Exec(
		"UPDATE page_cache SET accessed_at = ? WHERE site = ?",
		time.Now().Unix(), site,
	)

	return page, true, nil
}

// SetPage stores the rendered HTML of a site, replacing the previous render
func (c *Cache) SetPage(site, url, html string) error {
	now := time.Now().Unix()

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO page_cache
		(site, url, html, created_at, accessed_at)
		VALUES (?, ?, ?, ?, ?)
	`, site, url, html, now, now)

	if err != nil {
		slog.Warn("page cache write error", "error", err, "site", site)
		return err
	}

	return nil
}

// Clear removes all cache entries
func (c *Cache) Clear() error {
	if _, err := c.db.Exec("DELETE FROM page_cache"); err != nil {
		return fmt.Errorf("failed to clear page cache: %w", err)
	}
	return nil
}

// Stats returns cache statistics
func (c *Cache) Stats() (CacheStats, error) {
	var stats CacheStats

	err := c.db.QueryRow("SELECT COUNT(*) FROM page_cache").Scan(&stats.PageEntries)
	if err != nil {
		return stats, err
	}

	var oldestUnix sql.NullInt64
	err = c.db.QueryRow("SELECT MIN(created_at) FROM page_cache").Scan(&oldestUnix)
	if err != nil && err != sql.ErrNoRows {
		return stats, err
	}
	if oldestUnix.Valid && oldestUnix.Int64 > 0 {
		stats.OldestEntry = time.Unix(oldestUnix.Int64, 0)
	}

	return stats, nil
}

// Close closes the cache database
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DefaultCachePath returns the default cache database path
func DefaultCachePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "pages.db" // Fallback to current directory
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "pagefeed", "pages.db")
}
