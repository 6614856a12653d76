package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewCache(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "nested", "test_cache.db")

	cache, err := NewCache(cachePath)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	// Verify database file was created
	if _, err := os.Stat(cachePath); os.IsNotExist(err) {
		t.Error("Cache database file was not created")
	}
}

func TestPageCache_SetAndGet(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "test_cache.db")

	cache, err := NewCache(cachePath)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	site := "iryokikan-portal"
	url := "https://example.com/list"
	html := "<html><body><div class=\"row\">更新</div></body></html>"

	if err := cache.SetPage(site, url, html); err != nil {
		t.Fatalf("SetPage failed: %v", err)
	}

	page, found, err := cache.GetPage(site)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if !found {
		t.Fatal("Expected cache hit, got miss")
	}
	if page.HTML != html {
		t.Errorf("Retrieved HTML mismatch: got %s, want %s", page.HTML, html)
	}
	if page.URL != url {
		t.Errorf("Retrieved URL mismatch: got %s, want %s", page.URL, url)
	}
	if page.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestPageCache_Miss(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "test_cache.db")

	cache, err := NewCache(cachePath)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	_, found, err := cache.GetPage("unknown")
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if found {
		t.Error("Expected cache miss, got hit")
	}
}

func TestClear(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "test_cache.db")

	cache, err := NewCache(cachePath)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	cache.SetPage("a", "https://example.com/1", "<p>1</p>")
	cache.SetPage("b", "https://example.com/2", "<p>2</p>")

	stats, _ := cache.Stats()
	if stats.PageEntries != 2 {
		t.Errorf("Expected 2 page entries, got %d", stats.PageEntries)
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	stats, _ = cache.Stats()
	if stats.PageEntries != 0 {
		t.Errorf("Expected 0 page entries after clear, got %d", stats.PageEntries)
	}
}

func TestStats(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "test_cache.db")

	cache, err := NewCache(cachePath)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	// Initially empty
	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.PageEntries != 0 || !stats.OldestEntry.IsZero() {
		t.Error("Expected empty cache initially")
	}

	cache.SetPage("a", "https://example.com/1", "<p>1</p>")

	stats, err = cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.PageEntries != 1 {
		t.Errorf("Expected 1 page entry, got %d", stats.PageEntries)
	}
	if stats.OldestEntry.IsZero() {
		t.Error("Expected OldestEntry to be set")
	}
}

func TestAccessTracking(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "test_cache.db")

	cache, err := NewCache(cachePath)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	cache.SetPage("a", "https://example.com/1", "<p>1</p>")

	// Sleep briefly to ensure time difference
	time.Sleep(10 * time.Millisecond)

	if _, _, err := cache.GetPage("a"); err != nil {
		t.Errorf("GetPage after store failed: %v", err)
	}
}

func TestDefaultCachePath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("HOME", "/home/tester")

	path := DefaultCachePath()
	if path != "/home/tester/.cache/pagefeed/pages.db" {
		t.Errorf("unexpected default cache path: %s", path)
	}

	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	if path := DefaultCachePath(); path != "/tmp/xdg/pagefeed/pages.db" {
		t.Errorf("unexpected XDG cache path: %s", path)
	}
}

func TestUpdateExistingEntry(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "test_cache.db")

	cache, err := NewCache(cachePath)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	cache.SetPage("a", "https://example.com/old", "original")
	cache.SetPage("a", "https://example.com/new", "updated")

	page, found, _ := cache.GetPage("a")
	if !found {
		t.Fatal("Expected cache hit")
	}
	if page.HTML != "updated" || page.URL != "https://example.com/new" {
		t.Errorf("Expected updated entry, got %+v", page)
	}

	stats, _ := cache.Stats()
	if stats.PageEntries != 1 {
		t.Errorf("Expected a single entry per site, got %d", stats.PageEntries)
	}
}
