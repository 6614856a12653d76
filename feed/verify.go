package feed

import (
	"fmt"
	"os"

	"github.com/mmcdole/gofeed"
)

// Verify parses the file at path back as a feed and returns its item count.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open feed at '%s' with %w", path, err)
	}
	defer f.Close()

	parsed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		return 0, fmt.Errorf("failed to parse feed at '%s' with %w", path, err)
	}
	if parsed.FeedType != "rss" {
		return 0, fmt.Errorf("feed at '%s' is %s, not rss", path, parsed.FeedType)
	}
	return len(parsed.Items), nil
}
