// Package snapshot fetches the most recent posts of a channel from an
// external capture tool.
package snapshot

import (
	"context"
	"strings"
	"time"
)

// PostSummary is one post as reported by the snapshot tool. It is transient:
// the pipeline discards it once the post's identity has been extracted and
// the record handed off.
type PostSummary struct {
	URL         string
	PublishedAt time.Time
	Content     string
	Outlinks    []string
}

// Source produces the latest post summaries for a channel.
type Source interface {
	// Name returns the provider identifier (e.g. "exec").
	Name() string

	// Fetch returns the most recent posts of the channel, newest last.
	Fetch(ctx context.Context, channel string) ([]PostSummary, error)
}

// FilterOutlinks returns a copy of posts with t.me links removed from each
// summary's outlinks. Link order is preserved; the input is left untouched.
func FilterOutlinks(posts []PostSummary) []PostSummary {
	filtered := make([]PostSummary, 0, len(posts))
	for _, p := range posts {
		if len(p.Outlinks) > 0 {
			links := make([]string, 0, len(p.Outlinks))
			for _, l := range p.Outlinks {
				if strings.Contains(l, "https://t.me/") {
					continue
				}
				links = append(links, l)
			}
			p.Outlinks = links
		}
		filtered = append(filtered, p)
	}
	return filtered
}
