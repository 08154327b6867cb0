package snapshot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	rssSourceName   = "rss"
	rssFetchTimeout = 30 * time.Second
)

var (
	htmlTagRe     = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe  = regexp.MustCompile(`\s{3,}`)
	channelLinkRe = regexp.MustCompile(`^https://t\.me/([^/]+)/(\d+)$`)
)

// RSSSource reads channel posts from an RSS/Atom mirror (RSSHub-style).
// It is an alternative to ExecSource for hosts where the capture command
// is unavailable.
type RSSSource struct {
	urlTemplate string
	maxResults  int
	parser      *gofeed.Parser
}

// NewRSS creates an RSS-backed snapshot source. urlTemplate must contain a
// single %s placeholder for the channel name.
func NewRSS(urlTemplate string, maxResults int) (*RSSSource, error) {
	if !strings.Contains(urlTemplate, "%s") {
		return nil, errors.New("snapshot: rss template must contain %s placeholder")
	}
	if maxResults < 1 {
		return nil, errors.New("snapshot: max results must be at least 1")
	}
	return &RSSSource{
		urlTemplate: urlTemplate,
		maxResults:  maxResults,
		parser:      gofeed.NewParser(),
	}, nil
}

// Name returns "rss".
func (rs *RSSSource) Name() string {
	return rssSourceName
}

func (rs *RSSSource) Fetch(ctx context.Context, channel string) ([]PostSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, rssFetchTimeout)
	defer cancel()

	feedURL := fmt.Sprintf(rs.urlTemplate, channel)
	feed, err := rs.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: fetch feed %s: %w", channel, err)
	}

	items := feed.Items
	if len(items) > rs.maxResults {
		items = items[:rs.maxResults]
	}

	var posts []PostSummary
	for _, item := range items {
		if item == nil {
			continue
		}

		publishedAt := time.Now().UTC()
		if item.PublishedParsed != nil {
			publishedAt = item.PublishedParsed.UTC()
		}

		posts = append(posts, PostSummary{
			URL:         normalizePostURL(item.Link),
			PublishedAt: publishedAt,
			Content:     stripHTML(item.Description),
			Outlinks:    itemOutlinks(item),
		})
	}

	return posts, nil
}

// normalizePostURL rewrites https://t.me/<channel>/<id> into the web-view
// form https://t.me/s/<channel>/<id> that identity extraction expects.
func normalizePostURL(link string) string {
	if m := channelLinkRe.FindStringSubmatch(link); m != nil && m[1] != "s" {
		return fmt.Sprintf("https://t.me/s/%s/%s", m[1], m[2])
	}
	return link
}

// itemOutlinks collects the item's secondary links, excluding the post link
// itself.
func itemOutlinks(item *gofeed.Item) []string {
	var out []string
	for _, l := range item.Links {
		if l == "" || l == item.Link {
			continue
		}
		out = append(out, l)
	}
	return out
}

// stripHTML reduces feed description markup to plain text.
func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
