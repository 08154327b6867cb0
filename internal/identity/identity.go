// Package identity derives a post's (channel, id) pair from its t.me URL.
package identity

import (
	"fmt"
	"regexp"
	"strconv"
)

// postURLRe matches the public web-view form of a channel post URL,
// e.g. https://t.me/s/exploitex/123.
var postURLRe = regexp.MustCompile(`https://t\.me/s/([^/]+)/(\d+)`)

// PostID identifies a single post within a channel.
type PostID struct {
	Channel string
	ID      uint64
}

// String returns the channel-scoped form used in embed page data-post
// attributes, e.g. "exploitex/123".
func (p PostID) String() string {
	return fmt.Sprintf("%s/%d", p.Channel, p.ID)
}

// Extract parses a post URL into a PostID. The second return value is false
// for any URL that does not match the t.me/s/<channel>/<id> shape; callers
// treat that as a skip, not an error.
func Extract(rawURL string) (PostID, bool) {
	m := postURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return PostID{}, false
	}

	id, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		// Digits beyond uint64 range. Treat as non-matching.
		return PostID{}, false
	}

	return PostID{Channel: m[1], ID: id}, true
}
