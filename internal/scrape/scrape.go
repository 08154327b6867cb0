// Package scrape extracts text, author, and media from a post's embed page
// and downloads accepted media with bounded retry.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emily-news/tgcollect/internal/identity"
)

const (
	// The bot-style user agent makes t.me serve the plain embed markup.
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_13_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/77.0.3865.90 Safari/537.36 TelegramBot (like TwitterBot)"

	// cdnBase resolves relative background-image URLs in photo wraps.
	cdnBase = "https://cdn4.cdn-telegram.org"

	defaultPageTimeout = 15 * time.Second
)

var bgImageRe = regexp.MustCompile(`background-image:url\('(.*?)'\)`)

// MediaKind distinguishes downloaded media files.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// MediaRef is one downloaded media file attached to a post. LocalName is
// freshly generated at download time and carries no relation to RemoteURL.
type MediaRef struct {
	Kind      MediaKind
	RemoteURL string
	LocalName string
}

// Result holds everything extracted from one post's embed page.
type Result struct {
	Author   string
	Text     string
	Datetime string
	Media    []MediaRef
}

// Options configure a Scraper.
type Options struct {
	// PageTimeout bounds the embed page fetch and each media request.
	PageTimeout time.Duration

	// MediaDir is the root under which img/ and video/ subdirectories live.
	MediaDir string

	// Attempts is the per-media-item download budget.
	Attempts int

	// RetryDelay is the fixed pause between failed download attempts.
	RetryDelay time.Duration

	// DownloadDelay throttles consecutive media downloads.
	DownloadDelay time.Duration

	Log *slog.Logger
}

// Scraper fetches embed pages and downloads their media.
type Scraper struct {
	client    *http.Client
	downloads *Downloader
	log       *slog.Logger
}

// New creates a Scraper. Zero option fields get defaults.
func New(opts Options) *Scraper {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = defaultPageTimeout
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Scraper{
		client:    &http.Client{Timeout: opts.PageTimeout},
		downloads: newDownloader(opts),
		log:       opts.Log,
	}
}

type mediaCandidate struct {
	kind MediaKind
	url  string
}

// ScrapePost fetches the embed rendering of postURL and extracts its text,
// author, timestamp, and media. Media elements are only accepted from the
// message container whose data-post attribute matches post: the embed page
// can render neighboring posts, and their media must not leak in. A failed
// page fetch fails the whole post; a failed media download drops only that
// item.
func (s *Scraper) ScrapePost(ctx context.Context, postURL string, post identity.PostID) (Result, error) {
	embedURL := postURL + "?embed=1&mode=tme"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, embedURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("scrape: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("scrape: fetch %s: %w", postURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("scrape: fetch %s: status %d", postURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("scrape: parse %s: %w", postURL, err)
	}

	container := doc.Find("div.tgme_widget_message").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return sel.AttrOr("data-post", "") == post.String()
	})

	res := Result{
		Text:   normalizeText(container.Find("div.tgme_widget_message_text").First()),
		Author: strings.TrimSpace(container.Find("a.tgme_widget_message_owner_name span").First().Text()),
	}

	timeEl := container.Find("span.tgme_widget_message_meta time.datetime").First()
	if dt, ok := timeEl.Attr("datetime"); ok {
		res.Datetime = dt
	} else {
		res.Datetime = strings.TrimSpace(timeEl.Text())
	}

	for _, cand := range collectMedia(container) {
		name, err := s.downloads.Fetch(ctx, cand.url, cand.kind)
		if err != nil {
			s.log.Warn("media download dropped",
				"post", post.String(), "kind", string(cand.kind), "url", cand.url, "error", err)
			continue
		}
		res.Media = append(res.Media, MediaRef{Kind: cand.kind, RemoteURL: cand.url, LocalName: name})
	}

	return res, nil
}

// collectMedia lists the media URLs of the scoped message container, images
// first, in document order.
func collectMedia(container *goquery.Selection) []mediaCandidate {
	var cands []mediaCandidate

	container.Find("a.tgme_widget_message_photo_wrap").Each(func(_ int, sel *goquery.Selection) {
		style := sel.AttrOr("style", "")
		for _, m := range bgImageRe.FindAllStringSubmatch(style, -1) {
			url := m[1]
			if url == "" {
				continue
			}
			if strings.HasPrefix(url, "/") {
				url = cdnBase + url
			}
			cands = append(cands, mediaCandidate{kind: KindImage, url: url})
		}
	})

	container.Find("div.tgme_widget_message_video_wrap video").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok && src != "" {
			cands = append(cands, mediaCandidate{kind: KindVideo, url: src})
		}
	})

	return cands
}

// MediaPath returns the local path of a downloaded ref under mediaDir.
func MediaPath(mediaDir string, ref MediaRef) string {
	return filepath.Join(mediaDir, kindSubdir(ref.Kind), ref.LocalName)
}
