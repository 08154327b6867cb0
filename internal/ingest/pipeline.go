// Package ingest drives the ingestion pipeline: snapshot fetch, identity
// extraction, existence gate, embed scrape, store hand-off, and queue
// publish, forever on a fixed cadence.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emily-news/tgcollect/internal/identity"
	"github.com/emily-news/tgcollect/internal/journal"
	"github.com/emily-news/tgcollect/internal/newsapi"
	"github.com/emily-news/tgcollect/internal/queue"
	"github.com/emily-news/tgcollect/internal/scrape"
	"github.com/emily-news/tgcollect/internal/snapshot"
)

// Source produces post summaries for a channel.
type Source interface {
	Name() string
	Fetch(ctx context.Context, channel string) ([]snapshot.PostSummary, error)
}

// Store is the news store: the existence gate plus record creation and media
// upload.
type Store interface {
	Exists(ctx context.Context, channel string, idPost uint64) (bool, error)
	Create(ctx context.Context, in newsapi.CreateRequest) error
	UploadMedia(ctx context.Context, idPost uint64, channel string, files []newsapi.UploadFile) error
}

// Scraper extracts content and media from a post's embed page.
type Scraper interface {
	ScrapePost(ctx context.Context, postURL string, post identity.PostID) (scrape.Result, error)
}

// Publisher appends queue messages for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Recorder persists per-post pipeline outcomes. Optional.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Pipeline processes all configured channels strictly sequentially: one
// channel at a time, one post at a time. Every failure is scoped to its unit
// of work; nothing escapes the run loop.
type Pipeline struct {
	Channels []string
	Source   Source
	Store    Store
	Scraper  Scraper
	Queue    Publisher
	Journal  Recorder
	MediaDir string
	Interval time.Duration
	Log      *slog.Logger
}

// Run sweeps forever, sleeping Interval between sweeps. It returns only when
// ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		p.runSweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// runSweep guards the outer loop: whatever happens inside a sweep, the
// process reaches the sleep and tries again.
func (p *Pipeline) runSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger().Error("sweep panicked", "panic", fmt.Sprint(r))
		}
	}()

	p.Sweep(ctx)
}

// Sweep runs one full pass over all configured channels, in fixed order. A
// failing channel is logged and does not prevent the remaining channels from
// being processed.
func (p *Pipeline) Sweep(ctx context.Context) {
	log := p.logger()
	log.Info("sweep started", "channels", len(p.Channels))

	for _, channel := range p.Channels {
		if ctx.Err() != nil {
			return
		}
		p.sweepChannel(ctx, channel)
	}

	log.Info("sweep finished", "channels", len(p.Channels))
}

func (p *Pipeline) sweepChannel(ctx context.Context, channel string) {
	log := p.logger().With("channel", channel)

	defer func() {
		if r := recover(); r != nil {
			log.Error("channel processing panicked", "panic", fmt.Sprint(r))
		}
	}()

	posts, err := p.Source.Fetch(ctx, channel)
	if err != nil {
		log.Error("snapshot fetch failed", "error", err)
		return
	}

	posts = snapshot.FilterOutlinks(posts)
	log.Debug("snapshot fetched", "posts", len(posts))

	for _, summary := range posts {
		p.processPost(ctx, channel, summary)
	}
}

// processPost runs one post through extract → gate → scrape → create →
// upload → publish. Each stage failure is terminal for this post only.
func (p *Pipeline) processPost(ctx context.Context, channel string, summary snapshot.PostSummary) {
	post, ok := identity.Extract(summary.URL)
	if !ok {
		p.logger().Warn("unparsable post url, skipping", "channel", channel, "url", summary.URL)
		return
	}

	log := p.logger().With("channel", post.Channel, "post_id", post.ID)

	exists, err := p.Store.Exists(ctx, post.Channel, post.ID)
	if err != nil {
		// A degraded gate must not be read as "new": creating now could
		// duplicate the record. Skip and let the next sweep retry.
		log.Warn("existence check failed, skipping", "error", err)
		return
	}
	if exists {
		log.Debug("already recorded")
		return
	}

	if strings.TrimSpace(summary.Content) == "" {
		log.Debug("empty content, skipping")
		return
	}

	entry := journal.Entry{
		Channel:     post.Channel,
		IDPost:      post.ID,
		URL:         summary.URL,
		PublishedAt: summary.PublishedAt.Format(time.RFC3339),
	}

	res, err := p.Scraper.ScrapePost(ctx, summary.URL, post)
	if err != nil {
		log.Error("embed scrape failed, post skipped", "error", err)
		entry.Note = "scrape failed"
		p.record(ctx, entry, log)
		return
	}
	entry.Author = res.Author
	entry.MediaFound = len(res.Media)

	err = p.Store.Create(ctx, newsapi.CreateRequest{
		Channel:  post.Channel,
		IDPost:   post.ID,
		Time:     summary.PublishedAt.Format(time.RFC3339),
		URL:      summary.URL,
		Text:     summary.Content,
		Outlinks: summary.Outlinks,
	})
	if err != nil {
		log.Error("create failed, post abandoned", "error", err)
		entry.Note = "create failed"
		p.record(ctx, entry, log)
		return
	}
	entry.Created = true
	log.Info("post created", "media", len(res.Media))

	if len(res.Media) > 0 {
		if err := p.Store.UploadMedia(ctx, post.ID, post.Channel, uploadFiles(p.MediaDir, res.Media)); err != nil {
			// The record stays; a post with text and missing media is an
			// accepted state.
			log.Error("media upload failed", "error", err)
			entry.Note = "media upload failed"
		} else {
			entry.MediaUploaded = true
			log.Info("media uploaded", "files", len(res.Media))
		}
	}

	msg := queue.Message{
		Channel:  post.Channel,
		Content:  summary.Content,
		IDPost:   post.ID,
		Outlinks: summary.Outlinks,
	}
	if err := p.Queue.Publish(ctx, msg); err != nil {
		log.Error("queue publish failed", "error", err)
		entry.Note = "publish failed"
	} else {
		entry.Published = true
		log.Info("queued for processing")
	}

	p.record(ctx, entry, log)
}

func (p *Pipeline) record(ctx context.Context, e journal.Entry, log *slog.Logger) {
	if p.Journal == nil {
		return
	}
	if err := p.Journal.Record(ctx, e); err != nil {
		log.Warn("journal write failed", "error", err)
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

// uploadFiles maps downloaded media refs to upload parts. The part filename
// and content type depend only on the kind, matching what the store expects.
func uploadFiles(mediaDir string, refs []scrape.MediaRef) []newsapi.UploadFile {
	files := make([]newsapi.UploadFile, 0, len(refs))
	for _, ref := range refs {
		file := newsapi.UploadFile{
			Path:        scrape.MediaPath(mediaDir, ref),
			FileName:    "image.jpg",
			ContentType: "image/jpeg",
		}
		if ref.Kind == scrape.KindVideo {
			file.FileName = "video.mp4"
			file.ContentType = "video/mp4"
		}
		files = append(files, file)
	}
	return files
}
