package cli

import (
	"fmt"
	"log/slog"

	"github.com/emily-news/tgcollect/internal/config"
	"github.com/emily-news/tgcollect/internal/ingest"
	"github.com/emily-news/tgcollect/internal/journal"
	"github.com/emily-news/tgcollect/internal/logging"
	"github.com/emily-news/tgcollect/internal/newsapi"
	"github.com/emily-news/tgcollect/internal/queue"
	"github.com/emily-news/tgcollect/internal/scrape"
	"github.com/emily-news/tgcollect/internal/snapshot"
)

// collector bundles the assembled pipeline with the handles that need
// closing when the process shuts down.
type collector struct {
	pipeline *ingest.Pipeline
	queue    *queue.Publisher
	journal  *journal.Journal
	log      *slog.Logger
}

func (c *collector) Close() {
	if err := c.journal.Close(); err != nil {
		c.log.Warn("journal close failed", "error", err)
	}
	if err := c.queue.Close(); err != nil {
		c.log.Warn("queue close failed", "error", err)
	}
}

func buildCollector(cfg *config.Config) (*collector, error) {
	logOpts := logging.Options{Project: "tgcollect"}
	if cfg.Logging.Loki {
		logOpts.LokiURL = cfg.LokiURL()
	}
	log := logging.New(logOpts)

	src, err := buildSource(cfg)
	if err != nil {
		return nil, err
	}

	store, err := newsapi.New(cfg.StoreURL(), cfg.Scraper.Timeout.Duration)
	if err != nil {
		return nil, fmt.Errorf("create store client: %w", err)
	}

	scraper := scrape.New(scrape.Options{
		PageTimeout:   cfg.Scraper.Timeout.Duration,
		MediaDir:      cfg.Media.Dir,
		Attempts:      cfg.Scraper.Attempts,
		RetryDelay:    cfg.Scraper.RetryDelay.Duration,
		DownloadDelay: cfg.Scraper.DownloadDelay.Duration,
		Log:           log,
	})

	pub, err := queue.NewPublisher(cfg.RedisAddr(), cfg.Queue.DB, cfg.Queue.Name)
	if err != nil {
		return nil, fmt.Errorf("create queue publisher: %w", err)
	}

	jrnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &collector{
		pipeline: &ingest.Pipeline{
			Channels: cfg.Channels,
			Source:   src,
			Store:    store,
			Scraper:  scraper,
			Queue:    pub,
			Journal:  jrnl,
			MediaDir: cfg.Media.Dir,
			Interval: cfg.SweepInterval.Duration,
			Log:      log,
		},
		queue:   pub,
		journal: jrnl,
		log:     log,
	}, nil
}

func buildSource(cfg *config.Config) (ingest.Source, error) {
	switch cfg.Snapshot.Provider {
	case config.ProviderRSS:
		src, err := snapshot.NewRSS(cfg.Snapshot.RSSTemplate, cfg.Snapshot.MaxResults)
		if err != nil {
			return nil, fmt.Errorf("create rss source: %w", err)
		}
		return src, nil
	default:
		src, err := snapshot.NewExec(cfg.Snapshot.Command, cfg.Snapshot.MaxResults)
		if err != nil {
			return nil, fmt.Errorf("create exec source: %w", err)
		}
		return src, nil
	}
}
