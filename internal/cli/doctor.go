package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/emily-news/tgcollect/internal/config"
	"github.com/emily-news/tgcollect/internal/journal"
	"github.com/emily-news/tgcollect/internal/newsapi"
	"github.com/emily-news/tgcollect/internal/queue"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and service connectivity",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config file
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		printCheck(false, "config: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config %s (%s, %d channels, %s provider)",
		path, cfg.Environment, len(cfg.Channels), cfg.Snapshot.Provider)

	// Capture command
	if cfg.Snapshot.Provider == config.ProviderExec {
		if _, err := exec.LookPath(cfg.Snapshot.Command); err != nil {
			printCheck(false, "capture command %s not found", cfg.Snapshot.Command)
			ok = false
		} else {
			printCheck(true, "capture command %s", cfg.Snapshot.Command)
		}
	}

	// Media directory
	if err := os.MkdirAll(cfg.Media.Dir, 0o755); err != nil {
		printCheck(false, "media directory: %v", err)
		ok = false
	} else {
		printCheck(true, "media directory %s", cfg.Media.Dir)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	// News store
	store, err := newsapi.New(cfg.StoreURL(), cfg.Scraper.Timeout.Duration)
	if err != nil {
		printCheck(false, "news store: %v", err)
		ok = false
	} else if err := store.Ping(ctx); err != nil {
		printCheck(false, "news store %s: %v", cfg.StoreURL(), err)
		ok = false
	} else {
		printCheck(true, "news store %s", cfg.StoreURL())
	}

	// Redis
	pub, err := queue.NewPublisher(cfg.RedisAddr(), cfg.Queue.DB, cfg.Queue.Name)
	if err != nil {
		printCheck(false, "redis: %v", err)
		ok = false
	} else {
		if err := pub.Ping(ctx); err != nil {
			printCheck(false, "redis %s: %v", cfg.RedisAddr(), err)
			ok = false
		} else {
			printCheck(true, "redis %s (queue %s)", cfg.RedisAddr(), cfg.Queue.Name)
		}
		_ = pub.Close()
	}

	// Journal
	jrnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		printCheck(false, "journal: %v", err)
		ok = false
	} else {
		printCheck(true, "journal %s", cfg.Journal.Path)
		reportJournalHealth(ctx, jrnl)
		_ = jrnl.Close()
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// reportJournalHealth surfaces posts stuck in a partial state. Info-level,
// never fails the doctor run.
func reportJournalHealth(ctx context.Context, jrnl *journal.Journal) {
	stats, err := jrnl.GetStats(ctx)
	if err != nil || stats.Total == 0 {
		return
	}

	fmt.Println()
	printInfo("%d posts recorded, %d created, %d published", stats.Total, stats.Created, stats.Published)
	if stats.MissingMedia > 0 {
		printInfo("%d posts created with media that never uploaded", stats.MissingMedia)
	}
	if stats.Unpublished > 0 {
		printInfo("%d posts created but never queued", stats.Unpublished)
	}
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
