package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/emily-news/tgcollect/internal/config"
	"github.com/emily-news/tgcollect/internal/journal"
	"github.com/spf13/cobra"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection outcomes from the journal",
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(statsCmd)
}

func statsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	jrnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = jrnl.Close() }()

	ctx := cmd.Context()

	stats, err := jrnl.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if stats.Total == 0 {
		if statsFormat == "json" {
			fmt.Fprintln(os.Stdout, `{"total":0,"created":0,"published":0,"missing_media":0,"unpublished":0,"incomplete":[]}`)
			return nil
		}
		fmt.Fprintln(os.Stdout, "No posts recorded. Run 'tgcollect sweep' first.")
		return nil
	}

	incomplete, err := jrnl.Incomplete(ctx)
	if err != nil {
		return fmt.Errorf("list incomplete: %w", err)
	}

	switch statsFormat {
	case "json":
		return printStatsJSON(os.Stdout, stats, incomplete)
	case "terminal", "":
		printStats(os.Stdout, stats, incomplete)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}
}

type jsonStatsOutput struct {
	Total        int              `json:"total"`
	Created      int              `json:"created"`
	Published    int              `json:"published"`
	MissingMedia int              `json:"missing_media"`
	Unpublished  int              `json:"unpublished"`
	Incomplete   []jsonIncomplete `json:"incomplete"`
}

type jsonIncomplete struct {
	Channel string `json:"channel"`
	IDPost  uint64 `json:"id_post"`
	URL     string `json:"url"`
	Note    string `json:"note"`
}

func printStatsJSON(w io.Writer, stats journal.Stats, incomplete []journal.Entry) error {
	out := jsonStatsOutput{
		Total:        stats.Total,
		Created:      stats.Created,
		Published:    stats.Published,
		MissingMedia: stats.MissingMedia,
		Unpublished:  stats.Unpublished,
		Incomplete:   make([]jsonIncomplete, 0, len(incomplete)),
	}
	for _, e := range incomplete {
		out.Incomplete = append(out.Incomplete, jsonIncomplete{
			Channel: e.Channel,
			IDPost:  e.IDPost,
			URL:     e.URL,
			Note:    e.Note,
		})
	}

	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func printStats(w io.Writer, stats journal.Stats, incomplete []journal.Entry) {
	fmt.Fprintf(w, "Posts seen:     %d\n", stats.Total)
	fmt.Fprintf(w, "Created:        %d\n", stats.Created)
	fmt.Fprintf(w, "Published:      %d\n", stats.Published)
	fmt.Fprintf(w, "Missing media:  %d\n", stats.MissingMedia)
	fmt.Fprintf(w, "Unpublished:    %d\n", stats.Unpublished)

	if len(incomplete) == 0 {
		return
	}

	fmt.Fprintf(w, "\nIncomplete posts:\n")
	for _, e := range incomplete {
		note := e.Note
		if note == "" {
			note = "partial"
		}
		fmt.Fprintf(w, "  %s/%d  %s (%s)\n", e.Channel, e.IDPost, e.URL, note)
	}
}
