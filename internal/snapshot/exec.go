package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	execSourceName = "exec"
	fetchTimeout   = 2 * time.Minute
	maxLineLength  = 1 << 20 // 1 MiB per JSONL line
)

// ExecSource shells out to a snscrape-compatible capture command and parses
// its JSONL output, one record per post.
type ExecSource struct {
	command    string
	maxResults int
}

// NewExec creates an exec-backed snapshot source. The command must accept
// snscrape-style flags and a telegram-channel target.
func NewExec(command string, maxResults int) (*ExecSource, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("snapshot: command is required")
	}
	if maxResults < 1 {
		return nil, errors.New("snapshot: max results must be at least 1")
	}
	return &ExecSource{command: command, maxResults: maxResults}, nil
}

// Name returns "exec".
func (es *ExecSource) Name() string {
	return execSourceName
}

// Fetch runs the capture command for one channel and parses its output.
// Malformed lines are dropped rather than failing the whole channel.
func (es *ExecSource) Fetch(ctx context.Context, channel string) ([]PostSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, es.command,
		"--max-results", strconv.Itoa(es.maxResults),
		"--jsonl-for-buggy-int-parser",
		"telegram-channel", channel,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("snapshot: stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("snapshot: %s not found in PATH", es.command)
		}
		return nil, fmt.Errorf("snapshot: start capture: %w", err)
	}

	posts, parseErr := parseJSONL(stdout)

	if err := cmd.Wait(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return nil, fmt.Errorf("snapshot: capture %s failed: %s", channel, errMsg)
		}
		return nil, fmt.Errorf("snapshot: capture %s failed: %w", channel, err)
	}

	if parseErr != nil {
		return nil, fmt.Errorf("snapshot: parse output: %w", parseErr)
	}

	return posts, nil
}

// capturedPost is the JSONL schema emitted by the capture command.
type capturedPost struct {
	URL      string   `json:"url"`
	Date     string   `json:"date"`
	Content  string   `json:"content"`
	Outlinks []string `json:"outlinks"`
}

// parseJSONL reads JSONL from r and converts each line to a PostSummary.
// Lines that are not valid records (bad JSON, unparsable date) are skipped,
// so garbage output degrades to an empty post list instead of a crash.
func parseJSONL(r io.Reader) ([]PostSummary, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, maxLineLength), maxLineLength)

	var posts []PostSummary

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec capturedPost
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, rec.Date)
		if err != nil {
			continue
		}

		posts = append(posts, PostSummary{
			URL:         rec.URL,
			PublishedAt: publishedAt,
			Content:     rec.Content,
			Outlinks:    rec.Outlinks,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}

	return posts, nil
}
