package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	lokiPushPath    = "/loki/api/v1/push"
	lokiPushTimeout = 5 * time.Second
)

// LokiHandler ships slog records to a Loki push endpoint. Each record becomes
// one stream entry labeled with the project and level; record attributes go
// into the entry body. Delivery is best-effort: push failures are written to
// stderr and never propagated.
type LokiHandler struct {
	url     string
	client  *http.Client
	project string
	level   slog.Leveler
	attrs   []slog.Attr
	group   string
}

// NewLokiHandler creates a handler pushing to <baseURL>/loki/api/v1/push.
func NewLokiHandler(baseURL, project string, level slog.Leveler) *LokiHandler {
	return &LokiHandler{
		url:     baseURL + lokiPushPath,
		client:  &http.Client{Timeout: lokiPushTimeout},
		project: project,
		level:   level,
	}
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiPayload struct {
	Streams []lokiStream `json:"streams"`
}

func (h *LokiHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.level != nil {
		minLevel = h.level.Level()
	}
	return level >= minLevel
}

func (h *LokiHandler) Handle(ctx context.Context, record slog.Record) error {
	entry := map[string]any{"message": record.Message}
	for _, a := range h.attrs {
		entry[h.key(a.Key)] = a.Value.Resolve().Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		entry[h.key(a.Key)] = a.Value.Resolve().Any()
		return true
	})

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("loki: marshal entry: %w", err)
	}

	payload := lokiPayload{
		Streams: []lokiStream{{
			Stream: map[string]string{
				"project": h.project,
				"level":   record.Level.String(),
			},
			Values: [][2]string{{
				strconv.FormatInt(record.Time.UnixNano(), 10),
				string(line),
			}},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("loki: marshal payload: %w", err)
	}

	if err := h.push(ctx, body); err != nil {
		// Logging must never take the process down with it.
		fmt.Fprintf(os.Stderr, "loki push error: %v\n", err)
	}
	return nil
}

func (h *LokiHandler) push(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (h *LokiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *LokiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.key(name)
	return &next
}

func (h *LokiHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
