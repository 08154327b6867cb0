// Package journal keeps a local ledger of per-post pipeline outcomes. The
// pipeline accepts partial-failure states (a record without media, a record
// that never reached the queue); the journal makes those states queryable
// instead of invisible. It never gates the pipeline: journal failures are
// logged and ignored by callers.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is a sqlite-backed outcome ledger.
type Journal struct {
	db *sql.DB
}

// Entry is the recorded outcome of one post's trip through the pipeline.
type Entry struct {
	Channel       string
	IDPost        uint64
	URL           string
	Author        string
	PublishedAt   string
	Created       bool
	MediaFound    int
	MediaUploaded bool
	Published     bool
	Note          string
	RecordedAt    time.Time
}

// Stats summarizes the ledger for doctor and operators.
type Stats struct {
	Total        int
	Created      int
	Published    int
	MissingMedia int // created with media found but upload failed
	Unpublished  int // created but never queued
}

// Open creates or opens the journal database at path, applying migrations.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record upserts the outcome for (channel, id_post).
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j == nil || j.db == nil {
		return errors.New("journal: not initialized")
	}
	if strings.TrimSpace(e.Channel) == "" {
		return errors.New("journal: channel is required")
	}

	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO outcomes (channel, id_post, url, author, published_at,
			created, media_found, media_uploaded, published, note, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, id_post) DO UPDATE SET
			url = excluded.url,
			author = excluded.author,
			published_at = excluded.published_at,
			created = excluded.created,
			media_found = excluded.media_found,
			media_uploaded = excluded.media_uploaded,
			published = excluded.published,
			note = excluded.note,
			recorded_at = excluded.recorded_at`,
		e.Channel, e.IDPost, e.URL, e.Author, e.PublishedAt,
		boolInt(e.Created), e.MediaFound, boolInt(e.MediaUploaded), boolInt(e.Published),
		e.Note, recordedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s/%d: %w", e.Channel, e.IDPost, err)
	}
	return nil
}

// Incomplete returns entries in an accepted partial-failure state: created
// in the store but missing their media upload or their queue publish.
func (j *Journal) Incomplete(ctx context.Context) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("journal: not initialized")
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT channel, id_post, url, author, published_at,
			created, media_found, media_uploaded, published, note, recorded_at
		FROM outcomes
		WHERE created = 1 AND (published = 0 OR (media_found > 0 AND media_uploaded = 0))
		ORDER BY recorded_at, channel, id_post`)
	if err != nil {
		return nil, fmt.Errorf("journal: query incomplete: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate incomplete: %w", err)
	}

	return entries, nil
}

// GetStats summarizes the ledger.
func (j *Journal) GetStats(ctx context.Context) (Stats, error) {
	if j == nil || j.db == nil {
		return Stats{}, errors.New("journal: not initialized")
	}

	var s Stats
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(created), 0),
			COALESCE(SUM(published), 0),
			COALESCE(SUM(CASE WHEN created = 1 AND media_found > 0 AND media_uploaded = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created = 1 AND published = 0 THEN 1 ELSE 0 END), 0)
		FROM outcomes`).Scan(&s.Total, &s.Created, &s.Published, &s.MissingMedia, &s.Unpublished)
	if err != nil {
		return Stats{}, fmt.Errorf("journal: stats: %w", err)
	}

	return s, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var created, mediaUploaded, published int
	var recordedAt string

	err := rows.Scan(&e.Channel, &e.IDPost, &e.URL, &e.Author, &e.PublishedAt,
		&created, &e.MediaFound, &mediaUploaded, &published, &e.Note, &recordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: scan entry: %w", err)
	}

	e.Created = created == 1
	e.MediaUploaded = mediaUploaded == 1
	e.Published = published == 1
	if ts, err := time.Parse(time.RFC3339, recordedAt); err == nil {
		e.RecordedAt = ts
	}

	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
