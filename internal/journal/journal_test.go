package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() {
		_ = j.Close()
	})
	return j, path
}

func TestOpenAndMigrate(t *testing.T) {
	j, path := openTestJournal(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}

	var version string
	if err := j.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "1" {
		t.Fatalf("unexpected schema version: %s", version)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecordAndUpsert(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	e := Entry{
		Channel:    "exploitex",
		IDPost:     123,
		URL:        "https://t.me/s/exploitex/123",
		Created:    true,
		MediaFound: 2,
		Published:  false,
		RecordedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := j.Record(ctx, e); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Re-record with the publish now done; the row is replaced, not doubled.
	e.Published = true
	e.MediaUploaded = true
	if err := j.Record(ctx, e); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	stats, err := j.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("total = %d, want 1", stats.Total)
	}
	if stats.Published != 1 {
		t.Errorf("published = %d, want 1", stats.Published)
	}
}

func TestRecord_RequiresChannel(t *testing.T) {
	j, _ := openTestJournal(t)
	if err := j.Record(context.Background(), Entry{IDPost: 1}); err == nil {
		t.Fatal("expected error for missing channel")
	}
}

func TestIncomplete(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []Entry{
		// Fully ingested: not incomplete.
		{Channel: "a", IDPost: 1, Created: true, Published: true, RecordedAt: base},
		// Created but never published.
		{Channel: "a", IDPost: 2, Created: true, Published: false, RecordedAt: base.Add(time.Minute)},
		// Created, media found but upload failed, publish fine.
		{Channel: "b", IDPost: 3, Created: true, MediaFound: 2, MediaUploaded: false, Published: true, RecordedAt: base.Add(2 * time.Minute)},
		// Never created (gate said exists): not incomplete.
		{Channel: "b", IDPost: 4, Created: false, RecordedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("record %s/%d: %v", e.Channel, e.IDPost, err)
		}
	}

	got, err := j.Incomplete(ctx)
	if err != nil {
		t.Fatalf("incomplete: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d incomplete entries, want 2", len(got))
	}
	if got[0].Channel != "a" || got[0].IDPost != 2 {
		t.Errorf("incomplete[0] = %s/%d", got[0].Channel, got[0].IDPost)
	}
	if got[1].Channel != "b" || got[1].IDPost != 3 {
		t.Errorf("incomplete[1] = %s/%d", got[1].Channel, got[1].IDPost)
	}

	stats, err := j.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Created != 3 || stats.MissingMedia != 1 || stats.Unpublished != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
