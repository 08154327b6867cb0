package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/emily-news/tgcollect/internal/identity"
	"github.com/emily-news/tgcollect/internal/journal"
	"github.com/emily-news/tgcollect/internal/newsapi"
	"github.com/emily-news/tgcollect/internal/queue"
	"github.com/emily-news/tgcollect/internal/scrape"
	"github.com/emily-news/tgcollect/internal/snapshot"
)

type fakeSource struct {
	posts map[string][]snapshot.PostSummary
	errs  map[string]error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, channel string) ([]snapshot.PostSummary, error) {
	if err := f.errs[channel]; err != nil {
		return nil, err
	}
	return f.posts[channel], nil
}

type fakeStore struct {
	exists    map[string]bool
	existsErr error
	createErr error
	uploadErr error

	calls   []string
	creates []newsapi.CreateRequest
	uploads [][]newsapi.UploadFile
}

func (f *fakeStore) Exists(_ context.Context, channel string, idPost uint64) (bool, error) {
	f.calls = append(f.calls, fmt.Sprintf("exists:%s/%d", channel, idPost))
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.exists[fmt.Sprintf("%s/%d", channel, idPost)], nil
}

func (f *fakeStore) Create(_ context.Context, in newsapi.CreateRequest) error {
	f.calls = append(f.calls, fmt.Sprintf("create:%s/%d", in.Channel, in.IDPost))
	if f.createErr != nil {
		return f.createErr
	}
	f.creates = append(f.creates, in)
	return nil
}

func (f *fakeStore) UploadMedia(_ context.Context, idPost uint64, channel string, files []newsapi.UploadFile) error {
	f.calls = append(f.calls, fmt.Sprintf("upload:%s/%d", channel, idPost))
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, files)
	return nil
}

type fakeScraper struct {
	results map[string]scrape.Result
	errs    map[string]error
	scraped []string
}

func (f *fakeScraper) ScrapePost(_ context.Context, _ string, post identity.PostID) (scrape.Result, error) {
	f.scraped = append(f.scraped, post.String())
	if err := f.errs[post.String()]; err != nil {
		return scrape.Result{}, err
	}
	return f.results[post.String()], nil
}

type fakePublisher struct {
	err      error
	messages []queue.Message
	calls    *fakeStore // shared call log for ordering assertions
}

func (f *fakePublisher) Publish(_ context.Context, msg queue.Message) error {
	if f.calls != nil {
		f.calls.calls = append(f.calls.calls, fmt.Sprintf("publish:%s/%d", msg.Channel, msg.IDPost))
	}
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

type fakeRecorder struct {
	entries []journal.Entry
}

func (f *fakeRecorder) Record(_ context.Context, e journal.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func summaryFor(url, content string) snapshot.PostSummary {
	return snapshot.PostSummary{
		URL:         url,
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Content:     content,
	}
}

func newTestPipeline(src *fakeSource, store *fakeStore, scr *fakeScraper, pub *fakePublisher, rec *fakeRecorder, channels ...string) *Pipeline {
	return &Pipeline{
		Channels: channels,
		Source:   src,
		Store:    store,
		Scraper:  scr,
		Queue:    pub,
		Journal:  rec,
		MediaDir: "media",
		Interval: time.Minute,
	}
}

func TestSweep_NewPostIsCreatedThenPublished(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {summaryFor("https://t.me/s/exploitex/123", "hello")},
	}}
	store := &fakeStore{}
	scr := &fakeScraper{}
	pub := &fakePublisher{calls: store}
	rec := &fakeRecorder{}

	p := newTestPipeline(src, store, scr, pub, rec, "exploitex")
	p.Sweep(context.Background())

	wantCalls := []string{"exists:exploitex/123", "create:exploitex/123", "publish:exploitex/123"}
	if len(store.calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", store.calls, wantCalls)
	}
	for i, want := range wantCalls {
		if store.calls[i] != want {
			t.Errorf("calls[%d] = %q, want %q", i, store.calls[i], want)
		}
	}

	if len(store.creates) != 1 {
		t.Fatalf("got %d creates", len(store.creates))
	}
	create := store.creates[0]
	if create.Channel != "exploitex" || create.IDPost != 123 {
		t.Errorf("create identity = %s/%d", create.Channel, create.IDPost)
	}
	if create.Text != "hello" {
		t.Errorf("create text = %q", create.Text)
	}
	if create.URL != "https://t.me/s/exploitex/123" {
		t.Errorf("create url = %q", create.URL)
	}
	if create.Time != "2024-01-01T00:00:00Z" {
		t.Errorf("create time = %q", create.Time)
	}
	if len(create.Outlinks) != 0 {
		t.Errorf("create outlinks = %v", create.Outlinks)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("got %d published messages", len(pub.messages))
	}
	encoded, err := pub.messages[0].Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"channel":"exploitex","content":"hello","id_post":123,"outlinks":[]}`
	if string(encoded) != want {
		t.Errorf("published = %s, want %s", encoded, want)
	}

	if len(rec.entries) != 1 || !rec.entries[0].Created || !rec.entries[0].Published {
		t.Errorf("journal entries = %+v", rec.entries)
	}
}

func TestSweep_ExistingPostIsUntouched(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {summaryFor("https://t.me/s/exploitex/123", "hello")},
	}}
	store := &fakeStore{exists: map[string]bool{"exploitex/123": true}}
	scr := &fakeScraper{}
	pub := &fakePublisher{calls: store}

	p := newTestPipeline(src, store, scr, pub, nil, "exploitex")
	p.Sweep(context.Background())

	if len(store.calls) != 1 || store.calls[0] != "exists:exploitex/123" {
		t.Errorf("calls = %v, want existence check only", store.calls)
	}
	if len(scr.scraped) != 0 {
		t.Errorf("scraped = %v, want none", scr.scraped)
	}
	if len(pub.messages) != 0 {
		t.Errorf("messages = %v, want none", pub.messages)
	}
}

func TestSweep_GateFailureSkipsWithoutCreate(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {summaryFor("https://t.me/s/exploitex/123", "hello")},
	}}
	store := &fakeStore{existsErr: errors.New("store degraded")}
	scr := &fakeScraper{}
	pub := &fakePublisher{calls: store}

	p := newTestPipeline(src, store, scr, pub, nil, "exploitex")
	p.Sweep(context.Background())

	for _, call := range store.calls {
		if call != "exists:exploitex/123" {
			t.Errorf("unexpected call %q after gate failure", call)
		}
	}
	if len(pub.messages) != 0 {
		t.Errorf("messages = %v, want none", pub.messages)
	}
}

func TestSweep_CreateFailureSuppressesUploadAndPublish(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {summaryFor("https://t.me/s/exploitex/123", "hello")},
	}}
	store := &fakeStore{createErr: errors.New("store rejected")}
	scr := &fakeScraper{results: map[string]scrape.Result{
		"exploitex/123": {Media: []scrape.MediaRef{{Kind: scrape.KindImage, LocalName: "img-a.jpg"}}},
	}}
	pub := &fakePublisher{calls: store}
	rec := &fakeRecorder{}

	p := newTestPipeline(src, store, scr, pub, rec, "exploitex")
	p.Sweep(context.Background())

	for _, call := range store.calls {
		if call == "upload:exploitex/123" || call == "publish:exploitex/123" {
			t.Errorf("call %q must not happen after create failure", call)
		}
	}
	if len(rec.entries) != 1 || rec.entries[0].Created {
		t.Errorf("journal entries = %+v, want one uncreated entry", rec.entries)
	}
}

func TestSweep_ScrapeFailureSkipsBeforeCreate(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {summaryFor("https://t.me/s/exploitex/123", "hello")},
	}}
	store := &fakeStore{}
	scr := &fakeScraper{errs: map[string]error{"exploitex/123": errors.New("embed page down")}}
	pub := &fakePublisher{calls: store}

	p := newTestPipeline(src, store, scr, pub, nil, "exploitex")
	p.Sweep(context.Background())

	for _, call := range store.calls {
		if call == "create:exploitex/123" {
			t.Error("create must not happen after scrape failure")
		}
	}
	if len(pub.messages) != 0 {
		t.Errorf("messages = %v, want none", pub.messages)
	}
}

func TestSweep_MediaUploadedBetweenCreateAndPublish(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {summaryFor("https://t.me/s/exploitex/123", "hello")},
	}}
	store := &fakeStore{}
	scr := &fakeScraper{results: map[string]scrape.Result{
		"exploitex/123": {Media: []scrape.MediaRef{
			{Kind: scrape.KindImage, LocalName: "img-a.jpg"},
			{Kind: scrape.KindVideo, LocalName: "vid-b.mp4"},
		}},
	}}
	pub := &fakePublisher{calls: store}

	p := newTestPipeline(src, store, scr, pub, nil, "exploitex")
	p.Sweep(context.Background())

	wantCalls := []string{"exists:exploitex/123", "create:exploitex/123", "upload:exploitex/123", "publish:exploitex/123"}
	if fmt.Sprint(store.calls) != fmt.Sprint(wantCalls) {
		t.Fatalf("calls = %v, want %v", store.calls, wantCalls)
	}

	if len(store.uploads) != 1 || len(store.uploads[0]) != 2 {
		t.Fatalf("uploads = %+v", store.uploads)
	}
	if store.uploads[0][0].ContentType != "image/jpeg" {
		t.Errorf("upload[0] content type = %q", store.uploads[0][0].ContentType)
	}
	if store.uploads[0][1].ContentType != "video/mp4" {
		t.Errorf("upload[1] content type = %q", store.uploads[0][1].ContentType)
	}
}

func TestSweep_UploadFailureStillPublishes(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {summaryFor("https://t.me/s/exploitex/123", "hello")},
	}}
	store := &fakeStore{uploadErr: errors.New("upload broken")}
	scr := &fakeScraper{results: map[string]scrape.Result{
		"exploitex/123": {Media: []scrape.MediaRef{{Kind: scrape.KindImage, LocalName: "img-a.jpg"}}},
	}}
	pub := &fakePublisher{calls: store}
	rec := &fakeRecorder{}

	p := newTestPipeline(src, store, scr, pub, rec, "exploitex")
	p.Sweep(context.Background())

	if len(pub.messages) != 1 {
		t.Fatalf("messages = %v, want 1", pub.messages)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("entries = %+v", rec.entries)
	}
	e := rec.entries[0]
	if !e.Created || e.MediaUploaded || !e.Published || e.MediaFound != 1 {
		t.Errorf("entry = %+v, want created+published without media", e)
	}
}

func TestSweep_FailingChannelDoesNotBlockOthers(t *testing.T) {
	src := &fakeSource{
		posts: map[string][]snapshot.PostSummary{
			"moscowmap": {summaryFor("https://t.me/s/moscowmap/7", "road closed")},
		},
		errs: map[string]error{"exploitex": errors.New("capture tool crashed")},
	}
	store := &fakeStore{}
	scr := &fakeScraper{}
	pub := &fakePublisher{calls: store}

	p := newTestPipeline(src, store, scr, pub, nil, "exploitex", "moscowmap")
	p.Sweep(context.Background())

	if len(store.creates) != 1 || store.creates[0].Channel != "moscowmap" {
		t.Fatalf("creates = %+v, want moscowmap post", store.creates)
	}
	if len(pub.messages) != 1 || pub.messages[0].Channel != "moscowmap" {
		t.Errorf("messages = %+v", pub.messages)
	}
}

func TestSweep_UnparsableURLSkipped(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {
			summaryFor("https://t.me/exploitex/99", "no s segment"),
			summaryFor("https://t.me/s/exploitex/123", "hello"),
		},
	}}
	store := &fakeStore{}
	scr := &fakeScraper{}
	pub := &fakePublisher{calls: store}

	p := newTestPipeline(src, store, scr, pub, nil, "exploitex")
	p.Sweep(context.Background())

	if len(store.creates) != 1 || store.creates[0].IDPost != 123 {
		t.Fatalf("creates = %+v, want only post 123", store.creates)
	}
}

func TestSweep_EmptyContentSkipped(t *testing.T) {
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{
		"exploitex": {summaryFor("https://t.me/s/exploitex/123", "   ")},
	}}
	store := &fakeStore{}
	scr := &fakeScraper{}
	pub := &fakePublisher{calls: store}

	p := newTestPipeline(src, store, scr, pub, nil, "exploitex")
	p.Sweep(context.Background())

	if len(store.creates) != 0 {
		t.Errorf("creates = %+v, want none", store.creates)
	}
	if len(scr.scraped) != 0 {
		t.Errorf("scraped = %v, want none", scr.scraped)
	}
}

func TestSweep_OutlinksFiltered(t *testing.T) {
	post := summaryFor("https://t.me/s/exploitex/123", "hello")
	post.Outlinks = []string{"https://example.com/report", "https://t.me/other_channel/5"}
	src := &fakeSource{posts: map[string][]snapshot.PostSummary{"exploitex": {post}}}
	store := &fakeStore{}
	scr := &fakeScraper{}
	pub := &fakePublisher{calls: store}

	p := newTestPipeline(src, store, scr, pub, nil, "exploitex")
	p.Sweep(context.Background())

	if len(store.creates) != 1 {
		t.Fatalf("creates = %+v", store.creates)
	}
	got := store.creates[0].Outlinks
	if len(got) != 1 || got[0] != "https://example.com/report" {
		t.Errorf("outlinks = %v, want t.me link filtered", got)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	src := &fakeSource{}
	store := &fakeStore{}
	p := newTestPipeline(src, store, &fakeScraper{}, &fakePublisher{}, nil)
	p.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
