package collector

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tootkeeper/internal/config"
	"tootkeeper/internal/fetcher"
	"tootkeeper/internal/mastodon"
	"tootkeeper/internal/media"
	"tootkeeper/internal/model"
	"tootkeeper/internal/storage"
)

type mockTransport struct{}

func (mockTransport) Do(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString("img")),
	}, nil
}

// fakeClient serves one page per endpoint: the canned page for a first-page
// request, an empty page for any continuation.
type fakeClient struct {
	mu sync.Mutex

	me    mastodon.Account
	meErr error

	statuses  []mastodon.Status
	notifs    []mastodon.Notification
	notifErr  error
	favorites []mastodon.Status
	bookmarks []mastodon.Status

	meStarted chan struct{} // when non-nil, closed once Me is entered
	meBlock   chan struct{} // when non-nil, Me waits for it to close
	meEntered bool
}

func (f *fakeClient) Me(context.Context) (*mastodon.Account, error) {
	f.mu.Lock()
	started := f.meStarted
	block := f.meBlock
	if !f.meEntered && started != nil {
		close(started)
	}
	f.meEntered = true
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.meErr != nil {
		return nil, f.meErr
	}
	me := f.me
	return &me, nil
}

func firstPage[T any](items []T, q mastodon.ListQuery) (mastodon.Page[T], error) {
	if q.MaxID != "" {
		return mastodon.Page[T]{}, nil
	}
	return mastodon.Page[T]{Items: items}, nil
}

func (f *fakeClient) AccountStatuses(_ context.Context, _ string, q mastodon.ListQuery) (mastodon.Page[mastodon.Status], error) {
	return firstPage(f.statuses, q)
}

func (f *fakeClient) Notifications(_ context.Context, q mastodon.ListQuery) (mastodon.Page[mastodon.Notification], error) {
	if f.notifErr != nil {
		return mastodon.Page[mastodon.Notification]{}, f.notifErr
	}
	return firstPage(f.notifs, q)
}

func (f *fakeClient) Favourites(_ context.Context, q mastodon.ListQuery) (mastodon.Page[mastodon.Status], error) {
	return firstPage(f.favorites, q)
}

func (f *fakeClient) Bookmarks(_ context.Context, q mastodon.ListQuery) (mastodon.Page[mastodon.Status], error) {
	return firstPage(f.bookmarks, q)
}

func status(id, content string) mastodon.Status {
	return mastodon.Status{
		ID:        id,
		CreatedAt: "2024-05-01T10:00:00.000Z",
		Content:   content,
		Account:   mastodon.Account{ID: "7", Acct: "someone@example.social"},
		Raw:       []byte(`{"id":"` + id + `"}`),
	}
}

func newTestCollector(t *testing.T, client *fakeClient) (*Collector, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.DiscardHandler)
	mf := media.New(t.TempDir(), mockTransport{}, log)
	cfg := &config.Config{Instance: "https://mastodon.example", AccessToken: "tok"}

	c := New(store, mf, cfg, log)
	c.newClient = func(_, _ string) Client { return client }
	c.fetchOpts = fetcher.Options{Log: log, PageDelay: time.Microsecond}
	return c, store
}

func defaultClient() *fakeClient {
	return &fakeClient{
		me: mastodon.Account{ID: "1", Acct: "me@mastodon.example"},
		statuses: []mastodon.Status{
			status("12", "<p>newest toot</p>"),
			status("10", "<p>older toot</p>"),
		},
		notifs: []mastodon.Notification{
			{
				ID: "77", Type: "favourite", CreatedAt: "2024-05-01T11:00:00.000Z",
				Account: mastodon.Account{ID: "9", Acct: "fan@example.social"},
				Status:  &mastodon.Status{ID: "12", Content: "<p>newest toot</p>"},
				Raw:     []byte(`{"id":"77"}`),
			},
		},
		favorites: []mastodon.Status{
			status("1050", "<p>fav one</p>"),
			status("1020", "<p>fav two</p>"),
		},
		bookmarks: []mastodon.Status{
			status("2050", "<p>bookmark</p>"),
		},
	}
}

func TestRunFullSync(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollector(t, defaultClient())

	counts, err := c.RunFullSync(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := Counts{Toots: 2, Notifications: 1, Favorites: 2, Bookmarks: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	wantStats := model.Stats{Toots: 2, Notifications: 1, Favorites: 2, Bookmarks: 1}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	cursors := map[string]string{
		model.CursorToots:         "12",
		model.CursorNotifications: "77",
		model.CursorFavorites:     "1050",
		model.CursorBookmarks:     "2050",
	}
	for key, wantVal := range cursors {
		got, err := store.GetSyncState(ctx, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if diff := cmp.Diff(wantVal, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func TestRunFullSyncIdempotentRerun(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollector(t, defaultClient())

	if _, err := c.RunFullSync(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Remote unchanged: the advisory since filter drops every toot and
	// notification; favorites come back (min_id is inclusive) but the
	// upsert dedups them.
	counts, err := c.RunFullSync(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	want := Counts{Toots: 0, Notifications: 0, Favorites: 2, Bookmarks: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	wantStats := model.Stats{Toots: 2, Notifications: 1, Favorites: 2, Bookmarks: 1}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Errorf("stats mismatch after rerun (-want +got):\n%s", diff)
	}

	// High-water mark did not decrease.
	got, err := store.GetSyncState(ctx, model.CursorToots)
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if diff := cmp.Diff("12", got); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFullSyncPartialFailure(t *testing.T) {
	ctx := context.Background()
	client := defaultClient()
	client.notifErr = io.ErrUnexpectedEOF
	c, store := newTestCollector(t, client)

	counts, err := c.RunFullSync(ctx)
	if err == nil {
		t.Fatal("expected run-level failure")
	}
	if errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrNotConfigured) {
		t.Fatalf("unexpected error kind: %v", err)
	}

	// The failing kind contributed nothing; the others completed.
	want := Counts{Toots: 2, Notifications: 0, Favorites: 2, Bookmarks: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	wantStats := model.Stats{Toots: 2, Notifications: 0, Favorites: 2, Bookmarks: 1}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	// The failed kind's cursor is untouched, the others advanced.
	notifCursor, err := store.GetSyncState(ctx, model.CursorNotifications)
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if notifCursor != "" {
		t.Errorf("expected untouched notifications cursor, got %q", notifCursor)
	}
	tootCursor, _ := store.GetSyncState(ctx, model.CursorToots)
	if diff := cmp.Diff("12", tootCursor); diff != "" {
		t.Errorf("toots cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFullSyncNotConfigured(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollector(t, defaultClient())
	c.cfg = &config.Config{}

	_, err := c.RunFullSync(ctx)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRunFullSyncCredentialsFromSettings(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollector(t, defaultClient())
	c.cfg = &config.Config{}

	if err := store.SetSetting(ctx, "instance_url", "https://mastodon.example"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetSetting(ctx, "access_token", "tok"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := c.RunFullSync(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunFullSyncExclusion(t *testing.T) {
	ctx := context.Background()
	client := defaultClient()
	client.meStarted = make(chan struct{})
	client.meBlock = make(chan struct{})
	c, store := newTestCollector(t, client)

	done := make(chan error, 1)
	go func() {
		_, err := c.RunFullSync(ctx)
		done <- err
	}()

	<-client.meStarted

	// A second trigger while the first run is mid-flight is rejected
	// immediately and mutates nothing.
	_, err := c.RunFullSync(ctx)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	stats, statsErr := store.Stats(ctx)
	if statsErr != nil {
		t.Fatalf("stats: %v", statsErr)
	}
	if diff := cmp.Diff(model.Stats{}, stats); diff != "" {
		t.Errorf("rejected run mutated state (-want +got):\n%s", diff)
	}

	close(client.meBlock)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// With the first run finished, a new one is accepted again.
	if _, err := c.RunFullSync(ctx); err != nil {
		t.Fatalf("follow-up run: %v", err)
	}
}
