// Package collector owns the incremental sync of the remote account's
// activity into the local mirror.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"tootkeeper/internal/config"
	"tootkeeper/internal/fetcher"
	"tootkeeper/internal/mastodon"
	"tootkeeper/internal/media"
	"tootkeeper/internal/model"
	"tootkeeper/internal/storage"
)

// Client is the slice of the remote API the sync engine consumes.
type Client interface {
	Me(ctx context.Context) (*mastodon.Account, error)
	AccountStatuses(ctx context.Context, accountID string, q mastodon.ListQuery) (mastodon.Page[mastodon.Status], error)
	Notifications(ctx context.Context, q mastodon.ListQuery) (mastodon.Page[mastodon.Notification], error)
	Favourites(ctx context.Context, q mastodon.ListQuery) (mastodon.Page[mastodon.Status], error)
	Bookmarks(ctx context.Context, q mastodon.ListQuery) (mastodon.Page[mastodon.Status], error)
}

// ErrAlreadyRunning is returned when a run is requested while one is active.
// The request is rejected, not queued.
var ErrAlreadyRunning = errors.New("sync already running")

// ErrNotConfigured is returned when no instance URL or access token is
// available. Nothing can be synced until setup completes.
var ErrNotConfigured = errors.New("mastodon credentials not configured")

// Counts holds the number of items fetched per kind during one run.
type Counts struct {
	Toots         int
	Notifications int
	Favorites     int
	Bookmarks     int
}

// Collector runs full syncs, at most one at a time process-wide.
type Collector struct {
	store storage.Storage
	media *media.Fetcher
	cfg   *config.Config
	log   *slog.Logger

	// newClient is swappable in tests.
	newClient func(instance, token string) Client

	fetchOpts fetcher.Options

	mu sync.Mutex
}

// New creates a Collector using the real API client.
func New(store storage.Storage, mf *media.Fetcher, cfg *config.Config, log *slog.Logger) *Collector {
	return &Collector{
		store: store,
		media: mf,
		cfg:   cfg,
		log:   log,
		newClient: func(instance, token string) Client {
			return mastodon.New(instance, token, nil)
		},
		fetchOpts: fetcher.Options{Log: log},
	}
}

// RunFullSync syncs all four item kinds sequentially. A second call while a
// run is active returns ErrAlreadyRunning immediately. Missing credentials
// fail the run before any kind is attempted; a fetch failure in one kind is
// logged, contributes zero items, and does not stop the remaining kinds,
// but the run still reports failure at the end.
func (c *Collector) RunFullSync(ctx context.Context) (Counts, error) {
	if !c.mu.TryLock() {
		return Counts{}, ErrAlreadyRunning
	}
	defer c.mu.Unlock()

	client, err := c.buildClient(ctx)
	if err != nil {
		return Counts{}, err
	}

	c.log.Info("starting full sync")

	var counts Counts
	var errs []error
	kinds := []struct {
		name string
		dest *int
		run  func(context.Context, Client) (int, error)
	}{
		{"toots", &counts.Toots, c.syncToots},
		{"notifications", &counts.Notifications, c.syncNotifications},
		{"favorites", &counts.Favorites, c.syncFavorites},
		{"bookmarks", &counts.Bookmarks, c.syncBookmarks},
	}
	for _, kind := range kinds {
		n, err := kind.run(ctx, client)
		if err != nil {
			c.log.Error("sync failed", "kind", kind.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", kind.name, err))
			continue
		}
		*kind.dest = n
	}

	if len(errs) > 0 {
		return counts, errors.Join(errs...)
	}
	c.log.Info("full sync complete",
		"toots", counts.Toots, "notifications", counts.Notifications,
		"favorites", counts.Favorites, "bookmarks", counts.Bookmarks)
	return counts, nil
}

// buildClient resolves credentials, preferring the settings store over the
// environment fallbacks.
func (c *Collector) buildClient(ctx context.Context) (Client, error) {
	instance, err := c.store.GetSetting(ctx, "instance_url")
	if err != nil {
		return nil, err
	}
	if instance == "" {
		instance = c.cfg.Instance
	}
	token, err := c.store.GetSetting(ctx, "access_token")
	if err != nil {
		return nil, err
	}
	if token == "" {
		token = c.cfg.AccessToken
	}
	if instance == "" || token == "" {
		return nil, ErrNotConfigured
	}
	return c.newClient(instance, token), nil
}

// syncToots mirrors the account's own statuses above the high-water mark.
func (c *Collector) syncToots(ctx context.Context, client Client) (int, error) {
	me, err := client.Me(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve account: %w", err)
	}

	sinceID, err := c.store.GetSyncState(ctx, model.CursorToots)
	if err != nil {
		return 0, err
	}

	list := func(ctx context.Context, q mastodon.ListQuery) (mastodon.Page[mastodon.Status], error) {
		return client.AccountStatuses(ctx, me.ID, q)
	}
	statuses, err := fetcher.FetchNewer(ctx, list, sinceID, c.fetchOpts)
	if err != nil {
		return 0, err
	}
	if len(statuses) == 0 {
		c.log.Info("no new toots")
		return 0, nil
	}

	for i := range statuses {
		st := &statuses[i]
		if err := c.store.UpsertToot(ctx, st); err != nil {
			return 0, err
		}
		c.media.DownloadStatus(ctx, st)
	}

	if err := advanceMark(ctx, c.store, model.CursorToots, sinceID, statuses); err != nil {
		return 0, err
	}
	c.log.Info("synced toots", "count", len(statuses))
	return len(statuses), nil
}

// syncNotifications mirrors notifications above the high-water mark.
func (c *Collector) syncNotifications(ctx context.Context, client Client) (int, error) {
	sinceID, err := c.store.GetSyncState(ctx, model.CursorNotifications)
	if err != nil {
		return 0, err
	}

	notifs, err := fetcher.FetchNewer(ctx, client.Notifications, sinceID, c.fetchOpts)
	if err != nil {
		return 0, err
	}
	if len(notifs) == 0 {
		c.log.Info("no new notifications")
		return 0, nil
	}

	for i := range notifs {
		if err := c.store.UpsertNotification(ctx, &notifs[i]); err != nil {
			return 0, err
		}
	}

	if err := advanceMark(ctx, c.store, model.CursorNotifications, sinceID, notifs); err != nil {
		return 0, err
	}
	c.log.Info("synced notifications", "count", len(notifs))
	return len(notifs), nil
}

// syncFavorites mirrors favorited statuses above the stored cursor token.
func (c *Collector) syncFavorites(ctx context.Context, client Client) (int, error) {
	return c.syncMarked(ctx, model.CursorFavorites, client.Favourites, c.store.UpsertFavorite, "favorites")
}

// syncBookmarks mirrors bookmarked statuses above the stored cursor token.
func (c *Collector) syncBookmarks(ctx context.Context, client Client) (int, error) {
	return c.syncMarked(ctx, model.CursorBookmarks, client.Bookmarks, c.store.UpsertBookmark, "bookmarks")
}

func (c *Collector) syncMarked(
	ctx context.Context,
	cursorKey string,
	list fetcher.ListFunc[mastodon.Status],
	upsert func(context.Context, *mastodon.Status) error,
	name string,
) (int, error) {
	cursor, err := c.store.GetSyncState(ctx, cursorKey)
	if err != nil {
		return 0, err
	}

	items, newCursor, err := fetcher.FetchFrom(ctx, list, cursor, c.fetchOpts)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		c.log.Info("no new " + name)
		return 0, nil
	}

	for i := range items {
		st := &items[i]
		if err := upsert(ctx, st); err != nil {
			return 0, err
		}
		c.media.DownloadStatus(ctx, st)
	}

	// The token only moves once the batch is durably written.
	if newCursor != "" {
		if err := c.store.SetSyncState(ctx, cursorKey, newCursor); err != nil {
			return 0, err
		}
	}
	c.log.Info("synced "+name, "count", len(items))
	return len(items), nil
}

// advanceMark raises the high-water mark to the largest identifier in the
// batch. The mark never decreases.
func advanceMark[T fetcher.Item](ctx context.Context, store storage.Storage, key, current string, items []T) error {
	newest, err := fetcher.MaxIdentifier(items)
	if err != nil {
		return err
	}
	if current != "" && !idGreater(newest, current) {
		return nil
	}
	return store.SetSyncState(ctx, key, newest)
}

func idGreater(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return a > b
	}
	return na > nb
}
