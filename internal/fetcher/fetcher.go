// Package fetcher drives paginated listing endpoints until exhaustion.
//
// Two traversal strategies exist. FetchNewer is for endpoints with a
// since_id filter (own statuses, notifications): it walks older pages until
// it reaches the stored high-water mark, re-checking identifiers itself
// because the server-side filter is advisory. FetchFrom is for endpoints
// without that filter (favourites, bookmarks): it bounds the listing below
// with a min_id token and captures the next token from the first item of
// the first page, which relies on the endpoint returning newest first.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"tootkeeper/internal/mastodon"
)

// Item is any listed element carrying the monotonic numeric identifier.
type Item interface {
	Identifier() string
}

// ListFunc fetches one page of a listing endpoint.
type ListFunc[T Item] func(ctx context.Context, q mastodon.ListQuery) (mastodon.Page[T], error)

// Options tunes a traversal. Zero values select the defaults.
type Options struct {
	Log       *slog.Logger
	PageLimit int           // items per page, default 40
	PageDelay time.Duration // pause between page requests, default 300ms
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = slog.New(slog.DiscardHandler)
	}
	if o.PageLimit <= 0 {
		o.PageLimit = 40
	}
	if o.PageDelay <= 0 {
		o.PageDelay = 300 * time.Millisecond
	}
	return o
}

// FetchNewer returns every item with an identifier above sinceID, newest
// pages first. An empty sinceID fetches the full history. Any page error
// aborts the traversal; nothing fetched so far is returned.
func FetchNewer[T Item](ctx context.Context, list ListFunc[T], sinceID string, opts Options) ([]T, error) {
	opts = opts.withDefaults()

	first := mastodon.ListQuery{Limit: opts.PageLimit, SinceID: sinceID}
	page, err := list(ctx, first)
	if err != nil {
		return nil, err
	}

	var items []T
	pages := 0
	for len(page.Items) > 0 {
		batch := page.Items
		if sinceID != "" {
			// The since_id filter is advisory: drop anything at or below
			// the mark. Everything older is already mirrored.
			batch = onlyNewer(batch, sinceID)
		}
		items = append(items, batch...)
		pages++
		opts.Log.Debug("fetched page", "page", pages, "items", len(items))
		if pages%10 == 0 {
			opts.Log.Info("fetch progress", "items", len(items), "pages", pages)
		}
		if len(batch) < len(page.Items) {
			break
		}

		next := mastodon.ListQuery{Limit: opts.PageLimit}
		if page.NextMaxID != "" {
			next.MaxID = page.NextMaxID
		} else {
			maxID, ok := previousID(page.Items[len(page.Items)-1].Identifier())
			if !ok {
				break
			}
			next.MaxID = maxID
		}

		time.Sleep(opts.PageDelay)
		page, err = list(ctx, next)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// FetchFrom returns every item above the minID token plus the token to store
// for the next run: the identifier of the first item of the first page. The
// min_id bound is inclusive on the server side, so the bound item itself
// comes back; the idempotent upsert absorbs it. Any page error aborts the
// traversal; nothing fetched so far is returned, and no token is produced.
func FetchFrom[T Item](ctx context.Context, list ListFunc[T], minID string, opts Options) ([]T, string, error) {
	opts = opts.withDefaults()

	page, err := list(ctx, mastodon.ListQuery{Limit: opts.PageLimit, MinID: minID})
	if err != nil {
		return nil, "", err
	}
	if len(page.Items) == 0 {
		return nil, "", nil
	}
	newToken := page.Items[0].Identifier()

	var items []T
	pages := 0
	for {
		items = append(items, page.Items...)
		pages++
		opts.Log.Debug("fetched page", "page", pages, "items", len(items))
		if pages%10 == 0 {
			opts.Log.Info("fetch progress", "items", len(items), "pages", pages)
		}

		if page.NextMaxID == "" {
			break
		}
		next := mastodon.ListQuery{Limit: opts.PageLimit, MinID: minID, MaxID: page.NextMaxID}

		time.Sleep(opts.PageDelay)
		page, err = list(ctx, next)
		if err != nil {
			return nil, "", err
		}
		if len(page.Items) == 0 {
			break
		}
	}
	return items, newToken, nil
}

// MaxIdentifier returns the largest identifier among items, the new
// high-water mark after a successful batch write.
func MaxIdentifier[T Item](items []T) (string, error) {
	var maxID int64
	var found bool
	for _, item := range items {
		n, err := strconv.ParseInt(item.Identifier(), 10, 64)
		if err != nil {
			return "", fmt.Errorf("non-numeric identifier %q: %w", item.Identifier(), err)
		}
		if !found || n > maxID {
			maxID = n
			found = true
		}
	}
	if !found {
		return "", fmt.Errorf("no items")
	}
	return strconv.FormatInt(maxID, 10), nil
}

func onlyNewer[T Item](items []T, sinceID string) []T {
	since, err := strconv.ParseInt(sinceID, 10, 64)
	if err != nil {
		return items
	}
	kept := make([]T, 0, len(items))
	for _, item := range items {
		n, err := strconv.ParseInt(item.Identifier(), 10, 64)
		if err != nil || n <= since {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func previousID(id string) (string, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatInt(n-1, 10), true
}
