// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"tootkeeper/internal/mastodon"
	"tootkeeper/internal/model"
)

// Storage is the interface for all persistence operations.
//
// The Upsert methods are idempotent: keyed by item id, they insert or
// refresh only the mutable fields, and replace the item's full-text index
// entry within the same transaction.
type Storage interface {
	UpsertToot(ctx context.Context, st *mastodon.Status) error
	UpsertNotification(ctx context.Context, n *mastodon.Notification) error
	UpsertFavorite(ctx context.Context, st *mastodon.Status) error
	UpsertBookmark(ctx context.Context, st *mastodon.Status) error

	GetSyncState(ctx context.Context, key string) (string, error)
	SetSyncState(ctx context.Context, key, value string) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
	IsConfigured(ctx context.Context) (bool, error)

	ListToots(ctx context.Context, page, perPage int) ([]model.Toot, int, error)
	GetTootDetail(ctx context.Context, id string) (*model.TootDetail, error)
	ListNotifications(ctx context.Context, typeFilter string, page, perPage int) ([]model.Notification, int, error)
	ListFavorites(ctx context.Context, page, perPage int) ([]model.Status, int, error)
	ListBookmarks(ctx context.Context, page, perPage int) ([]model.Status, int, error)
	Stats(ctx context.Context) (model.Stats, error)

	Search(ctx context.Context, query string, sourceType model.Kind, page, perPage int) ([]model.SearchResult, int, error)

	Close() error
}
