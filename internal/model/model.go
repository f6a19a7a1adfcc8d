// Package model defines the domain types used across the application.
package model

import "time"

// Kind identifies one of the four mirrored item categories.
type Kind string

// Mirrored item kinds, also used as the source_type of search index entries.
const (
	KindToot         Kind = "toot"
	KindNotification Kind = "notification"
	KindFavorite     Kind = "favorite"
	KindBookmark     Kind = "bookmark"
)

// Sync cursor keys, one per item kind. The toots and notifications keys hold
// a numeric high-water mark; the favorites and bookmarks keys hold an opaque
// min_id pagination token.
const (
	CursorToots         = "toots_since_id"
	CursorNotifications = "notifications_since_id"
	CursorFavorites     = "favorites_cursor"
	CursorBookmarks     = "bookmarks_cursor"
)

// Toot is a mirrored row of the account's own statuses.
type Toot struct {
	ID                 string
	CreatedAt          string
	Content            string
	ContentText        string
	URL                string
	InReplyToID        string
	InReplyToAccountID string
	ReblogID           string
	ReblogContent      string
	ReblogAccount      string
	FavouritesCount    int
	ReblogsCount       int
	RepliesCount       int
	Visibility         string
	MediaAttachments   string
	RawJSON            string
	FetchedAt          time.Time
}

// Notification is a mirrored notification row.
type Notification struct {
	ID                 string
	Type               string
	CreatedAt          string
	AccountID          string
	AccountAcct        string
	AccountDisplayName string
	AccountAvatar      string
	StatusID           string
	StatusContent      string
	RawJSON            string
	FetchedAt          time.Time
}

// Status is a mirrored row of someone else's status the account favorited
// or bookmarked. MarkedAt is the favorited_at/bookmarked_at column.
type Status struct {
	ID                 string
	CreatedAt          string
	Content            string
	ContentText        string
	URL                string
	AccountID          string
	AccountAcct        string
	AccountDisplayName string
	AccountAvatar      string
	MediaAttachments   string
	RawJSON            string
	MarkedAt           time.Time
	FetchedAt          time.Time
}

// SearchResult is one full-text search hit.
type SearchResult struct {
	SourceType Kind
	SourceID   string
	Snippet    string
	Account    string
}

// Stats holds per-table row counts for the overview page.
type Stats struct {
	Toots         int
	Notifications int
	Favorites     int
	Bookmarks     int
}

// TootDetail is a toot together with the notifications that reference it.
type TootDetail struct {
	Toot
	Notifications []Notification
}
