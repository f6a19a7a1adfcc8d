package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"tootkeeper/internal/htmltext"
	"tootkeeper/internal/mastodon"
	"tootkeeper/internal/model"
	"tootkeeper/migrations"
)

const timeLayout = time.RFC3339

// SQLite implements Storage backed by a SQLite database with an FTS5
// search index.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertToot writes one of the account's own statuses and its search entry.
func (s *SQLite) UpsertToot(ctx context.Context, st *mastodon.Status) error {
	var reblogID, reblogContent, reblogAccount string
	if st.Reblog != nil {
		reblogID = st.Reblog.ID
		reblogContent = st.Reblog.Content
		reblogAccount = st.Reblog.Account.Name()
	}

	contentText := htmltext.Extract(st.Content)
	if reblogContent != "" {
		// Search must find reblogged content too.
		contentText += " " + htmltext.Extract(reblogContent)
	}

	mediaJSON, err := attachmentsJSON(st.MediaAttachments)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO toots
		   (id, created_at, content, content_text, url, in_reply_to_id,
		    in_reply_to_account_id, reblog_id, reblog_content, reblog_account,
		    favourites_count, reblogs_count, replies_count, visibility,
		    media_attachments, raw_json, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   content=excluded.content, content_text=excluded.content_text,
		   favourites_count=excluded.favourites_count,
		   reblogs_count=excluded.reblogs_count,
		   replies_count=excluded.replies_count,
		   raw_json=excluded.raw_json, fetched_at=excluded.fetched_at`,
		st.ID, st.CreatedAt, st.Content, contentText, nullable(st.URL),
		nullable(st.InReplyToID), nullable(st.InReplyToAccountID),
		nullable(reblogID), nullable(reblogContent), nullable(reblogAccount),
		st.FavouritesCount, st.ReblogsCount, st.RepliesCount, st.Visibility,
		mediaJSON, string(st.Raw), now,
	)
	if err != nil {
		return fmt.Errorf("upsert toot: %w", err)
	}

	if err := reindex(ctx, tx, model.KindToot, st.ID, contentText, ""); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertNotification writes a notification row and its search entry.
func (s *SQLite) UpsertNotification(ctx context.Context, n *mastodon.Notification) error {
	var statusID, statusContent string
	if n.Status != nil {
		statusID = n.Status.ID
		statusContent = n.Status.Content
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO notifications
		   (id, type, created_at, account_id, account_acct, account_display_name,
		    account_avatar, status_id, status_content, raw_json, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status_content=excluded.status_content,
		   raw_json=excluded.raw_json, fetched_at=excluded.fetched_at`,
		n.ID, n.Type, n.CreatedAt, n.Account.ID, n.Account.Acct,
		n.Account.DisplayName, n.Account.Avatar,
		nullable(statusID), nullable(statusContent), string(n.Raw), now,
	)
	if err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}

	if err := reindex(ctx, tx, model.KindNotification, n.ID,
		htmltext.Extract(statusContent), n.Account.Name()); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertFavorite writes a favorited status and its search entry.
func (s *SQLite) UpsertFavorite(ctx context.Context, st *mastodon.Status) error {
	return s.upsertMarked(ctx, st, "favorites", "favorited_at", model.KindFavorite)
}

// UpsertBookmark writes a bookmarked status and its search entry.
func (s *SQLite) UpsertBookmark(ctx context.Context, st *mastodon.Status) error {
	return s.upsertMarked(ctx, st, "bookmarks", "bookmarked_at", model.KindBookmark)
}

// upsertMarked handles the favorites and bookmarks tables, which share a
// schema apart from the marked-at column name.
func (s *SQLite) upsertMarked(ctx context.Context, st *mastodon.Status, table, markedCol string, kind model.Kind) error {
	contentText := htmltext.Extract(st.Content)

	mediaJSON, err := attachmentsJSON(st.MediaAttachments)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	//nolint:gosec // table and markedCol come from the two callers above.
	query := fmt.Sprintf(
		`INSERT INTO %s
		   (id, created_at, content, content_text, url, account_id, account_acct,
		    account_display_name, account_avatar, media_attachments, raw_json,
		    %s, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   content=excluded.content, content_text=excluded.content_text,
		   raw_json=excluded.raw_json, fetched_at=excluded.fetched_at`,
		table, markedCol,
	)
	_, err = tx.ExecContext(ctx, query,
		st.ID, st.CreatedAt, st.Content, contentText, nullable(st.URL),
		st.Account.ID, st.Account.Acct, st.Account.DisplayName, st.Account.Avatar,
		mediaJSON, string(st.Raw), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}

	if err := reindex(ctx, tx, kind, st.ID, contentText, st.Account.Name()); err != nil {
		return err
	}
	return tx.Commit()
}

// reindex replaces the search index entry for (kind, id) inside tx, keeping
// the index exactly 1:1 with its source row.
func reindex(ctx context.Context, tx *sql.Tx, kind model.Kind, id, content, account string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM search_index WHERE source_type=? AND source_id=?`,
		string(kind), id,
	); err != nil {
		return fmt.Errorf("deindex %s %s: %w", kind, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO search_index (source_type, source_id, content, account) VALUES (?, ?, ?, ?)`,
		string(kind), id, content, account,
	); err != nil {
		return fmt.Errorf("index %s %s: %w", kind, id, err)
	}
	return nil
}

// GetSyncState returns the stored cursor for key, or "" when never synced.
func (s *SQLite) GetSyncState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key=?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get sync state %s: %w", key, err)
	}
	return value, nil
}

// SetSyncState stores a cursor value for key.
func (s *SQLite) SetSyncState(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set sync state %s: %w", key, err)
	}
	return nil
}

// GetSetting returns an application setting, or "" when unset.
func (s *SQLite) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key=?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores an application setting.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// AllSettings returns every application setting.
func (s *SQLite) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// IsConfigured reports whether instance URL and access token are stored.
func (s *SQLite) IsConfigured(ctx context.Context) (bool, error) {
	instance, err := s.GetSetting(ctx, "instance_url")
	if err != nil {
		return false, err
	}
	token, err := s.GetSetting(ctx, "access_token")
	if err != nil {
		return false, err
	}
	return instance != "" && token != "", nil
}

// Stats returns per-table row counts.
func (s *SQLite) Stats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats
	for _, c := range []struct {
		table string
		dest  *int
	}{
		{"toots", &stats.Toots},
		{"notifications", &stats.Notifications},
		{"favorites", &stats.Favorites},
		{"bookmarks", &stats.Bookmarks},
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dest); err != nil {
			return model.Stats{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return stats, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func attachmentsJSON(atts []mastodon.MediaAttachment) (string, error) {
	if len(atts) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(atts)
	if err != nil {
		return "", fmt.Errorf("marshal attachments: %w", err)
	}
	return string(raw), nil
}
