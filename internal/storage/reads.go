package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tootkeeper/internal/model"
)

// Read-side paged queries serving the presentation layer. All listings are
// newest first and return the total row count for pagination.

// ListToots returns one page of the account's own statuses.
func (s *SQLite) ListToots(ctx context.Context, page, perPage int) ([]model.Toot, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM toots`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count toots: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		selectToot+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		perPage, offset(page, perPage),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query toots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	toots, err := scanToots(rows)
	if err != nil {
		return nil, 0, err
	}
	return toots, total, nil
}

// GetTootDetail returns one toot with the notifications that reference it,
// or nil when the toot does not exist.
func (s *SQLite) GetTootDetail(ctx context.Context, id string) (*model.TootDetail, error) {
	row := s.db.QueryRowContext(ctx, selectToot+` WHERE id = ?`, id)
	toot, err := scanToot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		selectNotification+` WHERE status_id = ? ORDER BY created_at DESC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query related notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	detail := &model.TootDetail{Toot: *toot}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		detail.Notifications = append(detail.Notifications, *n)
	}
	return detail, rows.Err()
}

// ListNotifications returns one page of notifications, optionally filtered
// by type (favourite, reblog, mention, follow, ...).
func (s *SQLite) ListNotifications(ctx context.Context, typeFilter string, page, perPage int) ([]model.Notification, int, error) {
	where := ""
	countArgs := []any{}
	if typeFilter != "" {
		where = ` WHERE type = ?`
		countArgs = append(countArgs, typeFilter)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	args := append(countArgs, perPage, offset(page, perPage))
	rows, err := s.db.QueryContext(ctx,
		selectNotification+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifs []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifs = append(notifs, *n)
	}
	return notifs, total, rows.Err()
}

// ListFavorites returns one page of favorited statuses.
func (s *SQLite) ListFavorites(ctx context.Context, page, perPage int) ([]model.Status, int, error) {
	return s.listMarked(ctx, "favorites", "favorited_at", page, perPage)
}

// ListBookmarks returns one page of bookmarked statuses.
func (s *SQLite) ListBookmarks(ctx context.Context, page, perPage int) ([]model.Status, int, error) {
	return s.listMarked(ctx, "bookmarks", "bookmarked_at", page, perPage)
}

func (s *SQLite) listMarked(ctx context.Context, table, markedCol string, page, perPage int) ([]model.Status, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}

	//nolint:gosec // table and markedCol come from the two callers above.
	query := fmt.Sprintf(
		`SELECT id, created_at, content, content_text, url, account_id, account_acct,
		        account_display_name, account_avatar, media_attachments, raw_json,
		        %s, fetched_at
		 FROM %s ORDER BY %s DESC LIMIT ? OFFSET ?`,
		markedCol, table, markedCol,
	)
	rows, err := s.db.QueryContext(ctx, query, perPage, offset(page, perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.Status
	for rows.Next() {
		var m model.Status
		var url, marked, fetched sql.NullString
		err := rows.Scan(&m.ID, &m.CreatedAt, &m.Content, &m.ContentText, &url,
			&m.AccountID, &m.AccountAcct, &m.AccountDisplayName, &m.AccountAvatar,
			&m.MediaAttachments, &m.RawJSON, &marked, &fetched)
		if err != nil {
			return nil, 0, fmt.Errorf("scan %s: %w", table, err)
		}
		m.URL = url.String
		m.MarkedAt = parseTime(marked)
		m.FetchedAt = parseTime(fetched)
		items = append(items, m)
	}
	return items, total, rows.Err()
}

const selectToot = `SELECT id, created_at, content, content_text, url, in_reply_to_id,
	in_reply_to_account_id, reblog_id, reblog_content, reblog_account,
	favourites_count, reblogs_count, replies_count, visibility,
	media_attachments, raw_json, fetched_at
	FROM toots`

const selectNotification = `SELECT id, type, created_at, account_id, account_acct,
	account_display_name, account_avatar, status_id, status_content, raw_json, fetched_at
	FROM notifications`

type scannable interface {
	Scan(dest ...any) error
}

func scanToots(rows *sql.Rows) ([]model.Toot, error) {
	var toots []model.Toot
	for rows.Next() {
		t, err := scanToot(rows)
		if err != nil {
			return nil, err
		}
		toots = append(toots, *t)
	}
	return toots, rows.Err()
}

func scanToot(row scannable) (*model.Toot, error) {
	var t model.Toot
	var url, inReplyTo, inReplyToAcct, reblogID, reblogContent, reblogAccount, fetched sql.NullString
	err := row.Scan(&t.ID, &t.CreatedAt, &t.Content, &t.ContentText, &url,
		&inReplyTo, &inReplyToAcct, &reblogID, &reblogContent, &reblogAccount,
		&t.FavouritesCount, &t.ReblogsCount, &t.RepliesCount, &t.Visibility,
		&t.MediaAttachments, &t.RawJSON, &fetched)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan toot: %w", err)
	}
	t.URL = url.String
	t.InReplyToID = inReplyTo.String
	t.InReplyToAccountID = inReplyToAcct.String
	t.ReblogID = reblogID.String
	t.ReblogContent = reblogContent.String
	t.ReblogAccount = reblogAccount.String
	t.FetchedAt = parseTime(fetched)
	return &t, nil
}

func scanNotification(row scannable) (*model.Notification, error) {
	var n model.Notification
	var statusID, statusContent, fetched sql.NullString
	err := row.Scan(&n.ID, &n.Type, &n.CreatedAt, &n.AccountID, &n.AccountAcct,
		&n.AccountDisplayName, &n.AccountAvatar, &statusID, &statusContent,
		&n.RawJSON, &fetched)
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.StatusID = statusID.String
	n.StatusContent = statusContent.String
	n.FetchedAt = parseTime(fetched)
	return &n, nil
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, v.String)
	return t
}

func offset(page, perPage int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * perPage
}
