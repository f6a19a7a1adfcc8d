// Package mastodon is a minimal client for the Mastodon REST API, covering
// the listing endpoints the mirror consumes.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ListQuery holds the pagination parameters of a listing request.
// Zero values are omitted from the request.
type ListQuery struct {
	Limit   int
	SinceID string // only items with a strictly greater id (where supported)
	MaxID   string // only items with a strictly smaller id
	MinID   string // forward pagination bound, inclusive per API semantics
}

// Page is one page of a listing response together with the pagination hints
// the server advertised in its Link header.
type Page[T any] struct {
	Items     []T
	NextMaxID string // max_id of the "next" (older) page, empty if none
	PrevMinID string // min_id of the "prev" (newer) page, empty if none
}

// Client talks to a single Mastodon instance on behalf of one account.
type Client struct {
	base  string
	token string
	http  HTTPClient
}

// New creates a Client for the given instance URL and access token.
func New(instance, token string, hc HTTPClient) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:  strings.TrimRight(instance, "/"),
		token: token,
		http:  hc,
	}
}

// Me returns the account the access token belongs to.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	body, _, err := c.get(ctx, "/api/v1/accounts/verify_credentials", ListQuery{})
	if err != nil {
		return nil, err
	}
	var a Account
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &a, nil
}

// AccountStatuses lists the statuses posted by the given account.
func (c *Client) AccountStatuses(ctx context.Context, accountID string, q ListQuery) (Page[Status], error) {
	return c.listStatuses(ctx, "/api/v1/accounts/"+url.PathEscape(accountID)+"/statuses", q)
}

// Favourites lists the statuses the account has favourited.
func (c *Client) Favourites(ctx context.Context, q ListQuery) (Page[Status], error) {
	return c.listStatuses(ctx, "/api/v1/favourites", q)
}

// Bookmarks lists the statuses the account has bookmarked.
func (c *Client) Bookmarks(ctx context.Context, q ListQuery) (Page[Status], error) {
	return c.listStatuses(ctx, "/api/v1/bookmarks", q)
}

// Notifications lists the account's notifications.
func (c *Client) Notifications(ctx context.Context, q ListQuery) (Page[Notification], error) {
	body, header, err := c.get(ctx, "/api/v1/notifications", q)
	if err != nil {
		return Page[Notification]{}, err
	}
	items, err := decodeNotifications(body)
	if err != nil {
		return Page[Notification]{}, err
	}
	page := Page[Notification]{Items: items}
	page.NextMaxID, page.PrevMinID = parseLink(header.Get("Link"))
	return page, nil
}

func (c *Client) listStatuses(ctx context.Context, path string, q ListQuery) (Page[Status], error) {
	body, header, err := c.get(ctx, path, q)
	if err != nil {
		return Page[Status]{}, err
	}
	items, err := decodeStatuses(body)
	if err != nil {
		return Page[Status]{}, err
	}
	page := Page[Status]{Items: items}
	page.NextMaxID, page.PrevMinID = parseLink(header.Get("Link"))
	return page, nil
}

func (c *Client) get(ctx context.Context, path string, q ListQuery) ([]byte, http.Header, error) {
	u := c.base + path
	if vals := q.values(); len(vals) > 0 {
		u += "?" + vals.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "Tootkeeper/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	return body, resp.Header, nil
}

func (q ListQuery) values() url.Values {
	vals := url.Values{}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.SinceID != "" {
		vals.Set("since_id", q.SinceID)
	}
	if q.MaxID != "" {
		vals.Set("max_id", q.MaxID)
	}
	if q.MinID != "" {
		vals.Set("min_id", q.MinID)
	}
	return vals
}

// The listing decoders keep the verbatim payload of every element, which the
// mirror stores alongside the parsed fields.

func decodeStatuses(body []byte) ([]Status, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	items := make([]Status, 0, len(raws))
	for _, raw := range raws {
		var s Status
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
		s.Raw = raw
		items = append(items, s)
	}
	return items, nil
}

func decodeNotifications(body []byte) ([]Notification, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	items := make([]Notification, 0, len(raws))
	for _, raw := range raws {
		var n Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		n.Raw = raw
		items = append(items, n)
	}
	return items, nil
}

// parseLink extracts the max_id of the rel="next" page and the min_id of the
// rel="prev" page from a Link response header.
func parseLink(header string) (nextMaxID, prevMinID string) {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		start := strings.IndexByte(part, '<')
		end := strings.IndexByte(part, '>')
		if start < 0 || end <= start {
			continue
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(part[end:], `rel="next"`):
			nextMaxID = u.Query().Get("max_id")
		case strings.Contains(part[end:], `rel="prev"`):
			prevMinID = u.Query().Get("min_id")
		}
	}
	return nextMaxID, prevMinID
}
