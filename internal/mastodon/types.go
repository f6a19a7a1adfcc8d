package mastodon

import "encoding/json"

// Account is the subset of account fields the mirror keeps.
type Account struct {
	ID          string `json:"id"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

// Name returns the handle of the account, falling back to the display name.
func (a Account) Name() string {
	if a.Acct != "" {
		return a.Acct
	}
	return a.DisplayName
}

// MediaAttachment is a media file attached to a status.
type MediaAttachment struct {
	ID         string `json:"id"`
	Type       string `json:"type"` // image, gifv, video, audio, unknown
	URL        string `json:"url"`
	RemoteURL  string `json:"remote_url"`
	PreviewURL string `json:"preview_url"`
}

// Status is a toot as returned by the API. Identifiers are numeric but
// string-typed, monotonically increasing in issuance order.
type Status struct {
	ID                 string            `json:"id"`
	CreatedAt          string            `json:"created_at"`
	Content            string            `json:"content"`
	URL                string            `json:"url"`
	Visibility         string            `json:"visibility"`
	InReplyToID        string            `json:"in_reply_to_id"`
	InReplyToAccountID string            `json:"in_reply_to_account_id"`
	FavouritesCount    int               `json:"favourites_count"`
	ReblogsCount       int               `json:"reblogs_count"`
	RepliesCount       int               `json:"replies_count"`
	Account            Account           `json:"account"`
	Reblog             *Status           `json:"reblog"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`

	// Raw is the verbatim source payload, set by the client on decode.
	Raw json.RawMessage `json:"-"`
}

// Identifier returns the status id.
func (s Status) Identifier() string { return s.ID }

// Notification is a notification as returned by the API.
type Notification struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	CreatedAt string  `json:"created_at"`
	Account   Account `json:"account"`
	Status    *Status `json:"status"`

	// Raw is the verbatim source payload, set by the client on decode.
	Raw json.RawMessage `json:"-"`
}

// Identifier returns the notification id.
func (n Notification) Identifier() string { return n.ID }
