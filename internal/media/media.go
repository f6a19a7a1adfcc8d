// Package media downloads status attachments to content-addressed local files.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"tootkeeper/internal/mastodon"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher stores attachment originals and previews under a single directory,
// addressed by attachment id. Files that already exist are never re-fetched,
// and download failures are logged and swallowed so they cannot fail a sync.
type Fetcher struct {
	dir    string
	client HTTPClient
	log    *slog.Logger
}

// New creates a Fetcher writing into dir.
func New(dir string, client HTTPClient, log *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{dir: dir, client: client, log: log}
}

// DownloadStatus fetches the image and gifv attachments of a status,
// including those of a wrapped reblog.
func (f *Fetcher) DownloadStatus(ctx context.Context, st *mastodon.Status) {
	if st == nil {
		return
	}
	if st.Reblog != nil {
		f.DownloadStatus(ctx, st.Reblog)
	}

	for _, att := range st.MediaAttachments {
		if att.ID == "" {
			continue
		}
		if att.Type != "image" && att.Type != "gifv" {
			continue
		}

		srcURL := att.URL
		if srcURL == "" {
			srcURL = att.RemoteURL
		}
		if srcURL != "" {
			f.fetch(ctx, srcURL, att.ID+extension(srcURL))
		}
		if att.PreviewURL != "" {
			f.fetch(ctx, att.PreviewURL, att.ID+"_preview"+extension(att.PreviewURL))
		}
	}
}

// fetch downloads url to name inside the media directory unless the file is
// already present. The existence check is the dedup mechanism across
// re-syncs and across items sharing an attachment.
func (f *Fetcher) fetch(ctx context.Context, srcURL, name string) {
	dest := filepath.Join(f.dir, name)
	if _, err := os.Stat(dest); err == nil {
		return
	}

	if err := f.download(ctx, srcURL, dest); err != nil {
		f.log.Debug("download attachment failed", "url", srcURL, "error", err)
	}
}

func (f *Fetcher) download(ctx context.Context, srcURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create media directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest) //nolint:gosec // path is derived from the attachment id
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// extension returns the lower-cased file extension of the URL path,
// defaulting to ".jpg" when there is none.
func extension(srcURL string) string {
	u, err := url.Parse(srcURL)
	if err != nil {
		return ".jpg"
	}
	ext := path.Ext(u.Path)
	if ext == "" {
		return ".jpg"
	}
	return strings.ToLower(ext)
}
