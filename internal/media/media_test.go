package media

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tootkeeper/internal/mastodon"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	requests   []string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.requests = append(m.requests, req.URL.String())
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDownloadStatus(t *testing.T) {
	dir := t.TempDir()
	m := &mockTransport{body: "image-bytes", statusCode: 200}
	f := New(dir, m, discardLogger())

	st := &mastodon.Status{
		ID: "100",
		MediaAttachments: []mastodon.MediaAttachment{
			{
				ID:         "900",
				Type:       "image",
				URL:        "https://files.example/orig/900.PNG",
				PreviewURL: "https://files.example/small/900",
			},
			{ID: "901", Type: "video", URL: "https://files.example/orig/901.mp4"},
			{ID: "", Type: "image", URL: "https://files.example/orig/nameless.png"},
		},
	}

	f.DownloadStatus(context.Background(), st)

	// Original keeps its (lower-cased) extension, preview defaults to .jpg.
	for _, name := range []string{"900.png", "900_preview.jpg"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if diff := cmp.Diff("image-bytes", string(data)); diff != "" {
			t.Errorf("%s content mismatch (-want +got):\n%s", name, diff)
		}
	}

	// The video and the id-less attachment are skipped entirely.
	if len(m.requests) != 2 {
		t.Errorf("expected 2 requests, got %d: %v", len(m.requests), m.requests)
	}
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "900.png"), []byte("cached"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	m := &mockTransport{body: "fresh", statusCode: 200}
	f := New(dir, m, discardLogger())

	st := &mastodon.Status{
		ID: "100",
		MediaAttachments: []mastodon.MediaAttachment{
			{ID: "900", Type: "image", URL: "https://files.example/900.png"},
		},
	}

	// Two syncs of the same item: the second must not hit the network at
	// all, and the cached bytes must survive.
	f.DownloadStatus(context.Background(), st)
	f.DownloadStatus(context.Background(), st)

	if len(m.requests) != 0 {
		t.Errorf("expected no requests for cached file, got %d", len(m.requests))
	}
	data, err := os.ReadFile(filepath.Join(dir, "900.png"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff("cached", string(data)); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadFailureIsSwallowed(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
	}{
		{name: "network error", transport: &mockTransport{err: io.ErrUnexpectedEOF}},
		{name: "http error status", transport: &mockTransport{body: "gone", statusCode: 404}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			f := New(dir, tt.transport, discardLogger())

			st := &mastodon.Status{
				ID: "100",
				MediaAttachments: []mastodon.MediaAttachment{
					{ID: "900", Type: "image", URL: "https://files.example/900.png"},
				},
			}
			f.DownloadStatus(context.Background(), st)

			if _, err := os.Stat(filepath.Join(dir, "900.png")); err == nil {
				t.Error("expected no file after failed download")
			}
		})
	}
}

func TestDownloadReblogAttachments(t *testing.T) {
	dir := t.TempDir()
	m := &mockTransport{body: "img", statusCode: 200}
	f := New(dir, m, discardLogger())

	st := &mastodon.Status{
		ID: "100",
		Reblog: &mastodon.Status{
			ID: "55",
			MediaAttachments: []mastodon.MediaAttachment{
				{ID: "700", Type: "gifv", URL: "https://files.example/700.mp4", PreviewURL: "https://files.example/700.png"},
			},
		},
	}
	f.DownloadStatus(context.Background(), st)

	for _, name := range []string{"700.mp4", "700_preview.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "simple", url: "https://files.example/a/b/900.png", want: ".png"},
		{name: "upper case", url: "https://files.example/900.JPEG", want: ".jpeg"},
		{name: "query ignored", url: "https://files.example/900.webp?sig=abc", want: ".webp"},
		{name: "no extension", url: "https://files.example/900", want: ".jpg"},
		{name: "unparsable", url: "://bad", want: ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, extension(tt.url)); diff != "" {
				t.Errorf("extension mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
