package video

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ?start=10", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?feature=share&v=abc-DEF_123", "abc-DEF_123"},
		{"https://example.com/v/abc123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractVideoID(tt.url); got != tt.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestPageTitle(t *testing.T) {
	page := `<html><head><meta charset="utf-8"><title>How Volcanoes Work - YouTube</title></head><body></body></html>`
	got, err := PageTitle(strings.NewReader(page))
	if err != nil {
		t.Fatalf("PageTitle: %v", err)
	}
	if got != "How Volcanoes Work" {
		t.Errorf("PageTitle = %q, want %q", got, "How Volcanoes Work")
	}

	got, _ = PageTitle(strings.NewReader("<html><body>no title</body></html>"))
	if got != "" {
		t.Errorf("PageTitle(no title) = %q, want empty", got)
	}
}

func TestParseTimedText(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
		`<text start="0" dur="1.2">It&amp;#39;s  hot</text>` +
		`<text start="1.2" dur="2">inside   the
earth</text>` +
		`<text start="3" dur="1"></text>` +
		`</transcript>`
	got, err := ParseTimedText(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseTimedText: %v", err)
	}
	if got != "It's hot inside the earth" {
		t.Errorf("ParseTimedText = %q", got)
	}

	got, err = ParseTimedText(strings.NewReader(""))
	if err != nil || got != "" {
		t.Errorf("ParseTimedText(empty) = %q, %v", got, err)
	}
}

func newFakeYouTube(t *testing.T, transcripts map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			fmt.Fprint(w, "<html><head><title>Volcanoes 101 - YouTube</title></head></html>")
		case "/api/timedtext":
			if r.URL.Query().Get("v") != "dQw4w9WgXcQ" {
				http.NotFound(w, r)
				return
			}
			text, ok := transcripts[r.URL.Query().Get("lang")]
			if !ok {
				return
			}
			fmt.Fprintf(w, `<transcript><text start="0" dur="1">%s</text></transcript>`, text)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestYouTube_FetchUsesLanguagePriority(t *testing.T) {
	srv := newFakeYouTube(t, map[string]string{"en": "magma rises", "ja": "マグマ"})

	info, err := NewYouTube(WithBaseURL(srv.URL)).Fetch(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := content.VideoInfo{
		URL:          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Title:        "Volcanoes 101",
		Transcript:   "magma rises",
		ThumbnailURL: "https://img.youtube.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
		VideoID:      "dQw4w9WgXcQ",
		LanguageUsed: "en",
	}
	if info != want {
		t.Errorf("Fetch = %+v, want %+v", info, want)
	}
}

func TestYouTube_FetchNoTranscript(t *testing.T) {
	srv := newFakeYouTube(t, nil)

	_, err := NewYouTube(WithBaseURL(srv.URL), WithLanguages("ko")).Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("err = %v, want ErrNoTranscript", err)
	}
	if flow.IsInvalidInput(err) {
		t.Error("missing transcript should be retryable, got input error")
	}
}

func TestYouTube_FetchInvalidURL(t *testing.T) {
	_, err := NewYouTube().Fetch(context.Background(), "https://example.com/v/abc123")
	if !flow.IsInvalidInput(err) {
		t.Fatalf("err = %v, want input error", err)
	}
}

func TestFile_FetchText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lesson notes.txt")
	if err := os.WriteFile(path, []byte("Plants   make food\nfrom sunlight."), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := NewResolver(nil).Fetch(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if info.Title != "lesson notes" {
		t.Errorf("Title = %q, want %q", info.Title, "lesson notes")
	}
	if info.Transcript != "Plants make food from sunlight." {
		t.Errorf("Transcript = %q", info.Transcript)
	}
}

func TestFile_FetchErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(bad, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, u := range []string{"file://", "file://" + filepath.Join(dir, "missing.txt"), "file://" + bad} {
		if _, err := (File{}).Fetch(context.Background(), u); !flow.IsInvalidInput(err) {
			t.Errorf("Fetch(%q) err = %v, want input error", u, err)
		}
	}
}

type stubSource struct{ called bool }

func (s *stubSource) Fetch(context.Context, string) (content.VideoInfo, error) {
	s.called = true
	return content.VideoInfo{Title: "web"}, nil
}

func TestResolver_RoutesRemoteURLsToWeb(t *testing.T) {
	web := &stubSource{}
	info, err := NewResolver(web).Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil || !web.called || info.Title != "web" {
		t.Errorf("Fetch = %+v, %v; web called = %v", info, err, web.called)
	}
}
