package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
)

const fileScheme = "file://"

// Source fetches video information for a URL.
type Source interface {
	Fetch(ctx context.Context, url string) (content.VideoInfo, error)
}

// File reads a transcript from a local text or PDF file. It lets the
// pipeline run on material that has no online captions.
type File struct{}

// IsLocal reports whether rawURL names a local file.
func IsLocal(rawURL string) bool {
	return strings.HasPrefix(rawURL, fileScheme)
}

func (File) Fetch(ctx context.Context, rawURL string) (content.VideoInfo, error) {
	path := strings.TrimPrefix(rawURL, fileScheme)
	if path == "" {
		return content.VideoInfo{}, flow.Invalid("empty file path")
	}
	if err := ctx.Err(); err != nil {
		return content.VideoInfo{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return content.VideoInfo{}, flow.Invalid("transcript file %s does not exist", path)
		}
		return content.VideoInfo{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		if text, err = pdfText(data); err != nil {
			return content.VideoInfo{}, flow.Invalid("%s: %v", path, err)
		}
	default:
		text = string(data)
	}

	base := filepath.Base(path)
	return content.VideoInfo{
		URL:        rawURL,
		Title:      strings.TrimSuffix(base, filepath.Ext(base)),
		Transcript: strings.Join(strings.Fields(text), " "),
	}, nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}

// Resolver sends file:// URLs to Local and everything else to Web.
type Resolver struct {
	Web   Source
	Local Source
}

func NewResolver(web Source) *Resolver {
	return &Resolver{Web: web, Local: File{}}
}

func (r *Resolver) Fetch(ctx context.Context, rawURL string) (content.VideoInfo, error) {
	if IsLocal(rawURL) {
		return r.Local.Fetch(ctx, rawURL)
	}
	return r.Web.Fetch(ctx, rawURL)
}
