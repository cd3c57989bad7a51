// Package video fetches titles and transcripts for the pipeline.
package video

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
)

const (
	defaultBaseURL      = "https://www.youtube.com"
	defaultThumbnailURL = "https://img.youtube.com"
	defaultTimeout      = 30 * time.Second
	maxPageBytes        = 4 << 20
)

// DefaultLanguages is the transcript language priority.
var DefaultLanguages = []string{"ko", "en", "ja"}

var videoIDPattern = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`)

// ErrNoTranscript is returned when none of the configured languages has a
// transcript.
var ErrNoTranscript = errors.New("no transcript available")

// ExtractVideoID returns the 11-character video ID in rawURL, or "".
func ExtractVideoID(rawURL string) string {
	m := videoIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// YouTube fetches video metadata from the watch page and transcripts from
// the timedtext endpoint.
type YouTube struct {
	httpClient   *http.Client
	baseURL      string
	thumbnailURL string
	languages    []string
	logger       *slog.Logger
}

// Option configures a YouTube source.
type Option func(*YouTube)

// WithBaseURL points page and transcript requests at another host.
func WithBaseURL(u string) Option {
	return func(y *YouTube) { y.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(y *YouTube) { y.httpClient = c }
}

// WithLanguages sets the transcript language priority.
func WithLanguages(langs ...string) Option {
	return func(y *YouTube) {
		if len(langs) > 0 {
			y.languages = langs
		}
	}
}

func NewYouTube(opts ...Option) *YouTube {
	y := &YouTube{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		baseURL:      defaultBaseURL,
		thumbnailURL: defaultThumbnailURL,
		languages:    DefaultLanguages,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(y)
	}
	return y
}

// Fetch returns title, transcript and thumbnail for a video URL. A URL
// without a recognizable video ID is an input error.
func (y *YouTube) Fetch(ctx context.Context, rawURL string) (content.VideoInfo, error) {
	id := ExtractVideoID(rawURL)
	if id == "" {
		return content.VideoInfo{}, flow.Invalid("could not find a video ID in %q", rawURL)
	}

	info := content.VideoInfo{
		URL:          rawURL,
		VideoID:      id,
		ThumbnailURL: fmt.Sprintf("%s/vi/%s/maxresdefault.jpg", y.thumbnailURL, id),
	}

	title, err := y.title(ctx, id)
	if err != nil {
		y.logger.Warn("could not read video title", "video_id", id, "error", err)
	}
	if title == "" {
		title = "YouTube video " + id
	}
	info.Title = title

	for _, lang := range y.languages {
		text, err := y.transcript(ctx, id, lang)
		if err != nil {
			if ctx.Err() != nil {
				return content.VideoInfo{}, ctx.Err()
			}
			y.logger.Debug("transcript unavailable", "video_id", id, "lang", lang, "error", err)
			continue
		}
		if text != "" {
			info.Transcript = text
			info.LanguageUsed = lang
			return info, nil
		}
	}
	return content.VideoInfo{}, fmt.Errorf("video %s: %w in %s", id, ErrNoTranscript, strings.Join(y.languages, ", "))
}

func (y *YouTube) get(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("requesting %s: unexpected status %d", u, resp.StatusCode)
	}
	return resp.Body, nil
}

func (y *YouTube) title(ctx context.Context, id string) (string, error) {
	body, err := y.get(ctx, y.baseURL+"/watch?v="+url.QueryEscape(id))
	if err != nil {
		return "", err
	}
	defer body.Close()
	return PageTitle(io.LimitReader(body, maxPageBytes))
}

// PageTitle returns the text of the first <title> element with the
// " - YouTube" suffix removed.
func PageTitle(r io.Reader) (string, error) {
	z := xhtml.NewTokenizer(r)
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", nil
			}
			return "", z.Err()
		case xhtml.StartTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != atom.Title {
				continue
			}
			if z.Next() != xhtml.TextToken {
				return "", nil
			}
			t := strings.TrimSpace(string(z.Text()))
			return strings.TrimSpace(strings.TrimSuffix(t, "- YouTube")), nil
		}
	}
}

type timedText struct {
	Lines []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

func (y *YouTube) transcript(ctx context.Context, id, lang string) (string, error) {
	q := url.Values{"v": {id}, "lang": {lang}}
	body, err := y.get(ctx, y.baseURL+"/api/timedtext?"+q.Encode())
	if err != nil {
		return "", err
	}
	defer body.Close()
	return ParseTimedText(body)
}

// ParseTimedText joins the caption lines of a timedtext XML document. An
// empty document yields "".
func ParseTimedText(r io.Reader) (string, error) {
	var doc timedText
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("parsing timedtext: %w", err)
	}
	parts := make([]string, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		// Captions are entity-escaped twice; xml decoding removes one layer.
		s := strings.Join(strings.Fields(html.UnescapeString(l.Text)), " ")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}
