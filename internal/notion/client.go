// Package notion saves run results as pages in a Notion database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/sumq/internal/content"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	defaultTimeout = 30 * time.Second
	maxBlocks      = 100
	maxTextRunes   = 2000
)

// ErrNotConfigured is returned when the token or database ID is missing.
var ErrNotConfigured = errors.New("notion: token and database ID are required")

// Client creates pages in one Notion database.
type Client struct {
	token      string
	databaseID string
	baseURL    string
	targetAge  int
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// New returns a client for databaseID. It fails when either credential is
// empty so callers can treat persistence as unconfigured.
func New(token, databaseID string) (*Client, error) {
	if token == "" || databaseID == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		token:      token,
		databaseID: databaseID,
		baseURL:    DefaultBaseURL,
		targetAge:  5,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		now:        time.Now,
	}, nil
}

// WithBaseURL returns c pointed at another API root, for tests and proxies.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// WithTargetAge sets the age written to age-like select properties.
func (c *Client) WithTargetAge(age int) *Client {
	c.targetAge = age
	return c
}

type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("notion: %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ae := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(ae); err != nil || ae.Code == "" {
			ae.Code = "unexpected_status"
		}
		return ae
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding notion response: %w", err)
	}
	return nil
}

// schema groups database property names by type.
type schema struct {
	title        string
	url          string
	date         string
	numbers      []string
	selects      []string
	multiSelects []string
}

type databaseResponse struct {
	Properties map[string]struct {
		Type string `json:"type"`
	} `json:"properties"`
}

func (c *Client) schema(ctx context.Context) (schema, error) {
	var db databaseResponse
	if err := c.do(ctx, http.MethodGet, "/databases/"+c.databaseID, nil, &db); err != nil {
		return schema{}, err
	}
	var s schema
	for name, p := range db.Properties {
		switch p.Type {
		case "title":
			s.title = name
		case "url":
			s.url = name
		case "date":
			s.date = name
		case "number":
			s.numbers = append(s.numbers, name)
		case "select":
			s.selects = append(s.selects, name)
		case "multi_select":
			s.multiSelects = append(s.multiSelects, name)
		}
	}
	return s, nil
}

type pageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Save creates a page describing the run. Schema discovery failures fall
// back to a title-only page named "Name".
func (c *Client) Save(ctx context.Context, req content.SaveRequest) (content.SaveResult, error) {
	s, err := c.schema(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return content.SaveResult{}, ctx.Err()
		}
		c.logger.Warn("notion schema discovery failed, using title only", "error", err)
		s = schema{title: "Name"}
	}

	title := req.Video.Title
	if title == "" {
		title = "Video summary"
	}

	body := map[string]any{
		"parent":     map[string]string{"database_id": c.databaseID},
		"properties": c.properties(s, title, req),
		"children":   blocks(req),
	}

	var page pageResponse
	if err := c.do(ctx, http.MethodPost, "/pages", body, &page); err != nil {
		return content.SaveResult{}, err
	}
	c.logger.Info("saved run to notion", "page_id", page.ID)
	return content.SaveResult{Success: true, PageURL: page.URL, PageID: page.ID, Title: title}, nil
}

func richText(s string) []map[string]any {
	if r := []rune(s); len(r) > maxTextRunes {
		s = string(r[:maxTextRunes])
	}
	return []map[string]any{{"type": "text", "text": map[string]string{"content": s}}}
}

func (c *Client) properties(s schema, title string, req content.SaveRequest) map[string]any {
	props := map[string]any{}
	if s.title != "" {
		props[s.title] = map[string]any{"title": richText(title)}
	}
	if s.url != "" && req.Video.URL != "" {
		props[s.url] = map[string]any{"url": req.Video.URL}
	}
	if s.date != "" {
		props[s.date] = map[string]any{"date": map[string]string{"start": c.now().Format(time.RFC3339)}}
	}

	for i, name := range s.numbers {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "topic"):
			props[name] = map[string]int{"number": len(req.Topics)}
		case strings.Contains(lower, "qa") || strings.Contains(lower, "question"):
			props[name] = map[string]int{"number": len(req.QAPairs)}
		case i == 0:
			props[name] = map[string]int{"number": len(req.Topics)}
		case i == 1:
			props[name] = map[string]int{"number": len(req.QAPairs)}
		}
	}

	for _, name := range s.selects {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "language"):
			props[name] = selectOption(languageName(req.Video))
		case strings.Contains(lower, "age"):
			props[name] = selectOption(fmt.Sprintf("%d years", c.targetAge))
		case strings.Contains(lower, "difficulty"):
			props[name] = selectOption("Easy")
		}
	}

	for _, name := range s.multiSelects {
		if !strings.Contains(strings.ToLower(name), "tag") {
			continue
		}
		if tags := Tags(req.Video.Title); len(tags) > 0 {
			opts := make([]map[string]string, len(tags))
			for i, t := range tags {
				opts[i] = map[string]string{"name": t}
			}
			props[name] = map[string]any{"multi_select": opts}
		}
	}
	return props
}

func selectOption(name string) map[string]any {
	return map[string]any{"select": map[string]string{"name": name}}
}

func languageName(v content.VideoInfo) string {
	switch v.LanguageUsed {
	case "ko":
		return "Korean"
	case "ja":
		return "Japanese"
	case "en":
		return "English"
	}
	for _, r := range v.Title {
		switch {
		case r >= 0xAC00 && r <= 0xD7AF:
			return "Korean"
		case r >= 0x3040 && r <= 0x30FF:
			return "Japanese"
		}
	}
	return "English"
}

var tagKeywords = []struct {
	tag      string
	keywords []string
}{
	{"AI", []string{"ai", "artificial intelligence", "machine learning", "인공지능"}},
	{"Science", []string{"science", "과학"}},
	{"History", []string{"history", "역사"}},
	{"Technology", []string{"tech", "technology", "기술"}},
	{"Education", []string{"education", "learning", "교육", "학습"}},
	{"Music", []string{"music", "음악"}},
	{"Cooking", []string{"cooking", "recipe", "요리"}},
	{"Games", []string{"game", "gaming", "게임"}},
	{"Sports", []string{"football", "soccer", "sport", "축구"}},
	{"Investing", []string{"investment", "stock", "투자"}},
}

// Tags derives keyword tags from a video title.
func Tags(title string) []string {
	lower := strings.ToLower(title)
	var tags []string
	for _, tk := range tagKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, tk.tag)
				break
			}
		}
	}
	return tags
}

func block(kind string, text string) map[string]any {
	return map[string]any{
		"object": "block",
		"type":   kind,
		kind:     map[string]any{"rich_text": richText(text)},
	}
}

func blocks(req content.SaveRequest) []map[string]any {
	out := []map[string]any{
		block("heading_2", "Video"),
		block("paragraph", "Title: "+req.Video.Title),
		block("paragraph", "URL: "+req.Video.URL),
		block("heading_2", "Topics"),
	}
	for i, t := range req.Topics {
		out = append(out, block("bulleted_list_item", fmt.Sprintf("%d. %s", i+1, t.Title)))
	}
	out = append(out, block("heading_2", "Q&A for kids"))

	n := 0
	for _, topic := range req.KidFriendly {
		for _, qa := range topic.QAPairs {
			n++
			if n > 1 {
				out = append(out, map[string]any{"object": "block", "type": "divider", "divider": map[string]any{}})
			}
			out = append(out,
				block("heading_3", fmt.Sprintf("Q%d. %s", n, qa.Question())),
				block("paragraph", qa.Answer()),
			)
		}
	}
	if len(out) > maxBlocks {
		out = out[:maxBlocks]
	}
	return out
}
