// Package render produces the HTML report and JSON document of a run.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/sumq/internal/content"
)

// Output file names written by WriteOutputs.
const (
	HTMLFile     = "output.html"
	DocumentFile = "output.json"
)

// Section is one rendered topic: a title and its Q/A bullet lines.
type Section struct {
	Title   string
	Bullets []string
}

// Sections turns topics into renderable sections. Pairs missing a question
// or answer are skipped, as are topics left with no pairs.
func Sections(topics []content.KidTopic) []Section {
	var out []Section
	for _, t := range topics {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		var bullets []string
		for _, qa := range t.QAPairs {
			q, a := strings.TrimSpace(qa.Question()), strings.TrimSpace(qa.Answer())
			if q == "" || a == "" {
				continue
			}
			bullets = append(bullets, "Q: "+q, "A: "+a)
		}
		if len(bullets) == 0 {
			continue
		}
		out = append(out, Section{Title: title, Bullets: bullets})
	}
	return out
}

var page = template.Must(template.New("page").Funcs(template.FuncMap{
	"isQuestion": func(s string) bool { return strings.HasPrefix(s, "Q: ") },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: "Comic Sans MS", "Apple SD Gothic Neo", sans-serif; max-width: 820px; margin: 2rem auto; padding: 0 1rem; background: #fffaf0; color: #333; }
h1 { color: #ff6f61; text-align: center; }
.thumb { display: block; max-width: 100%; margin: 0 auto 2rem; border-radius: 16px; }
.topic { background: #fff; border-radius: 16px; padding: 1rem 1.5rem; margin-bottom: 1.5rem; box-shadow: 0 2px 8px rgba(0,0,0,.08); }
.topic h2 { color: #4a90d9; }
.topic li { list-style: none; margin: .4rem 0; }
.q { font-weight: bold; color: #d35400; }
.a { margin-left: 1rem; color: #2e7d32; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Thumbnail}}<img class="thumb" src="{{.Thumbnail}}" alt="{{.Title}}">{{end}}
{{range .Sections}}<section class="topic">
<h2>{{.Title}}</h2>
<ul>
{{range .Bullets}}<li class="{{if isQuestion .}}q{{else}}a{{end}}">{{.}}</li>
{{end}}</ul>
</section>
{{end}}</body>
</html>
`))

// HTML renders the report page. Text is escaped by html/template.
func HTML(title, thumbnailURL string, sections []Section) (string, error) {
	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title     string
		Thumbnail string
		Sections  []Section
	}{title, thumbnailURL, sections})
	if err != nil {
		return "", fmt.Errorf("rendering html: %w", err)
	}
	return buf.String(), nil
}

// Renderer adapts HTML to the pipeline's renderer contract.
type Renderer struct{}

func (Renderer) Render(title, thumbnailURL string, sections []Section) (string, error) {
	return HTML(title, thumbnailURL, sections)
}

// WriteOutputs writes the HTML page and the JSON document into dir,
// returning the HTML path.
func WriteOutputs(dir, html string, doc content.Document) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	b, err := doc.Encode()
	if err != nil {
		return "", err
	}
	htmlPath := filepath.Join(dir, HTMLFile)
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", HTMLFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, DocumentFile), b, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", DocumentFile, err)
	}
	return htmlPath, nil
}
