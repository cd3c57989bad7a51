package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/sumq/internal/content"
)

func sampleTopics() []content.KidTopic {
	return []content.KidTopic{
		{Title: "Lava", QAPairs: []content.KidQA{
			{KidFriendlyQuestion: "What is lava?", KidFriendlyAnswer: "Very hot melted rock."},
			{KidFriendlyQuestion: "", KidFriendlyAnswer: "orphan answer"},
		}},
		{Title: "Empty", QAPairs: nil},
		{Title: "Ash & Smoke", QAPairs: []content.KidQA{
			{KidFriendlyQuestion: "Is ash <dangerous>?", KidFriendlyAnswer: "It can be.", ReviewedAnswer: "Yes, don't breathe it."},
		}},
	}
}

func TestSections_SkipsIncomplete(t *testing.T) {
	got := Sections(sampleTopics())
	if len(got) != 2 {
		t.Fatalf("len(Sections) = %d, want 2", len(got))
	}
	if got[0].Title != "Lava" || len(got[0].Bullets) != 2 {
		t.Errorf("section 0 = %+v", got[0])
	}
	if got[0].Bullets[0] != "Q: What is lava?" || got[0].Bullets[1] != "A: Very hot melted rock." {
		t.Errorf("bullets = %v", got[0].Bullets)
	}
	if got[1].Bullets[1] != "A: Yes, don't breathe it." {
		t.Errorf("reviewed answer not preferred: %v", got[1].Bullets)
	}
}

func TestHTML_ContainsEveryTitleEscaped(t *testing.T) {
	out, err := HTML("Volcanoes <live>", "https://img.example.com/t.jpg", Sections(sampleTopics()))
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	for _, want := range []string{
		"Volcanoes &lt;live&gt;",
		"Lava",
		"Ash &amp; Smoke",
		"Is ash &lt;dangerous&gt;?",
		`src="https://img.example.com/t.jpg"`,
		`class="q"`,
		`class="a"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(out, "Empty") {
		t.Error("HTML contains a topic with no pairs")
	}
}

func TestHTML_NoThumbnail(t *testing.T) {
	out, err := Renderer{}.Render("T", "", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out, "<img") {
		t.Error("rendered <img> without a thumbnail")
	}
}

func TestWriteOutputs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	doc := content.Document{Video: content.VideoInfo{Title: "T"}, Topics: sampleTopics()}

	path, err := WriteOutputs(dir, "<html></html>", doc)
	if err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}
	if path != filepath.Join(dir, HTMLFile) {
		t.Errorf("path = %q", path)
	}

	b, err := os.ReadFile(filepath.Join(dir, DocumentFile))
	if err != nil {
		t.Fatalf("reading document: %v", err)
	}
	got, err := content.DecodeDocument(b)
	if err != nil {
		t.Fatalf("DecodeDocument: %v", err)
	}
	if got.Video.Title != "T" || len(got.Topics) != 3 {
		t.Errorf("document = %+v", got)
	}
}
