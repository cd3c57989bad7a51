package validate

import (
	"slices"
	"strings"
	"testing"

	"github.com/kalambet/sumq/internal/content"
)

const goodTranscript = `Volcanoes form where molten rock called magma rises through cracks in the
earth's crust. When pressure builds up underground the magma erupts as lava, ash and gas.
Some volcanoes erupt explosively while others ooze slowly. Scientists called volcanologists
measure earthquakes, ground swelling and gas emissions to predict eruptions. Volcanic soil
is very fertile, which is why farmers often live near active volcanoes despite the danger.
Famous examples include Mount Fuji in Japan, Vesuvius in Italy and Kilauea in Hawaii.`

func TestTranscript_GoodText(t *testing.T) {
	q := Transcript(goodTranscript)
	if !q.Valid || q.Err() != nil {
		t.Fatalf("Valid = %v, issues: %v", q.Valid, q.Issues)
	}
	if q.WordCount <= MinWords {
		t.Errorf("WordCount = %d, want > %d", q.WordCount, MinWords)
	}
	if q.MeaningfulRatio > 1.0 {
		t.Errorf("MeaningfulRatio = %v, want <= 1", q.MeaningfulRatio)
	}
}

func TestTranscript_Empty(t *testing.T) {
	q := Transcript("   \n ")
	if q.Valid || q.Err() == nil {
		t.Error("empty transcript reported valid")
	}
	if !slices.Equal(q.Issues, []string{"transcript is empty"}) {
		t.Errorf("Issues = %v", q.Issues)
	}
}

func TestTranscript_TooShort(t *testing.T) {
	q := Transcript("Lava is hot melted rock from deep inside the earth.")
	if q.Valid || len(q.Issues) == 0 {
		t.Fatalf("Valid = %v, issues: %v", q.Valid, q.Issues)
	}
	if !strings.Contains(q.Issues[0], "too short") {
		t.Errorf("Issues[0] = %q, want too short", q.Issues[0])
	}
}

func TestTranscript_TooLong(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxWords+1; i++ {
		b.WriteString("word")
		b.WriteString(string(rune('a' + i%26)))
		b.WriteByte(' ')
	}
	q := Transcript(b.String())
	if q.Valid || !strings.Contains(strings.Join(q.Issues, ";"), "too long") {
		t.Errorf("Valid = %v, issues: %v", q.Valid, q.Issues)
	}
}

func TestTranscript_Repetitive(t *testing.T) {
	q := Transcript(strings.Repeat("the cat ", 60))
	if q.Valid || !strings.Contains(strings.Join(q.Issues, ";"), "meaningful") {
		t.Errorf("Valid = %v, issues: %v", q.Valid, q.Issues)
	}
}

func TestTranscript_HangulCounts(t *testing.T) {
	korean := strings.Repeat("화산은 땅속의 뜨거운 마그마가 밖으로 나오는 곳입니다 용암과 화산재가 함께 분출됩니다 ", 6)
	q := Transcript(korean)
	if strings.Contains(strings.Join(q.Issues, ";"), "no recognizable words") {
		t.Errorf("Hangul text flagged: %v", q.Issues)
	}
}

func TestTranscript_Gibberish(t *testing.T) {
	q := Transcript(strings.Repeat("1234 5678 ?? !! ", 20))
	if q.Valid {
		t.Fatal("gibberish reported valid")
	}
	issues := strings.Join(q.Issues, ";")
	for _, want := range []string{"no recognizable words", "too few letters"} {
		if !strings.Contains(issues, want) {
			t.Errorf("issues %q missing %q", issues, want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
	}{
		{"", PolicyWarn},
		{" FAIL ", PolicyFail},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParsePolicy("strict"); err == nil {
		t.Error("ParsePolicy(strict) should fail")
	}
}

func titles(topics []content.Topic) []string {
	out := make([]string, len(topics))
	for i, tp := range topics {
		out[i] = tp.Title
	}
	return out
}

func TestDiverse_DedupesByFoldedTitle(t *testing.T) {
	in := []content.Topic{
		{Title: "Volcanoes", Content: "How magma reaches the surface."},
		{Title: "  VOLCANOES ", Content: "A totally different body of text about birds."},
		{Title: "Straße", Content: "Street names in Germany."},
		{Title: "STRASSE", Content: "Road signs and traffic."},
		{Title: "", Content: "untitled"},
	}
	got := titles(Diverse(in))
	if want := []string{"Volcanoes", "Straße"}; !slices.Equal(got, want) {
		t.Errorf("Diverse titles = %v, want %v", got, want)
	}
}

func TestDiverse_DropsSimilarTopics(t *testing.T) {
	in := []content.Topic{
		{Title: "How volcanoes erupt", Content: "pressure builds magma rises lava flows"},
		{Title: "How volcanoes erupt quickly", Content: "completely separate words about eruption speed"},
		{Title: "Volcanic soil", Content: "pressure builds magma rises lava flows"},
		{Title: "Famous volcanoes", Content: "fuji vesuvius kilauea examples around world"},
	}
	got := titles(Diverse(in))
	if want := []string{"How volcanoes erupt", "Famous volcanoes"}; !slices.Equal(got, want) {
		t.Errorf("Diverse titles = %v, want %v", got, want)
	}
}

func TestDiverse_UniqueFoldedTitlesProperty(t *testing.T) {
	in := []content.Topic{
		{Title: "A"}, {Title: "a"}, {Title: "B"}, {Title: "b "}, {Title: "C"},
	}
	out := Diverse(in)
	seen := map[string]bool{}
	for _, tp := range out {
		key := FoldTitle(tp.Title)
		if seen[key] {
			t.Errorf("duplicate folded title %q", key)
		}
		seen[key] = true
	}
	if len(out) != 3 {
		t.Errorf("len(Diverse) = %d, want 3", len(out))
	}
}
