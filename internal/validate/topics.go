package validate

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/kalambet/sumq/internal/content"
)

const (
	MaxTitleSimilarity   = 0.7
	MaxContentSimilarity = 0.5
)

// FoldTitle is the identity used for topic de-duplication: trimmed,
// NFC-normalized and Unicode case-folded.
func FoldTitle(title string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(title)))
}

// Diverse drops topics with blank titles, duplicate folded titles, or
// titles/contents too similar to a topic already kept. Input order is
// preserved.
func Diverse(topics []content.Topic) []content.Topic {
	type kept struct {
		title, body map[string]struct{}
	}
	seen := make(map[string]struct{}, len(topics))
	var out []content.Topic
	var sets []kept

	for _, t := range topics {
		key := FoldTitle(t.Title)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}

		cand := kept{
			title: wordSet(key, 1),
			body:  wordSet(FoldTitle(t.Content), 3),
		}
		similar := false
		for _, k := range sets {
			if jaccard(cand.title, k.title) > MaxTitleSimilarity || jaccard(cand.body, k.body) > MaxContentSimilarity {
				similar = true
				break
			}
		}
		if similar {
			continue
		}

		seen[key] = struct{}{}
		sets = append(sets, cand)
		out = append(out, t)
	}
	return out
}

func wordSet(s string, minLen int) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if utf8.RuneCountInString(w) >= minLen {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
