// Package validate checks transcript quality and filters near-duplicate
// topics.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinWords             = 50
	MaxWords             = 10000
	MinMeaningfulRatio   = 0.3
	minLetters           = 10
	meaningfulWordLength = 3
)

var latinWord = regexp.MustCompile(`[A-Za-z]{3,}`)

// Policy decides what a failed quality check does to the run.
type Policy string

const (
	// PolicyWarn logs quality issues and continues.
	PolicyWarn Policy = "warn"
	// PolicyFail stops the run with an input error.
	PolicyFail Policy = "fail"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyWarn:
		return PolicyWarn, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown transcript policy %q (want warn or fail)", s)
	}
}

// Quality is the outcome of Transcript.
type Quality struct {
	Valid           bool     `json:"valid"`
	Issues          []string `json:"issues,omitempty"`
	WordCount       int      `json:"word_count"`
	MeaningfulRatio float64  `json:"meaningful_ratio"`
}

// Transcript runs the heuristic quality checks on a transcript.
func Transcript(text string) Quality {
	text = strings.TrimSpace(text)
	if text == "" {
		return Quality{Issues: []string{"transcript is empty"}}
	}

	words := strings.Fields(text)
	q := Quality{WordCount: len(words)}

	if q.WordCount < MinWords {
		q.Issues = append(q.Issues, fmt.Sprintf("transcript too short (%d words, need %d)", q.WordCount, MinWords))
	}
	if q.WordCount > MaxWords {
		q.Issues = append(q.Issues, fmt.Sprintf("transcript too long (%d words, limit %d)", q.WordCount, MaxWords))
	}

	unique := make(map[string]struct{})
	for _, w := range words {
		if utf8.RuneCountInString(w) >= meaningfulWordLength {
			unique[strings.ToLower(w)] = struct{}{}
		}
	}
	q.MeaningfulRatio = min(2*float64(len(unique))/float64(q.WordCount), 1)
	if q.MeaningfulRatio < MinMeaningfulRatio {
		q.Issues = append(q.Issues, fmt.Sprintf("too few meaningful words (ratio %.2f)", q.MeaningfulRatio))
	}

	hangul := false
	letters := 0
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			hangul = true
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if !hangul && !latinWord.MatchString(text) {
		q.Issues = append(q.Issues, "no recognizable words")
	}
	if letters < minLetters {
		q.Issues = append(q.Issues, fmt.Sprintf("too few letters (%d)", letters))
	}

	q.Valid = len(q.Issues) == 0
	return q
}

// Err summarizes the issues as an error, or nil when the transcript is valid.
func (q Quality) Err() error {
	if q.Valid {
		return nil
	}
	return fmt.Errorf("transcript quality: %s", strings.Join(q.Issues, "; "))
}
