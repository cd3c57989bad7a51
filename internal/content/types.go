// Package content holds the data that flows between pipeline stages and
// out to renderers and sinks.
package content

import (
	"encoding/json"
	"fmt"
	"time"
)

// VideoInfo is what a video source returns for a URL.
type VideoInfo struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Transcript   string `json:"transcript"`
	ThumbnailURL string `json:"thumbnail_url"`
	VideoID      string `json:"video_id"`
	LanguageUsed string `json:"language_used"`
}

type Topic struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Valid reports whether both sides of the pair carry text.
func (p QAPair) Valid() bool {
	return p.Question != "" && p.Answer != ""
}

// TopicQA groups generated pairs with the topic they came from.
type TopicQA struct {
	Topic   Topic    `json:"topic"`
	QAPairs []QAPair `json:"qa_pairs"`
}

// KidQA is a Q&A pair rewritten for a young audience. The reviewed fields
// are set only when the review pass changed something.
type KidQA struct {
	OriginalQuestion    string `json:"original_question"`
	OriginalAnswer      string `json:"original_answer"`
	KidFriendlyQuestion string `json:"kid_friendly_question"`
	KidFriendlyAnswer   string `json:"kid_friendly_answer"`
	ReviewedQuestion    string `json:"reviewed_question,omitempty"`
	ReviewedAnswer      string `json:"reviewed_answer,omitempty"`
}

// Question returns the most refined question text available.
func (q KidQA) Question() string {
	if q.ReviewedQuestion != "" {
		return q.ReviewedQuestion
	}
	return q.KidFriendlyQuestion
}

// Answer returns the most refined answer text available.
func (q KidQA) Answer() string {
	if q.ReviewedAnswer != "" {
		return q.ReviewedAnswer
	}
	return q.KidFriendlyAnswer
}

type KidTopic struct {
	Title   string  `json:"title"`
	QAPairs []KidQA `json:"qa_pairs"`
}

// Review statuses.
const (
	ReviewSkipped   = "skipped"
	ReviewCompleted = "completed"
)

// ReviewDetail records one corrected pair.
type ReviewDetail struct {
	Topic          string `json:"topic"`
	QuestionNumber int    `json:"question_number"`
	Changes        string `json:"changes"`
}

type ReviewReport struct {
	Status           string         `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	TotalCorrections int            `json:"total_corrections"`
	TopicsReviewed   int            `json:"topics_reviewed"`
	Details          []ReviewDetail `json:"details,omitempty"`
}

// Summary is a one-line description suitable for logs and reports.
func (r ReviewReport) Summary() string {
	switch {
	case r.Status == "":
		return "review not run"
	case r.Status == ReviewSkipped:
		if r.Reason != "" {
			return "review skipped (" + r.Reason + ")"
		}
		return "review skipped"
	case r.TotalCorrections == 0:
		return fmt.Sprintf("reviewed %d topic(s), no corrections needed", r.TopicsReviewed)
	default:
		return fmt.Sprintf("reviewed %d topic(s), %d correction(s)", r.TopicsReviewed, r.TotalCorrections)
	}
}

// SaveRequest is everything a persistence sink receives.
type SaveRequest struct {
	Video       VideoInfo  `json:"video_info"`
	Topics      []Topic    `json:"topics"`
	QAPairs     []QAPair   `json:"qa_pairs"`
	KidFriendly []KidTopic `json:"kid_friendly"`
}

// SaveResult is the outcome of a persistence attempt. A failed save is
// reported here rather than as a run failure.
type SaveResult struct {
	Success bool   `json:"success"`
	PageURL string `json:"page_url,omitempty"`
	PageID  string `json:"page_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Document is the downloadable result of a run.
type Document struct {
	Video       VideoInfo     `json:"video_info"`
	Topics      []KidTopic    `json:"topics"`
	Review      *ReviewReport `json:"review,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Encode renders the document as indented JSON.
func (d Document) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

func DecodeDocument(b []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return d, nil
}

// PairCount returns the number of Q&A pairs across all topics.
func PairCount(topics []KidTopic) int {
	n := 0
	for _, t := range topics {
		n += len(t.QAPairs)
	}
	return n
}
