package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockEngine answers every task with canned, deterministic content. It lets
// the pipeline run end to end without credentials or network access.
type MockEngine struct{}

func NewMockEngine() *MockEngine { return &MockEngine{} }

func (MockEngine) Name() string { return "mock" }

func (MockEngine) IsRunning(context.Context) bool { return true }

func (MockEngine) Chat(ctx context.Context, _ string, messages []Message, _ *Schema) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var system, user string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	switch {
	case strings.Contains(system, TaskHeader(TaskTopics)):
		return mockTopics(), nil
	case strings.Contains(system, TaskHeader(TaskQuestions)):
		return mockQuestions(field(user, "Topic:")), nil
	case strings.Contains(system, TaskHeader(TaskSimplify)):
		return mockSimplify(section(user, "Text:")), nil
	case strings.Contains(system, TaskHeader(TaskReview)):
		return "```yaml\nimprovements: []\n```", nil
	default:
		return "", fmt.Errorf("mock engine: unrecognized task")
	}
}

func mockTopics() string {
	topics := []map[string]string{
		{"title": "The big idea", "content": "What the video is mostly about and why people care about it."},
		{"title": "How it works", "content": "The steps and parts that make the main idea happen."},
		{"title": "Where we see it", "content": "Real places and everyday moments where this shows up."},
	}
	b, _ := json.MarshalIndent(topics, "", "  ")
	return "```json\n" + string(b) + "\n```"
}

func mockQuestions(topic string) string {
	if topic == "" {
		topic = "this topic"
	}
	pairs := []map[string]string{
		{"question": "What is " + topic + "?", "answer": topic + " is one of the main ideas explained in the video."},
		{"question": "Why does " + topic + " matter?", "answer": "It helps us understand how things around us work."},
		{"question": "Where can we notice " + topic + "?", "answer": "We can notice it in everyday life once we know what to look for."},
	}
	b, _ := json.MarshalIndent(pairs, "", "  ")
	return "```json\n" + string(b) + "\n```"
}

func mockSimplify(text string) string {
	if text == "" {
		return "Let's learn something new together!"
	}
	return "Let's think about it together! " + text
}

// field returns the rest of the first line starting with prefix.
func field(s, prefix string) string {
	for _, line := range strings.Split(s, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// section returns everything after the first line equal to marker.
func section(s, marker string) string {
	_, after, ok := strings.Cut(s, marker+"\n")
	if !ok {
		return ""
	}
	return strings.TrimSpace(after)
}
