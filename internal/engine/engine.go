package engine

import "context"

// Engine abstracts a chat-completion backend (OpenAI-compatible server,
// Ollama, or the offline mock). Generators depend on this interface instead
// of a concrete client.
type Engine interface {
	// Name identifies the backend in logs and status output.
	Name() string

	// Chat sends messages to the given model and returns the assistant's response.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool
}

// ModelManager is implemented by backends that host models locally and can
// download missing ones.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Task tags are placed in system prompts so that the offline mock engine
// can answer each generator with a canned response of the right shape.
const (
	TaskTopics    = "extract-topics"
	TaskQuestions = "generate-questions"
	TaskSimplify  = "simplify"
	TaskReview    = "review"
)

// TaskHeader returns the system prompt line that tags a task.
func TaskHeader(task string) string {
	return "Task: " + task
}
