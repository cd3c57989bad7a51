package generation

import (
	"fmt"
	"strings"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/engine"
)

// DefaultLanguage is the output language used when none is configured.
const DefaultLanguage = "Korean"

func system(task, body, language string) engine.Message {
	var sb strings.Builder
	sb.WriteString(engine.TaskHeader(task))
	sb.WriteString("\n")
	sb.WriteString(body)
	if language != "" {
		fmt.Fprintf(&sb, "\n\nAlways write your answer in %s, regardless of the language of the input.", language)
	}
	return engine.Message{Role: "system", Content: sb.String()}
}

const topicsSystem = `You are an educational content planner. You read video transcripts and identify the distinct topics they teach.

Rules:
- Each topic must cover a different idea; do not repeat or rephrase another topic.
- The title is a short noun phrase. The content is two or three sentences summarizing what the video says about it.
- Output ONLY a JSON array of objects with "title" and "content" fields, inside a ` + "```json" + ` fence.`

func topicsPrompt(transcript string, count int, language string) []engine.Message {
	user := fmt.Sprintf("Extract at most %d topics from this transcript.\n\nTranscript:\n%s", count, transcript)
	return []engine.Message{
		system(engine.TaskTopics, topicsSystem, language),
		{Role: "user", Content: user},
	}
}

const questionsSystem = `You are a teacher writing review questions. For the given topic, write questions a curious learner would ask and answer each one accurately using only the topic summary.

Rules:
- Questions must be answerable from the summary.
- Answers are one to three sentences.
- Output ONLY a JSON array of objects with "question" and "answer" fields, inside a ` + "```json" + ` fence.`

func questionsPrompt(topic content.Topic, count int, language string) []engine.Message {
	user := fmt.Sprintf("Write exactly %d question and answer pairs.\n\nTopic: %s\nSummary: %s", count, topic.Title, topic.Content)
	return []engine.Message{
		system(engine.TaskQuestions, questionsSystem, language),
		{Role: "user", Content: user},
	}
}

const simplifySystem = `You rewrite text so that a young child can understand it. Keep the meaning, use short sentences and everyday words, and be warm and encouraging. Reply with the rewritten text only, without quotes or commentary.`

func simplifyPrompt(text string, targetAge int, language string) []engine.Message {
	user := fmt.Sprintf("Rewrite the following for a %d-year-old child.\n\nText:\n%s", targetAge, text)
	return []engine.Message{
		system(engine.TaskSimplify, simplifySystem, language),
		{Role: "user", Content: user},
	}
}

const reviewSystem = `You are an editor checking questions and answers written for young children. Fix factual mistakes, unclear wording and anything too difficult for the audience. Leave good pairs alone.

Output ONLY YAML inside a ` + "```yaml" + ` fence with this shape:
improvements:
  - question_number: 1
    improved_question: "..."
    improved_answer: "..."
    changes_made: "short description"
Use an empty list when nothing needs to change.`

func reviewPrompt(topic content.KidTopic, videoTitle, videoContext, language string) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Video: %s\n", videoTitle)
	if videoContext != "" {
		fmt.Fprintf(&sb, "Context: %s\n", videoContext)
	}
	fmt.Fprintf(&sb, "Topic: %s\n\n", topic.Title)
	for i, qa := range topic.QAPairs {
		fmt.Fprintf(&sb, "%d. Q: %s\n   A: %s\n", i+1, qa.Question(), qa.Answer())
	}
	return []engine.Message{
		system(engine.TaskReview, reviewSystem, language),
		{Role: "user", Content: sb.String()},
	}
}
