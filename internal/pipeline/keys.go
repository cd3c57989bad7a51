package pipeline

import (
	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
	"github.com/kalambet/sumq/internal/validate"
)

// Store keys shared between stages. Each is written by exactly one stage,
// except final_topics which review rewrites in place.
var (
	KeyURL               = flow.NewKey[string]("url")
	KeyVideoInfo         = flow.NewKey[content.VideoInfo]("video_info")
	KeyTranscriptQuality = flow.NewKey[validate.Quality]("transcript_quality")
	KeyTopics            = flow.NewKey[[]content.Topic]("topics")
	KeyTopicsWithQA      = flow.NewKey[[]content.TopicQA]("topics_with_qa")
	KeyFinalTopics       = flow.NewKey[[]content.KidTopic]("final_topics")
	KeyReviewReport      = flow.NewKey[content.ReviewReport]("review_report")
	KeyHTMLOutput        = flow.NewKey[string]("html_output")
	KeyDocument          = flow.NewKey[content.Document]("document")
	KeyOutputPath        = flow.NewKey[string]("output_path")
	KeySaveResult        = flow.NewKey[content.SaveResult]("save_result")
)

// Stage names, in run order.
const (
	StageFetch   = "fetch_video"
	StageExtract = "extract_topics"
	StageQA      = "generate_qa"
	StageKid     = "kid_friendly"
	StageReview  = "review"
	StageRender  = "render"
	StageSave    = "save"
)

// DefaultPolicies returns the retry budget of every stage.
func DefaultPolicies() map[string]flow.RetryPolicy {
	return map[string]flow.RetryPolicy{
		StageFetch:   flow.Retry(2, fetchWait),
		StageExtract: flow.Retry(3, generationWait),
		StageQA:      flow.Retry(3, generationWait),
		StageKid:     flow.Retry(3, generationWait),
		StageReview:  flow.Retry(2, finishWait),
		StageRender:  flow.Retry(2, finishWait),
		StageSave:    flow.Retry(2, finishWait),
	}
}
