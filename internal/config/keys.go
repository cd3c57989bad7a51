package config

import (
	"fmt"
	"os"
	"strconv"
)

const secretService = "sumq"

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// account names the secret in the platform secret store.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SUMQ_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SUMQ_API_TOKEN",
		secret: true, account: "api_token",
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "llm.backend", typ: kString, env: "SUMQ_LLM_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.LLM.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Backend },
	},
	{
		key: "llm.openai_api_key", typ: kString, env: "SUMQ_OPENAI_API_KEY",
		secret: true, account: "openai_api_key",
		apply:   func(cfg *Config, v any) { cfg.LLM.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OpenAIAPIKey },
	},
	{
		key: "llm.openai_base_url", typ: kString, env: "SUMQ_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.OpenAIBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OpenAIBaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "SUMQ_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.ollama_base_url", typ: kString, env: "SUMQ_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OllamaBaseURL },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "SUMQ_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SUMQ_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.output_dir", typ: kString, env: "SUMQ_STORAGE_OUTPUT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.OutputDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.OutputDir },
	},
	{
		key: "pipeline.topic_count", typ: kInt, env: "SUMQ_PIPELINE_TOPIC_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TopicCount = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.TopicCount },
	},
	{
		key: "pipeline.questions_per_topic", typ: kInt, env: "SUMQ_PIPELINE_QUESTIONS_PER_TOPIC",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.QuestionsPerTopic = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.QuestionsPerTopic },
	},
	{
		key: "pipeline.target_age", typ: kInt, env: "SUMQ_PIPELINE_TARGET_AGE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TargetAge = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.TargetAge },
	},
	{
		key: "pipeline.workers", typ: kInt, env: "SUMQ_PIPELINE_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.Workers },
	},
	{
		key: "pipeline.review", typ: kBool, env: "SUMQ_PIPELINE_REVIEW",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Review = v.(bool) },
		extract: func(cfg Config) any { return cfg.Pipeline.Review },
	},
	{
		key: "pipeline.quality_policy", typ: kString, env: "SUMQ_PIPELINE_QUALITY_POLICY",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.QualityPolicy = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.QualityPolicy },
	},
	{
		key: "pipeline.language", typ: kString, env: "SUMQ_PIPELINE_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Language = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Language },
	},
	{
		key: "pipeline.stage_timeout", typ: kString, env: "SUMQ_PIPELINE_STAGE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.StageTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.StageTimeout },
	},
	{
		key: "notion.token", typ: kString, env: "SUMQ_NOTION_TOKEN",
		secret: true, account: "notion_token",
		apply:   func(cfg *Config, v any) { cfg.Notion.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.Token },
	},
	{
		key: "notion.database_id", typ: kString, env: "SUMQ_NOTION_DATABASE_ID",
		apply:   func(cfg *Config, v any) { cfg.Notion.DatabaseID = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.DatabaseID },
	},
	{
		key: "log.level", typ: kString, env: "SUMQ_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
