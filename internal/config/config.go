package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Notion   NotionConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken enables bearer auth on the HTTP API when set.
	APIToken string
}

type LLMConfig struct {
	// Backend is auto, openai, ollama or mock.
	Backend       string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	// Model is passed to every chat call. Empty picks a default for the
	// selected backend.
	Model         string
	OllamaBaseURL string
	Temperature   float64
}

type StorageConfig struct {
	DataDir string
	// OutputDir receives output.html and output.json from `sumq run`.
	OutputDir string
}

type PipelineConfig struct {
	TopicCount        int
	QuestionsPerTopic int
	TargetAge         int
	Workers           int
	Review            bool
	QualityPolicy     string
	Language          string
	StageTimeout      string
}

// Timeout parses StageTimeout. An empty value means no per-attempt cap.
func (p PipelineConfig) Timeout() (time.Duration, error) {
	if strings.TrimSpace(p.StageTimeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.StageTimeout)
	if err != nil {
		return 0, fmt.Errorf("pipeline.stage_timeout: %w", err)
	}
	return d, nil
}

type NotionConfig struct {
	Token      string
	DatabaseID string
}

// Enabled reports whether both Notion credentials are present.
func (n NotionConfig) Enabled() bool {
	return n.Token != "" && n.DatabaseID != ""
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		LLM: LLMConfig{
			Backend:       "auto",
			OpenAIBaseURL: "https://api.openai.com/v1",
			OllamaBaseURL: "http://localhost:11434",
			Temperature:   0.7,
		},
		Storage: StorageConfig{
			DataDir:   defaultDataDir(),
			OutputDir: ".",
		},
		Pipeline: PipelineConfig{
			TopicCount:        5,
			QuestionsPerTopic: 3,
			TargetAge:         5,
			Workers:           4,
			Review:            true,
			QualityPolicy:     "warn",
			Language:          "Korean",
			StageTimeout:      "2m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.sumq.app) and secrets
// fall back to macOS Keychain (service: sumq).
// Elsewhere the backend is a TOML file at $XDG_CONFIG_HOME/sumq/config.toml
// and secrets come from the environment or $XDG_DATA_HOME/sumq/secrets.json.
//
// Environment variables (SUMQ_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills secret keys that the environment left empty from the
// platform secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	switch c.LLM.Backend {
	case "auto", "openai", "ollama", "mock":
	default:
		problems = append(problems, fmt.Sprintf("llm.backend %q is not one of auto, openai, ollama, mock", c.LLM.Backend))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("llm.temperature %v must be between 0 and 2", c.LLM.Temperature))
	}
	if c.Pipeline.TopicCount < 1 {
		problems = append(problems, "pipeline.topic_count must be at least 1")
	}
	if c.Pipeline.QuestionsPerTopic < 1 {
		problems = append(problems, "pipeline.questions_per_topic must be at least 1")
	}
	if c.Pipeline.TargetAge < 1 {
		problems = append(problems, "pipeline.target_age must be at least 1")
	}
	if c.Pipeline.Workers < 1 {
		problems = append(problems, "pipeline.workers must be at least 1")
	}
	switch strings.ToLower(c.Pipeline.QualityPolicy) {
	case "warn", "fail":
	default:
		problems = append(problems, fmt.Sprintf("pipeline.quality_policy %q is not warn or fail", c.Pipeline.QualityPolicy))
	}
	if _, err := c.Pipeline.Timeout(); err != nil {
		problems = append(problems, err.Error())
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not debug, info, warn or error", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
