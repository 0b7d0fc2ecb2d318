package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Providers   ProvidersConfig   `yaml:"providers"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
	FFmpeg      FFmpegConfig      `yaml:"ffmpeg"`
	Whisper     WhisperConfig     `yaml:"whisper"`
	Retry       RetryConfig       `yaml:"retry"`
	Paths       PathsConfig       `yaml:"paths"`
	Logging     LoggingConfig     `yaml:"logging"`
	Performance PerformanceConfig `yaml:"performance"`
}

// ProvidersConfig selects the external capabilities and names the
// environment variables their credentials are read from. The pipeline only
// ever checks that a credential is present, it never stores one.
type ProvidersConfig struct {
	Transcriber  string `yaml:"transcriber"`    // "openai" or "whisper"
	Summarizer   string `yaml:"summarizer"`     // "gemini" or "openai"
	OpenAIKeyEnv string `yaml:"openai_key_env"` // env var holding the OpenAI API key
	GeminiKeyEnv string `yaml:"gemini_key_env"` // env var holding the Gemini API key
}

// DefaultsConfig seeds the per-session settings of new workflow sessions.
type DefaultsConfig struct {
	Language            string `yaml:"language"`
	Model               string `yaml:"model"`
	SpeechModel         string `yaml:"speech_model"`
	SystemPrompt        string `yaml:"system_prompt"`
	ReviewBeforeSummary bool   `yaml:"review_before_summary"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
}

// WhisperConfig configures the local whisper.cpp transcriber. Only
// required when providers.transcriber is "whisper".
type WhisperConfig struct {
	ModelPath  string `yaml:"model_path"`
	BinaryPath string `yaml:"binary_path"`
	Threads    int    `yaml:"threads"`
}

// RetryConfig bounds the automatic retries around rate-limited
// summarization calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	BaseDelaySeconds int `yaml:"base_delay_seconds"`
}

type PathsConfig struct {
	Input  string `yaml:"input"`
	Work   string `yaml:"work"`
	Output string `yaml:"output"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PerformanceConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

const defaultSystemPrompt = "You are a helpful assistant that creates concise and informative summaries. " +
	"Provide a clear, well-structured summary of the given text, highlighting the main points and key information."

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Paths.Input == "" {
		return fmt.Errorf("paths.input is required")
	}
	if c.Paths.Output == "" {
		return fmt.Errorf("paths.output is required")
	}

	if c.Providers.Transcriber == "" {
		c.Providers.Transcriber = "openai"
	}
	if c.Providers.Summarizer == "" {
		c.Providers.Summarizer = "gemini"
	}
	switch c.Providers.Transcriber {
	case "openai":
	case "whisper":
		if c.Whisper.ModelPath == "" {
			return fmt.Errorf("whisper.model_path is required for the whisper transcriber")
		}
		if c.Whisper.BinaryPath == "" {
			return fmt.Errorf("whisper.binary_path is required for the whisper transcriber")
		}
	default:
		return fmt.Errorf("unknown transcriber provider %q", c.Providers.Transcriber)
	}
	switch c.Providers.Summarizer {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown summarizer provider %q", c.Providers.Summarizer)
	}

	if c.Providers.OpenAIKeyEnv == "" {
		c.Providers.OpenAIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Providers.GeminiKeyEnv == "" {
		c.Providers.GeminiKeyEnv = "GEMINI_API_KEY"
	}

	if c.Defaults.Language == "" {
		c.Defaults.Language = "en"
	}
	if c.Defaults.Model == "" {
		if c.Providers.Summarizer == "openai" {
			c.Defaults.Model = "gpt-4o"
		} else {
			c.Defaults.Model = "gemini-2.5-flash"
		}
	}
	if c.Defaults.SpeechModel == "" {
		c.Defaults.SpeechModel = "whisper-1"
	}
	if c.Defaults.SystemPrompt == "" {
		c.Defaults.SystemPrompt = defaultSystemPrompt
	}

	if c.FFmpeg.BinaryPath == "" {
		c.FFmpeg.BinaryPath = "ffmpeg"
	}
	if c.Whisper.Threads == 0 {
		c.Whisper.Threads = 8
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelaySeconds == 0 {
		c.Retry.BaseDelaySeconds = 1
	}

	if c.Paths.Work == "" {
		c.Paths.Work = "data/work"
	}
	if c.Performance.MaxConcurrent == 0 {
		c.Performance.MaxConcurrent = 2
	}

	return nil
}
