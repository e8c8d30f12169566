package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Rewrite    RewriteConfig    `mapstructure:"rewrite"`
	Inject     InjectConfig     `mapstructure:"inject"`
	Model      ModelConfig      `mapstructure:"model"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Output     OutputConfig     `mapstructure:"output"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// SourcesConfig controls where policy sources are discovered.
type SourcesConfig struct {
	DirName     string `mapstructure:"dir_name"`
	FileName    string `mapstructure:"file_name"`
	SystemDir   string `mapstructure:"system_dir"`
	IncludeHome bool   `mapstructure:"include_home"`
}

// ClassifierConfig classifier gate settings
type ClassifierConfig struct {
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// RewriteConfig transform model settings
type RewriteConfig struct {
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// InjectConfig injected command settings
type InjectConfig struct {
	Timeout int `mapstructure:"timeout"` // seconds
}

// ModelConfig selects how model prompts are executed.
type ModelConfig struct {
	Backend string            `mapstructure:"backend"` // "cli" | "api"
	CLI     ModelCLIConfig    `mapstructure:"cli"`
	Aliases map[string]string `mapstructure:"aliases"`
}

// ModelCLIConfig settings for the model command-line backend
type ModelCLIConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// ProvidersConfig LLM provider settings
type ProvidersConfig struct {
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
	Claude     ProviderConfig `mapstructure:"claude"`
	OpenAI     ProviderConfig `mapstructure:"openai"`
	DeepSeek   ProviderConfig `mapstructure:"deepseek"`
	Ollama     ProviderConfig `mapstructure:"ollama"`
}

// ProviderConfig single provider settings
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// OutputConfig decision rendering settings
type OutputConfig struct {
	SurfaceWarnings bool `mapstructure:"surface_warnings"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "warn",
			File:  "",
		},
		Sources: SourcesConfig{
			DirName:     ".warden",
			FileName:    "policies.yaml",
			IncludeHome: true,
		},
		Classifier: ClassifierConfig{
			Model:   "haiku",
			Timeout: 30,
		},
		Rewrite: RewriteConfig{
			Timeout: 60,
		},
		Inject: InjectConfig{
			Timeout: 30,
		},
		Model: ModelConfig{
			Backend: "cli",
			CLI: ModelCLIConfig{
				Command: "claude",
				Args:    []string{"-p"},
			},
			Aliases: map[string]string{
				"haiku":  "claude-haiku-4-5",
				"sonnet": "claude-sonnet-4-5",
				"opus":   "claude-opus-4-1",
			},
		},
		Providers: ProvidersConfig{},
		Output: OutputConfig{
			SurfaceWarnings: true,
		},
	}
}

// ConfigDir returns the warden config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".warden")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from file or returns defaults. A missing file is not
// created here; evaluation runs never write to disk.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("WARDEN")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "warn"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	if strings.TrimSpace(c.Sources.DirName) == "" {
		c.Sources.DirName = ".warden"
	}
	if strings.TrimSpace(c.Sources.FileName) == "" {
		c.Sources.FileName = "policies.yaml"
	}
	if strings.ContainsAny(c.Sources.DirName, `/\`) {
		return fmt.Errorf("sources.dir_name must be a single path component, got %q", c.Sources.DirName)
	}

	for name, timeout := range map[string]*int{
		"classifier.timeout": &c.Classifier.Timeout,
		"rewrite.timeout":    &c.Rewrite.Timeout,
		"inject.timeout":     &c.Inject.Timeout,
	} {
		if *timeout < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, *timeout)
		}
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 30
	}
	if c.Rewrite.Timeout == 0 {
		c.Rewrite.Timeout = 60
	}
	if c.Inject.Timeout == 0 {
		c.Inject.Timeout = 30
	}
	if strings.TrimSpace(c.Classifier.Model) == "" {
		c.Classifier.Model = "haiku"
	}

	backend := strings.ToLower(strings.TrimSpace(c.Model.Backend))
	switch backend {
	case "":
		c.Model.Backend = "cli"
	case "cli", "api":
		c.Model.Backend = backend
	default:
		return fmt.Errorf("model.backend must be one of cli, api; got %q", c.Model.Backend)
	}
	if c.Model.Backend == "cli" && strings.TrimSpace(c.Model.CLI.Command) == "" {
		c.Model.CLI.Command = "claude"
	}

	return nil
}

// ClassifierTimeout returns the classifier call bound.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.Timeout) * time.Second
}

// RewriteTimeout returns the transform model call bound.
func (c *Config) RewriteTimeout() time.Duration {
	return time.Duration(c.Rewrite.Timeout) * time.Second
}

// InjectTimeout returns the injected command bound.
func (c *Config) InjectTimeout() time.Duration {
	return time.Duration(c.Inject.Timeout) * time.Second
}

// ResolveModel maps a short model alias to the provider model id.
// Unknown names are returned unchanged.
func (c *Config) ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if alias, ok := c.Model.Aliases[strings.ToLower(name)]; ok && alias != "" {
		return alias
	}
	return name
}
