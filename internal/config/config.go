// Package config loads learnbot configuration.
//
// Precedence, highest first: LEARNBOT_* environment variables, the YAML
// file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variable names.
const EnvPrefix = "LEARNBOT_"

const maxConfigFileSize = 1024 * 1024 // 1MB

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Bot        BotConfig        `koanf:"bot"`
	Storage    StorageConfig    `koanf:"storage"`
	Annotation AnnotationConfig `koanf:"annotation"`
	Spelling   SpellingConfig   `koanf:"spelling"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
	// TrustProxy makes the rate limiter key on X-Forwarded-For. Only set
	// it when a reverse proxy overwrites that header.
	TrustProxy bool `koanf:"trust_proxy"`
	// URL is where the CLI and MCP adapter reach the server.
	URL string `koanf:"url"`
	// APIKey, when set, is required as a bearer token on every route
	// except /health and /metrics.
	APIKey string `koanf:"api_key"`
}

type BotConfig struct {
	Name            string   `koanf:"name"`
	ReadOnly        bool     `koanf:"read_only"`
	RecentMinutes   int      `koanf:"recent_minutes"`
	LogicAdapters   []string `koanf:"logic_adapters"`
	Preprocessors   []string `koanf:"preprocessors"`
	DefaultResponse string   `koanf:"default_response"`
	FloorConfidence float64  `koanf:"floor_confidence"`
	MinOverlap      float64  `koanf:"min_overlap"`
}

type StorageConfig struct {
	Driver        string        `koanf:"driver"`
	Path          string        `koanf:"path"`
	MongoURI      string        `koanf:"mongo_uri"`
	MongoDatabase string        `koanf:"mongo_database"`
	MaxRetries    int           `koanf:"max_retries"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	PageSize      int           `koanf:"page_size"`
}

type AnnotationConfig struct {
	URL      string        `koanf:"url"`
	Language string        `koanf:"language"`
	Timeout  time.Duration `koanf:"timeout"`
}

type SpellingConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// EmbeddingConfig selects where statement vectors come from. With
// provider "annotation" the annotation service's vectors are used as is.
type EmbeddingConfig struct {
	Provider     string        `koanf:"provider"`
	Model        string        `koanf:"model"`
	OllamaURL    string        `koanf:"ollama_url"`
	OpenAIAPIKey string        `koanf:"openai_api_key"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryDelay   time.Duration `koanf:"retry_delay"`
	Cache        bool          `koanf:"cache"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

const defaults = `
server:
  http_port: 8741
  shutdown_timeout: 10s
  rate_limit: 50
  rate_burst: 100
  trust_proxy: false
  url: http://localhost:8741
bot:
  name: learnbot
  read_only: false
  recent_minutes: 1
  logic_adapters: [exact_match, best_match, tag_match, fallback]
  preprocessors: [clean_whitespace]
  default_response: "I am sorry, but I do not understand."
  floor_confidence: 0.1
  min_overlap: 0
storage:
  driver: sqlite
  path: /data/learnbot.db
  mongo_uri: mongodb://localhost:27017
  mongo_database: learnbot
  max_retries: 5
  retry_delay: 10ms
  page_size: 1000
annotation:
  url: http://localhost:8750
  language: en
  timeout: 10s
spelling:
  enabled: false
  url: http://localhost:8751
  timeout: 5s
embedding:
  provider: annotation
  model: nomic-embed-text
  ollama_url: http://localhost:11434
  max_retries: 3
  retry_delay: 500ms
  cache: true
logging:
  level: info
  format: json
`

// Load reads defaults, then path (if non-empty and present), then the
// environment. LEARNBOT_STORAGE_MAX_RETRIES maps to storage.max_retries.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// envKey maps LEARNBOT_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// listKeys are split on commas when read from the environment.
var listKeys = []string{"bot.logic_adapters", "bot.preprocessors"}

func envValue(name, value string) (string, any) {
	key := envKey(name)
	if !slices.Contains(listKeys, key) {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is larger than %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

var (
	drivers            = []string{"sqlite", "mongodb"}
	embeddingProviders = []string{"annotation", "ollama", "openai"}
	logFormats         = []string{"json", "console"}
)

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got %f", c.Server.RateLimit)
	}
	if c.Bot.Name == "" {
		return fmt.Errorf("bot.name must not be empty")
	}
	if len(c.Bot.LogicAdapters) == 0 {
		return fmt.Errorf("bot.logic_adapters must list at least one adapter")
	}
	if c.Bot.FloorConfidence < 0 || c.Bot.FloorConfidence > 1 {
		return fmt.Errorf("bot.floor_confidence must be between 0 and 1, got %f", c.Bot.FloorConfidence)
	}
	if c.Bot.MinOverlap < 0 || c.Bot.MinOverlap > 1 {
		return fmt.Errorf("bot.min_overlap must be between 0 and 1, got %f", c.Bot.MinOverlap)
	}
	if !slices.Contains(drivers, c.Storage.Driver) {
		return fmt.Errorf("storage.driver must be one of %v, got %q", drivers, c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Storage.Driver == "mongodb" && c.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri must not be empty")
	}
	if c.Storage.MaxRetries < 0 || c.Storage.MaxRetries > 10 {
		return fmt.Errorf("storage.max_retries must be between 0 and 10, got %d", c.Storage.MaxRetries)
	}
	if c.Annotation.URL == "" {
		return fmt.Errorf("annotation.url must not be empty")
	}
	if c.Spelling.Enabled && c.Spelling.URL == "" {
		return fmt.Errorf("spelling.url must not be empty when spelling is enabled")
	}
	if !slices.Contains(embeddingProviders, c.Embedding.Provider) {
		return fmt.Errorf("embedding.provider must be one of %v, got %q", embeddingProviders, c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.OpenAIAPIKey == "" {
		return fmt.Errorf("embedding.openai_api_key is required for the openai provider")
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of %v, got %q", logFormats, c.Logging.Format)
	}
	return nil
}

// RecentWindow converts bot.recent_minutes; zero or less disables it.
func (c *Config) RecentWindow() time.Duration {
	if c.Bot.RecentMinutes <= 0 {
		return -1
	}
	return time.Duration(c.Bot.RecentMinutes) * time.Minute
}
