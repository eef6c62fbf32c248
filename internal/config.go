package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/reverie/internal/assistant"
	"github.com/starford/reverie/internal/chat"
	"github.com/starford/reverie/internal/embedding"
	"github.com/starford/reverie/internal/journal"
	"github.com/starford/reverie/internal/search"
	"github.com/starford/reverie/internal/store"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Database  DatabaseConfig    `yaml:"database"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Assistant AssistantConfig   `yaml:"assistant"`
	Search    SearchConfig      `yaml:"search"`
	Chat      ChatConfig        `yaml:"chat"`
	Images    ImagesConfig      `yaml:"images"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"app", &c.App},
		{"database", &c.Database},
		{"embedding", &c.Embedding},
		{"assistant", &c.Assistant},
		{"search", &c.Search},
		{"chat", &c.Chat},
		{"images", &c.Images},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel       slog.Level    `yaml:"log_level"`
	HTTP           HTTPConfig    `yaml:"http"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// WatchConfig re-applies log level and search tuning when the config
	// file changes.
	WatchConfig bool `yaml:"watch_config"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RequestTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DatabaseConfig selects the index database.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(store.DriverSQLite, store.DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
	)
}

// EmbeddingConfig configures the embedding service client.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	// RateLimit is in requests per second; 0 disables limiting.
	RateLimit      float64 `yaml:"rate_limit"`
	Concurrency    int     `yaml:"concurrency"`
	EntryEmbedding bool    `yaml:"entry_embedding"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(embedding.ProviderOllama, embedding.ProviderOpenAI)),
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.APIKey, validation.When(c.Provider == embedding.ProviderOpenAI, validation.Required)),
		validation.Field(&c.Dimensions, validation.Required, validation.Min(1), validation.Max(16000)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Concurrency, validation.Min(0), validation.Max(64)),
	)
}

// Client returns the embedding client configuration.
func (c *EmbeddingConfig) Client() embedding.Config {
	return embedding.Config{
		Provider:   c.Provider,
		BaseURL:    c.BaseURL,
		Model:      c.Model,
		APIKey:     c.APIKey,
		Dimensions: c.Dimensions,
		Timeout:    c.Timeout,
		RateLimit:  c.RateLimit,
	}
}

// AssistantConfig configures the generation collaborators. When disabled,
// chat and reflective prompts are unavailable and entries get no emotions
// or images.
type AssistantConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	ImageModel string        `yaml:"image_model"`
	Timeout    time.Duration `yaml:"timeout"`
	Emotions   bool          `yaml:"emotions"`
	Images     bool          `yaml:"images"`
}

// Validate validates the assistant configuration.
func (c *AssistantConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIKey, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Client returns the generation client configuration.
func (c *AssistantConfig) Client() assistant.Config {
	return assistant.Config{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Model:      c.Model,
		ImageModel: c.ImageModel,
		Timeout:    c.Timeout,
	}
}

// SearchConfig tunes hybrid retrieval. It is re-applied on config reload.
type SearchConfig struct {
	KeywordScore   float64 `yaml:"keyword_score"`
	KeywordLimit   int     `yaml:"keyword_limit"`
	SemanticLimit  int     `yaml:"semantic_limit"`
	DefaultK       int     `yaml:"default_k"`
	MaxK           int     `yaml:"max_k"`
	SemanticSource string  `yaml:"semantic_source"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.KeywordScore, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.KeywordLimit, validation.Min(0)),
		validation.Field(&c.SemanticLimit, validation.Min(0)),
		validation.Field(&c.DefaultK, validation.Min(0)),
		validation.Field(&c.MaxK, validation.Min(0)),
		validation.Field(&c.SemanticSource, validation.In(string(store.SourceChunks), string(store.SourceEntries))),
	)
}

// Options converts the section to planner options.
func (c *SearchConfig) Options() search.Options {
	return search.Options{
		KeywordScore:  c.KeywordScore,
		KeywordLimit:  c.KeywordLimit,
		SemanticLimit: c.SemanticLimit,
		DefaultK:      c.DefaultK,
		MaxK:          c.MaxK,
		Source:        store.Source(c.SemanticSource),
	}
}

// ChatConfig tunes context assembly.
type ChatConfig struct {
	RetrievalK   int    `yaml:"retrieval_k"`
	HistorySize  int    `yaml:"history_size"`
	ExcerptRunes int    `yaml:"excerpt_runes"`
	DefaultMode  string `yaml:"default_mode"`
}

// Validate validates the chat configuration.
func (c *ChatConfig) Validate() error {
	modes := make([]any, len(assistant.Modes))
	for i, m := range assistant.Modes {
		modes[i] = m
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.RetrievalK, validation.Min(0), validation.Max(search.DefaultOptions().MaxK)),
		validation.Field(&c.HistorySize, validation.Min(0), validation.Max(100)),
		validation.Field(&c.ExcerptRunes, validation.Min(0)),
		validation.Field(&c.DefaultMode, validation.In(modes...)),
	)
}

// Options converts the section to assembler options.
func (c *ChatConfig) Options() chat.Options {
	return chat.Options{
		RetrievalK:   c.RetrievalK,
		HistorySize:  c.HistorySize,
		ExcerptRunes: c.ExcerptRunes,
		DefaultMode:  c.DefaultMode,
	}
}

// ImagesConfig holds the directory for generated entry images.
type ImagesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the images configuration.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	def := search.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			RequestTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			DSN:    "./reverie.db",
		},
		Embedding: EmbeddingConfig{
			Provider:    embedding.ProviderOllama,
			Dimensions:  embedding.DefaultDimensions,
			Timeout:     embedding.DefaultTimeout,
			Concurrency: journal.DefaultConcurrency,
		},
		Assistant: AssistantConfig{
			Timeout: assistant.DefaultTimeout,
		},
		Search: SearchConfig{
			KeywordScore:   def.KeywordScore,
			KeywordLimit:   def.KeywordLimit,
			SemanticLimit:  def.SemanticLimit,
			DefaultK:       def.DefaultK,
			MaxK:           def.MaxK,
			SemanticSource: string(def.Source),
		},
		Chat: ChatConfig{
			RetrievalK:   chat.DefaultRetrievalK,
			HistorySize:  chat.DefaultHistorySize,
			ExcerptRunes: chat.DefaultExcerptRunes,
			DefaultMode:  assistant.ModeSupportive,
		},
		Images: ImagesConfig{
			Path: "./images",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
