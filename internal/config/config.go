package config

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/m2tx/chat_relay/internal/completion"
	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Provider             string  `mapstructure:"provider"`
	APIBase              string  `mapstructure:"api_base"`
	APIKey               string  `mapstructure:"api_key"`
	CFAccessClientID     string  `mapstructure:"cf_access_client_id"`
	CFAccessClientSecret string  `mapstructure:"cf_access_client_secret"`
	Model                string  `mapstructure:"model"`
	MaxTokens            int     `mapstructure:"max_tokens"`
	HTTPPort             int     `mapstructure:"http_port"`
	MongoURI             string  `mapstructure:"mongodb_uri"`
	MongoDB              string  `mapstructure:"mongodb_db"`
	RateLimit            float64 `mapstructure:"rate_limit"`
	RateBurst            int     `mapstructure:"rate_burst"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"provider":                "PROVIDER",
	"api_base":                "OPENAI_API_BASE",
	"api_key":                 "OPENAI_API_KEY",
	"cf_access_client_id":     "CF_ACCESS_CLIENT_ID",
	"cf_access_client_secret": "CF_ACCESS_CLIENT_SECRET",
	"model":                   "MODEL",
	"max_tokens":              "MAX_TOKENS",
	"http_port":               "HTTP_PORT",
	"mongodb_uri":             "MONGODB_URI",
	"mongodb_db":              "MONGODB_DB",
	"rate_limit":              "RATE_LIMIT",
	"rate_burst":              "RATE_BURST",
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", completion.ProviderOpenAI)
	v.SetDefault("api_base", "")
	v.SetDefault("api_key", "")
	v.SetDefault("cf_access_client_id", "")
	v.SetDefault("cf_access_client_secret", "")
	v.SetDefault("model", completion.DefaultModel)
	v.SetDefault("max_tokens", completion.DefaultMaxTokens)
	v.SetDefault("http_port", 8080)
	v.SetDefault("mongodb_uri", "")
	v.SetDefault("mongodb_db", "chat_relay")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_burst", 5)

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// LoadDotEnv loads a .env file from the working directory if one exists.
// Variables already set in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: load .env: %v", err)
	}
}

// ReadFile merges the config file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	return nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Provider {
	case completion.ProviderOpenAI, completion.ProviderGemini:
	default:
		return fmt.Errorf("config: unsupported provider %q (want %q or %q)", c.Provider, completion.ProviderOpenAI, completion.ProviderGemini)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive, got %d", c.MaxTokens)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: http_port out of range: %d", c.HTTPPort)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate_limit must not be negative, got %v", c.RateLimit)
	}

	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// CompletionOptions returns the options for the configured completion provider.
func (c *Config) CompletionOptions() completion.Options {
	return completion.Options{
		BaseURL:   c.APIBase,
		APIKey:    c.APIKey,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Headers:   completion.CredentialHeaders(c.CFAccessClientID, c.CFAccessClientSecret),
	}
}
