// Package config provides configuration management for the dearbot skill server.
// It layers a YAML file (with environment variable expansion) over built-in
// defaults and validates the result before the server starts.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the shared validator instance used for struct-tag validation.
var validate = validator.New()

// Config represents the complete server configuration.
// It combines HTTP server settings, completion backend configuration,
// bot behavior tunables, and logging preferences.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Bot     BotConfig     `yaml:"bot"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
// It defines timeouts, limits, and operational parameters.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8080)
	Port int `yaml:"port" validate:"gte=0,lte=65535"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 15s)
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response (default: 15s)
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" validate:"gte=0"`

	// ShutdownTimeout specifies how long to wait for the server to shutdown
	// gracefully before forcing termination (default: 30s). The callback
	// delivery worker drains within the same budget.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// LLMConfig holds completion-backend configuration.
type LLMConfig struct {
	// Provider specifies the completion provider (default: "openai")
	Provider string `yaml:"provider" validate:"required"`

	// Model is the name of the model to use (default: "gpt-4o-mini")
	Model string `yaml:"model" validate:"required"`

	// APIKey is the authentication key for the provider's API.
	// Use environment variables (e.g. ${OPENAI_API_KEY}) in the YAML file.
	// An empty key does not prevent startup: the skill endpoint answers
	// with a fixed configuration-error message instead.
	APIKey string `yaml:"api_key"`

	// MaxTokens caps the number of generated tokens per completion
	// (default: 200)
	MaxTokens int `yaml:"max_tokens" validate:"gt=0"`
}

// BotConfig holds the webhook responder's behavior tunables: the timing
// budgets for the two dispatch modes, the callback delivery worker sizing,
// and the user-facing copy for the fixed replies.
type BotConfig struct {
	// SyncTimeout is the hard wall-clock budget for a completion call in
	// synchronous mode. The chat platform closes the triggering exchange at
	// roughly five seconds, so this must stay strictly below that ceiling
	// (default: 4s).
	SyncTimeout time.Duration `yaml:"sync_timeout" validate:"gt=0"`

	// AsyncTimeout is the generation budget for the detached callback path,
	// which is free of the platform deadline (default: 25s).
	AsyncTimeout time.Duration `yaml:"async_timeout" validate:"gt=0"`

	// DeliveryTimeout bounds the outbound POST to the platform-supplied
	// callback URL (default: 10s).
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" validate:"gt=0"`

	// Workers is the number of goroutines draining the callback delivery
	// queue (default: 4).
	Workers int `yaml:"workers" validate:"gt=0"`

	// QueueSize bounds the callback delivery queue. When full, new callback
	// requests are answered with the inline fallback instead (default: 256).
	QueueSize int `yaml:"queue_size" validate:"gt=0"`

	// MaxLines is the number of non-empty lines kept from a completion
	// (default: 3).
	MaxLines int `yaml:"max_lines" validate:"gte=1,lte=10"`

	// Persona overrides the built-in persona instruction block when set.
	Persona string `yaml:"persona"`

	// Profile overrides the built-in profile block when set.
	Profile string `yaml:"profile"`

	// Messages holds the fixed user-facing replies.
	Messages MessagesConfig `yaml:"messages"`
}

// MessagesConfig holds the fixed, product-tunable reply strings. Every field
// has a non-empty default; empty values fall back to the defaults on load.
type MessagesConfig struct {
	// Repeat is returned when the utterance is empty or whitespace-only.
	Repeat string `yaml:"repeat"`

	// Fallback is returned when the completion call fails or times out.
	Fallback string `yaml:"fallback"`

	// MissingKey is returned when no API credential is configured.
	MissingKey string `yaml:"missing_key"`

	// Empty substitutes for a completion that formats down to nothing.
	Empty string `yaml:"empty"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format specifies log output format: json or text
	Format string `yaml:"format" validate:"oneof=json text"`
}

// platformCeiling is the chat platform's hard round-trip deadline on the
// triggering exchange. SyncTimeout must leave margin below it.
const platformCeiling = 5 * time.Second

// DefaultConfig returns the built-in configuration. The YAML file is decoded
// on top of it, so a minimal file only needs the values it wants to change.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			MaxTokens: 200,
		},
		Bot: BotConfig{
			SyncTimeout:     4 * time.Second,
			AsyncTimeout:    25 * time.Second,
			DeliveryTimeout: 10 * time.Second,
			Workers:         4,
			QueueSize:       256,
			MaxLines:        3,
			Messages: MessagesConfig{
				Repeat:     "응? 뭐라고 했어? 한 번만 더 말해줄래?",
				Fallback:   "미안, 지금 잠깐 생각이 안 나. 조금 있다가 다시 말 걸어줘!",
				MissingKey: "서버에 OPENAI_API_KEY가 설정되어 있지 않아. 환경 변수를 추가해줘!",
				Empty:      "음… 잠깐 멍했어. 다시 말해줘!",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// expandEnvVars resolves environment variable references within configuration
// strings. It supports standard ${VAR} substitution and the ${VAR:-default}
// default-value syntax, and recursively resolves nested references until no
// further substitution is possible.
func expandEnvVars(s string) string {
	result := os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			envKey := key[:i]
			defaultValue := key[i+2:]
			if val := os.Getenv(envKey); val != "" {
				return val
			}
			return defaultValue
		}
		return os.Getenv(key)
	})

	prev := ""
	for prev != result {
		prev = result
		result = os.Expand(result, os.Getenv)
	}

	return result
}

// Load loads configuration from an io.Reader. The YAML is decoded on top of
// DefaultConfig after environment variable expansion, then validated.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := DefaultConfig()

	dec := yaml.NewDecoder(strings.NewReader(expandEnvVars(string(data))))
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	config.applyMessageDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// LoadFile loads configuration from a YAML file
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// applyMessageDefaults restores the built-in copy for any reply string left
// empty by the YAML file. The outbound envelope's text field must never be
// empty, so empty overrides are treated as absent.
func (c *Config) applyMessageDefaults() {
	defaults := DefaultConfig().Bot.Messages
	if strings.TrimSpace(c.Bot.Messages.Repeat) == "" {
		c.Bot.Messages.Repeat = defaults.Repeat
	}
	if strings.TrimSpace(c.Bot.Messages.Fallback) == "" {
		c.Bot.Messages.Fallback = defaults.Fallback
	}
	if strings.TrimSpace(c.Bot.Messages.MissingKey) == "" {
		c.Bot.Messages.MissingKey = defaults.MissingKey
	}
	if strings.TrimSpace(c.Bot.Messages.Empty) == "" {
		c.Bot.Messages.Empty = defaults.Empty
	}
}

// Validate checks if the configuration is valid. Struct-tag constraints are
// checked first, then the cross-field timing invariant: the synchronous
// budget must leave margin below the platform's response deadline.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Bot.SyncTimeout >= platformCeiling {
		return fmt.Errorf("sync timeout %v must be below the platform ceiling %v", c.Bot.SyncTimeout, platformCeiling)
	}
	if c.Bot.AsyncTimeout < c.Bot.SyncTimeout {
		return fmt.Errorf("async timeout %v must not be shorter than sync timeout %v", c.Bot.AsyncTimeout, c.Bot.SyncTimeout)
	}

	return nil
}
