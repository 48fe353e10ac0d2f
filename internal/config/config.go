package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Supported AI_PROVIDER values.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderArk       = "ark"
)

// Config aggregates every setting the service reads. Loaded once at startup
// and shared read-only by all requests.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Limits  LimitsConfig
	Session SessionConfig
	Prompt  PromptConfig
	Admin   AdminConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	limits, err := loadLimitsConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Limits:  limits,
		Session: session,
		Prompt:  loadPromptConfig(),
		Admin:   loadAdminConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AppName        string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	addr := port
	if !strings.Contains(port, ":") {
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		// Allow both ":8080" and a bare port number.
		addr = ":" + port
	}

	origins := strings.Split(getEnvOrDefault("ALLOWED_ORIGINS", "*"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return ServerConfig{
		Addr:           addr,
		AppName:        getEnvOrDefault("APP_NAME", "Hooma AI Chatbot"),
		AllowedOrigins: origins,
	}, nil
}

// AIConfig selects and parameterizes the upstream provider.
type AIConfig struct {
	Provider string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	ArkAPIKey  string
	ArkModel   string
	ArkBaseURL string
	ArkRegion  string

	MaxTokens    int
	Temperature  float32
	Timeout      time.Duration
	HistoryLimit int
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderOpenAI))
	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("unknown AI_PROVIDER %q", provider)
	}

	maxTokens := 1000
	if override, err := parseOptionalIntEnv("AI_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		maxTokens = *override
	}

	temperature := float32(0.7)
	if override, err := parseOptionalFloat32Env("AI_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	timeoutSeconds := 10
	if override, err := parseOptionalIntEnv("AI_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		historyLimit = *override
	}

	return AIConfig{
		Provider:        provider,
		OpenAIAPIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:     getEnvOrDefault("OPENAI_MODEL", "gpt-4-turbo-preview"),
		OpenAIBaseURL:   strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		AnthropicAPIKey: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:  getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-sonnet-20240229"),
		ArkAPIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkModel:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		MaxTokens:       maxTokens,
		Temperature:     temperature,
		Timeout:         time.Duration(timeoutSeconds) * time.Second,
		HistoryLimit:    historyLimit,
	}, nil
}

// Enabled reports whether the selected provider has the credentials it needs.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ProviderAnthropic:
		return c.AnthropicAPIKey != ""
	case ProviderArk:
		return c.ArkAPIKey != "" && c.ArkModel != ""
	default:
		return false
	}
}

// HealthLabel is the provider identifier exposed by the health probe.
func (c AIConfig) HealthLabel() string {
	if c.Enabled() {
		return c.Provider + "_configured"
	}
	return c.Provider + "_no_api_key"
}

// NewChatModel instantiates the configured upstream chat model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("missing credentials for provider %q", c.Provider)
	}

	maxTokens := c.MaxTokens
	temperature := c.Temperature

	switch c.Provider {
	case ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.OpenAIAPIKey,
			Model:       c.OpenAIModel,
			BaseURL:     c.OpenAIBaseURL,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	case ProviderAnthropic:
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:      c.AnthropicAPIKey,
			Model:       c.AnthropicModel,
			MaxTokens:   maxTokens,
			Temperature: &temperature,
		})
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.ArkBaseURL,
			Region:      c.ArkRegion,
			APIKey:      c.ArkAPIKey,
			Model:       c.ArkModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

// LimitsConfig bounds inbound traffic.
type LimitsConfig struct {
	PerMinute        int
	PerHour          int
	MaxMessageLength int
}

func loadLimitsConfig() (LimitsConfig, error) {
	perMinute := 30
	if override, err := parseOptionalIntEnv("RATE_LIMIT_PER_MINUTE"); err != nil {
		return LimitsConfig{}, err
	} else if override != nil && *override > 0 {
		perMinute = *override
	}

	perHour := 500
	if override, err := parseOptionalIntEnv("RATE_LIMIT_PER_HOUR"); err != nil {
		return LimitsConfig{}, err
	} else if override != nil && *override > 0 {
		perHour = *override
	}

	maxLen := 2000
	if override, err := parseOptionalIntEnv("MAX_MESSAGE_LENGTH"); err != nil {
		return LimitsConfig{}, err
	} else if override != nil && *override > 0 {
		maxLen = *override
	}

	return LimitsConfig{PerMinute: perMinute, PerHour: perHour, MaxMessageLength: maxLen}, nil
}

// SessionConfig controls session expiry.
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	idleMinutes := 30
	if override, err := parseOptionalIntEnv("SESSION_IDLE_TIMEOUT_MINUTES"); err != nil {
		return SessionConfig{}, err
	} else if override != nil && *override > 0 {
		idleMinutes = *override
	}

	sweepMinutes := 5
	if override, err := parseOptionalIntEnv("SESSION_SWEEP_INTERVAL_MINUTES"); err != nil {
		return SessionConfig{}, err
	} else if override != nil && *override > 0 {
		sweepMinutes = *override
	}

	return SessionConfig{
		IdleTimeout:   time.Duration(idleMinutes) * time.Minute,
		SweepInterval: time.Duration(sweepMinutes) * time.Minute,
	}, nil
}

// PromptConfig points at the static instruction and knowledge texts.
type PromptConfig struct {
	SystemPromptFile string
	KnowledgeFile    string
}

func loadPromptConfig() PromptConfig {
	return PromptConfig{
		SystemPromptFile: getEnvOrDefault("SYSTEM_PROMPT_FILE", "config/system_prompt.txt"),
		KnowledgeFile:    getEnvOrDefault("KNOWLEDGE_FILE", "config/knowledge_base.txt"),
	}
}

// LoadTexts reads both prompt files. A missing file only logs a warning and
// yields an empty string, so the service still starts.
func (c PromptConfig) LoadTexts() (instructions, knowledge string) {
	return readTextFile(c.SystemPromptFile), readTextFile(c.KnowledgeFile)
}

func readTextFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("warning: could not read %s: %v", path, err)
		return ""
	}
	return string(data)
}

// AdminConfig guards the operator statistics endpoints.
type AdminConfig struct {
	Username string
	Password string
}

func loadAdminConfig() AdminConfig {
	return AdminConfig{
		Username: strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}
}

// Enabled reports whether the admin surface should be mounted.
func (c AdminConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
