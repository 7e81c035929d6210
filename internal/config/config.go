// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Generator backends.
const (
	GeneratorTemplate = "template"
	GeneratorGemini   = "gemini"
	GeneratorOpenAI   = "openai"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	LogLevel       string
	Timezone       string

	Store           StoreConfig
	SessionTTL      time.Duration
	SessionSweep    time.Duration
	Timeout         TimeoutConfig
	Generator       GeneratorConfig
	WhatsApp        WhatsAppConfig
	Archive         ArchiveConfig
	Policy          PolicyConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
	GRPCHealthPort  string

	// OperatorFeedToken authenticates operator consoles on /operators/feed.
	// Empty disables the feed.
	OperatorFeedToken string
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Backend     string
	DBPath      string
	DatabaseURL string
	CacheSize   int
}

// TimeoutConfig bounds calls to slow collaborators.
type TimeoutConfig struct {
	Generator   time.Duration
	Notifier    time.Duration
	HealthCheck time.Duration
}

// GeneratorConfig selects the response generator backend.
type GeneratorConfig struct {
	Backend       string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

// WhatsAppConfig points at the WhatsApp bot HTTP API.
type WhatsAppConfig struct {
	BotURL        string
	LawyerNumbers []string
}

// ArchiveConfig configures the S3 lead archive. It is disabled unless all
// required fields are set.
type ArchiveConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// PolicyConfig configures lead qualification.
type PolicyConfig struct {
	Path            string
	NotifyThreshold int
}

// RateLimitConfig bounds conversation requests per client IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// ConversationLogConfig controls NDJSON transcript logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	frontendURL := getEnv("FRONTEND_URL", "")
	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		FrontendURL:    frontendURL,
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", defaultOrigins(frontendURL)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Timezone:       getEnv("TIMEZONE", "America/Sao_Paulo"),
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
			DBPath:      getEnv("DB_PATH", "./data/leadflow.db"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			CacheSize:   getEnvInt("STORE_CACHE_SIZE", 1024),
		},
		SessionTTL:   getEnvDuration("SESSION_TTL", 24*time.Hour),
		SessionSweep: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		Timeout: TimeoutConfig{
			Generator:   getEnvDuration("GENERATOR_TIMEOUT", 15*time.Second),
			Notifier:    getEnvDuration("NOTIFIER_TIMEOUT", 15*time.Second),
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		},
		Generator: GeneratorConfig{
			Backend:       strings.ToLower(getEnv("GENERATOR_BACKEND", GeneratorTemplate)),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		WhatsApp: WhatsAppConfig{
			BotURL:        getEnv("WHATSAPP_BOT_URL", ""),
			LawyerNumbers: getEnvList("WHATSAPP_LAWYER_NUMBERS", nil),
		},
		Archive: ArchiveConfig{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "leads"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
		},
		Policy: PolicyConfig{
			Path:            getEnv("LEAD_POLICY_PATH", ""),
			NotifyThreshold: getEnvInt("LEAD_NOTIFY_THRESHOLD", 70),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
		GRPCHealthPort:    getEnv("GRPC_HEALTH_PORT", ""),
		OperatorFeedToken: getEnv("OPERATOR_FEED_TOKEN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Generator.Backend {
	case GeneratorTemplate:
	case GeneratorGemini:
		if c.Generator.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini generator")
		}
	case GeneratorOpenAI:
		if c.Generator.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai generator")
		}
	default:
		return fmt.Errorf("unknown GENERATOR_BACKEND %q", c.Generator.Backend)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Timeout.Generator <= 0 || c.Timeout.Notifier <= 0 || c.Timeout.HealthCheck <= 0 {
		return fmt.Errorf("timeouts must be > 0")
	}
	if c.Policy.NotifyThreshold < 0 || c.Policy.NotifyThreshold > 100 {
		return fmt.Errorf("LEAD_NOTIFY_THRESHOLD must be between 0 and 100")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Enabled {
		if c.ConversationLog.Dir == "" {
			return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
		}
		if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
			return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func defaultOrigins(frontendURL string) []string {
	if frontendURL == "" {
		return []string{"*"}
	}
	return []string{frontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
