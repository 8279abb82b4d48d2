package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Qdrant     QdrantConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Scorer     ScorerConfig
	Sources    SourcesConfig
	Agent      AgentConfig
	Submit     SubmitConfig
	Telegram   TelegramConfig
	Storage    StorageConfig
	Worker     WorkerConfig
	LogLevel   string
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	MaxConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	EmbedModel string
}

type OpenRouterConfig struct {
	APIKey string
	Model  string
}

type ScorerConfig struct {
	Provider    string
	Temperature float32
}

type SourcesConfig struct {
	AdzunaAppID    string
	AdzunaAppKey   string
	AdzunaCountry  string
	AdzunaBaseURL  string
	HHEnable       bool
	HHBaseURL      string
	HHArea         string
	LinkedInEnable bool
	LinkedInURL    string
	RequestTimeout time.Duration
	RatePerSecond  float64
	MaxResults     int
}

type AgentConfig struct {
	Concurrency       int
	ProviderTimeout   time.Duration
	ClaimLease        time.Duration
	ScoreRetries      int
	SubmitRetries     int
	RetryInitialDelay time.Duration
	Schedule          string
	ScheduleAutoApply bool
}

type SubmitConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

type TelegramConfig struct {
	Token string
}

type StorageConfig struct {
	UploadPath  string
	MaxFileSize int64
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	StaleAfter   time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "job_agent"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("SEARCH_CACHE_TTL", "30m"),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", ""),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "job_agent_resumes"),
		},
		Gemini: GeminiConfig{
			APIKey:     getEnv("GEMINI_API_KEY", ""),
			Model:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			EmbedModel: getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey: getEnv("OPENROUTER_API_KEY", ""),
			Model:  getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		},
		Scorer: ScorerConfig{
			Provider:    strings.ToLower(getEnv("SCORER_PROVIDER", "gemini")),
			Temperature: float32(getEnvAsFloat("SCORER_TEMPERATURE", 0.2)),
		},
		Sources: SourcesConfig{
			AdzunaAppID:    getEnv("ADZUNA_APP_ID", ""),
			AdzunaAppKey:   getEnv("ADZUNA_APP_KEY", ""),
			AdzunaCountry:  getEnv("ADZUNA_COUNTRY", "gb"),
			AdzunaBaseURL:  getEnv("ADZUNA_BASE_URL", "https://api.adzuna.com/v1/api/jobs"),
			HHEnable:       getEnvAsBool("HH_ENABLED", true),
			HHBaseURL:      getEnv("HH_API_BASE_URL", "https://api.hh.ru"),
			HHArea:         getEnv("HH_AREA", ""),
			LinkedInEnable: getEnvAsBool("LINKEDIN_ENABLED", false),
			LinkedInURL:    getEnv("LINKEDIN_BASE_URL", "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"),
			RequestTimeout: getEnvAsDuration("SOURCE_REQUEST_TIMEOUT", "15s"),
			RatePerSecond:  getEnvAsFloat("SOURCE_RATE_PER_SECOND", 2),
			MaxResults:     getEnvAsInt("SOURCE_MAX_RESULTS", 50),
		},
		Agent: AgentConfig{
			Concurrency:       getEnvAsInt("AGENT_CONCURRENCY", 6),
			ProviderTimeout:   getEnvAsDuration("AGENT_PROVIDER_TIMEOUT", "20s"),
			ClaimLease:        getEnvAsDuration("AGENT_CLAIM_LEASE", "10m"),
			ScoreRetries:      getEnvAsInt("AGENT_SCORE_RETRIES", 2),
			SubmitRetries:     getEnvAsInt("AGENT_SUBMIT_RETRIES", 1),
			RetryInitialDelay: getEnvAsDuration("AGENT_RETRY_INITIAL_DELAY", "500ms"),
			Schedule:          getEnv("AGENT_SCHEDULE", ""),
			ScheduleAutoApply: getEnvAsBool("SCHEDULE_AUTO_APPLY", false),
		},
		Submit: SubmitConfig{
			WebhookURL: getEnv("SUBMIT_WEBHOOK_URL", ""),
			Timeout:    getEnvAsDuration("SUBMIT_TIMEOUT", "15s"),
		},
		Telegram: TelegramConfig{
			Token: getEnv("TELEGRAM_TOKEN", ""),
		},
		Storage: StorageConfig{
			UploadPath:  getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10485760),
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", "10s"),
			StaleAfter:   getEnvAsDuration("WORKER_STALE_AFTER", "1h"),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	switch c.Scorer.Provider {
	case "gemini", "openrouter":
	default:
		return fmt.Errorf("invalid scorer provider: %s", c.Scorer.Provider)
	}

	if c.Agent.Concurrency < 1 || c.Agent.Concurrency > 64 {
		return fmt.Errorf("agent concurrency must be between 1 and 64, got %d", c.Agent.Concurrency)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}

	if c.Agent.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}

	if c.Agent.ClaimLease < time.Minute {
		return fmt.Errorf("claim lease too small: %v", c.Agent.ClaimLease)
	}

	if c.Agent.ScoreRetries < 0 || c.Agent.SubmitRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}

	return nil
}

func (c *Config) GetDatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.MaxConns,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
