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
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Qdrant    QdrantConfig
	Retrieval RetrievalConfig
	LLM       LLMConfig
	Gemini    BackendConfig
	Anthropic BackendConfig
	Groq      GroqConfig
	Storage   StorageConfig
	Worker    WorkerConfig
	Redis     RedisConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type LogConfig struct {
	JSON  bool
	Debug bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	VectorSize uint64
}

type RetrievalConfig struct {
	TopK            int
	MinScore        float64
	ContextMaxChars int
	EmbeddingModel  string
}

// LLMConfig drives the fallback engine shared by every backend.
type LLMConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	RateLimitCooldown time.Duration
	PreferredBackend  string
}

// BackendConfig describes one completion backend. A backend is enabled iff APIKey is set.
type BackendConfig struct {
	APIKey            string
	Model             string
	Priority          int
	RequestsPerMinute int
}

type GroqConfig struct {
	BackendConfig
	BaseURL string
}

type StorageConfig struct {
	UploadPath  string
	MaxFileSize int64
}

type WorkerConfig struct {
	Concurrency         int
	RetryMaxAttempts    int
	RetryInitialDelay   time.Duration
	EvaluationTimeout   time.Duration
	PendingPollInterval time.Duration
}

// RedisConfig selects the asynq queue when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("ENV", "development"),
		},
		Log: LogConfig{
			JSON:  getEnvAsBool("LOG_JSON", false),
			Debug: getEnvAsBool("LOG_DEBUG", false),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ai_cv_evaluator"),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", "http://localhost:6333"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "cv_evaluator_docs"),
			VectorSize: uint64(getEnvAsInt("QDRANT_VECTOR_SIZE", 768)),
		},
		Retrieval: RetrievalConfig{
			TopK:            getEnvAsInt("RETRIEVAL_TOP_K", 5),
			MinScore:        getEnvAsFloat("RETRIEVAL_MIN_SCORE", 0.1),
			ContextMaxChars: getEnvAsInt("CONTEXT_MAX_CHARS", 2000),
			EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		},
		LLM: LLMConfig{
			MaxRetries:        getEnvAsInt("LLM_MAX_RETRIES", 3),
			BaseDelay:         getEnvAsDuration("LLM_BASE_DELAY", "1s"),
			BackoffMultiplier: getEnvAsFloat("LLM_BACKOFF_MULTIPLIER", 2),
			RateLimitCooldown: getEnvAsDuration("LLM_RATE_LIMIT_COOLDOWN", "60s"),
			PreferredBackend:  getEnv("LLM_PREFERRED_BACKEND", ""),
		},
		Gemini: BackendConfig{
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			Model:             getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Priority:          getEnvAsInt("GEMINI_PRIORITY", 1),
			RequestsPerMinute: getEnvAsInt("GEMINI_RPM", 10),
		},
		Anthropic: BackendConfig{
			APIKey:            getEnv("ANTHROPIC_API_KEY", ""),
			Model:             getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			Priority:          getEnvAsInt("ANTHROPIC_PRIORITY", 2),
			RequestsPerMinute: getEnvAsInt("ANTHROPIC_RPM", 50),
		},
		Groq: GroqConfig{
			BackendConfig: BackendConfig{
				APIKey:            getEnv("GROQ_API_KEY", ""),
				Model:             getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
				Priority:          getEnvAsInt("GROQ_PRIORITY", 3),
				RequestsPerMinute: getEnvAsInt("GROQ_RPM", 30),
			},
			BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		},
		Storage: StorageConfig{
			UploadPath:  getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10485760),
		},
		Worker: WorkerConfig{
			Concurrency:         getEnvAsInt("WORKER_CONCURRENCY", 3),
			RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			RetryInitialDelay:   getEnvAsDuration("RETRY_INITIAL_DELAY", "2s"),
			EvaluationTimeout:   getEnvAsDuration("EVALUATION_TIMEOUT", "5m"),
			PendingPollInterval: getEnvAsDuration("PENDING_POLL_INTERVAL", "10s"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// Enabled reports whether the backend has credentials.
func (b BackendConfig) Enabled() bool {
	return strings.TrimSpace(b.APIKey) != ""
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
