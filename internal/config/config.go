package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервиса генерации историй.
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Настройки PostgreSQL
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"fable"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNECTIONS" default:"10"`

	// Настройки Redis (кэш динамических настроек генерации)
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SettingsTTL   time.Duration `envconfig:"SETTINGS_CACHE_TTL" default:"1m"`

	// Текстовые провайдеры
	AIAPIKey    string        `envconfig:"AI_API_KEY" default:""`
	AIBaseURL   string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AITimeout   time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	OllamaURL   string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaModel string        `envconfig:"OLLAMA_MODEL" default:"llama3.1"`

	// Провайдер изображений
	ImageAPIURL  string        `envconfig:"IMAGE_API_URL" default:"http://localhost:8188"`
	ImageTimeout time.Duration `envconfig:"IMAGE_API_TIMEOUT" default:"90s"`
	ImageRatio   string        `envconfig:"IMAGE_RATIO" default:"2:3"`

	// TTS (Amazon Polly)
	PollyRegion   string        `envconfig:"POLLY_REGION" default:"us-east-1"`
	PollyEngine   string        `envconfig:"POLLY_ENGINE" default:"neural"`
	PollyTimeout  time.Duration `envconfig:"POLLY_TIMEOUT" default:"30s"`
	TTSChunkLimit int           `envconfig:"TTS_CHUNK_LIMIT" default:"3000"`

	// Blob-хранилище: "fs" или "s3"
	BlobBackend       string `envconfig:"BLOB_BACKEND" default:"fs"`
	BlobSavePath      string `envconfig:"BLOB_SAVE_PATH" default:"/var/lib/fable/media"`
	BlobPublicBaseURL string `envconfig:"BLOB_PUBLIC_BASE_URL" default:"http://localhost:8080/media"`
	S3Bucket          string `envconfig:"S3_BUCKET" default:""`
	S3Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	S3PublicBaseURL   string `envconfig:"S3_PUBLIC_BASE_URL" default:""`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Лимиты фонового исполнителя
	MaxBackgroundTasks int `envconfig:"MAX_BACKGROUND_TASKS" default:"64"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Load загружает конфигурацию из переменных окружения.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	if cfg.BlobBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND=s3")
	}
	return &cfg, nil
}
