package common

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Render   RenderConfig
	Watch    WatchConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	CORSOrigins    []string
	MaxUploadBytes int64
}

// StorageConfig points at the object store bucket.
type StorageConfig struct {
	BucketURL     string // gocloud URL: file:///..., mem://, s3://..., gs://...
	PublicBaseURL string // prefix joined with the object key to form fileUrl
}

// LLMConfig holds extraction-provider configuration
type LLMConfig struct {
	Provider      string // openai | gemini | stub
	Model         string
	APIKey        string
	BaseURL       string
	Temperature   float32
	Timeout       time.Duration
	MaxImageDim   int
	HEICConverter string // heif-convert | magick | sips; empty sends HEIC as uploaded
	RetryAttempts uint
	RetryDelay    time.Duration
}

// RenderConfig locates the external document-render service.
type RenderConfig struct {
	BaseURL string
	Timeout time.Duration
}

// WatchConfig controls the watch-folder intake and its worker pool.
type WatchConfig struct {
	Root      string
	Workers   int
	QueueSize int
	Debounce  time.Duration
}

type LogConfig struct {
	Level  string
	Format string // text | json
}

// LoadDotEnv loads a .env file into the process environment when present.
// Variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8081"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":8080"),
			CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"*"}),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 20<<20),
		},
		Storage: StorageConfig{
			BucketURL:     getEnv("STORAGE_BUCKET_URL", "file:///tmp/shift-reports/uploads?create_dir=true"),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:8081/files"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:         getEnv("LLM_MODEL", ""),
			APIKey:        getEnv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:       getEnv("LLM_BASE_URL", ""),
			Temperature:   getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			MaxImageDim:   getEnvAsInt("LLM_MAX_IMAGE_DIM", 2048),
			HEICConverter: getEnv("HEIC_CONVERTER", ""),
			RetryAttempts: uint(getEnvAsInt("EXTRACT_RETRY_ATTEMPTS", 3)),
			RetryDelay:    getEnvAsDuration("EXTRACT_RETRY_DELAY", 2*time.Second),
		},
		Render: RenderConfig{
			BaseURL: getEnv("RENDER_BASE_URL", ""),
			Timeout: getEnvAsDuration("RENDER_TIMEOUT", 30*time.Second),
		},
		Watch: WatchConfig{
			Root:      getEnv("WATCH_ROOT", ""),
			Workers:   getEnvAsInt("WATCH_WORKERS", 4),
			QueueSize: getEnvAsInt("WATCH_QUEUE_SIZE", 256),
			Debounce:  getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError(CodeConfig, "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	if c.Storage.BucketURL == "" {
		return NewAppError(CodeConfig, "STORAGE_BUCKET_URL is required", ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
		if c.LLM.APIKey == "" {
			return NewAppError(CodeConfig, "LLM_API_KEY is required for provider "+c.LLM.Provider, ErrInvalidInput)
		}
	case "stub":
	default:
		return NewAppError(CodeConfig, "LLM_PROVIDER must be openai, gemini or stub", ErrInvalidInput)
	}
	if c.LLM.RetryAttempts == 0 {
		return NewAppError(CodeConfig, "EXTRACT_RETRY_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR or GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return NewAppError(CodeConfig, "MAX_UPLOAD_BYTES must be positive", ErrInvalidInput)
	}
	return nil
}

// NewLogger builds the process logger from LogConfig.
func NewLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
