package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Local asset handling
	UploadDir          string // Where multipart source assets land
	TempDir            string // Scratch space for cut segments
	MaxUploadSizeBytes int64  // Request body cap for multipart uploads

	// Fal (generation jobs + remote storage)
	FalAPIKey               string
	FalBaseURL              string // Queue API base, overridable for testing
	FalStorageURL           string // Storage gateway base, overridable for testing
	FalModel                string // Wan 2.2 animate/move by default
	UploadThresholdBytes    int64  // At or above: direct-to-storage upload; below: relay path
	FalPollInterval         time.Duration
	FalPollTimeout          time.Duration
	FalMaxTransportFailures int

	// Gemini (video analysis + product compositing)
	GeminiKey      string
	AnalysisModel  string
	CompositeModel string

	// OpenAI (optional prompt enhancement)
	OpenAIEnabled bool
	OpenAIKey     string

	// Veo (alternative generator — legacy, kept behind a flag)
	VeoEnabled bool
	VeoModel   string

	// Worker
	MaxConcurrentJobs  int
	MaxConcurrentClips int // Clips in flight per batch; 1 = strictly sequential
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),

		UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
		TempDir:            getEnv("TEMP_DIR", "/tmp/wanimate"),
		MaxUploadSizeBytes: getEnvInt64("MAX_UPLOAD_SIZE_BYTES", 500*1024*1024),

		FalAPIKey:               getEnv("FAL_API_KEY", ""),
		FalBaseURL:              getEnv("FAL_BASE_URL", "https://queue.fal.run"),
		FalStorageURL:           getEnv("FAL_STORAGE_URL", "https://rest.alpha.fal.ai"),
		FalModel:                getEnv("FAL_MODEL", "fal-ai/wan/v2.2-14b/animate/move"),
		UploadThresholdBytes:    getEnvInt64("UPLOAD_THRESHOLD_BYTES", 90*1024*1024),
		FalPollInterval:         getEnvDuration("FAL_POLL_INTERVAL", 3*time.Second),
		FalPollTimeout:          getEnvDuration("FAL_POLL_TIMEOUT", 10*time.Minute),
		FalMaxTransportFailures: getEnvInt("FAL_MAX_TRANSPORT_FAILURES", 5),

		GeminiKey:      getEnv("GEMINI_API_KEY", ""),
		AnalysisModel:  getEnv("GEMINI_ANALYSIS_MODEL", "gemini-2.5-flash"),
		CompositeModel: getEnv("GEMINI_COMPOSITE_MODEL", "gemini-3-pro-image-preview"),

		OpenAIEnabled: getEnvBool("OPENAI_ENABLED", false),
		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),

		VeoEnabled: getEnvBool("VEO_ENABLED", false),
		VeoModel:   getEnv("VEO_MODEL", "veo-3.1-generate-preview"),

		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 2),
		MaxConcurrentClips: getEnvInt("MAX_CONCURRENT_CLIPS", 1),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.FalAPIKey == "" {
		return nil, fmt.Errorf("FAL_API_KEY is required")
	}

	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.OpenAIEnabled && cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required when OPENAI_ENABLED=true")
	}

	if cfg.UploadThresholdBytes <= 0 {
		return nil, fmt.Errorf("UPLOAD_THRESHOLD_BYTES must be positive")
	}

	if cfg.MaxConcurrentClips < 1 {
		cfg.MaxConcurrentClips = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
