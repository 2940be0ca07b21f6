package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/file-toolbox/internal/infrastructure/resilience"
)

type Config struct {
	APIPort  string
	LogLevel string

	StoragePath string
	FFmpegPath  string
	MaxUploadMB int

	CORSAllowedOrigins    []string
	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int

	NATSURL            string
	NATSSubject        string
	ArtifactTTLMinutes int
	WorkerMetricsPort  string

	PostgresDSN          string
	SweepIntervalSeconds int
	SweepBatchSize       int

	ConverterBaseURL        string
	ConverterTimeoutSeconds int

	ProgressStartDelayMS int
	ProgressSteps        int
	ProgressSingleMS     int
	ProgressBatchMS      int
	DownloadDelayMS      int
	DownloadDir          string

	BreakerEnabled            bool
	BreakerMinRequests        int
	BreakerFailureRatio       float64
	BreakerOpenTimeoutSeconds int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8000"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		StoragePath: mustEnv("STORAGE_PATH", filepath.Join(os.TempDir(), "audio_converter")),
		FFmpegPath:  mustEnv("FFMPEG_PATH", "ffmpeg"),
		MaxUploadMB: mustEnvInt("MAX_UPLOAD_MB", 1024),

		CORSAllowedOrigins:    mustEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:        mustEnvInt("API_MAX_INFLIGHT", 0),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 50),

		NATSURL:            mustEnv("NATS_URL", ""),
		NATSSubject:        mustEnv("NATS_SUBJECT", "conversions.completed"),
		ArtifactTTLMinutes: mustEnvInt("ARTIFACT_TTL_MINUTES", 30),
		WorkerMetricsPort:  mustEnv("WORKER_METRICS_PORT", "9090"),

		PostgresDSN:          mustEnv("POSTGRES_DSN", ""),
		SweepIntervalSeconds: mustEnvInt("SWEEP_INTERVAL_SECONDS", 60),
		SweepBatchSize:       mustEnvInt("SWEEP_BATCH_SIZE", 100),

		ConverterBaseURL:        mustEnv("CONVERTER_BASE_URL", "http://localhost:8000"),
		ConverterTimeoutSeconds: mustEnvInt("CONVERTER_TIMEOUT_SECONDS", 300),

		ProgressStartDelayMS: mustEnvInt("PROGRESS_START_DELAY_MS", 500),
		ProgressSteps:        mustEnvInt("PROGRESS_STEPS", 20),
		ProgressSingleMS:     mustEnvInt("PROGRESS_SINGLE_MS", 3000),
		ProgressBatchMS:      mustEnvInt("PROGRESS_BATCH_MS", 5000),
		DownloadDelayMS:      mustEnvInt("DOWNLOAD_DELAY_MS", 1000),
		DownloadDir:          mustEnv("DOWNLOAD_DIR", "."),

		BreakerEnabled:            mustEnvBool("BREAKER_ENABLED", true),
		BreakerMinRequests:        mustEnvInt("BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio:       mustEnvFloat("BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenTimeoutSeconds: mustEnvInt("BREAKER_OPEN_TIMEOUT_SECONDS", 30),
	}
}

func (c Config) Resilience() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.BreakerEnabled = c.BreakerEnabled
	if c.BreakerMinRequests > 0 {
		cfg.BreakerMinRequests = uint32(c.BreakerMinRequests)
	}
	cfg.BreakerFailureRatio = c.BreakerFailureRatio
	cfg.BreakerOpenTimeout = time.Duration(c.BreakerOpenTimeoutSeconds) * time.Second
	return cfg
}

func (c Config) ArtifactTTL() time.Duration {
	return time.Duration(c.ArtifactTTLMinutes) * time.Minute
}

func (c Config) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c Config) ConverterTimeout() time.Duration {
	return time.Duration(c.ConverterTimeoutSeconds) * time.Second
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvList splits a comma separated value and drops empty items.
func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
