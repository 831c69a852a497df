package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	DatabaseURL     string
	CORSAllowOrigin []string

	ObjectStoreType string
	LocalStoreDir   string
	PublicBaseURL   string
	AWSRegion       string
	S3Bucket        string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	SignedURLTTL    time.Duration

	LLMProvider     string
	LLMModel        string
	OpenAIAPIKey    string
	AnalyzerTimeout time.Duration

	AnalysisQueue     string
	AnalysisWorkers   int
	AnalysisQueueSize int
	BatchConcurrency  int
	SQSQueueURL       string
	RedisURL          string
	RedisQueueKey     string
	SweepInterval     time.Duration

	JWTSecret          string
	TracingEnabled     bool
	TracingEndpoint    string
	LogFile            string
	RateLimitRPS       float64
	RateLimitBurst     int
	PollRateLimitRPS   float64
	PollRateLimitBurst int
}

// Load reads configuration from environment variables and an optional config.yaml.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("config file ignored: %v", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "dev")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:5173")
	v.SetDefault("OBJECT_STORE", "local")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("MINIO_BUCKET", "recordings")
	v.SetDefault("SIGNED_URL_TTL_SECONDS", 3600)
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("ANALYZER_TIMEOUT_SECONDS", 120)
	v.SetDefault("ANALYSIS_QUEUE", "memory")
	v.SetDefault("ANALYSIS_WORKERS", 4)
	v.SetDefault("ANALYSIS_QUEUE_SIZE", 256)
	v.SetDefault("ANALYSIS_BATCH_CONCURRENCY", 3)
	v.SetDefault("REDIS_QUEUE_KEY", "segment-analysis-jobs")
	v.SetDefault("ANALYSIS_SWEEP_INTERVAL", "0s")
	v.SetDefault("TRACING_COLLECTOR_ENDPOINT", "http://localhost:14268/api/traces")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("POLL_RATE_LIMIT_RPS", 30)
	v.SetDefault("POLL_RATE_LIMIT_BURST", 60)
}

func fromViper(v *viper.Viper) Config {
	env := normalizeEnv(v.GetString("ENV"))
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            v.GetString("PORT"),
		Env:             env,
		DatabaseURL:     dbURL,
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),

		ObjectStoreType: normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:   v.GetString("LOCAL_STORE_DIR"),
		PublicBaseURL:   strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		AWSRegion:       v.GetString("AWS_REGION"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		MinioEndpoint:   v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:  v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:  v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:     v.GetString("MINIO_BUCKET"),
		MinioUseSSL:     v.GetBool("MINIO_USE_SSL"),
		SignedURLTTL:    seconds(v.GetInt("SIGNED_URL_TTL_SECONDS"), time.Hour),

		LLMProvider:     strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER"))),
		LLMModel:        v.GetString("LLM_MODEL"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		AnalyzerTimeout: seconds(v.GetInt("ANALYZER_TIMEOUT_SECONDS"), 120*time.Second),

		AnalysisQueue:     normalizeQueueType(v.GetString("ANALYSIS_QUEUE")),
		AnalysisWorkers:   positive(v.GetInt("ANALYSIS_WORKERS"), 4),
		AnalysisQueueSize: positive(v.GetInt("ANALYSIS_QUEUE_SIZE"), 256),
		BatchConcurrency:  positive(v.GetInt("ANALYSIS_BATCH_CONCURRENCY"), 3),
		SQSQueueURL:       v.GetString("SQS_QUEUE_URL"),
		RedisURL:          v.GetString("REDIS_URL"),
		RedisQueueKey:     v.GetString("REDIS_QUEUE_KEY"),
		SweepInterval:     v.GetDuration("ANALYSIS_SWEEP_INTERVAL"),

		JWTSecret:          v.GetString("JWT_SECRET"),
		TracingEnabled:     v.GetBool("TRACING_ENABLED"),
		TracingEndpoint:    v.GetString("TRACING_COLLECTOR_ENDPOINT"),
		LogFile:            v.GetString("LOG_FILE"),
		RateLimitRPS:       v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
		PollRateLimitRPS:   v.GetFloat64("POLL_RATE_LIMIT_RPS"),
		PollRateLimitBurst: v.GetInt("POLL_RATE_LIMIT_BURST"),
	}
}

// IsDevLike reports whether the environment allows development-only behaviour
// such as the memory repository fallback and throwaway test segments.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func positive(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func normalizeQueueType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "redis":
		return "redis"
	case "none", "off":
		return "none"
	default:
		return "memory"
	}
}
