package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	DatabaseURL string

	AzureEndpoint     string
	AzureKey          string
	AzureAPIVersion   string
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	PollInitialDelay time.Duration
	PollInterval     time.Duration
	PollBackoff      bool
	PollMaxInterval  time.Duration
	PollMaxAttempts  int
	PollDeadline     time.Duration

	OperationRetention time.Duration
	EvictionInterval   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		DatabaseURL: dbURL,

		AzureEndpoint:     getEnv("AZURE_DI_ENDPOINT", ""),
		AzureKey:          getEnv("AZURE_DI_KEY", ""),
		AzureAPIVersion:   getEnv("AZURE_DI_API_VERSION", "2024-02-29-preview"),
		AzureTenantID:     getEnv("AZURE_TENANT_ID", ""),
		AzureClientID:     getEnv("AZURE_CLIENT_ID", ""),
		AzureClientSecret: getEnv("AZURE_CLIENT_SECRET", ""),

		PollInitialDelay: getEnvDuration("POLL_INITIAL_DELAY", 1*time.Second),
		PollInterval:     getEnvDuration("POLL_INTERVAL", 3*time.Second),
		PollBackoff:      getEnvBool("POLL_BACKOFF", false),
		PollMaxInterval:  getEnvDuration("POLL_MAX_INTERVAL", 30*time.Second),
		PollMaxAttempts:  getEnvInt("POLL_MAX_ATTEMPTS", 100),
		PollDeadline:     getEnvDuration("POLL_DEADLINE", 5*time.Minute),

		OperationRetention: getEnvDuration("OPERATION_RETENTION", 1*time.Hour),
		EvictionInterval:   getEnvDuration("EVICTION_INTERVAL", 10*time.Minute),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config %s invalid bool: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration: %v", key, err)
		return def
	}
	return val
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
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
