// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/privacyops/dsar/internal/database"
)

// Queue backends.
const (
	QueueBackendPubSub = "pubsub"
	QueueBackendKafka  = "kafka"
	QueueBackendMemory = "memory"
)

// Config holds the configuration shared by the API, the worker and the CLI.
type Config struct {
	Port        string
	Environment string
	SiteName    string
	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
	// WorkerHealthPort serves the worker's health endpoint.
	WorkerHealthPort string
	// DataRequestsURL is the officer-facing request list linked from notifications.
	DataRequestsURL string

	Database database.Config

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	Queue QueueConfig

	RedisURL          string
	DirectoryCacheTTL time.Duration

	NotifyBaseURL        string
	NotifyAPIKey         string
	PrivacyManagerURL    string
	PrivacyManagerAPIKey string

	ExpiryScanInterval time.Duration
	ExpiryDeleteLimit  int
	SystemActorID      string

	OTelEnabled  bool
	OTLPEndpoint string
}

// QueueConfig selects and configures the async work queue transport.
type QueueConfig struct {
	Backend string

	PubSubProjectID    string
	PubSubTopic        string
	PubSubSubscription string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
}

// Load reads an optional .env file and then builds the configuration from the environment.
// Variables already present in the environment win over the file.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Port:        getEnvOrDefault("APP_PORT", "8080"),
		Environment: getEnvOrDefault("APP_ENV", "development"),
		SiteName:    getEnvOrDefault("SITE_NAME", "the site"),
		RequireTLS:  os.Getenv("REQUIRE_TLS") == "true",

		WorkerHealthPort: getEnvOrDefault("WORKER_HEALTH_PORT", "8081"),
		DataRequestsURL:  os.Getenv("DATA_REQUESTS_URL"),

		Database: database.ConfigFromEnv(),

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     getEnvOrDefault("JWT_ISSUER", "dsar"),
		JWTAudience:   getEnvOrDefault("JWT_AUDIENCE", "dsar-api"),

		Queue: QueueConfig{
			Backend:            getEnvOrDefault("QUEUE_BACKEND", QueueBackendMemory),
			PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
			PubSubTopic:        getEnvOrDefault("PUBSUB_TOPIC", "dsar-jobs"),
			PubSubSubscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "dsar-jobs-worker"),
			KafkaBrokers:       splitList(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
			KafkaTopic:         getEnvOrDefault("KAFKA_TOPIC", "dsar-jobs"),
			KafkaGroup:         getEnvOrDefault("KAFKA_GROUP", "dsar-worker"),
		},

		RedisURL:          os.Getenv("REDIS_URL"),
		DirectoryCacheTTL: getDurationOrDefault("DIRECTORY_CACHE_TTL", 10*time.Minute),

		NotifyBaseURL:        os.Getenv("NOTIFY_BASE_URL"),
		NotifyAPIKey:         os.Getenv("NOTIFY_API_KEY"),
		PrivacyManagerURL:    os.Getenv("PRIVACY_MANAGER_URL"),
		PrivacyManagerAPIKey: os.Getenv("PRIVACY_MANAGER_API_KEY"),

		ExpiryScanInterval: getDurationOrDefault("EXPIRY_SCAN_INTERVAL", time.Hour),
		ExpiryDeleteLimit:  getIntOrDefault("EXPIRY_DELETE_LIMIT", 200),
		SystemActorID:      getEnvOrDefault("SYSTEM_ACTOR_ID", "usr_system"),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
