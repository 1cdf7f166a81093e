package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Coaching providers.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Score store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Host     string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"SERVER_HTTP_PORT" default:"8080"`
	GRPCPort int    `envconfig:"GRPC_PORT" default:"9090"`

	Environment string `envconfig:"SERVER_ENV" default:"development"`

	// Timeouts. Attempts wait on the assessment service, so the write
	// timeout must exceed the assessment timeout.
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"90s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Azure AI Speech (pronunciation assessment)
	AzureAISpeechKey   string        `envconfig:"AZURE_AI_SPEECH_KEY"`
	AzureServiceRegion string        `envconfig:"AZURE_SERVICE_REGION"`
	AssessmentLanguage string        `envconfig:"ASSESSMENT_LANGUAGE" default:"en-US"`
	AssessmentTimeout  time.Duration `envconfig:"ASSESSMENT_TIMEOUT" default:"30s"`

	// Coaching
	CoachingProvider string        `envconfig:"COACHING_PROVIDER" default:"azure"`
	CoachingLocale   string        `envconfig:"COACHING_LOCALE" default:"ja"`
	CoachingTimeout  time.Duration `envconfig:"COACHING_TIMEOUT" default:"60s"`
	CoachingModel    string        `envconfig:"COACHING_MODEL"`

	// Azure OpenAI
	AzureOpenAIEndpoint   string `envconfig:"AZURE_OPENAI_ENDPOINT"`
	AzureOpenAIKey        string `envconfig:"AZURE_OPENAI_API_KEY"`
	AzureOpenAIDeployment string `envconfig:"AZURE_OPENAI_DEPLOYMENT" default:"gpt-4o"`
	AzureOpenAIAPIVersion string `envconfig:"AZURE_OPENAI_API_VERSION" default:"2024-08-01-preview"`

	// OpenAI
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// Gemini on Vertex AI
	GeminiSABase64 string `envconfig:"GEMINI_SA_BASE64"`
	GCPProject     string `envconfig:"GCP_PROJECT"`
	GCPLocation    string `envconfig:"GCP_LOCATION" default:"asia-southeast1"`

	// Storage
	DataDir      string        `envconfig:"DATA_DIR" default:"./data"`
	DatasetDir   string        `envconfig:"DATASET_DIR" default:"./dataset"`
	StoreBackend string        `envconfig:"STORE_BACKEND" default:"file"`
	LessonTTL    time.Duration `envconfig:"LESSON_CACHE_TTL" default:"1h"`
	ArtifactTTL  time.Duration `envconfig:"ARTIFACT_TTL" default:"1h"`

	// Redis
	RedisURL string `envconfig:"REDIS_URL"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Cloudflare R2
	CloudflareAccessKeyID string `envconfig:"CLOUDFLARE_ACCESS_KEY_ID"`
	CloudflareSecretKey   string `envconfig:"CLOUDFLARE_SECRET_ACCESS_KEY"`
	CloudflareR2Endpoint  string `envconfig:"CLOUDFLARE_R2_ENDPOINT"`
	CloudflarePublicURL   string `envconfig:"CLOUDFLARE_PUBLIC_URL"`
	CloudflareBucketName  string `envconfig:"CLOUDFLARE_BUCKET_NAME"`

	// Google Cloud Storage, used when R2 is not configured
	GCSBucket string `envconfig:"GCS_BUCKET"`

	// Pub/Sub attempt events
	PubSubProject string `envconfig:"PUBSUB_PROJECT"`
	PubSubTopic   string `envconfig:"PUBSUB_TOPIC"`

	// Sessions
	JWTSecret   string        `envconfig:"JWT_SECRET" default:"change-me"`
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	MaxSessions int           `envconfig:"MAX_SESSIONS" default:"10000"`

	// Features
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
	HapticsEnabled bool `envconfig:"HAPTICS_ENABLED" default:"false"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Accept,Authorization,Content-Type,X-Request-ID"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that envconfig cannot.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreFile:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.CoachingProvider {
	case ProviderOpenAI, ProviderAzure, ProviderGemini, ProviderMock:
	default:
		return fmt.Errorf("unknown COACHING_PROVIDER %q", c.CoachingProvider)
	}

	if c.AssessmentTimeout <= 0 || c.CoachingTimeout <= 0 {
		return fmt.Errorf("ASSESSMENT_TIMEOUT and COACHING_TIMEOUT must be positive")
	}
	if c.IsProduction() && c.JWTSecret == "change-me" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// HTTPAddress returns the HTTP server address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// GRPCAddress returns the gRPC server address.
func (c *Config) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// R2Enabled reports whether the Cloudflare R2 recording archive is configured.
func (c *Config) R2Enabled() bool {
	return c.CloudflareAccessKeyID != "" && c.CloudflareSecretKey != "" &&
		c.CloudflareR2Endpoint != "" && c.CloudflareBucketName != ""
}
