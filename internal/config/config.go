package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"debug"`
	APIBaseURL  string `envconfig:"API_BASE_URL" default:"http://localhost:8080/v1"`

	// Storage
	StoreDriver        string `envconfig:"STORE_DRIVER" default:"postgres"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING"`
	RedisURL           string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	AutoMigrate        bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Quota
	QueryBudgetMax  int           `envconfig:"QUERY_BUDGET_MAX" default:"10"`
	QuotaLimitsFile string        `envconfig:"QUOTA_LIMITS_FILE"`
	AITimeout       time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`

	// AI
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	GeminiAPIKeySecret string `envconfig:"GEMINI_API_KEY_SECRET"`
	GeminiModelFlash   string `envconfig:"GEMINI_MODEL_FLASH" default:"gemini-2.5-flash"`
	GeminiModelPro     string `envconfig:"GEMINI_MODEL_PRO" default:"gemini-2.5-pro"`

	// Alerts
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	PubSubEmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`
	AlertTransport     string `envconfig:"ALERT_TRANSPORT" default:"log"`
	AlertTopic         string `envconfig:"ALERT_TOPIC" default:"spend-alerts"`
	NATSURL            string `envconfig:"NATS_URL" default:"nats://localhost:4222"`

	// Image archive (S3 compatible). Disabled when S3_BUCKET is empty.
	S3URL       string `envconfig:"S3_URL"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`

	// Stripe
	StripeSecretKey       string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripePricePremium    string `envconfig:"STRIPE_PRICE_PREMIUM"`
	StripePricePro        string `envconfig:"STRIPE_PRICE_PRO"`
	StripePriceFounders   string `envconfig:"STRIPE_PRICE_FOUNDERS"`
	StripePortalReturnURL string `envconfig:"STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/settings"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsDevelopment reports whether the service runs against local infrastructure.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
