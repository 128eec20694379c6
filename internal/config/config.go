package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	APIToken string `env:"API_TOKEN,required=true"`

	// PublicBaseURL is the externally visible base URL, used both to build
	// the Twilio status callback and to verify inbound webhook signatures.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=8"`
	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=100"`

	RetryMaxAttempts   int           `env:"RETRY_MAX_ATTEMPTS,default=3"`
	RetryBaseDelay     time.Duration `env:"RETRY_BASE_DELAY,default=500ms"`
	IdempotencyTTL     time.Duration `env:"IDEMPOTENCY_TTL,default=24h"`
	ResumeScanInterval time.Duration `env:"RESUME_SCAN_INTERVAL,default=30s"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `env:"TWILIO_FROM"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	EmailFrom      string `env:"EMAIL_FROM,default=noreply@novapush.app"`

	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT,default=mailto:admin@example.com"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
