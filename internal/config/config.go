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
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=8"`

	DefaultLocale string `env:"DEFAULT_LOCALE,default=en"`
	TemplateDir   string `env:"TEMPLATE_DIR,default=templates"`

	TemplateCacheTTLSeconds int `env:"TEMPLATE_CACHE_TTL_SECONDS,default=600"`
	DedupTTLSeconds         int `env:"DEDUP_TTL_SECONDS,default=300"`

	ColdQueueDelaySeconds int `env:"COLD_QUEUE_DELAY_SECONDS,default=300"`
	ColdQueueScanSeconds  int `env:"COLD_QUEUE_SCAN_SECONDS,default=60"`

	SendMaxAttempts      int `env:"SEND_MAX_ATTEMPTS,default=3"`
	SendRetryDelayMillis int `env:"SEND_RETRY_DELAY_MILLIS,default=2000"`
	SendTimeoutSeconds   int `env:"SEND_TIMEOUT_SECONDS,default=10"`

	EmailRateMax               int `env:"EMAIL_RATE_MAX,default=100"`
	EmailRateWindowSeconds     int `env:"EMAIL_RATE_WINDOW_SECONDS,default=3600"`
	SMSRateMax                 int `env:"SMS_RATE_MAX,default=5"`
	SMSRateWindowSeconds       int `env:"SMS_RATE_WINDOW_SECONDS,default=3600"`
	ChatRateMax                int `env:"CHAT_RATE_MAX,default=30"`
	ChatRateWindowSeconds      int `env:"CHAT_RATE_WINDOW_SECONDS,default=60"`
	RichMsgRateMax             int `env:"RICH_MESSAGE_RATE_MAX,default=30"`
	RichMsgRateWindowSeconds   int `env:"RICH_MESSAGE_RATE_WINDOW_SECONDS,default=60"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM,default=no-reply@notify-gateway.dev"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	SMSFrom          string `env:"SMS_FROM"`

	ChatBotToken string `env:"CHAT_BOT_TOKEN"`

	RichMessageAuthToken  string `env:"RICH_MESSAGE_AUTH_TOKEN"`
	RichMessageSenderName string `env:"RICH_MESSAGE_SENDER_NAME,default=notify-gateway"`

	// Base64-encoded PKIX public key used to verify provider webhook
	// signatures. Empty disables verification (development mode).
	WebhookPublicKey string `env:"WEBHOOK_PUBLIC_KEY"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) TemplateCacheTTL() time.Duration {
	return time.Duration(c.TemplateCacheTTLSeconds) * time.Second
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

func (c *Config) ColdQueueDelay() time.Duration {
	return time.Duration(c.ColdQueueDelaySeconds) * time.Second
}

func (c *Config) ColdQueueScanInterval() time.Duration {
	return time.Duration(c.ColdQueueScanSeconds) * time.Second
}

func (c *Config) SendRetryDelay() time.Duration {
	return time.Duration(c.SendRetryDelayMillis) * time.Millisecond
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}
