package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port       string   `env:"PORT"       envDefault:"5000"`
	ClientURLs []string `env:"CLIENT_URL" envDefault:"http://localhost:5173" envSeparator:","`
	LogLevel   string   `env:"LOG_LEVEL"  envDefault:"info"`

	MongoURI    string `env:"MONGO_URI,required,notEmpty"`
	MongoDB     string `env:"MONGO_DB"     envDefault:"endpix"`
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"redis:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"   envDefault:"minio:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET"     envDefault:"endpix-images"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`
	MinioPublicURL string `env:"MINIO_PUBLIC_URL"`

	JWTSecret     string        `env:"JWT_SECRET,required,notEmpty"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`
	CookieSecure  bool          `env:"COOKIE_SECURE"  envDefault:"false"`

	SMTPHost     string `env:"SMTP_HOST"     envDefault:"smtp.gmail.com"`
	SMTPPort     int    `env:"SMTP_PORT"     envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`

	ImageAIURL   string `env:"IMAGE_AI_URL"   envDefault:"https://generativelanguage.googleapis.com"`
	ImageAIKey   string `env:"IMAGE_AI_API"`
	ImageAIModel string `env:"IMAGE_AI_MODEL" envDefault:"gemini-2.0-flash-preview-image-generation"`

	OTPTTL               time.Duration `env:"OTP_TTL"                envDefault:"5m"`
	OTPResendCooldown    time.Duration `env:"OTP_RESEND_COOLDOWN"    envDefault:"60s"`
	StagedSweepInterval  time.Duration `env:"STAGED_SWEEP_INTERVAL"  envDefault:"1m"`
	RateLimitPerMinute   int           `env:"RATE_LIMIT_PER_MINUTE"  envDefault:"60"`
	MaxUploadBytes       int64         `env:"MAX_UPLOAD_BYTES"       envDefault:"10485760"`
	BlockDisposableEmail bool          `env:"BLOCK_DISPOSABLE_EMAIL" envDefault:"true"`
}

// Load reads the configuration from the environment. Missing required
// variables and unparsable values are reported as a single error.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}
	if cfg.JWTExpiration <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRATION must be positive, got %s", cfg.JWTExpiration)
	}
	if cfg.OTPTTL <= 0 {
		return nil, fmt.Errorf("OTP_TTL must be positive, got %s", cfg.OTPTTL)
	}
	return &cfg, nil
}
