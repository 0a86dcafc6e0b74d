// utils/config.go
package utils

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is everything the service reads from the environment.
type Config struct {
	Port           string   `env:"PORT" envDefault:"5200"`
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Gateway bearer token and the HMAC secret it signs caller tokens with.
	ServiceToken      string `env:"ESCROW_SERVICE_TOKEN,required,notEmpty"`
	CallerTokenSecret string `env:"CALLER_TOKEN_SECRET,required,notEmpty"`

	CustodyAddress        string   `env:"ESCROW_CUSTODY_ADDRESS,required,notEmpty"`
	Operators             []string `env:"ESCROW_OPERATORS" envSeparator:","`
	AllowFreeRegistration bool     `env:"ALLOW_FREE_REGISTRATION" envDefault:"false"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	StreamMaxLen   int64         `env:"REDIS_STREAM_MAXLEN" envDefault:"10000"`
	NotifyStream   string        `env:"NOTIFY_STREAM" envDefault:"escrow:notifications"`
	RelayInterval  time.Duration `env:"RELAY_INTERVAL" envDefault:"5s"`
	RelayBatchSize int           `env:"RELAY_BATCH_SIZE" envDefault:"200"`

	R2 R2Config

	DepositSyncURL      string        `env:"DEPOSIT_SYNC_URL"`
	DepositSyncToken    string        `env:"DEPOSIT_SYNC_TOKEN"`
	DepositSyncInterval time.Duration `env:"DEPOSIT_SYNC_INTERVAL" envDefault:"10s"`

	ProofWorkers int `env:"PROOF_WORKERS" envDefault:"8"`
}

// R2Config locates the bucket commitment documents are published to.
type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

// Enabled reports whether uploads are configured.
func (c R2Config) Enabled() bool { return c.Bucket != "" }

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	return &cfg, nil
}
