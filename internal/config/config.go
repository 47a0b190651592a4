package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HTTPPort int  `env:"HTTP_PORT" env-default:"8080"`
	Debug    bool `env:"DEBUG" env-default:"false"`

	// TokenKey is the hex-encoded 32-byte symmetric key sealing tokens.
	TokenKey           string        `env:"TOKEN_KEY"`
	InviteTTL          time.Duration `env:"INVITE_TTL" env-default:"120h"`
	ResetTTL           time.Duration `env:"RESET_TTL" env-default:"1h"`
	ChallengeDuration  time.Duration `env:"CHALLENGE_DURATION" env-default:"120h"`
	TokenSweepInterval time.Duration `env:"TOKEN_SWEEP_INTERVAL" env-default:"15m"`

	RateLimit      int           `env:"RATE_LIMIT" env-default:"5"`
	RateWindow     time.Duration `env:"RATE_WINDOW" env-default:"60s"`
	RatePruneEvery time.Duration `env:"RATE_PRUNE_EVERY" env-default:"5m"`

	GitBaseURL      string        `env:"GIT_BASE_URL" env-default:"https://api.github.com"`
	GitToken        string        `env:"GIT_TOKEN"`
	GitRepoOwner    string        `env:"GIT_REPO_OWNER"`
	GitBranch       string        `env:"GIT_BRANCH" env-default:"main"`
	GitTimeout      time.Duration `env:"GIT_TIMEOUT" env-default:"10s"`
	GitConcurrency  int           `env:"GIT_CONCURRENCY" env-default:"4"`
	GitMaxAttempts  int           `env:"GIT_MAX_ATTEMPTS" env-default:"3"`
	GitRetryDelay   time.Duration `env:"GIT_RETRY_DELAY" env-default:"500ms"`
	GitWorkflowFile string        `env:"GIT_WORKFLOW_FILE"`

	DBHost     string `env:"DB_HOST" env-default:"localhost"`
	DBPort     int    `env:"DB_PORT" env-default:"5432"`
	DBUser     string `env:"DB_USER" env-default:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" env-default:"challenges"`
	DBSSLMode  string `env:"DB_SSL_MODE" env-default:"disable"`

	RedisURL string `env:"REDIS_URL"`

	KafkaBrokers []string `env:"KAFKA_BROKERS"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" env-default:"submission-lifecycle"`

	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION" env-default:"us-east-1"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3Bucket          string `env:"S3_BUCKET" env-default:"submission-archives"`
}

func New() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig("./config/.env", &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := cleanenv.ReadEnv(&cfg); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// AEADKey decodes the configured token key and enforces its length.
func (c *Config) AEADKey() ([]byte, error) {
	key, err := hex.DecodeString(c.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_KEY must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOKEN_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
