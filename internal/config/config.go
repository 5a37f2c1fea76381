// Package config handles configuration for the bot binaries: defaults, an
// optional JSON or YAML file, a .env file plus the process environment, and
// finally command-line flags. Later layers win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/flagx"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config holds runtime settings.
//
// Fields:
//   - BotToken: Telegram bot API token; only the Telegram binary needs it.
//   - Password / PasswordHash: the shared secret, plain or bcrypt-hashed.
//     The hash wins when both are set.
//   - StorageBackend / StorageDir: "local" keeps files in StorageDir, "s3"
//     keeps them in S3Bucket under S3Prefix.
//   - AdminUsername: informational, logged at startup.
//   - ActivityLogLimit: activity records kept per user, 0 for unbounded.
//   - ProgressEditsPerSecond: upper bound on progress message edits.
//   - PollTimeout: long-poll timeout for the Telegram transport.
type Config struct {
	BotToken               string
	Password               string
	PasswordHash           string
	StorageDir             string
	StorageBackend         string
	AdminUsername          string
	ActivityLogLimit       int
	LogLevel               string
	LogFormat              string
	LogBackend             string
	ProgressEditsPerSecond float64
	PollTimeout            time.Duration
	S3Bucket               string
	S3Region               string
	S3BaseEndpoint         string
	S3AccessKey            string
	S3SecretKey            string
	S3Prefix               string
}

// LoadDefaults populates Config with defaults suitable for a local run.
func (c *Config) LoadDefaults() {
	c.StorageDir = "local_storage"
	c.StorageBackend = BackendLocal
	c.ActivityLogLimit = 100
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.LogBackend = "slog"
	c.ProgressEditsPerSecond = 2
	c.PollTimeout = 60 * time.Second
	c.S3Region = "us-east-1"
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	if c.Password == "" && c.PasswordHash == "" {
		return fmt.Errorf("%w: BOT_PASSWORD or BOT_PASSWORD_HASH must be set", common.ErrorInvalidConfig)
	}

	switch c.StorageBackend {
	case BackendLocal:
		if strings.TrimSpace(c.StorageDir) == "" {
			return fmt.Errorf("%w: storage dir is empty", common.ErrorInvalidConfig)
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: S3_BUCKET must be set for the s3 backend", common.ErrorInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", common.ErrorInvalidConfig, c.StorageBackend)
	}

	if c.ActivityLogLimit < 0 {
		return fmt.Errorf("%w: activity log limit must not be negative", common.ErrorInvalidConfig)
	}

	if c.ProgressEditsPerSecond <= 0 {
		return fmt.Errorf("%w: progress edit rate must be positive", common.ErrorInvalidConfig)
	}

	return nil
}

// LoadConfig builds a Config from defaults, the optional -c/-config file,
// ".env" and the environment, then command-line flags, and validates it.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:], ".env", os.LookupEnv)
}

func load(args []string, dotenvPath string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path := flagx.ConfigFileFlag(args); path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, err
		}
	}

	env, err := newEnvSource(dotenvPath, lookup)
	if err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, env); err != nil {
		return nil, err
	}

	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ErrMissingToken is returned by binaries that need TELEGRAM_BOT_TOKEN when it
// is not set.
var ErrMissingToken = fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is not set", common.ErrorInvalidConfig)
