package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/joho/godotenv"
)

// envSource resolves variables from the process environment first and the
// .env file second, the same precedence godotenv.Load uses.
type envSource struct {
	dotenv map[string]string
	lookup func(string) (string, bool)
}

func newEnvSource(dotenvPath string, lookup func(string) (string, bool)) (*envSource, error) {
	src := &envSource{lookup: lookup}
	if dotenvPath == "" {
		return src, nil
	}

	m, err := godotenv.Read(dotenvPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return src, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", common.ErrorInvalidConfig, dotenvPath, err)
	}
	src.dotenv = m

	return src, nil
}

func (e *envSource) get(key string) (string, bool) {
	if v, ok := e.lookup(key); ok {
		return v, true
	}
	v, ok := e.dotenv[key]
	return v, ok
}

// parseEnv overlays config with environment variables. Variables that are
// unset leave the current value alone; set but malformed numbers are an
// error.
func parseEnv(config *Config, env *envSource) error {
	strVars := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &config.BotToken,
		"BOT_PASSWORD":       &config.Password,
		"BOT_PASSWORD_HASH":  &config.PasswordHash,
		"STORAGE_DIR":        &config.StorageDir,
		"STORAGE_BACKEND":    &config.StorageBackend,
		"ADMIN_USERNAME":     &config.AdminUsername,
		"LOG_LEVEL":          &config.LogLevel,
		"LOG_FORMAT":         &config.LogFormat,
		"LOG_BACKEND":        &config.LogBackend,
		"S3_BUCKET":          &config.S3Bucket,
		"S3_REGION":          &config.S3Region,
		"S3_BASE_ENDPOINT":   &config.S3BaseEndpoint,
		"S3_ACCESS_KEY":      &config.S3AccessKey,
		"S3_SECRET_KEY":      &config.S3SecretKey,
		"S3_PREFIX":          &config.S3Prefix,
	}
	for key, dst := range strVars {
		if v, ok := env.get(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := env.get("ACTIVITY_LOG_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ACTIVITY_LOG_LIMIT: %v", common.ErrorInvalidConfig, err)
		}
		config.ActivityLogLimit = n
	}

	if v, ok := env.get("PROGRESS_EDITS_PER_SECOND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: PROGRESS_EDITS_PER_SECOND: %v", common.ErrorInvalidConfig, err)
		}
		config.ProgressEditsPerSecond = f
	}

	if v, ok := env.get("POLL_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: POLL_TIMEOUT: %v", common.ErrorInvalidConfig, err)
		}
		config.PollTimeout = d
	}

	return nil
}
