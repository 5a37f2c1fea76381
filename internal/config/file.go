package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk representation shared by the JSON and YAML
// decoders. Durations are strings such as "30s". Empty values leave the
// current setting untouched.
type FileConfig struct {
	BotToken               string  `json:"bot_token" yaml:"bot_token"`
	Password               string  `json:"password" yaml:"password"`
	PasswordHash           string  `json:"password_hash" yaml:"password_hash"`
	StorageDir             string  `json:"storage_dir" yaml:"storage_dir"`
	StorageBackend         string  `json:"storage_backend" yaml:"storage_backend"`
	AdminUsername          string  `json:"admin_username" yaml:"admin_username"`
	ActivityLogLimit       *int    `json:"activity_log_limit" yaml:"activity_log_limit"`
	LogLevel               string  `json:"log_level" yaml:"log_level"`
	LogFormat              string  `json:"log_format" yaml:"log_format"`
	LogBackend             string  `json:"log_backend" yaml:"log_backend"`
	ProgressEditsPerSecond float64 `json:"progress_edits_per_second" yaml:"progress_edits_per_second"`
	PollTimeout            string  `json:"poll_timeout" yaml:"poll_timeout"`
	S3Bucket               string  `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region               string  `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint         string  `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3AccessKey            string  `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey            string  `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Prefix               string  `json:"s3_prefix" yaml:"s3_prefix"`
}

// parseFile overlays config with the file at path. The decoder is chosen by
// extension: .yaml and .yml use YAML, everything else JSON.
func parseFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrorInvalidConfig, path, err)
	}

	return fc.apply(config)
}

func (fc *FileConfig) apply(c *Config) error {
	setString(&c.BotToken, fc.BotToken)
	setString(&c.Password, fc.Password)
	setString(&c.PasswordHash, fc.PasswordHash)
	setString(&c.StorageDir, fc.StorageDir)
	setString(&c.StorageBackend, fc.StorageBackend)
	setString(&c.AdminUsername, fc.AdminUsername)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.LogBackend, fc.LogBackend)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&c.S3AccessKey, fc.S3AccessKey)
	setString(&c.S3SecretKey, fc.S3SecretKey)
	setString(&c.S3Prefix, fc.S3Prefix)

	if fc.ActivityLogLimit != nil {
		c.ActivityLogLimit = *fc.ActivityLogLimit
	}
	if fc.ProgressEditsPerSecond != 0 {
		c.ProgressEditsPerSecond = fc.ProgressEditsPerSecond
	}
	if fc.PollTimeout != "" {
		d, err := time.ParseDuration(fc.PollTimeout)
		if err != nil {
			return fmt.Errorf("%w: poll_timeout: %v", common.ErrorInvalidConfig, err)
		}
		c.PollTimeout = d
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
