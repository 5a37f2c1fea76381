package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   storage directory
//	-b string   storage backend (local, s3)
//	-l string   log level (debug, info, warn, error)
//
// Other arguments are filtered out first so binaries can define flags of
// their own.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-d", "-b", "-l"})

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.StorageDir, "d", config.StorageDir, "storage directory")
	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend (local, s3)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInvalidConfig, err)
	}

	return nil
}
