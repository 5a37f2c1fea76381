// Command cli runs the file store bot as a local console session.
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/cloudkeeper/internal/app"
	"github.com/dmitrijs2005/cloudkeeper/internal/config"
	"github.com/dmitrijs2005/cloudkeeper/internal/filex"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"github.com/dmitrijs2005/cloudkeeper/internal/transport/console"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	// replies go to stdout, so keep logs on stderr
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat, cfg.LogBackend)

	downloads, err := filex.EnsureSubdDir("downloads")
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	userName := cfg.AdminUsername
	if userName == "" {
		userName = os.Getenv("USER")
	}

	c := console.New(a.Bot(), os.Stdin, os.Stdout, downloads, userName, logger)
	if err := a.Run(ctx, c); err != nil {
		log.Fatalf("%v", err)
	}
}
