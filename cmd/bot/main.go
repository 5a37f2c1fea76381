// Command bot serves the shared file store over Telegram.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/pkg/profile"

	"github.com/dmitrijs2005/cloudkeeper/internal/app"
	"github.com/dmitrijs2005/cloudkeeper/internal/config"
	"github.com/dmitrijs2005/cloudkeeper/internal/flagx"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"github.com/dmitrijs2005/cloudkeeper/internal/transport/telegram"
)

type profileFlags struct {
	cpu  bool
	mem  bool
	path string
}

func parseProfileFlags(args []string) profileFlags {
	var p profileFlags

	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&p.cpu, "profile-cpu", false, "enable CPU profiling")
	fs.BoolVar(&p.mem, "profile-mem", false, "enable memory profiling")
	fs.StringVar(&p.path, "profile-path", "", "where to write profile data")
	_ = fs.Parse(flagx.FilterArgs(args, []string{"-profile-cpu", "-profile-mem", "-profile-path"}))

	return p
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	pf := parseProfileFlags(os.Args[1:])
	if pf.cpu {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(pf.path), profile.NoShutdownHook).Stop()
	}
	if pf.mem {
		defer profile.Start(profile.MemProfile, profile.MemProfileAllocs, profile.ProfilePath(pf.path), profile.NoShutdownHook).Stop()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.BotToken == "" {
		return config.ErrMissingToken
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat, cfg.LogBackend)
	ctx := context.Background()

	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	tg, err := telegram.New(cfg.BotToken, a.Bot(), logger, cfg.PollTimeout)
	if err != nil {
		return err
	}

	return a.Run(ctx, tg)
}
