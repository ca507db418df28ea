package main

import (
	"fmt"
	"os"

	"github.com/danmuck/missionctl/internal/daemon"
	"github.com/danmuck/missionctl/internal/logging"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()

	var opts options
	flagSet := newFlagSet(&opts, os.Stderr)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "missionctl: %v\n", err)
		os.Exit(2)
	}
	if opts.help {
		fmt.Fprintln(os.Stderr, "usage: missionctl [flags]")
		flagSet.PrintDefaults()
		return
	}

	cfg, err := resolveServiceConfig(opts, flagSet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "missionctl: %v\n", err)
		os.Exit(1)
	}
	svc := daemon.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "missionctl: %v\n", err)
		os.Exit(1)
	}
}
