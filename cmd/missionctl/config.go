package main

import (
	"io"
	"strings"

	"github.com/danmuck/missionctl/internal/config"
	"github.com/danmuck/missionctl/internal/daemon"
	"github.com/spf13/pflag"
)

type options struct {
	configPath  string
	bus         string
	metricsAddr string
	logLevel    string
	help        bool
}

func newFlagSet(opts *options, out io.Writer) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("missionctl", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	flagSet.StringVar(&opts.bus, "bus", "", `bus to join: "session", "system", or an address`)
	flagSet.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "trace|debug|info|warn|error")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")
	return flagSet
}

// resolveServiceConfig applies the config file, then explicitly set flags.
func resolveServiceConfig(opts options, flagSet *pflag.FlagSet) (daemon.ServiceConfig, error) {
	cfg := daemon.DefaultServiceConfig()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.LoadServiceConfig(path)
		if err != nil {
			return daemon.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if flagSet.Changed("bus") {
		cfg.Bus = strings.TrimSpace(opts.bus)
	}
	if flagSet.Changed("metrics-addr") {
		cfg.MetricsAddr = strings.TrimSpace(opts.metricsAddr)
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = strings.TrimSpace(opts.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return daemon.ServiceConfig{}, err
	}
	return cfg, nil
}
