package main

import (
	"fmt"
	"os"

	"github.com/danmuck/missionctl/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	flagSet := pflag.NewFlagSet("configgen", pflag.ExitOnError)
	output := flagSet.String("output", "cmd/missionctl/config.toml", "output path for the config template")
	validate := flagSet.Bool("validate", false, "validate an existing config file")
	input := flagSet.String("input", "cmd/missionctl/config.toml", "config path for validation")
	force := flagSet.Bool("force", false, "overwrite an existing config file")
	_ = flagSet.Parse(os.Args[1:])

	if *validate {
		if _, err := config.LoadServiceConfig(*input); err != nil {
			fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Validated config at %s\n", *input)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote config template to %s\n", *output)
}
