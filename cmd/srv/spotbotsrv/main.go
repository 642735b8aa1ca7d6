package main

import (
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-spotbot/pkg/config"
	"github.com/core-tools/hsu-spotbot/pkg/guard"
)

type flagOptions struct {
	Config      string `long:"config" description:"path to an optional YAML configuration file"`
	EnvFile     string `long:"env-file" description:"path to an optional .env file" default:".env"`
	RunDuration int    `long:"run-duration" description:"stop after this many seconds (0 runs until signalled)"`
	LogLevel    string `long:"log-level" description:"override LOG_LEVEL (debug, info, warn, error)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.RunDuration < 0 {
		fmt.Println("Run duration must not be negative")
		os.Exit(1)
	}
	if opts.EnvFile == "" {
		opts.EnvFile = config.DefaultEnvFile
	}

	err = guard.Run(guard.RunOptions{
		ConfigFile:  opts.Config,
		EnvFile:     opts.EnvFile,
		RunDuration: time.Duration(opts.RunDuration) * time.Second,
		LogLevel:    opts.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Spot bot failed: %v\n", err)
		os.Exit(1)
	}
}
