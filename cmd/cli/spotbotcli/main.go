package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-spotbot/pkg/control"
	"github.com/core-tools/hsu-spotbot/pkg/guard"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
)

type sourceOptions struct {
	Config   string `long:"config" description:"path to an optional YAML configuration file"`
	EnvFile  string `long:"env-file" description:"path to an optional .env file" default:".env"`
	LogLevel string `long:"log-level" description:"override LOG_LEVEL (debug, info, warn, error)"`
}

func (o sourceOptions) runOptions() guard.RunOptions {
	return guard.RunOptions{ConfigFile: o.Config, EnvFile: o.EnvFile, LogLevel: o.LogLevel}
}

type checkCommand struct {
	sourceOptions
	Timeout int `long:"timeout" description:"give up after this many seconds" default:"1200"`
}

// Execute runs one cycle, including a restart when the VM is deallocated
func (c *checkCommand) Execute([]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.Timeout)*time.Second)
	defer cancel()

	result, err := guard.RunOnce(ctx, c.runOptions())
	if err != nil {
		return err
	}
	fmt.Printf("State: %s\n", result.Observation.Code())
	fmt.Printf("Sample: %d\n", result.Plan.Sample)
	if result.Recovery != nil {
		if result.Recovery.Succeeded {
			fmt.Printf("Restart: succeeded in %v\n", result.Recovery.Duration.Round(time.Second))
		} else {
			fmt.Printf("Restart: failed: %v\n", result.Recovery.Err)
		}
	}
	return nil
}

type validateCommand struct {
	sourceOptions
}

func (c *validateCommand) Execute([]string) error {
	cfg, err := guard.ValidateOnly(c.runOptions())
	if err != nil {
		return err
	}
	fmt.Printf("Configuration is valid, %s\n", cfg.Summary())
	return nil
}

type statusCommand struct {
	Port    int  `long:"port" description:"control port of a running bot" required:"true"`
	Retries uint `long:"retries" description:"ping attempts before giving up" default:"10"`
	Verbose bool `long:"verbose" description:"log gateway calls"`
}

func (c *statusCommand) Execute([]string) error {
	logger := logging.NewNopLogger()
	if c.Verbose {
		zapLogger, err := logging.NewZapLogger(logging.ZapConfig{Level: "debug", Format: "console", Output: "stderr"})
		if err != nil {
			return err
		}
		defer func() { _ = zapLogger.Sync() }()
		logger = logging.WithPrefix(zapLogger, logging.ModulePrefix("spotbot-client"))
	}

	conn, err := control.Dial(fmt.Sprintf("127.0.0.1:%d", c.Port))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	gateway := control.NewGRPCClientGateway(conn, logger)
	err = control.RetryPing(ctx, gateway, control.RetryPingOptions{
		RetryAttempts: c.Retries,
		RetryInterval: time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to ping spot bot: %w", err)
	}

	status, err := gateway.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("VM status: %s\n", status)
	return nil
}

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)
	mustAdd := func(name, short, long string, data interface{}) {
		if _, err := parser.AddCommand(name, short, long, data); err != nil {
			fmt.Printf("Failed to register command %s: %v\n", name, err)
			os.Exit(1)
		}
	}
	mustAdd("check", "Run a single check", "Read the VM power state once, emit the sample and restart if deallocated", &checkCommand{})
	mustAdd("validate", "Validate configuration", "Load configuration from all sources and check required settings", &validateCommand{})
	mustAdd("status", "Query a running bot", "Ask a running bot for the last observed VM status over its control port", &statusCommand{})

	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}
