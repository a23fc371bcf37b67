package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses flags, loads the configuration and executes one command. Command
// output goes to stdout and logs to stderr. It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("tplsource", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "./config.json", "path to the JSON or YAML config file")
	root := flags.StringP("root", "r", "", "template directory, overrides template_dir")
	logLevel := flags.String("log-level", "", "log level (debug, info, warn, error), overrides log_level")
	out := flags.StringP("out", "o", "", "snapshot: also write the manifest to this JSON file")
	flags.Usage = func() {
		printUsage(stderr)
		fmt.Fprintln(stderr, "\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return exitError
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitError
	}
	if *root != "" {
		config.TemplateDir = *root
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}

	c := &cli{
		config: config,
		logger: newLogger(config.LogLevel, stderr),
		stdout: stdout,
		out:    *out,
	}
	command, cmdArgs := flags.Arg(0), flags.Args()[1:]
	code, err := c.execute(ctx, command, cmdArgs)
	if err != nil {
		c.logger.Error("Command failed", "command", command, "error", err)
	}
	return code
}
