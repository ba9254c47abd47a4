package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophsync/internal/client/app"
	"github.com/iudanet/gophsync/internal/client/cli"
	"github.com/iudanet/gophsync/internal/client/config"
	"github.com/iudanet/gophsync/internal/client/iocli"
	"github.com/iudanet/gophsync/internal/client/logging"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var opened *cli.Cli
	root := cli.NewRootCommand(cli.BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
	}, func(cmd *cobra.Command) (*cli.Cli, error) {
		c, err := load(cmd)
		opened = c
		return c, err
	})

	err := root.ExecuteContext(ctx)
	// Команда могла не дойти до RunE, например из-за неверных флагов
	if opened != nil {
		if cerr := opened.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// load reads configuration and opens the local replica
func load(cmd *cobra.Command) (*cli.Cli, error) {
	flags := cmd.Flags()
	configFile, _ := flags.GetString("config")
	envFile, _ := flags.GetString("env-file")

	cfg, err := config.Load(config.Options{
		Flags:      flags,
		ConfigFile: configFile,
		EnvFile:    envFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	a, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	return cli.New(cli.Deps{
		IO:      iocli.NewStdio(),
		Records: a.Records,
		Sync:    a.Sync,
		Queue:   a.Queue,
		Store:   a.Store,
		Daemon:  a.RunDaemon,
		Closer:  closers{a, logCloser},
	}), nil
}

type closers []interface{ Close() error }

func (cs closers) Close() error {
	var first error
	for _, c := range cs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
