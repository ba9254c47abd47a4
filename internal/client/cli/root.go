package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// DaemonFunc runs background sync until ctx is canceled
type DaemonFunc func(ctx context.Context) error

// Loader opens the replica for a command; flags of cmd are already parsed
type Loader func(cmd *cobra.Command) (*Cli, error)

// BuildInfo is set via ldflags during build
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

const annotationNoReplica = "no-replica"

// session holds the Cli opened by PersistentPreRunE
type session struct {
	load Loader
	cli  *Cli
}

func (s *session) open(cmd *cobra.Command) error {
	if cmd.Annotations[annotationNoReplica] != "" {
		return nil
	}
	c, err := s.load(cmd)
	if err != nil {
		return err
	}
	s.cli = c
	cmd.Root().SetOut(c.io)
	return nil
}

// run wraps a command body; the replica is closed even if the body fails
func (s *session) run(fn func(ctx context.Context, c *Cli, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if s.cli == nil {
			return errors.New("replica is not opened")
		}
		defer func() {
			if cerr := s.cli.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close replica: %w", cerr)
			}
		}()
		return fn(cmd.Context(), s.cli, args)
	}
}

// NewRootCommand creates the root command of gophsync
func NewRootCommand(info BuildInfo, load Loader) *cobra.Command {
	s := &session{load: load}

	cmd := &cobra.Command{
		Use:   "gophsync",
		Short: "gophsync - offline-first record sync client",
		Long: `gophsync keeps a local replica of records and synchronizes it with a server.

Records are written locally and pushed in the background; conflicts are resolved
with Last-Write-Wins, counters merge without losing increments.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.open(cmd)
		},
	}

	// Global flags; names match config keys with '-' instead of '_'
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("env-file", "", "dotenv file (default .env if present)")
	flags.String("db-path", "", "path to local database")
	flags.String("storage", "", "storage backend (bolt|sqlite)")
	flags.String("server-url", "", "sync server URL")
	flags.String("replica-id", "", "replica identity (generated on first start)")
	flags.String("status-file", "", "file with network status (online|offline)")
	flags.String("notify-url", "", "change feed WebSocket URL")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("log-format", "", "log format (text|json)")
	flags.String("log-file", "", "log file, rotated by size")

	cmd.AddCommand(
		newPutCommand(s),
		newGetCommand(s),
		newListCommand(s),
		newDeleteCommand(s),
		newCounterCommand(s),
		newSyncCommand(s),
		newStatusCommand(s),
		newQueueCommand(s),
		newQuarantineCommand(s),
		newTokenCommand(s),
		newDaemonCommand(s),
		newVersionCommand(info),
	)
	return cmd
}

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoReplica: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "gophsync client\n")
			_, _ = fmt.Fprintf(out, "Version:    %s\n", info.Version)
			_, _ = fmt.Fprintf(out, "Build date: %s\n", info.BuildDate)
			_, _ = fmt.Fprintf(out, "Git commit: %s\n", info.GitCommit)
			return nil
		},
	}
}

func newDaemonCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run background sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *Cli, _ []string) error {
			if c.daemon == nil {
				return errors.New("daemon is not available")
			}
			c.io.Println("Sync daemon started. Press Ctrl+C to stop.")
			if err := c.daemon(ctx); err != nil {
				return fmt.Errorf("daemon failed: %w", err)
			}
			c.io.Println("Sync daemon stopped.")
			return nil
		}),
	}
}
