package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/client/sync"
)

func newSyncCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize local records with server",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *Cli, _ []string) error {
			return c.runSync(ctx)
		}),
	}
}

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("=== Synchronization ===")
	c.io.Println()
	c.io.Println("Starting synchronization with server...")

	result, err := c.syncService.Sync(ctx)
	if err != nil {
		switch {
		case errors.Is(err, sync.ErrSyncInProgress):
			return errors.New("another synchronization is already running")
		case errors.Is(err, remote.ErrOffline):
			return errors.New("network is offline, changes stay queued")
		}
		return fmt.Errorf("synchronization failed (%s): %w", remote.Classify(err), err)
	}

	c.io.Println()
	c.io.Println("✓ Synchronization completed successfully!")
	c.io.Println()
	c.io.Printf("Pulled from server: %d entries (%d page(s))\n", result.PulledEntries, result.Pages)
	c.io.Printf("Merged locally:     %d entries\n", result.MergedEntries)
	c.io.Printf("Pushed to server:   %d entries\n", result.PushedEntries)
	c.io.Printf("Accepted:           %d\n", result.Accepted)
	if result.Conflicts > 0 {
		c.io.Printf("Conflicts resolved: %d\n", result.Conflicts)
	}
	if result.SkippedEntries > 0 {
		c.io.Printf("Skipped (stale):    %d\n", result.SkippedEntries)
	}
	if result.Rejected > 0 {
		c.io.Printf("Rejected:           %d\n", result.Rejected)
	}
	if result.Quarantined > 0 {
		c.io.Printf("⚠️  Quarantined:     %d (see 'gophsync quarantine list')\n", result.Quarantined)
	}
	if result.Purged > 0 {
		c.io.Printf("Purged deleted:     %d\n", result.Purged)
	}
	return nil
}

func newStatusCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *Cli, _ []string) error {
			return c.runStatus(ctx)
		}),
	}
}

func (c *Cli) runStatus(ctx context.Context) error {
	st, err := c.syncService.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get sync status: %w", err)
	}
	return c.render("status", statusTemplate, st)
}
