package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophsync/internal/client/storage"
)

func newQueueCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show changes waiting to be pushed",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *Cli, _ []string) error {
			return c.runQueue(ctx)
		}),
	}
}

func (c *Cli) runQueue(ctx context.Context) error {
	entries, err := c.queue.Pending(ctx)
	if err != nil {
		return err
	}
	return c.render("queue", queueTemplate, queueView{
		Title:   "Sync Queue",
		Empty:   "No pending changes.",
		Entries: entries,
	})
}

func newQuarantineCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect changes the server rejected permanently",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List quarantined changes",
			Args:  cobra.NoArgs,
			RunE: s.run(func(ctx context.Context, c *Cli, _ []string) error {
				return c.runQuarantineList(ctx)
			}),
		},
		&cobra.Command{
			Use:   "retry <id>",
			Short: "Move a quarantined change back to the queue",
			Args:  cobra.ExactArgs(1),
			RunE: s.run(func(ctx context.Context, c *Cli, args []string) error {
				return c.runQuarantineRetry(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "drop <id>",
			Short: "Abandon a quarantined change",
			Args:  cobra.ExactArgs(1),
			RunE: s.run(func(ctx context.Context, c *Cli, args []string) error {
				return c.runQuarantineDrop(ctx, args[0])
			}),
		},
	)
	return cmd
}

func (c *Cli) runQuarantineList(ctx context.Context) error {
	entries, err := c.queue.Quarantined(ctx)
	if err != nil {
		return err
	}
	return c.render("quarantine", queueTemplate, queueView{
		Title:   "Quarantine",
		Empty:   "No quarantined changes.",
		Entries: entries,
	})
}

func (c *Cli) runQuarantineRetry(ctx context.Context, id string) error {
	if err := c.queue.Retry(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("quarantined entry not found with ID: %s", id)
		}
		return err
	}
	c.io.Printf("✓ Entry %s moved back to the sync queue\n", id)
	return nil
}

func (c *Cli) runQuarantineDrop(ctx context.Context, id string) error {
	if err := c.queue.Drop(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("quarantined entry not found with ID: %s", id)
		}
		return err
	}
	c.io.Printf("✓ Entry %s dropped; the local record keeps its content\n", id)
	return nil
}
