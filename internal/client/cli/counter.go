package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophsync/internal/client/storage"
)

func newCounterCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Work with PN-counters",
		Long: `Counters are merged across replicas without losing concurrent increments.
A counter is created by its first increment or decrement.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "incr <id> [delta]",
			Short: "Increment a counter (delta defaults to 1)",
			Args:  cobra.RangeArgs(1, 2),
			RunE: s.run(func(ctx context.Context, c *Cli, args []string) error {
				return c.runCounterAdd(ctx, args, false)
			}),
		},
		&cobra.Command{
			Use:   "decr <id> [delta]",
			Short: "Decrement a counter (delta defaults to 1)",
			Args:  cobra.RangeArgs(1, 2),
			RunE: s.run(func(ctx context.Context, c *Cli, args []string) error {
				return c.runCounterAdd(ctx, args, true)
			}),
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show counter value",
			Args:  cobra.ExactArgs(1),
			RunE: s.run(func(ctx context.Context, c *Cli, args []string) error {
				return c.runCounterGet(ctx, args[0])
			}),
		},
	)
	return cmd
}

func parseDelta(args []string) (uint64, error) {
	if len(args) < 2 {
		return 1, nil
	}
	delta, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil || delta == 0 {
		return 0, fmt.Errorf("invalid delta %q: must be a positive integer", args[1])
	}
	return delta, nil
}

func (c *Cli) runCounterAdd(ctx context.Context, args []string, decrement bool) error {
	delta, err := parseDelta(args)
	if err != nil {
		return err
	}

	id := args[0]
	var value int64
	if decrement {
		value, err = c.records.Decrement(ctx, id, delta)
	} else {
		value, err = c.records.Increment(ctx, id, delta)
	}
	if err != nil {
		return fmt.Errorf("failed to update counter: %w", err)
	}

	c.io.Printf("%s = %d\n", id, value)
	return nil
}

func (c *Cli) runCounterGet(ctx context.Context, id string) error {
	value, err := c.records.CounterValue(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("counter not found with ID: %s", id)
		}
		return fmt.Errorf("failed to read counter: %w", err)
	}

	c.io.Printf("%s = %d\n", id, value)
	return nil
}
