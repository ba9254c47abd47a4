package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iudanet/gophsync/internal/client/api"
	"github.com/iudanet/gophsync/internal/client/storage"
)

var errEmptyToken = errors.New("token cannot be empty")

func newTokenCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the server access token",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [token]",
			Short: "Store the access token (prompted when omitted)",
			Args:  cobra.MaximumNArgs(1),
			RunE: s.run(func(ctx context.Context, c *Cli, args []string) error {
				var token string
				if len(args) > 0 {
					token = args[0]
				}
				return c.runTokenSet(ctx, token)
			}),
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the stored token and its expiry",
			Args:  cobra.NoArgs,
			RunE: s.run(func(ctx context.Context, c *Cli, _ []string) error {
				return c.runTokenShow(ctx)
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored token",
			Args:  cobra.NoArgs,
			RunE: s.run(func(ctx context.Context, c *Cli, _ []string) error {
				return c.saveToken(ctx, "", true)
			}),
		},
	)
	return cmd
}

func (c *Cli) runTokenSet(ctx context.Context, token string) error {
	if token == "" {
		var err error
		if token, err = c.io.ReadPassword("Token: "); err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errEmptyToken
	}
	return c.saveToken(ctx, token, false)
}

func (c *Cli) saveToken(ctx context.Context, token string, clearing bool) error {
	err := c.store.Update(ctx, func(tx storage.Tx) error {
		return storage.SetToken(tx, token)
	})
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if clearing {
		c.io.Println("✓ Token removed")
		return nil
	}
	c.io.Println("✓ Token saved")
	c.printExpiry(token)
	return nil
}

func (c *Cli) runTokenShow(ctx context.Context) error {
	var token string
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var err error
		token, err = storage.GetToken(tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	c.io.Println("=== Access Token ===")
	c.io.Println()
	if token == "" {
		c.io.Println("No token stored.")
		c.io.Println()
		c.io.Println("Run 'gophsync token set' to store one.")
		return nil
	}
	c.io.Printf("Token:   %s\n", maskToken(token))
	c.printExpiry(token)
	return nil
}

func (c *Cli) printExpiry(token string) {
	exp, ok := api.TokenExpiry(token)
	if !ok {
		return
	}
	now := c.now()
	c.io.Printf("Expires: %s (%s)\n", exp.UTC().Format(time.RFC3339), humanize.RelTime(exp, now, "ago", "from now"))
	if !exp.After(now) {
		c.io.Println("⚠️  Token has expired. Store a new one with 'gophsync token set'.")
	}
}

// maskToken keeps the first and last 4 characters
func maskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "..." + token[len(token)-4:]
}
