package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophsync/internal/client/records"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

type putOptions struct {
	recordType    string
	data          string
	file          string
	schemaVersion int
}

func newPutCommand(s *session) *cobra.Command {
	opts := &putOptions{}
	cmd := &cobra.Command{
		Use:   "put [id]",
		Short: "Create or update a record",
		Long: `Create or update a record in the local replica.

The payload is a JSON object given with --data or read from --file ('-' for stdin).
Without an id a new UUID is generated. The change is pushed on the next sync.`,
		Example: `  gophsync put --type note --data '{"title":"groceries"}'
  gophsync put n1 --type note --file note.json`,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.RunE = s.run(func(ctx context.Context, c *Cli, args []string) error {
		var id string
		if len(args) > 0 {
			id = args[0]
		}
		return c.runPut(ctx, id, opts, cmd.InOrStdin())
	})
	cmd.Flags().StringVarP(&opts.recordType, "type", "t", "", "record type")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON payload")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read JSON payload from file")
	cmd.Flags().IntVar(&opts.schemaVersion, "schema-version", 1, "payload schema version")
	_ = cmd.MarkFlagRequired("type")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	cmd.MarkFlagsOneRequired("data", "file")
	return cmd
}

func (c *Cli) runPut(ctx context.Context, id string, opts *putOptions, in io.Reader) error {
	payload, err := readPayload(opts, in)
	if err != nil {
		return err
	}

	rec, err := c.records.Put(ctx, &models.Record{
		ID:            id,
		Type:          opts.recordType,
		SchemaVersion: opts.schemaVersion,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	c.io.Printf("✓ Record %s saved (version %d)\n", rec.ID, rec.Version)
	return nil
}

func readPayload(opts *putOptions, in io.Reader) (json.RawMessage, error) {
	data := []byte(opts.data)
	switch opts.file {
	case "":
	case "-":
		var err error
		if data, err = io.ReadAll(in); err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
	default:
		var err error
		if data, err = os.ReadFile(opts.file); err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func newGetCommand(s *session) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a record",
		Args:  cobra.ExactArgs(1),
		RunE: s.run(func(ctx context.Context, c *Cli, args []string) error {
			return c.runGet(ctx, args[0], asJSON)
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	return cmd
}

func (c *Cli) runGet(ctx context.Context, id string, asJSON bool) error {
	rec, err := c.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("record not found with ID: %s", id)
		}
		return fmt.Errorf("failed to get record: %w", err)
	}

	if asJSON {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		c.io.Println(string(data))
		return nil
	}
	return c.render("record", recordTemplate, rec)
}

func newListCommand(s *session) *cobra.Command {
	opts := records.ListOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *Cli, _ []string) error {
			return c.runList(ctx, opts)
		}),
	}
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "only records of this type")
	cmd.Flags().BoolVarP(&opts.IncludeDeleted, "all", "a", false, "include deleted records")
	cmd.Flags().BoolVar(&opts.DirtyOnly, "dirty", false, "only records with unsynced changes")
	return cmd
}

func (c *Cli) runList(ctx context.Context, opts records.ListOptions) error {
	recs, err := c.records.List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	return c.render("records", recordListTemplate, recs)
}

func newDeleteCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record (soft delete)",
		Args:  cobra.ExactArgs(1),
		RunE: s.run(func(ctx context.Context, c *Cli, args []string) error {
			return c.runDelete(ctx, args[0])
		}),
	}
}

func (c *Cli) runDelete(ctx context.Context, id string) error {
	rec, err := c.records.SoftDelete(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("record not found with ID: %s", id)
		}
		return fmt.Errorf("failed to delete record: %w", err)
	}

	c.io.Printf("✓ Record %s deleted (version %d)\n", rec.ID, rec.Version)
	c.io.Println("The deletion will be pushed on the next sync.")
	return nil
}
