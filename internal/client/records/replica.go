package records

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/crdt"
)

// EnsureReplicaID returns the persisted replica ID, generating one on first open.
// A non-empty override replaces the stored value.
func EnsureReplicaID(ctx context.Context, store storage.Storage, override string) (string, error) {
	var id string

	err := store.Update(ctx, func(tx storage.Tx) error {
		if override != "" {
			id = override
			return storage.SetReplicaID(tx, id)
		}

		stored, err := storage.GetReplicaID(tx)
		if err != nil {
			return err
		}
		if stored != "" {
			id = stored
			return nil
		}

		id = uuid.New().String()
		return storage.SetReplicaID(tx, id)
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve replica id: %w", err)
	}

	return id, nil
}

// RestoreClock moves clock past the last timestamp persisted by this replica
func RestoreClock(ctx context.Context, store storage.Storage, clock *crdt.Clock) error {
	return store.View(ctx, func(tx storage.Tx) error {
		wm, err := storage.GetClockWatermark(tx)
		if err != nil {
			return fmt.Errorf("failed to restore clock: %w", err)
		}
		clock.Observe(wm)
		return nil
	})
}
