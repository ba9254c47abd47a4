package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/crdt"
	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/internal/validation"
)

// DefaultCounterType is the payload type assigned to counters created implicitly by Increment
const DefaultCounterType = "counter"

//go:generate moq -out service_mock.go . Service

// Service is the Record Store: the only owner allowed to mutate local records.
// It has no network side effects.
type Service interface {
	// Put inserts or updates a general record and marks it dirty
	Put(ctx context.Context, rec *models.Record) (*models.Record, error)

	// Get returns record by ID, including soft-deleted ones
	// Returns storage.ErrNotFound if record doesn't exist
	Get(ctx context.Context, id string) (*models.Record, error)

	// List returns records matching opts ordered by ID
	List(ctx context.Context, opts ListOptions) ([]*models.Record, error)

	// MarkSynced clears the dirty flag of the acknowledged version
	// Returns storage.ErrVersionMismatch if the record changed after the acknowledged snapshot
	MarkSynced(ctx context.Context, id string, version, serverTimestamp int64) error

	// SoftDelete marks record as deleted; the deletion is synced like any other change
	SoftDelete(ctx context.Context, id string) (*models.Record, error)

	// Increment adds delta to the local replica slot of a counter and returns the new value
	Increment(ctx context.Context, id string, delta uint64) (int64, error)

	// Decrement subtracts delta via the local replica slot of a counter and returns the new value
	Decrement(ctx context.Context, id string, delta uint64) (int64, error)

	// CounterValue returns the current counter value
	CounterValue(ctx context.Context, id string) (int64, error)

	// Purge removes clean soft-deleted records older than retention
	Purge(ctx context.Context, retention time.Duration) (int, error)

	// ReplicaID returns the identity of the local replica
	ReplicaID() string
}

// ListOptions filters List results
type ListOptions struct {
	Type           string // Type ограничивает выборку одним типом payload
	IncludeDeleted bool
	DirtyOnly      bool
}

// service implements Service over a transactional storage
type service struct {
	store     storage.Storage
	clock     *crdt.Clock
	schemas   *validation.Registry
	replicaID string
}

// NewService creates a new Record Store
func NewService(store storage.Storage, clock *crdt.Clock, replicaID string, schemas *validation.Registry) Service {
	return &service{
		store:     store,
		clock:     clock,
		schemas:   schemas,
		replicaID: replicaID,
	}
}

func (s *service) ReplicaID() string {
	return s.replicaID
}

// Put inserts or updates a general record
func (s *service) Put(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: record is nil", storage.ErrInvalidRecord)
	}

	in := rec.Clone()
	if in.Kind == "" {
		in.Kind = models.KindRecord
	}
	if in.Kind != models.KindRecord {
		return nil, fmt.Errorf("%w: kind %q can't be written directly", storage.ErrInvalidRecord, in.Kind)
	}

	// Генерируем ID если не задан
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if err := validation.ValidateID(in.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}
	if err := validation.ValidateType(in.Type); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}
	if s.schemas != nil {
		if err := s.schemas.Validate(in.Type, in.SchemaVersion, in.Payload); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
		}
	}

	return s.mutate(ctx, in.ID, func(existing *models.Record, now int64) (*models.Record, error) {
		out := in.Clone()
		out.ReplicaID = s.replicaID
		out.UpdatedAt = now
		out.Dirty = true
		out.DeletedAt = nil
		out.SyncedAt = nil

		if existing == nil {
			out.CreatedAt = now
			out.Version = 1
			return out, nil
		}

		if existing.Kind != models.KindRecord {
			return nil, fmt.Errorf("%w: record %s is a %s", storage.ErrInvalidRecord, existing.ID, existing.Kind)
		}
		out.CreatedAt = existing.CreatedAt
		out.Version = existing.Version + 1
		out.SyncedAt = existing.SyncedAt
		return out, nil
	})
}

// Get returns record by ID
func (s *service) Get(ctx context.Context, id string) (*models.Record, error) {
	var rec *models.Record
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		rec, err = tx.GetRecord(id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

// List returns records matching opts
func (s *service) List(ctx context.Context, opts ListOptions) ([]*models.Record, error) {
	result := make([]*models.Record, 0)
	err := s.store.View(ctx, func(tx storage.Tx) error {
		return tx.ForEachRecord(func(rec *models.Record) error {
			if rec.IsDeleted() && !opts.IncludeDeleted {
				return nil
			}
			if opts.DirtyOnly && !rec.Dirty {
				return nil
			}
			if opts.Type != "" && rec.Type != opts.Type {
				return nil
			}
			result = append(result, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return result, nil
}

// MarkSynced clears the dirty flag if the stored version is the acknowledged one
func (s *service) MarkSynced(ctx context.Context, id string, version, serverTimestamp int64) error {
	return s.store.Update(ctx, func(tx storage.Tx) error {
		return MarkSyncedTx(tx, id, version, serverTimestamp)
	})
}

// MarkSyncedTx is MarkSynced inside an existing transaction
func MarkSyncedTx(tx storage.Tx, id string, version, serverTimestamp int64) error {
	rec, err := tx.GetRecord(id)
	if err != nil {
		return fmt.Errorf("failed to get record %s: %w", id, err)
	}

	// Запись изменилась после снимка - остается dirty и уйдет следующим push
	if rec.Version != version {
		return fmt.Errorf("%w: record %s has version %d, acknowledged %d",
			storage.ErrVersionMismatch, id, rec.Version, version)
	}

	synced := max(serverTimestamp, rec.UpdatedAt)
	rec.SyncedAt = &synced
	rec.Dirty = false

	if err := tx.PutRecord(rec); err != nil {
		return fmt.Errorf("failed to save record %s: %w", id, err)
	}
	return nil
}

// SoftDelete marks record as deleted
// Deleting an already deleted record returns it unchanged
func (s *service) SoftDelete(ctx context.Context, id string) (*models.Record, error) {
	return s.mutate(ctx, id, func(existing *models.Record, now int64) (*models.Record, error) {
		if existing == nil {
			return nil, storage.ErrNotFound
		}
		if existing.IsDeleted() {
			return nil, errUnchanged
		}

		out := existing.Clone()
		out.DeletedAt = models.Int64Ptr(now)
		out.UpdatedAt = now
		out.Version++
		out.Dirty = true
		out.ReplicaID = s.replicaID
		return out, nil
	})
}

// Increment adds delta to the counter
func (s *service) Increment(ctx context.Context, id string, delta uint64) (int64, error) {
	return s.updateCounter(ctx, id, func(c *crdt.PNCounter) error {
		return c.Increment(s.replicaID, delta)
	})
}

// Decrement subtracts delta from the counter
func (s *service) Decrement(ctx context.Context, id string, delta uint64) (int64, error) {
	return s.updateCounter(ctx, id, func(c *crdt.PNCounter) error {
		return c.Decrement(s.replicaID, delta)
	})
}

// CounterValue returns the current counter value
func (s *service) CounterValue(ctx context.Context, id string) (int64, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if rec.Kind != models.KindCounter {
		return 0, fmt.Errorf("%w: record %s is not a counter", storage.ErrInvalidRecord, id)
	}

	counter, err := crdt.ParsePNCounter(rec.Payload)
	if err != nil {
		return 0, err
	}
	return counter.Value(), nil
}

// updateCounter is an atomic read-modify-write of the counter state
func (s *service) updateCounter(ctx context.Context, id string, op func(c *crdt.PNCounter) error) (int64, error) {
	if err := validation.ValidateID(id); err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}

	var value int64
	_, err := s.mutate(ctx, id, func(existing *models.Record, now int64) (*models.Record, error) {
		var out *models.Record
		if existing == nil {
			out = &models.Record{
				ID:        id,
				Kind:      models.KindCounter,
				Type:      DefaultCounterType,
				CreatedAt: now,
			}
		} else {
			if existing.Kind != models.KindCounter {
				return nil, fmt.Errorf("%w: record %s is not a counter", storage.ErrInvalidRecord, id)
			}
			if existing.IsDeleted() {
				return nil, fmt.Errorf("%w: counter %s is deleted", storage.ErrInvalidRecord, id)
			}
			out = existing.Clone()
		}

		counter, err := crdt.ParsePNCounter(out.Payload)
		if err != nil {
			return nil, err
		}
		if err := op(counter); err != nil {
			return nil, err
		}
		payload, err := counter.Bytes()
		if err != nil {
			return nil, err
		}

		out.Payload = payload
		out.UpdatedAt = now
		out.Version++
		out.Dirty = true
		out.ReplicaID = s.replicaID
		value = counter.Value()
		return out, nil
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Purge removes clean soft-deleted records whose deletion is older than retention
func (s *service) Purge(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.clock.Now() - retention.Milliseconds()

	purged := 0
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		return tx.ForEachRecord(func(rec *models.Record) error {
			if !rec.IsDeleted() || rec.Dirty || *rec.DeletedAt >= cutoff {
				return nil
			}
			if err := tx.DeleteRecord(rec.ID); err != nil {
				return err
			}
			purged++
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge records: %w", err)
	}
	return purged, nil
}

// errUnchanged aborts mutate without writing anything
var errUnchanged = errors.New("unchanged")

// mutate runs a read-modify-write of one record in a single write transaction.
// The timestamp passed to fn is strictly greater than the existing record's UpdatedAt.
func (s *service) mutate(
	ctx context.Context,
	id string,
	fn func(existing *models.Record, now int64) (*models.Record, error),
) (*models.Record, error) {
	var result *models.Record

	err := s.store.Update(ctx, func(tx storage.Tx) error {
		existing, err := tx.GetRecord(id)
		if errors.Is(err, storage.ErrNotFound) {
			existing = nil
		} else if err != nil {
			return err
		}

		now := s.stamp(existing)
		out, err := fn(existing, now)
		if errors.Is(err, errUnchanged) {
			result = existing
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.PutRecord(out); err != nil {
			return err
		}
		if err := storage.SetClockWatermark(tx, now); err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write record %s: %w", id, err)
	}
	return result.Clone(), nil
}

// stamp returns a logical timestamp newer than any version of the record seen so far
func (s *service) stamp(existing *models.Record) int64 {
	if existing != nil {
		s.clock.Observe(existing.UpdatedAt)
	}
	return s.clock.Now()
}
