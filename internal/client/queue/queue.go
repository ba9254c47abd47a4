// Package queue is the durable outbound queue of local mutations.
// Entries survive restarts, are delivered in batches and are retried with
// exponential backoff; entries that keep failing are moved to quarantine.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/crypto"
	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/pkg/api"
)

const (
	// PriorityNormal is the priority of regular updates
	PriorityNormal = 0
	// PriorityDelete is the priority of deletions; they are delivered before updates
	PriorityDelete = 10
)

// ErrDrainInProgress is returned when another drain of the same queue is running
var ErrDrainInProgress = errors.New("queue drain already in progress")

// Config holds queue delivery settings
type Config struct {
	BatchSize    int
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	CallTimeout  time.Duration // CallTimeout ограничивает один вызов Push
}

// DefaultConfig returns queue settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		BatchSize:    50,
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Minute,
		CallTimeout:  30 * time.Second,
	}
}

// RejectionHandler resolves per-item server rejections.
// It runs inside the transaction that applies the push response; returning
// resolved=true removes the entry from the queue.
type RejectionHandler interface {
	HandleRejection(tx storage.Tx, entry *models.QueueEntry, rej api.Rejection) (resolved bool, err error)
}

// Queue delivers local changes to the remote
type Queue struct {
	store   storage.Storage
	remote  remote.Remote
	handler RejectionHandler
	logger  *slog.Logger
	now     func() time.Time
	wake    chan struct{}
	cfg     Config
	drainMu sync.Mutex
	online  atomic.Bool
}

// Option configures Queue
type Option func(*Queue)

// WithLogger sets the queue logger
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithClock replaces the wall clock used for backoff scheduling
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithRejectionHandler sets the handler of per-item rejections
func WithRejectionHandler(h RejectionHandler) Option {
	return func(q *Queue) {
		q.handler = h
	}
}

// New creates a queue. The queue starts offline.
func New(store storage.Storage, rmt remote.Remote, cfg Config, opts ...Option) *Queue {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}

	q := &Queue{
		store:  store,
		remote: rmt,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	return q
}

// SetRejectionHandler replaces the rejection handler
// Must be called before the queue is used
func (q *Queue) SetRejectionHandler(h RejectionHandler) {
	q.handler = h
}

// SetOnline switches network availability; going online wakes the run loop
func (q *Queue) SetOnline(online bool) {
	prev := q.online.Swap(online)
	if prev != online {
		q.logger.Info("Network status changed", "online", online)
	}
	if online {
		q.Notify()
	}
}

// Online reports whether the queue may call the remote
func (q *Queue) Online() bool {
	return q.online.Load()
}

// Notify wakes the run loop without blocking
func (q *Queue) Notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Enqueue stores a snapshot of rec for delivery
func (q *Queue) Enqueue(ctx context.Context, rec *models.Record, priority int) (*models.QueueEntry, error) {
	var entry *models.QueueEntry
	err := q.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		entry, err = q.EnqueueTx(tx, rec, priority)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue record %s: %w", rec.ID, err)
	}
	q.Notify()
	return entry, nil
}

// EnqueueTx is Enqueue inside an existing transaction.
//
// There is at most one live entry per record. A newer version replaces the snapshot of the
// existing entry, keeping its position, and resets the retry budget. Versions that are already
// queued or quarantined are ignored.
func (q *Queue) EnqueueTx(tx storage.Tx, rec *models.Record, priority int) (*models.QueueEntry, error) {
	if rec == nil || rec.ID == "" {
		return nil, fmt.Errorf("%w: nothing to enqueue", storage.ErrInvalidRecord)
	}
	now := q.now().UnixMilli()

	quarantined, err := tx.GetQueueEntry(storage.QueueQuarantine, rec.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		quarantined = nil
	case err != nil:
		return nil, err
	case quarantined.Version >= rec.Version:
		return quarantined, nil
	}

	snapshot := rec.Clone()
	snapshot.Dirty = false
	snapshot.SyncedAt = nil
	checksum, err := Checksum(snapshot)
	if err != nil {
		return nil, err
	}

	entry, err := tx.GetQueueEntry(storage.QueueLive, rec.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		seq, err := tx.NextQueueSeq()
		if err != nil {
			return nil, err
		}
		entry = &models.QueueEntry{
			ID:         rec.ID,
			RecordID:   rec.ID,
			Seq:        seq,
			EnqueuedAt: now,
		}
	case err != nil:
		return nil, err
	case entry.Version >= rec.Version:
		return entry, nil
	}

	entry.Snapshot = snapshot
	entry.Version = rec.Version
	entry.Checksum = checksum
	entry.Priority = priority
	entry.Attempts = 0
	entry.LastError = ""
	entry.NextAttemptAt = now

	if err := tx.PutQueueEntry(storage.QueueLive, entry); err != nil {
		return nil, err
	}
	// Новая версия заменяет зависшую в карантине
	if quarantined != nil {
		if err := tx.DeleteQueueEntry(storage.QueueQuarantine, quarantined.ID); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// Discard removes every queued change of a record
func (q *Queue) Discard(ctx context.Context, recordID string) error {
	err := q.store.Update(ctx, func(tx storage.Tx) error {
		return q.DiscardTx(tx, recordID)
	})
	if err != nil {
		return fmt.Errorf("failed to discard entries of %s: %w", recordID, err)
	}
	return nil
}

// DiscardTx removes every queued change of a record
func (q *Queue) DiscardTx(tx storage.Tx, recordID string) error {
	if err := tx.DeleteQueueEntry(storage.QueueLive, recordID); err != nil {
		return err
	}
	return tx.DeleteQueueEntry(storage.QueueQuarantine, recordID)
}

// Pending returns live entries in delivery order
func (q *Queue) Pending(ctx context.Context) ([]*models.QueueEntry, error) {
	entries, err := q.list(ctx, storage.QueueLive)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Less(entries[j]) })
	return entries, nil
}

// Quarantined returns quarantined entries, oldest first
func (q *Queue) Quarantined(ctx context.Context) ([]*models.QueueEntry, error) {
	entries, err := q.list(ctx, storage.QueueQuarantine)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if *a.QuarantinedAt != *b.QuarantinedAt {
			return *a.QuarantinedAt < *b.QuarantinedAt
		}
		return a.Seq < b.Seq
	})
	return entries, nil
}

func (q *Queue) list(ctx context.Context, name storage.QueueName) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	err := q.store.View(ctx, func(tx storage.Tx) error {
		return tx.ForEachQueueEntry(name, func(e *models.QueueEntry) error {
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", name, err)
	}
	return entries, nil
}

// Retry moves a quarantined entry back to the live queue with a fresh retry budget
func (q *Queue) Retry(ctx context.Context, id string) error {
	err := q.store.Update(ctx, func(tx storage.Tx) error {
		entry, err := tx.GetQueueEntry(storage.QueueQuarantine, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteQueueEntry(storage.QueueQuarantine, id); err != nil {
			return err
		}

		live, err := tx.GetQueueEntry(storage.QueueLive, id)
		if err == nil && live.Version >= entry.Version {
			return nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		entry.QuarantinedAt = nil
		entry.Attempts = 0
		entry.NextAttemptAt = q.now().UnixMilli()
		return tx.PutQueueEntry(storage.QueueLive, entry)
	})
	if err != nil {
		return fmt.Errorf("failed to retry entry %s: %w", id, err)
	}
	q.logger.Info("Quarantined entry requeued", "record_id", id)
	q.Notify()
	return nil
}

// Drop abandons a quarantined entry and gives up the local change it carried.
// The record keeps its content and is settled at that version: it is no longer dirty
// and SyncedAt catches up with UpdatedAt, so nothing re-enqueues it.
// A later local edit is queued again as usual.
func (q *Queue) Drop(ctx context.Context, id string) error {
	err := q.store.Update(ctx, func(tx storage.Tx) error {
		entry, err := tx.GetQueueEntry(storage.QueueQuarantine, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteQueueEntry(storage.QueueQuarantine, id); err != nil {
			return err
		}

		rec, err := tx.GetRecord(entry.RecordID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Version != entry.Version || (!rec.Dirty && !rec.NeedsSync()) {
			return nil
		}
		// Запись больше не ждет отправки: dirty сбрасывается вместе с SyncedAt
		settled := rec.UpdatedAt
		if rec.SyncedAt != nil && *rec.SyncedAt > settled {
			settled = *rec.SyncedAt
		}
		rec.Dirty = false
		rec.SyncedAt = &settled
		return tx.PutRecord(rec)
	})
	if err != nil {
		return fmt.Errorf("failed to drop entry %s: %w", id, err)
	}
	q.logger.Warn("Quarantined entry dropped", "record_id", id)
	return nil
}

// Stats summarizes queue state
type Stats struct {
	Pending     int
	Due         int // Due число записей, готовых к отправке сейчас
	Quarantined int
	NextAttempt int64 // NextAttempt ближайшее время повторной попытки, 0 если нет отложенных
}

// Stats returns queue counters
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	now := q.now().UnixMilli()
	var st Stats
	err := q.store.View(ctx, func(tx storage.Tx) error {
		err := tx.ForEachQueueEntry(storage.QueueLive, func(e *models.QueueEntry) error {
			st.Pending++
			if e.NextAttemptAt <= now {
				st.Due++
			} else if st.NextAttempt == 0 || e.NextAttemptAt < st.NextAttempt {
				st.NextAttempt = e.NextAttemptAt
			}
			return nil
		})
		if err != nil {
			return err
		}
		return tx.ForEachQueueEntry(storage.QueueQuarantine, func(*models.QueueEntry) error {
			st.Quarantined++
			return nil
		})
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return st, nil
}

// Checksum returns the BLAKE2b-256 digest of a snapshot
func Checksum(snapshot *models.Record) (string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return crypto.Digest(data), nil
}
