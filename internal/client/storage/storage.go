package storage

import (
	"context"

	"github.com/iudanet/gophsync/internal/models"
)

// QueueName selects one of the persisted queue lists
type QueueName string

const (
	// QueueLive holds entries waiting for delivery
	QueueLive QueueName = "queue"
	// QueueQuarantine holds entries that exhausted their retry budget
	QueueQuarantine QueueName = "quarantine"
)

// Storage is the durable local store of the sync engine.
// All reads and writes go through transactions; a write transaction either commits
// every change made by fn or none of them.
// fn must not open another transaction on the same Storage.
type Storage interface {
	// Update runs fn in a read-write transaction
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction
	View(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying database
	Close() error
}

// Tx is a storage transaction.
// Values passed in and returned are copies; mutating them does not change stored data.
type Tx interface {
	// GetRecord returns record by ID
	// Returns ErrNotFound if record doesn't exist
	GetRecord(id string) (*models.Record, error)

	// PutRecord stores or replaces a record
	PutRecord(rec *models.Record) error

	// DeleteRecord removes a record permanently
	// Missing records are ignored
	DeleteRecord(id string) error

	// ForEachRecord calls fn for every record ordered by ID
	ForEachRecord(fn func(rec *models.Record) error) error

	// NextQueueSeq returns the next monotonically increasing enqueue sequence number
	NextQueueSeq() (uint64, error)

	// PutQueueEntry stores or replaces an entry in queue q
	PutQueueEntry(q QueueName, entry *models.QueueEntry) error

	// GetQueueEntry returns entry by ID from queue q
	// Returns ErrNotFound if entry doesn't exist
	GetQueueEntry(q QueueName, id string) (*models.QueueEntry, error)

	// DeleteQueueEntry removes entry from queue q
	// Missing entries are ignored
	DeleteQueueEntry(q QueueName, id string) error

	// ForEachQueueEntry calls fn for every entry in queue q, in no particular order
	ForEachQueueEntry(q QueueName, fn func(entry *models.QueueEntry) error) error

	// GetMeta returns value stored under key
	// Returns ErrNotFound if key doesn't exist
	GetMeta(key string) ([]byte, error)

	// SetMeta stores value under key
	SetMeta(key string, value []byte) error
}
