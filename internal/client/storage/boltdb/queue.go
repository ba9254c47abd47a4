package boltdb

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// NextQueueSeq returns the next enqueue sequence number.
// Sequence lives in the live queue bucket and never goes back, even when entries are removed.
func (t *boltTx) NextQueueSeq() (uint64, error) {
	bucket, err := t.bucket(bucketQueue)
	if err != nil {
		return 0, err
	}
	seq, err := bucket.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate queue sequence: %w", err)
	}
	return seq, nil
}

// PutQueueEntry stores or replaces an entry in queue q
func (t *boltTx) PutQueueEntry(q storage.QueueName, entry *models.QueueEntry) error {
	bucket, err := t.queue(q)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}
	if err := bucket.Put([]byte(entry.ID), data); err != nil {
		return fmt.Errorf("failed to save queue entry: %w", err)
	}
	return nil
}

// GetQueueEntry returns entry by ID from queue q
func (t *boltTx) GetQueueEntry(q storage.QueueName, id string) (*models.QueueEntry, error) {
	bucket, err := t.queue(q)
	if err != nil {
		return nil, err
	}

	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, storage.ErrNotFound
	}

	entry := &models.QueueEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}
	return entry, nil
}

// DeleteQueueEntry removes entry from queue q
func (t *boltTx) DeleteQueueEntry(q storage.QueueName, id string) error {
	bucket, err := t.queue(q)
	if err != nil {
		return err
	}
	if err := bucket.Delete([]byte(id)); err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

// ForEachQueueEntry calls fn for every entry in queue q
func (t *boltTx) ForEachQueueEntry(q storage.QueueName, fn func(entry *models.QueueEntry) error) error {
	bucket, err := t.queue(q)
	if err != nil {
		return err
	}

	var entries []*models.QueueEntry
	err = bucket.ForEach(func(k, v []byte) error {
		var entry models.QueueEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal queue entry %s: %w", k, err)
		}
		entries = append(entries, &entry)
		return nil
	})
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (t *boltTx) queue(q storage.QueueName) (*bbolt.Bucket, error) {
	name, err := queueBucket(q)
	if err != nil {
		return nil, err
	}
	return t.bucket(name)
}
