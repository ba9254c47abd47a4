package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// NextQueueSeq returns the next enqueue sequence number
func (t *sqlTx) NextQueueSeq() (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}

	var seq int64
	err := t.tx.QueryRowContext(t.ctx,
		`UPDATE queue_sequence SET value = value + 1 WHERE id = 1 RETURNING value`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate queue sequence: %w", err)
	}
	return uint64(seq), nil
}

// PutQueueEntry stores or replaces an entry in queue q
func (t *sqlTx) PutQueueEntry(q storage.QueueName, entry *models.QueueEntry) error {
	if err := validQueue(q); err != nil {
		return err
	}
	if err := t.writable(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	query := `
		INSERT INTO queue_entries (queue, id, record_id, seq, priority, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(queue, id) DO UPDATE SET
			record_id = excluded.record_id,
			seq = excluded.seq,
			priority = excluded.priority,
			data = excluded.data
	`
	_, err = t.tx.ExecContext(t.ctx, query,
		string(q), entry.ID, entry.RecordID, int64(entry.Seq), entry.Priority, data)
	if err != nil {
		return fmt.Errorf("failed to save queue entry: %w", err)
	}
	return nil
}

// GetQueueEntry returns entry by ID from queue q
func (t *sqlTx) GetQueueEntry(q storage.QueueName, id string) (*models.QueueEntry, error) {
	if err := validQueue(q); err != nil {
		return nil, err
	}

	var data []byte
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT data FROM queue_entries WHERE queue = ? AND id = ?`, string(q), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	entry := &models.QueueEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}
	return entry, nil
}

// DeleteQueueEntry removes entry from queue q
func (t *sqlTx) DeleteQueueEntry(q storage.QueueName, id string) error {
	if err := validQueue(q); err != nil {
		return err
	}
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM queue_entries WHERE queue = ? AND id = ?`, string(q), id)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

// ForEachQueueEntry calls fn for every entry in queue q in delivery order
func (t *sqlTx) ForEachQueueEntry(q storage.QueueName, fn func(entry *models.QueueEntry) error) error {
	if err := validQueue(q); err != nil {
		return err
	}

	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT data FROM queue_entries WHERE queue = ? ORDER BY priority DESC, seq`, string(q))
	if err != nil {
		return fmt.Errorf("failed to query queue entries: %w", err)
	}

	var entries []*models.QueueEntry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan queue entry: %w", err)
		}
		var entry models.QueueEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			rows.Close()
			return fmt.Errorf("failed to unmarshal queue entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate queue entries: %w", err)
	}
	rows.Close()

	for _, entry := range entries {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func validQueue(q storage.QueueName) error {
	switch q {
	case storage.QueueLive, storage.QueueQuarantine:
		return nil
	default:
		return fmt.Errorf("unknown queue %q", q)
	}
}
