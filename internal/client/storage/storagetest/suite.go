// Package storagetest provides a behaviour suite shared by storage backends.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// Opener opens (or reopens) a backend at a fixed location for the duration of a test.
type Opener func(t *testing.T) storage.Storage

// Run executes the shared suite. newOpener must return a fresh location on every call;
// opening the returned Opener twice must yield the same data.
func Run(t *testing.T, newOpener func(t *testing.T) Opener) {
	tests := []struct {
		fn   func(t *testing.T, open Opener)
		name string
	}{
		{name: "RecordCRUD", fn: testRecordCRUD},
		{name: "ForEachRecordOrdered", fn: testForEachRecordOrdered},
		{name: "RollbackOnError", fn: testRollbackOnError},
		{name: "ViewIsReadOnly", fn: testViewIsReadOnly},
		{name: "QueueEntries", fn: testQueueEntries},
		{name: "QueueSeqMonotonic", fn: testQueueSeqMonotonic},
		{name: "Metadata", fn: testMetadata},
		{name: "SurvivesReopen", fn: testSurvivesReopen},
		{name: "Closed", fn: testClosed},
		{name: "CanceledContext", fn: testCanceledContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newOpener(t))
		})
	}
}

func sampleRecord(id string) *models.Record {
	return &models.Record{
		ID:        id,
		Kind:      models.KindRecord,
		Type:      "note",
		Payload:   json.RawMessage(`{"title":"` + id + `"}`),
		ReplicaID: "replica-a",
		CreatedAt: 100,
		UpdatedAt: 200,
		Version:   1,
		Dirty:     true,
	}
}

func testRecordCRUD(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)

	rec := sampleRecord("rec-1")
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		return tx.PutRecord(rec)
	}))

	var got *models.Record
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		var err error
		got, err = tx.GetRecord("rec-1")
		return err
	}))
	assert.Equal(t, rec, got)

	// Обновление
	rec.Version = 2
	rec.DeletedAt = models.Int64Ptr(300)
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		return tx.PutRecord(rec)
	}))
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		var err error
		got, err = tx.GetRecord("rec-1")
		return err
	}))
	assert.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, int64(300), *got.DeletedAt)

	// Удаление
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteRecord("rec-1"); err != nil {
			return err
		}
		// Повторное удаление не является ошибкой
		return tx.DeleteRecord("rec-1")
	}))
	err := s.View(ctx, func(tx storage.Tx) error {
		_, err := tx.GetRecord("rec-1")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testForEachRecordOrdered(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		for _, id := range []string{"c", "a", "b"} {
			if err := tx.PutRecord(sampleRecord(id)); err != nil {
				return err
			}
		}
		return nil
	}))

	var ids []string
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		return tx.ForEachRecord(func(rec *models.Record) error {
			ids = append(ids, rec.ID)
			return nil
		})
	}))
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	// fn может изменять записи во время обхода
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		return tx.ForEachRecord(func(rec *models.Record) error {
			return tx.DeleteRecord(rec.ID)
		})
	}))
	count := 0
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		return tx.ForEachRecord(func(*models.Record) error {
			count++
			return nil
		})
	}))
	assert.Zero(t, count)
}

func testRollbackOnError(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.PutRecord(sampleRecord("partial")); err != nil {
			return err
		}
		if err := tx.SetMeta("k", []byte("v")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		_, err := tx.GetRecord("partial")
		assert.ErrorIs(t, err, storage.ErrNotFound, "record from failed transaction must not be visible")
		_, err = tx.GetMeta("k")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))
}

func testViewIsReadOnly(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)

	err := s.View(ctx, func(tx storage.Tx) error {
		return tx.PutRecord(sampleRecord("ro"))
	})
	assert.Error(t, err)
}

func testQueueEntries(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)

	entry := &models.QueueEntry{
		ID:       "entry-1",
		RecordID: "rec-1",
		Version:  3,
		Snapshot: sampleRecord("rec-1"),
		Checksum: "abc",
		Seq:      1,
		Priority: 5,
	}

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		return tx.PutQueueEntry(storage.QueueLive, entry)
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		got, err := tx.GetQueueEntry(storage.QueueLive, "entry-1")
		require.NoError(t, err)
		assert.Equal(t, entry, got)

		// Очереди изолированы друг от друга
		_, err = tx.GetQueueEntry(storage.QueueQuarantine, "entry-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))

	// Перемещение в карантин
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteQueueEntry(storage.QueueLive, entry.ID); err != nil {
			return err
		}
		entry.QuarantinedAt = models.Int64Ptr(1000)
		return tx.PutQueueEntry(storage.QueueQuarantine, entry)
	}))

	live, quarantined := 0, 0
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		if err := tx.ForEachQueueEntry(storage.QueueLive, func(*models.QueueEntry) error {
			live++
			return nil
		}); err != nil {
			return err
		}
		return tx.ForEachQueueEntry(storage.QueueQuarantine, func(e *models.QueueEntry) error {
			quarantined++
			assert.NotNil(t, e.QuarantinedAt)
			return nil
		})
	}))
	assert.Equal(t, 0, live)
	assert.Equal(t, 1, quarantined)

	err := s.View(ctx, func(tx storage.Tx) error {
		return tx.PutQueueEntry(storage.QueueName("bogus"), entry)
	})
	assert.Error(t, err)
}

func testQueueSeqMonotonic(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
			seq, err := tx.NextQueueSeq()
			seqs = append(seqs, seq)
			return err
		}))
	}
	require.Len(t, seqs, 3)
	assert.Less(t, seqs[0], seqs[1])
	assert.Less(t, seqs[1], seqs[2])
}

func testMetadata(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		cp, err := storage.GetCheckpoint(tx)
		require.NoError(t, err)
		assert.Empty(t, cp.Cursor)

		id, err := storage.GetReplicaID(tx)
		require.NoError(t, err)
		assert.Empty(t, id)

		ts, err := storage.GetLastSyncTimestamp(tx)
		require.NoError(t, err)
		assert.Zero(t, ts)
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		if err := storage.SetCheckpoint(tx, models.Checkpoint{Cursor: "c-42", UpdatedAt: 7}); err != nil {
			return err
		}
		if err := storage.SetReplicaID(tx, "replica-x"); err != nil {
			return err
		}
		if err := storage.SetToken(tx, "tok"); err != nil {
			return err
		}
		if err := storage.SetClockWatermark(tx, 555); err != nil {
			return err
		}
		return storage.SetLastSyncTimestamp(tx, 1234567890123)
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		cp, err := storage.GetCheckpoint(tx)
		require.NoError(t, err)
		assert.Equal(t, models.Checkpoint{Cursor: "c-42", UpdatedAt: 7}, cp)

		id, err := storage.GetReplicaID(tx)
		require.NoError(t, err)
		assert.Equal(t, "replica-x", id)

		token, err := storage.GetToken(tx)
		require.NoError(t, err)
		assert.Equal(t, "tok", token)

		wm, err := storage.GetClockWatermark(tx)
		require.NoError(t, err)
		assert.Equal(t, int64(555), wm)

		ts, err := storage.GetLastSyncTimestamp(tx)
		require.NoError(t, err)
		assert.Equal(t, int64(1234567890123), ts)
		return nil
	}))
}

// Данные, записанные до "падения" процесса, доступны после повторного открытия.
func testSurvivesReopen(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.PutRecord(sampleRecord("durable")); err != nil {
			return err
		}
		return tx.PutQueueEntry(storage.QueueLive, &models.QueueEntry{ID: "q-1", RecordID: "durable", Version: 1, Seq: 1})
	}))
	require.NoError(t, s.Close())

	reopened := open(t)
	require.NoError(t, reopened.View(ctx, func(tx storage.Tx) error {
		rec, err := tx.GetRecord("durable")
		if err != nil {
			return fmt.Errorf("record lost: %w", err)
		}
		assert.Equal(t, "durable", rec.ID)
		_, err = tx.GetQueueEntry(storage.QueueLive, "q-1")
		return err
	}))
}

func testClosed(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t)
	require.NoError(t, s.Close())
	// Повторный Close не должен падать
	require.NoError(t, s.Close())

	err := s.Update(ctx, func(tx storage.Tx) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	err = s.View(ctx, func(tx storage.Tx) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func testCanceledContext(t *testing.T, open Opener) {
	s := open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Update(ctx, func(tx storage.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
