package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/storage/storagetest"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)

	return s, func() { _ = s.Close() }
}

func TestNew_RunsMigrations(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	for _, table := range []string{"records", "metadata", "queue_entries", "queue_sequence"} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestNew_ReopenKeepsSequence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := New(ctx, dbPath)
	require.NoError(t, err)

	var first uint64
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		first, err = tx.NextQueueSeq()
		return err
	}))
	require.NoError(t, s.Close())

	// Повторный запуск миграций не должен сбрасывать последовательность
	s, err = New(ctx, dbPath)
	require.NoError(t, err)
	defer s.Close()

	var second uint64
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		second, err = tx.NextQueueSeq()
		return err
	}))
	assert.Equal(t, first+1, second)
}

func TestView_RejectsWrites(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	err := s.View(context.Background(), func(tx storage.Tx) error {
		return tx.SetMeta("k", []byte("v"))
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestStorageSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Opener {
		dbPath := filepath.Join(t.TempDir(), "suite.db")
		return func(t *testing.T) storage.Storage {
			s, err := New(context.Background(), dbPath)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	})
}
