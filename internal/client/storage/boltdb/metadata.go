package boltdb

import (
	"bytes"
	"fmt"

	"github.com/iudanet/gophsync/internal/client/storage"
)

// GetMeta returns value stored under key
func (t *boltTx) GetMeta(key string) ([]byte, error) {
	bucket, err := t.bucket(bucketMetadata)
	if err != nil {
		return nil, err
	}

	value := bucket.Get([]byte(key))
	if value == nil {
		return nil, storage.ErrNotFound
	}
	// Значение валидно только внутри транзакции - возвращаем копию
	return bytes.Clone(value), nil
}

// SetMeta stores value under key
func (t *boltTx) SetMeta(key string, value []byte) error {
	bucket, err := t.bucket(bucketMetadata)
	if err != nil {
		return err
	}
	if err := bucket.Put([]byte(key), value); err != nil {
		return fmt.Errorf("failed to save metadata %s: %w", key, err)
	}
	return nil
}
