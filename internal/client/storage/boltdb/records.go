package boltdb

import (
	"encoding/json"
	"fmt"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// GetRecord retrieves a record by ID
func (t *boltTx) GetRecord(id string) (*models.Record, error) {
	bucket, err := t.bucket(bucketRecords)
	if err != nil {
		return nil, err
	}

	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, storage.ErrNotFound
	}

	// Десериализуем
	rec := &models.Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// PutRecord stores or replaces a record
func (t *boltTx) PutRecord(rec *models.Record) error {
	bucket, err := t.bucket(bucketRecords)
	if err != nil {
		return err
	}

	// Сериализуем запись в JSON
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// Сохраняем по ключу ID
	if err := bucket.Put([]byte(rec.ID), data); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// DeleteRecord removes a record permanently
func (t *boltTx) DeleteRecord(id string) error {
	bucket, err := t.bucket(bucketRecords)
	if err != nil {
		return err
	}
	if err := bucket.Delete([]byte(id)); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// ForEachRecord calls fn for every record ordered by ID
func (t *boltTx) ForEachRecord(fn func(rec *models.Record) error) error {
	bucket, err := t.bucket(bucketRecords)
	if err != nil {
		return err
	}

	// Сначала читаем все записи: fn может менять bucket, а bbolt запрещает это внутри ForEach
	var records []*models.Record
	err = bucket.ForEach(func(k, v []byte) error {
		var rec models.Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record %s: %w", k, err)
		}
		records = append(records, &rec)
		return nil
	})
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
