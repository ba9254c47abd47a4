package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// GetRecord retrieves a record by ID
func (t *sqlTx) GetRecord(id string) (*models.Record, error) {
	var data []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	rec := &models.Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// PutRecord stores or replaces a record
func (t *sqlTx) PutRecord(rec *models.Record) error {
	if err := t.writable(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO records (id, kind, type, dirty, deleted_at, updated_at, version, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			type = excluded.type,
			dirty = excluded.dirty,
			deleted_at = excluded.deleted_at,
			updated_at = excluded.updated_at,
			version = excluded.version,
			data = excluded.data
	`

	var deletedAt sql.NullInt64
	if rec.DeletedAt != nil {
		deletedAt = sql.NullInt64{Int64: *rec.DeletedAt, Valid: true}
	}

	_, err = t.tx.ExecContext(t.ctx, query,
		rec.ID,
		string(rec.Kind),
		rec.Type,
		boolToInt(rec.Dirty),
		deletedAt,
		rec.UpdatedAt,
		rec.Version,
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// DeleteRecord removes a record permanently
func (t *sqlTx) DeleteRecord(id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// ForEachRecord calls fn for every record ordered by ID
func (t *sqlTx) ForEachRecord(fn func(rec *models.Record) error) error {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT data FROM records ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}

	// Вычитываем все строки до вызова fn: единственное соединение занято курсором
	var records []*models.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan record: %w", err)
		}
		var rec models.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			rows.Close()
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate records: %w", err)
	}
	rows.Close()

	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// boolToInt converts bool to int for SQLite
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
