package models

import (
	"bytes"
	"encoding/json"
)

// Kind определяет стратегию слияния записи при синхронизации.
type Kind string

const (
	// KindRecord обычная запись, конфликты разрешаются по Last-Write-Wins
	KindRecord Kind = "record"
	// KindCounter запись, payload которой хранит состояние PN-Counter
	KindCounter Kind = "counter"
)

// Valid проверяет, что вид записи известен движку синхронизации.
func (k Kind) Valid() bool {
	return k == KindRecord || k == KindCounter
}

// Record представляет единицу данных в локальном хранилище вместе с метаданными синхронизации.
// Временные метки - логические миллисекунды Unix, выдаваемые часами реплики.
type Record struct {
	DeletedAt     *int64          `json:"deleted_at,omitempty"`     // DeletedAt время soft delete (nil = запись активна)
	SyncedAt      *int64          `json:"synced_at,omitempty"`      // SyncedAt время последнего подтверждения сервером
	ID            string          `json:"id"`                       // ID стабильный уникальный идентификатор записи
	Kind          Kind            `json:"kind"`                     // Kind стратегия слияния
	Type          string          `json:"type"`                     // Type тип payload для выбора схемы
	ReplicaID     string          `json:"replica_id"`               // ReplicaID реплика, породившая текущую версию
	Payload       json.RawMessage `json:"payload,omitempty"`        // Payload данные записи
	SchemaVersion int             `json:"schema_version,omitempty"` // SchemaVersion версия схемы payload
	CreatedAt     int64           `json:"created_at"`
	UpdatedAt     int64           `json:"updated_at"`
	Version       int64           `json:"version"` // Version строго растет при каждой локальной мутации
	Dirty         bool            `json:"dirty"`   // Dirty есть локальные изменения, не подтвержденные сервером
}

// IsDeleted сообщает, помечена ли запись как удаленная.
func (r *Record) IsDeleted() bool {
	return r.DeletedAt != nil
}

// NeedsSync сообщает, есть ли у записи изменения новее последней синхронизации.
func (r *Record) NeedsSync() bool {
	return r.SyncedAt == nil || r.UpdatedAt > *r.SyncedAt
}

// SameContent сравнивает содержимое двух версий записи без учета локальных флагов синхронизации.
func (r *Record) SameContent(other *Record) bool {
	if r.ID != other.ID || r.Kind != other.Kind || r.Type != other.Type ||
		r.SchemaVersion != other.SchemaVersion || r.UpdatedAt != other.UpdatedAt ||
		r.ReplicaID != other.ReplicaID || r.IsDeleted() != other.IsDeleted() {
		return false
	}
	return bytes.Equal(r.Payload, other.Payload)
}

// Clone создает глубокую копию записи
func (r *Record) Clone() *Record {
	c := *r
	if r.Payload != nil {
		c.Payload = make(json.RawMessage, len(r.Payload))
		copy(c.Payload, r.Payload)
	}
	if r.DeletedAt != nil {
		v := *r.DeletedAt
		c.DeletedAt = &v
	}
	if r.SyncedAt != nil {
		v := *r.SyncedAt
		c.SyncedAt = &v
	}
	return &c
}

// Int64Ptr возвращает указатель на копию значения.
func Int64Ptr(v int64) *int64 {
	return &v
}
