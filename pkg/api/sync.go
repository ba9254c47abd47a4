package api

import "encoding/json"

// Record представляет запись на проводе между клиентом и сервером.
// Локальные флаги синхронизации (dirty, synced_at) не передаются.
type Record struct {
	DeletedAt     *int64          `json:"deleted_at,omitempty"`
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Type          string          `json:"type"`
	ReplicaID     string          `json:"replica_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	SchemaVersion int             `json:"schema_version,omitempty"`
	CreatedAt     int64           `json:"created_at"`
	UpdatedAt     int64           `json:"updated_at"`
	Version       int64           `json:"version"`
}

// PullRequest представляет запрос изменений с сервера
type PullRequest struct {
	Since string `json:"since"` // Since непрозрачный checkpoint предыдущего pull
	Limit int    `json:"limit,omitempty"`
}

// PullResponse представляет страницу изменений от сервера
type PullResponse struct {
	Checkpoint      string   `json:"checkpoint"` // Checkpoint курсор для следующего запроса
	Records         []Record `json:"records"`
	ServerTimestamp int64    `json:"server_timestamp"`
	HasMore         bool     `json:"has_more"` // HasMore есть следующие страницы
}

// PushRequest представляет пакет локальных изменений
type PushRequest struct {
	Records []Record `json:"records"`
}

// RecordRef идентифицирует конкретную версию записи
type RecordRef struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// Rejection коды
const (
	RejectConflict = "conflict" // на сервере более новая версия
	RejectInvalid  = "invalid"  // запись не прошла валидацию сервера
)

// Rejection описывает запись, не принятую сервером
type Rejection struct {
	Current *Record `json:"current,omitempty"` // Current серверная версия при конфликте
	ID      string  `json:"id"`
	Code    string  `json:"code"`
	Reason  string  `json:"reason,omitempty"`
	Version int64   `json:"version"`
}

// PushResponse представляет результат push
type PushResponse struct {
	Accepted        []RecordRef `json:"accepted"`
	Rejected        []Rejection `json:"rejected"`
	ServerTimestamp int64       `json:"server_timestamp"` // ServerTimestamp время применения на сервере
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// ChangeHint сообщение канала уведомлений: на сервере появились изменения
type ChangeHint struct {
	Checkpoint      string `json:"checkpoint,omitempty"` // Checkpoint последнее изменение на сервере
	ServerTimestamp int64  `json:"server_timestamp"`
}
