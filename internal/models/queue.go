package models

// QueueEntry представляет мутацию, ожидающую доставки на сервер.
// Snapshot фиксируется в момент постановки в очередь и не меняется при последующих правках записи,
// кроме замены на более новую версию той же записи.
type QueueEntry struct {
	QuarantinedAt *int64  `json:"quarantined_at,omitempty"` // QuarantinedAt время перемещения в карантин
	Snapshot      *Record `json:"snapshot"`                 // Snapshot копия записи на момент enqueue
	ID            string  `json:"id"`
	RecordID      string  `json:"record_id"`
	Checksum      string  `json:"checksum"` // Checksum BLAKE2b-256 от snapshot
	LastError     string  `json:"last_error,omitempty"`
	Seq           uint64  `json:"seq"` // Seq порядок постановки в очередь
	Version       int64   `json:"version"`
	EnqueuedAt    int64   `json:"enqueued_at"`
	NextAttemptAt int64   `json:"next_attempt_at"`
	Priority      int     `json:"priority"`
	Attempts      int     `json:"attempts"` // Attempts число неудачных попыток доставки
}

// Less задает порядок выдачи из очереди: приоритет по убыванию, затем порядок постановки.
func (e *QueueEntry) Less(other *QueueEntry) bool {
	if e.Priority != other.Priority {
		return e.Priority > other.Priority
	}
	return e.Seq < other.Seq
}

// Clone создает глубокую копию элемента очереди
func (e *QueueEntry) Clone() *QueueEntry {
	c := *e
	if e.Snapshot != nil {
		c.Snapshot = e.Snapshot.Clone()
	}
	if e.QuarantinedAt != nil {
		v := *e.QuarantinedAt
		c.QuarantinedAt = &v
	}
	return &c
}

// Checkpoint непрозрачный курсор инкрементального pull.
type Checkpoint struct {
	Cursor    string `json:"cursor"`
	UpdatedAt int64  `json:"updated_at"`
}
