package crdt

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// ErrEmptyReplica возвращается при мутации счетчика без идентификатора реплики.
var ErrEmptyReplica = errors.New("replica id is required")

// PNCounter представляет счетчик CRDT с поддержкой увеличения и уменьшения.
// Каждая реплика меняет только свои слоты в P (увеличения) и N (уменьшения),
// слияние - поэлементный максимум, поэтому оно коммутативно, ассоциативно и идемпотентно.
// Значение не хранится, а пересчитывается при каждом чтении.
// Счетчик не потокобезопасен: владелец сериализует доступ (транзакцией хранилища).
type PNCounter struct {
	P map[string]uint64 `json:"p"`
	N map[string]uint64 `json:"n"`
}

// NewPNCounter создает пустой счетчик.
func NewPNCounter() *PNCounter {
	return &PNCounter{
		P: make(map[string]uint64),
		N: make(map[string]uint64),
	}
}

// ParsePNCounter восстанавливает счетчик из payload записи.
// Пустой payload означает нулевой счетчик.
func ParsePNCounter(data []byte) (*PNCounter, error) {
	c := NewPNCounter()
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse counter state: %w", err)
	}
	if c.P == nil {
		c.P = make(map[string]uint64)
	}
	if c.N == nil {
		c.N = make(map[string]uint64)
	}
	return c, nil
}

// Increment увеличивает слот реплики на delta.
func (c *PNCounter) Increment(replicaID string, delta uint64) error {
	if replicaID == "" {
		return ErrEmptyReplica
	}
	c.P[replicaID] += delta
	return nil
}

// Decrement увеличивает отрицательный слот реплики на delta.
func (c *PNCounter) Decrement(replicaID string, delta uint64) error {
	if replicaID == "" {
		return ErrEmptyReplica
	}
	c.N[replicaID] += delta
	return nil
}

// Value возвращает текущее значение счетчика: сумма P минус сумма N.
func (c *PNCounter) Value() int64 {
	var p, n uint64
	for _, v := range c.P {
		p += v
	}
	for _, v := range c.N {
		n += v
	}
	return int64(p - n)
}

// Merge возвращает новый счетчик - поэлементный максимум двух состояний.
// Исходные счетчики не изменяются.
func (c *PNCounter) Merge(other *PNCounter) *PNCounter {
	merged := c.Clone()
	for id, v := range other.P {
		if v > merged.P[id] {
			merged.P[id] = v
		}
	}
	for id, v := range other.N {
		if v > merged.N[id] {
			merged.N[id] = v
		}
	}
	return merged
}

// Equal сравнивает состояния счетчиков. Нулевой слот равен отсутствующему.
func (c *PNCounter) Equal(other *PNCounter) bool {
	return slotsEqual(c.P, other.P) && slotsEqual(c.N, other.N)
}

// Clone создает глубокую копию счетчика
func (c *PNCounter) Clone() *PNCounter {
	clone := &PNCounter{
		P: maps.Clone(c.P),
		N: maps.Clone(c.N),
	}
	if clone.P == nil {
		clone.P = make(map[string]uint64)
	}
	if clone.N == nil {
		clone.N = make(map[string]uint64)
	}
	return clone
}

// Bytes сериализует состояние для хранения в payload записи.
func (c *PNCounter) Bytes() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal counter state: %w", err)
	}
	return data, nil
}

func slotsEqual(a, b map[string]uint64) bool {
	for id, v := range a {
		if b[id] != v {
			return false
		}
	}
	for id, v := range b {
		if a[id] != v {
			return false
		}
	}
	return true
}
