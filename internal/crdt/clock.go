package crdt

import (
	"sync"
	"time"
)

// Clock выдает логические временные метки реплики в миллисекундах Unix.
// Метка равна max(физическое время, последняя метка + 1), поэтому часы не идут назад
// при откате системного времени. Observe подтягивает часы к меткам, увиденным от других реплик,
// как в алгоритме Лампорта: локальная правка после pull всегда новее полученных данных.
type Clock struct {
	now  func() time.Time // источник физического времени
	last int64            // последняя выданная или увиденная метка
	mu   sync.Mutex       // мьютекс для потокобезопасности
}

// NewClock создает часы на системном времени.
func NewClock() *Clock {
	return NewClockWithSource(time.Now)
}

// NewClockWithSource создает часы с заданным источником времени.
// Используется для тестирования.
func NewClockWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now возвращает новую метку, строго большую всех ранее выданных и увиденных.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	if wall > c.last {
		c.last = wall
	} else {
		c.last++
	}
	return c.last
}

// Observe учитывает метку, полученную от другой реплики.
func (c *Clock) Observe(remote int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.last {
		c.last = remote
	}
}

// Last возвращает последнюю метку без ее изменения.
func (c *Clock) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}
