package testutil

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/pkg/api"
)

var (
	// ErrDropped is returned when a request is lost before reaching the server
	ErrDropped = errors.New("request dropped")
	// ErrResponseLost is returned when the server applied a request but the reply was lost
	ErrResponseLost = errors.New("response lost")
)

// FlakyConfig describes simulated network conditions
type FlakyConfig struct {
	Latency  time.Duration
	Jitter   time.Duration // Jitter случайное отклонение ±Jitter от Latency
	DropRate float64       // DropRate доля запросов, не дошедших до сервера
	LossRate float64       // LossRate доля ответов, потерянных после применения на сервере
}

// Flaky wraps a Remote with latency, jitter and loss.
// The random source is seeded so a failing run can be reproduced.
type Flaky struct {
	inner remote.Remote
	rng   *rand.Rand
	cfg   FlakyConfig
	mu    sync.Mutex
}

var _ remote.Remote = (*Flaky)(nil)

// NewFlaky creates a flaky wrapper around inner
func NewFlaky(inner remote.Remote, cfg FlakyConfig, seed int64) *Flaky {
	return &Flaky{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// SetConfig changes network conditions for subsequent calls
func (f *Flaky) SetConfig(cfg FlakyConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}

// Pull forwards to the inner remote under simulated network conditions
func (f *Flaky) Pull(ctx context.Context, since string) (*api.PullResponse, error) {
	drop, lose, delay := f.roll()
	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}
	if drop {
		return nil, remote.Transient(ErrDropped)
	}
	resp, err := f.inner.Pull(ctx, since)
	if err == nil && lose {
		return nil, remote.Transient(ErrResponseLost)
	}
	return resp, err
}

// Push forwards to the inner remote under simulated network conditions
func (f *Flaky) Push(ctx context.Context, records []api.Record) (*api.PushResponse, error) {
	drop, lose, delay := f.roll()
	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}
	if drop {
		return nil, remote.Transient(ErrDropped)
	}
	resp, err := f.inner.Push(ctx, records)
	if err == nil && lose {
		return nil, remote.Transient(ErrResponseLost)
	}
	return resp, err
}

func (f *Flaky) roll() (drop, lose bool, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delay = f.cfg.Latency
	if f.cfg.Jitter > 0 {
		delay += time.Duration(f.rng.Int63n(int64(2*f.cfg.Jitter))) - f.cfg.Jitter
		delay = max(delay, 0)
	}
	drop = f.rng.Float64() < f.cfg.DropRate
	lose = f.rng.Float64() < f.cfg.LossRate
	return drop, lose, delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
