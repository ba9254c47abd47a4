// Package daemon runs background synchronization.
//
// The daemon:
//  1. Forwards network status changes to the sync queue
//  2. Runs the queue worker between sync cycles
//  3. Syncs on an interval, on reconnect and on server change hints
//  4. Limits how often sync cycles start
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/iudanet/gophsync/internal/client/netstatus"
	"github.com/iudanet/gophsync/internal/client/notify"
	"github.com/iudanet/gophsync/internal/client/queue"
	"github.com/iudanet/gophsync/internal/client/remote"
	syncsvc "github.com/iudanet/gophsync/internal/client/sync"
	"github.com/iudanet/gophsync/pkg/api"
)

// Config holds daemon settings
type Config struct {
	// SyncInterval is the period of full sync cycles, 0 disables periodic sync
	SyncInterval time.Duration
	// MinInterval is the minimal spacing between two cycles started by triggers
	MinInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SyncInterval: 5 * time.Minute,
		MinInterval:  2 * time.Second,
	}
}

// runner is a component with its own event loop
type runner interface {
	Run(ctx context.Context) error
}

// Daemon orchestrates the queue worker, the network signal and the sync coordinator
type Daemon struct {
	sync     syncsvc.Service
	signal   netstatus.Signal
	feed     runner
	queue    *queue.Queue
	limiter  *rate.Limiter
	logger   *slog.Logger
	trigger  chan struct{}
	feedURL  string
	feedOpts []notify.Option
	cfg      Config
}

// Option configures Daemon
type Option func(*Daemon)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithFeed subscribes to the server change feed at url
func WithFeed(url string, opts ...notify.Option) Option {
	return func(d *Daemon) {
		d.feedURL = url
		d.feedOpts = opts
	}
}

// New creates a daemon
func New(svc syncsvc.Service, q *queue.Queue, signal netstatus.Signal, cfg Config, opts ...Option) *Daemon {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultConfig().MinInterval
	}

	d := &Daemon{
		sync:    svc,
		queue:   q,
		signal:  signal,
		cfg:     cfg,
		logger:  slog.Default(),
		trigger: make(chan struct{}, 1),
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.feedURL != "" {
		feedOpts := append([]notify.Option{notify.WithLogger(d.logger)}, d.feedOpts...)
		d.feed = notify.New(d.feedURL, func(api.ChangeHint) { d.Trigger() }, feedOpts...)
	}
	return d
}

// Trigger requests a sync cycle; requests made while one is pending are merged
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is canceled or a component fails
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("Starting daemon", "sync_interval", d.cfg.SyncInterval, "online", d.signal.Online())
	defer d.logger.Info("Daemon stopped")

	g, ctx := errgroup.WithContext(ctx)

	// Подписка до первого чтения состояния, чтобы не пропустить переход
	changes := d.signal.Subscribe()
	d.queue.SetOnline(d.signal.Online())

	if r, ok := d.signal.(runner); ok {
		g.Go(func() error { return r.Run(ctx) })
	}
	if d.feed != nil {
		g.Go(func() error { return d.runFeed(ctx) })
	}
	g.Go(func() error { return d.queue.Run(ctx) })
	g.Go(func() error { return d.watchSignal(ctx, changes) })
	g.Go(func() error { return d.syncLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runFeed keeps the change feed optional: when it gives up, sync continues on the interval
func (d *Daemon) runFeed(ctx context.Context) error {
	err := d.feed.Run(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
		return nil
	case errors.Is(err, notify.ErrUnauthorized):
		d.logger.Error("Change feed disabled, token refused", "error", err)
	default:
		d.logger.Error("Change feed stopped", "error", err)
	}
	return nil
}

func (d *Daemon) watchSignal(ctx context.Context, changes <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online := <-changes:
			d.queue.SetOnline(online)
			if online {
				d.Trigger()
			}
		}
	}
}

func (d *Daemon) syncLoop(ctx context.Context) error {
	var tick <-chan time.Time
	if d.cfg.SyncInterval > 0 {
		ticker := time.NewTicker(d.cfg.SyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	d.Trigger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		case <-d.trigger:
		}

		if !d.signal.Online() {
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		d.runSync(ctx)
	}
}

func (d *Daemon) runSync(ctx context.Context) {
	_, err := d.sync.Sync(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
	case errors.Is(err, syncsvc.ErrSyncInProgress), errors.Is(err, remote.ErrOffline):
		d.logger.Debug("Sync skipped", "reason", err)
	default:
		d.logger.Warn("Background sync failed", "error", err, "class", remote.Classify(err).String())
	}
}
