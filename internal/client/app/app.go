// Package app wires client components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/gophsync/internal/client/api"
	"github.com/iudanet/gophsync/internal/client/config"
	"github.com/iudanet/gophsync/internal/client/daemon"
	"github.com/iudanet/gophsync/internal/client/netstatus"
	"github.com/iudanet/gophsync/internal/client/notify"
	"github.com/iudanet/gophsync/internal/client/queue"
	"github.com/iudanet/gophsync/internal/client/records"
	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/storage/boltdb"
	"github.com/iudanet/gophsync/internal/client/storage/sqlite"
	syncsvc "github.com/iudanet/gophsync/internal/client/sync"
	"github.com/iudanet/gophsync/internal/crdt"
	"github.com/iudanet/gophsync/internal/validation"
)

// App holds the wired client components
type App struct {
	Store   storage.Storage
	Records records.Service
	Queue   *queue.Queue
	Sync    syncsvc.Service
	Clock   *crdt.Clock
	Remote  remote.Remote
	logger  *slog.Logger
	cfg     *config.Config
	token   string
	Replica string
}

// OpenStorage opens the configured storage backend
func OpenStorage(ctx context.Context, kind, path string) (storage.Storage, error) {
	switch kind {
	case config.StorageBolt, "":
		return boltdb.New(ctx, path)
	case config.StorageSQLite:
		return sqlite.New(ctx, path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// Option overrides a wired component
type Option func(*App)

// WithRemote replaces the HTTP client, e.g. with an in-process server in tests
func WithRemote(rmt remote.Remote) Option {
	return func(a *App) {
		a.Remote = rmt
	}
}

// Open opens local storage and wires records, queue and coordinator
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStorage(ctx, cfg.Storage, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &App{Store: store, logger: logger, cfg: cfg}
	if err := a.init(ctx, opts); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts []Option) error {
	var err error
	if a.Replica, err = records.EnsureReplicaID(ctx, a.Store, a.cfg.ReplicaID); err != nil {
		return err
	}

	a.Clock = crdt.NewClock()
	if err := records.RestoreClock(ctx, a.Store, a.Clock); err != nil {
		return err
	}

	a.token = a.cfg.Token
	if a.token == "" {
		err = a.Store.View(ctx, func(tx storage.Tx) error {
			a.token, err = storage.GetToken(tx)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to load token: %w", err)
		}
	}

	schemas, err := validation.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to load schemas: %w", err)
	}

	a.Remote = api.NewClient(a.cfg.ServerURL,
		api.WithToken(a.token),
		api.WithTimeout(a.cfg.RequestTimeout),
		api.WithPageLimit(a.cfg.PageLimit),
	)
	for _, opt := range opts {
		opt(a)
	}

	a.Records = records.NewService(a.Store, a.Clock, a.Replica, schemas)
	a.Queue = queue.New(a.Store, a.Remote, queue.Config{
		BatchSize:    a.cfg.BatchSize,
		MaxRetries:   a.cfg.MaxRetries,
		InitialDelay: a.cfg.InitialDelay,
		MaxDelay:     a.cfg.MaxDelay,
		CallTimeout:  a.cfg.RequestTimeout,
	}, queue.WithLogger(a.logger))
	// Одиночные команды считают сеть доступной, демон уточняет состояние по сигналу
	a.Queue.SetOnline(true)

	a.Sync = syncsvc.NewService(a.Store, a.Records, a.Remote, a.Queue, a.Clock, syncsvc.Config{
		CallTimeout: a.cfg.RequestTimeout,
		Retention:   a.cfg.Retention,
		BatchSize:   a.cfg.BatchSize,
	}, a.logger, syncsvc.WithSchemas(schemas))
	return nil
}

// Token returns the bearer token in use
func (a *App) Token() string {
	return a.token
}

// Signal builds the network signal: a status file watcher when configured, always online otherwise
func (a *App) Signal() (netstatus.Signal, error) {
	if a.cfg.StatusFile == "" {
		return netstatus.NewManual(true), nil
	}
	return netstatus.NewFileWatcher(a.cfg.StatusFile, a.logger)
}

// Daemon builds the background sync daemon
func (a *App) Daemon(signal netstatus.Signal) *daemon.Daemon {
	opts := []daemon.Option{daemon.WithLogger(a.logger)}
	if a.cfg.NotifyURL != "" {
		opts = append(opts, daemon.WithFeed(a.cfg.NotifyURL,
			notify.WithToken(a.token),
			notify.WithLogger(a.logger),
		))
	}
	return daemon.New(a.Sync, a.Queue, signal, daemon.Config{
		SyncInterval: a.cfg.SyncInterval,
		MinInterval:  a.cfg.SyncRate,
	}, opts...)
}

// RunDaemon runs the daemon until ctx is canceled
func (a *App) RunDaemon(ctx context.Context) error {
	signal, err := a.Signal()
	if err != nil {
		return err
	}
	return a.Daemon(signal).Run(ctx)
}

// Close releases storage
func (a *App) Close() error {
	if err := a.Store.Close(); err != nil && !errors.Is(err, storage.ErrStorageClosed) {
		return err
	}
	return nil
}
