package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	stdsync "sync"
	"time"

	"github.com/iudanet/gophsync/internal/client/queue"
	"github.com/iudanet/gophsync/internal/client/records"
	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/crdt"
	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/internal/validation"
	"github.com/iudanet/gophsync/pkg/api"
)

//go:generate moq -out service_mock.go . Service

// Service определяет интерфейс координатора синхронизации
type Service interface {
	// Sync выполняет полный цикл: pull, merge, push
	Sync(ctx context.Context) (*SyncResult, error)

	// Status возвращает состояние координатора и счетчики очереди
	Status(ctx context.Context) (*Status, error)

	// GetPendingSyncCount возвращает количество записей, ожидающих синхронизации
	GetPendingSyncCount(ctx context.Context) (int, error)
}

// Config holds coordinator settings
type Config struct {
	CallTimeout time.Duration // CallTimeout ограничивает один вызов Pull
	Retention   time.Duration // Retention срок хранения удаленных записей, 0 отключает очистку
	BatchSize   int
}

// SyncResult contains sync operation results
type SyncResult struct {
	Pages          int // количество полученных страниц
	PulledEntries  int // количество полученных с сервера записей
	MergedEntries  int // количество примененных записей
	SkippedEntries int // количество пропущенных устаревших записей
	Conflicts      int // количество разрешённых конфликтов
	PushedEntries  int // количество записей, поставленных в очередь
	Accepted       int
	Rejected       int
	Quarantined    int
	Purged         int
}

// Status describes the coordinator and queue state
type Status struct {
	LastResult  *SyncResult
	State       State
	LastError   string
	Checkpoint  string
	LastSyncAt  int64
	Dirty       int
	Pending     int
	Quarantined int
	Online      bool
}

// Conflict describes one resolved conflict between a dirty local record and a remote one
type Conflict struct {
	Local    *models.Record
	Remote   *models.Record
	RecordID string
	Reason   string
	Winner   crdt.Winner
	Kind     models.Kind
}

// ConflictObserver is notified about every resolved conflict
type ConflictObserver func(Conflict)

// Option configures the coordinator
type Option func(*service)

// WithSchemas validates payloads of pulled records against registered schemas
func WithSchemas(reg *validation.Registry) Option {
	return func(s *service) {
		s.schemas = reg
	}
}

// WithConflictObserver sets a hook called for every resolved conflict
func WithConflictObserver(fn ConflictObserver) Option {
	return func(s *service) {
		s.observer = fn
	}
}

type service struct {
	store      storage.Storage
	records    records.Service
	remote     remote.Remote
	queue      *queue.Queue
	clock      *crdt.Clock
	logger     *slog.Logger
	observer   ConflictObserver
	schemas    *validation.Registry
	lastResult *SyncResult
	lastErr    error
	cfg        Config
	state      State
	mu         stdsync.Mutex
}

// NewService creates a new sync coordinator.
// The coordinator becomes the rejection handler of q.
func NewService(
	store storage.Storage,
	recs records.Service,
	rmt remote.Remote,
	q *queue.Queue,
	clock *crdt.Clock,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) Service {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = queue.DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &service{
		store:   store,
		records: recs,
		remote:  rmt,
		queue:   q,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	q.SetRejectionHandler(s)
	return s
}

// Sync performs one pull-merge-push cycle
func (s *service) Sync(ctx context.Context) (*SyncResult, error) {
	if !s.queue.Online() {
		return nil, remote.ErrOffline
	}
	if err := s.begin(); err != nil {
		return nil, err
	}

	s.logger.Info("Starting synchronization", "replica_id", s.records.ReplicaID())
	start := time.Now()
	result := &SyncResult{}

	err := s.run(ctx, result)
	s.finish(result, err)
	if err != nil {
		s.logger.Warn("Synchronization failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	s.logger.Info("Synchronization completed",
		"pulled", result.PulledEntries,
		"merged", result.MergedEntries,
		"skipped", result.SkippedEntries,
		"conflicts", result.Conflicts,
		"pushed", result.PushedEntries,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
		"purged", result.Purged,
		"duration", time.Since(start))
	return result, nil
}

func (s *service) run(ctx context.Context, result *SyncResult) error {
	serverTimestamp, err := s.pull(ctx, result)
	if err != nil {
		return err
	}

	if err := s.transition(StatePushing); err != nil {
		return err
	}
	if err := s.push(ctx, result); err != nil {
		return err
	}

	if s.cfg.Retention > 0 {
		purged, err := s.records.Purge(ctx, s.cfg.Retention)
		if err != nil {
			return err
		}
		result.Purged = purged
	}

	// Сохраняем server timestamp последней синхронизации
	if err := s.store.Update(ctx, func(tx storage.Tx) error {
		return storage.SetLastSyncTimestamp(tx, serverTimestamp)
	}); err != nil {
		s.logger.Warn("Failed to save last sync timestamp", "error", err)
	}
	return nil
}

// pull applies remote pages until the server reports no more changes.
// Returns the server timestamp of the last page.
func (s *service) pull(ctx context.Context, result *SyncResult) (int64, error) {
	var cp models.Checkpoint
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		cp, err = storage.GetCheckpoint(tx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	cursor := cp.Cursor
	var serverTimestamp int64
	for {
		page, err := s.pullPage(ctx, cursor)
		if err != nil {
			return 0, err
		}
		if err := s.transition(StateMerging); err != nil {
			return 0, err
		}

		conflicts, err := s.applyPage(ctx, page, result)
		if err != nil {
			return 0, err
		}
		for _, c := range conflicts {
			s.reportConflict(c)
		}

		result.Pages++
		serverTimestamp = page.ServerTimestamp
		if !page.HasMore {
			return serverTimestamp, nil
		}
		if page.Checkpoint == cursor {
			s.logger.Warn("Server reported more changes without advancing checkpoint", "checkpoint", cursor)
			return serverTimestamp, nil
		}
		cursor = page.Checkpoint

		if err := s.transition(StatePulling); err != nil {
			return 0, err
		}
	}
}

func (s *service) pullPage(ctx context.Context, cursor string) (*api.PullResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	page, err := s.remote.Pull(callCtx, cursor)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("pull failed: %w", err)
	}
	return page, nil
}

// applyPage merges one page and advances the checkpoint in a single transaction
func (s *service) applyPage(ctx context.Context, page *api.PullResponse, result *SyncResult) ([]Conflict, error) {
	incoming := make([]*models.Record, 0, len(page.Records))
	for _, w := range page.Records {
		incoming = append(incoming, remote.FromWire(w))
	}
	sort.Slice(incoming, func(i, j int) bool {
		if incoming[i].ID != incoming[j].ID {
			return incoming[i].ID < incoming[j].ID
		}
		return incoming[i].Version < incoming[j].Version
	})

	var conflicts []Conflict
	var merged, skipped int
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		conflicts = nil
		merged, skipped = 0, 0

		for _, rec := range incoming {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Некорректная запись не должна блокировать страницу и checkpoint
			if err := s.validateIncoming(rec); err != nil {
				s.logger.Warn("Skipping invalid remote record",
					"record_id", rec.ID,
					"version", rec.Version,
					"error", err)
				skipped++
				continue
			}
			res, err := s.mergeTx(tx, rec)
			if err != nil {
				return fmt.Errorf("failed to merge record %s: %w", rec.ID, err)
			}
			switch res.outcome {
			case outcomeApplied:
				merged++
			case outcomeSkipped:
				skipped++
			}
			if res.conflict != nil {
				conflicts = append(conflicts, *res.conflict)
			}
		}

		if err := storage.SetCheckpoint(tx, models.Checkpoint{
			Cursor:    page.Checkpoint,
			UpdatedAt: page.ServerTimestamp,
		}); err != nil {
			return err
		}
		return storage.SetClockWatermark(tx, s.clock.Last())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply pull page: %w", err)
	}

	result.PulledEntries += len(incoming)
	result.MergedEntries += merged
	result.SkippedEntries += skipped
	result.Conflicts += len(conflicts)
	return conflicts, nil
}

// push enqueues every dirty record and drains the queue
func (s *service) push(ctx context.Context, result *SyncResult) error {
	var dirty []*models.Record
	err := s.store.View(ctx, func(tx storage.Tx) error {
		return tx.ForEachRecord(func(rec *models.Record) error {
			if rec.Dirty {
				dirty = append(dirty, rec)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to collect dirty records: %w", err)
	}

	for start := 0; start < len(dirty); start += s.cfg.BatchSize {
		batch := dirty[start:min(start+s.cfg.BatchSize, len(dirty))]
		err := s.store.Update(ctx, func(tx storage.Tx) error {
			for _, rec := range batch {
				priority := queue.PriorityNormal
				if rec.IsDeleted() {
					priority = queue.PriorityDelete
				}
				if _, err := s.queue.EnqueueTx(tx, rec, priority); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to enqueue dirty records: %w", err)
		}
	}
	result.PushedEntries = len(dirty)

	res, err := s.queue.Drain(ctx)
	result.Accepted = res.Accepted
	result.Rejected = res.Rejected
	result.Quarantined = res.Quarantined
	result.Conflicts += res.Resolved
	// Очередь уже разгружается фоновым обработчиком
	if errors.Is(err, queue.ErrDrainInProgress) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to drain queue: %w", err)
	}
	return nil
}

// Status returns the coordinator state and queue counters
func (s *service) Status(ctx context.Context) (*Status, error) {
	s.mu.Lock()
	st := &Status{State: s.state, Online: s.queue.Online()}
	if s.lastResult != nil {
		res := *s.lastResult
		st.LastResult = &res
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()

	err := s.store.View(ctx, func(tx storage.Tx) error {
		cp, err := storage.GetCheckpoint(tx)
		if err != nil {
			return err
		}
		st.Checkpoint = cp.Cursor

		if st.LastSyncAt, err = storage.GetLastSyncTimestamp(tx); err != nil {
			return err
		}
		return tx.ForEachRecord(func(rec *models.Record) error {
			if rec.Dirty {
				st.Dirty++
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sync status: %w", err)
	}

	qs, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st.Pending = qs.Pending
	st.Quarantined = qs.Quarantined
	return st, nil
}

// GetPendingSyncCount возвращает количество измененных, но не подтвержденных сервером записей
func (s *service) GetPendingSyncCount(ctx context.Context) (int, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return 0, err
	}
	return st.Dirty, nil
}

func (s *service) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrSyncInProgress
	}
	s.state = StatePulling
	return nil
}

func (s *service) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.logger.Debug("Sync state changed", "from", s.state.String(), "to", to.String())
	s.state = to
	return nil
}

// finish returns the machine to Idle whatever happened
func (s *service) finish(result *SyncResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.lastErr = err
	if err == nil {
		s.lastResult = result
	}
}

func (s *service) reportConflict(c Conflict) {
	s.logger.Info("Conflict resolved",
		"record_id", c.RecordID,
		"kind", string(c.Kind),
		"winner", c.Winner.String(),
		"reason", c.Reason)
	if s.observer != nil {
		s.observer(c)
	}
}
