package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophsync/internal/client/queue"
	"github.com/iudanet/gophsync/internal/client/records"
	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/storage/boltdb"
	"github.com/iudanet/gophsync/internal/crdt"
	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/internal/testutil"
	"github.com/iudanet/gophsync/internal/validation"
	"github.com/iudanet/gophsync/pkg/api"
)

type replica struct {
	store storage.Storage
	recs  records.Service
	queue *queue.Queue
	sync  Service
	id    string
}

func newReplica(t *testing.T, id string, rmt remote.Remote, wall *testutil.Clock, cfg Config, opts ...Option) *replica {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), id+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := crdt.NewClockWithSource(wall.Now)
	recs := records.NewService(store, clock, id, nil)
	q := newQueue(t, store, rmt, wall)

	return &replica{
		id:    id,
		store: store,
		recs:  recs,
		queue: q,
		sync:  NewService(store, recs, rmt, q, clock, cfg, nil, opts...),
	}
}

// newQueue builds a queue that retries immediately so tests can loop until convergence
func newQueue(t *testing.T, store storage.Storage, rmt remote.Remote, wall *testutil.Clock) *queue.Queue {
	t.Helper()
	q := queue.New(store, rmt, queue.Config{
		BatchSize:   50,
		MaxRetries:  100,
		CallTimeout: 5 * time.Second,
	}, queue.WithClock(wall.Now))
	q.SetOnline(true)
	return q
}

func (r *replica) put(t *testing.T, id, title string) *models.Record {
	t.Helper()
	rec, err := r.recs.Put(context.Background(), &models.Record{
		ID:      id,
		Type:    "note",
		Payload: json.RawMessage(`{"title":"` + title + `"}`),
	})
	require.NoError(t, err)
	return rec
}

func (r *replica) get(t *testing.T, id string) *models.Record {
	t.Helper()
	rec, err := r.recs.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (r *replica) counter(t *testing.T, id string) int64 {
	t.Helper()
	v, err := r.recs.CounterValue(context.Background(), id)
	require.NoError(t, err)
	return v
}

func TestSync_CountersConvergeAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(1000)

	a := newReplica(t, "replica-a", server, wall, Config{})
	b := newReplica(t, "replica-b", server, wall, Config{})
	c := newReplica(t, "replica-c", server, wall, Config{})

	_, err := a.recs.Increment(ctx, "likes", 5)
	require.NoError(t, err)
	wall.Advance(time.Millisecond)
	_, err = b.recs.Increment(ctx, "likes", 10)
	require.NoError(t, err)

	for _, r := range []*replica{a, b, c, a} {
		_, err := r.sync.Sync(ctx)
		require.NoError(t, err, r.id)
	}

	assert.Equal(t, int64(15), c.counter(t, "likes"))
	assert.Equal(t, int64(15), a.counter(t, "likes"))
	assert.Equal(t, int64(15), b.counter(t, "likes"))

	for _, r := range []*replica{a, b, c} {
		assert.False(t, r.get(t, "likes").Dirty, r.id)
	}
}

func TestSync_RemoteNewerWins(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(100)

	var conflicts []Conflict
	a := newReplica(t, "replica-a", server, wall, Config{}, WithConflictObserver(func(c Conflict) {
		conflicts = append(conflicts, c)
	}))

	local := a.put(t, "n", "local")
	require.Equal(t, int64(100), local.UpdatedAt)
	_, err := a.queue.Enqueue(ctx, local, queue.PriorityNormal)
	require.NoError(t, err)

	server.Seed(api.Record{
		ID: "n", Kind: "record", Type: "note", ReplicaID: "replica-b",
		Version: 1, UpdatedAt: 200, Payload: json.RawMessage(`{"title":"remote"}`),
	})

	res, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Zero(t, res.PushedEntries)

	rec := a.get(t, "n")
	assert.False(t, rec.Dirty)
	assert.JSONEq(t, `{"title":"remote"}`, string(rec.Payload))
	assert.Equal(t, int64(200), rec.UpdatedAt)

	pending, err := a.queue.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "queued local change is discarded when remote wins")

	require.Len(t, conflicts, 1)
	assert.Equal(t, crdt.RemoteWins, conflicts[0].Winner)
	assert.Equal(t, "n", conflicts[0].RecordID)
}

func TestSync_LocalNewerWins(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(300)
	a := newReplica(t, "replica-a", server, wall, Config{})

	a.put(t, "n", "local")
	server.Seed(api.Record{
		ID: "n", Kind: "record", Type: "note", ReplicaID: "replica-b",
		Version: 1, UpdatedAt: 200, Payload: json.RawMessage(`{"title":"remote"}`),
	})

	res, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Accepted)

	rec := a.get(t, "n")
	assert.False(t, rec.Dirty)
	assert.Equal(t, int64(2), rec.Version, "winning local version must not reuse the remote version number")

	got, ok := server.Get("n")
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"local"}`, string(got.Payload))
}

func TestSync_PushConflictResolvedFromRejection(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(100)

	// Pull ничего не возвращает, конфликт обнаруживается только при push
	mock := &remote.RemoteMock{
		PullFunc: func(ctx context.Context, since string) (*api.PullResponse, error) {
			return &api.PullResponse{}, nil
		},
		PushFunc: server.Push,
	}
	a := newReplica(t, "replica-a", mock, wall, Config{})

	a.put(t, "n", "local")
	server.Seed(api.Record{
		ID: "n", Kind: "record", Type: "note", ReplicaID: "replica-z",
		Version: 4, UpdatedAt: 500, Payload: json.RawMessage(`{"title":"server"}`),
	})

	res, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Zero(t, res.Accepted)

	rec := a.get(t, "n")
	assert.False(t, rec.Dirty)
	assert.JSONEq(t, `{"title":"server"}`, string(rec.Payload))
	assert.Equal(t, int64(4), rec.Version)

	st, err := a.sync.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Pending)
	assert.Zero(t, st.Quarantined)
}

func TestSync_CleanCopyFollowsRemote(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(1000)
	a := newReplica(t, "replica-a", server, wall, Config{})
	b := newReplica(t, "replica-b", server, wall, Config{})

	a.put(t, "n", "v1")
	_, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	_, err = b.sync.Sync(ctx)
	require.NoError(t, err)

	wall.Advance(time.Second)
	b.put(t, "n", "v2")
	_, err = b.sync.Sync(ctx)
	require.NoError(t, err)

	res, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MergedEntries)
	assert.Zero(t, res.Conflicts)

	rec := a.get(t, "n")
	assert.JSONEq(t, `{"title":"v2"}`, string(rec.Payload))
	assert.Equal(t, int64(2), rec.Version)
	assert.False(t, rec.Dirty)
}

func TestSync_Paging(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	server.PageSize = 2
	wall := testutil.NewClock(1000)

	for i := range 5 {
		server.Seed(api.Record{ID: fmt.Sprintf("r%d", i), Kind: "record", Type: "note", ReplicaID: "replica-z", Version: 1, UpdatedAt: 50})
	}

	a := newReplica(t, "replica-a", server, wall, Config{})
	res, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 5, res.PulledEntries)
	assert.Equal(t, 5, res.MergedEntries)

	list, err := a.recs.List(ctx, records.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 5)

	// Повторная синхронизация начинает с сохраненного checkpoint
	res, err = a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.PulledEntries)
}

func TestSync_CancelDoesNotCommitPartialPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wall := testutil.NewClock(1000)

	mock := &remote.RemoteMock{
		PullFunc: func(_ context.Context, since string) (*api.PullResponse, error) {
			if since == "" {
				return &api.PullResponse{
					Records:    []api.Record{{ID: "a", Kind: "record", Type: "note", Version: 1, UpdatedAt: 10}},
					Checkpoint: "1",
					HasMore:    true,
				}, nil
			}
			cancel()
			return &api.PullResponse{
				Records:    []api.Record{{ID: "b", Kind: "record", Type: "note", Version: 1, UpdatedAt: 10}},
				Checkpoint: "2",
			}, nil
		},
	}
	a := newReplica(t, "replica-a", mock, wall, Config{})

	_, err := a.sync.Sync(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = a.recs.Get(context.Background(), "a")
	require.NoError(t, err)
	_, err = a.recs.Get(context.Background(), "b")
	require.ErrorIs(t, err, storage.ErrNotFound)

	st, err := a.sync.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", st.Checkpoint)
	assert.Equal(t, StateIdle, st.State)
	assert.Contains(t, st.LastError, "canceled")
}

func TestSync_PullFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	wall := testutil.NewClock(1000)
	mock := &remote.RemoteMock{
		PullFunc: func(ctx context.Context, since string) (*api.PullResponse, error) {
			return nil, remote.Transient(fmt.Errorf("connection reset"))
		},
	}
	a := newReplica(t, "replica-a", mock, wall, Config{})
	a.put(t, "n", "local")

	_, err := a.sync.Sync(ctx)
	require.Error(t, err)
	assert.Equal(t, remote.ClassTransient, remote.Classify(err))

	assert.True(t, a.get(t, "n").Dirty)
	assert.Empty(t, mock.PushCalls())

	st, err := a.sync.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Empty(t, st.Checkpoint)
	assert.Equal(t, 1, st.Dirty)
}

func TestSync_PullTimeout(t *testing.T) {
	ctx := context.Background()
	wall := testutil.NewClock(1000)

	// Сервер принимает запрос и не отвечает
	mock := &remote.RemoteMock{
		PullFunc: func(ctx context.Context, since string) (*api.PullResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	a := newReplica(t, "replica-a", mock, wall, Config{CallTimeout: 50 * time.Millisecond})
	a.put(t, "n", "local")

	done := make(chan error, 1)
	go func() {
		_, err := a.sync.Sync(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, remote.ClassTransient, remote.Classify(err))
	case <-time.After(5 * time.Second):
		t.Fatal("pull was not bounded by the call timeout")
	}

	st, err := a.sync.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Empty(t, st.Checkpoint)
	assert.Equal(t, 1, st.Dirty)
	assert.Empty(t, mock.PushCalls())
}

func TestSync_InvalidRemoteRecordsSkipped(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(1000)

	server.Seed(api.Record{
		ID: "c1", Kind: "counter", Type: "counter", ReplicaID: "replica-z",
		Version: 1, UpdatedAt: 50, Payload: json.RawMessage(`"garbage"`),
	})
	server.Seed(api.Record{
		ID: "bad", Kind: "record", Type: "Not A Type", ReplicaID: "replica-z",
		Version: 1, UpdatedAt: 50, Payload: json.RawMessage(`{"title":"x"}`),
	})
	server.Seed(api.Record{
		ID: "n1", Kind: "record", Type: "note", ReplicaID: "replica-z",
		Version: 1, UpdatedAt: 50, Payload: json.RawMessage(`{"title":"ok"}`),
	})

	a := newReplica(t, "replica-a", server, wall, Config{})
	a.put(t, "local", "mine")

	res, err := a.sync.Sync(ctx)
	require.NoError(t, err, "malformed records must not block the pull")
	assert.Equal(t, 3, res.PulledEntries)
	assert.Equal(t, 1, res.MergedEntries)
	assert.Equal(t, 2, res.SkippedEntries)
	assert.Equal(t, 1, res.Accepted)

	assert.JSONEq(t, `{"title":"ok"}`, string(a.get(t, "n1").Payload))
	for _, id := range []string{"c1", "bad"} {
		_, err = a.recs.Get(ctx, id)
		require.ErrorIs(t, err, storage.ErrNotFound, id)
	}

	st, err := a.sync.Status(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, st.Checkpoint)
	assert.Zero(t, st.Dirty)

	_, ok := server.Get("local")
	assert.True(t, ok)
}

func TestSync_SchemaValidationOfPulledRecords(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(1000)

	reg, err := validation.NewRegistry()
	require.NoError(t, err)

	server.Seed(api.Record{
		ID: "n1", Kind: "record", Type: "note", SchemaVersion: 1, ReplicaID: "replica-z",
		Version: 1, UpdatedAt: 50, Payload: json.RawMessage(`{"title":"ok"}`),
	})
	server.Seed(api.Record{
		ID: "n2", Kind: "record", Type: "note", SchemaVersion: 1, ReplicaID: "replica-z",
		Version: 1, UpdatedAt: 50, Payload: json.RawMessage(`[1,2,3]`),
	})

	a := newReplica(t, "replica-a", server, wall, Config{}, WithSchemas(reg))
	res, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MergedEntries)
	assert.Equal(t, 1, res.SkippedEntries)

	_, err = a.recs.Get(ctx, "n2")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSync_RedeliveredRecordSkipped(t *testing.T) {
	ctx := context.Background()
	wall := testutil.NewClock(1000)
	n := api.Record{
		ID: "n", Kind: "record", Type: "note", ReplicaID: "replica-z",
		Version: 3, UpdatedAt: 50, Payload: json.RawMessage(`{"title":"same"}`),
	}

	// Сервер повторяет ту же версию на следующей странице
	mock := &remote.RemoteMock{
		PullFunc: func(_ context.Context, since string) (*api.PullResponse, error) {
			if since == "" {
				return &api.PullResponse{Records: []api.Record{n}, Checkpoint: "1", HasMore: true}, nil
			}
			return &api.PullResponse{Records: []api.Record{n}, Checkpoint: "2"}, nil
		},
	}
	a := newReplica(t, "replica-a", mock, wall, Config{})

	res, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PulledEntries)
	assert.Equal(t, 1, res.MergedEntries)
	assert.Equal(t, 1, res.SkippedEntries)

	rec := a.get(t, "n")
	assert.Equal(t, int64(3), rec.Version)
	assert.False(t, rec.NeedsSync())
}

func TestSync_InProgress(t *testing.T) {
	ctx := context.Background()
	wall := testutil.NewClock(1000)
	started := make(chan struct{})
	release := make(chan struct{})

	mock := &remote.RemoteMock{
		PullFunc: func(ctx context.Context, since string) (*api.PullResponse, error) {
			close(started)
			<-release
			return &api.PullResponse{}, nil
		},
	}
	a := newReplica(t, "replica-a", mock, wall, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := a.sync.Sync(ctx)
		done <- err
	}()

	<-started
	_, err := a.sync.Sync(ctx)
	require.ErrorIs(t, err, ErrSyncInProgress)

	st, err := a.sync.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePulling, st.State)

	close(release)
	require.NoError(t, <-done)

	st, err = a.sync.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	require.NotNil(t, st.LastResult)
}

func TestSync_Offline(t *testing.T) {
	wall := testutil.NewClock(1000)
	mock := &remote.RemoteMock{}
	a := newReplica(t, "replica-a", mock, wall, Config{})
	a.queue.SetOnline(false)

	_, err := a.sync.Sync(context.Background())
	require.ErrorIs(t, err, remote.ErrOffline)
	assert.Empty(t, mock.PullCalls())
}

func TestSync_PurgesDeletedRecords(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(1000)
	a := newReplica(t, "replica-a", server, wall, Config{Retention: time.Hour})

	a.put(t, "n", "x")
	_, err := a.recs.SoftDelete(ctx, "n")
	require.NoError(t, err)

	res, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Purged, "deletion inside retention window is kept")

	got, ok := server.Get("n")
	require.True(t, ok)
	assert.NotNil(t, got.DeletedAt)

	wall.Advance(2 * time.Hour)
	res, err = a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Purged)

	_, err = a.recs.Get(ctx, "n")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSync_StatusAndPendingCount(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(1000)
	server.Now = func() int64 { return wall.Now().UnixMilli() }
	server.Seed(api.Record{ID: "z", Kind: "record", Type: "note", ReplicaID: "replica-z", Version: 1, UpdatedAt: 10})
	a := newReplica(t, "replica-a", server, wall, Config{})

	a.put(t, "x", "1")
	a.put(t, "y", "2")

	n, err := a.sync.GetPendingSyncCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = a.sync.Sync(ctx)
	require.NoError(t, err)

	st, err := a.sync.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Dirty)
	assert.Zero(t, st.Pending)
	assert.True(t, st.Online)
	assert.Equal(t, int64(1000), st.LastSyncAt)
	assert.NotEmpty(t, st.Checkpoint)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, 2, st.LastResult.Accepted)
}

// randomOps applies a seeded mix of edits, deletions and counter updates
func randomOps(t *testing.T, rng *rand.Rand, r *replica, wall *testutil.Clock, n int) int64 {
	t.Helper()
	ctx := context.Background()
	var counted int64

	for range n {
		wall.Advance(time.Duration(rng.Intn(5)+1) * time.Millisecond)
		id := fmt.Sprintf("doc-%d", rng.Intn(6))

		switch op := rng.Intn(10); {
		case op < 6:
			r.put(t, id, fmt.Sprintf("%s-%d", r.id, rng.Intn(1000)))
		case op < 8:
			if _, err := r.recs.SoftDelete(ctx, id); err != nil {
				require.ErrorIs(t, err, storage.ErrNotFound)
			}
		default:
			delta := uint64(rng.Intn(9) + 1)
			_, err := r.recs.Increment(ctx, "total", delta)
			require.NoError(t, err)
			counted += int64(delta)
		}
	}
	return counted
}

func assertConverged(t *testing.T, server *testutil.Server, replicas ...*replica) {
	t.Helper()
	ctx := context.Background()

	for _, r := range replicas {
		list, err := r.recs.List(ctx, records.ListOptions{IncludeDeleted: true})
		require.NoError(t, err)
		require.Equal(t, server.Len(), len(list), r.id)

		for _, rec := range list {
			assert.False(t, rec.Dirty, "%s: %s", r.id, rec.ID)

			got, ok := server.Get(rec.ID)
			require.True(t, ok, "%s: %s", r.id, rec.ID)
			assert.Equal(t, got.DeletedAt != nil, rec.IsDeleted(), "%s: %s", r.id, rec.ID)
			if rec.Kind == models.KindCounter {
				sc, err := crdt.ParsePNCounter(got.Payload)
				require.NoError(t, err)
				lc, err := crdt.ParsePNCounter(rec.Payload)
				require.NoError(t, err)
				assert.True(t, sc.Equal(lc), "%s: %s", r.id, rec.ID)
				continue
			}
			assert.JSONEq(t, string(got.Payload), string(rec.Payload), "%s: %s", r.id, rec.ID)
		}

		st, err := r.sync.Status(ctx)
		require.NoError(t, err)
		assert.Zero(t, st.Pending, r.id)
	}
}

func syncUntilClean(t *testing.T, replicas ...*replica) {
	t.Helper()
	ctx := context.Background()

	for round := range 60 {
		clean := true
		for _, r := range replicas {
			// Ошибки сети ожидаемы, очередь повторит отправку
			_, _ = r.sync.Sync(ctx)
		}
		for _, r := range replicas {
			n, err := r.sync.GetPendingSyncCount(ctx)
			require.NoError(t, err)
			st, err := r.sync.Status(ctx)
			require.NoError(t, err)
			if n > 0 || st.Pending > 0 {
				clean = false
			}
		}
		// Финальный круг подтягивает изменения, отправленные другими репликами после нашего pull
		if clean && round > 0 {
			for _, r := range replicas {
				_, _ = r.sync.Sync(ctx)
			}
			return
		}
	}
	t.Fatal("replicas did not converge")
}

func TestSync_Converges(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			server := testutil.NewServer()
			wall := testutil.NewClock(1000)

			a := newReplica(t, "replica-a", server, wall, Config{})
			b := newReplica(t, "replica-b", server, wall, Config{})

			var total int64
			for range 3 {
				total += randomOps(t, rng, a, wall, 15)
				total += randomOps(t, rng, b, wall, 15)
				_, err := a.sync.Sync(context.Background())
				require.NoError(t, err)
			}

			syncUntilClean(t, a, b)
			assertConverged(t, server, a, b)

			if total > 0 {
				assert.Equal(t, total, a.counter(t, "total"))
				assert.Equal(t, total, b.counter(t, "total"))
			}
		})
	}
}

func TestSync_ConvergesOverFlakyNetwork(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	server := testutil.NewServer()
	wall := testutil.NewClock(1000)

	cfg := testutil.FlakyConfig{DropRate: 0.2, LossRate: 0.2}
	fa := testutil.NewFlaky(server, cfg, 11)
	fb := testutil.NewFlaky(server, cfg, 12)
	a := newReplica(t, "replica-a", fa, wall, Config{})
	b := newReplica(t, "replica-b", fb, wall, Config{})

	var total int64
	for range 3 {
		total += randomOps(t, rng, a, wall, 10)
		total += randomOps(t, rng, b, wall, 10)
		_, _ = a.sync.Sync(context.Background())
		_, _ = b.sync.Sync(context.Background())
	}
	syncUntilClean(t, a, b)

	// Последний круг без потерь, чтобы обе реплики увидели итоговое состояние сервера
	fa.SetConfig(testutil.FlakyConfig{})
	fb.SetConfig(testutil.FlakyConfig{})
	syncUntilClean(t, a, b)
	assertConverged(t, server, a, b)

	if total > 0 {
		assert.Equal(t, total, a.counter(t, "total"))
	}
}

func TestSync_ConcurrentLocalWrites(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewServer()
	wall := testutil.NewClock(1000)
	a := newReplica(t, "replica-a", server, wall, Config{})

	var wg stdsync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 20 {
			_, err := a.recs.Increment(ctx, "hits", 1)
			assert.NoError(t, err, i)
		}
	}()
	go func() {
		defer wg.Done()
		for range 3 {
			_, err := a.sync.Sync(ctx)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	syncUntilClean(t, a)
	got, ok := server.Get("hits")
	require.True(t, ok)
	c, err := crdt.ParsePNCounter(got.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(20), c.Value())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{from: StateIdle, to: StatePulling, allowed: true},
		{from: StatePulling, to: StateMerging, allowed: true},
		{from: StateMerging, to: StatePulling, allowed: true},
		{from: StateMerging, to: StatePushing, allowed: true},
		{from: StatePushing, to: StateIdle, allowed: true},
		{from: StateIdle, to: StatePushing, allowed: false},
		{from: StatePulling, to: StatePushing, allowed: false},
		{from: StatePushing, to: StatePulling, allowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.allowed, canTransition(tt.from, tt.to))
		})
	}
}
