package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophsync/internal/client/netstatus"
	"github.com/iudanet/gophsync/internal/client/notify"
	"github.com/iudanet/gophsync/internal/client/queue"
	"github.com/iudanet/gophsync/internal/client/storage/boltdb"
	syncsvc "github.com/iudanet/gophsync/internal/client/sync"
	"github.com/iudanet/gophsync/internal/testutil"
	"github.com/iudanet/gophsync/pkg/api"
)

type harness struct {
	queue  *queue.Queue
	signal *netstatus.Manual
	svc    *syncsvc.ServiceMock
	syncs  atomic.Int32
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		queue:  queue.New(store, testutil.NewServer(), queue.DefaultConfig()),
		signal: netstatus.NewManual(online),
	}
	h.svc = &syncsvc.ServiceMock{
		SyncFunc: func(ctx context.Context) (*syncsvc.SyncResult, error) {
			h.syncs.Add(1)
			return &syncsvc.SyncResult{}, nil
		},
	}
	return h
}

func (h *harness) start(t *testing.T, cfg Config, opts ...Option) {
	t.Helper()

	d := New(h.svc, h.queue, h.signal, cfg, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func TestDaemon_InitialSync(t *testing.T) {
	h := newHarness(t, true)
	h.start(t, Config{MinInterval: time.Millisecond})

	assert.Eventually(t, func() bool { return h.syncs.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, h.queue.Online())
}

func TestDaemon_WaitsForNetwork(t *testing.T) {
	h := newHarness(t, false)
	h.start(t, Config{MinInterval: time.Millisecond})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.syncs.Load())
	assert.False(t, h.queue.Online())

	h.signal.Set(true)
	assert.Eventually(t, func() bool { return h.syncs.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, h.queue.Online())

	h.signal.Set(false)
	assert.Eventually(t, func() bool { return !h.queue.Online() }, 5*time.Second, 5*time.Millisecond)
}

func TestDaemon_Interval(t *testing.T) {
	h := newHarness(t, true)
	h.start(t, Config{SyncInterval: 20 * time.Millisecond, MinInterval: time.Millisecond})

	assert.Eventually(t, func() bool { return h.syncs.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
}

func TestDaemon_RateLimitsTriggers(t *testing.T) {
	h := newHarness(t, true)
	d := New(h.svc, h.queue, h.signal, Config{MinInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool { return h.syncs.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	for range 5 {
		d.Trigger()
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), h.syncs.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestDaemon_SyncErrorsKeepRunning(t *testing.T) {
	h := newHarness(t, true)
	h.svc.SyncFunc = func(ctx context.Context) (*syncsvc.SyncResult, error) {
		h.syncs.Add(1)
		return nil, syncsvc.ErrSyncInProgress
	}
	h.start(t, Config{SyncInterval: 10 * time.Millisecond, MinInterval: time.Millisecond})

	assert.Eventually(t, func() bool { return h.syncs.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
}

func TestDaemon_ChangeFeedTriggersSync(t *testing.T) {
	hints := make(chan api.ChangeHint)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				return
			case h := <-hints:
				if err := wsjson.Write(ctx, conn, h); err != nil {
					return
				}
			}
		}
	}))
	defer srv.Close()

	h := newHarness(t, true)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + notify.FeedPath
	h.start(t, Config{MinInterval: time.Millisecond},
		WithFeed(url, notify.WithBackoff(func() retry.Backoff { return retry.NewConstant(10 * time.Millisecond) })),
	)

	// Стартовая синхронизация и синхронизация после подключения могут слиться в одну
	assert.Eventually(t, func() bool { return h.syncs.Load() >= 1 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	before := h.syncs.Load()

	hints <- api.ChangeHint{Checkpoint: "42"}
	assert.Eventually(t, func() bool { return h.syncs.Load() > before }, 5*time.Second, 5*time.Millisecond)
}

func TestDaemon_RefusedFeedKeepsSyncing(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := newHarness(t, true)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + notify.FeedPath
	h.start(t, Config{SyncInterval: 10 * time.Millisecond, MinInterval: time.Millisecond},
		WithFeed(url, notify.WithToken("expired")),
	)

	assert.Eventually(t, func() bool { return dials.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	// Отказ подписки не останавливает периодическую синхронизацию
	before := h.syncs.Load()
	assert.Eventually(t, func() bool { return h.syncs.Load() >= before+3 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, h.queue.Online())
}
