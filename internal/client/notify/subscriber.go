// Package notify listens to the server change feed over WebSocket.
// Hints carry no data; they only wake the sync coordinator early.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sethvargo/go-retry"

	"github.com/iudanet/gophsync/pkg/api"
)

// FeedPath is the change feed endpoint relative to the server URL
const FeedPath = "/api/v1/sync/feed"

const readLimit = 4 << 10

// DefaultStableAfter is how long a connection must last before the reconnect backoff starts over
const DefaultStableAfter = 30 * time.Second

var (
	// ErrUnauthorized is returned when the server refuses the token
	ErrUnauthorized = errors.New("change feed unauthorized")
	// ErrRetriesExhausted is returned when the reconnect backoff gives up
	ErrRetriesExhausted = errors.New("change feed reconnect attempts exhausted")
)

// HintFunc is called for every change hint and after each (re)connect
type HintFunc func(hint api.ChangeHint)

// Subscriber keeps a WebSocket connection to the change feed
type Subscriber struct {
	onHint      HintFunc
	newBackoff  func() retry.Backoff
	logger      *slog.Logger
	url         string
	token       string
	stableAfter time.Duration
}

// Option configures Subscriber
type Option func(*Subscriber)

// WithToken sets the bearer token sent on dial
func WithToken(token string) Option {
	return func(s *Subscriber) {
		s.token = token
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBackoff sets the reconnect backoff factory.
// One backoff spans dial failures and short-lived connections; a fresh one is taken after a stable connection.
func WithBackoff(fn func() retry.Backoff) Option {
	return func(s *Subscriber) {
		s.newBackoff = fn
	}
}

// WithStableAfter sets how long a connection must last to reset the reconnect backoff
func WithStableAfter(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.stableAfter = d
		}
	}
}

// DefaultBackoff is exponential from 1s capped at 1m with 10% jitter
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(time.Second)
	b = retry.WithCappedDuration(time.Minute, b)
	return retry.WithJitterPercent(10, b)
}

// New creates a subscriber for the feed at url (ws:// or wss://)
func New(url string, onHint HintFunc, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:         url,
		onHint:      onHint,
		newBackoff:  DefaultBackoff,
		logger:      slog.Default(),
		stableAfter: DefaultStableAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects and listens until ctx is done.
// Lost connections are re-established with backoff; a refused token stops Run with ErrUnauthorized.
// A connection dropped before it became stable counts as a failed attempt, so a server
// that accepts and immediately closes is not redialed in a tight loop.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.newBackoff()
	for {
		conn, err := s.connect(ctx, backoff)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.logger.Info("Change feed connected", "url", s.url)
		connectedAt := time.Now()
		// Пока соединения не было, подсказки могли потеряться
		s.onHint(api.ChangeHint{})

		err = s.listen(ctx, conn)
		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
		s.logger.Warn("Change feed disconnected", "error", err)
		_ = conn.Close(websocket.StatusGoingAway, "")

		if time.Since(connectedAt) >= s.stableAfter {
			backoff = s.newBackoff()
			continue
		}
		// Соединение оборвалось сразу: следующий dial только после паузы
		if err := s.pause(ctx, backoff); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Subscriber) pause(ctx context.Context, backoff retry.Backoff) error {
	d, stop := backoff.Next()
	if stop {
		return ErrRetriesExhausted
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

func (s *Subscriber) connect(ctx context.Context, backoff retry.Backoff) (*websocket.Conn, error) {
	var conn *websocket.Conn

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		opts := &websocket.DialOptions{}
		if s.token != "" {
			opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + s.token}}
		}

		c, resp, err := websocket.Dial(ctx, s.url, opts)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
			}
			s.logger.Debug("Change feed dial failed", "error", err)
			return retry.RetryableError(err)
		}
		c.SetReadLimit(readLimit)
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Subscriber) listen(ctx context.Context, conn *websocket.Conn) error {
	for {
		var hint api.ChangeHint
		// Некорректное сообщение закрывает соединение, Run переподключится
		if err := wsjson.Read(ctx, conn, &hint); err != nil {
			return err
		}
		s.onHint(hint)
	}
}
