package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/crdt"
	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/pkg/api"
)

// versionKey identifies one delivered version; replica and timestamp tell apart
// equal version numbers produced independently by two replicas
type versionKey struct {
	id        string
	replicaID string
	version   int64
	updatedAt int64
}

// Server is an in-memory sync endpoint.
//
// Records are merged the same way replicas merge them: counters by PN-Counter merge,
// everything else by last-write-wins. A version that loses LWW is rejected as a conflict
// carrying the current server record. Push is idempotent by (id, version) of a producing replica.
type Server struct {
	// PushErr, if set, fails the whole push before anything is applied
	PushErr func(records []api.Record) error
	// Reject, if set and returning non-nil, rejects an individual record
	Reject func(rec api.Record) *api.Rejection
	// Now returns server time in Unix milliseconds
	Now func() int64

	records  map[string]api.Record
	lastSeq  map[string]uint64
	applied  map[versionKey]struct{}
	changes  []change
	seq      uint64
	pushes   int
	pulls    int
	PageSize int
	mu       sync.Mutex
}

type change struct {
	id  string
	seq uint64
}

var _ remote.Remote = (*Server)(nil)

// NewServer creates an empty server
func NewServer() *Server {
	return &Server{
		records:  make(map[string]api.Record),
		lastSeq:  make(map[string]uint64),
		applied:  make(map[versionKey]struct{}),
		PageSize: 100,
		Now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Seed stores rec as if another replica had pushed it
func (s *Server) Seed(rec api.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(rec)
}

// Get returns the server copy of a record
func (s *Server) Get(id string) (api.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of records on the server
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Pushes returns the number of Push calls that reached the server
func (s *Server) Pushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes
}

// Pulls returns the number of Pull calls that reached the server
func (s *Server) Pulls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls
}

// Applied returns how many distinct (id, version) pairs were applied
func (s *Server) Applied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

// Pull returns a page of records changed after checkpoint since
func (s *Server) Pull(ctx context.Context, since string) (*api.PullResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var after uint64
	if since != "" {
		v, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			return nil, remote.Permanent(fmt.Errorf("bad checkpoint %q", since))
		}
		after = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls++

	resp := &api.PullResponse{Checkpoint: since, ServerTimestamp: s.Now()}
	for _, ch := range s.changes {
		if ch.seq <= after || s.lastSeq[ch.id] != ch.seq {
			continue
		}
		if len(resp.Records) == s.PageSize {
			resp.HasMore = true
			break
		}
		resp.Records = append(resp.Records, s.records[ch.id])
		resp.Checkpoint = strconv.FormatUint(ch.seq, 10)
	}
	return resp, nil
}

// Push applies a batch of records
func (s *Server) Push(ctx context.Context, records []api.Record) (*api.PushResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.PushErr != nil {
		if err := s.PushErr(records); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++

	resp := &api.PushResponse{ServerTimestamp: s.Now()}
	for _, rec := range records {
		key := versionKey{id: rec.ID, replicaID: rec.ReplicaID, version: rec.Version, updatedAt: rec.UpdatedAt}

		// Повторная доставка уже примененной версии
		if _, ok := s.applied[key]; ok {
			resp.Accepted = append(resp.Accepted, api.RecordRef{ID: rec.ID, Version: rec.Version})
			continue
		}

		if s.Reject != nil {
			if rej := s.Reject(rec); rej != nil {
				resp.Rejected = append(resp.Rejected, *rej)
				continue
			}
		}

		if rej := s.apply(rec); rej != nil {
			resp.Rejected = append(resp.Rejected, *rej)
			continue
		}
		s.applied[key] = struct{}{}
		resp.Accepted = append(resp.Accepted, api.RecordRef{ID: rec.ID, Version: rec.Version})
	}
	return resp, nil
}

func (s *Server) apply(rec api.Record) *api.Rejection {
	current, exists := s.records[rec.ID]
	if !exists {
		s.store(rec)
		return nil
	}

	if rec.Kind == string(models.KindCounter) && current.Kind == string(models.KindCounter) {
		merged, err := mergeCounters(current, rec)
		if err != nil {
			return &api.Rejection{ID: rec.ID, Version: rec.Version, Code: api.RejectInvalid, Reason: err.Error()}
		}
		s.store(merged)
		return nil
	}

	decision := crdt.Resolve(remote.FromWire(current), remote.FromWire(rec))
	if decision.Winner == crdt.RemoteWins {
		s.store(rec)
		return nil
	}

	cur := current
	return &api.Rejection{
		ID:      rec.ID,
		Version: rec.Version,
		Code:    api.RejectConflict,
		Reason:  "server has a newer version",
		Current: &cur,
	}
}

func (s *Server) store(rec api.Record) {
	s.seq++
	s.records[rec.ID] = rec
	s.lastSeq[rec.ID] = s.seq
	s.changes = append(s.changes, change{id: rec.ID, seq: s.seq})
}

func mergeCounters(a, b api.Record) (api.Record, error) {
	ca, err := crdt.ParsePNCounter(a.Payload)
	if err != nil {
		return api.Record{}, err
	}
	cb, err := crdt.ParsePNCounter(b.Payload)
	if err != nil {
		return api.Record{}, err
	}
	payload, err := ca.Merge(cb).Bytes()
	if err != nil {
		return api.Record{}, err
	}

	merged := b
	merged.Payload = payload
	merged.Version = max(a.Version, b.Version)
	merged.UpdatedAt = max(a.UpdatedAt, b.UpdatedAt)
	return merged, nil
}
