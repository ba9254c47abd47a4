// Package remote defines the contract of the sync endpoint and the failure taxonomy
// the queue and coordinator use to decide between retry, conflict handling and quarantine.
package remote

import (
	"context"

	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/pkg/api"
)

//go:generate moq -out remote_mock.go . Remote

// Remote is the server side of synchronization.
// Push must be idempotent by (id, version): delivering the same batch twice has the effect of delivering it once.
type Remote interface {
	// Pull returns changes after checkpoint since; empty since means from the beginning
	Pull(ctx context.Context, since string) (*api.PullResponse, error)

	// Push delivers a batch of local changes
	Push(ctx context.Context, records []api.Record) (*api.PushResponse, error)
}

// ToWire converts local record to its wire form
func ToWire(rec *models.Record) api.Record {
	w := api.Record{
		ID:            rec.ID,
		Kind:          string(rec.Kind),
		Type:          rec.Type,
		ReplicaID:     rec.ReplicaID,
		SchemaVersion: rec.SchemaVersion,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		Version:       rec.Version,
	}
	if rec.Payload != nil {
		w.Payload = append([]byte(nil), rec.Payload...)
	}
	if rec.DeletedAt != nil {
		w.DeletedAt = models.Int64Ptr(*rec.DeletedAt)
	}
	return w
}

// FromWire converts wire record to a local record without sync flags
func FromWire(w api.Record) *models.Record {
	rec := &models.Record{
		ID:            w.ID,
		Kind:          models.Kind(w.Kind),
		Type:          w.Type,
		ReplicaID:     w.ReplicaID,
		SchemaVersion: w.SchemaVersion,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
		Version:       w.Version,
	}
	if rec.Kind == "" {
		rec.Kind = models.KindRecord
	}
	if w.Payload != nil {
		rec.Payload = append([]byte(nil), w.Payload...)
	}
	if w.DeletedAt != nil {
		rec.DeletedAt = models.Int64Ptr(*w.DeletedAt)
	}
	return rec
}
