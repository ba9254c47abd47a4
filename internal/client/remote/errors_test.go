package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/pkg/api"
)

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		err      error
		name     string
		expected Class
	}{
		{name: "nil", err: nil, expected: ClassNone},
		{name: "transient", err: Transient(base), expected: ClassTransient},
		{name: "wrapped transient", err: fmt.Errorf("push: %w", Transient(base)), expected: ClassTransient},
		{name: "permanent", err: Permanent(base), expected: ClassPermanent},
		{name: "rejected", err: &ServerRejected{Rejection: api.Rejection{ID: "a", Code: api.RejectConflict}}, expected: ClassRejected},
		{name: "deadline is transient", err: fmt.Errorf("call: %w", context.DeadlineExceeded), expected: ClassTransient},
		{name: "canceled", err: context.Canceled, expected: ClassCanceled},
		{name: "net error", err: &net.OpError{Op: "dial", Err: base}, expected: ClassTransient},
		{name: "unknown", err: base, expected: ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	base := errors.New("root cause")

	assert.ErrorIs(t, Transient(base), base)
	assert.ErrorIs(t, Permanent(base), base)
	assert.Nil(t, Transient(nil))
	assert.Nil(t, Permanent(nil))

	assert.Contains(t, Transient(base).Error(), "transient")
	assert.Contains(t, Permanent(base).Error(), "permanent")

	rejected := &ServerRejected{Rejection: api.Rejection{ID: "r1", Version: 2, Code: api.RejectInvalid, Reason: "bad"}}
	assert.Equal(t, "server rejected r1@2: invalid: bad", rejected.Error())
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "rejected", ClassRejected.String())
	assert.Equal(t, "permanent", ClassPermanent.String())
	assert.Equal(t, "canceled", ClassCanceled.String())
	assert.Equal(t, "none", ClassNone.String())
	assert.Equal(t, "class(42)", Class(42).String())
}

func TestWireConversion(t *testing.T) {
	rec := &models.Record{
		ID:            "r1",
		Kind:          models.KindCounter,
		Type:          "counter",
		SchemaVersion: 1,
		Payload:       []byte(`{"p":{"a":1},"n":{}}`),
		ReplicaID:     "a",
		CreatedAt:     1,
		UpdatedAt:     2,
		DeletedAt:     models.Int64Ptr(2),
		SyncedAt:      models.Int64Ptr(2),
		Version:       3,
		Dirty:         true,
	}

	back := FromWire(ToWire(rec))

	// Флаги синхронизации не передаются по сети
	assert.False(t, back.Dirty)
	assert.Nil(t, back.SyncedAt)
	assert.True(t, rec.SameContent(back))
	assert.Equal(t, rec.Version, back.Version)
	assert.Equal(t, rec.CreatedAt, back.CreatedAt)

	// Пустой kind трактуется как обычная запись
	assert.Equal(t, models.KindRecord, FromWire(api.Record{ID: "x"}).Kind)
}
