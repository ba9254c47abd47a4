package sync

import (
	"errors"
	"fmt"

	"github.com/iudanet/gophsync/internal/client/queue"
	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/crdt"
	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/internal/validation"
	"github.com/iudanet/gophsync/pkg/api"
)

// errInvalidRemote marks a remote record that can't be stored locally
var errInvalidRemote = errors.New("invalid remote record")

type outcome int

const (
	// outcomeApplied удаленная версия записана локально
	outcomeApplied outcome = iota
	// outcomeSkipped удаленная версия устарела
	outcomeSkipped
	// outcomeKept локальная dirty версия сохранена
	outcomeKept
)

type mergeResult struct {
	conflict *Conflict
	stored   *models.Record
	outcome  outcome
}

// mergeTx applies one remote record to the local store.
//
// Clean local copies are overwritten unless the remote one is an older replay. Dirty local
// copies go through conflict resolution: counters are merged, general records resolved
// by LWW. When remote wins, queued changes of the record are discarded.
func (s *service) mergeTx(tx storage.Tx, incoming *models.Record) (mergeResult, error) {
	s.clock.Observe(incoming.UpdatedAt)

	local, err := tx.GetRecord(incoming.ID)
	if errors.Is(err, storage.ErrNotFound) {
		stored := clean(incoming, incoming.Version)
		return mergeResult{outcome: outcomeApplied, stored: stored}, tx.PutRecord(stored)
	}
	if err != nil {
		return mergeResult{}, err
	}

	if local.Kind == models.KindCounter && incoming.Kind == models.KindCounter {
		return s.mergeCounterTx(tx, local, incoming)
	}

	if !local.Dirty {
		// Повторная доставка уже сохраненной версии
		if incoming.Version <= local.Version && local.SameContent(incoming) {
			return mergeResult{outcome: outcomeSkipped, stored: local}, nil
		}
		// Повтор более старой версии; номер версии сам по себе не упорядочивает правки разных реплик
		if incoming.Version < local.Version && crdt.Resolve(local, incoming).Winner == crdt.LocalWins {
			return mergeResult{outcome: outcomeSkipped, stored: local}, nil
		}
		stored := clean(incoming, max(local.Version, incoming.Version))
		return mergeResult{outcome: outcomeApplied, stored: stored}, tx.PutRecord(stored)
	}

	// Эхо собственной более старой версии не является конфликтом
	if incoming.ReplicaID == s.records.ReplicaID() && incoming.Version <= local.Version {
		return mergeResult{outcome: outcomeSkipped, stored: local}, nil
	}

	decision := crdt.Resolve(local, incoming)
	conflict := &Conflict{
		RecordID: local.ID,
		Kind:     local.Kind,
		Winner:   decision.Winner,
		Reason:   decision.Reason,
		Local:    local.Clone(),
		Remote:   incoming.Clone(),
	}

	if decision.Winner == crdt.RemoteWins {
		stored := clean(incoming, max(local.Version, incoming.Version))
		if err := tx.PutRecord(stored); err != nil {
			return mergeResult{}, err
		}
		if err := s.queue.DiscardTx(tx, local.ID); err != nil {
			return mergeResult{}, err
		}
		return mergeResult{outcome: outcomeApplied, stored: stored, conflict: conflict}, nil
	}

	// Локальная версия побеждает и уходит следующим push; номер версии не должен совпасть с удаленным
	if local.Version <= incoming.Version {
		local.Version = incoming.Version + 1
		if err := tx.PutRecord(local); err != nil {
			return mergeResult{}, err
		}
	}
	return mergeResult{outcome: outcomeKept, stored: local, conflict: conflict}, nil
}

// mergeCounterTx merges PN-Counter states.
// The result is clean only when the remote state already includes everything local;
// otherwise the merged state is stored as a new dirty version.
func (s *service) mergeCounterTx(tx storage.Tx, local, incoming *models.Record) (mergeResult, error) {
	lc, err := crdt.ParsePNCounter(local.Payload)
	if err != nil {
		return mergeResult{}, err
	}
	rc, err := crdt.ParsePNCounter(incoming.Payload)
	if err != nil {
		return mergeResult{}, err
	}
	merged := lc.Merge(rc)

	switch {
	case merged.Equal(rc):
		stored := clean(incoming, max(local.Version, incoming.Version))
		if err := tx.PutRecord(stored); err != nil {
			return mergeResult{}, err
		}
		if local.Dirty {
			if err := s.queue.DiscardTx(tx, local.ID); err != nil {
				return mergeResult{}, err
			}
		}
		return mergeResult{outcome: outcomeApplied, stored: stored}, nil

	case merged.Equal(lc):
		// Удаленное состояние ничего не добавляет
		if !local.Dirty {
			return mergeResult{outcome: outcomeSkipped, stored: local}, nil
		}
		return mergeResult{outcome: outcomeKept, stored: local}, nil
	}

	// Обе стороны содержат изменения, которых нет у другой
	conflict := &Conflict{
		RecordID: local.ID,
		Kind:     models.KindCounter,
		Winner:   crdt.LocalWins,
		Reason:   "counter merge",
		Local:    local.Clone(),
		Remote:   incoming.Clone(),
	}

	payload, err := merged.Bytes()
	if err != nil {
		return mergeResult{}, err
	}
	stored := local.Clone()
	stored.Payload = payload
	stored.Version = max(local.Version, incoming.Version) + 1
	stored.UpdatedAt = s.clock.Now()
	stored.ReplicaID = s.records.ReplicaID()
	stored.Dirty = true
	if incoming.IsDeleted() && !stored.IsDeleted() {
		stored.DeletedAt = models.Int64Ptr(*incoming.DeletedAt)
	}
	if err := tx.PutRecord(stored); err != nil {
		return mergeResult{}, err
	}
	return mergeResult{outcome: outcomeApplied, stored: stored, conflict: conflict}, nil
}

// HandleRejection resolves a push conflict using the server copy carried by the rejection.
// Any other rejection is left to the queue retry policy.
func (s *service) HandleRejection(tx storage.Tx, entry *models.QueueEntry, rej api.Rejection) (bool, error) {
	if rej.Code != api.RejectConflict || rej.Current == nil {
		return false, nil
	}

	current := remote.FromWire(*rej.Current)
	if err := s.validateIncoming(current); err != nil {
		s.logger.Warn("Ignoring invalid server copy in rejection", "record_id", rej.ID, "error", err)
		return false, nil
	}

	res, err := s.mergeTx(tx, current)
	if err != nil {
		return false, err
	}
	if res.conflict != nil {
		s.reportConflict(*res.conflict)
	}

	switch res.outcome {
	case outcomeApplied:
		if !res.stored.Dirty {
			return true, nil
		}
	case outcomeSkipped:
		if !res.stored.Dirty {
			return true, nil
		}
		// Сервер отклонил нашу же версию: оставляем решение политике повторов
		if res.stored.Version == entry.Version {
			return false, nil
		}
	case outcomeKept:
		if res.stored.Version == entry.Version {
			return false, nil
		}
	}

	priority := entry.Priority
	if res.stored.IsDeleted() {
		priority = max(priority, queue.PriorityDelete)
	}
	if _, err := s.queue.EnqueueTx(tx, res.stored, priority); err != nil {
		return false, err
	}
	return true, nil
}

// validateIncoming checks a remote record before it reaches the store.
// Tombstones only need a valid identity; live records also need a payload that fits their kind and schema.
func (s *service) validateIncoming(rec *models.Record) error {
	if err := validation.ValidateID(rec.ID); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRemote, err)
	}
	if !rec.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", errInvalidRemote, rec.Kind)
	}
	if err := validation.ValidateType(rec.Type); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRemote, err)
	}

	if rec.Kind == models.KindCounter {
		if _, err := crdt.ParsePNCounter(rec.Payload); err != nil {
			return fmt.Errorf("%w: %v", errInvalidRemote, err)
		}
		return nil
	}
	if rec.IsDeleted() || s.schemas == nil {
		return nil
	}
	if err := s.schemas.Validate(rec.Type, rec.SchemaVersion, rec.Payload); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRemote, err)
	}
	return nil
}

// clean returns a synced copy of a remote record
func clean(rec *models.Record, version int64) *models.Record {
	out := rec.Clone()
	out.Version = version
	out.Dirty = false
	synced := rec.UpdatedAt
	out.SyncedAt = &synced
	return out
}
