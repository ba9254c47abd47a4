package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iudanet/gophsync/internal/client/records"
	"github.com/iudanet/gophsync/internal/client/remote"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/crypto"
	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/pkg/api"
)

const reasonChecksum = "snapshot checksum mismatch"

// BatchResult counts what happened to the entries of processed batches
type BatchResult struct {
	Sent        int // Sent число записей, отправленных на сервер
	Accepted    int
	Resolved    int // Resolved отклонения, разрешенные обработчиком конфликтов
	Rejected    int
	Failed      int
	Quarantined int
}

func (r *BatchResult) add(other BatchResult) {
	r.Sent += other.Sent
	r.Accepted += other.Accepted
	r.Resolved += other.Resolved
	r.Rejected += other.Rejected
	r.Failed += other.Failed
	r.Quarantined += other.Quarantined
}

// ProcessQueue delivers one batch of due entries.
// Returns remote.ErrOffline without touching the network when offline and
// ErrDrainInProgress when another drain is running.
func (q *Queue) ProcessQueue(ctx context.Context) (BatchResult, error) {
	if !q.online.Load() {
		return BatchResult{}, remote.ErrOffline
	}
	if !q.drainMu.TryLock() {
		return BatchResult{}, ErrDrainInProgress
	}
	defer q.drainMu.Unlock()

	return q.processBatch(ctx)
}

// Drain delivers batches until nothing is due, a batch makes no progress or an error occurs
func (q *Queue) Drain(ctx context.Context) (BatchResult, error) {
	if !q.online.Load() {
		return BatchResult{}, remote.ErrOffline
	}
	if !q.drainMu.TryLock() {
		return BatchResult{}, ErrDrainInProgress
	}
	defer q.drainMu.Unlock()

	var total BatchResult
	for {
		if !q.online.Load() {
			return total, remote.ErrOffline
		}

		res, err := q.processBatch(ctx)
		total.add(res)
		if err != nil {
			return total, err
		}
		if res.Accepted+res.Resolved+res.Quarantined == 0 {
			return total, nil
		}
	}
}

func (q *Queue) processBatch(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	now := q.now().UnixMilli()

	var batch []*models.QueueEntry
	err := q.store.Update(ctx, func(tx storage.Tx) error {
		batch = nil
		var due []*models.QueueEntry
		err := tx.ForEachQueueEntry(storage.QueueLive, func(e *models.QueueEntry) error {
			if e.NextAttemptAt <= now {
				due = append(due, e)
			}
			return nil
		})
		if err != nil {
			return err
		}
		sort.Slice(due, func(i, j int) bool { return due[i].Less(due[j]) })

		for _, e := range due {
			if len(batch) == q.cfg.BatchSize {
				break
			}
			if !q.intact(e) {
				if err := q.quarantine(tx, e, reasonChecksum, now); err != nil {
					return err
				}
				result.Quarantined++
				continue
			}
			batch = append(batch, e)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to select batch: %w", err)
	}
	if len(batch) == 0 {
		return result, nil
	}

	wire := make([]api.Record, 0, len(batch))
	for _, e := range batch {
		wire = append(wire, remote.ToWire(e.Snapshot))
	}
	result.Sent = len(batch)

	callCtx, cancel := context.WithTimeout(ctx, q.cfg.CallTimeout)
	resp, pushErr := q.remote.Push(callCtx, wire)
	cancel()

	// Отмена вызывающей стороной не меняет состояние очереди
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Sent = 0
		return result, ctxErr
	}

	if pushErr != nil {
		class := remote.Classify(pushErr)
		if class == remote.ClassCanceled {
			result.Sent = 0
			return result, pushErr
		}
		q.logger.Warn("Push failed",
			"entries", len(batch),
			"class", class.String(),
			"error", pushErr)

		err := q.store.Update(context.WithoutCancel(ctx), func(tx storage.Tx) error {
			for _, e := range batch {
				quarantined, err := q.failEntry(tx, e, class, pushErr, now)
				if err != nil {
					return err
				}
				result.Failed++
				if quarantined {
					result.Quarantined++
				}
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("failed to record push failure: %w", err)
		}
		return result, fmt.Errorf("push failed: %w", pushErr)
	}

	if err := q.store.Update(context.WithoutCancel(ctx), func(tx storage.Tx) error {
		return q.applyResponse(tx, batch, resp, now, &result)
	}); err != nil {
		return result, fmt.Errorf("failed to apply push response: %w", err)
	}

	q.logger.Debug("Batch delivered",
		"sent", result.Sent,
		"accepted", result.Accepted,
		"resolved", result.Resolved,
		"rejected", result.Rejected)
	return result, nil
}

func (q *Queue) applyResponse(
	tx storage.Tx,
	batch []*models.QueueEntry,
	resp *api.PushResponse,
	now int64,
	result *BatchResult,
) error {
	accepted := make(map[string]int64, len(resp.Accepted))
	for _, ref := range resp.Accepted {
		accepted[ref.ID] = ref.Version
	}
	rejected := make(map[string]api.Rejection, len(resp.Rejected))
	for _, rej := range resp.Rejected {
		rejected[rej.ID] = rej
	}

	for _, sent := range batch {
		// Запись могла быть заменена более новой версией во время push
		current, err := tx.GetQueueEntry(storage.QueueLive, sent.ID)
		if errors.Is(err, storage.ErrNotFound) {
			current = nil
		} else if err != nil {
			return err
		}
		superseded := current == nil || current.Version != sent.Version

		if v, ok := accepted[sent.RecordID]; ok && v == sent.Version {
			if err := deleteIfCurrent(tx, sent); err != nil {
				return err
			}
			err := records.MarkSyncedTx(tx, sent.RecordID, sent.Version, resp.ServerTimestamp)
			if err != nil && !errors.Is(err, storage.ErrVersionMismatch) && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			result.Accepted++
			continue
		}

		if rej, ok := rejected[sent.RecordID]; ok {
			resolved := false
			if q.handler != nil {
				resolved, err = q.handler.HandleRejection(tx, sent, rej)
				if err != nil {
					return fmt.Errorf("failed to handle rejection of %s: %w", sent.RecordID, err)
				}
			}
			if resolved {
				result.Resolved++
				if err := deleteIfCurrent(tx, sent); err != nil {
					return err
				}
				continue
			}

			result.Rejected++
			if superseded {
				continue
			}
			quarantined, err := q.failEntry(tx, current, remote.ClassRejected, &remote.ServerRejected{Rejection: rej}, now)
			if err != nil {
				return err
			}
			if quarantined {
				result.Quarantined++
			}
			continue
		}

		// Сервер не ответил по записи: повторим позже
		result.Failed++
		if superseded {
			continue
		}
		if _, err := q.failEntry(tx, current, remote.ClassTransient, errors.New("missing from push response"), now); err != nil {
			return err
		}
	}
	return nil
}

// deleteIfCurrent removes the live entry unless it now holds a newer version
func deleteIfCurrent(tx storage.Tx, sent *models.QueueEntry) error {
	entry, err := tx.GetQueueEntry(storage.QueueLive, sent.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if entry.Version != sent.Version {
		return nil
	}
	return tx.DeleteQueueEntry(storage.QueueLive, sent.ID)
}

// failEntry records a failed delivery attempt of the stored entry.
// Transient failures only push the next attempt back; other failures quarantine the entry
// once the retry budget is spent.
func (q *Queue) failEntry(tx storage.Tx, sent *models.QueueEntry, class remote.Class, cause error, now int64) (bool, error) {
	entry, err := tx.GetQueueEntry(storage.QueueLive, sent.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if entry.Version != sent.Version {
		return false, nil
	}

	prior := entry.Attempts
	entry.Attempts++
	entry.LastError = cause.Error()

	if class != remote.ClassTransient && entry.Attempts > q.cfg.MaxRetries {
		return true, q.quarantine(tx, entry, entry.LastError, now)
	}

	entry.NextAttemptAt = now + q.backoff(prior).Milliseconds()
	return false, tx.PutQueueEntry(storage.QueueLive, entry)
}

func (q *Queue) quarantine(tx storage.Tx, entry *models.QueueEntry, reason string, now int64) error {
	entry.QuarantinedAt = models.Int64Ptr(now)
	entry.LastError = reason
	if err := tx.DeleteQueueEntry(storage.QueueLive, entry.ID); err != nil {
		return err
	}
	if err := tx.PutQueueEntry(storage.QueueQuarantine, entry); err != nil {
		return err
	}
	q.logger.Warn("Entry quarantined",
		"record_id", entry.RecordID,
		"version", entry.Version,
		"attempts", entry.Attempts,
		"reason", reason)
	return nil
}

// backoff returns min(InitialDelay * 2^prior, MaxDelay)
func (q *Queue) backoff(prior int) time.Duration {
	d := q.cfg.InitialDelay
	if d <= 0 {
		return 0
	}
	for range prior {
		d *= 2
		if d >= q.cfg.MaxDelay || d <= 0 {
			return q.cfg.MaxDelay
		}
	}
	return min(d, q.cfg.MaxDelay)
}

func (q *Queue) intact(e *models.QueueEntry) bool {
	if e.Snapshot == nil {
		return false
	}
	data, err := json.Marshal(e.Snapshot)
	return err == nil && crypto.VerifyDigest(data, e.Checksum) == nil
}
