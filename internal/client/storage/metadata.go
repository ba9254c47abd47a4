package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/gophsync/internal/models"
)

// Metadata keys
const (
	keyCheckpoint     = "checkpoint"
	keyReplicaID      = "replica_id"
	keyToken          = "token"
	keyLastSyncTime   = "last_sync_timestamp"
	keyClockWatermark = "clock_watermark"
)

// GetCheckpoint returns the pull checkpoint
// Returns zero checkpoint if no pull has been performed yet
func GetCheckpoint(tx Tx) (models.Checkpoint, error) {
	var cp models.Checkpoint

	data, err := tx.GetMeta(keyCheckpoint)
	if errors.Is(err, ErrNotFound) {
		return cp, nil
	}
	if err != nil {
		return cp, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// SetCheckpoint saves the pull checkpoint
func SetCheckpoint(tx Tx, cp models.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := tx.SetMeta(keyCheckpoint, data); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetReplicaID returns persisted replica ID or empty string
func GetReplicaID(tx Tx) (string, error) {
	return getString(tx, keyReplicaID)
}

// SetReplicaID persists replica ID
func SetReplicaID(tx Tx, id string) error {
	return tx.SetMeta(keyReplicaID, []byte(id))
}

// GetToken returns stored bearer token or empty string
func GetToken(tx Tx) (string, error) {
	return getString(tx, keyToken)
}

// SetToken stores bearer token; empty token removes it
func SetToken(tx Tx, token string) error {
	return tx.SetMeta(keyToken, []byte(token))
}

// GetLastSyncTimestamp returns the timestamp of the last successful sync
// Returns 0 if no sync has been performed yet
func GetLastSyncTimestamp(tx Tx) (int64, error) {
	return getInt64(tx, keyLastSyncTime)
}

// SetLastSyncTimestamp saves the timestamp of the last successful sync
func SetLastSyncTimestamp(tx Tx, ts int64) error {
	return setInt64(tx, keyLastSyncTime, ts)
}

// GetClockWatermark returns the highest logical timestamp persisted by the replica clock
func GetClockWatermark(tx Tx) (int64, error) {
	return getInt64(tx, keyClockWatermark)
}

// SetClockWatermark persists the replica clock position
func SetClockWatermark(tx Tx, ts int64) error {
	return setInt64(tx, keyClockWatermark, ts)
}

func getString(tx Tx, key string) (string, error) {
	data, err := tx.GetMeta(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return string(data), nil
}

func getInt64(tx Tx, key string) (int64, error) {
	data, err := tx.GetMeta(key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid %s value length %d", key, len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

func setInt64(tx Tx, key string, v int64) error {
	// Конвертируем int64 в bytes
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	if err := tx.SetMeta(key, buf); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
