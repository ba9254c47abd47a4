// Package crypto содержит дайджесты, которыми клиент проверяет целостность данных синхронизации.
package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// ErrChecksumMismatch означает, что данные не совпадают с сохраненным дайджестом
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Digest возвращает hex-encoded BLAKE2b-256 от data
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyDigest проверяет, что data соответствует сохраненному дайджесту
func VerifyDigest(data []byte, digest string) error {
	if digest == "" {
		return fmt.Errorf("digest cannot be empty")
	}
	if Digest(data) != digest {
		return ErrChecksumMismatch
	}
	return nil
}

// SetDigest возвращает дайджест набора строк, не зависящий от их порядка
func SetDigest(items []string) string {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)

	// Ошибка возможна только для ключа длиннее 64 байт
	h, _ := blake2b.New256(nil)
	for _, item := range sorted {
		h.Write([]byte(item))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
