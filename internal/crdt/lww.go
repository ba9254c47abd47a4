package crdt

import "github.com/iudanet/gophsync/internal/models"

// Winner указывает, какая сторона побеждает в конфликте.
type Winner int

const (
	// LocalWins локальная версия сохраняется и остается dirty
	LocalWins Winner = iota
	// RemoteWins удаленная версия перезаписывает локальную
	RemoteWins
)

func (w Winner) String() string {
	if w == RemoteWins {
		return "remote"
	}
	return "local"
}

// Decision результат разрешения конфликта по Last-Write-Wins.
type Decision struct {
	Reason string // Reason какое правило определило победителя
	Winner Winner
}

// Resolve детерминированно выбирает победителя между локальной и удаленной версией записи.
// Правила применяются по порядку:
// 1. Больший UpdatedAt выигрывает
// 2. При равных UpdatedAt выигрывает лексикографически больший ReplicaID
// 3. При равных ReplicaID выигрывает больший Version
// 4. Полностью равные версии - выигрывает удаленная (она уже подтверждена сервером)
// Функция чистая: результат зависит только от аргументов.
func Resolve(local, remote *models.Record) Decision {
	switch {
	case remote.UpdatedAt > local.UpdatedAt:
		return Decision{Winner: RemoteWins, Reason: "newer timestamp"}
	case remote.UpdatedAt < local.UpdatedAt:
		return Decision{Winner: LocalWins, Reason: "newer timestamp"}
	}

	// Timestamps равны - сравниваем ReplicaID для детерминизма
	switch {
	case remote.ReplicaID > local.ReplicaID:
		return Decision{Winner: RemoteWins, Reason: "replica tie-break"}
	case remote.ReplicaID < local.ReplicaID:
		return Decision{Winner: LocalWins, Reason: "replica tie-break"}
	}

	if local.Version > remote.Version {
		return Decision{Winner: LocalWins, Reason: "version tie-break"}
	}
	return Decision{Winner: RemoteWins, Reason: "version tie-break"}
}
