package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/gophsync/internal/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		local    *models.Record
		remote   *models.Record
		name     string
		expected Winner
	}{
		{
			name:     "remote newer",
			local:    &models.Record{UpdatedAt: 100, ReplicaID: "a"},
			remote:   &models.Record{UpdatedAt: 200, ReplicaID: "a"},
			expected: RemoteWins,
		},
		{
			name:     "local newer",
			local:    &models.Record{UpdatedAt: 300, ReplicaID: "a"},
			remote:   &models.Record{UpdatedAt: 200, ReplicaID: "z"},
			expected: LocalWins,
		},
		{
			name:     "tie, remote replica greater",
			local:    &models.Record{UpdatedAt: 100, ReplicaID: "replica-a"},
			remote:   &models.Record{UpdatedAt: 100, ReplicaID: "replica-b"},
			expected: RemoteWins,
		},
		{
			name:     "tie, local replica greater",
			local:    &models.Record{UpdatedAt: 100, ReplicaID: "replica-b"},
			remote:   &models.Record{UpdatedAt: 100, ReplicaID: "replica-a"},
			expected: LocalWins,
		},
		{
			name:     "same replica, local version greater",
			local:    &models.Record{UpdatedAt: 100, ReplicaID: "a", Version: 4},
			remote:   &models.Record{UpdatedAt: 100, ReplicaID: "a", Version: 3},
			expected: LocalWins,
		},
		{
			name:     "identical",
			local:    &models.Record{UpdatedAt: 100, ReplicaID: "a", Version: 3},
			remote:   &models.Record{UpdatedAt: 100, ReplicaID: "a", Version: 3},
			expected: RemoteWins,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.local, tt.remote)
			assert.Equal(t, tt.expected, got.Winner)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

// Обе реплики, разрешая один и тот же конфликт, должны выбрать одну и ту же версию.
func TestResolve_Symmetric(t *testing.T) {
	pairs := [][2]*models.Record{
		{{UpdatedAt: 100, ReplicaID: "a"}, {UpdatedAt: 200, ReplicaID: "b"}},
		{{UpdatedAt: 100, ReplicaID: "a"}, {UpdatedAt: 100, ReplicaID: "b"}},
		{{UpdatedAt: 100, ReplicaID: "z"}, {UpdatedAt: 100, ReplicaID: "b"}},
	}

	for _, p := range pairs {
		x, y := p[0], p[1]
		onX := Resolve(x, y)
		onY := Resolve(y, x)

		winnerOnX := x
		if onX.Winner == RemoteWins {
			winnerOnX = y
		}
		winnerOnY := y
		if onY.Winner == RemoteWins {
			winnerOnY = x
		}
		assert.Same(t, winnerOnX, winnerOnY)
	}
}

func TestResolve_Stable(t *testing.T) {
	local := &models.Record{UpdatedAt: 100, ReplicaID: "a"}
	remote := &models.Record{UpdatedAt: 100, ReplicaID: "b"}

	first := Resolve(local, remote)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(local, remote))
	}
}

func TestWinner_String(t *testing.T) {
	assert.Equal(t, "local", LocalWins.String())
	assert.Equal(t, "remote", RemoteWins.String())
}
