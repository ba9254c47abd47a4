// Package netstatus reports whether the network is reachable.
// The sync queue only drains while the signal is online.
package netstatus

import (
	"sync"
)

// Signal reports network reachability and its changes
type Signal interface {
	// Online returns the current state
	Online() bool

	// Subscribe returns a channel receiving every state change.
	// A slow subscriber only sees the latest state.
	Subscribe() <-chan bool
}

// broadcaster keeps the state and fans changes out to subscribers
type broadcaster struct {
	subs   []chan bool
	mu     sync.Mutex
	online bool
}

func (b *broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe() <-chan bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan bool, 1)
	b.subs = append(b.subs, ch)
	return ch
}

// set stores the state and reports whether it changed
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.online == online {
		return false
	}
	b.online = online
	for _, ch := range b.subs {
		// Вытесняем непрочитанное значение, подписчику важно только последнее
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
	return true
}

// Manual is a Signal set programmatically
type Manual struct {
	broadcaster
}

var _ Signal = (*Manual)(nil)

// NewManual creates a Manual signal with the given initial state
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// Set changes the state; subscribers are notified only on change
func (m *Manual) Set(online bool) {
	m.set(online)
}
