// Package cli implements the gophsync command line.
package cli

import (
	"io"
	"time"

	"github.com/iudanet/gophsync/internal/client/iocli"
	"github.com/iudanet/gophsync/internal/client/queue"
	"github.com/iudanet/gophsync/internal/client/records"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/sync"
)

// Cli runs commands against an opened replica
type Cli struct {
	io          iocli.IO
	records     records.Service
	syncService sync.Service
	queue       *queue.Queue
	store       storage.Storage
	now         func() time.Time
	daemon      DaemonFunc
	closer      io.Closer
}

// Deps are the components commands work with.
// Closer is called once after the command finishes.
type Deps struct {
	IO      iocli.IO
	Records records.Service
	Sync    sync.Service
	Queue   *queue.Queue
	Store   storage.Storage
	Now     func() time.Time
	Daemon  DaemonFunc
	Closer  io.Closer
}

// New creates Cli from opened components
func New(deps Deps) *Cli {
	c := &Cli{
		io:          deps.IO,
		records:     deps.Records,
		syncService: deps.Sync,
		queue:       deps.Queue,
		store:       deps.Store,
		now:         deps.Now,
		daemon:      deps.Daemon,
		closer:      deps.Closer,
	}
	if c.io == nil {
		c.io = iocli.NewStdio()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Close releases the replica opened for the command
func (c *Cli) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}
