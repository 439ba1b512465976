package app

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Notify/internal/domain"
)

var errDead = errors.New("dead connection")

// fakeConn records what it receives and how many sends overlap.
type fakeConn struct {
	mu     sync.Mutex
	got    []domain.Payload
	fail   error
	panics bool

	closed    atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32

	// block, when set, holds every Send until it is closed.
	block   chan struct{}
	entered chan struct{}
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (c *fakeConn) Send(p domain.Payload) error {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		m := c.maxActive.Load()
		if n <= m || c.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if c.entered != nil {
		select {
		case c.entered <- struct{}{}:
		default:
		}
	}
	if c.block != nil {
		<-c.block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panics {
		panic("transport exploded")
	}
	if c.fail != nil {
		return c.fail
	}
	c.got = append(c.got, p)
	return nil
}

func (c *fakeConn) Close() { c.closed.Add(1) }

func (c *fakeConn) failWith(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func (c *fakeConn) received() []domain.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Payload, len(c.got))
	copy(out, c.got)
	return out
}
