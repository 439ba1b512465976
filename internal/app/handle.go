package app

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dkeye/Notify/internal/core"
	"github.com/dkeye/Notify/internal/domain"
)

// Handle is one registered channel. Sends through a handle are serialized,
// so two callers never interleave frames on the same transport.
type Handle struct {
	ID   uuid.UUID
	User domain.UserID

	conn core.Conn
	mu   sync.Mutex
}

func newHandle(uid domain.UserID, conn core.Conn) *Handle {
	return &Handle{ID: uuid.New(), User: uid, conn: conn}
}

func (h *Handle) send(p domain.Payload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.Send(p)
}

func (h *Handle) close() { h.conn.Close() }
