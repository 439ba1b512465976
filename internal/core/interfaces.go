package core

import "github.com/dkeye/Notify/internal/domain"

// Conn abstracts a live duplex transport channel.
// Owned by the adapter; the registry may Close() it after a failed send,
// so Close must be idempotent.
type Conn interface {
	// Send delivers one payload. A non-nil error means the channel is dead
	// or too slow and will be pruned.
	Send(domain.Payload) error
	Close()
}

// PublishResult reports delivery stats of one send or broadcast.
type PublishResult struct {
	Sent   int `json:"sent"`
	Pruned int `json:"pruned"`
}

// Add merges r2 into r.
func (r *PublishResult) Add(r2 PublishResult) {
	r.Sent += r2.Sent
	r.Pruned += r2.Pruned
}
