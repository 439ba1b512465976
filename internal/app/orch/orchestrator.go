package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Notify/internal/app"
	"github.com/dkeye/Notify/internal/core"
	"github.com/dkeye/Notify/internal/domain"
)

// Orchestrator is what the transport and request layers talk to. It turns
// chat and call events into registry mutations and broadcasts.
type Orchestrator struct {
	Registry    *app.Registry
	Broadcaster *app.Broadcaster
}

func New(reg *app.Registry, b *app.Broadcaster) *Orchestrator {
	return &Orchestrator{Registry: reg, Broadcaster: b}
}

// Connect registers a notification channel for uid.
func (o *Orchestrator) Connect(uid domain.UserID, conn core.Conn) (*app.Handle, error) {
	return o.Registry.Register(uid, conn)
}

// OnDisconnect is the transport's close callback for notification channels.
func (o *Orchestrator) OnDisconnect(uid domain.UserID, h *app.Handle) {
	o.Registry.Deregister(uid, h)
}

// Notify pushes a caller-built payload to every device of uid.
func (o *Orchestrator) Notify(uid domain.UserID, p domain.Payload) (core.PublishResult, error) {
	res, err := o.Broadcaster.SendToIdentity(p, uid)
	if err != nil {
		return res, err
	}
	log.Debug().Str("module", "orch").Stringer("user", uid).Int("sent", res.Sent).Msg("notify")
	return res, nil
}

func (o *Orchestrator) Stats() app.Stats { return o.Registry.Stats() }

// Shutdown closes every live channel.
func (o *Orchestrator) Shutdown() {
	n := o.Registry.CloseAll()
	log.Info().Str("module", "orch").Int("closed", n).Msg("shutdown")
}
