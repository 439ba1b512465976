package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Notify/internal/app"
	"github.com/dkeye/Notify/internal/core"
	"github.com/dkeye/Notify/internal/domain"
)

type CallStart struct {
	Call         domain.CallID         `json:"call_id"`
	Conversation domain.ConversationID `json:"conversation_id"`
	InitiatedBy  any                   `json:"initiated_by"`
	CallType     string                `json:"call_type"`
	Participants []domain.UserID       `json:"participants"`
}

// StartCall rings the given participants on their notification channels.
func (o *Orchestrator) StartCall(cs CallStart) (core.PublishResult, error) {
	if cs.CallType == "" {
		cs.CallType = "group"
	}
	p := domain.CallNotification(cs.Call, cs.Conversation, cs.InitiatedBy, cs.CallType)
	res, err := o.Broadcaster.BroadcastToMany(p, cs.Participants)
	if err != nil {
		return res, err
	}
	log.Info().Str("module", "orch").Stringer("call", cs.Call).Stringer("conversation", cs.Conversation).Int("rung", res.Sent).Msg("call started")
	return res, nil
}

func (o *Orchestrator) JoinCall(call domain.CallID, uid domain.UserID, conn core.Conn) (*app.Handle, error) {
	return o.Registry.ConnectCall(call, uid, conn)
}

// OnCallSignal relays one signaling frame from uid to the rest of the call.
func (o *Orchestrator) OnCallSignal(call domain.CallID, uid domain.UserID, kind string, data any) {
	res, _ := o.Broadcaster.RelayCallSignal(call, uid, kind, data)
	log.Debug().Str("module", "orch").Stringer("call", call).Stringer("from", uid).Str("kind", kind).Int("sent", res.Sent).Msg("signal relayed")
}

// LeaveCall is the transport's close callback for call channels. Only the
// handle that is still bound is removed. A handle already pruned by a failed
// send is still announced; one replaced by a reconnect leaves silently.
func (o *Orchestrator) LeaveCall(call domain.CallID, h *app.Handle) {
	if h == nil {
		return
	}
	if !o.Registry.DisconnectCallHandle(call, h) && o.Registry.CallHandle(call, h.User) != nil {
		log.Debug().Str("module", "orch").Stringer("call", call).Stringer("user", h.User).Stringer("conn", h.ID).Msg("replaced call connection closed")
		return
	}
	_, _ = o.Broadcaster.BroadcastToCall(domain.UserLeft(h.User), call)
}

func (o *Orchestrator) CallParticipants(call domain.CallID) []domain.UserID {
	return o.Registry.CallParticipants(call)
}
