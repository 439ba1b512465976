package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Notify/internal/core"
	"github.com/dkeye/Notify/internal/domain"
)

// OpenConversation mirrors a freshly created chat or group into the
// membership cache.
func (o *Orchestrator) OpenConversation(cid domain.ConversationID, members ...domain.UserID) {
	for _, uid := range members {
		o.Registry.AddToConversation(cid, uid)
	}
	log.Info().Str("module", "orch").Stringer("conversation", cid).Int("members", len(members)).Msg("conversation opened")
}

func (o *Orchestrator) JoinConversation(cid domain.ConversationID, uid domain.UserID) {
	o.Registry.AddToConversation(cid, uid)
}

func (o *Orchestrator) LeaveConversation(cid domain.ConversationID, uid domain.UserID) {
	o.Registry.RemoveFromConversation(cid, uid)
}

// PostMessage announces a stored message to the whole conversation, the
// sender's other devices included.
func (o *Orchestrator) PostMessage(cid domain.ConversationID, message any) (core.PublishResult, error) {
	res, err := o.Broadcaster.BroadcastToConversation(domain.NewMessage(message), cid)
	if err != nil {
		return res, err
	}
	log.Info().Str("module", "orch").Stringer("conversation", cid).Int("sent", res.Sent).Int("pruned", res.Pruned).Msg("message posted")
	return res, nil
}
