package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Notify/internal/domain"
)

// handlePing answers a heartbeat frame with "pong: <data>".
func (ctl *SignalWSController) handlePing(conn *WsConn, data []byte) {
	reply := make([]byte, 0, len(data)+6)
	reply = append(reply, "pong: "...)
	reply = append(reply, data...)
	if err := conn.trySend(reply); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("heartbeat reply dropped")
	}
}

type callFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (ctl *SignalWSController) handleCallSignal(call domain.CallID, uid domain.UserID, conn *WsConn, data []byte) {
	var f callFrame
	if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
		log.Warn().Err(err).Str("module", "signal").Stringer("call", call).Stringer("user", uid).Msg("bad signal payload")
		_ = conn.Send(domain.ErrorEvent("bad_payload"))
		return
	}
	if ctl.limiter != nil && !ctl.limiter.Allow(uid) {
		log.Warn().Str("module", "signal").Stringer("call", call).Stringer("user", uid).Msg("signal rate limited")
		_ = conn.Send(domain.ErrorEvent("rate_limited"))
		return
	}
	var payload any
	if len(f.Data) > 0 {
		payload = f.Data
	}
	ctl.Orch.OnCallSignal(call, uid, f.Type, payload)
}
