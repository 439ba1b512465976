package app

import (
	"errors"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/Notify/internal/core"
	"github.com/dkeye/Notify/internal/domain"
)

const DefaultFanoutWorkers = 64

var ErrNilPayload = errors.New("nil payload")

// Broadcaster delivers payloads over the channels tracked by a Registry and
// evicts the ones that fail. Delivery errors never reach the caller.
type Broadcaster struct {
	reg     *Registry
	workers int
}

func NewBroadcaster(reg *Registry, workers int) *Broadcaster {
	if workers < 1 {
		workers = DefaultFanoutWorkers
	}
	return &Broadcaster{reg: reg, workers: workers}
}

type attempt struct {
	h   *Handle
	err error
}

// deliver sends p on every handle concurrently and returns the failures once
// all sends finished. A panicking transport counts as a failed send.
func (b *Broadcaster) deliver(p domain.Payload, handles []*Handle) []attempt {
	if len(handles) == 1 {
		if a := sendOne(p, handles[0]); a.err != nil {
			return []attempt{a}
		}
		return nil
	}
	rp := pool.NewWithResults[attempt]().WithMaxGoroutines(b.workers)
	for _, h := range handles {
		rp.Go(func() attempt { return sendOne(p, h) })
	}
	var failed []attempt
	for _, a := range rp.Wait() {
		if a.err != nil {
			failed = append(failed, a)
		}
	}
	return failed
}

func sendOne(p domain.Payload, h *Handle) attempt {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = h.send(p) })
	if rec := pc.Recovered(); rec != nil {
		err = rec.AsError()
	}
	return attempt{h: h, err: err}
}

func (b *Broadcaster) evict(a attempt) {
	action := b.reg.policy.OnSendFailure(a.h, a.err)
	log.Warn().Err(a.err).Str("module", "app.broadcaster").Stringer("user", a.h.User).Stringer("conn", a.h.ID).Bool("closed", action == CloseConn).Msg("send failed, connection evicted")
	if action == CloseConn {
		a.h.close()
	}
}

// SendToIdentity delivers p to every channel of uid. An offline identity is
// not an error. Failed channels are removed after the pass.
func (b *Broadcaster) SendToIdentity(p domain.Payload, uid domain.UserID) (core.PublishResult, error) {
	if p == nil {
		return core.PublishResult{}, ErrNilPayload
	}
	return b.sendToIdentity(p, uid), nil
}

func (b *Broadcaster) sendToIdentity(p domain.Payload, uid domain.UserID) core.PublishResult {
	handles := b.reg.Connections(uid)
	if len(handles) == 0 {
		return core.PublishResult{}
	}
	failed := b.deliver(p, handles)
	res := core.PublishResult{Sent: len(handles) - len(failed)}
	if len(failed) == 0 {
		return res
	}
	dead := make([]*Handle, len(failed))
	for i, a := range failed {
		dead[i] = a.h
	}
	res.Pruned = b.reg.prune(uid, dead)
	for _, a := range failed {
		b.evict(a)
	}
	return res
}

// BroadcastToConversation sends p to every cached member of cid except the
// excluded identities. An unknown conversation reaches nobody.
func (b *Broadcaster) BroadcastToConversation(p domain.Payload, cid domain.ConversationID, exclude ...domain.UserID) (core.PublishResult, error) {
	if p == nil {
		return core.PublishResult{}, ErrNilPayload
	}
	members := b.reg.Members(cid)
	targets := members[:0]
	for _, uid := range members {
		if !slices.Contains(exclude, uid) {
			targets = append(targets, uid)
		}
	}
	res := b.fanOut(p, targets)
	log.Debug().Str("module", "app.broadcaster").Stringer("conversation", cid).Int("members", len(members)).Int("sent", res.Sent).Int("pruned", res.Pruned).Msg("conversation broadcast")
	return res, nil
}

// BroadcastToMany sends p to each listed identity independently.
func (b *Broadcaster) BroadcastToMany(p domain.Payload, uids []domain.UserID) (core.PublishResult, error) {
	if p == nil {
		return core.PublishResult{}, ErrNilPayload
	}
	res := b.fanOut(p, uids)
	log.Debug().Str("module", "app.broadcaster").Int("targets", len(uids)).Int("sent", res.Sent).Int("pruned", res.Pruned).Msg("broadcast to many")
	return res, nil
}

func (b *Broadcaster) fanOut(p domain.Payload, uids []domain.UserID) core.PublishResult {
	var total core.PublishResult
	switch len(uids) {
	case 0:
		return total
	case 1:
		return b.sendToIdentity(p, uids[0])
	}
	rp := pool.NewWithResults[core.PublishResult]().WithMaxGoroutines(b.workers)
	for _, uid := range uids {
		rp.Go(func() core.PublishResult { return b.sendToIdentity(p, uid) })
	}
	for _, r := range rp.Wait() {
		total.Add(r)
	}
	return total
}

// BroadcastToCall sends p to every participant of call except the excluded
// identities. A participant whose send fails is disconnected from the call
// right away so a reconnect finds a free slot.
func (b *Broadcaster) BroadcastToCall(p domain.Payload, call domain.CallID, exclude ...domain.UserID) (core.PublishResult, error) {
	if p == nil {
		return core.PublishResult{}, ErrNilPayload
	}
	handles := slices.DeleteFunc(b.reg.callHandles(call), func(h *Handle) bool {
		return slices.Contains(exclude, h.User)
	})
	if len(handles) == 0 {
		return core.PublishResult{}, nil
	}
	failed := b.deliver(p, handles)
	res := core.PublishResult{Sent: len(handles) - len(failed)}
	for _, a := range failed {
		if b.reg.DisconnectCallHandle(call, a.h) {
			res.Pruned++
		}
		b.evict(a)
	}
	log.Debug().Str("module", "app.broadcaster").Stringer("call", call).Int("sent", res.Sent).Int("pruned", res.Pruned).Msg("call broadcast")
	return res, nil
}

// RelayCallSignal forwards caller data to the other participants of call,
// tagged with the sender and the signal kind.
func (b *Broadcaster) RelayCallSignal(call domain.CallID, from domain.UserID, kind string, data any) (core.PublishResult, error) {
	return b.BroadcastToCall(domain.SignalEnvelope(from, kind, data), call, from)
}
