package app

import (
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Notify/internal/core"
	"github.com/dkeye/Notify/internal/domain"
)

const DefaultShards = 32

var ErrNilConn = errors.New("nil connection")

type userShard struct {
	mu    sync.RWMutex
	conns map[domain.UserID][]*Handle
}

// Registry maps identities, conversations and calls to live channels.
// Each map has its own lock; connection lists are sharded by identity so a
// busy user never blocks unrelated ones.
type Registry struct {
	shards []*userShard
	policy Policy

	convMu        sync.RWMutex
	conversations map[domain.ConversationID]map[domain.UserID]struct{}

	callMu sync.RWMutex
	calls  map[domain.CallID]map[domain.UserID]*Handle
}

type Option func(*Registry)

func WithShards(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.shards = newShards(n)
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(r *Registry) {
		if p != nil {
			r.policy = p
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		shards:        newShards(DefaultShards),
		policy:        SimplePolicy{},
		conversations: make(map[domain.ConversationID]map[domain.UserID]struct{}),
		calls:         make(map[domain.CallID]map[domain.UserID]*Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newShards(n int) []*userShard {
	out := make([]*userShard, n)
	for i := range out {
		out[i] = &userShard{conns: make(map[domain.UserID][]*Handle)}
	}
	return out
}

func (r *Registry) shard(uid domain.UserID) *userShard {
	return r.shards[uint64(uid)%uint64(len(r.shards))]
}

// Register appends conn to the identity's connection list.
func (r *Registry) Register(uid domain.UserID, conn core.Conn) (*Handle, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	h := newHandle(uid, conn)
	s := r.shard(uid)
	s.mu.Lock()
	s.conns[uid] = append(s.conns[uid], h)
	n := len(s.conns[uid])
	s.mu.Unlock()
	log.Info().Str("module", "app.registry").Stringer("user", uid).Stringer("conn", h.ID).Int("conns", n).Msg("registered")
	return h, nil
}

// Deregister removes h from the identity's list. Unknown handles are ignored.
func (r *Registry) Deregister(uid domain.UserID, h *Handle) bool {
	if h == nil {
		return false
	}
	s := r.shard(uid)
	s.mu.Lock()
	removed := s.removeLocked(uid, h)
	s.mu.Unlock()
	if removed {
		log.Info().Str("module", "app.registry").Stringer("user", uid).Stringer("conn", h.ID).Msg("deregistered")
	}
	return removed
}

func (s *userShard) removeLocked(uid domain.UserID, h *Handle) bool {
	list, ok := s.conns[uid]
	if !ok {
		return false
	}
	i := slices.Index(list, h)
	if i < 0 {
		return false
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(s.conns, uid)
	} else {
		s.conns[uid] = list
	}
	return true
}

// Connections returns a snapshot of the identity's handles.
func (r *Registry) Connections(uid domain.UserID) []*Handle {
	s := r.shard(uid)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conns[uid])
}

// prune drops dead handles after a delivery pass and reports how many were
// still present.
func (r *Registry) prune(uid domain.UserID, dead []*Handle) int {
	s := r.shard(uid)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range dead {
		if s.removeLocked(uid, h) {
			n++
		}
	}
	return n
}

func (r *Registry) AddToConversation(cid domain.ConversationID, uid domain.UserID) {
	r.convMu.Lock()
	defer r.convMu.Unlock()
	members, ok := r.conversations[cid]
	if !ok {
		members = make(map[domain.UserID]struct{})
		r.conversations[cid] = members
	}
	members[uid] = struct{}{}
	log.Debug().Str("module", "app.registry").Stringer("conversation", cid).Stringer("user", uid).Msg("member added")
}

// RemoveFromConversation drops uid from the set. An emptied set is removed,
// which is the same as an absent one.
func (r *Registry) RemoveFromConversation(cid domain.ConversationID, uid domain.UserID) bool {
	r.convMu.Lock()
	members := r.conversations[cid]
	if _, ok := members[uid]; !ok {
		r.convMu.Unlock()
		return false
	}
	delete(members, uid)
	if len(members) == 0 {
		delete(r.conversations, cid)
	}
	r.convMu.Unlock()
	log.Debug().Str("module", "app.registry").Stringer("conversation", cid).Stringer("user", uid).Msg("member removed")
	return true
}

// Members returns a sorted snapshot of the conversation's member set.
func (r *Registry) Members(cid domain.ConversationID) []domain.UserID {
	r.convMu.RLock()
	members := r.conversations[cid]
	out := make([]domain.UserID, 0, len(members))
	for uid := range members {
		out = append(out, uid)
	}
	r.convMu.RUnlock()
	slices.Sort(out)
	return out
}

// ConnectCall binds conn to (call, uid). A previous binding is replaced and
// handed to the policy.
func (r *Registry) ConnectCall(call domain.CallID, uid domain.UserID, conn core.Conn) (*Handle, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	h := newHandle(uid, conn)
	r.callMu.Lock()
	peers, ok := r.calls[call]
	if !ok {
		peers = make(map[domain.UserID]*Handle)
		r.calls[call] = peers
	}
	old := peers[uid]
	peers[uid] = h
	r.callMu.Unlock()

	log.Info().Str("module", "app.registry").Stringer("call", call).Stringer("user", uid).Stringer("conn", h.ID).Msg("call connected")
	if old != nil {
		action := r.policy.OnCallReplaced(call, old)
		log.Info().Str("module", "app.registry").Stringer("call", call).Stringer("user", uid).Stringer("old_conn", old.ID).Bool("closed", action == CloseConn).Msg("call connection replaced")
		if action == CloseConn {
			old.close()
		}
	}
	return h, nil
}

// DisconnectCall removes the (call, uid) binding whatever handle it holds.
func (r *Registry) DisconnectCall(call domain.CallID, uid domain.UserID) bool {
	return r.disconnectCall(call, uid, nil)
}

// DisconnectCallHandle removes the binding only while it still points at h,
// so a stale transport cannot evict the connection that replaced it.
func (r *Registry) DisconnectCallHandle(call domain.CallID, h *Handle) bool {
	if h == nil {
		return false
	}
	return r.disconnectCall(call, h.User, h)
}

func (r *Registry) disconnectCall(call domain.CallID, uid domain.UserID, want *Handle) bool {
	r.callMu.Lock()
	peers, ok := r.calls[call]
	if !ok {
		r.callMu.Unlock()
		return false
	}
	cur, ok := peers[uid]
	if !ok || (want != nil && cur != want) {
		r.callMu.Unlock()
		return false
	}
	delete(peers, uid)
	if len(peers) == 0 {
		delete(r.calls, call)
	}
	r.callMu.Unlock()
	log.Info().Str("module", "app.registry").Stringer("call", call).Stringer("user", uid).Msg("call disconnected")
	return true
}

// CallParticipants returns the sorted identities bound to call.
func (r *Registry) CallParticipants(call domain.CallID) []domain.UserID {
	r.callMu.RLock()
	peers := r.calls[call]
	out := make([]domain.UserID, 0, len(peers))
	for uid := range peers {
		out = append(out, uid)
	}
	r.callMu.RUnlock()
	slices.Sort(out)
	return out
}

// CallHandle returns the handle currently bound to (call, uid), or nil.
func (r *Registry) CallHandle(call domain.CallID, uid domain.UserID) *Handle {
	r.callMu.RLock()
	defer r.callMu.RUnlock()
	return r.calls[call][uid]
}

func (r *Registry) callHandles(call domain.CallID) []*Handle {
	r.callMu.RLock()
	defer r.callMu.RUnlock()
	peers := r.calls[call]
	out := make([]*Handle, 0, len(peers))
	for _, h := range peers {
		out = append(out, h)
	}
	return out
}

type Stats struct {
	Users         int `json:"users"`
	Conns         int `json:"conns"`
	Conversations int `json:"conversations"`
	Calls         int `json:"calls"`
	CallConns     int `json:"call_conns"`
}

func (r *Registry) Stats() Stats {
	var st Stats
	for _, s := range r.shards {
		s.mu.RLock()
		st.Users += len(s.conns)
		for _, list := range s.conns {
			st.Conns += len(list)
		}
		s.mu.RUnlock()
	}
	r.convMu.RLock()
	st.Conversations = len(r.conversations)
	r.convMu.RUnlock()
	r.callMu.RLock()
	st.Calls = len(r.calls)
	for _, peers := range r.calls {
		st.CallConns += len(peers)
	}
	r.callMu.RUnlock()
	return st
}

// CloseAll forgets every channel and closes its transport. Membership is kept.
func (r *Registry) CloseAll() int {
	var all []*Handle
	for _, s := range r.shards {
		s.mu.Lock()
		for _, list := range s.conns {
			all = append(all, list...)
		}
		s.conns = make(map[domain.UserID][]*Handle)
		s.mu.Unlock()
	}
	r.callMu.Lock()
	for _, peers := range r.calls {
		for _, h := range peers {
			all = append(all, h)
		}
	}
	r.calls = make(map[domain.CallID]map[domain.UserID]*Handle)
	r.callMu.Unlock()

	for _, h := range all {
		h.close()
	}
	log.Info().Str("module", "app.registry").Int("closed", len(all)).Msg("closed all connections")
	return len(all)
}
