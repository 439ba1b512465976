package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Notify/internal/domain"
)

func (r *Registry) hasUserEntry(uid domain.UserID) bool {
	s := r.shard(uid)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conns[uid]
	return ok
}

func (r *Registry) hasCallEntry(call domain.CallID) bool {
	r.callMu.RLock()
	defer r.callMu.RUnlock()
	_, ok := r.calls[call]
	return ok
}

func TestRegistry_RegisterDeregister(t *testing.T) {
	t.Parallel()

	t.Run("appends connections per identity", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		a, err := reg.Register(1, newFakeConn())
		require.NoError(t, err)
		b, err := reg.Register(1, newFakeConn())
		require.NoError(t, err)

		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, []*Handle{a, b}, reg.Connections(1))
		assert.Equal(t, domain.UserID(1), a.User)
	})

	t.Run("deregister twice is a no-op the second time", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		h, err := reg.Register(1, newFakeConn())
		require.NoError(t, err)

		assert.True(t, reg.Deregister(1, h))
		assert.NotPanics(t, func() {
			assert.False(t, reg.Deregister(1, h))
		})
	})

	t.Run("last removal drops the identity entry", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		a, _ := reg.Register(1, newFakeConn())
		b, _ := reg.Register(1, newFakeConn())

		reg.Deregister(1, a)
		assert.True(t, reg.hasUserEntry(1))
		reg.Deregister(1, b)
		assert.False(t, reg.hasUserEntry(1))
		assert.Empty(t, reg.Connections(1))
	})

	t.Run("handle of another identity is ignored", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		a, _ := reg.Register(1, newFakeConn())
		_, _ = reg.Register(2, newFakeConn())

		assert.False(t, reg.Deregister(2, a))
		assert.Len(t, reg.Connections(1), 1)
		assert.Len(t, reg.Connections(2), 1)
	})

	t.Run("nil inputs", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		_, err := reg.Register(1, nil)
		assert.ErrorIs(t, err, ErrNilConn)
		assert.False(t, reg.Deregister(1, nil))
	})
}

func TestRegistry_Conversations(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.AddToConversation(10, 3)
	reg.AddToConversation(10, 1)
	reg.AddToConversation(10, 1)
	reg.AddToConversation(11, 2)

	assert.Equal(t, []domain.UserID{1, 3}, reg.Members(10))
	assert.Empty(t, reg.Members(99))

	assert.True(t, reg.RemoveFromConversation(10, 3))
	assert.Equal(t, []domain.UserID{1}, reg.Members(10))
	assert.False(t, reg.RemoveFromConversation(10, 2))
	assert.Equal(t, []domain.UserID{1}, reg.Members(10))

	assert.True(t, reg.RemoveFromConversation(10, 1))
	assert.False(t, reg.RemoveFromConversation(10, 1))
	assert.False(t, reg.RemoveFromConversation(99, 1))
	assert.Empty(t, reg.Members(10))
	assert.Equal(t, 1, reg.Stats().Conversations)
}

func TestRegistry_Calls(t *testing.T) {
	t.Parallel()

	t.Run("teardown on last disconnect", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		_, err := reg.ConnectCall(7, 1, newFakeConn())
		require.NoError(t, err)
		_, err = reg.ConnectCall(7, 2, newFakeConn())
		require.NoError(t, err)

		assert.True(t, reg.DisconnectCall(7, 1))
		assert.Equal(t, []domain.UserID{2}, reg.CallParticipants(7))

		assert.True(t, reg.DisconnectCall(7, 2))
		assert.Empty(t, reg.CallParticipants(7))
		assert.False(t, reg.hasCallEntry(7))

		assert.False(t, reg.DisconnectCall(7, 2))
	})

	t.Run("reconnect replaces and closes the old channel", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		oldConn, newConn := newFakeConn(), newFakeConn()
		old, _ := reg.ConnectCall(7, 1, oldConn)
		cur, _ := reg.ConnectCall(7, 1, newConn)

		assert.Equal(t, []domain.UserID{1}, reg.CallParticipants(7))
		assert.Equal(t, int32(1), oldConn.closed.Load())
		assert.Zero(t, newConn.closed.Load())

		// the stale handle must not evict its replacement
		assert.False(t, reg.DisconnectCallHandle(7, old))
		assert.Same(t, cur, reg.CallHandle(7, 1))
		assert.Equal(t, []domain.UserID{1}, reg.CallParticipants(7))
		assert.True(t, reg.DisconnectCallHandle(7, cur))
		assert.False(t, reg.hasCallEntry(7))
		assert.Nil(t, reg.CallHandle(7, 1))
	})

	t.Run("passive policy leaves the replaced channel open", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry(WithPolicy(PassivePolicy{}))
		oldConn := newFakeConn()
		_, _ = reg.ConnectCall(7, 1, oldConn)
		_, _ = reg.ConnectCall(7, 1, newFakeConn())

		assert.Zero(t, oldConn.closed.Load())
	})

	t.Run("unknown call", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		assert.Empty(t, reg.CallParticipants(404))
		assert.False(t, reg.DisconnectCall(404, 1))
	})
}

func TestRegistry_StatsAndCloseAll(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(WithShards(4))
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	_, _ = reg.Register(1, conns[0])
	_, _ = reg.Register(1, conns[1])
	_, _ = reg.ConnectCall(5, 2, conns[2])
	reg.AddToConversation(9, 1)

	assert.Equal(t, Stats{Users: 1, Conns: 2, Conversations: 1, Calls: 1, CallConns: 1}, reg.Stats())

	assert.Equal(t, 3, reg.CloseAll())
	for _, c := range conns {
		assert.Equal(t, int32(1), c.closed.Load())
	}
	assert.Equal(t, Stats{Conversations: 1}, reg.Stats())
}

func TestRegistry_ConcurrentMutations(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(WithShards(8))
	var wg sync.WaitGroup
	for i := range 50 {
		uid := domain.UserID(i % 10)
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := reg.Register(uid, newFakeConn())
			if !assert.NoError(t, err) {
				return
			}
			reg.AddToConversation(1, uid)
			_, _ = reg.ConnectCall(domain.CallID(uid), uid, newFakeConn())
			reg.Deregister(uid, h)
			reg.DisconnectCall(domain.CallID(uid), uid)
		}()
	}
	wg.Wait()

	st := reg.Stats()
	assert.Zero(t, st.Conns, fmt.Sprintf("%+v", st))
	assert.Zero(t, st.Users)
	assert.Zero(t, st.Calls)
	assert.Len(t, reg.Members(1), 10)
}
