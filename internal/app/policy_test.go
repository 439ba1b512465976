package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		keepReplaced bool
		want         Policy
	}{
		{name: "", want: SimplePolicy{}},
		{name: "simple", want: SimplePolicy{}},
		{name: "simple", keepReplaced: true, want: SimplePolicy{KeepReplaced: true}},
		{name: "passive", want: PassivePolicy{}},
	}
	for _, tt := range tests {
		got, err := NewPolicy(tt.name, tt.keepReplaced)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := NewPolicy("aggressive", false)
	assert.ErrorContains(t, err, "aggressive")
}

func TestPolicy_Actions(t *testing.T) {
	t.Parallel()

	h := newHandle(1, newFakeConn())
	assert.Equal(t, CloseConn, SimplePolicy{}.OnSendFailure(h, errDead))
	assert.Equal(t, CloseConn, SimplePolicy{}.OnCallReplaced(7, h))
	assert.Equal(t, DropOnly, SimplePolicy{KeepReplaced: true}.OnCallReplaced(7, h))
	assert.Equal(t, DropOnly, PassivePolicy{}.OnSendFailure(h, errDead))
	assert.Equal(t, DropOnly, PassivePolicy{}.OnCallReplaced(7, h))
}
