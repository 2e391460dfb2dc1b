package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_LockFromList(t *testing.T) {
	tests := []struct {
		name       string
		self       string
		members    []string
		wantPolite bool
	}{
		{
			name:       "lowest id is impolite",
			self:       "aaa",
			members:    []string{"aaa", "bbb"},
			wantPolite: false,
		},
		{
			name:       "highest id is polite",
			self:       "bbb",
			members:    []string{"aaa", "bbb"},
			wantPolite: true,
		},
		{
			name:       "self missing from list is appended",
			self:       "aaa",
			members:    []string{"bbb"},
			wantPolite: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRole(tt.self)
			r.LockFromList(tt.members)
			assert.True(t, r.Locked())
			assert.Equal(t, tt.wantPolite, r.Polite())
		})
	}
}

func TestRole_EmptyListDoesNotLock(t *testing.T) {
	r := NewRole("aaa")
	r.LockFromList(nil)
	assert.False(t, r.Locked())
}

func TestRole_SoloListDoesNotLock(t *testing.T) {
	// The first joiner sees a room-state naming only itself. Locking
	// there would leave both peers impolite when a lower-sorting id
	// joins afterwards, so the decision must wait for a counterpart.
	first := NewRole("conn-b")
	first.LockFromList([]string{"conn-b"})
	assert.False(t, first.Locked())

	first.LockFromList([]string{"conn-a", "conn-b"})
	second := NewRole("conn-a")
	second.LockFromList([]string{"conn-a", "conn-b"})

	assert.True(t, first.Locked())
	assert.True(t, second.Locked())
	assert.NotEqual(t, first.Polite(), second.Polite())
	assert.True(t, first.Polite(), "highest id must be polite")
}

func TestRole_BothPeersAgree(t *testing.T) {
	members := []string{"conn-b", "conn-a"}

	a := NewRole("conn-a")
	b := NewRole("conn-b")
	a.LockFromList(members)
	b.LockFromList(members)

	assert.False(t, a.Polite(), "lowest id must be impolite")
	assert.True(t, b.Polite(), "highest id must be polite")
}

func TestRole_LockFromPeerMatchesLockFromList(t *testing.T) {
	fromList := NewRole("conn-b")
	fromList.LockFromList([]string{"conn-a", "conn-b"})

	fromPeer := NewRole("conn-b")
	fromPeer.LockFromPeer("conn-a")

	assert.Equal(t, fromList.Polite(), fromPeer.Polite())
}

func TestRole_FirstDecisionLocks(t *testing.T) {
	r := NewRole("conn-b")
	r.LockFromPeer("conn-a")
	assert.True(t, r.Polite())

	// Later membership events must not flip the role, even if the peer
	// set changed underneath.
	r.LockFromList([]string{"conn-b", "conn-z"})
	assert.True(t, r.Polite())
	r.LockFromPeer("conn-z")
	assert.True(t, r.Polite())
}

func TestRole_ForSenderLocksOnFirstOffer(t *testing.T) {
	r := NewRole("conn-b")

	// An offer arriving before any membership event still yields a
	// stable decision.
	polite := r.ForSender("conn-a")
	assert.True(t, polite)
	assert.True(t, r.Locked())
	assert.True(t, r.ForSender("conn-z"))
}
