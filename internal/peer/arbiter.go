package peer

import "sort"

// Role resolves which side yields when both peers originate an offer at
// once. The polite peer rolls its own offer back; the impolite peer's
// offer wins. The rule is purely lexicographic over connection ids, so
// both peers derive the same assignment from the same membership data no
// matter which of them computes first or which event reached them.
//
// The first decision locks: once a role is computed it never changes for
// the life of the peer connection, which prevents oscillation when
// room-state and user-joined events race each other.
type Role struct {
	self   string
	polite bool
	locked bool
}

func NewRole(self string) *Role {
	return &Role{self: self}
}

// Locked reports whether the role has been decided.
func (r *Role) Locked() bool {
	return r.locked
}

// Polite reports the locked role. Only meaningful once Locked.
func (r *Role) Polite() bool {
	return r.polite
}

// LockFromList decides the role from a full member list: the connection
// whose id sorts lowest is impolite, everyone else polite. No-op when
// already locked or when the list names no counterpart yet: a peer alone
// in the room must not lock, or both sides could end up impolite once a
// lower-sorting id joins later.
func (r *Role) LockFromList(members []string) {
	if r.locked || len(members) == 0 {
		return
	}
	all := make([]string, 0, len(members)+1)
	all = append(all, members...)

	found := false
	for _, id := range all {
		if id == r.self {
			found = true
			break
		}
	}
	if !found {
		all = append(all, r.self)
	}
	if len(all) < 2 {
		return
	}
	sort.Strings(all)

	r.polite = all[0] != r.self
	r.locked = true
}

// LockFromPeer decides the role from a single other-peer id. Self-
// consistent with LockFromList for the two-member case.
func (r *Role) LockFromPeer(other string) {
	if r.locked || other == "" {
		return
	}
	r.polite = r.self > other
	r.locked = true
}

// ForSender returns the politeness to apply against an incoming offer,
// locking the role if an offer arrived before any membership event did.
func (r *Role) ForSender(sender string) bool {
	if r.locked {
		return r.polite
	}
	r.LockFromPeer(sender)
	return r.polite
}
