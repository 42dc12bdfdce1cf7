package core

import (
	"cmp"
	"slices"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/samber/lo"
)

const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// PresenceMember is a read-only view for APIs (no transport fields).
type PresenceMember struct {
	ConnectionID ConnectionID  `json:"connectionId"`
	UserID       domain.UserID `json:"userId"`
	Username     string        `json:"username"`
}

type PresenceChange struct {
	Kind         string        `json:"kind"`
	ConnectionID ConnectionID  `json:"connectionId"`
	UserID       domain.UserID `json:"userId"`
}

// Snapshot maps the connections of a room to their verified identities.
type Snapshot struct {
	RoomID  domain.RoomID
	members map[ConnectionID]domain.User
}

// BuildSnapshot resolves every id through r. Ids the resolver no longer
// knows are skipped, so a snapshot never lists a closed connection.
func BuildSnapshot(roomID domain.RoomID, ids []ConnectionID, r IdentityResolver) Snapshot {
	s := Snapshot{RoomID: roomID, members: make(map[ConnectionID]domain.User, len(ids))}
	for _, id := range ids {
		u, ok := r.Identity(id)
		if !ok {
			continue
		}
		s.members[id] = u.Public()
	}
	return s
}

func (s Snapshot) Len() int { return len(s.members) }

func (s Snapshot) Identity(id ConnectionID) (domain.User, bool) {
	u, ok := s.members[id]
	return u, ok
}

// Members lists the snapshot ordered by username, then connection id.
func (s Snapshot) Members() []PresenceMember {
	out := lo.MapToSlice(s.members, func(id ConnectionID, u domain.User) PresenceMember {
		return PresenceMember{ConnectionID: id, UserID: u.ID, Username: u.Username}
	})
	slices.SortFunc(out, func(a, b PresenceMember) int {
		if c := cmp.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return cmp.Compare(a.ConnectionID, b.ConnectionID)
	})
	return out
}
