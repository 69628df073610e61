package core

import (
	"sort"

	"github.com/vchaly/roomcast/internal/proto"
	"github.com/vchaly/roomcast/internal/store"
)

// Room is the live state of one conversation channel: immutable passphrase,
// durable message log, and the set of currently connected members. Members
// are never persisted; a room reloaded from the store starts empty.
type Room struct {
	ID         string
	Passphrase string
	Log        []store.Message
	members    map[*Client]struct{}
}

func newRoom(id, passphrase string, log []store.Message) *Room {
	return &Room{
		ID:         id,
		Passphrase: passphrase,
		Log:        log,
		members:    make(map[*Client]struct{}),
	}
}

func (r *Room) addMember(c *Client) {
	r.members[c] = struct{}{}
}

func (r *Room) removeMember(c *Client) {
	delete(r.members, c)
}

// broadcast hands the already-serialized frame to every member, skipping
// exclude if given. Delivery is fire-and-forget per member.
func (r *Room) broadcast(data []byte, exclude *Client) {
	for member := range r.members {
		if member == exclude {
			continue
		}
		member.send(data)
	}
}

// roster returns a full-replacement snapshot of the current members,
// ordered by name so repeated snapshots are stable.
func (r *Room) roster() []proto.UserInfo {
	users := make([]proto.UserInfo, 0, len(r.members))
	for member := range r.members {
		users = append(users, proto.UserInfo{User: member.Name, Avatar: member.Avatar})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].User < users[j].User })
	return users
}
