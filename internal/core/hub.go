// Package core owns room state and dispatches the relay protocol. A single
// hub goroutine serializes every registry mutation, so per-room operations
// are mutually exclusive and broadcasts never race membership changes.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vchaly/roomcast/internal/proto"
	"github.com/vchaly/roomcast/internal/store"
)

// RecalledBody replaces the body of a retracted message. Clients render it
// as-is, including late joiners who only ever see the replayed history.
const RecalledBody = "📩 Tin nhắn đã được thu hồi"

// ErrHubClosed is returned by Snapshot after the hub loop has exited.
var ErrHubClosed = errors.New("hub closed")

// RoomInfo is a point-in-time view of one room for the status API.
type RoomInfo struct {
	ID        string `json:"id"`
	Occupants int    `json:"occupants"`
	Messages  int    `json:"messages"`
}

type command struct {
	client *Client
	frame  *proto.Inbound
}

// Hub is the registry of live rooms and the protocol dispatcher. All state
// behind it is owned by the Run goroutine; other goroutines interact only
// through channels.
type Hub struct {
	st  store.Store
	log *zerolog.Logger

	rooms map[string]*Room

	register   chan *Client
	unregister chan *Client
	commands   chan command
	snapshots  chan chan []RoomInfo
	done       chan struct{}
}

// NewHub seeds the registry from the store. Persisted rooms come back with
// their passphrase and history but an empty member set.
func NewHub(st store.Store, logger *zerolog.Logger) *Hub {
	h := &Hub{
		st:         st,
		log:        logger,
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan command),
		snapshots:  make(chan chan []RoomInfo),
		done:       make(chan struct{}),
	}

	for id, rec := range st.Load() {
		h.rooms[id] = newRoom(id, rec.Passphrase, rec.Messages)
	}
	if len(h.rooms) > 0 {
		logger.Info().Int("rooms", len(h.rooms)).Msg("restored rooms from store")
	}
	return h
}

// Run processes registrations and commands until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.log.Debug().Str("session_id", c.ID).Msg("session registered")
		case c := <-h.unregister:
			h.handleClose(c)
		case cmd := <-h.commands:
			h.dispatch(cmd.client, cmd.frame)
		case reply := <-h.snapshots:
			reply <- h.roomInfos()
		}
	}
}

// Register announces a new connection to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister runs the close transition for a connection. Safe to call for
// sessions that never joined.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Submit hands one decoded inbound frame to the dispatcher.
func (h *Hub) Submit(c *Client, frame *proto.Inbound) {
	select {
	case h.commands <- command{client: c, frame: frame}:
	case <-h.done:
	}
}

// Snapshot asks the hub loop for the current room list.
func (h *Hub) Snapshot(ctx context.Context) ([]RoomInfo, error) {
	reply := make(chan []RoomInfo, 1)
	select {
	case h.snapshots <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrHubClosed
	}
	select {
	case infos := <-reply:
		return infos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) dispatch(c *Client, frame *proto.Inbound) {
	switch frame.Type {
	case proto.TypeJoin:
		h.handleJoin(c, frame.Join)
	case proto.TypeChat:
		h.handleChat(c, frame.Chat)
	case proto.TypeRecall:
		h.handleRecall(c, frame.Recall)
	case proto.TypeReaction, proto.TypeCallSignal:
		h.handleForward(c, frame.Raw)
	default:
		h.log.Debug().Str("type", frame.Type).Str("session_id", c.ID).Msg("ignoring unknown frame type")
	}
}

func (h *Hub) handleJoin(c *Client, d *proto.JoinData) {
	if c.Joined() {
		// One room per session; repeated joins are ignored.
		return
	}
	if d.RoomID == "" || d.User == "" {
		return
	}

	room, ok := h.rooms[d.RoomID]
	if !ok {
		// First joiner creates the room; its passphrase is permanent.
		room = newRoom(d.RoomID, d.Password, nil)
		h.rooms[d.RoomID] = room
		h.st.ScheduleSave(h.snapshotState())
		h.log.Info().Str("room", d.RoomID).Msg("room created")
	} else if room.Passphrase != d.Password {
		c.send(h.encode(proto.ErrorEvent{Type: proto.TypeError, Message: "wrong room passphrase"}))
		h.log.Info().Str("room", d.RoomID).Str("session_id", c.ID).Msg("join rejected")
		return
	}

	c.Name = d.User
	c.Avatar = d.Avatar
	c.Room = d.RoomID
	room.addMember(c)

	c.send(h.encode(proto.JoinSuccess{Type: proto.TypeJoinSuccess, RoomID: room.ID}))
	for _, msg := range room.Log {
		c.send(h.encode(proto.ChatEvent{Type: proto.TypeChat, Message: msg}))
	}

	room.broadcast(h.encode(proto.SystemEvent{
		Type:    proto.TypeSystem,
		Message: fmt.Sprintf("%s joined the room", c.Name),
	}), c)
	h.broadcastRoster(room)

	h.log.Info().Str("room", room.ID).Str("user", c.Name).Str("session_id", c.ID).Msg("user joined")
}

func (h *Hub) handleChat(c *Client, d *proto.ChatData) {
	if !c.Joined() || d.Body == "" {
		return
	}
	room := h.rooms[c.Room]
	if room == nil {
		return
	}

	id := d.MsgID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	msg := store.Message{
		ID:       id,
		AuthorID: c.ID,
		Author:   c.Name,
		Avatar:   c.Avatar,
		Body:     d.Body,
		ReplyTo:  d.ReplyTo,
		Time:     now.Format("15:04"),
		Date:     now.Format("02/01/2006"),
		SentAt:   now.UnixMilli(),
	}

	room.Log = append(room.Log, msg)
	h.st.ScheduleSave(h.snapshotState())

	// Sender included: every client converges on this authoritative copy.
	room.broadcast(h.encode(proto.ChatEvent{Type: proto.TypeChat, Message: msg}), nil)
}

func (h *Hub) handleRecall(c *Client, d *proto.RecallData) {
	if !c.Joined() || d.MsgID == "" {
		return
	}
	room := h.rooms[c.Room]
	if room == nil {
		return
	}

	for i := range room.Log {
		if room.Log[i].ID != d.MsgID {
			continue
		}
		if room.Log[i].AuthorID != c.ID {
			// Only the author may retract; mismatch is a silent no-op.
			return
		}
		if room.Log[i].Body == RecalledBody {
			return
		}

		room.Log[i].Body = RecalledBody
		h.st.ScheduleSave(h.snapshotState())
		room.broadcast(h.encode(proto.RecallEvent{Type: proto.TypeRecall, MsgID: d.MsgID}), nil)
		h.log.Info().Str("room", room.ID).Str("msg_id", d.MsgID).Msg("message recalled")
		return
	}
}

// handleForward stamps the sender's identity into a reaction or call-signal
// frame and relays it to every other member. These frames are ephemeral:
// never persisted, best-effort delivery only.
func (h *Hub) handleForward(c *Client, raw json.RawMessage) {
	if !c.Joined() {
		return
	}
	room := h.rooms[c.Room]
	if room == nil {
		return
	}

	stamped, err := proto.StampUser(raw, c.Name)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", c.ID).Msg("dropping unforwardable frame")
		return
	}
	room.broadcast(stamped, c)
}

func (h *Hub) handleClose(c *Client) {
	defer close(c.Out)

	if !c.Joined() {
		return
	}
	room := h.rooms[c.Room]
	if room == nil {
		return
	}

	room.removeMember(c)
	h.broadcastRoster(room)
	room.broadcast(h.encode(proto.SystemEvent{
		Type:    proto.TypeSystem,
		Message: fmt.Sprintf("%s left the room", c.Name),
	}), nil)

	// Empty rooms are kept for their history until process restart.
	h.log.Info().Str("room", room.ID).Str("user", c.Name).Msg("user left")
}

func (h *Hub) broadcastRoster(room *Room) {
	room.broadcast(h.encode(proto.UsersEvent{
		Type:  proto.TypeUsers,
		Users: room.roster(),
	}), nil)
}

// encode serializes an event exactly once per broadcast.
func (h *Hub) encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("encode event")
		return nil
	}
	return data
}

// snapshotState copies the durable part of every room for the store. The
// copy keeps the save path decoupled from further mutation.
func (h *Hub) snapshotState() store.State {
	state := make(store.State, len(h.rooms))
	for id, room := range h.rooms {
		msgs := make([]store.Message, len(room.Log))
		copy(msgs, room.Log)
		state[id] = store.RoomRecord{Passphrase: room.Passphrase, Messages: msgs}
	}
	return state
}

func (h *Hub) roomInfos() []RoomInfo {
	infos := make([]RoomInfo, 0, len(h.rooms))
	for id, room := range h.rooms {
		infos = append(infos, RoomInfo{
			ID:        id,
			Occupants: len(room.members),
			Messages:  len(room.Log),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
