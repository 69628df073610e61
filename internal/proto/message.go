// Package proto defines the wire protocol: flat JSON frames carrying a
// "type" tag, decoded through a single entry point into a closed set of
// inbound variants.
package proto

import (
	"encoding/json"
	"fmt"

	"github.com/vchaly/roomcast/internal/store"
)

// Inbound frame types.
const (
	TypeJoin       = "join"
	TypeChat       = "chat"
	TypeRecall     = "recall"
	TypeReaction   = "reaction"
	TypeCallSignal = "call_signal"
)

// Outbound frame types.
const (
	TypeJoinSuccess = "join_success"
	TypeError       = "error"
	TypeSystem      = "system"
	TypeUsers       = "users"
)

// JoinData asks to enter (and create, if absent) a room.
type JoinData struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password"`
	User     string `json:"user"`
	Avatar   string `json:"avatar"`
}

// ChatData is a chat message from the client.
type ChatData struct {
	MsgID   string `json:"msgId"`
	Body    string `json:"message"`
	ReplyTo string `json:"replyTo"`
}

// RecallData asks to retract a previously sent message.
type RecallData struct {
	MsgID string `json:"msgId"`
}

// Inbound is the decoded form of one client frame. Exactly one payload
// field is set, selected by Type. Reaction and call-signal frames keep the
// raw bytes because they are forwarded verbatim.
type Inbound struct {
	Type   string
	Join   *JoinData
	Chat   *ChatData
	Recall *RecallData
	Raw    json.RawMessage
}

// Decode parses a frame into its inbound variant. Unknown types decode to
// an Inbound with only Type set; callers ignore them. Undecodable data is
// an error.
func Decode(data []byte) (*Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	in := &Inbound{Type: envelope.Type}
	switch envelope.Type {
	case TypeJoin:
		in.Join = &JoinData{}
		if err := json.Unmarshal(data, in.Join); err != nil {
			return nil, fmt.Errorf("decode join: %w", err)
		}
	case TypeChat:
		in.Chat = &ChatData{}
		if err := json.Unmarshal(data, in.Chat); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
	case TypeRecall:
		in.Recall = &RecallData{}
		if err := json.Unmarshal(data, in.Recall); err != nil {
			return nil, fmt.Errorf("decode recall: %w", err)
		}
	case TypeReaction, TypeCallSignal:
		in.Raw = json.RawMessage(data)
	}
	return in, nil
}

// JoinSuccess confirms a join to the requester only.
type JoinSuccess struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ErrorEvent is the only client-visible failure: a rejected join.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SystemEvent is a room-wide notice (joined, left).
type SystemEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatEvent is a chat message on the wire; history replays reuse the same
// shape, so the stored record is embedded directly.
type ChatEvent struct {
	Type string `json:"type"`
	store.Message
}

// UserInfo is one roster entry.
type UserInfo struct {
	User   string `json:"user"`
	Avatar string `json:"avatar,omitempty"`
}

// UsersEvent is a full-replacement roster snapshot, not a delta.
type UsersEvent struct {
	Type  string     `json:"type"`
	Users []UserInfo `json:"users"`
}

// RecallEvent tells clients a message id was retracted; the placeholder
// body is replayed to late joiners via history.
type RecallEvent struct {
	Type  string `json:"type"`
	MsgID string `json:"msgId"`
}

// StampUser injects the sender's identity into a raw frame before it is
// forwarded. Reactions and call signals are otherwise passed through
// untouched.
func StampUser(raw json.RawMessage, user string) ([]byte, error) {
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode forwarded frame: %w", err)
	}
	frame["user"] = user
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode forwarded frame: %w", err)
	}
	return data, nil
}
