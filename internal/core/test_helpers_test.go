package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vchaly/roomcast/internal/proto"
	"github.com/vchaly/roomcast/internal/store"
)

// memStore records every save synchronously; the debounce window is a
// store-backend concern and is tested there.
type memStore struct {
	mu      sync.Mutex
	initial store.State
	saves   []store.State
}

func (m *memStore) Load() store.State {
	if m.initial == nil {
		return store.State{}
	}
	return m.initial
}

func (m *memStore) ScheduleSave(state store.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, state)
}

func (m *memStore) SaveNow(state store.State) error {
	m.ScheduleSave(state)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *memStore) lastSave() store.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

func newTestHub(t *testing.T, st store.Store) *Hub {
	t.Helper()

	if st == nil {
		st = &memStore{}
	}
	logger := zerolog.Nop()
	hub := NewHub(st, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub
}

// barrier waits until the hub loop has processed everything submitted
// before it, by doing one synchronous round trip.
func barrier(t *testing.T, hub *Hub) {
	t.Helper()
	if _, err := hub.Snapshot(context.Background()); err != nil {
		t.Fatalf("hub barrier: %v", err)
	}
}

func submitJoin(hub *Hub, c *Client, roomID, password, user, avatar string) {
	hub.Submit(c, &proto.Inbound{
		Type: proto.TypeJoin,
		Join: &proto.JoinData{RoomID: roomID, Password: password, User: user, Avatar: avatar},
	})
}

func submitChat(hub *Hub, c *Client, msgID, body, replyTo string) {
	hub.Submit(c, &proto.Inbound{
		Type: proto.TypeChat,
		Chat: &proto.ChatData{MsgID: msgID, Body: body, ReplyTo: replyTo},
	})
}

func submitRecall(hub *Hub, c *Client, msgID string) {
	hub.Submit(c, &proto.Inbound{
		Type:   proto.TypeRecall,
		Recall: &proto.RecallData{MsgID: msgID},
	})
}

func recvFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()

	select {
	case data, ok := <-c.Out:
		if !ok {
			t.Fatalf("out channel closed while waiting for frame")
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame %q: %v", data, err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return nil
}

func mustFrame(t *testing.T, c *Client, frameType string) map[string]any {
	t.Helper()

	frame := recvFrame(t, c)
	if frame["type"] != frameType {
		t.Fatalf("expected frame type %q, got %+v", frameType, frame)
	}
	return frame
}

func expectNoFrame(t *testing.T, hub *Hub, c *Client) {
	t.Helper()

	barrier(t, hub)
	select {
	case data := <-c.Out:
		t.Fatalf("unexpected frame: %s", data)
	default:
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Out:
		default:
			return
		}
	}
}
