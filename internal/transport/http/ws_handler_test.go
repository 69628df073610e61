package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vchaly/roomcast/internal/config"
	"github.com/vchaly/roomcast/internal/core"
	"github.com/vchaly/roomcast/internal/store/jsonfile"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	st, err := jsonfile.New(filepath.Join(t.TempDir(), "database.json"), 10*time.Millisecond, &logger)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hub := core.NewHub(st, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.PingInterval = time.Minute

	server := NewServer(hub, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frame map[string]any) {
	t.Helper()

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return frame
}

func readFrameOfType(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()

	frame := readFrame(t, ctx, conn)
	if frame["type"] != frameType {
		t.Fatalf("expected %q frame, got %+v", frameType, frame)
	}
	return frame
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestJoinChatAndReplayOverWebSocket(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// A joins a fresh room.
	connA := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connA, map[string]any{
		"type": "join", "roomId": "team", "password": "x", "user": "alice", "avatar": "av-a",
	})
	success := readFrameOfType(t, ctx, connA, "join_success")
	if success["roomId"] != "team" {
		t.Fatalf("unexpected join_success: %+v", success)
	}
	readFrameOfType(t, ctx, connA, "users")

	// A chats and receives the authoritative echo.
	sendFrame(t, ctx, connA, map[string]any{"type": "chat", "msgId": "1", "message": "hi"})
	echo := readFrameOfType(t, ctx, connA, "chat")
	if echo["msgId"] != "1" || echo["message"] != "hi" || echo["user"] != "alice" {
		t.Fatalf("unexpected chat echo: %+v", echo)
	}

	// B joins with the right passphrase and replays history first.
	connB := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connB, map[string]any{
		"type": "join", "roomId": "team", "password": "x", "user": "bob",
	})
	readFrameOfType(t, ctx, connB, "join_success")
	replay := readFrameOfType(t, ctx, connB, "chat")
	if replay["msgId"] != "1" || replay["message"] != "hi" {
		t.Fatalf("unexpected replay: %+v", replay)
	}
	roster := readFrameOfType(t, ctx, connB, "users")
	if n := len(roster["users"].([]any)); n != 2 {
		t.Fatalf("expected 2 roster entries, got %d", n)
	}

	// A sees bob arrive.
	readFrameOfType(t, ctx, connA, "system")
	readFrameOfType(t, ctx, connA, "users")

	// A recalls message 1; both sides get the recall event.
	sendFrame(t, ctx, connA, map[string]any{"type": "recall", "msgId": "1"})
	if frame := readFrameOfType(t, ctx, connA, "recall"); frame["msgId"] != "1" {
		t.Fatalf("unexpected recall: %+v", frame)
	}
	if frame := readFrameOfType(t, ctx, connB, "recall"); frame["msgId"] != "1" {
		t.Fatalf("unexpected recall: %+v", frame)
	}

	// A late joiner replays the placeholder body.
	connD := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connD, map[string]any{
		"type": "join", "roomId": "team", "password": "x", "user": "dora",
	})
	readFrameOfType(t, ctx, connD, "join_success")
	late := readFrameOfType(t, ctx, connD, "chat")
	if late["message"] != core.RecalledBody {
		t.Fatalf("late joiner saw %q, want placeholder", late["message"])
	}
}

func TestWrongPassphraseGetsErrorOnly(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connA, map[string]any{
		"type": "join", "roomId": "team", "password": "x", "user": "alice",
	})
	readFrameOfType(t, ctx, connA, "join_success")
	readFrameOfType(t, ctx, connA, "users")

	connC := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connC, map[string]any{
		"type": "join", "roomId": "team", "password": "wrong", "user": "carol",
	})
	readFrameOfType(t, ctx, connC, "error")

	// The connection stays open; the server just took no membership action.
	readCtx, readCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer readCancel()
	if _, _, err := connC.Read(readCtx); err == nil {
		t.Fatalf("no further frames expected for a rejected join")
	}
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)
	if err := conn.Write(ctx, websocket.MessageText, []byte("this is not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	// A valid join on the same connection still works.
	sendFrame(t, ctx, conn, map[string]any{
		"type": "join", "roomId": "team", "password": "", "user": "alice",
	})
	readFrameOfType(t, ctx, conn, "join_success")
}

func TestReactionForwardingOverWebSocket(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connA, map[string]any{
		"type": "join", "roomId": "team", "password": "", "user": "alice",
	})
	readFrameOfType(t, ctx, connA, "join_success")
	readFrameOfType(t, ctx, connA, "users")

	connB := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connB, map[string]any{
		"type": "join", "roomId": "team", "password": "", "user": "bob",
	})
	readFrameOfType(t, ctx, connB, "join_success")
	readFrameOfType(t, ctx, connB, "users")
	readFrameOfType(t, ctx, connA, "system")
	readFrameOfType(t, ctx, connA, "users")

	sendFrame(t, ctx, connA, map[string]any{"type": "reaction", "msgId": "1", "emoji": "👍"})

	frame := readFrameOfType(t, ctx, connB, "reaction")
	if frame["user"] != "alice" || frame["emoji"] != "👍" {
		t.Fatalf("unexpected forwarded reaction: %+v", frame)
	}
}

func TestRoomsAPI(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)
	sendFrame(t, ctx, conn, map[string]any{
		"type": "join", "roomId": "team", "password": "x", "user": "alice",
	})
	readFrameOfType(t, ctx, conn, "join_success")
	readFrameOfType(t, ctx, conn, "users")
	sendFrame(t, ctx, conn, map[string]any{"type": "chat", "msgId": "1", "message": "hi"})
	readFrameOfType(t, ctx, conn, "chat")

	resp, err := ts.Client().Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("rooms request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode rooms response: %v", err)
	}
	if len(body.Rooms) != 1 {
		t.Fatalf("expected 1 room, got %+v", body.Rooms)
	}
	room := body.Rooms[0]
	if room.ID != "team" || room.Occupants != 1 || room.Messages != 1 {
		t.Fatalf("unexpected room info: %+v", room)
	}
}

func TestDisconnectUpdatesRoster(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connA, map[string]any{
		"type": "join", "roomId": "team", "password": "", "user": "alice",
	})
	readFrameOfType(t, ctx, connA, "join_success")
	readFrameOfType(t, ctx, connA, "users")

	connB := dialWS(t, ctx, ts)
	sendFrame(t, ctx, connB, map[string]any{
		"type": "join", "roomId": "team", "password": "", "user": "bob",
	})
	readFrameOfType(t, ctx, connB, "join_success")
	readFrameOfType(t, ctx, connB, "users")
	readFrameOfType(t, ctx, connA, "system")
	readFrameOfType(t, ctx, connA, "users")

	connB.Close(websocket.StatusNormalClosure, "bye")

	roster := readFrameOfType(t, ctx, connA, "users")
	entries := roster["users"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["user"] != "alice" {
		t.Fatalf("unexpected roster after disconnect: %+v", entries)
	}
	system := readFrameOfType(t, ctx, connA, "system")
	if system["message"] != "bob left the room" {
		t.Fatalf("unexpected system notice: %+v", system)
	}
}
