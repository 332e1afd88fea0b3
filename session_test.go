package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

func wsTestServer(t *testing.T, cfg *Config) (*httptest.Server, *RoomRegistry, *packStore) {
	t.Helper()

	reg := newRoomRegistry(cfg)
	packs := newPackStore(cfg.packTimeout)

	mux := httprouter.New()
	mux.GET("/ws/:code/:clientid", serveWS(cfg, reg, packs))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg, packs
}

func wsDial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilType drains a connection until a message of the wanted type
// arrives. Broadcast traffic, VOTE_COUNT and friends, is interleaved
// freely, so tests match on type rather than position.
func readUntilType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg["type"] == want {
			return msg
		}
	}
}

func TestTrySendAfterCloseIsSafe(t *testing.T) {
	c := newTestClient(rolePlayer, "cid-1")

	if !c.trySend("before") {
		t.Error("send to an open client should succeed")
	}

	c.close()
	c.close() // idempotent

	if c.trySend("after") {
		t.Error("send after close should report failure, not deliver")
	}
}

func TestWebSocketRoomNotFound(t *testing.T) {
	srv, _, _ := wsTestServer(t, testConfig())

	conn := wsDial(t, srv, "/ws/NOROOM/cid-1")
	msg := readUntilType(t, conn, "ERROR")
	if msg["message"] != errRoomNotFound.Error() {
		t.Errorf("unexpected error %q", msg["message"])
	}
}

func TestWebSocketOrganizerTokenCheck(t *testing.T) {
	cfg := testConfig()
	srv, reg, _ := wsTestServer(t, cfg)

	room, err := reg.create(testPack(3), GameSettings{TimerSeconds: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bad := wsDial(t, srv, "/ws/"+room.code+"/org?organizer=true&token=wrong")
	msg := readUntilType(t, bad, "ERROR")
	if msg["message"] != errInvalidOrganizerToken.Error() {
		t.Errorf("unexpected error %q", msg["message"])
	}

	good := wsDial(t, srv, "/ws/"+room.code+"/org?organizer=true&token="+room.organizerToken)
	sync := readUntilType(t, good, "ORGANIZER_RECONNECTED")
	if sync["room_code"] != room.code {
		t.Errorf("sync for wrong room: %v", sync["room_code"])
	}
	if sync["state"] != stateLobby {
		t.Errorf("expected lobby state, got %v", sync["state"])
	}
}

func TestWebSocketJoinFlow(t *testing.T) {
	cfg := testConfig()
	srv, reg, _ := wsTestServer(t, cfg)

	room, err := reg.create(testPack(3), GameSettings{TimerSeconds: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn := wsDial(t, srv, "/ws/"+room.code+"/cid-alex")

	joined := readUntilType(t, conn, "JOINED_ROOM")
	if joined["room_code"] != room.code {
		t.Errorf("joined wrong room: %v", joined["room_code"])
	}

	if err := conn.WriteJSON(map[string]string{"type": "JOIN", "nickname": "Alex", "avatar": "🦊"}); err != nil {
		t.Fatalf("send JOIN: %v", err)
	}

	announce := readUntilType(t, conn, "PLAYER_JOINED")
	if announce["nickname"] != "Alex" {
		t.Errorf("expected Alex announced, got %v", announce["nickname"])
	}
	if announce["player_count"] != float64(1) {
		t.Errorf("expected player_count 1, got %v", announce["player_count"])
	}
}

func TestWebSocketReconnectAcrossConnections(t *testing.T) {
	cfg := testConfig()
	srv, reg, _ := wsTestServer(t, cfg)

	room, err := reg.create(testPack(3), GameSettings{TimerSeconds: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := wsDial(t, srv, "/ws/"+room.code+"/cid-alex")
	readUntilType(t, first, "JOINED_ROOM")
	if err := first.WriteJSON(map[string]string{"type": "JOIN", "nickname": "Alex"}); err != nil {
		t.Fatal(err)
	}
	readUntilType(t, first, "PLAYER_JOINED")
	first.Close()

	// Same identity key on a fresh socket picks the Player back up.
	second := wsDial(t, srv, "/ws/"+room.code+"/cid-alex")
	snap := readUntilType(t, second, "RECONNECTED")
	if snap["nickname"] != "Alex" {
		t.Errorf("reconnect resolved wrong player: %v", snap["nickname"])
	}
}

func TestWebSocketSpectatorSync(t *testing.T) {
	cfg := testConfig()
	srv, reg, _ := wsTestServer(t, cfg)

	room, err := reg.create(testPack(3), GameSettings{TimerSeconds: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn := wsDial(t, srv, "/ws/"+room.code+"/ignored?spectator=true")
	sync := readUntilType(t, conn, "SPECTATOR_SYNC")
	if sync["state"] != stateLobby {
		t.Errorf("expected lobby state, got %v", sync["state"])
	}

	if err := conn.WriteJSON(map[string]string{"type": "START_GAME"}); err != nil {
		t.Fatal(err)
	}
	msg := readUntilType(t, conn, "ERROR")
	if msg["message"] != errSpectatorReadOnly.Error() {
		t.Errorf("unexpected error %q", msg["message"])
	}
}

func TestWebSocketRejectsMalformedMessages(t *testing.T) {
	cfg := testConfig()
	srv, reg, _ := wsTestServer(t, cfg)

	room, err := reg.create(testPack(3), GameSettings{TimerSeconds: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn := wsDial(t, srv, "/ws/"+room.code+"/cid-1")
	readUntilType(t, conn, "JOINED_ROOM")

	cases := []string{
		"not json at all",
		`{"no_type_field": true}`,
		`{"type": "JOIN", "unexpected_field": 1}`,
	}
	for _, raw := range cases {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("send %q: %v", raw, err)
		}
		msg := readUntilType(t, conn, "ERROR")
		if msg["message"] != "invalid message format" {
			t.Errorf("payload %q: unexpected error %q", raw, msg["message"])
		}
	}
}

func TestWebSocketLowercaseRoomCode(t *testing.T) {
	cfg := testConfig()
	srv, reg, _ := wsTestServer(t, cfg)

	room, err := reg.create(testPack(3), GameSettings{TimerSeconds: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Codes are typed by hand; the route folds case.
	conn := wsDial(t, srv, "/ws/"+strings.ToLower(room.code)+"/cid-1")
	readUntilType(t, conn, "JOINED_ROOM")
}
