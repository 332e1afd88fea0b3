package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Connection roles. A player or organizer holds a stable per-room
// identity; a spectator is read-only and holds none.
const (
	rolePlayer    = "player"
	roleOrganizer = "organizer"
	roleSpectator = "spectator"
)

const (
	maxWSMessageSize    = 4096
	wsMessagesPerSecond = 10
	sendQueueSize       = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one physical connection attached to a room. The room never
// blocks on it: sends go through a bounded queue and a connection that
// falls behind is dropped.
type client struct {
	conn     *websocket.Conn
	send     chan any
	clientID string
	role     string

	mu     sync.Mutex
	closed bool
}

// trySend queues a message unless the client is closed or backed up.
// Sends and close share the mutex, so a late message from a dropped or
// superseded connection can never hit a closed channel.
func (c *client) trySend(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// serveWS authenticates a connection against its room and binds it to
// the room's command stream: (room_code, nickname) for players via JOIN,
// (room_code, organizer_token) for the organizer, room_code alone for
// read-only spectators.
func serveWS(cfg *Config, reg *RoomRegistry, packs *packStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := strings.ToUpper(ps.ByName("code"))
		clientID := ps.ByName("clientid")
		query := r.URL.Query()
		isOrganizer := query.Get("organizer") == "true"
		isSpectator := query.Get("spectator") == "true"
		token := query.Get("token")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		room := reg.lookup(code)
		if room == nil {
			_ = conn.WriteJSON(errorMsg(errRoomNotFound))
			_ = conn.Close()
			return
		}

		role := rolePlayer
		switch {
		case isOrganizer:
			if token != room.organizerToken {
				_ = conn.WriteJSON(errorMsg(errInvalidOrganizerToken))
				_ = conn.Close()
				return
			}
			role = roleOrganizer
		case isSpectator:
			// Spectators carry no reconnect identity; any key works.
			clientID = uuid.NewString()
			role = roleSpectator
		}

		c := &client{
			conn:     conn,
			send:     make(chan any, sendQueueSize),
			clientID: clientID,
			role:     role,
		}

		if !room.enqueue(attachCmd{c: c}) {
			// Evicted between lookup and attach.
			_ = conn.WriteJSON(errorMsg(errRoomNotFound))
			_ = conn.Close()
			return
		}

		go c.writePump()
		c.readPump(cfg, room, packs)
	}
}

// readPump parses inbound messages and feeds them into the room's
// mailbox. Schema is closed: anything that is not valid JSON for
// ClientMessage is rejected without reaching the room.
func (c *client) readPump(cfg *Config, room *Room, packs *packStore) {
	defer func() {
		room.enqueue(detachCmd{c: c})
		_ = c.conn.Close()
		logf(cfg, "SERVE: Connection %s detached from room %s", c.clientID, room.code)
	}()

	c.conn.SetReadLimit(maxWSMessageSize)

	var stamps []time.Time

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		now := time.Now()
		kept := stamps[:0]
		for _, t := range stamps {
			if now.Sub(t) < time.Second {
				kept = append(kept, t)
			}
		}
		stamps = append(kept, now)
		if len(stamps) > wsMessagesPerSecond {
			c.trySend(ErrorMessage{Type: "ERROR", Message: "too many messages"})
			continue
		}

		var msg ClientMessage
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&msg); err != nil || msg.Type == "" {
			c.trySend(ErrorMessage{Type: "ERROR", Message: "invalid message format"})
			continue
		}

		cmd := inboundCmd{c: c, msg: msg}

		// RESET_ROOM may name a replacement pack; resolve it here so the
		// room loop never blocks on the store.
		if msg.Type == msgResetRoom && msg.PackID != "" {
			pack, ok := packs.get(msg.PackID)
			if !ok {
				c.trySend(ErrorMessage{Type: "ERROR", Message: "prompt pack not found"})
				continue
			}
			cmd.pack = &pack
		}

		if !room.enqueue(cmd) {
			c.trySend(errorMsg(errRoomNotFound))
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
