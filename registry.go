package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"
)

const (
	roomCodeLength = 6
	// No 0/O or 1/I; codes get read aloud and typed on phones.
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxCodeAttempts = 100
)

// RoomRegistry is the single source of truth for live rooms. It creates
// them, looks them up for attaching connections, and is the only thing
// allowed to destroy them.
type RoomRegistry struct {
	cfg   *Config
	mu    sync.Mutex
	rooms map[string]*Room
}

func newRoomRegistry(cfg *Config) *RoomRegistry {
	reg := &RoomRegistry{
		cfg:   cfg,
		rooms: make(map[string]*Room),
	}
	if cfg.idleTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

// create spins up a room with a collision-checked code and a fresh
// organizer capability token, and starts its processing loop.
func (reg *RoomRegistry) create(pack PromptPack, settings GameSettings) (*Room, error) {
	token, err := newOrganizerToken()
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if len(reg.rooms) >= reg.cfg.maxRooms {
		return nil, errRoomFull
	}

	code, err := reg.newRoomCodeLocked()
	if err != nil {
		return nil, err
	}

	room := newRoom(code, token, pack, settings, reg.cfg)
	room.onFatal = reg.remove
	reg.rooms[code] = room
	go room.run()

	logf(reg.cfg, "ROOMS: Created room %s (%d prompts, %ds timer)",
		code, len(pack.Prompts), settings.TimerSeconds)

	return room, nil
}

func (reg *RoomRegistry) lookup(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[code]
}

func (reg *RoomRegistry) remove(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, code)
}

// newRoomCodeLocked generates a crypto-random code and retries on
// collision with a currently-live room. Codes are never reused while
// their room lives; after that they are fair game.
func (reg *RoomRegistry) newRoomCodeLocked() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(out)

		if _, exists := reg.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", errors.New("failed to generate a unique room code")
}

func newOrganizerToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// reaperLoop evicts rooms that have had no attached connections past the
// idle timeout. Mid-round rooms get the grace window on top, covering an
// organizer who dropped and is on their way back. Eviction goes through
// the room's own mailbox, so it cannot race an in-flight command.
func (reg *RoomRegistry) reaperLoop() {
	ticker := time.NewTicker(reg.cfg.idleTimeout / 2)
	for range ticker.C {
		reg.sweep(time.Now())
	}
}

func (reg *RoomRegistry) sweep(now time.Time) {
	type victim struct {
		code string
		room *Room
	}
	var victims []victim

	reg.mu.Lock()
	for code, room := range reg.rooms {
		status := room.snapshotStatus()
		if status.conns > 0 {
			continue
		}
		cutoff := reg.cfg.idleTimeout
		if status.midRound {
			cutoff += reg.cfg.graceWindow
		}
		if now.Sub(status.lastActive) > cutoff {
			victims = append(victims, victim{code, room})
			delete(reg.rooms, code)
		}
	}
	reg.mu.Unlock()

	for _, v := range victims {
		v.room.enqueue(stopCmd{notify: true})
		logf(reg.cfg, "ROOMS: Evicted idle room %s", v.code)
	}
}
