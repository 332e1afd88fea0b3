package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Command errors are local to the command that triggered them: they are
// surfaced to the offending connection as an ERROR message and never
// unwind a room's processing loop.
var (
	errRoomNotFound           = errors.New("room not found")
	errInvalidOrganizerToken  = errors.New("invalid organizer token")
	errInvalidNickname        = errors.New("nickname must be 1-20 characters")
	errInvalidStateTransition = errors.New("command not valid in current room state")
	errDuplicateVote          = errors.New("you already voted this round")
	errVotingClosed           = errors.New("voting is not open")
	errNotAPlayer             = errors.New("join the room before voting")
	errAlreadyJoined          = errors.New("this connection already joined under another nickname")
	errUnknownTarget          = errors.New("vote target is not a player in this room")
	errMinimumPlayers         = errors.New("not enough players to start")
	errRoomFull               = errors.New("too many active rooms, try again later")
	errRoomClosed             = errors.New("this room has been closed")
	errNotOrganizer           = errors.New("only the organizer can do that")
	errSpectatorReadOnly      = errors.New("spectators cannot send game commands")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
