package main

// Wire schema for the room protocol. The schema is closed: every message
// type and every field it may carry is declared here, and handlers reject
// anything outside it.

// Inbound message types (client -> room).
const (
	msgJoin         = "JOIN"
	msgVote         = "VOTE"
	msgStartGame    = "START_GAME"
	msgNextQuestion = "NEXT_QUESTION"
	msgSkipQuestion = "SKIP_QUESTION"
	msgEndGame      = "END_GAME"
	msgResetRoom    = "RESET_ROOM"
	msgSync         = "SYNC"
)

// ClientMessage is the single inbound envelope. Field usage per type:
//
//	JOIN        nickname, avatar
//	VOTE        target_nickname
//	RESET_ROOM  pack_id, timer_seconds, show_votes (all optional)
//	SYNC        (spectators only, no fields)
//
// The remaining types carry no fields.
type ClientMessage struct {
	Type           string `json:"type"`
	Nickname       string `json:"nickname,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	TargetNickname string `json:"target_nickname,omitempty"`
	PackID         string `json:"pack_id,omitempty"`
	TimerSeconds   *int   `json:"timer_seconds,omitempty"`
	ShowVotes      *bool  `json:"show_votes,omitempty"`
}

// PlayerInfo is the roster entry shared by every outbound message that
// carries the player list.
type PlayerInfo struct {
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
	Connected bool   `json:"connected"`
}

// JoinedRoomMessage confirms a fresh player attach before JOIN.
type JoinedRoomMessage struct {
	Type     string `json:"type"` // "JOINED_ROOM"
	RoomCode string `json:"room_code"`
}

// ReconnectedMessage resynchronizes a returning player with a full
// snapshot instead of replaying missed events.
type ReconnectedMessage struct {
	Type           string             `json:"type"` // "RECONNECTED"
	RoomCode       string             `json:"room_code"`
	State          string             `json:"state"`
	Nickname       string             `json:"nickname"`
	Avatar         string             `json:"avatar"`
	Score          int                `json:"score"`
	Players        []PlayerInfo       `json:"players"`
	QuestionNumber int                `json:"question_number"`
	TotalQuestions int                `json:"total_questions"`
	Prompt         *Prompt            `json:"prompt,omitempty"`         // set while a round is open
	TimerSeconds   int                `json:"timer_seconds,omitempty"`  // set while a round is open
	TimeRemaining  int                `json:"time_remaining,omitempty"` // set while a round is open
	HasVoted       bool               `json:"has_voted"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard,omitempty"`  // set once the game has ended
	Superlatives   []Superlative      `json:"superlatives,omitempty"` // set once the game has ended
}

// OrganizerSyncMessage is the organizer's reconnect snapshot. It always
// includes the full pack and the per-round vote breakdown regardless of
// the show_votes setting.
type OrganizerSyncMessage struct {
	Type           string             `json:"type"` // "ORGANIZER_RECONNECTED"
	RoomCode       string             `json:"room_code"`
	State          string             `json:"state"`
	PlayerCount    int                `json:"player_count"`
	Players        []PlayerInfo       `json:"players"`
	QuestionNumber int                `json:"question_number"`
	TotalQuestions int                `json:"total_questions"`
	TimerSeconds   int                `json:"timer_seconds"`
	ShowVotes      bool               `json:"show_votes"`
	Prompts        []Prompt           `json:"prompts"`
	Prompt         *Prompt            `json:"prompt,omitempty"`          // set while a round is open
	VotedCount     int                `json:"voted_count,omitempty"`     // set while a round is open
	TimeRemaining  int                `json:"time_remaining,omitempty"`  // set while a round is open
	VotedNicknames []string           `json:"voted_nicknames,omitempty"` // set while a round is open
	Leaderboard    []LeaderboardEntry `json:"leaderboard,omitempty"`
	Superlatives   []Superlative      `json:"superlatives,omitempty"`
}

// SpectatorSyncMessage is the read-only full-state snapshot, sent on
// attach and again whenever a spectator asks for SYNC.
type SpectatorSyncMessage struct {
	Type           string             `json:"type"` // "SPECTATOR_SYNC"
	RoomCode       string             `json:"room_code"`
	State          string             `json:"state"`
	PlayerCount    int                `json:"player_count"`
	Players        []PlayerInfo       `json:"players"`
	QuestionNumber int                `json:"question_number"`
	TotalQuestions int                `json:"total_questions"`
	Prompt         *Prompt            `json:"prompt,omitempty"`
	TimeRemaining  int                `json:"time_remaining,omitempty"`
	VotedCount     int                `json:"voted_count,omitempty"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard,omitempty"`
	Superlatives   []Superlative      `json:"superlatives,omitempty"`
}

// PlayerJoinedMessage announces a new roster entry.
type PlayerJoinedMessage struct {
	Type        string       `json:"type"` // "PLAYER_JOINED"
	Nickname    string       `json:"nickname"`
	Avatar      string       `json:"avatar"`
	PlayerCount int          `json:"player_count"`
	Players     []PlayerInfo `json:"players"`
}

// PlayerLeftMessage reports a dropped connection. The roster itself is
// untouched; the players list carries updated connected flags.
type PlayerLeftMessage struct {
	Type        string       `json:"type"` // "PLAYER_LEFT"
	Nickname    string       `json:"nickname"`
	PlayerCount int          `json:"player_count"`
	Players     []PlayerInfo `json:"players"`
}

// KickedMessage is the supersede notice sent to a connection whose
// identity was taken over from another device.
type KickedMessage struct {
	Type    string `json:"type"` // "KICKED"
	Message string `json:"message"`
}

// GameStartingMessage precedes the first QUESTION.
type GameStartingMessage struct {
	Type string `json:"type"` // "GAME_STARTING"
}

// QuestionMessage opens a round.
type QuestionMessage struct {
	Type           string       `json:"type"` // "QUESTION"
	Prompt         Prompt       `json:"prompt"`
	QuestionNumber int          `json:"question_number"`
	TotalQuestions int          `json:"total_questions"`
	TimerSeconds   int          `json:"timer_seconds"`
	Players        []PlayerInfo `json:"players"`
}

// TimerMessage is the once-per-second countdown tick.
type TimerMessage struct {
	Type      string `json:"type"` // "TIMER"
	Remaining int    `json:"remaining"`
}

// VoteCountMessage reports live voting progress without spoilers.
type VoteCountMessage struct {
	Type  string `json:"type"` // "VOTE_COUNT"
	Voted int    `json:"voted"`
	Total int    `json:"total"`
}

// VoteConfirmedMessage acknowledges a single accepted vote to its voter.
type VoteConfirmedMessage struct {
	Type   string `json:"type"` // "VOTE_CONFIRMED"
	Target string `json:"target"`
}

// RoundResultMessage closes a round. Votes is present for the organizer
// always, for everyone else only when show_votes is enabled. A skipped
// round sets Skipped and carries no tally.
type RoundResultMessage struct {
	Type             string             `json:"type"` // "ROUND_RESULT"
	Prompt           Prompt             `json:"prompt"`
	QuestionNumber   int                `json:"question_number"`
	TotalQuestions   int                `json:"total_questions"`
	Skipped          bool               `json:"skipped,omitempty"`
	Podium           []PodiumEntry      `json:"podium"`
	Votes            []VoteRecord       `json:"votes,omitempty"`
	MajorityWinner   string             `json:"majority_winner"`
	PredictionPoints map[string]int     `json:"prediction_points"`
	Leaderboard      []LeaderboardEntry `json:"leaderboard"`
	IsFinal          bool               `json:"is_final"`
}

// FinalPodiumMessage ends the game with standings and superlatives.
type FinalPodiumMessage struct {
	Type         string             `json:"type"` // "PODIUM"
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	Superlatives []Superlative      `json:"superlatives"`
	RoundHistory []RoundResult      `json:"round_history"`
}

// RoomResetMessage announces a return to the lobby for a fresh game.
type RoomResetMessage struct {
	Type        string       `json:"type"` // "ROOM_RESET"
	RoomCode    string       `json:"room_code"`
	PlayerCount int          `json:"player_count"`
	Players     []PlayerInfo `json:"players"`
}

// ErrorMessage carries any per-command rejection.
type ErrorMessage struct {
	Type    string `json:"type"` // "ERROR"
	Message string `json:"message"`
}

func errorMsg(err error) ErrorMessage {
	return ErrorMessage{Type: "ERROR", Message: err.Error()}
}
