package main

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// Room lifecycle states.
const (
	stateLobby   = "LOBBY"
	stateInRound = "IN_ROUND"
	stateReveal  = "REVEAL"
	stateEnded   = "ENDED"
)

const (
	maxNicknameLength = 20
	maxAvatarLength   = 10

	minTimerSeconds     = 15
	maxTimerSeconds     = 120
	defaultTimerSeconds = 60
)

// Player is one roster entry. Players are created by JOIN and live until
// the room is destroyed; a dropped connection leaves the Player intact so
// a reconnect from any device can reclaim it.
type Player struct {
	Nickname  string
	Avatar    string
	ClientID  string // stable per-room identity token for reattachment
	Score     int
	JoinOrder int
}

// GameSettings are the per-room options recognized at creation and reset.
type GameSettings struct {
	TimerSeconds int
	ShowVotes    bool
}

// Round is one prompt's voting window. It closes exactly once; the closed
// flag makes the timer-vs-organizer race a no-op for the loser.
type Round struct {
	promptIndex int
	startedAt   time.Time
	duration    time.Duration
	votes       map[string]string // voter nickname -> target nickname
	closed      bool
}

// Room commands. Everything that can mutate a room, whatever its trigger,
// arrives through the inbox and is processed one at a time by run().
type (
	attachCmd struct{ c *client }
	detachCmd struct{ c *client }
	inboundCmd struct {
		c    *client
		msg  ClientMessage
		pack *PromptPack // resolved pack for RESET_ROOM, nil otherwise
	}
	stopCmd struct{ notify bool }
)

// roomStatus is the reaper's read-only view, maintained as a shadow of
// the loop-owned state so eviction decisions never touch live fields.
type roomStatus struct {
	lastActive time.Time
	conns      int
	midRound   bool
}

type Room struct {
	code           string
	organizerToken string
	cfg            *Config

	inbox        chan any
	done         chan struct{}
	tickInterval time.Duration

	// Everything below is owned by run() and must not be touched from
	// outside the loop.
	state        string
	pack         PromptPack
	settings     GameSettings
	players      []*Player
	round        *Round
	roundIndex   int
	history      []RoundResult
	leaderboard  []LeaderboardEntry
	superlatives []Superlative
	prevRanks    map[string]int

	clients   map[*client]bool
	organizer *client

	onFatal func(code string)

	mu     sync.RWMutex
	status roomStatus
}

func newRoom(code, organizerToken string, pack PromptPack, settings GameSettings, cfg *Config) *Room {
	if settings.TimerSeconds == 0 {
		settings.TimerSeconds = defaultTimerSeconds
	}
	return &Room{
		code:           code,
		organizerToken: organizerToken,
		cfg:            cfg,
		inbox:          make(chan any, 64),
		done:           make(chan struct{}),
		tickInterval:   time.Second,
		state:          stateLobby,
		pack:           pack,
		settings:       settings,
		roundIndex:     -1,
		prevRanks:      make(map[string]int),
		clients:        make(map[*client]bool),
		status:         roomStatus{lastActive: time.Now()},
	}
}

// enqueue delivers a command into the room's serialized stream. It fails
// fast once the room has been destroyed instead of blocking forever.
func (r *Room) enqueue(cmd any) bool {
	select {
	case r.inbox <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) snapshotStatus() roomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Room) touch() {
	r.mu.Lock()
	r.status.lastActive = time.Now()
	r.mu.Unlock()
}

func (r *Room) syncStatus() {
	r.mu.Lock()
	r.status.conns = len(r.clients)
	r.status.midRound = r.state == stateInRound
	r.mu.Unlock()
}

// run is the room's single writer. The round ticker lives in the same
// select as the mailbox, so a timer expiry and an organizer command for
// the same round resolve by ordinary ordering.
func (r *Room) run() {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			logf(r.cfg, "ROOMS: Fatal error in room %s: %v", r.code, rec)
			r.closeAllClients(true)
			if r.onFatal != nil {
				r.onFatal(r.code)
			}
		}
	}()

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-r.inbox:
			switch c := cmd.(type) {
			case attachCmd:
				r.touch()
				r.handleAttach(c.c)
			case detachCmd:
				r.touch()
				r.handleDetach(c.c)
			case inboundCmd:
				r.touch()
				r.handleMessage(c.c, c.msg, c.pack)
			case stopCmd:
				r.closeAllClients(c.notify)
				return
			}
			r.syncStatus()
		case <-ticker.C:
			r.handleTick()
			r.syncStatus()
		}
	}
}

func (r *Room) closeAllClients(notify bool) {
	for c := range r.clients {
		if notify {
			c.trySend(errorMsg(errRoomClosed))
		}
		c.close()
		delete(r.clients, c)
	}
	r.organizer = nil
	r.syncStatus()
}

// --- lookups ---

func foldNick(nickname string) string {
	return strings.ToLower(strings.TrimSpace(nickname))
}

func (r *Room) playerByNickname(nickname string) *Player {
	folded := foldNick(nickname)
	for _, p := range r.players {
		if foldNick(p.Nickname) == folded {
			return p
		}
	}
	return nil
}

func (r *Room) playerByClientID(clientID string) *Player {
	if clientID == "" {
		return nil
	}
	for _, p := range r.players {
		if p.ClientID == clientID {
			return p
		}
	}
	return nil
}

func (r *Room) clientsForIdentity(clientID string, except *client) []*client {
	var out []*client
	for c := range r.clients {
		if c != except && c.role != roleSpectator && c.clientID == clientID {
			out = append(out, c)
		}
	}
	return out
}

func (r *Room) joinOrderNicks() []string {
	out := make([]string, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p.Nickname)
	}
	return out
}

func (r *Room) avatars() map[string]string {
	out := make(map[string]string, len(r.players))
	for _, p := range r.players {
		out[p.Nickname] = p.Avatar
	}
	return out
}

func (r *Room) scores() map[string]int {
	out := make(map[string]int, len(r.players))
	for _, p := range r.players {
		out[p.Nickname] = p.Score
	}
	return out
}

func (r *Room) playerInfos() []PlayerInfo {
	connected := make(map[string]bool, len(r.clients))
	for c := range r.clients {
		if c.role != roleSpectator {
			connected[c.clientID] = true
		}
	}

	out := make([]PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, PlayerInfo{
			Nickname:  p.Nickname,
			Avatar:    p.Avatar,
			Connected: connected[p.ClientID],
		})
	}
	return out
}

func (r *Room) currentPrompt() *Prompt {
	if r.roundIndex < 0 || r.roundIndex >= len(r.pack.Prompts) {
		return nil
	}
	prompt := r.pack.Prompts[r.roundIndex]
	return &prompt
}

func (r *Room) timeRemaining() int {
	if r.round == nil || r.round.closed {
		return 0
	}
	remaining := r.round.duration - time.Since(r.round.startedAt)
	if remaining < 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}

// --- fan-out ---

// broadcast delivers an immutable payload to every attached connection.
// A connection that cannot keep up is dropped and detached; it can
// reconnect and resynchronize from a snapshot.
func (r *Room) broadcast(msg any) {
	for c := range r.clients {
		if !c.trySend(msg) {
			r.dropClient(c)
		}
	}
}

func (r *Room) sendTo(c *client, msg any) {
	if !c.trySend(msg) {
		r.dropClient(c)
	}
}

func (r *Room) dropClient(c *client) {
	if !r.clients[c] {
		return
	}
	delete(r.clients, c)
	if r.organizer == c {
		r.organizer = nil
	}
	c.close()
}

// --- attach / detach ---

func (r *Room) handleAttach(c *client) {
	// One live connection per identity: the newest device wins.
	for _, stale := range r.clientsForIdentity(c.clientID, c) {
		r.sendTo(stale, KickedMessage{Type: "KICKED", Message: "You connected from another device"})
		r.dropClient(stale)
	}

	r.clients[c] = true

	switch c.role {
	case roleOrganizer:
		if r.organizer != nil && r.organizer != c {
			r.sendTo(r.organizer, KickedMessage{Type: "KICKED", Message: "You connected from another device"})
			r.dropClient(r.organizer)
		}
		r.organizer = c
		r.sendTo(c, r.buildOrganizerSync())
		logf(r.cfg, "ROOMS: Organizer attached to %s (state: %s)", r.code, r.state)

	case roleSpectator:
		r.sendTo(c, r.buildSpectatorSync())

	default:
		if p := r.playerByClientID(c.clientID); p != nil {
			r.sendTo(c, r.buildReconnected(p))
			r.broadcastPresence(p.Nickname)
			logf(r.cfg, "GAME: Player %q reconnected to %s", p.Nickname, r.code)
		} else {
			r.sendTo(c, JoinedRoomMessage{Type: "JOINED_ROOM", RoomCode: r.code})
		}
	}
}

func (r *Room) handleDetach(c *client) {
	if !r.clients[c] {
		return
	}
	delete(r.clients, c)
	c.close()

	if r.organizer == c {
		r.organizer = nil
		logf(r.cfg, "ROOMS: Organizer disconnected from %s", r.code)
		return
	}

	// Disconnection never mutates the roster; it only updates presence.
	if p := r.playerByClientID(c.clientID); p != nil {
		r.broadcast(PlayerLeftMessage{
			Type:        "PLAYER_LEFT",
			Nickname:    p.Nickname,
			PlayerCount: len(r.players),
			Players:     r.playerInfos(),
		})
		logf(r.cfg, "GAME: Player %q disconnected from %s (data preserved)", p.Nickname, r.code)
	}
}

func (r *Room) broadcastPresence(nickname string) {
	msg := PlayerJoinedMessage{
		Type:        "PLAYER_JOINED",
		Nickname:    nickname,
		PlayerCount: len(r.players),
		Players:     r.playerInfos(),
	}
	if p := r.playerByNickname(nickname); p != nil {
		msg.Avatar = p.Avatar
	}
	r.broadcast(msg)
}

// --- message dispatch ---

func (r *Room) handleMessage(c *client, msg ClientMessage, pack *PromptPack) {
	if c.role == roleSpectator {
		if msg.Type == msgSync {
			r.sendTo(c, r.buildSpectatorSync())
			return
		}
		r.sendTo(c, errorMsg(errSpectatorReadOnly))
		return
	}

	switch msg.Type {
	case msgJoin:
		r.handleJoin(c, msg.Nickname, msg.Avatar)
	case msgVote:
		r.handleVote(c, msg.TargetNickname)
	case msgStartGame, msgNextQuestion, msgSkipQuestion, msgEndGame, msgResetRoom:
		if c != r.organizer {
			r.sendTo(c, errorMsg(errNotOrganizer))
			return
		}
		r.handleOrganizerCommand(c, msg, pack)
	default:
		r.sendTo(c, errorMsg(fmt.Errorf("unknown message type %q", msg.Type)))
	}
}

func (r *Room) handleOrganizerCommand(c *client, msg ClientMessage, pack *PromptPack) {
	var err error
	switch msg.Type {
	case msgStartGame:
		err = r.startGame()
	case msgNextQuestion:
		err = r.nextQuestion()
	case msgSkipQuestion:
		err = r.skipQuestion()
	case msgEndGame:
		err = r.endGame()
	case msgResetRoom:
		err = r.resetRoom(pack, msg.TimerSeconds, msg.ShowVotes)
	}
	if err != nil {
		logf(r.cfg, "GAME: Rejected %s in room %s (state %s): %v", msg.Type, r.code, r.state, err)
		r.sendTo(c, errorMsg(err))
	}
}

// --- join / vote ---

func (r *Room) handleJoin(c *client, nickname, avatar string) {
	nickname = strings.TrimSpace(sanitizePromptText(nickname))
	if nickname == "" || len(nickname) > maxNicknameLength {
		r.sendTo(c, errorMsg(errInvalidNickname))
		return
	}
	if len(avatar) > maxAvatarLength {
		avatar = avatar[:maxAvatarLength]
	}

	if existing := r.playerByNickname(nickname); existing != nil {
		// Same person from a new device or tab: supersede the old
		// connection and hand the Player, score and vote state included,
		// to the new one.
		for _, stale := range r.clientsForIdentity(existing.ClientID, c) {
			r.sendTo(stale, KickedMessage{Type: "KICKED", Message: "You joined from another device"})
			r.dropClient(stale)
		}
		existing.ClientID = c.clientID
		r.sendTo(c, r.buildReconnected(existing))
		r.broadcastPresence(existing.Nickname)
		logf(r.cfg, "GAME: Player %q rejoined %s", existing.Nickname, r.code)
		return
	}

	// One Player per identity token: a connection that already owns a
	// roster entry cannot mint a second one under a new nickname.
	if r.playerByClientID(c.clientID) != nil {
		r.sendTo(c, errorMsg(errAlreadyJoined))
		return
	}

	p := &Player{
		Nickname:  nickname,
		Avatar:    avatar,
		ClientID:  c.clientID,
		JoinOrder: len(r.players),
	}
	r.players = append(r.players, p)

	r.broadcastPresence(nickname)
	logf(r.cfg, "GAME: Player %q joined %s (%d players)", nickname, r.code, len(r.players))
}

func (r *Room) handleVote(c *client, target string) {
	if r.state != stateInRound || r.round == nil || r.round.closed {
		r.sendTo(c, errorMsg(errVotingClosed))
		return
	}
	voter := r.playerByClientID(c.clientID)
	if voter == nil {
		r.sendTo(c, errorMsg(errNotAPlayer))
		return
	}
	targetPlayer := r.playerByNickname(target)
	if targetPlayer == nil {
		r.sendTo(c, errorMsg(errUnknownTarget))
		return
	}
	if _, voted := r.round.votes[voter.Nickname]; voted {
		r.sendTo(c, errorMsg(errDuplicateVote))
		return
	}

	r.round.votes[voter.Nickname] = targetPlayer.Nickname

	r.broadcast(VoteCountMessage{
		Type:  "VOTE_COUNT",
		Voted: len(r.round.votes),
		Total: len(r.players),
	})
	r.sendTo(c, VoteConfirmedMessage{Type: "VOTE_CONFIRMED", Target: targetPlayer.Nickname})

	// Everyone in: no reason to wait out the clock.
	if r.allConnectedVoted() {
		r.closeRound(true)
	}
}

// allConnectedVoted reports whether every roster member with a live
// connection has voted this round. Disconnected players keep their
// roster spot but do not hold the round open; the timer still covers
// them if they reconnect.
func (r *Room) allConnectedVoted() bool {
	if r.round == nil || len(r.round.votes) == 0 {
		return false
	}
	connected := make(map[string]bool, len(r.clients))
	for c := range r.clients {
		if c.role != roleSpectator {
			connected[c.clientID] = true
		}
	}
	for _, p := range r.players {
		if !connected[p.ClientID] {
			continue
		}
		if _, voted := r.round.votes[p.Nickname]; !voted {
			return false
		}
	}
	return true
}

// --- state machine ---

func (r *Room) startGame() error {
	if r.state != stateLobby {
		return errInvalidStateTransition
	}
	if len(r.players) < r.cfg.minPlayers {
		return fmt.Errorf("%w: need at least %d", errMinimumPlayers, r.cfg.minPlayers)
	}
	r.broadcast(GameStartingMessage{Type: "GAME_STARTING"})
	logf(r.cfg, "GAME: Room %s started with %d players", r.code, len(r.players))
	r.openNextRound()
	return nil
}

func (r *Room) nextQuestion() error {
	switch r.state {
	case stateReveal:
		r.openNextRound()
	case stateLobby:
		// First round by explicit advance; same roster requirement as
		// START_GAME.
		if len(r.players) < r.cfg.minPlayers {
			return fmt.Errorf("%w: need at least %d", errMinimumPlayers, r.cfg.minPlayers)
		}
		r.openNextRound()
	default:
		return errInvalidStateTransition
	}
	return nil
}

func (r *Room) skipQuestion() error {
	if r.state != stateInRound {
		return errInvalidStateTransition
	}
	r.closeRound(false)
	return nil
}

func (r *Room) endGame() error {
	switch r.state {
	case stateInRound:
		r.closeRound(true)
		r.finishGame()
	case stateReveal:
		r.finishGame()
	default:
		return errInvalidStateTransition
	}
	return nil
}

func (r *Room) resetRoom(pack *PromptPack, timerSeconds *int, showVotes *bool) error {
	if pack != nil {
		r.pack = *pack
	}
	if timerSeconds != nil {
		t := *timerSeconds
		if t < minTimerSeconds {
			t = minTimerSeconds
		}
		if t > maxTimerSeconds {
			t = maxTimerSeconds
		}
		r.settings.TimerSeconds = t
	}
	if showVotes != nil {
		r.settings.ShowVotes = *showVotes
	}

	r.state = stateLobby
	r.round = nil
	r.roundIndex = -1
	r.history = nil
	r.leaderboard = nil
	r.superlatives = nil
	r.prevRanks = make(map[string]int)
	for _, p := range r.players {
		p.Score = 0
	}

	r.broadcast(RoomResetMessage{
		Type:        "ROOM_RESET",
		RoomCode:    r.code,
		PlayerCount: len(r.players),
		Players:     r.playerInfos(),
	})
	logf(r.cfg, "ROOMS: Room %s reset to lobby", r.code)
	return nil
}

func (r *Room) openNextRound() {
	next := r.roundIndex + 1
	if next >= len(r.pack.Prompts) {
		r.finishGame()
		return
	}

	r.roundIndex = next
	r.round = &Round{
		promptIndex: next,
		startedAt:   time.Now(),
		duration:    time.Duration(r.settings.TimerSeconds) * time.Second,
		votes:       make(map[string]string),
	}
	r.state = stateInRound

	r.broadcast(QuestionMessage{
		Type:           "QUESTION",
		Prompt:         r.pack.Prompts[next],
		QuestionNumber: next + 1,
		TotalQuestions: len(r.pack.Prompts),
		TimerSeconds:   r.settings.TimerSeconds,
		Players:        r.playerInfos(),
	})
}

func (r *Room) handleTick() {
	if r.state != stateInRound || r.round == nil || r.round.closed {
		return
	}
	remaining := r.timeRemaining()
	if remaining <= 0 {
		logf(r.cfg, "GAME: Round %d timer expired in room %s", r.roundIndex+1, r.code)
		r.closeRound(true)
		return
	}
	r.broadcast(TimerMessage{Type: "TIMER", Remaining: remaining})
}

// closeRound transitions IN_ROUND to REVEAL at most once per round,
// whichever of organizer command, all-voted early close, or timer expiry
// gets there first. A skipped round produces no RoundResult and scores
// nothing.
func (r *Room) closeRound(counted bool) {
	if r.round == nil || r.round.closed {
		return
	}
	r.round.closed = true
	r.state = stateReveal

	prompt := r.pack.Prompts[r.roundIndex]
	isFinal := r.roundIndex == len(r.pack.Prompts)-1

	if !counted {
		msg := RoundResultMessage{
			Type:             "ROUND_RESULT",
			Prompt:           prompt,
			QuestionNumber:   r.roundIndex + 1,
			TotalQuestions:   len(r.pack.Prompts),
			Skipped:          true,
			Podium:           []PodiumEntry{},
			PredictionPoints: map[string]int{},
			Leaderboard:      r.leaderboard,
			IsFinal:          isFinal,
		}
		r.broadcast(msg)
		logf(r.cfg, "GAME: Round %d skipped in room %s", r.roundIndex+1, r.code)
		return
	}

	result := tallyRound(prompt, r.round.votes, r.joinOrderNicks(), r.avatars(), r.cfg.predictionPoints)
	r.history = append(r.history, result)

	for _, entry := range result.Podium {
		if p := r.playerByNickname(entry.Nickname); p != nil {
			p.Score += entry.VoteCount
		}
	}
	for nick, pts := range result.PredictionPoints {
		if p := r.playerByNickname(nick); p != nil {
			p.Score += pts
		}
	}

	r.leaderboard = computeLeaderboard(r.scores(), r.joinOrderNicks(), r.avatars(), r.prevRanks)
	for _, entry := range r.leaderboard {
		r.prevRanks[entry.Nickname] = entry.Rank
	}

	base := RoundResultMessage{
		Type:             "ROUND_RESULT",
		Prompt:           prompt,
		QuestionNumber:   r.roundIndex + 1,
		TotalQuestions:   len(r.pack.Prompts),
		Podium:           result.Podium,
		MajorityWinner:   result.MajorityWinner,
		PredictionPoints: result.PredictionPoints,
		Leaderboard:      r.leaderboard,
		IsFinal:          isFinal,
	}

	// The breakdown always goes to the organizer; everyone else only
	// sees it when the room opted in.
	playerMsg := base
	if r.settings.ShowVotes {
		playerMsg.Votes = result.Votes
	}
	organizerMsg := base
	organizerMsg.Votes = result.Votes

	for c := range r.clients {
		msg := playerMsg
		if c == r.organizer {
			msg = organizerMsg
		}
		r.sendTo(c, msg)
	}

	logf(r.cfg, "GAME: Round %d closed in room %s (%d votes, winner %q)",
		r.roundIndex+1, r.code, len(result.Votes), result.MajorityWinner)
}

func (r *Room) finishGame() {
	r.state = stateEnded
	r.round = nil
	r.superlatives = computeSuperlatives(r.history, r.joinOrderNicks(), r.avatars())

	r.broadcast(FinalPodiumMessage{
		Type:         "PODIUM",
		Leaderboard:  r.leaderboard,
		Superlatives: r.superlatives,
		RoundHistory: r.history,
	})
	logf(r.cfg, "GAME: Room %s ended after %d scored rounds", r.code, len(r.history))
}

// --- snapshots ---

func (r *Room) buildReconnected(p *Player) ReconnectedMessage {
	msg := ReconnectedMessage{
		Type:           "RECONNECTED",
		RoomCode:       r.code,
		State:          r.state,
		Nickname:       p.Nickname,
		Avatar:         p.Avatar,
		Score:          p.Score,
		Players:        r.playerInfos(),
		QuestionNumber: r.roundIndex + 1,
		TotalQuestions: len(r.pack.Prompts),
	}
	if r.state == stateInRound && r.round != nil {
		msg.Prompt = r.currentPrompt()
		msg.TimerSeconds = r.settings.TimerSeconds
		msg.TimeRemaining = r.timeRemaining()
		_, msg.HasVoted = r.round.votes[p.Nickname]
	}
	if r.state == stateEnded {
		msg.Leaderboard = r.leaderboard
		msg.Superlatives = r.superlatives
	}
	return msg
}

func (r *Room) buildOrganizerSync() OrganizerSyncMessage {
	msg := OrganizerSyncMessage{
		Type:           "ORGANIZER_RECONNECTED",
		RoomCode:       r.code,
		State:          r.state,
		PlayerCount:    len(r.players),
		Players:        r.playerInfos(),
		QuestionNumber: r.roundIndex + 1,
		TotalQuestions: len(r.pack.Prompts),
		TimerSeconds:   r.settings.TimerSeconds,
		ShowVotes:      r.settings.ShowVotes,
		Prompts:        r.pack.Prompts,
		Leaderboard:    r.leaderboard,
	}
	if r.state == stateInRound && r.round != nil {
		msg.Prompt = r.currentPrompt()
		msg.VotedCount = len(r.round.votes)
		msg.TimeRemaining = r.timeRemaining()
		for _, nick := range r.joinOrderNicks() {
			if _, voted := r.round.votes[nick]; voted {
				msg.VotedNicknames = append(msg.VotedNicknames, nick)
			}
		}
	}
	if r.state == stateEnded {
		msg.Superlatives = r.superlatives
	}
	return msg
}

func (r *Room) buildSpectatorSync() SpectatorSyncMessage {
	msg := SpectatorSyncMessage{
		Type:           "SPECTATOR_SYNC",
		RoomCode:       r.code,
		State:          r.state,
		PlayerCount:    len(r.players),
		Players:        r.playerInfos(),
		QuestionNumber: r.roundIndex + 1,
		TotalQuestions: len(r.pack.Prompts),
		Leaderboard:    r.leaderboard,
	}
	if r.state == stateInRound && r.round != nil {
		msg.Prompt = r.currentPrompt()
		msg.VotedCount = len(r.round.votes)
		msg.TimeRemaining = r.timeRemaining()
	}
	if r.state == stateEnded {
		msg.Superlatives = r.superlatives
	}
	return msg
}
