package main

import (
	"fmt"
	"sort"
)

// LeaderboardEntry is one row of the running standings. Delta is
// previous rank minus current rank, so positive means the player moved
// up since the last scored round.
type LeaderboardEntry struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
	Delta    int    `json:"delta"`
}

// Superlative is one end-of-game award, derived purely from round
// history.
type Superlative struct {
	Title  string `json:"title"`
	Winner string `json:"winner"`
	Avatar string `json:"avatar"`
	Detail string `json:"detail"`
}

// computeLeaderboard sorts players by cumulative score, ties broken by
// join order for stability. prevRanks carries last round's ranks; a
// player with no previous rank gets delta zero.
func computeLeaderboard(scores map[string]int, joinOrder []string, avatars map[string]string, prevRanks map[string]int) []LeaderboardEntry {
	position := make(map[string]int, len(joinOrder))
	ordered := make([]string, len(joinOrder))
	copy(ordered, joinOrder)
	for i, nick := range joinOrder {
		position[nick] = i
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if scores[ordered[i]] != scores[ordered[j]] {
			return scores[ordered[i]] > scores[ordered[j]]
		}
		return position[ordered[i]] < position[ordered[j]]
	})

	entries := make([]LeaderboardEntry, 0, len(ordered))
	for i, nick := range ordered {
		rank := i + 1
		delta := 0
		if prev, ok := prevRanks[nick]; ok {
			delta = prev - rank
		}
		entries = append(entries, LeaderboardEntry{
			Nickname: nick,
			Avatar:   avatars[nick],
			Score:    scores[nick],
			Rank:     rank,
			Delta:    delta,
		})
	}
	return entries
}

// computeSuperlatives derives the end-of-game awards from the complete
// scored round history. It holds no state of its own and can be re-run
// on the same history with the same outcome.
func computeSuperlatives(history []RoundResult, joinOrder []string, avatars map[string]string) []Superlative {
	if len(history) == 0 {
		return nil
	}

	position := make(map[string]int, len(joinOrder))
	for i, nick := range joinOrder {
		position[nick] = i
	}

	// Earliest-joined wins ties for count-based awards.
	best := func(counts map[string]int) (string, int) {
		winner := ""
		for nick, n := range counts {
			if winner == "" || n > counts[winner] ||
				(n == counts[winner] && position[nick] < position[winner]) {
				winner = nick
			}
		}
		return winner, counts[winner]
	}

	var superlatives []Superlative

	votesReceived := make(map[string]int)
	selfVotes := make(map[string]int)
	predictions := make(map[string]int)
	for _, rnd := range history {
		for _, vote := range rnd.Votes {
			votesReceived[vote.Target]++
			if vote.Voter == vote.Target {
				selfVotes[vote.Voter]++
			}
		}
		for nick, pts := range rnd.PredictionPoints {
			if pts > 0 {
				predictions[nick]++
			}
		}
	}

	if winner, n := best(votesReceived); n > 0 {
		superlatives = append(superlatives, Superlative{
			Title:  "Most Likely To Everything",
			Winner: winner,
			Avatar: avatars[winner],
			Detail: fmt.Sprintf("Received %d total votes", n),
		})
	}

	if winner, n := best(selfVotes); n > 0 {
		superlatives = append(superlatives, Superlative{
			Title:  "Narcissist Award",
			Winner: winner,
			Avatar: avatars[winner],
			Detail: fmt.Sprintf("Voted for themselves %d times", n),
		})
	}

	if winner, n := best(predictions); n > 0 {
		superlatives = append(superlatives, Superlative{
			Title:  "Mind Reader",
			Winner: winner,
			Avatar: avatars[winner],
			Detail: fmt.Sprintf("Predicted the majority %d times", n),
		})
	}

	// Most Controversial: the single round with the smallest gap between
	// its top two vote counts, earliest round winning ties.
	bestGap := -1
	bestRound := -1
	for i, rnd := range history {
		if len(rnd.Podium) < 2 {
			continue
		}
		gap := rnd.Podium[0].VoteCount - rnd.Podium[1].VoteCount
		if bestRound < 0 || gap < bestGap {
			bestGap = gap
			bestRound = i
		}
	}
	if bestRound >= 0 {
		rnd := history[bestRound]
		superlatives = append(superlatives, Superlative{
			Title:  "Most Controversial",
			Winner: rnd.MajorityWinner,
			Avatar: avatars[rnd.MajorityWinner],
			Detail: fmt.Sprintf("%q split the room, decided by %d vote(s)", rnd.Prompt.Text, bestGap),
		})
	}

	return superlatives
}
