package main

import "sort"

// VoteRecord is one accepted vote, voter and target by nickname.
type VoteRecord struct {
	Voter  string `json:"voter"`
	Target string `json:"target"`
}

// PodiumEntry is one ranked vote recipient. Tied vote counts share a
// rank, and ranks are dense: after two players tied at 1 the next
// distinct count is rank 2, never 3.
type PodiumEntry struct {
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
	VoteCount int    `json:"vote_count"`
	Rank      int    `json:"rank"`
}

// RoundResult is the immutable outcome of one closed, scored round.
type RoundResult struct {
	Prompt           Prompt         `json:"prompt"`
	Votes            []VoteRecord   `json:"votes"`
	Podium           []PodiumEntry  `json:"podium"`
	MajorityWinner   string         `json:"majority_winner"`
	PredictionPoints map[string]int `json:"prediction_points"`
}

// tallyRound turns a round's vote set into a RoundResult. votes maps
// voter nickname to target nickname; joinOrder lists roster nicknames in
// join order and breaks every tie deterministically; avatars maps
// nickname to avatar glyph. predictionBonus is the flat reward for
// voting with the majority.
//
// A voter whose target is any of the top-tied recipients earns the
// bonus. The majority_winner field still names a single player, the
// earliest-joined of the tied top.
func tallyRound(prompt Prompt, votes map[string]string, joinOrder []string, avatars map[string]string, predictionBonus int) RoundResult {
	counts := make(map[string]int, len(votes))
	for _, target := range votes {
		counts[target]++
	}

	position := make(map[string]int, len(joinOrder))
	for i, nick := range joinOrder {
		position[nick] = i
	}

	recipients := make([]string, 0, len(counts))
	for nick := range counts {
		recipients = append(recipients, nick)
	}
	sort.Slice(recipients, func(i, j int) bool {
		if counts[recipients[i]] != counts[recipients[j]] {
			return counts[recipients[i]] > counts[recipients[j]]
		}
		return position[recipients[i]] < position[recipients[j]]
	})

	podium := make([]PodiumEntry, 0, len(recipients))
	rank := 0
	prevCount := -1
	for _, nick := range recipients {
		if counts[nick] != prevCount {
			rank++
			prevCount = counts[nick]
		}
		podium = append(podium, PodiumEntry{
			Nickname:  nick,
			Avatar:    avatars[nick],
			VoteCount: counts[nick],
			Rank:      rank,
		})
	}

	// Top-tied recipients; the first is the reported majority winner.
	majority := ""
	topTied := make(map[string]bool)
	if len(podium) > 0 {
		majority = podium[0].Nickname
		for _, entry := range podium {
			if entry.Rank != 1 {
				break
			}
			topTied[entry.Nickname] = true
		}
	}

	points := make(map[string]int, len(joinOrder))
	for _, nick := range joinOrder {
		points[nick] = 0
	}
	voteList := make([]VoteRecord, 0, len(votes))
	for _, voter := range joinOrder {
		target, ok := votes[voter]
		if !ok {
			continue
		}
		voteList = append(voteList, VoteRecord{Voter: voter, Target: target})
		if topTied[target] {
			points[voter] = predictionBonus
		}
	}

	return RoundResult{
		Prompt:           prompt,
		Votes:            voteList,
		Podium:           podium,
		MajorityWinner:   majority,
		PredictionPoints: points,
	}
}
