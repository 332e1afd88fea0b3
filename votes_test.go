package main

import (
	"testing"
)

func TestTallyRoundMajorityScenario(t *testing.T) {
	prompt := Prompt{ID: 1, Text: "Who forgets birthdays?"}
	joinOrder := []string{"Alex", "Jordan", "Sam"}
	avatars := map[string]string{"Alex": "🦊", "Jordan": "🐸", "Sam": "🐙"}
	votes := map[string]string{
		"Alex":   "Jordan",
		"Jordan": "Jordan",
		"Sam":    "Alex",
	}

	result := tallyRound(prompt, votes, joinOrder, avatars, 100)

	if len(result.Podium) != 2 {
		t.Fatalf("expected 2 podium entries, got %d", len(result.Podium))
	}
	if result.Podium[0].Nickname != "Jordan" || result.Podium[0].VoteCount != 2 || result.Podium[0].Rank != 1 {
		t.Errorf("unexpected first podium entry: %+v", result.Podium[0])
	}
	if result.Podium[1].Nickname != "Alex" || result.Podium[1].VoteCount != 1 || result.Podium[1].Rank != 2 {
		t.Errorf("unexpected second podium entry: %+v", result.Podium[1])
	}
	if result.MajorityWinner != "Jordan" {
		t.Errorf("expected majority winner Jordan, got %q", result.MajorityWinner)
	}

	want := map[string]int{"Alex": 0, "Jordan": 100, "Sam": 0}
	for nick, pts := range want {
		if result.PredictionPoints[nick] != pts {
			t.Errorf("prediction points for %s: got %d, want %d", nick, result.PredictionPoints[nick], pts)
		}
	}
}

func TestTallyRoundTieSharesRankDensely(t *testing.T) {
	prompt := Prompt{ID: 2, Text: "Who wins arguments?"}
	joinOrder := []string{"Alex", "Jordan", "Sam", "Riley"}
	votes := map[string]string{
		"Alex":   "Sam",
		"Jordan": "Sam",
		"Sam":    "Alex",
		"Riley":  "Alex",
	}

	result := tallyRound(prompt, votes, joinOrder, map[string]string{}, 100)

	if len(result.Podium) != 2 {
		t.Fatalf("expected 2 podium entries, got %d", len(result.Podium))
	}
	for _, entry := range result.Podium {
		if entry.VoteCount != 2 {
			t.Errorf("entry %s: got %d votes, want 2", entry.Nickname, entry.VoteCount)
		}
		if entry.Rank != 1 {
			t.Errorf("entry %s: got rank %d, want shared rank 1", entry.Nickname, entry.Rank)
		}
	}

	// Earliest-joined of the tied top is reported as majority winner.
	if result.MajorityWinner != "Alex" {
		t.Errorf("expected majority winner Alex by join order, got %q", result.MajorityWinner)
	}

	// Everyone voted for one of the tied top two, so everyone predicted
	// correctly.
	for _, nick := range joinOrder {
		if result.PredictionPoints[nick] != 100 {
			t.Errorf("prediction points for %s: got %d, want 100", nick, result.PredictionPoints[nick])
		}
	}
}

func TestTallyRoundDenseRanksPastTie(t *testing.T) {
	prompt := Prompt{ID: 3, Text: "Who naps most?"}
	joinOrder := []string{"A", "B", "C", "D", "E"}
	// A and B tie with 2, C gets 1.
	votes := map[string]string{
		"A": "B",
		"B": "A",
		"C": "A",
		"D": "B",
		"E": "C",
	}

	result := tallyRound(prompt, votes, joinOrder, map[string]string{}, 50)

	if len(result.Podium) != 3 {
		t.Fatalf("expected 3 podium entries, got %d", len(result.Podium))
	}
	wantRanks := []int{1, 1, 2}
	for i, entry := range result.Podium {
		if entry.Rank != wantRanks[i] {
			t.Errorf("podium[%d] (%s): got rank %d, want %d", i, entry.Nickname, entry.Rank, wantRanks[i])
		}
	}
}

func TestTallyRoundVoteConservation(t *testing.T) {
	joinOrder := []string{"A", "B", "C", "D"}
	votes := map[string]string{"A": "B", "B": "B", "D": "C"}

	result := tallyRound(Prompt{ID: 1, Text: "x"}, votes, joinOrder, map[string]string{}, 10)

	sum := 0
	for _, entry := range result.Podium {
		sum += entry.VoteCount
	}
	if sum != len(votes) {
		t.Errorf("podium vote sum %d does not match accepted votes %d", sum, len(votes))
	}
	if len(result.Votes) != len(votes) {
		t.Errorf("vote list length %d does not match accepted votes %d", len(result.Votes), len(votes))
	}
}

func TestTallyRoundNoVotes(t *testing.T) {
	result := tallyRound(Prompt{ID: 1, Text: "x"}, map[string]string{}, []string{"A", "B"}, map[string]string{}, 10)

	if len(result.Podium) != 0 {
		t.Errorf("expected empty podium, got %d entries", len(result.Podium))
	}
	if result.MajorityWinner != "" {
		t.Errorf("expected no majority winner, got %q", result.MajorityWinner)
	}
	for nick, pts := range result.PredictionPoints {
		if pts != 0 {
			t.Errorf("expected zero points for %s, got %d", nick, pts)
		}
	}
}

func TestTallyRoundSelfVoteEligibleForPrediction(t *testing.T) {
	joinOrder := []string{"A", "B", "C"}
	votes := map[string]string{"A": "A", "B": "A", "C": "A"}

	result := tallyRound(Prompt{ID: 1, Text: "x"}, votes, joinOrder, map[string]string{}, 25)

	if result.MajorityWinner != "A" {
		t.Fatalf("expected majority winner A, got %q", result.MajorityWinner)
	}
	if result.PredictionPoints["A"] != 25 {
		t.Errorf("self-voter matching the majority should earn the bonus, got %d", result.PredictionPoints["A"])
	}
}
