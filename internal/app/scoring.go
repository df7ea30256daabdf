package app

import (
	"sort"
	"time"

	"liveclass-service/internal/domain"
)

// playerScore is one participant's accumulated score within a game.
type playerScore struct {
	userID      string
	displayName string
	score       int
	lastScored  time.Time
}

// awardPoints implements the speed-decay formula: earlier answers score
// more, decaying with the number of answers already recorded this round and
// floored at a minimum for any correct answer regardless of how late.
// Incorrect answers always score zero.
func awardPoints(cfg GameConfig, correct bool, answersAlready int) int {
	if !correct {
		return 0
	}
	points := cfg.BasePoints - cfg.DecayStep*answersAlready
	if points < cfg.FloorPoint {
		points = cfg.FloorPoint
	}
	return points
}

// scoreQuizAnswer checks the submitted option against the round payload's
// correct marker. Correctness never consults live content: the payload was
// snapshotted at game start.
func scoreQuizAnswer(cfg GameConfig, question *domain.Question, optionID string, answersAlready int) (bool, int) {
	correct := question != nil && optionID != "" && question.CorrectOption() == optionID
	return correct, awardPoints(cfg, correct, answersAlready)
}

// rankingSnapshot re-derives the sorted scoreboard from the score map. Ties
// break by who reached their score earlier, then by display name, so
// re-running the sort on unchanged state is deterministic.
func rankingSnapshot(roomID string, scores map[string]*playerScore, now time.Time) domain.Ranking {
	entries := make([]domain.RankingEntry, 0, len(scores))
	for _, p := range scores {
		entries = append(entries, domain.RankingEntry{
			UserID:      p.userID,
			DisplayName: p.displayName,
			Score:       p.score,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := scores[entries[i].UserID]
		pj := scores[entries[j].UserID]
		if pi != nil && pj != nil && !pi.lastScored.Equal(pj.lastScored) {
			return pi.lastScored.Before(pj.lastScored)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	return domain.Ranking{RoomID: roomID, Entries: entries, UpdatedAt: now}
}
