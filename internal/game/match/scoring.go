package match

import "math"

// Scoring weights.
const (
	killPoints   = 100
	deathPoints  = 50
	assistPoints = 25
)

// Score computes a player's score from their stats:
//
//	kills*100 - deaths*50 + assists*25 + floor(survivalTime/10) + accuracyBonus
//
// The stored Stats.Score field is never an input; scores are always
// recomputed from the raw counters.
//
// Postcondition: Deterministic; identical stats always yield the same score.
func Score(s Stats) int {
	score := s.Kills*killPoints - s.Deaths*deathPoints + s.Assists*assistPoints
	score += s.SurvivalTime / 10
	score += accuracyBonus(s)
	return score
}

// Accuracy returns the hit percentage in [0, 100], 0 when no shots were
// fired.
func Accuracy(s Stats) float64 {
	if s.ShotsFired == 0 {
		return 0
	}
	return float64(s.ShotsHit) / float64(s.ShotsFired) * 100
}

// accuracyBonus awards floor((accuracy-50)/10)*10 points when accuracy
// exceeds 50%, nothing otherwise. The 10%-step discontinuity is deliberate.
func accuracyBonus(s Stats) int {
	acc := Accuracy(s)
	if acc <= 50 {
		return 0
	}
	return int(math.Floor((acc-50)/10)) * 10
}
