package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/tilestrike/arena/internal/game/match"
)

// TestScore_Reference checks the full formula against a worked example:
// 3 kills, 1 death, 2 assists, 47s survival, 6/10 shots = 60% accuracy.
// 300 - 50 + 50 + 4 + 10 = 314.
func TestScore_Reference(t *testing.T) {
	s := match.Stats{
		Kills:        3,
		Deaths:       1,
		Assists:      2,
		SurvivalTime: 47,
		ShotsFired:   10,
		ShotsHit:     6,
	}
	assert.Equal(t, 314, match.Score(s))
}

func TestScore_Zero(t *testing.T) {
	assert.Equal(t, 0, match.Score(match.Stats{}))
}

func TestScore_CanGoNegative(t *testing.T) {
	assert.Equal(t, -100, match.Score(match.Stats{Deaths: 2}))
}

// TestScore_AccuracyBonusBoundaries pins the step behavior: nothing at or
// below 50%, then 10 points per full 10% above it.
func TestScore_AccuracyBonusBoundaries(t *testing.T) {
	cases := []struct {
		hit, fired, want int
	}{
		{5, 10, 0},   // exactly 50%: no bonus
		{51, 100, 0}, // 51%: floor(0.1) = 0 steps
		{6, 10, 10},  // 60%: one step
		{74, 100, 20},
		{75, 100, 20},
		{10, 10, 50}, // 100%: five steps
		{0, 10, 0},
		{0, 0, 0}, // no shots fired: accuracy 0
	}
	for _, tc := range cases {
		s := match.Stats{ShotsFired: tc.fired, ShotsHit: tc.hit}
		assert.Equal(t, tc.want, match.Score(s), "hit=%d fired=%d", tc.hit, tc.fired)
	}
}

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 0.0, match.Accuracy(match.Stats{}))
	assert.Equal(t, 60.0, match.Accuracy(match.Stats{ShotsFired: 10, ShotsHit: 6}))
	assert.Equal(t, 100.0, match.Accuracy(match.Stats{ShotsFired: 7, ShotsHit: 7}))
}

// Property: Score ignores the stored Stats.Score field entirely.
func TestPropertyScoreIgnoresStoredScore(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := match.Stats{
			Kills:        rapid.IntRange(0, 50).Draw(rt, "kills"),
			Deaths:       rapid.IntRange(0, 50).Draw(rt, "deaths"),
			Assists:      rapid.IntRange(0, 50).Draw(rt, "assists"),
			SurvivalTime: rapid.IntRange(0, 3600).Draw(rt, "survival"),
			ShotsFired:   rapid.IntRange(0, 500).Draw(rt, "fired"),
		}
		s.ShotsHit = rapid.IntRange(0, s.ShotsFired).Draw(rt, "hit")

		want := match.Score(s)
		s.Score = rapid.Int().Draw(rt, "stored")
		if got := match.Score(s); got != want {
			rt.Fatalf("stored score leaked into computation: %d != %d", got, want)
		}
	})
}

// Property: each kill is worth exactly 100 with everything else fixed.
func TestPropertyKillWeight(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := match.Stats{
			Kills:        rapid.IntRange(0, 100).Draw(rt, "kills"),
			Deaths:       rapid.IntRange(0, 100).Draw(rt, "deaths"),
			SurvivalTime: rapid.IntRange(0, 3600).Draw(rt, "survival"),
		}
		base := match.Score(s)
		s.Kills++
		if got := match.Score(s); got != base+100 {
			rt.Fatalf("kill delta = %d, want 100", got-base)
		}
	})
}
