package match

import (
	"sort"
	"time"

	"github.com/tilestrike/arena/internal/game/arena"
	"github.com/tilestrike/arena/internal/game/lobby"
)

// PlayerView is the wire representation of one player's state.
type PlayerView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Health    int            `json:"health"`
	Position  arena.PixelPos `json:"position"`
	Direction string         `json:"direction"`
	IsOnline  bool           `json:"isOnline"`
	IsYou     bool           `json:"isYou"`
	Loadout   string         `json:"selectedLoadout"`
	Stats     Stats          `json:"stats"`
}

// View is a session snapshot sent to clients. The per-recipient variant
// flags the recipient with isYou and carries staking details; the public
// variant omits staking.
type View struct {
	Code      string             `json:"code"`
	Status    Status             `json:"status"`
	TimeLeft  int                `json:"timeLeft"`
	Map       string             `json:"map"`
	Settings  lobby.Settings     `json:"settings"`
	Players   []PlayerView       `json:"players"`
	Winner    string             `json:"winner,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	EndedAt   *time.Time         `json:"endedAt,omitempty"`
	Staking   *lobby.StakingInfo `json:"stakingStatus,omitempty"`
}

// ViewFor builds the per-recipient session view for playerID.
func (s *Session) ViewFor(playerID string) View {
	v := s.view(playerID)
	v.Staking = s.staking
	return v
}

// PublicView builds the session view with staking details omitted.
func (s *Session) PublicView() View {
	return s.view("")
}

func (s *Session) view(recipientID string) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]PlayerView, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Health:    p.Health,
			Position:  p.Position,
			Direction: p.Direction,
			IsOnline:  p.IsOnline,
			IsYou:     p.ID == recipientID,
			Loadout:   p.Loadout,
			Stats:     p.Stats,
		})
	}

	v := View{
		Code:      s.code,
		Status:    s.status,
		TimeLeft:  s.timeLeft,
		Map:       s.tileMap.Name,
		Settings:  s.settings,
		Players:   players,
		Winner:    s.winnerID,
		CreatedAt: s.createdAt,
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		v.EndedAt = &ended
	}
	return v
}

// LeaderboardEntry is one row of the live leaderboard.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	Assists  int    `json:"assists"`
	Score    int    `json:"score"`
}

// Leaderboard returns per-player live stats sorted by score descending.
// The sort is stable, so equal scores keep insertion order.
func (s *Session) Leaderboard() []LeaderboardEntry {
	s.mu.Lock()
	entries := make([]LeaderboardEntry, 0, len(s.players))
	for _, p := range s.players {
		entries = append(entries, LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Kills:    p.Stats.Kills,
			Deaths:   p.Stats.Deaths,
			Assists:  p.Stats.Assists,
			Score:    Score(p.Stats),
		})
	}
	s.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// RankedPlayer is one row of the final post-match ranking.
type RankedPlayer struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

// FinalRanking orders players by score descending, then kills descending,
// then kill/death ratio descending; a player with zero deaths counts their
// kills as the ratio.
func (s *Session) FinalRanking() []RankedPlayer {
	players := s.PlayersSnapshot()

	ratio := func(st Stats) float64 {
		if st.Deaths == 0 {
			return float64(st.Kills)
		}
		return float64(st.Kills) / float64(st.Deaths)
	}
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i].Stats, players[j].Stats
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Kills != b.Kills {
			return a.Kills > b.Kills
		}
		return ratio(a) > ratio(b)
	})

	ranked := make([]RankedPlayer, 0, len(players))
	for i, p := range players {
		ranked = append(ranked, RankedPlayer{
			Rank:     i + 1,
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Stats.Score,
			Kills:    p.Stats.Kills,
			Deaths:   p.Stats.Deaths,
		})
	}
	return ranked
}
