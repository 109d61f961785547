// Package match provides the authoritative per-match game session: player
// state, combat bookkeeping, scoring, and the countdown timer.
package match

import (
	"fmt"
	"sync"
	"time"

	"github.com/tilestrike/arena/internal/game/arena"
	"github.com/tilestrike/arena/internal/game/gameerr"
	"github.com/tilestrike/arena/internal/game/lobby"
)

// Status is the session lifecycle state.
type Status string

// Session statuses.
const (
	StatusRunning Status = "running"
	StatusEnded   Status = "ended"
)

// MaxHealth is the health every player spawns and respawns with.
const MaxHealth = 100

// DirectionDown is the direction players face on spawn.
const DirectionDown = "down"

// ReasonTimeUp is the end reason reported when the countdown expires.
// Session.End accepts any reason string, leaving room for future kill-limit
// or score-limit conditions.
const ReasonTimeUp = "time_up"

// Stats holds a player's per-match counters.
//
// Invariant: Score always holds the last value computed by Score(); it is
// never authoritative ahead of recomputation.
type Stats struct {
	Kills        int `json:"kills"`
	Deaths       int `json:"deaths"`
	Assists      int `json:"assists"`
	Score        int `json:"score"`
	DamageDealt  int `json:"damageDealt"`
	DamageTaken  int `json:"damageTaken"`
	SurvivalTime int `json:"survivalTime"`
	ShotsFired   int `json:"shotsFired"`
	ShotsHit     int `json:"shotsHit"`

	// SpawnTime marks the start of the current life; reset on respawn.
	SpawnTime time.Time `json:"-"`
}

// PlayerState is the authoritative state of one player in a session.
type PlayerState struct {
	ID           string
	Name         string
	ConnectionID string
	Health       int
	Position     arena.PixelPos
	Direction    string
	IsOnline     bool
	Loadout      string
	Stats        Stats
}

// Session is one live, timed match. All methods are safe for concurrent use;
// a single mutex serializes every mutation so per-match state never
// interleaves.
//
// Invariant: Health stays in [0, MaxHealth] for every player.
type Session struct {
	mu sync.Mutex

	code     string
	players  []*PlayerState // insertion order, fixed at creation
	byID     map[string]*PlayerState
	settings lobby.Settings
	tileMap  *arena.TileMap
	staking  *lobby.StakingInfo

	status    Status
	timeLeft  int
	winnerID  string
	endReason string
	createdAt time.Time
	endedAt   time.Time

	timer *Timer
}

// NewSession builds a running session from a lobby start ticket's players and
// an equal-length list of spawn tiles.
//
// Precondition: len(ticket.Players) == len(spawns); m must be validated.
// Postcondition: Returns a Session with every player at full health on their
// spawn tile and timeLeft = gameTime*60, or a non-nil error.
func NewSession(ticket lobby.StartTicket, spawns []arena.TilePos, m *arena.TileMap) (*Session, error) {
	if len(ticket.Players) != len(spawns) {
		return nil, fmt.Errorf("session %s: %d players but %d spawns", ticket.Code, len(ticket.Players), len(spawns))
	}

	now := time.Now()
	s := &Session{
		code:      ticket.Code,
		byID:      make(map[string]*PlayerState, len(ticket.Players)),
		settings:  ticket.Settings,
		tileMap:   m,
		staking:   ticket.Staking,
		status:    StatusRunning,
		timeLeft:  ticket.Settings.GameTime * 60,
		createdAt: now,
	}
	for i, p := range ticket.Players {
		state := &PlayerState{
			ID:           p.ID,
			Name:         p.Name,
			ConnectionID: p.ConnectionID,
			Health:       MaxHealth,
			Position:     m.TileToPixel(spawns[i]),
			Direction:    DirectionDown,
			IsOnline:     p.ConnectionID != "",
			Loadout:      p.Loadout,
			Stats:        Stats{SpawnTime: now},
		}
		s.players = append(s.players, state)
		s.byID[state.ID] = state
	}
	return s, nil
}

// Code returns the session code.
func (s *Session) Code() string { return s.code }

// Map returns the session's tile map.
func (s *Session) Map() *arena.TileMap { return s.tileMap }

// Settings returns the match settings.
func (s *Session) Settings() lobby.Settings { return s.settings }

// StakingInfo returns the staking state carried from the lobby, nil for
// unstaked games.
func (s *Session) StakingInfo() *lobby.StakingInfo { return s.staking }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TimeLeft returns the remaining match time in seconds.
func (s *Session) TimeLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeft
}

// Winner returns the winner id and end reason, empty until the session ends.
func (s *Session) Winner() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winnerID, s.endReason
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// EndedAt returns when the session ended, zero while running.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Start arms the countdown. Every interval the remaining time is decremented
// and reported through onTick; when it reaches zero the session freezes
// survival times, recomputes scores, determines the winner (highest score,
// first in insertion order on ties), and calls onEnd once with ReasonTimeUp.
// Calling Start more than once is a no-op.
//
// Precondition: interval > 0; onTick and onEnd must not be nil.
func (s *Session) Start(interval time.Duration, onTick func(timeLeft int), onEnd func(winnerID, reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil || s.status != StatusRunning {
		return
	}
	s.timer = NewTimer(interval, func() bool {
		s.mu.Lock()
		if s.status != StatusRunning {
			s.mu.Unlock()
			return true
		}
		s.timeLeft--
		left := s.timeLeft
		if left <= 0 {
			s.freezeLocked(time.Now())
			winner := s.winnerLocked()
			s.mu.Unlock()
			onEnd(winner, ReasonTimeUp)
			return true
		}
		s.mu.Unlock()
		onTick(left)
		return false
	})
}

// Rebind attaches a (re)connecting player to connectionID and marks them
// online.
//
// Postcondition: Returns the player's display name or gameerr.ErrNotFound.
func (s *Session) Rebind(playerID, connectionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[playerID]
	if !ok {
		return "", fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, playerID, s.code)
	}
	p.ConnectionID = connectionID
	p.IsOnline = true
	return p.Name, nil
}

// FindByConnection returns the player id owning connectionID.
func (s *Session) FindByConnection(connectionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.ConnectionID == connectionID && p.ConnectionID != "" {
			return p.ID, true
		}
	}
	return "", false
}

// MarkOffline flags the player as disconnected but retains all their state.
//
// Postcondition: Returns the player's display name or gameerr.ErrNotFound.
func (s *Session) MarkOffline(playerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[playerID]
	if !ok {
		return "", fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, playerID, s.code)
	}
	p.ConnectionID = ""
	p.IsOnline = false
	return p.Name, nil
}

// ConnectionIDs returns the live connection ids of all online players, the
// session's broadcast group.
func (s *Session) ConnectionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.players))
	for _, p := range s.players {
		if p.ConnectionID != "" {
			ids = append(ids, p.ConnectionID)
		}
	}
	return ids
}

// UpdatePosition overwrites the player's pixel position.
func (s *Session) UpdatePosition(playerID string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[playerID]
	if !ok {
		return fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, playerID, s.code)
	}
	p.Position = arena.PixelPos{X: x, Y: y}
	return nil
}

// UpdateHealth sets the player's health, clamped to [0, MaxHealth], and
// returns the post-update value together with whether this particular update
// drove a live player to zero. The transition is decided under the session
// mutex, so concurrent updates against the same target report at most one
// defeat. When the update carries a shooter other than the target and
// positive damage, damage dealt and shots hit are attributed to the shooter
// and damage taken to the target. Defeat handling itself belongs to the
// orchestrator; this method only reports.
func (s *Session) UpdateHealth(playerID string, health int, shooterID string, damage int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[playerID]
	if !ok {
		return 0, false, fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, playerID, s.code)
	}

	if health < 0 {
		health = 0
	}
	if health > MaxHealth {
		health = MaxHealth
	}
	defeated := p.Health > 0 && health == 0
	p.Health = health

	if shooterID != "" && shooterID != playerID && damage > 0 {
		if shooter, ok := s.byID[shooterID]; ok {
			shooter.Stats.DamageDealt += damage
			shooter.Stats.ShotsHit++
		}
		p.Stats.DamageTaken += damage
	}
	return p.Health, defeated, nil
}

// RecordShot counts one fired shot for the player.
func (s *Session) RecordShot(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[playerID]
	if !ok {
		return fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, playerID, s.code)
	}
	p.Stats.ShotsFired++
	return nil
}

// AddKill credits a kill to the killer and recomputes their score. The
// victim's stats are untouched; their death is counted by the respawn step,
// keeping exactly one death increment per defeat.
func (s *Session) AddKill(killerID, victimID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	killer, ok := s.byID[killerID]
	if !ok {
		return fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, killerID, s.code)
	}
	if _, ok := s.byID[victimID]; !ok {
		return fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, victimID, s.code)
	}
	killer.Stats.Kills++
	killer.Stats.Score = Score(killer.Stats)
	return nil
}

// Respawn brings a defeated player back at the given pixel position with full
// health, facing down, one more death, and a fresh spawn time.
//
// Postcondition: Returns the player's display name or gameerr.ErrNotFound.
func (s *Session) Respawn(playerID string, pos arena.PixelPos) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[playerID]
	if !ok {
		return "", fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, playerID, s.code)
	}
	p.Health = MaxHealth
	p.Position = pos
	p.Direction = DirectionDown
	p.Stats.Deaths++
	p.Stats.SpawnTime = time.Now()
	p.Stats.Score = Score(p.Stats)
	return p.Name, nil
}

// OccupiedTiles returns the tile positions of every player except excludeID,
// converted from pixel space.
func (s *Session) OccupiedTiles(excludeID string) []arena.TilePos {
	s.mu.Lock()
	defer s.mu.Unlock()
	tiles := make([]arena.TilePos, 0, len(s.players))
	for _, p := range s.players {
		if p.ID == excludeID {
			continue
		}
		tiles = append(tiles, s.tileMap.PixelToTile(p.Position))
	}
	return tiles
}

// End terminates the session: survival times are frozen, scores recomputed,
// the winner and reason recorded, and the timer cancelled. Idempotent; only
// the first call transitions and returns true.
func (s *Session) End(winnerID, reason string) bool {
	s.mu.Lock()
	if s.status == StatusEnded {
		s.mu.Unlock()
		return false
	}
	now := time.Now()
	s.freezeLocked(now)
	s.status = StatusEnded
	s.winnerID = winnerID
	s.endReason = reason
	s.endedAt = now
	timer := s.timer
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	return true
}

// freezeLocked fixes every player's survival time at now and recomputes all
// scores. Caller must hold s.mu.
func (s *Session) freezeLocked(now time.Time) {
	for _, p := range s.players {
		p.Stats.SurvivalTime = int(now.Sub(p.Stats.SpawnTime).Seconds())
		if p.Stats.SurvivalTime < 0 {
			p.Stats.SurvivalTime = 0
		}
		p.Stats.Score = Score(p.Stats)
	}
}

// winnerLocked returns the id of the single highest-score player; ties go to
// the earliest player in insertion order. Caller must hold s.mu.
func (s *Session) winnerLocked() string {
	var winner string
	best := 0
	for i, p := range s.players {
		if i == 0 || p.Stats.Score > best {
			winner = p.ID
			best = p.Stats.Score
		}
	}
	return winner
}

// PlayerName returns the display name for a player id.
func (s *Session) PlayerName(playerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[playerID]
	if !ok {
		return "", false
	}
	return p.Name, true
}

// PlayersSnapshot returns copies of every player state in insertion order.
func (s *Session) PlayersSnapshot() []PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayerState, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}
