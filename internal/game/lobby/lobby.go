// Package lobby provides the pre-match room lifecycle: membership, ownership,
// settings negotiation, and the staking sub-protocol for rated games.
package lobby

import (
	"fmt"
	"time"

	"github.com/tilestrike/arena/internal/game/gameerr"
)

// Status is the lobby lifecycle state.
type Status string

// Lobby statuses.
const (
	StatusWaiting  Status = "waiting"
	StatusStarting Status = "starting"
)

// Game types.
const (
	GameTypeFriendly = "friendly"
	GameTypeRated    = "rated"
)

// Settings holds the negotiated match settings.
type Settings struct {
	// GameTime is the match duration in minutes.
	GameTime int `json:"gameTime"`
	// Map names the arena to play on.
	Map string `json:"map"`
	// GameType is "friendly" or "rated".
	GameType string `json:"gameType"`
	// Stake is the per-player escrow amount for rated games.
	Stake float64 `json:"stake"`
}

// DefaultSettings are the settings a fresh lobby opens with; the owner can
// change them any time before starting.
func DefaultSettings() Settings {
	return Settings{
		GameTime: 5,
		Map:      "snow",
		GameType: GameTypeFriendly,
	}
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	GameTime *int     `json:"gameTime"`
	Map      *string  `json:"map"`
	GameType *string  `json:"gameType"`
	Stake    *float64 `json:"stake"`
}

// Apply merges the non-nil fields of p into s.
func (s *Settings) Apply(p SettingsPatch) {
	if p.GameTime != nil {
		s.GameTime = *p.GameTime
	}
	if p.Map != nil {
		s.Map = *p.Map
	}
	if p.GameType != nil {
		s.GameType = *p.GameType
	}
	if p.Stake != nil {
		s.Stake = *p.Stake
	}
}

// CheckStartable verifies the settings required before a game may start.
//
// Postcondition: Returns nil when gameTime, map, and gameType are all set and
// a rated game carries a positive stake; otherwise a gameerr.ErrValidation
// wrapped error naming the first problem.
func (s Settings) CheckStartable() error {
	if s.GameTime <= 0 {
		return fmt.Errorf("%w: game time is not set", gameerr.ErrValidation)
	}
	if s.Map == "" {
		return fmt.Errorf("%w: map is not set", gameerr.ErrValidation)
	}
	if s.GameType == "" {
		return fmt.Errorf("%w: game type is not set", gameerr.ErrValidation)
	}
	if s.GameType == GameTypeRated && s.Stake <= 0 {
		return fmt.Errorf("%w: rated games require a positive stake", gameerr.ErrValidation)
	}
	return nil
}

// Player is a lobby member.
type Player struct {
	// ID is the player's stable identifier.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// ConnectionID is the live connection, empty while disconnected.
	// A disconnected member is retained so it can reconnect.
	ConnectionID string `json:"-"`
	// Loadout is the player's selected loadout.
	Loadout string `json:"selectedLoadout"`
}

// Lobby is a pre-match room.
//
// Invariant: while Players is non-empty, OwnerID names a member of Players.
// The lobby is deleted once the last player leaves.
type Lobby struct {
	Code      string
	OwnerID   string
	Players   []*Player
	Settings  Settings
	Status    Status
	Staking   *Staking
	CreatedAt time.Time
}

// player returns the member with the given id.
func (l *Lobby) player(id string) (*Player, bool) {
	for _, p := range l.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// connectionIDs returns the live connection ids of all connected members.
func (l *Lobby) connectionIDs() []string {
	ids := make([]string, 0, len(l.Players))
	for _, p := range l.Players {
		if p.ConnectionID != "" {
			ids = append(ids, p.ConnectionID)
		}
	}
	return ids
}

// PlayerView is the wire representation of a lobby member.
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Loadout   string `json:"selectedLoadout"`
}

// Snapshot is the full lobby view broadcast to members on every mutation.
type Snapshot struct {
	Code      string       `json:"code"`
	OwnerID   string       `json:"ownerId"`
	Players   []PlayerView `json:"players"`
	Settings  Settings     `json:"gameSettings"`
	Status    Status       `json:"status"`
	Staking   *StakingInfo `json:"stakingStatus,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// snapshot builds the broadcastable view of the lobby.
func (l *Lobby) snapshot() Snapshot {
	players := make([]PlayerView, 0, len(l.Players))
	for _, p := range l.Players {
		players = append(players, PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Connected: p.ConnectionID != "",
			Loadout:   p.Loadout,
		})
	}
	snap := Snapshot{
		Code:      l.Code,
		OwnerID:   l.OwnerID,
		Players:   players,
		Settings:  l.Settings,
		Status:    l.Status,
		CreatedAt: l.CreatedAt,
	}
	if l.Staking != nil {
		info := l.Staking.Info()
		snap.Staking = &info
	}
	return snap
}

// StartTicket is the immutable lobby state handed to the session starter when
// a game begins.
type StartTicket struct {
	// Code is the lobby code, reused as the session code.
	Code string
	// Settings are the negotiated settings at start time.
	Settings Settings
	// Players are copies of the members, in insertion order.
	Players []Player
	// Staking carries the completed staking state for rated games, nil
	// otherwise.
	Staking *StakingInfo
}
