// Package settlement defines the external collaborators a finished match is
// handed to: durable match persistence, chain result submission, and rating
// computation. All of them are best-effort; the session engine never blocks
// on or rolls back for a settlement failure.
package settlement

import (
	"context"
	"time"

	"github.com/tilestrike/arena/internal/game/lobby"
)

// PlayerResult is one player's final per-match performance.
type PlayerResult struct {
	PlayerID     string `json:"playerId"`
	Name         string `json:"name"`
	Placement    int    `json:"placement"`
	Kills        int    `json:"kills"`
	Deaths       int    `json:"deaths"`
	Assists      int    `json:"assists"`
	Score        int    `json:"score"`
	DamageDealt  int    `json:"damageDealt"`
	DamageTaken  int    `json:"damageTaken"`
	SurvivalTime int    `json:"survivalTime"`
	ShotsFired   int    `json:"shotsFired"`
	ShotsHit     int    `json:"shotsHit"`
}

// Record is the finished-match record emitted by the session engine.
type Record struct {
	Code       string             `json:"code"`
	Settings   lobby.Settings     `json:"settings"`
	Players    []PlayerResult     `json:"players"`
	WinnerID   string             `json:"winnerId"`
	WinnerName string             `json:"winnerName"`
	Reason     string             `json:"reason"`
	StartedAt  time.Time          `json:"startedAt"`
	EndedAt    time.Time          `json:"endedAt"`
	Staking    *lobby.StakingInfo `json:"staking,omitempty"`
}

// ChainReceipt identifies a submitted chain transaction.
type ChainReceipt struct {
	TxRef    string `json:"txRef"`
	BlockRef string `json:"blockRef"`
}

// MatchStore persists finished match records.
type MatchStore interface {
	// Ready reports whether the store can accept writes.
	Ready() bool
	// PersistMatch stores the record and returns its storage id.
	PersistMatch(ctx context.Context, rec *Record) (string, error)
}

// ChainSubmitter submits a staked match result to the chain escrow.
// Invoked only when the record carries staking metadata with a chain-side
// match reference.
type ChainSubmitter interface {
	// Ready reports whether a chain connection is configured.
	Ready() bool
	// SubmitResult reports the outcome of a two-sided staked match.
	SubmitResult(ctx context.Context, gameID, winnerID string, scoreA, scoreB int, playerA, playerB string) (ChainReceipt, error)
}

// RatingService computes new ratings from a finished match. The
// transformation itself is opaque to the session engine.
type RatingService interface {
	// Ready reports whether rating computation is available.
	Ready() bool
	// ComputeRatings returns the new rating per player id.
	ComputeRatings(ctx context.Context, rec *Record) (map[string]int, error)
}
