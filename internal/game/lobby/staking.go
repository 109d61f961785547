package lobby

import (
	"time"
)

// StakeEntry records one player's escrow commitment.
type StakeEntry struct {
	// Amount is the staked amount; always equal to the lobby stake setting.
	Amount float64 `json:"amount"`
	// TxRef is the opaque escrow transaction reference supplied by the client.
	TxRef string `json:"txRef"`
	// StakedAt is when the stake was recorded.
	StakedAt time.Time `json:"timestamp"`
}

// Staking tracks the staking sub-protocol for one rated start attempt.
//
// Invariant: each player appears at most once in Stakes.
type Staking struct {
	// GameID uniquely identifies this staking round and the eventual match.
	GameID string
	// StakeAmount is the required per-player amount.
	StakeAmount float64
	// Stakes maps player id to the recorded stake.
	Stakes map[string]StakeEntry
	// ContractRef is the external escrow contract reference, if configured.
	ContractRef string

	// timer fires the staking timeout; cancelled on completion.
	timer *time.Timer
}

// newStaking creates a staking round for the given match id and amount.
func newStaking(gameID string, amount float64, contractRef string) *Staking {
	return &Staking{
		GameID:      gameID,
		StakeAmount: amount,
		Stakes:      make(map[string]StakeEntry),
		ContractRef: contractRef,
	}
}

// TotalStake returns the sum of all recorded stakes.
func (s *Staking) TotalStake() float64 {
	var total float64
	for _, e := range s.Stakes {
		total += e.Amount
	}
	return total
}

// cancelTimer stops the pending timeout, if any. Safe to call repeatedly.
func (s *Staking) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// StakingInfo is the wire and settlement view of a staking round.
//
// Invariant: PlayersStaked == len(PlayerStakes).
type StakingInfo struct {
	GameID        string                `json:"gameId"`
	StakeAmount   float64               `json:"stakeAmount"`
	PlayerStakes  map[string]StakeEntry `json:"playerStakes"`
	PlayersStaked int                   `json:"playersStaked"`
	TotalStake    float64               `json:"totalStake"`
	ContractRef   string                `json:"contractRef,omitempty"`
}

// Info builds the StakingInfo view, copying the stakes map.
func (s *Staking) Info() StakingInfo {
	stakes := make(map[string]StakeEntry, len(s.Stakes))
	for id, e := range s.Stakes {
		stakes[id] = e
	}
	return StakingInfo{
		GameID:        s.GameID,
		StakeAmount:   s.StakeAmount,
		PlayerStakes:  stakes,
		PlayersStaked: len(stakes),
		TotalStake:    s.TotalStake(),
		ContractRef:   s.ContractRef,
	}
}
