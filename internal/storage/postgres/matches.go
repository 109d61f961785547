package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tilestrike/arena/internal/settlement"
)

// ErrMatchNotFound is returned when a match lookup yields no results.
var ErrMatchNotFound = errors.New("match not found")

// MatchRepository persists finished matches and their per-player results.
// It implements settlement.MatchStore.
type MatchRepository struct {
	db *pgxpool.Pool
}

// NewMatchRepository creates a MatchRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMatchRepository(db *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{db: db}
}

// Ready reports whether the repository can accept writes.
func (r *MatchRepository) Ready() bool {
	return r.db != nil
}

// PersistMatch inserts the match and all player rows in one transaction.
//
// Precondition: rec must be non-nil with at least one player result.
// Postcondition: Returns the generated match id, or a non-nil error and no
// partial rows.
func (r *MatchRepository) PersistMatch(ctx context.Context, rec *settlement.Record) (string, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stakeAmount float64
	var escrowGameID, escrowContract *string
	if rec.Staking != nil {
		stakeAmount = rec.Staking.StakeAmount
		escrowGameID = &rec.Staking.GameID
		escrowContract = &rec.Staking.ContractRef
	}

	var matchID string
	err = tx.QueryRow(ctx, `
		INSERT INTO matches
			(code, map, game_type, game_time_minutes, winner_id, winner_name,
			 end_reason, stake_amount, escrow_game_id, escrow_contract,
			 started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		rec.Code, rec.Settings.Map, rec.Settings.GameType, rec.Settings.GameTime,
		rec.WinnerID, rec.WinnerName, rec.Reason,
		stakeAmount, escrowGameID, escrowContract,
		rec.StartedAt, rec.EndedAt,
	).Scan(&matchID)
	if err != nil {
		return "", fmt.Errorf("inserting match: %w", err)
	}

	for _, p := range rec.Players {
		_, err = tx.Exec(ctx, `
			INSERT INTO match_players
				(match_id, player_id, name, placement, kills, deaths, assists,
				 score, damage_dealt, damage_taken, survival_time_seconds,
				 shots_fired, shots_hit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			matchID, p.PlayerID, p.Name, p.Placement, p.Kills, p.Deaths, p.Assists,
			p.Score, p.DamageDealt, p.DamageTaken, p.SurvivalTime,
			p.ShotsFired, p.ShotsHit,
		)
		if err != nil {
			return "", fmt.Errorf("inserting match player %s: %w", p.PlayerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing match: %w", err)
	}
	return matchID, nil
}

// MatchSummary is a stored match header row.
type MatchSummary struct {
	ID         string
	Code       string
	Map        string
	GameType   string
	WinnerID   string
	WinnerName string
	EndReason  string
	StartedAt  time.Time
	EndedAt    time.Time
}

// RecentMatches returns the most recently ended matches, newest first.
//
// Precondition: limit must be > 0.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *MatchRepository) RecentMatches(ctx context.Context, limit int) ([]MatchSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, code, map, game_type, winner_id, winner_name, end_reason,
		       started_at, ended_at
		FROM matches ORDER BY ended_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	matches := make([]MatchSummary, 0)
	for rows.Next() {
		var m MatchSummary
		if err := rows.Scan(
			&m.ID, &m.Code, &m.Map, &m.GameType, &m.WinnerID, &m.WinnerName,
			&m.EndReason, &m.StartedAt, &m.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

// PlayerResults returns the stored per-player rows for a match, ordered by
// placement.
//
// Precondition: matchID must be non-empty.
// Postcondition: Returns ErrMatchNotFound when the match does not exist.
func (r *MatchRepository) PlayerResults(ctx context.Context, matchID string) ([]settlement.PlayerResult, error) {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)`, matchID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking match: %w", err)
	}
	if !exists {
		return nil, ErrMatchNotFound
	}

	rows, err := r.db.Query(ctx, `
		SELECT player_id, name, placement, kills, deaths, assists, score,
		       damage_dealt, damage_taken, survival_time_seconds,
		       shots_fired, shots_hit
		FROM match_players WHERE match_id = $1 ORDER BY placement ASC`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing match players: %w", err)
	}
	defer rows.Close()

	results := make([]settlement.PlayerResult, 0)
	for rows.Next() {
		var p settlement.PlayerResult
		if err := rows.Scan(
			&p.PlayerID, &p.Name, &p.Placement, &p.Kills, &p.Deaths, &p.Assists,
			&p.Score, &p.DamageDealt, &p.DamageTaken, &p.SurvivalTime,
			&p.ShotsFired, &p.ShotsHit,
		); err != nil {
			return nil, fmt.Errorf("scanning match player: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match players: %w", err)
	}
	return results, nil
}
