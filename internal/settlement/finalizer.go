package settlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tilestrike/arena/internal/game/gameerr"
)

// Finalizer runs the post-match settlement handoff on a detached goroutine.
// Failures are logged and optionally surfaced as an informational broadcast;
// they never affect the synchronous cleanup path.
type Finalizer struct {
	store   MatchStore
	chain   ChainSubmitter
	ratings RatingService
	logger  *zap.Logger
	timeout time.Duration
}

// NewFinalizer creates a Finalizer over the given collaborators.
//
// Precondition: store, chain, ratings, and logger must be non-nil (use the
// Noop implementations for absent collaborators); timeout must be > 0.
func NewFinalizer(store MatchStore, chain ChainSubmitter, ratings RatingService, timeout time.Duration, logger *zap.Logger) *Finalizer {
	return &Finalizer{
		store:   store,
		chain:   chain,
		ratings: ratings,
		logger:  logger,
		timeout: timeout,
	}
}

// Finalize hands the finished match to the collaborators asynchronously and
// returns immediately. notify, if non-nil, receives the chain receipt
// broadcast when a staked result lands on chain. Invoked at most once per
// match end.
func (f *Finalizer) Finalize(rec *Record, notify func(event string, payload any)) {
	go f.run(rec, notify)
}

func (f *Finalizer) run(rec *Record, notify func(event string, payload any)) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	log := f.logger.With(zap.String("code", rec.Code))

	if f.store.Ready() {
		start := time.Now()
		id, err := f.store.PersistMatch(ctx, rec)
		if err != nil {
			log.Error("persisting match failed",
				zap.Error(fmt.Errorf("%w: %w", gameerr.ErrExternal, err)),
				zap.Duration("elapsed", time.Since(start)),
			)
		} else {
			log.Info("match persisted", zap.String("match_id", id), zap.Duration("elapsed", time.Since(start)))
		}
	}

	if f.ratings.Ready() {
		if _, err := f.ratings.ComputeRatings(ctx, rec); err != nil {
			log.Error("computing ratings failed", zap.Error(fmt.Errorf("%w: %w", gameerr.ErrExternal, err)))
		}
	}

	f.submitChain(ctx, rec, notify, log)
}

// submitChain reports a staked two-sided result to the chain collaborator.
// Skipped when the match carried no staking metadata or fewer than two
// ranked players.
func (f *Finalizer) submitChain(ctx context.Context, rec *Record, notify func(event string, payload any), log *zap.Logger) {
	if rec.Staking == nil || rec.Staking.GameID == "" || !f.chain.Ready() {
		return
	}
	if len(rec.Players) < 2 {
		log.Warn("staked match with fewer than two players, skipping chain submission")
		return
	}

	// Players are ordered by final placement; the top two sides carry the
	// escrow outcome.
	a, b := rec.Players[0], rec.Players[1]
	receipt, err := f.chain.SubmitResult(ctx, rec.Staking.GameID, rec.WinnerID, a.Score, b.Score, a.PlayerID, b.PlayerID)
	if err != nil {
		log.Error("chain submission failed",
			zap.String("game_id", rec.Staking.GameID),
			zap.Error(fmt.Errorf("%w: %w", gameerr.ErrExternal, err)),
		)
		return
	}

	log.Info("chain result submitted",
		zap.String("game_id", rec.Staking.GameID),
		zap.String("tx_ref", receipt.TxRef),
	)
	if notify != nil {
		notify("blockchainResult", map[string]any{
			"gameId":   rec.Staking.GameID,
			"winner":   rec.WinnerID,
			"txRef":    receipt.TxRef,
			"blockRef": receipt.BlockRef,
		})
	}
}
