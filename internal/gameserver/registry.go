package gameserver

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tilestrike/arena/internal/game/arena"
	"github.com/tilestrike/arena/internal/game/gameerr"
	"github.com/tilestrike/arena/internal/game/lobby"
	"github.com/tilestrike/arena/internal/game/match"
	"github.com/tilestrike/arena/internal/settlement"
)

// Sender delivers an event to a single connection. Implementations must not
// block.
type Sender interface {
	Send(connectionID, event string, payload any)
}

// Config holds the session registry timing knobs.
type Config struct {
	// TickInterval is the countdown tick period.
	TickInterval time.Duration
	// RespawnDelay is the wait between defeat and respawn.
	RespawnDelay time.Duration
	// CleanupGrace is how long an ended session stays in the registry so
	// late results can still be delivered.
	CleanupGrace time.Duration
	// RespawnRetryLimit bounds respawn placement attempts before the
	// unconditional fallback position is used.
	RespawnRetryLimit int
}

// withDefaults fills zero fields with the production defaults.
func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.RespawnDelay <= 0 {
		c.RespawnDelay = 2 * time.Second
	}
	if c.CleanupGrace <= 0 {
		c.CleanupGrace = 30 * time.Second
	}
	if c.RespawnRetryLimit <= 0 {
		c.RespawnRetryLimit = 5
	}
	return c
}

// SessionRegistry owns all active sessions and is the only component that
// calls across the spawn placer, the sessions, and the settlement
// collaborators. It is safe for concurrent use.
//
// Invariant: at most one session exists per code.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*match.Session
	cleanups map[string]*time.Timer

	maps      *arena.MapSet
	placer    *arena.Placer
	sender    Sender
	finalizer *settlement.Finalizer
	logger    *zap.Logger
	cfg       Config
}

// NewSessionRegistry creates an empty SessionRegistry.
//
// Precondition: maps, placer, sender, finalizer, and logger must be non-nil.
func NewSessionRegistry(maps *arena.MapSet, placer *arena.Placer, sender Sender, finalizer *settlement.Finalizer, cfg Config, logger *zap.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions:  make(map[string]*match.Session),
		cleanups:  make(map[string]*time.Timer),
		maps:      maps,
		placer:    placer,
		sender:    sender,
		finalizer: finalizer,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// StartSession creates and starts the session for a lobby start ticket.
// A ticket for a code that already has a session is a no-op, guarding
// against duplicate start races.
//
// Postcondition: A running session exists for the code; every connected
// player received their per-recipient gameStarted view; the countdown is
// armed.
func (r *SessionRegistry) StartSession(t lobby.StartTicket) {
	r.mu.Lock()
	if _, exists := r.sessions[t.Code]; exists {
		r.mu.Unlock()
		r.logger.Debug("duplicate start ignored", zap.String("code", t.Code))
		return
	}

	m, ok := r.maps.Get(t.Settings.Map)
	if !ok {
		r.logger.Warn("map not found, using default arena",
			zap.String("code", t.Code),
			zap.String("map", t.Settings.Map),
		)
		m = arena.DefaultMap(t.Settings.Map)
	}

	spawns := r.placer.Place(m, len(t.Players), nil)
	sess, err := match.NewSession(t, spawns, m)
	if err != nil {
		r.mu.Unlock()
		r.logger.Error("creating session failed", zap.String("code", t.Code), zap.Error(err))
		return
	}
	r.sessions[t.Code] = sess
	r.mu.Unlock()

	r.logger.Info("session started",
		zap.String("code", t.Code),
		zap.Int("players", len(t.Players)),
		zap.String("map", m.Name),
		zap.Int("time_left", sess.TimeLeft()),
	)

	for _, p := range t.Players {
		if p.ConnectionID != "" {
			r.sender.Send(p.ConnectionID, EventGameStarted, sess.ViewFor(p.ID))
		}
	}

	code := t.Code
	sess.Start(r.cfg.TickInterval,
		func(timeLeft int) {
			r.broadcastCode(code, EventGameTimer, map[string]any{"timeLeft": timeLeft})
		},
		func(winnerID, reason string) {
			r.EndSession(code, winnerID, reason)
		},
	)
}

// JoinGame binds a connection to its player in a running session and replays
// the current state, re-announcing the player to the group.
func (r *SessionRegistry) JoinGame(code, playerID, connectionID string) error {
	sess, ok := r.session(code)
	if !ok {
		return fmt.Errorf("%w: session %s", gameerr.ErrNotFound, code)
	}
	name, err := sess.Rebind(playerID, connectionID)
	if err != nil {
		return err
	}

	r.sender.Send(connectionID, EventGameState, sess.ViewFor(playerID))
	for _, p := range sess.PlayersSnapshot() {
		if p.ID == playerID {
			r.broadcast(sess, EventPlayerJoined, map[string]any{
				"id":       p.ID,
				"name":     name,
				"position": p.Position,
				"health":   p.Health,
				"loadout":  p.Loadout,
			})
			break
		}
	}
	return nil
}

// Move applies a position update and echoes it to the group.
func (r *SessionRegistry) Move(code, playerID string, x, y float64) error {
	sess, ok := r.session(code)
	if !ok {
		return fmt.Errorf("%w: session %s", gameerr.ErrNotFound, code)
	}
	if err := sess.UpdatePosition(playerID, x, y); err != nil {
		return err
	}
	r.broadcast(sess, EventPlayerMoved, map[string]any{
		"playerId": playerID,
		"x":        x,
		"y":        y,
	})
	return nil
}

// HealthUpdate applies a health change, broadcasts the new value, and fires
// defeat handling when the update drives a live player to zero.
func (r *SessionRegistry) HealthUpdate(code, playerID string, health int, shooterID string, damage int) error {
	sess, ok := r.session(code)
	if !ok {
		return fmt.Errorf("%w: session %s", gameerr.ErrNotFound, code)
	}

	updated, defeated, err := sess.UpdateHealth(playerID, health, shooterID, damage)
	if err != nil {
		return err
	}

	r.broadcast(sess, EventPlayerHealthUpdate, map[string]any{
		"playerId": playerID,
		"health":   updated,
	})

	if defeated {
		r.onPlayerDefeated(code, playerID, shooterID)
	}
	return nil
}

// Shoot records a fired shot and echoes the shot to the group.
func (r *SessionRegistry) Shoot(code, playerID string, shot playerShootPayload) error {
	sess, ok := r.session(code)
	if !ok {
		return fmt.Errorf("%w: session %s", gameerr.ErrNotFound, code)
	}
	if err := sess.RecordShot(playerID); err != nil {
		return err
	}
	r.broadcast(sess, EventPlayerShoot, shot)
	return nil
}

// Chat validates and relays an in-game chat message.
func (r *SessionRegistry) Chat(code, playerID, text string) error {
	sess, ok := r.session(code)
	if !ok {
		return fmt.Errorf("%w: session %s", gameerr.ErrNotFound, code)
	}
	msg, err := sess.NewMessage(playerID, text)
	if err != nil {
		return err
	}
	r.broadcast(sess, EventReceiveGameMessage, msg)
	return nil
}

// onPlayerDefeated credits the kill, announces the defeat and the refreshed
// leaderboard, and schedules the delayed respawn.
func (r *SessionRegistry) onPlayerDefeated(code, victimID, killerID string) {
	sess, ok := r.session(code)
	if !ok {
		return
	}

	if killerID != "" && killerID != victimID {
		if err := sess.AddKill(killerID, victimID); err != nil {
			r.logger.Warn("crediting kill failed",
				zap.String("code", code),
				zap.String("killer", killerID),
				zap.Error(err),
			)
		}
	}

	victimName, _ := sess.PlayerName(victimID)
	r.logger.Info("player defeated",
		zap.String("code", code),
		zap.String("victim", victimID),
		zap.String("killer", killerID),
	)
	r.broadcast(sess, EventPlayerDefeated, map[string]any{
		"playerId":   victimID,
		"playerName": victimName,
		"killerId":   killerID,
	})
	r.broadcast(sess, EventLeaderboardUpdate, sess.Leaderboard())

	time.AfterFunc(r.cfg.RespawnDelay, func() {
		r.respawnPlayer(code, victimID)
	})
}

// respawnPlayer places a defeated player back on the map. Placement runs as
// a bounded retry loop against the other players' occupied tiles; once the
// bound is exhausted the fixed near-origin fallback is applied
// unconditionally. No-ops when the session or player vanished while the
// respawn was pending.
func (r *SessionRegistry) respawnPlayer(code, playerID string) {
	sess, ok := r.session(code)
	if !ok || sess.Status() != match.StatusRunning {
		return
	}

	m := sess.Map()
	occupied := sess.OccupiedTiles(playerID)

	tile := arena.FallbackTile
	placed := false
	for attempt := 0; attempt <= r.cfg.RespawnRetryLimit && !placed; attempt++ {
		candidate, valid := r.placer.PlaceOne(m, occupied)
		if valid && m.Valid(candidate, occupied) {
			tile = candidate
			placed = true
		}
	}
	if !placed {
		r.logger.Warn("respawn placement exhausted, using fallback",
			zap.String("code", code),
			zap.String("player", playerID),
			zap.Int("attempts", r.cfg.RespawnRetryLimit+1),
		)
	}

	pos := m.TileToPixel(tile)
	name, err := sess.Respawn(playerID, pos)
	if err != nil {
		// Disconnect raced the delayed respawn; nothing to do.
		return
	}

	r.broadcast(sess, EventPlayerRespawned, map[string]any{
		"playerId":   playerID,
		"playerName": name,
		"health":     match.MaxHealth,
		"position":   pos,
	})
}

// EndSession finalizes the match: freezes and recomputes scores, computes
// the final ranking, broadcasts the terminal state, hands the finished match
// to the settlement collaborators asynchronously, and schedules removal of
// the session after the cleanup grace window. Idempotent per code.
func (r *SessionRegistry) EndSession(code, winnerID, reason string) {
	sess, ok := r.session(code)
	if !ok {
		return
	}
	if !sess.End(winnerID, reason) {
		return
	}

	winnerName, _ := sess.PlayerName(winnerID)
	ranking := sess.FinalRanking()

	r.logger.Info("session ended",
		zap.String("code", code),
		zap.String("winner", winnerID),
		zap.String("reason", reason),
	)
	r.broadcast(sess, EventGameEnded, map[string]any{
		"gameId":        code,
		"winner":        winnerID,
		"winnerName":    winnerName,
		"reason":        reason,
		"finalState":    sess.PublicView(),
		"finalRankings": ranking,
	})

	rec := r.buildRecord(sess, winnerID, winnerName, reason, ranking)
	r.finalizer.Finalize(rec, func(event string, payload any) {
		r.broadcastCode(code, event, payload)
	})

	r.mu.Lock()
	r.cleanups[code] = time.AfterFunc(r.cfg.CleanupGrace, func() {
		r.removeSession(code)
	})
	r.mu.Unlock()
}

// Disconnect marks whichever session player owns connectionID as offline,
// retaining their state, and announces the disconnection.
func (r *SessionRegistry) Disconnect(connectionID string) {
	r.mu.Lock()
	sessions := make([]*match.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		playerID, ok := sess.FindByConnection(connectionID)
		if !ok {
			continue
		}
		name, err := sess.MarkOffline(playerID)
		if err != nil {
			return
		}
		r.logger.Info("player disconnected from session",
			zap.String("code", sess.Code()),
			zap.String("player", playerID),
		)
		r.broadcast(sess, EventPlayerDisconnected, map[string]any{
			"playerId":   playerID,
			"playerName": name,
		})
		return
	}
}

// Session returns the session for code, if present.
func (r *SessionRegistry) Session(code string) (*match.Session, bool) {
	return r.session(code)
}

// Count returns the number of sessions in the registry, including ended
// sessions still inside their cleanup grace window.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) session(code string) (*match.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[code]
	return sess, ok
}

// removeSession drops the session and its cleanup handle.
func (r *SessionRegistry) removeSession(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
	delete(r.cleanups, code)
	r.logger.Info("session removed", zap.String("code", code))
}

// buildRecord assembles the settlement record, ordering players by final
// placement.
func (r *SessionRegistry) buildRecord(sess *match.Session, winnerID, winnerName, reason string, ranking []match.RankedPlayer) *settlement.Record {
	states := sess.PlayersSnapshot()
	byID := make(map[string]match.PlayerState, len(states))
	for _, p := range states {
		byID[p.ID] = p
	}

	players := make([]settlement.PlayerResult, 0, len(ranking))
	for _, rp := range ranking {
		p := byID[rp.PlayerID]
		players = append(players, settlement.PlayerResult{
			PlayerID:     p.ID,
			Name:         p.Name,
			Placement:    rp.Rank,
			Kills:        p.Stats.Kills,
			Deaths:       p.Stats.Deaths,
			Assists:      p.Stats.Assists,
			Score:        p.Stats.Score,
			DamageDealt:  p.Stats.DamageDealt,
			DamageTaken:  p.Stats.DamageTaken,
			SurvivalTime: p.Stats.SurvivalTime,
			ShotsFired:   p.Stats.ShotsFired,
			ShotsHit:     p.Stats.ShotsHit,
		})
	}

	return &settlement.Record{
		Code:       sess.Code(),
		Settings:   sess.Settings(),
		Players:    players,
		WinnerID:   winnerID,
		WinnerName: winnerName,
		Reason:     reason,
		StartedAt:  sess.CreatedAt(),
		EndedAt:    sess.EndedAt(),
		Staking:    sess.StakingInfo(),
	}
}

// broadcast sends an event to every online player in the session.
func (r *SessionRegistry) broadcast(sess *match.Session, event string, payload any) {
	for _, connID := range sess.ConnectionIDs() {
		r.sender.Send(connID, event, payload)
	}
}

// broadcastCode sends an event to the session for code, if it still exists.
func (r *SessionRegistry) broadcastCode(code, event string, payload any) {
	if sess, ok := r.session(code); ok {
		r.broadcast(sess, event, payload)
	}
}
