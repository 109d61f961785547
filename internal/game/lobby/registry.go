package lobby

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tilestrike/arena/internal/game/gameerr"
	"github.com/tilestrike/arena/internal/game/rng"
)

// Outbound lobby event names.
const (
	EventLobbyData       = "lobbyData"
	EventLobbyUpdate     = "lobbyUpdate"
	EventMessage         = "message"
	EventGameStarting    = "gameStarting"
	EventStakeRequired   = "stakeRequired"
	EventStakingProgress = "stakingProgress"
	EventPlayersRemoved  = "playersRemoved"
)

// Sender delivers an event to a single connection. Implementations must not
// block; registry methods call Send while holding the registry lock.
type Sender interface {
	Send(connectionID, event string, payload any)
}

// SessionStarter receives the start ticket when a lobby transitions to a live
// session. Implementations must tolerate duplicate tickets for the same code.
type SessionStarter interface {
	StartSession(t StartTicket)
}

// Registry owns all active lobbies and serializes every mutation through a
// single mutex. It is safe for concurrent use.
//
// Invariant: at most one Lobby exists per code.
type Registry struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby

	src     rng.Source
	sender  Sender
	starter SessionStarter
	logger  *zap.Logger

	// stakingTimeout is the window players have to stake in a rated start.
	stakingTimeout time.Duration
	// escrowContract is the external escrow contract reference advertised in
	// stake requests; may be empty when no chain collaborator is configured.
	escrowContract string
}

// NewRegistry creates an empty lobby Registry.
//
// Precondition: src, sender, starter, and logger must be non-nil;
// stakingTimeout must be > 0.
func NewRegistry(src rng.Source, sender Sender, starter SessionStarter, stakingTimeout time.Duration, escrowContract string, logger *zap.Logger) *Registry {
	return &Registry{
		lobbies:        make(map[string]*Lobby),
		src:            src,
		sender:         sender,
		starter:        starter,
		logger:         logger,
		stakingTimeout: stakingTimeout,
		escrowContract: escrowContract,
	}
}

// Create makes a new lobby owned by the creator and returns its code.
//
// Postcondition: The lobby exists with the creator as its only member and
// receives a lobbyData snapshot on its connection.
func (r *Registry) Create(creatorID, creatorName, loadout, connectionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := generateCode(r.src, func(c string) bool {
		_, taken := r.lobbies[c]
		return taken
	})

	lob := &Lobby{
		Code:    code,
		OwnerID: creatorID,
		Players: []*Player{{
			ID:           creatorID,
			Name:         creatorName,
			ConnectionID: connectionID,
			Loadout:      loadout,
		}},
		Settings:  DefaultSettings(),
		Status:    StatusWaiting,
		CreatedAt: time.Now(),
	}
	r.lobbies[code] = lob

	r.logger.Info("lobby created",
		zap.String("code", code),
		zap.String("owner", creatorID),
	)
	r.sender.Send(connectionID, EventLobbyData, lob.snapshot())
	return code
}

// Join adds a player to the lobby, or rebinds their connection and loadout if
// they are already a member (reconnect). Joining is idempotent per player id
// and there is no member limit.
//
// Postcondition: On success every member receives a lobbyUpdate and a system
// message; the joiner additionally receives lobbyData. Returns
// gameerr.ErrNotFound for an unknown code.
func (r *Registry) Join(code, playerID, name, loadout, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = NormalizeCode(code)
	lob, ok := r.lobbies[code]
	if !ok {
		return fmt.Errorf("%w: lobby %s", gameerr.ErrNotFound, code)
	}

	if p, exists := lob.player(playerID); exists {
		p.ConnectionID = connectionID
		p.Loadout = loadout
		r.broadcast(lob, EventLobbyUpdate, lob.snapshot())
		r.broadcast(lob, EventMessage, fmt.Sprintf("%s reconnected", p.Name))
	} else {
		lob.Players = append(lob.Players, &Player{
			ID:           playerID,
			Name:         name,
			ConnectionID: connectionID,
			Loadout:      loadout,
		})
		r.broadcast(lob, EventLobbyUpdate, lob.snapshot())
		r.broadcast(lob, EventMessage, fmt.Sprintf("%s joined the lobby", name))
	}

	r.sender.Send(connectionID, EventLobbyData, lob.snapshot())
	return nil
}

// Leave removes a player from the lobby. When the owner leaves, ownership
// transfers to the first remaining player in insertion order; when the last
// player leaves, the lobby is deleted. Missing lobbies or players are logged
// and ignored.
func (r *Registry) Leave(code, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = NormalizeCode(code)
	lob, ok := r.lobbies[code]
	if !ok {
		r.logger.Debug("leave for unknown lobby", zap.String("code", code))
		return
	}

	var left *Player
	for i, p := range lob.Players {
		if p.ID == playerID {
			left = p
			lob.Players = append(lob.Players[:i], lob.Players[i+1:]...)
			break
		}
	}
	if left == nil {
		r.logger.Debug("leave for unknown player",
			zap.String("code", code),
			zap.String("player", playerID),
		)
		return
	}

	if len(lob.Players) == 0 {
		r.deleteLobbyLocked(lob)
		return
	}
	if lob.OwnerID == playerID {
		lob.OwnerID = lob.Players[0].ID
		r.logger.Info("lobby ownership transferred",
			zap.String("code", code),
			zap.String("owner", lob.OwnerID),
		)
	}

	r.broadcast(lob, EventLobbyUpdate, lob.snapshot())
	r.broadcast(lob, EventMessage, fmt.Sprintf("%s left the lobby", left.Name))
}

// UpdateSettings merges a settings patch into the lobby. Only the current
// owner may update settings.
//
// Postcondition: On success every member receives a lobbyUpdate. Returns
// gameerr.ErrNotFound or gameerr.ErrUnauthorized on failure; the settings are
// unchanged in that case.
func (r *Registry) UpdateSettings(code, playerID string, patch SettingsPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = NormalizeCode(code)
	lob, ok := r.lobbies[code]
	if !ok {
		return fmt.Errorf("%w: lobby %s", gameerr.ErrNotFound, code)
	}
	if lob.OwnerID != playerID {
		return fmt.Errorf("%w: only the lobby owner may change settings", gameerr.ErrUnauthorized)
	}

	lob.Settings.Apply(patch)
	r.broadcast(lob, EventLobbyUpdate, lob.snapshot())
	return nil
}

// Start begins the game for the lobby. Only the owner may start; the lobby
// needs at least two members and complete settings. Rated lobbies enter the
// staking sub-protocol instead of starting immediately.
//
// Postcondition: On the immediate-start path the lobby is deleted, members
// receive gameStarting, and the session starter is invoked. On the rated path
// members receive stakeRequired and the staking timeout is armed.
func (r *Registry) Start(code, playerID string) error {
	r.mu.Lock()

	code = NormalizeCode(code)
	lob, ok := r.lobbies[code]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: lobby %s", gameerr.ErrNotFound, code)
	}
	if lob.OwnerID != playerID {
		r.mu.Unlock()
		return fmt.Errorf("%w: only the lobby owner may start the game", gameerr.ErrUnauthorized)
	}
	if lob.Status == StatusStarting {
		r.mu.Unlock()
		return fmt.Errorf("%w: game is already starting", gameerr.ErrConflict)
	}
	if len(lob.Players) < 2 {
		r.mu.Unlock()
		return fmt.Errorf("%w: at least 2 players are required", gameerr.ErrValidation)
	}
	if err := lob.Settings.CheckStartable(); err != nil {
		r.mu.Unlock()
		return err
	}

	if lob.Settings.GameType == GameTypeRated {
		r.collectStakesLocked(lob)
		r.mu.Unlock()
		return nil
	}

	ticket := r.beginStartLocked(lob)
	r.mu.Unlock()

	r.starter.StartSession(ticket)
	return nil
}

// RecordStake records one player's escrow commitment for a rated start.
// A second stake from the same player and a mismatched amount are rejected.
// When every member has staked, the game starts and the timeout is cancelled.
//
// Postcondition: On success every member receives stakingProgress. Returns a
// taxonomy error on rejection; recorded stakes are never removed.
func (r *Registry) RecordStake(code, playerID string, amount float64, txRef string) error {
	r.mu.Lock()

	code = NormalizeCode(code)
	lob, ok := r.lobbies[code]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: lobby %s", gameerr.ErrNotFound, code)
	}
	if lob.Staking == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: no staking in progress", gameerr.ErrValidation)
	}
	p, ok := lob.player(playerID)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: player %s is not in lobby %s", gameerr.ErrNotFound, playerID, code)
	}
	if _, staked := lob.Staking.Stakes[playerID]; staked {
		r.mu.Unlock()
		return fmt.Errorf("%w: player %s already staked", gameerr.ErrConflict, playerID)
	}
	if amount != lob.Staking.StakeAmount {
		r.mu.Unlock()
		return fmt.Errorf("%w: stake amount %.4f does not match required %.4f",
			gameerr.ErrValidation, amount, lob.Staking.StakeAmount)
	}

	lob.Staking.Stakes[playerID] = StakeEntry{
		Amount:   amount,
		TxRef:    txRef,
		StakedAt: time.Now(),
	}
	r.logger.Info("stake recorded",
		zap.String("code", code),
		zap.String("player", playerID),
		zap.Float64("amount", amount),
	)
	r.broadcast(lob, EventStakingProgress, map[string]any{
		"playersStaked": len(lob.Staking.Stakes),
		"totalPlayers":  len(lob.Players),
		"totalStake":    lob.Staking.TotalStake(),
		"stakedPlayer":  p.Name,
	})

	if len(lob.Staking.Stakes) < len(lob.Players) {
		r.mu.Unlock()
		return nil
	}

	// Everyone staked: start. Racing the timeout is resolved by the status
	// guard in beginStartLocked and onStakingTimeout.
	ticket := r.beginStartLocked(lob)
	r.mu.Unlock()

	r.starter.StartSession(ticket)
	return nil
}

// Chat relays a chat line from a lobby member to the whole room as a
// human-readable message.
//
// Postcondition: Returns gameerr.ErrNotFound for an unknown code or
// non-member, gameerr.ErrValidation for empty text.
func (r *Registry) Chat(code, playerID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = NormalizeCode(code)
	lob, ok := r.lobbies[code]
	if !ok {
		return fmt.Errorf("%w: lobby %s", gameerr.ErrNotFound, code)
	}
	p, ok := lob.player(playerID)
	if !ok {
		return fmt.Errorf("%w: player %s is not in lobby %s", gameerr.ErrNotFound, playerID, code)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty message", gameerr.ErrValidation)
	}

	r.broadcast(lob, EventMessage, fmt.Sprintf("%s: %s", p.Name, text))
	return nil
}

// Disconnect clears the connection of whichever lobby member owns
// connectionID. The member is retained for reconnect.
func (r *Registry) Disconnect(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, lob := range r.lobbies {
		for _, p := range lob.Players {
			if p.ConnectionID == connectionID {
				p.ConnectionID = ""
				r.broadcast(lob, EventLobbyUpdate, lob.snapshot())
				r.broadcast(lob, EventMessage, fmt.Sprintf("%s disconnected", p.Name))
				return
			}
		}
	}
}

// PlayerByConnection returns the id of the lobby member owning
// connectionID.
func (r *Registry) PlayerByConnection(code, connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lob, ok := r.lobbies[NormalizeCode(code)]
	if !ok {
		return "", false
	}
	for _, p := range lob.Players {
		if p.ConnectionID != "" && p.ConnectionID == connectionID {
			return p.ID, true
		}
	}
	return "", false
}

// Snapshot returns the current view of the lobby, if it exists.
func (r *Registry) Snapshot(code string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lob, ok := r.lobbies[NormalizeCode(code)]
	if !ok {
		return Snapshot{}, false
	}
	return lob.snapshot(), true
}

// Count returns the number of active lobbies.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}

// collectStakesLocked arms the staking sub-protocol: generates the match id,
// publishes the stake request, and schedules the timeout.
// Caller must hold r.mu.
func (r *Registry) collectStakesLocked(lob *Lobby) {
	gameID := uuid.NewString()
	lob.Staking = newStaking(gameID, lob.Settings.Stake, r.escrowContract)
	lob.Staking.timer = time.AfterFunc(r.stakingTimeout, func() {
		r.onStakingTimeout(lob.Code, gameID)
	})

	r.logger.Info("staking started",
		zap.String("code", lob.Code),
		zap.String("game_id", gameID),
		zap.Float64("stake", lob.Settings.Stake),
		zap.Duration("timeout", r.stakingTimeout),
	)
	r.broadcast(lob, EventStakeRequired, map[string]any{
		"gameId":       gameID,
		"stakeAmount":  lob.Settings.Stake,
		"totalPlayers": len(lob.Players),
		"contractRef":  r.escrowContract,
	})
}

// onStakingTimeout fires when the staking window expires. Players who never
// staked are removed; if at least two remain the game starts with the
// survivors, otherwise the lobby reverts to waiting. A late stake completion
// that already started the game makes this a no-op.
func (r *Registry) onStakingTimeout(code, gameID string) {
	r.mu.Lock()

	lob, ok := r.lobbies[code]
	if !ok || lob.Staking == nil || lob.Staking.GameID != gameID || lob.Status == StatusStarting {
		r.mu.Unlock()
		return
	}

	var kept []*Player
	var removed []PlayerView
	for _, p := range lob.Players {
		if _, staked := lob.Staking.Stakes[p.ID]; staked {
			kept = append(kept, p)
		} else {
			removed = append(removed, PlayerView{ID: p.ID, Name: p.Name, Loadout: p.Loadout})
		}
	}

	r.logger.Warn("staking window expired",
		zap.String("code", code),
		zap.String("game_id", gameID),
		zap.Int("staked", len(kept)),
		zap.Int("removed", len(removed)),
		zap.Error(fmt.Errorf("%w: %d of %d players staked", gameerr.ErrTimeout, len(kept), len(lob.Players))),
	)

	if len(removed) > 0 {
		// Announce before membership changes so the removed players hear it.
		r.broadcast(lob, EventPlayersRemoved, map[string]any{
			"removedPlayers": removed,
			"reason":         "staking timeout",
		})
	}

	lob.Players = kept
	if len(kept) > 0 {
		if _, stillHere := lob.player(lob.OwnerID); !stillHere {
			lob.OwnerID = kept[0].ID
		}
	}

	if len(kept) >= 2 {
		ticket := r.beginStartLocked(lob)
		r.mu.Unlock()
		r.starter.StartSession(ticket)
		return
	}

	// Not enough stakers: revert and report.
	lob.Staking.cancelTimer()
	lob.Staking = nil
	lob.Status = StatusWaiting
	if len(kept) == 0 {
		r.deleteLobbyLocked(lob)
		r.mu.Unlock()
		return
	}
	r.broadcast(lob, EventLobbyUpdate, lob.snapshot())
	r.broadcast(lob, EventMessage, "staking failed: not enough players staked in time")
	r.mu.Unlock()
}

// beginStartLocked transitions the lobby to starting, broadcasts
// gameStarting, deletes the lobby from the registry, and returns the start
// ticket. Caller must hold r.mu and release it before invoking the starter.
func (r *Registry) beginStartLocked(lob *Lobby) StartTicket {
	lob.Status = StatusStarting
	if lob.Staking != nil {
		lob.Staking.cancelTimer()
	}

	players := make([]Player, 0, len(lob.Players))
	for _, p := range lob.Players {
		players = append(players, *p)
	}
	ticket := StartTicket{
		Code:     lob.Code,
		Settings: lob.Settings,
		Players:  players,
	}
	if lob.Staking != nil {
		info := lob.Staking.Info()
		ticket.Staking = &info
	}

	r.broadcast(lob, EventGameStarting, map[string]any{
		"lobbyCode":   lob.Code,
		"settings":    lob.Settings,
		"players":     lob.snapshot().Players,
		"stakingInfo": ticket.Staking,
	})

	delete(r.lobbies, lob.Code)
	r.logger.Info("lobby starting",
		zap.String("code", lob.Code),
		zap.Int("players", len(players)),
		zap.String("game_type", lob.Settings.GameType),
	)
	return ticket
}

// deleteLobbyLocked removes the lobby and cancels any staking timer.
// Caller must hold r.mu.
func (r *Registry) deleteLobbyLocked(lob *Lobby) {
	if lob.Staking != nil {
		lob.Staking.cancelTimer()
	}
	delete(r.lobbies, lob.Code)
	r.logger.Info("lobby deleted", zap.String("code", lob.Code))
}

// broadcast sends an event to every connected member. Caller must hold r.mu.
func (r *Registry) broadcast(lob *Lobby, event string, payload any) {
	for _, connID := range lob.connectionIDs() {
		r.sender.Send(connID, event, payload)
	}
}
