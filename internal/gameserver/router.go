package gameserver

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/tilestrike/arena/internal/game/lobby"
)

// Router demultiplexes inbound per-connection messages into calls on the
// lobby registry and the session registry. All failures resolve to a single
// lobbyError/gameError message on the originating connection; shared state
// is never left half-mutated.
type Router struct {
	lobbies  *lobby.Registry
	sessions *SessionRegistry
	sender   Sender
	logger   *zap.Logger
}

// NewRouter creates a Router over the two registries.
//
// Precondition: lobbies, sessions, sender, and logger must be non-nil.
func NewRouter(lobbies *lobby.Registry, sessions *SessionRegistry, sender Sender, logger *zap.Logger) *Router {
	return &Router{
		lobbies:  lobbies,
		sessions: sessions,
		sender:   sender,
		logger:   logger,
	}
}

// Route dispatches one inbound message. Unknown message types are logged and
// dropped.
func (r *Router) Route(connectionID, msgType string, data json.RawMessage) {
	switch msgType {
	case MsgCreateLobby:
		handleLobby(r, connectionID, data, func(p createLobbyPayload) error {
			if p.PlayerID == "" || p.PlayerName == "" {
				return fmt.Errorf("player id and name are required")
			}
			r.lobbies.Create(p.PlayerID, p.PlayerName, p.Loadout, connectionID)
			return nil
		})
	case MsgJoinLobby:
		handleLobby(r, connectionID, data, func(p joinLobbyPayload) error {
			return r.lobbies.Join(p.Code, p.PlayerID, p.PlayerName, p.Loadout, connectionID)
		})
	case MsgSendMessage:
		handleLobby(r, connectionID, data, func(p sendMessagePayload) error {
			playerID, ok := r.playerForConnection(connectionID, p.Code)
			if !ok {
				return fmt.Errorf("connection is not in lobby %s", p.Code)
			}
			return r.lobbies.Chat(p.Code, playerID, p.Message)
		})
	case MsgUpdateGameSettings:
		handleLobby(r, connectionID, data, func(p updateSettingsPayload) error {
			playerID, ok := r.playerForConnection(connectionID, p.Code)
			if !ok {
				return fmt.Errorf("connection is not in lobby %s", p.Code)
			}
			return r.lobbies.UpdateSettings(p.Code, playerID, lobby.SettingsPatch{
				GameTime: p.Settings.GameTime,
				Map:      p.Settings.Map,
				GameType: p.Settings.GameType,
				Stake:    p.Settings.Stake,
			})
		})
	case MsgStartGame:
		handleLobby(r, connectionID, data, func(p startGamePayload) error {
			playerID, ok := r.playerForConnection(connectionID, p.Code)
			if !ok {
				return fmt.Errorf("connection is not in lobby %s", p.Code)
			}
			return r.lobbies.Start(p.Code, playerID)
		})
	case MsgPlayerStake:
		handleLobby(r, connectionID, data, func(p playerStakePayload) error {
			return r.lobbies.RecordStake(p.Code, p.PlayerID, p.StakeAmount, p.TxRef)
		})
	case MsgLeaveLobby:
		handleLobby(r, connectionID, data, func(p leaveLobbyPayload) error {
			r.lobbies.Leave(p.Code, p.PlayerID)
			return nil
		})

	case MsgJoinGame:
		handleGame(r, connectionID, data, func(p joinGamePayload) error {
			return r.sessions.JoinGame(p.GameCode, p.PlayerID, connectionID)
		})
	case MsgPlayerMove:
		handleGame(r, connectionID, data, func(p playerMovePayload) error {
			return r.sessions.Move(p.GameCode, p.PlayerID, p.X, p.Y)
		})
	case MsgPlayerHealthUpdate:
		handleGame(r, connectionID, data, func(p healthUpdatePayload) error {
			return r.sessions.HealthUpdate(p.GameCode, p.PlayerID, p.Health, p.ShooterID, p.Damage)
		})
	case MsgPlayerShoot:
		handleGame(r, connectionID, data, func(p playerShootPayload) error {
			return r.sessions.Shoot(p.GameCode, p.PlayerID, p)
		})
	case MsgSendGameMessage:
		handleGame(r, connectionID, data, func(p gameMessagePayload) error {
			return r.sessions.Chat(p.GameCode, p.PlayerID, p.Text)
		})

	default:
		r.logger.Debug("unknown message type",
			zap.String("connection", connectionID),
			zap.String("type", msgType),
		)
	}
}

// Closed handles a connection-close event: the connection's lobby member is
// retained for reconnect and its session player is marked offline.
func (r *Router) Closed(connectionID string) {
	r.lobbies.Disconnect(connectionID)
	r.sessions.Disconnect(connectionID)
}

// handleLobby decodes a lobby payload and reports any failure as lobbyError
// to the originating connection only.
func handleLobby[P any](r *Router, connectionID string, data json.RawMessage, fn func(P) error) {
	handle(r, connectionID, EventLobbyError, data, fn)
}

// handleGame decodes a game payload and reports any failure as gameError to
// the originating connection only.
func handleGame[P any](r *Router, connectionID string, data json.RawMessage, fn func(P) error) {
	handle(r, connectionID, EventGameError, data, fn)
}

func handle[P any](r *Router, connectionID, errEvent string, data json.RawMessage, fn func(P) error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		r.sender.Send(connectionID, errEvent, "malformed request")
		return
	}
	if err := fn(p); err != nil {
		r.logger.Debug("request rejected",
			zap.String("connection", connectionID),
			zap.Error(err),
		)
		r.sender.Send(connectionID, errEvent, err.Error())
	}
}

// playerForConnection resolves which lobby member owns the connection, so
// owner-only actions cannot be spoofed with someone else's player id.
func (r *Router) playerForConnection(connectionID, code string) (string, bool) {
	return r.lobbies.PlayerByConnection(code, connectionID)
}
